package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/nurpe/carbon-credits/internal/config"
	"github.com/nurpe/carbon-credits/internal/ledger"
	"github.com/nurpe/carbon-credits/internal/media"
	"github.com/nurpe/carbon-credits/internal/model"
	"github.com/nurpe/carbon-credits/internal/oracle"
	"github.com/nurpe/carbon-credits/internal/tokens"
)

type EvidenceStore interface {
	Upload(ctx context.Context, f media.File) (string, error)
}

type YieldPredictor interface {
	Predict(ctx context.Context, in oracle.Request) (int64, error)
}

// SubmissionJournal records how far each claim workflow got. It is not
// consulted for any decision.
type SubmissionJournal interface {
	CreateSubmission(ctx context.Context, sub model.ClaimSubmission) error
	MarkApproved(ctx context.Context, id uuid.UUID, approveTxHash string) error
	MarkApprovalFailed(ctx context.Context, id uuid.UUID, reason string) error
	GetSubmission(ctx context.Context, id uuid.UUID) (*model.ClaimSubmission, error)
	ListSubmissionsByState(ctx context.Context, state model.SubmissionState) ([]model.ClaimSubmission, error)
}

type ReceiptGenerator interface {
	Generate(sub model.ClaimSubmission) ([]byte, error)
}

// defaultSettleTimeout bounds the prediction and approval phase when neither
// the oracle nor the receipt timeout is configured.
const (
	defaultSettleTimeout = 3 * time.Minute
	journalTimeout       = 10 * time.Second
)

type ClaimService struct {
	evidence      EvidenceStore
	predictor     YieldPredictor
	journal       SubmissionJournal
	receipts      ReceiptGenerator
	year          int
	settleTimeout time.Duration
	log           zerolog.Logger
}

type ReceiptResult struct {
	FileName string
	Content  []byte
}

func NewClaimService(
	evidence EvidenceStore,
	predictor YieldPredictor,
	journal SubmissionJournal,
	receipts ReceiptGenerator,
	cfg *config.Config,
	log zerolog.Logger,
) *ClaimService {
	settle := cfg.Oracle.Timeout + cfg.Ledger.ReceiptTimeout
	if settle <= 0 {
		settle = defaultSettleTimeout
	}
	return &ClaimService{
		evidence:      evidence,
		predictor:     predictor,
		journal:       journal,
		receipts:      receipts,
		year:          cfg.Claims.Year,
		settleTimeout: settle,
		log:           log,
	}
}

// CapAward never grants more than was asked for nor more than the model
// estimates.
func CapAward(demanded, predicted int64) int64 {
	award := demanded
	if predicted < award {
		award = predicted
	}
	if award < 0 {
		return 0
	}
	return award
}

// Submit runs the claim workflow: upload evidence, record the claim, ask the
// oracle for a yield estimate and approve the capped award. When the approval
// transaction fails the claim already exists on the ledger; the result is
// returned with State SUBMITTED_UNAPPROVED together with an error wrapping
// ErrSubmittedUnapproved.
//
// Cancelling ctx stops the workflow only before the claim is submitted. After
// that, prediction and approval run detached from ctx, bounded by the oracle
// and receipt timeouts together.
func (s *ClaimService) Submit(ctx context.Context, session *ledger.Session, input model.ClaimInput, evidence *media.File) (*model.ClaimResult, error) {
	if err := validateClaim(input); err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, session); err != nil {
		return nil, err
	}

	evidenceHash := ""
	if evidence != nil {
		hash, err := s.evidence.Upload(ctx, *evidence)
		if err != nil {
			if errors.Is(err, media.ErrInvalidFile) {
				return nil, fmt.Errorf("%w: %w", ErrValidation, err)
			}
			return nil, fmt.Errorf("%w: %w", ErrUpload, err)
		}
		evidenceHash = hash
	}

	demanded, err := tokens.FromWhole(input.DemandedTokens)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rcpt, err := session.Ledger.SubmitClaim(ctx, ledger.ClaimSubmission{
		X:              big.NewInt(input.CoordinateX),
		Y:              big.NewInt(input.CoordinateY),
		Acres:          big.NewInt(input.Acres),
		DemandedTokens: demanded,
		Details:        input.ProjectDetails,
		Name:           input.ProjectName,
		Photos:         []string{evidenceHash},
		Year:           big.NewInt(int64(s.year)),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLedgerTransaction, err)
	}
	if rcpt == nil {
		return nil, fmt.Errorf("%w: submitClaim returned no receipt", ErrIntegrationFault)
	}

	claimID, err := claimIDFromReceipt(rcpt)
	if err != nil {
		s.log.Error().Err(err).Str("tx", rcpt.TxHash).Msg("claim submitted without a usable ClaimSubmitted event")
		return nil, err
	}

	result := &model.ClaimResult{
		ClaimID:      claimID.String(),
		EvidenceHash: evidenceHash,
		State:        model.SubmissionStateSubmittedUnapproved,
		SubmitTxHash: rcpt.TxHash,
	}

	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.settleTimeout)
	defer cancel()

	predicted, err := s.predictor.Predict(settleCtx, oracle.Request{
		Latitude:  input.CoordinateX,
		Longitude: input.CoordinateY,
		Area:      input.Acres,
		Year:      s.year,
	})
	if err != nil && settleCtx.Err() != nil {
		// Running out of time is not an oracle outage; leave the claim unapproved.
		submissionID := s.recordSubmission(ctx, session, input, result)
		return result, s.leaveUnapproved(ctx, session, submissionID, result, fmt.Errorf("yield prediction: %w", err))
	}
	if err != nil {
		s.log.Warn().
			Err(fmt.Errorf("%w: %w", ErrOracleUnavailable, err)).
			Str("claim_id", result.ClaimID).
			Str("actor", session.Actor).
			Msg("yield prediction failed, awarding zero")
		predicted = 0
		result.OracleDegraded = true
	}
	result.PredictedTokens = predicted
	result.AwardedTokens = CapAward(input.DemandedTokens, predicted)

	submissionID := s.recordSubmission(ctx, session, input, result)

	award, err := tokens.FromWhole(result.AwardedTokens)
	if err != nil {
		return result, fmt.Errorf("%w: %w", ErrIntegrationFault, err)
	}
	approval, err := session.Ledger.ApproveClaim(settleCtx, claimID, award)
	if err != nil {
		return result, s.leaveUnapproved(ctx, session, submissionID, result, fmt.Errorf("%w: %w", ErrLedgerTransaction, err))
	}

	result.State = model.SubmissionStateApproved
	if approval != nil {
		result.ApproveTxHash = approval.TxHash
	}
	if submissionID != uuid.Nil {
		jctx, jcancel := s.journalContext(ctx)
		defer jcancel()
		if err := s.journal.MarkApproved(jctx, submissionID, result.ApproveTxHash); err != nil {
			s.log.Warn().Err(err).Str("submission_id", submissionID.String()).Msg("journal update failed")
		}
	}

	s.log.Info().
		Str("claim_id", result.ClaimID).
		Str("actor", session.Actor).
		Int64("demanded", input.DemandedTokens).
		Int64("predicted", result.PredictedTokens).
		Int64("awarded", result.AwardedTokens).
		Msg("claim approved")
	return result, nil
}

// leaveUnapproved records why a submitted claim was not approved and returns
// the ErrSubmittedUnapproved error for it.
func (s *ClaimService) leaveUnapproved(ctx context.Context, session *ledger.Session, submissionID uuid.UUID, result *model.ClaimResult, cause error) error {
	s.log.Error().
		Err(cause).
		Str("claim_id", result.ClaimID).
		Str("actor", session.Actor).
		Int64("award", result.AwardedTokens).
		Msg("claim approval failed, claim left unapproved")
	if submissionID != uuid.Nil {
		jctx, jcancel := s.journalContext(ctx)
		defer jcancel()
		if err := s.journal.MarkApprovalFailed(jctx, submissionID, cause.Error()); err != nil {
			s.log.Warn().Err(err).Str("submission_id", submissionID.String()).Msg("journal update failed")
		}
	}
	return fmt.Errorf("%w: claim %s: %w", ErrSubmittedUnapproved, result.ClaimID, cause)
}

// journalContext outlives the caller so the journal reflects what happened
// on the ledger.
func (s *ClaimService) journalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), journalTimeout)
}

func (s *ClaimService) ListUnapproved(ctx context.Context) ([]model.ClaimSubmission, error) {
	if s.journal == nil {
		return []model.ClaimSubmission{}, nil
	}
	return s.journal.ListSubmissionsByState(ctx, model.SubmissionStateSubmittedUnapproved)
}

func (s *ClaimService) Receipt(ctx context.Context, id uuid.UUID) (*ReceiptResult, error) {
	if s.journal == nil || s.receipts == nil {
		return nil, ErrNotFound
	}
	sub, err := s.journal.GetSubmission(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	content, err := s.receipts.Generate(*sub)
	if err != nil {
		return nil, err
	}
	return &ReceiptResult{
		FileName: fmt.Sprintf("claim-%s-receipt.pdf", sub.ClaimID),
		Content:  content,
	}, nil
}

func (s *ClaimService) authorize(ctx context.Context, session *ledger.Session) error {
	if !session.Connected() {
		return fmt.Errorf("%w: no ledger session", ErrNotAuthorized)
	}
	org, err := session.Ledger.Organization(ctx, session.Address)
	if err != nil {
		return fmt.Errorf("check registration: %w", err)
	}
	if !org.IsRegistered {
		return fmt.Errorf("%w: %s is not a registered organization", ErrNotAuthorized, session.Address.Hex())
	}
	return nil
}

func (s *ClaimService) recordSubmission(ctx context.Context, session *ledger.Session, input model.ClaimInput, result *model.ClaimResult) uuid.UUID {
	if s.journal == nil {
		return uuid.Nil
	}
	sub := model.ClaimSubmission{
		ID:              uuid.New(),
		ClaimID:         result.ClaimID,
		Organization:    session.Address.Hex(),
		ProjectName:     input.ProjectName,
		Acres:           input.Acres,
		DemandedTokens:  input.DemandedTokens,
		PredictedTokens: result.PredictedTokens,
		AwardedTokens:   result.AwardedTokens,
		OracleDegraded:  result.OracleDegraded,
		EvidenceHash:    result.EvidenceHash,
		SubmittedBy:     session.Actor,
		Year:            s.year,
		State:           model.SubmissionStateSubmittedUnapproved,
		SubmitTxHash:    result.SubmitTxHash,
	}
	jctx, cancel := s.journalContext(ctx)
	defer cancel()
	if err := s.journal.CreateSubmission(jctx, sub); err != nil {
		s.log.Warn().Err(err).Str("claim_id", result.ClaimID).Msg("journal insert failed")
		return uuid.Nil
	}
	result.SubmissionID = sub.ID.String()
	return sub.ID
}

func validateClaim(input model.ClaimInput) error {
	if input.Acres <= 0 {
		return fmt.Errorf("%w: acres must be positive", ErrValidation)
	}
	if input.DemandedTokens <= 0 {
		return fmt.Errorf("%w: demanded tokens must be positive", ErrValidation)
	}
	if strings.TrimSpace(input.ProjectName) == "" {
		return fmt.Errorf("%w: project name is required", ErrValidation)
	}
	return nil
}

// claimIDFromReceipt requires exactly one ClaimSubmitted event.
func claimIDFromReceipt(rcpt *ledger.Receipt) (*big.Int, error) {
	events := rcpt.EventsNamed(ledger.EventClaimSubmitted)
	if len(events) != 1 {
		return nil, fmt.Errorf("%w: expected one %s event, got %d", ErrIntegrationFault, ledger.EventClaimSubmitted, len(events))
	}
	id, ok := events[0].BigField("claimId")
	if !ok {
		return nil, fmt.Errorf("%w: %s event has no claimId", ErrIntegrationFault, ledger.EventClaimSubmitted)
	}
	return id, nil
}
