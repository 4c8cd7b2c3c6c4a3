package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nurpe/carbon-credits/internal/model"
)

type SubmissionRepository struct {
	db *gorm.DB
}

func NewSubmissionRepository(db *gorm.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

type submissionRow struct {
	ID              uuid.UUID
	ClaimID         string
	Organization    string
	ProjectName     string
	Acres           int64
	DemandedTokens  int64
	PredictedTokens int64
	AwardedTokens   int64
	OracleDegraded  bool
	EvidenceHash    string
	SubmittedBy     string
	Year            int
	State           string
	SubmitTxHash    string
	ApproveTxHash   *string
	FailureReason   *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

const submissionColumns = `
	id, claim_id, organization, project_name, acres, demanded_tokens,
	predicted_tokens, awarded_tokens, oracle_degraded, evidence_hash, submitted_by, year,
	state, submit_tx_hash, approve_tx_hash, failure_reason, created_at, updated_at`

func (r *SubmissionRepository) CreateSubmission(ctx context.Context, sub model.ClaimSubmission) error {
	now := time.Now().UTC()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = sub.CreatedAt
	}
	if sub.State == "" {
		sub.State = model.SubmissionStateSubmittedUnapproved
	}
	return r.db.WithContext(ctx).Exec(`
		INSERT INTO claim_submission (`+submissionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		sub.ID, sub.ClaimID, sub.Organization, sub.ProjectName, sub.Acres, sub.DemandedTokens,
		sub.PredictedTokens, sub.AwardedTokens, sub.OracleDegraded, sub.EvidenceHash, sub.SubmittedBy, sub.Year,
		string(sub.State), sub.SubmitTxHash, sub.ApproveTxHash, sub.FailureReason, sub.CreatedAt, sub.UpdatedAt,
	).Error
}

func (r *SubmissionRepository) MarkApproved(ctx context.Context, id uuid.UUID, approveTxHash string) error {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE claim_submission
		SET state = ?, approve_tx_hash = ?, failure_reason = NULL, updated_at = ?
		WHERE id = ?
	`, string(model.SubmissionStateApproved), approveTxHash, time.Now().UTC(), id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// MarkApprovalFailed keeps the row in SUBMITTED_UNAPPROVED and records why.
func (r *SubmissionRepository) MarkApprovalFailed(ctx context.Context, id uuid.UUID, reason string) error {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE claim_submission
		SET failure_reason = ?, updated_at = ?
		WHERE id = ? AND state = ?
	`, reason, time.Now().UTC(), id, string(model.SubmissionStateSubmittedUnapproved))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *SubmissionRepository) GetSubmission(ctx context.Context, id uuid.UUID) (*model.ClaimSubmission, error) {
	var row submissionRow
	err := r.db.WithContext(ctx).Raw(`
		SELECT `+submissionColumns+`
		FROM claim_submission
		WHERE id = ?
	`, id).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, gorm.ErrRecordNotFound
	}
	sub := row.toModel()
	return &sub, nil
}

func (r *SubmissionRepository) ListSubmissionsByState(ctx context.Context, state model.SubmissionState) ([]model.ClaimSubmission, error) {
	var rows []submissionRow
	err := r.db.WithContext(ctx).Raw(`
		SELECT `+submissionColumns+`
		FROM claim_submission
		WHERE state = ?
		ORDER BY created_at, id
	`, string(state)).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	result := make([]model.ClaimSubmission, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toModel())
	}
	return result, nil
}

func (row submissionRow) toModel() model.ClaimSubmission {
	return model.ClaimSubmission{
		ID:              row.ID,
		ClaimID:         row.ClaimID,
		Organization:    row.Organization,
		ProjectName:     row.ProjectName,
		Acres:           row.Acres,
		DemandedTokens:  row.DemandedTokens,
		PredictedTokens: row.PredictedTokens,
		AwardedTokens:   row.AwardedTokens,
		OracleDegraded:  row.OracleDegraded,
		EvidenceHash:    row.EvidenceHash,
		SubmittedBy:     row.SubmittedBy,
		Year:            row.Year,
		State:           model.SubmissionState(row.State),
		SubmitTxHash:    row.SubmitTxHash,
		ApproveTxHash:   row.ApproveTxHash,
		FailureReason:   row.FailureReason,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
}
