package service

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/nurpe/carbon-credits/internal/config"
	"github.com/nurpe/carbon-credits/internal/ledger"
	"github.com/nurpe/carbon-credits/internal/model"
	"github.com/nurpe/carbon-credits/internal/tokens"
)

type StatementGenerator interface {
	Generate(statement model.RequestStatement) ([]byte, error)
}

type RequestService struct {
	unitPrice decimal.Decimal
	excel     StatementGenerator
	log       zerolog.Logger
}

type CreateRequestResult struct {
	RequestID string
	TxHash    string
}

type ExportResult struct {
	FileName string
	Content  []byte
}

func NewRequestService(excel StatementGenerator, cfg *config.Config, log zerolog.Logger) *RequestService {
	return &RequestService{
		unitPrice: cfg.Requests.UnitPrice,
		excel:     excel,
		log:       log,
	}
}

// ParseAmount accepts a positive, finite decimal token amount that the
// ledger can represent exactly.
func ParseAmount(raw string) (decimal.Decimal, *big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil, fmt.Errorf("%w: amount is required", ErrValidation)
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, nil, fmt.Errorf("%w: amount %q is not a number", ErrValidation, raw)
	}
	if !amount.IsPositive() {
		return decimal.Zero, nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	base, err := tokens.FromDecimal(amount)
	if err != nil {
		return decimal.Zero, nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return amount, base, nil
}

func ParseAddress(raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%w: %q is not a ledger address", ErrValidation, raw)
	}
	return common.HexToAddress(raw), nil
}

func ParseRequestID(raw string) (*big.Int, error) {
	id, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || id.Sign() < 0 {
		return nil, fmt.Errorf("%w: invalid request id %q", ErrValidation, raw)
	}
	return id, nil
}

// Create asks sellerRaw to lend amountRaw tokens to the session's account.
// Seller solvency is checked by the ledger at approval time, not here.
func (s *RequestService) Create(ctx context.Context, session *ledger.Session, sellerRaw, amountRaw string) (*CreateRequestResult, error) {
	seller, err := ParseAddress(sellerRaw)
	if err != nil {
		return nil, err
	}
	_, amount, err := ParseAmount(amountRaw)
	if err != nil {
		return nil, err
	}
	if !session.Connected() {
		return nil, fmt.Errorf("%w: no ledger session", ErrNotAuthorized)
	}
	if seller == session.Address {
		return nil, fmt.Errorf("%w: cannot borrow from own account", ErrValidation)
	}

	rcpt, err := session.Ledger.CreateRequest(ctx, seller, amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLedgerTransaction, err)
	}
	events := rcpt.EventsNamed(ledger.EventRequestCreated)
	if len(events) != 1 {
		return nil, fmt.Errorf("%w: expected one %s event, got %d", ErrIntegrationFault, ledger.EventRequestCreated, len(events))
	}
	id, ok := events[0].BigField("requestId")
	if !ok {
		return nil, fmt.Errorf("%w: %s event has no requestId", ErrIntegrationFault, ledger.EventRequestCreated)
	}

	s.log.Info().
		Str("request_id", id.String()).
		Str("actor", session.Actor).
		Str("buyer", session.Address.Hex()).
		Str("seller", seller.Hex()).
		Str("amount", strings.TrimSpace(amountRaw)).
		Msg("borrow request created")
	return &CreateRequestResult{RequestID: id.String(), TxHash: rcpt.TxHash}, nil
}

// List returns the requests where address is buyer or seller, in ledger
// order. An empty address means the session's own account.
func (s *RequestService) List(ctx context.Context, session *ledger.Session, addressRaw string) ([]model.BorrowRequest, error) {
	if !session.Connected() {
		return nil, fmt.Errorf("%w: no ledger session", ErrNotAuthorized)
	}
	address := session.Address
	if strings.TrimSpace(addressRaw) != "" {
		parsed, err := ParseAddress(addressRaw)
		if err != nil {
			return nil, err
		}
		address = parsed
	}

	rows, err := session.Ledger.UsersRequests(ctx, address)
	if err != nil {
		return nil, err
	}
	result := make([]model.BorrowRequest, 0, len(rows))
	for _, row := range rows {
		req, err := s.toBorrowRequest(row)
		if err != nil {
			return nil, err
		}
		result = append(result, req)
	}
	return result, nil
}

// Handle moves a Pending request to Approved or Declined. Only the potential
// seller may do so; approval transfers the amount on the ledger.
func (s *RequestService) Handle(ctx context.Context, session *ledger.Session, requestIDRaw string, approve bool) error {
	requestID, err := ParseRequestID(requestIDRaw)
	if err != nil {
		return err
	}
	if !session.Connected() {
		return fmt.Errorf("%w: no ledger session", ErrNotAuthorized)
	}

	current, err := s.find(ctx, session, requestID)
	if err != nil {
		return err
	}
	if current.Status != model.RequestStatusPending {
		return fmt.Errorf("%w: request %s is %s", ErrInvalidStateTransition, current.ID, strings.ToLower(string(current.Status)))
	}
	if !strings.EqualFold(current.PotentialSeller, session.Address.Hex()) {
		return fmt.Errorf("%w: only the potential seller can handle request %s", ErrNotAuthorized, current.ID)
	}

	if _, err := session.Ledger.HandleRequest(ctx, requestID, approve); err != nil {
		return classifyHandleError(err)
	}

	s.log.Info().
		Str("request_id", current.ID).
		Str("actor", session.Actor).
		Bool("approve", approve).
		Msg("borrow request handled")
	return nil
}

func (s *RequestService) Export(ctx context.Context, session *ledger.Session, addressRaw string) (*ExportResult, error) {
	requests, err := s.List(ctx, session, addressRaw)
	if err != nil {
		return nil, err
	}
	owner := session.Address.Hex()
	if strings.TrimSpace(addressRaw) != "" {
		owner = common.HexToAddress(addressRaw).Hex()
	}
	statement := model.RequestStatement{
		Address:     owner,
		GeneratedAt: time.Now().UTC(),
		UnitPrice:   s.unitPrice,
		Requests:    requests,
	}
	content, err := s.excel.Generate(statement)
	if err != nil {
		return nil, err
	}
	return &ExportResult{
		FileName: fmt.Sprintf("requests-%s-%s.xlsx", strings.ToLower(owner), statement.GeneratedAt.Format("20060102")),
		Content:  content,
	}, nil
}

func (s *RequestService) find(ctx context.Context, session *ledger.Session, id *big.Int) (*model.BorrowRequest, error) {
	rows, err := session.Ledger.UsersRequests(ctx, session.Address)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if row.ID == nil || row.ID.Cmp(id) != 0 {
			continue
		}
		req, err := s.toBorrowRequest(row)
		if err != nil {
			return nil, err
		}
		return &req, nil
	}
	return nil, fmt.Errorf("%w: request %s", ErrNotFound, id)
}

func (s *RequestService) toBorrowRequest(row ledger.Request) (model.BorrowRequest, error) {
	status, err := model.ParseRequestStatus(row.Status)
	if err != nil {
		return model.BorrowRequest{}, fmt.Errorf("%w: request %s: %w", ErrIntegrationFault, row.ID, err)
	}
	amount := tokens.ToDecimal(row.Amount)
	return model.BorrowRequest{
		ID:              row.ID.String(),
		Buyer:           row.Buyer.Hex(),
		PotentialSeller: row.PotentialSeller.Hex(),
		Amount:          amount,
		Status:          status,
		Price:           amount.Mul(s.unitPrice),
	}, nil
}

// classifyHandleError names the ledger's reason so callers can tell an
// insolvent seller apart from any other failed transaction.
func classifyHandleError(err error) error {
	switch {
	case ledger.ReasonContains(err, "insufficient"):
		return fmt.Errorf("%w: %w", ErrInsufficientBalance, err)
	case ledger.ReasonContains(err, "not pending", "already handled", "already processed"):
		return fmt.Errorf("%w: %w", ErrInvalidStateTransition, err)
	default:
		return fmt.Errorf("%w: %w", ErrLedgerTransaction, err)
	}
}
