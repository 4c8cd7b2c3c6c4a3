package service

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nurpe/carbon-credits/internal/config"
	"github.com/nurpe/carbon-credits/internal/ledger"
	"github.com/nurpe/carbon-credits/internal/ledger/ledgertest"
	"github.com/nurpe/carbon-credits/internal/media"
	"github.com/nurpe/carbon-credits/internal/model"
	"github.com/nurpe/carbon-credits/internal/oracle"
	"github.com/nurpe/carbon-credits/internal/tokens"
)

var (
	orgA = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	orgB = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	orgC = common.HexToAddress("0x00000000000000000000000000000000000000c3")
)

func testConfig() *config.Config {
	return &config.Config{
		Claims:    config.ClaimsConfig{Year: 2023},
		Requests:  config.RequestsConfig{UnitPrice: decimal.NewFromInt(50)},
		Directory: config.DirectoryConfig{PhotoConcurrency: 2},
	}
}

func whole(n int64) *big.Int {
	v, err := tokens.FromWhole(n)
	if err != nil {
		panic(err)
	}
	return v
}

func session(l *ledgertest.Ledger, addr common.Address) *ledger.Session {
	return ledger.NewSession(l.As(addr), addr)
}

type fakeEvidence struct {
	mu    sync.Mutex
	hash  string
	err   error
	calls int
}

func (f *fakeEvidence) Upload(_ context.Context, file media.File) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := media.Validate(file, 0); err != nil {
		return "", err
	}
	if f.err != nil {
		return "", f.err
	}
	return f.hash, nil
}

type fakePredictor struct {
	mu     sync.Mutex
	value  int64
	err    error
	last   oracle.Request
	called bool
}

func (f *fakePredictor) Predict(_ context.Context, in oracle.Request) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called = true
	f.last = in
	if f.err != nil {
		return 0, f.err
	}
	return f.value, nil
}

type memJournal struct {
	mu   sync.Mutex
	subs map[uuid.UUID]model.ClaimSubmission
}

func newMemJournal() *memJournal {
	return &memJournal{subs: make(map[uuid.UUID]model.ClaimSubmission)}
}

func (j *memJournal) CreateSubmission(_ context.Context, sub model.ClaimSubmission) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.subs[sub.ID] = sub
	return nil
}

func (j *memJournal) MarkApproved(_ context.Context, id uuid.UUID, txHash string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	sub, ok := j.subs[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	sub.State = model.SubmissionStateApproved
	sub.ApproveTxHash = &txHash
	j.subs[id] = sub
	return nil
}

func (j *memJournal) MarkApprovalFailed(_ context.Context, id uuid.UUID, reason string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	sub, ok := j.subs[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	sub.FailureReason = &reason
	j.subs[id] = sub
	return nil
}

func (j *memJournal) GetSubmission(_ context.Context, id uuid.UUID) (*model.ClaimSubmission, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	sub, ok := j.subs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &sub, nil
}

func (j *memJournal) ListSubmissionsByState(_ context.Context, state model.SubmissionState) ([]model.ClaimSubmission, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []model.ClaimSubmission
	for _, sub := range j.subs {
		if sub.State == state {
			out = append(out, sub)
		}
	}
	return out, nil
}

type fakeReceipts struct{}

func (fakeReceipts) Generate(sub model.ClaimSubmission) ([]byte, error) {
	return []byte("%PDF-receipt " + sub.ClaimID), nil
}

type fakeMedia struct {
	blobs map[string][]byte
	fail  map[string]bool
}

func (f *fakeMedia) Get(ctx context.Context, hash string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if f.fail[hash] {
		return nil, false, errors.New("gateway timeout")
	}
	data, ok := f.blobs[hash]
	return data, ok, nil
}

var nopLog = zerolog.Nop()
