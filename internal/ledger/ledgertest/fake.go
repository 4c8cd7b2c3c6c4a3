// Package ledgertest provides an in-memory carbon-credit contract for tests.
package ledgertest

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nurpe/carbon-credits/internal/ledger"
)

const (
	statusPending  uint8 = 0
	statusApproved uint8 = 1
	statusDeclined uint8 = 2
)

type organization struct {
	name       string
	photoHash  string
	registered bool
}

type claim struct {
	org      common.Address
	demanded *big.Int
	approved bool
	award    *big.Int
	photos   []string
	year     *big.Int
}

// Ledger emulates the contract rules the service relies on. It is safe for
// concurrent use; each sender gets its own view via As.
type Ledger struct {
	mu sync.Mutex

	orgs          map[common.Address]*organization
	registrations []ledger.Registration
	balances      map[common.Address]*big.Int
	claims        map[string]*claim
	requests      []*ledger.Request
	nextClaim     int64
	nextRequest   int64
	txCount       int64

	calls    map[string]int
	failures map[string]error
	omit     map[string]bool
}

func New() *Ledger {
	return &Ledger{
		orgs:     make(map[common.Address]*organization),
		balances: make(map[common.Address]*big.Int),
		claims:   make(map[string]*claim),
		calls:    make(map[string]int),
		failures: make(map[string]error),
		omit:     make(map[string]bool),
	}
}

// Register records an organization registration with an initial balance in
// base units.
func (l *Ledger) Register(addr common.Address, name, photoHash string, balance *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.orgs[addr] = &organization{name: name, photoHash: photoHash, registered: true}
	l.balances[addr] = new(big.Int).Set(balance)
	l.registrations = append(l.registrations, ledger.Registration{
		Address:   addr,
		Name:      name,
		PhotoHash: photoHash,
		Balance:   new(big.Int).Set(balance),
	})
}

// Revoke unregisters an organization without removing its registration event.
func (l *Ledger) Revoke(addr common.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if org, ok := l.orgs[addr]; ok {
		org.registered = false
	}
}

// FailNext makes the next call of method return err.
func (l *Ledger) FailNext(method string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures[method] = err
}

// OmitEvents makes method's receipts carry no events.
func (l *Ledger) OmitEvents(method string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.omit[method] = true
}

func (l *Ledger) Calls(method string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[method]
}

func (l *Ledger) Balance(addr common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.balances[addr]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

func (l *Ledger) SetBalance(addr common.Address, balance *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[addr] = new(big.Int).Set(balance)
}

// ClaimAward returns the award of an approved claim.
func (l *Ledger) ClaimAward(claimID string) (*big.Int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.claims[claimID]
	if !ok || !c.approved {
		return nil, false
	}
	return new(big.Int).Set(c.award), true
}

// ClaimPhotos returns the evidence list a claim was submitted with.
func (l *Ledger) ClaimPhotos(claimID string) ([]string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.claims[claimID]
	if !ok {
		return nil, false
	}
	return append([]string(nil), c.photos...), true
}

func (l *Ledger) ClaimYear(claimID string) (int64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.claims[claimID]
	if !ok {
		return 0, false
	}
	return c.year.Int64(), true
}

func (l *Ledger) RequestStatus(id *big.Int) (uint8, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range l.requests {
		if r.ID.Cmp(id) == 0 {
			return r.Status, true
		}
	}
	return 0, false
}

// As returns a client that sends transactions from addr.
func (l *Ledger) As(addr common.Address) ledger.Client {
	return &sender{l: l, from: addr}
}

// begin counts the call and fails it like a real client would when ctx is
// done or a failure was queued for method.
func (l *Ledger) begin(ctx context.Context, method string) error {
	l.calls[method]++
	if err := ctx.Err(); err != nil {
		return err
	}
	if err, ok := l.failures[method]; ok {
		delete(l.failures, method)
		return err
	}
	return nil
}

func (l *Ledger) receipt(method string, events ...ledger.Event) *ledger.Receipt {
	l.txCount++
	r := &ledger.Receipt{TxHash: fmt.Sprintf("0x%064x", l.txCount)}
	if !l.omit[method] {
		r.Events = events
	}
	return r
}

func revert(method, reason string) error {
	return &ledger.TxError{Method: method, Reason: "execution reverted: " + reason}
}

type sender struct {
	l    *Ledger
	from common.Address
}

func (s *sender) SubmitClaim(ctx context.Context, in ledger.ClaimSubmission) (*ledger.Receipt, error) {
	l := s.l
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.begin(ctx, "submitClaim"); err != nil {
		return nil, err
	}
	org, ok := l.orgs[s.from]
	if !ok || !org.registered {
		return nil, revert("submitClaim", "Organization not registered")
	}
	l.nextClaim++
	id := big.NewInt(l.nextClaim)
	l.claims[id.String()] = &claim{
		org:      s.from,
		demanded: new(big.Int).Set(in.DemandedTokens),
		photos:   append([]string(nil), in.Photos...),
		year:     new(big.Int).Set(in.Year),
	}
	return l.receipt("submitClaim", ledger.Event{
		Name: ledger.EventClaimSubmitted,
		Fields: map[string]any{
			"claimId":        id,
			"organization":   s.from,
			"demandedTokens": new(big.Int).Set(in.DemandedTokens),
		},
	}), nil
}

func (s *sender) ApproveClaim(ctx context.Context, claimID, award *big.Int) (*ledger.Receipt, error) {
	l := s.l
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.begin(ctx, "approveClaim"); err != nil {
		return nil, err
	}
	c, ok := l.claims[claimID.String()]
	if !ok {
		return nil, revert("approveClaim", "Claim does not exist")
	}
	if c.approved {
		return nil, revert("approveClaim", "Claim already approved")
	}
	c.approved = true
	c.award = new(big.Int).Set(award)
	bal := l.balances[c.org]
	if bal == nil {
		bal = new(big.Int)
	}
	l.balances[c.org] = new(big.Int).Add(bal, award)
	return l.receipt("approveClaim"), nil
}

func (s *sender) CreateRequest(ctx context.Context, seller common.Address, amount *big.Int) (*ledger.Receipt, error) {
	l := s.l
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.begin(ctx, "createRequest"); err != nil {
		return nil, err
	}
	if amount.Sign() <= 0 {
		return nil, revert("createRequest", "Amount must be positive")
	}
	l.nextRequest++
	req := &ledger.Request{
		ID:              big.NewInt(l.nextRequest),
		Buyer:           s.from,
		PotentialSeller: seller,
		Amount:          new(big.Int).Set(amount),
		Status:          statusPending,
	}
	l.requests = append(l.requests, req)
	return l.receipt("createRequest", ledger.Event{
		Name: ledger.EventRequestCreated,
		Fields: map[string]any{
			"requestId":       new(big.Int).Set(req.ID),
			"buyer":           s.from,
			"potentialSeller": seller,
			"amount":          new(big.Int).Set(amount),
		},
	}), nil
}

func (s *sender) HandleRequest(ctx context.Context, requestID *big.Int, approve bool) (*ledger.Receipt, error) {
	l := s.l
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.begin(ctx, "handleRequest"); err != nil {
		return nil, err
	}
	var req *ledger.Request
	for _, r := range l.requests {
		if r.ID.Cmp(requestID) == 0 {
			req = r
			break
		}
	}
	if req == nil {
		return nil, revert("handleRequest", "Request does not exist")
	}
	if req.PotentialSeller != s.from {
		return nil, revert("handleRequest", "Only the seller can handle this request")
	}
	if req.Status != statusPending {
		return nil, revert("handleRequest", "Request is not pending")
	}
	if !approve {
		req.Status = statusDeclined
		return l.receipt("handleRequest"), nil
	}
	sellerBal := l.balances[req.PotentialSeller]
	if sellerBal == nil || sellerBal.Cmp(req.Amount) < 0 {
		return nil, revert("handleRequest", "Insufficient balance")
	}
	l.balances[req.PotentialSeller] = new(big.Int).Sub(sellerBal, req.Amount)
	buyerBal := l.balances[req.Buyer]
	if buyerBal == nil {
		buyerBal = new(big.Int)
	}
	l.balances[req.Buyer] = new(big.Int).Add(buyerBal, req.Amount)
	req.Status = statusApproved
	return l.receipt("handleRequest"), nil
}

func (s *sender) UsersRequests(ctx context.Context, user common.Address) ([]ledger.Request, error) {
	l := s.l
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.begin(ctx, "getUsersRequest"); err != nil {
		return nil, err
	}
	var out []ledger.Request
	for _, r := range l.requests {
		if r.Buyer == user || r.PotentialSeller == user {
			out = append(out, ledger.Request{
				ID:              new(big.Int).Set(r.ID),
				Buyer:           r.Buyer,
				PotentialSeller: r.PotentialSeller,
				Amount:          new(big.Int).Set(r.Amount),
				Status:          r.Status,
			})
		}
	}
	return out, nil
}

func (s *sender) Organization(ctx context.Context, addr common.Address) (*ledger.OrganizationRecord, error) {
	l := s.l
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.begin(ctx, "organizations"); err != nil {
		return nil, err
	}
	org, ok := l.orgs[addr]
	if !ok {
		return &ledger.OrganizationRecord{Balance: new(big.Int)}, nil
	}
	bal := l.balances[addr]
	if bal == nil {
		bal = new(big.Int)
	}
	return &ledger.OrganizationRecord{
		Name:         org.name,
		PhotoHash:    org.photoHash,
		Balance:      new(big.Int).Set(bal),
		IsRegistered: org.registered,
	}, nil
}

func (s *sender) OrganizationRegistrations(ctx context.Context) ([]ledger.Registration, error) {
	l := s.l
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.begin(ctx, "queryFilter"); err != nil {
		return nil, err
	}
	return append([]ledger.Registration(nil), l.registrations...), nil
}
