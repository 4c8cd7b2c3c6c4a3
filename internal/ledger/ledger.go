// Package ledger describes the operations the carbon-credit contract exposes
// and the session through which the service talks to it.
package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	EventClaimSubmitted         = "ClaimSubmitted"
	EventRequestCreated         = "RequestCreated"
	EventOrganizationRegistered = "OrganizationRegistered"
)

// Client is bound to a single sending account. Mutating calls block until
// the transaction is final and return its receipt.
type Client interface {
	SubmitClaim(ctx context.Context, claim ClaimSubmission) (*Receipt, error)
	ApproveClaim(ctx context.Context, claimID *big.Int, award *big.Int) (*Receipt, error)
	CreateRequest(ctx context.Context, seller common.Address, amount *big.Int) (*Receipt, error)
	HandleRequest(ctx context.Context, requestID *big.Int, approve bool) (*Receipt, error)
	UsersRequests(ctx context.Context, user common.Address) ([]Request, error)
	Organization(ctx context.Context, addr common.Address) (*OrganizationRecord, error)
	OrganizationRegistrations(ctx context.Context) ([]Registration, error)
}

type ClaimSubmission struct {
	X              *big.Int
	Y              *big.Int
	Acres          *big.Int
	DemandedTokens *big.Int
	Details        string
	Name           string
	Photos         []string
	Year           *big.Int
}

type Receipt struct {
	TxHash string
	Events []Event
}

// Event is a decoded contract log. Field names follow the contract ABI.
type Event struct {
	Name   string
	Fields map[string]any
}

// EventsNamed returns the receipt's events with the given name in log order.
func (r *Receipt) EventsNamed(name string) []Event {
	if r == nil {
		return nil
	}
	var out []Event
	for _, ev := range r.Events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

// BigField reads an integer event field.
func (e Event) BigField(name string) (*big.Int, bool) {
	v, ok := e.Fields[name].(*big.Int)
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

type Request struct {
	ID              *big.Int
	Buyer           common.Address
	PotentialSeller common.Address
	Amount          *big.Int
	Status          uint8
}

type OrganizationRecord struct {
	Name         string
	PhotoHash    string
	Balance      *big.Int
	IsRegistered bool
}

type Registration struct {
	Address   common.Address
	Name      string
	PhotoHash string
	Balance   *big.Int
}
