package ledger

import "github.com/ethereum/go-ethereum/common"

// Session pairs a ledger client with the account it sends from. It is passed
// explicitly to every operation instead of living in shared state.
//
// Actor names the authenticated user on whose behalf the account is used. It
// is recorded in logs and the claim journal; the ledger only sees Address.
type Session struct {
	Ledger  Client
	Address common.Address
	Actor   string
}

func NewSession(client Client, address common.Address) *Session {
	return &Session{Ledger: client, Address: address}
}

// WithActor returns a copy of the session attributed to actor.
func (s *Session) WithActor(actor string) *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Actor = actor
	return &cp
}

func (s *Session) Connected() bool {
	return s != nil && s.Ledger != nil && s.Address != (common.Address{})
}
