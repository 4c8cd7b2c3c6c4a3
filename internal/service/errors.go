package service

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrValidation             = errors.New("invalid input")
	ErrNotAuthorized          = errors.New("not authorized")
	ErrUpload                 = errors.New("evidence upload failed")
	ErrOracleUnavailable      = errors.New("yield oracle unavailable")
	ErrLedgerTransaction      = errors.New("ledger transaction failed")
	ErrInvalidStateTransition = errors.New("invalid request state transition")
	ErrInsufficientBalance    = errors.New("insufficient seller balance")
	ErrIntegrationFault       = errors.New("ledger integration fault")
	ErrSubmittedUnapproved    = errors.New("claim submitted but not approved")
)
