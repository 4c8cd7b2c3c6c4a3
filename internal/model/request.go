package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "PENDING"
	RequestStatusApproved RequestStatus = "APPROVED"
	RequestStatusDeclined RequestStatus = "DECLINED"
)

// ParseRequestStatus maps the ledger's numeric status code. Codes the ledger
// may add later are rejected rather than displayed under a wrong label.
func ParseRequestStatus(code uint8) (RequestStatus, error) {
	switch code {
	case 0:
		return RequestStatusPending, nil
	case 1:
		return RequestStatusApproved, nil
	case 2:
		return RequestStatusDeclined, nil
	default:
		return "", fmt.Errorf("unknown request status code %d", code)
	}
}

func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusApproved || s == RequestStatusDeclined
}

type BorrowRequest struct {
	ID              string
	Buyer           string
	PotentialSeller string
	Amount          decimal.Decimal
	Status          RequestStatus
	Price           decimal.Decimal
}

// RequestStatement is an exported listing of one address's requests.
type RequestStatement struct {
	Address     string
	GeneratedAt time.Time
	UnitPrice   decimal.Decimal
	Requests    []BorrowRequest
}
