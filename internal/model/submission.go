package model

import (
	"time"

	"github.com/google/uuid"
)

type SubmissionState string

const (
	SubmissionStateSubmittedUnapproved SubmissionState = "SUBMITTED_UNAPPROVED"
	SubmissionStateApproved            SubmissionState = "APPROVED"
)

// ClaimSubmission is the local journal row of one claim workflow. The ledger
// stays authoritative; the row only records how far the workflow got.
type ClaimSubmission struct {
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
	State           SubmissionState
	SubmitTxHash    string
	ApproveTxHash   *string
	FailureReason   *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
