package model

// ClaimInput is what a registered organization submits for a reclaimed
// land area. Token amounts are whole tokens.
type ClaimInput struct {
	CoordinateX    int64
	CoordinateY    int64
	Acres          int64
	DemandedTokens int64
	ProjectName    string
	ProjectDetails string
}

type ClaimResult struct {
	ClaimID         string
	EvidenceHash    string
	PredictedTokens int64
	AwardedTokens   int64
	OracleDegraded  bool
	State           SubmissionState
	SubmitTxHash    string
	ApproveTxHash   string
	SubmissionID    string
}
