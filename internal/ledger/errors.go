package ledger

import (
	"errors"
	"fmt"
	"strings"
)

var ErrTransaction = errors.New("ledger transaction failed")

// TxError carries the ledger's own failure reason. Reason is passed through
// to callers verbatim.
type TxError struct {
	Method string
	TxHash string
	Reason string
}

func (e *TxError) Error() string {
	if e.TxHash != "" {
		return fmt.Sprintf("%s %s: %s", e.Method, e.TxHash, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Method, e.Reason)
}

func (e *TxError) Unwrap() error {
	return ErrTransaction
}

// ReasonContains reports whether err is a TxError whose reason mentions any
// of the given fragments, case-insensitively.
func ReasonContains(err error, fragments ...string) bool {
	var txErr *TxError
	if !errors.As(err, &txErr) {
		return false
	}
	reason := strings.ToLower(txErr.Reason)
	for _, f := range fragments {
		if strings.Contains(reason, strings.ToLower(f)) {
			return true
		}
	}
	return false
}
