package providers

import (
	"strconv"
	"time"

	"github.com/guglxni/quotefusion/internal/ledger"
)

// intHeader parses a header value as a non-negative int, returning nil if
// absent or malformed.
func intHeader(v string) *int {
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &n
}

// relativeSecondsHeader interprets v as seconds-from-now, per adapters whose
// reset header is relative rather than an absolute epoch.
func relativeSecondsHeader(v string) *time.Time {
	if v == "" {
		return nil
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	t := time.Now().Add(time.Duration(secs) * time.Second)
	return &t
}

func obsRequests(remaining *int, resetAt *time.Time) ledger.Observation {
	return ledger.Observation{RequestsRemaining: remaining, RequestsResetAt: resetAt}
}
