package usecase

import (
	"context"
	"errors"
	"strings"

	"egyptoai/internal/domain"
)

// Outcome is the low-cardinality label a finished chat or title call is
// counted under.
type Outcome string

const (
	OutcomeOK          Outcome = "ok"
	OutcomeClientGone  Outcome = "client_gone"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeAuth        Outcome = "auth"
	OutcomeOverflow    Outcome = "context_overflow"
	OutcomeUpstream    Outcome = "upstream"
	OutcomeTimeout     Outcome = "timeout"
	OutcomeError       Outcome = "error"
)

// ClassifyOutcome maps a chat error onto an Outcome. Wrapped sentinels are
// checked first; transport failures that never reached a provider are
// recognised by message.
func ClassifyOutcome(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, domain.ErrClientGone):
		return OutcomeClientGone
	case errors.Is(err, domain.ErrRateLimit):
		return OutcomeRateLimited
	case errors.Is(err, domain.ErrAuthInvalid):
		return OutcomeAuth
	case errors.Is(err, domain.ErrContextOverflow):
		return OutcomeOverflow
	case errors.Is(err, domain.ErrUpstream):
		return OutcomeUpstream
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	}
	return classifyByString(err.Error())
}

func classifyByString(errStr string) Outcome {
	lower := strings.ToLower(errStr)

	for _, p := range []string{"rate limit", "too many requests"} {
		if strings.Contains(lower, p) {
			return OutcomeRateLimited
		}
	}
	for _, p := range []string{"timeout", "deadline exceeded"} {
		if strings.Contains(lower, p) {
			return OutcomeTimeout
		}
	}
	for _, p := range []string{"connection refused", "no such host", "connection reset"} {
		if strings.Contains(lower, p) {
			return OutcomeUpstream
		}
	}
	return OutcomeError
}
