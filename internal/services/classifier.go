package services

import (
	"github.com/tbourn/go-relay-bridge/internal/config"
	"github.com/tbourn/go-relay-bridge/internal/platform"
)

// Remote error codes with a dedicated handling rule.
const (
	CodeInvalidParameter   = 100
	CodePermissionDenied   = 200
	CodeExtendedPermission = 250
	CodeRateLimited        = 341
)

// Verdict tells the dispatcher what to do with a failed delivery.
type Verdict int

const (
	// VerdictRetry: requeue and try again later.
	VerdictRetry Verdict = iota
	// VerdictDequeue: drop the message for this platform.
	VerdictDequeue
	// VerdictRevoke: the link no longer works; remove it and tell the user.
	VerdictRevoke
)

func (v Verdict) String() string {
	switch v {
	case VerdictRetry:
		return "retry"
	case VerdictDequeue:
		return "dequeue"
	case VerdictRevoke:
		return "revoke"
	}
	return "unknown"
}

// Classification is a classified remote failure.
type Classification struct {
	Verdict Verdict
	Code    int
	HasCode bool
	Message string
}

// Classifier maps remote errors to verdicts. RateLimitPolicy selects how
// code 341 is treated (config.RateLimitDequeue or config.RateLimitRetry).
type Classifier struct {
	RateLimitPolicy string
}

// Classify is pure: it only inspects err.
func (c Classifier) Classify(err error) Classification {
	code, msg, ok := platform.ExtractCode(err)
	if !ok {
		return Classification{Verdict: VerdictRetry, Message: msg}
	}
	out := Classification{Code: code, HasCode: true, Message: msg, Verdict: VerdictDequeue}
	switch code {
	case CodePermissionDenied, CodeExtendedPermission:
		out.Verdict = VerdictRevoke
	case CodeRateLimited:
		if c.RateLimitPolicy == config.RateLimitRetry {
			out.Verdict = VerdictRetry
		}
	}
	return out
}
