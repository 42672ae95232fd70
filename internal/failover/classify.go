package failover

import (
	"context"
	"errors"
	"strings"

	"github.com/soyeahso/tagstream/internal/llm"
)

// Kind is the failure taxonomy the orchestrator acts on.
type Kind int

const (
	Unclassified Kind = iota
	RateLimited
	PermissionDenied
	TransientOverload
	Cancelled
)

func (k Kind) String() string {
	switch k {
	case RateLimited:
		return "rate_limited"
	case PermissionDenied:
		return "permission_denied"
	case TransientOverload:
		return "transient_overload"
	case Cancelled:
		return "cancelled"
	default:
		return "unclassified"
	}
}

var (
	rateLimitMarkers  = []string{"rate limit", "resource_exhausted", "too many requests"}
	permissionMarkers = []string{"permission denied", "permission_denied", "permission_error"}
	overloadMarkers   = []string{"overloaded", "unavailable", "try again later"}
)

// Classify maps a provider error onto a Kind. The status code decides when
// present: 429 is RateLimited, 403 PermissionDenied and 5xx TransientOverload.
// Without a usable code the message is searched for known markers.
func Classify(err error) Kind {
	if err == nil {
		return Unclassified
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Cancelled
	}

	var pe *llm.ProviderError
	if errors.As(err, &pe) {
		switch {
		case pe.Code == 429:
			return RateLimited
		case pe.Code == 403:
			return PermissionDenied
		case pe.Code >= 500 && pe.Code <= 599:
			return TransientOverload
		case pe.Code != 0:
			return Unclassified
		}
	}

	msg := strings.ToLower(err.Error())
	for _, m := range rateLimitMarkers {
		if strings.Contains(msg, m) {
			return RateLimited
		}
	}
	for _, m := range permissionMarkers {
		if strings.Contains(msg, m) {
			return PermissionDenied
		}
	}
	for _, m := range overloadMarkers {
		if strings.Contains(msg, m) {
			return TransientOverload
		}
	}
	return Unclassified
}
