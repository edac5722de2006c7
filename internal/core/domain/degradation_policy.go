package domain

import "strings"

// DegradationPolicyMode enumerates supported behaviors when a revocation
// store (token denylist, TOTP replay guard) is unreachable.
type DegradationPolicyMode string

const (
	// DegradationPolicyModeLenient lets the primary auth decision proceed,
	// logging the degraded condition at process level.
	DegradationPolicyModeLenient DegradationPolicyMode = "lenient"
	// DegradationPolicyModeStrict rejects operations whenever revocation
	// state cannot be confirmed.
	DegradationPolicyModeStrict DegradationPolicyMode = "strict"
)

// DegradationReason captures the context for which a fallback decision is evaluated.
type DegradationReason string

const (
	// DegradationReasonDenylistUnavailable denotes redis denylist lookups failed or timed out.
	DegradationReasonDenylistUnavailable DegradationReason = "denylist_unavailable"
	// DegradationReasonReplayGuardUnavailable denotes the TOTP replay guard could not be consulted.
	DegradationReasonReplayGuardUnavailable DegradationReason = "replay_guard_unavailable"
)

// DegradationPolicy decides whether auth flows continue when revocation
// state is unknown. Stores that only throttle or observe (rate limiter,
// audit trail) fail open at their call sites and never consult the policy.
type DegradationPolicy struct {
	strict bool
}

// NewDegradationPolicy constructs a policy with the provided mode, defaulting to lenient when unspecified.
func NewDegradationPolicy(mode DegradationPolicyMode) DegradationPolicy {
	return DegradationPolicy{strict: mode == DegradationPolicyModeStrict}
}

// ParseDegradationPolicyMode normalises textual input into a supported policy mode.
func ParseDegradationPolicyMode(value string) DegradationPolicyMode {
	if strings.EqualFold(strings.TrimSpace(value), string(DegradationPolicyModeStrict)) {
		return DegradationPolicyModeStrict
	}
	return DegradationPolicyModeLenient
}

// AllowsFallback reports whether auth flows may continue when the given
// revocation store failure occurs. Both stores carry the same risk, so the
// decision depends only on the configured mode.
func (p DegradationPolicy) AllowsFallback(reason DegradationReason) bool {
	return !p.strict
}
