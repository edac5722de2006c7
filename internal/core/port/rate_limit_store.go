package port

import (
	"context"
	"time"
)

// RateLimitStore is the persistence behind the sliding windows throttling
// login and password-reset traffic. Keys are caller-composed (rule name plus
// client IP, or a reset identifier) and opaque to the store.
//
// Prune drops attempts that fell out of the window ending at now. Count and
// Oldest inspect what remains; Oldest reports false when the window is empty.
// Record appends an attempt at the given instant.
type RateLimitStore interface {
	Prune(ctx context.Context, key string, window time.Duration, now time.Time) error
	Count(ctx context.Context, key string, window time.Duration, now time.Time) (int, error)
	Oldest(ctx context.Context, key string, window time.Duration, now time.Time) (time.Time, bool, error)
	Record(ctx context.Context, key string, at time.Time) error
}
