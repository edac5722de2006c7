package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/odaiidemos/k9-sub001/internal/core/port"
)

const (
	rateLimitProblemType  = "https://auth.k9-records.example.com/errors/rate-limit-exceeded"
	rateLimitProblemTitle = "Rate Limit Exceeded"
)

// IdentifierFunc extracts the identifier used to scope rate limits (e.g., client IP).
type IdentifierFunc func(*gin.Context) (string, bool)

// RateLimitRule configures a sliding-window limit for a particular identifier.
type RateLimitRule struct {
	Name       string
	Limit      int
	Window     time.Duration
	Identifier IdentifierFunc
}

func (r RateLimitRule) enforceable() bool {
	return r.Identifier != nil && r.Limit > 0 && r.Window > 0
}

// key scopes stored attempts per rule so overlapping rules never share counts.
func (r RateLimitRule) key(identifier string) string {
	return r.Name + ":" + identifier
}

// RateLimiter evaluates sliding-window rules against a shared attempt store.
// A store outage never blocks traffic; the rule is skipped with a warning.
type RateLimiter struct {
	store  port.RateLimitStore
	logger *zap.Logger
	now    func() time.Time
}

// ruleDecision is the outcome of one rule evaluation. A blocked decision is
// the zero value plus limit and reset; remaining only matters when allowed.
type ruleDecision struct {
	allowed    bool
	limit      int
	remaining  int
	reset      time.Time
	retryAfter time.Duration
}

// tighterThan reports whether d should supply the response headers instead of
// current: fewer remaining attempts wins, with the earlier reset as tiebreak.
func (d ruleDecision) tighterThan(current ruleDecision) bool {
	if d.remaining != current.remaining {
		return d.remaining < current.remaining
	}
	return d.reset.Before(current.reset)
}

// ProblemDetails is the RFC 9457 payload returned for throttled requests.
// RetryAfter and TraceID are extension members; the latter carries the
// request correlation ID.
type ProblemDetails struct {
	Type       string `json:"type"`
	Title      string `json:"title"`
	Status     int    `json:"status"`
	Detail     string `json:"detail,omitempty"`
	Instance   string `json:"instance,omitempty"`
	RetryAfter int    `json:"retry_after,omitempty"`
	TraceID    string `json:"trace_id,omitempty"`
}

// NewRateLimiter builds a reusable rate limiter middleware helper.
func NewRateLimiter(store port.RateLimitStore, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RateLimiter{store: store, logger: logger, now: time.Now}
}

// WithClock allows injection of a custom clock (primarily for testing).
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	if now != nil {
		rl.now = now
	}
	return rl
}

// ClientIPIdentifier builds an IdentifierFunc using the request's client IP.
func ClientIPIdentifier() IdentifierFunc {
	return func(c *gin.Context) (string, bool) {
		ip := c.ClientIP()
		return ip, ip != ""
	}
}

// RateLimit returns a Gin middleware enforcing the provided rules. Rules with
// no identifier, limit, or window are dropped up front.
func (rl *RateLimiter) RateLimit(rules ...RateLimitRule) gin.HandlerFunc {
	active := make([]RateLimitRule, 0, len(rules))
	for _, rule := range rules {
		if !rule.enforceable() {
			continue
		}
		if rule.Name == "" {
			rule.Name = "default"
		}
		active = append(active, rule)
	}

	return func(c *gin.Context) {
		if len(active) == 0 || rl.store == nil {
			c.Next()
			return
		}
		rl.enforce(c, active)
	}
}

// enforce checks every rule in order; the first exhausted one aborts the
// request with a 429 problem response. When all rules pass, the response
// carries the headers of the tightest rule so clients can pace themselves.
func (rl *RateLimiter) enforce(c *gin.Context, rules []RateLimitRule) {
	now := rl.now()
	var tightest *ruleDecision

	for _, rule := range rules {
		identifier, ok := rule.Identifier(c)
		if !ok || identifier == "" {
			continue
		}

		decision, err := rl.evaluateRule(c.Request.Context(), rule, rule.key(identifier), now)
		if err != nil {
			rl.logger.Warn("rate limit check failed",
				zap.String("rule", rule.Name),
				zap.String("identifier", identifier),
				zap.Error(err))
			continue
		}

		if !decision.allowed {
			rejectRateLimited(c, decision)
			return
		}

		if tightest == nil || decision.tighterThan(*tightest) {
			snapshot := decision
			tightest = &snapshot
		}
	}

	if tightest != nil {
		writeRateHeaders(c, *tightest)
	}

	c.Next()
}

// evaluateRule trims the window, counts surviving attempts, and records the
// current one unless the limit is already reached. The reset time is anchored
// to the oldest surviving attempt so it reports when capacity actually frees.
func (rl *RateLimiter) evaluateRule(ctx context.Context, rule RateLimitRule, key string, now time.Time) (ruleDecision, error) {
	if err := rl.store.Prune(ctx, key, rule.Window, now); err != nil {
		return ruleDecision{}, err
	}

	count, err := rl.store.Count(ctx, key, rule.Window, now)
	if err != nil {
		return ruleDecision{}, err
	}

	oldest, anchored, err := rl.store.Oldest(ctx, key, rule.Window, now)
	if err != nil {
		return ruleDecision{}, err
	}

	reset := now.Add(rule.Window)
	if anchored {
		reset = oldest.Add(rule.Window)
	}

	decision := ruleDecision{
		limit:      rule.Limit,
		reset:      reset,
		retryAfter: max(reset.Sub(now), 0),
	}

	if count >= rule.Limit {
		return decision, nil
	}

	if err := rl.store.Record(ctx, key, now); err != nil {
		return ruleDecision{}, err
	}

	decision.allowed = true
	decision.remaining = max(rule.Limit-count-1, 0)

	return decision, nil
}

func writeRateHeaders(c *gin.Context, decision ruleDecision) {
	header := c.Writer.Header()
	header.Set("X-RateLimit-Limit", strconv.Itoa(decision.limit))
	header.Set("X-RateLimit-Remaining", strconv.Itoa(decision.remaining))
	header.Set("X-RateLimit-Reset", strconv.FormatInt(decision.reset.Unix(), 10))
}

func rejectRateLimited(c *gin.Context, decision ruleDecision) {
	retrySeconds := int(math.Ceil(decision.retryAfter.Seconds()))

	writeRateHeaders(c, decision)
	c.Header("Retry-After", strconv.Itoa(retrySeconds))

	instance := c.FullPath()
	if instance == "" {
		instance = c.Request.URL.Path
	}

	c.AbortWithStatusJSON(http.StatusTooManyRequests, ProblemDetails{
		Type:       rateLimitProblemType,
		Title:      rateLimitProblemTitle,
		Status:     http.StatusTooManyRequests,
		Detail:     fmt.Sprintf("Too many requests. Try again in %d seconds.", retrySeconds),
		Instance:   instance,
		RetryAfter: retrySeconds,
		TraceID:    GetTraceID(c),
	})
}
