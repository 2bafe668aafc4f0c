// Package ratelimit implements a sliding-window request limiter backed by
// a Redis sorted set, one per client IP. When Redis is absent the limiter
// fails open: every request is allowed and no rate-limit headers are set.
package ratelimit

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fplsage/sage-api/internal/platform/redisx"
)

const keyPrefix = "fpl_sage:ratelimit:"

// Config mirrors the RATE_LIMIT_* environment knobs.
type Config struct {
	Requests      int
	WindowSeconds int
}

func (c Config) window() time.Duration {
	if c.WindowSeconds <= 0 {
		return time.Hour
	}
	return time.Duration(c.WindowSeconds) * time.Second
}

func (c Config) capacity() int {
	if c.Requests <= 0 {
		return 100
	}
	return c.Requests
}

// Decision is the outcome of one Allow call, carrying everything the
// HTTPSurface needs to set X-RateLimit-* and Retry-After headers.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter is the RateLimiter component.
type Limiter struct {
	redis  *redisx.Client
	config Config
	clock  func() time.Time
}

func New(client *redisx.Client, cfg Config) *Limiter {
	return &Limiter{redis: client, config: cfg, clock: time.Now}
}

// Allow records one request for clientIP under the rolling window and
// reports whether it is within capacity. When Redis is absent this always
// allows and returns a zero-value Decision (no headers should be written).
func (l *Limiter) Allow(ctx context.Context, clientIP string) (Decision, error) {
	if !l.redis.Enabled() {
		return Decision{Allowed: true}, nil
	}

	rdb := l.redis.Raw()
	window := l.config.window()
	capacity := l.config.capacity()
	now := l.clock()
	key := keyPrefix + clientIP

	nowScore := float64(now.UnixNano()) / 1e9
	cutoff := nowScore - window.Seconds()

	pipe := rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", formatScore(cutoff))
	countCmd := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{Score: nowScore, Member: formatMember(now)})
	pipe.Expire(ctx, key, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("ratelimit pipeline: %w", err)
	}

	// countCmd was read before this request's own entry was added, so it
	// reflects the count *prior* to this request.
	priorCount, err := countCmd.Result()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit zcard: %w", err)
	}

	allowed := priorCount < int64(capacity)
	remaining := capacity - int(priorCount) - 1
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:   allowed,
		Limit:     capacity,
		Remaining: remaining,
		ResetAt:   now.Add(window),
	}, nil
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatMember(now time.Time) string {
	return strconv.FormatInt(now.UnixNano(), 10)
}

// ApplyHeaders writes the X-RateLimit-* headers (and Retry-After, when the
// request was rejected) onto an HTTP response.
func ApplyHeaders(w http.ResponseWriter, d Decision) {
	if d.Limit == 0 {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
	if !d.Allowed {
		retryAfter := int(time.Until(d.ResetAt).Seconds())
		if retryAfter < 0 {
			retryAfter = 0
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	}
}

// ClientIP resolves the caller's IP per the external-interface contract:
// the first X-Forwarded-For entry when present, trimmed; otherwise the
// request's remote address; "unknown" when neither yields anything usable.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if first != "" {
			return first
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
