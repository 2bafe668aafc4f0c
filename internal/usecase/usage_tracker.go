package usecase

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fplsage/sage-api/internal/platform/cache"
	"github.com/fplsage/sage-api/internal/platform/redisx"
)

const (
	usageKeyPrefix       = "fpl_sage:usage:"
	usageTTL             = 14 * 24 * time.Hour
	gameweekMemoKey      = "current-gameweek"
	gameweekMemoTTL      = time.Hour
	defaultResetHorizon  = 7 * 24 * time.Hour
)

// GameweekResolver abstracts UpstreamFPL's gameweek resolution for
// UsageTracker, avoiding a dependency on the concrete upstream client
// package. nextDeadline/ok report the next unfinished event's deadline
// when the upstream bootstrap data supplies one.
type GameweekResolver interface {
	CurrentGameweek(ctx context.Context) (gw int, nextDeadline time.Time, ok bool, err error)
}

// Usage is the usage-quota snapshot GET /usage/{team_id} returns.
type Usage struct {
	TeamID    int
	Gameweek  int
	Used      int
	Limit     int
	Remaining int
	ResetTime time.Time
}

// UsageTracker is the UsageTracker component: a per-team, per-gameweek
// analysis quota enforced via a Redis sorted set of completion
// timestamps, with the same fail-open-when-absent semantics every
// Redis-backed component shares.
type UsageTracker struct {
	redis     *redisx.Client
	resolver  GameweekResolver
	limit     int
	gwMemo    *cache.Store
	clock     func() time.Time
}

func NewUsageTracker(client *redisx.Client, resolver GameweekResolver, limitPerGW int) *UsageTracker {
	if limitPerGW <= 0 {
		limitPerGW = 2
	}
	return &UsageTracker{
		redis:    client,
		resolver: resolver,
		limit:    limitPerGW,
		gwMemo:   cache.NewStore(gameweekMemoTTL),
		clock:    time.Now,
	}
}

func usageKey(teamID, gw int) string {
	return fmt.Sprintf("%s%d:%d", usageKeyPrefix, teamID, gw)
}

type gwMemoValue struct {
	gw           int
	nextDeadline time.Time
	hasDeadline  bool
}

// resolveGameweek returns the current gameweek, memoized for an hour. If
// the live resolution fails, the error is returned unless a fresh memo
// entry is present by then; an expired entry is dropped on lookup, so no
// stale gameweek is served in place of the error.
func (t *UsageTracker) resolveGameweek(ctx context.Context) (gwMemoValue, error) {
	value, err := t.gwMemo.GetOrLoad(ctx, gameweekMemoKey, func(ctx context.Context) (any, error) {
		if t.resolver == nil {
			return gwMemoValue{}, fmt.Errorf("no gameweek resolver configured")
		}
		gw, deadline, ok, err := t.resolver.CurrentGameweek(ctx)
		if err != nil {
			return nil, err
		}
		return gwMemoValue{gw: gw, nextDeadline: deadline, hasDeadline: ok}, nil
	})
	if err != nil {
		if cached, ok := t.gwMemo.Get(ctx, gameweekMemoKey); ok {
			return cached.(gwMemoValue), nil
		}
		return gwMemoValue{}, err
	}
	return value.(gwMemoValue), nil
}

func (t *UsageTracker) resetTime(memo gwMemoValue) time.Time {
	if memo.hasDeadline {
		return memo.nextDeadline
	}
	return t.clock().Add(defaultResetHorizon)
}

// CheckLimit reports whether team_id may start another analysis this
// gameweek. Redis absent, or gameweek resolution failing with no memo
// available, both fail open (allowed=true, used=0).
func (t *UsageTracker) CheckLimit(ctx context.Context, teamID int) (allowed bool, used, limit int, resetAt time.Time, err error) {
	limit = t.limit

	memo, resolveErr := t.resolveGameweek(ctx)
	if resolveErr != nil {
		return true, 0, limit, t.clock().Add(defaultResetHorizon), nil
	}
	resetAt = t.resetTime(memo)

	if !t.redis.Enabled() {
		return true, 0, limit, resetAt, nil
	}

	key := usageKey(teamID, memo.gw)
	now := float64(t.clock().UnixNano()) / 1e9
	cutoff := now - usageTTL.Seconds()

	rdb := t.redis.Raw()
	if err := rdb.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatFloat(cutoff, 'f', -1, 64)).Err(); err != nil {
		return true, 0, limit, resetAt, nil
	}

	count, err := rdb.ZCard(ctx, key).Result()
	if err != nil {
		return true, 0, limit, resetAt, nil
	}

	used = int(count)
	return used < limit, used, limit, resetAt, nil
}

// RecordAnalysis records a successful analysis completion for team_id at
// the given gameweek. No-op when Redis is absent. Only called by
// AnalysisService after an engine run completes successfully — never on
// failure, cache hit, or validation rejection.
func (t *UsageTracker) RecordAnalysis(ctx context.Context, teamID, gameweek int) error {
	if !t.redis.Enabled() {
		return nil
	}

	key := usageKey(teamID, gameweek)
	now := t.clock()
	member := strconv.FormatInt(now.UnixNano(), 10)

	rdb := t.redis.Raw()
	pipe := rdb.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()) / 1e9, Member: member})
	pipe.Expire(ctx, key, usageTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record analysis usage: %w", err)
	}
	return nil
}

// GetUsage returns the full usage snapshot for GET /usage/{team_id}. Like
// every other UsageTracker method it fails open: an unresolvable
// gameweek yields a best-effort zeroed snapshot rather than an error,
// since this endpoint carries no documented failure mode of its own.
func (t *UsageTracker) GetUsage(ctx context.Context, teamID int) (Usage, error) {
	memo, err := t.resolveGameweek(ctx)
	if err != nil {
		return Usage{
			TeamID:    teamID,
			Limit:     t.limit,
			Remaining: t.limit,
			ResetTime: t.clock().Add(defaultResetHorizon),
		}, nil
	}

	_, used, limit, resetAt, _ := t.CheckLimit(ctx, teamID)
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}

	return Usage{
		TeamID:    teamID,
		Gameweek:  memo.gw,
		Used:      used,
		Limit:     limit,
		Remaining: remaining,
		ResetTime: resetAt,
	}, nil
}
