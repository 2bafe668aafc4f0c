package usecase

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fplsage/sage-api/internal/platform/redisx"
)

type stubGameweekResolver struct {
	gw       int
	deadline time.Time
	hasDL    bool
	err      error
	calls    atomic.Int32
}

func (s *stubGameweekResolver) CurrentGameweek(context.Context) (int, time.Time, bool, error) {
	s.calls.Add(1)
	return s.gw, s.deadline, s.hasDL, s.err
}

func disabledRedis(t *testing.T) *redisx.Client {
	t.Helper()
	client, err := redisx.New(context.Background(), "")
	if err != nil {
		t.Fatalf("build disabled redis client: %v", err)
	}
	return client
}

func TestUsageTracker_CheckLimit_FailsOpenWhenRedisDisabled(t *testing.T) {
	resolver := &stubGameweekResolver{gw: 10, hasDL: false}
	tracker := NewUsageTracker(disabledRedis(t), resolver, 2)

	allowed, used, limit, _, err := tracker.CheckLimit(context.Background(), 555)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Fatalf("expected fail-open allow")
	}
	if used != 0 {
		t.Fatalf("expected used=0 when redis disabled, got %d", used)
	}
	if limit != 2 {
		t.Fatalf("expected configured limit=2, got %d", limit)
	}
}

func TestUsageTracker_CheckLimit_FailsOpenWhenResolverErrorsWithoutMemo(t *testing.T) {
	resolver := &stubGameweekResolver{err: errors.New("upstream down")}
	tracker := NewUsageTracker(disabledRedis(t), resolver, 2)

	allowed, used, _, resetAt, err := tracker.CheckLimit(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed || used != 0 {
		t.Fatalf("expected fail-open allow with used=0, got allowed=%v used=%d", allowed, used)
	}
	if !resetAt.After(time.Now()) {
		t.Fatalf("expected a future reset time, got %s", resetAt)
	}
}

func TestUsageTracker_ResolveGameweek_MemoizesAcrossCalls(t *testing.T) {
	resolver := &stubGameweekResolver{gw: 7, hasDL: false}
	tracker := NewUsageTracker(disabledRedis(t), resolver, 2)

	if _, err := tracker.resolveGameweek(context.Background()); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if _, err := tracker.resolveGameweek(context.Background()); err != nil {
		t.Fatalf("second resolve: %v", err)
	}

	if calls := resolver.calls.Load(); calls != 1 {
		t.Fatalf("expected resolver called once due to memoization, got %d", calls)
	}
}

func TestUsageTracker_ResolveGameweek_ServesMemoOnRepeatCall(t *testing.T) {
	resolver := &stubGameweekResolver{gw: 12, hasDL: false}
	tracker := NewUsageTracker(disabledRedis(t), resolver, 2)

	memo, err := tracker.resolveGameweek(context.Background())
	if err != nil {
		t.Fatalf("initial resolve: %v", err)
	}
	if memo.gw != 12 {
		t.Fatalf("expected gw=12, got %d", memo.gw)
	}

	// A repeat call within the memo TTL is served from the memo without
	// error; see the no-memo test above for the failure path.
	if _, err := tracker.resolveGameweek(context.Background()); err != nil {
		t.Fatalf("memoized resolve: %v", err)
	}
}

func TestUsageTracker_GetUsage_FailsOpenWithZeroedSnapshot(t *testing.T) {
	resolver := &stubGameweekResolver{err: errors.New("season resolution unknown")}
	tracker := NewUsageTracker(disabledRedis(t), resolver, 3)

	usage, err := tracker.GetUsage(context.Background(), 42)
	if err != nil {
		t.Fatalf("expected GetUsage to fail open without error, got %v", err)
	}
	if usage.TeamID != 42 {
		t.Fatalf("expected team id passthrough, got %d", usage.TeamID)
	}
	if usage.Limit != 3 || usage.Remaining != 3 {
		t.Fatalf("expected zeroed-but-valid snapshot, got %+v", usage)
	}
}

func TestUsageTracker_RecordAnalysis_NoopWhenRedisDisabled(t *testing.T) {
	tracker := NewUsageTracker(disabledRedis(t), &stubGameweekResolver{gw: 1}, 2)

	if err := tracker.RecordAnalysis(context.Background(), 1, 1); err != nil {
		t.Fatalf("expected no-op success, got %v", err)
	}
}
