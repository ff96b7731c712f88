package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/placement/internal/model"
)

// --- LocalLimiter ---

func TestLocalLimiter_BurstThenReject(t *testing.T) {
	l := NewLocalLimiter(3, time.Minute)
	defer l.Stop()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if !l.Allow(ctx, "user-1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if l.Allow(ctx, "user-1") {
		t.Error("4th request should be rejected")
	}
	if !l.Allow(ctx, "user-2") {
		t.Error("other keys should have their own bucket")
	}
	if l.Len() != 2 {
		t.Errorf("Len() = %d, want 2", l.Len())
	}
}

func TestLocalLimiter_CleanupRemovesIdleEntries(t *testing.T) {
	l := NewLocalLimiter(10, time.Minute)
	defer l.Stop()

	l.Allow(context.Background(), "idle")
	l.cleanup(time.Now().Add(time.Minute))
	if l.Len() != 1 {
		t.Fatalf("entry within ttl should be kept, Len() = %d", l.Len())
	}
	l.cleanup(time.Now().Add(3 * time.Minute))
	if l.Len() != 0 {
		t.Errorf("idle entry should be removed, Len() = %d", l.Len())
	}
}

func TestLocalLimiter_StopIsIdempotent(t *testing.T) {
	l := NewLocalLimiter(1, time.Minute)
	l.Stop()
	l.Stop()
}

// --- RateLimiter middleware ---

// fixedLimiter は指定回数だけ許可するテスト用Limiter。
type fixedLimiter struct {
	remaining int
	keys      []string
}

func (f *fixedLimiter) Allow(_ context.Context, key string) bool {
	f.keys = append(f.keys, key)
	if f.remaining <= 0 {
		return false
	}
	f.remaining--
	return true
}

func authedRequest(method, path, userID string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	return req.WithContext(ContextWithPrincipal(req.Context(), model.Principal{UserID: userID, Role: model.RoleStudent}))
}

func TestRateLimiter_GeneralReturns429WithRetryAfter(t *testing.T) {
	general := &fixedLimiter{remaining: 1}
	rl := NewRateLimiter(RateLimiterConfig{GeneralPerMinute: 120, ApplyPerMinute: 20}, general, &fixedLimiter{})
	handler := rl.GeneralMiddleware()(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/offers", "user-1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/offers", "user-1"))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "1" {
		t.Errorf("Retry-After = %q, want 1", got)
	}
	if general.keys[0] != "general:user-1" {
		t.Errorf("key = %q, want general:user-1", general.keys[0])
	}
}

func TestRateLimiter_ApplyIndependentFromGeneral(t *testing.T) {
	apply := &fixedLimiter{remaining: 0}
	rl := NewRateLimiter(RateLimiterConfig{GeneralPerMinute: 120, ApplyPerMinute: 20}, &fixedLimiter{remaining: 10}, apply)

	rec := httptest.NewRecorder()
	rl.GeneralMiddleware()(okHandler()).ServeHTTP(rec, authedRequest(http.MethodGet, "/api/offers", "user-1"))
	if rec.Code != http.StatusOK {
		t.Errorf("general status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	rl.ApplyMiddleware()(okHandler()).ServeHTTP(rec, authedRequest(http.MethodPost, "/api/applications", "user-1"))
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("apply status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "3" {
		t.Errorf("Retry-After = %q, want 3", got)
	}
}

func TestRateLimiter_UnauthenticatedReturns401(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig(), nil, nil)
	defer rl.Stop()

	rec := httptest.NewRecorder()
	rl.GeneralMiddleware()(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestDefaultRateLimiterConfig(t *testing.T) {
	cfg := DefaultRateLimiterConfig()
	if cfg.GeneralPerMinute != 120 || cfg.ApplyPerMinute != 20 || cfg.CleanupInterval != 5*time.Minute {
		t.Errorf("config = %+v", cfg)
	}
}

// --- RedisLimiter ---

// fakeScripter はスクリプトの固定ウィンドウカウンタをメモリ上で再現するredis.Scripter。
type fakeScripter struct {
	counts map[string]int
	err    error
}

func newFakeScripter() *fakeScripter {
	return &fakeScripter{counts: make(map[string]int)}
}

func (f *fakeScripter) run(ctx context.Context, keys []string, args []interface{}) *redis.Cmd {
	cmd := redis.NewCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	limit := args[1].(int)
	f.counts[keys[0]]++
	if f.counts[keys[0]] > limit {
		cmd.SetVal(int64(0))
	} else {
		cmd.SetVal(int64(1))
	}
	return cmd
}

func (f *fakeScripter) Eval(ctx context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	return f.run(ctx, keys, args)
}

func (f *fakeScripter) EvalSha(ctx context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	return f.run(ctx, keys, args)
}

func (f *fakeScripter) EvalRO(ctx context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	return f.run(ctx, keys, args)
}

func (f *fakeScripter) EvalShaRO(ctx context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	return f.run(ctx, keys, args)
}

func (f *fakeScripter) ScriptExists(ctx context.Context, hashes ...string) *redis.BoolSliceCmd {
	cmd := redis.NewBoolSliceCmd(ctx)
	cmd.SetVal(make([]bool, len(hashes)))
	return cmd
}

func (f *fakeScripter) ScriptLoad(ctx context.Context, _ string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	cmd.SetVal("sha")
	return cmd
}

func TestRedisLimiter_FixedWindow(t *testing.T) {
	scripter := newFakeScripter()
	l := NewRedisLimiter(scripter, 2, time.Minute, "placement:rl")
	ctx := context.Background()

	if !l.Allow(ctx, "apply:user-1") || !l.Allow(ctx, "apply:user-1") {
		t.Fatal("requests within the limit should be allowed")
	}
	if l.Allow(ctx, "apply:user-1") {
		t.Error("3rd request should be rejected")
	}
	if scripter.counts["placement:rl:apply:user-1"] != 3 {
		t.Errorf("counts = %v", scripter.counts)
	}
}

func TestRedisLimiter_FailsOpenOnError(t *testing.T) {
	scripter := newFakeScripter()
	scripter.err = errors.New("connection refused")
	l := NewRedisLimiter(scripter, 1, time.Minute, "rl")

	for i := 0; i < 3; i++ {
		if !l.Allow(context.Background(), "general:user-1") {
			t.Fatal("limiter should allow requests when redis is unavailable")
		}
	}
}

func TestRedisLimiter_DisabledWhenLimitIsZero(t *testing.T) {
	scripter := newFakeScripter()
	l := NewRedisLimiter(scripter, 0, time.Minute, "rl")

	if !l.Allow(context.Background(), "k") {
		t.Error("zero limit should disable limiting")
	}
	if len(scripter.counts) != 0 {
		t.Error("redis should not be called when disabled")
	}
}
