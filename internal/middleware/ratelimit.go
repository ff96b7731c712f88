package middleware

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/placement/internal/model"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralPerMinute int           // API全般の上限（req/min/user）
	ApplyPerMinute   int           // 応募作成の上限（req/min/user）
	CleanupInterval  time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// API全般 120 req/min/user、応募作成 20 req/min/user。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralPerMinute: 120,
		ApplyPerMinute:   20,
		CleanupInterval:  5 * time.Minute,
	}
}

// Limiter はキーごとにリクエストの可否を判定するインターフェース。
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// keyLimiter はキーごとのトークンバケットと最終アクセス時刻を保持する。
type keyLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// LocalLimiter はプロセス内でキーごとのトークンバケットを管理するLimiter。
// 単一インスタンス構成で使用する。
type LocalLimiter struct {
	limit rate.Limit
	burst int
	ttl   time.Duration

	mu       sync.Mutex
	limiters map[string]*keyLimiter

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewLocalLimiter は1分あたりperMinute件を上限とするLocalLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewLocalLimiter(perMinute int, cleanupInterval time.Duration) *LocalLimiter {
	if cleanupInterval <= 0 {
		cleanupInterval = 5 * time.Minute
	}
	l := &LocalLimiter{
		limit:    rate.Limit(float64(perMinute) / 60.0),
		burst:    perMinute,
		ttl:      cleanupInterval * 2,
		limiters: make(map[string]*keyLimiter),
		stopCh:   make(chan struct{}),
	}
	go l.cleanupLoop(cleanupInterval)
	return l
}

// Allow はkeyのバケットからトークンを1つ消費できればtrueを返す。
func (l *LocalLimiter) Allow(_ context.Context, key string) bool {
	now := time.Now()

	l.mu.Lock()
	kl, ok := l.limiters[key]
	if !ok {
		kl = &keyLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = kl
	}
	kl.lastAccess = now
	l.mu.Unlock()

	return kl.limiter.AllowN(now, 1)
}

// Len は現在管理されているエントリ数を返す。
func (l *LocalLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (l *LocalLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

func (l *LocalLimiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup(time.Now())
		case <-l.stopCh:
			return
		}
	}
}

// cleanup は最終アクセスからttl以上経過したエントリを削除する。
func (l *LocalLimiter) cleanup(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, kl := range l.limiters {
		if now.Sub(kl.lastAccess) > l.ttl {
			delete(l.limiters, key)
		}
	}
}

// RateLimiter はユーザーごとのレート制限ミドルウェアを提供する。
// API全般と応募作成の2種類の制限は独立に動作する。
type RateLimiter struct {
	config  RateLimiterConfig
	general Limiter
	apply   Limiter
}

// NewRateLimiter はRateLimiterを生成する。
// general、applyがnilの場合はLocalLimiterを使用する。
func NewRateLimiter(config RateLimiterConfig, general, apply Limiter) *RateLimiter {
	if general == nil {
		general = NewLocalLimiter(config.GeneralPerMinute, config.CleanupInterval)
	}
	if apply == nil {
		apply = NewLocalLimiter(config.ApplyPerMinute, config.CleanupInterval)
	}
	return &RateLimiter{config: config, general: general, apply: apply}
}

// Stop はLocalLimiterのクリーンアップを停止する。
func (rl *RateLimiter) Stop() {
	for _, l := range []Limiter{rl.general, rl.apply} {
		if ll, ok := l.(*LocalLimiter); ok {
			ll.Stop()
		}
	}
}

// GeneralMiddleware はAPI全般のレート制限ミドルウェアを返す。
// 認証ミドルウェアの後に配置する。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(rl.general, "general", rl.config.GeneralPerMinute)
}

// ApplyMiddleware は応募作成専用のレート制限ミドルウェアを返す。
func (rl *RateLimiter) ApplyMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(rl.apply, "apply", rl.config.ApplyPerMinute)
}

func (rl *RateLimiter) middleware(l Limiter, limitType string, perMinute int) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := PrincipalFromContext(r.Context())
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			if !l.Allow(r.Context(), limitType+":"+p.UserID) {
				slog.Warn("rate limit exceeded",
					slog.String("user_id", p.UserID),
					slog.String("limit_type", limitType),
				)
				writeRateLimitResponse(w, perMinute)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーには1件分の枠が補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, perMinute int) {
	retryAfterSec := 60
	if perMinute > 0 {
		retryAfterSec = int(math.Ceil(60.0 / float64(perMinute)))
	}
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteErrorResponse(w, http.StatusTooManyRequests, &model.APIError{
		Code:     "RATE_LIMIT_EXCEEDED",
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// compile-time interface check
var _ Limiter = (*LocalLimiter)(nil)
