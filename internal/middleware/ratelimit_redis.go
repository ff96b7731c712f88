package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript はキーのカウンタを増加させ、ウィンドウ内の上限を超えた場合に0を返す。
const fixedWindowScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
if current > tonumber(ARGV[2]) then
  return 0
end
return 1
`

// redisTimeout はRedisへの問い合わせ1回あたりの上限時間。
const redisTimeout = 250 * time.Millisecond

// RedisLimiter はRedisの固定ウィンドウカウンタで複数インスタンス間の上限を共有するLimiter。
// Redisに到達できない場合はリクエストを許可する。
type RedisLimiter struct {
	client redis.Scripter
	script *redis.Script
	limit  int
	window time.Duration
	prefix string
}

// NewRedisLimiter はウィンドウwindowあたりlimit件を上限とするRedisLimiterを生成する。
func NewRedisLimiter(client redis.Scripter, limit int, window time.Duration, prefix string) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		script: redis.NewScript(fixedWindowScript),
		limit:  limit,
		window: window,
		prefix: prefix,
	}
}

// Allow はkeyのカウンタを増加させ、上限以内であればtrueを返す。
func (l *RedisLimiter) Allow(ctx context.Context, key string) bool {
	if l.limit <= 0 || l.window <= 0 || key == "" {
		return true
	}
	ttl := l.window.Milliseconds()
	if ttl <= 0 {
		ttl = 1
	}

	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	allowed, err := l.script.Run(ctx, l.client, []string{l.prefix + ":" + key}, ttl, l.limit).Int64()
	if err != nil {
		slog.Warn("redis rate limiter unavailable",
			slog.String("error", err.Error()),
		)
		return true
	}
	return allowed == 1
}

// compile-time interface check
var _ Limiter = (*RedisLimiter)(nil)
