package careers

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	// initialBackoff は指数バックオフの初回遅延（30分）。
	initialBackoff = 30 * time.Minute
	// maxBackoff は指数バックオフの最大遅延（12時間）。
	maxBackoff = 12 * time.Hour
)

// HTTPStatusError はフィード取得が200以外のステータスで終わったことを表す。
type HTTPStatusError struct {
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTPステータス %d", e.StatusCode)
}

// isPermanentFailure は取得を続けても回復が見込めないエラーかを判定する。
// 404/410/401/403 が該当する。
func isPermanentFailure(err error) bool {
	var se *HTTPStatusError
	if !errors.As(err, &se) {
		return false
	}
	switch se.StatusCode {
	case 404, 410, 401, 403:
		return true
	}
	return false
}

// CalculateBackoff は連続エラー回数に基づいて指数バックオフ遅延を計算する。
// 初回30分、2倍ずつ増加、最大12時間。
func CalculateBackoff(consecutiveErrors int) time.Duration {
	delay := initialBackoff
	for i := 0; i < consecutiveErrors; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

type backoffEntry struct {
	errors int
	next   time.Time
}

// backoffTracker は企業ごとの連続失敗回数と次回取得可能時刻をメモリ上で管理する。
// ワーカー再起動でリセットされる。
type backoffTracker struct {
	mu      sync.Mutex
	entries map[string]backoffEntry
	now     func() time.Time
}

func newBackoffTracker() *backoffTracker {
	return &backoffTracker{entries: make(map[string]backoffEntry), now: time.Now}
}

// ready は企業の取り込みを今実行してよいかを返す。
func (b *backoffTracker) ready(companyID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[companyID]
	return !ok || !b.now().Before(e.next)
}

// failure は失敗を記録する。恒久的な失敗は最大遅延まで待つ。
func (b *backoffTracker) failure(companyID string, err error) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := b.entries[companyID]
	delay := CalculateBackoff(e.errors)
	if isPermanentFailure(err) {
		delay = maxBackoff
	}
	e.errors++
	e.next = b.now().Add(delay)
	b.entries[companyID] = e
	return delay
}

func (b *backoffTracker) success(companyID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, companyID)
}
