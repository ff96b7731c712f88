// Package cleanup は期限切れセッションを削除するジョブを提供する。
// 認証時にも期限は判定されるため、このジョブは行の蓄積を防ぐためだけに動く。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// DefaultInterval はセッション削除の既定の実行間隔。
const DefaultInterval = 24 * time.Hour

// SessionCleanupJob は期限切れセッションの削除ジョブ。冪等。
type SessionCleanupJob struct {
	db     Executor
	logger *slog.Logger
	now    func() time.Time

	// Grace は期限切れ後も残す猶予期間。
	Grace time.Duration
}

// NewSessionCleanupJob は新しいSessionCleanupJobを生成する。猶予期間は既定で0。
func NewSessionCleanupJob(db Executor, logger *slog.Logger) *SessionCleanupJob {
	return &SessionCleanupJob{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// Run はexpires_atが(現在時刻 - Grace)より前のセッションを削除し、件数を返す。
func (j *SessionCleanupJob) Run(ctx context.Context) (int64, error) {
	start := time.Now()
	cutoff := j.now().Add(-j.Grace)

	result, err := j.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < $1`, cutoff)
	if err != nil {
		j.logger.Error("セッションの削除に失敗しました",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("期限切れセッションの削除に失敗: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	j.logger.Info("期限切れセッションの削除が完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Time("cutoff", cutoff),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return deleted, nil
}

// Start はinterval間隔でRunを実行する。起動直後に1回実行し、
// コンテキストがキャンセルされるまで継続する。
func (j *SessionCleanupJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	_, _ = j.Run(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = j.Run(ctx)
		}
	}
}
