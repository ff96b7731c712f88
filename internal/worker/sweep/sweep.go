// Package sweep は締切を過ぎた募集を定期的にクローズするジョブを提供する。
// 参照時の遅延クローズと同じ更新を行うため、両者が重なっても結果は変わらない。
package sweep

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/placement/internal/metrics"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// OfferSweepJob は締切切れの募集をCLOSEDにするジョブ。冪等。
type OfferSweepJob struct {
	db       Executor
	recorder metrics.Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewOfferSweepJob は新しいOfferSweepJobを生成する。recorderはnilでもよい。
func NewOfferSweepJob(db Executor, recorder metrics.Recorder, logger *slog.Logger) *OfferSweepJob {
	return &OfferSweepJob{
		db:       db,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// Run は締切がnowより前のOPENの募集をCLOSEDに変更し、件数を返す。
func (j *OfferSweepJob) Run(ctx context.Context) (int64, error) {
	start := time.Now()

	result, err := j.db.ExecContext(ctx,
		`UPDATE offers SET status = 'CLOSED', updated_at = $1 WHERE status = 'OPEN' AND deadline < $1`,
		j.now(),
	)
	if err != nil {
		j.logger.Error("募集の締切処理に失敗しました", slog.String("error", err.Error()))
		return 0, fmt.Errorf("募集の締切処理の実行に失敗: %w", err)
	}
	closed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("更新件数の取得に失敗: %w", err)
	}

	if j.recorder != nil {
		j.recorder.RecordOffersExpired(closed)
	}
	j.logger.Info("募集の締切処理が完了しました",
		slog.Int64("closed_count", closed),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return closed, nil
}

// Start はinterval間隔でRunを実行する。起動直後に1回実行し、
// コンテキストがキャンセルされるまで継続する。
func (j *OfferSweepJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("募集の締切処理を開始しました", slog.Duration("interval", interval))
	_, _ = j.Run(ctx)
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("募集の締切処理を停止しました")
			return
		case <-ticker.C:
			_, _ = j.Run(ctx)
		}
	}
}
