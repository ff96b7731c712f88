package careers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/placement/internal/model"
	"github.com/hitoshi/placement/internal/repository"
)

// FeedImporter は1社分の採用フィード取り込みを実行するインターフェース。
type FeedImporter interface {
	Import(ctx context.Context, company *model.Company) (ImportResult, error)
}

// Scheduler は採用フィードを登録した企業を定期的に取り込む。
// 同時に取り込む企業数はsemaphoreで制限する。
type Scheduler struct {
	companyRepo    repository.CompanyRepository
	importer       FeedImporter
	logger         *slog.Logger
	maxConcurrency int
	backoff        *backoffTracker
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合は5を使用する。
func NewScheduler(companyRepo repository.CompanyRepository, importer FeedImporter, logger *slog.Logger, maxConcurrency int) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 5
	}
	return &Scheduler{
		companyRepo:    companyRepo,
		importer:       importer,
		logger:         logger,
		maxConcurrency: maxConcurrency,
		backoff:        newBackoffTracker(),
	}
}

// Start はinterval間隔で取り込みを実行する。起動直後に1回実行し、
// コンテキストがキャンセルされるまで継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("採用フィードスケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	s.run(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("採用フィードスケジューラを停止しました")
			return
		case <-ticker.C:
			s.run(ctx)
		}
	}
}

func (s *Scheduler) run(ctx context.Context) {
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("採用フィード取り込みサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// RunOnce は採用フィードを登録した全企業を1回ずつ取り込む。
// 個別企業の失敗はログに記録し、他の企業の取り込みは継続する。
// 失敗した企業はバックオフ期間が過ぎるまでスキップする。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	companies, err := s.companyRepo.ListWithCareersFeed(ctx)
	if err != nil {
		return err
	}
	if len(companies) == 0 {
		s.logger.Info("採用フィードを登録した企業はありません")
		return nil
	}

	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	skipped := 0
	for _, company := range companies {
		if !s.backoff.ready(company.ID) {
			skipped++
			continue
		}
		wg.Add(1)
		sem <- struct{}{}

		go func(c *model.Company) {
			defer wg.Done()
			defer func() { <-sem }()

			if _, err := s.importer.Import(ctx, c); err != nil {
				delay := s.backoff.failure(c.ID, err)
				s.logger.Error("採用フィードの取り込みに失敗しました",
					slog.String("company_id", c.ID),
					slog.String("feed_url", c.CareersFeedURL),
					slog.String("error", err.Error()),
					slog.Duration("retry_after", delay),
				)
				return
			}
			s.backoff.success(c.ID)
		}(company)
	}
	wg.Wait()

	s.logger.Info("採用フィード取り込みサイクルが完了しました",
		slog.Int("company_count", len(companies)),
		slog.Int("backoff_skipped", skipped),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}
