// Package stats は学校管理者向けの読み取り専用の集計を提供する。
package stats

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/hitoshi/placement/internal/model"
	"github.com/hitoshi/placement/internal/policy"
	"github.com/hitoshi/placement/internal/repository"
)

const (
	// MaxMonths は月別集計で指定できる最大月数。
	MaxMonths = 24
	// DefaultActivityLimit は最近のアクティビティのデフォルト件数。
	DefaultActivityLimit = 10
	// MaxActivityLimit は最近のアクティビティの最大件数。
	MaxActivityLimit = 100
)

// Service は集計のサービス層。
type Service struct {
	statsRepo repository.StatsRepository
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(statsRepo repository.StatsRepository) *Service {
	return &Service{statsRepo: statsRepo, now: time.Now}
}

// Overview は全体の件数を返す。
func (s *Service) Overview(ctx context.Context, actor model.Principal) (*model.Overview, error) {
	if err := policy.Authorize(actor, policy.ActionStatsRead, policy.Resource{}); err != nil {
		return nil, err
	}
	o, err := s.statsRepo.Overview(ctx)
	if err != nil {
		return nil, fmt.Errorf("全体集計の取得に失敗しました: %w", err)
	}
	return o, nil
}

// ApplicationsByMonth は現在の月を末尾とするmonths個の月別応募数を古い順に返す。
// 応募のない月も0件として含める。
func (s *Service) ApplicationsByMonth(ctx context.Context, actor model.Principal, months int) ([]model.MonthBucket, error) {
	if err := policy.Authorize(actor, policy.ActionStatsRead, policy.Resource{}); err != nil {
		return nil, err
	}
	if months < 1 || months > MaxMonths {
		return nil, model.NewInvalidMonthsError(months)
	}

	now := s.now().UTC()
	current := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	from := current.AddDate(0, -(months - 1), 0)

	counts, err := s.statsRepo.CountApplicationsByMonth(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("月別応募数の取得に失敗しました: %w", err)
	}

	buckets := make([]model.MonthBucket, months)
	for i := range buckets {
		label := from.AddDate(0, i, 0).Format("2006-01")
		buckets[i] = model.MonthBucket{Label: label, Count: counts[label]}
	}
	return buckets, nil
}

// SectorDistribution は完了した応募の業種別件数と割合を返す。
// 業種が未設定の企業への応募は分母にも含めない。割合は四捨五入した整数。
func (s *Service) SectorDistribution(ctx context.Context, actor model.Principal) ([]model.SectorShare, error) {
	if err := policy.Authorize(actor, policy.ActionStatsRead, policy.Resource{}); err != nil {
		return nil, err
	}
	counts, err := s.statsRepo.CountCompletedBySector(ctx)
	if err != nil {
		return nil, fmt.Errorf("業種別集計の取得に失敗しました: %w", err)
	}

	total := 0
	for _, c := range counts {
		if c.Sector != "" {
			total += c.Count
		}
	}
	shares := make([]model.SectorShare, 0, len(counts))
	for _, c := range counts {
		if c.Sector == "" {
			continue
		}
		shares = append(shares, model.SectorShare{
			Sector:     c.Sector,
			Count:      c.Count,
			Percentage: int(math.Round(float64(c.Count) / float64(total) * 100)),
		})
	}
	return shares, nil
}

// RecentActivity は応募と評価を合わせた最近のアクティビティを新しい順にlimit件返す。
// limitが0以下の場合はデフォルト件数、上限を超える場合は上限に丸める。
func (s *Service) RecentActivity(ctx context.Context, actor model.Principal, limit int) ([]model.Activity, error) {
	if err := policy.Authorize(actor, policy.ActionStatsRead, policy.Resource{}); err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = DefaultActivityLimit
	case limit > MaxActivityLimit:
		limit = MaxActivityLimit
	}

	activities, err := s.statsRepo.RecentActivity(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("最近のアクティビティの取得に失敗しました: %w", err)
	}
	return activities, nil
}
