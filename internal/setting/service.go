// Package setting はプラットフォーム全体のキーバリュー設定を管理する。
package setting

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/hitoshi/placement/internal/model"
	"github.com/hitoshi/placement/internal/policy"
	"github.com/hitoshi/placement/internal/repository"
)

// MaxValueLength は設定値の最大長（バイト）。
const MaxValueLength = 4096

var keyPattern = regexp.MustCompile(`^[a-z][a-z0-9_.]{0,63}$`)

// Service は設定のサービス層。
type Service struct {
	settingRepo repository.SettingRepository
	now         func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(settingRepo repository.SettingRepository) *Service {
	return &Service{settingRepo: settingRepo, now: time.Now}
}

// List は全設定をキー順で返す。
func (s *Service) List(ctx context.Context) ([]*model.Setting, error) {
	settings, err := s.settingRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("設定の取得に失敗しました: %w", err)
	}
	return settings, nil
}

// Put は設定を登録または更新する。学校管理者のみ実行できる。
func (s *Service) Put(ctx context.Context, actor model.Principal, key, value string) (*model.Setting, error) {
	if err := policy.Authorize(actor, policy.ActionSettingWrite, policy.Resource{}); err != nil {
		return nil, err
	}
	if !keyPattern.MatchString(key) {
		return nil, model.NewInvalidSettingError(fmt.Sprintf("key %q", key))
	}
	if len(value) > MaxValueLength {
		return nil, model.NewInvalidSettingError("value too long")
	}

	st := &model.Setting{Key: key, Value: value, UpdatedAt: s.now()}
	if err := s.settingRepo.Upsert(ctx, st); err != nil {
		return nil, fmt.Errorf("設定の保存に失敗しました: %w", err)
	}
	slog.Info("設定を更新しました", slog.String("key", key), slog.String("user_id", actor.UserID))
	return st, nil
}
