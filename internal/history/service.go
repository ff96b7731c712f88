// Package history は応募完了時に作成される履歴台帳の参照を提供する。
// 台帳は追記のみで、更新・削除の操作は存在しない。
package history

import (
	"context"
	"fmt"

	"github.com/hitoshi/placement/internal/directory"
	"github.com/hitoshi/placement/internal/model"
	"github.com/hitoshi/placement/internal/repository"
)

// ScopeResolver は操作主体を学生ID・企業IDに解決するインターフェース。
type ScopeResolver interface {
	ResolveScope(ctx context.Context, actor model.Principal) (directory.Scope, error)
}

// Service は履歴台帳のサービス層。
type Service struct {
	historyRepo repository.HistoryRepository
	resolver    ScopeResolver
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(historyRepo repository.HistoryRepository, resolver ScopeResolver) *Service {
	return &Service{historyRepo: historyRepo, resolver: resolver}
}

// FindAll は絞り込み条件に一致する履歴をcompleted_at降順で返す。
// 学生は自分の学生ID、企業と指導担当者は自社の企業IDで強制的に絞り込まれる。
func (s *Service) FindAll(ctx context.Context, actor model.Principal, filter model.HistoryFilter) ([]*model.HistoryRecord, error) {
	scope, err := s.resolver.ResolveScope(ctx, actor)
	if err != nil {
		return nil, err
	}
	switch actor.Role {
	case model.RoleStudent:
		filter.StudentID = &scope.StudentID
	case model.RoleCompany, model.RoleSupervisor:
		filter.CompanyID = &scope.CompanyID
	case model.RoleSchoolAdmin:
	default:
		return nil, model.NewForbiddenError("history:read")
	}

	records, err := s.historyRepo.FindAll(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("履歴の取得に失敗しました: %w", err)
	}
	return records, nil
}
