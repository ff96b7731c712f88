// Package application は応募のライフサイクル（状態遷移と履歴記録）を管理する。
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/placement/internal/directory"
	"github.com/hitoshi/placement/internal/metrics"
	"github.com/hitoshi/placement/internal/model"
	"github.com/hitoshi/placement/internal/policy"
	"github.com/hitoshi/placement/internal/repository"
)

// OfferReader は応募対象の募集を取得するインターフェース。
// 取得時に締切切れの募集がクローズされていることを前提とする。
type OfferReader interface {
	Get(ctx context.Context, id string) (*model.Offer, error)
}

// ScopeResolver は操作主体を学生ID・企業ID等に解決するインターフェース。
type ScopeResolver interface {
	ResolveScope(ctx context.Context, actor model.Principal) (directory.Scope, error)
}

// Service は応募ライフサイクルのサービス層。
type Service struct {
	appRepo  repository.ApplicationRepository
	offers   OfferReader
	resolver ScopeResolver
	recorder metrics.Recorder
	now      func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。recorderはnilでもよい。
func NewService(appRepo repository.ApplicationRepository, offers OfferReader, resolver ScopeResolver, recorder metrics.Recorder) *Service {
	return &Service{
		appRepo:  appRepo,
		offers:   offers,
		resolver: resolver,
		recorder: recorder,
		now:      time.Now,
	}
}

// Create は学生として募集に応募する。
// 募集が存在しない場合はNotFound、締め切られている場合はOfferClosed、
// 同じ募集へ応募済みの場合はConflictを返す。
func (s *Service) Create(ctx context.Context, actor model.Principal, offerID string) (*model.Application, error) {
	if err := policy.Authorize(actor, policy.ActionApplicationCreate, policy.Resource{}); err != nil {
		return nil, err
	}
	scope, err := s.resolver.ResolveScope(ctx, actor)
	if err != nil {
		return nil, err
	}

	offer, err := s.offers.Get(ctx, offerID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if !offer.IsOpenAt(now) {
		return nil, model.NewOfferClosedError(offerID)
	}

	// 一意制約が最終的な判定。ここでは早期リターンのみ
	existing, err := s.appRepo.FindByStudentAndOffer(ctx, scope.StudentID, offerID)
	if err != nil {
		return nil, fmt.Errorf("応募の重複確認に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicateApplicationError()
	}

	app := &model.Application{
		ID:        uuid.New().String(),
		StudentID: scope.StudentID,
		OfferID:   offerID,
		Status:    model.ApplicationStatusPending,
		AppliedAt: now,
		UpdatedAt: now,
	}
	if err := s.appRepo.Create(ctx, app); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewDuplicateApplicationError()
		}
		return nil, fmt.Errorf("応募の作成に失敗しました: %w", err)
	}

	if s.recorder != nil {
		s.recorder.RecordApplicationCreated()
	}
	slog.Info("応募を作成しました",
		slog.String("application_id", app.ID),
		slog.String("student_id", app.StudentID),
		slog.String("offer_id", offerID),
	)
	return app, nil
}

// TransitionStatus は応募のステータスを変更する。
// 募集の所有企業に所属する指導担当者のみ実行できる。
// COMPLETEDへの遷移では、ステータス更新と履歴レコードの作成を1つのトランザクションで行う。
func (s *Service) TransitionStatus(ctx context.Context, actor model.Principal, id string, next model.ApplicationStatus) (*model.ApplicationWithOffer, error) {
	if _, ok := model.ParseApplicationStatus(string(next)); !ok {
		return nil, model.NewInvalidStatusError(string(next))
	}
	app, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	var scope directory.Scope
	if actor.Is(model.RoleSupervisor) {
		if scope, err = s.resolver.ResolveScope(ctx, actor); err != nil {
			return nil, err
		}
	}
	if err := policy.Authorize(actor, policy.ActionApplicationTransition, policy.Resource{
		OwnerCompanyID: app.CompanyID,
		ActorCompanyID: scope.CompanyID,
		Status:         app.Status,
	}); err != nil {
		return nil, err
	}

	if err := model.ValidateTransition(app.Status, next); err != nil {
		return nil, err
	}

	now := s.now()
	prev := app.Status
	if next == model.ApplicationStatusCompleted {
		record := &model.HistoryRecord{
			ID:            uuid.New().String(),
			ApplicationID: app.ID,
			StudentID:     app.StudentID,
			OfferID:       app.OfferID,
			CompanyID:     app.CompanyID,
			SupervisorID:  scope.SupervisorID,
			Status:        model.ApplicationStatusCompleted,
			AppliedAt:     app.AppliedAt,
			CompletedAt:   now,
		}
		err = s.appRepo.CompleteWithHistory(ctx, app.ID, prev, record)
		if err == nil {
			slog.Info("履歴を記録しました",
				slog.String("history_id", record.ID),
				slog.String("application_id", app.ID),
				slog.String("company_id", app.CompanyID),
			)
		}
	} else {
		err = s.appRepo.UpdateStatus(ctx, app.ID, prev, next, now)
	}
	if err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil, s.conflictError(ctx, app.ID, next)
		}
		return nil, fmt.Errorf("応募ステータスの更新に失敗しました: %w", err)
	}

	app.Status = next
	app.UpdatedAt = now
	if s.recorder != nil {
		s.recorder.RecordStatusTransition(next)
	}
	slog.Info("応募ステータスを変更しました",
		slog.String("application_id", app.ID),
		slog.String("from", string(prev)),
		slog.String("to", string(next)),
		slog.String("supervisor_id", scope.SupervisorID),
	)
	return app, nil
}

// conflictError は比較更新に失敗した応募を読み直し、現在の状態に応じたエラーを返す。
func (s *Service) conflictError(ctx context.Context, id string, next model.ApplicationStatus) error {
	current, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if err := model.ValidateTransition(current.Status, next); err != nil {
		return err
	}
	return model.NewStatusConflictError(id)
}

// List は操作主体のスコープ内で絞り込み条件に一致する応募を返す。
// 学生は自分の応募、企業と指導担当者は自社募集への応募に限定される。
func (s *Service) List(ctx context.Context, actor model.Principal, filter model.ApplicationFilter) ([]*model.ApplicationWithOffer, error) {
	scope, err := s.resolver.ResolveScope(ctx, actor)
	if err != nil {
		return nil, err
	}
	switch actor.Role {
	case model.RoleStudent:
		filter.StudentID = &scope.StudentID
	case model.RoleCompany, model.RoleSupervisor:
		filter.CompanyID = &scope.CompanyID
	}

	apps, err := s.appRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("応募一覧の取得に失敗しました: %w", err)
	}
	return apps, nil
}

// Get は応募を取得する。スコープ外の応募はForbiddenを返す。
func (s *Service) Get(ctx context.Context, actor model.Principal, id string) (*model.ApplicationWithOffer, error) {
	app, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	scope, err := s.resolver.ResolveScope(ctx, actor)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(actor, policy.ActionApplicationRead, policy.Resource{
		OwnerCompanyID: app.CompanyID,
		ActorCompanyID: scope.CompanyID,
		OwnerStudentID: app.StudentID,
		ActorStudentID: scope.StudentID,
	}); err != nil {
		return nil, err
	}
	return app, nil
}

// ListByStudentUserID はユーザーIDに紐づく学生の応募一覧を返す。
func (s *Service) ListByStudentUserID(ctx context.Context, userID string) ([]*model.ApplicationWithOffer, error) {
	apps, err := s.appRepo.ListByStudentUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("応募一覧の取得に失敗しました: %w", err)
	}
	return apps, nil
}

// Remove は応募を削除する。COMPLETEDの応募は削除できない。
// 学校管理者、またはPENDINGの応募を所有する学生のみ実行できる。
func (s *Service) Remove(ctx context.Context, actor model.Principal, id string) error {
	app, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if app.Status == model.ApplicationStatusCompleted {
		return model.NewCompletedImmutableError()
	}

	var scope directory.Scope
	if actor.Is(model.RoleStudent) {
		if scope, err = s.resolver.ResolveScope(ctx, actor); err != nil {
			return err
		}
	}
	if err := policy.Authorize(actor, policy.ActionApplicationRemove, policy.Resource{
		OwnerStudentID: app.StudentID,
		ActorStudentID: scope.StudentID,
		Status:         app.Status,
	}); err != nil {
		return err
	}

	if err := s.appRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewApplicationNotFoundError(id)
		}
		return fmt.Errorf("応募の削除に失敗しました: %w", err)
	}
	slog.Info("応募を削除しました", slog.String("application_id", id), slog.String("user_id", actor.UserID))
	return nil
}

func (s *Service) find(ctx context.Context, id string) (*model.ApplicationWithOffer, error) {
	app, err := s.appRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("応募の取得に失敗しました: %w", err)
	}
	if app == nil {
		return nil, model.NewApplicationNotFoundError(id)
	}
	return app, nil
}
