// Package evaluation は完了した応募に対する指導担当者の評価を管理する。
package evaluation

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
	"github.com/hitoshi/placement/internal/security"
)

// Directory は操作主体のプロフィール解決に使うインターフェース。
type Directory interface {
	SupervisorByUserID(ctx context.Context, userID string) (*model.Supervisor, error)
	ResolveScope(ctx context.Context, actor model.Principal) (directory.Scope, error)
}

// Input は評価作成の入力。
type Input struct {
	ApplicationID string
	Score         int
	Comment       *string
}

// Patch は評価の部分更新内容。nilの項目は変更しない。
type Patch struct {
	Score   *int
	Comment *string
}

// Service は評価のサービス層。
type Service struct {
	evalRepo  repository.EvaluationRepository
	appRepo   repository.ApplicationRepository
	dir       Directory
	sanitizer security.ContentSanitizer
	recorder  metrics.Recorder
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。recorderはnilでもよい。
func NewService(
	evalRepo repository.EvaluationRepository,
	appRepo repository.ApplicationRepository,
	dir Directory,
	sanitizer security.ContentSanitizer,
	recorder metrics.Recorder,
) *Service {
	return &Service{
		evalRepo:  evalRepo,
		appRepo:   appRepo,
		dir:       dir,
		sanitizer: sanitizer,
		recorder:  recorder,
		now:       time.Now,
	}
}

// Create は完了した応募に評価を登録する。前提条件は次の順に検証する。
//  1. 応募に評価が未登録であること（Conflict）
//  2. 操作主体が指導担当者であること（NotFound）
//  3. 応募が存在しCOMPLETEDであること（NotFound / Validation）
//  4. 応募先の募集が指導担当者の企業のものであること（Forbidden）
func (s *Service) Create(ctx context.Context, actor model.Principal, in Input) (*model.Evaluation, error) {
	if !model.ValidScore(in.Score) {
		return nil, model.NewInvalidScoreError(in.Score)
	}

	existing, err := s.evalRepo.FindByApplicationID(ctx, in.ApplicationID)
	if err != nil {
		return nil, fmt.Errorf("評価の重複確認に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicateEvaluationError()
	}

	supervisor, err := s.dir.SupervisorByUserID(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}

	app, err := s.appRepo.FindByID(ctx, in.ApplicationID)
	if err != nil {
		return nil, fmt.Errorf("応募の取得に失敗しました: %w", err)
	}
	if app == nil {
		return nil, model.NewApplicationNotFoundError(in.ApplicationID)
	}
	if app.Status != model.ApplicationStatusCompleted {
		return nil, model.NewApplicationNotCompletedError()
	}

	if err := policy.Authorize(actor, policy.ActionEvaluationWrite, policy.Resource{
		OwnerCompanyID: app.CompanyID,
		ActorCompanyID: supervisor.CompanyID,
	}); err != nil {
		slog.Warn("他社の応募への評価を拒否しました",
			slog.String("application_id", app.ID),
			slog.String("supervisor_id", supervisor.ID),
		)
		return nil, err
	}

	now := s.now()
	e := &model.Evaluation{
		ID:            uuid.New().String(),
		ApplicationID: app.ID,
		SupervisorID:  supervisor.ID,
		Score:         in.Score,
		Comment:       s.comment(in.Comment),
		EvaluatedAt:   now,
		UpdatedAt:     now,
	}
	if err := s.evalRepo.Create(ctx, e); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewDuplicateEvaluationError()
		}
		return nil, fmt.Errorf("評価の作成に失敗しました: %w", err)
	}

	if s.recorder != nil {
		s.recorder.RecordEvaluationCreated()
	}
	slog.Info("評価を作成しました",
		slog.String("evaluation_id", e.ID),
		slog.String("application_id", e.ApplicationID),
		slog.String("supervisor_id", e.SupervisorID),
	)
	return e, nil
}

// List は操作主体のスコープ内の評価を返す。
// 企業と指導担当者は自社募集への応募、学生は自分の応募に対する評価に限定される。
func (s *Service) List(ctx context.Context, actor model.Principal, applicationID *string) ([]*model.EvaluationWithScope, error) {
	scope, err := s.dir.ResolveScope(ctx, actor)
	if err != nil {
		return nil, err
	}
	filter := model.EvaluationFilter{ApplicationID: applicationID}
	switch actor.Role {
	case model.RoleStudent:
		filter.StudentID = &scope.StudentID
	case model.RoleCompany, model.RoleSupervisor:
		filter.CompanyID = &scope.CompanyID
	}

	evaluations, err := s.evalRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("評価一覧の取得に失敗しました: %w", err)
	}
	return evaluations, nil
}

// Get は評価を取得する。他社の評価はNotFoundではなくForbiddenを返す。
func (s *Service) Get(ctx context.Context, actor model.Principal, id string) (*model.EvaluationWithScope, error) {
	e, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	scope, err := s.dir.ResolveScope(ctx, actor)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(actor, policy.ActionEvaluationRead, policy.Resource{
		OwnerCompanyID: e.CompanyID,
		ActorCompanyID: scope.CompanyID,
		OwnerStudentID: e.StudentID,
		ActorStudentID: scope.StudentID,
	}); err != nil {
		return nil, err
	}
	return e, nil
}

// Update は評価のスコアとコメントを更新する。作成時と同じく応募先企業の指導担当者のみ実行できる。
func (s *Service) Update(ctx context.Context, actor model.Principal, id string, p Patch) (*model.EvaluationWithScope, error) {
	if p.Score != nil && !model.ValidScore(*p.Score) {
		return nil, model.NewInvalidScoreError(*p.Score)
	}
	e, err := s.authorized(ctx, actor, id, policy.ActionEvaluationWrite)
	if err != nil {
		return nil, err
	}

	if p.Score != nil {
		e.Score = *p.Score
	}
	if p.Comment != nil {
		e.Comment = s.comment(p.Comment)
	}
	e.UpdatedAt = s.now()

	if err := s.evalRepo.Update(ctx, &e.Evaluation); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewEvaluationNotFoundError(id)
		}
		return nil, fmt.Errorf("評価の更新に失敗しました: %w", err)
	}
	return e, nil
}

// Remove は評価を削除する。学校管理者、または応募先企業の指導担当者のみ実行できる。
func (s *Service) Remove(ctx context.Context, actor model.Principal, id string) error {
	if _, err := s.authorized(ctx, actor, id, policy.ActionEvaluationRemove); err != nil {
		return err
	}
	if err := s.evalRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewEvaluationNotFoundError(id)
		}
		return fmt.Errorf("評価の削除に失敗しました: %w", err)
	}
	slog.Info("評価を削除しました", slog.String("evaluation_id", id), slog.String("user_id", actor.UserID))
	return nil
}

// authorized は評価を取得し、操作主体の所属企業と応募先企業を照合する。
func (s *Service) authorized(ctx context.Context, actor model.Principal, id string, action policy.Action) (*model.EvaluationWithScope, error) {
	e, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	var actorCompanyID string
	if actor.Is(model.RoleSupervisor) {
		supervisor, err := s.dir.SupervisorByUserID(ctx, actor.UserID)
		if err != nil {
			return nil, err
		}
		actorCompanyID = supervisor.CompanyID
	}
	if err := policy.Authorize(actor, action, policy.Resource{
		OwnerCompanyID: e.CompanyID,
		ActorCompanyID: actorCompanyID,
	}); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Service) find(ctx context.Context, id string) (*model.EvaluationWithScope, error) {
	e, err := s.evalRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("評価の取得に失敗しました: %w", err)
	}
	if e == nil {
		return nil, model.NewEvaluationNotFoundError(id)
	}
	return e, nil
}

// comment はコメントを無害化する。空になった場合はnilを返す。
func (s *Service) comment(raw *string) *string {
	if raw == nil {
		return nil
	}
	c := s.sanitizer.SanitizeComment(*raw)
	if c == "" {
		return nil
	}
	return &c
}
