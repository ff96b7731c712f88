// Package user はアカウントの事前登録と退会のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/placement/internal/model"
	"github.com/hitoshi/placement/internal/policy"
	"github.com/hitoshi/placement/internal/repository"
)

// ProvisionInput は事前登録するアカウントの入力。
type ProvisionInput struct {
	Email string
	Name  string
	Role  model.Role
}

// Service はアカウント管理のサービス層。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	now         func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, sessionRepo repository.SessionRepository) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		now:         time.Now,
	}
}

// Provision は企業または学校管理者のアカウントを事前登録する。
// 登録されたメールアドレスで初回ログインしたときにidentityが紐付けられる。
// 指導担当者は企業が登録するため、ここでは扱わない。
func (s *Service) Provision(ctx context.Context, actor model.Principal, in ProvisionInput) (*model.User, error) {
	if err := policy.Authorize(actor, policy.ActionAccountProvision, policy.Resource{}); err != nil {
		return nil, err
	}
	if in.Role != model.RoleCompany && in.Role != model.RoleSchoolAdmin {
		return nil, model.NewInvalidRequestError("role must be company or school_admin")
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, model.NewInvalidRequestError("email is invalid")
	}

	now := s.now()
	u := &model.User{
		ID:        uuid.New().String(),
		Email:     email,
		Name:      strings.TrimSpace(in.Name),
		Role:      in.Role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.userRepo.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewDuplicateEmailError(email)
		}
		return nil, fmt.Errorf("アカウントの登録に失敗しました: %w", err)
	}

	slog.Info("アカウントを事前登録しました",
		slog.String("user_id", u.ID),
		slog.String("role", string(u.Role)),
		slog.String("by", actor.UserID),
	)
	return u, nil
}

// Withdraw はユーザーの退会処理を実行する。本人または学校管理者のみ実行できる。
// 削除順序: sessions → user（+ CASCADE: identities、プロフィール、応募、評価）
// 履歴台帳は外部キーを持たないため残る。
func (s *Service) Withdraw(ctx context.Context, actor model.Principal, userID string) error {
	if err := policy.Authorize(actor, policy.ActionAccountWithdraw, policy.Resource{OwnerUserID: userID}); err != nil {
		return err
	}

	u, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return model.NewUserNotFoundError()
	}

	slog.Info("退会処理を開始します",
		slog.String("user_id", userID),
		slog.String("role", string(u.Role)),
	)

	if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("セッションの削除に失敗しました: %w", err)
	}
	if err := s.userRepo.Delete(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewUserNotFoundError()
		}
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました",
		slog.String("user_id", userID),
	)
	return nil
}
