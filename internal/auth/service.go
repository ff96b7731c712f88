// Package auth はOAuth認証フロー、セッション管理、操作主体の解決を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/placement/internal/model"
	"github.com/hitoshi/placement/internal/repository"
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	Provider       string
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth       OAuthProvider
	userRepo    repository.UserRepository
	identRepo   repository.IdentityRepository
	sessionRepo repository.SessionRepository
	config      ServiceConfig
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	userRepo repository.UserRepository,
	identRepo repository.IdentityRepository,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
) *Service {
	return &Service{
		oauth:       oauth,
		userRepo:    userRepo,
		identRepo:   identRepo,
		sessionRepo: sessionRepo,
		config:      config,
		now:         time.Now,
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// ユーザーの特定は次の順で行う。
//  1. identityが登録済みであればそのユーザー
//  2. 事前登録されたユーザー（企業・指導担当者・学校管理者）とメールアドレスが一致すればidentityを紐付ける
//  3. いずれでもなければ学生ユーザーと空の学生プロフィールを作成する
func (s *Service) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	info, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	userID, err := s.resolveUser(ctx, info)
	if err != nil {
		return nil, err
	}

	session, err := s.createSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

func (s *Service) resolveUser(ctx context.Context, info *OAuthUserInfo) (string, error) {
	identity, err := s.identRepo.FindByProviderAndProviderUserID(ctx, info.Provider, info.ProviderUserID)
	if err != nil {
		return "", fmt.Errorf("failed to find identity: %w", err)
	}
	if identity != nil {
		slog.Info("existing user logged in",
			slog.String("user_id", identity.UserID),
			slog.String("provider", info.Provider),
		)
		return identity.UserID, nil
	}

	now := s.now()
	newIdentity := &model.Identity{
		ID:             uuid.New().String(),
		Provider:       info.Provider,
		ProviderUserID: info.ProviderUserID,
		CreatedAt:      now,
	}

	provisioned, err := s.userRepo.FindByEmail(ctx, info.Email)
	if err != nil {
		return "", fmt.Errorf("failed to find user by email: %w", err)
	}
	if provisioned != nil {
		newIdentity.UserID = provisioned.ID
		if err := s.identRepo.Create(ctx, newIdentity); err != nil {
			return "", fmt.Errorf("failed to link identity: %w", err)
		}
		slog.Info("provisioned user linked",
			slog.String("user_id", provisioned.ID),
			slog.String("role", string(provisioned.Role)),
			slog.String("provider", info.Provider),
		)
		return provisioned.ID, nil
	}

	userID := uuid.New().String()
	newIdentity.UserID = userID
	firstName, lastName := splitName(info.Name)
	user := &model.User{
		ID:        userID,
		Email:     info.Email,
		Name:      info.Name,
		Role:      model.RoleStudent,
		CreatedAt: now,
		UpdatedAt: now,
	}
	student := &model.Student{
		ID:        uuid.New().String(),
		UserID:    userID,
		FirstName: firstName,
		LastName:  lastName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.userRepo.CreateStudentAccount(ctx, user, newIdentity, student); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return "", model.NewDuplicateEmailError(info.Email)
		}
		return "", fmt.Errorf("failed to create student account: %w", err)
	}
	slog.Info("new student created",
		slog.String("user_id", userID),
		slog.String("provider", info.Provider),
	)
	return userID, nil
}

// splitName は表示名を名と姓に分割する。空白がない場合は全体を名とする。
func splitName(name string) (first, last string) {
	fields := strings.Fields(name)
	switch len(fields) {
	case 0:
		return "", ""
	case 1:
		return fields[0], ""
	default:
		return strings.Join(fields[:len(fields)-1], " "), fields[len(fields)-1]
	}
}

// Authenticate はセッショントークンから操作主体を解決する。
// トークンが無効または期限切れの場合はnilを返す。
func (s *Service) Authenticate(ctx context.Context, token string) (*model.Principal, error) {
	if token == "" {
		return nil, nil
	}
	p, err := s.sessionRepo.FindPrincipal(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve principal: %w", err)
	}
	return p, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}
	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	slog.Info("user logged out")
	return nil
}

// GetCurrentUser はユーザーIDから現在のユーザーを取得する。
func (s *Service) GetCurrentUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
