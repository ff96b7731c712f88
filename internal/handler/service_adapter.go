package handler

import (
	"context"

	"github.com/hitoshi/placement/internal/directory"
	"github.com/hitoshi/placement/internal/model"
)

// CurrentUserFinder はユーザーIDからユーザーを取得するインターフェース。auth.Serviceが満たす。
type CurrentUserFinder interface {
	GetCurrentUser(ctx context.Context, userID string) (*model.User, error)
}

// ScopeResolver は操作主体をプロフィールIDへ解決するインターフェース。directory.Serviceが満たす。
type ScopeResolver interface {
	ResolveScope(ctx context.Context, actor model.Principal) (directory.Scope, error)
}

// CurrentUserAdapter は auth.Service と directory.Service を CurrentUserService に適合させるアダプタ。
type CurrentUserAdapter struct {
	users  CurrentUserFinder
	scopes ScopeResolver
}

// NewCurrentUserAdapter はCurrentUserAdapterを生成する。
func NewCurrentUserAdapter(users CurrentUserFinder, scopes ScopeResolver) *CurrentUserAdapter {
	return &CurrentUserAdapter{users: users, scopes: scopes}
}

// CurrentUser はユーザー情報にロールに対応するプロフィールIDを加えて返す。
// プロフィールが未作成の場合はIDを空のまま返す。
func (a *CurrentUserAdapter) CurrentUser(ctx context.Context, actor model.Principal) (*meResponse, error) {
	u, err := a.users.GetCurrentUser(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}

	resp := &meResponse{
		ID:    u.ID,
		Email: u.Email,
		Name:  u.Name,
		Role:  string(u.Role),
	}

	scope, err := a.scopes.ResolveScope(ctx, actor)
	if err != nil {
		if model.IsKind(err, model.KindNotFound) {
			return resp, nil
		}
		return nil, err
	}
	resp.StudentID = scope.StudentID
	resp.CompanyID = scope.CompanyID
	resp.SupervisorID = scope.SupervisorID
	return resp, nil
}

// --- compile-time interface checks ---

var _ CurrentUserService = (*CurrentUserAdapter)(nil)
