package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/placement/internal/model"
	"github.com/hitoshi/placement/internal/user"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// Provision は企業または学校管理者のアカウントを事前登録する。
	Provision(ctx context.Context, actor model.Principal, in user.ProvisionInput) (*model.User, error)
	// Withdraw はユーザーの退会処理を実行する。
	// プロフィール、応募、評価はCASCADEで削除され、履歴台帳は残る。
	Withdraw(ctx context.Context, actor model.Principal, userID string) error
}

// UserHandler はアカウント管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

type provisionRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// Provision はアカウントを事前登録する。
// POST /api/admin/users
func (h *UserHandler) Provision(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	var req provisionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.service.Provision(r.Context(), actor, user.ProvisionInput{
		Email: req.Email,
		Name:  req.Name,
		Role:  model.Role(req.Role),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(u))
}

// Withdraw はログイン中ユーザーの退会処理を実行する。
// DELETE /api/users/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}

	if err := h.service.Withdraw(r.Context(), actor, actor.UserID); err != nil {
		handleServiceError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// WithdrawUser は学校管理者が指定ユーザーを退会させる。
// DELETE /api/admin/users/{id}
func (h *UserHandler) WithdrawUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}

	if err := h.service.Withdraw(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
