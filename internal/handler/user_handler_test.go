package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/placement/internal/model"
	"github.com/hitoshi/placement/internal/user"
)

// --- モック定義 ---

// mockUserService はUserServiceInterfaceのモック実装。
type mockUserService struct {
	provisionFn func(ctx context.Context, actor model.Principal, in user.ProvisionInput) (*model.User, error)
	withdrawFn  func(ctx context.Context, actor model.Principal, userID string) error
}

func (m *mockUserService) Provision(ctx context.Context, actor model.Principal, in user.ProvisionInput) (*model.User, error) {
	if m.provisionFn != nil {
		return m.provisionFn(ctx, actor, in)
	}
	return &model.User{ID: "u-new", Email: in.Email, Name: in.Name, Role: in.Role}, nil
}

func (m *mockUserService) Withdraw(ctx context.Context, actor model.Principal, userID string) error {
	if m.withdrawFn != nil {
		return m.withdrawFn(ctx, actor, userID)
	}
	return nil
}

// --- POST /api/admin/users テスト ---

func TestUserHandler_Provision_Success(t *testing.T) {
	var got user.ProvisionInput
	svc := &mockUserService{
		provisionFn: func(ctx context.Context, actor model.Principal, in user.ProvisionInput) (*model.User, error) {
			got = in
			return &model.User{ID: "u-1", Email: in.Email, Name: in.Name, Role: in.Role}, nil
		},
	}
	h := NewUserHandler(svc)

	body := `{"email":"hr@example.com","name":"採用担当","role":"company"}`
	req := withPrincipal(httptest.NewRequest(http.MethodPost, "/api/admin/users", strings.NewReader(body)), "admin", model.RoleSchoolAdmin)
	w := httptest.NewRecorder()

	h.Provision(w, req)

	assertStatus(t, w, http.StatusCreated)
	if got.Role != model.RoleCompany || got.Email != "hr@example.com" {
		t.Errorf("input = %+v", got)
	}
	var resp userResponse
	decodeBody(t, w, &resp)
	if resp.ID != "u-1" || resp.Role != "company" {
		t.Errorf("response = %+v", resp)
	}
}

func TestUserHandler_Provision_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"メール重複", model.NewDuplicateEmailError("hr@example.com"), http.StatusConflict, model.ErrCodeDuplicateEmail},
		{"ロール不正", model.NewInvalidRequestError("role"), http.StatusBadRequest, model.ErrCodeInvalidRequest},
		{"権限なし", model.NewForbiddenError("provision user"), http.StatusForbidden, model.ErrCodeForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockUserService{
				provisionFn: func(ctx context.Context, actor model.Principal, in user.ProvisionInput) (*model.User, error) {
					return nil, tt.err
				},
			}
			h := NewUserHandler(svc)

			req := withPrincipal(httptest.NewRequest(http.MethodPost, "/api/admin/users",
				strings.NewReader(`{"email":"hr@example.com","role":"company"}`)), "admin", model.RoleSchoolAdmin)
			w := httptest.NewRecorder()

			h.Provision(w, req)

			assertStatus(t, w, tt.wantStatus)
			assertErrorCode(t, w, tt.wantCode)
		})
	}
}

// --- DELETE /api/users/me テスト ---

func TestUserHandler_Withdraw_Success(t *testing.T) {
	withdrawCalled := false
	svc := &mockUserService{
		withdrawFn: func(ctx context.Context, actor model.Principal, userID string) error {
			withdrawCalled = true
			if userID != "user-123" {
				t.Errorf("userID = %q, want %q", userID, "user-123")
			}
			return nil
		},
	}

	h := NewUserHandler(svc)

	req := withPrincipal(httptest.NewRequest(http.MethodDelete, "/api/users/me", nil), "user-123", model.RoleStudent)
	w := httptest.NewRecorder()

	h.Withdraw(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
	if !withdrawCalled {
		t.Error("expected Withdraw to be called")
	}

	// セッションCookieが削除されること
	c := findCookie(resp, sessionCookieName)
	if c == nil {
		t.Fatal("expected session cookie to be cleared")
	}
	if c.MaxAge >= 0 {
		t.Errorf("cookie MaxAge = %d, want negative", c.MaxAge)
	}
}

func TestUserHandler_Withdraw_NoPrincipal_ReturnsUnauthorized(t *testing.T) {
	h := NewUserHandler(&mockUserService{})

	req := httptest.NewRequest(http.MethodDelete, "/api/users/me", nil)
	w := httptest.NewRecorder()

	h.Withdraw(w, req)

	assertStatus(t, w, http.StatusUnauthorized)
	assertErrorCode(t, w, model.ErrCodeUnauthorized)
}

func TestUserHandler_Withdraw_UserNotFound(t *testing.T) {
	svc := &mockUserService{
		withdrawFn: func(ctx context.Context, actor model.Principal, userID string) error {
			return model.NewUserNotFoundError()
		},
	}
	h := NewUserHandler(svc)

	req := withPrincipal(httptest.NewRequest(http.MethodDelete, "/api/users/me", nil), "ghost", model.RoleStudent)
	w := httptest.NewRecorder()

	h.Withdraw(w, req)

	assertStatus(t, w, http.StatusNotFound)
	assertErrorCode(t, w, model.ErrCodeUserNotFound)
}

func TestUserHandler_Withdraw_InternalError(t *testing.T) {
	svc := &mockUserService{
		withdrawFn: func(ctx context.Context, actor model.Principal, userID string) error {
			return errors.New("database connection failed")
		},
	}
	h := NewUserHandler(svc)

	req := withPrincipal(httptest.NewRequest(http.MethodDelete, "/api/users/me", nil), "user-123", model.RoleStudent)
	w := httptest.NewRecorder()

	h.Withdraw(w, req)

	assertStatus(t, w, http.StatusInternalServerError)
	// 失敗時はセッションを維持する
	if c := findCookie(w.Result(), sessionCookieName); c != nil {
		t.Error("session cookie must not be cleared on failure")
	}
}

// --- DELETE /api/admin/users/{id} テスト ---

func TestUserHandler_WithdrawUser_UsesURLParam(t *testing.T) {
	var gotActor model.Principal
	var gotUserID string
	svc := &mockUserService{
		withdrawFn: func(ctx context.Context, actor model.Principal, userID string) error {
			gotActor, gotUserID = actor, userID
			return nil
		},
	}
	h := NewUserHandler(svc)

	req := httptest.NewRequest(http.MethodDelete, "/api/admin/users/u-9", nil)
	req = withURLParams(withPrincipal(req, "admin", model.RoleSchoolAdmin), "id", "u-9")
	w := httptest.NewRecorder()

	h.WithdrawUser(w, req)

	assertStatus(t, w, http.StatusNoContent)
	if gotUserID != "u-9" || gotActor.UserID != "admin" {
		t.Errorf("actor=%+v userID=%q", gotActor, gotUserID)
	}
	// 管理者自身のセッションは維持する
	if c := findCookie(w.Result(), sessionCookieName); c != nil {
		t.Error("admin session cookie must not be cleared")
	}
}
