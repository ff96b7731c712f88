package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/placement/internal/model"
)

// mockPrincipalFinder はテスト用のPrincipalFinder。
type mockPrincipalFinder struct {
	authenticateFn func(ctx context.Context, token string) (*model.Principal, error)
}

func (m *mockPrincipalFinder) Authenticate(ctx context.Context, token string) (*model.Principal, error) {
	if m.authenticateFn != nil {
		return m.authenticateFn(ctx, token)
	}
	return nil, nil
}

func tokenFinder(valid string, p model.Principal) *mockPrincipalFinder {
	return &mockPrincipalFinder{
		authenticateFn: func(_ context.Context, token string) (*model.Principal, error) {
			if token == valid {
				return &p, nil
			}
			return nil, nil
		},
	}
}

func TestAuthMiddleware_TokenSources(t *testing.T) {
	finder := tokenFinder("valid-token", model.Principal{UserID: "user-1", Role: model.RoleSupervisor})

	tests := []struct {
		name       string
		setup      func(r *http.Request)
		wantStatus int
	}{
		{"Bearerトークン", func(r *http.Request) { r.Header.Set("Authorization", "Bearer valid-token") }, http.StatusOK},
		{"小文字のbearer", func(r *http.Request) { r.Header.Set("Authorization", "bearer valid-token") }, http.StatusOK},
		{"セッションCookie", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "valid-token"})
		}, http.StatusOK},
		{"資格情報なし", func(r *http.Request) {}, http.StatusUnauthorized},
		{"空のCookie", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: ""})
		}, http.StatusUnauthorized},
		{"Basic認証は受け付けない", func(r *http.Request) { r.Header.Set("Authorization", "Basic dXNlcjpwYXNz") }, http.StatusUnauthorized},
		{"期限切れトークン", func(r *http.Request) { r.Header.Set("Authorization", "Bearer expired") }, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got model.Principal
			handler := NewAuthMiddleware(finder)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, _ = PrincipalFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/applications", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && (got.UserID != "user-1" || got.Role != model.RoleSupervisor) {
				t.Errorf("principal = %+v", got)
			}
		})
	}
}

func TestAuthMiddleware_FinderError_Returns401WithUnifiedBody(t *testing.T) {
	finder := &mockPrincipalFinder{
		authenticateFn: func(_ context.Context, _ string) (*model.Principal, error) {
			return nil, errors.New("database unavailable")
		},
	}
	handler := NewAuthMiddleware(finder)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("next handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != model.ErrCodeUnauthorized {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeUnauthorized)
	}
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name       string
		principal  *model.Principal
		wantStatus int
	}{
		{"許可されたロール", &model.Principal{UserID: "u", Role: model.RoleSchoolAdmin}, http.StatusOK},
		{"許可されないロール", &model.Principal{UserID: "u", Role: model.RoleStudent}, http.StatusForbidden},
		{"未認証", nil, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RequireRole(model.RoleSchoolAdmin, model.RoleCompany)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			req := httptest.NewRequest(http.MethodGet, "/api/admin/stats/overview", nil)
			if tt.principal != nil {
				req = req.WithContext(ContextWithPrincipal(req.Context(), *tt.principal))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestPrincipalFromContext_NoValue_ReturnsError(t *testing.T) {
	if _, err := PrincipalFromContext(context.Background()); err == nil {
		t.Error("expected error when principal is absent")
	}
}
