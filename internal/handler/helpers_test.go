package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/placement/internal/middleware"
	"github.com/hitoshi/placement/internal/model"
)

// withPrincipal は認証ミドルウェア通過後と同じ状態のリクエストを返す。
func withPrincipal(r *http.Request, userID string, role model.Role) *http.Request {
	ctx := middleware.ContextWithPrincipal(r.Context(), model.Principal{UserID: userID, Role: role})
	return r.WithContext(ctx)
}

// withURLParams はchiのURLパラメータを設定したリクエストを返す。
func withURLParams(r *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// decodeBody はレスポンスボディをvにデコードする。
func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
}

// assertStatus はステータスコードを検証する。
func assertStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Errorf("status = %d, want %d (body=%s)", w.Code, want, w.Body.String())
	}
}

// assertErrorCode は統一エラーフォーマットのコードを検証する。
func assertErrorCode(t *testing.T, w *httptest.ResponseRecorder, want string) {
	t.Helper()
	var body middleware.ErrorResponseBody
	decodeBody(t, w, &body)
	if body.Code != want {
		t.Errorf("error code = %q, want %q", body.Code, want)
	}
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func strPtr(s string) *string { return &s }

func intPtr(n int) *int { return &n }
