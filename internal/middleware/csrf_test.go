package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/placement/internal/model"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestCSRFMiddleware_SafeMethodsPassWithoutToken(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		t.Run(method, func(t *testing.T) {
			req := httptest.NewRequest(method, "/api/offers", nil)
			rec := httptest.NewRecorder()
			NewCSRFMiddleware(CSRFConfig{})(okHandler()).ServeHTTP(rec, req)
			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want 200", rec.Code)
			}
		})
	}
}

func TestCSRFMiddleware_CookieAuthenticatedMutations(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		cookie     string
		header     string
		wantStatus int
	}{
		{"POST 一致", http.MethodPost, "tok", "tok", http.StatusOK},
		{"PUT 一致", http.MethodPut, "tok", "tok", http.StatusOK},
		{"POST Cookieなし", http.MethodPost, "", "tok", http.StatusForbidden},
		{"PATCH ヘッダーなし", http.MethodPatch, "tok", "", http.StatusForbidden},
		{"DELETE 不一致", http.MethodDelete, "tok", "other", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/applications", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set(csrfHeaderName, tt.header)
			}
			rec := httptest.NewRecorder()
			NewCSRFMiddleware(CSRFConfig{})(okHandler()).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusForbidden {
				var body ErrorResponseBody
				json.NewDecoder(rec.Body).Decode(&body)
				if body.Code != "CSRF_TOKEN_INVALID" {
					t.Errorf("code = %q, want CSRF_TOKEN_INVALID", body.Code)
				}
			}
		})
	}
}

// Bearerトークンで認証されたリクエストはCSRFトークンなしで通過すること
func TestCSRFMiddleware_BearerRequestSkipsValidation(t *testing.T) {
	finder := tokenFinder("api-token", model.Principal{UserID: "user-1", Role: model.RoleStudent})
	handler := NewAuthMiddleware(finder)(NewCSRFMiddleware(CSRFConfig{})(okHandler()))

	req := httptest.NewRequest(http.MethodPost, "/api/applications", nil)
	req.Header.Set("Authorization", "Bearer api-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

// 同じトークンでもCookie認証の場合はCSRF検証が必要なこと
func TestCSRFMiddleware_CookieSessionStillValidated(t *testing.T) {
	finder := tokenFinder("session-token", model.Principal{UserID: "user-1", Role: model.RoleStudent})
	handler := NewAuthMiddleware(finder)(NewCSRFMiddleware(CSRFConfig{})(okHandler()))

	req := httptest.NewRequest(http.MethodPost, "/api/applications", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "session-token"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestCSRFMiddleware_GETSetsCookieOnce(t *testing.T) {
	mw := NewCSRFMiddleware(CSRFConfig{CookieSecure: true, CookieDomain: "example.com"})(okHandler())

	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	c := findCookie(rec.Result(), csrfCookieName)
	if c == nil {
		t.Fatal("expected csrf cookie to be set")
	}
	if c.HttpOnly {
		t.Error("csrf cookie must be readable by the frontend")
	}
	if !c.Secure || c.Domain != "example.com" || len(c.Value) != 64 {
		t.Errorf("cookie = %+v", c)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "existing"})
	rec = httptest.NewRecorder()
	mw.ServeHTTP(rec, req)
	if findCookie(rec.Result(), csrfCookieName) != nil {
		t.Error("existing csrf cookie should not be replaced")
	}
}

func TestCSRFTokenHandler(t *testing.T) {
	h := NewCSRFTokenHandler(CSRFConfig{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil))
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	c := findCookie(rec.Result(), csrfCookieName)
	if body.Token == "" || c == nil || c.Value != body.Token {
		t.Errorf("token = %q, cookie = %+v", body.Token, c)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "existing"})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	json.NewDecoder(rec.Body).Decode(&body)
	if body.Token != "existing" {
		t.Errorf("token = %q, want existing", body.Token)
	}
}
