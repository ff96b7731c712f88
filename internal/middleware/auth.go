// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/placement/internal/model"
)

// SessionCookieName はセッショントークンを保持するCookieの名前。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	principalContextKey = contextKey("principal")
	bearerContextKey    = contextKey("bearer")
	principalHolderKey  = contextKey("principal_holder")
)

// principalHolder は外側のミドルウェア（アクセスログ）が認証結果を参照するための入れ物。
type principalHolder struct {
	principal *model.Principal
}

// PrincipalFinder はセッショントークンから操作主体を解決するインターフェース。
// 無効または期限切れのトークンにはnilを返す。
type PrincipalFinder interface {
	Authenticate(ctx context.Context, token string) (*model.Principal, error)
}

// NewAuthMiddleware はAuthorizationヘッダー（Bearer）またはセッションCookieからトークンを読み取り、
// 操作主体をリクエストコンテキストに注入するミドルウェアを返す。
// 未認証リクエストには401を返す。
func NewAuthMiddleware(finder PrincipalFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, bearer := tokenFromRequest(r)
			if token == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			p, err := finder.Authenticate(r.Context(), token)
			if err != nil {
				slog.Error("failed to authenticate",
					slog.String("error", err.Error()),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			if p == nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			ctx := ContextWithPrincipal(r.Context(), *p)
			if bearer {
				ctx = context.WithValue(ctx, bearerContextKey, true)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// tokenFromRequest はBearerトークンを優先し、なければセッションCookieを返す。
func tokenFromRequest(r *http.Request) (token string, bearer bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, value, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(value), true
		}
		return "", false
	}
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		return cookie.Value, false
	}
	return "", false
}

// RequireRole は操作主体が指定ロールのいずれかを持つ場合のみ通過させるミドルウェアを返す。
// NewAuthMiddlewareの後に配置する。
func RequireRole(roles ...model.Role) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := PrincipalFromContext(r.Context())
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			if !p.Is(roles...) {
				WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError(r.Method+" "+r.URL.Path))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// PrincipalFromContext はリクエストコンテキストから操作主体を取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func PrincipalFromContext(ctx context.Context) (model.Principal, error) {
	p, ok := ctx.Value(principalContextKey).(model.Principal)
	if !ok || p.UserID == "" {
		return model.Principal{}, fmt.Errorf("principal not found in context")
	}
	return p, nil
}

// ContextWithPrincipal はコンテキストに操作主体を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithPrincipal(ctx context.Context, p model.Principal) context.Context {
	if h, ok := ctx.Value(principalHolderKey).(*principalHolder); ok {
		h.principal = &p
	}
	return context.WithValue(ctx, principalContextKey, p)
}

// isBearerRequest はBearerトークンで認証されたリクエストかどうかを返す。
func isBearerRequest(ctx context.Context) bool {
	v, _ := ctx.Value(bearerContextKey).(bool)
	return v
}
