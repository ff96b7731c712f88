package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/placement/internal/middleware"
	"github.com/hitoshi/placement/internal/model"
)

// HealthChecker はヘルスチェックでDB疎通を確認するインターフェース。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// HTTPStatusRecorder はレスポンスのステータスコードを記録するインターフェース。
type HTTPStatusRecorder interface {
	RecordHTTPStatus(statusCode int)
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	PrincipalFinder   middleware.PrincipalFinder
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	Metrics           HTTPStatusRecorder
	MetricsHandler    http.Handler
	HealthChecker     HealthChecker

	// 認証
	AuthService AuthServiceInterface
	CurrentUser CurrentUserService
	AuthConfig  AuthHandlerConfig

	// ドメイン
	OfferService       OfferServiceInterface
	ApplicationService ApplicationServiceInterface
	EvaluationService  EvaluationServiceInterface
	HistoryService     HistoryServiceInterface
	DirectoryService   DirectoryServiceInterface
	StatsService       StatsServiceInterface
	SettingService     SettingServiceInterface
	UserService        UserServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → SecurityHeaders → Recovery → Logging → Metrics → Auth → CSRF → RateLimit(General)
//
// OAuthフロー（/auth/google/*, /auth/logout）とヘルスチェックは認証グループの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.CurrentUser, deps.AuthConfig)
	offerHandler := NewOfferHandler(deps.OfferService)
	appHandler := NewApplicationHandler(deps.ApplicationService)
	evalHandler := NewEvaluationHandler(deps.EvaluationService)
	dirHandler := NewDirectoryHandler(deps.DirectoryService)
	reportHandler := NewReportHandler(deps.HistoryService, deps.StatsService, deps.SettingService)
	userHandler := NewUserHandler(deps.UserService)

	// --- 認証不要のルート ---

	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}
	r.Handle("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	r.Route("/auth", func(r chi.Router) {
		r.Get("/google/login", authHandler.Login)
		r.Get("/google/callback", authHandler.Callback)
		r.Post("/logout", authHandler.Logout)
		r.With(middleware.NewAuthMiddleware(deps.PrincipalFinder)).Get("/me", authHandler.Me)
	})

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.PrincipalFinder))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		staff := middleware.RequireRole(model.RoleCompany, model.RoleSupervisor, model.RoleSchoolAdmin)
		admin := middleware.RequireRole(model.RoleSchoolAdmin)

		// 募集
		r.Route("/api/offers", func(r chi.Router) {
			r.Get("/", offerHandler.ListOffers)
			r.With(middleware.RequireRole(model.RoleCompany)).Post("/", offerHandler.CreateOffer)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", offerHandler.GetOffer)
				r.Patch("/", offerHandler.UpdateOffer)
				r.Delete("/", offerHandler.DeleteOffer)
				r.Post("/close", offerHandler.CloseOffer)
			})
		})

		// 応募
		r.Route("/api/applications", func(r chi.Router) {
			// POST /api/applications - 応募（応募専用レート制限を追加）
			r.With(middleware.RequireRole(model.RoleStudent), deps.RateLimiter.ApplyMiddleware()).
				Post("/", appHandler.CreateApplication)
			r.Get("/", appHandler.ListApplications)
			r.With(middleware.RequireRole(model.RoleStudent)).Get("/me", appHandler.ListMyApplications)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", appHandler.GetApplication)
				r.Delete("/", appHandler.DeleteApplication)
				r.With(middleware.RequireRole(model.RoleSupervisor)).Patch("/status", appHandler.UpdateStatus)
			})
		})

		// 評価
		r.Route("/api/evaluations", func(r chi.Router) {
			r.With(middleware.RequireRole(model.RoleSupervisor)).Post("/", evalHandler.CreateEvaluation)
			r.Get("/", evalHandler.ListEvaluations)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", evalHandler.GetEvaluation)
				r.Patch("/", evalHandler.UpdateEvaluation)
				r.Delete("/", evalHandler.DeleteEvaluation)
			})
		})

		// 履歴
		r.Get("/api/histories", reportHandler.ListHistories)

		// プロフィール
		r.Route("/api/students", func(r chi.Router) {
			r.With(staff).Get("/", dirHandler.ListStudents)
			r.With(middleware.RequireRole(model.RoleStudent)).Get("/me", dirHandler.MyStudent)
			r.Get("/{id}", dirHandler.GetStudent)
			r.Patch("/{id}", dirHandler.UpdateStudent)
		})
		r.Route("/api/companies", func(r chi.Router) {
			r.Get("/", dirHandler.ListCompanies)
			r.Route("/me", func(r chi.Router) {
				r.Use(middleware.RequireRole(model.RoleCompany))
				r.Get("/", dirHandler.MyCompany)
				r.Put("/careers-feed", dirHandler.SetCareersFeed)
			})
			r.Get("/{id}", dirHandler.GetCompany)
			r.Patch("/{id}", dirHandler.UpdateCompany)
		})
		r.Route("/api/supervisors", func(r chi.Router) {
			r.Get("/", dirHandler.ListSupervisors)
			r.With(middleware.RequireRole(model.RoleCompany, model.RoleSchoolAdmin)).Post("/", dirHandler.CreateSupervisor)
			r.With(middleware.RequireRole(model.RoleSupervisor)).Get("/me", dirHandler.MySupervisor)
			r.Get("/{id}", dirHandler.GetSupervisor)
			r.Patch("/{id}", dirHandler.UpdateSupervisor)
		})
		r.Route("/api/schools", func(r chi.Router) {
			r.Get("/", dirHandler.ListSchools)
			r.With(admin).Get("/me", dirHandler.MySchool)
			r.Get("/{id}", dirHandler.GetSchool)
			r.Patch("/{id}", dirHandler.UpdateSchool)
		})

		// 設定
		r.Route("/api/settings", func(r chi.Router) {
			r.Get("/", reportHandler.ListSettings)
			r.With(admin).Put("/{key}", reportHandler.PutSetting)
		})

		// ユーザー管理
		r.Delete("/api/users/me", userHandler.Withdraw)

		// 学校管理者向け
		r.Route("/api/admin", func(r chi.Router) {
			r.Use(admin)
			r.Post("/users", userHandler.Provision)
			r.Delete("/users/{id}", userHandler.WithdrawUser)

			r.Route("/stats", func(r chi.Router) {
				r.Get("/overview", reportHandler.Overview)
				r.Get("/applications-by-month", reportHandler.ApplicationsByMonth)
				r.Get("/sectors", reportHandler.SectorDistribution)
				r.Get("/recent-activity", reportHandler.RecentActivity)
			})
		})
	})

	return r
}

// healthHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
// checkerがnilの場合は常に200を返す。
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
