package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/placement/internal/application"
	"github.com/hitoshi/placement/internal/auth"
	"github.com/hitoshi/placement/internal/careers"
	"github.com/hitoshi/placement/internal/config"
	"github.com/hitoshi/placement/internal/database"
	"github.com/hitoshi/placement/internal/directory"
	"github.com/hitoshi/placement/internal/evaluation"
	"github.com/hitoshi/placement/internal/handler"
	"github.com/hitoshi/placement/internal/history"
	"github.com/hitoshi/placement/internal/logger"
	"github.com/hitoshi/placement/internal/metrics"
	"github.com/hitoshi/placement/internal/middleware"
	"github.com/hitoshi/placement/internal/offer"
	"github.com/hitoshi/placement/internal/repository"
	"github.com/hitoshi/placement/internal/security"
	"github.com/hitoshi/placement/internal/setting"
	"github.com/hitoshi/placement/internal/stats"
	"github.com/hitoshi/placement/internal/user"
	"github.com/hitoshi/placement/internal/worker/cleanup"
	"github.com/hitoshi/placement/internal/worker/sweep"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	pool := database.DefaultPoolConfig()
	pool.MaxOpenConns = cfg.DBMaxOpenConns
	db, err := database.Open(cfg.DatabaseURL, pool)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// newMetrics はプロセス単位のレジストリにコレクタを登録する。
func newMetrics() (*metrics.Collector, http.Handler) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return metrics.NewCollector(reg), metrics.Handler(reg)
}

// newRateLimiter はREDIS_URLが設定されていればRedisで上限を共有するRateLimiterを生成する。
// 未設定の場合はインスタンスごとのLocalLimiterを使う。
func newRateLimiter(cfg *config.Config) (*middleware.RateLimiter, func(), error) {
	rlCfg := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		rlCfg.GeneralPerMinute = cfg.RateLimitGeneral
	}
	if cfg.RateLimitApply > 0 {
		rlCfg.ApplyPerMinute = cfg.RateLimitApply
	}

	if cfg.RedisURL == "" {
		rl := middleware.NewRateLimiter(rlCfg, nil, nil)
		return rl, rl.Stop, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	rl := middleware.NewRateLimiter(rlCfg,
		middleware.NewRedisLimiter(client, rlCfg.GeneralPerMinute, time.Minute, "ratelimit:general"),
		middleware.NewRedisLimiter(client, rlCfg.ApplyPerMinute, time.Minute, "ratelimit:apply"),
	)
	slog.Info("rate limiter backed by redis", slog.String("addr", opts.Addr))
	return rl, func() { client.Close() }, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	identRepo := repository.NewPostgresIdentityRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	studentRepo := repository.NewPostgresStudentRepo(db)
	companyRepo := repository.NewPostgresCompanyRepo(db)
	supervisorRepo := repository.NewPostgresSupervisorRepo(db)
	schoolRepo := repository.NewPostgresSchoolRepo(db)
	offerRepo := repository.NewPostgresOfferRepo(db)
	appRepo := repository.NewPostgresApplicationRepo(db)
	evalRepo := repository.NewPostgresEvaluationRepo(db)
	historyRepo := repository.NewPostgresHistoryRepo(db)
	statsRepo := repository.NewPostgresStatsRepo(db)
	settingRepo := repository.NewPostgresSettingRepo(db)

	// 3. 横断的なコンポーネントの初期化
	urlGuard := security.NewURLGuard()
	sanitizer := security.NewContentSanitizer()
	collector, metricsHandler := newMetrics()

	rateLimiter, closeLimiter, err := newRateLimiter(cfg)
	if err != nil {
		return err
	}
	defer closeLimiter()

	// 4. ドメインサービスの初期化
	oauthProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:       cfg.GoogleClientID,
		ClientSecret:   cfg.GoogleClientSecret,
		RedirectURL:    cfg.GoogleRedirectURL,
		AllowedDomains: cfg.GoogleAllowedDomains,
	})
	authService := auth.NewService(
		oauthProvider, userRepo, identRepo, sessionRepo,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)

	dirService := directory.NewService(
		userRepo, studentRepo, companyRepo, supervisorRepo, schoolRepo,
		careers.NewDetector(urlGuard),
	)
	offerService := offer.NewService(offerRepo, dirService, sanitizer)
	appService := application.NewService(appRepo, offerService, dirService, collector)
	evalService := evaluation.NewService(evalRepo, appRepo, dirService, sanitizer, collector)
	historyService := history.NewService(historyRepo, dirService)
	statsService := stats.NewService(statsRepo)
	settingService := setting.NewService(settingRepo)
	userService := user.NewService(userRepo, sessionRepo)

	// 5. ルーターの構築
	deps := &handler.RouterDeps{
		PrincipalFinder:   authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter:    rateLimiter,
		Logger:         slog.Default(),
		Metrics:        collector,
		MetricsHandler: metricsHandler,
		HealthChecker:  db,

		AuthService: authService,
		CurrentUser: handler.NewCurrentUserAdapter(authService, dirService),
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		OfferService:       offerService,
		ApplicationService: appService,
		EvaluationService:  evalService,
		HistoryService:     historyService,
		DirectoryService:   dirService,
		StatsService:       statsService,
		SettingService:     settingService,
		UserService:        userService,
	}

	router := handler.NewRouter(deps)

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 締切切れ募集のスイープと採用フィードの取り込みを定期実行し、
// 同じポートで/metricsを公開する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	// 2. リポジトリの初期化
	companyRepo := repository.NewPostgresCompanyRepo(db)
	offerRepo := repository.NewPostgresOfferRepo(db)

	// 3. ジョブの初期化
	collector, metricsHandler := newMetrics()
	importer := careers.NewImporter(
		offerRepo, security.NewURLGuard(), security.NewContentSanitizer(),
		collector, logger.ForComponent("careers-import"),
		cfg.CareersFetchTimeout, cfg.CareersFetchMaxSize, cfg.ImportedOfferTTL,
	)
	scheduler := careers.NewScheduler(companyRepo, importer, logger.ForComponent("careers-scheduler"), cfg.CareersMaxConcurrent)
	sweepJob := sweep.NewOfferSweepJob(db, collector, logger.ForComponent("offer-sweep"))
	cleanupJob := cleanup.NewSessionCleanupJob(db, logger.ForComponent("session-cleanup"))

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsHandler)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	metricsServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server listen error", slog.String("error", err.Error()))
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		metricsServer.Shutdown(shutdownCtx)
	}()

	slog.Info("worker starting",
		slog.Duration("sweep_interval", cfg.OfferSweepInterval),
		slog.Duration("careers_interval", cfg.CareersImportInterval),
		slog.Int("max_concurrent", cfg.CareersMaxConcurrent),
	)

	// スイープジョブをバックグラウンドで起動
	go sweepJob.Start(ctx, cfg.OfferSweepInterval)
	go cleanupJob.Start(ctx, cleanup.DefaultInterval)

	// 採用フィードスケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.CareersImportInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, err := database.SchemaVersion(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	slog.Info("database migrations completed successfully",
		slog.Uint64("schema_version", uint64(version)),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
