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

	"github.com/hitoshi/five/internal/config"
	"github.com/hitoshi/five/internal/database"
	"github.com/hitoshi/five/internal/events"
	"github.com/hitoshi/five/internal/handler"
	"github.com/hitoshi/five/internal/logger"
	"github.com/hitoshi/five/internal/metrics"
	"github.com/hitoshi/five/internal/middleware"
	"github.com/hitoshi/five/internal/notification"
	"github.com/hitoshi/five/internal/place"
	"github.com/hitoshi/five/internal/places"
	"github.com/hitoshi/five/internal/presence"
	"github.com/hitoshi/five/internal/profile"
	"github.com/hitoshi/five/internal/repository"
	"github.com/hitoshi/five/internal/security"
	"github.com/hitoshi/five/internal/user"
	"github.com/hitoshi/five/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// .envがあれば読み込み、JSON構造化ログをセットアップしてから環境変数のConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. .envの読み込み（既存の環境変数は上書きしない）
	dotEnvErr := config.LoadDotEnv()

	// 2. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))
	if dotEnvErr != nil {
		slog.Warn("failed to load .env", slog.String("error", dotEnvErr.Error()))
	}

	// 3. 環境変数から設定を読み込む
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
		return runMigrate(cfg, ParseMigrateDirection(args))
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL, database.PoolOptions{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")
	return db, nil
}

// newPlacesSearcher は外部プレイスプロバイダのクライアントを構築する。
// SSRF対策済みのHTTPクライアントをサーキットブレーカーで包む。
func newPlacesSearcher(cfg *config.Config, collector metrics.MetricsCollector) (places.Searcher, error) {
	guard := security.NewOutboundGuard()
	if err := guard.ValidateEndpoint(cfg.PlacesEndpoint); err != nil {
		return nil, fmt.Errorf("invalid places endpoint: %w", err)
	}

	client := places.NewClient(
		guard.NewSafeClient(cfg.PlacesTimeout),
		places.Config{
			APIKey:   cfg.PlacesAPIKey,
			Endpoint: cfg.PlacesEndpoint,
			Types:    cfg.PlacesTypes,
			Timeout:  cfg.PlacesTimeout,
		},
		collector, slog.Default(),
	)
	return places.NewBreakerClient(client, places.BreakerConfig{
		MaxConsecutiveFailures: uint32(cfg.PlacesBreakerFailures),
		OpenTimeout:            cfg.PlacesBreakerTimeout,
	}, collector, slog.Default()), nil
}

// newPublisher はNATS_URLが設定されていればNATSへ接続し、未設定ならNopPublisherを返す。
func newPublisher(cfg *config.Config) (events.Publisher, error) {
	if cfg.NATSURL == "" {
		slog.Info("NATS_URL is not set, check-in events are not published")
		return events.NopPublisher{}, nil
	}
	pub, err := events.Connect(events.ConnectConfig{
		URL:     cfg.NATSURL,
		Subject: cfg.EventsSubject,
	}, slog.Default())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return pub, nil
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

	// 2. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 3. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	placeRepo := repository.NewPostgresPlaceRepo(db)
	profileRepo := repository.NewPostgresProfileRepo(db)
	notificationRepo := repository.NewPostgresNotificationRepo(db)

	// 4. 外部連携の初期化
	searcher, err := newPlacesSearcher(cfg, collector)
	if err != nil {
		return err
	}
	publisher, err := newPublisher(cfg)
	if err != nil {
		return err
	}
	defer publisher.Close()

	// 5. ドメインサービスの初期化
	serializer := profile.NewSerializer(cfg.StaticURL)
	ingestService := place.NewIngestService(searcher, placeRepo, collector, slog.Default())
	placeService := place.NewService(placeRepo)
	notificationService := notification.NewService(profileRepo, notificationRepo, serializer, collector, slog.Default())
	presenceService := presence.NewService(placeRepo, profileRepo, notificationService, publisher, serializer, collector, slog.Default())
	profileService := profile.NewService(profileRepo, serializer, security.NewTextSanitizer(), slog.Default())
	userService := user.NewService(userRepo, slog.Default())

	// 6. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.PerMinute(cfg.RateLimitGeneral, cfg.RateLimitSearch))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		SessionFinder:     sessionRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter:      rateLimiter,
		SignUpRateLimit:  cfg.SignUpRateLimit,
		SignUpRateWindow: time.Hour,

		HealthChecker:  db,
		MetricsHandler: metrics.Handler(reg),

		PlaceSearch: ingestService,
		PlaceLookup: placeService,

		Presence:      presenceService,
		Notifications: notificationService,

		Profiles: profileService,
		Users:    handler.NewUserServiceAdapter(userService),
	})

	// 7. HTTPサーバーの起動
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

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serveErr:
		return fmt.Errorf("server listen error: %w", err)
	}
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
// 通知の保持期間切れ削除ジョブを実行し、シグナル受信まで待機する。
func runWorker(cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	notificationRepo := repository.NewPostgresNotificationRepo(db)
	cleanupJob := cleanup.NewCleanupJob(notificationRepo, slog.Default(), nil, cfg.NotificationRetentionDays)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("worker starting",
		slog.Int("retention_days", cfg.NotificationRetentionDays),
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
	)

	// ジョブが無効でもシグナルを受けるまで常駐する
	cleanupJob.Start(ctx, cfg.CleanupInterval)
	<-ctx.Done()

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// directionがMigrateDownの場合は直近の1つを取り消し、それ以外は未適用分をすべて適用する。
func runMigrate(cfg *config.Config, direction MigrateDirection) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		slog.String("direction", string(direction)),
	)

	if direction == MigrateDown {
		if err := database.RollbackLast(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
		slog.Info("database migration rolled back")
		return nil
	}

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
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
