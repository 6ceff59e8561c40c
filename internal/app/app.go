package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/musify/internal/access"
	"github.com/hitoshi/musify/internal/catalog"
	"github.com/hitoshi/musify/internal/config"
	"github.com/hitoshi/musify/internal/database"
	"github.com/hitoshi/musify/internal/handler"
	"github.com/hitoshi/musify/internal/identity"
	"github.com/hitoshi/musify/internal/jsonstore"
	"github.com/hitoshi/musify/internal/logger"
	"github.com/hitoshi/musify/internal/media"
	"github.com/hitoshi/musify/internal/metrics"
	"github.com/hitoshi/musify/internal/middleware"
	"github.com/hitoshi/musify/internal/repository"
	"github.com/hitoshi/musify/internal/security"
	"github.com/hitoshi/musify/internal/session"
	"github.com/hitoshi/musify/internal/view"
	"github.com/hitoshi/musify/internal/worker/cleanup"
)

const (
	dbPingTimeout       = 5 * time.Second
	sessionRestoreLimit = 10 * time.Second
	shutdownTimeout     = 30 * time.Second
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
		return runMigrate(cfg, migrateDirection(args))
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Ping(context.Background(), db, dbPingTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// policyFor は設定の管理者リストから認可ポリシーを作る。
// ADMIN_EMAILSが空の場合は組み込みのリストを使う。
func policyFor(cfg *config.Config) *access.Policy {
	if len(cfg.AdminEmails) > 0 {
		return access.NewPolicy(cfg.AdminEmails...)
	}
	return access.DefaultPolicy()
}

// runServe は管理画面サーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	log := slog.Default()

	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 3. 外部サービスのクライアント
	httpClient := &http.Client{Timeout: cfg.HTTPClientTimeout}

	provider := identity.NewFirebaseProvider(identity.FirebaseConfig{
		APIKey:     cfg.IdentityAPIKey,
		BaseURL:    cfg.IdentityBaseURL,
		TokenURL:   cfg.IdentityTokenURL,
		HTTPClient: httpClient,
	})

	store := jsonstore.NewClient(cfg.StoreBaseURL, httpClient, log)
	store.SetRecorder(collector)

	mediaGuard := security.NewMediaURLGuard()
	uploader := media.NewCloudinaryUploader(media.Config{
		CloudName:   cfg.MediaCloudName,
		ImagePreset: cfg.MediaImagePreset,
		AudioPreset: cfg.MediaAudioPreset,
		BaseURL:     cfg.MediaBaseURL,
		HTTPClient:  mediaGuard.NewSafeClient(cfg.HTTPClientTimeout),
		Validator:   mediaGuard,
	}, log)
	uploader.SetRecorder(collector)

	// 4. セッション
	sessionRepo := repository.NewPostgresSessionRepo(db)
	manager := session.NewManager(provider, sessionRepo, log, session.ManagerConfig{
		SessionMaxAge:  time.Duration(cfg.SessionMaxAge) * time.Second,
		IdleTTL:        cfg.SessionIdleTTL,
		RestoreTimeout: sessionRestoreLimit,
	})
	manager.SetLoginRecorder(collector)
	defer manager.Close()

	// 5. カタログ
	catalogService := catalog.NewService(store, uploader, security.NewTextSanitizer(), log)
	catalogService.SetActiveUserCounter(manager)

	// 6. 画面
	renderer, err := view.NewRenderer(log)
	if err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}

	// 7. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.AuthRateLimiterConfig(cfg.RateLimitAuth))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:         log,
		Stores:         manager,
		SessionService: manager,
		SettleWait:     cfg.SessionSettleWait,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},
		Checker:        policyFor(cfg),
		Views:          renderer,
		Catalog:        catalogService,
		RateLimiter:    rateLimiter,
		MaxUploadSize:  cfg.MediaMaxUploadSize,
		Recorder:       collector,
		MetricsHandler: metrics.Handler(registry),
		HealthChecker:  db,
	})

	// 8. 期限切れセッションの掃除をバックグラウンドで実行
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go cleanup.NewCleanupJob(sessionRepo, log).Loop(ctx, cfg.SessionCleanupInterval)

	// 9. HTTPサーバーの起動
	// アップロードを含むリクエストがあるため、書き込みタイムアウトは外部呼び出しより長くとる
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.HTTPClientTimeout + 15*time.Second,
		WriteTimeout: 2*cfg.HTTPClientTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("admin server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serveErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down admin server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("admin server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、期限切れセッションの定期削除を行う。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	log := slog.Default()

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	job := cleanup.NewCleanupJob(repository.NewPostgresSessionRepo(db), log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.SessionCleanupInterval),
	)

	// メインgoroutineで実行（ブロッキング）
	job.Loop(ctx, cfg.SessionCleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// directionが"down"の場合は直近の1件を戻し、それ以外はすべての未適用マイグレーションを適用する。
func runMigrate(cfg *config.Config, direction string) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		slog.String("direction", direction),
	)

	if direction == migrateDown {
		if err := database.RollbackMigration(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
	} else if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := database.SchemaVersion(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
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
