package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/musify/internal/access"
	"github.com/hitoshi/musify/internal/middleware"
	"github.com/hitoshi/musify/internal/view"
)

// Views はルーターが必要とする画面描画。view.Rendererが実装する。
type Views interface {
	PageRenderer
	middleware.GuardViews
}

// Recorder はHTTPステータスとガード判定を記録する。metrics.Collectorが実装する。
type Recorder interface {
	middleware.StatusRecorder
	middleware.GuardRecorder
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// セッション
	Stores         middleware.StoreResolver
	SessionService SessionService
	SettleWait     time.Duration
	AuthConfig     AuthHandlerConfig

	// 認可
	Checker access.Checker

	// 画面とカタログ
	Views   Views
	Catalog CatalogService

	// 保護
	RateLimiter   *middleware.RateLimiter
	MaxUploadSize int64

	// 運用
	Recorder       Recorder
	MetricsHandler http.Handler
	HealthChecker  HealthChecker
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Logging → Recovery → SecurityHeaders → RequestSize
//	→ CSRF → Session → (/login, /register のPOSTのみ RateLimit) → (/admin 配下のみ Guard)
//
// /health、/metrics、/static/* はCSRFとセッションの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Recorder))
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	if deps.MaxUploadSize > 0 {
		r.Use(chimw.RequestSize(deps.MaxUploadSize))
	}

	pageHandler := NewPageHandler(deps.Views, deps.HealthChecker)
	authHandler := NewAuthHandler(deps.SessionService, deps.Checker, deps.Views, deps.AuthConfig)
	adminHandler := NewAdminHandler(deps.Catalog, deps.Views, deps.AuthConfig.CookieSecure)

	csrf := middleware.NewCSRFMiddleware(middleware.CSRFConfig{
		CookieSecure: deps.AuthConfig.CookieSecure,
		CookieDomain: deps.AuthConfig.CookieDomain,
	})
	sessions := middleware.NewSessionMiddleware(deps.Stores, deps.SettleWait)
	guard := middleware.NewGuardMiddleware(deps.Checker, deps.Views, deps.Recorder)

	authLimit := func(next http.Handler) http.Handler { return next }
	if deps.RateLimiter != nil {
		authLimit = deps.RateLimiter.Middleware()
	}

	// --- セッション不要のルート ---
	r.Get("/health", pageHandler.Health)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}
	r.Handle("/static/*", view.StaticHandler())

	// --- セッションを解決するルート ---
	r.Group(func(r chi.Router) {
		r.Use(csrf)
		r.Use(sessions)

		// 公開ページ
		r.Get("/", pageHandler.Home)
		r.Get("/home", pageHandler.Home)
		r.Get("/landing", pageHandler.Landing)

		// 認証
		r.Get("/login", authHandler.LoginForm)
		r.With(authLimit).Post("/login", authHandler.Login)
		r.Get("/register", authHandler.RegisterForm)
		r.With(authLimit).Post("/register", authHandler.Register)
		r.Post("/logout", authHandler.Logout)
		r.Get("/auth/me", authHandler.Me)

		// 管理画面（ルートガード配下）
		r.Route("/admin", func(r chi.Router) {
			r.Use(guard)

			r.Get("/", adminHandler.Dashboard)
			r.Get("/create-album", adminHandler.CreateAlbumForm)
			r.Post("/create-album", adminHandler.CreateAlbum)

			r.Route("/album/{id}", func(r chi.Router) {
				r.Get("/", adminHandler.Album)
				r.Post("/songs", adminHandler.AddSong)
				r.Get("/delete", adminHandler.ConfirmDeleteAlbum)
				r.Post("/delete", adminHandler.DeleteAlbum)
				r.Get("/songs/{songId}/delete", adminHandler.ConfirmDeleteSong)
				r.Post("/songs/{songId}/delete", adminHandler.DeleteSong)
			})
		})
	})

	// 404ページもナビゲーションに認証状態を出すため、セッションを解決してから描画する
	r.NotFound(chi.Chain(csrf, sessions).HandlerFunc(pageHandler.NotFound).ServeHTTP)

	return r
}
