// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/musify/internal/middleware"
	"github.com/hitoshi/musify/internal/view"
)

// PageRenderer はレイアウト付きのHTMLページを描画する。view.Rendererが実装する。
type PageRenderer interface {
	Render(w http.ResponseWriter, status int, name string, page view.Page)
}

// HealthChecker は依存サービスの疎通確認を行う。*sql.DBが実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// newPage はリクエストの認証状態とCSRFトークン、保存済みの通知を持つPageを組み立てる。
// 通知のCookieを削除するため、レスポンスヘッダーの書き込み前に呼ぶ。
func newPage(w http.ResponseWriter, r *http.Request, title string, data any) view.Page {
	return view.Page{
		Title:     title,
		Session:   middleware.SessionFromContext(r.Context()),
		CSRFToken: middleware.CSRFToken(r.Context()),
		Flash:     view.PopFlash(w, r),
		Data:      data,
	}
}

// renderFormError は入力値を保ったままフォーム画面をエラー通知付きで再表示する。
func renderFormError(renderer PageRenderer, w http.ResponseWriter, r *http.Request, status int, name, title string, data any, msg string) {
	page := newPage(w, r, title, data)
	page.Flash = &view.Flash{Kind: view.FlashError, Message: msg}
	renderer.Render(w, status, name, page)
}

// PageHandler は公開ページのHTTPハンドラー。
type PageHandler struct {
	renderer PageRenderer
	health   HealthChecker
}

// NewPageHandler はPageHandlerを生成する。healthがnilの場合は常に正常と応答する。
func NewPageHandler(renderer PageRenderer, health HealthChecker) *PageHandler {
	return &PageHandler{
		renderer: renderer,
		health:   health,
	}
}

// Home はトップページを表示する。
// GET /, GET /home
func (h *PageHandler) Home(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, http.StatusOK, view.PageHome, newPage(w, r, "", nil))
}

// Landing はログイン後のページを表示する。
// GET /landing
func (h *PageHandler) Landing(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, http.StatusOK, view.PageLanding, newPage(w, r, "Welcome", nil))
}

// NotFound は存在しないパスへのアクセスに404ページを返す。
func (h *PageHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, http.StatusNotFound, view.PageNotFound, newPage(w, r, "Not Found", nil))
}

// Health はサーバーとDBの疎通状態を返す。
// GET /health
func (h *PageHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]string{"status": "ok"}

	if h.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := h.health.PingContext(ctx); err != nil {
			slog.Error("health check failed", slog.String("error", err.Error()))
			status = http.StatusServiceUnavailable
			body = map[string]string{"status": "unavailable"}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
