// Package view はサーバーサイドレンダリングのHTMLテンプレートを提供する。
package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/hitoshi/musify/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// レイアウト付きで描画するページ
const (
	PageHome          = "home"
	PageLogin         = "login"
	PageRegister      = "register"
	PageLanding       = "landing"
	PageAdmin         = "admin"
	PageCreateAlbum   = "create_album"
	PageAlbum         = "album"
	PageConfirmDelete = "confirm_delete"
	PageNotFound      = "not_found"
)

var layoutPages = []string{
	PageHome, PageLogin, PageRegister, PageLanding, PageAdmin,
	PageCreateAlbum, PageAlbum, PageConfirmDelete, PageNotFound,
}

// pendingRefreshSeconds はローディング画面が認証状態を再確認するまでの秒数。
const pendingRefreshSeconds = 1

// Page はレイアウトに渡す共通データ。
type Page struct {
	Title     string
	Session   model.Session
	CSRFToken string
	Flash     *Flash
	Data      any
}

// Renderer はテンプレートを保持し、HTMLレスポンスを書き込む。
type Renderer struct {
	pages   map[string]*template.Template
	loading *template.Template
	denied  *template.Template
	logger  *slog.Logger
}

// NewRenderer は埋め込みテンプレートを解析してRendererを生成する。
func NewRenderer(logger *slog.Logger) (*Renderer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Renderer{
		pages:  make(map[string]*template.Template, len(layoutPages)),
		logger: logger,
	}

	for _, name := range layoutPages {
		tpl, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		r.pages[name] = tpl
	}

	var err error
	if r.loading, err = template.ParseFS(templateFS, "templates/loading.html"); err != nil {
		return nil, fmt.Errorf("failed to parse loading template: %w", err)
	}
	if r.denied, err = template.ParseFS(templateFS, "templates/denied.html"); err != nil {
		return nil, fmt.Errorf("failed to parse denied template: %w", err)
	}

	return r, nil
}

// Render はレイアウト付きのページを描画する。
// 描画に失敗した場合は途中までの出力を捨てて500を返す。
func (r *Renderer) Render(w http.ResponseWriter, status int, name string, page Page) {
	tpl, ok := r.pages[name]
	if !ok {
		r.logger.Error("unknown page template", slog.String("page", name))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	r.write(w, status, tpl, "layout", page)
}

// Pending は認証状態の確定待ちを示すローディング画面を描画する。
// 保護コンテンツは含まず、短い間隔で同じURLを再読み込みする。
func (r *Renderer) Pending(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	status := http.StatusOK
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		w.Header().Set("Retry-After", fmt.Sprint(pendingRefreshSeconds))
		status = http.StatusServiceUnavailable
	}
	r.write(w, status, r.loading, "loading.html", struct{ RefreshSeconds int }{pendingRefreshSeconds})
}

// Denied はアクセス拒否画面を描画する。唯一のリンクは/landingへ戻る。
func (r *Renderer) Denied(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	r.write(w, http.StatusForbidden, r.denied, "denied.html", nil)
}

func (r *Renderer) write(w http.ResponseWriter, status int, tpl *template.Template, name string, data any) {
	var buf bytes.Buffer
	if err := tpl.ExecuteTemplate(&buf, name, data); err != nil {
		r.logger.Error("failed to render template",
			slog.String("template", name),
			slog.String("error", err.Error()),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// StaticHandler は埋め込みの静的ファイルを配信するハンドラーを返す。
// /static/ プレフィックスを外したパスで参照する。
func StaticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}
