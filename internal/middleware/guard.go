package middleware

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/musify/internal/access"
)

// LoginPath は未認証時のリダイレクト先。
const LoginPath = "/login"

// GuardViews はガードが描画する画面。view.Rendererが実装する。
type GuardViews interface {
	Pending(w http.ResponseWriter, r *http.Request)
	Denied(w http.ResponseWriter, r *http.Request)
}

// GuardRecorder はガードの判定結果を記録する。
type GuardRecorder interface {
	RecordGuardDecision(state string)
}

// NewGuardMiddleware は保護ルートへのアクセスを制御するミドルウェアを返す。
// 判定はリクエストごとにコンテキストのスナップショットからやり直す。
//   - 未確定: ローディング画面のみを表示し、リダイレクトしない
//   - 未認証: /login へリダイレクトする
//   - 管理者以外: アクセス拒否画面を表示する
//   - 管理者: 後続のハンドラーをそのまま実行する
func NewGuardMiddleware(checker access.Checker, views GuardViews, rec GuardRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s := SessionFromContext(r.Context())
			state := access.Decide(s, checker)
			if rec != nil {
				rec.RecordGuardDecision(state.String())
			}

			switch state {
			case access.StateAllowed:
				next.ServeHTTP(w, r)
			case access.StatePending:
				views.Pending(w, r)
			case access.StateUnauthenticated:
				http.Redirect(w, r, LoginPath, http.StatusSeeOther)
			default:
				slog.Warn("admin access denied",
					slog.String("email", s.Email()),
					slog.String("path", r.URL.Path),
				)
				views.Denied(w, r)
			}
		})
	}
}
