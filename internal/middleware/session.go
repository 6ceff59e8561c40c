// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/musify/internal/model"
	"github.com/hitoshi/musify/internal/session"
)

// SessionCookieName はブラウザセッションIDを保持するCookieの名前。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	sessionContextKey   = contextKey("session")
	storeContextKey     = contextKey("session_store")
	sessionIDContextKey = contextKey("session_id")
	csrfTokenContextKey = contextKey("csrf_token")
	emailHookContextKey = contextKey("email_hook")
)

// StoreResolver はセッションIDからStoreを取得するインターフェース。
// session.Managerが実装する。
type StoreResolver interface {
	Resolve(sessionID string) *session.Store
}

// NewSessionMiddleware はCookieのセッションIDに対応するStoreを解決し、
// 認証状態のスナップショットをリクエストコンテキストに注入する。
// 認証状態が未確定の場合はsettleWaitまで確定を待ち、それでも未確定なら
// Loadingのスナップショットのまま後続に渡す。未認証でも拒否はしない。
func NewSessionMiddleware(resolver StoreResolver, settleWait time.Duration) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var sessionID string
			if cookie, err := r.Cookie(SessionCookieName); err == nil {
				sessionID = cookie.Value
			}

			st := resolver.Resolve(sessionID)
			snapshot := st.AwaitSettled(r.Context(), settleWait)

			if hook, ok := r.Context().Value(emailHookContextKey).(*string); ok {
				*hook = snapshot.Email()
			}

			ctx := context.WithValue(r.Context(), storeContextKey, st)
			ctx = context.WithValue(ctx, sessionIDContextKey, sessionID)
			ctx = ContextWithSession(ctx, snapshot)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFromContext はリクエストコンテキストから認証状態のスナップショットを取得する。
// セッションミドルウェアを通過していない場合は未認証で確定済みの値を返す。
func SessionFromContext(ctx context.Context) model.Session {
	s, ok := ctx.Value(sessionContextKey).(model.Session)
	if !ok {
		return model.Session{}
	}
	return s
}

// StoreFromContext はリクエストに紐づくStoreを返す。
func StoreFromContext(ctx context.Context) (*session.Store, bool) {
	st, ok := ctx.Value(storeContextKey).(*session.Store)
	return st, ok && st != nil
}

// SessionIDFromContext はリクエストのセッションIDを返す。Cookieがない場合は空文字列。
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDContextKey).(string)
	return id
}

// ContextWithSession はコンテキストに認証状態のスナップショットを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithSession(ctx context.Context, s model.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, s)
}

// withEmailHook はセッション解決後にメールアドレスを書き戻す先をコンテキストに置く。
func withEmailHook(ctx context.Context, email *string) context.Context {
	return context.WithValue(ctx, emailHookContextKey, email)
}
