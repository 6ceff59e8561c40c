package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/musify/internal/access"
	"github.com/hitoshi/musify/internal/middleware"
	"github.com/hitoshi/musify/internal/model"
	"github.com/hitoshi/musify/internal/view"
)

// 認証フローでユーザーに通知するメッセージ
const (
	msgLoginSucceeded    = "Login successful! Redirecting..."
	msgAccountCreated    = "Account created successfully! Redirecting to login..."
	msgLoggedOut         = "You have been logged out."
	postLoginRedirect    = "/landing"
	postLogoutRedirect   = "/home"
	postRegisterRedirect = middleware.LoginPath
)

// SessionService は認証ハンドラーが必要とするセッション操作。session.Managerが実装する。
type SessionService interface {
	Login(ctx context.Context, previousID, email, password string) (string, *model.Identity, error)
	Register(ctx context.Context, email, password, displayName string) error
	Logout(ctx context.Context, sessionID string) error
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はログイン・登録・ログアウトのHTTPハンドラー。
type AuthHandler struct {
	sessions SessionService
	checker  access.Checker
	renderer PageRenderer
	config   AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(sessions SessionService, checker access.Checker, renderer PageRenderer, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		sessions: sessions,
		checker:  checker,
		renderer: renderer,
		config:   config,
	}
}

// loginPageData はログイン画面に再表示する入力値。
type loginPageData struct {
	Email string
}

// registerPageData は登録画面に再表示する入力値。
type registerPageData struct {
	DisplayName string
	Email       string
}

// LoginForm はログイン画面を表示する。
// GET /login
func (h *AuthHandler) LoginForm(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, http.StatusOK, view.PageLogin, newPage(w, r, "Login", loginPageData{}))
}

// Login はメールアドレスとパスワードでサインインする。
// 成功時はセッションIDを新しく発行してCookieに設定し、/landingへリダイレクトする。
// POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	form := loginForm{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}
	data := loginPageData{Email: form.Email}

	if msg := checkForm(form); msg != "" {
		renderFormError(h.renderer, w, r, http.StatusBadRequest, view.PageLogin, "Login", data, msg)
		return
	}

	previousID := middleware.SessionIDFromContext(r.Context())
	sessionID, _, err := h.sessions.Login(r.Context(), previousID, form.Email, form.Password)
	if err != nil {
		apiErr, ok := model.AsAPIError(err)
		if !ok {
			slog.Error("login failed", slog.String("error", err.Error()))
			apiErr = model.NewLoginFailedError()
		}
		renderFormError(h.renderer, w, r, middleware.StatusForError(apiErr), view.PageLogin, "Login", data, apiErr.Message)
		return
	}

	h.setSessionCookie(w, sessionID, h.config.SessionMaxAge)
	view.SetFlash(w, view.FlashSuccess, msgLoginSucceeded, h.config.CookieSecure)
	http.Redirect(w, r, postLoginRedirect, http.StatusSeeOther)
}

// RegisterForm はアカウント登録画面を表示する。
// GET /register
func (h *AuthHandler) RegisterForm(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, http.StatusOK, view.PageRegister, newPage(w, r, "Sign up", registerPageData{}))
}

// Register はアカウントを作成し、表示名を設定する。
// セッションは作成せず、成功時は/loginへリダイレクトする。
// POST /register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	form := registerForm{
		DisplayName:     strings.TrimSpace(r.PostFormValue("displayName")),
		Email:           strings.TrimSpace(r.PostFormValue("email")),
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirmPassword"),
	}
	data := registerPageData{DisplayName: form.DisplayName, Email: form.Email}

	if msg := checkForm(form); msg != "" {
		renderFormError(h.renderer, w, r, http.StatusBadRequest, view.PageRegister, "Sign up", data, msg)
		return
	}

	if err := h.sessions.Register(r.Context(), form.Email, form.Password, form.DisplayName); err != nil {
		apiErr, ok := model.AsAPIError(err)
		if !ok {
			slog.Error("registration failed", slog.String("error", err.Error()))
			apiErr = model.NewRegistrationFailedError()
		}
		renderFormError(h.renderer, w, r, middleware.StatusForError(apiErr), view.PageRegister, "Sign up", data, apiErr.Message)
		return
	}

	view.SetFlash(w, view.FlashSuccess, msgAccountCreated, h.config.CookieSecure)
	http.Redirect(w, r, postRegisterRedirect, http.StatusSeeOther)
}

// Logout はセッションを破棄する。
// IdP側の破棄に失敗してもIdentityとCookieは必ず消去し、失敗は通知で伝える。
// POST /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionIDFromContext(r.Context())

	kind, msg := view.FlashSuccess, msgLoggedOut
	if err := h.sessions.Logout(r.Context(), sessionID); err != nil {
		kind, msg = view.FlashError, model.NewLogoutFailedError().Message
		if apiErr, ok := model.AsAPIError(err); ok {
			msg = apiErr.Message
		}
	}

	h.setSessionCookie(w, "", -1)
	view.SetFlash(w, kind, msg, h.config.CookieSecure)
	http.Redirect(w, r, postLogoutRedirect, http.StatusSeeOther)
}

// meResponse は/auth/meのレスポンス。
type meResponse struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Admin       bool   `json:"admin"`
}

// Me は現在のログインユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	s := middleware.SessionFromContext(r.Context())
	if s.Loading {
		w.Header().Set("Retry-After", "1")
		middleware.WriteErrorResponse(w, http.StatusServiceUnavailable, &model.APIError{
			Code:     "SESSION_PENDING",
			Message:  "Session is still loading",
			Category: model.CategorySystem,
			Action:   "Retry shortly.",
		})
		return
	}
	if !s.Authenticated() {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, &model.APIError{
			Code:     "UNAUTHORIZED",
			Message:  "Not logged in",
			Category: model.CategoryAuth,
			Action:   "Log in and try again.",
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(meResponse{
		Email:       s.Identity.Email,
		DisplayName: s.Identity.DisplayName,
		Admin:       access.Decide(s, h.checker) == access.StateAllowed,
	})
}

// setSessionCookie はセッションCookieを設定する。maxAgeが負の場合は削除する。
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    value,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
