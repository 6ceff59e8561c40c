package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/hitoshi/musify/internal/middleware"
	"github.com/hitoshi/musify/internal/model"
)

func TestAuthHandler_Login_Success(t *testing.T) {
	env := newTestEnv(t, anonSource())

	var gotPrev, gotEmail, gotPassword string
	env.sessions.loginFn = func(ctx context.Context, previousID, email, password string) (string, *model.Identity, error) {
		gotPrev, gotEmail, gotPassword = previousID, email, password
		return "new-session", adminIdentity, nil
	}

	req := postForm("/login", url.Values{"email": {"  admin@musify.app "}, "password": {"secret1"}})
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "old-session"})
	w := env.do(req)

	resp := w.Result()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/landing" {
		t.Errorf("Location = %q, want /landing", loc)
	}
	if gotPrev != "old-session" || gotEmail != "admin@musify.app" || gotPassword != "secret1" {
		t.Errorf("Login(%q, %q, %q)", gotPrev, gotEmail, gotPassword)
	}

	c := findCookie(resp, middleware.SessionCookieName)
	if c == nil || c.Value != "new-session" || !c.HttpOnly || c.MaxAge != 3600 {
		t.Errorf("session cookie = %+v", c)
	}
	if findCookie(resp, "flash") == nil {
		t.Error("success notification should be stored for the next page")
	}
}

func TestAuthHandler_Login_ValidationBlocksProvider(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
		wantMsg  string
	}{
		{"short password", "admin@musify.app", "12345", "Password must be at least 6 characters!"},
		{"missing email", "", "secret1", "Email is required!"},
		{"malformed email", "not-an-email", "secret1", "Invalid email address!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, anonSource())
			called := false
			env.sessions.loginFn = func(ctx context.Context, previousID, email, password string) (string, *model.Identity, error) {
				called = true
				return "", nil, nil
			}

			w := env.do(postForm("/login", url.Values{"email": {tt.email}, "password": {tt.password}}))

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
			if called {
				t.Error("provider must not be called when the form is invalid")
			}
			if !strings.Contains(w.Body.String(), tt.wantMsg) {
				t.Errorf("body should contain %q", tt.wantMsg)
			}
		})
	}
}

func TestAuthHandler_Login_ProviderErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"wrong password", model.NewWrongPasswordError(), http.StatusUnauthorized, "Incorrect password!"},
		{"account not found", fmt.Errorf("wrapped: %w", model.NewAccountNotFoundError()), http.StatusUnauthorized, "No account found with this email!"},
		{"unexpected", errors.New("db down"), http.StatusUnauthorized, "Login failed. Please try again!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, anonSource())
			env.sessions.loginFn = func(ctx context.Context, previousID, email, password string) (string, *model.Identity, error) {
				return "", nil, tt.err
			}

			w := env.do(postForm("/login", url.Values{"email": {"a@x.com"}, "password": {"secret1"}}))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			body := w.Body.String()
			if !strings.Contains(body, tt.wantMsg) {
				t.Errorf("body should contain %q", tt.wantMsg)
			}
			if !strings.Contains(body, `value="a@x.com"`) {
				t.Error("email should be kept in the form")
			}
			if findCookie(w.Result(), middleware.SessionCookieName) != nil {
				t.Error("session cookie must not be set on failure")
			}
		})
	}
}

func TestAuthHandler_Register(t *testing.T) {
	t.Run("success redirects to login", func(t *testing.T) {
		env := newTestEnv(t, anonSource())
		var gotName string
		env.sessions.registerFn = func(ctx context.Context, email, password, displayName string) error {
			gotName = displayName
			return nil
		}

		w := env.do(postForm("/register", url.Values{
			"displayName":     {"Alice"},
			"email":           {"alice@example.com"},
			"password":        {"secret1"},
			"confirmPassword": {"secret1"},
		}))

		if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/login" {
			t.Errorf("response = %d %q, want 303 /login", w.Code, w.Header().Get("Location"))
		}
		if gotName != "Alice" {
			t.Errorf("displayName = %q", gotName)
		}
		if findCookie(w.Result(), middleware.SessionCookieName) != nil {
			t.Error("registration must not create a session")
		}
	})

	t.Run("mismatch is reported before length", func(t *testing.T) {
		env := newTestEnv(t, anonSource())
		w := env.do(postForm("/register", url.Values{
			"displayName":     {"Alice"},
			"email":           {"alice@example.com"},
			"password":        {"abc"},
			"confirmPassword": {"abd"},
		}))
		if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "Passwords do not match!") {
			t.Errorf("response = %d, body missing mismatch message", w.Code)
		}
	})

	t.Run("email in use", func(t *testing.T) {
		env := newTestEnv(t, anonSource())
		env.sessions.registerFn = func(ctx context.Context, email, password, displayName string) error {
			return model.NewEmailInUseError()
		}
		w := env.do(postForm("/register", url.Values{
			"displayName":     {"Alice"},
			"email":           {"alice@example.com"},
			"password":        {"secret1"},
			"confirmPassword": {"secret1"},
		}))
		if !strings.Contains(w.Body.String(), "Email already registered!") {
			t.Error("provider error message should be shown")
		}
	})
}

func TestAuthHandler_Logout(t *testing.T) {
	tests := []struct {
		name      string
		logoutErr error
	}{
		{"success", nil},
		{"provider failure still clears cookie", fmt.Errorf("%w: timeout", model.NewLogoutFailedError())},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, adminSource())
			var gotID string
			env.sessions.logoutFn = func(ctx context.Context, sessionID string) error {
				gotID = sessionID
				return tt.logoutErr
			}

			req := postForm("/logout", nil)
			req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "sess-1"})
			w := env.do(req)

			resp := w.Result()
			if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/home" {
				t.Errorf("response = %d %q, want 303 /home", resp.StatusCode, resp.Header.Get("Location"))
			}
			if gotID != "sess-1" {
				t.Errorf("Logout(%q), want sess-1", gotID)
			}
			c := findCookie(resp, middleware.SessionCookieName)
			if c == nil || c.MaxAge >= 0 || c.Value != "" {
				t.Errorf("session cookie should be cleared, got %+v", c)
			}
		})
	}
}

func TestAuthHandler_Me(t *testing.T) {
	tests := []struct {
		name       string
		src        *fakeSource
		wantStatus int
		wantAdmin  bool
	}{
		{"admin", adminSource(), http.StatusOK, true},
		{"regular user", userSource(), http.StatusOK, false},
		{"anonymous", anonSource(), http.StatusUnauthorized, false},
		{"pending", pendingSource(), http.StatusServiceUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.src)
			w := env.do(httptest.NewRequest(http.MethodGet, "/auth/me", nil))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var got meResponse
			if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.Admin != tt.wantAdmin || got.Email != tt.src.identity.Email {
				t.Errorf("me = %+v", got)
			}
		})
	}
}
