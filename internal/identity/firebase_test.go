package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/musify/internal/model"
)

// newIdentityServer はaccounts:<method>ごとのハンドラーを持つテスト用IdPを立てる。
func newIdentityServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("missing api key, query = %q", r.URL.RawQuery)
		}
		method := strings.TrimPrefix(r.URL.Path, "/accounts:")
		h, ok := handlers[method]
		if !ok {
			t.Errorf("unexpected method %q", method)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeProviderError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": 400, "message": message},
	})
}

func TestFirebaseProvider_SignIn_Success(t *testing.T) {
	srv := newIdentityServer(t, map[string]http.HandlerFunc{
		"signInWithPassword": func(w http.ResponseWriter, r *http.Request) {
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			if body["email"] != "admin@x.com" || body["password"] != "secret1" {
				t.Errorf("unexpected body: %v", body)
			}
			if body["returnSecureToken"] != true {
				t.Errorf("returnSecureToken = %v, want true", body["returnSecureToken"])
			}
			json.NewEncoder(w).Encode(map[string]any{
				"localId":      "uid-1",
				"email":        "admin@x.com",
				"displayName":  "Admin",
				"idToken":      "id-token",
				"refreshToken": "refresh-token",
				"expiresIn":    "3600",
			})
		},
	})

	p := NewFirebaseProvider(FirebaseConfig{APIKey: "test-key", BaseURL: srv.URL})
	cred, err := p.SignIn(context.Background(), "admin@x.com", "secret1")
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}

	if cred.LocalID != "uid-1" || cred.Email != "admin@x.com" || cred.DisplayName != "Admin" {
		t.Errorf("unexpected credential: %+v", cred)
	}
	if cred.IDToken != "id-token" || cred.RefreshToken != "refresh-token" {
		t.Errorf("unexpected tokens: %+v", cred)
	}
	if cred.ExpiresIn != time.Hour {
		t.Errorf("ExpiresIn = %v, want %v", cred.ExpiresIn, time.Hour)
	}

	id := cred.Identity()
	if id.Email != "admin@x.com" || id.DisplayName != "Admin" || id.LocalID != "uid-1" {
		t.Errorf("Identity() = %+v", id)
	}
}

func TestFirebaseProvider_SignIn_ProviderErrorsMapToAuthErrors(t *testing.T) {
	tests := []struct {
		message  string
		wantCode string
	}{
		{"EMAIL_NOT_FOUND", model.ErrCodeAccountNotFound},
		{"INVALID_PASSWORD", model.ErrCodeWrongPassword},
		{"INVALID_EMAIL", model.ErrCodeInvalidEmail},
		{"INVALID_LOGIN_CREDENTIALS", model.ErrCodeInvalidCredential},
		{"USER_DISABLED", model.ErrCodeLoginFailed},
		{"TOO_MANY_ATTEMPTS_TRY_LATER : Access to this account has been temporarily disabled", model.ErrCodeLoginFailed},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			srv := newIdentityServer(t, map[string]http.HandlerFunc{
				"signInWithPassword": func(w http.ResponseWriter, r *http.Request) {
					writeProviderError(w, tt.message)
				},
			})
			p := NewFirebaseProvider(FirebaseConfig{APIKey: "test-key", BaseURL: srv.URL})

			_, err := p.SignIn(context.Background(), "a@b.c", "secret1")
			if err == nil {
				t.Fatal("expected error")
			}
			if got := SignInError(err); got.Code != tt.wantCode {
				t.Errorf("SignInError().Code = %q, want %q", got.Code, tt.wantCode)
			}
		})
	}
}

func TestFirebaseProvider_SignUp_WeakPasswordDetailIsSplit(t *testing.T) {
	srv := newIdentityServer(t, map[string]http.HandlerFunc{
		"signUp": func(w http.ResponseWriter, r *http.Request) {
			writeProviderError(w, "WEAK_PASSWORD : Password should be at least 6 characters")
		},
	})
	p := NewFirebaseProvider(FirebaseConfig{APIKey: "test-key", BaseURL: srv.URL})

	_, err := p.SignUp(context.Background(), "a@b.c", "123")
	if err == nil {
		t.Fatal("expected error")
	}

	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %T", err)
	}
	if pe.Reason != "WEAK_PASSWORD" {
		t.Errorf("Reason = %q, want %q", pe.Reason, "WEAK_PASSWORD")
	}
	if pe.Detail != "Password should be at least 6 characters" {
		t.Errorf("Detail = %q", pe.Detail)
	}
	if got := SignUpError(err); got.Code != model.ErrCodeWeakPassword {
		t.Errorf("SignUpError().Code = %q, want %q", got.Code, model.ErrCodeWeakPassword)
	}
}

func TestSignUpError_EmailExistsAndGeneric(t *testing.T) {
	if got := SignUpError(&ProviderError{Reason: "EMAIL_EXISTS"}); got.Code != model.ErrCodeEmailInUse {
		t.Errorf("EMAIL_EXISTS -> %q, want %q", got.Code, model.ErrCodeEmailInUse)
	}
	if got := SignUpError(errors.New("dial tcp: refused")); got.Code != model.ErrCodeRegistrationFailed {
		t.Errorf("transport error -> %q, want %q", got.Code, model.ErrCodeRegistrationFailed)
	}
	if got := SignInError(errors.New("dial tcp: refused")); got.Code != model.ErrCodeLoginFailed {
		t.Errorf("transport error -> %q, want %q", got.Code, model.ErrCodeLoginFailed)
	}
}

func TestFirebaseProvider_UpdateProfile_SendsDisplayName(t *testing.T) {
	var got map[string]any
	srv := newIdentityServer(t, map[string]http.HandlerFunc{
		"update": func(w http.ResponseWriter, r *http.Request) {
			json.NewDecoder(r.Body).Decode(&got)
			w.Write([]byte(`{}`))
		},
	})
	p := NewFirebaseProvider(FirebaseConfig{APIKey: "test-key", BaseURL: srv.URL})

	if err := p.UpdateProfile(context.Background(), "id-token", "New Name"); err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if got["idToken"] != "id-token" || got["displayName"] != "New Name" {
		t.Errorf("unexpected body: %v", got)
	}
}

func TestFirebaseProvider_Lookup(t *testing.T) {
	srv := newIdentityServer(t, map[string]http.HandlerFunc{
		"lookup": func(w http.ResponseWriter, r *http.Request) {
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			if body["idToken"] == "missing" {
				w.Write([]byte(`{"users":[]}`))
				return
			}
			if body["idToken"] == "expired" {
				writeProviderError(w, "INVALID_ID_TOKEN")
				return
			}
			w.Write([]byte(`{"users":[{"localId":"uid-1","email":"admin@x.com","displayName":"Admin"}]}`))
		},
	})
	p := NewFirebaseProvider(FirebaseConfig{APIKey: "test-key", BaseURL: srv.URL})

	id, err := p.Lookup(context.Background(), "good")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if id.Email != "admin@x.com" || id.DisplayName != "Admin" {
		t.Errorf("Lookup() = %+v", id)
	}

	if _, err := p.Lookup(context.Background(), "missing"); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("missing account error = %v, want ErrAccountNotFound", err)
	}

	_, err = p.Lookup(context.Background(), "expired")
	if ReasonOf(err) != "INVALID_ID_TOKEN" {
		t.Errorf("ReasonOf() = %q, want INVALID_ID_TOKEN", ReasonOf(err))
	}
}

func TestFirebaseProvider_Refresh_UsesRefreshTokenGrant(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("missing api key, query = %q", r.URL.RawQuery)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm: %v", err)
		}
		if r.PostForm.Get("grant_type") != "refresh_token" {
			t.Errorf("grant_type = %q", r.PostForm.Get("grant_type"))
		}
		if r.PostForm.Get("refresh_token") != "old-refresh" {
			t.Errorf("refresh_token = %q", r.PostForm.Get("refresh_token"))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access",
			"token_type":    "Bearer",
			"expires_in":    3600,
			"refresh_token": "new-refresh",
			"id_token":      "new-id-token",
			"user_id":       "uid-1",
		})
	}))
	defer tokenServer.Close()

	p := NewFirebaseProvider(FirebaseConfig{APIKey: "test-key", TokenURL: tokenServer.URL})
	cred, err := p.Refresh(context.Background(), "old-refresh")
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if cred.IDToken != "new-id-token" {
		t.Errorf("IDToken = %q, want %q", cred.IDToken, "new-id-token")
	}
	if cred.RefreshToken != "new-refresh" {
		t.Errorf("RefreshToken = %q, want %q", cred.RefreshToken, "new-refresh")
	}
	if cred.LocalID != "uid-1" {
		t.Errorf("LocalID = %q, want %q", cred.LocalID, "uid-1")
	}
}

func TestFirebaseProvider_Refresh_ExpiredTokenReturnsProviderError(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeProviderError(w, "TOKEN_EXPIRED")
	}))
	defer tokenServer.Close()

	p := NewFirebaseProvider(FirebaseConfig{APIKey: "test-key", TokenURL: tokenServer.URL})
	_, err := p.Refresh(context.Background(), "old-refresh")
	if err == nil {
		t.Fatal("expected error")
	}
	if ReasonOf(err) != "TOKEN_EXPIRED" {
		t.Errorf("ReasonOf() = %q, want TOKEN_EXPIRED (err = %v)", ReasonOf(err), err)
	}
}

func TestFirebaseProvider_Refresh_EmptyTokenRejected(t *testing.T) {
	p := NewFirebaseProvider(FirebaseConfig{APIKey: "test-key"})
	if _, err := p.Refresh(context.Background(), ""); err == nil {
		t.Error("expected error for empty refresh token")
	}
}

func TestFirebaseProvider_NonJSONErrorBody(t *testing.T) {
	srv := newIdentityServer(t, map[string]http.HandlerFunc{
		"signInWithPassword": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte("<html>bad gateway</html>"))
		},
	})
	p := NewFirebaseProvider(FirebaseConfig{APIKey: "test-key", BaseURL: srv.URL})

	_, err := p.SignIn(context.Background(), "a@b.c", "secret1")
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if pe.StatusCode != http.StatusBadGateway {
		t.Errorf("StatusCode = %d, want %d", pe.StatusCode, http.StatusBadGateway)
	}
	if got := SignInError(err); got.Code != model.ErrCodeLoginFailed {
		t.Errorf("SignInError().Code = %q, want generic", got.Code)
	}
}
