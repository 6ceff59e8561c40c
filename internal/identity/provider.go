// Package identity は外部IdP（Firebase Authentication互換のREST API）との連携を提供する。
// サインイン、サインアップ、プロフィール更新、トークン更新、アカウント照会を扱う。
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/musify/internal/model"
)

// Credential はサインインやトークン更新で得られる認証情報。
type Credential struct {
	LocalID      string
	Email        string
	DisplayName  string
	IDToken      string
	RefreshToken string
	ExpiresIn    time.Duration
}

// Identity はCredentialから読み取り専用のIdentityを作る。
func (c *Credential) Identity() *model.Identity {
	if c == nil {
		return nil
	}
	return &model.Identity{
		LocalID:     c.LocalID,
		Email:       c.Email,
		DisplayName: c.DisplayName,
	}
}

// Provider はIdPのインターフェース。
// 将来的に別のIdPへ差し替えられるように抽象化している。
type Provider interface {
	// SignIn はメールアドレスとパスワードでサインインする。
	SignIn(ctx context.Context, email, password string) (*Credential, error)
	// SignUp はアカウントを作成し、そのままサインインした認証情報を返す。
	SignUp(ctx context.Context, email, password string) (*Credential, error)
	// UpdateProfile はアカウントの表示名を更新する。
	UpdateProfile(ctx context.Context, idToken, displayName string) error
	// Refresh はリフレッシュトークンから新しいIDトークンを取得する。
	Refresh(ctx context.Context, refreshToken string) (*Credential, error)
	// Lookup はIDトークンに対応するアカウント情報を取得する。
	Lookup(ctx context.Context, idToken string) (*model.Identity, error)
}

// ErrAccountNotFound はLookupで該当アカウントがなかった場合のエラー。
var ErrAccountNotFound = errors.New("identity: account not found")

// ProviderError はIdPがエラー応答を返した場合のエラー。
// Reasonには "EMAIL_NOT_FOUND" のようなIdP側のエラーコードが入る。
type ProviderError struct {
	StatusCode int
	Reason     string
	Detail     string
}

// Error はerrorインターフェースを実装する。
func (e *ProviderError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("identity provider error %d: %s (%s)", e.StatusCode, e.Reason, e.Detail)
	}
	return fmt.Sprintf("identity provider error %d: %s", e.StatusCode, e.Reason)
}

// newProviderError はIdPのエラーメッセージ "CODE : detail" を分解してProviderErrorを作る。
func newProviderError(status int, message string) *ProviderError {
	reason, detail, _ := strings.Cut(message, ":")
	return &ProviderError{
		StatusCode: status,
		Reason:     strings.TrimSpace(reason),
		Detail:     strings.TrimSpace(detail),
	}
}

// ReasonOf はエラーチェーンからIdPのエラーコードを取り出す。
// ProviderErrorでない場合は空文字列を返す。
func ReasonOf(err error) string {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Reason
	}
	return ""
}

// SignInError はサインイン失敗をユーザー向けのAuthErrorに変換する。
// 既知のエラーコード以外は汎用のログイン失敗エラーになる。
func SignInError(err error) *model.APIError {
	if mapped := mapReason(ReasonOf(err)); mapped != nil {
		return mapped
	}
	return model.NewLoginFailedError()
}

// SignUpError はアカウント作成失敗をユーザー向けのAuthErrorに変換する。
func SignUpError(err error) *model.APIError {
	if mapped := mapReason(ReasonOf(err)); mapped != nil {
		return mapped
	}
	return model.NewRegistrationFailedError()
}

func mapReason(reason string) *model.APIError {
	switch reason {
	case "EMAIL_NOT_FOUND":
		return model.NewAccountNotFoundError()
	case "INVALID_PASSWORD":
		return model.NewWrongPasswordError()
	case "INVALID_EMAIL", "MISSING_EMAIL":
		return model.NewInvalidEmailError()
	case "INVALID_LOGIN_CREDENTIALS":
		return model.NewInvalidCredentialError()
	case "EMAIL_EXISTS":
		return model.NewEmailInUseError()
	case "WEAK_PASSWORD":
		return model.NewWeakPasswordError()
	default:
		return nil
	}
}
