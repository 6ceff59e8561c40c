package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示するメッセージと原因カテゴリ、対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, network, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// エラーカテゴリ
const (
	CategoryAuth       = "auth"
	CategoryValidation = "validation"
	CategoryNetwork    = "network"
	CategorySystem     = "system"
)

// 定義済みエラーコード
const (
	ErrCodeAccountNotFound    = "ACCOUNT_NOT_FOUND"
	ErrCodeWrongPassword      = "WRONG_PASSWORD"
	ErrCodeInvalidEmail       = "INVALID_EMAIL"
	ErrCodeInvalidCredential  = "INVALID_CREDENTIAL"
	ErrCodeEmailInUse         = "EMAIL_IN_USE"
	ErrCodeWeakPassword       = "WEAK_PASSWORD"
	ErrCodeLoginFailed        = "LOGIN_FAILED"
	ErrCodeRegistrationFailed = "REGISTRATION_FAILED"
	ErrCodeLogoutFailed       = "LOGOUT_FAILED"
	ErrCodeValidation         = "VALIDATION_FAILED"
	ErrCodeNetwork            = "NETWORK_ERROR"
	ErrCodeAlbumNotFound      = "ALBUM_NOT_FOUND"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// AsAPIError はエラーチェーンから*APIErrorを取り出す。
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsCategory はエラーチェーンに指定カテゴリの*APIErrorが含まれるかを返す。
func IsCategory(err error, category string) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Category == category
}

func newAuthError(code, message string) *APIError {
	return &APIError{
		Code:     code,
		Message:  message,
		Category: CategoryAuth,
		Action:   "Check your email and password and try again.",
	}
}

// NewAccountNotFoundError はアカウント未登録エラーを生成する。
func NewAccountNotFoundError() *APIError {
	return newAuthError(ErrCodeAccountNotFound, "No account found with this email!")
}

// NewWrongPasswordError はパスワード誤りエラーを生成する。
func NewWrongPasswordError() *APIError {
	return newAuthError(ErrCodeWrongPassword, "Incorrect password!")
}

// NewInvalidEmailError はメールアドレス形式エラーを生成する。
func NewInvalidEmailError() *APIError {
	return newAuthError(ErrCodeInvalidEmail, "Invalid email address!")
}

// NewInvalidCredentialError はメールアドレスかパスワードのどちらかが誤っている場合のエラーを生成する。
func NewInvalidCredentialError() *APIError {
	return newAuthError(ErrCodeInvalidCredential, "Invalid email or password!")
}

// NewEmailInUseError は登録済みメールアドレスエラーを生成する。
func NewEmailInUseError() *APIError {
	e := newAuthError(ErrCodeEmailInUse, "Email already registered!")
	e.Action = "Log in with this email or register with a different one."
	return e
}

// NewWeakPasswordError は弱いパスワードエラーを生成する。
func NewWeakPasswordError() *APIError {
	e := newAuthError(ErrCodeWeakPassword, "Password is too weak!")
	e.Action = "Use a password with at least 6 characters."
	return e
}

// NewLoginFailedError はログイン時の汎用エラーを生成する。
func NewLoginFailedError() *APIError {
	return newAuthError(ErrCodeLoginFailed, "Login failed. Please try again!")
}

// NewRegistrationFailedError は登録時の汎用エラーを生成する。
func NewRegistrationFailedError() *APIError {
	return newAuthError(ErrCodeRegistrationFailed, "Registration failed. Please try again!")
}

// NewLogoutFailedError はログアウト時のIdP呼び出し失敗エラーを生成する。
func NewLogoutFailedError() *APIError {
	e := newAuthError(ErrCodeLogoutFailed, "Logout failed on the identity provider.")
	e.Action = "Your local session was cleared. Try again if the problem persists."
	return e
}

// NewValidationError はクライアント側入力検証エラーを生成する。
// ネットワーク呼び出しの前に送信をブロックする。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: CategoryValidation,
		Action:   "Fix the highlighted field and submit again.",
	}
}

// NewNetworkError はRESTストアやメディアホストの呼び出し失敗エラーを生成する。
// messageには操作単位の汎用メッセージ（例: "Failed to delete album!"）を渡す。
func NewNetworkError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeNetwork,
		Message:  message,
		Category: CategoryNetwork,
		Action:   "Please try again in a moment.",
	}
}

// NewAlbumNotFoundError はアルバム未検出エラーを生成する。
func NewAlbumNotFoundError(albumID string) *APIError {
	return &APIError{
		Code:     ErrCodeAlbumNotFound,
		Message:  fmt.Sprintf("Album not found: %s", albumID),
		Category: CategoryValidation,
		Action:   "Go back to the dashboard and pick an existing album.",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Something went wrong.",
		Category: CategorySystem,
		Action:   "Please try again later.",
	}
}
