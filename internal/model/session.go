// Package model はドメインモデルを定義する。
package model

import "time"

// Identity は外部IdPが発行した認証済みユーザーのプロフィールを表す。
// アプリケーションからは読み取り専用として扱う。
type Identity struct {
	LocalID     string
	Email       string
	DisplayName string
}

// Name は表示名が未設定の場合にメールアドレスを返す。
func (i *Identity) Name() string {
	if i == nil {
		return ""
	}
	if i.DisplayName != "" {
		return i.DisplayName
	}
	return i.Email
}

// Session はブラウザセッションごとの認証状態のスナップショット。
// Loadingは初回のIdP応答まで真であり、一度偽になった後は再び真にならない。
type Session struct {
	Identity *Identity
	Loading  bool
}

// Authenticated は認証状態が確定しており、かつIdentityが存在するかを返す。
func (s Session) Authenticated() bool {
	return !s.Loading && s.Identity != nil
}

// Email はIdentityのメールアドレスを返す。Identityがない場合は空文字列。
func (s Session) Email() string {
	if s.Identity == nil {
		return ""
	}
	return s.Identity.Email
}

// SessionRecord は永続化されたIdPセッションを表す。
// RefreshTokenによって再起動後もIdPに認証状態を問い合わせられる。
type SessionRecord struct {
	ID           string
	LocalID      string
	Email        string
	DisplayName  string
	RefreshToken string
	ExpiresAt    time.Time
	CreatedAt    time.Time
}
