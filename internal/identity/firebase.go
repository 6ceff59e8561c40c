package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/musify/internal/model"
	"golang.org/x/oauth2"
)

const (
	defaultIdentityBaseURL = "https://identitytoolkit.googleapis.com/v1"
	defaultTokenURL        = "https://securetoken.googleapis.com/v1/token"
	maxResponseSize        = 1 << 20
)

// FirebaseConfig はFirebaseProviderの設定。
type FirebaseConfig struct {
	APIKey string

	// テスト用にオーバーライド可能なURL
	BaseURL  string
	TokenURL string

	HTTPClient *http.Client
}

// FirebaseProvider はIdentity Toolkit REST APIによる認証を提供する。
type FirebaseProvider struct {
	config     FirebaseConfig
	httpClient *http.Client
}

// NewFirebaseProvider はFirebaseProviderを生成する。
func NewFirebaseProvider(config FirebaseConfig) *FirebaseProvider {
	if config.BaseURL == "" {
		config.BaseURL = defaultIdentityBaseURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultTokenURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &FirebaseProvider{config: config, httpClient: httpClient}
}

// passwordRequest はサインイン・サインアップのリクエストボディ。
type passwordRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

// authResponse はサインイン・サインアップのレスポンス。
type authResponse struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

// lookupResponse はaccounts:lookupのレスポンス。
type lookupResponse struct {
	Users []struct {
		LocalID     string `json:"localId"`
		Email       string `json:"email"`
		DisplayName string `json:"displayName"`
	} `json:"users"`
}

// errorResponse はIdPのエラーレスポンス。
type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SignIn はメールアドレスとパスワードでサインインする。
func (p *FirebaseProvider) SignIn(ctx context.Context, email, password string) (*Credential, error) {
	var resp authResponse
	err := p.call(ctx, "signInWithPassword", passwordRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}
	return resp.credential(), nil
}

// SignUp はアカウントを作成する。
func (p *FirebaseProvider) SignUp(ctx context.Context, email, password string) (*Credential, error) {
	var resp authResponse
	err := p.call(ctx, "signUp", passwordRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("sign up: %w", err)
	}
	return resp.credential(), nil
}

// UpdateProfile はアカウントの表示名を更新する。
func (p *FirebaseProvider) UpdateProfile(ctx context.Context, idToken, displayName string) error {
	body := map[string]any{
		"idToken":           idToken,
		"displayName":       displayName,
		"returnSecureToken": false,
	}
	if err := p.call(ctx, "update", body, nil); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

// Lookup はIDトークンに対応するアカウント情報を取得する。
func (p *FirebaseProvider) Lookup(ctx context.Context, idToken string) (*model.Identity, error) {
	var resp lookupResponse
	if err := p.call(ctx, "lookup", map[string]string{"idToken": idToken}, &resp); err != nil {
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	if len(resp.Users) == 0 {
		return nil, ErrAccountNotFound
	}
	u := resp.Users[0]
	return &model.Identity{
		LocalID:     u.LocalID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
	}, nil
}

// Refresh はSecure Tokenエンドポイントでリフレッシュトークンを交換する。
// refresh_tokenグラントはOAuth2の標準フローのため、golang.org/x/oauth2に委ねる。
// 新しいIDトークンはレスポンスの追加フィールド id_token から読み取る。
func (p *FirebaseProvider) Refresh(ctx context.Context, refreshToken string) (*Credential, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("refresh token is required")
	}

	tokenURL, err := p.withKey(p.config.TokenURL)
	if err != nil {
		return nil, err
	}

	conf := &oauth2.Config{
		Endpoint: oauth2.Endpoint{
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	tok, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			return nil, fmt.Errorf("refresh token: %w", parseErrorBody(re.Response.StatusCode, re.Body))
		}
		return nil, fmt.Errorf("refresh token: %w", err)
	}

	idToken, _ := tok.Extra("id_token").(string)
	if idToken == "" {
		return nil, fmt.Errorf("refresh token: empty id_token in response")
	}
	localID, _ := tok.Extra("user_id").(string)

	cred := &Credential{
		LocalID:      localID,
		IDToken:      idToken,
		RefreshToken: tok.RefreshToken,
	}
	if !tok.Expiry.IsZero() {
		cred.ExpiresIn = time.Until(tok.Expiry).Round(time.Second)
	}
	if cred.RefreshToken == "" {
		cred.RefreshToken = refreshToken
	}
	return cred, nil
}

// call はIdentity Toolkitの accounts:<method> エンドポイントを呼び出す。
// outがnilの場合はレスポンスボディを読み捨てる。
func (p *FirebaseProvider) call(ctx context.Context, method string, in any, out any) error {
	endpoint, err := p.withKey(p.config.BaseURL + "/accounts:" + method)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return parseErrorBody(resp.StatusCode, body)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// withKey はAPIキーをクエリパラメータに付与したURLを返す。
func (p *FirebaseProvider) withKey(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid identity endpoint %q: %w", rawURL, err)
	}
	q := u.Query()
	q.Set("key", p.config.APIKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// parseErrorBody はIdPのエラーレスポンスをProviderErrorに変換する。
func parseErrorBody(status int, body []byte) *ProviderError {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err != nil || er.Error.Message == "" {
		return &ProviderError{StatusCode: status, Reason: http.StatusText(status)}
	}
	return newProviderError(status, er.Error.Message)
}

func (r *authResponse) credential() *Credential {
	cred := &Credential{
		LocalID:      r.LocalID,
		Email:        r.Email,
		DisplayName:  r.DisplayName,
		IDToken:      r.IDToken,
		RefreshToken: r.RefreshToken,
	}
	if secs, err := strconv.Atoi(r.ExpiresIn); err == nil {
		cred.ExpiresIn = time.Duration(secs) * time.Second
	}
	return cred
}

// compile-time interface check
var _ Provider = (*FirebaseProvider)(nil)
