package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/hitoshi/musify/internal/identity"
	"github.com/hitoshi/musify/internal/model"
	"github.com/hitoshi/musify/internal/repository"
)

// ログイン結果のラベル
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// LoginRecorder はログイン試行の結果を記録する。
type LoginRecorder interface {
	RecordLogin(outcome string)
}

// ManagerConfig はManagerの設定。
type ManagerConfig struct {
	// SessionMaxAge は永続化するセッションの有効期間。
	SessionMaxAge time.Duration
	// IdleTTL はアクセスのないStoreをメモリから外すまでの時間。
	IdleTTL time.Duration
	// RestoreTimeout は再起動後のセッション復元にかける最大時間。
	RestoreTimeout time.Duration
}

// Manager はセッションIDごとのStoreを管理するレジストリ。
// 生きているStoreはgo-cacheに保持し、アイドル期限で追い出す際にCloseする。
type Manager struct {
	provider identity.Provider
	repo     repository.SessionRepository
	live     *cache.Cache
	logger   *slog.Logger
	recorder LoginRecorder
	config   ManagerConfig

	// 同一セッションIDへの同時Resolveで二重にStoreを作らないためのロック
	mu sync.Mutex
}

// NewManager はManagerを生成する。
func NewManager(provider identity.Provider, repo repository.SessionRepository, logger *slog.Logger, config ManagerConfig) *Manager {
	if config.SessionMaxAge <= 0 {
		config.SessionMaxAge = 24 * time.Hour
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = 30 * time.Minute
	}
	if config.RestoreTimeout <= 0 {
		config.RestoreTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	live := cache.New(config.IdleTTL, config.IdleTTL/2)
	live.OnEvicted(func(_ string, v interface{}) {
		if st, ok := v.(*Store); ok {
			st.Close()
		}
	})

	return &Manager{
		provider: provider,
		repo:     repo,
		live:     live,
		logger:   logger,
		config:   config,
	}
}

// SetLoginRecorder はログイン結果の記録先を設定する。
func (m *Manager) SetLoginRecorder(r LoginRecorder) {
	m.recorder = r
}

// Resolve はセッションIDに対応するStoreを返す。
// IDが空の場合は未認証で確定済みの一時的なStoreを返し、レジストリには登録しない。
// 未登録のIDの場合は永続化されたセッションを非同期に復元するStoreを作る。
func (m *Manager) Resolve(sessionID string) *Store {
	if sessionID == "" {
		st := NewStore(newKnownSource(nil, nil))
		st.Start()
		return st
	}

	m.mu.Lock()
	if v, ok := m.live.Get(sessionID); ok {
		st := v.(*Store)
		// アクセスのたびにアイドル期限を延長する
		m.live.Set(sessionID, st, cache.DefaultExpiration)
		m.mu.Unlock()
		return st
	}

	src := newRestoringSource(
		func(ctx context.Context) *model.Identity { return m.restore(ctx, sessionID) },
		m.signOutFunc(sessionID),
	)
	st := NewStore(src)
	m.live.Set(sessionID, st, cache.DefaultExpiration)
	m.mu.Unlock()

	// 復元できなかったIDはレジストリに残さない。次のリクエストで改めて復元を試みる
	st.Subscribe(func(s model.Session) {
		if !s.Loading && s.Identity == nil {
			m.forget(sessionID, st)
		}
	})
	st.Start()
	return st
}

// forget はsessionIDの登録がstのままであればレジストリから外す。
// 外したStoreは追い出し時のフックで閉じられる。
func (m *Manager) forget(sessionID string, st *Store) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.live.Get(sessionID); ok && v.(*Store) == st {
		m.live.Delete(sessionID)
	}
}

// Login はメールアドレスとパスワードでサインインし、新しいセッションIDを発行する。
// 以前のセッションIDに紐づくStoreとレコードは破棄する。
func (m *Manager) Login(ctx context.Context, previousID, email, password string) (string, *model.Identity, error) {
	cred, err := m.provider.SignIn(ctx, email, password)
	if err != nil {
		m.record(OutcomeFailure)
		m.logger.Warn("sign in failed",
			slog.String("reason", identity.ReasonOf(err)),
			slog.String("error", err.Error()),
		)
		return "", nil, identity.SignInError(err)
	}

	sessionID, err := generateSessionID()
	if err != nil {
		m.record(OutcomeFailure)
		return "", nil, fmt.Errorf("failed to generate session id: %w", err)
	}

	now := time.Now().UTC()
	rec := &model.SessionRecord{
		ID:           sessionID,
		LocalID:      cred.LocalID,
		Email:        cred.Email,
		DisplayName:  cred.DisplayName,
		RefreshToken: cred.RefreshToken,
		ExpiresAt:    now.Add(m.config.SessionMaxAge),
		CreatedAt:    now,
	}
	if err := m.repo.Create(ctx, rec); err != nil {
		m.record(OutcomeFailure)
		return "", nil, fmt.Errorf("failed to persist session: %w", err)
	}

	if previousID != "" {
		m.discard(ctx, previousID)
	}

	ident := cred.Identity()
	st := NewStore(newKnownSource(ident, m.signOutFunc(sessionID)))
	m.mu.Lock()
	m.live.Set(sessionID, st, cache.DefaultExpiration)
	m.mu.Unlock()
	st.Start()

	m.record(OutcomeSuccess)
	m.logger.Info("admin panel sign in",
		slog.String("email", ident.Email),
	)
	return sessionID, ident, nil
}

// Register はアカウントを作成し、表示名を設定する。
// セッションは作成しないため、利用者は続けてログインする。
func (m *Manager) Register(ctx context.Context, email, password, displayName string) error {
	cred, err := m.provider.SignUp(ctx, email, password)
	if err != nil {
		m.logger.Warn("sign up failed",
			slog.String("reason", identity.ReasonOf(err)),
			slog.String("error", err.Error()),
		)
		return identity.SignUpError(err)
	}

	if displayName != "" {
		if err := m.provider.UpdateProfile(ctx, cred.IDToken, displayName); err != nil {
			m.logger.Warn("profile update after sign up failed",
				slog.String("email", email),
				slog.String("error", err.Error()),
			)
			return identity.SignUpError(err)
		}
	}

	m.logger.Info("account registered", slog.String("email", email))
	return nil
}

// Logout はセッションIDに紐づく認証状態を破棄する。
// Identityは必ず消去され、IdP側の破棄に失敗した場合はAuthErrorを返す。
func (m *Manager) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	m.mu.Lock()
	v, ok := m.live.Get(sessionID)
	m.mu.Unlock()

	var err error
	if ok {
		err = v.(*Store).Logout(ctx)
	} else if derr := m.repo.DeleteByID(ctx, sessionID); derr != nil {
		err = fmt.Errorf("%w: %v", model.NewLogoutFailedError(), derr)
	}

	m.live.Delete(sessionID)

	if err != nil {
		m.logger.Error("logout failed",
			slog.String("error", err.Error()),
		)
	}
	return err
}

// LiveCount はメモリ上に保持しているStoreの数を返す。
func (m *Manager) LiveCount() int {
	return m.live.ItemCount()
}

// ActiveUsers は認証済みのStoreについて、異なるユーザー数を返す。
func (m *Manager) ActiveUsers() int {
	users := make(map[string]struct{})
	for _, item := range m.live.Items() {
		st, ok := item.Object.(*Store)
		if !ok {
			continue
		}
		s := st.Current()
		if s.Authenticated() {
			users[s.Identity.Email] = struct{}{}
		}
	}
	return len(users)
}

// Close はすべてのStoreを破棄し、IdPへのリスナー登録を解除する。
func (m *Manager) Close() {
	for key := range m.live.Items() {
		m.live.Delete(key)
	}
}

// restore は永続化レコードからIdentityを復元する。
// リフレッシュトークンで新しいIDトークンを取得し、アカウント情報を照会する。
func (m *Manager) restore(ctx context.Context, sessionID string) *model.Identity {
	ctx, cancel := context.WithTimeout(ctx, m.config.RestoreTimeout)
	defer cancel()

	rec, err := m.repo.FindByID(ctx, sessionID)
	if err != nil {
		m.logger.Error("failed to load session record",
			slog.String("error", err.Error()),
		)
		return nil
	}
	if rec == nil {
		return nil
	}

	cred, err := m.provider.Refresh(ctx, rec.RefreshToken)
	if err != nil {
		m.logger.Warn("session refresh failed",
			slog.String("email", rec.Email),
			slog.String("error", err.Error()),
		)
		// IdPに拒否されたトークンは再利用できないので破棄する
		var pe *identity.ProviderError
		if errors.As(err, &pe) {
			if derr := m.repo.DeleteByID(ctx, sessionID); derr != nil {
				m.logger.Error("failed to delete rejected session",
					slog.String("error", derr.Error()),
				)
			}
		}
		return nil
	}

	if cred.RefreshToken != "" && cred.RefreshToken != rec.RefreshToken {
		if err := m.repo.UpdateRefreshToken(ctx, sessionID, cred.RefreshToken); err != nil {
			m.logger.Warn("failed to store rotated refresh token",
				slog.String("error", err.Error()),
			)
		}
	}

	ident, err := m.provider.Lookup(ctx, cred.IDToken)
	if err != nil {
		m.logger.Warn("account lookup failed",
			slog.String("email", rec.Email),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return ident
}

func (m *Manager) signOutFunc(sessionID string) signOutFunc {
	return func(ctx context.Context) error {
		return m.repo.DeleteByID(ctx, sessionID)
	}
}

// discard は古いセッションのStoreとレコードを破棄する。失敗はログのみ。
func (m *Manager) discard(ctx context.Context, sessionID string) {
	m.live.Delete(sessionID)
	if err := m.repo.DeleteByID(ctx, sessionID); err != nil {
		m.logger.Warn("failed to delete previous session",
			slog.String("error", err.Error()),
		)
	}
}

func (m *Manager) record(outcome string) {
	if m.recorder != nil {
		m.recorder.RecordLogin(outcome)
	}
}

// generateSessionID は暗号論的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
