package access

import "github.com/hitoshi/musify/internal/model"

// GuardState は保護ルートへのアクセス判定結果を表す。
type GuardState int

const (
	// StatePending は認証状態が未確定の状態。ローディング表示のみ行う。
	StatePending GuardState = iota
	// StateUnauthenticated は未ログインの状態。ログイン画面へリダイレクトする。
	StateUnauthenticated
	// StateDenied はログイン済みだが管理者ではない状態。アクセス拒否画面を表示する。
	StateDenied
	// StateAllowed は管理者としてログイン済みの状態。保護コンテンツをそのまま表示する。
	StateAllowed
)

// String はメトリクスやログ用の状態名を返す。
func (s GuardState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateDenied:
		return "denied"
	case StateAllowed:
		return "allowed"
	default:
		return "unknown"
	}
}

// Decide はセッションのスナップショットから状態を決定する。
// ガード自身は状態を持たず、入力のセッションのみから決まる。
func Decide(s model.Session, checker Checker) GuardState {
	if s.Loading {
		return StatePending
	}
	if s.Identity == nil {
		return StateUnauthenticated
	}
	if checker == nil || !checker.IsAdmin(s.Identity.Email) {
		return StateDenied
	}
	return StateAllowed
}
