// Package access は管理者権限の判定とルートガードの状態決定を提供する。
package access

// defaultAdminEmails はビルドに組み込まれた管理者メールアドレスの許可リスト。
var defaultAdminEmails = []string{
	"admin@musify.app",
	"owner@musify.app",
}

// Checker は管理者権限の判定インターフェース。
type Checker interface {
	IsAdmin(email string) bool
}

// Policy は固定の許可リストによる管理者判定を行う。
// 生成後は変更されないため、複数goroutineから安全に参照できる。
type Policy struct {
	allowed map[string]struct{}
}

// NewPolicy は指定メールアドレスを許可リストとするPolicyを生成する。
// 大文字小文字や空白の正規化は行わず、完全一致でのみ判定する。
func NewPolicy(emails ...string) *Policy {
	allowed := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		if e == "" {
			continue
		}
		allowed[e] = struct{}{}
	}
	return &Policy{allowed: allowed}
}

// DefaultPolicy は組み込みの許可リストを持つPolicyを返す。
func DefaultPolicy() *Policy {
	return NewPolicy(defaultAdminEmails...)
}

// IsAdmin はemailが許可リストに含まれるかを返す。空文字列は常にfalse。
func (p *Policy) IsAdmin(email string) bool {
	if p == nil || email == "" {
		return false
	}
	_, ok := p.allowed[email]
	return ok
}

// Len は許可リストの件数を返す。
func (p *Policy) Len() int {
	if p == nil {
		return 0
	}
	return len(p.allowed)
}

// compile-time interface check
var _ Checker = (*Policy)(nil)
