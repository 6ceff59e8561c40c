package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はフォームから受け取ったテキストをプレーンテキストに正規化する。
// アルバム名やアーティスト名、曲名はRESTストアに保存され、
// 管理画面以外のクライアントからも表示されるため、保存前にマークアップを除去する。
type TextSanitizer interface {
	// SanitizeText はHTMLタグを除去し、前後の空白を取り除いた文字列を返す。
	// エンティティはデコードした状態で返すため、表示側でのエスケープは別途必要。
	SanitizeText(s string) string
}

// textSanitizer はbluemondayのStrictPolicyでタグをすべて除去する。
// ポリシーは生成後に変更しないため、複数goroutineから安全に使用できる。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// SanitizeText はHTMLタグを除去したプレーンテキストを返す。
func (s *textSanitizer) SanitizeText(in string) string {
	if in == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(in)))
}

// compile-time interface check
var _ TextSanitizer = (*textSanitizer)(nil)
