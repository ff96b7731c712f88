// Package security はHTMLサニタイズとSSRF対策を提供する。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizer は利用者が入力した文字列を保存前に無害化する。
type ContentSanitizer interface {
	// SanitizeDescription は募集説明のHTMLを許可リストで無害化する。
	SanitizeDescription(rawHTML string) string
	// SanitizeComment は評価コメントから全てのタグを除去する。
	SanitizeComment(raw string) string
}

type contentSanitizer struct {
	description *bluemonday.Policy
	comment     *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerを生成する。
//
// 募集説明で許可するのは段落・改行・リスト・強調・外部リンクのみ。
// リンクにはtarget="_blank"とrel="noopener noreferrer"を付与する。
// 画像は採用フィード経由で外部リソースを読み込ませないため許可しない。
func NewContentSanitizer() ContentSanitizer {
	p := bluemonday.NewPolicy()
	p.AllowElements("p", "br", "ul", "ol", "li", "strong", "em", "h3", "h4")
	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("https", "http", "mailto")
	p.AllowRelativeURLs(false)
	p.RequireParseableURLs(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	return &contentSanitizer{
		description: p,
		comment:     bluemonday.StrictPolicy(),
	}
}

func (s *contentSanitizer) SanitizeDescription(rawHTML string) string {
	return strings.TrimSpace(s.description.Sanitize(rawHTML))
}

func (s *contentSanitizer) SanitizeComment(raw string) string {
	return strings.TrimSpace(s.comment.Sanitize(raw))
}
