// =============================================================================
// search.go - 検索コラボレーターの共通インターフェースと結果パース
// =============================================================================
//
// 検索プロバイダ（OpenAI web_search / Google News RSS）はクエリの一覧を受け取り、
// 1つのテキストを返します。テキストは区切り行でセクションに分かれ、各セクションに
// `[タイトル](URL)` 形式のリンクが0個以上含まれます。
//
//	## fentanilo incautación últimos 7 días
//	[Incautan fentanilo en Lima](https://example.pe/nota/1)
//	Resumen de la nota...
//	=======
//	## tusi decomiso últimos 7 días
//	[Decomisan tusi en Medellín](https://example.co/nota/2)
//
// パイプラインはこの形式だけに依存するので、プロバイダの差し替えやテスト用の
// フェイクが簡単に作れます。
//
// =============================================================================
package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// SectionSeparator は検索結果セクションの区切り
const SectionSeparator = "\n=======\n"

// Searcher は検索コラボレーター
type Searcher interface {
	// Search はクエリ一覧を一括で検索し、セクション区切りのテキストを返す
	Search(ctx context.Context, queries []string) (string, error)
}

// SearcherFunc は関数を Searcher として使うためのアダプタ
type SearcherFunc func(ctx context.Context, queries []string) (string, error)

// Search は f(ctx, queries) を呼ぶ
func (f SearcherFunc) Search(ctx context.Context, queries []string) (string, error) {
	return f(ctx, queries)
}

var reMarkdownLink = regexp.MustCompile(`\[([^\]]+)\]\(([^\)]+)\)`)

// SplitSections は検索結果テキストをセクションに分割する
func SplitSections(blob string) []string {
	if blob == "" {
		return nil
	}
	return strings.Split(blob, SectionSeparator)
}

// ExtractLinks はセクション中の `[タイトル](URL)` をすべて取り出す（出現順）
func ExtractLinks(section string) []CandidateLink {
	var out []CandidateLink
	for _, m := range reMarkdownLink.FindAllStringSubmatch(section, -1) {
		out = append(out, CandidateLink{
			Title:   strings.TrimSpace(m[1]),
			URL:     strings.TrimSpace(m[2]),
			Section: section,
		})
	}
	return out
}

// -----------------------------------------------------------------------------
// プロバイダ共通の整形
// -----------------------------------------------------------------------------

// searchHit はプロバイダが返した1件の検索結果
type searchHit struct {
	Title   string
	URL     string
	Snippet string
}

// formatLink はリンク記法を壊す文字をエスケープして `[title](url)` を作る
func formatLink(title, url string) string {
	title = strings.NewReplacer("[", "(", "]", ")", "\n", " ").Replace(title)
	url = strings.NewReplacer("(", "%28", ")", "%29", " ", "%20").Replace(url)
	return fmt.Sprintf("[%s](%s)", normalizeWhitespace(title), url)
}

// renderSection は1クエリ分の結果をセクションテキストにする
func renderSection(query string, hits []searchHit) string {
	var sb strings.Builder
	sb.WriteString("## " + query + "\n")
	for _, h := range hits {
		if h.URL == "" {
			continue
		}
		title := h.Title
		if title == "" {
			title = h.URL
		}
		sb.WriteString(formatLink(title, h.URL) + "\n")
		if s := normalizeWhitespace(h.Snippet); s != "" {
			sb.WriteString(s + "\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// joinSections はセクションを区切り行で連結する
func joinSections(sections []string) string {
	return strings.Join(sections, SectionSeparator)
}
