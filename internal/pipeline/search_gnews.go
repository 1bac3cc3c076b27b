// =============================================================================
// search_gnews.go - Google News RSS 検索プロバイダ
// =============================================================================
//
// APIキー不要の検索プロバイダです。クエリごとに Google News の検索RSSを取得し、
// gofeed でパースして `[タイトル](URL)` セクションに変換します。
//
//	https://news.google.com/rss/search?q=<query>&hl=es-419&gl=US&ceid=US:es-419
//
// 【注意】
//   - Google News RSS は "site:" 演算子の否定形を解釈しないため、
//     サイトフィルタはクエリから取り除いて送る
//   - description はHTML（関連記事のリスト）なのでタグを除去してスニペットにする
//
// =============================================================================
package pipeline

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"
)

const defaultGoogleNewsEndpoint = "https://news.google.com/rss/search"

var (
	reScriptTags = regexp.MustCompile(`(?s)<script[^>]*>.*?</script>`)
	reHTMLTags   = regexp.MustCompile(`<[^>]*>`)
	reSiteTerm   = regexp.MustCompile(`(?i)\s*(?:OR\s+)?site:\S+`)
)

// NewsFeedSearcher は Google News RSS を使う Searcher
type NewsFeedSearcher struct {
	Endpoint  string // 空なら Google News
	Language  string // hl パラメータ（例: "es-419"）
	Country   string // gl パラメータ（例: "US"）
	Limit     int    // クエリあたりの最大件数
	UserAgent string
	Client    *http.Client
	Logger    *zap.Logger
}

// NewNewsFeedSearcher は中南米スペイン語版の設定で NewsFeedSearcher を返す
func NewNewsFeedSearcher(cfg HTTPConfig, logger *zap.Logger) *NewsFeedSearcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NewsFeedSearcher{
		Endpoint:  defaultGoogleNewsEndpoint,
		Language:  "es-419",
		Country:   "US",
		Limit:     10,
		UserAgent: cfg.UserAgent,
		Client:    cfg.Client,
		Logger:    logger,
	}
}

// Search はクエリごとにRSSを取得し、セクション形式で返す
func (s *NewsFeedSearcher) Search(ctx context.Context, queries []string) (string, error) {
	var sections []string
	var lastErr error
	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			return joinSections(sections), err
		}
		feed, err := s.fetchFeed(ctx, q)
		if err != nil {
			lastErr = err
			s.Logger.Warn("news feed search failed", zap.String("query", q), zap.Error(err))
			continue
		}

		var hits []searchHit
		for _, item := range feed.Items {
			if s.Limit > 0 && len(hits) >= s.Limit {
				break
			}
			hits = append(hits, searchHit{
				Title:   strings.TrimSpace(item.Title),
				URL:     strings.TrimSpace(item.Link),
				Snippet: extractRSSExcerpt(item),
			})
		}
		s.Logger.Debug("news feed search", zap.String("query", q), zap.Int("hits", len(hits)))
		sections = append(sections, renderSection(q, hits))
	}
	if len(sections) == 0 && lastErr != nil {
		return "", fmt.Errorf("news feed search: all %d queries failed: %w", len(queries), lastErr)
	}
	return joinSections(sections), nil
}

// feedURL はクエリからRSSのURLを組み立てる
func (s *NewsFeedSearcher) feedURL(query string) string {
	endpoint := s.Endpoint
	if endpoint == "" {
		endpoint = defaultGoogleNewsEndpoint
	}
	lang := s.Language
	if lang == "" {
		lang = "es-419"
	}
	gl := s.Country
	if gl == "" {
		gl = "US"
	}
	v := url.Values{}
	v.Set("q", stripSiteFilter(query))
	v.Set("hl", lang)
	v.Set("gl", gl)
	v.Set("ceid", gl+":"+lang)
	return endpoint + "?" + v.Encode()
}

// fetchFeed はRSSを取得して gofeed でパースする
func (s *NewsFeedSearcher) fetchFeed(ctx context.Context, query string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.feedURL(query), nil)
	if err != nil {
		return nil, fmt.Errorf("request creation failed: %w", err)
	}
	if s.UserAgent != "" {
		req.Header.Set("User-Agent", s.UserAgent)
	}

	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("RSS parse failed: %w", err)
	}
	return feed, nil
}

// stripSiteFilter はクエリから "site:..." 項（と直前の OR）を取り除く
func stripSiteFilter(q string) string {
	return normalizeWhitespace(reSiteTerm.ReplaceAllString(q, ""))
}

// extractRSSExcerpt は gofeed.Item の Content か Description をテキスト化する
func extractRSSExcerpt(item *gofeed.Item) string {
	raw := item.Content
	if raw == "" {
		raw = item.Description
	}
	if raw == "" {
		return ""
	}
	return normalizeWhitespace(cleanHTMLTags(raw))
}

// cleanHTMLTags はscriptブロックとHTMLタグを除去し、実体参照をデコードする
func cleanHTMLTags(htmlStr string) string {
	text := reScriptTags.ReplaceAllString(htmlStr, "")
	text = reHTMLTags.ReplaceAllString(text, " ")
	return html.UnescapeString(text)
}
