// =============================================================================
// fetch.go - ページ取得コラボレーター（HTML / PDF → 整形済みテキスト）
// =============================================================================
//
// 記事URLを取得し、抽出処理が扱いやすい「1段落1行」のテキストにして返します。
//
// 【処理の流れ】
//  1. レート制限（golang.org/x/time/rate）で待機
//  2. ホストごとのサーキットブレーカー（sony/gobreaker）経由でGET
//  3. Content-Type が PDF なら ledongthuc/pdf でテキスト化
//  4. HTML なら goquery で script/nav/footer などを除去し、
//     見出し・段落・リスト項目を1行ずつ取り出す
//
// 【サーキットブレーカー】
//
//	同じホストで連続3回失敗すると、そのホストへのリクエストを60秒間
//	即座に失敗させる（gobreaker.ErrOpenState）。
//
// =============================================================================
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// maxFetchBytes はレスポンス本文の読み込み上限
const maxFetchBytes = 8 << 20

// HTTPConfig はHTTPアクセスの共通設定
type HTTPConfig struct {
	UserAgent string        // User-Agentヘッダー
	Timeout   time.Duration // リクエストタイムアウト
	Client    *http.Client  // 共有HTTPクライアント（コネクションプーリング有効）
}

// DefaultHTTPConfig は既定のHTTP設定を返す
func DefaultHTTPConfig() HTTPConfig {
	timeout := 30 * time.Second // 一部のニュースサイトは遅い
	return HTTPConfig{
		UserAgent: "Mozilla/5.0 (compatible; narco-relay/1.0; +https://example.invalid)",
		Timeout:   timeout,
		Client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Fetcher はページ取得コラボレーター
type Fetcher interface {
	// Fetch はURLのページを取得し、整形済みテキストを返す
	//
	// goal は「何を抽出したいか」の自然言語の説明。使うかどうかは実装次第。
	Fetch(ctx context.Context, url, goal string) (string, error)
}

// FetcherFunc は関数を Fetcher として使うためのアダプタ
type FetcherFunc func(ctx context.Context, url, goal string) (string, error)

// Fetch は f(ctx, url, goal) を呼ぶ
func (f FetcherFunc) Fetch(ctx context.Context, url, goal string) (string, error) {
	return f(ctx, url, goal)
}

// =============================================================================
// HTTPFetcher
// =============================================================================

// HTTPFetcher は net/http + goquery による Fetcher
type HTTPFetcher struct {
	cfg     HTTPConfig
	limiter *rate.Limiter
	logger  *zap.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewHTTPFetcher は HTTPFetcher を作成する
//
// perSecond は1秒あたりの最大リクエスト数（0以下なら制限なし）。
func NewHTTPFetcher(cfg HTTPConfig, perSecond float64, logger *zap.Logger) *HTTPFetcher {
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &HTTPFetcher{
		cfg:      cfg,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   logger,
		breakers: map[string]*gobreaker.CircuitBreaker{},
	}
}

// Fetch はページを取得してテキスト化する
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL, goal string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid url %q", rawURL)
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return "", err
	}

	out, err := f.breakerFor(u.Host).Execute(func() (interface{}, error) {
		return f.fetch(ctx, rawURL)
	})
	if err != nil {
		f.logger.Debug("fetch failed", zap.String("url", rawURL), zap.Error(err))
		return "", err
	}
	text := out.(string)
	f.logger.Debug("fetched", zap.String("url", rawURL), zap.Int("chars", len(text)), zap.String("goal", truncateString(goal, 60)))
	return text, nil
}

func (f *HTTPFetcher) breakerFor(host string) *gobreaker.CircuitBreaker {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cb, ok := f.breakers[host]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        host,
		MaxRequests: 1,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			f.logger.Info("fetch circuit state changed",
				zap.String("host", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	f.breakers[host] = cb
	return cb
}

func (f *HTTPFetcher) fetch(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	// ブロッキング回避のため、ブラウザ風のヘッダーを設定
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/pdf")
	req.Header.Set("Accept-Language", "es-419,es;q=0.9,en;q=0.5")

	resp, err := f.cfg.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("GET %s: status %s", rawURL, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	if isPDF(resp.Header.Get("Content-Type"), rawURL) {
		return extractTextFromPDF(body)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	return ExtractPageText(doc), nil
}

func isPDF(contentType, rawURL string) bool {
	if strings.Contains(strings.ToLower(contentType), "application/pdf") {
		return true
	}
	u, err := url.Parse(rawURL)
	return err == nil && strings.HasSuffix(strings.ToLower(u.Path), ".pdf")
}

// =============================================================================
// テキスト化
// =============================================================================

// 本文と無関係な要素
const chromeSelector = "script, style, noscript, iframe, svg, nav, header, footer, aside, form, " +
	".advertisement, .ads, .share, .social, .related, .comments, .newsletter"

// ExtractPageText はHTMLドキュメントから本文テキストを1段落1行で取り出す
//
// 1行目はページタイトル（あれば）。公開日のメタ情報がある場合は末尾に付ける。
func ExtractPageText(doc *goquery.Document) string {
	var lines []string
	if t := normalizeWhitespace(doc.Find("title").First().Text()); t != "" {
		lines = append(lines, t)
	}

	published, _ := doc.Find(`meta[property="article:published_time"]`).Attr("content")

	doc.Find(chromeSelector).Remove()

	root := doc.Find("article").First()
	if root.Length() == 0 {
		root = doc.Find("main").First()
	}
	if root.Length() == 0 {
		root = doc.Find("body")
	}

	var body []string
	root.Find("h1, h2, h3, h4, p, li, blockquote").Each(func(_ int, s *goquery.Selection) {
		// 入れ子のリスト項目などで同じテキストを二重に拾わない
		if s.Find("p, li").Length() > 0 {
			return
		}
		if text := normalizeWhitespace(s.Text()); text != "" {
			body = append(body, text)
		}
	})
	if len(body) == 0 {
		body = strings.Split(cleanExtractedText(root.Text()), "\n")
	}
	lines = append(lines, body...)

	if published = strings.TrimSpace(published); published != "" {
		lines = append(lines, published)
	}
	// 同じ行（パンくず・キャプションの繰り返しなど）は最初の1つだけ残す
	return strings.Join(uniqStrings(lines), "\n")
}

// cleanExtractedText は goquery .Text() の出力からタブ・連続空白・空行を除去する
func cleanExtractedText(raw string) string {
	var cleaned []string
	for _, line := range strings.Split(raw, "\n") {
		if line = normalizeWhitespace(line); line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}

// extractTextFromPDF はPDFの全ページからテキストを取り出す（1ページ1段落）
func extractTextFromPDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to parse PDF: %w", err)
	}

	var pages []string
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if text = normalizeWhitespace(text); text != "" {
			pages = append(pages, text)
		}
	}
	return strings.Join(pages, "\n"), nil
}
