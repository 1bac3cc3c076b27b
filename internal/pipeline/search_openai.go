// =============================================================================
// search_openai.go - OpenAI Web検索プロバイダ
// =============================================================================
//
// OpenAI Responses API の web_search ツールでクエリごとに検索し、結果を
// `[タイトル](URL)` セクション形式のテキストにまとめます。
//
// =============================================================================
// 【重要な実装の詳細】
// =============================================================================
//
// Responses API には以下の癖があります：
//
// 1. web_search_call.results は通常空で返される
// 2. action.sources も通常空
// 3. そのため message.content.text からURLを正規表現で抽出する
//    → プロンプトで「タイトルとURLの組だけを返せ」と指示
//    → タイトルが無い行はURLから擬似タイトルを生成（generateTitleFromURL）
//
// 【URL抽出の優先順位】
//
//	優先度1: web_search_call.results
//	    ↓
//	優先度2: action.sources
//	    ↓
//	優先度3: message.content.text ★主要手法★
//	    ↓
//	優先度4: annotations（url_citation）
//
// 【必要な環境変数】
//
//	OPENAI_API_KEY - APIキー
//
// =============================================================================
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultOpenAIEndpoint = "https://api.openai.com/v1/responses"

// =============================================================================
// OpenAI Responses API レスポンス構造体
// =============================================================================

// openAIResponsesResp は Responses API の最上位レスポンス
//
//	{
//	  "output": [
//	    { "type": "web_search_call", ... },
//	    { "type": "message", ... }
//	  ]
//	}
type openAIResponsesResp struct {
	Output []openAIOutputItem `json:"output"`
}

// openAIOutputItem は output 配列の各要素
type openAIOutputItem struct {
	Type    string              `json:"type"` // "web_search_call" | "message"
	Results []openAIWebResult   `json:"results,omitempty"`
	Action  *openAIWebAction    `json:"action,omitempty"`
	Content []openAIContentPart `json:"content,omitempty"`
}

type openAIWebAction struct {
	Sources []openAIWebSource `json:"sources,omitempty"`
}

type openAIWebSource struct {
	URL string `json:"url"`
}

type openAIWebResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

type openAIContentPart struct {
	Type        string             `json:"type"`
	Text        string             `json:"text,omitempty"`
	Annotations []openAIAnnotation `json:"annotations,omitempty"`
}

type openAIAnnotation struct {
	Type  string `json:"type"`
	URL   string `json:"url,omitempty"`
	Title string `json:"title,omitempty"`
}

// =============================================================================
// OpenAISearcher
// =============================================================================

// OpenAISearcher は OpenAI Responses API を使う Searcher
type OpenAISearcher struct {
	APIKey   string
	Model    string // 例: "gpt-4o-mini"
	Tool     string // "web_search" | "web_search_preview"
	Endpoint string // 空なら本番エンドポイント
	Limit    int    // クエリあたりの最大件数（0以下なら無制限）
	Client   *http.Client
	Logger   *zap.Logger
}

// NewOpenAISearcher は既定値を埋めた OpenAISearcher を返す
func NewOpenAISearcher(apiKey, model string, logger *zap.Logger) (*OpenAISearcher, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAISearcher{
		APIKey:   apiKey,
		Model:    model,
		Tool:     "web_search",
		Endpoint: defaultOpenAIEndpoint,
		Limit:    10,
		Client:   &http.Client{Timeout: 60 * time.Second},
		Logger:   logger,
	}, nil
}

// Search はクエリごとに web_search を実行し、セクション形式で返す
//
// 失敗したクエリは警告ログを出して飛ばす。全クエリが失敗した場合のみエラー。
func (s *OpenAISearcher) Search(ctx context.Context, queries []string) (string, error) {
	var sections []string
	var lastErr error
	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			return joinSections(sections), err
		}
		hits, err := s.searchOne(ctx, q)
		if err != nil {
			lastErr = err
			s.Logger.Warn("openai search failed", zap.String("query", q), zap.Error(err))
			continue
		}
		s.Logger.Debug("openai search", zap.String("query", q), zap.Int("hits", len(hits)))
		sections = append(sections, renderSection(q, hits))
	}
	if len(sections) == 0 && lastErr != nil {
		return "", fmt.Errorf("openai search: all %d queries failed: %w", len(queries), lastErr)
	}
	return joinSections(sections), nil
}

func (s *OpenAISearcher) searchOne(ctx context.Context, query string) ([]searchHit, error) {
	// Responses API は results を構造化して返さないことが多いため、
	// テキストで「タイトル | URL」の一覧を返させて後でパースする
	prompt := fmt.Sprintf(`Search recent news for: %s

After searching, list ONLY the news articles you found, one per line. Format:
TITLE | https://example.com/article

Do NOT write explanations.`, query)

	reqBody := map[string]any{
		"model": s.Model,
		"input": prompt,
		"tools": []map[string]any{
			{"type": s.Tool},
		},
		"max_output_tokens": 800,
	}
	b, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	endpoint := s.Endpoint
	if endpoint == "" {
		endpoint = defaultOpenAIEndpoint
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.APIKey)
	req.Header.Set("Content-Type", "application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read openai response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("openai responses error: %s: %s", resp.Status, truncateString(string(bodyBytes), 300))
	}

	var r openAIResponsesResp
	if err := json.Unmarshal(bodyBytes, &r); err != nil {
		return nil, fmt.Errorf("failed to parse openai response: %w", err)
	}

	hits := collectOpenAIHits(r)
	if s.Limit > 0 && len(hits) > s.Limit {
		hits = hits[:s.Limit]
	}
	return hits, nil
}

var (
	reURL       = regexp.MustCompile(`https?://[^\s\)\]]+`)
	reTitledURL = regexp.MustCompile(`^\s*(?:[-*\d.]+\s*)?(.+?)\s*\|\s*(https?://\S+)\s*$`)
	reDigits    = regexp.MustCompile(`^\d+$`)
)

// collectOpenAIHits は優先順位に従ってレスポンスから検索結果を取り出す
//
// 返す順序はレスポンス中の出現順（重複URLは最初の1件のみ）。
func collectOpenAIHits(r openAIResponsesResp) []searchHit {
	var hits []searchHit
	seen := map[string]bool{}
	add := func(h searchHit) {
		h.URL = strings.TrimRight(strings.TrimSpace(h.URL), ".,;:!?")
		if h.URL == "" || seen[h.URL] {
			return
		}
		seen[h.URL] = true
		if strings.TrimSpace(h.Title) == "" {
			h.Title = generateTitleFromURL(h.URL)
		}
		hits = append(hits, h)
	}

	// 優先度1・2: web_search_call
	for _, it := range r.Output {
		if it.Type != "web_search_call" {
			continue
		}
		for _, res := range it.Results {
			add(searchHit{Title: res.Title, URL: res.URL, Snippet: res.Snippet})
		}
		if it.Action != nil {
			for _, src := range it.Action.Sources {
				add(searchHit{URL: src.URL})
			}
		}
	}
	if len(hits) > 0 {
		return hits
	}

	// 優先度3・4: message.content
	for _, it := range r.Output {
		if it.Type != "message" {
			continue
		}
		for _, cp := range it.Content {
			for _, line := range strings.Split(cp.Text, "\n") {
				if m := reTitledURL.FindStringSubmatch(line); m != nil {
					add(searchHit{Title: m[1], URL: m[2]})
					continue
				}
				for _, u := range reURL.FindAllString(line, -1) {
					add(searchHit{URL: u})
				}
			}
			for _, ann := range cp.Annotations {
				add(searchHit{Title: ann.Title, URL: ann.URL})
			}
		}
	}
	return hits
}

// generateTitleFromURL はURLから擬似タイトルを生成する
//
//	"https://www.elcomercio.pe/lima/incautan-droga-callao-noticia/"
//	  → "Elcomercio Lima Incautan Droga Callao Noticia"
func generateTitleFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}

	host := strings.TrimPrefix(u.Host, "www.")
	domain := strings.Split(host, ".")[0]

	var parts []string
	for _, part := range strings.Split(strings.Trim(u.Path, "/"), "/") {
		// 記事IDなど数字だけのパートと短すぎるパートは除外
		if reDigits.MatchString(part) || len(part) < 3 {
			continue
		}
		part = strings.TrimSuffix(part, ".html")
		parts = append(parts, strings.NewReplacer("-", " ", "_", " ").Replace(part))
	}

	words := strings.Fields(domain + " " + strings.Join(parts, " "))
	for i, w := range words {
		r := []rune(w)
		words[i] = strings.ToUpper(string(r[:1])) + string(r[1:])
	}
	return strings.Join(words, " ")
}
