// =============================================================================
// config.go - パイプライン設定
// =============================================================================
//
// このファイルはCLIフラグの解析・環境変数からの設定・起動前チェックを行います。
//
// 【設定グループ】
//   - InputConfig:    参照データ・ポリシーファイル
//   - SearchConfig:   検索プロバイダ設定
//   - MatchingConfig: 期間・重複しきい値
//   - OutputConfig:   JSON / CSV / Notion 出力
//   - NotifyConfig:   メール通知
//
// 【スキャン種別】
//
//	quick    = 3日
//	weekly   = 7日（既定）
//	extended = 14日
//
// -daysBack を指定した場合はスキャン種別より優先する（1〜30日）。
//
// =============================================================================
package pipeline

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// DefaultDaysBack は Run に期間が渡されなかった場合の日数
const DefaultDaysBack = 7

// 期間の上限・下限（日）
const (
	MinDaysBack = 1
	MaxDaysBack = 30
)

// ScanPresets はスキャン種別と対象期間（日）
var ScanPresets = map[string]int{
	"quick":    3,
	"weekly":   7,
	"extended": 14,
}

// 既定の参照データファイル
const (
	DefaultKeywordsFile  = "data/keywords.csv"
	DefaultCountriesFile = "data/countries.csv"
)

// 検索プロバイダ
const (
	ProviderOpenAI = "openai"
	ProviderGNews  = "gnews"
)

// =============================================================================
// 設定構造体
// =============================================================================

// PipelineConfig はパイプラインの全設定を保持する
type PipelineConfig struct {
	Input    InputConfig
	Search   SearchConfig
	Matching MatchingConfig
	Output   OutputConfig
	Notify   NotifyConfig

	// FetchRate はページ取得の上限（リクエスト/秒、0以下で無制限）
	FetchRate float64

	// Debug がtrueの場合、debugレベルのログを出す
	Debug bool
}

// InputConfig は参照データに関する設定
type InputConfig struct {
	KeywordsFile  string
	CountriesFile string

	// PolicyFile が指定された場合、既定ポリシーをYAMLで上書きする
	PolicyFile string
}

// SearchConfig は検索に関する設定
type SearchConfig struct {
	// Provider は検索プロバイダ（"openai" | "gnews"）
	Provider string

	// OpenAIModel は使用するOpenAIモデル
	OpenAIModel string

	// MaxQueries はクエリ数の上限（0でポリシーの値）
	MaxQueries int
}

// MatchingConfig は期間と重複判定に関する設定
type MatchingConfig struct {
	// Scan はスキャン種別（quick | weekly | extended）
	Scan string

	// DaysBack はスキャン種別の代わりに使う期間（0で未指定）
	DaysBack int

	// Threshold は重複判定しきい値（0でポリシーの値）
	Threshold float64
}

// OutputConfig は出力に関する設定
type OutputConfig struct {
	// OutFile が指定された場合、JSONをファイルに出力（空の場合はstdout）
	OutFile string

	// CSVPrefix が指定された場合、"<prefix>_<timestamp>.csv" を出力
	CSVPrefix string

	// NotionClip がtrueの場合、Notionに保存
	NotionClip bool

	// NotionPageID は新規データベース作成時の親ページID
	NotionPageID string

	// NotionDatabaseID は既存のデータベースID
	NotionDatabaseID string
}

// NotifyConfig はメール通知に関する設定
type NotifyConfig struct {
	// SendEmail がtrueの場合、実行サマリーをメールで送る
	SendEmail bool
}

// =============================================================================
// フラグ解析
// =============================================================================

// ParseFlags はCLIフラグを解析してPipelineConfigを返す
func ParseFlags(args []string) (*PipelineConfig, error) {
	return parseFlags(flag.NewFlagSet("pipeline", flag.ContinueOnError), args)
}

func parseFlags(fs *flag.FlagSet, args []string) (*PipelineConfig, error) {
	cfg := &PipelineConfig{}

	// Input flags
	fs.StringVar(&cfg.Input.KeywordsFile, "keywords", DefaultKeywordsFile, "keyword table CSV (header row = substance categories)")
	fs.StringVar(&cfg.Input.CountriesFile, "countries", DefaultCountriesFile, "country table CSV (Pais_Origen, alpha-2_Completo, Region, Geo)")
	fs.StringVar(&cfg.Input.PolicyFile, "policy", "", "optional: YAML file overriding the built-in policy")

	// Search flags
	fs.StringVar(&cfg.Search.Provider, "searchProvider", ProviderOpenAI, "search provider: openai|gnews")
	fs.StringVar(&cfg.Search.OpenAIModel, "openaiModel", "gpt-4o-mini", "OpenAI model to use")
	fs.IntVar(&cfg.Search.MaxQueries, "maxQueries", 0, "max search queries (0 = policy default)")

	// Matching flags
	fs.StringVar(&cfg.Matching.Scan, "scan", "weekly", "scan preset: quick|weekly|extended")
	fs.IntVar(&cfg.Matching.DaysBack, "daysBack", 0, "custom window in days (1..30); overrides -scan")
	fs.Float64Var(&cfg.Matching.Threshold, "threshold", 0, "duplicate similarity threshold (0 = policy default)")

	// Output flags
	fs.StringVar(&cfg.Output.OutFile, "out", "", "optional: write run result JSON to this path (default: stdout)")
	fs.StringVar(&cfg.Output.CSVPrefix, "csv", "", "optional: write CSV report as <prefix>_<timestamp>.csv")
	fs.BoolVar(&cfg.Output.NotionClip, "notionClip", false, "clip incidents to Notion database")
	fs.StringVar(&cfg.Output.NotionPageID, "notionPageID", "", "parent page ID for creating new Notion database (required for new DB)")
	fs.StringVar(&cfg.Output.NotionDatabaseID, "notionDatabaseID", "", "existing Notion database ID (optional, will create new if empty)")

	// Notify flags
	fs.BoolVar(&cfg.Notify.SendEmail, "sendEmail", false, "send run summary via email")

	fs.Float64Var(&cfg.FetchRate, "fetchRate", 2, "page fetch rate limit in requests/second (0 = unlimited)")
	fs.BoolVar(&cfg.Debug, "debug", false, "enable debug logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ResolveDaysBack は -daysBack / -scan から対象期間を決める
func (c *PipelineConfig) ResolveDaysBack() (int, error) {
	if c.Matching.DaysBack != 0 {
		d := c.Matching.DaysBack
		if d < MinDaysBack || d > MaxDaysBack {
			return 0, fmt.Errorf("daysBack must be between %d and %d, got %d", MinDaysBack, MaxDaysBack, d)
		}
		return d, nil
	}
	scan := strings.ToLower(strings.TrimSpace(c.Matching.Scan))
	if scan == "" {
		return DefaultDaysBack, nil
	}
	d, ok := ScanPresets[scan]
	if !ok {
		return 0, fmt.Errorf("unknown scan %q (available: %s)", c.Matching.Scan, strings.Join(scanNames(), ", "))
	}
	return d, nil
}

func scanNames() []string {
	names := make([]string, 0, len(ScanPresets))
	for n := range ScanPresets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ApplyTo はフラグで指定された値をポリシーに反映したコピーを返す
func (c *PipelineConfig) ApplyTo(p Policy) Policy {
	if c.Search.MaxQueries > 0 {
		p.Query.MaxQueries = c.Search.MaxQueries
	}
	if c.Matching.Threshold > 0 {
		p.DuplicateThreshold = c.Matching.Threshold
	}
	return p
}

// =============================================================================
// 起動前チェック
// =============================================================================

// VerifySetup は参照ファイルの存在と、選択したプロバイダに必要な環境変数を確認する
//
// 問題はすべて集めて1つのエラーにまとめる。
func (c *PipelineConfig) VerifySetup() error {
	var problems []error

	for _, f := range []struct{ name, path string }{
		{"keywords", c.Input.KeywordsFile},
		{"countries", c.Input.CountriesFile},
		{"policy", c.Input.PolicyFile},
	} {
		if f.path == "" {
			if f.name != "policy" {
				problems = append(problems, fmt.Errorf("%s file is required", f.name))
			}
			continue
		}
		if _, err := os.Stat(f.path); err != nil {
			problems = append(problems, fmt.Errorf("%s file: %w", f.name, err))
		}
	}

	switch c.Search.Provider {
	case ProviderOpenAI:
		if os.Getenv("OPENAI_API_KEY") == "" {
			problems = append(problems, errors.New("OPENAI_API_KEY is required for the openai search provider"))
		}
	case ProviderGNews:
	default:
		problems = append(problems, fmt.Errorf("unknown search provider %q (openai|gnews)", c.Search.Provider))
	}

	if c.Output.NotionClip && os.Getenv("NOTION_TOKEN") == "" {
		problems = append(problems, errors.New("NOTION_TOKEN is required for -notionClip"))
	}
	if c.Notify.SendEmail {
		for _, k := range []string{"EMAIL_FROM", "EMAIL_PASSWORD", "EMAIL_TO"} {
			if os.Getenv(k) == "" {
				problems = append(problems, fmt.Errorf("%s is required for -sendEmail", k))
			}
		}
	}
	if _, err := c.ResolveDaysBack(); err != nil {
		problems = append(problems, err)
	}
	return errors.Join(problems...)
}

// =============================================================================
// 環境変数からの設定（Lambda用）
// =============================================================================

// ConfigFromEnv は環境変数から PipelineConfig を作る
//
//	KEYWORDS_FILE, COUNTRIES_FILE, POLICY_FILE
//	SEARCH_PROVIDER, OPENAI_MODEL, MAX_QUERIES
//	SCAN, DAYS_BACK, DUPLICATE_THRESHOLD, FETCH_RATE
//	NOTION_DATABASE_ID, NOTION_PAGE_ID（NOTION_TOKEN があればクリップ）
//	EMAIL_TO（EMAIL_FROM / EMAIL_PASSWORD と揃っていれば通知）
func ConfigFromEnv(getenv func(string) string) (*PipelineConfig, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	or := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := &PipelineConfig{
		Input: InputConfig{
			KeywordsFile:  or("KEYWORDS_FILE", DefaultKeywordsFile),
			CountriesFile: or("COUNTRIES_FILE", DefaultCountriesFile),
			PolicyFile:    or("POLICY_FILE", ""),
		},
		Search: SearchConfig{
			Provider:    or("SEARCH_PROVIDER", ProviderOpenAI),
			OpenAIModel: or("OPENAI_MODEL", "gpt-4o-mini"),
		},
		Matching: MatchingConfig{Scan: or("SCAN", "weekly")},
		Output: OutputConfig{
			NotionClip:       getenv("NOTION_TOKEN") != "",
			NotionPageID:     or("NOTION_PAGE_ID", ""),
			NotionDatabaseID: or("NOTION_DATABASE_ID", ""),
		},
		Notify: NotifyConfig{
			SendEmail: getenv("EMAIL_FROM") != "" && getenv("EMAIL_PASSWORD") != "" && getenv("EMAIL_TO") != "",
		},
		FetchRate: 2,
	}

	var err error
	if cfg.Search.MaxQueries, err = envInt(getenv, "MAX_QUERIES"); err != nil {
		return nil, err
	}
	if cfg.Matching.DaysBack, err = envInt(getenv, "DAYS_BACK"); err != nil {
		return nil, err
	}
	if v := getenv("DUPLICATE_THRESHOLD"); v != "" {
		if cfg.Matching.Threshold, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("DUPLICATE_THRESHOLD: %w", err)
		}
	}
	if v := getenv("FETCH_RATE"); v != "" {
		if cfg.FetchRate, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("FETCH_RATE: %w", err)
		}
	}
	return cfg, nil
}

func envInt(getenv func(string) string, key string) (int, error) {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
