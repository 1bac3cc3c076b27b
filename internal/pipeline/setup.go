// =============================================================================
// setup.go - 設定からパイプラインを組み立てる
// =============================================================================
//
// CLI と Lambda の両方から使う組み立て処理です。
//
//	ポリシー読み込み（-policy）→ フラグの上書き（-maxQueries, -threshold）
//	→ 参照データ読み込み（対象地域はポリシーの targetRegions）
//	→ 検索プロバイダ（openai | gnews）
//	→ HTTPFetcher（-fetchRate）
//	→ MapsGeocoder（同じ検索・取得コラボレーターを共有）
//
// =============================================================================
package pipeline

import (
	"fmt"
	"os"

	"go.uber.org/zap"
)

// NewSearcher は設定に応じた検索プロバイダを作る
func NewSearcher(cfg SearchConfig, logger *zap.Logger) (Searcher, error) {
	switch cfg.Provider {
	case ProviderOpenAI, "":
		return NewOpenAISearcher(os.Getenv("OPENAI_API_KEY"), cfg.OpenAIModel, logger)
	case ProviderGNews:
		return NewNewsFeedSearcher(DefaultHTTPConfig(), logger), nil
	default:
		return nil, fmt.Errorf("unsupported searchProvider: %s", cfg.Provider)
	}
}

// BuildPipeline は設定から IncidentPipeline を組み立てる
func BuildPipeline(cfg *PipelineConfig, logger *zap.Logger) (*IncidentPipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	policy, err := LoadPolicy(cfg.Input.PolicyFile)
	if err != nil {
		return nil, err
	}
	policy = cfg.ApplyTo(policy)

	ref, err := LoadReferenceData(cfg.Input.KeywordsFile, cfg.Input.CountriesFile, policy.TargetRegions)
	if err != nil {
		return nil, err
	}
	logger.Info("reference data loaded",
		zap.Int("categories", len(ref.Categories())),
		zap.Int("keywords", len(ref.Keywords())),
		zap.Int("countries", len(ref.Countries())))

	searcher, err := NewSearcher(cfg.Search, logger)
	if err != nil {
		return nil, err
	}
	fetcher := NewHTTPFetcher(DefaultHTTPConfig(), cfg.FetchRate, logger)

	return NewIncidentPipeline(ref, searcher, fetcher,
		WithPolicy(policy),
		WithGeocoder(NewMapsGeocoder(searcher, fetcher)),
		WithLogger(logger),
	), nil
}
