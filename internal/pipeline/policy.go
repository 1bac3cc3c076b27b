// =============================================================================
// policy.go - 判定ポリシー（関連度指標・検索語・しきい値）
// =============================================================================
//
// 関連度の指標フレーズ、検索クエリの構成要素、国プレフィルタ、
// 重複判定しきい値など「ポリシー定数」をまとめて保持します。
//
// 既定値はコードに埋め込まれており、-policy でYAMLファイルを指定すると
// 記載されたフィールドだけが上書きされます。
//
// 【YAML例】
//
//	duplicateThreshold: 0.75
//	relevance:
//	  highTitleIndicators: [incautación, decomiso]
//	query:
//	  maxQueries: 10
//
// =============================================================================
package pipeline

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RelevancePolicy は関連度分類で使う指標フレーズ
type RelevancePolicy struct {
	HighTitleIndicators  []string `yaml:"highTitleIndicators"`  // タイトル中で+2
	MediumBodyIndicators []string `yaml:"mediumBodyIndicators"` // 本文中で+1
	HighCutoff           int      `yaml:"highCutoff"`
	MediumCutoff         int      `yaml:"mediumCutoff"`
}

// QueryPolicy は検索クエリ生成の構成要素
type QueryPolicy struct {
	PrioritySubstances  []string `yaml:"prioritySubstances"`
	ActionTerms         []string `yaml:"actionTerms"`
	ActionsPerSubstance int      `yaml:"actionsPerSubstance"`
	SiteFilter          string   `yaml:"siteFilter"`
	MaxQueries          int      `yaml:"maxQueries"`
}

// Policy はパイプライン全体のポリシー
type Policy struct {
	Relevance          RelevancePolicy `yaml:"relevance"`
	Query              QueryPolicy     `yaml:"query"`
	TargetRegions      []string        `yaml:"targetRegions"`
	PrefilterCountries []string        `yaml:"prefilterCountries"`
	DuplicateThreshold float64         `yaml:"duplicateThreshold"`
	FetchGoal          string          `yaml:"fetchGoal"`
}

// DefaultPolicy は既定のポリシーを返す
func DefaultPolicy() Policy {
	return Policy{
		Relevance: RelevancePolicy{
			HighTitleIndicators:  []string{"incautación", "decomiso", "captura", "operativo", "detención"},
			MediumBodyIndicators: []string{"droga", "narcótico", "estupefaciente", "sustancia"},
			HighCutoff:           3,
			MediumCutoff:         2,
		},
		Query: QueryPolicy{
			PrioritySubstances:  []string{"fentanilo", "tusi", "metanfetamina", "cocaína", "marihuana"},
			ActionTerms:         []string{"incautación", "decomiso", "captura", "detención", "operativo", "droga"},
			ActionsPerSubstance: 3,
			SiteFilter:          "site:-.com OR site:-.co OR site:-.ar OR site:-.br OR site:-.pe OR site:-.cl OR site:-.mx",
			MaxQueries:          15,
		},
		TargetRegions: []string{"America del Sur", "Caribe"},
		PrefilterCountries: []string{
			"argentina", "brazil", "brasil", "chile", "colombia", "peru", "perú",
			"ecuador", "bolivia", "uruguay", "paraguay", "venezuela", "guyana",
			"suriname", "mexico", "méxico", "guatemala", "honduras", "nicaragua",
			"costa rica", "panama", "panamá", "cuba", "jamaica", "dominicana",
		},
		DuplicateThreshold: 0.7,
		FetchGoal: "Extraer información completa sobre incidente de drogas: fecha, ubicación específica " +
			"(país, provincia, ciudad), tipo de droga, cantidad decomisada, autoridades involucradas",
	}
}

// LoadPolicy はYAMLファイルを読み込み、既定値に上書きしたPolicyを返す
//
// pathが空の場合は既定値をそのまま返す。
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return p, &ConfigLoadError{Path: path, Err: err}
	}
	// yaml.v3 は記載のないフィールドに触れないため、既定値の上にデコードできる
	if err := yaml.Unmarshal(b, &p); err != nil {
		return p, &ConfigLoadError{Path: path, Err: fmt.Errorf("parse policy: %w", err)}
	}
	if err := p.validate(); err != nil {
		return p, &ConfigLoadError{Path: path, Err: err}
	}
	return p, nil
}

func (p Policy) validate() error {
	if p.DuplicateThreshold <= 0 || p.DuplicateThreshold > 1 {
		return fmt.Errorf("duplicateThreshold must be in (0,1], got %v", p.DuplicateThreshold)
	}
	if p.Query.MaxQueries < 0 {
		return fmt.Errorf("query.maxQueries must be >= 0")
	}
	if len(p.TargetRegions) == 0 {
		return fmt.Errorf("targetRegions must not be empty")
	}
	return nil
}
