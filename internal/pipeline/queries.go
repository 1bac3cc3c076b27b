package pipeline

import (
	"fmt"
	"strings"
)

// BuildSearchQueries は「物質 × 行為語」の組み合わせで検索クエリを生成する
//
// 各優先物質について行為語の先頭 ActionsPerSubstance 件を組み合わせ、
// 期間（"últimos N días"）とサイトフィルタを付ける。総数は MaxQueries で打ち切る
// （0以下なら上限なし）。
//
//	"fentanilo incautación últimos 7 días site:-.com OR ..."
func BuildSearchQueries(p QueryPolicy, daysBack int) []string {
	timeLimit := fmt.Sprintf("últimos %d días", daysBack)

	actions := p.ActionTerms
	if p.ActionsPerSubstance > 0 && len(actions) > p.ActionsPerSubstance {
		actions = actions[:p.ActionsPerSubstance]
	}

	var queries []string
	for _, sub := range p.PrioritySubstances {
		for _, act := range actions {
			parts := []string{sub, act, timeLimit}
			if p.SiteFilter != "" {
				parts = append(parts, p.SiteFilter)
			}
			queries = append(queries, normalizeWhitespace(strings.Join(parts, " ")))
		}
	}

	if p.MaxQueries > 0 && len(queries) > p.MaxQueries {
		queries = queries[:p.MaxQueries]
	}
	return queries
}
