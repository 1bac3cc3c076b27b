package pipeline

import (
	"fmt"
	"sort"
	"strings"
)

const (
	summaryDuplicateSamples = 3
	summaryTopN             = 5
)

// CountStat は集計の1行（名前・件数・全体に対する割合%）
type CountStat struct {
	Name    string  `json:"name"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// DuplicateRef は重複インシデントの要約
type DuplicateRef struct {
	ID          string  `json:"id"`
	DuplicateOf string  `json:"duplicateOf"`
	Score       float64 `json:"score"`
}

// Summary はバッチの統計
type Summary struct {
	Total            int            `json:"total"`
	Duplicates       int            `json:"duplicates"`
	DuplicateSamples []DuplicateRef `json:"duplicateSamples,omitempty"` // 先頭3件
	ByRelevance      []CountStat    `json:"byRelevance"`                // High → Medium → Low
	TopCountries     []CountStat    `json:"topCountries"`               // 上位5件
	TopSubstances    []CountStat    `json:"topSubstances"`              // 上位5件（unspecified除く）
	WithCoordinates  int            `json:"withCoordinates"`            // 国レベルの座標あり
	CoordinatesPct   float64        `json:"coordinatesPct"`
}

// Summarize はインシデント一覧から統計を作る
//
// 上位N件は件数の降順、同数なら先に出現した方が上。
func Summarize(incidents []Incident) Summary {
	s := Summary{Total: len(incidents)}

	rel := map[Relevance]int{}
	var countries, substances []string
	countryCount := map[string]int{}
	substanceCount := map[string]int{}

	for _, inc := range incidents {
		if inc.IsDuplicate() {
			s.Duplicates++
			if len(s.DuplicateSamples) < summaryDuplicateSamples {
				s.DuplicateSamples = append(s.DuplicateSamples, DuplicateRef{
					ID: inc.ID, DuplicateOf: inc.DuplicateOf, Score: inc.SimilarityScore,
				})
			}
		}
		rel[inc.Relevance]++

		if countryCount[inc.OriginCountry] == 0 {
			countries = append(countries, inc.OriginCountry)
		}
		countryCount[inc.OriginCountry]++

		if inc.SubstanceType != "" && inc.SubstanceType != Unspecified {
			if substanceCount[inc.SubstanceType] == 0 {
				substances = append(substances, inc.SubstanceType)
			}
			substanceCount[inc.SubstanceType]++
		}

		if inc.Coordinates.Country != "" {
			s.WithCoordinates++
		}
	}

	for _, r := range []Relevance{RelevanceHigh, RelevanceMedium, RelevanceLow} {
		if n := rel[r]; n > 0 {
			s.ByRelevance = append(s.ByRelevance, CountStat{Name: string(r), Count: n, Percent: percent(n, s.Total)})
		}
	}
	s.TopCountries = topN(countries, countryCount, s.Total, summaryTopN)
	s.TopSubstances = topN(substances, substanceCount, s.Total, summaryTopN)
	s.CoordinatesPct = percent(s.WithCoordinates, s.Total)
	return s
}

func topN(order []string, counts map[string]int, total, n int) []CountStat {
	out := make([]CountStat, 0, len(order))
	for _, name := range order {
		out = append(out, CountStat{Name: name, Count: counts[name], Percent: percent(counts[name], total)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

// Render はプレーンテキストのレポートを返す（CLIとメール本文で使う）
//
//	Total incidents: 12
//	Duplicates: 2
//	  - A0000007 (similar to A0000003, 0.84)
//	Relevance:
//	  - High: 5 (41.7%)
//	...
func (s Summary) Render() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Total incidents: %d\n", s.Total)
	fmt.Fprintf(&sb, "Duplicates: %d\n", s.Duplicates)
	for _, d := range s.DuplicateSamples {
		fmt.Fprintf(&sb, "  - %s (similar to %s, %.2f)\n", d.ID, d.DuplicateOf, d.Score)
	}
	if extra := s.Duplicates - len(s.DuplicateSamples); extra > 0 {
		fmt.Fprintf(&sb, "  - ... and %d more\n", extra)
	}

	writeStats := func(title string, stats []CountStat, withPct bool) {
		if len(stats) == 0 {
			return
		}
		sb.WriteString(title + ":\n")
		for _, c := range stats {
			if withPct {
				fmt.Fprintf(&sb, "  - %s: %d (%.1f%%)\n", c.Name, c.Count, c.Percent)
			} else {
				fmt.Fprintf(&sb, "  - %s: %d\n", c.Name, c.Count)
			}
		}
	}
	writeStats("Relevance", s.ByRelevance, true)
	writeStats("Top countries", s.TopCountries, false)
	writeStats("Top substances", s.TopSubstances, false)

	fmt.Fprintf(&sb, "With coordinates: %d (%.1f%%)\n", s.WithCoordinates, s.CoordinatesPct)
	return sb.String()
}
