// =============================================================================
// relevance.go - ルールベースの関連度分類
// =============================================================================
//
// 【スコアリング】
//
//	High判定:   タイトル指標フレーズ1つにつき +2
//	            一致キーワードがタイトルに含まれるごとに +1
//	            合計 >= 3 なら High
//	Medium判定: 本文指標フレーズ1つにつき +1
//	            合計 >= 2 なら Medium
//	それ以外:   Low
//
// しきい値はちょうど3（または2）でも上位ランクになる（以上判定）。
// 乱数や外部状態は使わないので、同じ入力なら常に同じ結果になる。
//
// =============================================================================
package pipeline

import "strings"

// RelevanceClassifier は関連度分類器（状態を持たない）
type RelevanceClassifier struct {
	policy RelevancePolicy
}

// NewRelevanceClassifier はポリシーから分類器を作成する
func NewRelevanceClassifier(p RelevancePolicy) RelevanceClassifier {
	return RelevanceClassifier{policy: p}
}

// Classify はタイトル・本文・一致キーワードから関連度を返す
func (c RelevanceClassifier) Classify(title, body string, keywords []string) Relevance {
	if c.highScore(title, keywords) >= c.policy.HighCutoff {
		return RelevanceHigh
	}
	if c.mediumScore(body) >= c.policy.MediumCutoff {
		return RelevanceMedium
	}
	return RelevanceLow
}

func (c RelevanceClassifier) highScore(title string, keywords []string) int {
	t := strings.ToLower(title)
	score := 0
	for _, ind := range c.policy.HighTitleIndicators {
		if ind != "" && strings.Contains(t, strings.ToLower(ind)) {
			score += 2
		}
	}
	for _, kw := range keywords {
		if kw != "" && strings.Contains(t, strings.ToLower(kw)) {
			score++
		}
	}
	return score
}

func (c RelevanceClassifier) mediumScore(body string) int {
	b := strings.ToLower(body)
	score := 0
	for _, ind := range c.policy.MediumBodyIndicators {
		if ind != "" && strings.Contains(b, strings.ToLower(ind)) {
			score++
		}
	}
	return score
}
