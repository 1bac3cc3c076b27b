// =============================================================================
// dedup.go - 重複インシデント検出
// =============================================================================
//
// 同じ事件を報じた別媒体の記事を、場所・日付・内容の3つのシグナルを
// 重み付けした合成スコアで検出します。
//
// =============================================================================
// 【スコア計算】
// =============================================================================
//
//	合成スコア = 0.4 × 場所 + 0.3 × 日付 + 0.3 × 内容
//
//	場所（上から順に判定し、最初に成立した値を採用。加算はしない）:
//	  地区が一致（大文字小文字無視）     → 1.0
//	  州/県が一致                        → 0.8
//	  国が一致                           → 0.5
//	  それ以外                           → 0.0
//
//	日付（公開日の差の絶対値）:
//	  0日 → 1.0 / 1日以内 → 0.8 / 3日以内 → 0.5 / それ以外・解析不能 → 0.0
//
//	内容: 「タイトル + 概要」を小文字化し、最長一致ブロックに基づく
//	      類似度比（difflib の Ratio）を計算
//
// =============================================================================
// 【判定ルール】
// =============================================================================
//
//   - 保存済みオリジナルを追加順に走査し、合成スコアがしきい値「以上」になった
//     最初の1件を重複元として返す（全体の最大値ではない）
//   - 重複と判定されたインシデントは Add しない。重複の連鎖は起きない
//
// =============================================================================
package pipeline

import (
	"math"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// 合成スコアの重み
const (
	weightLocation = 0.4
	weightDate     = 0.3
	weightContent  = 0.3
)

// DefaultDuplicateThreshold は重複判定の既定しきい値
const DefaultDuplicateThreshold = 0.7

// DuplicateDetector は実行中に受理したオリジナルを保持し、新しい候補と比較する
//
// 1回の実行（IncidentPipeline.Run）ごとに新しく作る。ゴルーチン間では共有しない。
type DuplicateDetector struct {
	threshold float64
	originals []Incident
}

// NewDuplicateDetector はしきい値を指定して検出器を作る
//
// threshold が (0,1] の範囲外なら DefaultDuplicateThreshold を使う。
func NewDuplicateDetector(threshold float64) *DuplicateDetector {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultDuplicateThreshold
	}
	return &DuplicateDetector{threshold: threshold}
}

// Threshold は現在のしきい値を返す
func (d *DuplicateDetector) Threshold() float64 { return d.threshold }

// Len は保存済みオリジナルの件数を返す
func (d *DuplicateDetector) Len() int { return len(d.originals) }

// Evaluate は候補が保存済みオリジナルの重複かどうかを判定する
//
// 戻り値は (重複か, 重複元ID, 合成スコア)。重複でない場合は ("", 0)。
func (d *DuplicateDetector) Evaluate(c Incident) (bool, string, float64) {
	for _, o := range d.originals {
		score := Similarity(c, o)
		if score >= d.threshold {
			return true, o.ID, score
		}
	}
	return false, "", 0
}

// Add は受理したオリジナルを比較対象に追加する
//
// 重複としてタグ付けされたインシデントは無視する。
func (d *DuplicateDetector) Add(i Incident) {
	if i.IsDuplicate() {
		return
	}
	d.originals = append(d.originals, i)
}

// Similarity は2件のインシデントの合成類似度を返す
func Similarity(a, b Incident) float64 {
	return weightLocation*LocationSimilarity(a.Location, b.Location) +
		weightDate*DateSimilarity(a.PublicationDate, b.PublicationDate) +
		weightContent*ContentSimilarity(a, b)
}

// LocationSimilarity は地区 → 州/県 → 国の優先順で場所の一致度を返す
//
// 比較は両方が空でない場合のみ行う。
func LocationSimilarity(a, b Location) float64 {
	switch {
	case sameNonEmpty(a.District, b.District):
		return 1.0
	case sameNonEmpty(a.Province, b.Province):
		return 0.8
	case sameNonEmpty(a.Country, b.Country):
		return 0.5
	}
	return 0
}

func sameNonEmpty(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	return a != "" && b != "" && strings.EqualFold(a, b)
}

// DateSimilarity は dd/mm/yyyy 形式の2つの日付の近さを返す
func DateSimilarity(a, b string) float64 {
	ta, ok1 := ParseIncidentDate(a)
	tb, ok2 := ParseIncidentDate(b)
	if !ok1 || !ok2 {
		return 0
	}
	days := math.Abs(ta.Sub(tb).Hours() / 24)
	switch {
	case days == 0:
		return 1.0
	case days <= 1:
		return 0.8
	case days <= 3:
		return 0.5
	}
	return 0
}

// ContentSimilarity は「タイトル + 概要」同士の類似度比を返す
//
// 文字（rune）単位の列として比較する。difflib の自動ジャンク判定は
// 比較の向きで結果が変わるため無効にし、さらに両方向の大きい方を採る。
func ContentSimilarity(a, b Incident) float64 {
	sa := contentKey(a)
	sb := contentKey(b)
	if sa == "" && sb == "" {
		return 0
	}
	ra, rb := splitRunes(sa), splitRunes(sb)
	fwd := difflib.NewMatcherWithJunk(ra, rb, false, nil).Ratio()
	rev := difflib.NewMatcherWithJunk(rb, ra, false, nil).Ratio()
	return math.Max(fwd, rev)
}

func contentKey(i Incident) string {
	return strings.ToLower(strings.TrimSpace(i.Title + " " + i.Description))
}

func splitRunes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
