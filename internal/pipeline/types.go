// =============================================================================
// types.go - データ構造定義
// =============================================================================
//
// このファイルはnarco-relayシステム全体で使用するデータ構造（型）を定義します。
//
// 【このファイルで定義している型】
//   - Incident:     ニュース記事1件から抽出した麻薬関連インシデント
//   - Location:     インシデントの発生場所（国・州/県・地区）
//   - Coordinates:  各階層の緯度経度文字列
//   - Relevance:    関連度ランク（High / Medium / Low）
//   - CandidateLink: 検索結果から取り出した (タイトル, URL) の組
//   - RunResult:    1回の実行結果（インシデント一覧 + 集計）
//
// 【初心者向けポイント】
//   - `json:"フィールド名"`はJSONに変換する際のキー名を指定するタグ
//   - `omitempty`は値が空の場合、JSONに出力しないことを意味
//
// =============================================================================
package pipeline

import "time"

// -----------------------------------------------------------------------------
// センチネル値（抽出できなかった場合の既定値）
// -----------------------------------------------------------------------------
const (
	Unspecified     = "unspecified" // 国・物質カテゴリ・物質種別が見つからない場合
	UnknownSource   = "unknown"     // URLからドメインを取得できない場合
	DefaultQuantity = "0,00"        // 数量が見つからない場合
	UnitNoData      = "no data"     // 単位が見つからない場合
)

// Relevance は記事の関連度ランク
type Relevance string

const (
	RelevanceHigh   Relevance = "High"
	RelevanceMedium Relevance = "Medium"
	RelevanceLow    Relevance = "Low"
)

// Valid は固定の3ランクのいずれかであればtrueを返す
func (r Relevance) Valid() bool {
	switch r {
	case RelevanceHigh, RelevanceMedium, RelevanceLow:
		return true
	}
	return false
}

// -----------------------------------------------------------------------------
// Location - 発生場所
// -----------------------------------------------------------------------------
//
// Countryは国抽出（FieldExtractor.Country）の結果、Province/Districtは
// 位置パターン（ExtractLocation）の結果。見つからない項目は空文字列。
type Location struct {
	Country  string `json:"country,omitempty"`
	Province string `json:"province,omitempty"`
	District string `json:"district,omitempty"`
}

// Coordinates は階層ごとの「緯度, 経度」文字列（取得できなければ空）
type Coordinates struct {
	Country  string `json:"country,omitempty"`
	Province string `json:"province,omitempty"`
	District string `json:"district,omitempty"`
}

// -----------------------------------------------------------------------------
// Incident - 麻薬関連インシデント
// -----------------------------------------------------------------------------
//
// 1つのURLから作られる構造化レコード。作成後に変更されるのは
// 重複判定の結果（DuplicateOf / SimilarityScore）の1回だけ。
//
// 【不変条件】
//   - オリジナル: DuplicateOf == "" かつ SimilarityScore == 0
//   - 重複:       DuplicateOf != "" かつ SimilarityScore >= しきい値
//
// 重複も出力には残るが、DuplicateDetectorの比較対象には追加されない。
type Incident struct {
	ID                string      `json:"id"`                // "A" + 7桁連番
	Title             string      `json:"title"`             // 記事タイトル
	Description       string      `json:"description"`       // 本文先頭3行（最大500文字）
	PublicationDate   string      `json:"publicationDate"`   // dd/mm/yyyy
	SourceDomain      string      `json:"sourceDomain"`      // 登録可能ドメイン
	URL               string      `json:"url"`               // 記事URL（実行内で一意）
	OriginCountry     string      `json:"originCountry"`     // 対象国名
	ISOCode           string      `json:"isoCode,omitempty"` // 国コード（国テーブルより）
	Region            string      `json:"region,omitempty"`  // 地域（国テーブルより）
	Relevance         Relevance   `json:"relevance"`         // High / Medium / Low
	Keywords          []string    `json:"keywords"`          // 最大10件（キーワード表の順）
	SubstanceCategory string      `json:"substanceCategory"` // 物質カテゴリ
	SubstanceType     string      `json:"substanceType"`     // 物質種別（一致したキーワード）
	Quantity          string      `json:"quantity"`          // 元の数字表記のまま
	Unit              string      `json:"unit"`              // 単位
	Location          Location    `json:"location"`
	Coordinates       Coordinates `json:"coordinates"`
	DuplicateOf       string      `json:"duplicateOf,omitempty"` // 一致した先行インシデントのID
	SimilarityScore   float64     `json:"similarityScore"`       // 重複でなければ0
}

// IsDuplicate は重複としてタグ付けされているかを返す
func (i Incident) IsDuplicate() bool {
	return i.DuplicateOf != ""
}

// CandidateLink は検索結果セクションから抽出したリンク
//
// Sectionはリンクを含んでいた検索結果セクション全体。国プレフィルタと
// 国抽出の文脈として使う。
type CandidateLink struct {
	Title   string
	URL     string
	Section string
}

// RunResult は IncidentPipeline.Run の1回分の結果
type RunResult struct {
	RunID      string     `json:"runId"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt time.Time  `json:"finishedAt"`
	Queries    []string   `json:"queries"`
	Considered int        `json:"considered"` // IDを割り当てた候補数
	Incidents  []Incident `json:"incidents"`
	Summary    Summary    `json:"summary"`
}
