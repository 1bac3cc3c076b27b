// =============================================================================
// extract.go - フィールド抽出（日付・媒体・国・キーワード・物質・数量・場所・概要）
// =============================================================================
//
// 取得したページ本文から、インシデントの各フィールドをベストエフォートで
// 抽出します。各関数は互いに独立しており、1つのフィールドが見つからなくても
// 他のフィールドの抽出には影響しません。
//
// =============================================================================
// 【抽出方式】
// =============================================================================
//
// 正規表現ベースの抽出は「(パターン, ハンドラ) の順序付きリスト」で表現し、
// 先頭から評価して最初に一致したものを採用します（first-match-wins）。
//
//	日付:   D/M/Y → D-M-Y → Y-M-D
//	数量:   重量単位（kg, toneladas...） → 個数単位（pastillas, dosis...）
//	場所:   "en X, Y" → "municipio de X" → "ciudad de X"
//	        → "provincia de X" → "departamento de X"
//
// 一致しない場合はエラーではなく、既定値（センチネル）を返します：
//
//	┌──────────────┬──────────────────────────┐
//	│ フィールド   │ 既定値                   │
//	├──────────────┼──────────────────────────┤
//	│ 日付         │ 現在日付                 │
//	│ 媒体         │ "unknown"                │
//	│ 国           │ "unspecified"            │
//	│ 物質         │ ("unspecified", 同左)    │
//	│ 数量/単位    │ ("0,00", "no data")      │
//	│ 場所         │ 空文字列                 │
//	└──────────────┴──────────────────────────┘
//
// =============================================================================
package pipeline

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

const (
	maxKeywords          = 10  // キーワードの最大件数
	maxDescriptionRunes  = 500 // 概要の最大文字数
	descriptionLines     = 3   // 概要に使う行数
	minDescriptionLength = 20  // 概要に採用する行の最小文字数（これより長い行のみ）
)

// DateLayout はインシデントの公開日の表記（dd/mm/yyyy）
const DateLayout = "02/01/2006"

// =============================================================================
// 日付
// =============================================================================

type dateRule struct {
	re *regexp.Regexp
	// dmy はマッチ結果から (日, 月, 年) を取り出す
	dmy func(m []string) (day, month, year string)
}

var dateRules = []dateRule{
	{regexp.MustCompile(`(\d{1,2})/(\d{1,2})/(\d{4})`), func(m []string) (string, string, string) { return m[1], m[2], m[3] }},
	{regexp.MustCompile(`(\d{1,2})-(\d{1,2})-(\d{4})`), func(m []string) (string, string, string) { return m[1], m[2], m[3] }},
	{regexp.MustCompile(`(\d{4})-(\d{1,2})-(\d{1,2})`), func(m []string) (string, string, string) { return m[3], m[2], m[1] }},
}

// ExtractDate は本文から公開日を抽出し dd/mm/yyyy で返す
//
// いずれかのパターンが一致した時点でそのパターンの最初の一致を採用する。
// 一致がない、または暦として不正な日付（31/02など）の場合は now を返す。
func ExtractDate(text string, now time.Time) string {
	for _, r := range dateRules {
		m := r.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		d, mo, y := r.dmy(m)
		if t, ok := buildDate(d, mo, y); ok {
			return t.Format(DateLayout)
		}
		break
	}
	return now.Format(DateLayout)
}

func buildDate(day, month, year string) (time.Time, bool) {
	d, err1 := strconv.Atoi(day)
	m, err2 := strconv.Atoi(month)
	y, err3 := strconv.Atoi(year)
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	// time.Date は範囲外の値を繰り上げるので、往復で一致するか確認する
	if t.Day() != d || int(t.Month()) != m || t.Year() != y {
		return time.Time{}, false
	}
	return t, true
}

// ParseIncidentDate は dd/mm/yyyy（1桁の日・月も可）をパースする
func ParseIncidentDate(s string) (time.Time, bool) {
	t, err := time.Parse("2/1/2006", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// =============================================================================
// 媒体（ドメイン）
// =============================================================================

// ExtractMediaSource はURLから登録可能ドメイン（eTLD+1）を返す
//
// 例: "https://www.elcomercio.pe/lima/..." → "elcomercio.pe"
//
//	"https://noticias.uol.com.br/..."   → "uol.com.br"
func ExtractMediaSource(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Hostname() == "" {
		return UnknownSource
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if d, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return d
	}
	return host
}

// =============================================================================
// 数量・単位
// =============================================================================

// 数字は元の表記（"1.500", "2,5"）を保持する。単位の直後は単語境界を要求し、
// "3 tiendas" の "t" のような誤一致を避ける。
var quantityRules = []*regexp.Regexp{
	// 重量単位
	regexp.MustCompile(`(\d+(?:[.,]\d+)*)\s*(kilogramos?|kilos?|kg|gramos?|gr|toneladas?|t|libras?|lb)\b`),
	// 個数単位
	regexp.MustCompile(`(\d+(?:[.,]\d+)*)\s*(pastillas?|dosis|frascos?|envoltorios?|bolsas?)\b`),
}

// ExtractQuantity は本文から (数量, 単位) を抽出する
//
// 重量単位のパターンを先に評価し、次に個数単位を評価する。
// 単位換算は一切行わない。
func ExtractQuantity(text string) (quantity, unit string) {
	lower := strings.ToLower(text)
	for _, re := range quantityRules {
		if m := re.FindStringSubmatch(lower); m != nil {
			return m[1], m[2]
		}
	}
	return DefaultQuantity, UnitNoData
}

// FormatQuantity は数量と単位を "500 kilogramos" の形に整形する
//
// ExtractQuantity(FormatQuantity(q, u)) は (q, u) を返す。
func FormatQuantity(quantity, unit string) string {
	return quantity + " " + unit
}

// =============================================================================
// 場所（地区・州/県）
// =============================================================================

// placeName は大文字で始まる単語の並び（"San Juan de Lurigancho" など）
const placeName = `\p{Lu}\p{L}+(?:[ \t]+(?:(?:de|del|la|las|los)[ \t]+)?\p{Lu}\p{L}+)*`

type locationRule struct {
	re *regexp.Regexp
	// apply はマッチ結果を loc に書き込む
	apply func(m []string, loc *Location)
}

func setDistrict(m []string, loc *Location) { loc.District = strings.TrimSpace(m[1]) }

var locationRules = []locationRule{
	{
		regexp.MustCompile(`\b(?:[Ee]n|[Ii]n)\s+(` + placeName + `),\s*(` + placeName + `)`),
		func(m []string, loc *Location) {
			loc.District = strings.TrimSpace(m[1])
			loc.Province = strings.TrimSpace(m[2])
		},
	},
	{regexp.MustCompile(`\b(?:[Mm]unicipio\s+de|[Mm]unicipality\s+of)\s+(` + placeName + `)`), setDistrict},
	{regexp.MustCompile(`\b(?:[Cc]iudad\s+de|[Cc]ity\s+of)\s+(` + placeName + `)`), setDistrict},
	{regexp.MustCompile(`\b(?:[Pp]rovincia\s+de|[Pp]rovince\s+of)\s+(` + placeName + `)`), setDistrict},
	{regexp.MustCompile(`\b(?:[Dd]epartamento\s+de|[Dd]epartment\s+of)\s+(` + placeName + `)`), setDistrict},
}

// ExtractLocation は本文から地区（と州/県）を抽出する
//
// 国はこのパターン群からではなく、別途抽出した country をそのまま使う。
func ExtractLocation(text, country string) Location {
	loc := Location{Country: country}
	for _, r := range locationRules {
		if m := r.re.FindStringSubmatch(text); m != nil {
			r.apply(m, &loc)
			break
		}
	}
	return loc
}

// =============================================================================
// 概要
// =============================================================================

// ExtractDescription は本文の先頭から「20文字より長く、"["で始まらない」行を
// 3行集めてスペースで連結し、500文字に切り詰める
func ExtractDescription(text string) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len([]rune(line)) <= minDescriptionLength || strings.HasPrefix(line, "[") {
			continue
		}
		lines = append(lines, line)
		if len(lines) >= descriptionLines {
			break
		}
	}
	return truncateRunes(strings.Join(lines, " "), maxDescriptionRunes)
}

// =============================================================================
// 参照データを使う抽出
// =============================================================================

// FieldExtractor は参照データに依存する抽出（国・キーワード・物質）をまとめる
type FieldExtractor struct {
	ref *ReferenceData
}

// NewFieldExtractor は参照データから抽出器を作成する
func NewFieldExtractor(ref *ReferenceData) FieldExtractor {
	return FieldExtractor{ref: ref}
}

// Country はテキストに含まれる最初の対象国名（ファイル順）を返す
func (fx FieldExtractor) Country(text string) string {
	lower := strings.ToLower(text)
	for _, c := range fx.ref.Countries() {
		if strings.Contains(lower, strings.ToLower(c.Name)) {
			return c.Name
		}
	}
	return Unspecified
}

// Keywords はテキストに含まれるキーワードをキーワード表の順で最大10件返す
//
// 返す順序は本文中の出現順ではなく、キーワード表での順序。
func (fx FieldExtractor) Keywords(text string) []string {
	lower := strings.ToLower(text)
	found := []string{}
	for _, kw := range fx.ref.Keywords() {
		if strings.Contains(lower, kw) {
			found = append(found, kw)
			if len(found) >= maxKeywords {
				break
			}
		}
	}
	return found
}

// Substance はカテゴリ順・キーワード順に走査し、最初に見つかった
// (カテゴリ, キーワード) を返す
func (fx FieldExtractor) Substance(text string) (category, substance string) {
	lower := strings.ToLower(text)
	for _, c := range fx.ref.Categories() {
		for _, kw := range c.Keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				return c.Name, kw
			}
		}
	}
	return Unspecified, Unspecified
}
