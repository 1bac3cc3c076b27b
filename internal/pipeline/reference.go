// =============================================================================
// reference.go - 参照データ（キーワード表・対象国テーブル）
// =============================================================================
//
// 起動時に1度だけCSVを読み込み、以後は読み取り専用で使う参照データです。
//
// 【キーワード表】
//   1行目がヘッダー（物質カテゴリ名）、2行目以降は各カテゴリ列の下に
//   キーワードが並ぶ。空セルはスキップ。
//
//	Cocaína,Cannabis,Sintéticas
//	cocaína,marihuana,fentanilo
//	pasta base,cannabis,tusi
//	clorhidrato,,éxtasis
//
// 【国テーブル】
//   名前付き列（Pais_Origen, alpha-2_Completo, Region, Geo）を持つCSV。
//   Regionが対象地域に含まれる行だけを保持する。
//
// 【順序について】
//   カテゴリ順・カテゴリ内キーワード順・国の順はすべてファイル順を保持する。
//   抽出時の「最初に一致したものを採用」はこの順序に依存する。
//
// =============================================================================
package pipeline

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// 国テーブルの列名
const (
	colCountryName   = "Pais_Origen"
	colCountryCode   = "alpha-2_Completo"
	colCountryRegion = "Region"
	colCountryGeo    = "Geo"
)

// Category は物質カテゴリとそのキーワード（ファイル順）
type Category struct {
	Name     string
	Keywords []string
}

// Country は対象国のメタデータ
type Country struct {
	Name        string `json:"name"`
	Code        string `json:"code"`
	Region      string `json:"region"`
	Coordinates string `json:"coordinates"`
}

// ReferenceData はキーワード表と対象国テーブルを保持する
//
// 生成後は変更しないため、複数の実行から同時に参照しても安全。
type ReferenceData struct {
	categories []Category
	keywords   []string // 小文字化・重複除去済み（ファイル順）
	countries  []Country
}

// NewReferenceData はメモリ上のカテゴリと国から参照データを組み立てる
func NewReferenceData(categories []Category, countries []Country) *ReferenceData {
	rd := &ReferenceData{
		categories: make([]Category, 0, len(categories)),
		countries:  append([]Country{}, countries...),
	}
	var flat []string
	for _, c := range categories {
		kws := append([]string{}, c.Keywords...)
		rd.categories = append(rd.categories, Category{Name: c.Name, Keywords: kws})
		for _, kw := range kws {
			flat = append(flat, strings.ToLower(kw))
		}
	}
	rd.keywords = uniqStrings(flat)
	return rd
}

// LoadReferenceData はキーワード表と国テーブルを読み込む
//
// どちらかのファイルが読めない・壊れている場合は *ConfigLoadError を返す。
func LoadReferenceData(keywordsPath, countriesPath string, regions []string) (*ReferenceData, error) {
	categories, err := LoadKeywords(keywordsPath)
	if err != nil {
		return nil, err
	}
	countries, err := LoadCountries(countriesPath, regions)
	if err != nil {
		return nil, err
	}
	return NewReferenceData(categories, countries), nil
}

// LoadKeywords はキーワード表CSVを読み込む
func LoadKeywords(path string) ([]Category, error) {
	records, err := readCSVFile(path)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, &ConfigLoadError{Path: path, Err: fmt.Errorf("empty keyword file")}
	}

	header := records[0]
	categories := make([]Category, len(header))
	for i, h := range header {
		categories[i].Name = strings.TrimSpace(h)
	}

	for _, row := range records[1:] {
		for i, cell := range row {
			kw := strings.TrimSpace(cell)
			// 空セルとヘッダー範囲外のセルはスキップ
			if kw == "" || i >= len(categories) {
				continue
			}
			categories[i].Keywords = append(categories[i].Keywords, kw)
		}
	}

	// 名前のない列は捨てる
	out := categories[:0]
	for _, c := range categories {
		if c.Name != "" {
			out = append(out, c)
		}
	}
	return out, nil
}

// LoadCountries は国テーブルCSVを読み込み、対象地域の行だけを返す
func LoadCountries(path string, regions []string) ([]Country, error) {
	records, err := readCSVFile(path)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, &ConfigLoadError{Path: path, Err: fmt.Errorf("empty country file")}
	}

	idx := map[string]int{}
	for i, h := range records[0] {
		idx[strings.TrimSpace(h)] = i
	}
	for _, col := range []string{colCountryName, colCountryCode, colCountryRegion, colCountryGeo} {
		if _, ok := idx[col]; !ok {
			return nil, &ConfigLoadError{Path: path, Err: fmt.Errorf("missing column %q", col)}
		}
	}

	wanted := map[string]bool{}
	for _, r := range regions {
		wanted[r] = true
	}

	cell := func(row []string, col string) string {
		i := idx[col]
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var out []Country
	for _, row := range records[1:] {
		region := cell(row, colCountryRegion)
		if !wanted[region] {
			continue
		}
		name := cell(row, colCountryName)
		if name == "" {
			continue
		}
		out = append(out, Country{
			Name:        name,
			Code:        cell(row, colCountryCode),
			Region:      region,
			Coordinates: cell(row, colCountryGeo),
		})
	}
	return out, nil
}

// readCSVFile はCSVファイル全体を読み込む（UTF-8 BOMは除去）
func readCSVFile(path string) ([][]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigLoadError{Path: path, Err: err}
	}
	b = bytes.TrimPrefix(b, []byte("\xef\xbb\xbf"))

	r := csv.NewReader(bytes.NewReader(b))
	r.FieldsPerRecord = -1 // 行ごとに列数が違ってもよい
	r.LazyQuotes = true

	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ConfigLoadError{Path: path, Err: fmt.Errorf("parse csv: %w", err)}
		}
		records = append(records, rec)
	}
	return records, nil
}

// -----------------------------------------------------------------------------
// 参照系メソッド
// -----------------------------------------------------------------------------

// Categories はカテゴリ一覧（ファイル順）を返す
func (rd *ReferenceData) Categories() []Category { return rd.categories }

// Keywords は小文字化・重複除去済みの全キーワード（ファイル順）を返す
func (rd *ReferenceData) Keywords() []string { return rd.keywords }

// Countries は対象国一覧（ファイル順）を返す
func (rd *ReferenceData) Countries() []Country { return rd.countries }

// IsTargetCountry はテキストが対象国のいずれかに該当するかを返す
//
// 国名がテキストに含まれる、またはテキストが国名に含まれる場合に一致とみなす
// （大文字小文字は無視）。"Perú" と "Peru" のような部分的な表記ゆれを許容する
// ための緩い判定で、短い入力では誤一致しうる。空文字列は常に不一致。
func (rd *ReferenceData) IsTargetCountry(text string) bool {
	_, ok := rd.CountryInfo(text)
	return ok
}

// CountryInfo はIsTargetCountryと同じ判定で最初に一致した国を返す
func (rd *ReferenceData) CountryInfo(name string) (Country, bool) {
	q := strings.ToLower(strings.TrimSpace(name))
	if q == "" {
		return Country{}, false
	}
	for _, c := range rd.countries {
		cn := strings.ToLower(c.Name)
		if strings.Contains(q, cn) || strings.Contains(cn, q) {
			return c, true
		}
	}
	return Country{}, false
}
