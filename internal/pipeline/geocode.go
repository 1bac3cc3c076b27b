// =============================================================================
// geocode.go - 地名 → 緯度経度
// =============================================================================
//
// MapsGeocoder は専用のジオコーディングAPIを使わず、既存の検索・取得
// コラボレーターを組み合わせて座標を探します。
//
//  1. "Google Maps <地区>, <州/県>, <国> coordinates exact location" で検索
//  2. 結果テキストから Google Maps のリンクを探す
//  3. リンク自体に "@lat,lng" があればそれを使う
//  4. 無ければリンク先を取得し、本文から座標パターンを探す
//
// 【座標パターン（上から順に評価）】
//
//	@-12.0464,-77.0428
//	"latitude": -12.0464 ... "longitude": -77.0428
//	-12.0464, -77.0428（小数4桁以上の組）
//
// =============================================================================
package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Place はジオコーディング対象の地名（階層つき、空の階層は無視）
type Place struct {
	Country  string
	Province string
	District string
}

// String は "地区, 州/県, 国" の形で空でない階層を連結する
func (p Place) String() string {
	var parts []string
	for _, s := range []string{p.District, p.Province, p.Country} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

// GeoPoint は緯度経度（元の表記のまま文字列で保持）
type GeoPoint struct {
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
}

// String は "lat, lng" を返す
func (g GeoPoint) String() string {
	return g.Latitude + ", " + g.Longitude
}

// Geocoder はジオコーディングコラボレーター
type Geocoder interface {
	// Geocode は地名を座標に解決する。見つからない場合は found=false
	Geocode(ctx context.Context, p Place) (GeoPoint, bool, error)
}

// GeocoderFunc は関数を Geocoder として使うためのアダプタ
type GeocoderFunc func(ctx context.Context, p Place) (GeoPoint, bool, error)

// Geocode は f(ctx, p) を呼ぶ
func (f GeocoderFunc) Geocode(ctx context.Context, p Place) (GeoPoint, bool, error) {
	return f(ctx, p)
}

var (
	reMapsLink    = regexp.MustCompile(`https://(?:maps\.google\.com|www\.google\.com/maps)[^\s\)\]]+`)
	coordPatterns = []*regexp.Regexp{
		regexp.MustCompile(`@(-?\d+\.\d+),(-?\d+\.\d+)`),
		regexp.MustCompile(`(?is)latitude["\s:]+(-?\d+\.\d+).*?longitude["\s:]+(-?\d+\.\d+)`),
		regexp.MustCompile(`(-?\d+\.\d{4,})[,\s]+(-?\d+\.\d{4,})`),
	}
)

// MapsGeocoder は検索と取得で Google Maps のページから座標を探す Geocoder
type MapsGeocoder struct {
	searcher Searcher
	fetcher  Fetcher
}

// NewMapsGeocoder は MapsGeocoder を作成する
func NewMapsGeocoder(s Searcher, f Fetcher) *MapsGeocoder {
	return &MapsGeocoder{searcher: s, fetcher: f}
}

// Geocode は地名の座標を探す
func (g *MapsGeocoder) Geocode(ctx context.Context, p Place) (GeoPoint, bool, error) {
	loc := p.String()
	if loc == "" {
		return GeoPoint{}, false, nil
	}

	blob, err := g.searcher.Search(ctx, []string{fmt.Sprintf("Google Maps %s coordinates exact location", loc)})
	if err != nil {
		return GeoPoint{}, false, fmt.Errorf("geocode search %q: %w", loc, err)
	}
	link := reMapsLink.FindString(blob)
	if link == "" {
		return GeoPoint{}, false, nil
	}
	if pt, ok := FindCoordinates(link); ok {
		return pt, true, nil
	}

	content, err := g.fetcher.Fetch(ctx, link, "Extraer coordenadas exactas (latitud, longitud) de "+loc)
	if err != nil {
		return GeoPoint{}, false, fmt.Errorf("geocode fetch %s: %w", link, err)
	}
	pt, ok := FindCoordinates(content)
	return pt, ok, nil
}

// FindCoordinates はテキストから最初に見つかった座標の組を返す
func FindCoordinates(text string) (GeoPoint, bool) {
	for _, re := range coordPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return GeoPoint{Latitude: m[1], Longitude: m[2]}, true
		}
	}
	return GeoPoint{}, false
}

// ParseGeoColumn は国テーブルの Geo 列（"lat, lng" / "lat lng"）を座標にする
func ParseGeoColumn(s string) (GeoPoint, bool) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == ';' })
	if len(fields) != 2 {
		return GeoPoint{}, false
	}
	for _, f := range fields {
		if _, err := strconv.ParseFloat(f, 64); err != nil {
			return GeoPoint{}, false
		}
	}
	return GeoPoint{Latitude: fields[0], Longitude: fields[1]}, true
}
