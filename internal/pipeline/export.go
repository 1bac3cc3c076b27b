// =============================================================================
// export.go - CSVレポート出力
// =============================================================================
//
// 分析チームが既存の表計算シートに貼り付けて使うレイアウト（40列）で
// インシデントを書き出します。列名・列順は既存シートに合わせて固定です。
//
// 【派生列】
//
//	Fecha / Dia / Semana(ISO週) / Quincena(1: 1〜15日, 2: 16日〜) /
//	Mes_Largo(英語の月名) / Trimestre(T1〜T4) / Año
//
// 公開日が解析できない場合、派生列は出力時刻から計算します。
//
// =============================================================================
package pipeline

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// CSVTimestampLayout はファイル名に付けるタイムスタンプの形式
const CSVTimestampLayout = "20060102_150405"

var csvHeader = []string{
	"Articulo_ID", "CUI", "Fecha_Publicacion_Articulo", "Titulo_Articulo",
	"Descripcion_Articulo", "Medio", "URL_Acortada", "Pais_Origen_Articulo",
	"Cod_Continente", "Idioma", "Categoria_tematica", "Relevancia_Mencion",
	"Frecuencia_Mencion", "Impacto_Articulo", "Keywords",
	"Clasificacion_Sust_Estup_Decomisada", "Tipo_Sus_Estup_Decomisada",
	"Cant_Sust_Estup_Sintetica_incautada", "Unidad", "Fueza_interviniente",
	"Ubicacion_Secuestro", "Region", "Sub region", "Pais", "Provincia",
	"Distrito", "Alfa_2", "ISO_3166_2", "Geo_Pais", "Geo_Prov",
	"Geo_Distrito", "Fecha", "Dia", "Semana", "Quincena", "Mes_Largo",
	"Trimestre", "Año", "Duplicado_De", "Similarity_Score",
}

// CSVHeader は出力CSVの列名（コピー）を返す
func CSVHeader() []string {
	return append([]string{}, csvHeader...)
}

// CSVFilename は "<prefix>_<YYYYmmdd_HHMMSS>.csv" を返す
func CSVFilename(prefix string, t time.Time) string {
	return fmt.Sprintf("%s_%s.csv", prefix, t.Format(CSVTimestampLayout))
}

// WriteCSV はヘッダー行とインシデント1件1行を w に書き出す
func WriteCSV(w io.Writer, incidents []Incident, now time.Time) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, inc := range incidents {
		if err := cw.Write(csvRow(inc, now)); err != nil {
			return fmt.Errorf("write %s: %w", inc.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile は dir 以下に CSVFilename(prefix, now) で書き出し、パスを返す
func WriteCSVFile(dir, prefix string, incidents []Incident, now time.Time) (string, error) {
	path := filepath.Join(dir, CSVFilename(prefix, now))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := WriteCSV(f, incidents, now); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}

func csvRow(inc Incident, now time.Time) []string {
	d, ok := ParseIncidentDate(inc.PublicationDate)
	if !ok {
		d = now
	}
	_, week := d.ISOWeek()
	fortnight := 1
	if d.Day() > 15 {
		fortnight = 2
	}
	subRegion := inc.Region
	if subRegion == "" {
		subRegion = "America del Sur"
	}
	score := ""
	if inc.SimilarityScore != 0 {
		score = strconv.FormatFloat(inc.SimilarityScore, 'f', 2, 64)
	}

	return []string{
		inc.ID,
		inc.ID,
		inc.PublicationDate,
		inc.Title,
		inc.Description,
		inc.SourceDomain,
		inc.URL,
		inc.OriginCountry,
		"SA",
		"ES",
		"Incidente",
		string(inc.Relevance),
		"Media",
		"Medio",
		strings.Join(inc.Keywords, ", "),
		inc.SubstanceCategory,
		inc.SubstanceType,
		inc.Quantity,
		inc.Unit,
		"",
		inc.Location.District,
		"America",
		subRegion,
		inc.Location.Country,
		inc.Location.Province,
		inc.Location.District,
		inc.ISOCode,
		"",
		inc.Coordinates.Country,
		inc.Coordinates.Province,
		inc.Coordinates.District,
		inc.PublicationDate,
		strconv.Itoa(d.Day()),
		strconv.Itoa(week),
		strconv.Itoa(fortnight),
		d.Month().String(),
		fmt.Sprintf("T%d", (int(d.Month())-1)/3+1),
		strconv.Itoa(d.Year()),
		inc.DuplicateOf,
		score,
	}
}
