// =============================================================================
// utils.go - ユーティリティ関数
// =============================================================================
//
// パッケージ全体で使う汎用ヘルパーです。
//
// 【このファイルで提供する機能】
//   - 文字列操作: 重複削除、空白正規化、rune単位の切り詰め
//   - JSON操作: 書き出し（stdout / ファイル）と読み込み
//
// =============================================================================
package pipeline

import (
	"encoding/json"
	"io"
	"os"
	"strings"
)

// -----------------------------------------------------------------------------
// 文字列操作関数
// -----------------------------------------------------------------------------

// normalizeWhitespace は文字列内の連続する空白を単一スペースに正規化する
//
//	normalizeWhitespace("  hola   mundo  ")  // "hola mundo"
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// uniqStrings は文字列スライスから重複と空文字列を除去する（出現順を保持）
//
//	uniqStrings([]string{"a", "b", "a", "", "c"})  // ["a", "b", "c"]
func uniqStrings(in []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// truncateRunes は文字列を先頭 n 文字（rune単位）に切り詰める
//
// 省略記号は付けない。スペイン語のアクセント付き文字も1文字として数える。
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// truncateString は maxLen 文字を超える場合に末尾を "..." にして切り詰める
//
//	truncateString("Hello World", 8)  // "Hello..."
//	truncateString("corto", 10)       // "corto"
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// -----------------------------------------------------------------------------
// JSON操作関数
// -----------------------------------------------------------------------------

// WriteJSON は任意のデータを2スペースインデントのJSONで w に書き出す
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteJSONToStdout は WriteJSON の標準出力版
//
//	./pipeline -scan quick | jq '.incidents[].id'
func WriteJSONToStdout(v any) error {
	return WriteJSON(os.Stdout, v)
}

// WriteJSONFile は任意のデータをJSONでファイルに保存する（権限 0o644）
func WriteJSONFile(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// ReadJSONFile はJSONファイルを読み込んで out に変換する
//
//	var res RunResult
//	err := ReadJSONFile("scan.json", &res)
func ReadJSONFile(path string, out any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}
