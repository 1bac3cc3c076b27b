package pipeline

import "fmt"

// ConfigLoadError は参照データ（キーワード表・国テーブル・ポリシー）の
// 読み込み失敗を表す。起動時の致命的エラーで、実行は開始できない。
type ConfigLoadError struct {
	Path string
	Err  error
}

func (e *ConfigLoadError) Error() string {
	return fmt.Sprintf("config load %s: %v", e.Path, e.Err)
}

func (e *ConfigLoadError) Unwrap() error { return e.Err }

// ExtractionError は候補1件のフィールド抽出中の失敗を表す。
// パイプライン内で回収され、その候補だけが破棄される。
type ExtractionError struct {
	ID  string
	URL string
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s (%s): %v", e.ID, e.URL, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }
