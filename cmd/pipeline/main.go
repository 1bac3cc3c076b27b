// =============================================================================
// main.go - Narco Relay パイプラインのエントリーポイント
// =============================================================================
//
// 中南米の麻薬押収ニュースを検索し、構造化したインシデントとして出力する
// CLIツールです。
//
// =============================================================================
// 【処理フロー】
// =============================================================================
//
//   ┌─────────────┐    ┌─────────────┐    ┌─────────────┐
//   │  1. 設定    │ -> │  2. 検証    │ -> │  3. 実行    │
//   │  読み込み   │    │  セットアップ│    │  Run        │
//   └─────────────┘    └─────────────┘    └─────────────┘
//          │                  │                  │
//          v                  v                  v
//   .env読み込み        参照ファイル・      検索 → 取得 → 抽出
//   CLIフラグ解析       APIキーの確認       → 分類 → 重複判定
//
//   ┌─────────────┐    ┌─────────────┐    ┌─────────────┐
//   │  4. 出力    │ -> │  5. 配信    │ -> │  6. 統計    │
//   │  JSON / CSV │    │  Notion/Mail│    │  stderr     │
//   └─────────────┘    └─────────────┘    └─────────────┘
//
// =============================================================================
// 【CLIフラグ一覧】
// =============================================================================
//
// ▼ 入力
//   -keywords        キーワード表CSV（デフォルト: data/keywords.csv）
//   -countries       対象国テーブルCSV（デフォルト: data/countries.csv）
//   -policy          ポリシーYAML（省略時: 組み込みの既定値）
//
// ▼ 検索
//   -searchProvider  openai | gnews（デフォルト: openai）
//   -openaiModel     OpenAIモデル（デフォルト: gpt-4o-mini）
//   -maxQueries      クエリ数の上限
//
// ▼ 期間・重複判定
//   -scan            quick(3日) | weekly(7日) | extended(14日)
//   -daysBack        任意の日数（1〜30、-scan より優先）
//   -threshold       重複判定しきい値（デフォルト: 0.7）
//
// ▼ 出力
//   -out             出力JSONファイルパス（省略時: stdout）
//   -csv             CSVのファイル名プレフィックス
//   -notionClip      Notionデータベースに保存
//   -sendEmail       実行サマリーをメール送信
//
// ▼ その他
//   -fetchRate       ページ取得の上限（リクエスト/秒）
//   -debug           debugログを出す
//
// 進捗ログはすべて stderr に出力します（stdout はJSONのみ）。
//
// =============================================================================
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv" // .env ファイル読み込み
	"go.uber.org/zap"

	"narco-relay/internal/pipeline"
)

func main() {
	// .env が無くても環境変数だけで動かせる
	envErr := godotenv.Load()

	cfg, err := pipeline.ParseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fatalf("parsing flags: %v", err)
	}

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		fatalf("creating logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if envErr != nil {
		logger.Debug(".env file not loaded, using environment variables only", zap.Error(envErr))
	}

	if err := cfg.VerifySetup(); err != nil {
		fatalf("setup check failed:\n%v", err)
	}
	daysBack, _ := cfg.ResolveDaysBack()

	p, err := pipeline.BuildPipeline(cfg, logger)
	if err != nil {
		fatalf("building pipeline: %v", err)
	}

	// Ctrl-C で途中終了しても、それまでの結果は出力する
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, runErr := p.Run(ctx, daysBack)
	if runErr != nil {
		logger.Warn("run interrupted, writing partial results", zap.Error(runErr))
	}

	// 出力と配信は中断された ctx とは独立に行う
	outCtx := context.Background()

	handleOutput(cfg.Output, res, logger)
	if cfg.Output.NotionClip {
		handleNotionClip(outCtx, cfg.Output, res, logger)
	}
	if cfg.Notify.SendEmail {
		handleEmailSend(outCtx, res, logger)
	}

	logSummary(res, logger)
	if runErr != nil {
		_ = logger.Sync()
		os.Exit(1)
	}
}
