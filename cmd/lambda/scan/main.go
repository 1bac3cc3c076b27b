// =============================================================================
// Lambda: scan-incidents
// =============================================================================
//
// 1回の収集（Run）を実行し、インシデントをNotion DBに保存するLambda関数
//
// 環境変数:
//   - KEYWORDS_FILE:       キーワード表CSV (デフォルト: data/keywords.csv)
//   - COUNTRIES_FILE:      対象国テーブルCSV (デフォルト: data/countries.csv)
//   - POLICY_FILE:         ポリシーYAML (任意)
//   - SEARCH_PROVIDER:     openai | gnews (デフォルト: openai)
//   - OPENAI_API_KEY:      openai の場合は必須
//   - SCAN / DAYS_BACK:    対象期間 (デフォルト: weekly = 7日)
//   - NOTION_TOKEN:        設定されていればNotionに保存
//   - NOTION_DATABASE_ID:  保存先DB (NOTION_TOKEN がある場合は必須)
//   - EMAIL_FROM / EMAIL_PASSWORD / EMAIL_TO: すべて設定されていればサマリーを送信
//
// =============================================================================
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"narco-relay/internal/pipeline"
)

// Response はLambdaレスポンス
type Response struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Incidents  int    `json:"incidents"`
	Duplicates int    `json:"duplicates"`
	Clipped    int    `json:"clipped"`
}

var logger = newLogger()

func newLogger() *zap.Logger {
	l, err := zap.NewProduction()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// Handler はLambdaのメインハンドラー
func Handler(ctx context.Context, event interface{}) (Response, error) {
	defer func() { _ = logger.Sync() }()
	logger.Info("starting scan-incidents Lambda")

	// 1. 環境変数から設定を読み込む
	cfg, err := pipeline.ConfigFromEnv(os.Getenv)
	if err != nil {
		return Response{StatusCode: 400, Message: err.Error()}, err
	}
	if cfg.Output.NotionClip && cfg.Output.NotionDatabaseID == "" {
		err := fmt.Errorf("NOTION_DATABASE_ID is required when NOTION_TOKEN is set")
		return Response{StatusCode: 400, Message: err.Error()}, err
	}
	if err := cfg.VerifySetup(); err != nil {
		return Response{StatusCode: 400, Message: err.Error()}, err
	}
	daysBack, _ := cfg.ResolveDaysBack()

	// 2. パイプラインを組み立てて実行
	p, err := pipeline.BuildPipeline(cfg, logger)
	if err != nil {
		logger.Error("building pipeline", zap.Error(err))
		return Response{StatusCode: 500, Message: err.Error()}, err
	}

	res, err := p.Run(ctx, daysBack)
	resp := Response{
		StatusCode: 200,
		Incidents:  res.Summary.Total,
		Duplicates: res.Summary.Duplicates,
	}
	if err != nil {
		// タイムアウト等で中断。途中までの結果では配信しない
		logger.Error("run interrupted", zap.Error(err), zap.Int("incidents", resp.Incidents))
		resp.StatusCode = 500
		resp.Message = err.Error()
		return resp, err
	}
	logger.Info("run completed",
		zap.String("run_id", res.RunID),
		zap.Int("incidents", resp.Incidents),
		zap.Int("duplicates", resp.Duplicates))

	// 3. Notionに保存
	if cfg.Output.NotionClip {
		clipper, err := pipeline.NewNotionClipper(os.Getenv("NOTION_TOKEN"), cfg.Output.NotionDatabaseID, logger)
		if err != nil {
			resp.StatusCode = 500
			resp.Message = err.Error()
			return resp, err
		}
		resp.Clipped, err = clipper.ClipAll(ctx, res.Incidents)
		if err != nil {
			logger.Warn("notion clipping interrupted", zap.Error(err))
		}
	}

	// 4. サマリーメール（失敗してもレスポンスは成功扱い）
	if cfg.Notify.SendEmail {
		sendSummary(ctx, res)
	}

	resp.Message = fmt.Sprintf("Found %d incidents (%d duplicates), clipped %d to Notion",
		resp.Incidents, resp.Duplicates, resp.Clipped)
	return resp, nil
}

// sendSummary は実行サマリーメールを送信する
func sendSummary(ctx context.Context, res pipeline.RunResult) {
	sender, err := pipeline.NewEmailSender(
		os.Getenv("EMAIL_FROM"), os.Getenv("EMAIL_PASSWORD"), os.Getenv("EMAIL_TO"), logger)
	if err != nil {
		logger.Warn("failed to create email sender", zap.Error(err))
		return
	}
	if err := sender.SendScanSummary(ctx, res); err != nil {
		logger.Warn("failed to send summary email", zap.Error(err))
		return
	}
	logger.Info("summary email sent")
}

func main() {
	lambda.Start(Handler)
}
