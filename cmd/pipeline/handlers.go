// =============================================================================
// handlers.go - 出力・配信ハンドラ
// =============================================================================
//
// 【このファイルで提供する機能】
//   - handleOutput:      JSON（stdout / -out）と CSV（-csv）の書き出し
//   - handleNotionClip:  Notionデータベースへの保存（DB未作成なら作成）
//   - handleEmailSend:   実行サマリーのメール送信
//   - logSummary:        統計の表示（stderr）
//
// =============================================================================
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"narco-relay/internal/pipeline"
)

// handleOutput は実行結果をJSONで、指定があればCSVでも書き出す
func handleOutput(cfg pipeline.OutputConfig, res pipeline.RunResult, logger *zap.Logger) {
	if cfg.OutFile != "" {
		if err := pipeline.WriteJSONFile(cfg.OutFile, res); err != nil {
			fatalf("writing output: %v", err)
		}
		logger.Info("result written", zap.String("path", cfg.OutFile))
	} else if err := pipeline.WriteJSONToStdout(res); err != nil {
		fatalf("writing output: %v", err)
	}

	if cfg.CSVPrefix == "" {
		return
	}
	dir, prefix := filepath.Split(cfg.CSVPrefix)
	if dir == "" {
		dir = "."
	}
	path, err := pipeline.WriteCSVFile(dir, prefix, res.Incidents, res.FinishedAt)
	if err != nil {
		fatalf("writing CSV: %v", err)
	}
	logger.Info("CSV report written", zap.String("path", path), zap.Int("rows", len(res.Incidents)))
}

// handleNotionClip はインシデントをNotionに保存する
//
// -notionDatabaseID が空の場合は -notionPageID の下にDBを作成し、
// 作成したIDを .env に保存する。
func handleNotionClip(ctx context.Context, cfg pipeline.OutputConfig, res pipeline.RunResult, logger *zap.Logger) {
	dbID := cfg.NotionDatabaseID
	if dbID == "" {
		dbID = os.Getenv("NOTION_DATABASE_ID")
	}

	clipper, err := pipeline.NewNotionClipper(os.Getenv("NOTION_TOKEN"), dbID, logger)
	if err != nil {
		fatalf("creating Notion clipper: %v", err)
	}

	if dbID == "" {
		if cfg.NotionPageID == "" {
			fatalf("-notionPageID is required when creating a new Notion database")
		}
		if err := clipper.CreateDatabase(ctx, cfg.NotionPageID); err != nil {
			fatalf("creating Notion database: %v", err)
		}
		if err := appendToEnvFile(".env", "NOTION_DATABASE_ID", clipper.DatabaseID()); err != nil {
			logger.Warn("failed to save database ID to .env, add it manually",
				zap.String("NOTION_DATABASE_ID", clipper.DatabaseID()), zap.Error(err))
		} else {
			logger.Info("database ID saved to .env")
		}
	} else {
		logger.Info("using existing Notion database", zap.String("database_id", dbID))
	}

	clipped, err := clipper.ClipAll(ctx, res.Incidents)
	if err != nil {
		logger.Warn("notion clipping interrupted", zap.Error(err))
	}
	logger.Info("clipped incidents to Notion", zap.Int("clipped", clipped), zap.Int("total", len(res.Incidents)))
}

// handleEmailSend は実行サマリーをメールで送信する
func handleEmailSend(ctx context.Context, res pipeline.RunResult, logger *zap.Logger) {
	sender, err := pipeline.NewEmailSender(
		os.Getenv("EMAIL_FROM"), os.Getenv("EMAIL_PASSWORD"), os.Getenv("EMAIL_TO"), logger)
	if err != nil {
		fatalf("creating email sender: %v", err)
	}
	if err := sender.SendScanSummary(ctx, res); err != nil {
		fatalf("sending email: %v", err)
	}
	logger.Info("summary email sent", zap.String("to", os.Getenv("EMAIL_TO")))
}

// logSummary は統計を stderr に表示する
func logSummary(res pipeline.RunResult, logger *zap.Logger) {
	logger.Info("run finished",
		zap.String("run_id", res.RunID),
		zap.Int("queries", len(res.Queries)),
		zap.Int("considered", res.Considered),
		zap.Int("incidents", res.Summary.Total),
		zap.Int("duplicates", res.Summary.Duplicates),
		zap.Duration("elapsed", res.FinishedAt.Sub(res.StartedAt)))
	fmt.Fprintln(os.Stderr, "========================================")
	fmt.Fprint(os.Stderr, res.Summary.Render())
	fmt.Fprintln(os.Stderr, "========================================")
}
