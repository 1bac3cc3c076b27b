// =============================================================================
// email.go - 実行サマリーのメール送信
// =============================================================================
//
// Gmail SMTPで1回の実行結果（統計 + 受理したインシデント一覧）を送ります。
//
// =============================================================================
// 【必要な環境変数】
// =============================================================================
//
//	EMAIL_FROM     - 送信元メールアドレス（Gmail）
//	EMAIL_PASSWORD - Gmailアプリパスワード（通常のパスワードではない）
//	EMAIL_TO       - 送信先メールアドレス（カンマ区切りで複数可）
//
// =============================================================================
// 【リトライ】
// =============================================================================
//
// 失敗時は 2秒 → 4秒 と待機時間を倍にして最大3回まで送信を試みます。
// 待機中に ctx がキャンセルされたら中断します。
//
// =============================================================================
package pipeline

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// EmailConfig はメール送信の設定を保持する
type EmailConfig struct {
	From     string   // 送信元メールアドレス
	Password string   // Gmailアプリパスワード
	To       []string // 送信先メールアドレス（複数可）
	SMTPHost string   // SMTPサーバーホスト（"smtp.gmail.com"）
	SMTPPort string   // SMTPポート（"587"）
}

// EmailSender はメール送信を担当する
type EmailSender struct {
	config     EmailConfig
	logger     *zap.Logger
	maxRetries int
	backoff    time.Duration          // 1回目のリトライ前の待機時間
	sendFn     func(msg []byte) error // 既定は SMTP 送信
	now        func() time.Time
}

// NewEmailSender は新しいメール送信者を作成する
//
// to はカンマ区切りで複数指定できる。
func NewEmailSender(from, password, to string, logger *zap.Logger) (*EmailSender, error) {
	if from == "" {
		return nil, fmt.Errorf("EMAIL_FROM is required")
	}
	if password == "" {
		return nil, fmt.Errorf("EMAIL_PASSWORD is required (use Gmail App Password)")
	}
	var toList []string
	for _, addr := range strings.Split(to, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			toList = append(toList, addr)
		}
	}
	if len(toList) == 0 {
		return nil, fmt.Errorf("EMAIL_TO is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	es := &EmailSender{
		config: EmailConfig{
			From:     from,
			Password: password,
			To:       toList,
			SMTPHost: "smtp.gmail.com",
			SMTPPort: "587",
		},
		logger:     logger,
		maxRetries: 3,
		backoff:    2 * time.Second,
		now:        time.Now,
	}
	es.sendFn = es.send
	return es, nil
}

// SendScanSummary は実行結果のサマリーメールを送信する
//
// インシデントが0件でも送る（「何も見つからなかった」ことも報告になる）。
func (es *EmailSender) SendScanSummary(ctx context.Context, res RunResult) error {
	subject := fmt.Sprintf("Narco Relay Scan - %s (%d incidents, %d duplicates)",
		es.now().Format("2006-01-02"),
		res.Summary.Total,
		res.Summary.Duplicates)

	msg := es.buildEmailMessage(subject, es.generateEmailBody(res))
	return es.sendWithRetry(ctx, msg)
}

// generateEmailBody はプレーンテキストのメール本文を生成する
//
//	Narco Relay Scan Summary
//	Run: 6f1c...
//	Generated: 2026-01-05 12:00:00
//
//	========================================
//	Total incidents: 12
//	...
//	========================================
//
//	[A0000001] Incautan 2 toneladas de cocaína en el Callao
//	    Peru / High / cocaína 2,000 toneladas
//	    https://...
func (es *EmailSender) generateEmailBody(res RunResult) string {
	var sb strings.Builder

	sb.WriteString("Narco Relay Scan Summary\n")
	fmt.Fprintf(&sb, "Run: %s\n", res.RunID)
	fmt.Fprintf(&sb, "Generated: %s\n\n", es.now().Format("2006-01-02 15:04:05"))
	sb.WriteString("========================================\n")
	sb.WriteString(res.Summary.Render())
	sb.WriteString("========================================\n\n")

	for _, inc := range res.Incidents {
		fmt.Fprintf(&sb, "[%s] %s\n", inc.ID, inc.Title)
		fmt.Fprintf(&sb, "    %s / %s / %s %s\n",
			inc.OriginCountry, inc.Relevance, inc.SubstanceType, FormatQuantity(inc.Quantity, inc.Unit))
		if inc.IsDuplicate() {
			fmt.Fprintf(&sb, "    Duplicate of %s (%.2f)\n", inc.DuplicateOf, inc.SimilarityScore)
		}
		fmt.Fprintf(&sb, "    %s\n\n", inc.URL)
	}

	sb.WriteString("---\n")
	sb.WriteString("Generated by narco-relay\n")
	return sb.String()
}

// buildEmailMessage はRFC 5322準拠のメールメッセージを構築する
//
// ヘッダーと本文は空行（\r\n）で区切る。
func (es *EmailSender) buildEmailMessage(subject, body string) []byte {
	var msg strings.Builder

	fmt.Fprintf(&msg, "From: %s\r\n", es.config.From)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(es.config.To, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	return []byte(msg.String())
}

// sendWithRetry は指数バックオフでリトライしながらメールを送信する
func (es *EmailSender) sendWithRetry(ctx context.Context, msg []byte) error {
	var lastErr error
	wait := es.backoff

	for i := 0; i < es.maxRetries; i++ {
		if i > 0 {
			es.logger.Info("retrying email send", zap.Duration("wait", wait))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			wait *= 2
		}

		err := es.sendFn(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		es.logger.Warn("email send failed",
			zap.Int("attempt", i+1), zap.Int("max", es.maxRetries), zap.Error(err))
	}

	return fmt.Errorf("failed to send email after %d retries: %w", es.maxRetries, lastErr)
}

// send はGmail SMTP（PLAIN認証 + STARTTLS）でメールを送信する
func (es *EmailSender) send(msg []byte) error {
	auth := smtp.PlainAuth("", es.config.From, es.config.Password, es.config.SMTPHost)
	addr := es.config.SMTPHost + ":" + es.config.SMTPPort

	if err := smtp.SendMail(addr, auth, es.config.From, es.config.To, msg); err != nil {
		return fmt.Errorf("SMTP send failed: %w (check EMAIL_PASSWORD is a Gmail App Password)", err)
	}
	return nil
}
