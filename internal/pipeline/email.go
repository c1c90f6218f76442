// =============================================================================
// email.go - 失敗通知メール
// =============================================================================
//
// サイクルがいずれかのステージで失敗した場合に、Gmail SMTP経由で
// 通知メールを1通送る。ニュースなしで終わった場合は送らない。
//
// 【必要な環境変数】
//
//	EMAIL_FROM     - 送信元メールアドレス（Gmail）
//	EMAIL_PASSWORD - Gmailアプリパスワード（通常のパスワードではない）
//	EMAIL_TO       - 送信先メールアドレス（カンマ区切りで複数可）
//
// 送信は1回のみ。失敗してもサイクルの結果は変わらない。
//
// =============================================================================
package pipeline

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"
)

// Notifier はサイクル失敗の通知先
type Notifier interface {
	NotifyFailure(ctx context.Context, report CycleReport) error
}

// sendMailFunc は smtp.SendMail と同じシグネチャ（テストで差し替える）
type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier は Notifier のSMTP実装
type EmailNotifier struct {
	from     string
	password string
	to       []string
	smtpHost string
	smtpPort string
	send     sendMailFunc
}

// NewEmailNotifier は EmailNotifier を作成する
func NewEmailNotifier(cfg *EmailConfig) (*EmailNotifier, error) {
	if cfg.From == "" {
		return nil, fmt.Errorf("%w: EMAIL_FROM is required", ErrConfiguration)
	}
	if cfg.Password == "" {
		return nil, fmt.Errorf("%w: EMAIL_PASSWORD is required (use Gmail App Password)", ErrConfiguration)
	}
	if cfg.To == "" {
		return nil, fmt.Errorf("%w: EMAIL_TO is required", ErrConfiguration)
	}

	var to []string
	for _, addr := range strings.Split(cfg.To, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			to = append(to, addr)
		}
	}

	return &EmailNotifier{
		from:     cfg.From,
		password: cfg.Password,
		to:       to,
		smtpHost: "smtp.gmail.com",
		smtpPort: "587",
		send:     smtp.SendMail,
	}, nil
}

// NotifyFailure は失敗したサイクルの概要をメールで送る
func (n *EmailNotifier) NotifyFailure(ctx context.Context, report CycleReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	subject := fmt.Sprintf("[AI News Relay] cycle failed at %s - %s",
		report.Stage, report.StartedAt.Format("2006-01-02 15:04"))
	msg := n.buildMessage(subject, failureBody(report))

	auth := smtp.PlainAuth("", n.from, n.password, n.smtpHost)
	if err := n.send(n.smtpHost+":"+n.smtpPort, auth, n.from, n.to, msg); err != nil {
		return fmt.Errorf("SMTP send failed: %w (check EMAIL_PASSWORD is a Gmail App Password)", err)
	}
	return nil
}

// failureBody は通知メールの本文を生成する
//
// 【出力フォーマット】
//
//	AI News Relay cycle failed
//
//	Run ID:   7f0c...
//	Stage:    extract
//	Started:  2026-01-05T12:00:00Z
//	Finished: 2026-01-05T12:00:09Z
//	Items:    0
//	Posted:   0
//
//	Error:
//	  transport error: ...
func failureBody(r CycleReport) string {
	var sb strings.Builder
	sb.WriteString("AI News Relay cycle failed\n\n")
	sb.WriteString(fmt.Sprintf("Run ID:   %s\n", r.RunID))
	sb.WriteString(fmt.Sprintf("Stage:    %s\n", r.Stage))
	sb.WriteString(fmt.Sprintf("Started:  %s\n", r.StartedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Finished: %s\n", r.FinishedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Items:    %d\n", r.Items))
	sb.WriteString(fmt.Sprintf("Posted:   %d\n", r.Posted))
	if r.ThreadID != "" {
		sb.WriteString(fmt.Sprintf("Thread:   %s\n", r.ThreadID))
	}
	if r.Err != nil {
		sb.WriteString("\nError:\n  " + r.Err.Error() + "\n")
	}
	return sb.String()
}

// buildMessage はRFC 5322準拠のメールメッセージを構築する
//
// ヘッダーと本文は空行（\r\n）で区切る。
func (n *EmailNotifier) buildMessage(subject, body string) []byte {
	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s\r\n", n.from))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(n.to, ", ")))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)
	return []byte(msg.String())
}
