package mailer

import (
	"context"
	"fmt"
	"log/slog"

	mail "github.com/wneessen/go-mail"
)

// Mailer 是通知信寄送的介面
// 信件範本與寄送基礎設施屬於外部協作者，這裡只定義最小的寄送操作
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPMailer 透過 SMTP 寄送通知信
type SMTPMailer struct {
	client *mail.Client
	from   string
}

func NewSMTPMailer(host string, port int, username, password, from string) (*SMTPMailer, error) {
	const op = "NewSMTPMailer"
	client, err := mail.NewClient(
		host,
		mail.WithPort(port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(username),
		mail.WithPassword(password),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create SMTP client, err=%w", op, err)
	}
	return &SMTPMailer{client: client, from: from}, nil
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	const op = "Send"
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return fmt.Errorf("[%s] Invalid from address, err=%w", op, err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("[%s] Invalid to address, err=%w", op, err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)
	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("[%s] Fail to send mail, err=%w", op, err)
	}
	return nil
}

// LogMailer 只記錄而不實際寄送，供未設定 SMTP 的環境使用
type LogMailer struct {
	Logger *slog.Logger
}

func (m LogMailer) Send(ctx context.Context, to, subject, body string) error {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Skip sending mail", slog.String("to", to), slog.String("subject", subject))
	return nil
}
