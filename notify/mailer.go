// Package notify delivers account emails. Delivery is best-effort: callers log
// failures and never roll back the state change that triggered the email.
package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Mailer sends the account lifecycle emails.
type Mailer interface {
	SendApproval(ctx context.Context, email, businessName string) error
	SendRejection(ctx context.Context, email, businessName, reason string) error
	SendPasswordResetOTP(ctx context.Context, email, code string, expiryMinutes int) error
}

// Message is a rendered plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

func approvalMessage(email, businessName string) Message {
	return Message{
		To:      email,
		Subject: "Your restaurant account has been approved",
		Body: fmt.Sprintf("Hello,\n\n%s has been approved. You can now sign in and finish setting up your business.\n",
			businessName),
	}
}

func rejectionMessage(email, businessName, reason string) Message {
	body := fmt.Sprintf("Hello,\n\nWe could not approve the signup for %s.\n", businessName)
	if reason != "" {
		body += "\nReason: " + reason + "\n"
	}
	body += "\nYou are welcome to sign up again with updated details.\n"
	return Message{
		To:      email,
		Subject: "Your restaurant account was not approved",
		Body:    body,
	}
}

func otpMessage(email, code string, expiryMinutes int) Message {
	return Message{
		To:      email,
		Subject: "Your password reset code",
		Body: fmt.Sprintf("Your password reset code is %s.\n\nIt expires in %d minutes. If you did not request a reset, ignore this email.\n",
			code, expiryMinutes),
	}
}

// SMTPConfig configures SMTPMailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// SMTPMailer sends mail through an SMTP relay using PLAIN auth.
type SMTPMailer struct {
	cfg  SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SMTPMailer{cfg: cfg, send: smtp.SendMail}
}

func (m *SMTPMailer) SendApproval(ctx context.Context, email, businessName string) error {
	return m.deliver(ctx, approvalMessage(email, businessName))
}

func (m *SMTPMailer) SendRejection(ctx context.Context, email, businessName, reason string) error {
	return m.deliver(ctx, rejectionMessage(email, businessName, reason))
}

func (m *SMTPMailer) SendPasswordResetOTP(ctx context.Context, email, code string, expiryMinutes int) error {
	return m.deliver(ctx, otpMessage(email, code, expiryMinutes))
}

func (m *SMTPMailer) deliver(ctx context.Context, msg Message) error {
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))

	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- m.send(addr, auth, m.cfg.From, []string{msg.To}, []byte(b.String()))
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send to %s: %w", msg.To, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("smtp send to %s: %w", msg.To, ctx.Err())
	}
}

// LogMailer writes emails to the logger instead of sending them. It is used
// when no SMTP relay is configured.
type LogMailer struct {
	Logger log.Logger
}

func (m LogMailer) SendApproval(_ context.Context, email, businessName string) error {
	return m.log(approvalMessage(email, businessName))
}

func (m LogMailer) SendRejection(_ context.Context, email, businessName, reason string) error {
	return m.log(rejectionMessage(email, businessName, reason))
}

func (m LogMailer) SendPasswordResetOTP(_ context.Context, email, code string, expiryMinutes int) error {
	return m.log(otpMessage(email, code, expiryMinutes))
}

func (m LogMailer) log(msg Message) error {
	return level.Info(m.Logger).Log("component", "mailer", "to", msg.To, "subject", msg.Subject, "body", msg.Body)
}
