package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/courier/internal/db"
)

// SMTPConfig holds mail relay settings. Host, Username, and Password are
// all required; the gateway refuses to construct the sender without them
// and runs with the email channel disabled instead.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// SMTPSender delivers notification emails through a mail relay.
type SMTPSender struct {
	config   SMTPConfig
	renderer *Renderer
	logger   *zap.Logger
}

// NewSMTPSender creates an SMTP sender.
func NewSMTPSender(cfg SMTPConfig, renderer *Renderer, logger *zap.Logger) (*SMTPSender, error) {
	if cfg.Host == "" || cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("smtp host, username, and password are required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &SMTPSender{
		config:   cfg,
		renderer: renderer,
		logger:   logger,
	}, nil
}

// Send renders the notification into an HTML email and submits it to the
// relay with the notification title as subject. The connection carries a
// hard deadline so a hung relay cannot stall the caller indefinitely.
func (s *SMTPSender) Send(ctx context.Context, user *db.User, notif *db.Notification) error {
	body, err := s.renderer.Render(notif)
	if err != nil {
		return err
	}

	msg := fmt.Sprintf(
		"From: \"Customer Service\" <%s>\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		headerValue(s.config.From),
		headerValue(user.Email),
		headerValue(notif.Title),
		body,
	)

	if err := s.submit(ctx, user.Email, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}

	s.logger.Info("email sent",
		zap.String("notification_id", notif.ID.String()),
		zap.String("to", user.Email),
	)

	return nil
}

// headerValue flattens CR and LF to spaces. Titles embed customer-typed
// query text; a newline would end the header and turn the rest of the
// value into live headers.
func headerValue(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}

// submit speaks the SMTP session by hand instead of smtp.SendMail so the
// socket gets a deadline.
func (s *SMTPSender) submit(ctx context.Context, to string, msg []byte) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	dialer := net.Dialer{Timeout: s.config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	deadline := time.Now().Add(s.config.Timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = conn.SetDeadline(deadline)

	client, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: s.config.Host}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}

	auth := smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	if ok, _ := client.Extension("AUTH"); ok {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(s.config.From); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}

	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := wc.Write(msg); err != nil {
		wc.Close()
		return fmt.Errorf("write message: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("close message: %w", err)
	}

	return client.Quit()
}
