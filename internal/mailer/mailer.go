package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strings"
	"time"

	"catalog-service/config"
	"catalog-service/internal/util"

	"go.uber.org/zap"
)

var ErrNoRecipients = errors.New("no recipients")

// Message is a rendered HTML email
type Message struct {
	To      []string
	From    string
	Subject string
	HTML    string
}

// Mailer delivers HTML email over SMTP
type Mailer struct {
	addr       string
	auth       smtp.Auth
	useTLS     bool
	timeout    time.Duration
	from       string
	subjPrefix string

	log *zap.Logger
}

// New creates a new SMTP mailer
func New(cfg config.SMTPConfig) *Mailer {
	var auth smtp.Auth
	if cfg.User != "" || cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.User, cfg.Password, host(cfg.Addr))
	}
	return &Mailer{
		addr:       cfg.Addr,
		auth:       auth,
		useTLS:     cfg.UseTLS,
		timeout:    cfg.Timeout,
		from:       cfg.From,
		subjPrefix: cfg.SubjectPrefix,
		log:        util.GetLogger().With(zap.String("component", "mailer")),
	}
}

// Send delivers the message to every recipient in one SMTP transaction.
// An empty From falls back to the configured sender.
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}

	from := msg.From
	if from == "" {
		from = m.from
	}
	// the From header keeps any display name, MAIL FROM takes the bare address
	sender, err := mail.ParseAddress(from)
	if err != nil {
		return fmt.Errorf("invalid sender %q: %w", from, err)
	}
	subject := strings.TrimSpace(m.subjPrefix + " " + msg.Subject)
	raw := buildMessage(from, msg.To, subject, msg.HTML)

	start := time.Now()
	log := m.log.With(
		zap.String("smtp_addr", m.addr),
		zap.Bool("tls", m.useTLS),
		zap.String("from", from),
		zap.Int("recipients", len(msg.To)),
		zap.String("subject", subject),
	)

	if m.useTLS {
		err = m.sendTLS(ctx, sender.Address, msg.To, raw)
	} else {
		err = m.sendPlain(ctx, sender.Address, msg.To, raw)
	}
	if err != nil {
		log.Error("Failed to send email", zap.Error(err))
		return err
	}

	log.Info("Email sent", zap.Duration("elapsed", time.Since(start)))
	return nil
}

func (m *Mailer) sendPlain(ctx context.Context, from string, to []string, raw []byte) error {
	dialer := net.Dialer{Timeout: m.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", m.addr)
	if err != nil {
		return fmt.Errorf("smtp dial failed: %w", err)
	}
	return m.deliver(conn, from, to, raw, true)
}

func (m *Mailer) sendTLS(ctx context.Context, from string, to []string, raw []byte) error {
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: m.timeout},
		Config:    &tls.Config{ServerName: host(m.addr)},
	}
	conn, err := dialer.DialContext(ctx, "tcp", m.addr)
	if err != nil {
		return fmt.Errorf("tls dial failed: %w", err)
	}
	return m.deliver(conn, from, to, raw, false)
}

func (m *Mailer) deliver(conn net.Conn, from string, to []string, raw []byte, tryStartTLS bool) error {
	if m.timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(m.timeout))
	}

	c, err := smtp.NewClient(conn, host(m.addr))
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp client failed: %w", err)
	}
	defer func() { _ = c.Close() }()

	if tryStartTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: host(m.addr)}); err != nil {
				return fmt.Errorf("smtp STARTTLS failed: %w", err)
			}
		}
	}
	if m.auth != nil {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(m.auth); err != nil {
				return fmt.Errorf("smtp auth failed: %w", err)
			}
		}
	}
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("smtp MAIL FROM failed: %w", err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp RCPT TO %s failed: %w", rcpt, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA failed: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("smtp write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close failed: %w", err)
	}
	return c.Quit()
}

func buildMessage(from string, to []string, subject, html string) []byte {
	var b bytes.Buffer
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + strings.Join(to, ", ") + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(html)
	b.WriteString("\r\n")
	return b.Bytes()
}

func host(addr string) string {
	if h, _, err := net.SplitHostPort(addr); err == nil {
		return h
	}
	return addr
}
