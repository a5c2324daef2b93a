// Package notify delivers transactional email.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/smtp"
	"strings"
)

// Message is one outgoing email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender delivers mail through a plain SMTP relay.
type SMTPSender struct {
	addr string
	auth smtp.Auth
	from string
}

// NewSMTPSender constructs an SMTPSender. username may be empty for an
// unauthenticated relay.
func NewSMTPSender(host string, port int, username, password, from string) (*SMTPSender, error) {
	if host == "" {
		return nil, errors.New("notify: empty smtp host")
	}
	if from == "" {
		return nil, errors.New("notify: empty from address")
	}
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPSender{
		addr: fmt.Sprintf("%s:%d", host, port),
		auth: auth,
		from: from,
	}, nil
}

// Send delivers one message.
func (s *SMTPSender) Send(_ context.Context, msg Message) error {
	if msg.To == "" {
		return errors.New("notify: empty recipient")
	}
	var body strings.Builder
	body.WriteString("From: " + s.from + "\r\n")
	body.WriteString("To: " + msg.To + "\r\n")
	body.WriteString("Subject: " + msg.Subject + "\r\n")
	body.WriteString("MIME-Version: 1.0\r\n")
	body.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	body.WriteString("\r\n")
	body.WriteString(msg.HTML)

	if err := smtp.SendMail(s.addr, s.auth, s.from, []string{msg.To}, []byte(body.String())); err != nil {
		return fmt.Errorf("notify: send to %s: %w", msg.To, err)
	}
	return nil
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct {
	logger *log.Logger
}

// NewLogSender constructs a LogSender.
func NewLogSender(logger *log.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send logs the message.
func (s *LogSender) Send(_ context.Context, msg Message) error {
	if s.logger != nil {
		s.logger.Printf("notify: to=%s subject=%q", msg.To, msg.Subject)
	}
	return nil
}
