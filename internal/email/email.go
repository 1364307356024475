// Package email delivers report CSVs as mail attachments. It is the
// fallback channel when the messaging gateway is down.
package email

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"gopkg.in/gomail.v2"
)

type Config struct {
	Host       string   `mapstructure:"host"`
	Port       int      `mapstructure:"port"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	From       string   `mapstructure:"from"`
	Recipients []string `mapstructure:"recipients"`
}

type Sender interface {
	SendReport(ctx context.Context, subject, body, filename string, attachment []byte) error
}

type Service struct {
	cfg  Config
	dial func(m *gomail.Message) error
}

func NewService(cfg Config) *Service {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return &Service{
		cfg:  cfg,
		dial: func(m *gomail.Message) error { return d.DialAndSend(m) },
	}
}

// SendReport mails the CSV to the configured recipients.
func (s *Service) SendReport(ctx context.Context, subject, body, filename string, attachment []byte) error {
	if len(s.cfg.Recipients) == 0 {
		return fmt.Errorf("no email recipients configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", s.cfg.Recipients...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)
	m.Attach(filename, gomail.SetCopyFunc(func(w io.Writer) error {
		_, err := io.Copy(w, bytes.NewReader(attachment))
		return err
	}))

	if err := s.dial(m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
