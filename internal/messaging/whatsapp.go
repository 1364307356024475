// Package messaging delivers report documents over a WhatsApp-style
// messaging API: media is uploaded once for an opaque reference, then
// the reference (and a free-text note) is sent to each configured
// recipient. The text note is best effort; the document send is not.
package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	BaseURL    string        `mapstructure:"base_url"`
	Token      string        `mapstructure:"token"`
	SenderID   string        `mapstructure:"sender_id"`
	Recipients []string      `mapstructure:"recipients"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// Deliverer is what the report exporter depends on.
type Deliverer interface {
	Send(ctx context.Context, doc Document, note string) (*SendResult, error)
}

// Document is the byte blob handed over for delivery.
type Document struct {
	Filename string
	MIMEType string
	Data     []byte
}

// StepResult records one delivery step per recipient.
type StepResult struct {
	Recipient string `json:"recipient"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
}

// SendResult enumerates per-step outcomes instead of swallowing the
// first failure. Documents lists the fatal steps, Notes the soft ones.
type SendResult struct {
	MediaRef  string       `json:"media_ref"`
	Documents []StepResult `json:"documents"`
	Notes     []StepResult `json:"notes"`
}

// DocumentsDelivered reports whether every recipient got the document.
func (r *SendResult) DocumentsDelivered() bool {
	if len(r.Documents) == 0 {
		return false
	}
	for _, s := range r.Documents {
		if !s.OK {
			return false
		}
	}
	return true
}

// Client talks to the messaging HTTP API behind a circuit breaker so a
// dead gateway fails fast instead of stalling every report run.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *breaker
	logger  zerolog.Logger
}

func NewClient(cfg Config, logger zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: timeout},
		breaker: newBreaker(5, time.Minute),
		logger:  logger.With().Str("component", "messaging").Logger(),
	}
}

// Send uploads the document once and fans it out to every configured
// recipient, then sends the note. Per-recipient outcomes land in the
// result; an error is returned only when the upload itself fails or no
// recipients are configured.
func (c *Client) Send(ctx context.Context, doc Document, note string) (*SendResult, error) {
	if len(c.cfg.Recipients) == 0 {
		return nil, fmt.Errorf("no messaging recipients configured")
	}

	var mediaRef string
	err := c.breaker.execute(func() error {
		var err error
		mediaRef, err = c.uploadMedia(ctx, doc)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("media upload: %w", err)
	}

	res := &SendResult{MediaRef: mediaRef}
	for _, to := range c.cfg.Recipients {
		step := StepResult{Recipient: to, OK: true}
		if err := c.sendDocument(ctx, to, mediaRef, doc.Filename); err != nil {
			step.OK = false
			step.Error = err.Error()
			c.logger.Error().Err(err).Str("to", to).Msg("document send failed")
		}
		res.Documents = append(res.Documents, step)
	}

	if note != "" {
		for _, to := range c.cfg.Recipients {
			step := StepResult{Recipient: to, OK: true}
			if err := c.sendText(ctx, to, note); err != nil {
				// Note delivery is best effort.
				step.OK = false
				step.Error = err.Error()
				c.logger.Warn().Err(err).Str("to", to).Msg("text note send failed")
			}
			res.Notes = append(res.Notes, step)
		}
	}
	return res, nil
}

func (c *Client) uploadMedia(ctx context.Context, doc Document) (string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", doc.Filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(doc.Data); err != nil {
		return "", err
	}
	_ = w.WriteField("type", doc.MIMEType)
	if err := w.Close(); err != nil {
		return "", err
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, "/media", w.FormDataContentType(), &body, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("messaging API returned empty media id")
	}
	return out.ID, nil
}

func (c *Client) sendDocument(ctx context.Context, to, mediaRef, filename string) error {
	payload := map[string]interface{}{
		"to":   to,
		"type": "document",
		"document": map[string]string{
			"id":       mediaRef,
			"filename": filename,
		},
	}
	return c.postJSON(ctx, "/messages", payload, nil)
}

func (c *Client) sendText(ctx context.Context, to, body string) error {
	payload := map[string]interface{}{
		"to":   to,
		"type": "text",
		"text": map[string]string{"body": body},
	}
	return c.postJSON(ctx, "/messages", payload, nil)
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out interface{}) error {
	buf, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.post(ctx, path, "application/json", bytes.NewReader(buf), out)
}

func (c *Client) post(ctx context.Context, path, contentType string, body io.Reader, out interface{}) error {
	u := strings.TrimRight(c.cfg.BaseURL, "/") + "/" + c.cfg.SenderID + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("messaging API %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
