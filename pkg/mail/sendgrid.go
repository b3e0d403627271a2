package mail

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/receipts-backend/pkg/config"
	"github.com/angelmondragon/receipts-backend/pkg/logger"
)

const sendEndpoint = "https://api.sendgrid.com/v3/mail/send"

// Attachment is a file included with an outbound message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Message is one outbound email.
type Message struct {
	To          string
	Subject     string
	HTML        string
	Text        string
	Attachments []Attachment
}

// Client talks to the Sendgrid v3 mail send API.
type Client struct {
	httpClient *http.Client
	apiKey     string
	from       string
	endpoint   string
}

// NewClient validates credentials and returns a mail client.
func NewClient(cfg config.MailConfig, logg *logger.Logger) (*Client, error) {
	if !cfg.Configured() {
		return nil, errors.New("sendgrid api key and from address are required")
	}

	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	client := &Client{
		httpClient: &http.Client{Timeout: timeout},
		apiKey:     cfg.SendgridAPIKey,
		from:       cfg.From,
		endpoint:   sendEndpoint,
	}

	if logg != nil {
		logg.Info(context.Background(), "mail client initialized")
	}
	return client, nil
}

// From returns the configured sender address.
func (c *Client) From() string {
	if c == nil {
		return ""
	}
	return c.from
}

type sendgridAddress struct {
	Email string `json:"email"`
}

type sendgridPersonalization struct {
	To []sendgridAddress `json:"to"`
}

type sendgridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendgridAttachment struct {
	Content     string `json:"content"`
	Type        string `json:"type,omitempty"`
	Filename    string `json:"filename"`
	Disposition string `json:"disposition"`
}

type sendgridPayload struct {
	Personalizations []sendgridPersonalization `json:"personalizations"`
	From             sendgridAddress           `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendgridContent         `json:"content"`
	Attachments      []sendgridAttachment      `json:"attachments,omitempty"`
}

// Send delivers the message through Sendgrid. Attachments are base64 encoded
// per the v3 API.
func (c *Client) Send(ctx context.Context, msg Message) error {
	if c == nil || c.httpClient == nil {
		return errors.New("mail client not initialized")
	}
	if strings.TrimSpace(msg.To) == "" {
		return errors.New("recipient is required")
	}
	if strings.TrimSpace(msg.Subject) == "" {
		return errors.New("subject is required")
	}
	if msg.HTML == "" && msg.Text == "" {
		return errors.New("message body is required")
	}

	payload := sendgridPayload{
		Personalizations: []sendgridPersonalization{{To: []sendgridAddress{{Email: msg.To}}}},
		From:             sendgridAddress{Email: c.from},
		Subject:          msg.Subject,
	}
	if msg.Text != "" {
		payload.Content = append(payload.Content, sendgridContent{Type: "text/plain", Value: msg.Text})
	}
	if msg.HTML != "" {
		payload.Content = append(payload.Content, sendgridContent{Type: "text/html", Value: msg.HTML})
	}
	for _, att := range msg.Attachments {
		payload.Attachments = append(payload.Attachments, sendgridAttachment{
			Content:     base64.StdEncoding.EncodeToString(att.Content),
			Type:        att.ContentType,
			Filename:    att.Filename,
			Disposition: "attachment",
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding mail payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending mail: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusMultipleChoices {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if len(b) > 0 {
			return fmt.Errorf("sendgrid returned %s: %s", resp.Status, strings.TrimSpace(string(b)))
		}
		return fmt.Errorf("sendgrid returned %s", resp.Status)
	}
	return nil
}
