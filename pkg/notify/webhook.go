package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	errs "mediakeeper/pkg/errors"
)

// DefaultLineNotifyURL is the LINE Notify push endpoint
const DefaultLineNotifyURL = "https://notify-api.line.me/api/notify"

const webhookTimeout = 15 * time.Second

// WebhookChannel pushes the summary to a chat service over HTTPS POST
type WebhookChannel struct {
	name   string
	url    string
	token  string
	encode func(msg Message) (body []byte, contentType string, err error)
	client *http.Client
}

// NewDiscordChannel posts {"content": text} to a Discord webhook
func NewDiscordChannel(webhookURL string, client *http.Client) *WebhookChannel {
	return &WebhookChannel{
		name:   "discord",
		url:    webhookURL,
		encode: jsonField("content"),
		client: defaultClient(client),
	}
}

// NewSlackChannel posts {"text": text} to a Slack incoming webhook
func NewSlackChannel(webhookURL string, client *http.Client) *WebhookChannel {
	return &WebhookChannel{
		name:   "slack",
		url:    webhookURL,
		encode: jsonField("text"),
		client: defaultClient(client),
	}
}

// NewLineNotifyChannel posts a form-encoded message with a bearer token
func NewLineNotifyChannel(endpoint, token string, client *http.Client) *WebhookChannel {
	if endpoint == "" {
		endpoint = DefaultLineNotifyURL
	}
	return &WebhookChannel{
		name:  "line",
		url:   endpoint,
		token: token,
		encode: func(msg Message) ([]byte, string, error) {
			form := url.Values{"message": {"\n" + msg.Text()}}
			return []byte(form.Encode()), "application/x-www-form-urlencoded", nil
		},
		client: defaultClient(client),
	}
}

func (w *WebhookChannel) Name() string { return w.name }

func (w *WebhookChannel) Send(ctx context.Context, msg Message) error {
	body, contentType, err := w.encode(msg)
	if err != nil {
		return errs.Wrap(errs.ErrorTypeParsing, err, "failed to encode notification")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return errs.Wrap(errs.ErrorTypeNetwork, err, w.name+" request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errs.New(errs.ErrorTypeUpstream, resp.StatusCode,
			fmt.Sprintf("%s returned %d: %s", w.name, resp.StatusCode, strings.TrimSpace(string(snippet))))
	}
	return nil
}

func jsonField(field string) func(Message) ([]byte, string, error) {
	return func(msg Message) ([]byte, string, error) {
		body, err := json.Marshal(map[string]string{field: msg.Text()})
		return body, "application/json", err
	}
}

func defaultClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: webhookTimeout}
}
