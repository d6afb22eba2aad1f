package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Message is the provider's view of one outbound SMS.
type Message struct {
	ID           string
	Status       string
	ErrorCode    string
	ErrorMessage string
}

// Transport is the outbound-notification contract the dispatcher consumes.
type Transport interface {
	Send(ctx context.Context, toPhone, body string) (*Message, error)
	FetchStatus(ctx context.Context, messageID string) (*Message, error)
}

type TwilioConfig struct {
	AccountSID          string
	APIKeySID           string
	APIKeySecret        string
	MessagingServiceSID string
	Timeout             time.Duration
}

type TwilioClient struct {
	cfg        TwilioConfig
	baseURL    string
	httpClient *http.Client
}

func NewTwilioClient(cfg TwilioConfig) *TwilioClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TwilioClient{
		cfg:     cfg,
		baseURL: "https://api.twilio.com",
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

type twilioMessage struct {
	SID          string `json:"sid"`
	Status       string `json:"status"`
	ErrorCode    *int   `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

func (m twilioMessage) toMessage() *Message {
	out := &Message{ID: m.SID, Status: m.Status, ErrorMessage: m.ErrorMessage}
	if m.ErrorCode != nil {
		out.ErrorCode = fmt.Sprintf("%d", *m.ErrorCode)
	}
	return out
}

func (c *TwilioClient) Send(ctx context.Context, toPhone, body string) (*Message, error) {
	to, ok := ToE164(toPhone)
	if !ok {
		return nil, fmt.Errorf("invalid phone number")
	}
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("empty message body")
	}

	form := url.Values{}
	form.Set("MessagingServiceSid", c.cfg.MessagingServiceSID)
	form.Set("To", to)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, url.PathEscape(c.cfg.AccountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.cfg.APIKeySID, c.cfg.APIKeySecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	msg, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if msg.ID == "" {
		return nil, fmt.Errorf("twilio: missing message sid in response")
	}
	return msg, nil
}

func (c *TwilioClient) FetchStatus(ctx context.Context, messageID string) (*Message, error) {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages/%s.json",
		c.baseURL, url.PathEscape(c.cfg.AccountSID), url.PathEscape(messageID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.cfg.APIKeySID, c.cfg.APIKeySecret)

	return c.do(req)
}

func (c *TwilioClient) do(req *http.Request) (*Message, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("twilio: status %d: %s", resp.StatusCode, truncate(string(raw), 220))
	}

	var msg twilioMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return msg.toMessage(), nil
}

// ToE164 normalizes a raw phone string, defaulting bare 10-digit numbers to US.
func ToE164(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	hadPlus := strings.HasPrefix(s, "+")
	var digits strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	switch {
	case d == "":
		return "", false
	case hadPlus:
		return "+" + d, true
	case len(d) == 10:
		return "+1" + d, true
	case len(d) == 11 && strings.HasPrefix(d, "1"):
		return "+" + d, true
	case len(d) >= 8 && len(d) <= 15:
		return "+" + d, true
	}
	return "", false
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
