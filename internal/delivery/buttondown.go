// Package delivery sends digest emails to subscribers. Buttondown holds
// the subscriber list; geographic preferences live in each subscriber's
// metadata blob.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/phlwatch/digest-cli/internal/model"
)

const defaultButtondownBaseURL = "https://api.buttondown.email/v1"

// Email is one outbound message. Recipients empty means send to the full
// list.
type Email struct {
	Subject    string
	Body       string
	Recipients []string
}

// ButtondownOptions configures the Buttondown client.
type ButtondownOptions struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	RPS     float64
}

// ButtondownClient talks to the Buttondown REST API. Sends are rate
// limited because targeted delivery is one API call per recipient.
type ButtondownClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	apiKey     string
}

// NewButtondown creates a Buttondown client.
func NewButtondown(opts ButtondownOptions) (*ButtondownClient, error) {
	if opts.APIKey == "" {
		return nil, eris.New("delivery: buttondown api key required")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultButtondownBaseURL
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RPS == 0 {
		opts.RPS = 2
	}
	return &ButtondownClient{
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(opts.RPS), 1),
		baseURL:    opts.BaseURL,
		apiKey:     opts.APIKey,
	}, nil
}

type buttondownSubscriber struct {
	Email          string          `json:"email"`
	SubscriberType string          `json:"subscriber_type"`
	Metadata       json.RawMessage `json:"metadata"`
}

type subscriberPage struct {
	Results []buttondownSubscriber `json:"results"`
	Next    string                 `json:"next"`
}

// Subscribers lists every subscriber, following pagination, and decodes
// each one's geographic preference.
func (c *ButtondownClient) Subscribers(ctx context.Context) ([]model.Subscriber, error) {
	var out []model.Subscriber
	next := c.baseURL + "/subscribers"
	for next != "" {
		var page subscriberPage
		if err := c.do(ctx, http.MethodGet, next, nil, &page); err != nil {
			return nil, eris.Wrap(err, "delivery: list subscribers")
		}
		for _, bs := range page.Results {
			out = append(out, model.Subscriber{
				Email:      bs.Email,
				Preference: decodePreference(bs.Metadata),
				Active:     bs.SubscriberType == "regular",
			})
		}
		next = page.Next
	}
	zap.L().Info("delivery: subscribers fetched", zap.Int("count", len(out)))
	return out, nil
}

// decodePreference pulls the geographic preference out of subscriber
// metadata. The metadata field is either a JSON object or a JSON string
// containing an encoded object; either way a decode failure means the
// subscriber falls back to a citywide weekly digest.
func decodePreference(raw json.RawMessage) model.Preference {
	pref := model.Preference{Frequency: model.FrequencyWeekly}
	if len(raw) == 0 {
		return pref
	}

	data := []byte(raw)
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		data = []byte(asString)
	}

	var meta struct {
		Neighborhoods []string `json:"neighborhoods"`
		Districts     []string `json:"districts"`
		Frequency     string   `json:"frequency"`
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return pref
	}

	pref.Neighborhoods = meta.Neighborhoods
	pref.Districts = meta.Districts
	if meta.Frequency == string(model.FrequencyDaily) {
		pref.Frequency = model.FrequencyDaily
	}
	return pref
}

// Send posts one email. Buttondown has no batch targeting, so the
// dispatcher calls this once per recipient group.
func (c *ButtondownClient) Send(ctx context.Context, email Email) error {
	payload := map[string]any{
		"subject":    email.Subject,
		"body":       email.Body,
		"email_type": "public",
	}
	if len(email.Recipients) > 0 {
		payload["recipients"] = email.Recipients
	}
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/emails", payload, nil); err != nil {
		return eris.Wrap(err, "delivery: send email")
	}
	return nil
}

func (c *ButtondownClient) do(ctx context.Context, method, rawURL string, payload, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "delivery: rate limiter wait")
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return eris.Wrap(err, "delivery: marshal payload")
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return eris.Wrap(err, "delivery: create request")
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return eris.Wrap(err, "delivery: http request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return eris.Errorf("delivery: buttondown returned status %d: %s", resp.StatusCode, string(msg))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return eris.Wrap(err, "delivery: decode response")
		}
	}
	return nil
}
