package crm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"callaudit/internal/config"
	"callaudit/internal/services"
	"callaudit/internal/timeline"
)

const defaultRequestTimeout = 30 * time.Second

// Case is the identity the CRM resolves for a case reference.
type Case struct {
	Ref   string `json:"ref"`
	Name  string `json:"name"`
	Group string `json:"group"`
}

// Client talks to the CRM REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a CRM client from configuration.
func NewClient(cfg config.CRM, opts ...Option) *Client {
	timeout := defaultRequestTimeout
	if cfg.RequestTimeout > 0 {
		timeout = time.Duration(cfg.RequestTimeout) * time.Second
	}
	client := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// ResolveCase fetches enough case identity to stamp into a finalized audit.
func (c *Client) ResolveCase(ctx context.Context, caseRef string) (Case, error) {
	var resolved Case
	if err := c.getJSON(ctx, "/api/cases/"+url.PathEscape(caseRef), &resolved); err != nil {
		return Case{}, err
	}
	if resolved.Ref == "" {
		resolved.Ref = caseRef
	}
	return resolved, nil
}

// Recordings fetches a case's recordings with their transcripts, converted to
// timeline sources in the CRM's order.
func (c *Client) Recordings(ctx context.Context, caseRef string) ([]timeline.Source, error) {
	var payload struct {
		Recordings []recordingPayload `json:"recordings"`
	}
	if err := c.getJSON(ctx, "/api/cases/"+url.PathEscape(caseRef)+"/recordings", &payload); err != nil {
		return nil, err
	}

	sources := make([]timeline.Source, 0, len(payload.Recordings))
	for _, rec := range payload.Recordings {
		sources = append(sources, rec.toSource())
	}
	return sources, nil
}

// ProductInfo fetches the product sheet linked to a case. An absent link is
// reported as not found; callers treat that as non-fatal.
func (c *Client) ProductInfo(ctx context.Context, caseRef string) (string, error) {
	var payload struct {
		Description string `json:"description"`
	}
	if err := c.getJSON(ctx, "/api/cases/"+url.PathEscape(caseRef)+"/product", &payload); err != nil {
		return "", err
	}
	return strings.TrimSpace(payload.Description), nil
}

type recordingPayload struct {
	CallID       string           `json:"call_id"`
	RecordingURL string           `json:"recording_url"`
	StartTime    string           `json:"start_time"`
	Duration     float64          `json:"duration"`
	Words        []wordPayload    `json:"words"`
	Turns        []messagePayload `json:"turns"`
	Text         string           `json:"text"`
}

type wordPayload struct {
	Text      string  `json:"text"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	Type      string  `json:"type"`
	SpeakerID string  `json:"speaker_id"`
}

type messagePayload struct {
	Speaker string  `json:"speaker"`
	Text    string  `json:"text"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

func (r recordingPayload) toSource() timeline.Source {
	src := timeline.Source{
		CallID:       r.CallID,
		RecordingURL: r.RecordingURL,
		Duration:     r.Duration,
		Text:         r.Text,
	}
	if start, err := time.Parse(time.RFC3339, r.StartTime); err == nil {
		src.StartTime = start
	}
	for _, word := range r.Words {
		src.Words = append(src.Words, timeline.Word{
			Text:      word.Text,
			Start:     word.Start,
			End:       word.End,
			Type:      word.Type,
			SpeakerID: word.SpeakerID,
		})
	}
	for _, turn := range r.Turns {
		src.Turns = append(src.Turns, timeline.Message{
			Speaker: turn.Speaker,
			Text:    turn.Text,
			Start:   turn.Start,
			End:     turn.End,
		})
	}
	return src
}

func (c *Client) getJSON(ctx context.Context, path string, target any) error {
	if c.baseURL == "" {
		return services.Wrap(services.ErrConfiguration, "crm", "request", "crm base url required", nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("crm request: new request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return services.Wrap(services.ErrTransient, "crm", "request", "read response body", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return classifyStatus(resp.StatusCode, path)
	}
	if err := json.Unmarshal(body, target); err != nil {
		return services.Wrap(services.ErrExternalTool, "crm", "request",
			fmt.Sprintf("decode response for %s", path), err)
	}
	return nil
}

func classifyStatus(status int, path string) error {
	message := fmt.Sprintf("http %d for %s", status, path)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return services.Wrap(services.ErrConfiguration, "crm", "request", message, nil)
	case status == http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, "crm", "request", message, nil)
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		return services.Wrap(services.ErrTransient, "crm", "request", message, nil)
	default:
		return services.Wrap(services.ErrValidation, "crm", "request", message, nil)
	}
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return services.Wrap(services.ErrTimeout, "crm", "request", "http timeout", err)
	}
	return services.Wrap(services.ErrTransient, "crm", "request", "http error", err)
}
