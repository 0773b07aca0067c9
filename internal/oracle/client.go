package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"callaudit/internal/config"
	"callaudit/internal/services"
)

const (
	jsonResponseType   = "json_object"
	defaultHTTPTimeout = 60 * time.Second
	defaultBaseURL     = "https://openrouter.ai/api/v1/chat/completions"
)

// Client wraps the chat completion API behind the reasoning-oracle port.
type Client struct {
	cfg        config.Oracle
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

// NewClient constructs an oracle client from configuration.
func NewClient(cfg config.Oracle, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	if strings.TrimSpace(client.cfg.BaseURL) == "" {
		client.cfg.BaseURL = defaultBaseURL
	}
	return client
}

// Result is one completion's content plus its token accounting.
type Result struct {
	Content     string
	TotalTokens int
}

// CompleteJSON issues a single JSON-only chat completion request. Failures
// are classified with the services markers so callers can decide whether to
// retry; no retrying happens here.
func (c *Client) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (Result, error) {
	var empty Result
	systemPrompt = strings.TrimSpace(systemPrompt)
	userPrompt = strings.TrimSpace(userPrompt)
	if systemPrompt == "" || userPrompt == "" {
		return empty, services.Wrap(services.ErrValidation, "oracle", "complete", "system and user prompts required", nil)
	}
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return empty, services.Wrap(services.ErrConfiguration, "oracle", "complete", "oracle api key required", nil)
	}

	payload := chatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature:    0,
		ResponseFormat: map[string]string{"type": jsonResponseType},
	}
	completion, err := c.sendChatRequest(ctx, payload)
	if err != nil {
		return empty, err
	}

	content := extractCompletionContent(completion)
	if content == "" {
		return empty, services.Wrap(services.ErrTransient, "oracle", "complete",
			fmt.Sprintf("empty content (finish_reason=%q)", extractFinishReason(completion)), nil)
	}
	return Result{Content: content, TotalTokens: completion.Usage.TotalTokens}, nil
}

// HealthCheck issues a fast ping to verify the API key and model are usable.
func (c *Client) HealthCheck(ctx context.Context) error {
	result, err := c.CompleteJSON(ctx,
		"You must respond with JSON only.",
		`Respond with {"ok":true}`)
	if err != nil {
		return err
	}
	var parsed struct {
		OK bool `json:"ok"`
	}
	if err := DecodeOracleJSON(result.Content, &parsed); err != nil {
		return services.Wrap(services.ErrExternalTool, "oracle", "health", "parse health payload", err)
	}
	if !parsed.OK {
		return services.Wrap(services.ErrExternalTool, "oracle", "health", "unexpected health response", nil)
	}
	return nil
}

type chatCompletionRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatCompletionMessage `json:"message"`
		// Some providers return the streaming schema even when stream=false.
		Delta        chatCompletionMessage `json:"delta"`
		Text         string                `json:"text"`
		FinishReason string                `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type chatCompletionMessage struct {
	Content string `json:"content"`
	Refusal string `json:"refusal"`
}

func (c *Client) sendChatRequest(ctx context.Context, payload chatCompletionRequest) (chatCompletionResponse, error) {
	var completion chatCompletionResponse
	encoded, err := json.Marshal(payload)
	if err != nil {
		return completion, fmt.Errorf("oracle request: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return completion, fmt.Errorf("oracle request: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
		req.Header.Set("Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return completion, classifyTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return completion, services.Wrap(services.ErrTransient, "oracle", "request", "read response body", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return completion, classifyStatus(resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, &completion); err != nil {
		return completion, services.Wrap(services.ErrExternalTool, "oracle", "request",
			fmt.Sprintf("decode response (snippet: %s)", summarizePayloadSnippet(string(body))), err)
	}
	if completion.Error != nil {
		return completion, services.Wrap(services.ErrExternalTool, "oracle", "request",
			"api error: "+strings.TrimSpace(completion.Error.Message), nil)
	}
	return completion, nil
}

func classifyStatus(status int, body string) error {
	message := fmt.Sprintf("http %d: %s", status, summarizePayloadSnippet(body))
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return services.Wrap(services.ErrConfiguration, "oracle", "request", message, nil)
	case status == http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, "oracle", "request", message, nil)
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		return services.Wrap(services.ErrTransient, "oracle", "request", message, nil)
	default:
		return services.Wrap(services.ErrValidation, "oracle", "request", message, nil)
	}
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return services.Wrap(services.ErrTimeout, "oracle", "request", "http timeout", err)
	}
	return services.Wrap(services.ErrTransient, "oracle", "request", "http error", err)
}

func extractCompletionContent(completion chatCompletionResponse) string {
	for _, choice := range completion.Choices {
		if content := firstNonEmpty(choice.Message.Content, choice.Delta.Content, choice.Text); content != "" {
			return content
		}
	}
	return ""
}

func extractFinishReason(completion chatCompletionResponse) string {
	for _, choice := range completion.Choices {
		if reason := strings.TrimSpace(choice.FinishReason); reason != "" {
			return reason
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
