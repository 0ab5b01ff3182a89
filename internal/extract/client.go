// Package extract talks to the external language-model collaborator that
// turns free-text disaster reports into structured records. The collaborator
// is treated as unreliable: fields may be absent and the response may not
// contain a parseable structure at all.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/wh0th3h3llam1/agent-aid/internal/models"
)

// ErrExtractionFailed indicates the collaborator returned no structure that
// passes schema validation. Fatal to the current turn; nothing is committed.
var ErrExtractionFailed = errors.New("extraction returned no valid structure")

// Client is the extraction collaborator contract. Extract parses a fresh
// report; Merge reconciles a follow-up answer into an existing record.
type Client interface {
	Extract(ctx context.Context, rawInput string) (*models.DisasterRequest, error)
	Merge(ctx context.Context, original *models.DisasterRequest, followupText string) (*models.DisasterRequest, error)
	Healthy(ctx context.Context) bool
}

// HTTPClient implements Client against an Anthropic-compatible messages API.
type HTTPClient struct {
	baseURL   string
	apiKey    string
	model     string
	maxTokens int
	client    *http.Client
}

// Config configures the HTTP extraction client.
type Config struct {
	// BaseURL of the messages API. Default: https://api.anthropic.com.
	BaseURL string

	// APIKey for the collaborator. Falls back to ANTHROPIC_API_KEY.
	APIKey string

	// Model name. Default: claude-3-5-sonnet-20241022.
	Model string

	// Timeout per request. Default: 30s.
	Timeout time.Duration
}

// NewHTTPClient creates a client with defaults filled in.
func NewHTTPClient(cfg Config) *HTTPClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-sonnet-20241022"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		maxTokens: 1024,
		client:    &http.Client{Timeout: cfg.Timeout},
	}
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Extract sends the report through the extraction prompt and decodes the
// structured result. The record comes back without a request id or
// timestamp; the orchestrator stamps those at intake time.
func (c *HTTPClient) Extract(ctx context.Context, rawInput string) (*models.DisasterRequest, error) {
	text, err := c.complete(ctx, ExtractionPrompt(rawInput))
	if err != nil {
		return nil, fmt.Errorf("extraction request: %w", err)
	}
	rec, err := DecodeRecord(text)
	if err != nil {
		return nil, err
	}
	rec.RawInput = rawInput
	return rec, nil
}

// Merge asks the collaborator to overlay the follow-up answer onto the
// original record. Identity fields (request id, raw-input history,
// timestamp) are owned by the merge resolver, not by this call.
func (c *HTTPClient) Merge(ctx context.Context, original *models.DisasterRequest, followupText string) (*models.DisasterRequest, error) {
	prompt, err := MergePrompt(original, followupText)
	if err != nil {
		return nil, err
	}
	text, err := c.complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("merge request: %w", err)
	}
	return DecodeRecord(text)
}

// Healthy probes the collaborator with a minimal request.
func (c *HTTPClient) Healthy(ctx context.Context) bool {
	_, err := c.complete(ctx, "Hello")
	return err == nil
}

func (c *HTTPClient) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(messagesRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages:  []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("collaborator returned %d: %s", resp.StatusCode, string(b))
	}

	var result messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if len(result.Content) == 0 {
		return "", fmt.Errorf("empty response content")
	}
	return result.Content[0].Text, nil
}
