// Package vision calls an OpenAI-compatible chat-completions endpoint with
// two screenshots and turns the model's answer into a structured diff report.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

const systemPrompt = `You are a visual QA assistant. Compare the two UI screenshots (first is "before", second is "after"). Respond with JSON only, no prose, in this shape:
{"summary": string, "match_score": number between 0 and 1, "differences": [{"region": string, "severity": "low"|"medium"|"high", "description": string}]}`

// Config holds vision API configuration.
type Config struct {
	APIKey  string
	BaseURL string // defaults to https://api.openai.com/v1
	Model   string // defaults to gpt-4o-mini
}

// Image is one screenshot to send to the model.
type Image struct {
	Data        []byte
	ContentType string
}

// Difference is one region-level finding in the report.
type Difference struct {
	Region      string `json:"region"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

// Report is the structured diff the model returns.
type Report struct {
	Summary     string       `json:"summary"`
	MatchScore  float64      `json:"match_score"`
	Differences []Difference `json:"differences"`
}

type Client struct {
	cfg        Config
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the API key is set.
func (c *Client) Configured() bool {
	return c.cfg.APIKey != ""
}

type chatContent struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url,omitempty"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []chatContent `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Compare sends both screenshots to the model and decodes its JSON report.
// The raw report JSON is returned alongside for storage.
func (c *Client) Compare(ctx context.Context, before, after Image) (*Report, string, error) {
	if !c.Configured() {
		return nil, "", fmt.Errorf("vision client not configured: missing API key")
	}

	body, err := json.Marshal(c.buildRequest(before, after))
	if err != nil {
		return nil, "", fmt.Errorf("marshal vision request: %w", err)
	}

	var content string
	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		content, err = c.send(ctx, body)
		return err
	})
	if err != nil {
		return nil, "", err
	}

	raw := stripFences(content)
	var report Report
	if err := json.Unmarshal([]byte(raw), &report); err != nil {
		return nil, "", fmt.Errorf("decode vision report: %w", err)
	}
	return &report, raw, nil
}

func (c *Client) buildRequest(before, after Image) chatRequest {
	return chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{
				Role: "user",
				Content: []chatContent{
					{Type: "text", Text: systemPrompt},
					imageContent(before),
					imageContent(after),
				},
			},
		},
		MaxTokens: 2048,
	}
}

func imageContent(img Image) chatContent {
	url := fmt.Sprintf("data:%s;base64,%s", img.ContentType, base64.StdEncoding.EncodeToString(img.Data))
	content := chatContent{Type: "image_url"}
	content.ImageURL = &struct {
		URL string `json:"url"`
	}{URL: url}
	return content
}

func (c *Client) send(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create vision request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", retry.RetryableError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", retry.RetryableError(fmt.Errorf("read vision response: %w", err))
	}

	// Rate limits and upstream hiccups are worth retrying; everything else is not.
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", retry.RetryableError(fmt.Errorf("vision api status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("vision api status %d: %s", resp.StatusCode, truncate(respBody, 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decode vision response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("vision api error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("vision api returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// stripFences removes a markdown code fence if the model wrapped its JSON in one.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
	}
	return strings.TrimSpace(s)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
