// Package reasoning calls the Anthropic Messages API for synthesis and prompt generation.
package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rewired-gh/macrooracle/internal/logger"
)

const apiVersion = "2023-06-01"

// Config holds client settings.
type Config struct {
	BaseURL    string // full messages endpoint
	APIKey     string
	Model      string
	MaxTokens  int
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration

	// MaxResponseBytes caps the response body read.
	MaxResponseBytes int64
}

// DefaultConfig returns the default settings without an API key.
func DefaultConfig() Config {
	return Config{
		BaseURL:          "https://api.anthropic.com/v1/messages",
		Model:            "claude-sonnet-4-20250514",
		MaxTokens:        4096,
		Timeout:          120 * time.Second,
		MaxRetries:       3,
		RetryDelay:       time.Second,
		MaxResponseBytes: 4 << 20,
	}
}

// TransportError is a failure to reach the API or read its response.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "reasoning transport: " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

// StatusError is a non-2xx response from the API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("Anthropic API %d", e.Code)
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
}

type response struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Client is a minimal Messages API client.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a client. It does not check the API key; callers decide whether
// a reasoner is configured at all.
func NewClient(config Config) *Client {
	if config.MaxRetries < 1 {
		config.MaxRetries = 1
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = DefaultConfig().MaxTokens
	}
	if config.MaxResponseBytes <= 0 {
		config.MaxResponseBytes = DefaultConfig().MaxResponseBytes
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// Model returns the configured model id.
func (c *Client) Model() string { return c.config.Model }

// Complete sends one user turn with an optional system prompt and returns the
// concatenated text blocks. 429 and 5xx responses are retried.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	body, err := json.Marshal(request{
		Model:     c.config.Model,
		MaxTokens: c.config.MaxTokens,
		System:    system,
		Messages:  []message{{Role: "user", Content: user}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	start := time.Now()
	var lastErr error
	for i := 0; i < c.config.MaxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return "", &TransportError{Err: ctx.Err()}
			case <-time.After(time.Duration(i) * c.config.RetryDelay):
			}
		}

		text, err := c.do(ctx, body)
		if err == nil {
			logger.Debug("reasoning call completed in %v (%d chars)", time.Since(start), len(text))
			return text, nil
		}
		lastErr = err

		var se *StatusError
		if errors.As(err, &se) && se.Code != http.StatusTooManyRequests && se.Code < 500 {
			return "", err
		}
		if ctx.Err() != nil {
			return "", err
		}
		logger.Warn("reasoning call attempt %d failed: %v", i+1, err)
	}
	return "", lastErr
}

func (c *Client) do(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL, bytes.NewReader(body))
	if err != nil {
		return "", &TransportError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.config.APIKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxResponseBytes+1))
	if err != nil {
		return "", &TransportError{Err: fmt.Errorf("failed to read response: %w", err)}
	}
	if int64(len(raw)) > c.config.MaxResponseBytes {
		return "", &TransportError{Err: fmt.Errorf("response exceeds %d bytes", c.config.MaxResponseBytes)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{Code: resp.StatusCode, Body: string(raw)}
	}

	var out response
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", &TransportError{Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if out.Error != nil {
		return "", &StatusError{Code: resp.StatusCode, Body: out.Error.Message}
	}

	var sb strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return strings.TrimSpace(sb.String()), nil
}
