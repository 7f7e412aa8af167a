// Package completion talks to an OpenAI-compatible chat completion endpoint.
package completion

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

	"github.com/onelife/onelife/internal/settings"
)

// ErrMalformedResponse is returned when a response carries no content in any
// recognised shape.
var ErrMalformedResponse = errors.New("completion: malformed response")

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client produces an assistant reply for a conversation.
type Client interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// SystemPrompt frames every conversation.
const SystemPrompt = "You are OneLife, a private assistant that helps the user keep track of expenses, tasks, moods and health. Answer briefly and kindly."

// HTTPClient calls <endpoint>/v1/chat/completions with the current settings.
type HTTPClient struct {
	settings func() settings.Settings
	http     *http.Client
}

// NewHTTPClient returns a client that reads settings on every call so that
// reloaded settings apply immediately.
func NewHTTPClient(current func() settings.Settings, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		settings: current,
		http:     &http.Client{Timeout: timeout},
	}
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	Stream      bool      `json:"stream"`
}

// Complete sends messages and returns the reply text.
func (c *HTTPClient) Complete(ctx context.Context, messages []Message) (string, error) {
	s := c.settings()
	body, err := c.post(ctx, s, chatRequest{
		Model:       s.Model,
		Messages:    messages,
		Temperature: s.Temperature,
		MaxTokens:   s.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	return ParseResponse(body)
}

// Ping sends a minimal request to check that the endpoint answers.
func (c *HTTPClient) Ping(ctx context.Context) error {
	s := c.settings()
	body, err := c.post(ctx, s, chatRequest{
		Model:       s.Model,
		Messages:    []Message{{Role: "user", Content: "Hello"}},
		Temperature: s.Temperature,
		MaxTokens:   10,
	})
	if err != nil {
		return err
	}
	_, err = ParseResponse(body)
	return err
}

func (c *HTTPClient) post(ctx context.Context, s settings.Settings, req chatRequest) ([]byte, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	url := strings.TrimRight(s.EndpointURL, "/") + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("completion: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.APIKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("completion: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("completion: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}

// StatusError is a non-2xx response from the endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("completion: HTTP %d", e.Code)
	}
	return fmt.Sprintf("completion: HTTP %d: %s", e.Code, e.Body)
}

type contentHolder struct {
	Content *string `json:"content"`
}

type responseShapes struct {
	Choices []struct {
		Message  *contentHolder `json:"message"`
		Messages *contentHolder `json:"messages"`
	} `json:"choices"`
	Messages []contentHolder `json:"messages"`
}

// ParseResponse extracts the reply from a response body. Servers disagree on
// the shape, so it tries choices[0].message.content, then
// choices[0].messages.content, then messages[0].content.
func ParseResponse(body []byte) (string, error) {
	var r responseShapes
	if err := json.Unmarshal(body, &r); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(r.Choices) > 0 {
		first := r.Choices[0]
		if first.Message != nil && first.Message.Content != nil {
			return *first.Message.Content, nil
		}
		if first.Messages != nil && first.Messages.Content != nil {
			return *first.Messages.Content, nil
		}
	}
	if len(r.Messages) > 0 && r.Messages[0].Content != nil {
		return *r.Messages[0].Content, nil
	}
	return "", ErrMalformedResponse
}
