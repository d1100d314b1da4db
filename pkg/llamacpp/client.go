package llamacpp

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
)

const chatPath = "/v1/chat/completions"

// ErrEmptyAnswer is returned when the server answers without any text
var ErrEmptyAnswer = errors.New("empty response from llama.cpp server")

// Options tunes the completion request
type Options struct {
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
	TopP        float64
	// JSONMode asks the server to constrain output to a JSON object
	JSONMode bool
}

// DefaultOptions suits short JSON answers about a single image crop
func DefaultOptions() Options {
	return Options{
		Timeout:     5 * time.Minute,
		Temperature: 0.2,
		MaxTokens:   256,
		TopP:        0.9,
		JSONMode:    true,
	}
}

// Client talks to a llama.cpp server through its OpenAI-compatible API
type Client struct {
	baseURL    string
	opts       Options
	httpClient *http.Client
}

// Message is an OpenAI-style chat message. Content is a string or a list
// of parts.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

type ResponseFormat struct {
	Type string `json:"type"`
}

type ChatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	TopP           float64         `json:"top_p,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
	Stream         bool            `json:"stream"`
}

type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

// NewClient creates a client with DefaultOptions
func NewClient(serverURL string) (*Client, error) {
	return NewClientWithOptions(serverURL, DefaultOptions())
}

// NewClientWithOptions creates a client for serverURL. An empty URL means
// a local server on the default port.
func NewClientWithOptions(serverURL string, opts Options) (*Client, error) {
	if serverURL == "" {
		serverURL = "http://localhost:8080"
	}
	if !strings.HasPrefix(serverURL, "http://") && !strings.HasPrefix(serverURL, "https://") {
		return nil, fmt.Errorf("invalid llama.cpp URL %q: missing http(s) scheme", serverURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}

	return &Client{
		baseURL:    strings.TrimSuffix(serverURL, "/"),
		opts:       opts,
		httpClient: &http.Client{Timeout: opts.Timeout},
	}, nil
}

// Query sends the prompt and a base64 JPEG and returns the model's text
// answer
func (c *Client) Query(ctx context.Context, model, prompt, imgB64 string) (string, error) {
	parts := []ContentPart{{Type: "text", Text: prompt}}
	if imgB64 != "" {
		parts = append(parts, ContentPart{
			Type:     "image_url",
			ImageURL: &ImageURL{URL: "data:image/jpeg;base64," + imgB64},
		})
	}

	req := ChatCompletionRequest{
		Model:       model,
		Messages:    []Message{{Role: "user", Content: parts}},
		Temperature: c.opts.Temperature,
		MaxTokens:   c.opts.MaxTokens,
		TopP:        c.opts.TopP,
	}
	if c.opts.JSONMode {
		req.ResponseFormat = &ResponseFormat{Type: "json_object"}
	}

	body, err := c.post(ctx, req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}

	var resp ChatCompletionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	if text := messageText(resp.Choices[0].Message); text != "" {
		return text, nil
	}
	return "", ErrEmptyAnswer
}

// messageText returns the first non-empty text of a reply, which comes
// back either as a string or as a list of parts
func messageText(m Message) string {
	switch content := m.Content.(type) {
	case string:
		return content
	case []any:
		for _, item := range content {
			part, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if text, ok := part["text"].(string); ok && text != "" {
				return text
			}
		}
	}
	return ""
}

func (c *Client) post(ctx context.Context, payload ChatCompletionRequest) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chatPath, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
