package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	claudeDefaultBaseURL = "https://api.anthropic.com"
	claudeAPIVersion     = "2023-06-01"
	claudeDefaultTokens  = 1024
)

// ClaudeAPIClient is a direct HTTP client for the Anthropic Messages API.
type ClaudeAPIClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewClaudeAPIClient creates a client bound to one API key. An empty baseURL
// selects the public endpoint.
func NewClaudeAPIClient(apiKey, baseURL string) *ClaudeAPIClient {
	if baseURL == "" {
		baseURL = claudeDefaultBaseURL
	}
	return &ClaudeAPIClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

// Name returns the provider name.
func (c *ClaudeAPIClient) Name() string { return "anthropic" }

// Stream sends a streaming completion request.
func (c *ClaudeAPIClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
	payload, err := json.Marshal(c.buildRequestBody(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	ch := make(chan StreamEvent)
	go c.streamRequest(ctx, ch, payload)
	return ch, nil
}

func (c *ClaudeAPIClient) buildRequestBody(req CompletionRequest) map[string]any {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = claudeDefaultTokens
	}

	var system []string
	if req.System != "" {
		system = append(system, req.System)
	}
	msgs := make([]map[string]any, 0, len(req.Messages))
	last := lastUserIndex(req.Messages)
	for i, m := range req.Messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		if i == last && len(req.Media) > 0 {
			msgs = append(msgs, map[string]any{"role": m.Role, "content": claudeUserBlocks(m.Content, req.Media)})
			continue
		}
		msgs = append(msgs, map[string]any{"role": m.Role, "content": m.Content})
	}

	body := map[string]any{
		"model":      req.Model,
		"messages":   msgs,
		"max_tokens": maxTokens,
		"stream":     true,
	}
	if len(system) > 0 {
		body["system"] = strings.Join(system, "\n\n")
	}
	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}
	return body
}

func claudeUserBlocks(text string, media []MediaPart) []map[string]any {
	blocks := make([]map[string]any, 0, len(media)+1)
	for _, m := range media {
		switch {
		case len(m.Data) > 0:
			blocks = append(blocks, map[string]any{
				"type": "image",
				"source": map[string]any{
					"type":       "base64",
					"media_type": m.MIMEType,
					"data":       base64.StdEncoding.EncodeToString(m.Data),
				},
			})
		case m.URL != "":
			blocks = append(blocks, map[string]any{
				"type":   "image",
				"source": map[string]any{"type": "url", "url": m.URL},
			})
		}
	}
	return append(blocks, map[string]any{"type": "text", "text": text})
}

func (c *ClaudeAPIClient) streamRequest(ctx context.Context, ch chan<- StreamEvent, payload []byte) {
	defer close(ch)

	fail := func(code int, err error) {
		send(ctx, ch, StreamEvent{Type: EventError, Err: wrapError(c.Name(), code, err)})
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		fail(0, fmt.Errorf("request creation failed: %w", err))
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", claudeAPIVersion)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		fail(0, fmt.Errorf("request failed: %w", err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		send(ctx, ch, StreamEvent{Type: EventError, Err: &ProviderError{
			Provider: c.Name(),
			Code:     resp.StatusCode,
			Message:  readErrorBody(resp.Body),
		}})
		return
	}

	scanner := newServerSentEventScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		var event claudeStreamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			continue
		}

		switch event.Type {
		case "content_block_delta":
			if event.Delta.Type == "text_delta" && event.Delta.Text != "" {
				if !send(ctx, ch, StreamEvent{Type: EventDelta, Content: event.Delta.Text}) {
					return
				}
			}
		case "error":
			send(ctx, ch, StreamEvent{Type: EventError, Err: &ProviderError{
				Provider: c.Name(),
				Code:     claudeErrorCode(event.Error.Type),
				Message:  event.Error.Message,
			}})
			return
		case "message_stop":
			send(ctx, ch, StreamEvent{Type: EventDone})
			return
		}
	}
	if err := scanner.Err(); err != nil {
		fail(0, fmt.Errorf("reading stream: %w", err))
		return
	}
	send(ctx, ch, StreamEvent{Type: EventDone})
}

// claudeErrorCode maps an in-stream error type to its HTTP equivalent.
func claudeErrorCode(typ string) int {
	switch typ {
	case "rate_limit_error":
		return http.StatusTooManyRequests
	case "permission_error":
		return http.StatusForbidden
	case "authentication_error":
		return http.StatusUnauthorized
	case "overloaded_error":
		return 529
	case "api_error":
		return http.StatusInternalServerError
	default:
		return 0
	}
}

type claudeStreamEvent struct {
	Type  string            `json:"type"`
	Delta claudeStreamDelta `json:"delta"`
	Error claudeStreamError `json:"error"`
}

type claudeStreamDelta struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	StopReason string `json:"stop_reason,omitempty"`
}

type claudeStreamError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
