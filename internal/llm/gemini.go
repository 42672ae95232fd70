package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiClient streams completions from the Gemini API through the genai SDK.
type GeminiClient struct {
	client *genai.Client
}

// NewGeminiClient creates a Gemini client bound to one API key. baseURL is
// optional and overrides the API endpoint.
func NewGeminiClient(ctx context.Context, apiKey, baseURL string) (*GeminiClient, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	c, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &GeminiClient{client: c}, nil
}

// Name returns the provider name.
func (g *GeminiClient) Name() string { return "gemini" }

// Stream sends a streaming completion request.
func (g *GeminiClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
	cfg, contents := geminiConvRequest(req)
	if len(contents) == 0 {
		return nil, errors.New("gemini: no contents")
	}

	ch := make(chan StreamEvent)
	go func() {
		defer close(ch)
		for chunk, err := range g.client.Models.GenerateContentStream(ctx, req.Model, contents, cfg) {
			if err != nil {
				send(ctx, ch, StreamEvent{Type: EventError, Err: geminiError(err)})
				return
			}
			if text := geminiText(chunk); text != "" {
				if !send(ctx, ch, StreamEvent{Type: EventDelta, Content: text}) {
					return
				}
			}
		}
		send(ctx, ch, StreamEvent{Type: EventDone})
	}()
	return ch, nil
}

func geminiText(chunk *genai.GenerateContentResponse) string {
	if chunk == nil || len(chunk.Candidates) == 0 {
		return ""
	}
	cand := chunk.Candidates[0]
	if cand.Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range cand.Content.Parts {
		if p.Text != "" && !p.Thought {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

func geminiConvRequest(req CompletionRequest) (*genai.GenerateContentConfig, []*genai.Content) {
	cfg := &genai.GenerateContentConfig{}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature != nil {
		t := float32(*req.Temperature)
		cfg.Temperature = &t
	}

	system := []*genai.Part{}
	if req.System != "" {
		system = append(system, genai.NewPartFromText(req.System))
	}

	last := lastUserIndex(req.Messages)
	contents := make([]*genai.Content, 0, len(req.Messages))
	for i, m := range req.Messages {
		if m.Role == RoleSystem {
			system = append(system, genai.NewPartFromText(m.Content))
			continue
		}
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		parts := []*genai.Part{genai.NewPartFromText(m.Content)}
		if i == last {
			for _, media := range req.Media {
				if len(media.Data) > 0 {
					parts = append(parts, genai.NewPartFromBytes(media.Data, media.MIMEType))
				} else if media.URL != "" {
					parts = append(parts, genai.NewPartFromURI(media.URL, media.MIMEType))
				}
			}
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}

	if len(system) > 0 {
		cfg.SystemInstruction = &genai.Content{Parts: system}
	}
	return cfg, contents
}

func geminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{
			Provider: "gemini",
			Code:     apiErr.Code,
			Message:  strings.TrimSpace(apiErr.Status + " " + apiErr.Message),
			Err:      err,
		}
	}
	return wrapError("gemini", 0, err)
}
