package llm

import (
	"context"
	"encoding/base64"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
)

// OpenAIClient streams chat completions from any OpenAI-compatible endpoint.
type OpenAIClient struct {
	client openai.Client
}

// NewOpenAIClient creates a client bound to one API key. SDK-level retries
// are disabled; rotation and backoff belong to the caller.
func NewOpenAIClient(apiKey, baseURL string) *OpenAIClient {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIClient{client: openai.NewClient(opts...)}
}

// Name returns the provider name.
func (o *OpenAIClient) Name() string { return "openai" }

// Stream sends a streaming chat completion request.
func (o *OpenAIClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
	msgs := openaiConvMessages(req)
	if len(msgs) == 0 {
		return nil, errors.New("openai: no messages")
	}

	params := openai.ChatCompletionNewParams{
		Model:    req.Model,
		Messages: msgs,
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	if req.Temperature != nil {
		params.Temperature = param.NewOpt(*req.Temperature)
	}

	stream := o.client.Chat.Completions.NewStreaming(ctx, params)
	ch := make(chan StreamEvent)
	go func() {
		defer close(ch)
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			if s := chunk.Choices[0].Delta.Content; s != "" {
				if !send(ctx, ch, StreamEvent{Type: EventDelta, Content: s}) {
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			send(ctx, ch, StreamEvent{Type: EventError, Err: openaiError(err)})
			return
		}
		send(ctx, ch, StreamEvent{Type: EventDone})
	}()
	return ch, nil
}

func openaiConvMessages(req CompletionRequest) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		out = append(out, openai.SystemMessage(req.System))
	}

	last := lastUserIndex(req.Messages)
	for i, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			if i == last && len(req.Media) > 0 {
				out = append(out, openai.UserMessage(openaiUserParts(m.Content, req.Media)))
				continue
			}
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func openaiUserParts(text string, media []MediaPart) []openai.ChatCompletionContentPartUnionParam {
	parts := []openai.ChatCompletionContentPartUnionParam{openai.TextContentPart(text)}
	for _, m := range media {
		url := m.URL
		if len(m.Data) > 0 {
			url = "data:" + m.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(m.Data)
		}
		if url == "" {
			continue
		}
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: url}))
	}
	return parts
}

func openaiError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &ProviderError{
			Provider: "openai",
			Code:     apiErr.StatusCode,
			Message:  apiErr.Message,
			Err:      err,
		}
	}
	return wrapError("openai", 0, err)
}
