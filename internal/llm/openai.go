package llm

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/easeaico/project-chara/internal/prompt"
	"github.com/easeaico/project-chara/internal/types"
)

// OpenAIProvider wraps any OpenAI-compatible chat completion API.
// DeepSeek is served through this provider with its own base URL.
type OpenAIProvider struct {
	client  *openai.Client
	name    string
	model   string
	nowFunc func() time.Time
}

// NewOpenAIProvider returns a provider talking to an OpenAI-compatible
// endpoint. baseURL may be empty for the default endpoint.
func NewOpenAIProvider(name, apiKey, baseURL, model string) (*OpenAIProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("model name cannot be empty")
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(reqOpts...)

	return &OpenAIProvider{
		client:  &client,
		name:    name,
		model:   model,
		nowFunc: time.Now,
	}, nil
}

func (p *OpenAIProvider) Name() string {
	return p.name
}

func (p *OpenAIProvider) Generate(ctx context.Context, messages []prompt.Message, opts Options) (*Response, error) {
	start := p.nowFunc()

	resp, err := p.client.Chat.Completions.New(ctx, p.buildParams(messages, opts))
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty completion response")
	}

	return &Response{
		Content:      resp.Choices[0].Message.Content,
		TokensUsed:   int(resp.Usage.TotalTokens),
		Model:        p.model,
		Provider:     p.name,
		ResponseTime: p.nowFunc().Sub(start).Seconds(),
	}, nil
}

func (p *OpenAIProvider) GenerateStream(ctx context.Context, messages []prompt.Message, opts Options) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		stream := p.client.Chat.Completions.NewStreaming(ctx, p.buildParams(messages, opts))
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				if !yield(delta, nil) {
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			yield("", fmt.Errorf("stream error: %w", err))
		}
	}
}

func (p *OpenAIProvider) buildParams(messages []prompt.Message, opts Options) openai.ChatCompletionNewParams {
	converted := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case types.RoleSystem:
			converted = append(converted, openai.SystemMessage(msg.Content))
		case types.RoleAssistant:
			converted = append(converted, openai.AssistantMessage(msg.Content))
		default:
			converted = append(converted, openai.UserMessage(msg.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    p.model,
		Messages: converted,
	}
	if opts.Temperature > 0 {
		params.Temperature = openai.Float(opts.Temperature)
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(opts.MaxTokens))
	}
	return params
}
