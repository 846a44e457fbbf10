package llm

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/easeaico/project-chara/internal/prompt"
	"github.com/easeaico/project-chara/internal/types"
)

// GeminiProvider generates completions through the Gemini API.
type GeminiProvider struct {
	client  *genai.Client
	model   string
	nowFunc func() time.Time
}

// NewGeminiProvider returns a Gemini-backed provider.
func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiProvider{client: client, model: model, nowFunc: time.Now}, nil
}

func (p *GeminiProvider) Name() string {
	return "gemini"
}

func (p *GeminiProvider) Generate(ctx context.Context, messages []prompt.Message, opts Options) (*Response, error) {
	start := p.nowFunc()
	contents, config := p.buildRequest(messages, opts)

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("empty generation response")
	}

	tokens := 0
	if resp.UsageMetadata != nil {
		tokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	return &Response{
		Content:      resp.Text(),
		TokensUsed:   tokens,
		Model:        p.model,
		Provider:     p.Name(),
		ResponseTime: p.nowFunc().Sub(start).Seconds(),
	}, nil
}

func (p *GeminiProvider) GenerateStream(ctx context.Context, messages []prompt.Message, opts Options) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		contents, config := p.buildRequest(messages, opts)
		for resp, err := range p.client.Models.GenerateContentStream(ctx, p.model, contents, config) {
			if err != nil {
				yield("", fmt.Errorf("stream error: %w", err))
				return
			}
			if text := resp.Text(); text != "" {
				if !yield(text, nil) {
					return
				}
			}
		}
	}
}

// buildRequest maps chat roles to Gemini's user/model roles and lifts
// system turns into the system instruction.
func (p *GeminiProvider) buildRequest(messages []prompt.Message, opts Options) ([]*genai.Content, *genai.GenerateContentConfig) {
	var system []string
	var contents []*genai.Content
	for _, msg := range messages {
		switch msg.Role {
		case types.RoleSystem:
			system = append(system, msg.Content)
		case types.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}

	config := &genai.GenerateContentConfig{}
	if len(system) > 0 {
		config.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	if opts.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(opts.Temperature))
	}
	if opts.MaxTokens > 0 {
		config.MaxOutputTokens = int32(opts.MaxTokens)
	}
	return contents, config
}
