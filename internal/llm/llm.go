// Package llm provides a unified interface over the chat completion
// providers, with retry and cross-provider failover.
package llm

import (
	"context"
	"iter"

	"github.com/easeaico/project-chara/internal/prompt"
)

// Options are per-request generation parameters.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// Response is one completed generation with its usage metadata.
type Response struct {
	Content      string  `json:"content"`
	TokensUsed   int     `json:"tokens_used"`
	Model        string  `json:"model"`
	Provider     string  `json:"provider"`
	ResponseTime float64 `json:"response_time"`
}

// Provider is one chat completion backend.
type Provider interface {
	Name() string
	Generate(ctx context.Context, messages []prompt.Message, opts Options) (*Response, error)
	GenerateStream(ctx context.Context, messages []prompt.Message, opts Options) iter.Seq2[string, error]
}
