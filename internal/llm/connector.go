package llm

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"time"

	"github.com/easeaico/project-chara/internal/config"
	"github.com/easeaico/project-chara/internal/errs"
	"github.com/easeaico/project-chara/internal/prompt"
)

// Connector routes generation requests to a provider, retrying with
// exponential backoff and failing over to the remaining providers when
// the primary keeps failing.
type Connector struct {
	providers       []Provider
	byName          map[string]Provider
	defaultProvider string

	maxRetries int
	timeout    time.Duration
	sleepFunc  func(time.Duration)
}

// NewConnector returns a Connector over providers, in failover order.
func NewConnector(defaultProvider string, maxRetries int, timeout time.Duration, providers ...Provider) (*Connector, error) {
	if len(providers) == 0 {
		return nil, &errs.LLMProviderError{Provider: "none", Reason: "没有可用的LLM提供商"}
	}
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	if _, ok := byName[defaultProvider]; !ok {
		slog.Warn("default llm provider unavailable, switching",
			"requested", defaultProvider, "using", providers[0].Name())
		defaultProvider = providers[0].Name()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Connector{
		providers:       providers,
		byName:          byName,
		defaultProvider: defaultProvider,
		maxRetries:      maxRetries,
		timeout:         timeout,
		sleepFunc:       time.Sleep,
	}, nil
}

// NewFromConfig builds a Connector with every provider the config has
// credentials for.
func NewFromConfig(ctx context.Context, cfg *config.Config) (*Connector, error) {
	var providers []Provider

	if cfg.GeminiAPIKey != "" {
		gemini, err := NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			slog.Warn("gemini provider unavailable", "error", err)
		} else {
			providers = append(providers, gemini)
		}
	}
	if cfg.DeepSeekAPIKey != "" {
		deepseek, err := NewOpenAIProvider("deepseek", cfg.DeepSeekAPIKey, cfg.DeepSeekBaseURL, cfg.DeepSeekModel)
		if err != nil {
			slog.Warn("deepseek provider unavailable", "error", err)
		} else {
			providers = append(providers, deepseek)
		}
	}

	return NewConnector(cfg.DefaultProvider, cfg.MaxRetries, cfg.RequestTimeout, providers...)
}

// AvailableProviders lists provider names in failover order.
func (c *Connector) AvailableProviders() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

// DefaultProvider returns the name requests fall back to.
func (c *Connector) DefaultProvider() string {
	return c.defaultProvider
}

// Generate produces a completion, retrying the chosen provider and
// then trying each remaining provider once.
func (c *Connector) Generate(ctx context.Context, messages []prompt.Message, providerName string, opts Options) (*Response, error) {
	primary := c.resolve(providerName)

	resp, primaryErr := c.generateWithRetry(ctx, primary, messages, opts)
	if primaryErr == nil {
		return resp, nil
	}

	for _, fallback := range c.providers {
		if fallback.Name() == primary.Name() {
			continue
		}
		slog.Warn("llm provider failed, trying fallback",
			"failed", primary.Name(), "fallback", fallback.Name())
		resp, err := c.generateOnce(ctx, fallback, messages, opts)
		if err == nil {
			return resp, nil
		}
	}
	return nil, primaryErr
}

// GenerateStream streams a completion from the chosen provider.
// Streaming is not retried; a broken stream surfaces as an error item.
func (c *Connector) GenerateStream(ctx context.Context, messages []prompt.Message, providerName string, opts Options) iter.Seq2[string, error] {
	return c.resolve(providerName).GenerateStream(ctx, messages, opts)
}

func (c *Connector) resolve(providerName string) Provider {
	if providerName == "" {
		providerName = c.defaultProvider
	}
	if p, ok := c.byName[providerName]; ok {
		return p
	}
	slog.Warn("requested llm provider unavailable, using fallback",
		"requested", providerName, "using", c.providers[0].Name())
	return c.providers[0]
}

func (c *Connector) generateWithRetry(ctx context.Context, p Provider, messages []prompt.Message, opts Options) (*Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// 指数退避
			c.sleepFunc(time.Duration(1<<(attempt-1)) * 500 * time.Millisecond)
		}
		resp, err := c.generateOnce(ctx, p, messages, opts)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if errs.CodeOf(err) == errs.CodeLLMTimeout && ctx.Err() != nil {
			// The caller's own deadline is gone, retrying is pointless.
			break
		}
	}
	return nil, lastErr
}

func (c *Connector) generateOnce(ctx context.Context, p Provider, messages []prompt.Message, opts Options) (*Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := p.Generate(callCtx, messages, opts)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &errs.LLMTimeoutError{
				Provider:       p.Name(),
				TimeoutSeconds: int(c.timeout.Seconds()),
			}
		}
		return nil, &errs.LLMProviderError{Provider: p.Name(), Reason: "生成失败", Err: err}
	}
	return resp, nil
}
