package llm

import (
	"context"
	"errors"
	"iter"
	"testing"
	"time"

	"github.com/easeaico/project-chara/internal/errs"
	"github.com/easeaico/project-chara/internal/prompt"
)

type fakeProvider struct {
	name     string
	failures int
	calls    int
	chunks   []string
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Generate(ctx context.Context, messages []prompt.Message, opts Options) (*Response, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("boom")
	}
	return &Response{Content: f.name + " says hi", Provider: f.name}, nil
}

func (f *fakeProvider) GenerateStream(ctx context.Context, messages []prompt.Message, opts Options) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, chunk := range f.chunks {
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

func newTestConnector(t *testing.T, defaultProvider string, maxRetries int, providers ...Provider) *Connector {
	t.Helper()
	c, err := NewConnector(defaultProvider, maxRetries, time.Second, providers...)
	if err != nil {
		t.Fatalf("connector failed: %v", err)
	}
	c.sleepFunc = func(time.Duration) {}
	return c
}

func TestConnectorRequiresProviders(t *testing.T) {
	_, err := NewConnector("gemini", 3, time.Second)
	if errs.CodeOf(err) != errs.CodeLLMProvider {
		t.Fatalf("expected LLM_PROVIDER_ERROR, got %v", err)
	}
}

func TestUnavailableDefaultFallsBackToFirst(t *testing.T) {
	c := newTestConnector(t, "gemini", 0, &fakeProvider{name: "deepseek"})
	if c.DefaultProvider() != "deepseek" {
		t.Fatalf("expected deepseek default, got %q", c.DefaultProvider())
	}
}

func TestGenerateRetriesUntilSuccess(t *testing.T) {
	primary := &fakeProvider{name: "deepseek", failures: 2}
	c := newTestConnector(t, "deepseek", 3, primary)

	resp, err := c.Generate(context.Background(), nil, "", Options{})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if resp.Provider != "deepseek" || primary.calls != 3 {
		t.Fatalf("expected success on third call, got %#v after %d calls", resp, primary.calls)
	}
}

func TestGenerateFailsOverToSecondary(t *testing.T) {
	primary := &fakeProvider{name: "deepseek", failures: 100}
	secondary := &fakeProvider{name: "gemini"}
	c := newTestConnector(t, "deepseek", 1, primary, secondary)

	resp, err := c.Generate(context.Background(), nil, "", Options{})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if resp.Provider != "gemini" {
		t.Fatalf("expected gemini fallback, got %#v", resp)
	}
	// maxRetries 1 means two attempts on the primary.
	if primary.calls != 2 || secondary.calls != 1 {
		t.Fatalf("unexpected call counts: primary=%d secondary=%d", primary.calls, secondary.calls)
	}
}

func TestGenerateReturnsPrimaryErrorWhenAllFail(t *testing.T) {
	primary := &fakeProvider{name: "deepseek", failures: 100}
	secondary := &fakeProvider{name: "gemini", failures: 100}
	c := newTestConnector(t, "deepseek", 0, primary, secondary)

	_, err := c.Generate(context.Background(), nil, "", Options{})
	if errs.CodeOf(err) != errs.CodeLLMProvider {
		t.Fatalf("expected LLM_PROVIDER_ERROR, got %v", err)
	}
	var provErr *errs.LLMProviderError
	if !errors.As(err, &provErr) || provErr.Provider != "deepseek" {
		t.Fatalf("expected primary provider error, got %v", err)
	}
}

func TestGenerateStreamUsesRequestedProvider(t *testing.T) {
	c := newTestConnector(t, "deepseek", 0,
		&fakeProvider{name: "deepseek", chunks: []string{"不"}},
		&fakeProvider{name: "gemini", chunks: []string{"你", "好"}})

	var got string
	for chunk, err := range c.GenerateStream(context.Background(), nil, "gemini", Options{}) {
		if err != nil {
			t.Fatalf("stream error: %v", err)
		}
		got += chunk
	}
	if got != "你好" {
		t.Fatalf("expected streamed 你好, got %q", got)
	}
}
