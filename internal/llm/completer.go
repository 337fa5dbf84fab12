package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	// ErrUnknownProvider is returned when no factory is registered for a name.
	ErrUnknownProvider = errors.New("unknown LLM provider")
	// ErrDisabled is returned by the "none" provider.
	ErrDisabled = errors.New("LLM provider disabled")
)

// Completer is a provider-agnostic text completion capability. Callers that
// need reproducible output rely on implementations requesting temperature 0.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Settings configures a provider when it is resolved.
type Settings struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Factory builds a Completer for one provider.
type Factory func(ctx context.Context, s Settings, target string) (Completer, error)

// Registry maps provider names to factories. Resolve it once at startup.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns a registry with the built-in providers: openai, gemini,
// cli and none.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("openai", func(_ context.Context, s Settings, _ string) (Completer, error) {
		return NewClient(s), nil
	})
	r.Register("gemini", func(ctx context.Context, s Settings, _ string) (Completer, error) {
		return NewGeminiClient(ctx, s.APIKey, s.Model)
	})
	r.Register("cli", func(_ context.Context, s Settings, target string) (Completer, error) {
		if target == "" {
			return nil, fmt.Errorf("cli provider needs a command, e.g. cli:claude")
		}
		return NewCLIClient(target, s.Model)
	})
	r.Register("none", func(context.Context, Settings, string) (Completer, error) {
		return Disabled{}, nil
	})
	return r
}

// Register adds or replaces a provider factory.
func (r *Registry) Register(name string, f Factory) {
	r.factories[strings.ToLower(name)] = f
}

// Names lists registered providers in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve builds the completer for provider. The form "name:target" passes
// target to the factory, so "cli:claude" runs the claude command. An empty
// provider resolves to "none".
func (r *Registry) Resolve(ctx context.Context, provider string, s Settings) (Completer, error) {
	name, target, _ := strings.Cut(strings.TrimSpace(provider), ":")
	name = strings.ToLower(name)
	if name == "" {
		name = "none"
	}
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	c, err := f(ctx, s, target)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s provider: %w", name, err)
	}
	return c, nil
}

// Disabled is the "none" provider. Every call fails with ErrDisabled.
type Disabled struct{}

// Complete always returns ErrDisabled.
func (Disabled) Complete(context.Context, string) (string, error) {
	return "", ErrDisabled
}
