package analysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/hpungsan/almanac/internal/config"
)

// ErrNoCredentials is returned by a generator that has no usable provider
// configuration. Absorption treats it like any other provider failure.
var ErrNoCredentials = errors.New("analysis: no provider credentials configured")

// Generator turns one prompt into one text completion.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, system, prompt string) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, system, prompt string) (string, error) {
	return f(ctx, system, prompt)
}

// NewGenerator builds the generator selected by cfg.Provider. A provider that
// needs an API key and has none yields a disabled generator, not an error;
// only an unknown provider name is an error.
func NewGenerator(cfg config.AIConfig) (Generator, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI, "":
		key := cfg.APIKey()
		if key == "" {
			return Disabled(), nil
		}
		return NewOpenAI(key, cfg.Model, cfg.Endpoint), nil
	case config.ProviderOllama:
		return NewOllama(cfg.Model, cfg.Endpoint)
	case config.ProviderNone:
		return Disabled(), nil
	default:
		return nil, fmt.Errorf("analysis: unknown provider %q", cfg.Provider)
	}
}

type disabled struct{}

// Disabled returns a generator that always fails with ErrNoCredentials.
func Disabled() Generator { return disabled{} }

func (disabled) Generate(context.Context, string, string) (string, error) {
	return "", ErrNoCredentials
}
