package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

const defaultOllamaModel = "llama3.1"

// Ollama generates text with a local model through langchaingo.
type Ollama struct {
	llm llms.Model
}

// NewOllama connects to an Ollama server. An empty endpoint uses the
// langchaingo default (localhost).
func NewOllama(model, endpoint string) (*Ollama, error) {
	if model == "" {
		model = defaultOllamaModel
	}
	opts := []ollama.Option{ollama.WithModel(model)}
	if endpoint = strings.TrimSpace(endpoint); endpoint != "" {
		opts = append(opts, ollama.WithServerURL(endpoint))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("analysis: ollama: %w", err)
	}
	return &Ollama{llm: llm}, nil
}

// Generate folds the system prompt into the single prompt.
func (o *Ollama) Generate(ctx context.Context, system, prompt string) (string, error) {
	if system != "" {
		prompt = system + "\n\n" + prompt
	}
	return llms.GenerateFromSinglePrompt(ctx, o.llm, prompt, llms.WithTemperature(0.2))
}
