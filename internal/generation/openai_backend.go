package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"github.com/medreportgen-server/internal/domain"
)

// ErrEmptyCompletion is returned when the backend answers without any choice.
var ErrEmptyCompletion = errors.New("backend returned no completion choices")

// OpenAIBackend talks to any server exposing the OpenAI completions API
// (vLLM, llama.cpp server, text-generation-inference) hosting a causal LM.
type OpenAIBackend struct {
	client *openai.Client
}

// NewOpenAIBackend constructs a completions client for cfg.BaseURL.
func NewOpenAIBackend(cfg domain.GenerationConfig) (*OpenAIBackend, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid generation base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid generation base URL scheme: %q", u.Scheme)
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL
	// Per-call deadlines come from the caller's context.
	clientCfg.HTTPClient = &http.Client{}

	return &OpenAIBackend{client: openai.NewClientWithConfig(clientCfg)}, nil
}

// Complete implements Backend.
func (b *OpenAIBackend) Complete(ctx context.Context, model, prompt string, dc DecodingConfig) (string, error) {
	resp, err := b.client.CreateCompletion(ctx, openai.CompletionRequest{
		Model:       model,
		Prompt:      prompt,
		MaxTokens:   dc.MaxNewTokens,
		Temperature: dc.Temperature,
		TopP:        dc.TopP,
		Stop:        dc.StopSequences,
		Echo:        dc.Echo,
		N:           1,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Text, nil
}

// CheckModel implements Backend.
func (b *OpenAIBackend) CheckModel(ctx context.Context, model string) error {
	m, err := b.client.GetModel(ctx, model)
	if err != nil {
		return fmt.Errorf("model %q unavailable: %w", model, err)
	}
	if m.ID != "" && m.ID != model {
		return fmt.Errorf("backend reported model %q, expected %q", m.ID, model)
	}
	return nil
}

// Open builds the OpenAI-compatible backend for cfg and the Engine over it.
// Every failure is an *domain.InitializationError.
func Open(ctx context.Context, cfg domain.GenerationConfig, logger *logrus.Logger) (*Engine, error) {
	backend, err := NewOpenAIBackend(cfg)
	if err != nil {
		return nil, domain.NewInitializationError("generation backend", err)
	}
	return NewEngine(ctx, cfg, backend, logger)
}
