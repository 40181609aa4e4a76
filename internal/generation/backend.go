// Package generation owns the language-model backend and the fixed decoding
// contract used to turn a prompt into a clinical note.
package generation

import (
	"context"
)

// Fixed decoding parameters. They are applied identically on every call.
const (
	MaxNewTokens = 200
	Temperature  = 0.8
	TopP         = 0.9
)

// DecodingConfig is the per-call decoding configuration sent to a Backend.
// Sampling is always on: Temperature is non-zero.
type DecodingConfig struct {
	MaxNewTokens int
	Temperature  float32
	TopP         float32
	// StopSequences ends generation at the end-of-sequence token.
	StopSequences []string
	// Echo asks the backend to prepend the prompt; it is always false.
	Echo bool
}

// DefaultDecoding returns the fixed decoding configuration for the given
// end-of-sequence token.
func DefaultDecoding(eosToken string) DecodingConfig {
	dc := DecodingConfig{
		MaxNewTokens: MaxNewTokens,
		Temperature:  Temperature,
		TopP:         TopP,
	}
	if eosToken != "" {
		dc.StopSequences = []string{eosToken}
	}
	return dc
}

// Backend is a text-completion model server.
type Backend interface {
	// Complete returns the sampled continuation of prompt.
	Complete(ctx context.Context, model, prompt string, dc DecodingConfig) (string, error)
	// CheckModel fails if the backend cannot serve model.
	CheckModel(ctx context.Context, model string) error
}
