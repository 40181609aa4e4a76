package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/medreportgen-server/internal/domain"
)

// Engine is the process-wide generation engine. It is built once by NewEngine
// and is read-only afterwards; Generate is safe for concurrent use.
type Engine struct {
	backend        Backend
	model          string
	decoding       DecodingConfig
	maxPromptRunes int
	serialize      bool

	// mu serializes backend calls when serialize is set.
	mu      sync.Mutex
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  *logrus.Logger
}

// NewEngine builds an Engine over backend. When cfg.VerifyOnStart is set the
// model must be available, otherwise an *domain.InitializationError is returned.
func NewEngine(ctx context.Context, cfg domain.GenerationConfig, backend Backend, logger *logrus.Logger) (*Engine, error) {
	if backend == nil {
		return nil, domain.NewInitializationError("generation engine", errors.New("no backend configured"))
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, domain.NewInitializationError("generation engine", errors.New("model name is empty"))
	}
	if logger == nil {
		logger = logrus.New()
	}

	e := &Engine{
		backend:        backend,
		model:          cfg.Model,
		decoding:       DefaultDecoding(cfg.EOSToken),
		maxPromptRunes: cfg.MaxPromptRunes,
		serialize:      cfg.SerializeCalls,
		logger:         logger,
	}

	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	e.breaker = gobreaker.NewCircuitBreaker(breakerSettings(cfg, logger))

	if cfg.VerifyOnStart {
		logger.WithField("model", cfg.Model).Info("Verifying generation model")
		if err := backend.CheckModel(ctx, cfg.Model); err != nil {
			return nil, domain.NewInitializationError("generation engine", err)
		}
	}

	logger.WithFields(logrus.Fields{
		"model":          e.model,
		"max_new_tokens": e.decoding.MaxNewTokens,
		"temperature":    e.decoding.Temperature,
		"top_p":          e.decoding.TopP,
		"serialize":      e.serialize,
	}).Info("Generation engine initialized")

	return e, nil
}

func breakerSettings(cfg domain.GenerationConfig, logger *logrus.Logger) gobreaker.Settings {
	minRequests := cfg.BreakerMinRequests
	if minRequests == 0 {
		minRequests = 5
	}
	ratio := cfg.BreakerFailureRatio
	if ratio <= 0 {
		ratio = 0.6
	}

	return gobreaker.Settings{
		Name:        "generation:" + cfg.Model,
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= minRequests && failureRatio >= ratio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
		// A caller giving up is not a backend failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
}

// ModelName returns the configured model identifier.
func (e *Engine) ModelName() string {
	return e.model
}

// BreakerState reports the circuit breaker state guarding the backend.
func (e *Engine) BreakerState() gobreaker.State {
	return e.breaker.State()
}

// Generate returns the post-processed continuation of prompt. The prompt is not
// validated. Any failure is returned as a *domain.GenerationError.
func (e *Engine) Generate(ctx context.Context, prompt string) (domain.GeneratedNote, error) {
	sent := truncateRunes(prompt, e.maxPromptRunes)

	start := time.Now()
	raw, err := e.complete(ctx, sent)
	if err != nil {
		e.logger.WithError(err).WithFields(logrus.Fields{
			"model":    e.model,
			"duration": time.Since(start),
		}).Error("Generation failed")
		return domain.GeneratedNote{}, domain.NewGenerationError(e.model, err)
	}

	note := domain.GeneratedNote{
		Raw:  raw,
		Text: StripPrompt(raw, sent),
	}

	e.logger.WithFields(logrus.Fields{
		"model":        e.model,
		"duration":     time.Since(start),
		"prompt_runes": len([]rune(sent)),
		"note_length":  len(note.Text),
	}).Debug("Generation completed")

	return note, nil
}

func (e *Engine) complete(ctx context.Context, prompt string) (string, error) {
	if e.serialize {
		e.mu.Lock()
		defer e.mu.Unlock()
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}
	}

	result, err := e.breaker.Execute(func() (interface{}, error) {
		return e.backend.Complete(ctx, e.model, prompt, e.decoding)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("generation backend unavailable (circuit breaker %s): %w", e.breaker.State(), err)
		}
		return "", err
	}

	return result.(string), nil
}

// StripPrompt removes one leading copy of prompt from raw, then trims surrounding
// whitespace. Later occurrences of the prompt text are kept.
func StripPrompt(raw, prompt string) string {
	if prompt != "" {
		raw = strings.TrimPrefix(raw, prompt)
	}
	return strings.TrimSpace(raw)
}

// truncateRunes keeps the first max runes of s; max <= 0 disables truncation.
func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
