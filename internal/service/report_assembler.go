package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/medreportgen-server/internal/domain"
)

// ReportObserver receives the outcome of every synthesized report.
type ReportObserver interface {
	ObserveReport(resp *domain.MedicalReportResponse, generation time.Duration)
}

// ReportAssembler composes prompt building, note generation and warning
// evaluation into a MedicalReportResponse.
type ReportAssembler struct {
	generator  domain.NoteGenerator
	confidence float64
	timeout    time.Duration
	observer   ReportObserver
	logger     *logrus.Logger
}

// NewReportAssembler creates an assembler over generator. A zero timeout leaves
// generation bounded only by the caller's context.
func NewReportAssembler(generator domain.NoteGenerator, confidence float64, timeout time.Duration, logger *logrus.Logger) *ReportAssembler {
	if logger == nil {
		logger = logrus.New()
	}
	return &ReportAssembler{
		generator:  generator,
		confidence: confidence,
		timeout:    timeout,
		logger:     logger,
	}
}

// WithObserver registers an observer notified after each report.
func (a *ReportAssembler) WithObserver(o ReportObserver) *ReportAssembler {
	a.observer = o
	return a
}

// Synthesize builds the report for one resolved summary. It makes a single
// generation attempt; a failure degrades the note to a placeholder carrying the
// cause while warnings and confidence are still populated.
func (a *ReportAssembler) Synthesize(ctx context.Context, summary domain.PatientSummary) *domain.MedicalReportResponse {
	prompt := BuildPrompt(summary)

	warningsCh := make(chan []string, 1)
	go func() {
		warningsCh <- EvaluateWarnings(summary)
	}()

	start := time.Now()
	note, genErr := a.generate(ctx, prompt)
	elapsed := time.Since(start)

	resp := &domain.MedicalReportResponse{
		ConfidenceScore: a.confidence,
		Warnings:        <-warningsCh,
	}

	if genErr != nil {
		resp.GeneratedNote = domain.GenerationFailurePrefix + failureCause(genErr)
		resp.GenerationErr = genErr
		a.logger.WithError(genErr).WithFields(logrus.Fields{
			"model":    genErr.Model,
			"warnings": len(resp.Warnings),
			"duration": elapsed,
		}).Warn("Report degraded by generation failure")
	} else {
		resp.GeneratedNote = note.Text
		a.logger.WithFields(logrus.Fields{
			"model":       a.generator.ModelName(),
			"warnings":    len(resp.Warnings),
			"note_length": len(note.Text),
			"duration":    elapsed,
		}).Info("Report synthesized")
	}

	if a.observer != nil {
		a.observer.ObserveReport(resp, elapsed)
	}

	return resp
}

// generate runs one generation attempt and normalizes every failure, panics
// included, into a *domain.GenerationError.
func (a *ReportAssembler) generate(ctx context.Context, prompt string) (note domain.GeneratedNote, genErr *domain.GenerationError) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			genErr = domain.NewGenerationError(a.generator.ModelName(), fmt.Errorf("panic during generation: %v", r))
		}
	}()

	note, err := a.generator.Generate(ctx, prompt)
	if err == nil {
		return note, nil
	}
	if !errors.As(err, &genErr) {
		genErr = domain.NewGenerationError(a.generator.ModelName(), err)
	}
	return domain.GeneratedNote{}, genErr
}

func failureCause(err *domain.GenerationError) string {
	if err.Cause != nil {
		return err.Cause.Error()
	}
	return err.Error()
}
