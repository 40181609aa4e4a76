package domain

import (
	"context"
)

// NoteGenerator produces a model continuation for a prompt.
// A returned error is always a *GenerationError.
type NoteGenerator interface {
	Generate(ctx context.Context, prompt string) (GeneratedNote, error)
	ModelName() string
}

// ReportSynthesizer turns a resolved summary into a report. It never fails for a
// resolved summary; generation failures degrade the note instead.
type ReportSynthesizer interface {
	Synthesize(ctx context.Context, summary PatientSummary) *MedicalReportResponse
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetServerConfig() *ServerConfig
	GetGenerationConfig() *GenerationConfig
	Reload() error
	Validate() error
	IsProduction() bool
	IsDevelopment() bool
}
