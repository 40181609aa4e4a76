package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/medreportgen-server/internal/domain"
)

// EnvPrefix is the prefix of every environment override, e.g. MEDREPORT_GENERATION_MODEL.
const EnvPrefix = "MEDREPORT"

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v      *viper.Viper
	config *domain.Config
}

// NewManager creates a new configuration manager
func NewManager() (*Manager, error) {
	m := &Manager{}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	// A .env file is optional; real environment variables win over it.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/medreportgen/")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read configuration file (optional - will use defaults and env vars if not found)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.v = v
	m.config = config
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.request_timeout", "0s")
	v.SetDefault("server.cors_allowed_origins", []string{"*"})

	// Generation defaults
	v.SetDefault("generation.model", "distilgpt2")
	v.SetDefault("generation.base_url", "http://localhost:8080/v1")
	v.SetDefault("generation.api_key", "")
	v.SetDefault("generation.eos_token", "<|endoftext|>")
	v.SetDefault("generation.max_prompt_runes", 4096)
	v.SetDefault("generation.timeout", "90s")
	v.SetDefault("generation.serialize_calls", true)
	v.SetDefault("generation.verify_on_start", true)
	v.SetDefault("generation.rate_limit", 0)
	v.SetDefault("generation.burst", 1)
	v.SetDefault("generation.breaker_max_requests", 1)
	v.SetDefault("generation.breaker_interval", "60s")
	v.SetDefault("generation.breaker_timeout", "30s")
	v.SetDefault("generation.breaker_min_requests", 5)
	v.SetDefault("generation.breaker_failure_ratio", 0.6)

	// Report defaults
	v.SetDefault("report.confidence_score", domain.DefaultConfidenceScore)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// MCP defaults
	v.SetDefault("mcp.server_name", "medreportgen-mcp-server")
	v.SetDefault("mcp.server_version", "v0.1.0")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetGenerationConfig returns generation backend configuration
func (m *Manager) GetGenerationConfig() *domain.GenerationConfig {
	return &m.config.Generation
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if strings.TrimSpace(config.Generation.Model) == "" {
		return fmt.Errorf("generation model is required")
	}
	if config.Generation.BaseURL == "" {
		return fmt.Errorf("generation base URL is required")
	}
	if config.Generation.MaxPromptRunes <= 0 {
		return fmt.Errorf("invalid max prompt runes: %d", config.Generation.MaxPromptRunes)
	}
	if config.Generation.RateLimit < 0 {
		return fmt.Errorf("invalid generation rate limit: %v", config.Generation.RateLimit)
	}
	if r := config.Generation.BreakerFailureRatio; r <= 0 || r > 1 {
		return fmt.Errorf("invalid breaker failure ratio: %v", r)
	}

	if s := config.Report.ConfidenceScore; s < 0 || s > 1 {
		return fmt.Errorf("confidence score must be within [0, 1], got %v", s)
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.config.Environment) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.config.Environment)
	return env == "development" || env == "dev" || env == ""
}
