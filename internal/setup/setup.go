// Package setup registers the MedReportGen MCP server with desktop MCP clients.
package setup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/medreportgen-server/internal/config"
)

// ServerName is the key under which the server is registered in the client config.
const ServerName = "medreportgen"

// ClientConfig represents the desktop client configuration file structure.
// Entries other than the one being written are kept as raw JSON so fields this
// package does not model survive a rewrite.
type ClientConfig struct {
	MCPServers map[string]json.RawMessage `json:"mcpServers"`
	// Other keys in the file are preserved verbatim.
	Extra map[string]json.RawMessage `json:"-"`
}

// Server decodes the named server entry.
func (c *ClientConfig) Server(name string) (MCPServerConfig, bool, error) {
	raw, ok := c.MCPServers[name]
	if !ok {
		return MCPServerConfig{}, false, nil
	}

	var server MCPServerConfig
	if err := json.Unmarshal(raw, &server); err != nil {
		return MCPServerConfig{}, true, fmt.Errorf("failed to parse server %q: %w", name, err)
	}
	return server, true, nil
}

// SetServer replaces the named server entry, leaving every other entry untouched.
func (c *ClientConfig) SetServer(name string, server MCPServerConfig) error {
	raw, err := json.Marshal(server)
	if err != nil {
		return fmt.Errorf("failed to marshal server %q: %w", name, err)
	}
	c.MCPServers[name] = raw
	return nil
}

// MCPServerConfig represents a single MCP server configuration.
type MCPServerConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// Options contains options for registering the server.
type Options struct {
	ConfigPath string // Client config file; defaults to DefaultClientConfigPath
	BinaryPath string // Path to the mcp-server binary
	BaseURL    string // Generation backend base URL passed through the environment
	Model      string // Generation model passed through the environment
}

// DefaultClientConfigPath returns the Claude Desktop config file location for
// the current platform.
func DefaultClientConfigPath() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support", "Claude")
	case "linux":
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			configDir = filepath.Join(xdg, "Claude")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config", "Claude")
		}
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		configDir = filepath.Join(appData, "Claude")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	return filepath.Join(configDir, "claude_desktop_config.json"), nil
}

// LoadClientConfig loads the client configuration; a missing file yields an
// empty configuration.
func LoadClientConfig(configPath string) (*ClientConfig, error) {
	cfg := &ClientConfig{
		MCPServers: make(map[string]json.RawMessage),
		Extra:      make(map[string]json.RawMessage),
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, &cfg.Extra); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if raw, ok := cfg.Extra["mcpServers"]; ok {
		if err := json.Unmarshal(raw, &cfg.MCPServers); err != nil {
			return nil, fmt.Errorf("failed to parse mcpServers: %w", err)
		}
		delete(cfg.Extra, "mcpServers")
	}
	if cfg.MCPServers == nil {
		cfg.MCPServers = make(map[string]json.RawMessage)
	}

	return cfg, nil
}

// SaveClientConfig writes the configuration, creating the directory if needed.
func SaveClientConfig(configPath string, cfg *ClientConfig) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	out := make(map[string]interface{}, len(cfg.Extra)+1)
	for k, v := range cfg.Extra {
		out[k] = v
	}
	out["mcpServers"] = cfg.MCPServers

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Register adds or updates the MedReportGen entry in the client configuration
// and returns the path written.
func Register(opts Options) (string, error) {
	configPath, err := resolveConfigPath(opts.ConfigPath)
	if err != nil {
		return "", err
	}
	if opts.BinaryPath == "" {
		return "", fmt.Errorf("server binary path is required")
	}

	cfg, err := LoadClientConfig(configPath)
	if err != nil {
		return "", err
	}

	// MCP speaks on stdout, so logs must go elsewhere.
	env := map[string]string{
		config.EnvPrefix + "_LOGGING_OUTPUT": "stderr",
	}
	if opts.BaseURL != "" {
		env[config.EnvPrefix+"_GENERATION_BASE_URL"] = opts.BaseURL
	}
	if opts.Model != "" {
		env[config.EnvPrefix+"_GENERATION_MODEL"] = opts.Model
	}

	if err := cfg.SetServer(ServerName, MCPServerConfig{
		Command: opts.BinaryPath,
		Env:     env,
	}); err != nil {
		return "", err
	}

	if err := SaveClientConfig(configPath, cfg); err != nil {
		return "", err
	}
	return configPath, nil
}

// Status represents the current registration status.
type Status struct {
	ConfigPath  string
	Registered  bool
	ServerPath  string
	BinaryFound bool
	Env         map[string]string
	Issues      []string
}

// GetStatus reports whether the server is registered and its binary exists.
func GetStatus(configPath string) (*Status, error) {
	configPath, err := resolveConfigPath(configPath)
	if err != nil {
		return nil, err
	}

	status := &Status{ConfigPath: configPath, Issues: []string{}}

	cfg, err := LoadClientConfig(configPath)
	if err != nil {
		status.Issues = append(status.Issues, fmt.Sprintf("Could not load client config: %v", err))
		return status, nil
	}

	server, ok, err := cfg.Server(ServerName)
	if err != nil {
		status.Issues = append(status.Issues, err.Error())
		return status, nil
	}
	if !ok {
		status.Issues = append(status.Issues, "MedReportGen server is not registered")
		return status, nil
	}

	status.Registered = true
	status.ServerPath = server.Command
	status.Env = server.Env

	info, err := os.Stat(server.Command)
	switch {
	case err != nil:
		status.Issues = append(status.Issues, fmt.Sprintf("Server binary not found at: %s", server.Command))
	case info.Mode()&0111 == 0:
		status.Issues = append(status.Issues, fmt.Sprintf("Server binary is not executable: %s", server.Command))
	default:
		status.BinaryFound = true
	}

	return status, nil
}

func resolveConfigPath(configPath string) (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return DefaultClientConfigPath()
}
