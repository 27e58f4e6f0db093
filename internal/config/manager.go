package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds the user's persistent configuration preferences.
type Config struct {
	LLMProvider    string `json:"llm_provider,omitempty"`    // openai, anthropic, gemini, ...
	APIKey         string `json:"api_key,omitempty"`         // API key for the selected provider
	Model          string `json:"model,omitempty"`           // default model name
	BaseURL        string `json:"base_url,omitempty"`        // optional override for API base URL
	SearchProvider string `json:"search_provider,omitempty"` // tavily, brave, duckduckgo
	SearchAPIKey   string `json:"search_api_key,omitempty"`  // key for the search provider
	MaxSteps       int    `json:"max_steps,omitempty"`       // per-run step cap
	TokenBudget    int    `json:"token_budget,omitempty"`    // per-run token cap
}

// Manager handles loading and saving the configuration.
type Manager struct {
	configDir string
}

// NewManager creates a new configuration manager.
func NewManager() (*Manager, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user config dir: %w", err)
	}
	return &Manager{configDir: filepath.Join(configDir, "ibis")}, nil
}

// GetConfigPath returns the absolute path to the config.json file.
func (m *Manager) GetConfigPath() string {
	return filepath.Join(m.configDir, "config.json")
}

// GetDataDir returns the directory holding the run archive database,
// creating it if needed.
func (m *Manager) GetDataDir() (string, error) {
	if err := os.MkdirAll(m.configDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config dir: %w", err)
	}
	return m.configDir, nil
}

// Load reads the configuration from disk. A missing file yields an
// empty Config and no error.
func (m *Manager) Load() (*Config, error) {
	path := m.GetConfigPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &Config{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config json: %w", err)
	}
	return &cfg, nil
}

// Save writes the configuration with restricted permissions; the file
// can contain API keys.
func (m *Manager) Save(cfg *Config) error {
	if err := os.MkdirAll(m.configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.GetConfigPath(), data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Exists checks if the configuration file has been created.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.GetConfigPath())
	return !os.IsNotExist(err)
}

// ApplyToEnv exports configured values as environment variables so the
// env-based factories pick them up. Explicit environment settings win.
func (c *Config) ApplyToEnv() {
	setIfUnset("LLM_PROVIDER", c.LLMProvider)
	setIfUnset("SEARCH_PROVIDER", c.SearchProvider)
	if c.APIKey != "" {
		switch c.LLMProvider {
		case "anthropic":
			setIfUnset("ANTHROPIC_API_KEY", c.APIKey)
		case "gemini":
			setIfUnset("GEMINI_API_KEY", c.APIKey)
		default:
			setIfUnset("OPENAI_API_KEY", c.APIKey)
		}
	}
	if c.Model != "" {
		switch c.LLMProvider {
		case "anthropic":
			setIfUnset("ANTHROPIC_MODEL", c.Model)
		case "gemini":
			setIfUnset("GEMINI_MODEL", c.Model)
		default:
			setIfUnset("OPENAI_MODEL", c.Model)
		}
	}
	setIfUnset("OPENAI_BASE_URL", c.BaseURL)
	if c.SearchAPIKey != "" {
		switch c.SearchProvider {
		case "brave":
			setIfUnset("BRAVE_API_KEY", c.SearchAPIKey)
		default:
			setIfUnset("TAVILY_API_KEY", c.SearchAPIKey)
		}
	}
}

func setIfUnset(key, value string) {
	if value != "" && os.Getenv(key) == "" {
		os.Setenv(key, value)
	}
}
