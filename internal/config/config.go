// Package config provides configuration management for the portal editor.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"classics-portal/internal/logger"
	"classics-portal/internal/types"
)

const (
	// DefaultConfigFileName is the default configuration file name
	DefaultConfigFileName = "classics-portal-config.json"
	// EnvAPIBaseURL is the environment variable name for the portal API base URL
	EnvAPIBaseURL = "PORTAL_API_BASE_URL"
	// EnvAPIToken is the environment variable name for the portal bearer token
	EnvAPIToken = "PORTAL_API_TOKEN"
	// EnvOpenAIAPIKey is the environment variable name for OpenAI API key
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	// EnvOpenAIBaseURL is the environment variable name for OpenAI base URL
	EnvOpenAIBaseURL = "OPENAI_BASE_URL"
	// DefaultAPIBaseURL is the portal API used when nothing is configured
	DefaultAPIBaseURL = "http://localhost:8000"
	// DefaultRequestTimeout is the default API request timeout in seconds
	DefaultRequestTimeout = 30
	// DefaultOpenAIBaseURL is the default OpenAI API base URL
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	// DefaultOpenAIModel is the default model for translation suggestions
	DefaultOpenAIModel = "gpt-4o"
	// DefaultLogLevel is the default minimum log level
	DefaultLogLevel = "info"
)

// ConfigManager manages application configuration
type ConfigManager struct {
	configPath string
	config     *types.Config
}

// NewConfigManager creates a new ConfigManager with the specified config path.
// If configPath is empty, it uses the default path in user's home directory.
func NewConfigManager(configPath string) (*ConfigManager, error) {
	if configPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			logger.Error("failed to get user home directory", err)
			return nil, types.NewAppError(types.ErrConfig, "failed to get user home directory", err)
		}
		configPath = filepath.Join(homeDir, ".config", "classics-portal", DefaultConfigFileName)
	}

	logger.Info("ConfigManager initialized", logger.String("configPath", configPath))
	return &ConfigManager{
		configPath: configPath,
		config:     defaultConfig(),
	}, nil
}

// defaultConfig returns a Config with default values.
// The URLs stay empty so the getters can consult the environment first.
func defaultConfig() *types.Config {
	return &types.Config{
		RequestTimeout: DefaultRequestTimeout,
		OpenAIModel:    DefaultOpenAIModel,
		LogLevel:       DefaultLogLevel,
	}
}

// Load loads configuration from the config file.
// If the file doesn't exist or is not valid JSON, it uses default values.
func (m *ConfigManager) Load() error {
	logger.Debug("loading configuration", logger.String("path", m.configPath))

	data, err := os.ReadFile(m.configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Error("failed to read config file", err, logger.String("path", m.configPath))
			return types.NewAppError(types.ErrConfig, "failed to read config file", err)
		}
		logger.Info("config file not found, using defaults", logger.String("path", m.configPath))
		m.config = defaultConfig()
	} else {
		config := &types.Config{}
		if err := json.Unmarshal(data, config); err != nil {
			logger.Warn("invalid config file format, using defaults", logger.String("path", m.configPath), logger.Err(err))
			m.config = defaultConfig()
		} else {
			logger.Info("configuration loaded successfully",
				logger.String("path", m.configPath),
				logger.String("apiBaseURL", config.APIBaseURL),
				logger.Int("tokenLength", len(config.APIToken)),
				logger.String("model", config.OpenAIModel))
			m.config = config
		}
	}

	// Apply defaults for empty fields
	if m.config.RequestTimeout <= 0 {
		m.config.RequestTimeout = DefaultRequestTimeout
	}
	if m.config.OpenAIModel == "" {
		m.config.OpenAIModel = DefaultOpenAIModel
	}
	if m.config.LogLevel == "" {
		m.config.LogLevel = DefaultLogLevel
	}
	if m.config.RequestsPerSecond < 0 {
		m.config.RequestsPerSecond = 0
	}

	return nil
}

// Save saves the current configuration to the config file.
func (m *ConfigManager) Save() error {
	logger.Debug("saving configuration", logger.String("path", m.configPath))

	dir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logger.Error("failed to create config directory", err, logger.String("dir", dir))
		return types.NewAppError(types.ErrConfig, "failed to create config directory", err)
	}

	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		logger.Error("failed to marshal config", err)
		return types.NewAppError(types.ErrConfig, "failed to marshal config", err)
	}

	// The file holds the bearer token, keep it private
	if err := os.WriteFile(m.configPath, data, 0600); err != nil {
		logger.Error("failed to write config file", err, logger.String("path", m.configPath))
		return types.NewAppError(types.ErrConfig, "failed to write config file", err)
	}

	logger.Info("configuration saved successfully", logger.String("path", m.configPath))
	return nil
}

// GetConfig returns the current configuration.
func (m *ConfigManager) GetConfig() *types.Config {
	if m.config == nil {
		return defaultConfig()
	}
	return m.config
}

// SetConfig sets the entire configuration.
func (m *ConfigManager) SetConfig(config *types.Config) {
	m.config = config
}

// GetConfigPath returns the path to the config file.
func (m *ConfigManager) GetConfigPath() string {
	return m.configPath
}

// GetAPIBaseURL returns the portal API base URL without a trailing slash.
// The config file value wins over the environment variable.
func (m *ConfigManager) GetAPIBaseURL() string {
	base := ""
	if m.config != nil {
		base = m.config.APIBaseURL
	}
	if base == "" {
		base = os.Getenv(EnvAPIBaseURL)
	}
	if base == "" {
		base = DefaultAPIBaseURL
	}
	return strings.TrimRight(base, "/")
}

// GetAPIToken returns the bearer token, falling back to the environment variable.
func (m *ConfigManager) GetAPIToken() string {
	if m.config != nil && m.config.APIToken != "" {
		return m.config.APIToken
	}
	return os.Getenv(EnvAPIToken)
}

// SetAPIToken stores the bearer token and saves the configuration.
func (m *ConfigManager) SetAPIToken(token string) error {
	logger.Info("setting API token")
	if m.config == nil {
		m.config = defaultConfig()
	}
	m.config.APIToken = token
	return m.Save()
}

// GetRequestTimeout returns the API request timeout.
func (m *ConfigManager) GetRequestTimeout() time.Duration {
	if m.config != nil && m.config.RequestTimeout > 0 {
		return time.Duration(m.config.RequestTimeout) * time.Second
	}
	return DefaultRequestTimeout * time.Second
}

// GetRequestsPerSecond returns the request pacing rate, 0 meaning unlimited.
func (m *ConfigManager) GetRequestsPerSecond() float64 {
	if m.config != nil && m.config.RequestsPerSecond > 0 {
		return m.config.RequestsPerSecond
	}
	return 0
}

// GetOpenAIAPIKey returns the OpenAI API key.
// It first checks the config file value, then falls back to the environment variable.
func (m *ConfigManager) GetOpenAIAPIKey() string {
	if m.config != nil && m.config.OpenAIAPIKey != "" {
		return m.config.OpenAIAPIKey
	}
	return os.Getenv(EnvOpenAIAPIKey)
}

// GetOpenAIBaseURL returns the OpenAI API base URL.
// It first checks the config file value, then falls back to the environment variable.
func (m *ConfigManager) GetOpenAIBaseURL() string {
	if m.config != nil && m.config.OpenAIBaseURL != "" {
		return m.config.OpenAIBaseURL
	}
	if envURL := os.Getenv(EnvOpenAIBaseURL); envURL != "" {
		return envURL
	}
	return DefaultOpenAIBaseURL
}

// GetOpenAIModel returns the model used for translation suggestions.
func (m *ConfigManager) GetOpenAIModel() string {
	if m.config != nil && m.config.OpenAIModel != "" {
		return m.config.OpenAIModel
	}
	return DefaultOpenAIModel
}

// GetLogFile returns the configured log file path, empty for the default.
func (m *ConfigManager) GetLogFile() string {
	if m.config != nil {
		return m.config.LogFile
	}
	return ""
}

// GetLogLevel returns the configured minimum log level.
func (m *ConfigManager) GetLogLevel() logger.Level {
	if m.config != nil {
		return logger.ParseLevel(m.config.LogLevel)
	}
	return logger.LevelInfo
}
