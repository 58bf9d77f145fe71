package conf

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config represents application configuration
type Config struct {
	// Feishu configuration
	Feishu FeishuConfig

	// LLM classification backend configuration (optional; the keyword
	// fallback is used when no API key is configured)
	LLM LLMConfig

	// Monitor pipeline configuration (loaded from YAML)
	Monitor *MonitorConfig

	// State record path
	StatePath string

	// Alert history database path
	HistoryDBPath string

	// Serve the MCP control surface on stdio
	MCPControl bool

	// Debug mode
	Debug bool
}

// FeishuConfig contains Feishu configuration
type FeishuConfig struct {
	AppID      string
	AppSecret  string
	APITimeout time.Duration
}

// LLMConfig contains classification backend configuration
type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Enabled reports whether a usable backend is configured
func (c *LLMConfig) Enabled() bool {
	return c.APIKey != ""
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	statePath := os.Getenv("MONITOR_STATE_PATH")
	if statePath == "" {
		homeDir, _ := os.UserHomeDir()
		statePath = filepath.Join(homeDir, ".feishu-topic-monitor", "state.json")
	}

	historyDBPath := os.Getenv("MONITOR_HISTORY_DB_PATH")
	if historyDBPath == "" {
		historyDBPath = filepath.Join(filepath.Dir(statePath), "alerts.db")
	}

	apiTimeout := 30 * time.Second
	if val := os.Getenv("FEISHU_API_TIMEOUT_SECONDS"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			apiTimeout = time.Duration(parsed) * time.Second
		}
	}

	llmTimeout := 60 * time.Second
	if val := os.Getenv("LLM_TIMEOUT_SECONDS"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			llmTimeout = time.Duration(parsed) * time.Second
		}
	}

	monitorCfg, _ := LoadMonitorConfig(os.Getenv("MONITOR_CONFIG_PATH"))

	return &Config{
		Feishu: FeishuConfig{
			AppID:      os.Getenv("FEISHU_APP_ID"),
			AppSecret:  os.Getenv("FEISHU_APP_SECRET"),
			APITimeout: apiTimeout,
		},
		LLM: LLMConfig{
			APIKey:  os.Getenv("LLM_API_KEY"),
			BaseURL: os.Getenv("LLM_BASE_URL"),
			Model:   os.Getenv("LLM_MODEL"),
			Timeout: llmTimeout,
		},
		Monitor:       monitorCfg,
		StatePath:     statePath,
		HistoryDBPath: historyDBPath,
		MCPControl:    os.Getenv("MONITOR_MCP_CONTROL") == "true",
		Debug:         os.Getenv("DEBUG") == "true",
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Feishu.AppID == "" || c.Feishu.AppSecret == "" {
		return &ConfigError{Field: "FEISHU_APP_ID/FEISHU_APP_SECRET", Message: "required"}
	}
	if c.Monitor == nil || len(c.Monitor.Topics) == 0 {
		return &ConfigError{Field: "monitor.topics", Message: "at least one topic is required"}
	}
	if len(c.Monitor.Channels) == 0 {
		return &ConfigError{Field: "monitor.channels", Message: "at least one channel is required"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
