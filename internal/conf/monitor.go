package conf

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// MonitorConfig contains the monitoring pipeline configuration loaded from YAML.
// Immutable for the process lifetime.
type MonitorConfig struct {
	// Schedule is a standard 5-field cron expression
	Schedule string `yaml:"schedule"`

	// Topics are the operator-defined labels to watch for
	Topics []string `yaml:"topics"`

	// Channels are the channel names to monitor
	Channels []string `yaml:"channels"`

	// FetchLimit is the steady-state per-cycle message fetch limit
	FetchLimit int `yaml:"fetch_limit"`

	// FirstRun is the first-run fetch policy
	FirstRun FirstRunConfig `yaml:"first_run"`

	// Classifier holds classification parameters
	Classifier ClassifierConfig `yaml:"classifier"`

	// FallbackChannel is the well-known public channel name used when no
	// direct delivery channel can be created
	FallbackChannel string `yaml:"fallback_channel"`
}

// FirstRunConfig limits how much history the very first cycle pulls in
type FirstRunConfig struct {
	Enabled bool `yaml:"enabled"`
	Limit   int  `yaml:"limit"`
}

// ClassifierConfig contains classification parameters
type ClassifierConfig struct {
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`

	// AssignAllOnAmbiguous controls the recall-favoring tie-break: when the
	// lenient parse finds message ids it cannot associate to a specific
	// topic, attribute every id to every configured topic
	AssignAllOnAmbiguous *bool `yaml:"assign_all_on_ambiguous"`

	// Synonyms extends the keyword fallback: topic label -> extra terms
	Synonyms map[string][]string `yaml:"synonyms"`
}

// AssignAll resolves the tie-break policy, defaulting to enabled
func (c *ClassifierConfig) AssignAll() bool {
	if c.AssignAllOnAmbiguous == nil {
		return true
	}
	return *c.AssignAllOnAmbiguous
}

// DefaultMonitorConfig returns the built-in defaults
func DefaultMonitorConfig() *MonitorConfig {
	return &MonitorConfig{
		Schedule:   "*/10 * * * *",
		FetchLimit: 20,
		FirstRun: FirstRunConfig{
			Enabled: true,
			Limit:   10,
		},
		Classifier: ClassifierConfig{
			Model:       "moonshot-v1-8k",
			MaxTokens:   1024,
			Temperature: 0.1,
		},
		FallbackChannel: "general",
	}
}

// LoadMonitorConfig loads the monitoring configuration from a YAML file.
// Tries a list of candidate paths when none is given; missing file yields
// the defaults.
func LoadMonitorConfig(configPath string) (*MonitorConfig, error) {
	paths := []string{configPath}
	if configPath == "" {
		paths = []string{
			"configs/monitor.yaml",
			"./configs/monitor.yaml",
			"/etc/feishu-topic-monitor/monitor.yaml",
		}
		if execPath, err := os.Executable(); err == nil {
			paths = append(paths, filepath.Join(filepath.Dir(execPath), "configs", "monitor.yaml"))
		}
		if wd, err := os.Getwd(); err == nil {
			paths = append(paths, filepath.Join(wd, "configs", "monitor.yaml"))
		}
	}

	cfg := DefaultMonitorConfig()
	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return DefaultMonitorConfig(), fmt.Errorf("parse monitor config %s: %w", path, err)
		}
		cfg.applyDefaults()
		return cfg, nil
	}

	return cfg, nil
}

func (c *MonitorConfig) applyDefaults() {
	def := DefaultMonitorConfig()
	if c.Schedule == "" {
		c.Schedule = def.Schedule
	}
	if c.FetchLimit <= 0 {
		c.FetchLimit = def.FetchLimit
	}
	if c.FirstRun.Limit <= 0 {
		c.FirstRun.Limit = def.FirstRun.Limit
	}
	if c.Classifier.Model == "" {
		c.Classifier.Model = def.Classifier.Model
	}
	if c.Classifier.MaxTokens <= 0 {
		c.Classifier.MaxTokens = def.Classifier.MaxTokens
	}
	if c.FallbackChannel == "" {
		c.FallbackChannel = def.FallbackChannel
	}
}
