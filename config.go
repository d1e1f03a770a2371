package yui

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the service configuration, loaded from YAML with
// environment-variable overrides for secrets.
type Config struct {
	// ModelProviderKey authenticates against the chat-completion API.
	// Overridden by MODEL_PROVIDER_KEY (or OPENAI_API_KEY) when set.
	ModelProviderKey string `yaml:"model_provider_key"`

	// ModelName is the completion model to use.
	ModelName string `yaml:"model_name"`

	// UseAsyncQueue routes chat processing through the job queue.
	UseAsyncQueue bool `yaml:"use_async_queue"`

	// Energy budget driving the resource governor.
	EnergyMax               int `yaml:"energy_max"`
	EnergyLowThreshold      int `yaml:"energy_low_threshold"`
	EnergyCriticalThreshold int `yaml:"energy_critical_threshold"`

	// Directories. Empty values fall back to the Home() layout.
	SandboxDir           string `yaml:"sandbox_dir"`
	GeneratedProjectsDir string `yaml:"generated_projects_dir"`
	DataDir              string `yaml:"data_dir"`
	DownloadDir          string `yaml:"download_dir"`
	PluginsDir           string `yaml:"plugins_dir"`
}

// DefaultConfig returns a Config with the stock defaults applied.
func DefaultConfig() *Config {
	return &Config{
		ModelName:               "gpt-4o-mini",
		EnergyMax:               100,
		EnergyLowThreshold:      30,
		EnergyCriticalThreshold: 10,
		SandboxDir:              SandboxPath(),
		GeneratedProjectsDir:    filepath.Join(Home(), "generated"),
		DataDir:                 DataPath(),
		DownloadDir:             DownloadPath(),
		PluginsDir:              PluginsPath(),
	}
}

// LoadConfig reads a YAML config file and applies defaults and env
// overrides. A missing file is not an error; defaults are returned.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if cfg.ModelName == "" {
		cfg.ModelName = "gpt-4o-mini"
	}
	if cfg.SandboxDir == "" {
		cfg.SandboxDir = SandboxPath()
	}
	if cfg.DataDir == "" {
		cfg.DataDir = DataPath()
	}
	if cfg.DownloadDir == "" {
		cfg.DownloadDir = DownloadPath()
	}
	if cfg.PluginsDir == "" {
		cfg.PluginsDir = PluginsPath()
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("MODEL_PROVIDER_KEY"); v != "" {
		c.ModelProviderKey = v
	} else if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.ModelProviderKey == "" {
		c.ModelProviderKey = v
	}
}
