package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultBaseURL = "http://127.0.0.1:8084"
	defaultTimeout = 10 * time.Second
)

// Config holds CLI settings.
type Config struct {
	BaseURL     string        `yaml:"baseURL"`
	JudgeURL    string        `yaml:"judgeURL"`
	Timeout     time.Duration `yaml:"timeout"`
	HistoryFile string        `yaml:"historyFile"`
}

// Load reads config from path. A missing file yields defaults so the CLI
// works out of the box.
func Load(path string) (Config, error) {
	cfg := Config{
		BaseURL: defaultBaseURL,
		Timeout: defaultTimeout,
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file failed: %w", err)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return cfg, nil
}
