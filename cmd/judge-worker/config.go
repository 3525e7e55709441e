package main

import (
	"fmt"
	"os"
	"time"

	"conqueroj/internal/common/cache"
	"conqueroj/internal/common/db"
	"conqueroj/internal/common/mq"
	"conqueroj/internal/common/storage"
	"conqueroj/internal/judge/sandbox/profile"
	"conqueroj/internal/judge/sandbox/runner"
	"conqueroj/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8085"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second

	defaultJudgeTopic    = "judge.submissions"
	defaultDeadLetter    = "judge.submissions.dead"
	defaultConsumerGroup = "judge-worker"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// KafkaConfig holds Kafka settings.
type KafkaConfig struct {
	Brokers         []string      `yaml:"brokers"`
	ClientID        string        `yaml:"clientID"`
	DialTimeout     time.Duration `yaml:"dialTimeout"`
	ConnectAttempts int           `yaml:"connectAttempts"`
	ConnectDelay    time.Duration `yaml:"connectDelay"`
	Topic           string        `yaml:"topic"`
	ConsumerGroup   string        `yaml:"consumerGroup"`
	MaxRetries      int           `yaml:"maxRetries"`
	RetryDelay      time.Duration `yaml:"retryDelay"`
	DeadLetterTopic string        `yaml:"deadLetterTopic"`
}

func (c KafkaConfig) toMQConfig() mq.KafkaConfig {
	return mq.KafkaConfig{
		Brokers:         c.Brokers,
		ClientID:        c.ClientID,
		DialTimeout:     c.DialTimeout,
		ConnectAttempts: c.ConnectAttempts,
		ConnectDelay:    c.ConnectDelay,
	}
}

// DatabaseConfig selects and configures the SQL backend.
type DatabaseConfig struct {
	Driver     string              `yaml:"driver"`
	MySQL      db.MySQLConfig      `yaml:"mysql"`
	PostgreSQL db.PostgreSQLConfig `yaml:"postgresql"`
}

// JudgeConfig holds pipeline settings.
type JudgeConfig struct {
	TaskTimeout time.Duration `yaml:"taskTimeout"`
	StatusTTL   time.Duration `yaml:"statusTTL"`
}

// LanguageConfig holds language definitions. An empty list uses the
// built-in table.
type LanguageConfig struct {
	Languages []profile.LanguageSpec `yaml:"languages"`
	Fallback  string                 `yaml:"fallback"`
}

// AppConfig holds judge-worker config.
type AppConfig struct {
	Server   ServerConfig        `yaml:"server"`
	Logger   logger.Config       `yaml:"logger"`
	Kafka    KafkaConfig         `yaml:"kafka"`
	Database DatabaseConfig      `yaml:"database"`
	Redis    cache.RedisConfig   `yaml:"redis"`
	MinIO    storage.MinIOConfig `yaml:"minio"`
	Sandbox  runner.Config       `yaml:"sandbox"`
	Judge    JudgeConfig         `yaml:"judge"`
	Language LanguageConfig      `yaml:"language"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "mysql"
	}
	if cfg.Database.Driver == "mysql" && cfg.Database.MySQL.DSN == "" {
		return nil, fmt.Errorf("database mysql dsn is required")
	}
	if cfg.Database.Driver == "postgres" && cfg.Database.PostgreSQL.DSN == "" {
		return nil, fmt.Errorf("database postgresql dsn is required")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = defaultJudgeTopic
	}
	if cfg.Kafka.ConsumerGroup == "" {
		cfg.Kafka.ConsumerGroup = defaultConsumerGroup
	}
	if cfg.Kafka.DeadLetterTopic == "" {
		cfg.Kafka.DeadLetterTopic = defaultDeadLetter
	}
	if cfg.Language.Fallback == "" {
		cfg.Language.Fallback = "python"
	}
	return &cfg, nil
}

func buildRegistry(cfg LanguageConfig) (*profile.Registry, error) {
	if len(cfg.Languages) == 0 {
		return profile.DefaultRegistry(), nil
	}
	return profile.NewRegistry(cfg.Languages, cfg.Fallback)
}
