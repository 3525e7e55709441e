package main

import (
	"fmt"
	"os"
	"time"

	"conqueroj/internal/common/cache"
	"conqueroj/internal/common/db"
	"conqueroj/internal/common/mq"
	"conqueroj/internal/common/storage"
	submitsvc "conqueroj/internal/submit/service"
	"conqueroj/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8084"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second

	defaultJudgeTopic = "judge.submissions"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// KafkaConfig holds Kafka producer settings.
type KafkaConfig struct {
	Brokers         []string      `yaml:"brokers"`
	ClientID        string        `yaml:"clientID"`
	DialTimeout     time.Duration `yaml:"dialTimeout"`
	ConnectAttempts int           `yaml:"connectAttempts"`
	ConnectDelay    time.Duration `yaml:"connectDelay"`
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

// AppConfig holds submit-service config.
type AppConfig struct {
	Server   ServerConfig        `yaml:"server"`
	Logger   logger.Config       `yaml:"logger"`
	Kafka    KafkaConfig         `yaml:"kafka"`
	Database DatabaseConfig      `yaml:"database"`
	Redis    cache.RedisConfig   `yaml:"redis"`
	MinIO    storage.MinIOConfig `yaml:"minio"`
	Submit   submitsvc.Config    `yaml:"submit"`
	Judge    JudgeReadConfig     `yaml:"judge"`
}

// JudgeReadConfig holds status read settings.
type JudgeReadConfig struct {
	StatusTTL time.Duration `yaml:"statusTTL"`
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
	if cfg.Submit.Topic == "" {
		cfg.Submit.Topic = defaultJudgeTopic
	}
	if cfg.Submit.Bucket == "" {
		cfg.Submit.Bucket = cfg.MinIO.Bucket
	}
	return &cfg, nil
}
