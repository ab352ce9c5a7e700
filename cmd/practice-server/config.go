package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"codepractice/internal/common/cache"
	"codepractice/internal/common/db"
	commonmw "codepractice/internal/common/http/middleware"
	"codepractice/internal/common/mq"
	"codepractice/internal/common/storage"
	"codepractice/internal/evaluator/language"
	evalservice "codepractice/internal/evaluator/service"
	"codepractice/internal/sandbox/engine"
	"codepractice/internal/sandbox/security"
	subservice "codepractice/internal/submission/service"
	"codepractice/pkg/utils/logger"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8080"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 120 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 15 * time.Second

	mqDriverKafka  = "kafka"
	mqDriverNATS   = "nats"
	mqDriverMemory = "memory"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// MQConfig selects the message queue driver for submission events.
type MQConfig struct {
	// Driver is "kafka", "nats" or "memory". Default: memory
	Driver   string              `yaml:"driver"`
	Kafka    mq.KafkaConfig      `yaml:"kafka"`
	NATS     mq.NATSConfig       `yaml:"nats"`
	Topic    string              `yaml:"topic"`
	Consumer mq.SubscribeOptions `yaml:"consumer"`
}

// SandboxConfig holds engine settings and isolation profiles.
type SandboxConfig struct {
	engine.Config  `yaml:",inline"`
	Profiles       []security.ProfileConfig   `yaml:"profiles"`
	DefaultProfile *security.IsolationProfile `yaml:"defaultProfile"`
}

// ProblemConfig holds problem cache settings.
type ProblemConfig struct {
	CacheTTL      time.Duration `yaml:"cacheTTL"`
	CacheEmptyTTL time.Duration `yaml:"cacheEmptyTTL"`
	DBTimeout     time.Duration `yaml:"dbTimeout"`
}

// SubmissionConfig holds recorder settings.
type SubmissionConfig struct {
	ArchiveEnabled    bool                       `yaml:"archiveEnabled"`
	ArchiveBucket     string                     `yaml:"archiveBucket"`
	ArchivePrefix     string                     `yaml:"archivePrefix"`
	MaxCodeBytes      int                        `yaml:"maxCodeBytes"`
	IdempotencyTTL    time.Duration              `yaml:"idempotencyTTL"`
	ListCacheTTL      time.Duration              `yaml:"listCacheTTL"`
	ListCacheEmptyTTL time.Duration              `yaml:"listCacheEmptyTTL"`
	RateLimit         subservice.RateLimitConfig `yaml:"rateLimit"`
	Timeouts          subservice.TimeoutConfig   `yaml:"timeouts"`
}

// StatsConfig holds stats projector settings.
type StatsConfig struct {
	Enabled  bool          `yaml:"enabled"`
	EventTTL time.Duration `yaml:"eventTTL"`
}

// AppConfig holds practice-server configuration.
type AppConfig struct {
	Server     ServerConfig            `yaml:"server"`
	Logger     logger.Config           `yaml:"logger"`
	Database   db.SQLConfig            `yaml:"database"`
	Redis      cache.RedisConfig       `yaml:"redis"`
	MQ         MQConfig                `yaml:"mq"`
	MinIO      storage.MinIOConfig     `yaml:"minio"`
	Sandbox    SandboxConfig           `yaml:"sandbox"`
	Languages  []language.Spec         `yaml:"languages"`
	Runtime    language.Config         `yaml:"runtime"`
	Evaluator  evalservice.Config      `yaml:"evaluator"`
	Problem    ProblemConfig           `yaml:"problem"`
	Submission SubmissionConfig        `yaml:"submission"`
	Stats      StatsConfig             `yaml:"stats"`
	Identity   commonmw.IdentityConfig `yaml:"identity"`
	CORS       commonmw.CORSConfig     `yaml:"cors"`
}

// loadYAML reads path, expands ${VAR} references and decodes it into out.
// A .env file next to the working directory is loaded first when present.
func loadYAML(path string, out interface{}) error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env failed: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *AppConfig) applyDefaults() error {
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

	if cfg.Database.DSN == "" {
		return fmt.Errorf("database dsn is required")
	}
	if cfg.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required")
	}

	cfg.MQ.Driver = strings.ToLower(strings.TrimSpace(cfg.MQ.Driver))
	if cfg.MQ.Driver == "" {
		cfg.MQ.Driver = mqDriverMemory
	}
	switch cfg.MQ.Driver {
	case mqDriverKafka, mqDriverNATS, mqDriverMemory:
	default:
		return fmt.Errorf("unsupported mq driver: %s", cfg.MQ.Driver)
	}

	cfg.Sandbox.Mode = strings.ToLower(strings.TrimSpace(cfg.Sandbox.Mode))
	if cfg.Sandbox.Mode == "" {
		cfg.Sandbox.Mode = engine.ModeIsolated
	}

	if cfg.Problem.CacheTTL == 0 {
		cfg.Problem.CacheTTL = 30 * time.Minute
	}
	if cfg.Problem.CacheEmptyTTL == 0 {
		cfg.Problem.CacheEmptyTTL = 5 * time.Minute
	}
	if cfg.Problem.DBTimeout == 0 {
		cfg.Problem.DBTimeout = 3 * time.Second
	}

	if cfg.Submission.MaxCodeBytes == 0 {
		cfg.Submission.MaxCodeBytes = 64 * 1024
	}
	if cfg.Submission.IdempotencyTTL == 0 {
		cfg.Submission.IdempotencyTTL = 10 * time.Minute
	}
	if cfg.Submission.RateLimit.Window == 0 {
		cfg.Submission.RateLimit.Window = time.Minute
	}
	if cfg.Submission.RateLimit.UserMax == 0 {
		cfg.Submission.RateLimit.UserMax = 20
	}
	if cfg.Submission.RateLimit.IPMax == 0 {
		cfg.Submission.RateLimit.IPMax = 60
	}
	if cfg.Submission.Timeouts.DB == 0 {
		cfg.Submission.Timeouts.DB = 3 * time.Second
	}
	if cfg.Submission.Timeouts.Cache == 0 {
		cfg.Submission.Timeouts.Cache = time.Second
	}
	if cfg.Submission.Timeouts.MQ == 0 {
		cfg.Submission.Timeouts.MQ = 3 * time.Second
	}
	if cfg.Submission.Timeouts.Storage == 0 {
		cfg.Submission.Timeouts.Storage = 5 * time.Second
	}
	if cfg.Submission.ArchiveBucket == "" {
		cfg.Submission.ArchiveBucket = cfg.MinIO.Bucket
	}
	if cfg.Submission.ArchiveEnabled && cfg.MinIO.Endpoint == "" {
		return fmt.Errorf("minio endpoint is required when archiving is enabled")
	}
	return nil
}
