package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"algojudge/internal/common/cache"
	"algojudge/internal/common/db"
	"algojudge/internal/common/mq"
	"algojudge/internal/common/storage"
	"algojudge/internal/judge/controller"
	"algojudge/internal/judge/repository"
	"algojudge/internal/judge/sandbox/engine"
	"algojudge/internal/judge/sandbox/runner"
	"algojudge/internal/judge/sandbox/spec"
	"algojudge/internal/judge/sandbox/toolchain"
	"algojudge/pkg/utils/logger"

	"github.com/joho/godotenv"
	"github.com/segmentio/kafka-go"
	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8085"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultWorkRoot        = "/tmp/algojudge"
	defaultFinalTopic      = "judge.status.final"
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
	Enabled       bool          `yaml:"enabled"`
	Brokers       []string      `yaml:"brokers"`
	ClientID      string        `yaml:"clientID"`
	MinBytes      int           `yaml:"minBytes"`
	MaxBytes      int           `yaml:"maxBytes"`
	MaxWait       time.Duration `yaml:"maxWait"`
	BatchSize     int           `yaml:"batchSize"`
	BatchTimeout  time.Duration `yaml:"batchTimeout"`
	DialTimeout   time.Duration `yaml:"dialTimeout"`
	RequiredAcks  int           `yaml:"requiredAcks"`
	Compression   string        `yaml:"compression"`
	Topics        []string      `yaml:"topics"`
	ConsumerGroup string        `yaml:"consumerGroup"`
	Concurrency   int           `yaml:"concurrency"`
	MaxRetries    int           `yaml:"maxRetries"`
	RetryDelay    time.Duration `yaml:"retryDelay"`
	DeadLetter    string        `yaml:"deadLetterTopic"`
}

// WorkerConfig holds judging pool settings.
type WorkerConfig struct {
	PoolSize  int           `yaml:"poolSize"`
	Timeout   time.Duration `yaml:"timeout"`
	QueueWait time.Duration `yaml:"queueWait"`
}

// SourceConfig holds source download settings.
type SourceConfig struct {
	Bucket string `yaml:"bucket"`
}

// StatusConfig holds status persistence settings.
type StatusConfig struct {
	TTL        time.Duration `yaml:"ttl"`
	Timeout    time.Duration `yaml:"timeout"`
	FinalTopic string        `yaml:"finalTopic"`
}

// JudgeConfig holds judge work settings.
type JudgeConfig struct {
	WorkRoot             string `yaml:"workRoot"`
	MaxSourceBytes       int    `yaml:"maxSourceBytes"`
	MaxInputBytes        int    `yaml:"maxInputBytes"`
	ExecuteTimeLimitMs   int64  `yaml:"executeTimeLimitMs"`
	ExecuteMemoryLimitMB int64  `yaml:"executeMemoryLimitMB"`
}

// SandboxConfig holds sandbox engine settings and the isolation profiles it resolves.
type SandboxConfig struct {
	engine.Config `yaml:",inline"`

	Profiles map[string]spec.IsolationProfile `yaml:"profiles"`

	// ToolchainRoot is where compilers and runtimes are looked up. Empty means the host.
	ToolchainRoot string `yaml:"toolchainRoot"`
}

// AppConfig holds judge-service config.
type AppConfig struct {
	Server    ServerConfig              `yaml:"server"`
	Logger    logger.Config             `yaml:"logger"`
	Kafka     KafkaConfig               `yaml:"kafka"`
	Database  db.Config                 `yaml:"database"`
	Redis     cache.RedisConfig         `yaml:"redis"`
	MinIO     storage.MinIOConfig       `yaml:"minio"`
	DataPack  repository.DataPackConfig `yaml:"dataPack"`
	Worker    WorkerConfig              `yaml:"worker"`
	Source    SourceConfig              `yaml:"source"`
	Status    StatusConfig              `yaml:"status"`
	Judge     JudgeConfig               `yaml:"judge"`
	Sandbox   SandboxConfig             `yaml:"sandbox"`
	Runner    runner.Config             `yaml:"runner"`
	Languages []toolchain.LanguageSpec  `yaml:"languages"`
	Watch     controller.WatchConfig    `yaml:"watch"`
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
	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env failed: %w", err)
	}

	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	applyEnvOverrides(&cfg)

	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required when kafka is enabled")
	}
	cfg.Redis.ApplyDefaults()

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
	if cfg.Source.Bucket == "" {
		cfg.Source.Bucket = cfg.MinIO.Bucket
	}
	if cfg.DataPack.Bucket == "" {
		cfg.DataPack.Bucket = cfg.MinIO.Bucket
	}
	if cfg.Worker.PoolSize <= 0 {
		cfg.Worker.PoolSize = 1
	}
	if cfg.Status.FinalTopic == "" {
		cfg.Status.FinalTopic = defaultFinalTopic
	}
	if cfg.Judge.WorkRoot == "" {
		cfg.Judge.WorkRoot = defaultWorkRoot
	}
	if cfg.DataPack.RootDir == "" {
		cfg.DataPack.RootDir = cfg.Judge.WorkRoot + "/datapacks"
	}
	if len(cfg.Sandbox.Profiles) == 0 {
		cfg.Sandbox.Profiles = defaultProfiles(cfg.Judge.WorkRoot + "/rootfs")
	}
	// A rootfs only holds the scratch dir when the runner binds it at /work.
	// It mirrors host toolchain paths, so tools resolve from / over the
	// rootfs search path instead of the judge's own PATH.
	for _, profile := range cfg.Sandbox.Profiles {
		if profile.RootFS == "" {
			continue
		}
		cfg.Runner.Isolated = true
		if cfg.Sandbox.ToolchainRoot == "" {
			cfg.Sandbox.ToolchainRoot = "/"
		}
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := os.Getenv("JUDGE_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("JUDGE_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("JUDGE_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
}

// defaultProfiles share one rootfs mount point built from the host toolchain
// paths, with networking cut off.
func defaultProfiles(rootfs string) map[string]spec.IsolationProfile {
	return map[string]spec.IsolationProfile{
		"compile": {RootFS: rootfs, DisableNetwork: true},
		"run":     {RootFS: rootfs, DisableNetwork: true},
	}
}

func (c *AppConfig) languageRegistry() *toolchain.Registry {
	if len(c.Languages) == 0 {
		return toolchain.DefaultRegistry()
	}
	return toolchain.NewRegistry(c.Languages...)
}

func (k KafkaConfig) toMQConfig() mq.KafkaConfig {
	cfg := mq.KafkaConfig{
		Brokers:      k.Brokers,
		ClientID:     k.ClientID,
		MinBytes:     k.MinBytes,
		MaxBytes:     k.MaxBytes,
		MaxWait:      k.MaxWait,
		BatchSize:    k.BatchSize,
		BatchTimeout: k.BatchTimeout,
		DialTimeout:  k.DialTimeout,
		RequiredAcks: kafka.RequiredAcks(k.RequiredAcks),
	}
	cfg.Compression = parseCompression(k.Compression)
	return cfg
}

func (k KafkaConfig) subscribeOptions() *mq.SubscribeOptions {
	return &mq.SubscribeOptions{
		ConsumerGroup:   k.ConsumerGroup,
		Concurrency:     k.Concurrency,
		MaxRetries:      k.MaxRetries,
		RetryDelay:      k.RetryDelay,
		DeadLetterTopic: k.DeadLetter,
	}
}

func parseCompression(raw string) kafka.Compression {
	switch strings.ToLower(raw) {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Compression(0)
	}
}
