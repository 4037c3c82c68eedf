package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	pkgstrings "deploygate/pkg/platform/strings"
)

// Record store backends.
const (
	RecordStoreMemory   = "memory"
	RecordStorePostgres = "postgres"
	RecordStoreRedis    = "redis"
)

// Server captures process level configuration.
type Server struct {
	Addr            string         `yaml:"addr"`
	LogLevel        string         `yaml:"log_level"`
	JWTSigningKey   string         `yaml:"jwt_signing_key"`
	TokenTTL        time.Duration  `yaml:"token_ttl"`
	ShutdownTimeout time.Duration  `yaml:"shutdown_timeout"`
	RecordStore     string         `yaml:"record_store"`
	Database        DatabaseConfig `yaml:"database"`
	Redis           RedisConfig    `yaml:"redis"`
	Kube            KubeConfig     `yaml:"kube"`
	Audit           AuditConfig    `yaml:"audit"`
}

// DatabaseConfig enables the Postgres user store and, optionally, record store.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type RedisConfig struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// KubeConfig selects the cluster. An empty Kubeconfig means in-cluster.
type KubeConfig struct {
	Kubeconfig string        `yaml:"kubeconfig"`
	Context    string        `yaml:"context"`
	Timeout    time.Duration `yaml:"timeout"`
}

// AuditConfig routes audit events to Kafka when brokers are set.
type AuditConfig struct {
	KafkaBrokers []string `yaml:"kafka_brokers"`
	Topic        string   `yaml:"topic"`
}

// Default returns the development configuration.
func Default() Server {
	return Server{
		Addr:     ":8080",
		LogLevel: "info",
		// Use a default for development - should be overridden in production
		JWTSigningKey:   "dev-secret-key-change-in-production",
		TokenTTL:        2 * time.Hour,
		ShutdownTimeout: 10 * time.Second,
		RecordStore:     RecordStoreMemory,
		Database: DatabaseConfig{
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kube: KubeConfig{
			Timeout: 30 * time.Second,
		},
		Audit: AuditConfig{
			Topic: "deploygate.audit",
		},
	}
}

// Load layers defaults, the optional YAML file at path and environment
// overrides, then validates the result.
func Load(path string) (Server, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Server{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), &cfg); err != nil {
			return Server{}, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Server{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Server{}, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// FromEnv builds a Server config from defaults and environment variables only.
func FromEnv() (Server, error) {
	return Load("")
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} with the variable's value, or an empty
// string when it is unset.
func expandEnvVars(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envPattern.FindStringSubmatch(match)[1])
	})
}

func applyEnv(cfg *Server) error {
	setString(&cfg.Addr, "DEPLOYGATE_ADDR")
	setString(&cfg.LogLevel, "DEPLOYGATE_LOG_LEVEL")
	setString(&cfg.JWTSigningKey, "JWT_SIGNING_KEY")
	setString(&cfg.RecordStore, "DEPLOYGATE_RECORD_STORE")
	setString(&cfg.Database.URL, "DATABASE_URL")
	setString(&cfg.Redis.URL, "REDIS_URL")
	setString(&cfg.Kube.Kubeconfig, "KUBECONFIG")
	setString(&cfg.Audit.Topic, "DEPLOYGATE_AUDIT_TOPIC")

	if v := os.Getenv("DEPLOYGATE_KAFKA_BROKERS"); v != "" {
		cfg.Audit.KafkaBrokers = pkgstrings.SplitList(v)
	}
	if v := os.Getenv("DEPLOYGATE_TOKEN_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing DEPLOYGATE_TOKEN_TTL: %w", err)
		}
		cfg.TokenTTL = d
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks that the selected backends have what they need.
func (c Server) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if c.JWTSigningKey == "" {
		return fmt.Errorf("jwt_signing_key is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token_ttl must be positive")
	}
	switch c.RecordStore {
	case RecordStoreMemory:
	case RecordStorePostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("record_store %q requires database.url", c.RecordStore)
		}
	case RecordStoreRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("record_store %q requires redis.url", c.RecordStore)
		}
	default:
		return fmt.Errorf("unknown record_store %q", c.RecordStore)
	}
	return nil
}
