package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "config/config.yaml"

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Auth     AuthConfig     `yaml:"auth"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Limiter  LimiterConfig  `yaml:"limiter"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	AllowOrigins   []string      `yaml:"allow_origins"`
	ShutdownPeriod time.Duration `yaml:"shutdown_period"`
	// Live websocket frames accepted per second per session, and burst.
	LiveFrameRate  float64 `yaml:"live_frame_rate"`
	LiveFrameBurst int     `yaml:"live_frame_burst"`
}

type DatabaseConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// RedisConfig configures the presence mirror and the rate limiter backend.
// An empty Addr disables both.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type KafkaConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Brokers     []string `yaml:"brokers"`
	Topic       string   `yaml:"topic"`
	GroupPrefix string   `yaml:"group_prefix"`
	// SASL mechanism: PLAIN, SCRAM-SHA-256 or SCRAM-SHA-512. Empty disables SASL.
	Mechanism string `yaml:"mechanism"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	UseTLS    bool   `yaml:"use_tls"`
	CertFile  string `yaml:"cert_file"`
	KeyFile   string `yaml:"key_file"`
	CAFile    string `yaml:"ca_file"`
}

type AuthConfig struct {
	JWTSecret   string `yaml:"jwt_secret"`
	TokenExpiry int    `yaml:"token_expiry"` // in hours
}

type LedgerConfig struct {
	TTL       time.Duration `yaml:"ttl"`
	PurgeCron string        `yaml:"purge_cron"`
}

type LimiterConfig struct {
	Strategy string        `yaml:"strategy"` // fixed_window or token_bucket
	Limit    int           `yaml:"limit"`
	Window   time.Duration `yaml:"window"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:           ":8080",
			AllowOrigins:   []string{"http://localhost:5173"},
			ShutdownPeriod: 10 * time.Second,
			LiveFrameRate:  5,
			LiveFrameBurst: 20,
		},
		Database: DatabaseConfig{MaxOpenConns: 20},
		Redis:    RedisConfig{PoolSize: 10},
		Kafka: KafkaConfig{
			Topic:       "campus.live-events",
			GroupPrefix: "campus-live",
		},
		Auth:    AuthConfig{TokenExpiry: 24},
		Ledger:  LedgerConfig{TTL: 30 * 24 * time.Hour, PurgeCron: "@hourly"},
		Limiter: LimiterConfig{Strategy: "fixed_window", Limit: 5, Window: time.Minute},
		Log:     LogConfig{Level: "info", Format: "json"},
	}
}

// LoadConfig reads .env (if present), the YAML file at path (if present) and
// finally the CAMPUS_* environment overrides, in that order.
func LoadConfig(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Error loading .env file: %v", err)
	}

	cfg := Default()
	if path == "" {
		path = DefaultPath
	}
	file, err := os.Open(path)
	switch {
	case err == nil:
		defer func(file *os.File) {
			if closeErr := file.Close(); closeErr != nil {
				log.Printf("Error closing config file: %v", closeErr)
			}
		}(file)
		if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("decode %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// env-only deployments are allowed
	default:
		return cfg, err
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("CAMPUS_HTTP_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("CAMPUS_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("CAMPUS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("CAMPUS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("CAMPUS_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("CAMPUS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
		cfg.Kafka.Enabled = true
	}
	if v := os.Getenv("CAMPUS_KAFKA_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CAMPUS_KAFKA_ENABLED: %w", err)
		}
		cfg.Kafka.Enabled = enabled
	}
	if v := os.Getenv("CAMPUS_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	return nil
}

func (c Config) Validate() error {
	var problems []string
	if c.Database.DSN == "" {
		problems = append(problems, "database.dsn is required")
	}
	if c.Auth.JWTSecret == "" {
		problems = append(problems, "auth.jwt_secret is required")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		problems = append(problems, "kafka.brokers is required when kafka is enabled")
	}
	switch c.Limiter.Strategy {
	case "", "fixed_window", "token_bucket":
	default:
		problems = append(problems, fmt.Sprintf("limiter.strategy %q is not supported", c.Limiter.Strategy))
	}
	if len(problems) > 0 {
		return errors.New("invalid config: " + strings.Join(problems, "; "))
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
