package config

import (
	"bytes"
	"fmt"
	neturl "net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"

	defaultPort        = 2333
	defaultEnv         = "development"
	defaultDBHost      = "127.0.0.1"
	defaultDBPort      = 3306
	defaultDBUser      = "root"
	defaultDBPassword  = "password"
	defaultDBName      = "inkwave"
	defaultDBCharset   = "utf8mb4"
	defaultRedisHost   = "localhost"
	defaultRedisPort   = 6379
	defaultRedisDB     = 0
	defaultLogLevel    = "info"
	defaultLogDir      = "logs"
	defaultLogSizeMB   = 50
	defaultLogBackups  = 7
	defaultPollEvery   = 60 * time.Second
	defaultClaimBatch  = 50
	defaultWorkers     = 8
	defaultMaxAttempts = 5
	defaultHookTimeout = 10 * time.Second
)

// AppConfig holds runtime startup configuration loaded from YAML.
type AppConfig struct {
	Port           int             `yaml:"port"`
	Env            string          `yaml:"env"` // "development" | "production"
	DSN            string          `yaml:"-"`
	RedisURL       string          `yaml:"-"`
	Database       DatabaseConfig  `yaml:"database"`
	Redis          RedisConfig     `yaml:"redis"`
	Log            LogConfig       `yaml:"log"`
	Processor      ProcessorConfig `yaml:"processor"`
	AdminToken     string          `yaml:"admin_token"`
	AllowedOrigins []string        `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	Charset  string `yaml:"charset"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TLS      bool   `yaml:"tls"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Dir        string `yaml:"dir"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// ProcessorConfig tunes the background job processor. All values have
// working defaults; the poll interval matches the source system's 60s tick.
type ProcessorConfig struct {
	PollInterval   time.Duration `yaml:"poll_interval"`
	ClaimBatch     int           `yaml:"claim_batch"`
	Workers        int           `yaml:"workers"`
	MaxAttempts    int           `yaml:"max_attempts"`
	WebhookTimeout time.Duration `yaml:"webhook_timeout"`
}

// Load reads and validates the YAML config file.
func Load(configPath string) (*AppConfig, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = DefaultConfigPath
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}
	return Parse(content, path)
}

// Parse decodes YAML bytes into a validated AppConfig.
func Parse(content []byte, path string) (*AppConfig, error) {
	cfg := defaultAppConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config file %q: %w", path, err)
	}

	normalize(&cfg)

	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d in %q, expected 1-65535", cfg.Port, path)
	}
	if cfg.Database.DSN == "" {
		if cfg.Database.Port < 1 || cfg.Database.Port > 65535 {
			return nil, fmt.Errorf("invalid database.port %d in %q, expected 1-65535", cfg.Database.Port, path)
		}
	}
	if cfg.Redis.DB < 0 {
		return nil, fmt.Errorf("invalid redis.db %d in %q, expected >= 0", cfg.Redis.DB, path)
	}
	if cfg.Processor.PollInterval < time.Second {
		return nil, fmt.Errorf("invalid processor.poll_interval %s in %q, expected >= 1s", cfg.Processor.PollInterval, path)
	}
	if cfg.Processor.MaxAttempts < 1 {
		return nil, fmt.Errorf("invalid processor.max_attempts %d in %q, expected >= 1", cfg.Processor.MaxAttempts, path)
	}

	return &cfg, nil
}

func defaultAppConfig() AppConfig {
	return AppConfig{
		Port: defaultPort,
		Env:  defaultEnv,
		Database: DatabaseConfig{
			Host:     defaultDBHost,
			Port:     defaultDBPort,
			User:     defaultDBUser,
			Password: defaultDBPassword,
			Name:     defaultDBName,
			Charset:  defaultDBCharset,
		},
		Redis: RedisConfig{
			Host: defaultRedisHost,
			Port: defaultRedisPort,
			DB:   defaultRedisDB,
		},
		Log: LogConfig{
			Level:      defaultLogLevel,
			Dir:        defaultLogDir,
			MaxSizeMB:  defaultLogSizeMB,
			MaxBackups: defaultLogBackups,
		},
		Processor: ProcessorConfig{
			PollInterval:   defaultPollEvery,
			ClaimBatch:     defaultClaimBatch,
			Workers:        defaultWorkers,
			MaxAttempts:    defaultMaxAttempts,
			WebhookTimeout: defaultHookTimeout,
		},
	}
}

func normalize(cfg *AppConfig) {
	cfg.Env = normalizeEnv(cfg.Env)
	if cfg.Processor.ClaimBatch < 1 {
		cfg.Processor.ClaimBatch = defaultClaimBatch
	}
	if cfg.Processor.Workers < 1 {
		cfg.Processor.Workers = defaultWorkers
	}
	if cfg.Processor.WebhookTimeout <= 0 {
		cfg.Processor.WebhookTimeout = defaultHookTimeout
	}

	origins := make([]string, 0, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		if v := strings.TrimSpace(o); v != "" {
			origins = append(origins, v)
		}
	}
	cfg.AllowedOrigins = origins
	cfg.AdminToken = strings.TrimSpace(cfg.AdminToken)

	cfg.DSN = cfg.Database.DSNValue()
	cfg.RedisURL = cfg.Redis.URLValue()
}

func normalizeEnv(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "prod", "production":
		return "production"
	default:
		return "development"
	}
}

// IsDev reports whether the app runs in development mode.
func (c *AppConfig) IsDev() bool { return c.Env != "production" }

// DSNValue builds the MySQL DSN from the structured fields unless an
// explicit dsn was given.
func (c DatabaseConfig) DSNValue() string {
	if v := strings.TrimSpace(c.DSN); v != "" {
		return v
	}
	params := neturl.Values{}
	params.Set("charset", c.Charset)
	params.Set("parseTime", "True")
	params.Set("loc", "UTC")
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
		c.User, c.Password, c.Host, c.Port, c.Name, params.Encode())
}

// URLValue builds the redis URL from the structured fields unless an
// explicit url was given.
func (c RedisConfig) URLValue() string {
	if v := strings.TrimSpace(c.URL); v != "" {
		if !strings.HasPrefix(v, "redis://") && !strings.HasPrefix(v, "rediss://") {
			return "redis://" + v
		}
		return v
	}
	scheme := "redis"
	if c.TLS {
		scheme = "rediss"
	}
	u := neturl.URL{
		Scheme: scheme,
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   fmt.Sprintf("/%d", c.DB),
	}
	if c.Username != "" || c.Password != "" {
		u.User = neturl.UserPassword(c.Username, c.Password)
	}
	return u.String()
}
