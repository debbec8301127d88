// Package config loads qontrol settings.
//
// Layering, later wins:
//  1. built-in defaults
//  2. .env (only fills variables that are not already set)
//  3. YAML file (--config, or qontrol.yaml / configs/qontrol.yaml when present)
//  4. environment variables
//
// Command-line flags are applied on top by the cmd package.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/qontrol/qontrol/internal/bullmq"
	"github.com/qontrol/qontrol/internal/logging"
)

// Config is the resolved application configuration.
type Config struct {
	Redis  RedisConfig    `yaml:"redis"`
	Queue  QueueConfig    `yaml:"queue"`
	Server ServerConfig   `yaml:"server"`
	Log    logging.Config `yaml:"log"`
}

type RedisConfig struct {
	URL          string        `yaml:"url"`
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PoolSize     int           `yaml:"pool_size"`
}

type QueueConfig struct {
	Prefix string `yaml:"prefix"`
}

type ServerConfig struct {
	Listen          string        `yaml:"listen"`
	CORSOrigin      string        `yaml:"cors_origin"`
	WSInterval      time.Duration `yaml:"ws_interval"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	TraceRedis      bool          `yaml:"trace_redis"`
}

var configPaths = []string{
	"qontrol.yaml",
	"configs/qontrol.yaml",
}

var envPaths = []string{
	".env",
	"../.env",
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Redis: RedisConfig{
			Host:         "localhost",
			Port:         6379,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Queue: QueueConfig{Prefix: bullmq.DefaultPrefix},
		Server: ServerConfig{
			Listen:          ":3000",
			CORSOrigin:      "*",
			WSInterval:      5 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: logging.Config{Level: "info", Format: "text", Output: "stderr"},
	}
}

// Load resolves configuration. An explicit path must exist; the search paths are optional.
func Load(path string) (*Config, error) {
	for _, p := range envPaths {
		if err := godotenv.Load(p); err == nil {
			break
		}
	}

	cfg := Default()
	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
		return nil
	}

	for _, p := range configPaths {
		data, err := os.ReadFile(filepath.Clean(p))
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse config %s: %w", p, err)
		}
		break
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Redis.URL = getEnv("REDIS_URL", c.Redis.URL)
	c.Redis.Host = getEnv("REDIS_HOST", c.Redis.Host)
	c.Redis.Username = getEnv("REDIS_USERNAME", c.Redis.Username)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Queue.Prefix = getEnv("QUEUE_PREFIX", c.Queue.Prefix)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
	c.Server.CORSOrigin = getEnv("CORS_ORIGIN", c.Server.CORSOrigin)

	var errs []error
	if v := os.Getenv("REDIS_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		errs = append(errs, wrapEnv("REDIS_PORT", err))
		c.Redis.Port = port
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		errs = append(errs, wrapEnv("REDIS_DB", err))
		c.Redis.DB = db
	}
	if v := os.Getenv("PORT"); v != "" {
		if _, err := strconv.Atoi(v); err != nil {
			errs = append(errs, wrapEnv("PORT", err))
		}
		c.Server.Listen = ":" + v
	}
	c.Server.Listen = getEnv("LISTEN_ADDR", c.Server.Listen)
	if v := os.Getenv("WS_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		errs = append(errs, wrapEnv("WS_INTERVAL", err))
		c.Server.WSInterval = d
	}
	return errors.Join(errs...)
}

func wrapEnv(name string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("env %s: %w", name, err)
}

// Validate checks ranges that would otherwise fail later with a confusing error.
func (c *Config) Validate() error {
	var errs []error
	if c.Redis.URL == "" && (c.Redis.Port < 1 || c.Redis.Port > 65535) {
		errs = append(errs, fmt.Errorf("redis port %d out of range", c.Redis.Port))
	}
	if c.Redis.DB < 0 {
		errs = append(errs, fmt.Errorf("redis db %d must be >= 0", c.Redis.DB))
	}
	if strings.TrimSpace(c.Queue.Prefix) == "" {
		errs = append(errs, errors.New("queue prefix must not be empty"))
	}
	if c.Server.WSInterval <= 0 {
		errs = append(errs, errors.New("ws interval must be positive"))
	}
	if _, port, err := splitListen(c.Server.Listen); err != nil {
		errs = append(errs, err)
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Errorf("listen port %d out of range", port))
	}
	return errors.Join(errs...)
}

func splitListen(listen string) (string, int, error) {
	idx := strings.LastIndex(listen, ":")
	if idx < 0 {
		return "", 0, fmt.Errorf("listen address %q has no port", listen)
	}
	port, err := strconv.Atoi(listen[idx+1:])
	if err != nil {
		return "", 0, fmt.Errorf("listen address %q: %w", listen, err)
	}
	return listen[:idx], port, nil
}

// RedisURL returns the connection URL, building it from host fields when no URL is set.
func (c *Config) RedisURL() string {
	if c.Redis.URL != "" {
		return c.Redis.URL
	}
	u := url.URL{
		Scheme: "redis",
		Host:   fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port),
		Path:   "/" + strconv.Itoa(c.Redis.DB),
	}
	switch {
	case c.Redis.Password != "":
		u.User = url.UserPassword(c.Redis.Username, c.Redis.Password)
	case c.Redis.Username != "":
		u.User = url.User(c.Redis.Username)
	}
	return u.String()
}

// RedisOptions returns the client options derived from the configuration.
func (c *Config) RedisOptions() bullmq.Options {
	return bullmq.Options{
		Prefix:       c.Queue.Prefix,
		DialTimeout:  c.Redis.DialTimeout,
		ReadTimeout:  c.Redis.ReadTimeout,
		WriteTimeout: c.Redis.WriteTimeout,
		PoolSize:     c.Redis.PoolSize,
	}
}

// String returns a summary with the password masked.
func (c *Config) String() string {
	return fmt.Sprintf("Config{Redis: %s, Prefix: %s, Listen: %s, Log: %s/%s}",
		maskPassword(c.RedisURL()), c.Queue.Prefix, c.Server.Listen, c.Log.Level, c.Log.Format)
}

func maskPassword(url string) string {
	re := regexp.MustCompile(`(://[^:@/]*:)([^@]+)(@)`)
	return re.ReplaceAllString(url, "${1}***${3}")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
