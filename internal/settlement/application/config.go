package application

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Lock backends.
const (
	LockBackendPostgres = "postgres"
	LockBackendRedis    = "redis"
	LockBackendMemory   = "memory"
)

// Config defines settlement scheduling and runtime options.
type Config struct {
	Schedule   ScheduleConfig `yaml:"schedule"`
	Location   string         `yaml:"location"`
	Lock       LockConfig     `yaml:"lock"`
	WebhookURL string         `yaml:"webhook_url"`
}

// ScheduleConfig controls the periodic advancement pass.
type ScheduleConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Concurrency int           `yaml:"concurrency"`
	// MeteringPoints restricts the pass to an explicit allow-list.
	MeteringPoints []string `yaml:"metering_points"`
}

// LockConfig selects the period lock implementation.
type LockConfig struct {
	Backend   string        `yaml:"backend"`
	RedisAddr string        `yaml:"redis_addr"`
	TTL       time.Duration `yaml:"ttl"`
}

// LoadConfig loads config from yaml or env.
func LoadConfig() (Config, error) {
	cfg := Config{
		Location: "UTC",
		Lock: LockConfig{
			Backend: LockBackendPostgres,
			TTL:     30 * time.Second,
		},
	}

	if path := os.Getenv("SETTLEMENT_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if cfg.Schedule.Interval <= 0 {
		cfg.Schedule.Interval = getenvDuration("SETTLEMENT_INTERVAL", time.Hour)
	}
	if cfg.Schedule.Concurrency <= 0 {
		cfg.Schedule.Concurrency = getenvIntDefault("SETTLEMENT_CONCURRENCY", 4)
	}
	if len(cfg.Schedule.MeteringPoints) == 0 {
		cfg.Schedule.MeteringPoints = splitCSV(os.Getenv("SETTLEMENT_METERING_POINTS"))
	}
	if cfg.Lock.RedisAddr == "" {
		cfg.Lock.RedisAddr = os.Getenv("REDIS_ADDR")
	}
	if cfg.WebhookURL == "" {
		cfg.WebhookURL = os.Getenv("SETTLEMENT_WEBHOOK_URL")
	}
	cfg.Lock.Backend = strings.ToLower(strings.TrimSpace(cfg.Lock.Backend))
	if cfg.Lock.Backend == "" {
		cfg.Lock.Backend = LockBackendPostgres
	}
	return cfg, cfg.Validate()
}

// Validate checks option values.
func (c Config) Validate() error {
	switch c.Lock.Backend {
	case LockBackendPostgres, LockBackendMemory:
	case LockBackendRedis:
		if c.Lock.RedisAddr == "" {
			return errors.New("settlement config: redis lock requires redis_addr")
		}
	default:
		return fmt.Errorf("settlement config: unknown lock backend %q", c.Lock.Backend)
	}
	if _, err := c.LoadLocation(); err != nil {
		return fmt.Errorf("settlement config: location: %w", err)
	}
	return nil
}

// LoadLocation resolves the configured IANA zone.
func (c Config) LoadLocation() (*time.Location, error) {
	if c.Location == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Location)
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	var result []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
