package application

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settlement.yaml")
	content := `
schedule:
  interval: 15m
  concurrency: 8
  metering_points: ["571313100000000001", "571313100000000002"]
location: Europe/Copenhagen
lock:
  backend: redis
  redis_addr: localhost:6379
  ttl: 10s
webhook_url: http://hooks.local/settlement
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("SETTLEMENT_CONFIG", path)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Schedule.Interval != 15*time.Minute || cfg.Schedule.Concurrency != 8 {
		t.Fatalf("unexpected schedule %+v", cfg.Schedule)
	}
	if len(cfg.Schedule.MeteringPoints) != 2 {
		t.Fatalf("expected 2 metering points, got %v", cfg.Schedule.MeteringPoints)
	}
	if cfg.Lock.Backend != LockBackendRedis || cfg.Lock.TTL != 10*time.Second {
		t.Fatalf("unexpected lock config %+v", cfg.Lock)
	}
	loc, err := cfg.LoadLocation()
	if err != nil || loc.String() != "Europe/Copenhagen" {
		t.Fatalf("unexpected location %v %v", loc, err)
	}
}

func TestLoadConfigEnvDefaults(t *testing.T) {
	t.Setenv("SETTLEMENT_CONFIG", "")
	t.Setenv("SETTLEMENT_INTERVAL", "30m")
	t.Setenv("SETTLEMENT_CONCURRENCY", "")
	t.Setenv("SETTLEMENT_METERING_POINTS", "a, b,,c")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Schedule.Interval != 30*time.Minute || cfg.Schedule.Concurrency != 4 {
		t.Fatalf("unexpected schedule %+v", cfg.Schedule)
	}
	if len(cfg.Schedule.MeteringPoints) != 3 {
		t.Fatalf("expected 3 metering points, got %v", cfg.Schedule.MeteringPoints)
	}
	if cfg.Lock.Backend != LockBackendPostgres {
		t.Fatalf("expected postgres lock by default, got %s", cfg.Lock.Backend)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{Lock: LockConfig{Backend: LockBackendRedis}}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for redis without address")
	}
	cfg = Config{Lock: LockConfig{Backend: "zookeeper"}}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
	cfg = Config{Lock: LockConfig{Backend: LockBackendMemory}, Location: "Mars/Olympus"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for unknown location")
	}
}
