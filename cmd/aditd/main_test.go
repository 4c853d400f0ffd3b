package main

import (
	"testing"
	"time"

	"github.com/justapithecus/adit/adapter"
	"github.com/justapithecus/adit/cli/config"
	"github.com/justapithecus/adit/log"
	"github.com/justapithecus/adit/metrics"
)

func testConfig() *config.Config {
	cfg := config.Default()
	return &cfg
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("expected defaults, got %v", err)
	}
	if cfg.Server.Addr != ":32300" {
		t.Errorf("addr = %q, want :32300", cfg.Server.Addr)
	}
	if !cfg.Ledger.Enabled {
		t.Error("ledger should default to enabled")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := loadConfig("/nonexistent/adit.yaml")
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestStorageBackend(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{
			name:   "fs by default",
			mutate: func(cfg *config.Config) {},
			want:   "fs",
		},
		{
			name: "s3 when bucket set",
			mutate: func(cfg *config.Config) {
				cfg.Ledger.S3.Bucket = "adit-records"
			},
			want: "s3",
		},
		{
			name: "none when disabled",
			mutate: func(cfg *config.Config) {
				cfg.Ledger.Enabled = false
			},
			want: "none",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)
			if got := storageBackend(cfg); got != tt.want {
				t.Errorf("storageBackend = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildRecorder_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Ledger.Enabled = false

	rec, err := buildRecorder(cfg, nil, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if rec != nil {
		t.Error("disabled ledger should yield a nil recorder")
	}
}

func TestBuildRecorder_FS(t *testing.T) {
	cfg := testConfig()
	cfg.Ledger.Root = t.TempDir()

	collector := metrics.NewCollector("fs", "base")
	logger := log.NewLogger("test", "error")

	rec, err := buildRecorder(cfg, collector, logger)
	if err != nil {
		t.Fatalf("buildRecorder failed: %v", err)
	}
	if rec == nil {
		t.Fatal("expected a recorder for an enabled fs ledger")
	}
	if err := rec.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestBuildRecorder_NoTrigger(t *testing.T) {
	cfg := testConfig()
	cfg.Ledger.Root = t.TempDir()
	cfg.Ledger.BufferSize = 0
	cfg.Ledger.FlushInterval = config.Duration{}

	_, err := buildRecorder(cfg, nil, nil)
	if err == nil {
		t.Fatal("expected error when no flush trigger is configured")
	}
}

func TestBuildPublisher_None(t *testing.T) {
	pub, err := buildPublisher(testConfig())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if pub != nil {
		t.Error("no configured adapters should yield a nil publisher")
	}
}

func TestBuildPublisher_Webhook(t *testing.T) {
	cfg := testConfig()
	cfg.Adapters.Webhook.URL = "http://127.0.0.1:9/hook"

	pub, err := buildPublisher(cfg)
	if err != nil {
		t.Fatalf("buildPublisher failed: %v", err)
	}
	if pub == nil {
		t.Fatal("expected a publisher for a configured webhook")
	}
	if _, ok := pub.(adapter.Multi); ok {
		t.Error("single adapter should not be wrapped in Multi")
	}
	if err := pub.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestBuildPublisher_Both(t *testing.T) {
	cfg := testConfig()
	cfg.Adapters.Redis.URL = "redis://127.0.0.1:6379"
	cfg.Adapters.Webhook.URL = "http://127.0.0.1:9/hook"

	pub, err := buildPublisher(cfg)
	if err != nil {
		t.Fatalf("buildPublisher failed: %v", err)
	}
	multi, ok := pub.(adapter.Multi)
	if !ok {
		t.Fatalf("expected Multi, got %T", pub)
	}
	if len(multi) != 2 {
		t.Errorf("targets = %d, want 2", len(multi))
	}
	if err := pub.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestBuildPublisher_InvalidRedisURL(t *testing.T) {
	cfg := testConfig()
	cfg.Adapters.Redis.URL = "not-a-redis-url"

	_, err := buildPublisher(cfg)
	if err == nil {
		t.Fatal("expected error for invalid redis URL")
	}
}

func TestBuildGate_Disabled(t *testing.T) {
	gate, err := buildGate(testConfig(), nil, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if gate != nil {
		t.Error("disabled auth should yield a nil gate")
	}
}

func TestBuildGate_Enabled(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Enabled = true
	cfg.Auth.AuthorityURL = "http://127.0.0.1:9/check"
	cfg.Auth.RequestTimeout = config.Duration{Duration: time.Second}

	gate, err := buildGate(cfg, metrics.NewCollector("fs", "base"), log.NewLogger("test", "error"))
	if err != nil {
		t.Fatalf("buildGate failed: %v", err)
	}
	if gate == nil {
		t.Fatal("expected a gate for enabled auth")
	}
}

func TestBuildGate_MissingURL(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Enabled = true

	_, err := buildGate(cfg, nil, nil)
	if err == nil {
		t.Fatal("expected error when authority URL is missing")
	}
}
