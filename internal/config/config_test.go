package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestGetDefaults(t *testing.T) {
	cfg := GetDefaults()
	if cfg.Server.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Masking.Format != "[REDACTED]" {
		t.Errorf("Expected default mask format, got %q", cfg.Masking.Format)
	}
	if cfg.WebSocket.PingInterval != 54*time.Second {
		t.Errorf("Unexpected ping interval %v", cfg.WebSocket.PingInterval)
	}
	if cfg.Cache.Enabled || cfg.Audit.Enabled {
		t.Error("Expected cache and audit to be disabled by default")
	}
	if cfg.Reviewer.Name != "" || cfg.Reviewer.Badge != "" {
		t.Errorf("Expected no default reviewer identity, got %+v", cfg.Reviewer)
	}
	if err := validateConfig(cfg); err != nil {
		t.Errorf("Defaults failed validation: %v", err)
	}
}

func TestLoad(t *testing.T) {
	t.Run("File", func(t *testing.T) {
		path := writeConfig(t, `
server:
  port: 9000
  read_timeout: 5s
reviewer:
  name: Det. Mark Chen
  badge: "7788"
case:
  case_number: DV-2024-0847
  scan_date: "2024-03-15T09:30:00Z"
masking:
  format: "[MASKED_{{CATEGORY}}]"
`)
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Server.Port != 9000 || cfg.Server.ReadTimeout != 5*time.Second {
			t.Errorf("Unexpected server config %+v", cfg.Server)
		}
		if cfg.Reviewer.Name != "Det. Mark Chen" || cfg.Reviewer.Badge != "7788" {
			t.Errorf("Unexpected reviewer %+v", cfg.Reviewer)
		}
		if cfg.Reviewer.Department != "Domestic Violence Unit" {
			t.Errorf("Expected default department, got %q", cfg.Reviewer.Department)
		}
		scan, err := cfg.Case.ParsedScanDate()
		if err != nil || scan.Year() != 2024 {
			t.Errorf("Unexpected scan date %v (%v)", scan, err)
		}
		if cfg.Masking.Format != "[MASKED_{{CATEGORY}}]" {
			t.Errorf("Unexpected mask format %q", cfg.Masking.Format)
		}
	})

	t.Run("EnvOverride", func(t *testing.T) {
		path := writeConfig(t, "server:\n  port: 9000\n")
		t.Setenv("REVIEWER_SERVER_PORT", "9191")
		t.Setenv("REVIEWER_REVIEWER_BADGE", "1234")
		t.Setenv("REVIEWER_CACHE_ENABLED", "true")

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Server.Port != 9191 {
			t.Errorf("Expected env port 9191, got %d", cfg.Server.Port)
		}
		if cfg.Reviewer.Badge != "1234" {
			t.Errorf("Expected env badge, got %q", cfg.Reviewer.Badge)
		}
		if !cfg.Cache.Enabled {
			t.Error("Expected env to enable the cache")
		}
	})

	t.Run("Invalid", func(t *testing.T) {
		tests := map[string]string{
			"Port":        "server:\n  port: 70000\n",
			"LogLevel":    "logging:\n  level: verbose\n",
			"MaskFormat":  "masking:\n  format: \"[{{TYPE}}]\"\n",
			"ScanDate":    "case:\n  scan_date: yesterday\n",
			"RateLimit":   "rate_limit:\n  enabled: true\n  requests_per_second: 0\n",
			"WebSocket":   "websocket:\n  path: ws\n",
			"IngestBatch": "ingest:\n  batch_size: -1\n",
		}
		for name, body := range tests {
			t.Run(name, func(t *testing.T) {
				_, err := Load(writeConfig(t, body))
				if err == nil {
					t.Fatal("Expected validation error")
				}
				if !strings.Contains(err.Error(), "invalid configuration") {
					t.Errorf("Unexpected error %v", err)
				}
			})
		}
	})

	t.Run("MissingFile", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
			t.Error("Expected error for explicit missing file")
		}
	})
}

func TestWatch(t *testing.T) {
	t.Run("NoFile", func(t *testing.T) {
		l := &Loader{v: viper.New(), current: GetDefaults()}
		if err := l.Watch(func(*Config) {}, nil); err == nil {
			t.Error("Expected error when no config file is in use")
		}
	})

	t.Run("Reload", func(t *testing.T) {
		path := writeConfig(t, "reviewer:\n  name: Before\n")
		l, err := NewLoader(path)
		if err != nil {
			t.Fatalf("NewLoader failed: %v", err)
		}

		reloaded := make(chan *Config, 64)
		if err := l.Watch(func(c *Config) { reloaded <- c }, nil); err != nil {
			t.Fatalf("Watch failed: %v", err)
		}

		if err := os.WriteFile(path, []byte("reviewer:\n  name: After\n"), 0o644); err != nil {
			t.Fatalf("Failed to rewrite config: %v", err)
		}

		// A write can surface as several events; wait for the final content
		timeout := time.After(5 * time.Second)
		for {
			select {
			case c := <-reloaded:
				if c.Reviewer.Name != "After" {
					continue
				}
				if l.Config().Reviewer.Name != "After" {
					t.Error("Loader did not keep the reloaded config")
				}
				return
			case <-timeout:
				t.Fatal("Timed out waiting for reload")
			}
		}
	})
}
