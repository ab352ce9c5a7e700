package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "practice-server.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppConfig_ExpandsEnvAndDefaults(t *testing.T) {
	t.Setenv("PRACTICE_DB_DSN", "postgres://practice@localhost/practice?sslmode=disable")
	path := writeConfig(t, `
database:
  driver: postgres
  dsn: ${PRACTICE_DB_DSN}
redis:
  addr: localhost:6379
mq:
  driver: NATS
minio:
  bucket: archive
evaluator:
  maxConcurrent: 8
  slotWait: 3s
`)
	cfg, err := loadAppConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Database.DSN != "postgres://practice@localhost/practice?sslmode=disable" {
		t.Fatalf("dsn not expanded: %q", cfg.Database.DSN)
	}
	if cfg.MQ.Driver != mqDriverNATS {
		t.Fatalf("expected nats driver, got %q", cfg.MQ.Driver)
	}
	if cfg.Server.Addr != defaultHTTPAddr || cfg.Server.WriteTimeout != defaultWriteTimeout {
		t.Fatalf("server defaults not applied: %+v", cfg.Server)
	}
	if cfg.Evaluator.MaxConcurrent != 8 || cfg.Evaluator.SlotWait != 3*time.Second {
		t.Fatalf("evaluator config not decoded: %+v", cfg.Evaluator)
	}
	if cfg.Submission.ArchiveBucket != "archive" || cfg.Submission.RateLimit.UserMax != 20 {
		t.Fatalf("submission defaults not applied: %+v", cfg.Submission)
	}
	if cfg.Sandbox.Mode != "isolated" {
		t.Fatalf("expected isolated sandbox by default, got %q", cfg.Sandbox.Mode)
	}
}

func TestLoadAppConfig_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing dsn", "redis:\n  addr: localhost:6379\n"},
		{"missing redis", "database:\n  dsn: x\n"},
		{"unknown mq", "database:\n  dsn: x\nredis:\n  addr: y\nmq:\n  driver: rabbit\n"},
		{"archive without minio", "database:\n  dsn: x\nredis:\n  addr: y\nsubmission:\n  archiveEnabled: true\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := loadAppConfig(writeConfig(t, tt.body)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
