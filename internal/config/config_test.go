package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "8080" || cfg.Rooms.SendBuffer != 64 || cfg.Rooms.LeaderboardSize != 10 {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
server:
  port: "9090"
  allowedOrigins: ["https://play.example.com"]
log:
  level: debug
  format: console
redis:
  addr: localhost:6379
  ttl: 30m
rooms:
  endedGrace: 5m
  sendBuffer: 16
scoring:
  speedBonusFloor: 0.25
  negativeScores: true
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || len(cfg.Server.AllowedOrigins) != 1 {
		t.Fatalf("unexpected server section %+v", cfg.Server)
	}
	if cfg.Log.Format != "console" || cfg.Log.Level != "debug" {
		t.Fatalf("unexpected log section %+v", cfg.Log)
	}
	if cfg.Rooms.SendBuffer != 16 || cfg.Rooms.LeaderboardSize != 10 {
		t.Fatalf("unexpected rooms section %+v", cfg.Rooms)
	}
	if cfg.Scoring.SpeedBonusFloor != 0.25 || !cfg.Scoring.NegativeScores {
		t.Fatalf("unexpected scoring section %+v", cfg.Scoring)
	}
	if got := TTLDuration(cfg.Rooms.EndedGrace, time.Hour); got != 5*time.Minute {
		t.Fatalf("expected 5m ended grace, got %v", got)
	}
}

func TestLoadRejectsBadFloor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("scoring:\n  speedBonusFloor: 1.5\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for floor above 1")
	}
}

func TestTTLDurationFallback(t *testing.T) {
	if got := TTLDuration("", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback for empty, got %v", got)
	}
	if got := TTLDuration("soon", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback for garbage, got %v", got)
	}
	if got := TTLDuration("90s", time.Minute); got != 90*time.Second {
		t.Fatalf("expected 90s, got %v", got)
	}
}
