package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port           string   `yaml:"port"`
		AllowedOrigins []string `yaml:"allowedOrigins"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	NATS struct {
		URL           string `yaml:"url"`
		SubjectPrefix string `yaml:"subjectPrefix"`
	} `yaml:"nats"`
	Packs struct {
		TTL string `yaml:"ttl"`
	} `yaml:"packs"`
	Rooms struct {
		EndedGrace       string `yaml:"endedGrace"`
		IdleTTL          string `yaml:"idleTTL"`
		SweepInterval    string `yaml:"sweepInterval"`
		AutoAdvanceGrace string `yaml:"autoAdvanceGrace"`
		SendBuffer       int    `yaml:"sendBuffer"`
		LeaderboardSize  int    `yaml:"leaderboardSize"`
	} `yaml:"rooms"`
	Scoring struct {
		SpeedBonusFloor float64 `yaml:"speedBonusFloor"`
		NegativeScores  bool    `yaml:"negativeScores"`
	} `yaml:"scoring"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	cfg := Config{}
	cfg.Server.Port = "8080"
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	cfg.NATS.SubjectPrefix = "trivia.rooms"
	cfg.Rooms.SendBuffer = 64
	cfg.Rooms.LeaderboardSize = 10
	cfg.Scoring.SpeedBonusFloor = 0.5
	return cfg
}

// Load reads YAML config from path on top of Default. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Scoring.SpeedBonusFloor < 0 || cfg.Scoring.SpeedBonusFloor > 1 {
		return cfg, fmt.Errorf("scoring.speedBonusFloor must be within [0,1], got %v", cfg.Scoring.SpeedBonusFloor)
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
