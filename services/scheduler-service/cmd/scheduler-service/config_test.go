package main

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/scheduler")
	t.Setenv("KAFKA_BROKERS", "localhost:9092")
	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Port != "8087" || cfg.GroupID != "scheduler-service" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if len(cfg.Topics) != 3 || len(cfg.Channels) != 1 || cfg.Channels[0] != "email" {
		t.Fatalf("unexpected topics/channels %+v", cfg)
	}
	if len(cfg.Offsets) != 2 || cfg.Offsets[0] != 24*time.Hour || cfg.Offsets[1] != time.Hour {
		t.Fatalf("unexpected offsets %v", cfg.Offsets)
	}
	if cfg.Backoff != time.Minute {
		t.Fatalf("unexpected backoff %s", cfg.Backoff)
	}
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("KAFKA_BROKERS", "localhost:9092")
	if _, err := loadConfig(); err == nil {
		t.Fatal("expected error without DATABASE_URL")
	}

	t.Setenv("DATABASE_URL", "postgres://localhost/scheduler")
	t.Setenv("REMINDER_OFFSETS_MINUTES", "60,soon")
	if _, err := loadConfig(); err == nil {
		t.Fatal("expected error for bad offsets")
	}

	t.Setenv("REMINDER_OFFSETS_MINUTES", "")
	t.Setenv("KAFKA_BROKERS", "")
	if _, err := loadConfig(); err == nil {
		t.Fatal("expected error without KAFKA_BROKERS")
	}
}
