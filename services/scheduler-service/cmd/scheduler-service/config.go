package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/localli/booking/libs/config"
	"github.com/localli/booking/services/scheduler-service/internal/reminder"
)

type serviceConfig struct {
	Name           string
	Port           string
	DatabaseURL    string
	MigrateOnStart bool

	KafkaBrokers string
	GroupID      string
	Topics       []string

	Offsets  []time.Duration
	Channels []string
	Backoff  time.Duration
}

func loadConfig() (serviceConfig, error) {
	cfg := serviceConfig{
		Name:           config.String("SERVICE_NAME", "scheduler-service"),
		MigrateOnStart: config.Bool("MIGRATE_ON_START", true),
		KafkaBrokers:   config.String("KAFKA_BROKERS", ""),
		GroupID:        config.String("KAFKA_GROUP_ID", "scheduler-service"),
		Topics:         config.List("KAFKA_CONSUME_TOPICS", strings.Join(reminder.DefaultTopics, ",")),
		Channels:       config.List("REMINDER_CHANNELS", "email"),
		Backoff:        config.Seconds("SCHEDULER_BACKOFF_SECONDS", time.Minute),
	}

	port, err := config.Port("PORT", "8087")
	if err != nil {
		return serviceConfig{}, err
	}
	cfg.Port = port

	if cfg.DatabaseURL, err = config.RequiredString("DATABASE_URL"); err != nil {
		return serviceConfig{}, err
	}
	if cfg.KafkaBrokers == "" {
		return serviceConfig{}, fmt.Errorf("KAFKA_BROKERS is required")
	}
	if len(cfg.Topics) == 0 {
		return serviceConfig{}, fmt.Errorf("KAFKA_CONSUME_TOPICS must name at least one topic")
	}
	if len(cfg.Channels) == 0 {
		return serviceConfig{}, fmt.Errorf("REMINDER_CHANNELS must name at least one channel")
	}
	if cfg.Offsets, err = reminder.ParseOffsets(config.String("REMINDER_OFFSETS_MINUTES", "1440,60")); err != nil {
		return serviceConfig{}, err
	}
	return cfg, nil
}
