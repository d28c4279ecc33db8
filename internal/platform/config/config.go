// Package config builds runtime configuration from the environment so main
// stays lean. Every knob has a development default; production deployments
// override via ENROLLSYNC_* variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures HTTP server level configuration. An empty WebhookSecret
// disables trigger authentication, intended for local development only.
type Server struct {
	Addr          string
	WebhookSecret string
}

// Database points at one of the two registration backends.
type Database struct {
	DSN string
}

// Redis configures the optional advisory-lock client. An empty URL disables
// redis; provisioning then relies on lookup-before-write alone.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka configures the audit event publisher. Empty brokers disable it.
type Kafka struct {
	Brokers []string
	Topic   string
}

// Email configures the welcome-mail sender. An empty SendgridKey routes
// messages to the console sender.
type Email struct {
	SendgridKey     string
	FromAddress     string
	FromName        string
	FrontendBaseURL string
}

// Pipeline holds reconciliation and provisioning tunables.
type Pipeline struct {
	SweepInterval    time.Duration
	SweepTimeout     time.Duration
	ProvisionTimeout time.Duration
	TrialWindow      time.Duration
	ResetLinkSecret  string
	ResetLinkTTL     time.Duration
	LockTTL          time.Duration
	OutboxInterval   time.Duration
	OutboxMaxAttempt int
}

// Config is the root configuration object wired in cmd/server.
type Config struct {
	Server   Server
	SourceDB Database
	TargetDB Database
	Redis    Redis
	Kafka    Kafka
	Email    Email
	Pipeline Pipeline
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:          envStr("ENROLLSYNC_ADDR", ":8080"),
			WebhookSecret: envStr("ENROLLSYNC_WEBHOOK_SECRET", ""),
		},
		SourceDB: Database{
			DSN: envStr("ENROLLSYNC_SOURCE_DSN", ""),
		},
		TargetDB: Database{
			DSN: envStr("ENROLLSYNC_TARGET_DSN", ""),
		},
		Redis: Redis{
			URL:          envStr("ENROLLSYNC_REDIS_URL", ""),
			PoolSize:     envInt("ENROLLSYNC_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("ENROLLSYNC_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDur("ENROLLSYNC_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDur("ENROLLSYNC_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDur("ENROLLSYNC_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers: envList("ENROLLSYNC_KAFKA_BROKERS"),
			Topic:   envStr("ENROLLSYNC_KAFKA_TOPIC", "enrollsync.audit"),
		},
		Email: Email{
			SendgridKey:     envStr("ENROLLSYNC_SENDGRID_KEY", ""),
			FromAddress:     envStr("ENROLLSYNC_EMAIL_FROM", "noreply@localhost"),
			FromName:        envStr("ENROLLSYNC_EMAIL_FROM_NAME", "Enrollsync"),
			FrontendBaseURL: envStr("ENROLLSYNC_FRONTEND_BASE_URL", "http://localhost:3000"),
		},
		Pipeline: Pipeline{
			SweepInterval:    envDur("ENROLLSYNC_SWEEP_INTERVAL", 15*time.Minute),
			SweepTimeout:     envDur("ENROLLSYNC_SWEEP_TIMEOUT", 2*time.Minute),
			ProvisionTimeout: envDur("ENROLLSYNC_PROVISION_TIMEOUT", 30*time.Second),
			TrialWindow:      envDur("ENROLLSYNC_TRIAL_WINDOW", 7*24*time.Hour),
			ResetLinkSecret:  envStr("ENROLLSYNC_RESET_LINK_SECRET", "dev-secret-change-in-production"),
			ResetLinkTTL:     envDur("ENROLLSYNC_RESET_LINK_TTL", 24*time.Hour),
			LockTTL:          envDur("ENROLLSYNC_LOCK_TTL", 30*time.Second),
			OutboxInterval:   envDur("ENROLLSYNC_OUTBOX_INTERVAL", 30*time.Second),
			OutboxMaxAttempt: envInt("ENROLLSYNC_OUTBOX_MAX_ATTEMPTS", 5),
		},
	}
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDur(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
