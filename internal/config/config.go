// Package config provides a minimal environment-backed configuration loader
// used by the fixstreamd bootstrap (cmd/fixstreamd/main.go).
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the runtime config values used by main.go.
type Config struct {
	ListenAddr  string // LISTEN_ADDR (default :8080)
	DatabaseURL string // DATABASE_URL

	// Console (vendor endpoint family)
	ConsoleURL      string // CONSOLE_URL
	ConsoleUser     string // CONSOLE_USER
	ConsolePass     string // CONSOLE_PASS
	ConsoleInsecure bool   // CONSOLE_INSECURE (lab consoles with self-signed certs)

	// Change-ticket validation collaborator
	ChangeAPIURL string // CHANGE_API_URL
	ChangeAPIKey string // CHANGE_API_KEY

	// Mail relay collaborator
	MailRelayURL string   // MAIL_RELAY_URL
	MailFrom     string   // MAIL_FROM
	MailTo       []string // MAIL_TO (comma-separated)

	// Watcher / retention
	PollInterval      time.Duration // POLL_INTERVAL_SECONDS (floor 30s)
	RetentionDays     int           // RETENTION_DAYS (default 30)
	RetentionInterval time.Duration // RETENTION_INTERVAL_HOURS (default 12h)

	// Optional lifecycle event stream + result archive
	KafkaBrokers string // KAFKA_BROKERS (comma-separated)
	KafkaTopic   string // KAFKA_TOPIC
	S3Bucket     string // S3_BUCKET
	S3Prefix     string // S3_PREFIX (optional)

	// Optional bearer auth for the trigger API
	JWTSecret string // JWT_SECRET (empty disables auth)
}

// MinPollInterval is the floor enforced on the watcher tick, no matter what
// POLL_INTERVAL_SECONDS says.
const MinPollInterval = 30 * time.Second

// LoadFromEnv reads config values from environment variables and returns a Config pointer.
func LoadFromEnv() *Config {
	cfg := &Config{
		ListenAddr:   os.Getenv("LISTEN_ADDR"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		ConsoleURL:   os.Getenv("CONSOLE_URL"),
		ConsoleUser:  os.Getenv("CONSOLE_USER"),
		ConsolePass:  os.Getenv("CONSOLE_PASS"),
		ChangeAPIURL: os.Getenv("CHANGE_API_URL"),
		ChangeAPIKey: os.Getenv("CHANGE_API_KEY"),
		MailRelayURL: os.Getenv("MAIL_RELAY_URL"),
		MailFrom:     os.Getenv("MAIL_FROM"),
		MailTo:       splitList(os.Getenv("MAIL_TO")),
		KafkaBrokers: os.Getenv("KAFKA_BROKERS"),
		KafkaTopic:   os.Getenv("KAFKA_TOPIC"),
		S3Bucket:     os.Getenv("S3_BUCKET"),
		S3Prefix:     os.Getenv("S3_PREFIX"),
		JWTSecret:    os.Getenv("JWT_SECRET"),
	}

	// sensible defaults
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.MailFrom == "" {
		cfg.MailFrom = "fixstream@localhost"
	}

	cfg.PollInterval = 60 * time.Second
	if n := envInt("POLL_INTERVAL_SECONDS"); n > 0 {
		cfg.PollInterval = time.Duration(n) * time.Second
	}
	if cfg.PollInterval < MinPollInterval {
		cfg.PollInterval = MinPollInterval
	}

	cfg.RetentionDays = 30
	if n := envInt("RETENTION_DAYS"); n > 0 {
		cfg.RetentionDays = n
	}

	cfg.RetentionInterval = 12 * time.Hour
	if n := envInt("RETENTION_INTERVAL_HOURS"); n > 0 {
		cfg.RetentionInterval = time.Duration(n) * time.Hour
	}

	// booleans parsed permissively; default false
	if v := os.Getenv("CONSOLE_INSECURE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.ConsoleInsecure = b
		}
	}

	return cfg
}

func envInt(name string) int {
	v := os.Getenv(name)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func splitList(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
