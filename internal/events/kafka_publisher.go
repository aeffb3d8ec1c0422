// Package events carries the optional operational side effects of the
// lifecycle: a Kafka stream of trigger/expire envelopes and an S3 archive of
// result rows. Both are best-effort; nothing in the core flow depends on them.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const (
	TypeActionTriggered = "action.triggered"
	TypeActionExpired   = "action.expired"
)

// Envelope is the message published for each lifecycle transition.
type Envelope struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	ActionID string    `json:"actionId"`
	Baseline string    `json:"baseline"`
	Group    string    `json:"group"`
	Stage    string    `json:"stage"`
	Ts       time.Time `json:"ts"`
}

// Publisher is what the dispatcher and watcher see; nil-safe wrappers in those
// components make the stream fully optional.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
	Close() error
}

// KafkaPublisherConfig contains configurable parameters for the Kafka publisher.
type KafkaPublisherConfig struct {
	// Brokers is the list of Kafka broker addresses (host:port).
	Brokers []string

	// Topic is the topic lifecycle envelopes are written to.
	Topic string

	// MaxAttempts is how many times a publish is retried on transient error.
	// Defaults to 3 if <= 0.
	MaxAttempts int

	// WriteTimeout is the per-attempt timeout for Write operations.
	// Defaults to 10s if zero.
	WriteTimeout time.Duration
}

// KafkaPublisher is a lightweight wrapper over segmentio/kafka-go Writer.
// Envelopes are keyed by action id so every transition of one action lands on
// the same partition, keeping per-action ordering.
type KafkaPublisher struct {
	writer      *kafka.Writer
	maxAttempts int
}

func NewKafkaPublisher(cfg KafkaPublisherConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: topic required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: cfg.WriteTimeout,
		Async:        false,
	})

	return &KafkaPublisher{writer: w, maxAttempts: cfg.MaxAttempts}, nil
}

// Publish writes one envelope, retrying transient failures with a capped
// exponential backoff.
func (p *KafkaPublisher) Publish(ctx context.Context, env Envelope) error {
	if env.ID == "" {
		env.ID = uuid.New().String()
	}
	if env.Ts.IsZero() {
		env.Ts = time.Now().UTC()
	}
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	var lastErr error
	backoff := 100 * time.Millisecond
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		msg := kafka.Message{
			Key:   []byte(env.ActionID),
			Value: value,
			Time:  env.Ts,
		}
		ctxAttempt, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := p.writer.WriteMessages(ctxAttempt, msg)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		time.Sleep(backoff)
		if backoff < 2*time.Second {
			backoff *= 2
		}
	}
	return fmt.Errorf("publish failed after %d attempts: %w", p.maxAttempts, lastErr)
}

// Close shuts down the underlying writer and releases resources.
func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
