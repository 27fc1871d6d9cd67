// Package notify publishes run completion messages so downstream consumers
// can refresh when a new Silver and Gold set is committed.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/xtxerr/medallion/internal/errors"
	"github.com/xtxerr/medallion/internal/fingerprint"
	"github.com/xtxerr/medallion/internal/logging"
)

// Run outcomes carried in RunMessage.Status.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// RunMessage describes one finished pipeline run.
type RunMessage struct {
	RunID      string                             `json:"run_id"`
	Status     string                             `json:"status"`
	Driver     string                             `json:"driver"`
	StartedAt  time.Time                          `json:"started_at"`
	FinishedAt time.Time                          `json:"finished_at"`
	Error      string                             `json:"error,omitempty"`
	Layer      string                             `json:"layer,omitempty"`
	Rows       map[string]int                     `json:"rows,omitempty"`
	Tables     map[string]fingerprint.Fingerprint `json:"tables,omitempty"`
	Snapshot   string                             `json:"snapshot,omitempty"`
}

// Encode returns the Kafka message for m, keyed by run ID.
func (m RunMessage) Encode(topic string) (kafka.Message, error) {
	value, err := json.Marshal(m)
	if err != nil {
		return kafka.Message{}, errors.Wrap(err, "encode run message")
	}
	return kafka.Message{
		Topic: topic,
		Key:   []byte(m.RunID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "status", Value: []byte(m.Status)},
		},
		Time: m.FinishedAt,
	}, nil
}

// Notifier publishes run messages.
type Notifier interface {
	Notify(ctx context.Context, m RunMessage) error
	Close() error
}

// Nop discards every message.
type Nop struct{}

func (Nop) Notify(context.Context, RunMessage) error { return nil }
func (Nop) Close() error                             { return nil }

// messageWriter is the part of *kafka.Writer the notifier uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config configures the Kafka notifier.
type Config struct {
	Brokers []string
	Topic   string
	Timeout time.Duration
}

// Kafka publishes run messages to a topic.
type Kafka struct {
	w       messageWriter
	topic   string
	timeout time.Duration
}

// NewKafka creates a synchronous Kafka producer. No connection is made
// until the first message.
func NewKafka(cfg Config) *Kafka {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.LeastBytes{},
		MaxAttempts:  3,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return newKafka(w, cfg)
}

func newKafka(w messageWriter, cfg Config) *Kafka {
	return &Kafka{w: w, topic: cfg.Topic, timeout: cfg.Timeout}
}

// Notify writes m and waits for the broker acknowledgement.
func (k *Kafka) Notify(ctx context.Context, m RunMessage) error {
	msg, err := m.Encode(k.topic)
	if err != nil {
		return err
	}
	if k.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, k.timeout)
		defer cancel()
	}
	if err := k.w.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "publish run %s to %s", m.RunID, k.topic)
	}
	logging.ComponentContext(ctx, "notify").Debug("run message published", "topic", k.topic, "status", m.Status)
	return nil
}

// Close flushes and closes the producer.
func (k *Kafka) Close() error {
	return k.w.Close()
}
