// Package audit carries the audit event model and its publishers. Publishing
// is best-effort: callers log a failed Emit and carry on.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Publisher emits audit events.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}

// fill assigns an id and timestamp when the caller left them empty.
func fill(event *Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
}

// Producer is the subset of *kgo.Client the Kafka publisher needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaPublisher writes events as JSON records keyed by subject hash, so all
// events for one citizen land on one partition in order.
type KafkaPublisher struct {
	producer Producer
	topic    string
	logger   *slog.Logger
}

// Option configures a KafkaPublisher.
type Option func(*KafkaPublisher)

// WithLogger sets a logger for publish failures.
func WithLogger(logger *slog.Logger) Option {
	return func(p *KafkaPublisher) {
		p.logger = logger
	}
}

// NewKafkaPublisher creates a publisher writing to topic.
func NewKafkaPublisher(producer Producer, topic string, opts ...Option) *KafkaPublisher {
	p := &KafkaPublisher{producer: producer, topic: topic}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *KafkaPublisher) Emit(ctx context.Context, event Event) error {
	fill(&event)
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.SubjectHash),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	if err := p.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		if p.logger != nil {
			p.logger.WarnContext(ctx, "audit publish failed",
				"event_type", event.Type,
				"request_id", event.RequestID,
				"error", err,
			)
		}
		return fmt.Errorf("publish audit event: %w", err)
	}
	return nil
}

// MemoryPublisher keeps events in memory. Used when no brokers are configured
// and in tests.
type MemoryPublisher struct {
	mu     sync.RWMutex
	events []Event
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Emit(_ context.Context, event Event) error {
	fill(&event)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Events returns a copy of everything emitted so far.
func (p *MemoryPublisher) Events() []Event {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Event{}, p.events...)
}

// ByType returns emitted events of type t.
func (p *MemoryPublisher) ByType(t EventType) []Event {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []Event
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// LogPublisher writes events to the structured log. Used when no brokers are
// configured so events are not held in memory for the process lifetime.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Emit(ctx context.Context, event Event) error {
	fill(&event)
	p.logger.InfoContext(ctx, "audit event",
		"log_type", "audit",
		"event_id", event.ID,
		"event", string(event.Type),
		"subject_hash", event.SubjectHash,
		"outcome", event.Outcome,
		"request_id", event.RequestID,
		"client_ip", event.ClientIP,
	)
	return nil
}
