package appkafka

import (
	"context"
	"errors"
	"time"

	"example.com/socialfeed/internal/models"
	"github.com/segmentio/kafka-go"
)

// EventWriter publishes activity events for the invalidation worker.
type EventWriter interface {
	WriteEvent(ev models.Event) error
	Close() error
}

// EventReader yields raw activity messages; values decode with DecodeEvent.
type EventReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

var errNoTopic = errors.New("kafka topic is not configured")

// KafkaConfig describes where activity events live.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	Partition    int           // partition the server writes to
	WriteTimeout time.Duration // per-event write deadline
	ReadTimeout  time.Duration // longest fetch wait for the worker
	GroupID      string        // worker consumer group
}

func (c KafkaConfig) withDefaults() KafkaConfig {
	if len(c.Brokers) == 0 {
		c.Brokers = []string{"localhost:9092"}
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	return c
}

// ActivityWriter writes events straight to the partition leader. Events
// of one partition keep their order, which is all invalidation needs.
type ActivityWriter struct {
	conn    *kafka.Conn
	timeout time.Duration
	now     func() time.Time
}

func NewKafkaWriter(ctx context.Context, cfg KafkaConfig) (*ActivityWriter, error) {
	cfg = cfg.withDefaults()
	if cfg.Topic == "" {
		return nil, errNoTopic
	}
	conn, err := kafka.DialLeader(ctx, "tcp", cfg.Brokers[0], cfg.Topic, cfg.Partition)
	if err != nil {
		return nil, err
	}
	return &ActivityWriter{conn: conn, timeout: cfg.WriteTimeout, now: time.Now}, nil
}

// WriteEvent stamps ev with the current UTC time when it has none and
// writes it keyed by kind.
func (w *ActivityWriter) WriteEvent(ev models.Event) error {
	if w.conn == nil {
		return errors.New("kafka connection is nil")
	}
	if ev.At.IsZero() {
		ev.At = w.now().UTC()
	}
	msg, err := EncodeEvent(ev)
	if err != nil {
		return err
	}
	if err := w.conn.SetWriteDeadline(w.now().Add(w.timeout)); err != nil {
		return err
	}
	_, err = w.conn.WriteMessages(msg)
	return err
}

func (w *ActivityWriter) Close() error {
	if w.conn == nil {
		return nil
	}
	return w.conn.Close()
}

// ActivityReader consumes events as part of cfg.GroupID, committing offsets
// once a second.
type ActivityReader struct {
	reader *kafka.Reader
}

func NewKafkaReader(cfg KafkaConfig) *ActivityReader {
	cfg = cfg.withDefaults()
	return &ActivityReader{reader: kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          cfg.Topic,
		MinBytes:       1,
		MaxBytes:       1 << 20,
		MaxWait:        cfg.ReadTimeout,
		CommitInterval: time.Second,
	})}
}

func (r *ActivityReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	return r.reader.ReadMessage(ctx)
}

func (r *ActivityReader) Close() error {
	return r.reader.Close()
}
