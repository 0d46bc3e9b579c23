package appkafka

import (
	"context"
	"errors"
	"sync"

	"example.com/socialfeed/internal/models"
	"github.com/segmentio/kafka-go"
)

// MockKafka records written events as messages and serves queued ones to
// readers. With Loopback set, every written event is also queued for
// reading, which wires a test server straight into a test worker.
type MockKafka struct {
	mu              sync.Mutex
	WrittenMessages []kafka.Message // events written via WriteEvent, encoded
	ReadMessages    []kafka.Message // queue of messages to be read via ReadMessage
	Loopback        bool
	ShouldFail      bool // flag to simulate failures during write or read operations
}

func (m *MockKafka) WriteEvent(ev models.Event) error {
	if m.ShouldFail {
		return errors.New("mock kafka write failed")
	}
	msg, err := EncodeEvent(ev)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WrittenMessages = append(m.WrittenMessages, msg)
	if m.Loopback {
		m.ReadMessages = append(m.ReadMessages, msg)
	}
	return nil
}

func (m *MockKafka) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if m.ShouldFail {
		return kafka.Message{}, errors.New("mock kafka read failed")
	}
	if err := ctx.Err(); err != nil {
		return kafka.Message{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.ReadMessages) == 0 {
		return kafka.Message{}, errors.New("no messages")
	}
	// Take the first message from the queue and remove it
	msg := m.ReadMessages[0]
	m.ReadMessages = m.ReadMessages[1:]
	return msg, nil
}

// Written returns a copy of the messages written so far.
func (m *MockKafka) Written() []kafka.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]kafka.Message(nil), m.WrittenMessages...)
}

// Close is a no-op.
func (m *MockKafka) Close() error { return nil }

// MockKafkaFail always fails.
type MockKafkaFail struct{}

func (m *MockKafkaFail) WriteEvent(ev models.Event) error {
	return errors.New("mock kafka write failed")
}

func (m *MockKafkaFail) ReadMessage(ctx context.Context) (kafka.Message, error) {
	return kafka.Message{}, errors.New("mock kafka read failed")
}

func (m *MockKafkaFail) Close() error { return nil }
