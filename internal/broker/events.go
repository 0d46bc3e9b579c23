package appkafka

import (
	"encoding/json"
	"errors"
	"fmt"

	"example.com/socialfeed/internal/models"
	"github.com/segmentio/kafka-go"
)

var ErrEmptyEvent = errors.New("empty event message")

// EncodeEvent wraps an activity event in a Kafka message keyed by its kind.
func EncodeEvent(ev models.Event) (kafka.Message, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(ev.Kind),
		Value: data,
	}, nil
}

// DecodeEvent parses a message value produced by EncodeEvent.
func DecodeEvent(value []byte) (models.Event, error) {
	var ev models.Event
	if len(value) == 0 {
		return ev, ErrEmptyEvent
	}
	if err := json.Unmarshal(value, &ev); err != nil {
		return ev, fmt.Errorf("unmarshal event: %w", err)
	}
	if ev.Kind == "" || ev.ActorID == "" {
		return ev, fmt.Errorf("incomplete event: kind=%q", ev.Kind)
	}
	return ev, nil
}
