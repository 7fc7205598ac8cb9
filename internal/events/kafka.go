// Package events forwards journal events to external sinks.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/and161185/allegro-webapi/internal/model"
)

const publishTimeout = 5 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes each journal event as a JSON message keyed by item id.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	log    *zap.Logger
}

// NewKafkaPublisher connects a writer to brokers. Events go to topic.
func NewKafkaPublisher(brokers []string, topic string, log *zap.Logger) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka publisher requires a topic")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		RequiredAcks: kafka.RequireAll,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
	}
	return newKafkaPublisher(w, topic, log), nil
}

func newKafkaPublisher(w messageWriter, topic string, log *zap.Logger) *KafkaPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &KafkaPublisher{writer: w, topic: topic, log: log}
}

// Publish writes ev synchronously.
func (p *KafkaPublisher) Publish(ctx context.Context, ev model.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.topic,
		Key:   []byte(strconv.FormatInt(ev.ItemID, 10)),
		Value: payload,
		Time:  ev.ObservedAt.UTC(),
		Headers: []kafka.Header{
			{Key: "event_kind", Value: []byte(ev.Kind)},
		},
	})
}

// Handle is a journal.Handler; failures are logged and dropped.
func (p *KafkaPublisher) Handle(ev model.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := p.Publish(ctx, ev); err != nil {
		p.log.Warn("publish journal event",
			zap.String("topic", p.topic),
			zap.String("kind", string(ev.Kind)),
			zap.Int64("item_id", ev.ItemID),
			zap.Error(err),
		)
	}
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
