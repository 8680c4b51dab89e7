// Package events publishes domain events to Kafka for downstream consumers
// (notifications, feeds, analytics). Publishing is best-effort: a broker
// failure is logged and counted, never surfaced to the user operation.
package events

import (
	"context"
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/inspirecraft/realtime/internal/metrics"
)

const (
	TypeMessageSent   = "message.sent"
	TypeLikeToggled   = "like.toggled"
	TypeFollowToggled = "follow.toggled"
)

type envelope struct {
	Type    string          `json:"type"`
	At      time.Time       `json:"at"`
	Payload json.RawMessage `json:"payload"`
}

type Producer struct {
	writer *kafkago.Writer
	log    *zap.SugaredLogger
}

func NewProducer(brokers []string, topic string, log *zap.SugaredLogger) *Producer {
	p := &Producer{log: log}
	p.writer = &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
		// Async delivery reports broker failures through Completion only;
		// WriteMessages itself returns nil.
		Async:      true,
		Completion: p.onCompletion,
	}
	return p
}

func (p *Producer) onCompletion(messages []kafkago.Message, err error) {
	if err == nil {
		return
	}
	metrics.EventPublishFailures.Add(float64(len(messages)))
	p.log.Warnw("event publish", "count", len(messages), "err", err)
}

func (p *Producer) Publish(ctx context.Context, eventType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	body, err := json.Marshal(envelope{Type: eventType, At: time.Now().UTC(), Payload: raw})
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(eventType),
		Value: body,
		Time:  time.Now(),
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
