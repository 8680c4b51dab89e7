package ws

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBridge carries hub envelopes between horizontally scaled instances
// over a Redis pub/sub channel. Each instance relays its own publishes and
// fans in the others' to local subscribers.
type RedisBridge struct {
	client  *redis.Client
	channel string
	hub     *Hub
	id      string
	log     *zap.SugaredLogger
}

type bridgeFrame struct {
	Origin  string          `json:"origin"`
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

func NewRedisBridge(client *redis.Client, channel, instanceID string, hub *Hub, log *zap.SugaredLogger) *RedisBridge {
	return &RedisBridge{client: client, channel: channel, hub: hub, id: instanceID, log: log}
}

// Relay implements the hub's Relay hook.
func (b *RedisBridge) Relay(topic string, payload []byte) {
	frame, err := json.Marshal(bridgeFrame{Origin: b.id, Topic: topic, Payload: payload})
	if err != nil {
		return
	}
	if err := b.client.Publish(context.Background(), b.channel, frame).Err(); err != nil {
		b.log.Warnw("bridge publish", "topic", topic, "err", err)
	}
}

// Run consumes the channel until ctx is cancelled, delivering frames from
// other instances to local subscribers. Frames this instance originated
// are skipped to avoid double delivery.
func (b *RedisBridge) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var frame bridgeFrame
			if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
				continue
			}
			if frame.Origin == b.id {
				continue
			}
			b.hub.DeliverLocal(frame.Topic, frame.Payload)
		}
	}
}
