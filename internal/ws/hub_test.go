package ws

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inspirecraft/realtime/internal/logger"
)

func newTestClient(buffer int) *Client {
	return NewClient(nil, "tester", buffer)
}

func drain(t *testing.T, c *Client) []Envelope {
	t.Helper()
	var out []Envelope
	for {
		select {
		case payload := <-c.send:
			var env Envelope
			require.NoError(t, json.Unmarshal(payload, &env))
			out = append(out, env)
		default:
			return out
		}
	}
}

func TestPublishReachesOnlySubscribers(t *testing.T) {
	hub := NewHub(logger.Nop())
	s1, s2, s3 := newTestClient(4), newTestClient(4), newTestClient(4)
	topic := ConversationTopic("c1")
	hub.Subscribe(s1, topic)
	hub.Subscribe(s2, topic)
	hub.Subscribe(s3, ConversationTopic("c2"))

	hub.Publish(topic, EventNewMessage, map[string]string{"id": "m1"})

	assert.Len(t, drain(t, s1), 1)
	assert.Len(t, drain(t, s2), 1)
	assert.Empty(t, drain(t, s3))
}

func TestPublishNoSubscribersIsNoop(t *testing.T) {
	hub := NewHub(logger.Nop())
	assert.NotPanics(t, func() {
		hub.Publish(ConversationTopic("empty"), EventNewMessage, map[string]string{})
	})
}

func TestSlowSubscriberDoesNotBlockOthers(t *testing.T) {
	hub := NewHub(logger.Nop())
	slow, fast := newTestClient(1), newTestClient(4)
	topic := ConversationTopic("c1")
	hub.Subscribe(slow, topic)
	hub.Subscribe(fast, topic)

	hub.Publish(topic, EventNewMessage, map[string]string{"id": "m1"})
	hub.Publish(topic, EventNewMessage, map[string]string{"id": "m2"})

	// the slow client's queue overflowed; its copy of m2 was dropped
	assert.Len(t, drain(t, slow), 1)
	assert.Len(t, drain(t, fast), 2)
}

func TestDropRemovesAllSubscriptions(t *testing.T) {
	hub := NewHub(logger.Nop())
	c := newTestClient(4)
	hub.Register(c)
	hub.Subscribe(c, ConversationTopic("c1"))
	hub.Subscribe(c, ConversationTopic("c2"))

	hub.Drop(c)

	hub.Publish(ConversationTopic("c1"), EventNewMessage, map[string]string{})
	hub.Publish(ConversationTopic("c2"), EventNewMessage, map[string]string{})
	assert.Empty(t, drain(t, c))
	assert.False(t, hub.Subscribed(c, ConversationTopic("c1")))
}

func TestBroadcastReachesAllClients(t *testing.T) {
	hub := NewHub(logger.Nop())
	c1, c2 := newTestClient(4), newTestClient(4)
	hub.Register(c1)
	hub.Register(c2)

	hub.Broadcast(EventUserOnline, map[string]string{"user_id": "alice"})

	got := drain(t, c1)
	require.Len(t, got, 1)
	assert.Equal(t, EventUserOnline, got[0].Event)
	assert.Len(t, drain(t, c2), 1)
}

func TestBroadcastExceptSkipsClient(t *testing.T) {
	hub := NewHub(logger.Nop())
	origin, other := newTestClient(4), newTestClient(4)
	hub.Register(origin)
	hub.Register(other)

	hub.BroadcastExcept(EventUserOnline, map[string]string{"user_id": "alice"}, origin)

	assert.Empty(t, drain(t, origin))
	got := drain(t, other)
	require.Len(t, got, 1)
	assert.Equal(t, EventUserOnline, got[0].Event)
}

func TestTypingDedup(t *testing.T) {
	hub := NewHub(logger.Nop())

	assert.True(t, hub.TypingStart("c1", "alice"))
	assert.False(t, hub.TypingStart("c1", "alice"))
	assert.True(t, hub.TypingStart("c1", "bob"))

	assert.True(t, hub.TypingStop("c1", "alice"))
	assert.False(t, hub.TypingStop("c1", "alice"))
	assert.False(t, hub.TypingStop("c2", "bob"))
}

func TestStopTypingEverywhere(t *testing.T) {
	hub := NewHub(logger.Nop())
	hub.TypingStart("c1", "alice")
	hub.TypingStart("c2", "alice")
	hub.TypingStart("c2", "bob")

	convs := hub.StopTypingEverywhere("alice")
	assert.ElementsMatch(t, []string{"c1", "c2"}, convs)
	// bob is still typing in c2
	assert.False(t, hub.TypingStart("c2", "bob"))
	assert.Empty(t, hub.StopTypingEverywhere("alice"))
}
