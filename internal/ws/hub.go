package ws

import (
	"sync"

	"go.uber.org/zap"

	"github.com/inspirecraft/realtime/internal/metrics"
)

// Relay republishes envelopes to other instances; see RedisBridge.
type Relay interface {
	Relay(topic string, payload []byte)
}

// Hub is the fan-out bus: it tracks which connections are subscribed to
// which topics and delivers published envelopes to each of them in
// isolation. A publish to a topic with no subscribers is a no-op. The hub
// also keeps the transient typing sets used to de-duplicate typing events.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	topics  map[string]map[*Client]struct{}
	typing  map[string]map[string]struct{} // conversationID -> typing userIDs
	relay   Relay
	log     *zap.SugaredLogger
}

func NewHub(log *zap.SugaredLogger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		topics:  make(map[string]map[*Client]struct{}),
		typing:  make(map[string]map[string]struct{}),
		log:     log,
	}
}

// SetRelay attaches a cross-instance relay. Must be called before serving.
func (h *Hub) SetRelay(r Relay) { h.relay = r }

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Hub) Subscribe(c *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[*Client]struct{})
		h.topics[topic] = subs
	}
	subs[c] = struct{}{}
}

func (h *Hub) Unsubscribe(c *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.topics[topic]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
}

// Drop removes the client from every topic and from the hub.
func (h *Hub) Drop(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
	for topic, subs := range h.topics {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
}

func (h *Hub) Subscribed(c *Client, topic string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.topics[topic][c]
	return ok
}

// Publish delivers an envelope to every subscriber of topic. Delivery is
// per-subscriber: a slow or gone connection drops its copy without
// affecting the rest. The relay, when attached, carries the envelope to
// other instances.
func (h *Hub) Publish(topic, event string, data any) {
	payload, err := NewEnvelope(event, data)
	if err != nil {
		h.log.Warnw("encode envelope", "event", event, "err", err)
		return
	}
	h.deliver(topic, event, payload)
	if h.relay != nil {
		h.relay.Relay(topic, payload)
	}
}

// Broadcast delivers an envelope to every connected client (presence events).
func (h *Hub) Broadcast(event string, data any) {
	h.BroadcastExcept(event, data, nil)
}

// BroadcastExcept delivers to every connected client but skip. Presence
// events go to all other sessions; the originating connection already knows.
func (h *Hub) BroadcastExcept(event string, data any, skip *Client) {
	payload, err := NewEnvelope(event, data)
	if err != nil {
		h.log.Warnw("encode envelope", "event", event, "err", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c == skip {
			continue
		}
		if c.Enqueue(payload) {
			metrics.EventsBroadcast.WithLabelValues(event).Inc()
		}
	}
}

// DeliverLocal fans a relayed envelope out to local subscribers only.
func (h *Hub) DeliverLocal(topic string, payload []byte) {
	h.deliver(topic, "relayed", payload)
}

func (h *Hub) deliver(topic, event string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.topics[topic] {
		if c.Enqueue(payload) {
			metrics.EventsBroadcast.WithLabelValues(event).Inc()
		}
	}
}

// TypingStart records userID as typing in a conversation. It returns true
// only on the transition from not-typing, so repeated events collapse.
func (h *Hub) TypingStart(conversationID, userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.typing[conversationID]
	if !ok {
		set = make(map[string]struct{})
		h.typing[conversationID] = set
	}
	if _, typing := set[userID]; typing {
		return false
	}
	set[userID] = struct{}{}
	return true
}

// TypingStop clears the typing mark; true when the user was typing.
func (h *Hub) TypingStop(conversationID, userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.typing[conversationID]
	if !ok {
		return false
	}
	if _, typing := set[userID]; !typing {
		return false
	}
	delete(set, userID)
	if len(set) == 0 {
		delete(h.typing, conversationID)
	}
	return true
}

// StopTypingEverywhere clears the user from all typing sets and returns the
// affected conversation ids. Called on disconnect.
func (h *Hub) StopTypingEverywhere(userID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for convID, set := range h.typing {
		if _, typing := set[userID]; typing {
			delete(set, userID)
			if len(set) == 0 {
				delete(h.typing, convID)
			}
			out = append(out, convID)
		}
	}
	return out
}
