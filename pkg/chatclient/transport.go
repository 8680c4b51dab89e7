package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/fasthttp/websocket"
)

var (
	ErrAlreadyStarted = errors.New("session already started")
	ErrNotConnected   = errors.New("session not connected")
	ErrNoConversation = errors.New("no open conversation")
)

// Event names mirrored from the server's realtime channel.
const (
	EventAuthenticate      = "authenticate"
	EventJoinConversation  = "join-conversation"
	EventLeaveConversation = "leave-conversation"
	EventSendMessage       = "send-message"
	EventTypingStart       = "typing-start"
	EventTypingStop        = "typing-stop"
	EventNewMessage        = "new-message"
	EventUserOnline        = "user-online"
	EventUserOffline       = "user-offline"
)

type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Transport is the realtime channel seam. Tests use an in-memory fake; the
// real implementation dials the server's /ws endpoint.
type Transport interface {
	Connect(ctx context.Context) error
	Send(event string, data any) error
	Events() <-chan Envelope
	Close() error
}

// WSTransport speaks the envelope protocol over a websocket connection.
type WSTransport struct {
	url    string
	token  string
	dialer *websocket.Dialer

	mu     sync.Mutex
	conn   *websocket.Conn
	events chan Envelope
}

func NewWSTransport(url, token string) *WSTransport {
	return &WSTransport{
		url:    url,
		token:  token,
		dialer: websocket.DefaultDialer,
		events: make(chan Envelope, 64),
	}
}

func (t *WSTransport) Connect(ctx context.Context) error {
	conn, resp, err := t.dialer.DialContext(ctx, t.url+"?token="+t.token, nil)
	if err != nil {
		return err
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	go t.readLoop(conn)
	return nil
}

func (t *WSTransport) Send(event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return ErrNotConnected
	}
	return t.conn.WriteJSON(Envelope{Event: event, Data: raw})
}

func (t *WSTransport) Events() <-chan Envelope {
	return t.events
}

func (t *WSTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

func (t *WSTransport) readLoop(conn *websocket.Conn) {
	defer close(t.events)
	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		t.events <- env
	}
}
