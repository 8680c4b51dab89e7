package ws

import "encoding/json"

// Client-emitted events.
const (
	EventAuthenticate      = "authenticate"
	EventJoinConversation  = "join-conversation"
	EventLeaveConversation = "leave-conversation"
	EventSendMessage       = "send-message"
	EventTypingStart       = "typing-start"
	EventTypingStop        = "typing-stop"
)

// Server-emitted events.
const (
	EventUserOnline      = "user-online"
	EventUserOffline     = "user-offline"
	EventNewMessage      = "new-message"
	EventMessageReaction = "message-reaction"
	EventMessageSeen     = "message-seen"
	EventMessageUnsent   = "message-unsent"
	EventJoined          = "joined"
	EventError           = "error"
)

// Envelope is the wire format for every frame on the realtime channel.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func NewEnvelope(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// ConversationTopic is the broadcast topic for a conversation's traffic.
func ConversationTopic(conversationID string) string {
	return "conversation:" + conversationID
}

// UserTopic is the per-user topic used for presence and direct events.
func UserTopic(userID string) string {
	return "user:" + userID
}
