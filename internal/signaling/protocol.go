// Package signaling owns the realtime leg of the portfolio client: the wire
// message types, the topic layout, and the Channel that carries them over
// STOMP/WebSocket to the backend broker.
//
// Field names below are the wire contract: they must match what the backend
// broadcasts, so the JSON tags use the backend's camelCase spelling.
package signaling

import (
	"encoding/json"
	"time"
)

// Role identifies which end of a call a message came from. The per-room video
// topic broadcasts to both participants, so every SignalEnvelope carries the
// sender's role and receivers drop their own echoes.
type Role string

const (
	RoleAdmin   Role = "Admin"
	RoleVisitor Role = "Visitor"
)

// MessageType discriminates chat traffic on /topic/public.
type MessageType string

const (
	MessageChat  MessageType = "CHAT"
	MessageJoin  MessageType = "JOIN"
	MessageLeave MessageType = "LEAVE"
)

// ChatMessage is one entry in the public chat stream. JOIN/LEAVE carry no
// meaningful content beyond the presence notice the backend composes.
type ChatMessage struct {
	Sender    string      `json:"sender"`
	Content   string      `json:"content,omitempty"`
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp,omitempty"`
}

// NewChatMessage builds a CHAT message stamped with the current time in
// ISO-8601, the format the backend stores and replays in /chat/history.
func NewChatMessage(sender, content string) ChatMessage {
	return ChatMessage{
		Sender:    sender,
		Content:   content,
		Type:      MessageChat,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// NewJoinMessage builds the JOIN notice sent on /app/chat.addUser.
func NewJoinMessage(sender string) ChatMessage {
	return ChatMessage{Sender: sender, Type: MessageJoin}
}

// CallRequest announces a pending call on the presence topic. The roomId is
// generated by the visitor and scopes the whole call end-to-end.
type CallRequest struct {
	RoomID      string `json:"roomId"`
	VisitorName string `json:"visitorName"`
}

// SignalType discriminates WebRTC negotiation payloads.
type SignalType string

const (
	SignalOffer        SignalType = "offer"
	SignalAnswer       SignalType = "answer"
	SignalICECandidate SignalType = "ice-candidate"
)

// SignalEnvelope carries one negotiation payload (session description or ICE
// candidate) scoped to a room. Data stays opaque here; the call package
// decodes it into Pion types.
type SignalEnvelope struct {
	Type   SignalType      `json:"type"`
	Data   json.RawMessage `json:"data"`
	From   Role            `json:"from"`
	RoomID string          `json:"roomId"`
}

// EndNotice is the best-effort call-teardown message on /app/video.end.
type EndNotice struct {
	RoomID string `json:"roomId"`
}
