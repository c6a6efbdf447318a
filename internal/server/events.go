package server

import "encoding/json"

// Event names carried in the envelope. file-shared events originate only
// from the ingestion coordinator; sessions may originate the other three.
const (
	EventFileShared  = "file-shared"
	EventChatMessage = "chat-message"
	EventTyping      = "typing"
	EventStopTyping  = "stop-typing"
)

// Envelope is the JSON frame exchanged over the realtime channel:
// {"event": "...", "data": ...}. Data is kept raw so chat payloads are
// echoed to recipients byte for byte.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}
