// Package hub provides a thread-safe websocket broadcast hub
// using the idiomatic Go channel-based fan-out pattern.
package hub

// Message is one frame to broadcast. Dashboard feeds carry only
// pre-encoded JSON, sent as websocket text frames.
type Message struct {
	Data []byte
}

// NewJSONMessage wraps pre-encoded JSON bytes for broadcast.
func NewJSONMessage(data []byte) Message {
	return Message{Data: data}
}
