// Package protocol defines the WebSocket message types spoken between the
// kiosk daemon, the external detector process, and dashboard clients.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Detector → Kiosk messages
	TypeDetection MessageType = "detection" // One detection sample
	TypeHello     MessageType = "hello"     // Detector identifies itself

	// Kiosk → Dashboard messages
	TypeStatus     MessageType = "status"     // Current stage snapshot
	TypeTransition MessageType = "transition" // Stage change event

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}

// =============================================================================
// Detector → Kiosk
// =============================================================================

// HelloData identifies a detector feed.
type HelloData struct {
	Name    string `json:"name"`    // e.g. "yolo-runner"
	Model   string `json:"model"`   // e.g. "yolov5n"
	Camera  int    `json:"camera"`  // camera index in use
	Version string `json:"version"` // detector process version
}

// DetectionData carries one proximity sample from the detector process.
// BBoxHeight is in pixels at the camera's native resolution.
type DetectionData struct {
	Detected   bool    `json:"detected"`
	BBoxHeight float64 `json:"bbox_height_px,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	FrameSeq   uint64  `json:"frame_seq,omitempty"`
}

// =============================================================================
// Kiosk → Dashboard
// =============================================================================

// StatusData is a snapshot of the orchestrator for diagnostic display.
type StatusData struct {
	Stage             string  `json:"stage"`
	StageElapsedMs    int64   `json:"stage_elapsed_ms"`
	Class             string  `json:"class"`
	CountdownRemainMs int64   `json:"countdown_remaining_ms,omitempty"`
	CountdownRunning  bool    `json:"countdown_running"`
	TicksPerSecond    float64 `json:"ticks_per_second"`
	DetectorConnected bool    `json:"detector_connected"`
	LastSampleAgeMs   int64   `json:"last_sample_age_ms,omitempty"`
	LastBBoxHeightPx  float64 `json:"last_bbox_height_px,omitempty"`
}

// TransitionData mirrors a stage.Event for dashboard clients.
type TransitionData struct {
	ID     string `json:"id"`
	From   string `json:"from"`
	To     string `json:"to"`
	At     int64  `json:"at"` // Unix milliseconds
	Reason string `json:"reason"`
}
