// Package protocol defines the websocket envelope exchanged between the
// browser and the Kai server.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MessageType identifies the type of websocket message
type MessageType string

const (
	// Browser → Server messages
	TypeFrame MessageType = "frame" // Webcam frame as a data URL
	TypeChat  MessageType = "chat"  // Typed chat text

	// Server → Browser messages
	TypeEmotion  MessageType = "emotion"  // Detected emotion, optional clip
	TypeResponse MessageType = "response" // Reply text
	TypeAudio    MessageType = "audio"    // Clip for the preceding reply
	TypeSession  MessageType = "session"  // Connection id, sent on connect

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// ErrNoData is returned when a message that needs a payload has none.
var ErrNoData = errors.New("protocol: message has no data")

// Message is the base wrapper for all websocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data any) (*Message, error) {
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

// ParseData unmarshals the message data into the provided value
func (m *Message) ParseData(v any) error {
	if len(m.Data) == 0 || string(m.Data) == "null" {
		return ErrNoData
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
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// =============================================================================
// Browser → Server Message Types
// =============================================================================

// ChatData carries typed text.
type ChatData struct {
	Message string `json:"message"`
}

// FrameURL returns the data URL of a frame message. The payload is either
// a bare JSON string or {"image": "..."}.
func (m *Message) FrameURL() (string, error) {
	var s string
	if err := m.ParseData(&s); err == nil {
		return s, nil
	} else if errors.Is(err, ErrNoData) {
		return "", err
	}
	var obj struct {
		Image string `json:"image"`
	}
	if err := json.Unmarshal(m.Data, &obj); err != nil {
		return "", fmt.Errorf("frame data: %w", err)
	}
	return obj.Image, nil
}

// =============================================================================
// Server → Browser Message Types
// =============================================================================

// EmotionData reports a detected emotion and an optional spoken reaction.
// Nil fields encode as JSON null.
type EmotionData struct {
	Emotion  *string `json:"emotion"`
	AudioURL *string `json:"audio_url"`
}

// ResponseData carries reply text.
type ResponseData struct {
	Response string `json:"response"`
}

// SessionData announces the connection id.
type SessionData struct {
	ID string `json:"id"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id,omitempty"`
	Timestamp int64  `json:"ts,omitempty"`
}

// PongData contains pong response
type PongData struct {
	ID     string `json:"id,omitempty"`
	PingTS int64  `json:"ping_ts,omitempty"`
	PongTS int64  `json:"pong_ts"`
}
