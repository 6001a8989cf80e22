package protocol

import "time"

// =============================================================================
// Helper functions for creating messages
// =============================================================================

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// NewEmotionMessage reports label, with audioURL when a clip was spoken.
func NewEmotionMessage(label, audioURL string) (*Message, error) {
	return NewMessage(TypeEmotion, EmotionData{
		Emotion:  optional(label),
		AudioURL: optional(audioURL),
	})
}

// NewResponseMessage carries reply text.
func NewResponseMessage(text string) (*Message, error) {
	return NewMessage(TypeResponse, ResponseData{Response: text})
}

// NewAudioMessage carries the clip for the preceding response.
// The emotion field is always null.
func NewAudioMessage(audioURL string) (*Message, error) {
	return NewMessage(TypeAudio, EmotionData{AudioURL: optional(audioURL)})
}

// NewSessionMessage announces the connection id.
func NewSessionMessage(id string) (*Message, error) {
	return NewMessage(TypeSession, SessionData{ID: id})
}

// NewChatMessage creates a chat message (used by clients and tests).
func NewChatMessage(text string) (*Message, error) {
	return NewMessage(TypeChat, ChatData{Message: text})
}

// NewFrameMessage creates a frame message from a data URL.
func NewFrameMessage(dataURL string) (*Message, error) {
	return NewMessage(TypeFrame, dataURL)
}

// NewPongMessage answers a ping.
func NewPongMessage(ping *PingData) (*Message, error) {
	pong := PongData{PongTS: time.Now().UnixMilli()}
	if ping != nil {
		pong.ID = ping.ID
		pong.PingTS = ping.Timestamp
	}
	return NewMessage(TypePong, pong)
}
