// Package tts provides a unified interface for text-to-speech providers.
//
// Kai speaks every reply as a short MP3 clip. The default backend is the
// keyless Google Translate voice; OpenAI and ElevenLabs are available when an
// API key is configured, and Chain falls back between them.
//
// Example usage:
//
//	provider := tts.NewGoogleTranslate(tts.WithLanguage("en"))
//	defer provider.Close()
//
//	result, _ := provider.Synthesize(ctx, "Hello world")
//	// result.Audio contains MP3 bytes
package tts

import "context"

// Provider defines the TTS provider interface.
type Provider interface {
	// Synthesize converts text to audio, returning the complete audio buffer.
	Synthesize(ctx context.Context, text string) (*AudioResult, error)

	// Health checks provider connectivity and API key validity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// AudioResult represents a complete audio synthesis result.
type AudioResult struct {
	// Audio contains the encoded audio.
	Audio []byte

	// Encoding of Audio.
	Encoding Encoding

	// CharCount is the number of characters synthesized.
	CharCount int

	// LatencyMs is the total request time in milliseconds.
	LatencyMs int64
}

// Encoding represents audio container types.
type Encoding string

const (
	EncodingMP3 Encoding = "mp3"
	EncodingWAV Encoding = "wav"
)

// Ext returns the file extension for the encoding, including the dot.
func (e Encoding) Ext() string {
	switch e {
	case EncodingWAV:
		return ".wav"
	default:
		return ".mp3"
	}
}

// VoiceSettings controls voice characteristics for providers that support it.
type VoiceSettings struct {
	// Stability controls voice consistency (0.0-1.0).
	// Lower values = more expressive/variable, higher = more consistent.
	Stability float64

	// SimilarityBoost controls how closely the voice matches the original (0.0-1.0).
	SimilarityBoost float64

	// Style controls style exaggeration (0.0-1.0).
	Style float64

	// SpeakerBoost enhances speaker clarity.
	SpeakerBoost bool
}

// DefaultVoiceSettings returns calm, consistent settings suited to Kai.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{
		Stability:       0.6,
		SimilarityBoost: 0.75,
		Style:           0.0,
		SpeakerBoost:    true,
	}
}
