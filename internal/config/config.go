// Package config loads go-kai configuration from the environment.
//
// Values come from process environment variables, optionally seeded from a
// local, gitignored .env file. Secrets are never hardcoded.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Reply strategy modes.
const (
	ReplyStateless = "stateless"
	ReplySession   = "session"
	ReplyWindow    = "window"
)

// Generated clips live between these bounds before the sweep removes them.
const (
	minAudioMaxAge = 15 * time.Second
	maxAudioMaxAge = 30 * time.Second
)

// Emotion speech modes.
const (
	EmotionSpeechOff       = "off"
	EmotionSpeechCanned    = "canned"
	EmotionSpeechGenerated = "generated"
)

// Config holds all configuration for the Kai server.
type Config struct {
	Port      int    `env:"PORT" envDefault:"5000"`
	LogLevel  string `env:"KAI_LOG_LEVEL" envDefault:"info"`
	StaticDir string `env:"KAI_STATIC_DIR" envDefault:"./web"`
	Proxy     string `env:"KAI_PROXY"` // SOCKS5 address for outbound API calls

	Reply    ReplyConfig
	Speech   SpeechConfig
	Emotion  EmotionConfig
	Commands CommandsConfig
	Telegram TelegramConfig
}

// ReplyConfig selects and tunes the reply generator.
type ReplyConfig struct {
	Mode        string        `env:"KAI_REPLY_MODE" envDefault:"window"`
	Provider    string        `env:"KAI_REPLY_PROVIDER" envDefault:"gemini"` // gemini, openai, chain, none
	Model       string        `env:"KAI_REPLY_MODEL"`
	HistorySize int           `env:"KAI_REPLY_HISTORY" envDefault:"10"`
	Temperature float64       `env:"KAI_REPLY_TEMPERATURE" envDefault:"0.7"`
	MaxTokens   int           `env:"KAI_REPLY_MAX_TOKENS" envDefault:"200"`
	Timeout     time.Duration `env:"KAI_REPLY_TIMEOUT" envDefault:"30s"`

	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	OpenAIAPIKey string `env:"OPENAI_API_KEY"`
	OpenAIModel  string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
}

// SpeechConfig configures text-to-speech and the temporary audio store.
type SpeechConfig struct {
	Provider string        `env:"KAI_TTS_PROVIDER" envDefault:"gtts"` // gtts, openai, elevenlabs, none
	Lang     string        `env:"KAI_TTS_LANG" envDefault:"en"`
	Voice    string        `env:"KAI_TTS_VOICE"`
	AudioDir string        `env:"KAI_AUDIO_DIR" envDefault:"./web/audio"`
	MaxAge   time.Duration `env:"KAI_AUDIO_MAX_AGE" envDefault:"30s"`

	ElevenLabsAPIKey string `env:"ELEVENLABS_API_KEY"`
}

// EmotionConfig configures the facial emotion classifier.
type EmotionConfig struct {
	Backend       string        `env:"KAI_EMOTION_BACKEND" envDefault:"onnx"` // onnx, vision, none
	FaceModel     string        `env:"KAI_FACE_MODEL" envDefault:"models/face_detection_yunet.onnx"`
	EmotionModel  string        `env:"KAI_EMOTION_MODEL" envDefault:"models/emotion-ferplus-8.onnx"`
	MinConfidence float64       `env:"KAI_EMOTION_MIN_CONFIDENCE" envDefault:"0.4"`
	Speech        string        `env:"KAI_EMOTION_SPEECH" envDefault:"generated"`
	Cooldown      time.Duration `env:"KAI_EMOTION_COOLDOWN" envDefault:"8s"`
}

// CommandsConfig toggles the local command interceptor.
type CommandsConfig struct {
	Enabled bool `env:"KAI_COMMANDS_ENABLED" envDefault:"true"`
}

// TelegramConfig configures the operator bridge.
// When Enabled, chat replies come from a human operator instead of the LLM.
type TelegramConfig struct {
	Enabled   bool   `env:"KAI_BRIDGE_ENABLED" envDefault:"false"`
	BotToken  string `env:"TELEGRAM_BOT_TOKEN"`
	AllowedID int64  `env:"TELEGRAM_ALLOWED_ID"`
}

// Load reads envFile (if it exists) into the process environment and parses
// the result into a Config. A missing envFile is not an error.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Port)
	}

	switch c.Reply.Mode {
	case ReplyStateless, ReplySession, ReplyWindow:
	default:
		return fmt.Errorf("config: unknown reply mode %q", c.Reply.Mode)
	}
	if c.Reply.HistorySize < 2 || c.Reply.HistorySize%2 != 0 {
		return fmt.Errorf("config: history size must be an even number >= 2, got %d", c.Reply.HistorySize)
	}

	switch c.Emotion.Speech {
	case EmotionSpeechOff, EmotionSpeechCanned, EmotionSpeechGenerated:
	default:
		return fmt.Errorf("config: unknown emotion speech mode %q", c.Emotion.Speech)
	}

	if c.Speech.MaxAge < minAudioMaxAge || c.Speech.MaxAge > maxAudioMaxAge {
		return fmt.Errorf("config: audio max age %s out of range [%s, %s]", c.Speech.MaxAge, minAudioMaxAge, maxAudioMaxAge)
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return errors.New("config: TELEGRAM_BOT_TOKEN required when bridge is enabled")
		}
		if c.Telegram.AllowedID == 0 {
			return errors.New("config: TELEGRAM_ALLOWED_ID required when bridge is enabled")
		}
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
