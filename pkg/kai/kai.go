// Package kai sequences each browser event across the emotion classifier,
// command interceptor, reply generator and speech synthesizer, and emits the
// results back to the originating connection.
package kai

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/teslashibe/go-kai/pkg/command"
	"github.com/teslashibe/go-kai/pkg/diag"
	"github.com/teslashibe/go-kai/pkg/emotion"
	"github.com/teslashibe/go-kai/pkg/protocol"
	"github.com/teslashibe/go-kai/pkg/reply"
	"github.com/teslashibe/go-kai/pkg/session"
)

// SpeechMode selects what, if anything, is said about a detected emotion.
type SpeechMode string

const (
	SpeechOff       SpeechMode = "off"
	SpeechCanned    SpeechMode = "canned"
	SpeechGenerated SpeechMode = "generated"
)

// DefaultCooldown is the minimum gap between two spoken emotion reactions
// in one session.
const DefaultCooldown = 8 * time.Second

// Emitter delivers events to browsers. *hub.Hub satisfies it.
type Emitter interface {
	SendEvent(id string, msg *protocol.Message) error
	BroadcastEvent(msg *protocol.Message) error
}

// Classifier labels a data-URL frame. *emotion.Adapter satisfies it.
type Classifier interface {
	Classify(ctx context.Context, dataURL string) (emotion.Label, bool)
}

// Commander intercepts local commands. *command.Interceptor satisfies it.
type Commander interface {
	Handle(ctx context.Context, text string) (command.Match, bool)
}

// Speaker turns text into a clip URL. *speech.Speaker satisfies it.
type Speaker interface {
	Enabled() bool
	Speak(ctx context.Context, text string) (string, bool)
}

// Relay carries chat to and from a human operator. *bridge.Bridge
// satisfies it.
type Relay interface {
	Forward(ctx context.Context, session, text string) error
	Receive(body []byte) (string, error)
}

// Config wires an Orchestrator. Every collaborator except Emitter and
// Sessions may be nil, which disables that stage.
type Config struct {
	Emitter  Emitter
	Sessions *session.Registry

	Emotion  Classifier
	Replies  *reply.Responder
	Commands Commander
	Speech   Speaker

	// Bridge, when set, sends chat to the operator instead of Replies.
	Bridge Relay

	EmotionSpeech SpeechMode
	Cooldown      time.Duration

	Counters *diag.Counters
	Logger   *slog.Logger
	Now      func() time.Time
}

// Orchestrator handles connection lifecycle and per-event pipelines.
type Orchestrator struct {
	cfg    Config
	logger *slog.Logger
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.Sessions == nil {
		cfg.Sessions = session.NewRegistry()
	}
	if cfg.EmotionSpeech == "" {
		cfg.EmotionSpeech = SpeechOff
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:    cfg,
		logger: logger.With("component", "kai"),
	}
}

// Sessions returns the registry.
func (o *Orchestrator) Sessions() *session.Registry {
	return o.cfg.Sessions
}

// BridgeMode reports whether chat goes to a human operator.
func (o *Orchestrator) BridgeMode() bool {
	return o.cfg.Bridge != nil
}

// Connect creates the session for id and announces it to the browser.
func (o *Orchestrator) Connect(id string) {
	var conv reply.Conversation
	if !o.BridgeMode() {
		conv = o.cfg.Replies.Open()
	}
	o.cfg.Sessions.Connect(id, conv)
	o.cfg.Counters.Event("sessions_opened")
	o.logger.Info("session started", "id", id, "sessions", o.cfg.Sessions.Len())

	if msg, err := protocol.NewSessionMessage(id); err == nil {
		o.emit(id, msg)
	}
}

// Disconnect discards the session for id and everything it remembered.
func (o *Orchestrator) Disconnect(id string) {
	if o.cfg.Sessions.Disconnect(id) {
		o.logger.Info("session ended", "id", id, "sessions", o.cfg.Sessions.Len())
	}
}

// HandleFrame classifies one frame and emits the detected emotion, with a
// spoken reaction when emotion speech is enabled and the session is not
// cooling down.
func (o *Orchestrator) HandleFrame(ctx context.Context, id, dataURL string) {
	sess, ok := o.cfg.Sessions.Get(id)
	if !ok || o.cfg.Emotion == nil {
		return
	}
	sess.CountFrame()

	label, ok := o.cfg.Emotion.Classify(ctx, dataURL)
	if !ok {
		return
	}
	o.cfg.Counters.Event("emotions_detected")

	audioURL := ""
	if o.wantsSpeech(label) {
		now := o.cfg.Now()
		if sess.CanSpeak(now, o.cfg.Cooldown) {
			// Only a reaction that produced audio starts the cooldown.
			if audioURL = o.speakEmotion(ctx, label); audioURL != "" {
				sess.Spoke(now)
			}
		} else {
			o.cfg.Counters.Event("emotion_speech_suppressed")
		}
	}

	msg, err := protocol.NewEmotionMessage(string(label), audioURL)
	if err != nil {
		return
	}
	o.emit(id, msg)
}

func (o *Orchestrator) wantsSpeech(label emotion.Label) bool {
	if o.cfg.EmotionSpeech == SpeechOff || label == emotion.Neutral {
		return false
	}
	return o.cfg.Speech != nil && o.cfg.Speech.Enabled()
}

func (o *Orchestrator) speakEmotion(ctx context.Context, label emotion.Label) string {
	var text string
	switch o.cfg.EmotionSpeech {
	case SpeechCanned:
		s, ok := reply.Canned(label)
		if !ok {
			return ""
		}
		text = s
	case SpeechGenerated:
		text = o.cfg.Replies.ForEmotion(ctx, label)
	default:
		return ""
	}
	url, _ := o.cfg.Speech.Speak(ctx, text)
	return url
}

// HandleChat answers typed text. Empty text is ignored. Commands take
// precedence over the reply generator; in bridge mode the text goes to
// the operator and the answer arrives later through HandleWebhook.
// The reply is emitted first and its audio follows once synthesized.
func (o *Orchestrator) HandleChat(ctx context.Context, id, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	sess, ok := o.cfg.Sessions.Get(id)
	if !ok {
		o.logger.Debug("chat for unknown session", "id", id)
		return
	}
	sess.CountChat()
	o.cfg.Counters.Event("chat_messages")

	var answer string
	if o.cfg.Commands != nil {
		if m, ok := o.cfg.Commands.Handle(ctx, text); ok {
			o.cfg.Counters.Event("commands_handled")
			answer = m.Confirmation
		}
	}

	if answer == "" {
		if o.BridgeMode() {
			if err := o.cfg.Bridge.Forward(ctx, id, text); err == nil {
				return
			}
			answer = reply.FallbackError
		} else {
			sess.Turn(func() {
				answer = o.cfg.Replies.Reply(ctx, sess.Conversation, text)
			})
		}
	}

	o.respond(ctx, id, answer)
}

func (o *Orchestrator) respond(ctx context.Context, id, text string) {
	msg, err := protocol.NewResponseMessage(text)
	if err != nil {
		return
	}
	o.emit(id, msg)

	if o.cfg.Speech == nil || !o.cfg.Speech.Enabled() {
		return
	}
	url, ok := o.cfg.Speech.Speak(ctx, text)
	if !ok {
		return
	}
	if audio, err := protocol.NewAudioMessage(url); err == nil {
		o.emit(id, audio)
	}
}

// HandleWebhook relays an operator message to every connected browser.
// Bodies from other senders or without text are dropped.
func (o *Orchestrator) HandleWebhook(body []byte) {
	if !o.BridgeMode() {
		return
	}
	text, err := o.cfg.Bridge.Receive(body)
	if err != nil {
		return
	}
	msg, err := protocol.NewResponseMessage(text)
	if err != nil {
		return
	}
	if err := o.cfg.Emitter.BroadcastEvent(msg); err != nil {
		o.logger.Warn("broadcast failed", "error", err)
	}
}

func (o *Orchestrator) emit(id string, msg *protocol.Message) {
	if err := o.cfg.Emitter.SendEvent(id, msg); err != nil {
		o.logger.Debug("emit failed", "id", id, "type", msg.Type, "error", err)
	}
}
