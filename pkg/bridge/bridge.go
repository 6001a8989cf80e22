// Package bridge relays chat between browsers and a human operator over
// Telegram. Browser text goes out as bot messages to the operator; the
// operator's messages arrive on the webhook and are handed back for
// broadcast.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/teslashibe/go-kai/pkg/diag"
)

var (
	// ErrNoMessage is returned for updates without a text message.
	ErrNoMessage = errors.New("bridge: update has no text message")

	// ErrUnauthorized is returned when the sender is not the operator.
	ErrUnauthorized = errors.New("bridge: sender not allowed")
)

// Sender sends a bot message. *tgbotapi.BotAPI satisfies it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

var _ Sender = (*tgbotapi.BotAPI)(nil)

// Inbound is an operator message taken from a webhook update.
type Inbound struct {
	SenderID int64
	ChatID   int64
	Text     string
}

// Bridge forwards browser chat to the operator and authorizes replies.
type Bridge struct {
	bot       Sender
	allowedID int64
	counters  *diag.Counters
	logger    *slog.Logger
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithCounters records relay failures.
func WithCounters(c *diag.Counters) Option {
	return func(b *Bridge) { b.counters = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) { b.logger = l }
}

// New creates a Bridge that talks to the operator with the given id.
// In a private chat the operator's user id is also the chat id.
func New(bot Sender, allowedID int64, opts ...Option) *Bridge {
	b := &Bridge{
		bot:       bot,
		allowedID: allowedID,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "bridge")
	return b
}

// Dial connects to the Bot API with token using client.
func Dial(token string, client *http.Client) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("bridge: connect bot: %w", err)
	}
	return bot, nil
}

// Forward relays browser text from session to the operator.
func (b *Bridge) Forward(ctx context.Context, session, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(b.allowedID, fmt.Sprintf("[%s] %s", shortID(session), text))
	if _, err := b.bot.Send(msg); err != nil {
		b.counters.Error(diag.KindBridge, "send")
		b.logger.Error("relay to operator failed", "session", session, "error", err)
		return fmt.Errorf("bridge: send: %w", err)
	}
	b.counters.Event("bridge_forwarded")
	return nil
}

// Parse decodes a webhook body into an Inbound message.
func Parse(body []byte) (Inbound, error) {
	var update tgbotapi.Update
	if err := json.Unmarshal(body, &update); err != nil {
		return Inbound{}, fmt.Errorf("bridge: decode update: %w", err)
	}
	m := update.Message
	if m == nil || m.From == nil || strings.TrimSpace(m.Text) == "" {
		return Inbound{}, ErrNoMessage
	}
	in := Inbound{SenderID: m.From.ID, Text: m.Text}
	if m.Chat != nil {
		in.ChatID = m.Chat.ID
	}
	return in, nil
}

// Receive parses a webhook body and returns the text to relay when the
// sender is the operator. Malformed bodies and other senders yield an
// error; the caller still answers 200.
func (b *Bridge) Receive(body []byte) (string, error) {
	in, err := Parse(body)
	if err != nil {
		b.logger.Debug("ignoring webhook update", "error", err)
		return "", err
	}
	if in.SenderID != b.allowedID {
		b.counters.Event("bridge_unauthorized")
		b.logger.Warn("dropping message from unknown sender", "sender", in.SenderID)
		return "", ErrUnauthorized
	}
	b.counters.Event("bridge_received")
	return in.Text, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
