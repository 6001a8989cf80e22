// Package reply produces Kai's conversational replies.
//
// A Strategy decides how much conversation a session remembers:
//
//   - Stateless sends only the persona and the current message.
//   - ChatHandle keeps an unbounded transcript for the life of the session.
//   - Window keeps the last few exchanges in a bounded history.Buffer.
//
// Responder wraps a strategy's conversations with the "always answer"
// contract: backend failures become fixed fallback text.
package reply

import (
	"context"
	"fmt"
	"sync"

	"github.com/teslashibe/go-kai/pkg/history"
	"github.com/teslashibe/go-kai/pkg/inference"
)

// Conversation is one session's view of the reply backend.
type Conversation interface {
	// Reply answers text. Failed calls leave the conversation unchanged.
	// Calls on one conversation must not overlap.
	Reply(ctx context.Context, text string) (string, error)

	// Messages returns the remembered turns, oldest first.
	Messages() []history.Message
}

// Strategy opens a Conversation per session.
type Strategy interface {
	Name() string
	Open() (Conversation, error)
}

// Options shared by all strategies.
type Options struct {
	System      string
	Model       string
	MaxTokens   int
	Temperature float64
}

func (o Options) request(msgs []inference.Message) *inference.ChatRequest {
	system := o.System
	if system == "" {
		system = Persona
	}
	return &inference.ChatRequest{
		System:      system,
		Messages:    msgs,
		Model:       o.Model,
		MaxTokens:   o.MaxTokens,
		Temperature: o.Temperature,
	}
}

func ask(ctx context.Context, p inference.Provider, req *inference.ChatRequest) (string, error) {
	resp, err := p.Chat(ctx, req)
	if err != nil {
		return "", err
	}
	text := resp.Text()
	if text == "" {
		return "", inference.ErrEmptyResponse
	}
	return text, nil
}

// Stateless remembers nothing between calls.
type Stateless struct {
	provider inference.Provider
	opts     Options
}

// NewStateless creates a stateless strategy.
func NewStateless(p inference.Provider, opts Options) *Stateless {
	return &Stateless{provider: p, opts: opts}
}

func (s *Stateless) Name() string { return "stateless" }

func (s *Stateless) Open() (Conversation, error) {
	return statelessConversation{s}, nil
}

type statelessConversation struct{ s *Stateless }

func (c statelessConversation) Reply(ctx context.Context, text string) (string, error) {
	return ask(ctx, c.s.provider, c.s.opts.request([]inference.Message{inference.NewUserMessage(text)}))
}

func (c statelessConversation) Messages() []history.Message { return nil }

// ChatHandle keeps the full transcript of each session.
type ChatHandle struct {
	provider inference.Provider
	opts     Options
}

// NewChatHandle creates a session-memory strategy.
func NewChatHandle(p inference.Provider, opts Options) *ChatHandle {
	return &ChatHandle{provider: p, opts: opts}
}

func (s *ChatHandle) Name() string { return "session" }

func (s *ChatHandle) Open() (Conversation, error) {
	return &chatHandleConversation{s: s}, nil
}

type chatHandleConversation struct {
	s          *ChatHandle
	mu         sync.Mutex
	transcript []history.Message
}

func (c *chatHandleConversation) Reply(ctx context.Context, text string) (string, error) {
	msgs := toInference(c.Messages())
	msgs = append(msgs, inference.NewUserMessage(text))

	// The lock is not held across the call; callers serialize turns.
	out, err := ask(ctx, c.s.provider, c.s.opts.request(msgs))
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.transcript = append(c.transcript,
		history.Message{Role: history.RoleUser, Text: text},
		history.Message{Role: history.RoleModel, Text: out},
	)
	c.mu.Unlock()
	return out, nil
}

func (c *chatHandleConversation) Messages() []history.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]history.Message, len(c.transcript))
	copy(out, c.transcript)
	return out
}

// Window replays a bounded history with every request.
type Window struct {
	provider inference.Provider
	opts     Options
	capacity int
}

// NewWindow creates a sliding-window strategy. capacity counts messages
// and must be even.
func NewWindow(p inference.Provider, opts Options, capacity int) (*Window, error) {
	if _, err := history.New(capacity); err != nil {
		return nil, fmt.Errorf("reply: %w", err)
	}
	return &Window{provider: p, opts: opts, capacity: capacity}, nil
}

func (s *Window) Name() string { return "window" }

func (s *Window) Open() (Conversation, error) {
	buf, err := history.New(s.capacity)
	if err != nil {
		return nil, err
	}
	return &windowConversation{s: s, buf: buf}, nil
}

type windowConversation struct {
	s   *Window
	buf *history.Buffer
}

func (c *windowConversation) Reply(ctx context.Context, text string) (string, error) {
	msgs := toInference(c.buf.Messages())
	msgs = append(msgs, inference.NewUserMessage(text))

	out, err := ask(ctx, c.s.provider, c.s.opts.request(msgs))
	if err != nil {
		return "", err
	}
	c.buf.AppendPair(text, out)
	return out, nil
}

func (c *windowConversation) Messages() []history.Message {
	return c.buf.Messages()
}

func toInference(msgs []history.Message) []inference.Message {
	out := make([]inference.Message, 0, len(msgs)+1)
	for _, m := range msgs {
		if m.Role == history.RoleModel {
			out = append(out, inference.NewAssistantMessage(m.Text))
		} else {
			out = append(out, inference.NewUserMessage(m.Text))
		}
	}
	return out
}

// Verify strategies implement Strategy at compile time.
var (
	_ Strategy = (*Stateless)(nil)
	_ Strategy = (*ChatHandle)(nil)
	_ Strategy = (*Window)(nil)
)
