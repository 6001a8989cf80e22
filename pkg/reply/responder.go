package reply

import (
	"context"
	"log/slog"
	"time"

	"github.com/teslashibe/go-kai/pkg/diag"
	"github.com/teslashibe/go-kai/pkg/emotion"
	"github.com/teslashibe/go-kai/pkg/inference"
)

// Responder always produces reply text.
type Responder struct {
	strategy Strategy
	provider inference.Provider
	opts     Options
	timeout  time.Duration
	counters *diag.Counters
	logger   *slog.Logger
}

// ResponderConfig wires a Responder. Strategy and Provider may be nil when
// no backend is configured; every reply is then FallbackOffline.
type ResponderConfig struct {
	Strategy Strategy
	Provider inference.Provider // used for one-shot emotion prompts
	Options  Options
	Timeout  time.Duration
	Counters *diag.Counters
	Logger   *slog.Logger
}

// NewResponder creates a Responder.
func NewResponder(cfg ResponderConfig) *Responder {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Responder{
		strategy: cfg.Strategy,
		provider: cfg.Provider,
		opts:     cfg.Options,
		timeout:  cfg.Timeout,
		counters: cfg.Counters,
		logger:   logger.With("component", "reply"),
	}
}

// Available reports whether a backend is configured.
func (r *Responder) Available() bool {
	return r != nil && r.strategy != nil
}

// Open starts a conversation for a new session. It returns nil when no
// backend is configured.
func (r *Responder) Open() Conversation {
	if !r.Available() {
		return nil
	}
	conv, err := r.strategy.Open()
	if err != nil {
		r.logger.Error("open conversation", "strategy", r.strategy.Name(), "error", err)
		return nil
	}
	return conv
}

// Reply answers text within conv, substituting fallback text on failure.
func (r *Responder) Reply(ctx context.Context, conv Conversation, text string) string {
	if conv == nil {
		return FallbackOffline
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	out, err := conv.Reply(ctx, text)
	if err != nil {
		return r.fallback(err)
	}
	r.logger.Debug("reply generated", "chars", len(out), "latency_ms", time.Since(start).Milliseconds())
	return out
}

// ForEmotion asks for a short reaction to label without touching any
// session memory.
func (r *Responder) ForEmotion(ctx context.Context, label emotion.Label) string {
	if r == nil || r.provider == nil {
		return FallbackOffline
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	out, err := ask(ctx, r.provider, r.opts.request([]inference.Message{
		inference.NewUserMessage(EmotionPrompt(label)),
	}))
	if err != nil {
		return r.fallback(err)
	}
	return out
}

func (r *Responder) fallback(err error) string {
	kind := inference.Kind(err)
	r.counters.Error(diag.KindReply, kind)
	r.logger.Warn("reply backend failed, using fallback", "kind", kind, "error", err)
	return FallbackError
}

func (r *Responder) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}
