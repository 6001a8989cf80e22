// Package speech turns reply text into a playable clip URL.
package speech

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/teslashibe/go-kai/pkg/audiostore"
	"github.com/teslashibe/go-kai/pkg/diag"
	"github.com/teslashibe/go-kai/pkg/tts"
)

// Speaker synthesizes text and stores the result for the browser to fetch.
type Speaker struct {
	provider tts.Provider
	store    *audiostore.Store
	counters *diag.Counters
	logger   *slog.Logger
}

// New creates a Speaker. A nil provider yields a Speaker that never
// produces audio.
func New(provider tts.Provider, store *audiostore.Store, counters *diag.Counters, logger *slog.Logger) *Speaker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Speaker{
		provider: provider,
		store:    store,
		counters: counters,
		logger:   logger.With("component", "speech"),
	}
}

// Enabled reports whether synthesis is configured.
func (s *Speaker) Enabled() bool {
	return s != nil && s.provider != nil && s.store != nil
}

// Speak synthesizes text and returns the clip URL. Any failure is logged,
// counted and reported as ok == false.
func (s *Speaker) Speak(ctx context.Context, text string) (url string, ok bool) {
	if !s.Enabled() {
		return "", false
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}

	result, err := s.provider.Synthesize(ctx, text)
	if err != nil {
		s.counters.Error(diag.KindTTS, reason(err))
		s.logger.Warn("synthesis failed", "error", err, "chars", len(text))
		return "", false
	}

	artifact, err := s.store.Write(result.Audio, result.Encoding.Ext())
	if err != nil {
		s.counters.Error(diag.KindTTS, "store")
		s.logger.Warn("store clip failed", "error", err)
		return "", false
	}

	s.logger.Debug("clip ready",
		"url", artifact.URL,
		"bytes", len(result.Audio),
		"latency_ms", result.LatencyMs,
	)
	return artifact.URL, true
}

// Close releases the provider.
func (s *Speaker) Close() error {
	if s == nil || s.provider == nil {
		return nil
	}
	return s.provider.Close()
}

func reason(err error) string {
	var apiErr *tts.APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.IsRateLimited():
		return "quota"
	case errors.As(err, &apiErr) && apiErr.IsUnauthorized():
		return "auth"
	case errors.As(err, &apiErr) && apiErr.IsServerError():
		return "server"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	case errors.Is(err, tts.ErrEmptyAudio):
		return "empty"
	default:
		return "other"
	}
}
