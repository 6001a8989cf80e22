package tts_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/go-kai/pkg/tts"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMockProvider(t *testing.T) {
	mock := tts.NewMock()
	ctx := context.Background()

	t.Run("Synthesize returns audio", func(t *testing.T) {
		result, err := mock.Synthesize(ctx, "Hello world")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(result.Audio) == 0 {
			t.Error("expected audio data")
		}
		if result.CharCount != 11 {
			t.Errorf("expected 11 chars, got %d", result.CharCount)
		}
		if result.Encoding.Ext() != ".mp3" {
			t.Errorf("expected .mp3, got %s", result.Encoding.Ext())
		}
	})

	t.Run("Calls are tracked", func(t *testing.T) {
		mock.Health(ctx)
		if mock.CallCount("Synthesize") != 1 {
			t.Errorf("expected 1 Synthesize call, got %d", mock.CallCount("Synthesize"))
		}
		if last := mock.LastCall(); last == nil || last.Method != "Health" {
			t.Errorf("unexpected last call: %+v", last)
		}
	})

	t.Run("Reset clears calls", func(t *testing.T) {
		mock.Reset()
		if len(mock.Calls()) != 0 {
			t.Error("expected no calls after reset")
		}
	})
}

func TestChainFallback(t *testing.T) {
	ctx := context.Background()

	failing := tts.WithError(&tts.APIError{StatusCode: 503, Provider: "google"})
	working := tts.NewMock()

	chain, err := tts.NewChainWithLogger(quiet(), failing, working)
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}

	result, err := chain.Synthesize(ctx, "hi")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(result.Audio) == 0 {
		t.Error("expected audio from fallback")
	}
	if failing.CallCount("Synthesize") != 1 || working.CallCount("Synthesize") != 1 {
		t.Error("expected both providers to be tried once")
	}
}

func TestChainAllFail(t *testing.T) {
	chain, _ := tts.NewChainWithLogger(quiet(),
		tts.WithError(errors.New("one")),
		tts.WithError(&tts.APIError{StatusCode: 401, Provider: "openai"}),
	)

	_, err := chain.Synthesize(context.Background(), "hi")
	var chainErr *tts.ChainError
	if !errors.As(err, &chainErr) || len(chainErr.Errors) != 2 {
		t.Fatalf("expected ChainError with 2 errors, got %v", err)
	}
	var apiErr *tts.APIError
	if !errors.As(err, &apiErr) || !apiErr.IsUnauthorized() {
		t.Errorf("expected unauthorized APIError in chain, got %v", err)
	}
}

func TestChainRequiresProvider(t *testing.T) {
	if _, err := tts.NewChain(); !errors.Is(err, tts.ErrProviderUnavailable) {
		t.Errorf("err = %v", err)
	}
}

func TestOpenAISynthesize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Errorf("Authorization = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"voice":"shimmer"`) {
			t.Errorf("body = %s", body)
		}
		w.Write([]byte("mp3"))
	}))
	defer srv.Close()

	p, err := tts.NewOpenAI(tts.WithAPIKey("key"), tts.WithBaseURL(srv.URL), tts.WithLogger(quiet()))
	if err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}
	result, err := p.Synthesize(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(result.Audio) != "mp3" {
		t.Errorf("audio = %q", result.Audio)
	}
}

func TestOpenAIRequiresKey(t *testing.T) {
	if _, err := tts.NewOpenAI(); !errors.Is(err, tts.ErrNoAPIKey) {
		t.Errorf("err = %v", err)
	}
}

func TestElevenLabsRetriesThenFails(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if !strings.HasPrefix(r.URL.Path, "/text-to-speech/voice-1") {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"detail":{"message":"quota exceeded","status":"quota_exceeded"}}`))
	}))
	defer srv.Close()

	p, err := tts.NewElevenLabs(
		tts.WithAPIKey("key"),
		tts.WithVoice("voice-1"),
		tts.WithBaseURL(srv.URL),
		tts.WithRetry(1, time.Millisecond),
		tts.WithLogger(quiet()),
	)
	if err != nil {
		t.Fatalf("NewElevenLabs: %v", err)
	}

	_, err = p.Synthesize(context.Background(), "hello")
	var apiErr *tts.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if !apiErr.IsRateLimited() || apiErr.Message != "quota exceeded" {
		t.Errorf("apiErr = %+v", apiErr)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestElevenLabsRequiresVoice(t *testing.T) {
	if _, err := tts.NewElevenLabs(tts.WithAPIKey("k")); !errors.Is(err, tts.ErrNoVoiceID) {
		t.Errorf("err = %v", err)
	}
}
