package reply

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/teslashibe/go-kai/pkg/diag"
	"github.com/teslashibe/go-kai/pkg/emotion"
	"github.com/teslashibe/go-kai/pkg/history"
	"github.com/teslashibe/go-kai/pkg/inference"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// echoProvider answers "re: <last user message>".
func echoProvider() *inference.Mock {
	m := inference.NewMock()
	m.ChatFunc = func(ctx context.Context, req *inference.ChatRequest) (*inference.ChatResponse, error) {
		last := req.Messages[len(req.Messages)-1].Content
		return &inference.ChatResponse{Message: inference.NewAssistantMessage("re: " + last)}, nil
	}
	return m
}

func TestStatelessSendsOnlyCurrentMessage(t *testing.T) {
	p := echoProvider()
	conv, _ := NewStateless(p, Options{}).Open()

	conv.Reply(context.Background(), "one")
	out, err := conv.Reply(context.Background(), "two")
	if err != nil || out != "re: two" {
		t.Fatalf("Reply = %q, %v", out, err)
	}

	reqs := p.ChatRequests()
	if len(reqs[1].Messages) != 1 {
		t.Errorf("stateless request carried %d messages", len(reqs[1].Messages))
	}
	if reqs[1].System != Persona {
		t.Error("expected default persona as system instruction")
	}
	if conv.Messages() != nil {
		t.Error("stateless conversation should remember nothing")
	}
}

func TestChatHandleAccumulates(t *testing.T) {
	p := echoProvider()
	conv, _ := NewChatHandle(p, Options{}).Open()

	for i := 1; i <= 7; i++ {
		if _, err := conv.Reply(context.Background(), fmt.Sprintf("m%d", i)); err != nil {
			t.Fatal(err)
		}
	}
	if n := len(conv.Messages()); n != 14 {
		t.Errorf("transcript len = %d, want 14", n)
	}
	reqs := p.ChatRequests()
	if n := len(reqs[6].Messages); n != 13 {
		t.Errorf("7th request carried %d messages, want 13", n)
	}
}

func TestWindowBoundsHistory(t *testing.T) {
	p := echoProvider()
	w, err := NewWindow(p, Options{}, history.DefaultCapacity)
	if err != nil {
		t.Fatal(err)
	}
	conv, _ := w.Open()

	for i := 1; i <= 8; i++ {
		conv.Reply(context.Background(), fmt.Sprintf("u%d", i))
	}

	msgs := conv.Messages()
	if len(msgs) != 10 {
		t.Fatalf("window len = %d, want 10", len(msgs))
	}
	if msgs[0].Text != "u4" || msgs[1].Text != "re: u4" {
		t.Errorf("oldest kept pair = %+v %+v, want u4", msgs[0], msgs[1])
	}

	// The 8th request is seeded with pairs 3..7 plus the new message.
	reqs := p.ChatRequests()
	last := reqs[7].Messages
	if len(last) != 11 || last[0].Content != "u3" || last[10].Content != "u8" {
		t.Errorf("8th request = %+v", last)
	}
	if last[1].Role != inference.RoleAssistant {
		t.Errorf("model turns must be sent as assistant, got %q", last[1].Role)
	}
}

func TestWindowRejectsOddCapacity(t *testing.T) {
	if _, err := NewWindow(echoProvider(), Options{}, 5); !errors.Is(err, history.ErrCapacity) {
		t.Errorf("err = %v", err)
	}
}

func TestFailedReplyLeavesHistoryUnchanged(t *testing.T) {
	p := inference.WithError(errors.New("down"))
	w, _ := NewWindow(p, Options{}, 4)
	conv, _ := w.Open()

	if _, err := conv.Reply(context.Background(), "hello"); err == nil {
		t.Fatal("expected error")
	}
	if len(conv.Messages()) != 0 {
		t.Error("failed call must not be recorded")
	}
}

func TestResponderFallbackOnBackendError(t *testing.T) {
	counters := diag.New()
	p := inference.WithError(&inference.APIError{StatusCode: 429, Provider: "gemini"})
	r := NewResponder(ResponderConfig{
		Strategy: NewStateless(p, Options{}),
		Provider: p,
		Counters: counters,
		Logger:   quiet(),
	})

	got := r.Reply(context.Background(), r.Open(), "I feel stuck")
	if got != FallbackError {
		t.Errorf("Reply = %q, want fallback", got)
	}
	if counters.Snapshot().Errors["reply/quota"] != 1 {
		t.Errorf("counters = %+v", counters.Snapshot().Errors)
	}
}

func TestResponderEmptyResponseFallsBack(t *testing.T) {
	r := NewResponder(ResponderConfig{
		Strategy: NewStateless(inference.WithReply("   "), Options{}),
		Logger:   quiet(),
	})
	if got := r.Reply(context.Background(), r.Open(), "hi"); got != FallbackError {
		t.Errorf("Reply = %q", got)
	}
}

func TestResponderOffline(t *testing.T) {
	r := NewResponder(ResponderConfig{Logger: quiet()})
	if r.Available() {
		t.Error("expected unavailable responder")
	}
	if conv := r.Open(); conv != nil {
		t.Error("Open should return nil without backend")
	}
	if got := r.Reply(context.Background(), nil, "hello"); got != FallbackOffline {
		t.Errorf("Reply = %q", got)
	}
	if got := r.ForEmotion(context.Background(), emotion.Sad); got != FallbackOffline {
		t.Errorf("ForEmotion = %q", got)
	}
}

func TestForEmotionPrompt(t *testing.T) {
	p := inference.WithReply("You seem sad. I'm here.")
	r := NewResponder(ResponderConfig{Strategy: NewStateless(p, Options{}), Provider: p, Logger: quiet()})

	if got := r.ForEmotion(context.Background(), emotion.Sad); got != "You seem sad. I'm here." {
		t.Errorf("ForEmotion = %q", got)
	}
	reqs := p.ChatRequests()
	if len(reqs) != 1 || !strings.Contains(reqs[0].Messages[0].Content, "'SAD'") {
		t.Errorf("prompt = %+v", reqs)
	}
}

func TestCanned(t *testing.T) {
	if _, ok := Canned(emotion.Neutral); ok {
		t.Error("neutral should have no canned reply")
	}
	for _, l := range []emotion.Label{emotion.Happy, emotion.Sad, emotion.Angry, emotion.Fear, emotion.Surprise, emotion.Disgust} {
		if s, ok := Canned(l); !ok || s == "" {
			t.Errorf("missing canned reply for %s", l)
		}
	}
}
