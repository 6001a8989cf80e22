package bridge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/teslashibe/go-kai/pkg/diag"
)

type mockSender struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
	err  error
}

func (m *mockSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg, ok := c.(tgbotapi.MessageConfig); ok {
		m.sent = append(m.sent, cfg)
	}
	return tgbotapi.Message{}, m.err
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestForward(t *testing.T) {
	bot := &mockSender{}
	b := New(bot, 4242, WithLogger(quiet()))

	if err := b.Forward(context.Background(), "0123456789abcdef", "hello operator"); err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if len(bot.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(bot.sent))
	}
	got := bot.sent[0]
	if got.ChatID != 4242 {
		t.Errorf("ChatID = %d, want 4242", got.ChatID)
	}
	if got.Text != "[01234567] hello operator" {
		t.Errorf("Text = %q", got.Text)
	}
}

func TestForwardFailureCounted(t *testing.T) {
	counters := diag.New()
	b := New(&mockSender{err: errors.New("network down")}, 1, WithCounters(counters), WithLogger(quiet()))

	if err := b.Forward(context.Background(), "s", "hi"); err == nil {
		t.Fatal("expected error")
	}
	if n := counters.Errors(diag.KindBridge); n != 1 {
		t.Errorf("bridge errors = %d, want 1", n)
	}
}

func TestReceive(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr error
	}{
		{
			name: "operator message",
			body: `{"update_id":1,"message":{"message_id":7,"from":{"id":4242,"is_bot":false,"first_name":"Op"},"chat":{"id":4242,"type":"private"},"date":0,"text":"I'm here for you"}}`,
			want: "I'm here for you",
		},
		{
			name:    "stranger",
			body:    `{"update_id":2,"message":{"message_id":8,"from":{"id":99,"is_bot":false,"first_name":"X"},"chat":{"id":99,"type":"private"},"date":0,"text":"let me in"}}`,
			wantErr: ErrUnauthorized,
		},
		{
			name:    "no message",
			body:    `{"update_id":3}`,
			wantErr: ErrNoMessage,
		},
		{
			name:    "empty text",
			body:    `{"update_id":4,"message":{"message_id":9,"from":{"id":4242},"chat":{"id":4242,"type":"private"},"date":0,"text":"  "}}`,
			wantErr: ErrNoMessage,
		},
	}

	b := New(&mockSender{}, 4242, WithLogger(quiet()))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := b.Receive([]byte(tt.body))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("text = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReceiveMalformed(t *testing.T) {
	b := New(&mockSender{}, 1, WithLogger(quiet()))
	if _, err := b.Receive([]byte(`{not json`)); err == nil {
		t.Error("expected decode error")
	}
}
