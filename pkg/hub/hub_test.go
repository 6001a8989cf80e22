package hub

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/teslashibe/go-kai/pkg/protocol"
)

// fakeConn feeds queued reads and records writes.
type fakeConn struct {
	in     chan []byte
	mu     sync.Mutex
	writes [][]byte
	binary int
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 16), closed: make(chan struct{})}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-f.in:
		return websocket.TextMessage, data, nil
	case <-f.closed:
		return 0, nil, io.EOF
	}
}

func (f *fakeConn) WriteMessage(mt int, data []byte) error {
	if mt == websocket.BinaryMessage {
		f.mu.Lock()
		f.binary++
		f.mu.Unlock()
		return nil
	}
	if mt != websocket.TextMessage {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, append([]byte(nil), data...))
	return nil
}

func (f *fakeConn) SetReadLimit(int64) {}
func (f *fakeConn) SetReadDeadline(time.Time) error { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (f *fakeConn) SetPongHandler(func(string) error) {}
func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) written() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.writes...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSendTargetsOneClient(t *testing.T) {
	h := New(quiet())
	a, b := newFakeConn(), newFakeConn()
	ca := NewClient(h, "a", a)
	cb := NewClient(h, "b", b)
	go ca.Run(nil)
	go cb.Run(nil)
	defer a.Close()
	defer b.Close()

	msg, _ := protocol.NewResponseMessage("only for a")
	if err := h.SendEvent("a", msg); err != nil {
		t.Fatalf("SendEvent: %v", err)
	}

	waitFor(t, func() bool { return len(a.written()) == 1 })
	time.Sleep(20 * time.Millisecond)
	if n := len(b.written()); n != 0 {
		t.Errorf("client b got %d messages, want 0", n)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.binary != 0 {
		t.Errorf("client a got %d binary frames, want text only", a.binary)
	}
}

func TestSendUnknownClient(t *testing.T) {
	h := New(quiet())
	if err := h.Send("missing", NewJSONMessage([]byte(`{}`))); !errors.Is(err, ErrNoClient) {
		t.Errorf("err = %v, want ErrNoClient", err)
	}
}

func TestBroadcastReachesAll(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := New(quiet())
	go h.Run(ctx)

	conns := []*fakeConn{newFakeConn(), newFakeConn(), newFakeConn()}
	for i, c := range conns {
		cl := NewClient(h, string(rune('a'+i)), c)
		go cl.Run(nil)
		defer c.Close()
	}

	msg, _ := protocol.NewResponseMessage("hello everyone")
	if err := h.BroadcastEvent(msg); err != nil {
		t.Fatal(err)
	}
	for _, c := range conns {
		waitFor(t, func() bool { return len(c.written()) == 1 })
	}
}

func TestInboundHandlerAndDisconnect(t *testing.T) {
	h := New(quiet())
	conn := newFakeConn()
	client := NewClient(h, "x", conn)

	var mu sync.Mutex
	var got []protocol.MessageType
	done := make(chan struct{})
	go func() {
		client.Run(func(id string, msg *protocol.Message) {
			if id != "x" {
				t.Errorf("id = %q", id)
			}
			mu.Lock()
			got = append(got, msg.Type)
			mu.Unlock()
		})
		close(done)
	}()

	conn.in <- []byte(`not json`)
	conn.in <- []byte(`{"type":"chat","data":{"message":"hi"}}`)
	conn.in <- []byte(`{"type":"ping"}`)
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	})

	conn.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after close")
	}
	if n := h.ClientCount(); n != 0 {
		t.Errorf("ClientCount = %d, want 0", n)
	}
	if got[0] != protocol.TypeChat || got[1] != protocol.TypePing {
		t.Errorf("got = %v", got)
	}
}

func TestReconnectSameIDReplacesClient(t *testing.T) {
	h := New(quiet())
	first, second := newFakeConn(), newFakeConn()
	c1 := NewClient(h, "dup", first)
	NewClient(h, "dup", second)
	if n := h.ClientCount(); n != 1 {
		t.Fatalf("ClientCount = %d, want 1", n)
	}

	// Removing the stale client must not evict its replacement.
	h.remove(c1)
	if n := h.ClientCount(); n != 1 {
		t.Errorf("ClientCount after stale remove = %d, want 1", n)
	}
}

func TestRunClosesClientsOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := New(quiet())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()
	NewClient(h, "a", newFakeConn())
	cancel()
	<-stopped
	if n := h.ClientCount(); n != 0 {
		t.Errorf("ClientCount = %d, want 0", n)
	}
}
