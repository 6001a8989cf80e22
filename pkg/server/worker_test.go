package server

import (
	"testing"

	"github.com/teslashibe/go-kai/pkg/diag"
	"github.com/teslashibe/go-kai/pkg/protocol"
)

func TestFrameMailboxKeepsNewest(t *testing.T) {
	counters := diag.New()
	w := newWorker("s1", nil, nil, counters, quiet())

	for _, f := range []string{"a,1", "a,2", "a,3"} {
		w.offerFrame(f)
	}
	if got := <-w.frames; got != "a,3" {
		t.Errorf("mailbox = %q, want newest frame", got)
	}
	if n := counters.Events("frames_dropped"); n != 2 {
		t.Errorf("frames_dropped = %d, want 2", n)
	}
}

func TestDispatchQueuesChatInOrder(t *testing.T) {
	w := newWorker("s1", nil, nil, diag.New(), quiet())

	for _, text := range []string{"one", "two"} {
		msg, _ := protocol.NewChatMessage(text)
		w.dispatch("s1", msg)
	}
	bad := &protocol.Message{Type: protocol.TypeChat}
	w.dispatch("s1", bad)

	if len(w.chats) != 2 {
		t.Fatalf("queued %d chats, want 2", len(w.chats))
	}
	if <-w.chats != "one" || <-w.chats != "two" {
		t.Error("chats out of order")
	}
}

func TestDispatchChatQueueFull(t *testing.T) {
	counters := diag.New()
	w := newWorker("s1", nil, nil, counters, quiet())

	msg, _ := protocol.NewChatMessage("spam")
	for i := 0; i < chatQueue+3; i++ {
		w.dispatch("s1", msg)
	}
	if n := counters.Events("chats_dropped"); n != 3 {
		t.Errorf("chats_dropped = %d, want 3", n)
	}
}
