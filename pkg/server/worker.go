package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-kai/pkg/diag"
	"github.com/teslashibe/go-kai/pkg/hub"
	"github.com/teslashibe/go-kai/pkg/kai"
	"github.com/teslashibe/go-kai/pkg/protocol"
)

// chatQueue bounds typed messages waiting behind a slow reply.
const chatQueue = 16

// worker processes one connection's inbound events off the read loop.
// Frames go through a single-slot mailbox so only the newest waits;
// chats are handled in arrival order on their own goroutine so a slow
// reply never stalls emotion updates.
type worker struct {
	id       string
	kai      *kai.Orchestrator
	hub      *hub.Hub
	counters *diag.Counters
	logger   *slog.Logger

	frames chan string
	chats  chan string
	wg     sync.WaitGroup
}

func newWorker(id string, k *kai.Orchestrator, h *hub.Hub, counters *diag.Counters, logger *slog.Logger) *worker {
	return &worker{
		id:       id,
		kai:      k,
		hub:      h,
		counters: counters,
		logger:   logger,
		frames:   make(chan string, 1),
		chats:    make(chan string, chatQueue),
	}
}

func (w *worker) start(ctx context.Context) {
	w.wg.Add(2)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case f := <-w.frames:
				w.kai.HandleFrame(ctx, w.id, f)
			}
		}
	}()
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case text := <-w.chats:
				w.kai.HandleChat(ctx, w.id, text)
			}
		}
	}()
}

func (w *worker) wait() {
	w.wg.Wait()
}

// dispatch is the hub read-loop handler. It never blocks.
func (w *worker) dispatch(id string, msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeFrame:
		url, err := msg.FrameURL()
		if err != nil {
			return
		}
		w.offerFrame(url)

	case protocol.TypeChat:
		var data protocol.ChatData
		if err := msg.ParseData(&data); err != nil {
			return
		}
		select {
		case w.chats <- data.Message:
		default:
			w.counters.Event("chats_dropped")
			w.logger.Warn("chat queue full, dropping message", "id", id)
		}

	case protocol.TypePing:
		var ping protocol.PingData
		msg.ParseData(&ping)
		if pong, err := protocol.NewPongMessage(&ping); err == nil {
			w.hub.SendEvent(id, pong)
		}

	default:
		w.logger.Debug("ignoring message", "id", id, "type", msg.Type)
	}
}

// offerFrame replaces any frame still waiting in the mailbox.
func (w *worker) offerFrame(f string) {
	for {
		select {
		case w.frames <- f:
			return
		default:
		}
		select {
		case <-w.frames:
			w.counters.Event("frames_dropped")
		default:
		}
	}
}
