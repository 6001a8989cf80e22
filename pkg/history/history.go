// Package history provides a fixed-capacity conversation window.
//
// Buffer keeps the most recent turns of a conversation in a ring. Turns are
// appended in user/model pairs and evicted oldest pair first, so the buffer
// never holds more than its capacity and never starts with a model turn.
package history

import (
	"errors"
	"sync"
)

// Role identifies who produced a message.
type Role string

const (
	// RoleUser is text typed by the person on the call.
	RoleUser Role = "user"

	// RoleModel is text produced by Kai.
	RoleModel Role = "model"
)

// Message is one turn of the conversation.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// DefaultCapacity holds five user/model pairs.
const DefaultCapacity = 10

// ErrCapacity is returned by New for a capacity that cannot hold whole pairs.
var ErrCapacity = errors.New("history: capacity must be an even number >= 2")

// Buffer is a ring of messages. It is safe for concurrent use.
type Buffer struct {
	mu    sync.Mutex
	ring  []Message
	start int // index of the oldest message
	size  int
}

// New creates a buffer holding at most capacity messages.
func New(capacity int) (*Buffer, error) {
	if capacity < 2 || capacity%2 != 0 {
		return nil, ErrCapacity
	}
	return &Buffer{ring: make([]Message, capacity)}, nil
}

// MustNew is New for capacities known to be valid.
func MustNew(capacity int) *Buffer {
	b, err := New(capacity)
	if err != nil {
		panic(err)
	}
	return b
}

// AppendPair records a user message and the model's reply, evicting the
// oldest pair when the buffer is full.
func (b *Buffer) AppendPair(user, model string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.push(Message{Role: RoleUser, Text: user})
	b.push(Message{Role: RoleModel, Text: model})
}

// push must be called with mu held. Capacity is even and pairs are pushed
// together, so overwriting one slot at a time drops whole pairs.
func (b *Buffer) push(m Message) {
	n := len(b.ring)
	if b.size < n {
		b.ring[(b.start+b.size)%n] = m
		b.size++
		return
	}
	b.ring[b.start] = m
	b.start = (b.start + 1) % n
}

// Messages returns a copy of the stored turns, oldest first.
func (b *Buffer) Messages() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Message, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.ring[(b.start+i)%len(b.ring)]
	}
	return out
}

// Len returns the number of stored messages.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Cap returns the maximum number of stored messages.
func (b *Buffer) Cap() int {
	return len(b.ring)
}

// Reset drops every stored message.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.ring)
	b.start, b.size = 0, 0
}
