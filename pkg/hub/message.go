// Package hub tracks websocket connections by id and routes outbound
// messages to one client or all of them through each client's single
// writer goroutine.
package hub

import (
	"github.com/teslashibe/go-kai/pkg/protocol"
)

// Message is an encoded JSON frame queued for a client.
type Message struct {
	Data []byte
}

// NewJSONMessage creates a message from pre-encoded JSON.
func NewJSONMessage(data []byte) Message {
	return Message{Data: data}
}

// Encode turns a protocol envelope into a queued JSON message.
func Encode(msg *protocol.Message) (Message, error) {
	data, err := msg.Bytes()
	if err != nil {
		return Message{}, err
	}
	return NewJSONMessage(data), nil
}
