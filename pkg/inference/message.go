package inference

import "strings"

// Role defines message roles in a conversation.
type Role string

const (
	// RoleUser is for user messages.
	RoleUser Role = "user"

	// RoleAssistant is for model responses.
	RoleAssistant Role = "assistant"
)

// Message represents a chat message in a conversation.
type Message struct {
	Role    Role
	Content string
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

func trimText(s string) string {
	return strings.TrimSpace(s)
}
