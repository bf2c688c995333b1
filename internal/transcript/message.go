package transcript

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one immutable transcript entry.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"timestamp"`
	IsError   bool      `json:"is_error,omitempty"`
}

func newMessage(role Role, text string, isError bool) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		CreatedAt: time.Now(),
		IsError:   isError,
	}
}

func NewUserMessage(text string) Message {
	return newMessage(RoleUser, text, false)
}

func NewAssistantMessage(text string) Message {
	return newMessage(RoleAssistant, text, false)
}

// NewErrorMessage builds an assistant entry that stands for a failed reply.
func NewErrorMessage(text string) Message {
	return newMessage(RoleAssistant, text, true)
}
