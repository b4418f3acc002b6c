package types

import (
	"fmt"
	"time"
)

// Sender identifies who produced a Message.
type Sender string

const (
	// SenderUser marks text typed by a human observer.
	SenderUser Sender = "user"

	// SenderEntity marks a reply produced on behalf of the entity.
	SenderEntity Sender = "entity"

	// SenderSystem marks an autonomous action notice.
	SenderSystem Sender = "system"
)

// IsValid reports whether s is one of the known senders.
func (s Sender) IsValid() bool {
	switch s {
	case SenderUser, SenderEntity, SenderSystem:
		return true
	default:
		return false
	}
}

// ParseSender converts a stored sender value back into a Sender.
func ParseSender(s string) (Sender, error) {
	sender := Sender(s)
	if !sender.IsValid() {
		return "", fmt.Errorf("unknown sender %q", s)
	}
	return sender, nil
}

// Message is one append-only entry in an entity's history.
type Message struct {
	ID        string    `json:"id"`
	EntityID  string    `json:"token_id"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}
