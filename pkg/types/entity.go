// Package types defines the wire-level data structures of the oracle:
// entities, their message history and the events pushed to observers.
package types

import "time"

// MinPrice is the floor applied to Entity.Price. Prices never reach zero.
const MinPrice = 0.00001

// Entity is a simulated token whose scores evolve through chat, autonomous
// actions and the periodic drift tick.
//
// JSON keys follow the wire format consumed by the web client, which predates
// this service: awareness is "consciousness" and the attention score is
// "attention".
type Entity struct {
	// Identity (immutable after seeding)
	ID     string `json:"id"`     // Unique identifier (uuid)
	Name   string `json:"name"`   // Display name
	Symbol string `json:"symbol"` // Ticker symbol; keys the reply table

	// Evolving state
	Price                 float64 `json:"price"`              // Never below MinPrice
	Awareness             int     `json:"consciousness"`      // Primary evolving score
	AttentionScore        int     `json:"attention"`          // Never below zero
	Mood                  string  `json:"mood"`               // Selected by mutation logic
	AutonomousActionCount int     `json:"autonomous_actions"` // Monotonically non-decreasing

	// Fixed at creation
	Personality   string            `json:"personality"`
	Traits        []string          `json:"traits"`
	Relationships map[string]string `json:"relationships"` // Entity name -> free-form label

	LastActiveAt time.Time `json:"last_active"` // Refreshed by chat and actions
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Clone returns a deep copy of e.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	c := *e
	if e.Traits != nil {
		c.Traits = append([]string(nil), e.Traits...)
	}
	if e.Relationships != nil {
		c.Relationships = make(map[string]string, len(e.Relationships))
		for k, v := range e.Relationships {
			c.Relationships[k] = v
		}
	}
	return &c
}

// EntitySnapshot is an entity together with its full message history, in the
// shape served by GET /api/tokens and pushed to observers.
type EntitySnapshot struct {
	Entity
	Messages []*Message `json:"messages"`
}

// NewEntitySnapshot pairs e with msgs. A nil history is normalised to an
// empty slice so it encodes as [] rather than null.
func NewEntitySnapshot(e *Entity, msgs []*Message) *EntitySnapshot {
	if msgs == nil {
		msgs = []*Message{}
	}
	return &EntitySnapshot{Entity: *e, Messages: msgs}
}
