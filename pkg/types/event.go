package types

// EventType names a push message sent to observers.
type EventType string

const (
	// EventConsciousnessUpdate carries the full entity list with histories.
	EventConsciousnessUpdate EventType = "consciousness_update"

	// EventAttentionUpdate carries the global attention total.
	EventAttentionUpdate EventType = "attention_update"
)

// Event is a snapshot pushed to every registered observer.
type Event interface {
	EventType() EventType
}

// EntitiesChanged is published after every committed mutation.
type EntitiesChanged struct {
	Type   EventType         `json:"type"`
	Tokens []*EntitySnapshot `json:"tokens"`
}

// NewEntitiesChanged builds an EntitiesChanged event. A nil list encodes as [].
func NewEntitiesChanged(tokens []*EntitySnapshot) *EntitiesChanged {
	if tokens == nil {
		tokens = []*EntitySnapshot{}
	}
	return &EntitiesChanged{Type: EventConsciousnessUpdate, Tokens: tokens}
}

// EventType implements Event.
func (e *EntitiesChanged) EventType() EventType { return EventConsciousnessUpdate }

// AttentionChanged carries the recomputed global attention.
type AttentionChanged struct {
	Type           EventType `json:"type"`
	TotalAttention int       `json:"totalAttention"`
}

// NewAttentionChanged builds an AttentionChanged event.
func NewAttentionChanged(total int) *AttentionChanged {
	return &AttentionChanged{Type: EventAttentionUpdate, TotalAttention: total}
}

// EventType implements Event.
func (e *AttentionChanged) EventType() EventType { return EventAttentionUpdate }
