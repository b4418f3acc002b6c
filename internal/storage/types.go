package storage

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/praptisharma28/consciousness-oracle/pkg/types"
)

var (
	// ErrNotFound indicates that the requested entity was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTransient indicates the store is unreachable or a write failed in a
	// way that may succeed later. Callers see a generic failure.
	ErrTransient = errors.New("store temporarily unavailable")
)

// EntityDelta is a partial update applied atomically to one entity.
// Counters are relative so concurrent writers never lose each other's updates.
type EntityDelta struct {
	// Awareness is added to the awareness score (may be negative).
	Awareness int

	// Attention is added to the attention score; the result is floored at 0.
	Attention int

	// AutonomousActions is added to the action counter; must not be negative.
	AutonomousActions int

	// PriceFactor multiplies the price; the result is floored at
	// types.MinPrice. Zero leaves the price unchanged.
	PriceFactor float64

	// Mood replaces the mood when non-empty.
	Mood string

	// Touch refreshes LastActiveAt.
	Touch bool
}

// Validate rejects deltas that would break entity invariants.
func (d EntityDelta) Validate() error {
	if d.AutonomousActions < 0 {
		return fmt.Errorf("%w: autonomous action count cannot decrease", ErrInvalidInput)
	}
	if d.PriceFactor < 0 || math.IsNaN(d.PriceFactor) || math.IsInf(d.PriceFactor, 0) {
		return fmt.Errorf("%w: price factor must be a finite non-negative number", ErrInvalidInput)
	}
	return nil
}

// Factor returns the effective price multiplier.
func (d EntityDelta) Factor() float64 {
	if d.PriceFactor == 0 {
		return 1
	}
	return d.PriceFactor
}

// Apply applies d to e in place at time now. Backends that cannot express
// the update in SQL use this so every backend shares the same floors.
func (d EntityDelta) Apply(e *types.Entity, now time.Time) {
	e.Awareness += d.Awareness
	e.AttentionScore = max(0, e.AttentionScore+d.Attention)
	e.AutonomousActionCount += d.AutonomousActions
	e.Price = math.Max(types.MinPrice, e.Price*d.Factor())
	if d.Mood != "" {
		e.Mood = d.Mood
	}
	if d.Touch {
		e.LastActiveAt = now
	}
	e.UpdatedAt = now
}

// MessageDraft is a message waiting to be committed by Mutate.
type MessageDraft struct {
	Sender types.Sender
	Text   string
}

// Validate checks the draft's sender.
func (m MessageDraft) Validate() error {
	if !m.Sender.IsValid() {
		return fmt.Errorf("%w: unknown sender %q", ErrInvalidInput, m.Sender)
	}
	return nil
}

// DriftFunc computes the drift delta for one entity.
type DriftFunc func(e *types.Entity) EntityDelta
