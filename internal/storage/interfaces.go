// Package storage defines the EntityStore contract shared by the SQLite,
// PostgreSQL and in-memory backends, along with the sentinel errors and
// update types they exchange with the mutation engine.
package storage

import (
	"context"

	"github.com/praptisharma28/consciousness-oracle/pkg/types"
)

// EntityStore is the durable record of entities and their message history.
// It is the single source of truth and the only lock/transaction boundary
// in the system: every per-entity update is one atomic read-modify-write.
type EntityStore interface {
	// List returns every entity ordered by awareness descending (ties by name).
	List(ctx context.Context) ([]*types.Entity, error)

	// Get retrieves an entity by ID.
	// Returns ErrNotFound if the entity doesn't exist.
	Get(ctx context.Context, id string) (*types.Entity, error)

	// Messages returns the entity's history in timestamp order ascending.
	// Returns an empty slice (not an error) for an entity without messages.
	Messages(ctx context.Context, entityID string) ([]*types.Message, error)

	// AppendMessage adds one message to an entity's history.
	// Returns ErrNotFound if the entity doesn't exist.
	AppendMessage(ctx context.Context, entityID string, sender types.Sender, text string) (*types.Message, error)

	// ApplyDelta atomically applies delta to one entity and returns the
	// committed row. Returns ErrNotFound if the entity doesn't exist.
	ApplyDelta(ctx context.Context, id string, delta EntityDelta) (*types.Entity, error)

	// Mutate appends drafts and applies delta in a single transaction, so
	// either all of it commits or none of it does. Returns the committed
	// entity with its history as of that commit, or ErrNotFound if the
	// entity doesn't exist.
	Mutate(ctx context.Context, id string, drafts []MessageDraft, delta EntityDelta) (*types.EntitySnapshot, error)

	// ApplyDrift computes a delta for every entity with fn and applies each
	// one atomically per entity. A failure on one entity does not block the
	// others: the successfully updated entities are returned together with
	// the joined per-entity errors.
	ApplyDrift(ctx context.Context, fn DriftFunc) ([]*types.Entity, error)

	// TotalAttention returns the live sum of attention over all entities.
	TotalAttention(ctx context.Context) (int, error)

	// Create inserts a new entity. Used by seeding only.
	Create(ctx context.Context, entity *types.Entity) error

	// Count returns the number of entities.
	Count(ctx context.Context) (int, error)

	// Close releases any resources held by the store.
	Close() error
}

// Pinger is implemented by stores that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}
