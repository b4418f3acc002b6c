package engine

import (
	"context"
	"fmt"

	"github.com/praptisharma28/consciousness-oracle/internal/storage"
	"github.com/praptisharma28/consciousness-oracle/pkg/types"
)

// QueryService assembles read-only views from the store. It holds no
// state of its own and is safe for concurrent use.
type QueryService struct {
	store storage.EntityStore
}

// NewQueryService creates a QueryService over store.
func NewQueryService(store storage.EntityStore) *QueryService {
	return &QueryService{store: store}
}

// ListEntities returns every entity with its full history, ordered by
// awareness descending.
func (q *QueryService) ListEntities(ctx context.Context) ([]*types.EntitySnapshot, error) {
	entities, err := q.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}

	snapshots := make([]*types.EntitySnapshot, 0, len(entities))
	for _, e := range entities {
		snap, err := q.snapshot(ctx, e)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}

// Entity returns one entity with its history.
func (q *QueryService) Entity(ctx context.Context, id string) (*types.EntitySnapshot, error) {
	e, err := q.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return q.snapshot(ctx, e)
}

// TotalAttention returns the live sum of attention over all entities.
func (q *QueryService) TotalAttention(ctx context.Context) (int, error) {
	total, err := q.store.TotalAttention(ctx)
	if err != nil {
		return 0, fmt.Errorf("total attention: %w", err)
	}
	return total, nil
}

func (q *QueryService) snapshot(ctx context.Context, e *types.Entity) (*types.EntitySnapshot, error) {
	msgs, err := q.store.Messages(ctx, e.ID)
	if err != nil {
		return nil, fmt.Errorf("messages for %s: %w", e.ID, err)
	}
	return types.NewEntitySnapshot(e, msgs), nil
}
