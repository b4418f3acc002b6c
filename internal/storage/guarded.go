package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/praptisharma28/consciousness-oracle/pkg/types"
)

// BreakerConfig holds the configuration for the store circuit breaker.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures required to trip the circuit.
	// Default: 3
	MaxFailures uint32

	// Cooldown is the duration the circuit stays open before transitioning to half-open.
	// Default: 30 seconds
	Cooldown time.Duration

	// OpTimeout bounds every store call so nothing blocks forever.
	// Zero disables the per-call deadline.
	OpTimeout time.Duration
}

// DefaultBreakerConfig returns MaxFailures 3, Cooldown 30s and OpTimeout 5s.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxFailures: 3,
		Cooldown:    30 * time.Second,
		OpTimeout:   5 * time.Second,
	}
}

// Guarded wraps an EntityStore with a per-call deadline and a circuit
// breaker. While the circuit is open every call fails immediately with
// ErrTransient instead of waiting on an unreachable store.
//
// ErrNotFound and ErrInvalidInput pass through unchanged and never count
// as failures; any other error is reported as ErrTransient with the cause
// still reachable through errors.Is/As.
type Guarded struct {
	store   EntityStore
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
}

var _ EntityStore = (*Guarded)(nil)

// NewGuarded wraps store. A nil logger uses slog.Default().
func NewGuarded(store EntityStore, cfg BreakerConfig, logger *slog.Logger) *Guarded {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        "EntityStore",
		MaxRequests: 1,
		Interval:    0, // Don't clear counts periodically
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrNotFound) ||
				errors.Is(err, ErrInvalidInput) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("store circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	}

	return &Guarded{
		store:   store,
		breaker: gobreaker.NewCircuitBreaker(settings),
		timeout: cfg.OpTimeout,
	}
}

// State returns the breaker state: "closed", "open" or "half-open".
func (g *Guarded) State() string {
	return g.breaker.State().String()
}

// Unwrap returns the wrapped store.
func (g *Guarded) Unwrap() EntityStore {
	return g.store
}

func (g *Guarded) do(ctx context.Context, fn func(ctx context.Context) error) error {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	return classify(err)
}

// classify maps breaker and driver errors onto the storage taxonomy.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidInput), errors.Is(err, ErrTransient):
		return err
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return fmt.Errorf("%w: circuit open", ErrTransient)
	default:
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
}

// List implements EntityStore.
func (g *Guarded) List(ctx context.Context) ([]*types.Entity, error) {
	var out []*types.Entity
	err := g.do(ctx, func(ctx context.Context) (err error) {
		out, err = g.store.List(ctx)
		return err
	})
	return out, err
}

// Get implements EntityStore.
func (g *Guarded) Get(ctx context.Context, id string) (*types.Entity, error) {
	var out *types.Entity
	err := g.do(ctx, func(ctx context.Context) (err error) {
		out, err = g.store.Get(ctx, id)
		return err
	})
	return out, err
}

// Messages implements EntityStore.
func (g *Guarded) Messages(ctx context.Context, entityID string) ([]*types.Message, error) {
	var out []*types.Message
	err := g.do(ctx, func(ctx context.Context) (err error) {
		out, err = g.store.Messages(ctx, entityID)
		return err
	})
	return out, err
}

// AppendMessage implements EntityStore.
func (g *Guarded) AppendMessage(ctx context.Context, entityID string, sender types.Sender, text string) (*types.Message, error) {
	var out *types.Message
	err := g.do(ctx, func(ctx context.Context) (err error) {
		out, err = g.store.AppendMessage(ctx, entityID, sender, text)
		return err
	})
	return out, err
}

// ApplyDelta implements EntityStore.
func (g *Guarded) ApplyDelta(ctx context.Context, id string, delta EntityDelta) (*types.Entity, error) {
	var out *types.Entity
	err := g.do(ctx, func(ctx context.Context) (err error) {
		out, err = g.store.ApplyDelta(ctx, id, delta)
		return err
	})
	return out, err
}

// Mutate implements EntityStore.
func (g *Guarded) Mutate(ctx context.Context, id string, drafts []MessageDraft, delta EntityDelta) (*types.EntitySnapshot, error) {
	var out *types.EntitySnapshot
	err := g.do(ctx, func(ctx context.Context) (err error) {
		out, err = g.store.Mutate(ctx, id, drafts, delta)
		return err
	})
	return out, err
}

// ApplyDrift implements EntityStore. A partially applied drift counts as a
// success for the breaker; the per-entity errors are still returned.
func (g *Guarded) ApplyDrift(ctx context.Context, fn DriftFunc) ([]*types.Entity, error) {
	var (
		out     []*types.Entity
		partial error
	)
	err := g.do(ctx, func(ctx context.Context) error {
		var err error
		out, err = g.store.ApplyDrift(ctx, fn)
		if err != nil && len(out) > 0 {
			partial = err
			return nil
		}
		return err
	})
	if err != nil {
		return out, err
	}
	return out, partial
}

// TotalAttention implements EntityStore.
func (g *Guarded) TotalAttention(ctx context.Context) (int, error) {
	var out int
	err := g.do(ctx, func(ctx context.Context) (err error) {
		out, err = g.store.TotalAttention(ctx)
		return err
	})
	return out, err
}

// Create implements EntityStore.
func (g *Guarded) Create(ctx context.Context, entity *types.Entity) error {
	return g.do(ctx, func(ctx context.Context) error {
		return g.store.Create(ctx, entity)
	})
}

// Count implements EntityStore.
func (g *Guarded) Count(ctx context.Context) (int, error) {
	var out int
	err := g.do(ctx, func(ctx context.Context) (err error) {
		out, err = g.store.Count(ctx)
		return err
	})
	return out, err
}

// Ping checks reachability through the breaker when the wrapped store
// supports it.
func (g *Guarded) Ping(ctx context.Context) error {
	p, ok := g.store.(Pinger)
	if !ok {
		return nil
	}
	return g.do(ctx, p.Ping)
}

// Close implements EntityStore.
func (g *Guarded) Close() error {
	return g.store.Close()
}
