package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/praptisharma28/consciousness-oracle/internal/random"
	"github.com/praptisharma28/consciousness-oracle/internal/responses"
	"github.com/praptisharma28/consciousness-oracle/internal/storage"
	"github.com/praptisharma28/consciousness-oracle/pkg/types"
)

const (
	// Chat rewards the entity it is addressed to.
	chatAwarenessGain = 5
	chatAttentionGain = 3

	// Drift draws, all bounds inclusive.
	driftAwarenessMin = -2
	driftAwarenessMax = 7
	driftAttentionMin = -2
	driftAttentionMax = 3

	// driftPriceSpread is the width of the relative price move; a draw of
	// u in [0, 1) multiplies the price by 1 + (u-0.5)*driftPriceSpread.
	driftPriceSpread = 0.02

	// actionPrefix marks autonomous action messages.
	actionPrefix = "🤖 "

	defaultBroadcastTimeout = 5 * time.Second
)

// Publisher delivers events to every connected observer.
type Publisher interface {
	Publish(event types.Event)
}

// Config holds the collaborators of a MutationEngine. Store, Responses and
// Random are required.
type Config struct {
	Store     storage.EntityStore
	Responses responses.Provider
	Random    random.Source

	// Publisher receives the notification cycle after each commit.
	// Nil disables broadcasting.
	Publisher Publisher

	// BroadcastTimeout bounds snapshot assembly for one notification cycle.
	// Default: 5 seconds
	BroadcastTimeout time.Duration

	Logger *slog.Logger
}

// MutationEngine applies the rules that change entities. Every successful
// mutation commits through the store first and is followed by exactly one
// notification cycle: a consciousness_update carrying every entity, then
// an attention_update with the new total.
type MutationEngine struct {
	store     storage.EntityStore
	replies   responses.Provider
	rng       random.Source
	query     *QueryService
	publisher Publisher
	timeout   time.Duration
	logger    *slog.Logger

	// cycleMu serialises notification cycles so observers never see an
	// older snapshot after a newer one.
	cycleMu sync.Mutex
}

// NewMutationEngine validates cfg and builds the engine.
func NewMutationEngine(cfg Config) (*MutationEngine, error) {
	if cfg.Store == nil {
		return nil, errors.New("engine: store is required")
	}
	if cfg.Responses == nil {
		return nil, errors.New("engine: response provider is required")
	}
	if cfg.Random == nil {
		return nil, errors.New("engine: random source is required")
	}
	if cfg.BroadcastTimeout <= 0 {
		cfg.BroadcastTimeout = defaultBroadcastTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &MutationEngine{
		store:     cfg.Store,
		replies:   cfg.Responses,
		rng:       cfg.Random,
		query:     NewQueryService(cfg.Store),
		publisher: cfg.Publisher,
		timeout:   cfg.BroadcastTimeout,
		logger:    cfg.Logger,
	}, nil
}

// Query returns the engine's read side.
func (m *MutationEngine) Query() *QueryService {
	return m.query
}

// ChatReply records a user message and the entity's reply, rewards the
// entity with awareness and attention, and returns it with its full history.
//
// Returns storage.ErrInvalidInput for blank text, storage.ErrNotFound for
// an unknown entity and ErrConfiguration when the entity has no replies.
// Nothing is written in any of those cases.
func (m *MutationEngine) ChatReply(ctx context.Context, id, text string) (*types.EntitySnapshot, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: message text is required", storage.ErrInvalidInput)
	}

	entity, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	pool := m.replies.Replies(entity.Symbol)
	if len(pool) == 0 {
		m.logger.Error("no replies configured", "kind", "configuration", "entity", entity.ID, "symbol", entity.Symbol)
		return nil, fmt.Errorf("%w: no replies configured for %s", ErrConfiguration, entity.Symbol)
	}
	reply := random.Pick(m.rng, pool)

	drafts := []storage.MessageDraft{
		{Sender: types.SenderUser, Text: text},
		{Sender: types.SenderEntity, Text: reply},
	}
	delta := storage.EntityDelta{
		Awareness: chatAwarenessGain,
		Attention: chatAttentionGain,
		Touch:     true,
	}
	return m.commit(ctx, id, drafts, delta)
}

// AutonomousAction makes the entity perform one action from the catalog,
// recorded as a system message, and increments its action counter.
//
// Returns storage.ErrNotFound for an unknown entity and ErrConfiguration
// when the action catalog is empty.
func (m *MutationEngine) AutonomousAction(ctx context.Context, id string) (*types.EntitySnapshot, error) {
	if _, err := m.store.Get(ctx, id); err != nil {
		return nil, err
	}

	actions := m.replies.Actions()
	if len(actions) == 0 {
		m.logger.Error("no autonomous actions configured", "kind", "configuration", "entity", id)
		return nil, fmt.Errorf("%w: no autonomous actions configured", ErrConfiguration)
	}
	action := random.Pick(m.rng, actions)

	drafts := []storage.MessageDraft{
		{Sender: types.SenderSystem, Text: actionPrefix + action},
	}
	delta := storage.EntityDelta{
		AutonomousActions: 1,
		Touch:             true,
	}
	return m.commit(ctx, id, drafts, delta)
}

// DriftTick nudges every entity's awareness, attention and price by a
// random amount. Entities are updated independently; failures on some are
// logged and the rest still drift. An error is returned only when no
// entity could be updated.
func (m *MutationEngine) DriftTick(ctx context.Context) ([]*types.Entity, error) {
	updated, err := m.store.ApplyDrift(ctx, m.driftDelta)
	if err != nil {
		if len(updated) == 0 {
			m.logStoreError("drift tick failed", err)
			return nil, fmt.Errorf("drift: %w", err)
		}
		m.logger.Warn("drift partially applied", "updated", len(updated), "error", err)
	}

	if len(updated) > 0 {
		m.broadcast(ctx)
	}
	return updated, nil
}

func (m *MutationEngine) driftDelta(_ *types.Entity) storage.EntityDelta {
	return storage.EntityDelta{
		Awareness:   m.rng.IntRange(driftAwarenessMin, driftAwarenessMax),
		Attention:   m.rng.IntRange(driftAttentionMin, driftAttentionMax),
		PriceFactor: 1 + (m.rng.Float64()-0.5)*driftPriceSpread,
	}
}

// commit writes the mutation and runs the notification cycle. The returned
// snapshot comes from the commit itself, so writes landing after it never
// leak into the caller's response.
func (m *MutationEngine) commit(ctx context.Context, id string, drafts []storage.MessageDraft, delta storage.EntityDelta) (*types.EntitySnapshot, error) {
	snapshot, err := m.store.Mutate(ctx, id, drafts, delta)
	if err != nil {
		m.logStoreError("mutation failed", err, "entity", id)
		return nil, err
	}

	m.broadcast(ctx)
	return snapshot, nil
}

// broadcast runs one notification cycle. It is detached from the caller's
// cancellation so a dropped request still notifies observers. Failures are
// logged and never reach the caller.
func (m *MutationEngine) broadcast(ctx context.Context) {
	if m.publisher == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
	defer cancel()

	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	snapshots, err := m.query.ListEntities(ctx)
	if err != nil {
		m.logStoreError("broadcast snapshot failed", err)
		return
	}
	total, err := m.query.TotalAttention(ctx)
	if err != nil {
		m.logStoreError("broadcast attention total failed", err)
		return
	}

	m.publisher.Publish(types.NewEntitiesChanged(snapshots))
	m.publisher.Publish(types.NewAttentionChanged(total))
}

func (m *MutationEngine) logStoreError(msg string, err error, args ...any) {
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrInvalidInput):
		return
	case errors.Is(err, storage.ErrTransient):
		args = append(args, "kind", "transient")
	}
	m.logger.Error(msg, append(args, "error", err)...)
}
