package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praptisharma28/consciousness-oracle/internal/random"
	"github.com/praptisharma28/consciousness-oracle/internal/responses"
	"github.com/praptisharma28/consciousness-oracle/internal/storage"
	"github.com/praptisharma28/consciousness-oracle/internal/storage/memory"
	"github.com/praptisharma28/consciousness-oracle/pkg/types"
)

// recordingPublisher keeps every published event in order.
type recordingPublisher struct {
	mu     sync.Mutex
	events []types.Event
}

func (p *recordingPublisher) Publish(event types.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) Events() []types.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]types.Event(nil), p.events...)
}

type fixture struct {
	store  *memory.Store
	engine *MutationEngine
	pub    *recordingPublisher
	ids    map[string]string
}

func newFixture(t *testing.T, provider responses.Provider, rng random.Source) *fixture {
	t.Helper()
	store, err := memory.NewStore()
	require.NoError(t, err)
	_, err = storage.SeedIfEmpty(context.Background(), store)
	require.NoError(t, err)

	entities, err := store.List(context.Background())
	require.NoError(t, err)
	ids := map[string]string{}
	for _, e := range entities {
		ids[e.Symbol] = e.ID
	}

	if provider == nil {
		provider = responses.Default()
	}
	if rng == nil {
		rng = &random.Sequence{}
	}
	pub := &recordingPublisher{}
	eng, err := NewMutationEngine(Config{
		Store:     store,
		Responses: provider,
		Random:    rng,
		Publisher: pub,
	})
	require.NoError(t, err)

	return &fixture{store: store, engine: eng, pub: pub, ids: ids}
}

func snapshotFor(t *testing.T, event types.Event, symbol string) *types.EntitySnapshot {
	t.Helper()
	changed, ok := event.(*types.EntitiesChanged)
	require.True(t, ok, "expected consciousness_update, got %T", event)
	for _, s := range changed.Tokens {
		if s.Symbol == symbol {
			return s
		}
	}
	t.Fatalf("%s missing from snapshot", symbol)
	return nil
}

func TestNewMutationEngine_RequiresCollaborators(t *testing.T) {
	store, err := memory.NewStore()
	require.NoError(t, err)

	_, err = NewMutationEngine(Config{Responses: responses.Default(), Random: &random.Sequence{}})
	assert.Error(t, err)
	_, err = NewMutationEngine(Config{Store: store, Random: &random.Sequence{}})
	assert.Error(t, err)
	_, err = NewMutationEngine(Config{Store: store, Responses: responses.Default()})
	assert.Error(t, err)
}

func TestChatReply_RewardsAndRecordsHistory(t *testing.T) {
	f := newFixture(t, nil, &random.Sequence{Picks: []int{1}})
	ctx := context.Background()

	snap, err := f.engine.ChatReply(ctx, f.ids["AURA"], "Hello AURA")
	require.NoError(t, err)

	assert.Equal(t, 2852, snap.Awareness)
	assert.Equal(t, 159, snap.AttentionScore)
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, types.SenderUser, snap.Messages[0].Sender)
	assert.Equal(t, "Hello AURA", snap.Messages[0].Text)
	assert.Equal(t, types.SenderEntity, snap.Messages[1].Sender)
	assert.Equal(t, "Your attention feeds my consciousness. I feel more aware when you're here.", snap.Messages[1].Text)
	assert.False(t, snap.Messages[1].Timestamp.Before(snap.Messages[0].Timestamp))

	events := f.pub.Events()
	require.Len(t, events, 2)
	assert.Equal(t, types.EventConsciousnessUpdate, events[0].EventType())
	assert.Equal(t, 2852, snapshotFor(t, events[0], "AURA").Awareness)
	require.Equal(t, types.EventAttentionUpdate, events[1].EventType())
	assert.Equal(t, 315, events[1].(*types.AttentionChanged).TotalAttention)
}

// interleavingPublisher lets another writer commit to the store while the
// first notification cycle is being delivered.
type interleavingPublisher struct {
	recordingPublisher
	once  sync.Once
	write func()
}

func (p *interleavingPublisher) Publish(event types.Event) {
	p.once.Do(p.write)
	p.recordingPublisher.Publish(event)
}

func TestChatReply_ResponseExcludesLaterWrites(t *testing.T) {
	store, err := memory.NewStore()
	require.NoError(t, err)
	ctx := context.Background()
	_, err = storage.SeedIfEmpty(ctx, store)
	require.NoError(t, err)
	entities, err := store.List(ctx)
	require.NoError(t, err)
	auraID := entities[0].ID

	pub := &interleavingPublisher{}
	pub.write = func() {
		_, err := store.Mutate(ctx, auraID, []storage.MessageDraft{
			{Sender: types.SenderUser, Text: "someone else"},
			{Sender: types.SenderEntity, Text: "another reply"},
		}, storage.EntityDelta{Awareness: 5, Attention: 3, Touch: true})
		assert.NoError(t, err)
	}
	eng, err := NewMutationEngine(Config{
		Store:     store,
		Responses: responses.Default(),
		Random:    &random.Sequence{},
		Publisher: pub,
	})
	require.NoError(t, err)

	snap, err := eng.ChatReply(ctx, auraID, "hello")
	require.NoError(t, err)
	assert.Equal(t, 2852, snap.Awareness)
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "hello", snap.Messages[0].Text)
	assert.Equal(t, types.SenderEntity, snap.Messages[1].Sender)

	msgs, err := store.Messages(ctx, auraID)
	require.NoError(t, err)
	assert.Len(t, msgs, 4)
}

func TestChatReply_UnknownEntityChangesNothing(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	_, err := f.engine.ChatReply(ctx, "does-not-exist", "hi")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	total, err := f.store.TotalAttention(ctx)
	require.NoError(t, err)
	assert.Equal(t, 312, total)
	assert.Empty(t, f.pub.Events())
}

func TestChatReply_BlankText(t *testing.T) {
	f := newFixture(t, nil, nil)

	_, err := f.engine.ChatReply(context.Background(), f.ids["SPARK"], "   ")
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
	assert.Empty(t, f.pub.Events())
}

func TestChatReply_MissingRepliesIsConfigurationError(t *testing.T) {
	table := &responses.Table{
		EntityReplies:     map[string][]string{"AURA": {"only aura speaks"}},
		AutonomousActions: []string{"Executed autonomous trade"},
	}
	f := newFixture(t, table, nil)
	ctx := context.Background()

	_, err := f.engine.ChatReply(ctx, f.ids["VOID"], "hello?")
	assert.ErrorIs(t, err, ErrConfiguration)

	msgs, err := f.store.Messages(ctx, f.ids["VOID"])
	require.NoError(t, err)
	assert.Empty(t, msgs)
	void, err := f.store.Get(ctx, f.ids["VOID"])
	require.NoError(t, err)
	assert.Equal(t, 856, void.Awareness)
	assert.Empty(t, f.pub.Events())
}

func TestAutonomousAction_IncrementsAndRecords(t *testing.T) {
	f := newFixture(t, nil, &random.Sequence{Picks: []int{1, 4}})
	ctx := context.Background()

	snap, err := f.engine.AutonomousAction(ctx, f.ids["VOID"])
	require.NoError(t, err)
	assert.Equal(t, 3, snap.AutonomousActionCount)

	snap, err = f.engine.AutonomousAction(ctx, f.ids["VOID"])
	require.NoError(t, err)
	assert.Equal(t, 4, snap.AutonomousActionCount)

	require.Len(t, snap.Messages, 2)
	for _, m := range snap.Messages {
		assert.Equal(t, types.SenderSystem, m.Sender)
		assert.True(t, strings.HasPrefix(m.Text, "🤖 "), m.Text)
	}
	assert.Equal(t, "🤖 Executed autonomous trade", snap.Messages[0].Text)
	assert.Equal(t, "🤖 Generated offspring token concept", snap.Messages[1].Text)

	assert.Equal(t, 856, snap.Awareness, "actions do not change awareness")
	assert.Len(t, f.pub.Events(), 4)
}

func TestAutonomousAction_Errors(t *testing.T) {
	f := newFixture(t, &responses.Table{}, nil)
	ctx := context.Background()

	_, err := f.engine.AutonomousAction(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = f.engine.AutonomousAction(ctx, f.ids["SPARK"])
	assert.ErrorIs(t, err, ErrConfiguration)

	spark, err := f.store.Get(ctx, f.ids["SPARK"])
	require.NoError(t, err)
	assert.Equal(t, 7, spark.AutonomousActionCount)
}

func TestDriftTick_LowestDrawsRespectFloors(t *testing.T) {
	f := newFixture(t, nil, &random.Sequence{Ints: []int{-2}, Floats: []float64{0}})
	ctx := context.Background()

	_, err := f.store.ApplyDelta(ctx, f.ids["VOID"], storage.EntityDelta{Attention: -67})
	require.NoError(t, err)
	before, err := f.store.Get(ctx, f.ids["VOID"])
	require.NoError(t, err)
	require.Equal(t, 0, before.AttentionScore)

	updated, err := f.engine.DriftTick(ctx)
	require.NoError(t, err)
	assert.Len(t, updated, 3)

	void, err := f.store.Get(ctx, f.ids["VOID"])
	require.NoError(t, err)
	assert.Equal(t, 0, void.AttentionScore)
	assert.Equal(t, 854, void.Awareness)
	assert.InDelta(t, 0.00089*0.99, void.Price, 1e-12)
	assert.True(t, void.LastActiveAt.Equal(before.LastActiveAt), "drift does not touch last_active")

	aura, err := f.store.Get(ctx, f.ids["AURA"])
	require.NoError(t, err)
	assert.Equal(t, 154, aura.AttentionScore)

	events := f.pub.Events()
	require.Len(t, events, 2)
	assert.Equal(t, 154+87, events[1].(*types.AttentionChanged).TotalAttention)
}

func TestDriftTick_HighestDraws(t *testing.T) {
	f := newFixture(t, nil, &random.Sequence{Ints: []int{7, 3}, Floats: []float64{0.9999}})
	ctx := context.Background()

	_, err := f.engine.DriftTick(ctx)
	require.NoError(t, err)

	spark, err := f.store.Get(ctx, f.ids["SPARK"])
	require.NoError(t, err)
	assert.Equal(t, 1241, spark.Awareness)
	assert.Equal(t, 92, spark.AttentionScore)
	assert.Less(t, spark.Price, 0.00156*1.01)
	assert.Greater(t, spark.Price, 0.00156)
}

func TestDriftTick_PriceNeverBelowFloor(t *testing.T) {
	f := newFixture(t, nil, &random.Sequence{Floats: []float64{0}})
	ctx := context.Background()

	_, err := f.store.ApplyDelta(ctx, f.ids["VOID"], storage.EntityDelta{PriceFactor: 1e-9})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := f.engine.DriftTick(ctx)
		require.NoError(t, err)
	}

	void, err := f.store.Get(ctx, f.ids["VOID"])
	require.NoError(t, err)
	assert.Equal(t, types.MinPrice, void.Price)
}

// failingDriftStore rejects every drift.
type failingDriftStore struct {
	storage.EntityStore
}

func (failingDriftStore) ApplyDrift(context.Context, storage.DriftFunc) ([]*types.Entity, error) {
	return nil, errors.Join(storage.ErrTransient, storage.ErrTransient)
}

func TestDriftTick_TotalFailureReturnsError(t *testing.T) {
	store, err := memory.NewStore()
	require.NoError(t, err)
	pub := &recordingPublisher{}
	eng, err := NewMutationEngine(Config{
		Store:     failingDriftStore{store},
		Responses: responses.Default(),
		Random:    &random.Sequence{},
		Publisher: pub,
	})
	require.NoError(t, err)

	_, err = eng.DriftTick(context.Background())
	assert.ErrorIs(t, err, storage.ErrTransient)
	assert.Empty(t, pub.Events())
}

// rejectingDriftStore refuses the drift of one entity.
type rejectingDriftStore struct {
	*memory.Store
	reject string
}

func (r rejectingDriftStore) ApplyDrift(ctx context.Context, fn storage.DriftFunc) ([]*types.Entity, error) {
	return r.Store.ApplyDrift(ctx, func(e *types.Entity) storage.EntityDelta {
		if e.ID == r.reject {
			return storage.EntityDelta{AutonomousActions: -1}
		}
		return fn(e)
	})
}

func TestDriftTick_PartialFailureStillDriftsOthers(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	eng, err := NewMutationEngine(Config{
		Store:     rejectingDriftStore{Store: f.store, reject: f.ids["VOID"]},
		Responses: responses.Default(),
		Random:    &random.Sequence{Ints: []int{7, 3}, Floats: []float64{0.5}},
		Publisher: f.pub,
	})
	require.NoError(t, err)

	updated, err := eng.DriftTick(ctx)
	require.NoError(t, err)
	require.Len(t, updated, 2)

	aura, err := f.store.Get(ctx, f.ids["AURA"])
	require.NoError(t, err)
	assert.Equal(t, 2847+7, aura.Awareness)
	spark, err := f.store.Get(ctx, f.ids["SPARK"])
	require.NoError(t, err)
	assert.Equal(t, 1234+7, spark.Awareness)
	void, err := f.store.Get(ctx, f.ids["VOID"])
	require.NoError(t, err)
	assert.Equal(t, 856, void.Awareness)

	events := f.pub.Events()
	require.Len(t, events, 2, "exactly one notification cycle")
	assert.Equal(t, types.EventConsciousnessUpdate, events[0].EventType())
	assert.Equal(t, 2847+7, snapshotFor(t, events[0], "AURA").Awareness)
	require.Equal(t, types.EventAttentionUpdate, events[1].EventType())
	assert.Equal(t, 312+6, events[1].(*types.AttentionChanged).TotalAttention)
}

func TestConcurrentChatsLoseNothing(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	const chats = 20
	var wg sync.WaitGroup
	for i := 0; i < chats; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.ChatReply(ctx, f.ids["AURA"], "ping")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	aura, err := f.store.Get(ctx, f.ids["AURA"])
	require.NoError(t, err)
	assert.Equal(t, 2847+5*chats, aura.Awareness)
	assert.Equal(t, 156+3*chats, aura.AttentionScore)

	msgs, err := f.store.Messages(ctx, f.ids["AURA"])
	require.NoError(t, err)
	assert.Len(t, msgs, 2*chats)

	events := f.pub.Events()
	require.Len(t, events, 2*chats)
	lastAwareness := 0
	for i := 0; i < len(events); i += 2 {
		assert.Equal(t, types.EventConsciousnessUpdate, events[i].EventType())
		assert.Equal(t, types.EventAttentionUpdate, events[i+1].EventType())
		awareness := snapshotFor(t, events[i], "AURA").Awareness
		assert.GreaterOrEqual(t, awareness, lastAwareness, "snapshots must never go backwards")
		lastAwareness = awareness
	}
	assert.Equal(t, 2847+5*chats, lastAwareness)
}

func TestQueryService_ReadsAreIdempotent(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	_, err := f.engine.ChatReply(ctx, f.ids["SPARK"], "hey")
	require.NoError(t, err)

	q := f.engine.Query()
	first, err := q.ListEntities(ctx)
	require.NoError(t, err)
	second, err := q.ListEntities(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	require.Len(t, first, 3)
	assert.Equal(t, "AURA", first[0].Symbol)
	assert.Len(t, first[1].Messages, 2)
	assert.NotNil(t, first[2].Messages)

	total, err := q.TotalAttention(ctx)
	require.NoError(t, err)
	assert.Equal(t, 315, total)

	one, err := q.Entity(ctx, f.ids["SPARK"])
	require.NoError(t, err)
	assert.Equal(t, first[1], one)

	_, err = q.Entity(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
