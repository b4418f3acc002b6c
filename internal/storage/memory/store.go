// Package memory provides an in-memory EntityStore backed by go-memdb.
// Write transactions in memdb are serialised, which gives every per-entity
// update the same atomic read-modify-write guarantee as the SQL backends.
// Nothing survives a restart.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-memdb"

	"github.com/praptisharma28/consciousness-oracle/internal/storage"
	"github.com/praptisharma28/consciousness-oracle/pkg/types"
)

const (
	entityTable  = "entities"
	messageTable = "messages"

	indexID     = "id"
	indexEntity = "entity"
)

// messageRecord is the stored form of a message. Seq preserves insertion
// order, which memdb's string indexes do not.
type messageRecord struct {
	ID       string
	EntityID string
	Seq      uint64
	Message  types.Message
}

func schema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			entityTable: {
				Name: entityTable,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: {
						Name:    indexID,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
				},
			},
			messageTable: {
				Name: messageTable,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: {
						Name:    indexID,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
					indexEntity: {
						Name:    indexEntity,
						Indexer: &memdb.StringFieldIndex{Field: "EntityID"},
					},
				},
			},
		},
	}
}

// Store implements storage.EntityStore in memory.
type Store struct {
	db  *memdb.MemDB
	seq atomic.Uint64
	now func() time.Time
}

var _ storage.EntityStore = (*Store)(nil)

// NewStore creates an empty in-memory store.
func NewStore() (*Store, error) {
	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, fmt.Errorf("memory: failed to create database: %w", err)
	}
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// List implements storage.EntityStore.
func (s *Store) List(ctx context.Context) ([]*types.Entity, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(entityTable, indexID)
	if err != nil {
		return nil, fmt.Errorf("memory: failed to list entities: %w", err)
	}

	entities := []*types.Entity{}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		entities = append(entities, obj.(*types.Entity).Clone())
	}

	sort.SliceStable(entities, func(i, j int) bool {
		if entities[i].Awareness != entities[j].Awareness {
			return entities[i].Awareness > entities[j].Awareness
		}
		return entities[i].Name < entities[j].Name
	})
	return entities, nil
}

// Get implements storage.EntityStore.
func (s *Store) Get(ctx context.Context, id string) (*types.Entity, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	e, err := getEntity(txn, id)
	if err != nil {
		return nil, err
	}
	return e.Clone(), nil
}

// Messages implements storage.EntityStore.
func (s *Store) Messages(ctx context.Context, entityID string) ([]*types.Message, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()
	return listMessages(txn, entityID)
}

// AppendMessage implements storage.EntityStore.
func (s *Store) AppendMessage(ctx context.Context, entityID string, sender types.Sender, text string) (*types.Message, error) {
	draft := storage.MessageDraft{Sender: sender, Text: text}
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	txn := s.db.Txn(true)
	defer txn.Abort()

	if _, err := getEntity(txn, entityID); err != nil {
		return nil, err
	}

	msg, err := s.insertMessage(txn, entityID, draft, s.now())
	if err != nil {
		return nil, err
	}

	txn.Commit()
	return msg, nil
}

// ApplyDelta implements storage.EntityStore.
func (s *Store) ApplyDelta(ctx context.Context, id string, delta storage.EntityDelta) (*types.Entity, error) {
	if err := delta.Validate(); err != nil {
		return nil, err
	}

	txn := s.db.Txn(true)
	defer txn.Abort()

	updated, err := s.applyDelta(txn, id, delta, s.now())
	if err != nil {
		return nil, err
	}
	txn.Commit()
	return updated, nil
}

// Mutate implements storage.EntityStore. The history is read inside the
// write transaction, so it holds exactly the messages committed up to and
// including this mutation.
func (s *Store) Mutate(ctx context.Context, id string, drafts []storage.MessageDraft, delta storage.EntityDelta) (*types.EntitySnapshot, error) {
	if err := delta.Validate(); err != nil {
		return nil, err
	}
	for _, d := range drafts {
		if err := d.Validate(); err != nil {
			return nil, err
		}
	}

	txn := s.db.Txn(true)
	defer txn.Abort()

	now := s.now()
	updated, err := s.applyDelta(txn, id, delta, now)
	if err != nil {
		return nil, err
	}
	for _, d := range drafts {
		if _, err := s.insertMessage(txn, id, d, now); err != nil {
			return nil, err
		}
	}

	msgs, err := listMessages(txn, id)
	if err != nil {
		return nil, err
	}

	txn.Commit()
	return types.NewEntitySnapshot(updated, msgs), nil
}

// ApplyDrift implements storage.EntityStore.
func (s *Store) ApplyDrift(ctx context.Context, fn storage.DriftFunc) ([]*types.Entity, error) {
	entities, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	var (
		updated []*types.Entity
		errs    []error
	)
	for _, e := range entities {
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("memory: drift %s: %w", e.ID, err))
			continue
		}
		got, err := s.ApplyDelta(ctx, e.ID, fn(e))
		if err != nil {
			errs = append(errs, fmt.Errorf("memory: drift %s: %w", e.ID, err))
			continue
		}
		updated = append(updated, got)
	}
	return updated, errors.Join(errs...)
}

// TotalAttention implements storage.EntityStore.
func (s *Store) TotalAttention(ctx context.Context) (int, error) {
	entities, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, e := range entities {
		total += e.AttentionScore
	}
	return total, nil
}

// Create implements storage.EntityStore.
func (s *Store) Create(ctx context.Context, entity *types.Entity) error {
	if err := storage.PrepareEntity(entity, s.now()); err != nil {
		return err
	}

	txn := s.db.Txn(true)
	defer txn.Abort()

	existing, err := txn.First(entityTable, indexID, entity.ID)
	if err != nil {
		return fmt.Errorf("memory: failed to check existence: %w", err)
	}
	if existing != nil {
		return fmt.Errorf("%w: entity %s already exists", storage.ErrInvalidInput, entity.ID)
	}

	if err := txn.Insert(entityTable, entity.Clone()); err != nil {
		return fmt.Errorf("memory: failed to insert entity: %w", err)
	}
	txn.Commit()
	return nil
}

// Count implements storage.EntityStore.
func (s *Store) Count(ctx context.Context) (int, error) {
	entities, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	return len(entities), nil
}

// Close implements storage.EntityStore.
func (s *Store) Close() error {
	return nil
}

func (s *Store) insertMessage(txn *memdb.Txn, entityID string, d storage.MessageDraft, now time.Time) (*types.Message, error) {
	rec := &messageRecord{
		ID:       uuid.New().String(),
		EntityID: entityID,
		Seq:      s.seq.Add(1),
		Message: types.Message{
			EntityID:  entityID,
			Sender:    d.Sender,
			Text:      d.Text,
			Timestamp: now,
		},
	}
	rec.Message.ID = rec.ID

	if err := txn.Insert(messageTable, rec); err != nil {
		return nil, fmt.Errorf("memory: failed to insert message: %w", err)
	}
	m := rec.Message
	return &m, nil
}

// applyDelta stores the updated entity in txn and returns a copy of it.
func (s *Store) applyDelta(txn *memdb.Txn, id string, delta storage.EntityDelta, now time.Time) (*types.Entity, error) {
	current, err := getEntity(txn, id)
	if err != nil {
		return nil, err
	}

	updated := current.Clone()
	delta.Apply(updated, now)
	if err := txn.Insert(entityTable, updated); err != nil {
		return nil, fmt.Errorf("memory: failed to update entity: %w", err)
	}
	return updated.Clone(), nil
}

func listMessages(txn *memdb.Txn, entityID string) ([]*types.Message, error) {
	it, err := txn.Get(messageTable, indexEntity, entityID)
	if err != nil {
		return nil, fmt.Errorf("memory: failed to list messages: %w", err)
	}

	var records []*messageRecord
	for obj := it.Next(); obj != nil; obj = it.Next() {
		records = append(records, obj.(*messageRecord))
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Seq < records[j].Seq })

	msgs := make([]*types.Message, 0, len(records))
	for _, r := range records {
		m := r.Message
		msgs = append(msgs, &m)
	}
	return msgs, nil
}

func getEntity(txn *memdb.Txn, id string) (*types.Entity, error) {
	raw, err := txn.First(entityTable, indexID, id)
	if err != nil {
		return nil, fmt.Errorf("memory: failed to get entity: %w", err)
	}
	if raw == nil {
		return nil, storage.ErrNotFound
	}
	return raw.(*types.Entity), nil
}
