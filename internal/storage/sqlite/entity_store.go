// Package sqlite provides the SQLite implementation of storage.EntityStore.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/praptisharma28/consciousness-oracle/internal/storage"
	"github.com/praptisharma28/consciousness-oracle/pkg/types"
)

// entityColumns is the column list shared by every query that scans an entity.
const entityColumns = `id, name, symbol, price, consciousness, personality, mood, attention,
	traits, relationships, last_active, autonomous_actions, created_at, updated_at`

// EntityStore implements storage.EntityStore using SQLite.
type EntityStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ storage.EntityStore = (*EntityStore)(nil)

// NewEntityStore creates a new SQLite entity store with WAL self-healing.
// If the initial open fails due to stale WAL files left behind by a crashed
// process, it verifies no other process holds them and retries once after
// removing the stale -shm/-wal files.
func NewEntityStore(dsn string) (*EntityStore, error) {
	store, err := openEntityStore(dsn)
	if err == nil {
		return store, nil
	}

	if !isRecoverableWALError(err) {
		return nil, err
	}

	dbPath := dbPathFromDSN(dsn)
	if dbPath == "" || !isWALStale(dbPath) {
		return nil, err
	}

	removeStaleWAL(dbPath)

	store, retryErr := openEntityStore(dsn)
	if retryErr != nil {
		return nil, fmt.Errorf("sqlite: failed after WAL recovery: %w (original: %v)", retryErr, err)
	}

	slog.Info("sqlite: recovered from stale WAL files", "path", dbPath)
	return store, nil
}

// openEntityStore opens a SQLite database, configures WAL mode, and creates the schema.
func openEntityStore(dsn string) (*EntityStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single open connection
	// serialises every transaction, which is what makes each entity update an
	// atomic read-modify-write.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", p, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to create schema: %w", err)
	}

	return &EntityStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// List implements storage.EntityStore.
func (s *EntityStore) List(ctx context.Context) ([]*types.Entity, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+entityColumns+" FROM entities ORDER BY consciousness DESC, name ASC")
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list entities: %w", err)
	}
	defer rows.Close()

	entities := []*types.Entity{}
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: failed to iterate entities: %w", err)
	}
	return entities, nil
}

// Get implements storage.EntityStore.
func (s *EntityStore) Get(ctx context.Context, id string) (*types.Entity, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+entityColumns+" FROM entities WHERE id = ?", id)
	return scanEntity(row)
}

// Messages implements storage.EntityStore.
func (s *EntityStore) Messages(ctx context.Context, entityID string) ([]*types.Message, error) {
	return listMessages(ctx, s.db, entityID)
}

// AppendMessage implements storage.EntityStore.
func (s *EntityStore) AppendMessage(ctx context.Context, entityID string, sender types.Sender, text string) (*types.Message, error) {
	draft := storage.MessageDraft{Sender: sender, Text: text}
	if err := draft.Validate(); err != nil {
		return nil, err
	}
	return insertMessage(ctx, s.db, entityID, draft, s.now())
}

// ApplyDelta implements storage.EntityStore.
func (s *EntityStore) ApplyDelta(ctx context.Context, id string, delta storage.EntityDelta) (*types.Entity, error) {
	updated, _, err := s.mutate(ctx, id, nil, delta, false)
	return updated, err
}

// Mutate implements storage.EntityStore. The history is read inside the
// transaction, so it holds exactly the messages committed up to and
// including this mutation.
func (s *EntityStore) Mutate(ctx context.Context, id string, drafts []storage.MessageDraft, delta storage.EntityDelta) (*types.EntitySnapshot, error) {
	updated, msgs, err := s.mutate(ctx, id, drafts, delta, true)
	if err != nil {
		return nil, err
	}
	return types.NewEntitySnapshot(updated, msgs), nil
}

func (s *EntityStore) mutate(ctx context.Context, id string, drafts []storage.MessageDraft, delta storage.EntityDelta, withHistory bool) (*types.Entity, []*types.Message, error) {
	if err := delta.Validate(); err != nil {
		return nil, nil, err
	}
	for _, d := range drafts {
		if err := d.Validate(); err != nil {
			return nil, nil, err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now()
	updated, err := applyDelta(ctx, tx, id, delta, now)
	if err != nil {
		return nil, nil, err
	}

	for _, d := range drafts {
		if _, err := insertMessage(ctx, tx, id, d, now); err != nil {
			return nil, nil, err
		}
	}

	var msgs []*types.Message
	if withHistory {
		if msgs, err = listMessages(ctx, tx, id); err != nil {
			return nil, nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("sqlite: failed to commit mutation: %w", err)
	}
	return updated, msgs, nil
}

// ApplyDrift implements storage.EntityStore.
func (s *EntityStore) ApplyDrift(ctx context.Context, fn storage.DriftFunc) ([]*types.Entity, error) {
	entities, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	var (
		updated []*types.Entity
		errs    []error
	)
	for _, e := range entities {
		got, err := s.ApplyDelta(ctx, e.ID, fn(e))
		if err != nil {
			errs = append(errs, fmt.Errorf("sqlite: drift %s: %w", e.ID, err))
			continue
		}
		updated = append(updated, got)
	}
	return updated, errors.Join(errs...)
}

// TotalAttention implements storage.EntityStore.
func (s *EntityStore) TotalAttention(ctx context.Context) (int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(SUM(attention), 0) FROM entities").Scan(&total); err != nil {
		return 0, fmt.Errorf("sqlite: failed to sum attention: %w", err)
	}
	return total, nil
}

// Create implements storage.EntityStore.
func (s *EntityStore) Create(ctx context.Context, e *types.Entity) error {
	if err := storage.PrepareEntity(e, s.now()); err != nil {
		return err
	}

	traitsJSON, err := json.Marshal(e.Traits)
	if err != nil {
		return fmt.Errorf("sqlite: failed to marshal traits: %w", err)
	}
	relationshipsJSON, err := json.Marshal(e.Relationships)
	if err != nil {
		return fmt.Errorf("sqlite: failed to marshal relationships: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entities (`+entityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID, e.Name, e.Symbol, e.Price, e.Awareness, e.Personality, e.Mood, e.AttentionScore,
		string(traitsJSON), string(relationshipsJSON), e.LastActiveAt, e.AutonomousActionCount,
		e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to insert entity %s: %w", e.Symbol, err)
	}
	return nil
}

// Count implements storage.EntityStore.
func (s *EntityStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entities").Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: failed to count entities: %w", err)
	}
	return n, nil
}

// Ping verifies the database is reachable.
func (s *EntityStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close flushes the WAL into the main database file and releases resources.
// The TRUNCATE checkpoint removes the -shm and -wal files so the next
// process can open the database without encountering stale WAL state.
func (s *EntityStore) Close() error {
	if s.db == nil {
		return nil
	}

	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		slog.Warn("sqlite: WAL checkpoint on close failed (non-fatal)", "error", err)
	}

	return s.db.Close()
}

// execQuerier is satisfied by both *sql.DB and *sql.Tx.
type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func listMessages(ctx context.Context, q execQuerier, entityID string) ([]*types.Message, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, entity_id, sender, text, timestamp
		FROM messages
		WHERE entity_id = ?
		ORDER BY seq ASC
	`, entityID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list messages: %w", err)
	}
	defer rows.Close()

	msgs := []*types.Message{}
	for rows.Next() {
		var (
			m      types.Message
			sender string
		)
		if err := rows.Scan(&m.ID, &m.EntityID, &sender, &m.Text, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan message: %w", err)
		}
		if m.Sender, err = types.ParseSender(sender); err != nil {
			return nil, fmt.Errorf("sqlite: message %s: %w", m.ID, err)
		}
		msgs = append(msgs, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: failed to iterate messages: %w", err)
	}
	return msgs, nil
}

// applyDelta runs the relative update as a single statement, so concurrent
// writers on the same row can never lose each other's increments. The
// committed row is read back inside the same transaction.
func applyDelta(ctx context.Context, q execQuerier, id string, d storage.EntityDelta, now time.Time) (*types.Entity, error) {
	var lastActive sql.NullTime
	if d.Touch {
		lastActive = sql.NullTime{Time: now, Valid: true}
	}

	result, err := q.ExecContext(ctx, `
		UPDATE entities SET
			consciousness = consciousness + ?,
			attention = MAX(0, attention + ?),
			autonomous_actions = autonomous_actions + ?,
			price = MAX(?, price * ?),
			mood = COALESCE(NULLIF(?, ''), mood),
			last_active = COALESCE(?, last_active),
			updated_at = ?
		WHERE id = ?
	`,
		d.Awareness, d.Attention, d.AutonomousActions,
		types.MinPrice, d.Factor(),
		d.Mood, lastActive, now, id,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to update entity: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to check rows affected: %w", err)
	}
	if n == 0 {
		return nil, storage.ErrNotFound
	}

	return scanEntity(q.QueryRowContext(ctx, "SELECT "+entityColumns+" FROM entities WHERE id = ?", id))
}

// insertMessage appends a message only if the owning entity exists.
func insertMessage(ctx context.Context, q execQuerier, entityID string, d storage.MessageDraft, now time.Time) (*types.Message, error) {
	msg := &types.Message{
		ID:        uuid.New().String(),
		EntityID:  entityID,
		Sender:    d.Sender,
		Text:      d.Text,
		Timestamp: now,
	}

	result, err := q.ExecContext(ctx, `
		INSERT INTO messages (id, entity_id, sender, text, timestamp)
		SELECT ?, ?, ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM entities WHERE id = ?)
	`, msg.ID, entityID, string(msg.Sender), msg.Text, msg.Timestamp, entityID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to insert message: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to check rows affected: %w", err)
	}
	if n == 0 {
		return nil, storage.ErrNotFound
	}
	return msg, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*types.Entity, error) {
	var (
		e                  types.Entity
		traits, relationsh string
	)
	err := row.Scan(
		&e.ID, &e.Name, &e.Symbol, &e.Price, &e.Awareness, &e.Personality, &e.Mood, &e.AttentionScore,
		&traits, &relationsh, &e.LastActiveAt, &e.AutonomousActionCount, &e.CreatedAt, &e.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to scan entity: %w", err)
	}

	if err := json.Unmarshal([]byte(traits), &e.Traits); err != nil {
		return nil, fmt.Errorf("sqlite: entity %s: failed to unmarshal traits: %w", e.ID, err)
	}
	if err := json.Unmarshal([]byte(relationsh), &e.Relationships); err != nil {
		return nil, fmt.Errorf("sqlite: entity %s: failed to unmarshal relationships: %w", e.ID, err)
	}
	return &e, nil
}

// dbPathFromDSN extracts the filesystem path from a SQLite DSN.
// Handles bare paths and file: URIs; returns "" for in-memory databases.
func dbPathFromDSN(dsn string) string {
	if dsn == "" || dsn == ":memory:" {
		return ""
	}
	if !strings.HasPrefix(dsn, "file:") {
		return dsn
	}

	u, err := url.Parse(dsn)
	if err != nil {
		return ""
	}
	path := u.Path
	if path == "" {
		path = u.Opaque
	}
	if path == ":memory:" {
		return ""
	}
	return path
}

// isRecoverableWALError matches errors caused by stale WAL files left
// behind after a crash.
func isRecoverableWALError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "disk I/O error") || strings.Contains(msg, "database is locked")
}

// isWALStale reports whether -shm/-wal files exist for dbPath and no other
// process holds them open. Without lsof it conservatively reports false.
func isWALStale(dbPath string) bool {
	shmPath, walPath := dbPath+"-shm", dbPath+"-wal"
	if !fileExists(shmPath) && !fileExists(walPath) {
		return false
	}

	lsofPath, err := exec.LookPath("lsof")
	if err != nil {
		return false
	}

	output, err := exec.Command(lsofPath, "-t", dbPath, shmPath, walPath).Output()
	if err != nil {
		// lsof exits 1 when nothing holds the files open.
		return true
	}
	return strings.TrimSpace(string(output)) == ""
}

func removeStaleWAL(dbPath string) {
	for _, suffix := range []string{"-shm", "-wal"} {
		path := dbPath + suffix
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			slog.Warn("sqlite: failed to remove stale WAL file", "path", path, "error", err)
		}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
