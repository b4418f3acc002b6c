package sqlite

// Schema contains the SQL statements that create the SQLite schema.
// All statements are idempotent.
//
// messages.seq follows insertion order and is the tie-breaker that keeps
// history in timestamp order when two messages share a timestamp.
//
// attention_events is created for compatibility with existing databases but
// no operation reads or writes it.
const Schema = `
CREATE TABLE IF NOT EXISTS entities (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    symbol TEXT NOT NULL UNIQUE,
    price REAL NOT NULL DEFAULT 0.00001 CHECK (price > 0),
    consciousness INTEGER NOT NULL DEFAULT 0,
    personality TEXT NOT NULL DEFAULT '',
    mood TEXT NOT NULL DEFAULT '',
    attention INTEGER NOT NULL DEFAULT 0 CHECK (attention >= 0),
    traits TEXT NOT NULL DEFAULT '[]',
    relationships TEXT NOT NULL DEFAULT '{}',
    last_active TIMESTAMP NOT NULL,
    autonomous_actions INTEGER NOT NULL DEFAULT 0 CHECK (autonomous_actions >= 0),
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entities_consciousness ON entities(consciousness DESC);

CREATE TABLE IF NOT EXISTS messages (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    entity_id TEXT NOT NULL REFERENCES entities(id),
    sender TEXT NOT NULL CHECK (sender IN ('user', 'entity', 'system')),
    text TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_entity_seq ON messages(entity_id, seq);

CREATE TABLE IF NOT EXISTS attention_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_id TEXT REFERENCES entities(id),
    duration INTEGER,
    intensity INTEGER,
    timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`
