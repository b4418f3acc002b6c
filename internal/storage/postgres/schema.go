// Package postgres provides the PostgreSQL implementation of storage.EntityStore.
package postgres

// Schema contains the SQL statements to create the database schema for PostgreSQL.
// All statements are idempotent.
const Schema = `
-- Entities: one row per consciousness token
CREATE TABLE IF NOT EXISTS entities (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    symbol TEXT NOT NULL UNIQUE,
    price DOUBLE PRECISION NOT NULL DEFAULT 0.00001 CHECK (price > 0),
    consciousness INTEGER NOT NULL DEFAULT 0,
    personality TEXT NOT NULL DEFAULT '',
    mood TEXT NOT NULL DEFAULT '',
    attention INTEGER NOT NULL DEFAULT 0 CHECK (attention >= 0),
    traits JSONB NOT NULL DEFAULT '[]',
    relationships JSONB NOT NULL DEFAULT '{}',
    last_active TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    autonomous_actions INTEGER NOT NULL DEFAULT 0 CHECK (autonomous_actions >= 0),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_entities_consciousness ON entities(consciousness DESC);

-- Messages: append-only history, seq keeps insertion order
CREATE TABLE IF NOT EXISTS messages (
    seq BIGSERIAL PRIMARY KEY,
    id TEXT NOT NULL UNIQUE,
    entity_id TEXT NOT NULL REFERENCES entities(id),
    sender TEXT NOT NULL CHECK (sender IN ('user', 'entity', 'system')),
    text TEXT NOT NULL,
    timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_messages_entity_seq ON messages(entity_id, seq);

-- Attention events: kept for existing deployments, unused
CREATE TABLE IF NOT EXISTS attention_events (
    id BIGSERIAL PRIMARY KEY,
    entity_id TEXT REFERENCES entities(id),
    duration INTEGER,
    intensity INTEGER,
    timestamp TIMESTAMPTZ DEFAULT NOW()
);
`
