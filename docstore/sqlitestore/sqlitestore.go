/*
Package sqlitestore provides a SQLite-backed document backend.

PURPOSE:
  A durable local store for deployments that want to survive restarts without
  the remote vector service. Fits the same Backend interface as the remote
  adapter, so it can serve as either primary or fallback.

SCHEMA:
  One table keyed (collection, id) with the payload as a JSON blob. The
  document model is schemaless on purpose; SQLite only provides durability
  and the point-read/scan primitives.

WAL MODE:
  Opened with WAL for better concurrency: readers don't block, single writer,
  better crash recovery.

ERROR MAPPING:
  sql.ErrNoRows -> docstore.ErrNotFound; every other database failure wraps
  docstore.ErrTransport so the failover controller classifies it uniformly
  with remote faults.
*/
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/greenbank/points-engine/docstore"
)

type Store struct {
	db *sqlx.DB
}

// New opens (and migrates) the database at dbPath. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		collection  TEXT    NOT NULL,
		id          INTEGER NOT NULL,
		payload     TEXT    NOT NULL,
		updated_at  TEXT    NOT NULL,
		PRIMARY KEY (collection, id)
	);

	CREATE INDEX IF NOT EXISTS idx_documents_collection
		ON documents(collection);
	`
	_, err := s.db.Exec(schema)
	return err
}

type row struct {
	ID      int64  `db:"id"`
	Payload string `db:"payload"`
}

// =============================================================================
// BACKEND IMPLEMENTATION
// =============================================================================

func (s *Store) Upsert(ctx context.Context, collection string, id int64, payload docstore.Payload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, payload, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		collection, id, string(data), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return docstore.Transport("upsert", collection, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, collection string, id int64) (docstore.Document, error) {
	var r row
	err := s.db.GetContext(ctx, &r,
		`SELECT id, payload FROM documents WHERE collection = ? AND id = ?`, collection, id)
	if errors.Is(err, sql.ErrNoRows) {
		return docstore.Document{}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Document{}, docstore.Transport("get", collection, err)
	}
	return decode(r)
}

func (s *Store) Scroll(ctx context.Context, collection string, limit int) ([]docstore.Document, error) {
	var rows []row
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, payload FROM documents WHERE collection = ? LIMIT ?`, collection, limit)
	if err != nil {
		return nil, docstore.Transport("scroll", collection, err)
	}
	docs := make([]docstore.Document, 0, len(rows))
	for _, r := range rows {
		doc, err := decode(r)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *Store) Delete(ctx context.Context, collection string, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return docstore.Transport("delete", collection, err)
	}
	return nil
}

func (s *Store) BatchUpsert(ctx context.Context, collection string, docs []docstore.Document) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return docstore.Transport("batch_upsert", collection, err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, d := range docs {
		data, err := json.Marshal(d.Payload)
		if err != nil {
			return fmt.Errorf("encode payload for id %d: %w", d.ID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO documents (collection, id, payload, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (collection, id) DO UPDATE SET
				payload = excluded.payload,
				updated_at = excluded.updated_at`,
			collection, d.ID, string(data), now)
		if err != nil {
			return docstore.Transport("batch_upsert", collection, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return docstore.Transport("batch_upsert", collection, err)
	}
	return nil
}

// Ping satisfies docstore.Pinger.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func decode(r row) (docstore.Document, error) {
	var payload docstore.Payload
	if err := json.Unmarshal([]byte(r.Payload), &payload); err != nil {
		return docstore.Document{}, fmt.Errorf("decode payload for id %d: %w", r.ID, err)
	}
	return docstore.Document{ID: r.ID, Payload: payload}, nil
}
