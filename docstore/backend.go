/*
backend.go - Storage backend contract

PURPOSE:
  A Backend is the narrow interface every storage engine implements: a
  per-collection key->payload map with upsert, point read, bounded scan and
  delete. The remote vector service, the in-memory fallback, SQLite and Redis
  all fit behind it; the Facade never knows which one served a call.

CONSISTENCY CONTRACT:
  - Get must observe the latest Upsert for the same id (point-read freshness).
  - Scroll is only eventually consistent: a record just written may be
    invisible to an immediately following scan. The consistency index in the
    Facade compensates for the lookups that cannot tolerate the lag.

ERROR CONTRACT:
  - Get returns ErrNotFound for an absent id. Never a transport fault.
  - Any other failure mode must unwrap to ErrTransport so the failover
    controller can classify it.

IMPLEMENTATIONS:
  - cortexstore: remote vector DB over HTTP (primary)
  - memstore:    process-local map (fallback)
  - sqlitestore: durable local SQLite
  - redistore:   Redis hash per collection
*/
package docstore

import "context"

// Backend is a per-collection key->payload store.
type Backend interface {
	// Upsert inserts or replaces the record.
	Upsert(ctx context.Context, collection string, id int64, payload Payload) error

	// Get performs a point read. Returns ErrNotFound for an absent id.
	Get(ctx context.Context, collection string, id int64) (Document, error)

	// Scroll returns up to limit records with no ordering guarantee.
	Scroll(ctx context.Context, collection string, limit int) ([]Document, error)

	// Delete removes the record. Deleting an absent id is not an error.
	Delete(ctx context.Context, collection string, id int64) error

	// BatchUpsert inserts or replaces several records. Atomicity is
	// backend-specific; callers must not rely on it.
	BatchUpsert(ctx context.Context, collection string, docs []Document) error
}

// Pinger is implemented by backends that can be health-checked. The failover
// controller uses it as the default health hook.
type Pinger interface {
	Ping(ctx context.Context) error
}
