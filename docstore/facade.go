/*
facade.go - The collection facade, the only storage surface the rest of the
system touches

PURPOSE:
  Composes the failover controller, the active backend and the consistency
  index into the public CRUD surface: Put, GetByID, GetAll, FindBy, FindOne,
  Delete, BatchPut.

LOOKUP STRATEGY (FindOne):
  Indexed fields (email on user/wallet collections, receiptNumber on claims)
  resolve through the consistency index first, then a point read. A stale
  index entry that no longer resolves falls back to the scan path, which is
  always correct but may lag just-written records on the remote backend.

WRITE PATH (Put):
  upsert through failover -> record indexable fields -> persist index file.
  The index update is a synchronous side effect of every successful write, so
  a record is findable by its unique keys the moment Put returns.

ERROR BEHAVIOR:
  Transport faults trip failover and the operation is retried once against the
  fallback; callers never see them. Delete failures are swallowed: delete is
  only used for best-effort demotion where a spurious retained record is
  tolerable.
*/
package docstore

import (
	"context"

	"go.uber.org/zap"
)

// DefaultScanLimit bounds a scan when the caller does not say otherwise.
const DefaultScanLimit = 500

// =============================================================================
// FACADE
// =============================================================================

type Facade struct {
	fo    *Failover
	index *Index
	ids   *Generator
	log   *zap.Logger
}

// New assembles the facade from its four collaborators.
func New(fo *Failover, index *Index, ids *Generator, log *zap.Logger) *Facade {
	if log == nil {
		log = zap.NewNop()
	}
	return &Facade{fo: fo, index: index, ids: ids, log: log}
}

// IDs exposes the identifier generator.
func (f *Facade) IDs() *Generator { return f.ids }

// State reports the failover state for health endpoints.
func (f *Facade) State() State { return f.fo.State() }

// =============================================================================
// WRITES
// =============================================================================

// Put upserts the record, then records any indexable payload fields in the
// consistency index and persists the index to disk.
func (f *Facade) Put(ctx context.Context, collection string, id int64, payload Payload) error {
	err := f.fo.Do(ctx, "put", func(b Backend) error {
		return b.Upsert(ctx, collection, id, payload)
	})
	if err != nil {
		return err
	}
	if err := f.index.Observe(collection, id, payload); err != nil {
		// The record is stored; losing the index file only costs lookup
		// freshness after a restart.
		f.log.Error("consistency index persist failed", zap.String("collection", collection), zap.Error(err))
	}
	return nil
}

// BatchPut applies Put sequentially to preserve the index side effect per
// record. A true bulk path is an optimization, not a correctness requirement.
func (f *Facade) BatchPut(ctx context.Context, collection string, docs []Document) error {
	for _, d := range docs {
		if err := f.Put(ctx, collection, d.ID, d.Payload); err != nil {
			return err
		}
	}
	return nil
}

// Delete is best-effort: failures are swallowed after the failover retry.
func (f *Facade) Delete(ctx context.Context, collection string, id int64) {
	err := f.fo.Do(ctx, "delete", func(b Backend) error {
		return b.Delete(ctx, collection, id)
	})
	if err != nil && !IsNotFound(err) {
		f.log.Warn("best-effort delete failed",
			zap.String("collection", collection), zap.Int64("id", id), zap.Error(err))
	}
}

// =============================================================================
// READS
// =============================================================================

// GetByID performs a point lookup. Returns ErrNotFound when absent.
func (f *Facade) GetByID(ctx context.Context, collection string, id int64) (Document, error) {
	var doc Document
	err := f.fo.Do(ctx, "get", func(b Backend) error {
		var e error
		doc, e = b.Get(ctx, collection, id)
		return e
	})
	return doc, err
}

// GetAll returns up to limit records. No ordering guarantee; ordering is the
// caller's responsibility.
func (f *Facade) GetAll(ctx context.Context, collection string, limit int) ([]Document, error) {
	if limit <= 0 {
		limit = DefaultScanLimit
	}
	var docs []Document
	err := f.fo.Do(ctx, "scroll", func(b Backend) error {
		var e error
		docs, e = b.Scroll(ctx, collection, limit)
		return e
	})
	return docs, err
}

// FindBy filters a bounded scan by field equality. For transactions by email
// it merges in the consistency-index id list so just-written entries are
// visible even while the scan lags.
func (f *Facade) FindBy(ctx context.Context, collection, field string, value any, limit int) ([]Document, error) {
	if limit <= 0 {
		limit = 100
	}

	var out []Document
	seen := map[int64]bool{}

	if collection == CollectionTransactions && field == "email" {
		if email, ok := value.(string); ok {
			for _, id := range f.index.TransactionIDs(email) {
				doc, err := f.GetByID(ctx, collection, id)
				if err != nil {
					if IsNotFound(err) {
						continue
					}
					return nil, err
				}
				out = append(out, doc)
				seen[id] = true
			}
		}
	}

	// Scan wide, filter, bound. The over-fetch compensates for the filter
	// discarding most records.
	docs, err := f.GetAll(ctx, collection, limit*5)
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		if seen[d.ID] || d.Payload[field] != value {
			continue
		}
		out = append(out, d)
		seen[d.ID] = true
	}

	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// FindOne resolves a single record by field equality. Indexed fields go
// through the consistency index and a point read; everything else, and stale
// index entries, fall back to the scan path. Returns ErrNotFound when no
// record matches.
func (f *Facade) FindOne(ctx context.Context, collection, field string, value any) (Document, error) {
	if id, ok := f.lookupIndexed(collection, field, value); ok {
		doc, err := f.GetByID(ctx, collection, id)
		if err == nil {
			return doc, nil
		}
		if !IsNotFound(err) {
			return Document{}, err
		}
		// Stale entry: the record moved or was deleted. Fall through to the
		// scan, which reflects whatever the backend currently holds.
	}

	docs, err := f.FindBy(ctx, collection, field, value, 1)
	if err != nil {
		return Document{}, err
	}
	if len(docs) == 0 {
		return Document{}, ErrNotFound
	}
	return docs[0], nil
}

func (f *Facade) lookupIndexed(collection, field string, value any) (int64, bool) {
	s, ok := value.(string)
	if !ok {
		return 0, false
	}
	switch {
	case field == "email" &&
		(collection == CollectionVerifiedUsers || collection == CollectionFraudUsers || collection == CollectionWallets):
		return f.index.LookupEmail(collection, s)
	case field == "receiptNumber" && collection == CollectionClaims:
		return f.index.LookupReceipt(s)
	}
	return 0, false
}
