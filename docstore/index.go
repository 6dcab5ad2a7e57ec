/*
index.go - Write-through consistency index

PURPOSE:
  The remote backend's scan is only eventually consistent: a record written is
  not guaranteed visible to a scan issued immediately after. That breaks
  login/lookup-by-email and duplicate-receipt detection if those always scan.
  This index maps the two fields that need immediate-consistency lookups
  (email, receiptNumber) plus the per-email transaction id list to record ids.

  It is NOT a payload cache. Every hit still performs a point read, so
  staleness is bounded by point-read freshness, not scan freshness.

PERSISTENCE:
  Three flat maps serialized to one JSON file after every write (write-through,
  not write-behind), reloaded verbatim at startup. A missing file is a cold
  start, not an error. The write goes through a temp file + rename so a crash
  mid-write cannot corrupt the previous snapshot.

STALENESS:
  An entry whose point read now returns NotFound (record deleted or moved to
  another collection) makes the lookup fall back to the scan path. The stale
  entry itself is not purged; the next Put for the same key overwrites it.
*/
package docstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// =============================================================================
// INDEX - field value -> record id, persisted across restarts
// =============================================================================

// Index is the consistency index. All methods are safe for concurrent use.
type Index struct {
	mu   sync.Mutex
	path string

	// Emails is keyed "collection:email" because the same email identifies
	// records in both the user and wallet collections.
	Emails   map[string]int64   `json:"emails"`
	Receipts map[string]int64   `json:"receipts"`
	TxIDs    map[string][]int64 `json:"transactions"`
}

// LoadIndex loads the index from path, starting cold when the file is absent.
func LoadIndex(path string) (*Index, error) {
	idx := &Index{
		path:     path,
		Emails:   make(map[string]int64),
		Receipts: make(map[string]int64),
		TxIDs:    make(map[string][]int64),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return idx, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load consistency index: %w", err)
	}
	if err := json.Unmarshal(data, idx); err != nil {
		return nil, fmt.Errorf("parse consistency index %s: %w", path, err)
	}
	// Guard against a hand-edited file with nulls.
	if idx.Emails == nil {
		idx.Emails = make(map[string]int64)
	}
	if idx.Receipts == nil {
		idx.Receipts = make(map[string]int64)
	}
	if idx.TxIDs == nil {
		idx.TxIDs = make(map[string][]int64)
	}
	return idx, nil
}

func emailKey(collection, email string) string { return collection + ":" + email }

// Observe inspects a just-written payload and records any indexable fields.
// Called by the Facade on every successful Put; persists before returning.
func (x *Index) Observe(collection string, id int64, payload Payload) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	changed := false
	switch collection {
	case CollectionVerifiedUsers, CollectionFraudUsers, CollectionWallets:
		if email := String(payload, "email"); email != "" {
			x.Emails[emailKey(collection, email)] = id
			changed = true
		}
	case CollectionClaims:
		if rn := String(payload, "receiptNumber"); rn != "" {
			x.Receipts[rn] = id
			changed = true
		}
	case CollectionTransactions:
		if email := String(payload, "email"); email != "" {
			ids := x.TxIDs[email]
			if len(ids) == 0 || ids[len(ids)-1] != id {
				x.TxIDs[email] = append(ids, id)
				changed = true
			}
		}
	}

	if !changed {
		return nil
	}
	return x.persistLocked()
}

// LookupEmail resolves collection+email to a record id.
func (x *Index) LookupEmail(collection, email string) (int64, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	id, ok := x.Emails[emailKey(collection, email)]
	return id, ok
}

// LookupReceipt resolves a receipt number to a claim record id.
func (x *Index) LookupReceipt(receiptNumber string) (int64, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	id, ok := x.Receipts[receiptNumber]
	return id, ok
}

// TransactionIDs returns the recorded transaction ids for an email, oldest
// first.
func (x *Index) TransactionIDs(email string) []int64 {
	x.mu.Lock()
	defer x.mu.Unlock()
	out := make([]int64, len(x.TxIDs[email]))
	copy(out, x.TxIDs[email])
	return out
}

func (x *Index) persistLocked() error {
	if x.path == "" {
		return nil // ephemeral index (tests)
	}
	data, err := json.MarshalIndent(x, "", "  ")
	if err != nil {
		return err
	}
	tmp := x.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(x.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, x.path)
}
