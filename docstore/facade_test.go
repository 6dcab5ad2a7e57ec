package docstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenbank/points-engine/docstore"
	"github.com/greenbank/points-engine/docstore/memstore"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// laggingBackend simulates an eventually consistent store: point reads are
// immediate, scans see nothing until Settle is called.
type laggingBackend struct {
	*memstore.Store
	settled bool
}

func (l *laggingBackend) Scroll(ctx context.Context, collection string, limit int) ([]docstore.Document, error) {
	if !l.settled {
		return nil, nil
	}
	return l.Store.Scroll(ctx, collection, limit)
}

func newTestFacade(t *testing.T, primary docstore.Backend) *docstore.Facade {
	t.Helper()
	idx, err := docstore.LoadIndex("")
	require.NoError(t, err)
	fo := docstore.NewFailover(primary, memstore.New(), nil, nil)
	return docstore.New(fo, idx, docstore.MustGenerator(), nil)
}

// =============================================================================
// FACADE TESTS
// =============================================================================

func TestFacade_PutThenGetByID(t *testing.T) {
	ctx := context.Background()
	f := newTestFacade(t, memstore.New())

	id := f.IDs().NextID()
	require.NoError(t, f.Put(ctx, docstore.CollectionProducts, id, docstore.Payload{"title": "Tote"}))

	doc, err := f.GetByID(ctx, docstore.CollectionProducts, id)
	require.NoError(t, err)
	assert.Equal(t, "Tote", doc.Payload["title"])
}

func TestFacade_FindOneByEmailBeatsScanLag(t *testing.T) {
	// GIVEN: A backend whose scans lag writes indefinitely
	// WHEN: A wallet is written and immediately looked up by email
	// THEN: The consistency index resolves it without a scan

	ctx := context.Background()
	lagging := &laggingBackend{Store: memstore.New()}
	f := newTestFacade(t, lagging)

	require.NoError(t, f.Put(ctx, docstore.CollectionWallets, 7, docstore.Payload{
		"email":   "fresh@x.io",
		"balance": 100.0,
	}))

	doc, err := f.FindOne(ctx, docstore.CollectionWallets, "email", "fresh@x.io")
	require.NoError(t, err)
	assert.Equal(t, int64(7), doc.ID)
}

func TestFacade_FindOneUnindexedFieldUsesScan(t *testing.T) {
	// GIVEN: A product findable only by cuid (not an indexed field)
	// WHEN: Scans have settled
	// THEN: The scan path resolves it

	ctx := context.Background()
	lagging := &laggingBackend{Store: memstore.New()}
	f := newTestFacade(t, lagging)

	require.NoError(t, f.Put(ctx, docstore.CollectionProducts, 3, docstore.Payload{"cuid": "abc123"}))

	_, err := f.FindOne(ctx, docstore.CollectionProducts, "cuid", "abc123")
	assert.True(t, docstore.IsNotFound(err), "scan lag hides the record")

	lagging.settled = true
	doc, err := f.FindOne(ctx, docstore.CollectionProducts, "cuid", "abc123")
	require.NoError(t, err)
	assert.Equal(t, int64(3), doc.ID)
}

func TestFacade_StaleIndexEntryFallsBackToScan(t *testing.T) {
	// GIVEN: An indexed account whose record was moved (old id deleted)
	// WHEN: Looking up by email
	// THEN: The stale point read misses and the scan finds the new record

	ctx := context.Background()
	primary := memstore.New()
	f := newTestFacade(t, primary)

	require.NoError(t, f.Put(ctx, docstore.CollectionVerifiedUsers, 1, docstore.Payload{"email": "m@x.io"}))

	// Simulate a move that bypassed the index: delete the indexed record and
	// write a replacement directly to the backend.
	require.NoError(t, primary.Delete(ctx, docstore.CollectionVerifiedUsers, 1))
	require.NoError(t, primary.Upsert(ctx, docstore.CollectionVerifiedUsers, 2, docstore.Payload{"email": "m@x.io"}))

	doc, err := f.FindOne(ctx, docstore.CollectionVerifiedUsers, "email", "m@x.io")
	require.NoError(t, err)
	assert.Equal(t, int64(2), doc.ID)
}

func TestFacade_TransactionsByEmailMergeIndexAndScan(t *testing.T) {
	// GIVEN: Two transactions for one email, scans lagging
	// WHEN: FindBy email on the transactions collection
	// THEN: The index id list makes both visible, exactly once each

	ctx := context.Background()
	lagging := &laggingBackend{Store: memstore.New()}
	f := newTestFacade(t, lagging)

	require.NoError(t, f.Put(ctx, docstore.CollectionTransactions, 100, docstore.Payload{"email": "t@x.io", "amount": 50.0}))
	require.NoError(t, f.Put(ctx, docstore.CollectionTransactions, 101, docstore.Payload{"email": "t@x.io", "amount": -20.0}))

	docs, err := f.FindBy(ctx, docstore.CollectionTransactions, "email", "t@x.io", 10)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	// Settled scans must not duplicate what the index already returned.
	lagging.settled = true
	docs, err = f.FindBy(ctx, docstore.CollectionTransactions, "email", "t@x.io", 10)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestFacade_DeleteIsBestEffort(t *testing.T) {
	// GIVEN: A record id that does not exist
	// WHEN: Deleting it
	// THEN: No panic, no error surfaced, state stays PRIMARY

	ctx := context.Background()
	f := newTestFacade(t, memstore.New())

	f.Delete(ctx, docstore.CollectionFraudUsers, 9999)
	assert.Equal(t, docstore.StatePrimary, f.State())
}

func TestFacade_BatchPutIndexesEveryRecord(t *testing.T) {
	// GIVEN: A batch of wallets
	// WHEN: BatchPut completes
	// THEN: Each is resolvable by email through the index

	ctx := context.Background()
	lagging := &laggingBackend{Store: memstore.New()}
	f := newTestFacade(t, lagging)

	docs := []docstore.Document{
		{ID: 1, Payload: docstore.Payload{"email": "one@x.io"}},
		{ID: 2, Payload: docstore.Payload{"email": "two@x.io"}},
	}
	require.NoError(t, f.BatchPut(ctx, docstore.CollectionWallets, docs))

	for _, d := range docs {
		got, err := f.FindOne(ctx, docstore.CollectionWallets, "email", d.Payload["email"])
		require.NoError(t, err)
		assert.Equal(t, d.ID, got.ID)
	}
}

func TestFacade_GetAllDefaultsLimit(t *testing.T) {
	ctx := context.Background()
	f := newTestFacade(t, memstore.New())

	require.NoError(t, f.Put(ctx, docstore.CollectionProducts, 1, docstore.Payload{"title": "A"}))

	docs, err := f.GetAll(ctx, docstore.CollectionProducts, 0)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}
