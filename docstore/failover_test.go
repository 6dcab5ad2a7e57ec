package docstore_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenbank/points-engine/docstore"
	"github.com/greenbank/points-engine/docstore/memstore"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// faultyBackend fails every call with a transport error after `healthy`
// successful operations.
type faultyBackend struct {
	inner   *memstore.Store
	healthy int
	mu      sync.Mutex
	calls   int
}

func newFaultyBackend(healthy int) *faultyBackend {
	return &faultyBackend{inner: memstore.New(), healthy: healthy}
}

func (f *faultyBackend) fail(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls > f.healthy {
		return docstore.Transport(op, "", errors.New("connection refused"))
	}
	return nil
}

func (f *faultyBackend) Upsert(ctx context.Context, c string, id int64, p docstore.Payload) error {
	if err := f.fail("upsert"); err != nil {
		return err
	}
	return f.inner.Upsert(ctx, c, id, p)
}

func (f *faultyBackend) Get(ctx context.Context, c string, id int64) (docstore.Document, error) {
	if err := f.fail("get"); err != nil {
		return docstore.Document{}, err
	}
	return f.inner.Get(ctx, c, id)
}

func (f *faultyBackend) Scroll(ctx context.Context, c string, limit int) ([]docstore.Document, error) {
	if err := f.fail("scroll"); err != nil {
		return nil, err
	}
	return f.inner.Scroll(ctx, c, limit)
}

func (f *faultyBackend) Delete(ctx context.Context, c string, id int64) error {
	if err := f.fail("delete"); err != nil {
		return err
	}
	return f.inner.Delete(ctx, c, id)
}

func (f *faultyBackend) BatchUpsert(ctx context.Context, c string, docs []docstore.Document) error {
	if err := f.fail("batch_upsert"); err != nil {
		return err
	}
	return f.inner.BatchUpsert(ctx, c, docs)
}

// =============================================================================
// FAILOVER TESTS
// =============================================================================

func TestFailover_TransportFaultTripsToFallback(t *testing.T) {
	// GIVEN: A primary that dies after one successful write
	// WHEN: The second write fails with a transport error
	// THEN: The call is retried on the fallback and the state is DEGRADED

	ctx := context.Background()
	primary := newFaultyBackend(1)
	fallback := memstore.New()
	fo := docstore.NewFailover(primary, fallback, nil, nil)

	err := fo.Do(ctx, "put", func(b docstore.Backend) error {
		return b.Upsert(ctx, docstore.CollectionWallets, 1, docstore.Payload{"email": "a@x.io"})
	})
	require.NoError(t, err)
	assert.Equal(t, docstore.StatePrimary, fo.State())

	err = fo.Do(ctx, "put", func(b docstore.Backend) error {
		return b.Upsert(ctx, docstore.CollectionWallets, 2, docstore.Payload{"email": "b@x.io"})
	})
	require.NoError(t, err, "transport fault should be absorbed by the fallback retry")
	assert.Equal(t, docstore.StateDegraded, fo.State())

	// The retried record landed on the fallback.
	doc, err := fallback.Get(ctx, docstore.CollectionWallets, 2)
	require.NoError(t, err)
	assert.Equal(t, "b@x.io", doc.Payload["email"])
}

func TestFailover_DegradedIsSticky(t *testing.T) {
	// GIVEN: A tripped controller whose primary has recovered
	// WHEN: Further operations run
	// THEN: They are still served by the fallback; recovery needs a restart

	ctx := context.Background()
	primary := newFaultyBackend(0) // fails immediately
	fallback := memstore.New()
	fo := docstore.NewFailover(primary, fallback, nil, nil)

	err := fo.Do(ctx, "put", func(b docstore.Backend) error {
		return b.Upsert(ctx, docstore.CollectionClaims, 1, docstore.Payload{"receiptNumber": "R-1"})
	})
	require.NoError(t, err)
	require.Equal(t, docstore.StateDegraded, fo.State())

	// "Heal" the primary.
	primary.mu.Lock()
	primary.healthy = 1 << 30
	primary.mu.Unlock()

	err = fo.Do(ctx, "get", func(b docstore.Backend) error {
		_, e := b.Get(ctx, docstore.CollectionClaims, 1)
		return e
	})
	require.NoError(t, err, "record must be readable, so this ran on the fallback")
	assert.Equal(t, docstore.StateDegraded, fo.State())
	assert.Equal(t, 1, primary.calls, "primary must not be touched after the trip")
}

func TestFailover_NotFoundDoesNotTrip(t *testing.T) {
	// GIVEN: A healthy primary with no records
	// WHEN: A point read misses
	// THEN: ErrNotFound passes through and the state stays PRIMARY

	ctx := context.Background()
	fo := docstore.NewFailover(memstore.New(), memstore.New(), nil, nil)

	err := fo.Do(ctx, "get", func(b docstore.Backend) error {
		_, e := b.Get(ctx, docstore.CollectionWallets, 404)
		return e
	})
	require.Error(t, err)
	assert.True(t, docstore.IsNotFound(err))
	assert.Equal(t, docstore.StatePrimary, fo.State())
}

func TestFailover_ConcurrentTripIsSafe(t *testing.T) {
	// GIVEN: A primary that fails every call
	// WHEN: Many goroutines hit it at once
	// THEN: Every call succeeds via the fallback and the trip happens cleanly

	ctx := context.Background()
	fo := docstore.NewFailover(newFaultyBackend(0), memstore.New(), nil, nil)

	var wg sync.WaitGroup
	errs := make([]error, 16)
	for i := range errs {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			errs[n] = fo.Do(ctx, "put", func(b docstore.Backend) error {
				return b.Upsert(ctx, docstore.CollectionWallets, int64(n), docstore.Payload{"n": n})
			})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, docstore.StateDegraded, fo.State())
}
