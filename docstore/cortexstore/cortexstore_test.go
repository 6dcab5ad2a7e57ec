package cortexstore_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenbank/points-engine/docstore"
	"github.com/greenbank/points-engine/docstore/cortexstore"
)

// =============================================================================
// FAKE CORTEX SERVICE
// =============================================================================

type fakePoint struct {
	ID      int64            `json:"id"`
	Vector  []float64        `json:"vector,omitempty"`
	Payload docstore.Payload `json:"payload"`
}

// fakeCortex implements just enough of the wire protocol for the client.
type fakeCortex struct {
	mu     sync.Mutex
	points map[string]map[int64]fakePoint // collection -> id -> point
}

func newFakeCortex() *fakeCortex {
	return &fakeCortex{points: map[string]map[int64]fakePoint{}}
}

func (f *fakeCortex) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/collections/", f.route)
	return mux
}

func (f *fakeCortex) route(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/collections/"), "/"), "/")
	collection := parts[0]

	switch {
	case len(parts) == 1 && r.Method == http.MethodPut: // create collection
		if f.points[collection] == nil {
			f.points[collection] = map[int64]fakePoint{}
		}
		w.WriteHeader(http.StatusOK)

	case len(parts) == 2 && parts[1] == "points" && r.Method == http.MethodPost: // batch
		var body struct {
			Points []fakePoint `json:"points"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		for _, p := range body.Points {
			f.upsert(collection, p)
		}
		w.WriteHeader(http.StatusOK)

	case len(parts) == 3 && parts[2] == "scroll" && r.Method == http.MethodPost:
		var req struct {
			Limit int `json:"limit"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		out := []fakePoint{}
		for _, p := range f.points[collection] {
			if len(out) >= req.Limit {
				break
			}
			out = append(out, p)
		}
		json.NewEncoder(w).Encode(map[string]any{"points": out})

	case len(parts) == 3 && parts[1] == "points":
		id, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			http.Error(w, "bad id", http.StatusBadRequest)
			return
		}
		switch r.Method {
		case http.MethodPut:
			var p fakePoint
			json.NewDecoder(r.Body).Decode(&p)
			p.ID = id
			f.upsert(collection, p)
			w.WriteHeader(http.StatusOK)
		case http.MethodGet:
			p, ok := f.points[collection][id]
			if !ok {
				http.NotFound(w, r)
				return
			}
			json.NewEncoder(w).Encode(p)
		case http.MethodDelete:
			if _, ok := f.points[collection][id]; !ok {
				http.NotFound(w, r)
				return
			}
			delete(f.points[collection], id)
			w.WriteHeader(http.StatusOK)
		}

	default:
		http.Error(w, "unhandled route "+r.URL.Path, http.StatusBadRequest)
	}
}

func (f *fakeCortex) upsert(collection string, p fakePoint) {
	if f.points[collection] == nil {
		f.points[collection] = map[int64]fakePoint{}
	}
	f.points[collection][p.ID] = p
}

func newTestClient(t *testing.T) (*cortexstore.Store, *fakeCortex) {
	t.Helper()
	fake := newFakeCortex()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)
	return cortexstore.New(srv.URL, cortexstore.WithHTTPClient(srv.Client())), fake
}

// =============================================================================
// CLIENT TESTS
// =============================================================================

func TestCortexStore_UpsertCarriesVector(t *testing.T) {
	// GIVEN: A service that requires a vector on every point
	// WHEN: Upserting a payload-only document
	// THEN: The client fills in the fixed-dimension dummy vector

	ctx := context.Background()
	store, fake := newTestClient(t)

	require.NoError(t, store.Upsert(ctx, docstore.CollectionWallets, 1, docstore.Payload{"email": "a@x.io"}))

	fake.mu.Lock()
	p := fake.points[docstore.CollectionWallets][1]
	fake.mu.Unlock()
	assert.Len(t, p.Vector, docstore.VectorDim)
	assert.Equal(t, "a@x.io", p.Payload["email"])
}

func TestCortexStore_GetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestClient(t)

	require.NoError(t, store.Upsert(ctx, docstore.CollectionProducts, 5, docstore.Payload{"title": "Tote", "cost": 250.0}))

	doc, err := store.Get(ctx, docstore.CollectionProducts, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), doc.ID)
	assert.Equal(t, "Tote", doc.Payload["title"])
	assert.Equal(t, 250.0, doc.Payload["cost"])
}

func TestCortexStore_GetMissIsNotFoundNotTransport(t *testing.T) {
	// GIVEN: A healthy service without the requested point
	// WHEN: Reading it
	// THEN: ErrNotFound, which must NOT classify as a transport fault

	store, _ := newTestClient(t)

	_, err := store.Get(context.Background(), docstore.CollectionClaims, 404)
	require.Error(t, err)
	assert.True(t, docstore.IsNotFound(err))
	assert.False(t, docstore.IsTransport(err))
}

func TestCortexStore_ScrollAndBatch(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestClient(t)

	docs := []docstore.Document{
		{ID: 1, Payload: docstore.Payload{"title": "A"}},
		{ID: 2, Payload: docstore.Payload{"title": "B"}},
		{ID: 3, Payload: docstore.Payload{"title": "C"}},
	}
	require.NoError(t, store.BatchUpsert(ctx, docstore.CollectionProducts, docs))

	out, err := store.Scroll(ctx, docstore.CollectionProducts, 2)
	require.NoError(t, err)
	assert.Len(t, out, 2)

	out, err = store.Scroll(ctx, docstore.CollectionProducts, 10)
	require.NoError(t, err)
	assert.Len(t, out, 3)
}

func TestCortexStore_DeleteAbsentPointIsFine(t *testing.T) {
	store, _ := newTestClient(t)
	assert.NoError(t, store.Delete(context.Background(), docstore.CollectionProducts, 999))
}

func TestCortexStore_DeadServerIsTransport(t *testing.T) {
	// GIVEN: A server that has gone away
	// WHEN: Any operation runs
	// THEN: The error classifies as transport, which is what trips failover

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	store := cortexstore.New(url)
	err := store.Upsert(context.Background(), docstore.CollectionWallets, 1, docstore.Payload{})
	require.Error(t, err)
	assert.True(t, docstore.IsTransport(err))
}

func TestCortexStore_ServerErrorIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "vector index corrupted", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	store := cortexstore.New(srv.URL)
	_, err := store.Get(context.Background(), docstore.CollectionWallets, 1)
	require.Error(t, err)
	assert.True(t, docstore.IsTransport(err))
	assert.Contains(t, err.Error(), "500")
}

func TestCortexStore_EnsureCollectionsAndPing(t *testing.T) {
	ctx := context.Background()
	store, fake := newTestClient(t)

	require.NoError(t, store.EnsureCollections(ctx))
	require.NoError(t, store.Ping(ctx))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	for _, c := range docstore.Collections {
		_, ok := fake.points[c]
		assert.True(t, ok, fmt.Sprintf("collection %s not created", c))
	}
}

func TestCortexStore_MissingCollectionIsTransportOnWrites(t *testing.T) {
	// GIVEN: A server answering 404 on every route, as cortex does for a
	//        collection that was never created
	// WHEN: Writing, scrolling and reading
	// THEN: Only the single-point read treats 404 as an absent record;
	//       everything else is a transport fault so failover engages

	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	ctx := context.Background()
	store := cortexstore.New(srv.URL)

	err := store.Upsert(ctx, docstore.CollectionClaims, 1, docstore.Payload{"email": "a@x.io"})
	assert.True(t, docstore.IsTransport(err), "upsert: got %v", err)
	assert.False(t, docstore.IsNotFound(err))

	err = store.BatchUpsert(ctx, docstore.CollectionClaims, []docstore.Document{{ID: 1, Payload: docstore.Payload{}}})
	assert.True(t, docstore.IsTransport(err), "batch: got %v", err)

	_, err = store.Scroll(ctx, docstore.CollectionClaims, 10)
	assert.True(t, docstore.IsTransport(err), "scroll: got %v", err)

	_, err = store.Get(ctx, docstore.CollectionClaims, 1)
	assert.True(t, docstore.IsNotFound(err), "get: got %v", err)
	assert.False(t, docstore.IsTransport(err))
}
