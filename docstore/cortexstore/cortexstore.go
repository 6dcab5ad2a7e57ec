/*
Package cortexstore is the primary store adapter: an HTTP client for the
remote Cortex vector database.

WIRE FORMAT:
  Every upserted point carries a fixed 4-dimensional zero vector. The service
  requires a vector on every record; nothing in the hot path ever queries by
  similarity, so a dummy vector satisfies the schema at zero cost.

  PUT    /collections/{c}/points/{id}   {"vector": [...], "payload": {...}}
  GET    /collections/{c}/points/{id} -> {"id": n, "payload": {...}}
  POST   /collections/{c}/points/scroll {"limit": n} -> {"points": [...]}
  DELETE /collections/{c}/points/{id}
  POST   /collections/{c}/points        {"points": [...]}   (batch)
  PUT    /collections/{c}               create collection (idempotent)
  GET    /healthz

ERROR MAPPING:
  - 404 on a point read is docstore.ErrNotFound (a normal return)
  - connection errors, timeouts and 5xx wrap docstore.ErrTransport, which is
    what trips the failover controller

Every call is bounded by the client timeout; there is no retry here - retry
policy belongs to the failover layer.
*/
package cortexstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/greenbank/points-engine/docstore"
)

const defaultTimeout = 5 * time.Second

type Store struct {
	baseURL string
	client  *http.Client
}

type Option func(*Store)

// WithHTTPClient overrides the default client (tests, custom transports).
func WithHTTPClient(c *http.Client) Option {
	return func(s *Store) { s.client = c }
}

// New creates a client for the Cortex service at baseURL.
func New(baseURL string, opts ...Option) *Store {
	s := &Store{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func dummyVector() []float64 { return make([]float64, docstore.VectorDim) }

// =============================================================================
// WIRE TYPES
// =============================================================================

type point struct {
	ID      int64            `json:"id"`
	Vector  []float64        `json:"vector,omitempty"`
	Payload docstore.Payload `json:"payload"`
}

type scrollRequest struct {
	Limit int `json:"limit"`
}

type scrollResponse struct {
	Points []point `json:"points"`
}

// =============================================================================
// BACKEND IMPLEMENTATION
// =============================================================================

func (s *Store) Upsert(ctx context.Context, collection string, id int64, payload docstore.Payload) error {
	url := fmt.Sprintf("%s/collections/%s/points/%d", s.baseURL, collection, id)
	body := point{ID: id, Vector: dummyVector(), Payload: payload}
	return s.send(ctx, "upsert", collection, http.MethodPut, url, false, body, nil)
}

func (s *Store) Get(ctx context.Context, collection string, id int64) (docstore.Document, error) {
	url := fmt.Sprintf("%s/collections/%s/points/%d", s.baseURL, collection, id)
	var p point
	err := s.send(ctx, "get", collection, http.MethodGet, url, true, nil, &p)
	if err != nil {
		return docstore.Document{}, err
	}
	return docstore.Document{ID: id, Payload: p.Payload}, nil
}

func (s *Store) Scroll(ctx context.Context, collection string, limit int) ([]docstore.Document, error) {
	url := fmt.Sprintf("%s/collections/%s/points/scroll", s.baseURL, collection)
	var resp scrollResponse
	err := s.send(ctx, "scroll", collection, http.MethodPost, url, false, scrollRequest{Limit: limit}, &resp)
	if err != nil {
		return nil, err
	}
	docs := make([]docstore.Document, 0, len(resp.Points))
	for _, p := range resp.Points {
		docs = append(docs, docstore.Document{ID: p.ID, Payload: p.Payload})
	}
	return docs, nil
}

func (s *Store) Delete(ctx context.Context, collection string, id int64) error {
	url := fmt.Sprintf("%s/collections/%s/points/%d", s.baseURL, collection, id)
	err := s.send(ctx, "delete", collection, http.MethodDelete, url, true, nil, nil)
	if docstore.IsNotFound(err) {
		return nil // deleting an absent point is fine
	}
	return err
}

func (s *Store) BatchUpsert(ctx context.Context, collection string, docs []docstore.Document) error {
	url := fmt.Sprintf("%s/collections/%s/points", s.baseURL, collection)
	points := make([]point, 0, len(docs))
	for _, d := range docs {
		points = append(points, point{ID: d.ID, Vector: dummyVector(), Payload: d.Payload})
	}
	return s.send(ctx, "batch_upsert", collection, http.MethodPost, url, false, map[string]any{"points": points}, nil)
}

// EnsureCollections creates every known collection; existing ones are left
// untouched by the service.
func (s *Store) EnsureCollections(ctx context.Context) error {
	for _, c := range docstore.Collections {
		url := fmt.Sprintf("%s/collections/%s", s.baseURL, c)
		body := map[string]any{"dimension": docstore.VectorDim, "distance": "euclidean"}
		if err := s.send(ctx, "create_collection", c, http.MethodPut, url, false, body, nil); err != nil {
			return err
		}
	}
	return nil
}

// Ping satisfies docstore.Pinger for the failover health hook.
func (s *Store) Ping(ctx context.Context) error {
	return s.send(ctx, "ping", "", http.MethodGet, s.baseURL+"/healthz", false, nil, nil)
}

// =============================================================================
// TRANSPORT
// =============================================================================

// send performs one request. pointRead marks calls addressing a single
// point, where HTTP 404 means the point is absent; everywhere else a 404 is
// a missing collection or route, which is a transport fault like any other
// server error.
func (s *Store) send(ctx context.Context, op, collection, method, url string, pointRead bool, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return docstore.Transport(op, collection, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return docstore.Transport(op, collection, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound && pointRead:
		return docstore.ErrNotFound
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return docstore.Transport(op, collection,
			fmt.Errorf("cortex returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return docstore.Transport(op, collection, fmt.Errorf("decode response: %w", err))
	}
	return nil
}
