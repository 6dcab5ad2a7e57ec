/*
Package redistore provides a Redis-backed document backend.

Each collection is a Redis hash keyed "doc:<collection>"; fields are record
ids, values are JSON payloads. Network failures wrap docstore.ErrTransport so
the failover controller treats a lost Redis exactly like a lost remote vector
service.

Scroll uses HSCAN bounded by limit, so it carries the same "no ordering, may
lag" contract as the other backends.
*/
package redistore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/greenbank/points-engine/docstore"
)

type Store struct {
	client *redis.Client
}

// New connects to Redis and verifies the connection.
func New(addr, password string, db int) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &Store{client: client}, nil
}

// Close releases the client.
func (s *Store) Close() error { return s.client.Close() }

func key(collection string) string { return "doc:" + collection }

func (s *Store) Upsert(ctx context.Context, collection string, id int64, payload docstore.Payload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	if err := s.client.HSet(ctx, key(collection), strconv.FormatInt(id, 10), data).Err(); err != nil {
		return docstore.Transport("upsert", collection, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, collection string, id int64) (docstore.Document, error) {
	data, err := s.client.HGet(ctx, key(collection), strconv.FormatInt(id, 10)).Bytes()
	if err == redis.Nil {
		return docstore.Document{}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Document{}, docstore.Transport("get", collection, err)
	}
	var payload docstore.Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return docstore.Document{}, fmt.Errorf("decode payload for id %d: %w", id, err)
	}
	return docstore.Document{ID: id, Payload: payload}, nil
}

func (s *Store) Scroll(ctx context.Context, collection string, limit int) ([]docstore.Document, error) {
	var docs []docstore.Document
	iter := s.client.HScan(ctx, key(collection), 0, "", int64(limit)).Iterator()
	for iter.Next(ctx) {
		field := iter.Val()
		if !iter.Next(ctx) {
			break
		}
		value := iter.Val()

		id, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			continue
		}
		var payload docstore.Payload
		if err := json.Unmarshal([]byte(value), &payload); err != nil {
			continue
		}
		docs = append(docs, docstore.Document{ID: id, Payload: payload})
		if len(docs) >= limit {
			break
		}
	}
	if err := iter.Err(); err != nil {
		return nil, docstore.Transport("scroll", collection, err)
	}
	return docs, nil
}

func (s *Store) Delete(ctx context.Context, collection string, id int64) error {
	if err := s.client.HDel(ctx, key(collection), strconv.FormatInt(id, 10)).Err(); err != nil {
		return docstore.Transport("delete", collection, err)
	}
	return nil
}

func (s *Store) BatchUpsert(ctx context.Context, collection string, docs []docstore.Document) error {
	pairs := make([]any, 0, len(docs)*2)
	for _, d := range docs {
		data, err := json.Marshal(d.Payload)
		if err != nil {
			return fmt.Errorf("encode payload for id %d: %w", d.ID, err)
		}
		pairs = append(pairs, strconv.FormatInt(d.ID, 10), data)
	}
	if len(pairs) == 0 {
		return nil
	}
	if err := s.client.HSet(ctx, key(collection), pairs...).Err(); err != nil {
		return docstore.Transport("batch_upsert", collection, err)
	}
	return nil
}

// Ping satisfies docstore.Pinger.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
