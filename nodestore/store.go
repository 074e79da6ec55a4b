package nodestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/ruteri/shardvault/interfaces"
)

const (
	schemasPrefix = "schemas/"
	queriesPrefix = "queries/"
	dataPrefix    = "data/"
)

// Store implements collections, documents and stored queries over an ObjectStore.
// Writes are serialized so that id uniqueness holds within one node process.
type Store struct {
	objects ObjectStore
	log     *slog.Logger
	mu      sync.Mutex
}

func NewStore(objects ObjectStore, log *slog.Logger) *Store {
	return &Store{objects: objects, log: log}
}

// Backend returns the underlying object store.
func (s *Store) Backend() ObjectStore {
	return s.objects
}

// CreateSchema registers a collection. Ids are unique.
func (s *Store) CreateSchema(ctx context.Context, schema interfaces.Schema) error {
	if !ValidID(schema.ID) {
		return fmt.Errorf("%w: schema id %q", ErrInvalidID, schema.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.putNew(ctx, schemasPrefix+schema.ID, schema); err != nil {
		if errors.Is(err, ErrRecordExists) {
			return fmt.Errorf("%w: %s", ErrSchemaExists, schema.ID)
		}
		return err
	}

	s.log.Info("Schema registered", slog.String("schema", schema.ID), slog.String("name", schema.Name))
	return nil
}

// Schema returns a registered collection or ErrSchemaNotFound.
func (s *Store) Schema(ctx context.Context, id string) (interfaces.Schema, error) {
	var schema interfaces.Schema
	if !ValidID(id) {
		return schema, fmt.Errorf("%w: %q", ErrSchemaNotFound, id)
	}

	if err := s.get(ctx, schemasPrefix+id, &schema); err != nil {
		if errors.Is(err, ErrNotFound) {
			return schema, fmt.Errorf("%w: %s", ErrSchemaNotFound, id)
		}
		return schema, err
	}
	return schema, nil
}

// Insert stores a document under its "_id" in the given collection.
// It returns ErrRecordExists when the id is already taken.
func (s *Store) Insert(ctx context.Context, schemaID string, doc map[string]any) error {
	id, _ := doc["_id"].(string)
	if !ValidID(id) {
		return fmt.Errorf("%w: document id %q", ErrInvalidID, id)
	}

	if _, err := s.Schema(ctx, schemaID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.putNew(ctx, dataKey(schemaID, id), doc)
}

// Find returns the documents of a collection whose top-level fields equal
// every field of filter. An empty filter matches everything.
func (s *Store) Find(ctx context.Context, schemaID string, filter map[string]any) ([]map[string]any, error) {
	if _, err := s.Schema(ctx, schemaID); err != nil {
		return nil, err
	}

	keys, err := s.objects.List(ctx, dataPrefix+schemaID+"/")
	if err != nil {
		return nil, err
	}

	res := make([]map[string]any, 0, len(keys))
	for _, key := range keys {
		var doc map[string]any
		if err := s.get(ctx, key, &doc); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		if Matches(doc, filter) {
			res = append(res, doc)
		}
	}
	return res, nil
}

// CreateQuery registers a stored query against an existing collection.
func (s *Store) CreateQuery(ctx context.Context, query interfaces.Query) error {
	if !ValidID(query.ID) {
		return fmt.Errorf("%w: query id %q", ErrInvalidID, query.ID)
	}
	if _, err := s.Schema(ctx, query.Schema); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.putNew(ctx, queriesPrefix+query.ID, query); err != nil {
		if errors.Is(err, ErrRecordExists) {
			return fmt.Errorf("%w: %s", ErrQueryExists, query.ID)
		}
		return err
	}
	return nil
}

// Query returns a stored query or ErrQueryNotFound.
func (s *Store) Query(ctx context.Context, id string) (interfaces.Query, error) {
	var query interfaces.Query
	if !ValidID(id) {
		return query, fmt.Errorf("%w: %q", ErrQueryNotFound, id)
	}

	if err := s.get(ctx, queriesPrefix+id, &query); err != nil {
		if errors.Is(err, ErrNotFound) {
			return query, fmt.Errorf("%w: %s", ErrQueryNotFound, id)
		}
		return query, err
	}
	return query, nil
}

// Matches reports whether every filter field is present in doc with an equal value.
// Values are compared after JSON normalization, so 1 and 1.0 are equal.
func Matches(doc, filter map[string]any) bool {
	for field, want := range filter {
		got, ok := doc[field]
		if !ok || !reflect.DeepEqual(normalize(got), normalize(want)) {
			return false
		}
	}
	return true
}

func normalize(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

// putNew must be called with s.mu held.
func (s *Store) putNew(ctx context.Context, key string, v any) error {
	_, err := s.objects.Get(ctx, key)
	switch {
	case err == nil:
		return ErrRecordExists
	case !errors.Is(err, ErrNotFound):
		return err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("could not encode object: %w", err)
	}
	return s.objects.Put(ctx, key, data)
}

func (s *Store) get(ctx context.Context, key string, v any) error {
	data, err := s.objects.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("corrupted object %s: %w", key, err)
	}
	return nil
}

func dataKey(schemaID, id string) string {
	return dataPrefix + schemaID + "/" + id
}
