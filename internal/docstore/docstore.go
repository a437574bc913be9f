// Package docstore serves JSON document collections kept in the object store
// as collections/<name>.json. Each object holds one JSON array of documents.
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/chatdb/chatdb/internal/storage"
)

var ErrCollectionNotFound = errors.New("collection not found")

// Query is the structured form of a document lookup. It is echoed back to
// clients as the backend's query text.
type Query struct {
	Collection string         `json:"collection"`
	Filter     map[string]any `json:"filter"`
	Limit      int            `json:"limit,omitempty"`
}

type Store struct {
	objects storage.ObjectStore
}

func New(objects storage.ObjectStore) (*Store, error) {
	if objects == nil {
		return nil, fmt.Errorf("object store is required")
	}
	return &Store{objects: objects}, nil
}

func (s *Store) Collections(ctx context.Context) ([]string, error) {
	infos, err := s.objects.List(ctx, storage.CollectionsRoot+"/")
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		if name, ok := storage.CollectionFromKey(info.Key); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Find returns the documents of q.Collection matching q.Filter in stored
// order, at most q.Limit of them when Limit is positive.
func (s *Store) Find(ctx context.Context, q Query) ([]any, error) {
	matcher, err := compileFilter(q.Filter)
	if err != nil {
		return nil, err
	}
	docs, err := s.load(ctx, q.Collection)
	if err != nil {
		return nil, err
	}
	matched := make([]any, 0)
	for _, doc := range docs {
		if !matcher(doc) {
			continue
		}
		matched = append(matched, doc)
		if q.Limit > 0 && len(matched) == q.Limit {
			break
		}
	}
	return matched, nil
}

// Replace overwrites a collection with docs.
func (s *Store) Replace(ctx context.Context, collection string, docs []any) error {
	key, err := storage.BuildCollectionPath(collection)
	if err != nil {
		return err
	}
	if docs == nil {
		docs = []any{}
	}
	body, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("encode collection %q: %w", collection, err)
	}
	if _, err := s.objects.Put(ctx, key, bytes.NewReader(body), int64(len(body)), storage.PutOptions{ContentType: "application/json"}); err != nil {
		return fmt.Errorf("store collection %q: %w", collection, err)
	}
	return nil
}

func (s *Store) load(ctx context.Context, collection string) ([]any, error) {
	key, err := storage.BuildCollectionPath(collection)
	if err != nil {
		return nil, err
	}
	reader, err := s.objects.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
		}
		return nil, fmt.Errorf("read collection %q: %w", collection, err)
	}
	defer func() { _ = reader.Close() }()

	decoder := json.NewDecoder(reader)
	decoder.UseNumber()
	var docs []any
	if err := decoder.Decode(&docs); err != nil {
		return nil, fmt.Errorf("decode collection %q: %w", collection, err)
	}
	return docs, nil
}
