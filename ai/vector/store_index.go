package vector

import (
	"context"
	"errors"
	"fmt"

	"github.com/hrygo/vectorwave/store"
)

// StoreIndex is an Index persisted through the store driver: pgvector on
// postgres, BLOB rows with in-process scoring on sqlite.
type StoreIndex struct {
	store *store.Store
}

// NewStoreIndex creates an Index over s.
func NewStoreIndex(s *store.Store) *StoreIndex {
	return &StoreIndex{store: s}
}

func (x *StoreIndex) Upsert(ctx context.Context, namespace string, entries []Entry) error {
	if namespace == "" {
		return errors.New("vector namespace is required")
	}
	rows := make([]*store.VectorEntry, 0, len(entries))
	for _, e := range entries {
		if e.ID == "" || len(e.Vector) == 0 {
			return fmt.Errorf("vector entry %q has no id or vector", e.ID)
		}
		rows = append(rows, &store.VectorEntry{
			Namespace:    namespace,
			ID:           e.ID,
			Vector:       e.Vector,
			MetadataText: e.MetadataText,
		})
	}
	if err := x.store.UpsertVectorEntries(ctx, rows); err != nil {
		return fmt.Errorf("upsert vectors: %w", err)
	}
	return nil
}

func (x *StoreIndex) DeleteByPrefix(ctx context.Context, namespace, prefix string) (int64, error) {
	n, err := x.store.DeleteVectorEntries(ctx, &store.DeleteVectorEntries{
		Namespace: namespace,
		IDPrefix:  prefix,
	})
	if err != nil {
		return 0, fmt.Errorf("delete vectors: %w", err)
	}
	return n, nil
}

func (x *StoreIndex) Query(ctx context.Context, namespace string, vec []float32, topK int) ([]Match, error) {
	if len(vec) == 0 {
		return nil, errors.New("query vector is empty")
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	hits, err := x.store.SearchVectorEntries(ctx, &store.SearchVectorEntries{
		Namespace: namespace,
		Vector:    vec,
		Limit:     topK,
	})
	if err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}
	matches := make([]Match, len(hits))
	for i, h := range hits {
		matches[i] = Match{ID: h.ID, Score: h.Score, MetadataText: h.MetadataText}
	}
	return matches, nil
}
