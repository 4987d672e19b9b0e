// Package vector is the namespaced nearest-neighbour index used for
// retrieval-augmented turns.
package vector

import (
	"context"
	"fmt"
)

// DefaultTopK is the number of matches a turn asks for by default.
const DefaultTopK = 3

// Entry is one vector to upsert.
type Entry struct {
	ID           string
	Vector       []float32
	MetadataText string
}

// Match is a query hit. Score is the cosine similarity in [-1, 1].
type Match struct {
	ID           string  `json:"id"`
	Score        float64 `json:"score"`
	MetadataText string  `json:"metadataText"`
}

// Index stores vectors per namespace. Within a namespace ids are unique and
// upserts replace the previous vector.
type Index interface {
	Upsert(ctx context.Context, namespace string, entries []Entry) error
	// DeleteByPrefix removes every entry whose id starts with prefix and
	// returns how many were removed.
	DeleteByPrefix(ctx context.Context, namespace, prefix string) (int64, error)
	// Query returns up to topK entries by descending cosine similarity.
	Query(ctx context.Context, namespace string, vec []float32, topK int) ([]Match, error)
}

// ChunkID names the index-th chunk of a document.
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s:chunk%d", documentID, index)
}

// DocumentPrefix matches every chunk id of a document and nothing else.
func DocumentPrefix(documentID string) string {
	return documentID + ":"
}
