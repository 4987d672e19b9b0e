package sqlite

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/pkg/errors"

	"github.com/hrygo/vectorwave/store"
)

// float32ArrayToBLOB encodes a vector as little-endian float32 values.
func float32ArrayToBLOB(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], math.Float32bits(v))
	}
	return buf
}

// blobToFloat32Array is the inverse of float32ArrayToBLOB.
func blobToFloat32Array(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("invalid BLOB length: %d is not a multiple of 4", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4 : i*4+4]))
	}
	return vec, nil
}

// cosineSimilarity returns 0 when either vector has zero norm or the
// dimensions differ.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func (d *DB) UpsertVectorEntries(ctx context.Context, entries []*store.VectorEntry) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	stmt := `INSERT INTO vector_entry (namespace, id, embedding, metadata_text, created_ts)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (namespace, id) DO UPDATE SET
			embedding = excluded.embedding,
			metadata_text = excluded.metadata_text`
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, stmt, e.Namespace, e.ID, float32ArrayToBLOB(e.Vector), e.MetadataText, e.CreatedTs); err != nil {
			return errors.Wrapf(err, "failed to upsert vector entry %s", e.ID)
		}
	}
	return tx.Commit()
}

// SearchVectorEntries scans the namespace in insertion order and ranks it in
// memory. The stable sort keeps insertion order among equal scores.
func (d *DB) SearchVectorEntries(ctx context.Context, search *store.SearchVectorEntries) ([]*store.VectorMatch, error) {
	limit := search.Limit
	if limit <= 0 {
		limit = 3
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT id, embedding, metadata_text FROM vector_entry WHERE namespace = ? ORDER BY seq ASC`,
		search.Namespace,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search vector entries")
	}
	defer rows.Close()

	results := []*store.VectorMatch{}
	for rows.Next() {
		var (
			m    store.VectorMatch
			blob []byte
		)
		if err := rows.Scan(&m.ID, &blob, &m.MetadataText); err != nil {
			return nil, errors.Wrap(err, "failed to scan vector entry")
		}
		vec, err := blobToFloat32Array(blob)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to decode vector entry %s", m.ID)
		}
		m.Score = cosineSimilarity(search.Vector, vec)
		results = append(results, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (d *DB) DeleteVectorEntries(ctx context.Context, delete *store.DeleteVectorEntries) (int64, error) {
	result, err := d.db.ExecContext(ctx,
		`DELETE FROM vector_entry WHERE namespace = ? AND substr(id, 1, length(?)) = ?`,
		delete.Namespace, delete.IDPrefix, delete.IDPrefix,
	)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete vector entries")
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}
