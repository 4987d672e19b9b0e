package postgres

import (
	"context"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/hrygo/vectorwave/store"
)

// UpsertVectorEntries writes all entries in one transaction. An existing
// (namespace, id) keeps its seq so insertion order survives re-embedding.
func (d *DB) UpsertVectorEntries(ctx context.Context, entries []*store.VectorEntry) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	stmt := `
		INSERT INTO vector_entry (namespace, id, embedding, metadata_text, created_ts)
		VALUES (` + placeholders(5) + `)
		ON CONFLICT (namespace, id)
		DO UPDATE SET
			embedding = EXCLUDED.embedding,
			metadata_text = EXCLUDED.metadata_text`

	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, stmt,
			e.Namespace,
			e.ID,
			pgvector.NewVector(e.Vector),
			e.MetadataText,
			e.CreatedTs,
		); err != nil {
			return errors.Wrapf(err, "failed to upsert vector entry %s", e.ID)
		}
	}
	return tx.Commit()
}

// SearchVectorEntries ranks a namespace by cosine similarity using pgvector.
// The <=> operator computes cosine distance (1 - cosine_similarity).
func (d *DB) SearchVectorEntries(ctx context.Context, search *store.SearchVectorEntries) ([]*store.VectorMatch, error) {
	limit := search.Limit
	if limit <= 0 {
		limit = 3
	}

	query := `
		SELECT id, metadata_text, 1 - (embedding <=> ` + placeholder(2) + `) AS score
		FROM vector_entry
		WHERE namespace = ` + placeholder(1) + `
		ORDER BY embedding <=> ` + placeholder(2) + `, seq ASC
		LIMIT ` + placeholder(3)

	rows, err := d.db.QueryContext(ctx, query, search.Namespace, pgvector.NewVector(search.Vector), limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search vector entries")
	}
	defer rows.Close()

	results := []*store.VectorMatch{}
	for rows.Next() {
		var m store.VectorMatch
		if err := rows.Scan(&m.ID, &m.MetadataText, &m.Score); err != nil {
			return nil, errors.Wrap(err, "failed to scan vector match")
		}
		results = append(results, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (d *DB) DeleteVectorEntries(ctx context.Context, delete *store.DeleteVectorEntries) (int64, error) {
	stmt := `DELETE FROM vector_entry WHERE namespace = ` + placeholder(1) + ` AND starts_with(id, ` + placeholder(2) + `)`
	result, err := d.db.ExecContext(ctx, stmt, delete.Namespace, delete.IDPrefix)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete vector entries")
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}
