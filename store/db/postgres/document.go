package postgres

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/vectorwave/store"
)

func (d *DB) CreateDocument(ctx context.Context, create *store.Document) (*store.Document, error) {
	fields := []string{"id", "owner", "title", "content", "chunk_count", "created_ts", "updated_ts"}
	args := []any{create.ID, create.Owner, create.Title, create.Content, create.ChunkCount, create.CreatedTs, create.UpdatedTs}
	stmt := `INSERT INTO document (` + strings.Join(fields, ", ") + `) VALUES (` + placeholders(len(args)) + `)`
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "failed to create document")
	}
	return create, nil
}

func (d *DB) ListDocuments(ctx context.Context, find *store.FindDocument) ([]*store.Document, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.Owner != nil {
		where, args = append(where, "owner = "+placeholder(len(args)+1)), append(args, *find.Owner)
	}

	query := `
		SELECT id, owner, title, content, chunk_count, created_ts, updated_ts
		FROM document
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts ASC, id`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list documents")
	}
	defer rows.Close()

	list := make([]*store.Document, 0)
	for rows.Next() {
		doc := &store.Document{}
		if err := rows.Scan(&doc.ID, &doc.Owner, &doc.Title, &doc.Content, &doc.ChunkCount, &doc.CreatedTs, &doc.UpdatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan document")
		}
		list = append(list, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

func (d *DB) UpdateDocument(ctx context.Context, update *store.UpdateDocument) (*store.Document, error) {
	set, args := []string{}, []any{}

	if update.Title != nil {
		set, args = append(set, "title = "+placeholder(len(args)+1)), append(args, *update.Title)
	}
	if update.ChunkCount != nil {
		set, args = append(set, "chunk_count = "+placeholder(len(args)+1)), append(args, *update.ChunkCount)
	}
	if update.UpdatedTs != nil {
		set, args = append(set, "updated_ts = "+placeholder(len(args)+1)), append(args, *update.UpdatedTs)
	}
	if len(set) == 0 {
		return nil, errors.New("no fields to update")
	}

	args = append(args, update.ID)
	stmt := `UPDATE document SET ` + strings.Join(set, ", ") + ` WHERE id = ` + placeholder(len(args)) +
		` RETURNING id, owner, title, content, chunk_count, created_ts, updated_ts`
	doc := &store.Document{}
	err := d.db.QueryRowContext(ctx, stmt, args...).Scan(
		&doc.ID, &doc.Owner, &doc.Title, &doc.Content, &doc.ChunkCount, &doc.CreatedTs, &doc.UpdatedTs,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(store.ErrNotFound, "document %s", update.ID)
		}
		return nil, errors.Wrap(err, "failed to update document")
	}
	return doc, nil
}

func (d *DB) DeleteDocument(ctx context.Context, delete *store.DeleteDocument) error {
	result, err := d.db.ExecContext(ctx, `DELETE FROM document WHERE id = `+placeholder(1), delete.ID)
	if err != nil {
		return errors.Wrap(err, "failed to delete document")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return errors.Wrapf(store.ErrNotFound, "document %s", delete.ID)
	}
	return nil
}
