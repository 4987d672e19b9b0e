package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/vectorwave/store"
)

func (d *DB) CreateDocument(ctx context.Context, create *store.Document) (*store.Document, error) {
	stmt := `INSERT INTO document (id, owner, title, content, chunk_count, created_ts, updated_ts) VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := d.db.ExecContext(ctx, stmt,
		create.ID, create.Owner, create.Title, create.Content, create.ChunkCount, create.CreatedTs, create.UpdatedTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to create document")
	}
	return create, nil
}

func (d *DB) ListDocuments(ctx context.Context, find *store.FindDocument) ([]*store.Document, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.Owner != nil {
		where, args = append(where, "owner = ?"), append(args, *find.Owner)
	}

	query := `SELECT id, owner, title, content, chunk_count, created_ts, updated_ts FROM document
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
		set, args = append(set, "title = ?"), append(args, *update.Title)
	}
	if update.ChunkCount != nil {
		set, args = append(set, "chunk_count = ?"), append(args, *update.ChunkCount)
	}
	if update.UpdatedTs != nil {
		set, args = append(set, "updated_ts = ?"), append(args, *update.UpdatedTs)
	}
	if len(set) == 0 {
		return nil, errors.New("no fields to update")
	}

	args = append(args, update.ID)
	stmt := `UPDATE document SET ` + strings.Join(set, ", ") + ` WHERE id = ? RETURNING id, owner, title, content, chunk_count, created_ts, updated_ts`
	doc := &store.Document{}
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(
		&doc.ID, &doc.Owner, &doc.Title, &doc.Content, &doc.ChunkCount, &doc.CreatedTs, &doc.UpdatedTs,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(store.ErrNotFound, "document %s", update.ID)
		}
		return nil, errors.Wrap(err, "failed to update document")
	}
	return doc, nil
}

func (d *DB) DeleteDocument(ctx context.Context, delete *store.DeleteDocument) error {
	result, err := d.db.ExecContext(ctx, `DELETE FROM document WHERE id = ?`, delete.ID)
	if err != nil {
		return errors.Wrap(err, "failed to delete document")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return errors.Wrapf(store.ErrNotFound, "document %s", delete.ID)
	}
	return nil
}
