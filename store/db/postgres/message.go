package postgres

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/vectorwave/store"
)

const messageColumns = "id, conversation_id, content, sender, kind, status, created_ts"

func (d *DB) CreateMessage(ctx context.Context, create *store.CreateMessage) (*store.Message, error) {
	// created_ts never goes below the newest message of the conversation.
	stmt := `
		INSERT INTO message (` + messageColumns + `)
		SELECT $1, $2, $3, $4, $5, $6,
			GREATEST($7::BIGINT, COALESCE((SELECT MAX(created_ts) FROM message WHERE conversation_id = $2), 0))
		RETURNING created_ts`

	msg := &store.Message{
		ID:             create.ID,
		ConversationID: create.ConversationID,
		Content:        create.Content,
		Sender:         create.Sender,
		Kind:           create.Kind,
		Status:         create.Status,
	}
	err := d.db.QueryRowContext(ctx, stmt,
		create.ID,
		create.ConversationID,
		create.Content,
		create.Sender,
		create.Kind,
		create.Status,
		create.CreatedTs,
	).Scan(&msg.CreatedTs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create message")
	}
	return msg, nil
}

func (d *DB) ListMessages(ctx context.Context, find *store.FindMessage) ([]*store.Message, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.ConversationID != nil {
		where, args = append(where, "conversation_id = "+placeholder(len(args)+1)), append(args, *find.ConversationID)
	}

	query := `SELECT ` + messageColumns + ` FROM message WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_ts ASC, seq ASC`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list messages")
	}
	defer rows.Close()

	list := make([]*store.Message, 0)
	for rows.Next() {
		m := &store.Message{}
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Content, &m.Sender, &m.Kind, &m.Status, &m.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan message")
		}
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

func (d *DB) UpdateMessage(ctx context.Context, update *store.UpdateMessage) (*store.Message, error) {
	stmt := `
		UPDATE message SET content = $1, status = $2
		WHERE id = $3 AND status = $4
		RETURNING ` + messageColumns

	m := &store.Message{}
	err := d.db.QueryRowContext(ctx, stmt, update.Content, update.Status, update.ID, store.MessageStatusPending).Scan(
		&m.ID, &m.ConversationID, &m.Content, &m.Sender, &m.Kind, &m.Status, &m.CreatedTs,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(store.ErrNotFound, "pending message %s", update.ID)
		}
		return nil, errors.Wrap(err, "failed to update message")
	}
	return m, nil
}
