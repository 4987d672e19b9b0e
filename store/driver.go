package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	// Migration.
	Migrations() []Migration
	ListAppliedMigrations(ctx context.Context) ([]string, error)
	ApplyMigration(ctx context.Context, migration Migration) error

	// Conversation model related methods.
	CreateConversation(ctx context.Context, create *Conversation) (*Conversation, error)
	ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error)
	UpdateConversation(ctx context.Context, update *UpdateConversation) (*Conversation, error)
	DeleteConversation(ctx context.Context, delete *DeleteConversation) error

	// Message model related methods.
	CreateMessage(ctx context.Context, create *CreateMessage) (*Message, error)
	ListMessages(ctx context.Context, find *FindMessage) ([]*Message, error)
	UpdateMessage(ctx context.Context, update *UpdateMessage) (*Message, error)

	// Document model related methods.
	CreateDocument(ctx context.Context, create *Document) (*Document, error)
	ListDocuments(ctx context.Context, find *FindDocument) ([]*Document, error)
	UpdateDocument(ctx context.Context, update *UpdateDocument) (*Document, error)
	DeleteDocument(ctx context.Context, delete *DeleteDocument) error

	// Vector index related methods.
	UpsertVectorEntries(ctx context.Context, entries []*VectorEntry) error
	SearchVectorEntries(ctx context.Context, search *SearchVectorEntries) ([]*VectorMatch, error)
	DeleteVectorEntries(ctx context.Context, delete *DeleteVectorEntries) (int64, error)
}
