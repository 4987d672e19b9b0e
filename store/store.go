package store

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/vectorwave/internal/profile"
)

// ErrNotFound is returned when a lookup or a guarded update matches no row.
var ErrNotFound = errors.New("not found")

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	return s.driver.Close()
}

// ============================================================================
// Conversations
// ============================================================================

func (s *Store) CreateConversation(ctx context.Context, create *Conversation) (*Conversation, error) {
	if create.ID == "" {
		create.ID = shortuuid.New()
	}
	create.Title = strings.TrimSpace(create.Title)
	if create.Title == "" {
		create.Title = DefaultConversationTitle
	}
	now := time.Now().UnixMilli()
	if create.CreatedTs == 0 {
		create.CreatedTs = now
	}
	if create.UpdatedTs == 0 {
		create.UpdatedTs = create.CreatedTs
	}
	return s.driver.CreateConversation(ctx, create)
}

func (s *Store) ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error) {
	return s.driver.ListConversations(ctx, find)
}

// GetConversation returns ErrNotFound when the id is unknown.
func (s *Store) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	list, err := s.driver.ListConversations(ctx, &FindConversation{ID: &id})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "conversation %s", id)
	}
	return list[0], nil
}

func (s *Store) UpdateConversation(ctx context.Context, update *UpdateConversation) (*Conversation, error) {
	return s.driver.UpdateConversation(ctx, update)
}

// DeleteConversation removes the conversation and all of its messages.
func (s *Store) DeleteConversation(ctx context.Context, delete *DeleteConversation) error {
	return s.driver.DeleteConversation(ctx, delete)
}

// ============================================================================
// Messages
// ============================================================================

// CreateMessage assigns the message id and timestamp, then persists it.
// User and context messages default to complete.
func (s *Store) CreateMessage(ctx context.Context, create *CreateMessage) (*Message, error) {
	if create.ID == "" {
		create.ID = uuid.NewString()
	}
	if create.Kind == "" {
		create.Kind = MessageKindText
	}
	if create.Status == "" {
		create.Status = MessageStatusComplete
	}
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().UnixMilli()
	}
	return s.driver.CreateMessage(ctx, create)
}

// ListMessages returns the conversation's messages in createdAt order.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]*Message, error) {
	return s.driver.ListMessages(ctx, &FindMessage{ConversationID: &conversationID})
}

// UpdateMessageContent resolves a pending message to its final content and status.
func (s *Store) UpdateMessageContent(ctx context.Context, id string, content string, status MessageStatus) (*Message, error) {
	if !status.IsTerminal() {
		return nil, errors.Errorf("cannot resolve message %s to non-terminal status %q", id, status)
	}
	return s.driver.UpdateMessage(ctx, &UpdateMessage{
		ID:      id,
		Content: content,
		Status:  status,
	})
}

// ============================================================================
// Documents
// ============================================================================

func (s *Store) CreateDocument(ctx context.Context, create *Document) (*Document, error) {
	if create.ID == "" {
		create.ID = shortuuid.New()
	}
	now := time.Now().UnixMilli()
	if create.CreatedTs == 0 {
		create.CreatedTs = now
	}
	if create.UpdatedTs == 0 {
		create.UpdatedTs = create.CreatedTs
	}
	return s.driver.CreateDocument(ctx, create)
}

func (s *Store) ListDocuments(ctx context.Context, find *FindDocument) ([]*Document, error) {
	return s.driver.ListDocuments(ctx, find)
}

// GetDocument returns ErrNotFound when the id is unknown.
func (s *Store) GetDocument(ctx context.Context, id string) (*Document, error) {
	list, err := s.driver.ListDocuments(ctx, &FindDocument{ID: &id})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "document %s", id)
	}
	return list[0], nil
}

func (s *Store) UpdateDocument(ctx context.Context, update *UpdateDocument) (*Document, error) {
	return s.driver.UpdateDocument(ctx, update)
}

func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	return s.driver.DeleteDocument(ctx, &DeleteDocument{ID: id})
}

// ============================================================================
// Vector entries
// ============================================================================

func (s *Store) UpsertVectorEntries(ctx context.Context, entries []*VectorEntry) error {
	if len(entries) == 0 {
		return nil
	}
	now := time.Now().UnixMilli()
	for _, e := range entries {
		if e.CreatedTs == 0 {
			e.CreatedTs = now
		}
	}
	return s.driver.UpsertVectorEntries(ctx, entries)
}

func (s *Store) SearchVectorEntries(ctx context.Context, search *SearchVectorEntries) ([]*VectorMatch, error) {
	return s.driver.SearchVectorEntries(ctx, search)
}

// DeleteVectorEntries refuses an empty prefix, which would clear the namespace.
func (s *Store) DeleteVectorEntries(ctx context.Context, delete *DeleteVectorEntries) (int64, error) {
	if delete.IDPrefix == "" {
		return 0, errors.New("vector entry prefix must not be empty")
	}
	return s.driver.DeleteVectorEntries(ctx, delete)
}
