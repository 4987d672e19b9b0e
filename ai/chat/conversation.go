package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hrygo/vectorwave/store"
)

// MaxTitleLength bounds conversation and document titles, in runes.
const MaxTitleLength = 200

// ConversationGateway is the durable storage behind ConversationService.
type ConversationGateway interface {
	CreateConversation(ctx context.Context, create *store.Conversation) (*store.Conversation, error)
	ListConversations(ctx context.Context, find *store.FindConversation) ([]*store.Conversation, error)
	GetConversation(ctx context.Context, id string) (*store.Conversation, error)
	UpdateConversation(ctx context.Context, update *store.UpdateConversation) (*store.Conversation, error)
	DeleteConversation(ctx context.Context, delete *store.DeleteConversation) error
	ListMessages(ctx context.Context, conversationID string) ([]*store.Message, error)
}

// ConversationService manages an owner's conversations and keeps their
// sessions consistent with deletions.
type ConversationService struct {
	gateway  ConversationGateway
	sessions *SessionRegistry
}

// NewConversationService creates a ConversationService.
func NewConversationService(gateway ConversationGateway, sessions *SessionRegistry) *ConversationService {
	return &ConversationService{gateway: gateway, sessions: sessions}
}

// MessageView is a session's current message list for one conversation.
type MessageView struct {
	Messages  []*store.Message `json:"messages"`
	LoadingID string           `json:"loadingId,omitempty"`
}

// NormalizeTitle trims title and applies the default for blank titles.
func NormalizeTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return store.DefaultConversationTitle, nil
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return "", fmt.Errorf("%w: title longer than %d characters", ErrValidation, MaxTitleLength)
	}
	return title, nil
}

func (s *ConversationService) Create(ctx context.Context, owner, title string) (*store.Conversation, error) {
	title, err := NormalizeTitle(title)
	if err != nil {
		return nil, err
	}
	conv, err := s.gateway.CreateConversation(ctx, &store.Conversation{Owner: owner, Title: title})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	slog.Info("Created conversation", "owner", owner, "conversation_id", conv.ID)
	return conv, nil
}

// List returns the owner's conversations, most recently updated first.
func (s *ConversationService) List(ctx context.Context, owner string) ([]*store.Conversation, error) {
	list, err := s.gateway.ListConversations(ctx, &store.FindConversation{Owner: &owner})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return list, nil
}

// Get returns the conversation if owner owns it, else ErrConversationNotFound.
func (s *ConversationService) Get(ctx context.Context, owner, id string) (*store.Conversation, error) {
	conv, err := s.gateway.GetConversation(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if conv.Owner != owner {
		return nil, ErrConversationNotFound
	}
	return conv, nil
}

func (s *ConversationService) Rename(ctx context.Context, owner, id, title string) (*store.Conversation, error) {
	if _, err := s.Get(ctx, owner, id); err != nil {
		return nil, err
	}
	title, err := NormalizeTitle(title)
	if err != nil {
		return nil, err
	}
	now := time.Now().UnixMilli()
	conv, err := s.gateway.UpdateConversation(ctx, &store.UpdateConversation{ID: id, Title: &title, UpdatedTs: &now})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return conv, nil
}

// Delete removes the conversation with its messages and resets the owner's
// session so in-flight turns stop touching it.
func (s *ConversationService) Delete(ctx context.Context, owner, id string) error {
	if _, err := s.Get(ctx, owner, id); err != nil {
		return err
	}
	if err := s.gateway.DeleteConversation(ctx, &store.DeleteConversation{ID: id}); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrConversationNotFound
		}
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if session, ok := s.sessions.Get(owner); ok {
		session.Reset(id)
	}
	slog.Info("Deleted conversation", "owner", owner, "conversation_id", id)
	return nil
}

// Messages loads the durable history into the owner's session and returns
// the merged view, including messages of a turn still in flight.
func (s *ConversationService) Messages(ctx context.Context, owner, id string) (*MessageView, error) {
	if _, err := s.Get(ctx, owner, id); err != nil {
		return nil, err
	}
	history, err := s.gateway.ListMessages(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	session := s.sessions.GetOrCreate(owner)
	session.Touch()
	ms := session.Messages()
	ms.Load(id, history)
	return &MessageView{Messages: ms.Messages(id), LoadingID: ms.LoadingID(id)}, nil
}

// History returns the durable messages of the conversation without touching
// the owner's session.
func (s *ConversationService) History(ctx context.Context, owner, id string) (*store.Conversation, []*store.Message, error) {
	conv, err := s.Get(ctx, owner, id)
	if err != nil {
		return nil, nil, err
	}
	history, err := s.gateway.ListMessages(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return conv, history, nil
}
