package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hrygo/vectorwave/ai"
	"github.com/hrygo/vectorwave/ai/observability/logging"
	"github.com/hrygo/vectorwave/ai/vector"
	"github.com/hrygo/vectorwave/store"
)

const (
	// PendingContent is the placeholder shown while the reply is generated.
	PendingContent = "…"
	// FailedContent replaces the placeholder when no reply could be stored.
	FailedContent = "Sorry, I couldn't generate a response. Please try again."

	attachmentHeader = "Attached file: "
	retrievalHeader  = "Vector Results:\n"
)

// Gateway is the durable storage the orchestrator writes through.
// *store.Store satisfies it.
type Gateway interface {
	GetConversation(ctx context.Context, id string) (*store.Conversation, error)
	UpdateConversation(ctx context.Context, update *store.UpdateConversation) (*store.Conversation, error)
	CreateMessage(ctx context.Context, create *store.CreateMessage) (*store.Message, error)
	UpdateMessageContent(ctx context.Context, id string, content string, status store.MessageStatus) (*store.Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]*store.Message, error)
}

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Attachment is a file the user shared, already read as text.
type Attachment struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// Turn is one user submission.
type Turn struct {
	ConversationID string
	UserText       string
	Attachment     *Attachment
	Retrieval      bool
}

// TurnResult lists the messages a successful turn created, in order.
type TurnResult struct {
	Attachment *store.Message `json:"attachment,omitempty"`
	Context    *store.Message `json:"context,omitempty"`
	User       *store.Message `json:"user"`
	Assistant  *store.Message `json:"assistant"`
}

// OrchestratorConfig holds the collaborators of a TurnOrchestrator.
type OrchestratorConfig struct {
	Gateway    Gateway
	Completion ai.CompletionService
	// Embedder and Index are only needed for retrieval turns.
	Embedder Embedder
	Index    vector.Index
	Events   *EventBus
	TopK     int
	// SystemInstruction replaces the built-in instruction when set.
	SystemInstruction string
}

// TurnOrchestrator executes chat turns.
type TurnOrchestrator struct {
	gateway    Gateway
	completion ai.CompletionService
	embedder   Embedder
	index      vector.Index
	events     *EventBus
	topK       int
	system     string

	// inFlight holds one token per conversation with a running turn,
	// shared by every session of the process.
	inFlight sync.Map
}

// NewTurnOrchestrator creates a TurnOrchestrator.
func NewTurnOrchestrator(cfg OrchestratorConfig) *TurnOrchestrator {
	topK := cfg.TopK
	if topK <= 0 {
		topK = vector.DefaultTopK
	}
	system := cfg.SystemInstruction
	if system == "" {
		system = SystemInstruction
	}
	return &TurnOrchestrator{
		system:     system,
		gateway:    cfg.Gateway,
		completion: cfg.Completion,
		embedder:   cfg.Embedder,
		index:      cfg.Index,
		events:     cfg.Events,
		topK:       topK,
	}
}

// SubmitTurn runs one turn to completion. Every error it returns is a
// *TurnError. Messages persisted before a failure are kept.
func (o *TurnOrchestrator) SubmitTurn(ctx context.Context, session *Session, turn Turn) (*TurnResult, error) {
	// Blank text counts as absent; non-blank text is stored as submitted.
	userText := turn.UserText
	if strings.TrimSpace(userText) == "" {
		userText = ""
	}
	if a := turn.Attachment; a != nil && a.Name == "" && strings.TrimSpace(a.Text) == "" {
		return nil, o.reject(ctx, session, turn, turnError(ErrValidation, errEmptyAttachment))
	}
	if userText == "" && turn.Attachment == nil {
		return nil, o.reject(ctx, session, turn, turnError(ErrValidation, errEmptyTurn))
	}

	conv, err := o.gateway.GetConversation(ctx, turn.ConversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, o.reject(ctx, session, turn, turnError(ErrConversationNotFound, nil))
		}
		return nil, o.reject(ctx, session, turn, turnError(ErrPersistence, err))
	}
	if conv.Owner != session.Owner() {
		return nil, o.reject(ctx, session, turn, turnError(ErrConversationNotFound, nil))
	}

	if _, busy := o.inFlight.LoadOrStore(turn.ConversationID, struct{}{}); busy {
		return nil, o.reject(ctx, session, turn, turnError(ErrTurnInProgress, nil))
	}

	r := &turnRun{
		o:       o,
		session: session,
		turn:    turn,
		text:    userText,
		logger: logging.FromContext(ctx).With(
			"owner", session.Owner(),
			"conversation_id", turn.ConversationID,
		),
	}

	start := time.Now()
	o.publish(ctx, &TurnEvent{
		Type:           EventTurnStarted,
		Owner:          session.Owner(),
		ConversationID: turn.ConversationID,
		Retrieval:      turn.Retrieval,
		Attachment:     turn.Attachment != nil,
	})

	// The guard is released before the terminal event goes out, so the next
	// turn is admitted as soon as the placeholder is resolved.
	result, err := o.runGuarded(ctx, r)

	event := &TurnEvent{
		Owner:          session.Owner(),
		ConversationID: turn.ConversationID,
		Retrieval:      turn.Retrieval,
		Attachment:     turn.Attachment != nil,
		Duration:       time.Since(start),
	}
	if r.placeholder != nil {
		event.AssistantMessageID = r.placeholder.ID
	}
	if err != nil {
		event.Type = EventTurnFailed
		event.Err = err
		r.logger.Warn("Turn failed", "error", err, "duration_ms", event.Duration.Milliseconds())
	} else {
		event.Type = EventTurnCompleted
		r.logger.Info("Turn completed", "duration_ms", event.Duration.Milliseconds())
	}
	o.publish(ctx, event)

	return result, err
}

func (o *TurnOrchestrator) runGuarded(ctx context.Context, r *turnRun) (*TurnResult, error) {
	convID := r.turn.ConversationID
	defer o.inFlight.Delete(convID)

	r.gen = r.session.beginTurn(convID)
	defer r.session.endTurn()
	return r.run(ctx)
}

func (o *TurnOrchestrator) reject(ctx context.Context, session *Session, turn Turn, err *TurnError) error {
	o.publish(ctx, &TurnEvent{
		Type:           EventTurnRejected,
		Owner:          session.Owner(),
		ConversationID: turn.ConversationID,
		Retrieval:      turn.Retrieval,
		Attachment:     turn.Attachment != nil,
		Err:            err,
	})
	return err
}

func (o *TurnOrchestrator) publish(ctx context.Context, event *TurnEvent) {
	if o.events == nil {
		return
	}
	// Listeners outlive a cancelled request.
	_ = o.events.Publish(context.WithoutCancel(ctx), event)
}

// turnRun carries the state of one admitted turn.
type turnRun struct {
	o       *TurnOrchestrator
	session *Session
	turn    Turn
	text    string
	gen     uint64
	logger  *slog.Logger

	result      TurnResult
	placeholder *store.Message
}

func (r *turnRun) run(ctx context.Context) (*TurnResult, error) {
	convID := r.turn.ConversationID

	// A session that never loaded this conversation starts from the durable
	// history so its list keeps matching the store.
	if !r.session.Messages().IsLoaded(convID) {
		history, err := r.o.gateway.ListMessages(ctx, convID)
		if err != nil {
			return nil, turnError(ErrPersistence, err)
		}
		r.mutate(func(ms *MessageStore) { ms.Load(convID, history) })
	}

	if a := r.turn.Attachment; a != nil {
		msg, err := r.persist(ctx, attachmentHeader+a.Name+"\n"+a.Text, store.MessageSenderUser, store.MessageKindFileAttachment, store.MessageStatusComplete)
		if err != nil {
			return nil, err
		}
		r.result.Attachment = msg
	}

	if r.turn.Retrieval {
		content, err := r.retrieve(ctx)
		if err != nil {
			return nil, turnError(ErrRetrieval, err)
		}
		msg, err := r.persist(ctx, content, store.MessageSenderUser, store.MessageKindRetrievedContext, store.MessageStatusComplete)
		if err != nil {
			return nil, err
		}
		r.result.Context = msg
	}

	// An attachment-only turn has no user text to store.
	if r.text != "" {
		msg, err := r.persist(ctx, r.text, store.MessageSenderUser, store.MessageKindText, store.MessageStatusComplete)
		if err != nil {
			return nil, err
		}
		r.result.User = msg
	}
	r.touchConversation(ctx)

	placeholder, err := r.persist(ctx, PendingContent, store.MessageSenderAssistant, store.MessageKindText, store.MessageStatusPending)
	if err != nil {
		return nil, err
	}
	r.placeholder = placeholder
	r.mutate(func(ms *MessageStore) { ms.SetLoading(convID, placeholder.ID) })
	defer r.mutate(func(ms *MessageStore) {
		if ms.LoadingID(convID) == placeholder.ID {
			ms.ClearLoading(convID)
		}
	})

	reply, err := r.complete(ctx)
	if err != nil {
		return nil, r.fail(ctx, turnError(ErrCompletion, err))
	}

	final, err := r.o.gateway.UpdateMessageContent(ctx, placeholder.ID, reply, store.MessageStatusComplete)
	if err != nil {
		return nil, r.fail(ctx, turnError(ErrPersistence, err))
	}
	r.mutate(func(ms *MessageStore) {
		ms.UpdateByID(convID, placeholder.ID, MessagePatch{Content: &final.Content, Status: &final.Status})
	})
	r.result.Assistant = final
	return &r.result, nil
}

// persist writes a message durably, then appends it in memory.
func (r *turnRun) persist(ctx context.Context, content string, sender store.MessageSender, kind store.MessageKind, status store.MessageStatus) (*store.Message, error) {
	msg, err := r.o.gateway.CreateMessage(ctx, &store.CreateMessage{
		ConversationID: r.turn.ConversationID,
		Content:        content,
		Sender:         sender,
		Kind:           kind,
		Status:         status,
	})
	if err != nil {
		return nil, turnError(ErrPersistence, err)
	}
	r.mutate(func(ms *MessageStore) { ms.Append(r.turn.ConversationID, msg) })
	return msg, nil
}

func (r *turnRun) retrieve(ctx context.Context) (string, error) {
	if r.o.embedder == nil || r.o.index == nil {
		return "", errors.New("retrieval is not configured")
	}
	query := r.text
	if query == "" {
		query = r.turn.Attachment.Text
	}
	vec, err := r.o.embedder.Embed(ctx, query)
	if err != nil {
		return "", err
	}
	matches, err := r.o.index.Query(ctx, r.session.Owner(), vec, r.o.topK)
	if err != nil {
		return "", err
	}
	texts := make([]string, len(matches))
	for i, m := range matches {
		texts[i] = m.MetadataText
	}
	r.logger.Debug("Retrieved context", "matches", len(matches))
	return retrievalHeader + strings.Join(texts, "\n"), nil
}

func (r *turnRun) complete(ctx context.Context) (string, error) {
	history, err := r.o.gateway.ListMessages(ctx, r.turn.ConversationID)
	if err != nil {
		return "", err
	}
	reply, err := r.o.completion.Complete(ctx, BuildTranscript(history), r.o.system)
	if err != nil {
		return "", err
	}
	reply = ai.CleanReply(reply)
	if reply == "" {
		return "", ai.ErrEmptyCompletion
	}
	return reply, nil
}

// fail resolves the placeholder as failed, durably when possible, and
// returns cause. A failure to store the failed status is logged only.
func (r *turnRun) fail(ctx context.Context, cause *TurnError) error {
	convID := r.turn.ConversationID
	id := r.placeholder.ID

	content, status := FailedContent, store.MessageStatusFailed
	if _, err := r.o.gateway.UpdateMessageContent(context.WithoutCancel(ctx), id, content, status); err != nil {
		r.logger.Error("Failed to persist failed placeholder", "message_id", id, "error", err)
	}
	r.mutate(func(ms *MessageStore) {
		ms.UpdateByID(convID, id, MessagePatch{Content: &content, Status: &status})
	})
	return cause
}

func (r *turnRun) touchConversation(ctx context.Context) {
	now := time.Now().UnixMilli()
	if _, err := r.o.gateway.UpdateConversation(ctx, &store.UpdateConversation{ID: r.turn.ConversationID, UpdatedTs: &now}); err != nil {
		r.logger.Warn("Failed to bump conversation timestamp", "error", err)
	}
}

func (r *turnRun) mutate(fn func(*MessageStore)) {
	if !r.session.ifCurrent(r.turn.ConversationID, r.gen, fn) {
		r.logger.Debug("Skipped stale message store update")
	}
}
