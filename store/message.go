package store

// MessageSender identifies who authored a message.
type MessageSender string

const (
	MessageSenderUser      MessageSender = "user"
	MessageSenderAssistant MessageSender = "assistant"
)

// MessageKind separates genuine chat text from synthetic context blocks.
type MessageKind string

const (
	MessageKindText             MessageKind = "text"
	MessageKindFileAttachment   MessageKind = "fileAttachment"
	MessageKindRetrievedContext MessageKind = "retrievedContext"
)

// MessageStatus is the lifecycle state of a message.
// Only assistant placeholders are ever pending or failed.
type MessageStatus string

const (
	MessageStatusPending  MessageStatus = "pending"
	MessageStatusComplete MessageStatus = "complete"
	MessageStatusFailed   MessageStatus = "failed"
)

// IsTerminal reports whether the status can no longer change.
func (s MessageStatus) IsTerminal() bool {
	return s == MessageStatusComplete || s == MessageStatusFailed
}

// Message is a single entry of a conversation transcript.
type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversationId"`
	Content        string        `json:"content"`
	Sender         MessageSender `json:"sender"`
	Kind           MessageKind   `json:"kind"`
	Status         MessageStatus `json:"status"`
	CreatedTs      int64         `json:"createdAt"`
}

// Clone returns a copy that can be handed to readers.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}

type CreateMessage struct {
	ID             string
	ConversationID string
	Content        string
	Sender         MessageSender
	Kind           MessageKind
	Status         MessageStatus
	// CreatedTs is a lower bound; drivers clamp it to the newest
	// timestamp already present in the conversation.
	CreatedTs int64
}

// UpdateMessage resolves a pending message. Drivers only touch rows whose
// status is still pending, so a placeholder is resolved at most once.
type UpdateMessage struct {
	ID      string
	Content string
	Status  MessageStatus
}

type FindMessage struct {
	ID             *string
	ConversationID *string
}
