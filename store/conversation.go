package store

// DefaultConversationTitle is used when a conversation is created without a title.
const DefaultConversationTitle = "New Chat"

// Conversation is a chat thread owned by a single user.
type Conversation struct {
	ID        string `json:"id"`
	Owner     string `json:"owner"`
	Title     string `json:"title"`
	CreatedTs int64  `json:"createdAt"`
	UpdatedTs int64  `json:"updatedAt"`
}

type FindConversation struct {
	ID    *string
	Owner *string
}

type UpdateConversation struct {
	Title     *string
	UpdatedTs *int64
	ID        string
}

type DeleteConversation struct {
	ID string
}
