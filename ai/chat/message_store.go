package chat

import (
	"sync"

	"github.com/hrygo/vectorwave/store"
)

// MessagePatch carries the fields UpdateByID may change. Nil fields are left
// alone.
type MessagePatch struct {
	Content *string
	Status  *store.MessageStatus
}

// MessageStore is the in-memory ordered message list of each conversation a
// session has open. It is safe for concurrent readers; writes come from the
// turn orchestrator and from explicit loads.
type MessageStore struct {
	mu      sync.RWMutex
	lists   map[string][]*store.Message
	loaded  map[string]bool
	loading map[string]string
	// unconfirmed holds ids appended since the last Load that no durable
	// snapshot has contained yet.
	unconfirmed map[string]map[string]struct{}
}

// NewMessageStore creates an empty MessageStore.
func NewMessageStore() *MessageStore {
	return &MessageStore{
		lists:       make(map[string][]*store.Message),
		loaded:      make(map[string]bool),
		loading:     make(map[string]string),
		unconfirmed: make(map[string]map[string]struct{}),
	}
}

// Load replaces the conversation's list with a durable snapshot. Entries an
// in-flight turn appended that the snapshot does not contain yet stay at the
// tail in their original order. A pending entry in the snapshot never
// overwrites a local entry that already reached a terminal status.
func (m *MessageStore) Load(conversationID string, snapshot []*store.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	local := make(map[string]*store.Message, len(m.lists[conversationID]))
	for _, msg := range m.lists[conversationID] {
		local[msg.ID] = msg
	}

	inSnapshot := make(map[string]struct{}, len(snapshot))
	next := make([]*store.Message, 0, len(snapshot))
	for _, msg := range snapshot {
		inSnapshot[msg.ID] = struct{}{}
		if cur, ok := local[msg.ID]; ok && cur.Status.IsTerminal() && !msg.Status.IsTerminal() {
			next = append(next, cur)
			continue
		}
		next = append(next, msg.Clone())
	}

	pending := m.unconfirmed[conversationID]
	for _, msg := range m.lists[conversationID] {
		if _, ok := pending[msg.ID]; !ok {
			continue
		}
		if _, ok := inSnapshot[msg.ID]; ok {
			delete(pending, msg.ID)
			continue
		}
		next = append(next, msg)
	}

	m.lists[conversationID] = next
	m.loaded[conversationID] = true
}

// IsLoaded reports whether Load has run for the conversation since it was
// last forgotten.
func (m *MessageStore) IsLoaded(conversationID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loaded[conversationID]
}

// Append adds a message to the end of the conversation's list. A message
// whose id is already present, because a concurrent Load picked it up from
// the durable store, is not added twice.
func (m *MessageStore) Append(conversationID string, msg *store.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.lists[conversationID] {
		if existing.ID == msg.ID {
			return
		}
	}
	m.lists[conversationID] = append(m.lists[conversationID], msg.Clone())
	if m.unconfirmed[conversationID] == nil {
		m.unconfirmed[conversationID] = make(map[string]struct{})
	}
	m.unconfirmed[conversationID][msg.ID] = struct{}{}
}

// UpdateByID patches content and status of one message. Unknown ids are
// ignored. It reports whether a message was changed.
func (m *MessageStore) UpdateByID(conversationID, id string, patch MessagePatch) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, msg := range m.lists[conversationID] {
		if msg.ID != id {
			continue
		}
		updated := msg.Clone()
		if patch.Content != nil {
			updated.Content = *patch.Content
		}
		if patch.Status != nil {
			updated.Status = *patch.Status
		}
		m.lists[conversationID][i] = updated
		return true
	}
	return false
}

// Messages returns a copy of the conversation's ordered list.
func (m *MessageStore) Messages(conversationID string) []*store.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.lists[conversationID]
	out := make([]*store.Message, len(list))
	for i, msg := range list {
		out[i] = msg.Clone()
	}
	return out
}

// LoadingID returns the id of the conversation's pending assistant
// placeholder, or "".
func (m *MessageStore) LoadingID(conversationID string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loading[conversationID]
}

func (m *MessageStore) SetLoading(conversationID, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loading[conversationID] = id
}

func (m *MessageStore) ClearLoading(conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.loading, conversationID)
}

// Forget drops everything held for the conversation.
func (m *MessageStore) Forget(conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.lists, conversationID)
	delete(m.loaded, conversationID)
	delete(m.loading, conversationID)
	delete(m.unconfirmed, conversationID)
}
