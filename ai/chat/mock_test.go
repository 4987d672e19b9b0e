package chat

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hrygo/vectorwave/ai"
	"github.com/hrygo/vectorwave/ai/vector"
	"github.com/hrygo/vectorwave/store"
	teststore "github.com/hrygo/vectorwave/store/test"
)

// faultGateway wraps a real store and injects failures.
type faultGateway struct {
	*store.Store

	mu sync.Mutex
	// createErr fails the failCreateAt-th CreateMessage call (1-based),
	// or every call when failCreateAt is 0.
	createErr    error
	failCreateAt int
	creates      int
	updateErr    error
	listErr      error
}

func (g *faultGateway) CreateMessage(ctx context.Context, create *store.CreateMessage) (*store.Message, error) {
	g.mu.Lock()
	g.creates++
	fail := g.createErr != nil && (g.failCreateAt == 0 || g.failCreateAt == g.creates)
	err := g.createErr
	g.mu.Unlock()
	if fail {
		return nil, err
	}
	return g.Store.CreateMessage(ctx, create)
}

func (g *faultGateway) UpdateMessageContent(ctx context.Context, id, content string, status store.MessageStatus) (*store.Message, error) {
	g.mu.Lock()
	err := g.updateErr
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return g.Store.UpdateMessageContent(ctx, id, content, status)
}

func (g *faultGateway) ListMessages(ctx context.Context, conversationID string) ([]*store.Message, error) {
	g.mu.Lock()
	err := g.listErr
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return g.Store.ListMessages(ctx, conversationID)
}

type fakeCompletion struct {
	mu         sync.Mutex
	reply      string
	err        error
	calls      int
	transcript []ai.Message
	system     string

	// When block is set, Complete signals started and waits for block.
	started chan struct{}
	block   chan struct{}
}

func (f *fakeCompletion) Complete(ctx context.Context, transcript []ai.Message, system string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.transcript = transcript
	f.system = system
	started, block := f.started, f.block
	f.mu.Unlock()

	if block != nil {
		if started != nil {
			close(started)
		}
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reply, f.err
}

func (f *fakeCompletion) lastTranscript() []ai.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transcript
}

type fakeEmbedder struct {
	mu    sync.Mutex
	err   error
	texts []string
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0, 0}, nil
}

type fakeIndex struct {
	mu        sync.Mutex
	matches   []vector.Match
	err       error
	namespace string
	topK      int
}

func (f *fakeIndex) Upsert(context.Context, string, []vector.Entry) error { return nil }

func (f *fakeIndex) DeleteByPrefix(context.Context, string, string) (int64, error) { return 0, nil }

func (f *fakeIndex) Query(_ context.Context, namespace string, _ []float32, topK int) ([]vector.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.namespace = namespace
	f.topK = topK
	if f.err != nil {
		return nil, f.err
	}
	return f.matches, nil
}

type fixture struct {
	ctx        context.Context
	store      *store.Store
	gateway    *faultGateway
	completion *fakeCompletion
	embedder   *fakeEmbedder
	index      *fakeIndex
	events     *EventBus
	orch       *TurnOrchestrator
	sessions   *SessionRegistry
	session    *Session
	conv       *store.Conversation
}

const testOwner = "user-1"

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	s := teststore.NewTestingStore(ctx, t)
	f := &fixture{
		ctx:        ctx,
		store:      s,
		gateway:    &faultGateway{Store: s},
		completion: &fakeCompletion{reply: "Hello!"},
		embedder:   &fakeEmbedder{},
		index:      &fakeIndex{},
		events:     NewEventBus(),
		sessions:   NewSessionRegistry(),
	}
	f.orch = NewTurnOrchestrator(OrchestratorConfig{
		Gateway:    f.gateway,
		Completion: f.completion,
		Embedder:   f.embedder,
		Index:      f.index,
		Events:     f.events,
	})
	f.session = f.sessions.GetOrCreate(testOwner)

	conv, err := s.CreateConversation(ctx, &store.Conversation{Owner: testOwner, Title: "C1"})
	require.NoError(t, err)
	f.conv = conv
	return f
}

func (f *fixture) durable(t *testing.T) []*store.Message {
	t.Helper()
	list, err := f.store.ListMessages(f.ctx, f.conv.ID)
	require.NoError(t, err)
	return list
}
