package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/vectorwave/ai/vector"
	"github.com/hrygo/vectorwave/store"
)

func assertMemoryMatchesDurable(t *testing.T, f *fixture) {
	t.Helper()
	durable := f.durable(t)
	memory := f.session.Messages().Messages(f.conv.ID)
	require.Len(t, memory, len(durable))
	for i := range durable {
		assert.Equal(t, durable[i].ID, memory[i].ID)
		assert.Equal(t, durable[i].Content, memory[i].Content)
		assert.Equal(t, durable[i].Status, memory[i].Status)
	}
}

func TestSubmitTurn_TextOnly(t *testing.T) {
	f := newFixture(t)

	result, err := f.orch.SubmitTurn(f.ctx, f.session, Turn{ConversationID: f.conv.ID, UserText: "Hi"})
	require.NoError(t, err)
	require.NotNil(t, result.User)
	require.NotNil(t, result.Assistant)
	assert.Nil(t, result.Attachment)
	assert.Nil(t, result.Context)

	msgs := f.durable(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, store.MessageSenderUser, msgs[0].Sender)
	assert.Equal(t, "Hi", msgs[0].Content)
	assert.Equal(t, store.MessageStatusComplete, msgs[0].Status)
	assert.Equal(t, store.MessageSenderAssistant, msgs[1].Sender)
	assert.Equal(t, "Hello!", msgs[1].Content)
	assert.Equal(t, store.MessageStatusComplete, msgs[1].Status)

	assertMemoryMatchesDurable(t, f)
	assert.Empty(t, f.session.Messages().LoadingID(f.conv.ID))
}

func TestSubmitTurn_Attachment(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.SubmitTurn(f.ctx, f.session, Turn{
		ConversationID: f.conv.ID,
		UserText:       "Summarize",
		Attachment:     &Attachment{Name: "notes.txt", Text: "abc"},
	})
	require.NoError(t, err)

	msgs := f.durable(t)
	require.Len(t, msgs, 3)
	assert.Equal(t, store.MessageKindFileAttachment, msgs[0].Kind)
	assert.Equal(t, store.MessageSenderUser, msgs[0].Sender)
	assert.Equal(t, "Attached file: notes.txt\nabc", msgs[0].Content)
	assert.Equal(t, store.MessageKindText, msgs[1].Kind)
	assert.Equal(t, "Summarize", msgs[1].Content)
	assert.Equal(t, store.MessageSenderAssistant, msgs[2].Sender)
	assertMemoryMatchesDurable(t, f)
}

func TestSubmitTurn_AttachmentOnly(t *testing.T) {
	f := newFixture(t)

	result, err := f.orch.SubmitTurn(f.ctx, f.session, Turn{
		ConversationID: f.conv.ID,
		UserText:       "   ",
		Attachment:     &Attachment{Name: "a.txt", Text: "body"},
	})
	require.NoError(t, err)
	assert.Nil(t, result.User)

	msgs := f.durable(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, store.MessageKindFileAttachment, msgs[0].Kind)
	assert.Equal(t, store.MessageSenderAssistant, msgs[1].Sender)
}

func TestSubmitTurn_Retrieval(t *testing.T) {
	f := newFixture(t)
	f.index.matches = []vector.Match{
		{ID: "d:chunk0", MetadataText: "chunkA", Score: 0.9},
		{ID: "d:chunk1", MetadataText: "chunkB", Score: 0.8},
	}

	_, err := f.orch.SubmitTurn(f.ctx, f.session, Turn{ConversationID: f.conv.ID, UserText: "question", Retrieval: true})
	require.NoError(t, err)

	msgs := f.durable(t)
	require.Len(t, msgs, 3)
	assert.Equal(t, store.MessageKindRetrievedContext, msgs[0].Kind)
	assert.Equal(t, store.MessageSenderUser, msgs[0].Sender)
	assert.Equal(t, "Vector Results:\nchunkA\nchunkB", msgs[0].Content)
	assert.Equal(t, "question", msgs[1].Content)
	assert.Equal(t, store.MessageSenderAssistant, msgs[2].Sender)

	assert.Equal(t, []string{"question"}, f.embedder.texts)
	assert.Equal(t, testOwner, f.index.namespace)
	assert.Equal(t, vector.DefaultTopK, f.index.topK)
	assertMemoryMatchesDurable(t, f)
}

func TestSubmitTurn_TranscriptShape(t *testing.T) {
	f := newFixture(t)
	f.index.matches = []vector.Match{{MetadataText: "ctx"}}

	_, err := f.orch.SubmitTurn(f.ctx, f.session, Turn{ConversationID: f.conv.ID, UserText: "Hi"})
	require.NoError(t, err)
	_, err = f.orch.SubmitTurn(f.ctx, f.session, Turn{ConversationID: f.conv.ID, UserText: "Again", Retrieval: true})
	require.NoError(t, err)

	transcript := f.completion.lastTranscript()
	require.Len(t, transcript, 4)
	assert.Equal(t, "user", transcript[0].Role)
	assert.Equal(t, "User: Hi", transcript[0].Content)
	assert.Equal(t, "assistant", transcript[1].Role)
	assert.Equal(t, " Hello!", transcript[1].Content)
	assert.Equal(t, "User: Vector Results:\nctx", transcript[2].Content)
	assert.Equal(t, "User: Again", transcript[3].Content)
	assert.Equal(t, SystemInstruction, f.completion.system)
	assert.Contains(t, f.completion.system, "I don't know")
}

func TestSubmitTurn_StripsBotPrefix(t *testing.T) {
	f := newFixture(t)
	f.completion.reply = "Bot:  Paris"

	result, err := f.orch.SubmitTurn(f.ctx, f.session, Turn{ConversationID: f.conv.ID, UserText: "capital?"})
	require.NoError(t, err)
	assert.Equal(t, "Paris", result.Assistant.Content)
}

func TestSubmitTurn_Validation(t *testing.T) {
	f := newFixture(t)

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := f.orch.SubmitTurn(f.ctx, f.session, Turn{ConversationID: f.conv.ID, UserText: text})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrValidation)
		assert.Equal(t, "validation", KindName(err))
	}
	assert.Empty(t, f.durable(t))
	assert.Equal(t, 0, f.completion.calls)
}

func TestSubmitTurn_ConversationNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.SubmitTurn(f.ctx, f.session, Turn{ConversationID: "missing", UserText: "Hi"})
	assert.ErrorIs(t, err, ErrConversationNotFound)

	// Another owner's session cannot post into the conversation.
	other := f.sessions.GetOrCreate("user-2")
	_, err = f.orch.SubmitTurn(f.ctx, other, Turn{ConversationID: f.conv.ID, UserText: "Hi"})
	assert.ErrorIs(t, err, ErrConversationNotFound)
	assert.Empty(t, f.durable(t))
}

func TestSubmitTurn_TurnInProgress(t *testing.T) {
	f := newFixture(t)
	f.completion.started = make(chan struct{})
	f.completion.block = make(chan struct{})

	var wg sync.WaitGroup
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = f.orch.SubmitTurn(f.ctx, f.session, Turn{ConversationID: f.conv.ID, UserText: "first"})
	}()

	select {
	case <-f.completion.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first turn never reached the completion call")
	}
	before := len(f.durable(t))

	// A second submission on the same conversation is rejected without writes.
	_, err := f.orch.SubmitTurn(f.ctx, f.session, Turn{ConversationID: f.conv.ID, UserText: "second"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTurnInProgress)
	assert.Len(t, f.durable(t), before)

	close(f.completion.block)
	wg.Wait()
	require.NoError(t, firstErr)

	msgs := f.durable(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Content)

	// The guard is released once the turn ends.
	f.completion.block = nil
	_, err = f.orch.SubmitTurn(f.ctx, f.session, Turn{ConversationID: f.conv.ID, UserText: "third"})
	require.NoError(t, err)
}

func TestSubmitTurn_CompletionFailure(t *testing.T) {
	f := newFixture(t)
	f.completion.err = errors.New("upstream 500")

	_, err := f.orch.SubmitTurn(f.ctx, f.session, Turn{ConversationID: f.conv.ID, UserText: "Hi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCompletion)
	assert.Contains(t, err.Error(), "upstream 500")

	msgs := f.durable(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, store.MessageStatusComplete, msgs[0].Status)
	assert.Equal(t, store.MessageStatusFailed, msgs[1].Status)
	assert.Equal(t, FailedContent, msgs[1].Content)
	assertMemoryMatchesDurable(t, f)
	assert.Empty(t, f.session.Messages().LoadingID(f.conv.ID))

	// A retry is accepted and the failed reply is left out of the transcript.
	f.completion.err = nil
	_, err = f.orch.SubmitTurn(f.ctx, f.session, Turn{ConversationID: f.conv.ID, UserText: "Hi again"})
	require.NoError(t, err)
	for _, m := range f.completion.lastTranscript() {
		assert.NotContains(t, m.Content, FailedContent)
	}
}

func TestSubmitTurn_EmptyCompletion(t *testing.T) {
	f := newFixture(t)
	f.completion.reply = " Bot:  "

	_, err := f.orch.SubmitTurn(f.ctx, f.session, Turn{ConversationID: f.conv.ID, UserText: "Hi"})
	assert.ErrorIs(t, err, ErrCompletion)

	msgs := f.durable(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, store.MessageStatusFailed, msgs[1].Status)
}

func TestSubmitTurn_RetrievalFailure(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture)
	}{
		{"embedding", func(f *fixture) { f.embedder.err = errors.New("embed down") }},
		{"query", func(f *fixture) { f.index.err = errors.New("index down") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f)

			_, err := f.orch.SubmitTurn(f.ctx, f.session, Turn{ConversationID: f.conv.ID, UserText: "Hi", Retrieval: true})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrRetrieval)
			assert.Empty(t, f.durable(t))
			assert.Equal(t, 0, f.completion.calls)
		})
	}
}

func TestSubmitTurn_PersistenceFailures(t *testing.T) {
	t.Run("user message write", func(t *testing.T) {
		f := newFixture(t)
		f.gateway.createErr = errors.New("disk full")

		_, err := f.orch.SubmitTurn(f.ctx, f.session, Turn{ConversationID: f.conv.ID, UserText: "Hi"})
		assert.ErrorIs(t, err, ErrPersistence)
		assert.Empty(t, f.durable(t))
		assert.Empty(t, f.session.Messages().Messages(f.conv.ID))
	})

	t.Run("placeholder write", func(t *testing.T) {
		f := newFixture(t)
		f.gateway.createErr = errors.New("disk full")
		f.gateway.failCreateAt = 2

		_, err := f.orch.SubmitTurn(f.ctx, f.session, Turn{ConversationID: f.conv.ID, UserText: "Hi"})
		assert.ErrorIs(t, err, ErrPersistence)
		msgs := f.durable(t)
		require.Len(t, msgs, 1)
		assert.Equal(t, "Hi", msgs[0].Content)
		assert.Equal(t, 0, f.completion.calls)
	})

	t.Run("final reply write", func(t *testing.T) {
		f := newFixture(t)
		f.gateway.updateErr = errors.New("connection reset")

		_, err := f.orch.SubmitTurn(f.ctx, f.session, Turn{ConversationID: f.conv.ID, UserText: "Hi"})
		assert.ErrorIs(t, err, ErrPersistence)

		memory := f.session.Messages().Messages(f.conv.ID)
		require.Len(t, memory, 2)
		assert.Equal(t, store.MessageStatusFailed, memory[1].Status)
		assert.Empty(t, f.session.Messages().LoadingID(f.conv.ID))

		// The durable placeholder stays pending since every update failed.
		msgs := f.durable(t)
		assert.Equal(t, store.MessageStatusPending, msgs[1].Status)
	})
}

func TestSubmitTurn_ResetDuringTurn(t *testing.T) {
	f := newFixture(t)
	f.completion.started = make(chan struct{})
	f.completion.block = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := f.orch.SubmitTurn(f.ctx, f.session, Turn{ConversationID: f.conv.ID, UserText: "Hi"})
		done <- err
	}()
	<-f.completion.started

	f.session.Reset(f.conv.ID)
	close(f.completion.block)
	require.NoError(t, <-done)

	// Durable writes are kept; the reset session state is not repopulated.
	assert.Len(t, f.durable(t), 2)
	assert.Empty(t, f.session.Messages().Messages(f.conv.ID))
	assert.Empty(t, f.session.Messages().LoadingID(f.conv.ID))
}

func TestSubmitTurn_LoadsHistoryFirst(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.SubmitTurn(f.ctx, f.session, Turn{ConversationID: f.conv.ID, UserText: "one"})
	require.NoError(t, err)

	// A fresh session for the same owner starts from durable history.
	fresh := NewSession(testOwner)
	_, err = f.orch.SubmitTurn(f.ctx, fresh, Turn{ConversationID: f.conv.ID, UserText: "two"})
	require.NoError(t, err)

	memory := fresh.Messages().Messages(f.conv.ID)
	require.Len(t, memory, 4)
	assert.Equal(t, "one", memory[0].Content)
	assert.Equal(t, "two", memory[2].Content)
}

func TestSubmitTurn_CreatedAtNonDecreasing(t *testing.T) {
	f := newFixture(t)
	f.index.matches = []vector.Match{{MetadataText: "x"}}
	for i := 0; i < 5; i++ {
		_, err := f.orch.SubmitTurn(f.ctx, f.session, Turn{
			ConversationID: f.conv.ID,
			UserText:       "q",
			Retrieval:      i%2 == 0,
			Attachment:     &Attachment{Name: "f", Text: "t"},
		})
		require.NoError(t, err)
	}
	msgs := f.durable(t)
	require.Len(t, msgs, 5*3+3)
	for i := 1; i < len(msgs); i++ {
		assert.LessOrEqual(t, msgs[i-1].CreatedTs, msgs[i].CreatedTs)
	}
}

func TestSubmitTurn_ConcurrentConversations(t *testing.T) {
	f := newFixture(t)
	convs := []*store.Conversation{f.conv}
	for i := 0; i < 3; i++ {
		c, err := f.store.CreateConversation(f.ctx, &store.Conversation{Owner: testOwner})
		require.NoError(t, err)
		convs = append(convs, c)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(convs))
	for i, c := range convs {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = f.orch.SubmitTurn(f.ctx, f.session, Turn{ConversationID: id, UserText: "hi"})
		}(i, c.ID)
	}
	wg.Wait()

	for i, c := range convs {
		require.NoError(t, errs[i])
		msgs, err := f.store.ListMessages(f.ctx, c.ID)
		require.NoError(t, err)
		assert.Len(t, msgs, 2)
	}
}

func TestSubmitTurn_Events(t *testing.T) {
	f := newFixture(t)
	var mu sync.Mutex
	var seen []TurnEventType
	f.events.Subscribe(func(_ context.Context, e *TurnEvent) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, e.Type)
		return nil
	}, EventTurnStarted, EventTurnCompleted, EventTurnFailed, EventTurnRejected)

	_, err := f.orch.SubmitTurn(f.ctx, f.session, Turn{ConversationID: f.conv.ID, UserText: "Hi"})
	require.NoError(t, err)
	_, _ = f.orch.SubmitTurn(f.ctx, f.session, Turn{ConversationID: f.conv.ID})
	f.completion.err = errors.New("x")
	_, _ = f.orch.SubmitTurn(f.ctx, f.session, Turn{ConversationID: f.conv.ID, UserText: "Hi"})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []TurnEventType{
		EventTurnStarted, EventTurnCompleted,
		EventTurnRejected,
		EventTurnStarted, EventTurnFailed,
	}, seen)
}

func TestSubmitTurn_CustomSystemInstruction(t *testing.T) {
	f := newFixture(t)
	orch := NewTurnOrchestrator(OrchestratorConfig{
		Gateway:           f.gateway,
		Completion:        f.completion,
		SystemInstruction: "Answer in French.",
	})

	_, err := orch.SubmitTurn(f.ctx, f.session, Turn{ConversationID: f.conv.ID, UserText: "Hi"})
	require.NoError(t, err)
	assert.Equal(t, "Answer in French.", f.completion.system)
}

func TestSubmitTurn_StoresTextAsSubmitted(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.SubmitTurn(f.ctx, f.session, Turn{ConversationID: f.conv.ID, UserText: "  Hi there\n"})
	require.NoError(t, err)

	msgs := f.durable(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, "  Hi there\n", msgs[0].Content)
	assertMemoryMatchesDurable(t, f)
}

func TestSubmitTurn_EmptyAttachment(t *testing.T) {
	f := newFixture(t)

	for _, turn := range []Turn{
		{ConversationID: f.conv.ID, Attachment: &Attachment{}},
		{ConversationID: f.conv.ID, UserText: "Hi", Attachment: &Attachment{Text: "  "}},
	} {
		_, err := f.orch.SubmitTurn(f.ctx, f.session, turn)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrValidation)
	}
	assert.Empty(t, f.durable(t))
	assert.Equal(t, 0, f.completion.calls)

	// A name alone is enough.
	_, err := f.orch.SubmitTurn(f.ctx, f.session, Turn{ConversationID: f.conv.ID, Attachment: &Attachment{Name: "empty.txt"}})
	require.NoError(t, err)
}

func TestSubmitTurn_SlowListenerDoesNotHoldGuard(t *testing.T) {
	f := newFixture(t)
	release := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once
	f.events.Subscribe(func(ctx context.Context, _ *TurnEvent) error {
		first := false
		once.Do(func() {
			first = true
			close(entered)
		})
		if first {
			select {
			case <-release:
			case <-ctx.Done():
			}
		}
		return nil
	}, EventTurnCompleted)

	done := make(chan error, 1)
	go func() {
		_, err := f.orch.SubmitTurn(f.ctx, f.session, Turn{ConversationID: f.conv.ID, UserText: "first"})
		done <- err
	}()

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("completed event was never published")
	}
	msgs := f.durable(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, store.MessageStatusComplete, msgs[1].Status)

	// The first turn is still publishing, but its placeholder is resolved.
	_, err := f.orch.SubmitTurn(f.ctx, f.session, Turn{ConversationID: f.conv.ID, UserText: "second"})
	require.NoError(t, err)

	close(release)
	require.NoError(t, <-done)
	assert.Len(t, f.durable(t), 4)
}
