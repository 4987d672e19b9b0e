package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewService_RequiresModel(t *testing.T) {
	_, err := NewService(&Config{Provider: "openai", APIKey: "test-key"})
	if err == nil {
		t.Error("NewService() without model should return error")
	}
}

func TestNewService_UnknownProviderIsGeneric(t *testing.T) {
	svc, err := NewService(&Config{Provider: "custom", Model: "m", BaseURL: "http://localhost:1/v1"})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	if svc == nil {
		t.Fatal("NewService() returned nil service")
	}
}

func TestConfig_DefaultValues(t *testing.T) {
	svc, err := NewService(&Config{
		Provider:    "deepseek",
		Model:       "deepseek-chat",
		APIKey:      "test-key",
		MaxTokens:   2048,
		Temperature: 0.7,
		RateLimit:   2,
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	s, ok := svc.(*service)
	if !ok {
		t.Fatal("NewService() did not return *service type")
	}
	if s.maxTokens != 2048 {
		t.Errorf("maxTokens = %v, want 2048", s.maxTokens)
	}
	if s.temperature != 0.7 {
		t.Errorf("temperature = %v, want 0.7", s.temperature)
	}
	if s.timeout != 120 {
		t.Errorf("timeout = %v, want 120", s.timeout)
	}
	if s.limiter == nil || s.limiter.Burst() != 1 {
		t.Error("limiter should default to burst 1")
	}
}

func TestConvertMessages(t *testing.T) {
	out := convertMessages([]Message{
		SystemPrompt("sys"),
		UserMessage("hi"),
		AssistantMessage("hello"),
		{Role: "weird", Content: "x"},
	})
	require.Len(t, out, 4)
	assert.Equal(t, "system", out[0].Role)
	assert.Equal(t, "user", out[1].Role)
	assert.Equal(t, "assistant", out[2].Role)
	assert.Equal(t, "user", out[3].Role)
}

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func newChatServer(t *testing.T, reply string, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		choices := []map[string]any{}
		if reply != "" {
			choices = append(choices, map[string]any{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]string{"role": "assistant", "content": reply},
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"model":   req.Model,
			"choices": choices,
			"usage":   map[string]int{"prompt_tokens": 7, "completion_tokens": 3, "total_tokens": 10},
		})
	}))
}

func TestService_Chat(t *testing.T) {
	var calls int32
	srv := newChatServer(t, "Paris", &calls)
	defer srv.Close()

	svc, err := NewService(&Config{Provider: "openai", Model: "gpt-test", APIKey: "k", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	content, stats, err := svc.Chat(context.Background(), []Message{UserMessage("capital of France?")})
	require.NoError(t, err)
	assert.Equal(t, "Paris", content)
	require.NotNil(t, stats)
	assert.Equal(t, 10, stats.TotalTokens)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestService_Chat_EmptyChoices(t *testing.T) {
	var calls int32
	srv := newChatServer(t, "", &calls)
	defer srv.Close()

	svc, err := NewService(&Config{Provider: "openai", Model: "gpt-test", APIKey: "k", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	_, _, err = svc.Chat(context.Background(), []Message{UserMessage("hi")})
	assert.Error(t, err)
}

func TestService_Chat_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	svc, err := NewService(&Config{Provider: "openai", Model: "gpt-test", APIKey: "k", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	_, _, err = svc.Chat(context.Background(), []Message{UserMessage("hi")})
	assert.Error(t, err)
}

func TestService_Chat_RateLimiterHonorsContext(t *testing.T) {
	var calls int32
	srv := newChatServer(t, "ok", &calls)
	defer srv.Close()

	svc, err := NewService(&Config{
		Provider: "openai", Model: "gpt-test", APIKey: "k", BaseURL: srv.URL + "/v1",
		RateLimit: 0.001, RateBurst: 1,
	})
	require.NoError(t, err)

	_, _, err = svc.Chat(context.Background(), []Message{UserMessage("first")})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, _, err = svc.Chat(ctx, []Message{UserMessage("second")})
	assert.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestService_Warmup_NoPanic(t *testing.T) {
	svc, err := NewService(&Config{Provider: "openai", Model: "gpt-test", APIKey: "k", BaseURL: "http://127.0.0.1:1/v1"})
	require.NoError(t, err)
	svc.Warmup(context.Background())
}
