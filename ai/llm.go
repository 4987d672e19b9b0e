package ai

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/hrygo/vectorwave/ai/core/llm"
)

// Message represents a chat message.
type Message = llm.Message

// ErrEmptyCompletion is returned when the model produced no usable text.
var ErrEmptyCompletion = errors.New("empty completion")

// CompletionService turns an ordered transcript and one system instruction
// into a single reply.
type CompletionService interface {
	Complete(ctx context.Context, transcript []Message, systemInstruction string) (string, error)
}

type completionService struct {
	llm llm.Service
}

// NewCompletionServiceFromLLM wraps an existing llm.Service.
func NewCompletionServiceFromLLM(svc llm.Service) CompletionService {
	return &completionService{llm: svc}
}

func (s *completionService) Complete(ctx context.Context, transcript []Message, systemInstruction string) (string, error) {
	messages := make([]Message, 0, len(transcript)+1)
	if systemInstruction != "" {
		messages = append(messages, llm.SystemPrompt(systemInstruction))
	}
	messages = append(messages, transcript...)

	content, stats, err := s.llm.Chat(ctx, messages)
	if err != nil {
		return "", err
	}
	if stats != nil {
		slog.Debug("Completion finished",
			"total_tokens", stats.TotalTokens,
			"duration_ms", stats.TotalDurationMs,
		)
	}

	reply := CleanReply(content)
	if reply == "" {
		return "", ErrEmptyCompletion
	}
	return reply, nil
}

// CleanReply trims the reply and drops a leading "Bot:" speaker label that
// some models echo back from the transcript format.
func CleanReply(content string) string {
	reply := strings.TrimSpace(content)
	reply = strings.TrimPrefix(reply, "Bot:")
	return strings.TrimSpace(reply)
}
