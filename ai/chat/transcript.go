package chat

import (
	"github.com/hrygo/vectorwave/ai"
	"github.com/hrygo/vectorwave/ai/core/llm"
	"github.com/hrygo/vectorwave/store"
)

// SystemInstruction is sent with every completion request.
const SystemInstruction = `You are a helpful assistant in a chat application. Reply in plain, concise prose and do not prefix your reply with a speaker label.
Messages starting with "Attached file:" contain a file the user shared, and messages starting with "Vector Results:" contain passages retrieved from the user's documents.
When the user asks about attached or retrieved content and that content does not cover the question, answer "I don't know".`

const userPrefix = "User:"

// BuildTranscript renders durable messages into completion input. Pending and
// failed messages are skipped so neither the placeholder nor an earlier
// failure notice reaches the model.
func BuildTranscript(messages []*store.Message) []ai.Message {
	out := make([]ai.Message, 0, len(messages))
	for _, m := range messages {
		if m.Status != store.MessageStatusComplete {
			continue
		}
		if m.Sender == store.MessageSenderUser {
			out = append(out, llm.UserMessage(userPrefix+" "+m.Content))
			continue
		}
		out = append(out, llm.AssistantMessage(" "+m.Content))
	}
	return out
}
