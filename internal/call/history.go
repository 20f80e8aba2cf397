package call

import (
	"sync"

	"github.com/voicedesk/voicedesk/pkg/provider/llm"
)

// History tracks the conversation between one user and the assistant.
//
// The system prompt is pinned at index 0 and never evicted. When appending
// would exceed the configured limit, the oldest non-system messages are
// dropped so that the history holds the system prompt plus the most recent
// limit-1 exchanges. This keeps the prompt within the model's context window
// without a tokenizer dependency.
//
// All methods are safe for concurrent use.
type History struct {
	limit int

	mu       sync.Mutex
	messages []llm.Message
}

// NewHistory creates a History seeded with the given system prompt.
// If limit is less than 2, a limit of 2 is used so that at least the system
// prompt and one other message can be retained.
func NewHistory(systemPrompt string, limit int) *History {
	if limit < 2 {
		limit = 2
	}
	return &History{
		limit: limit,
		messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt},
		},
	}
}

// Append adds a message to the history, evicting the oldest non-system
// messages if the limit would be exceeded.
func (h *History) Append(role, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = append(h.messages, llm.Message{Role: role, Content: content})

	if len(h.messages) > h.limit {
		// Keep the pinned system message plus the newest limit-1 entries.
		keep := h.limit - 1
		tail := h.messages[len(h.messages)-keep:]
		trimmed := make([]llm.Message, 0, h.limit)
		trimmed = append(trimmed, h.messages[0])
		trimmed = append(trimmed, tail...)
		h.messages = trimmed
	}
}

// Messages returns a copy of the current history, ready to pass to
// [llm.CompletionRequest].
func (h *History) Messages() []llm.Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]llm.Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Len returns the number of messages currently held, including the pinned
// system message.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}
