package memory

import (
	"context"
	"log/slog"
	"strings"

	"github.com/autonoplus/yui/llm"
	"github.com/autonoplus/yui/store"
)

const (
	// HistoryWindow is how many recent messages feed the summary.
	HistoryWindow = 30
	// MinSummaryHistory is the history size below which no summary is
	// built. Short chats go to the model with just the latest turn,
	// and the response-cache key stays stable across one exchange.
	MinSummaryHistory = 10
	// TurnMaxChars truncates each turn inside the summary input.
	TurnMaxChars = 400
	// FallbackMaxChars bounds the raw-text fallback when summarization fails.
	FallbackMaxChars = 1500
)

// Summarizer condenses a formatted conversation into a few sentences.
type Summarizer func(ctx context.Context, conversa string) (string, error)

// Manager rebuilds the model context for a chat. The shape is fixed: at
// most one system message carrying the summary plus exactly one user
// message carrying the latest input. Prior assistant turns are never
// replayed verbatim.
type Manager struct {
	store     store.ChatStore
	summarize Summarizer
	logger    *slog.Logger
}

// NewManager wires the manager to the chat store. summarize may be nil,
// in which case the raw-text fallback is always used.
func NewManager(cs store.ChatStore, summarize Summarizer, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: cs, summarize: summarize, logger: logger}
}

// BuildContext returns the messages to send to the model and the summary
// used (empty when there is no history). latest is passed through
// untouched as the single user message.
func (m *Manager) BuildContext(ctx context.Context, chatID, userID, latest string) ([]llm.Message, string) {
	summary := m.Summary(ctx, chatID, userID)

	var msgs []llm.Message
	if summary != "" {
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: summary})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: latest})
	return msgs, summary
}

// Summary condenses the chat's recent history. Empty when the chat has
// no usable history.
func (m *Manager) Summary(ctx context.Context, chatID, userID string) string {
	history, err := m.store.Messages(ctx, chatID, userID, HistoryWindow)
	if err != nil {
		m.logger.Warn("memory: history fetch failed", "chat_id", chatID, "error", err)
		return ""
	}

	var lines []string
	for _, msg := range history {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		if len(content) > TurnMaxChars {
			content = content[:TurnMaxChars]
		}
		lines = append(lines, msg.Role+": "+content)
	}
	if len(lines) <= MinSummaryHistory {
		return ""
	}
	conversa := strings.Join(lines, "\n")

	if m.summarize != nil {
		if s, err := m.summarize(ctx, conversa); err == nil && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		} else if err != nil {
			m.logger.Warn("memory: summarization failed, using raw fallback", "chat_id", chatID, "error", err)
		}
	}

	if len(conversa) > FallbackMaxChars {
		conversa = conversa[:FallbackMaxChars] + "..."
	}
	return conversa
}
