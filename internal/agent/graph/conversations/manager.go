package conversations

import (
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/watson-civil-chatbot/server/internal/agent/model"
)

// MessagesManager turns a session transcript into model context.
type MessagesManager struct {
	maxTurns int
}

func NewMessagesManager(config model.ConversationConfig) *MessagesManager {
	return &MessagesManager{maxTurns: config.MaxTurns}
}

// BuildContext returns the system prompt, the most recent history and the
// current prompt. The transcript's trailing copy of the raw query (appended by
// the chat surface before the call) is not repeated.
func (cm *MessagesManager) BuildContext(sess *model.Session, systemPrompt, rawQuery, prompt string) []*schema.Message {
	var history []model.Message
	if sess != nil {
		history = sess.History()
	}
	if n := len(history); n > 0 && history[n-1].IsFromUser && history[n-1].Text == rawQuery {
		history = history[:n-1]
	}
	history = trimTail(history, cm.maxTurns)

	messages := make([]*schema.Message, 0, len(history)+2)
	messages = append(messages, schema.SystemMessage(systemPrompt))
	for _, m := range history {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		if m.IsFromUser {
			messages = append(messages, schema.UserMessage(m.Text))
		} else {
			messages = append(messages, schema.AssistantMessage(stripReport(m.Text), nil))
		}
	}
	messages = append(messages, schema.UserMessage(prompt))
	return messages
}

// stripReport drops the chain-of-thought appendix from earlier replies; the
// model only needs the answers.
func stripReport(text string) string {
	if i := strings.Index(text, "\n\n---\n\n### Chain of Thought"); i >= 0 {
		return text[:i]
	}
	return text
}

// ====================== Helper function ======================
// trimTail keeps the last maxTurns exchanges; a turn is a user message and
// its reply.
func trimTail(messages []model.Message, maxTurns int) []model.Message {
	if maxTurns <= 0 {
		return nil
	}
	keep := maxTurns * 2
	if len(messages) <= keep {
		return messages
	}
	return messages[len(messages)-keep:]
}
