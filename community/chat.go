// community/chat.go
package community

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage is append-only; history per target is bounded and the
// oldest entries fall off.
type ChatMessage struct {
	ID         uuid.UUID `json:"id"`
	SenderID   uuid.UUID `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Target     string    `json:"target"`
	Body       string    `json:"body"`
	Timestamp  time.Time `json:"timestamp"`
}

// AppendMessage records a chat message under its target (a room id or a
// direct-conversation key) and returns the stored entry.
func (m *Manager) AppendMessage(senderID uuid.UUID, senderName, target, body string) ChatMessage {
	msg := ChatMessage{
		ID:         uuid.New(),
		SenderID:   senderID,
		SenderName: senderName,
		Target:     target,
		Body:       body,
		Timestamp:  m.now(),
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	history := append(m.messages[target], msg)
	if len(history) > m.historyLimit {
		history = history[len(history)-m.historyLimit:]
	}
	m.messages[target] = history
	return msg
}

// DirectKey is the conversation key for a user pair, independent of who
// speaks first.
func DirectKey(a, b uuid.UUID) string {
	return "dm:" + pairKey(a, b)
}

// History returns up to limit most recent messages for a target, oldest
// first.
func (m *Manager) History(target string, limit int) []ChatMessage {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	history := m.messages[target]
	if limit <= 0 || limit > len(history) {
		limit = len(history)
	}
	out := make([]ChatMessage, limit)
	copy(out, history[len(history)-limit:])
	return out
}
