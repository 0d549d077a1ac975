package model

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Message is one transcript entry.
type Message struct {
	Text       string    `json:"text"`
	IsFromUser bool      `json:"is_from_user"`
	At         time.Time `json:"at"`
}

// Session is the explicit per-conversation state passed through every
// orchestrator call: the append-only transcript and the tool gates that have
// been opened. It is safe for concurrent use and serialises to JSON.
type Session struct {
	ID        string
	CreatedAt time.Time
	Messages  []Message
	Gates     map[string]bool

	mu sync.Mutex
}

type sessionJSON struct {
	ID        string          `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	Messages  []Message       `json:"messages"`
	Gates     map[string]bool `json:"gates"`
}

// MarshalJSON snapshots the session under its lock.
func (s *Session) MarshalJSON() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return json.Marshal(sessionJSON{ID: s.ID, CreatedAt: s.CreatedAt, Messages: s.Messages, Gates: s.Gates})
}

func (s *Session) UnmarshalJSON(b []byte) error {
	var v sessionJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	if v.Messages == nil {
		v.Messages = []Message{}
	}
	if v.Gates == nil {
		v.Gates = map[string]bool{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ID, s.CreatedAt, s.Messages, s.Gates = v.ID, v.CreatedAt, v.Messages, v.Gates
	return nil
}

// NewSession returns an empty session with the given ID.
func NewSession(id string) *Session {
	return &Session{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		Messages:  []Message{},
		Gates:     map[string]bool{},
	}
}

// Append adds a message to the end of the transcript and returns it.
func (s *Session) Append(text string, fromUser bool) Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := Message{Text: text, IsFromUser: fromUser, At: time.Now().UTC()}
	s.Messages = append(s.Messages, m)
	return m
}

// History returns a copy of the transcript.
func (s *Session) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.Messages))
	copy(out, s.Messages)
	return out
}

// Len returns the number of transcript messages.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Messages)
}

// MarkSucceeded records that tool ran successfully. Gates only ever open.
func (s *Session) MarkSucceeded(tool string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Gates == nil {
		s.Gates = map[string]bool{}
	}
	s.Gates[tool] = true
}

// Succeeded reports whether tool has run successfully in this session.
func (s *Session) Succeeded(tool string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Gates[tool]
}

type SessionRepository interface {
	// Load returns the stored session or (nil, nil) when none exists.
	Load(ctx context.Context, sessionID string) (*Session, error)

	// Save stores a snapshot of the session.
	Save(ctx context.Context, session *Session) error

	// Delete removes the session.
	Delete(ctx context.Context, sessionID string) error
}
