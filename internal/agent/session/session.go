// Package session carries the per-conversation state through a call chain
// and keeps it between turns.
package session

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/watson-civil-chatbot/server/internal/agent/model"
)

type ctxKey struct{}

// NewContext returns a context carrying s.
func NewContext(ctx context.Context, s *model.Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session stored in ctx, if any.
func FromContext(ctx context.Context) (*model.Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(*model.Session)
	return s, ok && s != nil
}

// New creates a session with a random ID.
func New() *model.Session {
	return model.NewSession(uuid.NewString())
}

// Resume loads id from repo, or creates a fresh session when id is empty or unknown.
func Resume(ctx context.Context, repo model.SessionRepository, id string) (*model.Session, error) {
	if id == "" {
		return New(), nil
	}
	s, err := repo.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return model.NewSession(id), nil
	}
	return s, nil
}

// MemoryRepository keeps sessions for the life of the process.
type MemoryRepository struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sessions: map[string]*model.Session{}}
}

func (r *MemoryRepository) Load(_ context.Context, sessionID string) (*model.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[sessionID], nil
}

func (r *MemoryRepository) Save(_ context.Context, s *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
	return nil
}

var _ model.SessionRepository = (*MemoryRepository)(nil)
