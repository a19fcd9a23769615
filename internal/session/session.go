// Package session tracks the lightweight per-conversation record the
// server and orchestrator consult to find a conversation's latest
// state version and message history, grounded on pkg/session/session.go's
// Service interface (Get/Create/AppendEvent/List/Delete) but trimmed to
// Genesis's domain: a session here is a conversation's pointer to its
// current conversation.State, not a general agent-event history.
// Persistence beyond the process lifetime is a boundary collaborator.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pr0ta9/genesis/internal/conversation"
)

// Session is one conversation's tracked record.
type Session struct {
	ConversationID string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Current        *conversation.State
	History        []*conversation.State
}

// Service manages session lifecycle: creation, lookup, and recording
// each new conversation.State version as the orchestrator produces one.
type Service interface {
	Get(ctx context.Context, conversationID string) (*Session, error)
	Create(ctx context.Context, conversationID string) (*Session, error)
	AppendState(ctx context.Context, conversationID string, state *conversation.State) error
	List(ctx context.Context) ([]*Session, error)
	Delete(ctx context.Context, conversationID string) error
}

// ErrNotFound is returned by Get/Delete for an unknown conversation ID.
type ErrNotFound struct{ ConversationID string }

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("session: conversation %q not found", e.ConversationID)
}

// MemoryService is an in-process Service, the default for a single
// instance and for tests.
type MemoryService struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewMemoryService() *MemoryService {
	return &MemoryService{sessions: make(map[string]*Session)}
}

func (s *MemoryService) Get(_ context.Context, conversationID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[conversationID]
	if !ok {
		return nil, &ErrNotFound{ConversationID: conversationID}
	}
	return sess, nil
}

// Create makes a new session, generating a conversation ID if one isn't
// supplied.
func (s *MemoryService) Create(_ context.Context, conversationID string) (*Session, error) {
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[conversationID]; exists {
		return nil, fmt.Errorf("session: conversation %q already exists", conversationID)
	}

	now := time.Now()
	sess := &Session{ConversationID: conversationID, CreatedAt: now, UpdatedAt: now}
	s.sessions[conversationID] = sess
	return sess, nil
}

// AppendState records state as the conversation's latest version,
// creating the session if this is its first message.
func (s *MemoryService) AppendState(_ context.Context, conversationID string, state *conversation.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[conversationID]
	if !ok {
		sess = &Session{ConversationID: conversationID, CreatedAt: time.Now()}
		s.sessions[conversationID] = sess
	}
	sess.Current = state
	sess.History = append(sess.History, state)
	sess.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryService) List(_ context.Context) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out, nil
}

func (s *MemoryService) Delete(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[conversationID]; !ok {
		return &ErrNotFound{ConversationID: conversationID}
	}
	delete(s.sessions, conversationID)
	return nil
}

var _ Service = (*MemoryService)(nil)
