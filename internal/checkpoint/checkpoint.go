// Package checkpoint persists a snapshot of conversation.State at every
// orchestrator node boundary (§4.5 "every transition writes a
// checkpoint"), so a crashed or restarted process can resume a
// conversation from its last completed node.
package checkpoint

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pr0ta9/genesis/internal/conversation"
)

// Config controls whether checkpoints are written.
type Config struct {
	Enabled bool `yaml:"enabled"`
}

// SetDefaults turns checkpointing on. It sets Enabled to true in every
// case: a bool cannot tell an explicit false from an unset field, so a
// Config with Enabled set to false is also switched on.
func (c *Config) SetDefaults() {
	// Enabled defaults to true; Go's zero value for bool is false, so an
	// explicit SetDefaults call is required wherever Config is
	// constructed without YAML, matching every other *Config in this
	// module.
	if !c.Enabled {
		c.Enabled = true
	}
}

// Storage is the persistence boundary a Manager writes through. The
// concrete store (filesystem, database, object store) is a boundary
// collaborator per the spec's scope; Genesis ships an in-memory
// implementation for tests and local runs.
type Storage interface {
	Save(ctx context.Context, state *conversation.State) error
	Load(ctx context.Context, conversationID, messageID string) (*conversation.State, error)
	Clear(ctx context.Context, conversationID, messageID string) error
}

// MemoryStorage is an in-process Storage, sufficient for a single
// instance and for tests; a durable implementation is a boundary
// collaborator.
type MemoryStorage struct {
	mu    sync.RWMutex
	saved map[string]*conversation.State
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{saved: make(map[string]*conversation.State)}
}

func key(conversationID, messageID string) string {
	return conversationID + "/" + messageID
}

func (s *MemoryStorage) Save(_ context.Context, state *conversation.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved[key(state.ConversationID, state.MessageID)] = state
	return nil
}

func (s *MemoryStorage) Load(_ context.Context, conversationID, messageID string) (*conversation.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.saved[key(conversationID, messageID)]
	if !ok {
		return nil, fmt.Errorf("checkpoint: no checkpoint for %s/%s", conversationID, messageID)
	}
	return state, nil
}

func (s *MemoryStorage) Clear(_ context.Context, conversationID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.saved, key(conversationID, messageID))
	return nil
}

// Manager is the orchestrator's single entry point for checkpoint I/O.
type Manager struct {
	config  *Config
	storage Storage
}

// NewManager constructs a Manager backed by storage. A nil config
// enables checkpointing with defaults, matching the teacher's
// nil-config-means-defaults convention.
func NewManager(cfg *Config, storage Storage) *Manager {
	if cfg == nil {
		cfg = &Config{}
		cfg.SetDefaults()
	}
	return &Manager{config: cfg, storage: storage}
}

func (m *Manager) IsEnabled() bool { return m.config.Enabled }

// SaveCheckpoint persists state if checkpointing is enabled; it is a
// no-op otherwise, so callers can call it unconditionally at every node
// boundary.
func (m *Manager) SaveCheckpoint(ctx context.Context, state *conversation.State) error {
	if !m.IsEnabled() {
		return nil
	}
	if err := m.storage.Save(ctx, state); err != nil {
		return fmt.Errorf("checkpoint: save %s/%s: %w", state.ConversationID, state.MessageID, err)
	}
	slog.Debug("checkpoint: saved", "conversation_id", state.ConversationID, "message_id", state.MessageID, "node", state.Node)
	return nil
}

// LoadCheckpoint retrieves the last saved state for a conversation's
// message, used to resume a suspended or crashed conversation.
func (m *Manager) LoadCheckpoint(ctx context.Context, conversationID, messageID string) (*conversation.State, error) {
	return m.storage.Load(ctx, conversationID, messageID)
}

// ClearCheckpoint removes a checkpoint once a conversation completes,
// consistent with the teacher's lifecycle (checkpoints are a resumption
// aid, not a permanent log).
func (m *Manager) ClearCheckpoint(ctx context.Context, conversationID, messageID string) error {
	return m.storage.Clear(ctx, conversationID, messageID)
}

// Hooks wraps Manager with named call sites the orchestrator invokes,
// mirroring the teacher's BeforeLLMCall/AfterToolExecution/OnError/
// OnComplete hook shape, re-keyed to node transitions instead of LLM
// iterations.
type Hooks struct {
	manager *Manager
}

func NewHooks(manager *Manager) *Hooks {
	if manager == nil {
		return nil
	}
	return &Hooks{manager: manager}
}

// AfterTransition checkpoints state right after the orchestrator moves
// to a new node, logging (not failing the transition) on a storage
// error: a missed checkpoint should not abort an otherwise-successful
// step.
func (h *Hooks) AfterTransition(ctx context.Context, state *conversation.State) {
	if h == nil {
		return
	}
	if err := h.manager.SaveCheckpoint(ctx, state); err != nil {
		slog.Error("checkpoint: failed to save after transition", "error", err)
	}
}

// OnError checkpoints the failed state so an operator can inspect
// exactly where a conversation died.
func (h *Hooks) OnError(ctx context.Context, state *conversation.State) {
	if h == nil {
		return
	}
	if err := h.manager.SaveCheckpoint(ctx, state); err != nil {
		slog.Error("checkpoint: failed to save error state", "error", err)
	}
}

// OnComplete clears the checkpoint for a terminal, sealed state.
func (h *Hooks) OnComplete(ctx context.Context, state *conversation.State) {
	if h == nil {
		return
	}
	if err := h.manager.ClearCheckpoint(ctx, state.ConversationID, state.MessageID); err != nil {
		slog.Warn("checkpoint: failed to clear on complete", "error", err)
	}
}
