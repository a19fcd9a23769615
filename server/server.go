// Package server exposes the orchestrator over HTTP: one endpoint to
// start a conversation turn, one to resume a waiting_for_feedback
// suspension, both streaming the turn's events as newline-delimited
// JSON. Grounded on pkg/server/http.go's HTTPServer shape (serverCfg,
// mu-guarded mutable fields, Address/Start lifecycle), trimmed from
// hector's A2A JSON-RPC surface to Genesis's own process/resume pair.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/pr0ta9/genesis/internal/checkpoint"
	"github.com/pr0ta9/genesis/internal/config"
	"github.com/pr0ta9/genesis/internal/conversation"
	"github.com/pr0ta9/genesis/internal/eventbus"
	"github.com/pr0ta9/genesis/internal/executor"
	"github.com/pr0ta9/genesis/internal/llm"
	"github.com/pr0ta9/genesis/internal/orchestrator"
	"github.com/pr0ta9/genesis/internal/pathtool"
	"github.com/pr0ta9/genesis/internal/planner"
	"github.com/pr0ta9/genesis/internal/precedent"
	"github.com/pr0ta9/genesis/internal/session"
	"github.com/pr0ta9/genesis/internal/telemetry"
)

// OrchestratorDeps bundles the collaborators shared by every
// conversation's Orchestrator. The server fills in per-conversation
// Events itself; everything else is process-wide.
type OrchestratorDeps struct {
	Tools      *pathtool.ToolRegistry
	Precedent  *precedent.Store
	Provider   llm.Provider
	Checkpoint *checkpoint.Manager
	Hooks      *checkpoint.Hooks
	Executor   *executor.Executor
	PlanOpts   planner.Options
	Metrics    *telemetry.Metrics
}

// Server is Genesis's HTTP boundary: a thin layer translating
// process_message/resume requests into Orchestrator.Run/Resume calls
// and streaming their event traffic back to the caller.
type Server struct {
	cfg      *config.ServerConfig
	deps     OrchestratorDeps
	sessions session.Service
	events   *eventbus.Registry

	httpServer *http.Server
	router     http.Handler
}

// New constructs a Server. router is supplied by buildRouter (in
// http.go) to keep the chi wiring separate from lifecycle management.
func New(cfg *config.ServerConfig, deps OrchestratorDeps, sessions session.Service) *Server {
	s := &Server{
		cfg:      cfg,
		deps:     deps,
		sessions: sessions,
		events:   eventbus.NewRegistry(),
	}
	s.router = s.buildRouter()
	return s
}

// Address returns the host:port the server listens on.
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
}

// Start runs the HTTP server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    s.Address(),
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// newOrchestrator builds a per-conversation Orchestrator bound to that
// conversation's event bus.
func (s *Server) newOrchestrator(conversationID string) *orchestrator.Orchestrator {
	orch := orchestrator.New(orchestrator.Deps{
		Tools:      s.deps.Tools,
		Precedent:  s.deps.Precedent,
		Provider:   s.deps.Provider,
		Checkpoint: s.deps.Checkpoint,
		Hooks:      s.deps.Hooks,
		Events:     s.events.Get(conversationID),
		Executor:   s.deps.Executor,
		PlanOpts:   s.deps.PlanOpts,
	})
	orch.SetMetrics(s.deps.Metrics)
	return orch
}

// currentState returns the conversation's latest state, or a fresh
// version-1 state for an unseen conversation ID.
func (s *Server) currentState(ctx context.Context, conversationID, messageID string) (*conversation.State, error) {
	sess, err := s.sessions.Get(ctx, conversationID)
	if err != nil {
		var notFound *session.ErrNotFound
		if errors.As(err, &notFound) {
			return conversation.New(conversationID, messageID), nil
		}
		return nil, err
	}
	if sess.Current == nil {
		return conversation.New(conversationID, messageID), nil
	}
	return sess.Current.Next(messageID), nil
}

func newMessageID() string {
	return uuid.NewString()
}

func orchestratorInput(message string, attachments []conversation.Attachment) orchestrator.Input {
	return orchestrator.Input{Message: message, Attachments: attachments}
}
