package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pr0ta9/genesis/internal/conversation"
)

// wireEvent is one line of the NDJSON stream: either a relayed
// eventbus.Event or the turn's final outcome.
type wireEvent struct {
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// processMessageRequest is the process_message request body.
type processMessageRequest struct {
	Message     string                    `json:"message"`
	Attachments []conversation.Attachment `json:"attachments,omitempty"`
}

// resumeRequest is the resume request body.
type resumeRequest struct {
	Reply       string                    `json:"reply"`
	Attachments []conversation.Attachment `json:"attachments,omitempty"`
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", s.deps.Metrics.Handler())
	r.Post("/conversations", s.handleCreateConversation)
	r.Post("/conversations/{conversationID}/messages", s.handleProcessMessage)
	r.Post("/conversations/{conversationID}/resume", s.handleResume)
	r.Get("/conversations/{conversationID}", s.handleGetConversation)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ConversationID string `json:"conversation_id,omitempty"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	sess, err := s.sessions.Create(r.Context(), body.ConversationID)
	if err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"conversation_id": sess.ConversationID})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	sess, err := s.sessions.Get(r.Context(), conversationID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleProcessMessage(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	var req processMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	messageID := newMessageID()
	state, err := s.currentState(r.Context(), conversationID, messageID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	orch := s.newOrchestrator(conversationID)
	input := orchestratorInput(req.Message, req.Attachments)

	s.streamTurn(w, r, conversationID, func() (*conversation.State, error) {
		return orch.Run(r.Context(), state, input)
	})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	var req resumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	sess, err := s.sessions.Get(r.Context(), conversationID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	if sess.Current == nil || sess.Current.Node != conversation.NodeWaitingForFeedback {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "conversation is not waiting for feedback"})
		return
	}

	orch := s.newOrchestrator(conversationID)
	state := sess.Current

	s.streamTurn(w, r, conversationID, func() (*conversation.State, error) {
		return orch.Resume(r.Context(), state, req.Reply, req.Attachments)
	})
}

// streamTurn subscribes to the conversation's event bus, runs fn in a
// goroutine, relays every event published during the run as an NDJSON
// line, then appends the resulting state to the session and writes the
// terminal line.
func (s *Server) streamTurn(w http.ResponseWriter, r *http.Request, conversationID string, fn func() (*conversation.State, error)) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	bus := s.events.Get(conversationID)
	sub, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	done := make(chan struct{})
	var final *conversation.State
	var runErr error
	go func() {
		defer close(done)
		final, runErr = fn()
	}()

	enc := json.NewEncoder(w)
drain:
	for {
		select {
		case ev, ok := <-sub:
			if !ok {
				break drain
			}
			_ = enc.Encode(wireEvent{Type: string(ev.Type), Data: ev.Data, Timestamp: ev.Timestamp})
			flusher.Flush()
		case <-done:
			break drain
		}
	}

	if runErr != nil {
		_ = enc.Encode(wireEvent{Type: "error", Data: runErr.Error(), Timestamp: time.Now()})
		flusher.Flush()
		return
	}

	if final != nil {
		if err := s.sessions.AppendState(r.Context(), conversationID, final); err != nil {
			slog.Warn("append state to session failed", "conversation_id", conversationID, "error", err)
		}
	}

	_ = enc.Encode(wireEvent{Type: "result", Data: final, Timestamp: time.Now()})
	flusher.Flush()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
