// Package conversation defines the per-message ConversationState the
// orchestrator's state machine reads and mutates, versioned and
// immutable once complete, in the spirit of hector's Task state machine
// adapted from human-in-the-loop task resumption to path-orchestration
// resumption.
package conversation

import (
	"fmt"
	"sync"
	"time"

	"github.com/pr0ta9/genesis/internal/planner"
	"github.com/pr0ta9/genesis/internal/wftype"
)

// Node identifies one state of the orchestrator's state machine.
type Node string

const (
	NodeStart              Node = "start"
	NodeClassify           Node = "classify"
	NodePrecedent          Node = "precedent"
	NodeFindPath           Node = "find_path"
	NodeRoute              Node = "route"
	NodeExecute            Node = "execute"
	NodeFinalize           Node = "finalize"
	NodeWaitingForFeedback Node = "waiting_for_feedback"
	NodeComplete           Node = "complete"
	NodeError              Node = "error"
)

// StepResult is one executed tool step's record.
type StepResult struct {
	Tool       string
	BoundArgs  map[string]any
	Status     string // copied from executor.StepResult.Status ("ok")
	OutputPath string
	StderrTail string
	Duration   time.Duration
}

// Attachment is a user-supplied artifact reference, carried through the
// state rather than its raw bytes.
type Attachment struct {
	Path     string
	MIMEType string
}

// State is one version of a conversation's per-message record. A new
// user message always produces a new version; a State is never mutated
// in place once IsComplete is true.
type State struct {
	ConversationID string
	MessageID      string
	Version        int

	Objective string

	InputType      wftype.Type
	TypeSavepoint  []wftype.Type

	IsComplex bool

	ClassifyReasoning     string
	ClassifyClarification string
	SatisfyingOutputTypes []string

	AllPaths []planner.PathCandidate

	ChosenPath *planner.PathCandidate

	RouteReasoning     string
	RouteClarification string
	IsPartial          bool

	// PendingParams names the tool parameters a PartialBinding left
	// unresolved when execute suspended into waiting_for_feedback; Resume
	// binds the clarification reply to each of these as an explicit
	// argument for the same step rather than discarding it.
	PendingParams []string

	ExecutionResults     []StepResult
	ExecutionOutputPath  string

	Response          string
	FinalizeReasoning string
	Summary           string

	Node         Node
	NextNode     Node
	IsComplete   bool
	ErrorDetails string

	// Interrupted is set when this state resumes a prior
	// waiting_for_feedback suspension; the fed-back message is routed
	// back into Node rather than re-classified.
	Interrupted bool

	// IterationCounts tracks the per-node loop budget for this message
	// version, keyed by node name.
	IterationCounts map[Node]int

	CreatedAt time.Time
	UpdatedAt time.Time

	mu sync.RWMutex
}

// New constructs the initial (version 1) state for a fresh user message.
func New(conversationID, messageID string) *State {
	now := time.Now()
	return &State{
		ConversationID:  conversationID,
		MessageID:       messageID,
		Version:         1,
		Node:            NodeStart,
		NextNode:        NodeClassify,
		IterationCounts: make(map[Node]int),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// ErrStateComplete is returned by any mutation attempted on a completed
// state (invariant 3).
type ErrStateComplete struct {
	ConversationID string
	MessageID      string
	Version        int
}

func (e *ErrStateComplete) Error() string {
	return fmt.Sprintf("conversation: state %s/%s v%d is complete and immutable", e.ConversationID, e.MessageID, e.Version)
}

// Transition advances the state machine to next, writing Node/NextNode
// and bumping the per-node iteration counter. Returns ErrStateComplete
// if the state is already sealed.
func (s *State) Transition(next Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.IsComplete {
		return &ErrStateComplete{s.ConversationID, s.MessageID, s.Version}
	}

	s.Node = next
	s.IterationCounts[next]++
	s.UpdatedAt = time.Now()
	return nil
}

// SetNextNode records the transition target without moving Node yet, so
// a checkpoint or event can always report where the state is headed.
func (s *State) SetNextNode(next Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.NextNode = next
	s.UpdatedAt = time.Now()
}

// IterationCount reads the current loop count for node.
func (s *State) IterationCount(node Node) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.IterationCounts[node]
}

// Complete seals the state as terminal. Once sealed it is immutable;
// Next must be called to continue the conversation.
func (s *State) Complete(node Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.IsComplete {
		return &ErrStateComplete{s.ConversationID, s.MessageID, s.Version}
	}
	s.Node = node
	s.NextNode = node
	s.IsComplete = true
	s.UpdatedAt = time.Now()
	return nil
}

// Next produces the next version of the conversation's state, carrying
// forward identity fields but starting a fresh node/iteration history:
// re-processing a conversation always creates a new version rather than
// mutating a completed one.
func (s *State) Next(messageID string) *State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	return &State{
		ConversationID:  s.ConversationID,
		MessageID:       messageID,
		Version:         s.Version + 1,
		Node:            NodeStart,
		NextNode:        NodeClassify,
		IterationCounts: make(map[Node]int),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Resume produces a version that continues from a waiting_for_feedback
// suspension, landing back on resumeNode with Interrupted set so the
// orchestrator routes the fed-back message into the same node instead
// of re-classifying.
func (s *State) Resume(resumeNode Node) (*State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.Node != NodeWaitingForFeedback {
		return nil, fmt.Errorf("conversation: cannot resume state not waiting_for_feedback (at %s)", s.Node)
	}

	now := time.Now()
	next := &State{
		ConversationID:  s.ConversationID,
		MessageID:       s.MessageID,
		Version:         s.Version + 1,
		Objective:       s.Objective,
		InputType:       s.InputType,
		TypeSavepoint:   append([]wftype.Type{}, s.TypeSavepoint...),
		IsComplex:       s.IsComplex,
		SatisfyingOutputTypes: append([]string{}, s.SatisfyingOutputTypes...),
		AllPaths:        s.AllPaths,
		ChosenPath:      s.ChosenPath,
		ExecutionResults: append([]StepResult{}, s.ExecutionResults...),
		PendingParams:   append([]string{}, s.PendingParams...),
		Node:            resumeNode,
		NextNode:        resumeNode,
		Interrupted:     true,
		IterationCounts: make(map[Node]int),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	return next, nil
}
