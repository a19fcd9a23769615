package conversation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewStateStartsAtClassify(t *testing.T) {
	s := New("conv-1", "msg-1")
	require.Equal(t, NodeStart, s.Node)
	require.Equal(t, NodeClassify, s.NextNode)
	require.Equal(t, 1, s.Version)
	require.False(t, s.IsComplete)
}

func TestTransitionBumpsIterationCount(t *testing.T) {
	s := New("conv-1", "msg-1")
	require.NoError(t, s.Transition(NodeClassify))
	require.NoError(t, s.Transition(NodeClassify))
	require.Equal(t, 2, s.IterationCount(NodeClassify))
}

func TestCompleteSealsStateAgainstFurtherTransitions(t *testing.T) {
	s := New("conv-1", "msg-1")
	require.NoError(t, s.Complete(NodeComplete))
	require.True(t, s.IsComplete)

	err := s.Transition(NodeError)
	require.Error(t, err)
	var sealed *ErrStateComplete
	require.ErrorAs(t, err, &sealed)
}

func TestNextProducesFreshVersion(t *testing.T) {
	s := New("conv-1", "msg-1")
	require.NoError(t, s.Complete(NodeComplete))

	next := s.Next("msg-2")
	require.Equal(t, 2, next.Version)
	require.Equal(t, NodeStart, next.Node)
	require.False(t, next.IsComplete)
	require.Equal(t, "conv-1", next.ConversationID)
}

func TestResumeRequiresWaitingForFeedback(t *testing.T) {
	s := New("conv-1", "msg-1")
	_, err := s.Resume(NodeRoute)
	require.Error(t, err)
}

func TestResumeCarriesForwardStateAndSetsInterrupted(t *testing.T) {
	s := New("conv-1", "msg-1")
	require.NoError(t, s.Transition(NodeClassify))
	require.NoError(t, s.Transition(NodeWaitingForFeedback))
	s.RouteClarification = "which output format?"

	resumed, err := s.Resume(NodeRoute)
	require.NoError(t, err)
	require.True(t, resumed.Interrupted)
	require.Equal(t, NodeRoute, resumed.Node)
	require.Equal(t, s.Version+1, resumed.Version)
}

func TestResumeCarriesForwardPendingParams(t *testing.T) {
	s := New("conv-1", "msg-1")
	require.NoError(t, s.Transition(NodeExecute))
	require.NoError(t, s.Transition(NodeWaitingForFeedback))
	s.PendingParams = []string{"caption_text"}

	resumed, err := s.Resume(NodeExecute)
	require.NoError(t, err)
	require.Equal(t, []string{"caption_text"}, resumed.PendingParams)
}
