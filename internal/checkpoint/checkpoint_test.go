package checkpoint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pr0ta9/genesis/internal/conversation"
)

func TestManagerSaveThenLoadRoundTrips(t *testing.T) {
	mgr := NewManager(nil, NewMemoryStorage())
	state := conversation.New("conv-1", "msg-1")
	require.NoError(t, state.Transition(conversation.NodeClassify))

	require.NoError(t, mgr.SaveCheckpoint(context.Background(), state))

	loaded, err := mgr.LoadCheckpoint(context.Background(), "conv-1", "msg-1")
	require.NoError(t, err)
	require.Equal(t, conversation.NodeClassify, loaded.Node)
}

func TestManagerDisabledSkipsSave(t *testing.T) {
	cfg := &Config{Enabled: false}
	mgr := NewManager(cfg, NewMemoryStorage())
	state := conversation.New("conv-1", "msg-1")

	require.NoError(t, mgr.SaveCheckpoint(context.Background(), state))

	_, err := mgr.LoadCheckpoint(context.Background(), "conv-1", "msg-1")
	require.Error(t, err)
}

func TestClearCheckpointRemovesIt(t *testing.T) {
	mgr := NewManager(nil, NewMemoryStorage())
	state := conversation.New("conv-1", "msg-1")
	require.NoError(t, mgr.SaveCheckpoint(context.Background(), state))

	require.NoError(t, mgr.ClearCheckpoint(context.Background(), "conv-1", "msg-1"))

	_, err := mgr.LoadCheckpoint(context.Background(), "conv-1", "msg-1")
	require.Error(t, err)
}

func TestHooksOnCompleteClearsCheckpoint(t *testing.T) {
	mgr := NewManager(nil, NewMemoryStorage())
	hooks := NewHooks(mgr)
	state := conversation.New("conv-1", "msg-1")
	require.NoError(t, mgr.SaveCheckpoint(context.Background(), state))

	require.NoError(t, state.Complete(conversation.NodeComplete))
	hooks.OnComplete(context.Background(), state)

	_, err := mgr.LoadCheckpoint(context.Background(), "conv-1", "msg-1")
	require.Error(t, err)
}

func TestNilHooksAreNoOps(t *testing.T) {
	var hooks *Hooks
	state := conversation.New("conv-1", "msg-1")
	require.NotPanics(t, func() {
		hooks.AfterTransition(context.Background(), state)
		hooks.OnError(context.Background(), state)
		hooks.OnComplete(context.Background(), state)
	})
}
