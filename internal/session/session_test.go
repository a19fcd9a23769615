package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pr0ta9/genesis/internal/conversation"
)

func TestCreateThenGetRoundTrips(t *testing.T) {
	svc := NewMemoryService()
	created, err := svc.Create(context.Background(), "conv-1")
	require.NoError(t, err)
	require.Equal(t, "conv-1", created.ConversationID)

	got, err := svc.Get(context.Background(), "conv-1")
	require.NoError(t, err)
	require.Same(t, created, got)
}

func TestCreateGeneratesIDWhenEmpty(t *testing.T) {
	svc := NewMemoryService()
	sess, err := svc.Create(context.Background(), "")
	require.NoError(t, err)
	require.NotEmpty(t, sess.ConversationID)
}

func TestCreateRejectsDuplicateConversationID(t *testing.T) {
	svc := NewMemoryService()
	_, err := svc.Create(context.Background(), "conv-1")
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), "conv-1")
	require.Error(t, err)
}

func TestAppendStateTracksHistoryAndCurrent(t *testing.T) {
	svc := NewMemoryService()
	state1 := conversation.New("conv-1", "msg-1")
	state2 := conversation.New("conv-1", "msg-2")

	require.NoError(t, svc.AppendState(context.Background(), "conv-1", state1))
	require.NoError(t, svc.AppendState(context.Background(), "conv-1", state2))

	sess, err := svc.Get(context.Background(), "conv-1")
	require.NoError(t, err)
	require.Same(t, state2, sess.Current)
	require.Len(t, sess.History, 2)
}

func TestGetUnknownConversationReturnsNotFound(t *testing.T) {
	svc := NewMemoryService()
	_, err := svc.Get(context.Background(), "missing")
	var notFound *ErrNotFound
	require.ErrorAs(t, err, &notFound)
}

func TestDeleteRemovesSession(t *testing.T) {
	svc := NewMemoryService()
	_, err := svc.Create(context.Background(), "conv-1")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), "conv-1"))

	_, err = svc.Get(context.Background(), "conv-1")
	require.Error(t, err)
}

func TestListReturnsAllSessions(t *testing.T) {
	svc := NewMemoryService()
	_, err := svc.Create(context.Background(), "conv-1")
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), "conv-2")
	require.NoError(t, err)

	all, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
}
