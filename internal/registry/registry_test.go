package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegisterAndGet(t *testing.T) {
	r := NewBaseRegistry[int]()
	require.NoError(t, r.Register("a", 1))

	got, ok := r.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, got)
}

func TestRegisterDuplicateRejected(t *testing.T) {
	r := NewBaseRegistry[int]()
	require.NoError(t, r.Register("a", 1))
	require.Error(t, r.Register("a", 2))
}

func TestRegisterEmptyNameRejected(t *testing.T) {
	r := NewBaseRegistry[int]()
	require.Error(t, r.Register("", 1))
}

func TestListIsSortedByName(t *testing.T) {
	r := NewBaseRegistry[string]()
	require.NoError(t, r.Register("zeta", "z"))
	require.NoError(t, r.Register("alpha", "a"))
	require.NoError(t, r.Register("mid", "m"))

	require.Equal(t, []string{"a", "m", "z"}, r.List())
}

func TestRemoveAndCount(t *testing.T) {
	r := NewBaseRegistry[int]()
	require.NoError(t, r.Register("a", 1))
	require.NoError(t, r.Register("b", 2))
	require.Equal(t, 2, r.Count())

	require.NoError(t, r.Remove("a"))
	require.Equal(t, 1, r.Count())

	require.Error(t, r.Remove("a"))
}

func TestClear(t *testing.T) {
	r := NewBaseRegistry[int]()
	require.NoError(t, r.Register("a", 1))
	r.Clear()
	require.Equal(t, 0, r.Count())
}
