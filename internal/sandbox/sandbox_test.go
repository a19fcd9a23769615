package sandbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pr0ta9/genesis/internal/pathtool"
)

func TestHandlerRPCServerInvokeDelegatesToImpl(t *testing.T) {
	server := &HandlerRPCServer{
		Impl: func(ctx context.Context, input []byte, args map[string]any) ([]byte, error) {
			return append([]byte("echo:"), input...), nil
		},
	}

	var resp []byte
	err := server.Invoke(Invoke{Input: []byte("hi"), Args: map[string]any{}}, &resp)
	require.NoError(t, err)
	require.Equal(t, "echo:hi", string(resp))
}

func TestHandlerRPCServerInvokePropagatesError(t *testing.T) {
	server := &HandlerRPCServer{
		Impl: func(ctx context.Context, input []byte, args map[string]any) ([]byte, error) {
			return nil, errBoom
		},
	}

	var resp []byte
	err := server.Invoke(Invoke{}, &resp)
	require.ErrorIs(t, err, errBoom)
}

func TestLoaderLoadFailsForMissingBinary(t *testing.T) {
	loader := NewLoader()
	_, err := loader.Load("/nonexistent/genesis-tool-plugin-binary")
	require.Error(t, err)
}

func TestWrapPropagatesLoaderFailureWithoutMutatingOriginal(t *testing.T) {
	original := &pathtool.PathTool{ToolName: "ocr"}
	loader := NewLoader()

	wrapped, closeFn, err := Wrap(original, loader, "/nonexistent/genesis-tool-plugin-binary")
	require.Error(t, err)
	require.Nil(t, wrapped)
	require.Nil(t, closeFn)
	require.Nil(t, original.HandlerFunc)
}

var errBoom = plainError("boom")

type plainError string

func (e plainError) Error() string { return string(e) }
