package tools

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/pr0ta9/genesis/internal/pathtool"
)

func TestXLSXToTextRoundTripsCellValues(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "hello"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "world"))

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	out, err := xlsxToText(context.Background(), buf.Bytes(), nil)
	require.NoError(t, err)

	text := string(out)
	require.Contains(t, text, "hello")
	require.Contains(t, text, "world")
}

func TestTextToXLSXProducesReadableWorkbook(t *testing.T) {
	out, err := textToXLSX(context.Background(), []byte("line one\nline two"), nil)
	require.NoError(t, err)
	require.NotEmpty(t, out)
}

func TestRegisterAddsAllBuiltins(t *testing.T) {
	r := pathtool.NewToolRegistry()
	require.NoError(t, Register(r))
	require.NotEmpty(t, r.AllPathTools(), "expected built-in tools to be registered")
}
