package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMaskFiltersCategories(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, MaskError)
	l.Warnf("should not appear")
	require.Empty(t, buf.String())

	l.Errorf("boom %d", 1)
	require.Contains(t, buf.String(), "ERROR: boom 1")
}

func TestALogIncludesTradeAndOp(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, MaskError)
	l.ALog("trade1", "npv", errors.New("regression failed"))
	require.True(t, strings.Contains(buf.String(), "trade=trade1"))
	require.True(t, strings.Contains(buf.String(), "op=npv"))
}

func TestDiscardDropsEverything(t *testing.T) {
	Discard.Errorf("x")
	Discard.ALog("t", "op", errors.New("e"))
}

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	l.Errorf("never panics")
}
