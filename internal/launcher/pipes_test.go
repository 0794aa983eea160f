package launcher

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLineSplitter_CompleteLines(t *testing.T) {
	var s LineSplitter
	lines := s.Feed([]byte("hello\nworld\n"))
	require.Equal(t, []string{"hello", "world"}, lines)
	require.Equal(t, "", s.Flush())
}

func TestLineSplitter_PartialAcrossReads(t *testing.T) {
	var s LineSplitter
	lines := s.Feed([]byte("hel"))
	require.Empty(t, lines)
	lines = s.Feed([]byte("lo\nwor"))
	require.Equal(t, []string{"hello"}, lines)
	require.Equal(t, "wor", s.Flush())
}

func TestLineSplitter_TrimsTrailingCR(t *testing.T) {
	var s LineSplitter
	lines := s.Feed([]byte("hello\r\n"))
	require.Equal(t, []string{"hello"}, lines)
}

func TestLineSplitter_FlushEmptyAfterConsumed(t *testing.T) {
	var s LineSplitter
	s.Feed([]byte("a\n"))
	require.Equal(t, "", s.Flush())
}
