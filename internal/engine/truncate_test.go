package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTruncate_UnderLimitUntouched(t *testing.T) {
	require.Equal(t, "short answer.", truncate("short answer.", 100))
}

func TestTruncate_ZeroLimitDisables(t *testing.T) {
	long := strings.Repeat("x", 500)
	require.Equal(t, long, truncate(long, 0))
}

func TestTruncate_CutsAtSentence(t *testing.T) {
	text := "First sentence. Second sentence that is quite a bit longer and will not fit."
	got := truncate(text, 40)
	require.Equal(t, "First sentence.", got)
}

func TestTruncate_CutsAtWordWhenNoSentenceFits(t *testing.T) {
	text := "no punctuation here just a very long run of words going on and on"
	got := truncate(text, 30)
	require.LessOrEqual(t, len([]rune(got)), 30)
	require.False(t, strings.HasSuffix(got, " "))
	// Must not cut mid-word.
	require.True(t, strings.HasSuffix(text[:len(got)+1], got+" "))
}

func TestTruncate_HardCutWithoutAnyBreak(t *testing.T) {
	text := strings.Repeat("a", 100)
	got := truncate(text, 10)
	require.Equal(t, strings.Repeat("a", 10), got)
}

func TestTruncate_CJKSentenceEnders(t *testing.T) {
	text := "第一句话。第二句话会更长一些所以放不下了"
	got := truncate(text, 8)
	require.Equal(t, "第一句话。", got)
}
