package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChunkerSplit_EmptyInput(t *testing.T) {
	c := NewChunker(100, 20)
	require.Nil(t, c.Split(""))
	require.Nil(t, c.Split("   \n\t  "))
}

func TestChunkerSplit_ShortInputSingleChunk(t *testing.T) {
	c := NewChunker(100, 20)
	chunks := c.Split("hello world")
	require.Equal(t, []string{"hello world"}, chunks)
}

func TestChunkerSplit_BoundedSize(t *testing.T) {
	c := NewChunker(50, 10)
	text := strings.Repeat("some words go here. ", 40)
	chunks := c.Split(text)
	require.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		require.LessOrEqual(t, len([]rune(chunk)), 50)
		require.NotEmpty(t, chunk)
	}
}

func TestChunkerSplit_PrefersSentenceBoundary(t *testing.T) {
	c := NewChunker(40, 5)
	text := "First sentence here. Second sentence follows after. Third one closes it out."
	chunks := c.Split(text)
	require.Greater(t, len(chunks), 1)
	require.True(t, strings.HasSuffix(chunks[0], "."), "chunk %q should end at a sentence", chunks[0])
}

func TestChunkerSplit_OverlapCarriesContext(t *testing.T) {
	c := NewChunker(30, 10)
	text := strings.Repeat("abcdefghij", 10)
	chunks := c.Split(text)
	require.Greater(t, len(chunks), 1)
	// With no natural boundaries the cut is hard; the next chunk must start
	// inside the previous one.
	tail := chunks[0][len(chunks[0])-10:]
	require.True(t, strings.HasPrefix(chunks[1], tail))
}

func TestChunkerSplit_NormalizesLineEndings(t *testing.T) {
	c := NewChunker(100, 20)
	chunks := c.Split("line one\r\nline two\r\n")
	require.Equal(t, []string{"line one\nline two"}, chunks)
}

func TestNewChunker_Defaults(t *testing.T) {
	c := NewChunker(0, -1)
	require.Equal(t, 1000, c.size)
	require.Equal(t, 200, c.overlap)
}
