package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collect feeds the whole input as fragments split at the given points and
// returns every emitted event including the final flush.
func collect(t *testing.T, input string, fragmentSizes []int) []string {
	t.Helper()

	r := &Reframer{}
	var events []string
	rest := []byte(input)
	for _, size := range fragmentSizes {
		require.LessOrEqual(t, size, len(rest))
		events = append(events, r.Feed(rest[:size])...)
		rest = rest[size:]
	}
	events = append(events, r.Feed(rest)...)
	if tail, ok := r.Flush(); ok {
		events = append(events, tail)
	}
	return events
}

func TestFeedSplitsOnDelimiter(t *testing.T) {
	r := &Reframer{}
	events := r.Feed([]byte("data:{\"message\":\"a\"}\n\ndata:{\"message\":\"b\"}\n\n"))
	assert.Equal(t, []string{`data:{"message":"a"}`, `data:{"message":"b"}`}, events)
}

func TestFeedKeepsPartialRemainder(t *testing.T) {
	r := &Reframer{}

	events := r.Feed([]byte("data:{\"message\":\"a\"}\n\ndata:{\"mess"))
	assert.Equal(t, []string{`data:{"message":"a"}`}, events)

	events = r.Feed([]byte("age\":\"b\"}\n\n"))
	assert.Equal(t, []string{`data:{"message":"b"}`}, events)

	_, ok := r.Flush()
	assert.False(t, ok)
}

func TestReframingIsChunkBoundaryInvariant(t *testing.T) {
	input := "data:{\"message\":\"one\"}\n\ndata:{\"message\":\"two\"}\n\n\n\ndata:{\"message\":\"three\",\"done\":true}\n\ndata:[DONE]\n\n"

	want := collect(t, input, nil)
	require.Equal(t, []string{
		`data:{"message":"one"}`,
		`data:{"message":"two"}`,
		`data:{"message":"three","done":true}`,
		`data:[DONE]`,
	}, want)

	splits := [][]int{
		{1},
		{1, 1, 1},
		{5, 7, 3},
		{len(input) / 2},
		{len(input) - 1},
		{10, 10, 10, 10, 10},
	}
	for _, fragmentSizes := range splits {
		assert.Equal(t, want, collect(t, input, fragmentSizes), "split %v must not change reframing", fragmentSizes)
	}

	// Byte-at-a-time delivery.
	sizes := make([]int, len(input))
	for i := range sizes {
		sizes[i] = 1
	}
	assert.Equal(t, want, collect(t, input, sizes[:len(sizes)-1]))
}

func TestFlushEmitsTrailingSegmentOnce(t *testing.T) {
	r := &Reframer{}
	assert.Empty(t, r.Feed([]byte("data:{\"message\":\"tail\"}")))

	tail, ok := r.Flush()
	require.True(t, ok)
	assert.Equal(t, `data:{"message":"tail"}`, tail)

	_, ok = r.Flush()
	assert.False(t, ok, "flush must not emit twice")
}

func TestFlushDropsBlankRemainder(t *testing.T) {
	r := &Reframer{}
	r.Feed([]byte("data:{\"message\":\"a\"}\n\n \n"))

	_, ok := r.Flush()
	assert.False(t, ok)
}

func TestBlankSegmentsAreDropped(t *testing.T) {
	r := &Reframer{}
	events := r.Feed([]byte("\n\n  \n\ndata:{\"message\":\"a\"}\n\n\n\n"))
	assert.Equal(t, []string{`data:{"message":"a"}`}, events)
}
