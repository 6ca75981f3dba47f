package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatbridge/internal/translator"
)

// scriptedReader returns one fragment per Read call, then its final error.
type scriptedReader struct {
	fragments []string
	err       error
}

func (r *scriptedReader) Read(p []byte) (int, error) {
	if len(r.fragments) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	f := r.fragments[0]
	r.fragments = r.fragments[1:]
	return copy(p, f), nil
}

// parseEvents splits driver output back into individual SSE events.
func parseEvents(t *testing.T, out string) []string {
	t.Helper()
	var events []string
	for _, segment := range strings.Split(out, "\n\n") {
		if strings.TrimSpace(segment) == "" {
			continue
		}
		events = append(events, segment)
	}
	return events
}

func decodeEvent(t *testing.T, event string) translator.StreamChunk {
	t.Helper()
	var chunk translator.StreamChunk
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(event, "data: ")), &chunk))
	return chunk
}

func TestRunGracefulCompletion(t *testing.T) {
	body := &scriptedReader{fragments: []string{
		"data:{\"message\":\"hel\",\"done\":false,\"usedToken\":1}\n\ndata:{\"mess",
		"age\":\"lo\",\"done\":true,\"usedToken\":2}\n\n",
	}}

	var out bytes.Buffer
	drv := NewDriver("gpt-4o")
	drv.Run(body, &out, nil)

	events := parseEvents(t, out.String())
	require.Len(t, events, 3)

	first := decodeEvent(t, events[0])
	second := decodeEvent(t, events[1])
	assert.Equal(t, "hel", first.Choices[0].Delta.Content)
	assert.Equal(t, "lo", second.Choices[0].Delta.Content)
	require.NotNil(t, second.Choices[0].FinishReason)
	assert.Equal(t, "stop", *second.Choices[0].FinishReason)

	assert.Equal(t, "data: [DONE]", events[2], "exactly one terminator at true stream end")

	// Every event of one stream shares id and created.
	assert.Equal(t, drv.StreamID(), first.ID)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Created, second.Created)
	assert.Equal(t, "gpt-4o", first.Model)
}

func TestRunFlushesTrailingSegmentWithoutDelimiter(t *testing.T) {
	body := &scriptedReader{fragments: []string{
		"data:{\"message\":\"tail\",\"done\":true}",
	}}

	var out bytes.Buffer
	NewDriver("gpt-4o").Run(body, &out, nil)

	events := parseEvents(t, out.String())
	require.Len(t, events, 2)
	assert.Equal(t, "tail", decodeEvent(t, events[0]).Choices[0].Delta.Content)
	assert.Equal(t, "data: [DONE]", events[1])
}

func TestRunAppendsTerminatorAfterUpstreamDone(t *testing.T) {
	body := &scriptedReader{fragments: []string{
		"data:{\"message\":\"hi\",\"done\":true}\n\ndata:[DONE]\n\n",
	}}

	var out bytes.Buffer
	NewDriver("gpt-4o").Run(body, &out, nil)

	// The upstream terminator is translated through AND the driver appends
	// its own unconditional one.
	assert.Equal(t, 2, strings.Count(out.String(), "data: [DONE]"))
}

func TestRunMalformedEventDoesNotAbortStream(t *testing.T) {
	body := &scriptedReader{fragments: []string{
		"data:{broken json\n\ndata:{\"message\":\"still here\",\"done\":true}\n\n",
	}}

	var out bytes.Buffer
	NewDriver("gpt-4o").Run(body, &out, nil)

	events := parseEvents(t, out.String())
	require.Len(t, events, 3)
	assert.Contains(t, decodeEvent(t, events[0]).Choices[0].Delta.Content, "failed to parse upstream event")
	assert.Equal(t, "still here", decodeEvent(t, events[1]).Choices[0].Delta.Content)
	assert.Equal(t, "data: [DONE]", events[2])
}

func TestRunUpstreamReadFault(t *testing.T) {
	body := &scriptedReader{
		fragments: []string{"data:{\"message\":\"partial\"}\n\n"},
		err:       errors.New("connection reset"),
	}

	var out bytes.Buffer
	NewDriver("gpt-4o").Run(body, &out, nil)

	events := parseEvents(t, out.String())
	require.Len(t, events, 3)

	fault := decodeEvent(t, events[1])
	assert.Contains(t, fault.Choices[0].Delta.Content, "connection reset")
	require.NotNil(t, fault.Choices[0].FinishReason)
	assert.Equal(t, "error", *fault.Choices[0].FinishReason)

	assert.Equal(t, "data: [DONE]", events[2], "terminator still emitted after a fault")
}

type failingWriter struct {
	writes int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	w.writes++
	return 0, errors.New("broken pipe")
}

func TestRunStopsOnClientWriteFailure(t *testing.T) {
	body := &scriptedReader{fragments: []string{
		"data:{\"message\":\"a\"}\n\ndata:{\"message\":\"b\"}\n\n",
	}}

	w := &failingWriter{}
	NewDriver("gpt-4o").Run(body, w, nil)

	assert.Equal(t, 1, w.writes, "a broken client stops the pipeline")
}

func TestRunOrderingPreserved(t *testing.T) {
	var fragments []string
	for _, word := range []string{"one", "two", "three", "four", "five"} {
		fragments = append(fragments, "data:{\"message\":\""+word+"\"}\n\n")
	}
	body := &scriptedReader{fragments: fragments}

	var out bytes.Buffer
	NewDriver("gpt-4o").Run(body, &out, nil)

	events := parseEvents(t, out.String())
	require.Len(t, events, 6)
	for i, word := range []string{"one", "two", "three", "four", "five"} {
		assert.Equal(t, word, decodeEvent(t, events[i]).Choices[0].Delta.Content)
	}
}
