package stream

import (
	"bytes"
	"strings"
)

// eventDelimiter separates logical events in the upstream byte stream.
var eventDelimiter = []byte("\n\n")

// Reframer re-segments arbitrarily chunked upstream bytes into complete
// logical events. The transport splits the stream wherever it likes: one
// event may span several fragments and one fragment may carry several
// events, so a single accumulating buffer is kept and only segments closed
// by the delimiter are released.
type Reframer struct {
	buf []byte
}

// Feed appends a raw fragment and returns every complete event it closed,
// in order. The trailing partial segment stays buffered. Blank or
// whitespace-only segments are dropped, never emitted.
func (r *Reframer) Feed(fragment []byte) []string {
	r.buf = append(r.buf, fragment...)

	var events []string
	for {
		i := bytes.Index(r.buf, eventDelimiter)
		if i < 0 {
			break
		}
		segment := string(r.buf[:i])
		r.buf = r.buf[i+len(eventDelimiter):]
		if strings.TrimSpace(segment) != "" {
			events = append(events, segment)
		}
	}
	return events
}

// Flush releases the buffered remainder as one final event at end of data.
// It returns false when the remainder is blank.
func (r *Reframer) Flush() (string, bool) {
	segment := string(r.buf)
	r.buf = nil
	if strings.TrimSpace(segment) == "" {
		return "", false
	}
	return segment, true
}
