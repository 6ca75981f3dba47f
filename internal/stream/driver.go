package stream

import (
	"errors"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"chatbridge/internal/metrics"
	"chatbridge/internal/translator"
)

const readBufferSize = 4096

// Driver owns the lifecycle of one outgoing streaming response: it pulls
// raw fragments from the upstream body, reframes them, translates each
// event, and writes the results out in arrival order. The pipeline is
// strictly sequential; fragment N's events are fully written before
// fragment N+1 is read.
type Driver struct {
	streamID string
	created  int64
	model    string
	log      *logrus.Entry
}

// NewDriver fixes the stream identifier and creation timestamp shared by
// every event of the response, before any upstream byte is read.
func NewDriver(model string) *Driver {
	streamID := translator.NewStreamID()
	return &Driver{
		streamID: streamID,
		created:  time.Now().Unix(),
		model:    model,
		log:      logrus.WithField("stream_id", streamID),
	}
}

// StreamID returns the identifier shared by all events of this response.
func (d *Driver) StreamID() string { return d.streamID }

// Run copies the upstream body to w until the upstream completes or fails.
// On graceful completion the trailing buffered segment is flushed and
// exactly one terminator is written, regardless of whether the upstream
// stream contained its own. On a read fault one diagnostic event is written
// followed by the terminator; write failures at that point are swallowed,
// the client connection is already broken.
func (d *Driver) Run(body io.Reader, w io.Writer, flush func()) {
	reframer := &Reframer{}
	buf := make([]byte, readBufferSize)

	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			for _, event := range reframer.Feed(buf[:n]) {
				if !d.writeEvent(w, flush, translator.TranslateChunk(event, d.streamID, d.created, d.model)) {
					return
				}
			}
		}
		if readErr == nil {
			continue
		}

		if errors.Is(readErr, io.EOF) {
			if tail, ok := reframer.Flush(); ok {
				if !d.writeEvent(w, flush, translator.TranslateChunk(tail, d.streamID, d.created, d.model)) {
					return
				}
			}
		} else {
			d.log.WithError(readErr).Warn("upstream stream read failed")
			d.writeEvent(w, flush, translator.FaultChunk(readErr, d.streamID, d.created, d.model))
		}

		d.writeEvent(w, flush, translator.Terminator)
		return
	}
}

// writeEvent writes one downstream event, skipping empty results. It
// returns false once the outgoing transport fails; the stream cannot be
// salvaged for a client that is gone.
func (d *Driver) writeEvent(w io.Writer, flush func(), event string) bool {
	if event == "" {
		return true
	}
	if _, err := io.WriteString(w, event); err != nil {
		d.log.WithError(err).Debug("client write failed, abandoning stream")
		return false
	}
	if flush != nil {
		flush()
	}
	metrics.StreamEventsTotal.Inc()
	return true
}
