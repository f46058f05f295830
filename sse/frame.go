// Package sse decodes the sync server's text/event-stream response body.
//
// A frame is one `event:` line, zero or more `data:` lines and a blank-line
// terminator. Multiple data lines are joined with "\n" into one JSON payload.
// Input may arrive in chunks of any size; a chunk boundary may fall anywhere,
// including inside a field name or exactly on the terminator.
package sse

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MaxLineSize is the longest single line accepted (1 MiB), excluding the newline.
const MaxLineSize = 1024 * 1024

// DefaultEventType is used for frames that carry no `event:` line.
const DefaultEventType = "message"

// FrameErrorKind classifies frame decoding errors.
type FrameErrorKind int

const (
	// FrameErrorPartial indicates the stream ended inside a frame.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorTooLarge indicates a line exceeding MaxLineSize.
	FrameErrorTooLarge
	// FrameErrorDecode indicates a frame whose payload is not valid JSON.
	FrameErrorDecode
)

// FrameError represents a frame decoding error.
type FrameError struct {
	Kind FrameErrorKind
	// Event is the event type of the offending frame, when known.
	Event string
	Msg   string
	Err   error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsFatal returns true if decoding cannot continue after this error.
// Decode errors affect a single frame and are not fatal.
func (e *FrameError) IsFatal() bool {
	return e.Kind == FrameErrorPartial || e.Kind == FrameErrorTooLarge
}

// IsFatalFrameError returns true if the error is a fatal frame error.
func IsFatalFrameError(err error) bool {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.IsFatal()
	}
	return false
}

// IsDecodeError returns true if the error is a per-frame decode error.
func IsDecodeError(err error) bool {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.Kind == FrameErrorDecode
	}
	return false
}

// Frame is one complete event-stream frame.
type Frame struct {
	// Event is the `event:` value, or DefaultEventType when absent.
	Event string
	// Data is the joined `data:` payload. Empty when the frame had no data lines.
	Data string
}

// decoded is a queued frame or per-frame error, kept in arrival order.
type decoded struct {
	frame *Frame
	err   error
}

// Decoder is a push-based frame decoder.
// Bytes are fed with Write; complete frames are pulled with Next.
// A Decoder is single-use and not safe for concurrent use.
type Decoder struct {
	buf  []byte // unconsumed bytes; never contains a complete line after Write
	scan int    // bytes of buf already searched for a newline

	event    string
	hasEvent bool
	data     []string

	ready []decoded
	err   error // sticky fatal error
}

// NewDecoder creates a new frame decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Write feeds a chunk of the stream into the decoder.
// It returns a fatal *FrameError once a line exceeds MaxLineSize;
// after that every call fails with the same error.
func (d *Decoder) Write(p []byte) (int, error) {
	if d.err != nil {
		return 0, d.err
	}
	d.buf = append(d.buf, p...)

	for {
		i := bytes.IndexByte(d.buf[d.scan:], '\n')
		if i < 0 {
			d.scan = len(d.buf)
			if len(d.buf) > MaxLineSize {
				d.err = &FrameError{
					Kind:  FrameErrorTooLarge,
					Event: d.event,
					Msg:   fmt.Sprintf("line exceeds maximum size %d", MaxLineSize),
				}
				return len(p), d.err
			}
			break
		}

		end := d.scan + i
		if end > MaxLineSize {
			d.err = &FrameError{
				Kind:  FrameErrorTooLarge,
				Event: d.event,
				Msg:   fmt.Sprintf("line of %d bytes exceeds maximum size %d", end, MaxLineSize),
			}
			return len(p), d.err
		}

		line := d.buf[:end]
		if n := len(line); n > 0 && line[n-1] == '\r' {
			line = line[:n-1]
		}
		d.processLine(string(line))

		d.buf = d.buf[end+1:]
		d.scan = 0
	}

	// Release the backing array once everything has been consumed
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return len(p), nil
}

// Next returns the next complete frame.
// It returns (nil, nil) when no complete frame is buffered yet.
// A *FrameError with Kind=FrameErrorDecode reports one bad frame;
// the caller may keep calling Next for subsequent frames.
func (d *Decoder) Next() (*Frame, error) {
	if len(d.ready) > 0 {
		next := d.ready[0]
		d.ready[0] = decoded{}
		d.ready = d.ready[1:]
		return next.frame, next.err
	}
	if d.err != nil {
		return nil, d.err
	}
	return nil, nil
}

// Close signals end of input. Frames already completed remain available
// from Next. If the stream ended inside a frame, Close returns a
// *FrameError with Kind=FrameErrorPartial, and Next reports the same
// error once the completed frames are drained.
func (d *Decoder) Close() error {
	if d.err != nil {
		return d.err
	}
	if len(d.buf) > 0 || d.hasEvent || len(d.data) > 0 {
		d.err = &FrameError{
			Kind:  FrameErrorPartial,
			Event: d.event,
			Msg:   "stream ended inside a frame",
		}
		d.buf = nil
		d.reset()
		return d.err
	}
	return nil
}

// processLine applies one complete line to the pending frame.
func (d *Decoder) processLine(line string) {
	if line == "" {
		d.dispatch()
		return
	}
	if line[0] == ':' {
		// Comment line (keep-alive)
		return
	}

	field, value := line, ""
	if i := strings.IndexByte(line, ':'); i >= 0 {
		field, value = line[:i], line[i+1:]
		value = strings.TrimPrefix(value, " ")
	}

	switch field {
	case "event":
		d.event = value
		d.hasEvent = true
	case "data":
		d.data = append(d.data, value)
	default:
		// id:, retry: and unknown fields carry nothing this client uses
	}
}

// dispatch completes the pending frame, if any, and queues it.
func (d *Decoder) dispatch() {
	if !d.hasEvent && len(d.data) == 0 {
		return
	}

	frame := &Frame{Event: d.event, Data: strings.Join(d.data, "\n")}
	if !d.hasEvent || frame.Event == "" {
		frame.Event = DefaultEventType
	}
	d.reset()

	if frame.Data != "" && !json.Valid([]byte(frame.Data)) {
		d.ready = append(d.ready, decoded{err: &FrameError{
			Kind:  FrameErrorDecode,
			Event: frame.Event,
			Msg:   fmt.Sprintf("invalid JSON payload in %q frame", frame.Event),
		}})
		return
	}
	d.ready = append(d.ready, decoded{frame: frame})
}

func (d *Decoder) reset() {
	d.event = ""
	d.hasEvent = false
	d.data = nil
}
