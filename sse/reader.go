package sse

import (
	"errors"
	"io"
)

// DefaultReadSize is the chunk size requested from the underlying reader.
const DefaultReadSize = 4096

// FrameReader pulls frames from an io.Reader.
type FrameReader struct {
	reader io.Reader
	dec    *Decoder
	buf    []byte
	eof    bool
	// readErr is a non-EOF reader error, reported once buffered frames are drained.
	readErr error
}

// NewFrameReader creates a frame reader over r.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{
		reader: r,
		dec:    NewDecoder(),
		buf:    make([]byte, DefaultReadSize),
	}
}

// ReadFrame reads the next frame from the stream.
//
// Errors:
//   - io.EOF: stream ended cleanly on a frame boundary
//   - *FrameError with Kind=FrameErrorDecode: one bad frame (non-fatal, call again)
//   - *FrameError with Kind=FrameErrorPartial: stream ended inside a frame (fatal)
//   - *FrameError with Kind=FrameErrorTooLarge: line exceeds limit (fatal)
//   - any other error: returned from the underlying reader
func (r *FrameReader) ReadFrame() (*Frame, error) {
	for {
		frame, err := r.dec.Next()
		if err != nil || frame != nil {
			return frame, err
		}
		if r.readErr != nil {
			return nil, r.readErr
		}
		if r.eof {
			return nil, io.EOF
		}

		n, readErr := r.reader.Read(r.buf)
		if n > 0 {
			// Write errors are sticky; Next reports them after the
			// frames completed earlier in the same chunk.
			if _, err := r.dec.Write(r.buf[:n]); err != nil {
				continue
			}
		}
		if readErr != nil {
			if !errors.Is(readErr, io.EOF) {
				r.readErr = readErr
				continue
			}
			r.eof = true
			// A partial frame becomes the sticky error, reported by Next
			// after every frame completed before it.
			_ = r.dec.Close()
		}
	}
}
