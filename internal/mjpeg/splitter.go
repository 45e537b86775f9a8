// Package mjpeg recovers individual JPEG frames from an unframed MJPEG byte
// stream, such as ffmpeg's image2pipe output.
package mjpeg

import (
	"bytes"
	"errors"
	"io"
)

var (
	frameStart = []byte{0xFF, 0xD8} // JPEG SOI marker
	frameEnd   = []byte{0xFF, 0xD9} // JPEG EOI marker
)

// ErrFrameTooLarge reports that the accumulation buffer hit its cap without
// containing a complete frame. A decoder emitting garbage (or a hostile
// source) would otherwise grow the buffer without bound.
var ErrFrameTooLarge = errors.New("mjpeg: buffer limit reached without a complete frame")

const (
	// chunkSize is the fixed read size against the byte source.
	chunkSize = 4096

	// DefaultMaxBuffer caps the accumulation buffer. Generously above any
	// sane single JPEG at the resolutions we serve.
	DefaultMaxBuffer = 8 << 20
)

// Splitter extracts complete JPEG frames from an io.Reader.
//
// It reads fixed-size chunks, accumulates them, and slices out every
// start/end marker pair as an independent frame. A Splitter is stateful and
// bound to one byte source; it is not safe for concurrent use. Each viewer
// session owns exactly one Splitter.
type Splitter struct {
	r     io.Reader
	buf   []byte
	chunk []byte
	max   int
	err   error // sticky; reported once the buffer holds no complete frame
}

// NewSplitter returns a Splitter over r with the default buffer cap.
func NewSplitter(r io.Reader) *Splitter {
	return NewSplitterSize(r, DefaultMaxBuffer)
}

// NewSplitterSize returns a Splitter with an explicit buffer cap in bytes.
// A non-positive max falls back to DefaultMaxBuffer.
func NewSplitterSize(r io.Reader, max int) *Splitter {
	if max <= 0 {
		max = DefaultMaxBuffer
	}
	return &Splitter{
		r:     r,
		chunk: make([]byte, chunkSize),
		max:   max,
	}
}

// NextFrame returns the next complete JPEG frame, starting with 0xFFD8 and
// ending with 0xFFD9 inclusive. The returned slice is an independent copy;
// the caller may retain it.
//
// Frames are returned strictly in stream order. When several complete frames
// arrive in one read, successive calls drain them all before the source is
// read again. Returns io.EOF once the source is exhausted and no complete
// frame remains buffered; any other error ends the stream the same way read
// errors from the source do.
func (s *Splitter) NextFrame() ([]byte, error) {
	for {
		if frame := s.extract(); frame != nil {
			return frame, nil
		}

		if s.err != nil {
			return nil, s.err
		}
		if len(s.buf) >= s.max {
			return nil, ErrFrameTooLarge
		}

		n, err := s.r.Read(s.chunk)
		if n > 0 {
			s.buf = append(s.buf, s.chunk[:n]...)
		}
		if err != nil {
			// Defer reporting: bytes delivered alongside the error may still
			// complete one or more frames.
			s.err = err
		}
	}
}

// Buffered reports how many unconsumed bytes are currently retained.
func (s *Splitter) Buffered() int { return len(s.buf) }

// extract slices one complete frame out of the buffer, or returns nil when
// no start/end pair is present. Bytes preceding the start marker are dropped
// together with the consumed frame; a start marker with no end marker leaves
// the buffer untouched so the pair can complete on a later read.
func (s *Splitter) extract() []byte {
	start := bytes.Index(s.buf, frameStart)
	if start < 0 {
		return nil
	}
	// Search strictly past the start marker so a malformed 0xFFD8FFD9 overlap
	// can't produce a zero-length span.
	rel := bytes.Index(s.buf[start+2:], frameEnd)
	if rel < 0 {
		return nil
	}
	end := start + 2 + rel + 2 // one past EOI

	frame := make([]byte, end-start)
	copy(frame, s.buf[start:end])

	// Retain only the remainder; reuse the buffer's capacity.
	s.buf = s.buf[:copy(s.buf, s.buf[end:])]
	return frame
}
