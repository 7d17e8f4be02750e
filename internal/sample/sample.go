// Package sample defines the immutable record emitted for every completed request.
package sample

import (
	"fmt"
	"time"
)

// ContentLength is the number of bytes in a fully drained response body.
type ContentLength uint64

// NewContentLength wraps a byte count.
func NewContentLength(n uint64) ContentLength {
	return ContentLength(n)
}

// Bytes returns the raw byte count.
func (c ContentLength) Bytes() uint64 {
	return uint64(c)
}

func (c ContentLength) String() string {
	return fmt.Sprintf("%dB", uint64(c))
}

// Sample is one observation: status code, elapsed wall-clock time and drained body length.
type Sample struct {
	status   uint16
	duration time.Duration
	length   ContentLength
}

// Record builds a Sample.
func Record(status uint16, duration time.Duration, length ContentLength) Sample {
	return Sample{status: status, duration: duration, length: length}
}

// Status returns the HTTP status code.
func (s Sample) Status() uint16 { return s.status }

// Duration covers connect, send, receive and body drain.
func (s Sample) Duration() time.Duration { return s.duration }

// Length returns the drained body length.
func (s Sample) Length() ContentLength { return s.length }

func (s Sample) String() string {
	return fmt.Sprintf("status=%d duration=%s length=%s", s.status, s.duration, s.length)
}
