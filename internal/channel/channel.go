// Package channel provides the two cross-thread primitives used between the
// window, engine and render threads: a single-slot value channel that always
// hands out the freshest value, and an unbounded FIFO queue.
//
// Both are safe for one producer and one consumer running on different
// goroutines. Closing either endpoint is observed by the other as ErrClosed.
package channel

import "errors"

// ErrClosed is returned when the peer endpoint has been closed.
var ErrClosed = errors.New("channel: peer endpoint closed")
