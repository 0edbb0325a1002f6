// Package thread runs named goroutines that can be joined with a deadline.
package thread

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync/atomic"
	"time"
)

var (
	ErrJoinTimeout   = errors.New("thread: join timed out")
	ErrAlreadyJoined = errors.New("thread: handle already joined")
)

// PanicError carries a panic recovered on a managed thread.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("thread panicked: %v", e.Value)
}

type State int32

const (
	StateSpawned State = iota
	StateRunning
	StateFinished
	StateJoined
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateSpawned:
		return "spawned"
	case StateRunning:
		return "running"
	case StateFinished:
		return "finished"
	case StateJoined:
		return "joined"
	case StateTimedOut:
		return "timed out"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

type options struct {
	lockOSThread bool
}

type Option func(*options)

// WithLockedOSThread pins the goroutine to its OS thread for its lifetime.
func WithLockedOSThread() Option {
	return func(o *options) { o.lockOSThread = true }
}

// Handle refers to a spawned thread. Its result can be consumed exactly once.
type Handle struct {
	name     string
	done     chan struct{}
	state    atomic.Int32
	consumed atomic.Bool
	err      error
}

// Spawn starts fn on a new goroutine. A panic inside fn is recovered and
// reported by Join as a *PanicError.
func Spawn(name string, fn func() error, opts ...Option) *Handle {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	h := &Handle{
		name: name,
		done: make(chan struct{}),
	}
	go h.run(fn, o)
	return h
}

func (h *Handle) run(fn func() error, o options) {
	if o.lockOSThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}
	defer close(h.done)
	defer func() {
		if r := recover(); r != nil {
			h.err = &PanicError{Value: r, Stack: debug.Stack()}
		}
		h.state.CompareAndSwap(int32(StateRunning), int32(StateFinished))
	}()

	h.state.Store(int32(StateRunning))
	h.err = fn()
}

func (h *Handle) Name() string { return h.name }

func (h *Handle) State() State { return State(h.state.Load()) }

// Done is closed when the thread function has returned.
func (h *Handle) Done() <-chan struct{} { return h.done }

// IsFinished reports whether the thread function has returned.
func (h *Handle) IsFinished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Join blocks until the thread finishes and returns its result.
func (h *Handle) Join() error {
	if !h.consumed.CompareAndSwap(false, true) {
		return ErrAlreadyJoined
	}
	<-h.done
	h.state.Store(int32(StateJoined))
	return h.err
}

// JoinTimeout waits at most timeout for the thread to finish. On timeout the
// thread is abandoned and ErrJoinTimeout is returned.
func (h *Handle) JoinTimeout(timeout time.Duration) error {
	if !h.consumed.CompareAndSwap(false, true) {
		return ErrAlreadyJoined
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-h.done:
		h.state.Store(int32(StateJoined))
		return h.err
	case <-timer.C:
		h.state.Store(int32(StateTimedOut))
		return fmt.Errorf("%s thread: %w after %v", h.name, ErrJoinTimeout, timeout)
	}
}

// JoinAndReport joins h within timeout and logs how the thread ended. The
// joined result is returned unchanged.
func JoinAndReport(logger *slog.Logger, h *Handle, timeout time.Duration) error {
	err := h.JoinTimeout(timeout)

	var panicErr *PanicError
	switch {
	case err == nil:
		logger.Info("thread shut down cleanly", "thread", h.name)
	case errors.Is(err, ErrJoinTimeout):
		logger.Error("thread hanging longer than timeout, abandoning it",
			"thread", h.name, "timeout", timeout)
	case errors.As(err, &panicErr):
		logger.Error("thread panicked",
			"thread", h.name, "panic", panicErr.Value, "stack", string(panicErr.Stack))
	default:
		logger.Error("thread returned an error", "thread", h.name, "err", err)
	}
	return err
}
