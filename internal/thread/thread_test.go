package thread

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dave-is-dave/Goshenite/internal/logging"
)

func TestJoinCleanExit(t *testing.T) {
	h := Spawn("worker", func() error { return nil })

	require.NoError(t, h.Join())
	assert.True(t, h.IsFinished())
	assert.Equal(t, StateJoined, h.State())
}

func TestJoinReturnsThreadError(t *testing.T) {
	boom := errors.New("boom")
	h := Spawn("worker", func() error { return boom })

	assert.ErrorIs(t, h.JoinTimeout(time.Second), boom)
}

func TestJoinCapturesPanic(t *testing.T) {
	h := Spawn("worker", func() error { panic("kaboom") }, WithLockedOSThread())

	err := h.Join()
	var panicErr *PanicError
	require.ErrorAs(t, err, &panicErr)
	assert.Equal(t, "kaboom", panicErr.Value)
	assert.NotEmpty(t, panicErr.Stack)
}

func TestJoinTimeoutOnHangingThread(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	h := Spawn("stuck", func() error {
		<-release
		return nil
	})

	const timeout = 100 * time.Millisecond
	start := time.Now()
	err := h.JoinTimeout(timeout)
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, ErrJoinTimeout)
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+500*time.Millisecond)
	assert.Equal(t, StateTimedOut, h.State())
}

func TestHandleConsumedOnce(t *testing.T) {
	h := Spawn("worker", func() error { return nil })

	require.NoError(t, h.JoinTimeout(time.Second))
	assert.ErrorIs(t, h.Join(), ErrAlreadyJoined)
	assert.ErrorIs(t, h.JoinTimeout(time.Second), ErrAlreadyJoined)
}

func TestIsFinishedBeforeCompletion(t *testing.T) {
	release := make(chan struct{})
	h := Spawn("worker", func() error {
		<-release
		return nil
	})

	assert.False(t, h.IsFinished())
	close(release)
	<-h.Done()
	assert.True(t, h.IsFinished())
	assert.NoError(t, h.Join())
}

func TestJoinAndReportPassesResultThrough(t *testing.T) {
	boom := errors.New("render failed")
	h := Spawn("render", func() error { return boom })

	err := JoinAndReport(logging.Nop(), h, time.Second)
	assert.ErrorIs(t, err, boom)
}

func TestJoinAndReportLogsHang(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	h := Spawn("render", func() error {
		<-release
		return nil
	})

	var buf bytes.Buffer
	err := JoinAndReport(logging.New(&buf, slog.LevelDebug), h, 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrJoinTimeout)
	assert.Contains(t, buf.String(), "thread hanging longer than timeout")
	assert.Contains(t, buf.String(), "thread=render")
}

func TestJoinAndReportLogsPanic(t *testing.T) {
	h := Spawn("render", func() error { panic("kaboom") })

	var buf bytes.Buffer
	err := JoinAndReport(logging.New(&buf, slog.LevelDebug), h, time.Second)
	var panicErr *PanicError
	assert.ErrorAs(t, err, &panicErr)
	assert.Contains(t, buf.String(), "thread panicked")
	assert.Contains(t, buf.String(), "panic=kaboom")
}
