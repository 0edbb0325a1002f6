package render

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dave-is-dave/Goshenite/internal/camera"
	"github.com/dave-is-dave/Goshenite/internal/channel"
	"github.com/dave-is-dave/Goshenite/internal/gpu"
	"github.com/dave-is-dave/Goshenite/internal/gpu/gputest"
	"github.com/dave-is-dave/Goshenite/internal/gui"
	"github.com/dave-is-dave/Goshenite/internal/logging"
	"github.com/dave-is-dave/Goshenite/internal/thread"
)

const joinTimeout = 2 * time.Second

func startTestThread(t *testing.T, backend *gputest.Backend, win *fakeWindow) (*thread.Handle, *Channels) {
	t.Helper()
	m := newTestManager(t, backend, win)
	return Start(m, time.Millisecond, logging.Nop())
}

func waitForFrames(t *testing.T, ch *Channels, n uint64) {
	t.Helper()
	require.Eventually(t, func() bool {
		stamp, err := ch.LatestStamp()
		return err == nil && stamp.Frame >= n
	}, joinTimeout, time.Millisecond)
}

func TestRenderThreadIdlesUntilToldToRender(t *testing.T) {
	backend := gputest.New(800, 600)
	h, ch := startTestThread(t, backend, newFakeWindow(800, 600))

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, backend.Stats().Submissions)

	require.NoError(t, ch.SetCommand(CommandRenderFrame))
	waitForFrames(t, ch, 3)

	require.NoError(t, ch.SetCommand(CommandQuit))
	require.NoError(t, h.JoinTimeout(joinTimeout))
	ch.Close()
	assert.Equal(t, 1, backend.Stats().Destroyed)
}

func TestRenderThreadQuitIsIdempotent(t *testing.T) {
	backend := gputest.New(800, 600)
	h, ch := startTestThread(t, backend, newFakeWindow(800, 600))

	require.NoError(t, ch.SetCommand(CommandRenderFrame))
	for i := 0; i < 3; i++ {
		_ = ch.SetCommand(CommandQuit)
	}
	require.NoError(t, h.JoinTimeout(joinTimeout))
	ch.Close()

	assert.Equal(t, 1, backend.Stats().Destroyed, "teardown runs exactly once")
	assert.ErrorIs(t, ch.SetCommand(CommandQuit), channel.ErrClosed)
}

func TestRenderThreadForwardsSnapshot(t *testing.T) {
	backend := gputest.New(800, 600)
	win := newFakeWindow(800, 600)
	h, ch := startTestThread(t, backend, win)

	cam, err := camera.New(800, 600)
	require.NoError(t, err)
	o := gui.NewOverlay(1)
	o.Update(gui.Stats{})

	require.NoError(t, ch.UpdateCamera(cam.Snapshot()))
	require.NoError(t, ch.SetScaleFactor(2))
	require.NoError(t, ch.UpdateTextures(o.TakeTexturesDelta()))
	require.NoError(t, ch.SetPrimitives(o.Primitives()))
	require.NoError(t, ch.SetCommand(CommandRenderFrame))
	waitForFrames(t, ch, 1)

	win.resize(400, 300)
	backend.SetExtent(400, 300)
	require.NoError(t, ch.NotifyResized())
	require.Eventually(t, func() bool {
		stamp, err := ch.LatestStamp()
		return err == nil && stamp.Generation == 2
	}, joinTimeout, time.Millisecond)

	require.NoError(t, ch.SetCommand(CommandQuit))
	require.NoError(t, h.JoinTimeout(joinTimeout))
	ch.Close()

	stats := backend.Stats()
	assert.Equal(t, 1, stats.Textures)
	last := stats.Submissions[len(stats.Submissions)-1]
	assert.Equal(t, gpu.Extent2D{Width: 400, Height: 300}, last.Extent)
	assert.Equal(t, float32(2), last.Frame.ScaleFactor)
	assert.Equal(t, o.Primitives(), last.Frame.Primitives)
	assert.Equal(t, cam.Snapshot().View, last.Frame.Camera.View)
}

func TestRenderThreadReportsEngineDisconnect(t *testing.T) {
	backend := gputest.New(800, 600)
	h, ch := startTestThread(t, backend, newFakeWindow(800, 600))

	ch.Close()
	assert.ErrorIs(t, h.JoinTimeout(joinTimeout), ErrEngineDisconnected)
	assert.Equal(t, 1, backend.Stats().Destroyed)
}

func TestRenderThreadReturnsFatalRenderError(t *testing.T) {
	backend := gputest.New(800, 600)
	h, ch := startTestThread(t, backend, newFakeWindow(800, 600))

	require.NoError(t, ch.SetCommand(CommandRenderFrame))
	waitForFrames(t, ch, 2)
	backend.SetHung(true)

	var timeoutErr *DeviceTimeoutError
	assert.ErrorAs(t, h.JoinTimeout(joinTimeout), &timeoutErr)
	assert.ErrorIs(t, ch.SetCommand(CommandRenderFrame), channel.ErrClosed)
	ch.Close()
}
