package render

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dave-is-dave/Goshenite/internal/config"
	"github.com/dave-is-dave/Goshenite/internal/gpu"
	"github.com/dave-is-dave/Goshenite/internal/gpu/gputest"
	"github.com/dave-is-dave/Goshenite/internal/gui"
	"github.com/dave-is-dave/Goshenite/internal/logging"
)

type fakeWindow struct {
	width, height atomic.Int32
}

func newFakeWindow(w, h int) *fakeWindow {
	win := &fakeWindow{}
	win.resize(w, h)
	return win
}

func (w *fakeWindow) resize(width, height int) {
	w.width.Store(int32(width))
	w.height.Store(int32(height))
}

func (w *fakeWindow) Size() (int, int) {
	return int(w.width.Load()), int(w.height.Load())
}

func newTestManager(t *testing.T, backend *gputest.Backend, win *fakeWindow) *Manager {
	t.Helper()
	m, err := NewManager(backend, win, config.Default().Renderer, logging.Nop())
	require.NoError(t, err)
	return m
}

func renderN(t *testing.T, m *Manager, n int) int {
	t.Helper()
	rendered := 0
	for i := 0; i < n; i++ {
		ok, err := m.RenderFrame(FrameSnapshot{})
		require.NoError(t, err)
		if ok {
			rendered++
		}
	}
	return rendered
}

func TestNewManagerCreatesSwapchain(t *testing.T) {
	backend := gputest.New(800, 600)
	m := newTestManager(t, backend, newFakeWindow(800, 600))

	s := m.Stats()
	assert.Equal(t, uint64(1), s.Generation)
	assert.Equal(t, gpu.Extent2D{Width: 800, Height: 600}, s.Extent)
	assert.Equal(t, 2, s.ImageCount)
	assert.Equal(t, s.ImageCount, s.FramebufferCount)

	live := backend.Stats().LiveSwapchain
	require.NotNil(t, live)
	assert.Equal(t, gpu.FormatB8G8R8A8Srgb, live.Format.Format)
	assert.Equal(t, gpu.PresentModeMailbox, live.PresentMode)
}

func TestFramesInFlightNeverExceedBudget(t *testing.T) {
	backend := gputest.New(800, 600)
	m := newTestManager(t, backend, newFakeWindow(800, 600))

	assert.Equal(t, 50, renderN(t, m, 50))
	stats := backend.Stats()
	assert.Len(t, stats.Submissions, 50)
	assert.Equal(t, 50, stats.Presents)
	assert.LessOrEqual(t, stats.MaxInFlight, config.Default().Renderer.MaxFramesInFlight)
	assert.LessOrEqual(t, m.Stats().InFlight, config.Default().Renderer.MaxFramesInFlight)
}

func TestGenerationIncreasesByOnePerRecreation(t *testing.T) {
	backend := gputest.New(800, 600)
	m := newTestManager(t, backend, newFakeWindow(800, 600))
	renderN(t, m, 3)

	for k := 1; k <= 5; k++ {
		ok, err := m.RenderFrame(FrameSnapshot{Resized: true})
		require.NoError(t, err)
		assert.False(t, ok, "the recreating iteration is skipped")
		assert.Equal(t, uint64(1+k), m.Generation())
		assert.Zero(t, m.Stats().StaleInFlight)
		renderN(t, m, 2)
	}
	assert.Equal(t, 6, backend.Stats().SwapchainsCreated)
	assert.Equal(t, 5, backend.Stats().SwapchainsDestroyed)
}

func TestResizeRecreatesAtSurfaceExtent(t *testing.T) {
	backend := gputest.New(800, 600)
	win := newFakeWindow(800, 600)
	m := newTestManager(t, backend, win)
	renderN(t, m, 4)

	win.resize(1024, 300)
	backend.SetExtent(1024, 300)
	_, err := m.RenderFrame(FrameSnapshot{Resized: true})
	require.NoError(t, err)
	renderN(t, m, 2)

	s := m.Stats()
	assert.Equal(t, gpu.Extent2D{Width: 1024, Height: 300}, s.Extent)
	assert.Equal(t, s.ImageCount, s.FramebufferCount)
	subs := backend.Stats().Submissions
	assert.Equal(t, gpu.Extent2D{Width: 1024, Height: 300}, subs[len(subs)-1].Extent)
}

func TestUndefinedSurfaceExtentUsesClampedWindowSize(t *testing.T) {
	backend := gputest.New(gpu.UndefinedExtent, gpu.UndefinedExtent)
	backend.SetCapabilities(gpu.SurfaceCapabilities{
		MinImageCount:           2,
		CurrentExtent:           gpu.Extent2D{Width: gpu.UndefinedExtent, Height: gpu.UndefinedExtent},
		MinImageExtent:          gpu.Extent2D{Width: 1, Height: 1},
		MaxImageExtent:          gpu.Extent2D{Width: 1920, Height: 1080},
		SupportedTransforms:     gpu.SurfaceTransformIdentity,
		CurrentTransform:        gpu.SurfaceTransformIdentity,
		SupportedCompositeAlpha: gpu.CompositeAlphaPreMultiplied | gpu.CompositeAlphaOpaque,
	})
	m := newTestManager(t, backend, newFakeWindow(2500, 900))

	assert.Equal(t, gpu.Extent2D{Width: 1920, Height: 900}, m.Stats().Extent)
	assert.Equal(t, gpu.CompositeAlphaOpaque, backend.Stats().LiveSwapchain.CompositeAlpha)
}

func TestAcquireOutOfDateSkipsFrame(t *testing.T) {
	backend := gputest.New(800, 600)
	m := newTestManager(t, backend, newFakeWindow(800, 600))
	renderN(t, m, 2)
	before := backend.Stats()

	backend.QueueAcquire(gpu.StatusOutOfDate)
	ok, err := m.RenderFrame(FrameSnapshot{})
	require.NoError(t, err)
	assert.False(t, ok)

	after := backend.Stats()
	assert.Equal(t, len(before.Submissions), len(after.Submissions), "no submit")
	assert.Equal(t, before.Presents, after.Presents, "no present")
	assert.Equal(t, uint64(2), m.Generation())

	assert.Equal(t, 1, renderN(t, m, 1))
}

func TestAcquireSuboptimalRendersThenRecreates(t *testing.T) {
	backend := gputest.New(800, 600)
	m := newTestManager(t, backend, newFakeWindow(800, 600))

	backend.QueueAcquire(gpu.StatusSuboptimal)
	ok, err := m.RenderFrame(FrameSnapshot{})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, m.Stats().RecreatePending)
	assert.Equal(t, uint64(1), m.Generation())

	ok, err = m.RenderFrame(FrameSnapshot{})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, uint64(2), m.Generation())
}

func TestPresentSuboptimalRecreatesBeforeNextAcquire(t *testing.T) {
	backend := gputest.New(800, 600)
	m := newTestManager(t, backend, newFakeWindow(800, 600))

	backend.QueuePresent(gpu.StatusSuboptimal)
	ok, err := m.RenderFrame(FrameSnapshot{})
	require.NoError(t, err)
	assert.True(t, ok, "the frame still counts as submitted")

	renderN(t, m, 1)
	assert.Equal(t, uint64(2), m.Generation())
	assert.Equal(t, 2, backend.Stats().SwapchainsCreated)
}

func TestPresentOutOfDateIsNotAnError(t *testing.T) {
	backend := gputest.New(800, 600)
	m := newTestManager(t, backend, newFakeWindow(800, 600))

	backend.QueuePresent(gpu.StatusOutOfDate)
	ok, err := m.RenderFrame(FrameSnapshot{})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, m.Stats().RecreatePending)
}

func TestZeroExtentDefersRecreation(t *testing.T) {
	backend := gputest.New(800, 600)
	win := newFakeWindow(800, 600)
	m := newTestManager(t, backend, win)

	win.resize(0, 0)
	backend.SetExtent(0, 0)
	ok, err := m.RenderFrame(FrameSnapshot{Resized: true})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, renderN(t, m, 5))
	assert.True(t, m.Stats().RecreatePending)
	assert.Equal(t, uint64(1), m.Generation())

	win.resize(640, 480)
	backend.SetExtent(640, 480)
	renderN(t, m, 2)
	assert.Equal(t, uint64(2), m.Generation())
	assert.Equal(t, gpu.Extent2D{Width: 640, Height: 480}, m.Stats().Extent)
}

func TestMinimizedAtStartupCreatesSwapchainLater(t *testing.T) {
	backend := gputest.New(0, 0)
	win := newFakeWindow(0, 0)
	m := newTestManager(t, backend, win)
	assert.Zero(t, m.Generation())

	win.resize(300, 200)
	backend.SetExtent(300, 200)
	assert.Equal(t, 1, renderN(t, m, 2))
	assert.Equal(t, uint64(1), m.Generation())
}

func TestFenceTimeoutEscalatesToDeviceTimeout(t *testing.T) {
	backend := gputest.New(800, 600)
	m := newTestManager(t, backend, newFakeWindow(800, 600))
	cfg := config.Default().Renderer

	// fill every slot, then hang the device
	renderN(t, m, cfg.MaxFramesInFlight)
	backend.SetHung(true)

	var err error
	for i := 1; i < cfg.MaxConsecutiveFenceTimeouts; i++ {
		var ok bool
		ok, err = m.RenderFrame(FrameSnapshot{})
		require.NoError(t, err, "timeout %d is only a warning", i)
		assert.False(t, ok)
	}
	_, err = m.RenderFrame(FrameSnapshot{})

	var timeoutErr *DeviceTimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, cfg.FenceTimeout, timeoutErr.Timeout)
	assert.Equal(t, cfg.MaxConsecutiveFenceTimeouts, timeoutErr.Consecutive)
}

func TestFenceTimeoutCounterResetsAfterRecovery(t *testing.T) {
	backend := gputest.New(800, 600)
	m := newTestManager(t, backend, newFakeWindow(800, 600))
	renderN(t, m, 2)

	backend.SetHung(true)
	for i := 0; i < 2; i++ {
		_, err := m.RenderFrame(FrameSnapshot{})
		require.NoError(t, err)
	}
	backend.SetHung(false)
	assert.Equal(t, 3, renderN(t, m, 3))

	backend.SetHung(true)
	_, err := m.RenderFrame(FrameSnapshot{})
	assert.NoError(t, err)
}

func TestOwnerTimeoutStillPresentsAcquiredImage(t *testing.T) {
	backend := gputest.New(800, 600)
	caps, err := backend.SurfaceCapabilities()
	require.NoError(t, err)
	caps.MinImageCount, caps.MaxImageCount = 3, 3
	backend.SetCapabilities(caps)
	m := newTestManager(t, backend, newFakeWindow(800, 600))
	require.Equal(t, 3, m.Stats().ImageCount)

	// slot 0 now owns images 0 and 2
	assert.Equal(t, 3, renderN(t, m, 3))
	backend.SetFenceHung(0, true)

	// slot 1 acquires image 0, whose owner never finishes
	ok, err := m.RenderFrame(FrameSnapshot{Primitives: gui.Primitives{{Texture: 1}}})
	require.NoError(t, err)
	assert.False(t, ok)

	stats := backend.Stats()
	assert.Equal(t, 4, stats.Acquired)
	assert.Equal(t, stats.Acquired, stats.Presents)
	require.Len(t, stats.Submissions, 4)
	last := stats.Submissions[3]
	assert.Equal(t, uint32(0), last.ImageIndex)
	assert.Empty(t, last.Frame.Primitives)
	assert.Equal(t, uint64(3), m.Stats().FramesRendered)

	backend.SetFenceHung(0, false)
	assert.Equal(t, 4, renderN(t, m, 4))
	stats = backend.Stats()
	assert.Equal(t, stats.Acquired, stats.Presents)
}

func TestSurfaceLostDuringRecreationIsFatal(t *testing.T) {
	backend := gputest.New(800, 600)
	m := newTestManager(t, backend, newFakeWindow(800, 600))

	backend.FailSurfaceQueries(gpu.ErrSurfaceLost)
	_, err := m.RenderFrame(FrameSnapshot{Resized: true})
	assert.ErrorIs(t, err, ErrRecreateFailed)
	assert.ErrorIs(t, err, gpu.ErrSurfaceLost)
}

func TestSwapchainCreationFailureIsFatal(t *testing.T) {
	backend := gputest.New(800, 600)
	m := newTestManager(t, backend, newFakeWindow(800, 600))

	boom := errors.New("out of device memory")
	backend.FailSwapchainCreation(boom)
	_, err := m.RenderFrame(FrameSnapshot{Resized: true})
	assert.ErrorIs(t, err, ErrRecreateFailed)
	assert.ErrorIs(t, err, boom)
}

func TestTexturesAppliedBeforeRendering(t *testing.T) {
	backend := gputest.New(800, 600)
	m := newTestManager(t, backend, newFakeWindow(800, 600))

	o := gui.NewOverlay(1)
	o.Update(gui.Stats{})
	_, err := m.RenderFrame(FrameSnapshot{
		Textures:   []gui.TexturesDelta{o.TakeTexturesDelta()},
		Primitives: o.Primitives(),
	})
	require.NoError(t, err)

	stats := backend.Stats()
	assert.Equal(t, 1, stats.Textures)
	require.Len(t, stats.Submissions, 1)
	assert.Equal(t, o.Primitives(), stats.Submissions[0].Frame.Primitives)
}

func TestDestroyReleasesBackend(t *testing.T) {
	backend := gputest.New(800, 600)
	m := newTestManager(t, backend, newFakeWindow(800, 600))
	renderN(t, m, 3)

	m.Destroy()
	stats := backend.Stats()
	assert.Equal(t, 1, stats.Destroyed)
	assert.Nil(t, stats.LiveSwapchain)
}

func TestBackgroundColorIsOpaque(t *testing.T) {
	c := backgroundColor(mgl32.Vec3{0, -1, 0})
	assert.Equal(t, float32(1), c[3])
	assert.NotEqual(t, backgroundColor(mgl32.Vec3{0, 1, 0}), c)
}
