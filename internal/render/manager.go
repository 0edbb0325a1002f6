// Package render owns the swapchain lifecycle and runs the render thread.
package render

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/dave-is-dave/Goshenite/internal/camera"
	"github.com/dave-is-dave/Goshenite/internal/config"
	"github.com/dave-is-dave/Goshenite/internal/gpu"
	"github.com/dave-is-dave/Goshenite/internal/gui"
	"github.com/dave-is-dave/Goshenite/internal/logging"
)

// WindowSize reports the window's framebuffer size in physical pixels.
type WindowSize interface {
	Size() (width, height int)
}

// FrameSnapshot is the engine state consumed by one render iteration.
type FrameSnapshot struct {
	Camera      *camera.Snapshot
	Resized     bool
	ScaleFactor float32
	Textures    []gui.TexturesDelta
	Primitives  gui.Primitives
}

type frameSlot struct {
	sync       gpu.FrameSync
	generation uint64
	inFlight   bool
}

// Stats describes the manager's swapchain and frame bookkeeping.
type Stats struct {
	Generation       uint64
	Extent           gpu.Extent2D
	ImageCount       int
	FramebufferCount int
	RecreatePending  bool
	InFlight         int
	// StaleInFlight counts in-flight frames recorded against an older
	// swapchain generation. It is always 0.
	StaleInFlight  int
	FramesRendered uint64
}

// Manager drives acquire, submit and present for one window surface.
type Manager struct {
	backend gpu.Backend
	window  WindowSize
	cfg     config.Renderer
	log     *slog.Logger

	swapchain       gpu.Swapchain
	props           gpu.SwapchainProperties
	generation      uint64
	recreatePending bool

	frames []frameSlot
	// current is the slot used by the next frame
	current int
	// imageOwners maps a swapchain image to the slot that last rendered it, or -1
	imageOwners         []int
	consecutiveTimeouts int
	framesRendered      uint64

	camera      camera.Snapshot
	scaleFactor float32
	primitives  gui.Primitives
}

// NewManager creates the per-frame synchronization and the first swapchain.
// If the window has no area yet, swapchain creation waits for the first
// frame with a usable extent.
func NewManager(backend gpu.Backend, window WindowSize, cfg config.Renderer, logger *slog.Logger) (*Manager, error) {
	m := &Manager{
		backend:     backend,
		window:      window,
		cfg:         cfg,
		log:         logging.OrNop(logger),
		scaleFactor: 1,
	}

	for i := 0; i < cfg.MaxFramesInFlight; i++ {
		sync, err := backend.CreateFrameSync()
		if err != nil {
			m.destroyFrames()
			return nil, fmt.Errorf("create frame sync %d: %w", i, err)
		}
		m.frames = append(m.frames, frameSlot{sync: sync})
	}

	if _, err := m.recreateSwapchain(); err != nil {
		m.destroyFrames()
		return nil, err
	}
	return m, nil
}

// RequestRecreate makes the next frame rebuild the swapchain.
func (m *Manager) RequestRecreate() { m.recreatePending = true }

func (m *Manager) Generation() uint64 { return m.generation }

func (m *Manager) Stats() Stats {
	s := Stats{
		Generation:      m.generation,
		Extent:          m.props.Extent,
		RecreatePending: m.recreatePending,
		FramesRendered:  m.framesRendered,
	}
	if m.swapchain != nil {
		s.ImageCount = m.swapchain.ImageCount()
		s.FramebufferCount = m.swapchain.FramebufferCount()
	}
	for _, f := range m.frames {
		if !f.inFlight {
			continue
		}
		s.InFlight++
		if f.generation != m.generation {
			s.StaleInFlight++
		}
	}
	return s
}

// RenderFrame runs one iteration of the frame loop. It reports whether a
// frame was submitted; skipped frames are not errors. Any returned error is
// fatal for the renderer.
func (m *Manager) RenderFrame(snap FrameSnapshot) (bool, error) {
	m.applySnapshot(snap)
	for _, delta := range snap.Textures {
		if err := m.backend.UpdateTextures(delta); err != nil {
			return false, fmt.Errorf("update gui textures: %w", err)
		}
	}

	if err := m.cleanupFinishedFrames(); err != nil {
		return false, err
	}

	if m.recreatePending || m.swapchain == nil {
		// the frame is skipped either way, the next iteration renders with
		// the new swapchain
		_, err := m.recreateSwapchain()
		return false, err
	}

	slot := &m.frames[m.current]
	if ok, err := m.waitSlot(slot); !ok || err != nil {
		return false, err
	}

	imageIndex, status, err := m.backend.AcquireNextImage(m.swapchain, slot.sync)
	if err != nil {
		return false, fmt.Errorf("acquire swapchain image: %w", err)
	}
	switch status {
	case gpu.StatusOutOfDate:
		m.log.Debug("swapchain out of date on acquire", "generation", m.generation)
		m.recreatePending = true
		_, err := m.recreateSwapchain()
		return false, err
	case gpu.StatusSuboptimal:
		m.recreatePending = true
	}

	frame := gpu.Frame{
		ImageIndex:  imageIndex,
		Camera:      m.camera,
		ClearColor:  backgroundColor(m.camera.Direction),
		ScaleFactor: m.scaleFactor,
		Primitives:  m.primitives,
	}
	rendered := true
	if int(imageIndex) < len(m.imageOwners) {
		if owner := m.imageOwners[imageIndex]; owner >= 0 && owner != m.current {
			ok, err := m.waitSlot(&m.frames[owner])
			if err != nil {
				return false, err
			}
			if !ok {
				// The image is already acquired and its semaphore signaled, so
				// it still has to go through submit and present. Only the clear
				// is recorded.
				frame.Primitives = nil
				rendered = false
			}
		}
		m.imageOwners[imageIndex] = m.current
	}

	if err := m.submitAndPresent(slot, frame); err != nil {
		return false, err
	}
	m.current = (m.current + 1) % len(m.frames)
	if rendered {
		m.framesRendered++
	}
	return rendered, nil
}

// submitAndPresent hands an acquired image back to the presentation engine.
func (m *Manager) submitAndPresent(slot *frameSlot, frame gpu.Frame) error {
	if err := slot.sync.Reset(); err != nil {
		return fmt.Errorf("reset frame fence: %w", err)
	}
	if err := m.backend.Submit(m.swapchain, slot.sync, frame); err != nil {
		return fmt.Errorf("submit frame: %w", err)
	}
	slot.inFlight = true
	slot.generation = m.generation

	status, err := m.backend.Present(m.swapchain, slot.sync, frame.ImageIndex)
	if err != nil {
		return fmt.Errorf("present frame: %w", err)
	}
	if status != gpu.StatusSuccess {
		m.log.Debug("swapchain needs recreation after present", "status", status, "generation", m.generation)
		m.recreatePending = true
	}
	return nil
}

func (m *Manager) applySnapshot(snap FrameSnapshot) {
	if snap.Resized {
		m.recreatePending = true
	}
	if snap.Camera != nil {
		m.camera = *snap.Camera
	}
	if snap.ScaleFactor > 0 {
		m.scaleFactor = snap.ScaleFactor
	}
	m.primitives = snap.Primitives
}

// cleanupFinishedFrames releases slots whose GPU work has completed without
// blocking.
func (m *Manager) cleanupFinishedFrames() error {
	for i := range m.frames {
		f := &m.frames[i]
		if !f.inFlight {
			continue
		}
		done, err := f.sync.IsSignaled()
		if err != nil {
			return fmt.Errorf("query frame fence: %w", err)
		}
		if done {
			f.inFlight = false
		}
	}
	return nil
}

// waitSlot waits for the slot's previous frame. It reports false when the
// wait timed out and the frame must be skipped.
func (m *Manager) waitSlot(f *frameSlot) (bool, error) {
	if !f.inFlight {
		return true, nil
	}
	done, err := f.sync.Wait(m.cfg.FenceTimeout)
	if err != nil {
		return false, fmt.Errorf("wait for frame fence: %w", err)
	}
	if !done {
		return false, m.fenceTimedOut()
	}
	m.consecutiveTimeouts = 0
	f.inFlight = false
	return true, nil
}

func (m *Manager) fenceTimedOut() error {
	m.consecutiveTimeouts++
	if m.consecutiveTimeouts >= m.cfg.MaxConsecutiveFenceTimeouts {
		return &DeviceTimeoutError{Timeout: m.cfg.FenceTimeout, Consecutive: m.consecutiveTimeouts}
	}
	m.log.Warn("gpu did not finish a frame in time, skipping frame",
		"timeout", m.cfg.FenceTimeout, "consecutive", m.consecutiveTimeouts)
	return nil
}

// recreateSwapchain rebuilds the swapchain for the current surface. It
// reports false when recreation was deferred because the window has no area
// or in-flight frames did not finish in time.
func (m *Manager) recreateSwapchain() (bool, error) {
	width, height := m.window.Size()
	props, err := gpu.DeriveProperties(m.backend, m.cfg.PreferredImageCount(), width, height)
	if err != nil {
		m.log.Error("cannot derive swapchain properties", "err", err)
		return false, fmt.Errorf("%w: %w", ErrRecreateFailed, err)
	}
	if props.Extent.IsZero() {
		m.log.Debug("window has no area, deferring swapchain recreation", "extent", props.Extent)
		m.recreatePending = true
		return false, nil
	}

	for i := range m.frames {
		if ok, err := m.waitSlot(&m.frames[i]); !ok || err != nil {
			m.recreatePending = true
			return false, err
		}
	}
	if err := m.backend.WaitIdle(); err != nil {
		return false, fmt.Errorf("%w: wait idle: %w", ErrRecreateFailed, err)
	}

	if m.swapchain != nil {
		m.swapchain.Destroy()
		m.swapchain = nil
	}

	sc, err := m.backend.CreateSwapchain(props)
	if err != nil {
		m.logCreateFailure(props, err)
		return false, fmt.Errorf("%w: %w", ErrRecreateFailed, err)
	}

	m.swapchain = sc
	m.props = props
	m.generation++
	m.recreatePending = false
	m.imageOwners = make([]int, sc.ImageCount())
	for i := range m.imageOwners {
		m.imageOwners[i] = -1
	}

	m.log.Info("swapchain created",
		"generation", m.generation,
		"extent", props.Extent,
		"images", sc.ImageCount(),
		"format", props.Format.Format,
		"present_mode", props.PresentMode)
	return true, nil
}

func (m *Manager) logCreateFailure(props gpu.SwapchainProperties, err error) {
	attrs := []any{
		"err", err,
		"requested_images", props.ImageCount,
		"requested_extent", props.Extent,
	}
	if caps, qerr := m.backend.SurfaceCapabilities(); qerr == nil {
		attrs = append(attrs,
			"supported_images_min", caps.MinImageCount,
			"supported_images_max", caps.MaxImageCount,
			"supported_extent_min", caps.MinImageExtent,
			"supported_extent_max", caps.MaxImageExtent)
	}
	m.log.Error("swapchain creation failed", attrs...)
}

// Destroy waits for the GPU and releases everything in reverse creation
// order, the backend last.
func (m *Manager) Destroy() {
	if err := m.backend.WaitIdle(); err != nil && !errors.Is(err, gpu.ErrDeviceLost) {
		m.log.Warn("wait idle before teardown failed", "err", err)
	}
	if m.swapchain != nil {
		m.swapchain.Destroy()
		m.swapchain = nil
	}
	m.destroyFrames()
	m.backend.Destroy()
}

func (m *Manager) destroyFrames() {
	for i := len(m.frames) - 1; i >= 0; i-- {
		m.frames[i].sync.Destroy()
	}
	m.frames = nil
}

var (
	horizonColor = mgl32.Vec3{0.55, 0.62, 0.72}
	zenithColor  = mgl32.Vec3{0.08, 0.12, 0.25}
)

// backgroundColor shades the clear color by how far the camera looks up or
// down.
func backgroundColor(dir mgl32.Vec3) [4]float32 {
	t := mgl32.Clamp(-dir.Y(), 0, 1)
	c := horizonColor.Mul(1 - t).Add(zenithColor.Mul(t))
	return [4]float32{c.X(), c.Y(), c.Z(), 1}
}
