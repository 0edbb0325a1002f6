// Package gputest provides an in-memory gpu.Backend whose surface and
// results can be scripted by tests.
package gputest

import (
	"errors"
	"sync"
	"time"

	"github.com/dave-is-dave/Goshenite/internal/gpu"
	"github.com/dave-is-dave/Goshenite/internal/gui"
)

var (
	ErrDestroyedSwapchain = errors.New("gputest: swapchain used after destroy")
	ErrNotAcquired        = errors.New("gputest: submit without an acquired image")

	// ErrSemaphoreSignaled reports an acquire into a slot whose previous
	// acquired image was never submitted.
	ErrSemaphoreSignaled = errors.New("gputest: acquire semaphore already signaled")
)

// Submission records one submitted frame.
type Submission struct {
	ImageIndex uint32
	Extent     gpu.Extent2D
	Swapchain  int
	Frame      gpu.Frame
}

// Backend is a fake GPU. The zero value is not usable; call New.
type Backend struct {
	mu sync.Mutex

	caps    gpu.SurfaceCapabilities
	formats []gpu.SurfaceFormat
	modes   []gpu.PresentMode

	surfaceErr   error
	createErr    error
	acquireQueue []gpu.Status
	presentQueue []gpu.Status
	hung         bool

	swapchainsCreated   int
	swapchainsDestroyed int
	live                *Swapchain
	fences              []*Fence
	submissions         []Submission
	acquired            int
	presents            int
	waitIdle            int
	destroyed           int
	maxInFlight         int
	textures            map[gui.TextureID]bool
	textureUpdates      int
}

// New returns a backend whose surface reports a fixed width x height extent.
func New(width, height uint32) *Backend {
	return &Backend{
		caps: gpu.SurfaceCapabilities{
			MinImageCount:           2,
			MaxImageCount:           3,
			CurrentExtent:           gpu.Extent2D{Width: width, Height: height},
			MinImageExtent:          gpu.Extent2D{Width: 1, Height: 1},
			MaxImageExtent:          gpu.Extent2D{Width: 8192, Height: 8192},
			SupportedTransforms:     gpu.SurfaceTransformIdentity,
			CurrentTransform:        gpu.SurfaceTransformIdentity,
			SupportedCompositeAlpha: gpu.CompositeAlphaOpaque,
		},
		formats:  []gpu.SurfaceFormat{{Format: gpu.FormatB8G8R8A8Unorm}, {Format: gpu.FormatB8G8R8A8Srgb}},
		modes:    []gpu.PresentMode{gpu.PresentModeFifo, gpu.PresentModeMailbox},
		textures: make(map[gui.TextureID]bool),
	}
}

// SetCapabilities replaces what the surface reports.
func (b *Backend) SetCapabilities(caps gpu.SurfaceCapabilities) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.caps = caps
}

// SetExtent changes the surface's current extent, as a window resize would.
func (b *Backend) SetExtent(width, height uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.caps.CurrentExtent = gpu.Extent2D{Width: width, Height: height}
}

// FailSurfaceQueries makes every surface query return err. nil restores it.
func (b *Backend) FailSurfaceQueries(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.surfaceErr = err
}

// FailSwapchainCreation makes CreateSwapchain return err. nil restores it.
func (b *Backend) FailSwapchainCreation(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.createErr = err
}

// QueueAcquire scripts the statuses of the next acquires.
func (b *Backend) QueueAcquire(statuses ...gpu.Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.acquireQueue = append(b.acquireQueue, statuses...)
}

// QueuePresent scripts the statuses of the next presents.
func (b *Backend) QueuePresent(statuses ...gpu.Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.presentQueue = append(b.presentQueue, statuses...)
}

// SetHung makes submitted work never complete while true.
func (b *Backend) SetHung(hung bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hung = hung
}

func (b *Backend) SurfaceCapabilities() (gpu.SurfaceCapabilities, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.caps, b.surfaceErr
}

func (b *Backend) SurfaceFormats() ([]gpu.SurfaceFormat, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.formats, b.surfaceErr
}

func (b *Backend) PresentModes() ([]gpu.PresentMode, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.modes, b.surfaceErr
}

func (b *Backend) CreateSwapchain(props gpu.SwapchainProperties) (gpu.Swapchain, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.createErr != nil {
		return nil, b.createErr
	}
	b.swapchainsCreated++
	sc := &Swapchain{backend: b, id: b.swapchainsCreated, props: props}
	b.live = sc
	return sc, nil
}

func (b *Backend) CreateFrameSync() (gpu.FrameSync, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f := &Fence{backend: b, signaled: true}
	b.fences = append(b.fences, f)
	return f, nil
}

func (b *Backend) AcquireNextImage(sc gpu.Swapchain, sync gpu.FrameSync) (uint32, gpu.Status, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := sc.(*Swapchain)
	f := sync.(*Fence)
	if s.destroyed {
		return 0, 0, ErrDestroyedSwapchain
	}
	status := gpu.StatusSuccess
	if len(b.acquireQueue) > 0 {
		status = b.acquireQueue[0]
		b.acquireQueue = b.acquireQueue[1:]
	}
	if status == gpu.StatusOutOfDate {
		return 0, status, nil
	}
	if f.imageAvailable {
		return 0, 0, ErrSemaphoreSignaled
	}
	f.imageAvailable = true
	b.acquired++
	idx := s.next
	s.next = (s.next + 1) % s.props.ImageCount
	return idx, status, nil
}

func (b *Backend) Submit(sc gpu.Swapchain, sync gpu.FrameSync, frame gpu.Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := sc.(*Swapchain)
	if s.destroyed {
		return ErrDestroyedSwapchain
	}
	f := sync.(*Fence)
	if !f.imageAvailable {
		return ErrNotAcquired
	}
	f.imageAvailable = false
	f.signaled = false
	b.submissions = append(b.submissions, Submission{
		ImageIndex: frame.ImageIndex,
		Extent:     s.props.Extent,
		Swapchain:  s.id,
		Frame:      frame,
	})
	inFlight := 0
	for _, f := range b.fences {
		if !f.signaled && !f.destroyed {
			inFlight++
		}
	}
	b.maxInFlight = max(b.maxInFlight, inFlight)
	return nil
}

func (b *Backend) Present(sc gpu.Swapchain, _ gpu.FrameSync, _ uint32) (gpu.Status, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sc.(*Swapchain).destroyed {
		return 0, ErrDestroyedSwapchain
	}
	b.presents++
	status := gpu.StatusSuccess
	if len(b.presentQueue) > 0 {
		status = b.presentQueue[0]
		b.presentQueue = b.presentQueue[1:]
	}
	return status, nil
}

func (b *Backend) UpdateTextures(delta gui.TexturesDelta) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, u := range delta.Set {
		b.textures[u.ID] = true
		b.textureUpdates++
	}
	for _, id := range delta.Free {
		delete(b.textures, id)
	}
	return nil
}

func (b *Backend) WaitIdle() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.waitIdle++
	if !b.hung {
		for _, f := range b.fences {
			if !f.stuck {
				f.signaled = true
			}
		}
	}
	return nil
}

func (b *Backend) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.destroyed++
}

// SetFenceHung makes the work of the slot created i-th never complete while
// hung is true, leaving the other slots unaffected.
func (b *Backend) SetFenceHung(i int, hung bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fences[i].stuck = hung
}

// Stats is a point-in-time copy of what the backend observed.
type Stats struct {
	SwapchainsCreated   int
	SwapchainsDestroyed int
	LiveSwapchain       *gpu.SwapchainProperties
	Submissions         []Submission
	// Acquired counts images handed out by AcquireNextImage. Every one of
	// them must eventually be presented.
	Acquired            int
	Presents            int
	WaitIdle            int
	Destroyed           int
	MaxInFlight         int
	Textures            int
	TextureUpdates      int
}

func (b *Backend) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := Stats{
		SwapchainsCreated:   b.swapchainsCreated,
		SwapchainsDestroyed: b.swapchainsDestroyed,
		Submissions:         append([]Submission(nil), b.submissions...),
		Acquired:            b.acquired,
		Presents:            b.presents,
		WaitIdle:            b.waitIdle,
		Destroyed:           b.destroyed,
		MaxInFlight:         b.maxInFlight,
		Textures:            len(b.textures),
		TextureUpdates:      b.textureUpdates,
	}
	if b.live != nil && !b.live.destroyed {
		props := b.live.props
		s.LiveSwapchain = &props
	}
	return s
}

// Swapchain is the fake swapchain handed out by Backend.
type Swapchain struct {
	backend   *Backend
	id        int
	props     gpu.SwapchainProperties
	next      uint32
	destroyed bool
}

func (s *Swapchain) Properties() gpu.SwapchainProperties { return s.props }

func (s *Swapchain) ImageCount() int { return int(s.props.ImageCount) }

func (s *Swapchain) FramebufferCount() int { return int(s.props.ImageCount) }

func (s *Swapchain) Destroy() {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	if !s.destroyed {
		s.destroyed = true
		s.backend.swapchainsDestroyed++
	}
}

// Fence completes when waited on, unless the backend or the fence is hung.
// It also tracks the slot's acquire semaphore.
type Fence struct {
	backend        *Backend
	signaled       bool
	stuck          bool
	imageAvailable bool
	destroyed      bool
}

func (f *Fence) Wait(time.Duration) (bool, error) {
	f.backend.mu.Lock()
	defer f.backend.mu.Unlock()
	if !f.signaled && !f.backend.hung && !f.stuck {
		f.signaled = true
	}
	return f.signaled, nil
}

func (f *Fence) IsSignaled() (bool, error) {
	f.backend.mu.Lock()
	defer f.backend.mu.Unlock()
	return f.signaled, nil
}

func (f *Fence) Reset() error {
	f.backend.mu.Lock()
	defer f.backend.mu.Unlock()
	f.signaled = false
	return nil
}

func (f *Fence) Destroy() {
	f.backend.mu.Lock()
	defer f.backend.mu.Unlock()
	f.destroyed = true
}
