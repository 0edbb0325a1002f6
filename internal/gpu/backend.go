package gpu

import (
	"errors"
	"fmt"
	"time"

	"github.com/dave-is-dave/Goshenite/internal/camera"
	"github.com/dave-is-dave/Goshenite/internal/gui"
)

var (
	ErrSurfaceLost = errors.New("gpu: surface lost")
	ErrDeviceLost  = errors.New("gpu: device lost")
)

// Status is the non-error outcome of acquire and present.
type Status int

const (
	StatusSuccess Status = iota
	// StatusSuboptimal still presents correctly but the swapchain should be
	// recreated.
	StatusSuboptimal
	// StatusOutOfDate means the swapchain can no longer be used.
	StatusOutOfDate
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusSuboptimal:
		return "suboptimal"
	case StatusOutOfDate:
		return "out of date"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// SurfaceQuery reports what the presentation surface supports right now.
type SurfaceQuery interface {
	SurfaceCapabilities() (SurfaceCapabilities, error)
	SurfaceFormats() ([]SurfaceFormat, error)
	PresentModes() ([]PresentMode, error)
}

// Swapchain owns its images and every per-image resource built on them.
type Swapchain interface {
	Properties() SwapchainProperties
	ImageCount() int
	FramebufferCount() int
	Destroy()
}

// FrameSync tracks GPU completion of one frame slot. A new FrameSync starts
// signaled.
type FrameSync interface {
	// Wait blocks until the work is done or timeout passes. It reports false
	// on timeout.
	Wait(timeout time.Duration) (bool, error)
	IsSignaled() (bool, error)
	Reset() error
	Destroy()
}

// Frame is everything needed to record one frame.
type Frame struct {
	ImageIndex  uint32
	Camera      camera.Snapshot
	ClearColor  [4]float32
	ScaleFactor float32
	Primitives  gui.Primitives
}

// Backend is a GPU device able to present to one window surface.
type Backend interface {
	SurfaceQuery

	CreateSwapchain(props SwapchainProperties) (Swapchain, error)
	CreateFrameSync() (FrameSync, error)

	AcquireNextImage(sc Swapchain, sync FrameSync) (uint32, Status, error)
	// Submit records and submits frame. sync is signaled when the GPU is done.
	Submit(sc Swapchain, sync FrameSync, frame Frame) error
	Present(sc Swapchain, sync FrameSync, imageIndex uint32) (Status, error)

	UpdateTextures(delta gui.TexturesDelta) error
	WaitIdle() error
	Destroy()
}
