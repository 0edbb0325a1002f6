package gpu

import (
	"errors"
	"fmt"
)

var (
	ErrNoCompositeAlpha  = errors.New("gpu: surface supports no composite alpha mode")
	ErrNoSurfaceFormats  = errors.New("gpu: surface reports no formats")
	ErrNoPresentModes    = errors.New("gpu: surface reports no present modes")
	ErrInvalidImageRange = errors.New("gpu: surface image count range is empty")
)

var compositeAlphaPreference = []CompositeAlpha{
	CompositeAlphaPostMultiplied,
	CompositeAlphaOpaque,
	CompositeAlphaPreMultiplied,
	CompositeAlphaInherit,
}

// ChooseCompositeAlpha picks the first supported mode in the order
// post-multiplied, opaque, pre-multiplied, inherit.
func ChooseCompositeAlpha(supported CompositeAlpha) (CompositeAlpha, error) {
	for _, mode := range compositeAlphaPreference {
		if supported.Has(mode) {
			return mode, nil
		}
	}
	return 0, ErrNoCompositeAlpha
}

// ChoosePresentMode prefers mailbox and falls back to FIFO, which every
// surface supports.
func ChoosePresentMode(available []PresentMode) PresentMode {
	for _, mode := range available {
		if mode == PresentModeMailbox {
			return mode
		}
	}
	return PresentModeFifo
}

func ChoosePreTransform(caps SurfaceCapabilities) SurfaceTransform {
	if caps.SupportedTransforms.Has(SurfaceTransformIdentity) {
		return SurfaceTransformIdentity
	}
	return caps.CurrentTransform
}

// ChooseSurfaceFormat returns the first sRGB format, or the first format when
// none is sRGB.
func ChooseSurfaceFormat(available []SurfaceFormat) (SurfaceFormat, error) {
	if len(available) == 0 {
		return SurfaceFormat{}, ErrNoSurfaceFormats
	}
	for _, f := range available {
		if f.Format.IsSRGB() {
			return f, nil
		}
	}
	return available[0], nil
}

// ChooseImageCount clamps preferred into the surface's supported range.
func ChooseImageCount(preferred uint32, caps SurfaceCapabilities) uint32 {
	count := max(preferred, caps.MinImageCount)
	if caps.MaxImageCount > 0 && count > caps.MaxImageCount {
		count = caps.MaxImageCount
	}
	return count
}

// ChooseExtent uses the surface's current extent unless it is undefined, in
// which case the window size is clamped to the supported extents.
func ChooseExtent(caps SurfaceCapabilities, windowWidth, windowHeight int) Extent2D {
	if caps.CurrentExtent.Width != UndefinedExtent {
		return caps.CurrentExtent
	}
	return Extent2D{
		Width:  clamp(uint32(max(windowWidth, 0)), caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: clamp(uint32(max(windowHeight, 0)), caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

// DeriveProperties queries the surface and applies every selection policy.
func DeriveProperties(q SurfaceQuery, preferredImageCount uint32, windowWidth, windowHeight int) (SwapchainProperties, error) {
	caps, err := q.SurfaceCapabilities()
	if err != nil {
		return SwapchainProperties{}, fmt.Errorf("query surface capabilities: %w", err)
	}
	formats, err := q.SurfaceFormats()
	if err != nil {
		return SwapchainProperties{}, fmt.Errorf("query surface formats: %w", err)
	}
	modes, err := q.PresentModes()
	if err != nil {
		return SwapchainProperties{}, fmt.Errorf("query present modes: %w", err)
	}
	if len(modes) == 0 {
		return SwapchainProperties{}, ErrNoPresentModes
	}
	if caps.MaxImageCount > 0 && caps.MaxImageCount < caps.MinImageCount {
		return SwapchainProperties{}, fmt.Errorf("%w: min %d max %d", ErrInvalidImageRange, caps.MinImageCount, caps.MaxImageCount)
	}

	format, err := ChooseSurfaceFormat(formats)
	if err != nil {
		return SwapchainProperties{}, err
	}
	alpha, err := ChooseCompositeAlpha(caps.SupportedCompositeAlpha)
	if err != nil {
		return SwapchainProperties{}, err
	}

	return SwapchainProperties{
		ImageCount:     ChooseImageCount(preferredImageCount, caps),
		Format:         format,
		Extent:         ChooseExtent(caps, windowWidth, windowHeight),
		PreTransform:   ChoosePreTransform(caps),
		CompositeAlpha: alpha,
		PresentMode:    ChoosePresentMode(modes),
	}, nil
}

func clamp(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
