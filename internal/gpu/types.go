// Package gpu defines the presentation-surface model shared by the renderer
// and its GPU backends, and the policy that turns surface capabilities into
// swapchain properties.
//
// Enumerations use the numeric values of the corresponding Vulkan enums so a
// Vulkan backend converts them with a plain cast.
package gpu

import "fmt"

type Format uint32

const (
	FormatUndefined              Format = 0
	FormatR8Srgb                 Format = 15
	FormatR8G8Srgb               Format = 22
	FormatR8G8B8Srgb             Format = 29
	FormatB8G8R8Srgb             Format = 36
	FormatR8G8B8A8Unorm          Format = 37
	FormatR8G8B8A8Srgb           Format = 43
	FormatB8G8R8A8Unorm          Format = 44
	FormatB8G8R8A8Srgb           Format = 50
	FormatA8B8G8R8SrgbPack32     Format = 57
	FormatA2B10G10R10UnormPack32 Format = 64
	FormatR16G16B16A16Sfloat     Format = 97
)

// srgbFormats holds every sRGB format, compressed ones included.
var srgbFormats = func() map[Format]bool {
	m := map[Format]bool{
		FormatR8Srgb:             true,
		FormatR8G8Srgb:           true,
		FormatR8G8B8Srgb:         true,
		FormatB8G8R8Srgb:         true,
		FormatR8G8B8A8Srgb:       true,
		FormatB8G8R8A8Srgb:       true,
		FormatA8B8G8R8SrgbPack32: true,
		// BC1 RGB, BC1 RGBA, BC2, BC3, BC7
		132: true, 134: true, 136: true, 138: true, 146: true,
		// ETC2 RGB, RGBA1, RGBA8
		148: true, 150: true, 152: true,
		// PVRTC1 2bpp, 4bpp, PVRTC2 2bpp, 4bpp
		1000054004: true, 1000054005: true, 1000054006: true, 1000054007: true,
	}
	// ASTC 4x4 through 12x12, each sRGB variant follows its UNORM one
	for f := Format(158); f <= 184; f += 2 {
		m[f] = true
	}
	return m
}()

// IsSRGB reports whether the format applies the sRGB transfer function on
// write.
func (f Format) IsSRGB() bool {
	return srgbFormats[f]
}

// IsBGRA reports whether the first byte of a texel is blue.
func (f Format) IsBGRA() bool {
	switch f {
	case FormatB8G8R8A8Unorm, FormatB8G8R8A8Srgb, FormatB8G8R8Srgb:
		return true
	}
	return false
}

type ColorSpace uint32

const ColorSpaceSrgbNonlinear ColorSpace = 0

type PresentMode uint32

const (
	PresentModeImmediate   PresentMode = 0
	PresentModeMailbox     PresentMode = 1
	PresentModeFifo        PresentMode = 2
	PresentModeFifoRelaxed PresentMode = 3
)

func (m PresentMode) String() string {
	switch m {
	case PresentModeImmediate:
		return "immediate"
	case PresentModeMailbox:
		return "mailbox"
	case PresentModeFifo:
		return "fifo"
	case PresentModeFifoRelaxed:
		return "fifo relaxed"
	default:
		return fmt.Sprintf("PresentMode(%d)", uint32(m))
	}
}

// CompositeAlpha is a bit set of alpha compositing modes.
type CompositeAlpha uint32

const (
	CompositeAlphaOpaque         CompositeAlpha = 0x1
	CompositeAlphaPreMultiplied  CompositeAlpha = 0x2
	CompositeAlphaPostMultiplied CompositeAlpha = 0x4
	CompositeAlphaInherit        CompositeAlpha = 0x8
)

func (a CompositeAlpha) Has(bit CompositeAlpha) bool { return a&bit != 0 }

// SurfaceTransform is a bit set of presentation transforms.
type SurfaceTransform uint32

const (
	SurfaceTransformIdentity  SurfaceTransform = 0x1
	SurfaceTransformRotate90  SurfaceTransform = 0x2
	SurfaceTransformRotate180 SurfaceTransform = 0x4
	SurfaceTransformRotate270 SurfaceTransform = 0x8
	SurfaceTransformInherit   SurfaceTransform = 0x100
)

func (t SurfaceTransform) Has(bit SurfaceTransform) bool { return t&bit != 0 }

// UndefinedExtent is the surface current-extent value meaning the swapchain
// decides its own size.
const UndefinedExtent = 0xFFFFFFFF

type Extent2D struct {
	Width, Height uint32
}

func (e Extent2D) IsZero() bool { return e.Width == 0 || e.Height == 0 }

func (e Extent2D) String() string { return fmt.Sprintf("%dx%d", e.Width, e.Height) }

type SurfaceFormat struct {
	Format     Format
	ColorSpace ColorSpace
}

type SurfaceCapabilities struct {
	MinImageCount uint32
	// MaxImageCount is 0 when the surface imposes no maximum.
	MaxImageCount           uint32
	CurrentExtent           Extent2D
	MinImageExtent          Extent2D
	MaxImageExtent          Extent2D
	SupportedTransforms     SurfaceTransform
	CurrentTransform        SurfaceTransform
	SupportedCompositeAlpha CompositeAlpha
}

// SwapchainProperties fully describes a swapchain to create.
type SwapchainProperties struct {
	ImageCount     uint32
	Format         SurfaceFormat
	Extent         Extent2D
	PreTransform   SurfaceTransform
	CompositeAlpha CompositeAlpha
	PresentMode    PresentMode
}
