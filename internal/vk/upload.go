package vk

import (
	"image"

	"github.com/vulkan-go/vulkan"

	"github.com/dave-is-dave/Goshenite/internal/gpu"
	"github.com/dave-is-dave/Goshenite/internal/gui"
)

const texelSize = 4

// upload copies part of a GUI texture into the swapchain image.
type upload struct {
	dst    image.Rectangle
	src    *image.RGBA
	srcMin image.Point
	// offset into the staging buffer, in bytes
	offset uint64
}

func (u upload) size() uint64 {
	return uint64(u.dst.Dx()) * uint64(u.dst.Dy()) * texelSize
}

// planUploads clips every primitive against the image and its texture and
// lays the results out back to back. Primitives with unknown textures or
// nothing left after clipping are skipped.
func planUploads(prims gui.Primitives, textures map[gui.TextureID]*image.RGBA, extent gpu.Extent2D) ([]upload, uint64) {
	bounds := image.Rect(0, 0, int(extent.Width), int(extent.Height))
	var uploads []upload
	var total uint64
	for _, p := range prims {
		tex, ok := textures[p.Texture]
		if !ok {
			continue
		}
		dst := p.Rect.Intersect(bounds)
		if dst.Empty() {
			continue
		}
		srcMin := tex.Bounds().Min.Add(dst.Min.Sub(p.Rect.Min))
		src := image.Rectangle{Min: srcMin, Max: srcMin.Add(dst.Size())}.Intersect(tex.Bounds())
		if src.Empty() {
			continue
		}
		dst.Max = dst.Min.Add(src.Size())

		u := upload{dst: dst, src: tex, srcMin: src.Min, offset: total}
		uploads = append(uploads, u)
		total += u.size()
	}
	return uploads, total
}

// packTexels writes the upload's texels tightly packed into dst, swapping
// red and blue for BGRA images.
func packTexels(dst []byte, u upload, bgra bool) {
	rowBytes := u.dst.Dx() * texelSize
	out := dst[u.offset : u.offset+u.size()]
	for y := 0; y < u.dst.Dy(); y++ {
		start := u.src.PixOffset(u.srcMin.X, u.srcMin.Y+y)
		row := out[y*rowBytes : (y+1)*rowBytes]
		copy(row, u.src.Pix[start:start+rowBytes])
		if bgra {
			for i := 0; i < len(row); i += texelSize {
				row[i], row[i+2] = row[i+2], row[i]
			}
		}
	}
}

func (u upload) region() vulkan.BufferImageCopy {
	return vulkan.BufferImageCopy{
		BufferOffset:      vulkan.DeviceSize(u.offset),
		BufferRowLength:   0,
		BufferImageHeight: 0,
		ImageSubresource: vulkan.ImageSubresourceLayers{
			AspectMask:     vulkan.ImageAspectFlags(vulkan.ImageAspectColorBit),
			MipLevel:       0,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
		ImageOffset: vulkan.Offset3D{X: int32(u.dst.Min.X), Y: int32(u.dst.Min.Y), Z: 0},
		ImageExtent: vulkan.Extent3D{Width: uint32(u.dst.Dx()), Height: uint32(u.dst.Dy()), Depth: 1},
	}
}

// swapchainStatus maps the outcome of acquire and present.
func swapchainStatus(op string, res vulkan.Result) (gpu.Status, error) {
	switch res {
	case vulkan.Success:
		return gpu.StatusSuccess, nil
	case vulkan.Suboptimal:
		return gpu.StatusSuboptimal, nil
	case vulkan.ErrorOutOfDate:
		return gpu.StatusOutOfDate, nil
	default:
		return gpu.StatusSuccess, wrapResult(op, res)
	}
}
