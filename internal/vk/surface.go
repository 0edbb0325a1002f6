package vk

import (
	"github.com/vulkan-go/vulkan"

	"github.com/dave-is-dave/Goshenite/internal/gpu"
)

func (b *Backend) SurfaceCapabilities() (gpu.SurfaceCapabilities, error) {
	var caps vulkan.SurfaceCapabilities
	if res := vulkan.GetPhysicalDeviceSurfaceCapabilities(b.physicalDevice, b.surface, &caps); res != vulkan.Success {
		return gpu.SurfaceCapabilities{}, wrapResult("query surface capabilities", res)
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()

	b.supportedUsage = caps.SupportedUsageFlags
	return gpu.SurfaceCapabilities{
		MinImageCount:           caps.MinImageCount,
		MaxImageCount:           caps.MaxImageCount,
		CurrentExtent:           fromExtent(caps.CurrentExtent),
		MinImageExtent:          fromExtent(caps.MinImageExtent),
		MaxImageExtent:          fromExtent(caps.MaxImageExtent),
		SupportedTransforms:     gpu.SurfaceTransform(caps.SupportedTransforms),
		CurrentTransform:        gpu.SurfaceTransform(caps.CurrentTransform),
		SupportedCompositeAlpha: gpu.CompositeAlpha(caps.SupportedCompositeAlpha),
	}, nil
}

func (b *Backend) SurfaceFormats() ([]gpu.SurfaceFormat, error) {
	return b.surfaceFormats(b.physicalDevice)
}

func (b *Backend) PresentModes() ([]gpu.PresentMode, error) {
	return b.presentModes(b.physicalDevice)
}

func (b *Backend) surfaceFormats(device vulkan.PhysicalDevice) ([]gpu.SurfaceFormat, error) {
	var count uint32
	if res := vulkan.GetPhysicalDeviceSurfaceFormats(device, b.surface, &count, nil); res != vulkan.Success {
		return nil, wrapResult("query surface formats", res)
	}
	if count == 0 {
		return nil, nil
	}
	formats := make([]vulkan.SurfaceFormat, count)
	if res := vulkan.GetPhysicalDeviceSurfaceFormats(device, b.surface, &count, formats); res != vulkan.Success {
		return nil, wrapResult("query surface formats", res)
	}
	out := make([]gpu.SurfaceFormat, 0, count)
	for i := range formats[:count] {
		formats[i].Deref()
		out = append(out, gpu.SurfaceFormat{
			Format:     gpu.Format(formats[i].Format),
			ColorSpace: gpu.ColorSpace(formats[i].ColorSpace),
		})
	}
	return out, nil
}

func (b *Backend) presentModes(device vulkan.PhysicalDevice) ([]gpu.PresentMode, error) {
	var count uint32
	if res := vulkan.GetPhysicalDeviceSurfacePresentModes(device, b.surface, &count, nil); res != vulkan.Success {
		return nil, wrapResult("query present modes", res)
	}
	if count == 0 {
		return nil, nil
	}
	modes := make([]vulkan.PresentMode, count)
	if res := vulkan.GetPhysicalDeviceSurfacePresentModes(device, b.surface, &count, modes); res != vulkan.Success {
		return nil, wrapResult("query present modes", res)
	}
	out := make([]gpu.PresentMode, 0, count)
	for _, m := range modes[:count] {
		out = append(out, gpu.PresentMode(m))
	}
	return out, nil
}

func fromExtent(e vulkan.Extent2D) gpu.Extent2D {
	return gpu.Extent2D{Width: e.Width, Height: e.Height}
}

func toExtent(e gpu.Extent2D) vulkan.Extent2D {
	return vulkan.Extent2D{Width: e.Width, Height: e.Height}
}
