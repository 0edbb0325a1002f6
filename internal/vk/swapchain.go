package vk

import (
	"errors"
	"fmt"

	"github.com/vulkan-go/vulkan"

	"github.com/dave-is-dave/Goshenite/internal/gpu"
)

var errForeignObject = errors.New("vk: object was not created by this backend")

// swapchain bundles the swapchain with its image views, the render pass
// that clears them and one framebuffer per image.
type swapchain struct {
	b      *Backend
	handle vulkan.Swapchain
	props  gpu.SwapchainProperties
	format vulkan.Format
	extent vulkan.Extent2D

	images       []vulkan.Image
	views        []vulkan.ImageView
	renderPass   vulkan.RenderPass
	framebuffers []vulkan.Framebuffer

	// transferDst is set when the images accept transfer writes, which the
	// GUI copy needs.
	transferDst bool
}

func (s *swapchain) Properties() gpu.SwapchainProperties { return s.props }
func (s *swapchain) ImageCount() int                     { return len(s.images) }
func (s *swapchain) FramebufferCount() int               { return len(s.framebuffers) }

// CreateSwapchain builds a swapchain exactly as described by props. There
// is no old swapchain to hand over: the caller destroys it beforehand.
func (b *Backend) CreateSwapchain(props gpu.SwapchainProperties) (gpu.Swapchain, error) {
	s := &swapchain{
		b:           b,
		props:       props,
		format:      vulkan.Format(props.Format.Format),
		extent:      toExtent(props.Extent),
		transferDst: b.supportedUsage&vulkan.ImageUsageFlags(vulkan.ImageUsageTransferDstBit) != 0,
	}
	if err := s.create(); err != nil {
		s.Destroy()
		return nil, err
	}
	b.log.Debug("vulkan swapchain created",
		"images", len(s.images), "format", s.format, "extent", props.Extent.String(),
		"gui_copy", s.transferDst)
	return s, nil
}

func (s *swapchain) create() error {
	b := s.b
	usage := vulkan.ImageUsageFlags(vulkan.ImageUsageColorAttachmentBit)
	if s.transferDst {
		usage |= vulkan.ImageUsageFlags(vulkan.ImageUsageTransferDstBit)
	}

	createInfo := vulkan.SwapchainCreateInfo{
		SType:            vulkan.StructureTypeSwapchainCreateInfo,
		Surface:          b.surface,
		MinImageCount:    s.props.ImageCount,
		ImageFormat:      s.format,
		ImageColorSpace:  vulkan.ColorSpace(s.props.Format.ColorSpace),
		ImageExtent:      s.extent,
		ImageArrayLayers: 1,
		ImageUsage:       usage,
		PreTransform:     vulkan.SurfaceTransformFlagBits(s.props.PreTransform),
		CompositeAlpha:   vulkan.CompositeAlphaFlagBits(s.props.CompositeAlpha),
		PresentMode:      vulkan.PresentMode(s.props.PresentMode),
		Clipped:          vulkan.True,
		OldSwapchain:     vulkan.Swapchain(vulkan.NullHandle),
	}
	if b.queues.graphicsFamily != b.queues.presentFamily {
		indices := []uint32{b.queues.graphicsFamily, b.queues.presentFamily}
		createInfo.ImageSharingMode = vulkan.SharingModeConcurrent
		createInfo.QueueFamilyIndexCount = uint32(len(indices))
		createInfo.PQueueFamilyIndices = indices
	} else {
		createInfo.ImageSharingMode = vulkan.SharingModeExclusive
	}

	var handle vulkan.Swapchain
	if res := vulkan.CreateSwapchain(b.device, &createInfo, nil, &handle); res != vulkan.Success {
		return wrapResult("create swapchain", res)
	}
	s.handle = handle

	var count uint32
	if res := vulkan.GetSwapchainImages(b.device, s.handle, &count, nil); res != vulkan.Success {
		return wrapResult("get swapchain images", res)
	}
	s.images = make([]vulkan.Image, count)
	if res := vulkan.GetSwapchainImages(b.device, s.handle, &count, s.images); res != vulkan.Success {
		return wrapResult("get swapchain images", res)
	}

	if err := s.createImageViews(); err != nil {
		return err
	}
	if err := s.createRenderPass(); err != nil {
		return err
	}
	return s.createFramebuffers()
}

func (s *swapchain) createImageViews() error {
	s.views = make([]vulkan.ImageView, 0, len(s.images))
	for i, img := range s.images {
		viewInfo := vulkan.ImageViewCreateInfo{
			SType:    vulkan.StructureTypeImageViewCreateInfo,
			Image:    img,
			ViewType: vulkan.ImageViewType2d,
			Format:   s.format,
			Components: vulkan.ComponentMapping{
				R: vulkan.ComponentSwizzleIdentity,
				G: vulkan.ComponentSwizzleIdentity,
				B: vulkan.ComponentSwizzleIdentity,
				A: vulkan.ComponentSwizzleIdentity,
			},
			SubresourceRange: colorSubresourceRange(),
		}
		var view vulkan.ImageView
		if res := vulkan.CreateImageView(s.b.device, &viewInfo, nil, &view); res != vulkan.Success {
			return wrapResult(fmt.Sprintf("create image view %d", i), res)
		}
		s.views = append(s.views, view)
	}
	return nil
}

// createRenderPass clears the color attachment. When GUI copies follow the
// pass it leaves the image ready for transfer writes; otherwise it hands the
// image straight to presentation.
func (s *swapchain) createRenderPass() error {
	finalLayout := vulkan.ImageLayoutPresentSrc
	if s.transferDst {
		finalLayout = vulkan.ImageLayoutTransferDstOptimal
	}
	colorAttachment := vulkan.AttachmentDescription{
		Format:         s.format,
		Samples:        vulkan.SampleCount1Bit,
		LoadOp:         vulkan.AttachmentLoadOpClear,
		StoreOp:        vulkan.AttachmentStoreOpStore,
		StencilLoadOp:  vulkan.AttachmentLoadOpDontCare,
		StencilStoreOp: vulkan.AttachmentStoreOpDontCare,
		InitialLayout:  vulkan.ImageLayoutUndefined,
		FinalLayout:    finalLayout,
	}
	colorRef := vulkan.AttachmentReference{
		Attachment: 0,
		Layout:     vulkan.ImageLayoutColorAttachmentOptimal,
	}
	subpass := vulkan.SubpassDescription{
		PipelineBindPoint:    vulkan.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments:    []vulkan.AttachmentReference{colorRef},
	}

	dependencies := []vulkan.SubpassDependency{{
		SrcSubpass:    vulkan.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vulkan.PipelineStageFlags(vulkan.PipelineStageColorAttachmentOutputBit),
		DstStageMask:  vulkan.PipelineStageFlags(vulkan.PipelineStageColorAttachmentOutputBit),
		DstAccessMask: vulkan.AccessFlags(vulkan.AccessColorAttachmentWriteBit),
	}}
	if s.transferDst {
		dependencies = append(dependencies, vulkan.SubpassDependency{
			SrcSubpass:    0,
			DstSubpass:    vulkan.SubpassExternal,
			SrcStageMask:  vulkan.PipelineStageFlags(vulkan.PipelineStageColorAttachmentOutputBit),
			SrcAccessMask: vulkan.AccessFlags(vulkan.AccessColorAttachmentWriteBit),
			DstStageMask:  vulkan.PipelineStageFlags(vulkan.PipelineStageTransferBit),
			DstAccessMask: vulkan.AccessFlags(vulkan.AccessTransferWriteBit),
		})
	}

	createInfo := vulkan.RenderPassCreateInfo{
		SType:           vulkan.StructureTypeRenderPassCreateInfo,
		AttachmentCount: 1,
		PAttachments:    []vulkan.AttachmentDescription{colorAttachment},
		SubpassCount:    1,
		PSubpasses:      []vulkan.SubpassDescription{subpass},
		DependencyCount: uint32(len(dependencies)),
		PDependencies:   dependencies,
	}
	var renderPass vulkan.RenderPass
	if res := vulkan.CreateRenderPass(s.b.device, &createInfo, nil, &renderPass); res != vulkan.Success {
		return wrapResult("create render pass", res)
	}
	s.renderPass = renderPass
	return nil
}

func (s *swapchain) createFramebuffers() error {
	s.framebuffers = make([]vulkan.Framebuffer, 0, len(s.views))
	for i, view := range s.views {
		createInfo := vulkan.FramebufferCreateInfo{
			SType:           vulkan.StructureTypeFramebufferCreateInfo,
			RenderPass:      s.renderPass,
			AttachmentCount: 1,
			PAttachments:    []vulkan.ImageView{view},
			Width:           s.extent.Width,
			Height:          s.extent.Height,
			Layers:          1,
		}
		var fb vulkan.Framebuffer
		if res := vulkan.CreateFramebuffer(s.b.device, &createInfo, nil, &fb); res != vulkan.Success {
			return wrapResult(fmt.Sprintf("create framebuffer %d", i), res)
		}
		s.framebuffers = append(s.framebuffers, fb)
	}
	return nil
}

// Destroy releases per-image resources before the swapchain itself. The
// caller guarantees the GPU no longer uses any of them.
func (s *swapchain) Destroy() {
	device := s.b.device
	for _, fb := range s.framebuffers {
		vulkan.DestroyFramebuffer(device, fb, nil)
	}
	s.framebuffers = nil
	if s.renderPass != vulkan.RenderPass(vulkan.NullHandle) {
		vulkan.DestroyRenderPass(device, s.renderPass, nil)
		s.renderPass = vulkan.RenderPass(vulkan.NullHandle)
	}
	for _, view := range s.views {
		vulkan.DestroyImageView(device, view, nil)
	}
	s.views = nil
	s.images = nil
	if s.handle != vulkan.Swapchain(vulkan.NullHandle) {
		vulkan.DestroySwapchain(device, s.handle, nil)
		s.handle = vulkan.Swapchain(vulkan.NullHandle)
	}
}

func colorSubresourceRange() vulkan.ImageSubresourceRange {
	return vulkan.ImageSubresourceRange{
		AspectMask:     vulkan.ImageAspectFlags(vulkan.ImageAspectColorBit),
		BaseMipLevel:   0,
		LevelCount:     1,
		BaseArrayLayer: 0,
		LayerCount:     1,
	}
}

func (b *Backend) unwrap(sc gpu.Swapchain, sync gpu.FrameSync) (*swapchain, *frameSync, error) {
	s, ok := sc.(*swapchain)
	if !ok || s.b != b {
		return nil, nil, errForeignObject
	}
	f, ok := sync.(*frameSync)
	if !ok || f.b != b {
		return nil, nil, errForeignObject
	}
	return s, f, nil
}
