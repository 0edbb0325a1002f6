package vk

import (
	"errors"
	"fmt"
	"math"
	"time"
	"unsafe"

	"github.com/vulkan-go/vulkan"

	"github.com/dave-is-dave/Goshenite/internal/gpu"
)

// frameSync holds everything one frame slot owns: the fence the GPU
// signals, the acquire and render semaphores, a command buffer and the
// staging buffer for GUI copies.
type frameSync struct {
	b              *Backend
	fence          vulkan.Fence
	imageAvailable vulkan.Semaphore
	renderFinished vulkan.Semaphore
	cmd            vulkan.CommandBuffer

	staging       vulkan.Buffer
	stagingMemory vulkan.DeviceMemory
	stagingSize   uint64
}

// CreateFrameSync returns a slot whose fence starts signaled.
func (b *Backend) CreateFrameSync() (gpu.FrameSync, error) {
	f := &frameSync{b: b}
	if err := f.create(); err != nil {
		f.Destroy()
		return nil, err
	}
	return f, nil
}

func (f *frameSync) create() error {
	device := f.b.device
	semInfo := vulkan.SemaphoreCreateInfo{
		SType: vulkan.StructureTypeSemaphoreCreateInfo,
	}
	fenceInfo := vulkan.FenceCreateInfo{
		SType: vulkan.StructureTypeFenceCreateInfo,
		Flags: vulkan.FenceCreateFlags(vulkan.FenceCreateSignaledBit),
	}
	if res := vulkan.CreateSemaphore(device, &semInfo, nil, &f.imageAvailable); res != vulkan.Success {
		return wrapResult("create imageAvailable semaphore", res)
	}
	if res := vulkan.CreateSemaphore(device, &semInfo, nil, &f.renderFinished); res != vulkan.Success {
		return wrapResult("create renderFinished semaphore", res)
	}
	if res := vulkan.CreateFence(device, &fenceInfo, nil, &f.fence); res != vulkan.Success {
		return wrapResult("create fence", res)
	}

	allocInfo := vulkan.CommandBufferAllocateInfo{
		SType:              vulkan.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        f.b.commandPool,
		Level:              vulkan.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	cmds := make([]vulkan.CommandBuffer, 1)
	if res := vulkan.AllocateCommandBuffers(device, &allocInfo, cmds); res != vulkan.Success {
		return wrapResult("allocate command buffer", res)
	}
	f.cmd = cmds[0]
	return nil
}

func (f *frameSync) Wait(timeout time.Duration) (bool, error) {
	ns := uint64(math.MaxUint64)
	if timeout >= 0 {
		ns = uint64(timeout.Nanoseconds())
	}
	res := vulkan.WaitForFences(f.b.device, 1, []vulkan.Fence{f.fence}, vulkan.True, ns)
	switch res {
	case vulkan.Success:
		return true, nil
	case vulkan.Timeout:
		return false, nil
	default:
		return false, wrapResult("wait for fence", res)
	}
}

func (f *frameSync) IsSignaled() (bool, error) {
	switch res := vulkan.GetFenceStatus(f.b.device, f.fence); res {
	case vulkan.Success:
		return true, nil
	case vulkan.NotReady:
		return false, nil
	default:
		return false, wrapResult("get fence status", res)
	}
}

func (f *frameSync) Reset() error {
	if res := vulkan.ResetFences(f.b.device, 1, []vulkan.Fence{f.fence}); res != vulkan.Success {
		return wrapResult("reset fence", res)
	}
	return nil
}

// Destroy releases the slot. The caller has waited on its fence.
func (f *frameSync) Destroy() {
	device := f.b.device
	f.releaseStaging()
	if f.cmd != nil {
		vulkan.FreeCommandBuffers(device, f.b.commandPool, 1, []vulkan.CommandBuffer{f.cmd})
		f.cmd = nil
	}
	if f.fence != vulkan.Fence(vulkan.NullHandle) {
		vulkan.DestroyFence(device, f.fence, nil)
		f.fence = vulkan.Fence(vulkan.NullHandle)
	}
	if f.renderFinished != vulkan.Semaphore(vulkan.NullHandle) {
		vulkan.DestroySemaphore(device, f.renderFinished, nil)
		f.renderFinished = vulkan.Semaphore(vulkan.NullHandle)
	}
	if f.imageAvailable != vulkan.Semaphore(vulkan.NullHandle) {
		vulkan.DestroySemaphore(device, f.imageAvailable, nil)
		f.imageAvailable = vulkan.Semaphore(vulkan.NullHandle)
	}
}

// ensureStaging grows the staging buffer to at least size bytes. The slot's
// fence has been waited on, so the old buffer is idle.
func (f *frameSync) ensureStaging(size uint64) error {
	if size <= f.stagingSize {
		return nil
	}
	f.releaseStaging()
	buf, mem, err := f.b.createBuffer(vulkan.DeviceSize(size),
		vulkan.BufferUsageFlags(vulkan.BufferUsageTransferSrcBit),
		vulkan.MemoryPropertyHostVisibleBit|vulkan.MemoryPropertyHostCoherentBit)
	if err != nil {
		return fmt.Errorf("create staging buffer: %w", err)
	}
	f.staging, f.stagingMemory, f.stagingSize = buf, mem, size
	return nil
}

func (f *frameSync) releaseStaging() {
	if f.staging != vulkan.Buffer(vulkan.NullHandle) {
		vulkan.DestroyBuffer(f.b.device, f.staging, nil)
		f.staging = vulkan.Buffer(vulkan.NullHandle)
	}
	if f.stagingMemory != vulkan.DeviceMemory(vulkan.NullHandle) {
		vulkan.FreeMemory(f.b.device, f.stagingMemory, nil)
		f.stagingMemory = vulkan.DeviceMemory(vulkan.NullHandle)
	}
	f.stagingSize = 0
}

func (f *frameSync) writeStaging(uploads []upload, size uint64, bgra bool) error {
	var data unsafe.Pointer
	if res := vulkan.MapMemory(f.b.device, f.stagingMemory, 0, vulkan.DeviceSize(size), 0, &data); res != vulkan.Success {
		return wrapResult("map staging buffer", res)
	}
	dst := unsafe.Slice((*byte)(data), size)
	for _, u := range uploads {
		packTexels(dst, u, bgra)
	}
	vulkan.UnmapMemory(f.b.device, f.stagingMemory)
	return nil
}

func (b *Backend) AcquireNextImage(sc gpu.Swapchain, sync gpu.FrameSync) (uint32, gpu.Status, error) {
	s, f, err := b.unwrap(sc, sync)
	if err != nil {
		return 0, gpu.StatusSuccess, err
	}
	var imageIndex uint32
	res := vulkan.AcquireNextImage(b.device, s.handle, vulkan.MaxUint64, f.imageAvailable, vulkan.Fence(vulkan.NullHandle), &imageIndex)
	status, err := swapchainStatus("acquire next image", res)
	return imageIndex, status, err
}

// Submit clears the image to the frame's clear color, copies the GUI
// textures on top and submits, signaling sync's fence on completion.
func (b *Backend) Submit(sc gpu.Swapchain, sync gpu.FrameSync, frame gpu.Frame) error {
	s, f, err := b.unwrap(sc, sync)
	if err != nil {
		return err
	}
	if int(frame.ImageIndex) >= len(s.framebuffers) {
		return fmt.Errorf("vk: image index %d out of range for %d framebuffers", frame.ImageIndex, len(s.framebuffers))
	}

	var uploads []upload
	if s.transferDst {
		var size uint64
		uploads, size = planUploads(frame.Primitives, b.textures, s.props.Extent)
		if size > 0 {
			if err := f.ensureStaging(size); err != nil {
				return err
			}
			if err := f.writeStaging(uploads, size, s.props.Format.Format.IsBGRA()); err != nil {
				return err
			}
		}
	}

	if res := vulkan.ResetCommandBuffer(f.cmd, 0); res != vulkan.Success {
		return wrapResult("reset command buffer", res)
	}
	if err := f.record(s, frame, uploads); err != nil {
		return err
	}

	submitInfo := vulkan.SubmitInfo{
		SType:                vulkan.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   1,
		PWaitSemaphores:      []vulkan.Semaphore{f.imageAvailable},
		PWaitDstStageMask:    []vulkan.PipelineStageFlags{vulkan.PipelineStageFlags(vulkan.PipelineStageColorAttachmentOutputBit)},
		CommandBufferCount:   1,
		PCommandBuffers:      []vulkan.CommandBuffer{f.cmd},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vulkan.Semaphore{f.renderFinished},
	}
	if res := vulkan.QueueSubmit(b.graphicsQueue, 1, []vulkan.SubmitInfo{submitInfo}, f.fence); res != vulkan.Success {
		return wrapResult("queue submit", res)
	}
	return nil
}

func (f *frameSync) record(s *swapchain, frame gpu.Frame, uploads []upload) error {
	cb := f.cmd
	beginInfo := vulkan.CommandBufferBeginInfo{
		SType: vulkan.StructureTypeCommandBufferBeginInfo,
		Flags: vulkan.CommandBufferUsageFlags(vulkan.CommandBufferUsageOneTimeSubmitBit),
	}
	if res := vulkan.BeginCommandBuffer(cb, &beginInfo); res != vulkan.Success {
		return wrapResult("begin command buffer", res)
	}

	clearValues := []vulkan.ClearValue{vulkan.NewClearValue(frame.ClearColor[:])}
	renderPassInfo := vulkan.RenderPassBeginInfo{
		SType:       vulkan.StructureTypeRenderPassBeginInfo,
		RenderPass:  s.renderPass,
		Framebuffer: s.framebuffers[frame.ImageIndex],
		RenderArea: vulkan.Rect2D{
			Offset: vulkan.Offset2D{X: 0, Y: 0},
			Extent: s.extent,
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vulkan.CmdBeginRenderPass(cb, &renderPassInfo, vulkan.SubpassContentsInline)
	vulkan.CmdEndRenderPass(cb)

	if s.transferDst {
		img := s.images[frame.ImageIndex]
		for i, u := range uploads {
			if i > 0 {
				// primitives may overlap, later ones win
				transferBarrier(cb, img, vulkan.ImageLayoutTransferDstOptimal, vulkan.ImageLayoutTransferDstOptimal,
					vulkan.AccessFlags(vulkan.AccessTransferWriteBit), vulkan.AccessFlags(vulkan.AccessTransferWriteBit),
					vulkan.PipelineStageTransferBit, vulkan.PipelineStageTransferBit)
			}
			vulkan.CmdCopyBufferToImage(cb, f.staging, img, vulkan.ImageLayoutTransferDstOptimal,
				1, []vulkan.BufferImageCopy{u.region()})
		}
		transferBarrier(cb, img, vulkan.ImageLayoutTransferDstOptimal, vulkan.ImageLayoutPresentSrc,
			vulkan.AccessFlags(vulkan.AccessTransferWriteBit), 0,
			vulkan.PipelineStageTransferBit, vulkan.PipelineStageBottomOfPipeBit)
	}

	if res := vulkan.EndCommandBuffer(cb); res != vulkan.Success {
		return wrapResult("end command buffer", res)
	}
	return nil
}

func transferBarrier(cb vulkan.CommandBuffer, img vulkan.Image, oldLayout, newLayout vulkan.ImageLayout,
	srcAccess, dstAccess vulkan.AccessFlags, srcStage, dstStage vulkan.PipelineStageFlagBits) {
	barrier := vulkan.ImageMemoryBarrier{
		SType:               vulkan.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       srcAccess,
		DstAccessMask:       dstAccess,
		OldLayout:           oldLayout,
		NewLayout:           newLayout,
		SrcQueueFamilyIndex: vulkan.QueueFamilyIgnored,
		DstQueueFamilyIndex: vulkan.QueueFamilyIgnored,
		Image:               img,
		SubresourceRange:    colorSubresourceRange(),
	}
	vulkan.CmdPipelineBarrier(cb,
		vulkan.PipelineStageFlags(srcStage), vulkan.PipelineStageFlags(dstStage), 0,
		0, nil, 0, nil, 1, []vulkan.ImageMemoryBarrier{barrier})
}

func (b *Backend) Present(sc gpu.Swapchain, sync gpu.FrameSync, imageIndex uint32) (gpu.Status, error) {
	s, f, err := b.unwrap(sc, sync)
	if err != nil {
		return gpu.StatusSuccess, err
	}
	presentInfo := vulkan.PresentInfo{
		SType:              vulkan.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vulkan.Semaphore{f.renderFinished},
		SwapchainCount:     1,
		PSwapchains:        []vulkan.Swapchain{s.handle},
		PImageIndices:      []uint32{imageIndex},
	}
	return swapchainStatus("queue present", vulkan.QueuePresent(b.presentQueue, &presentInfo))
}

var errNoMemoryType = errors.New("vk: no suitable memory type")

func (b *Backend) createBuffer(size vulkan.DeviceSize, usage vulkan.BufferUsageFlags, properties vulkan.MemoryPropertyFlagBits) (vulkan.Buffer, vulkan.DeviceMemory, error) {
	bufferInfo := vulkan.BufferCreateInfo{
		SType:       vulkan.StructureTypeBufferCreateInfo,
		Size:        size,
		Usage:       usage,
		SharingMode: vulkan.SharingModeExclusive,
	}
	var buffer vulkan.Buffer
	if res := vulkan.CreateBuffer(b.device, &bufferInfo, nil, &buffer); res != vulkan.Success {
		return vulkan.Buffer(vulkan.NullHandle), vulkan.DeviceMemory(vulkan.NullHandle), wrapResult("create buffer", res)
	}
	var memReq vulkan.MemoryRequirements
	vulkan.GetBufferMemoryRequirements(b.device, buffer, &memReq)
	memReq.Deref()

	typeIndex, ok := b.findMemoryType(memReq.MemoryTypeBits, properties)
	if !ok {
		vulkan.DestroyBuffer(b.device, buffer, nil)
		return vulkan.Buffer(vulkan.NullHandle), vulkan.DeviceMemory(vulkan.NullHandle), errNoMemoryType
	}
	allocInfo := vulkan.MemoryAllocateInfo{
		SType:           vulkan.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memReq.Size,
		MemoryTypeIndex: typeIndex,
	}
	var memory vulkan.DeviceMemory
	if res := vulkan.AllocateMemory(b.device, &allocInfo, nil, &memory); res != vulkan.Success {
		vulkan.DestroyBuffer(b.device, buffer, nil)
		return vulkan.Buffer(vulkan.NullHandle), vulkan.DeviceMemory(vulkan.NullHandle), wrapResult("allocate buffer memory", res)
	}
	if res := vulkan.BindBufferMemory(b.device, buffer, memory, 0); res != vulkan.Success {
		vulkan.DestroyBuffer(b.device, buffer, nil)
		vulkan.FreeMemory(b.device, memory, nil)
		return vulkan.Buffer(vulkan.NullHandle), vulkan.DeviceMemory(vulkan.NullHandle), wrapResult("bind buffer memory", res)
	}
	return buffer, memory, nil
}

func (b *Backend) findMemoryType(typeFilter uint32, properties vulkan.MemoryPropertyFlagBits) (uint32, bool) {
	var memProps vulkan.PhysicalDeviceMemoryProperties
	vulkan.GetPhysicalDeviceMemoryProperties(b.physicalDevice, &memProps)
	memProps.Deref()

	want := vulkan.MemoryPropertyFlags(properties)
	for i := uint32(0); i < memProps.MemoryTypeCount; i++ {
		memoryType := memProps.MemoryTypes[i]
		memoryType.Deref()
		if typeFilter&(1<<i) != 0 && memoryType.PropertyFlags&want == want {
			return i, true
		}
	}
	return 0, false
}
