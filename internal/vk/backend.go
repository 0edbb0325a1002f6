// Package vk implements gpu.Backend on Vulkan through vulkan-go, presenting
// to a GLFW window surface.
package vk

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"unsafe"

	"github.com/vulkan-go/glfw/v3.3/glfw"
	"github.com/vulkan-go/vulkan"

	"github.com/dave-is-dave/Goshenite/internal/config"
	"github.com/dave-is-dave/Goshenite/internal/gpu"
	"github.com/dave-is-dave/Goshenite/internal/gui"
	"github.com/dave-is-dave/Goshenite/internal/logging"
)

var (
	validationLayers = []string{"VK_LAYER_KHRONOS_validation\x00"}
	deviceExtensions = []string{"VK_KHR_swapchain\x00"}
)

var ErrNoSuitableDevice = errors.New("vk: no suitable GPU found")

type queueFamilyIndices struct {
	graphicsFamily uint32
	presentFamily  uint32
	hasGraphics    bool
	hasPresent     bool
}

func (q queueFamilyIndices) complete() bool { return q.hasGraphics && q.hasPresent }

// Backend owns the Vulkan instance, the window surface and the logical
// device. Apart from construction, all methods must be called from one
// thread at a time.
type Backend struct {
	cfg    config.Renderer
	log    *slog.Logger
	window *glfw.Window

	instance       vulkan.Instance
	debugCallback  vulkan.DebugReportCallback
	surface        vulkan.Surface
	physicalDevice vulkan.PhysicalDevice
	deviceName     string
	device         vulkan.Device
	graphicsQueue  vulkan.Queue
	presentQueue   vulkan.Queue
	queues         queueFamilyIndices
	commandPool    vulkan.CommandPool

	// supportedUsage is refreshed by every capabilities query.
	supportedUsage vulkan.ImageUsageFlags

	textures map[gui.TextureID]*image.RGBA
}

var _ gpu.Backend = (*Backend)(nil)

// NewBackend initializes Vulkan for win. On failure everything created so
// far is destroyed.
func NewBackend(win *glfw.Window, cfg config.Renderer, logger *slog.Logger) (*Backend, error) {
	b := &Backend{
		cfg:      cfg,
		log:      logging.OrNop(logger),
		window:   win,
		textures: make(map[gui.TextureID]*image.RGBA),
	}
	if err := b.init(); err != nil {
		b.Destroy()
		return nil, err
	}
	b.log.Info("vulkan backend ready",
		"device", b.deviceName,
		"graphics_family", b.queues.graphicsFamily,
		"present_family", b.queues.presentFamily,
		"validation", cfg.EnableValidation)
	return b, nil
}

func (b *Backend) init() error {
	vulkan.SetGetInstanceProcAddr(glfw.GetVulkanGetInstanceProcAddress())
	if err := vulkan.Init(); err != nil {
		return fmt.Errorf("vulkan init: %w", err)
	}
	if err := b.createInstance(); err != nil {
		return err
	}
	if err := vulkan.InitInstance(b.instance); err != nil {
		return fmt.Errorf("vkInitInstance: %w", err)
	}
	if err := b.setupDebugCallback(); err != nil {
		return err
	}
	if err := b.createSurface(); err != nil {
		return err
	}
	if err := b.pickPhysicalDevice(); err != nil {
		return err
	}
	if err := b.createLogicalDevice(); err != nil {
		return err
	}
	return b.createCommandPool()
}

func (b *Backend) createInstance() error {
	if b.cfg.EnableValidation && !validationLayersSupported() {
		b.log.Warn("validation layers requested but not available, continuing without them")
		b.cfg.EnableValidation = false
	}
	if !glfw.VulkanSupported() {
		return errors.New("GLFW Vulkan loader not found")
	}

	appInfo := vulkan.ApplicationInfo{
		SType:              vulkan.StructureTypeApplicationInfo,
		PApplicationName:   "Goshenite\x00",
		ApplicationVersion: vulkan.MakeVersion(0, 1, 0),
		PEngineName:        "Goshenite\x00",
		EngineVersion:      vulkan.MakeVersion(0, 1, 0),
		ApiVersion:         vulkan.MakeVersion(1, 1, 0),
	}

	extensions := b.window.GetRequiredInstanceExtensions()
	if b.cfg.EnableValidation {
		extensions = append(extensions, "VK_EXT_debug_report\x00")
	}

	createInfo := vulkan.InstanceCreateInfo{
		SType:                   vulkan.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
	}
	if b.cfg.EnableValidation {
		createInfo.EnabledLayerCount = uint32(len(validationLayers))
		createInfo.PpEnabledLayerNames = validationLayers
	}

	if res := vulkan.CreateInstance(&createInfo, nil, &b.instance); res != vulkan.Success {
		return fmt.Errorf("create instance: %w", vulkan.Error(res))
	}
	return nil
}

func validationLayersSupported() bool {
	var count uint32
	if vulkan.EnumerateInstanceLayerProperties(&count, nil) != vulkan.Success {
		return false
	}
	props := make([]vulkan.LayerProperties, count)
	if vulkan.EnumerateInstanceLayerProperties(&count, props) != vulkan.Success {
		return false
	}
	supported := make(map[string]bool)
	for i := range props {
		props[i].Deref()
		supported[vulkan.ToString(props[i].LayerName[:])] = true
	}
	for _, l := range validationLayers {
		if !supported[trimNul(l)] {
			return false
		}
	}
	return true
}

// setupDebugCallback routes validation messages to the process logger: the
// callback may fire on any thread that calls into Vulkan.
func (b *Backend) setupDebugCallback() error {
	if !b.cfg.EnableValidation {
		return nil
	}
	createInfo := vulkan.DebugReportCallbackCreateInfo{
		SType: vulkan.StructureTypeDebugReportCallbackCreateInfo,
		Flags: vulkan.DebugReportFlags(
			vulkan.DebugReportErrorBit |
				vulkan.DebugReportWarningBit |
				vulkan.DebugReportPerformanceWarningBit),
		PfnCallback: func(flags vulkan.DebugReportFlags, objectType vulkan.DebugReportObjectType, object uint64, location uint, messageCode int32, layerPrefix string, message string, userData unsafe.Pointer) vulkan.Bool32 {
			level := slog.LevelWarn
			if flags&vulkan.DebugReportFlags(vulkan.DebugReportErrorBit) != 0 {
				level = slog.LevelError
			}
			logging.Default().Log(context.Background(), level, "vulkan validation",
				"layer", layerPrefix, "code", messageCode, "msg", message)
			return vulkan.False
		},
	}
	if res := vulkan.CreateDebugReportCallback(b.instance, &createInfo, nil, &b.debugCallback); res != vulkan.Success {
		return fmt.Errorf("create debug callback: %w", vulkan.Error(res))
	}
	return nil
}

func (b *Backend) createSurface() error {
	surfacePtr, err := b.window.CreateWindowSurface(b.instance, nil)
	if err != nil {
		return fmt.Errorf("create window surface: %w", err)
	}
	b.surface = vulkan.SurfaceFromPointer(surfacePtr)
	return nil
}

func (b *Backend) pickPhysicalDevice() error {
	var count uint32
	if res := vulkan.EnumeratePhysicalDevices(b.instance, &count, nil); res != vulkan.Success {
		return fmt.Errorf("enumerate physical devices: %w", vulkan.Error(res))
	}
	if count == 0 {
		return ErrNoSuitableDevice
	}
	devices := make([]vulkan.PhysicalDevice, count)
	if res := vulkan.EnumeratePhysicalDevices(b.instance, &count, devices); res != vulkan.Success {
		return fmt.Errorf("enumerate physical devices list: %w", vulkan.Error(res))
	}

	bestScore := int32(-1)
	for _, dev := range devices {
		q := b.findQueueFamilies(dev)
		if !q.complete() || !deviceExtensionsSupported(dev) {
			continue
		}
		formats, _ := b.surfaceFormats(dev)
		modes, _ := b.presentModes(dev)
		if len(formats) == 0 || len(modes) == 0 {
			continue
		}
		score, name := deviceScore(dev)
		b.log.Debug("candidate device", "device", name, "score", score)
		if score > bestScore {
			bestScore = score
			b.physicalDevice = dev
			b.deviceName = name
			b.queues = q
		}
	}
	if bestScore < 0 {
		return ErrNoSuitableDevice
	}
	return nil
}

func deviceScore(device vulkan.PhysicalDevice) (int32, string) {
	var props vulkan.PhysicalDeviceProperties
	vulkan.GetPhysicalDeviceProperties(device, &props)
	props.Deref()
	name := vulkan.ToString(props.DeviceName[:])

	switch props.DeviceType {
	case vulkan.PhysicalDeviceTypeDiscreteGpu:
		return 1000, name
	case vulkan.PhysicalDeviceTypeIntegratedGpu:
		return 500, name
	default:
		return 100, name
	}
}

func deviceExtensionsSupported(device vulkan.PhysicalDevice) bool {
	var count uint32
	if res := vulkan.EnumerateDeviceExtensionProperties(device, "", &count, nil); res != vulkan.Success {
		return false
	}
	props := make([]vulkan.ExtensionProperties, count)
	if res := vulkan.EnumerateDeviceExtensionProperties(device, "", &count, props); res != vulkan.Success {
		return false
	}
	supported := make(map[string]bool)
	for i := range props {
		props[i].Deref()
		supported[vulkan.ToString(props[i].ExtensionName[:])] = true
	}
	for _, ext := range deviceExtensions {
		if !supported[trimNul(ext)] {
			return false
		}
	}
	return true
}

// findQueueFamilies prefers a single family that does both graphics and
// present.
func (b *Backend) findQueueFamilies(device vulkan.PhysicalDevice) queueFamilyIndices {
	var count uint32
	vulkan.GetPhysicalDeviceQueueFamilyProperties(device, &count, nil)
	props := make([]vulkan.QueueFamilyProperties, count)
	vulkan.GetPhysicalDeviceQueueFamilyProperties(device, &count, props)

	var indices queueFamilyIndices
	for i := range props {
		props[i].Deref()
		graphics := props[i].QueueFlags&vulkan.QueueFlags(vulkan.QueueGraphicsBit) != 0
		var present vulkan.Bool32
		vulkan.GetPhysicalDeviceSurfaceSupport(device, uint32(i), b.surface, &present)

		if graphics && present == vulkan.True {
			return queueFamilyIndices{
				graphicsFamily: uint32(i), presentFamily: uint32(i),
				hasGraphics: true, hasPresent: true,
			}
		}
		if graphics && !indices.hasGraphics {
			indices.graphicsFamily = uint32(i)
			indices.hasGraphics = true
		}
		if present == vulkan.True && !indices.hasPresent {
			indices.presentFamily = uint32(i)
			indices.hasPresent = true
		}
	}
	return indices
}

func (b *Backend) createLogicalDevice() error {
	families := []uint32{b.queues.graphicsFamily}
	if b.queues.presentFamily != b.queues.graphicsFamily {
		families = append(families, b.queues.presentFamily)
	}
	queueInfos := make([]vulkan.DeviceQueueCreateInfo, 0, len(families))
	for _, family := range families {
		queueInfos = append(queueInfos, vulkan.DeviceQueueCreateInfo{
			SType:            vulkan.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		})
	}

	createInfo := vulkan.DeviceCreateInfo{
		SType:                   vulkan.StructureTypeDeviceCreateInfo,
		PQueueCreateInfos:       queueInfos,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PEnabledFeatures:        []vulkan.PhysicalDeviceFeatures{{}},
		PpEnabledExtensionNames: deviceExtensions,
		EnabledExtensionCount:   uint32(len(deviceExtensions)),
	}
	if b.cfg.EnableValidation {
		createInfo.EnabledLayerCount = uint32(len(validationLayers))
		createInfo.PpEnabledLayerNames = validationLayers
	}

	var device vulkan.Device
	if res := vulkan.CreateDevice(b.physicalDevice, &createInfo, nil, &device); res != vulkan.Success {
		return fmt.Errorf("create logical device: %w", vulkan.Error(res))
	}
	b.device = device

	vulkan.GetDeviceQueue(b.device, b.queues.graphicsFamily, 0, &b.graphicsQueue)
	vulkan.GetDeviceQueue(b.device, b.queues.presentFamily, 0, &b.presentQueue)
	return nil
}

func (b *Backend) createCommandPool() error {
	poolInfo := vulkan.CommandPoolCreateInfo{
		SType:            vulkan.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: b.queues.graphicsFamily,
		Flags:            vulkan.CommandPoolCreateFlags(vulkan.CommandPoolCreateResetCommandBufferBit),
	}
	if res := vulkan.CreateCommandPool(b.device, &poolInfo, nil, &b.commandPool); res != vulkan.Success {
		return fmt.Errorf("create command pool: %w", vulkan.Error(res))
	}
	return nil
}

// UpdateTextures keeps GUI textures host side; Submit copies them into the
// swapchain image of every frame that draws them.
func (b *Backend) UpdateTextures(delta gui.TexturesDelta) error {
	for _, set := range delta.Set {
		if set.Image == nil {
			return fmt.Errorf("vk: texture %d has no image", set.ID)
		}
		b.textures[set.ID] = set.Image
	}
	for _, id := range delta.Free {
		delete(b.textures, id)
	}
	return nil
}

func (b *Backend) WaitIdle() error {
	if b.device == vulkan.Device(vulkan.NullHandle) {
		return nil
	}
	if res := vulkan.DeviceWaitIdle(b.device); res != vulkan.Success {
		return wrapResult("device wait idle", res)
	}
	return nil
}

// Destroy releases the device-level objects. Swapchains and frame syncs
// must be destroyed first.
func (b *Backend) Destroy() {
	if b.device != vulkan.Device(vulkan.NullHandle) {
		vulkan.DeviceWaitIdle(b.device)
		if b.commandPool != vulkan.CommandPool(vulkan.NullHandle) {
			vulkan.DestroyCommandPool(b.device, b.commandPool, nil)
			b.commandPool = vulkan.CommandPool(vulkan.NullHandle)
		}
		vulkan.DestroyDevice(b.device, nil)
		b.device = vulkan.Device(vulkan.NullHandle)
	}
	if b.debugCallback != vulkan.DebugReportCallback(vulkan.NullHandle) {
		vulkan.DestroyDebugReportCallback(b.instance, b.debugCallback, nil)
		b.debugCallback = vulkan.DebugReportCallback(vulkan.NullHandle)
	}
	if b.surface != vulkan.Surface(vulkan.NullHandle) {
		vulkan.DestroySurface(b.instance, b.surface, nil)
		b.surface = vulkan.Surface(vulkan.NullHandle)
	}
	if b.instance != vulkan.Instance(vulkan.NullHandle) {
		vulkan.DestroyInstance(b.instance, nil)
		b.instance = vulkan.Instance(vulkan.NullHandle)
	}
	clear(b.textures)
}

// wrapResult maps the results every entry point treats alike onto the gpu
// sentinel errors.
func wrapResult(op string, res vulkan.Result) error {
	switch res {
	case vulkan.ErrorDeviceLost:
		return fmt.Errorf("%s: %w", op, gpu.ErrDeviceLost)
	case vulkan.ErrorSurfaceLost:
		return fmt.Errorf("%s: %w", op, gpu.ErrSurfaceLost)
	default:
		return fmt.Errorf("%s: %w", op, vulkan.Error(res))
	}
}

func trimNul(s string) string {
	if n := len(s); n > 0 && s[n-1] == 0 {
		return s[:n-1]
	}
	return s
}
