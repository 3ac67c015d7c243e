// Package driver defines the graphics-API boundary that the resource
// manager coordinates. It mirrors Vulkan's object model but stays
// implementation-neutral so that backends can be swapped: the vkdriver
// package implements it against real Vulkan, and drivertest implements
// it in memory for tests.
//
// Ownership rule: every object returned by these interfaces is owned by
// the caller and must be released through its Destroy method (or the
// owning API's Close). Implementations must tolerate Destroy being
// called at most once per object.
package driver

// API is the entry point of a graphics backend. An API is opened once
// per process by the resource manager and closed at shutdown.
type API interface {
	// Adapters enumerates the physical adapters installed on the host.
	// The returned slice is stable for the lifetime of the API.
	Adapters() ([]Adapter, error)

	// CreateSurface builds a presentation surface for a native window
	// handle using the given UI protocol.
	CreateSurface(handle WindowHandle, protocol Protocol) (Surface, error)

	// Close releases the backend. All devices and surfaces created
	// through the API must be destroyed beforehand.
	Close()
}

// Adapter is a physical GPU queried for capabilities. Adapters are
// enumerated, never created, and have no Destroy.
type Adapter interface {
	// Name returns the driver-reported adapter name.
	Name() string

	// SamplerAnisotropy reports whether the adapter supports
	// anisotropic sampling.
	SamplerAnisotropy() bool

	// HasExtensions reports whether every named device extension is
	// available on this adapter.
	HasExtensions(names []string) bool

	// QueueFamilies describes the adapter's queue families, including
	// per-surface presentation capability.
	QueueFamilies(s Surface) ([]QueueFamily, error)

	// SurfaceSupport queries capabilities, formats and present modes
	// for the given surface.
	SurfaceSupport(s Surface) (SurfaceSupport, error)

	// CreateDevice creates a logical device with one queue per listed
	// queue family.
	CreateDevice(cfg DeviceConfig) (Device, error)
}

// Surface is a native presentation surface bound to a window.
type Surface interface {
	// DrawableSize reports the window's current drawable size in
	// pixels. Used when surface capabilities leave the extent
	// undefined.
	DrawableSize() (width, height int)

	Destroy()
}

// Device is a logical device created against one adapter.
type Device interface {
	// Queue returns the device queue created for the given family.
	// The family must have been listed in the DeviceConfig.
	Queue(family int) Queue

	CreateCommandPool(family int) (CommandPool, error)
	CreateSwapchain(s Surface, cfg SwapchainConfig) (Swapchain, error)
	CreateImageView(img Image, format Format) (ImageView, error)
	CreateRenderPass(format Format) (RenderPass, error)
	CreateFramebuffer(rp RenderPass, view ImageView, extent Extent2D) (Framebuffer, error)
	CreateShaderModule(code []byte) (ShaderModule, error)
	CreatePipelineLayout() (PipelineLayout, error)
	CreateGraphicsPipeline(cfg PipelineConfig) (Pipeline, error)
	CreateSemaphore() (Semaphore, error)
	CreateFence(signaled bool) (Fence, error)
	CreateBuffer(size int, usage BufferUsage, props MemoryProps) (Buffer, error)

	// WaitForFence blocks until the fence is signaled. There is no
	// timeout beyond the backend's unbounded maximum.
	WaitForFence(f Fence) error

	// ResetFence returns the fence to the unsignaled state.
	ResetFence(f Fence) error

	// WaitIdle blocks until all queues of the device are idle.
	WaitIdle() error

	// Destroy releases the device. All objects created from it must
	// be destroyed beforehand.
	Destroy()
}

// Queue is a device queue accepting command submission and presentation.
type Queue interface {
	// Submit enqueues command buffers for execution.
	Submit(info SubmitInfo) error

	// Present presents an acquired swapchain image. Returns
	// ErrSwapchainOutOfDate or ErrSuboptimal when the swapchain no
	// longer matches the surface.
	Present(sc Swapchain, imageIndex int, wait Semaphore) error

	// WaitIdle blocks until the queue drains.
	WaitIdle() error
}

// SubmitInfo describes one queue submission.
type SubmitInfo struct {
	// Wait, if non-nil, is waited on at WaitStage before execution.
	Wait      Semaphore
	WaitStage PipelineStage

	Commands []CommandBuffer

	// Signal, if non-nil, is signaled when execution completes.
	Signal Semaphore

	// Fence, if non-nil, is signaled when execution completes.
	Fence Fence
}
