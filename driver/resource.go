package driver

// Swapchain is the ring of presentable images for one surface.
type Swapchain interface {
	// Images returns the presentable images, in index order. The
	// slice is stable until Destroy.
	Images() []Image

	// Acquire blocks until the next presentable image is available
	// and returns its index. The semaphore is signaled when the image
	// is actually ready for rendering. Returns ErrSwapchainOutOfDate
	// when the swapchain no longer matches the surface.
	Acquire(imageAvailable Semaphore) (imageIndex int, err error)

	Destroy()
}

// Image is a presentable image owned by a swapchain. It is opaque to
// the manager and only ever handed back to the device that produced
// it. Images are not destroyed individually; they go away with their
// swapchain.
type Image interface{}

// ImageView is a view over a swapchain image.
type ImageView interface {
	Destroy()
}

// RenderPass describes attachment usage across a frame.
type RenderPass interface {
	Destroy()
}

// Framebuffer binds one image view to a render pass.
type Framebuffer interface {
	Destroy()
}

// ShaderModule wraps one stage's compiled bytecode.
type ShaderModule interface {
	Destroy()
}

// PipelineLayout is the resource-binding layout of a pipeline.
type PipelineLayout interface {
	Destroy()
}

// Pipeline is a compiled, bound graphics program.
type Pipeline interface {
	Destroy()
}

// Semaphore is a GPU-GPU synchronization primitive.
type Semaphore interface {
	Destroy()
}

// Fence is a GPU-CPU synchronization primitive.
type Fence interface {
	Destroy()
}

// Buffer is a GPU buffer together with its backing memory. Destroy
// releases the buffer and the memory as one unit, so a live Buffer
// always has live memory and a destroyed Buffer has neither.
type Buffer interface {
	// Size returns the buffer's capacity in bytes.
	Size() int

	// Write copies data into the buffer at the given byte offset.
	// Only valid for host-visible buffers; device-local buffers
	// return ErrHostVisibleRequired.
	Write(offset int, data []byte) error

	Destroy()
}

// CommandPool allocates command buffers for one queue family.
type CommandPool interface {
	// Allocate returns count primary command buffers.
	Allocate(count int) ([]CommandBuffer, error)

	// Free returns command buffers to the pool.
	Free(buffers ...CommandBuffer)

	// Destroy releases the pool and every buffer still allocated
	// from it.
	Destroy()
}

// CommandBuffer records GPU commands. Recording methods may only be
// called between Begin and End; implementations may defer validation
// of that ordering to submission time.
type CommandBuffer interface {
	Begin(oneTime bool) error
	End() error
	Reset() error

	// SetViewportScissor sets the dynamic viewport and scissor to
	// cover the given extent.
	SetViewportScissor(extent Extent2D)

	BeginRenderPass(rp RenderPass, fb Framebuffer, extent Extent2D, clear [4]float32)
	EndRenderPass()

	BindPipeline(p Pipeline)
	BindVertexBuffer(b Buffer, offset int)
	BindIndexBuffer(b Buffer, offset int)

	Draw(vertexCount int)
	DrawIndexed(indexCount int)

	// CopyBuffer records a size-byte copy from src to dst.
	CopyBuffer(src, dst Buffer, size int)
}
