package vkdriver

import (
	"sync"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/aldhinn/celerique/driver"
)

type swapchain struct {
	dev       *device
	swapchain khr_swapchain.Swapchain
	images    []driver.Image
}

func (s *swapchain) Images() []driver.Image {
	return s.images
}

func (s *swapchain) Acquire(imageAvailable driver.Semaphore) (int, error) {
	sem, ok := imageAvailable.(*semaphore)
	if !ok {
		return 0, errors.New("vkdriver: semaphore belongs to another backend")
	}
	imageIndex, res, err := s.dev.swapExt.AcquireNextImage(s.swapchain, common.NoTimeout, &sem.semaphore, nil)
	if res == khr_swapchain.VKErrorOutOfDate {
		return 0, driver.ErrSwapchainOutOfDate
	}
	if err != nil {
		return 0, errors.Wrap(err, "vkdriver: acquiring swapchain image")
	}
	return imageIndex, nil
}

func (s *swapchain) Destroy() {
	s.dev.swapExt.DestroySwapchain(s.swapchain, nil)
}

type image struct {
	image core1_0.Image
}

type imageView struct {
	dev  *device
	view core1_0.ImageView
}

func (v *imageView) Destroy() {
	v.dev.driver.DestroyImageView(v.view, nil)
}

type renderPass struct {
	dev        *device
	renderPass core1_0.RenderPass
}

func (r *renderPass) Destroy() {
	r.dev.driver.DestroyRenderPass(r.renderPass, nil)
}

type framebuffer struct {
	dev         *device
	framebuffer core1_0.Framebuffer
}

func (f *framebuffer) Destroy() {
	f.dev.driver.DestroyFramebuffer(f.framebuffer, nil)
}

type shaderModule struct {
	dev    *device
	module core1_0.ShaderModule
}

func (m *shaderModule) Destroy() {
	m.dev.driver.DestroyShaderModule(m.module, nil)
}

type pipelineLayout struct {
	dev    *device
	layout core1_0.PipelineLayout
}

func (l *pipelineLayout) Destroy() {
	l.dev.driver.DestroyPipelineLayout(l.layout, nil)
}

type pipeline struct {
	dev      *device
	pipeline core1_0.Pipeline
}

func (p *pipeline) Destroy() {
	p.dev.driver.DestroyPipeline(p.pipeline, nil)
}

type semaphore struct {
	dev       *device
	semaphore core1_0.Semaphore
}

func (s *semaphore) Destroy() {
	s.dev.driver.DestroySemaphore(s.semaphore, nil)
}

type fence struct {
	dev   *device
	fence core1_0.Fence
}

func (f *fence) Destroy() {
	f.dev.driver.DestroyFence(f.fence, nil)
}

type buffer struct {
	dev         *device
	buffer      core1_0.Buffer
	memory      core1_0.DeviceMemory
	size        int
	hostVisible bool
}

func (b *buffer) Size() int {
	return b.size
}

func (b *buffer) Write(offset int, data []byte) error {
	if !b.hostVisible {
		return driver.ErrHostVisibleRequired
	}
	if offset+len(data) > b.size {
		return errors.Newf("vkdriver: write of %d bytes at %d exceeds buffer size %d",
			len(data), offset, b.size)
	}

	memoryPtr, _, err := b.dev.driver.MapMemory(b.memory, offset, len(data), 0)
	if err != nil {
		return errors.Wrap(err, "vkdriver: mapping buffer memory")
	}
	defer b.dev.driver.UnmapMemory(b.memory)

	copy(unsafe.Slice((*byte)(memoryPtr), len(data)), data)
	return nil
}

func (b *buffer) Destroy() {
	b.dev.driver.DestroyBuffer(b.buffer, nil)
	b.dev.driver.FreeMemory(b.memory, nil)
}

// queue wraps one device queue. Vulkan queues are externally
// synchronized, so every submission and presentation holds the
// family's mutex.
type queue struct {
	dev    *device
	family int
	queue  core1_0.Queue
	mu     *sync.Mutex
}

func (q *queue) Submit(info driver.SubmitInfo) error {
	var submit core1_0.SubmitInfo
	if info.Wait != nil {
		sem, ok := info.Wait.(*semaphore)
		if !ok {
			return errors.New("vkdriver: wait semaphore belongs to another backend")
		}
		submit.WaitSemaphores = []core1_0.Semaphore{sem.semaphore}
		submit.WaitDstStageMask = []core1_0.PipelineStageFlags{toVkPipelineStage(info.WaitStage)}
	}
	if info.Signal != nil {
		sem, ok := info.Signal.(*semaphore)
		if !ok {
			return errors.New("vkdriver: signal semaphore belongs to another backend")
		}
		submit.SignalSemaphores = []core1_0.Semaphore{sem.semaphore}
	}
	for _, cb := range info.Commands {
		vkCB, ok := cb.(*commandBuffer)
		if !ok {
			return errors.New("vkdriver: command buffer belongs to another backend")
		}
		submit.CommandBuffers = append(submit.CommandBuffers, vkCB.buffer)
	}

	var fencePtr *core1_0.Fence
	if info.Fence != nil {
		fn, ok := info.Fence.(*fence)
		if !ok {
			return errors.New("vkdriver: fence belongs to another backend")
		}
		fencePtr = &fn.fence
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if _, err := q.dev.driver.QueueSubmit(q.queue, fencePtr, submit); err != nil {
		return errors.Wrapf(err, "vkdriver: submitting to queue family %d", q.family)
	}
	return nil
}

func (q *queue) Present(sc driver.Swapchain, imageIndex int, wait driver.Semaphore) error {
	vkSC, ok := sc.(*swapchain)
	if !ok {
		return errors.New("vkdriver: swapchain belongs to another backend")
	}

	presentInfo := khr_swapchain.PresentInfo{
		Swapchains:   []khr_swapchain.Swapchain{vkSC.swapchain},
		ImageIndices: []int{imageIndex},
	}
	if wait != nil {
		sem, ok := wait.(*semaphore)
		if !ok {
			return errors.New("vkdriver: wait semaphore belongs to another backend")
		}
		presentInfo.WaitSemaphores = []core1_0.Semaphore{sem.semaphore}
	}

	q.mu.Lock()
	res, err := q.dev.swapExt.QueuePresent(q.queue, presentInfo)
	q.mu.Unlock()

	switch res {
	case khr_swapchain.VKErrorOutOfDate:
		return driver.ErrSwapchainOutOfDate
	case khr_swapchain.VKSuboptimal:
		return driver.ErrSuboptimal
	}
	if err != nil {
		return errors.Wrap(err, "vkdriver: presenting swapchain image")
	}
	return nil
}

func (q *queue) WaitIdle() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, err := q.dev.driver.QueueWaitIdle(q.queue); err != nil {
		return errors.Wrapf(err, "vkdriver: waiting for queue family %d", q.family)
	}
	return nil
}
