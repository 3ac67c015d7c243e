package drivertest

import (
	"github.com/cockroachdb/errors"

	"github.com/aldhinn/celerique/driver"
)

type device struct {
	c      *core
	id     uint64
	queues map[int]*queue
}

func (d *device) Queue(family int) driver.Queue {
	q, ok := d.queues[family]
	if !ok {
		// Matches real backends, where fetching a queue that was
		// never requested is a usage error, not a recoverable one.
		panic(errors.Newf("drivertest: queue family %d was not requested at device creation", family))
	}
	return q
}

func (d *device) CreateCommandPool(family int) (driver.CommandPool, error) {
	d.c.mu.Lock()
	defer d.c.mu.Unlock()
	if err := d.c.fault("CreateCommandPool"); err != nil {
		return nil, err
	}
	p := &commandPool{c: d.c, id: d.c.id(), family: family}
	d.c.record("CreateCommandPool#%d family=%d", p.id, family)
	return p, nil
}

func (d *device) CreateSwapchain(s driver.Surface, cfg driver.SwapchainConfig) (driver.Swapchain, error) {
	d.c.mu.Lock()
	defer d.c.mu.Unlock()
	if err := d.c.fault("CreateSwapchain"); err != nil {
		return nil, err
	}
	sf := s.(*surface)
	sc := &swapchain{c: d.c, id: d.c.id(), surf: sf, extent: cfg.Extent}
	for i := 0; i < cfg.ImageCount; i++ {
		sc.images = append(sc.images, &image{id: d.c.id()})
	}
	d.c.record("CreateSwapchain#%d surface=#%d images=%d extent=%dx%d mode=%s",
		sc.id, sf.id, cfg.ImageCount, cfg.Extent.Width, cfg.Extent.Height, cfg.PresentMode)
	return sc, nil
}

func (d *device) CreateImageView(img driver.Image, format driver.Format) (driver.ImageView, error) {
	d.c.mu.Lock()
	defer d.c.mu.Unlock()
	if err := d.c.fault("CreateImageView"); err != nil {
		return nil, err
	}
	v := &handleResource{c: d.c, id: d.c.id(), kind: "ImageView"}
	d.c.record("CreateImageView#%d image=#%d", v.id, img.(*image).id)
	return v, nil
}

func (d *device) CreateRenderPass(format driver.Format) (driver.RenderPass, error) {
	d.c.mu.Lock()
	defer d.c.mu.Unlock()
	if err := d.c.fault("CreateRenderPass"); err != nil {
		return nil, err
	}
	rp := &handleResource{c: d.c, id: d.c.id(), kind: "RenderPass"}
	d.c.record("CreateRenderPass#%d format=%d", rp.id, format)
	return rp, nil
}

func (d *device) CreateFramebuffer(rp driver.RenderPass, view driver.ImageView, extent driver.Extent2D) (driver.Framebuffer, error) {
	d.c.mu.Lock()
	defer d.c.mu.Unlock()
	if err := d.c.fault("CreateFramebuffer"); err != nil {
		return nil, err
	}
	fb := &handleResource{c: d.c, id: d.c.id(), kind: "Framebuffer"}
	d.c.record("CreateFramebuffer#%d view=#%d", fb.id, view.(*handleResource).id)
	return fb, nil
}

func (d *device) CreateShaderModule(code []byte) (driver.ShaderModule, error) {
	d.c.mu.Lock()
	defer d.c.mu.Unlock()
	if err := d.c.fault("CreateShaderModule"); err != nil {
		return nil, err
	}
	m := &handleResource{c: d.c, id: d.c.id(), kind: "ShaderModule"}
	d.c.record("CreateShaderModule#%d bytes=%d", m.id, len(code))
	return m, nil
}

func (d *device) CreatePipelineLayout() (driver.PipelineLayout, error) {
	d.c.mu.Lock()
	defer d.c.mu.Unlock()
	if err := d.c.fault("CreatePipelineLayout"); err != nil {
		return nil, err
	}
	l := &handleResource{c: d.c, id: d.c.id(), kind: "PipelineLayout"}
	d.c.record("CreatePipelineLayout#%d", l.id)
	return l, nil
}

func (d *device) CreateGraphicsPipeline(cfg driver.PipelineConfig) (driver.Pipeline, error) {
	d.c.mu.Lock()
	defer d.c.mu.Unlock()
	if err := d.c.fault("CreateGraphicsPipeline"); err != nil {
		return nil, err
	}
	p := &handleResource{c: d.c, id: d.c.id(), kind: "Pipeline"}
	d.c.record("CreateGraphicsPipeline#%d stages=%d bindings=%d attrs=%d",
		p.id, len(cfg.Stages), len(cfg.Bindings), len(cfg.Attributes))
	return p, nil
}

func (d *device) CreateSemaphore() (driver.Semaphore, error) {
	d.c.mu.Lock()
	defer d.c.mu.Unlock()
	if err := d.c.fault("CreateSemaphore"); err != nil {
		return nil, err
	}
	s := &handleResource{c: d.c, id: d.c.id(), kind: "Semaphore"}
	d.c.record("CreateSemaphore#%d", s.id)
	return s, nil
}

func (d *device) CreateFence(signaled bool) (driver.Fence, error) {
	d.c.mu.Lock()
	defer d.c.mu.Unlock()
	if err := d.c.fault("CreateFence"); err != nil {
		return nil, err
	}
	f := &fence{c: d.c, id: d.c.id(), signaled: signaled}
	d.c.record("CreateFence#%d signaled=%t", f.id, signaled)
	return f, nil
}

func (d *device) CreateBuffer(size int, usage driver.BufferUsage, props driver.MemoryProps) (driver.Buffer, error) {
	d.c.mu.Lock()
	defer d.c.mu.Unlock()
	if err := d.c.fault("CreateBuffer"); err != nil {
		return nil, err
	}
	b := &buffer{c: d.c, id: d.c.id(), props: props, data: make([]byte, size)}
	d.c.record("CreateBuffer#%d size=%d usage=%d props=%d", b.id, size, usage, props)
	return b, nil
}

func (d *device) WaitForFence(f driver.Fence) error {
	fn := f.(*fence)
	d.c.mu.Lock()
	defer d.c.mu.Unlock()
	d.c.record("WaitFence#%d", fn.id)
	if !fn.signaled {
		// A real wait would block forever; surfacing the protocol
		// violation keeps tests from hanging.
		return errors.Newf("drivertest: wait on fence #%d with no pending work", fn.id)
	}
	return nil
}

func (d *device) ResetFence(f driver.Fence) error {
	fn := f.(*fence)
	d.c.mu.Lock()
	defer d.c.mu.Unlock()
	fn.signaled = false
	d.c.record("ResetFence#%d", fn.id)
	return nil
}

func (d *device) WaitIdle() error {
	d.c.recordLocked("DeviceWaitIdle")
	return nil
}

func (d *device) Destroy() {
	d.c.recordLocked("DestroyDevice#%d", d.id)
}

// handleResource is a generic destroyable handle with a kind tag used
// in the op log.
type handleResource struct {
	c    *core
	id   uint64
	kind string
}

func (h *handleResource) Destroy() {
	h.c.recordLocked("Destroy%s#%d", h.kind, h.id)
}

type image struct {
	id uint64
}

type fence struct {
	c        *core
	id       uint64
	signaled bool
}

func (f *fence) Destroy() {
	f.c.recordLocked("DestroyFence#%d", f.id)
}

type buffer struct {
	c         *core
	id        uint64
	props     driver.MemoryProps
	data      []byte
	destroyed bool
}

func (b *buffer) Size() int { return len(b.data) }

func (b *buffer) Write(offset int, data []byte) error {
	b.c.mu.Lock()
	defer b.c.mu.Unlock()
	if b.props&driver.MemoryHostVisible == 0 {
		return driver.ErrHostVisibleRequired
	}
	if offset+len(data) > len(b.data) {
		return errors.Newf("drivertest: write of %d bytes at %d exceeds buffer #%d size %d",
			len(data), offset, b.id, len(b.data))
	}
	copy(b.data[offset:], data)
	b.c.record("WriteBuffer#%d offset=%d bytes=%d", b.id, offset, len(data))
	return nil
}

func (b *buffer) Destroy() {
	b.c.mu.Lock()
	defer b.c.mu.Unlock()
	b.destroyed = true
	b.c.record("DestroyBuffer#%d", b.id)
}

// Contents returns a copy of the buffer's current bytes. Test helper.
func (b *buffer) Contents() []byte {
	b.c.mu.Lock()
	defer b.c.mu.Unlock()
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

type swapchain struct {
	c        *core
	id       uint64
	surf     *surface
	extent   driver.Extent2D
	images   []driver.Image
	acquires int
}

func (sc *swapchain) Images() []driver.Image {
	return sc.images
}

func (sc *swapchain) Acquire(imageAvailable driver.Semaphore) (int, error) {
	sc.c.mu.Lock()
	defer sc.c.mu.Unlock()
	if n := sc.c.acquireOOD[sc.surf.handle]; n > 0 {
		sc.c.acquireOOD[sc.surf.handle] = n - 1
		sc.c.record("Acquire#%d out-of-date", sc.id)
		return 0, driver.ErrSwapchainOutOfDate
	}
	idx := sc.acquires % len(sc.images)
	sc.acquires++
	sc.c.record("Acquire#%d image=%d", sc.id, idx)
	return idx, nil
}

func (sc *swapchain) Destroy() {
	sc.c.recordLocked("DestroySwapchain#%d", sc.id)
}
