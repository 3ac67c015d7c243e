package drivertest

import (
	"github.com/cockroachdb/errors"

	"github.com/aldhinn/celerique/driver"
)

type queue struct {
	c      *core
	family int
}

func (q *queue) Submit(info driver.SubmitInfo) error {
	q.c.mu.Lock()
	defer q.c.mu.Unlock()
	if err := q.c.fault("Submit"); err != nil {
		return err
	}
	q.c.record("Submit family=%d buffers=%d", q.family, len(info.Commands))
	// The fake GPU completes work instantly: pending copies execute
	// now and completion signals fire before Submit returns.
	for _, cb := range info.Commands {
		for _, op := range cb.(*commandBuffer).pending {
			op()
		}
		cb.(*commandBuffer).pending = nil
	}
	if info.Fence != nil {
		info.Fence.(*fence).signaled = true
		q.c.record("SignalFence#%d", info.Fence.(*fence).id)
	}
	return nil
}

func (q *queue) Present(sc driver.Swapchain, imageIndex int, wait driver.Semaphore) error {
	swap := sc.(*swapchain)
	q.c.mu.Lock()
	defer q.c.mu.Unlock()
	if pending := q.c.presentErr[swap.surf.handle]; len(pending) > 0 {
		err := pending[0]
		q.c.presentErr[swap.surf.handle] = pending[1:]
		q.c.record("Present#%d image=%d err=%v", swap.id, imageIndex, err)
		return err
	}
	q.c.record("Present#%d image=%d", swap.id, imageIndex)
	return nil
}

func (q *queue) WaitIdle() error {
	q.c.recordLocked("QueueWaitIdle family=%d", q.family)
	return nil
}

type commandPool struct {
	c      *core
	id     uint64
	family int
}

func (p *commandPool) Allocate(count int) ([]driver.CommandBuffer, error) {
	p.c.mu.Lock()
	defer p.c.mu.Unlock()
	if err := p.c.fault("AllocateCommandBuffers"); err != nil {
		return nil, err
	}
	out := make([]driver.CommandBuffer, count)
	for i := range out {
		cb := &commandBuffer{c: p.c, id: p.c.id(), pool: p}
		p.c.record("AllocateCommandBuffer#%d pool=#%d", cb.id, p.id)
		out[i] = cb
	}
	return out, nil
}

func (p *commandPool) Free(buffers ...driver.CommandBuffer) {
	p.c.mu.Lock()
	defer p.c.mu.Unlock()
	for _, cb := range buffers {
		p.c.record("FreeCommandBuffer#%d", cb.(*commandBuffer).id)
	}
}

func (p *commandPool) Destroy() {
	p.c.recordLocked("DestroyCommandPool#%d", p.id)
}

type commandBuffer struct {
	c         *core
	id        uint64
	pool      *commandPool
	recording bool
	// pending holds effects (buffer copies) that run at submit time.
	pending []func()
}

func (cb *commandBuffer) Begin(oneTime bool) error {
	cb.c.mu.Lock()
	defer cb.c.mu.Unlock()
	if cb.recording {
		return errors.Newf("drivertest: Begin on command buffer #%d already recording", cb.id)
	}
	cb.recording = true
	cb.c.record("CmdBegin#%d oneTime=%t", cb.id, oneTime)
	return nil
}

func (cb *commandBuffer) End() error {
	cb.c.mu.Lock()
	defer cb.c.mu.Unlock()
	if !cb.recording {
		return errors.Newf("drivertest: End on command buffer #%d that is not recording", cb.id)
	}
	cb.recording = false
	cb.c.record("CmdEnd#%d", cb.id)
	return nil
}

func (cb *commandBuffer) Reset() error {
	cb.c.mu.Lock()
	defer cb.c.mu.Unlock()
	cb.recording = false
	cb.pending = nil
	cb.c.record("CmdReset#%d", cb.id)
	return nil
}

func (cb *commandBuffer) SetViewportScissor(extent driver.Extent2D) {
	cb.c.recordLocked("CmdViewportScissor#%d %dx%d", cb.id, extent.Width, extent.Height)
}

func (cb *commandBuffer) BeginRenderPass(rp driver.RenderPass, fb driver.Framebuffer, extent driver.Extent2D, clear [4]float32) {
	cb.c.recordLocked("CmdBeginRenderPass#%d fb=#%d", cb.id, fb.(*handleResource).id)
}

func (cb *commandBuffer) EndRenderPass() {
	cb.c.recordLocked("CmdEndRenderPass#%d", cb.id)
}

func (cb *commandBuffer) BindPipeline(p driver.Pipeline) {
	cb.c.recordLocked("CmdBindPipeline#%d pipeline=#%d", cb.id, p.(*handleResource).id)
}

func (cb *commandBuffer) BindVertexBuffer(b driver.Buffer, offset int) {
	cb.c.recordLocked("CmdBindVertexBuffer#%d buffer=#%d offset=%d", cb.id, b.(*buffer).id, offset)
}

func (cb *commandBuffer) BindIndexBuffer(b driver.Buffer, offset int) {
	cb.c.recordLocked("CmdBindIndexBuffer#%d buffer=#%d offset=%d", cb.id, b.(*buffer).id, offset)
}

func (cb *commandBuffer) Draw(vertexCount int) {
	cb.c.recordLocked("CmdDraw#%d vertices=%d", cb.id, vertexCount)
}

func (cb *commandBuffer) DrawIndexed(indexCount int) {
	cb.c.recordLocked("CmdDrawIndexed#%d indices=%d", cb.id, indexCount)
}

func (cb *commandBuffer) CopyBuffer(src, dst driver.Buffer, size int) {
	s := src.(*buffer)
	d := dst.(*buffer)
	cb.c.mu.Lock()
	defer cb.c.mu.Unlock()
	cb.c.record("CmdCopyBuffer#%d src=#%d dst=#%d size=%d", cb.id, s.id, d.id, size)
	cb.pending = append(cb.pending, func() {
		copy(d.data, s.data[:size])
	})
}
