package vkdriver

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/aldhinn/celerique/driver"
)

type commandPool struct {
	dev  *device
	pool core1_0.CommandPool
}

func (p *commandPool) Allocate(count int) ([]driver.CommandBuffer, error) {
	vkBuffers, _, err := p.dev.driver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        p.pool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: count,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "vkdriver: allocating %d command buffers", count)
	}

	buffers := make([]driver.CommandBuffer, len(vkBuffers))
	for i, b := range vkBuffers {
		buffers[i] = &commandBuffer{dev: p.dev, buffer: b}
	}
	return buffers, nil
}

func (p *commandPool) Free(buffers ...driver.CommandBuffer) {
	var vkBuffers []core1_0.CommandBuffer
	for _, b := range buffers {
		if cb, ok := b.(*commandBuffer); ok {
			vkBuffers = append(vkBuffers, cb.buffer)
		}
	}
	if len(vkBuffers) > 0 {
		p.dev.driver.FreeCommandBuffers(vkBuffers...)
	}
}

func (p *commandPool) Destroy() {
	p.dev.driver.DestroyCommandPool(p.pool, nil)
}

// commandBuffer records through the device driver. Recording calls
// with no error return latch their failure into firstErr, which End
// reports, so a frame recorded after a failed call never reaches the
// queue looking healthy.
type commandBuffer struct {
	dev      *device
	buffer   core1_0.CommandBuffer
	firstErr error
}

func (c *commandBuffer) latch(err error) {
	if err != nil && c.firstErr == nil {
		c.firstErr = err
	}
}

func (c *commandBuffer) Begin(oneTime bool) error {
	c.firstErr = nil
	var flags core1_0.CommandBufferUsageFlags
	if oneTime {
		flags = core1_0.CommandBufferUsageOneTimeSubmit
	}
	if _, err := c.dev.driver.BeginCommandBuffer(c.buffer, core1_0.CommandBufferBeginInfo{
		Flags: flags,
	}); err != nil {
		return errors.Wrap(err, "vkdriver: beginning command buffer")
	}
	return nil
}

func (c *commandBuffer) End() error {
	if c.firstErr != nil {
		return errors.Wrap(c.firstErr, "vkdriver: command buffer recording failed")
	}
	if _, err := c.dev.driver.EndCommandBuffer(c.buffer); err != nil {
		return errors.Wrap(err, "vkdriver: ending command buffer")
	}
	return nil
}

func (c *commandBuffer) Reset() error {
	c.firstErr = nil
	if _, err := c.dev.driver.ResetCommandBuffer(c.buffer, 0); err != nil {
		return errors.Wrap(err, "vkdriver: resetting command buffer")
	}
	return nil
}

func (c *commandBuffer) SetViewportScissor(extent driver.Extent2D) {
	c.dev.driver.CmdSetViewport(c.buffer, core1_0.Viewport{
		X:        0,
		Y:        0,
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	})
	c.dev.driver.CmdSetScissor(c.buffer, core1_0.Rect2D{
		Offset: core1_0.Offset2D{X: 0, Y: 0},
		Extent: toVkExtent(extent),
	})
}

func (c *commandBuffer) BeginRenderPass(rp driver.RenderPass, fb driver.Framebuffer, extent driver.Extent2D, clear [4]float32) {
	vkRP, ok := rp.(*renderPass)
	if !ok {
		c.latch(errors.New("vkdriver: render pass belongs to another backend"))
		return
	}
	vkFB, ok := fb.(*framebuffer)
	if !ok {
		c.latch(errors.New("vkdriver: framebuffer belongs to another backend"))
		return
	}

	c.latch(c.dev.driver.CmdBeginRenderPass(c.buffer, core1_0.SubpassContentsInline,
		core1_0.RenderPassBeginInfo{
			RenderPass:  vkRP.renderPass,
			Framebuffer: vkFB.framebuffer,
			RenderArea: core1_0.Rect2D{
				Offset: core1_0.Offset2D{X: 0, Y: 0},
				Extent: toVkExtent(extent),
			},
			ClearValues: []core1_0.ClearValue{
				core1_0.ClearValueFloat{clear[0], clear[1], clear[2], clear[3]},
			},
		}))
}

func (c *commandBuffer) EndRenderPass() {
	c.dev.driver.CmdEndRenderPass(c.buffer)
}

func (c *commandBuffer) BindPipeline(p driver.Pipeline) {
	vkP, ok := p.(*pipeline)
	if !ok {
		c.latch(errors.New("vkdriver: pipeline belongs to another backend"))
		return
	}
	c.dev.driver.CmdBindPipeline(c.buffer, core1_0.PipelineBindPointGraphics, vkP.pipeline)
}

func (c *commandBuffer) BindVertexBuffer(b driver.Buffer, offset int) {
	vkB, ok := b.(*buffer)
	if !ok {
		c.latch(errors.New("vkdriver: buffer belongs to another backend"))
		return
	}
	c.dev.driver.CmdBindVertexBuffers(c.buffer, 0, []core1_0.Buffer{vkB.buffer}, []int{offset})
}

func (c *commandBuffer) BindIndexBuffer(b driver.Buffer, offset int) {
	vkB, ok := b.(*buffer)
	if !ok {
		c.latch(errors.New("vkdriver: buffer belongs to another backend"))
		return
	}
	c.dev.driver.CmdBindIndexBuffer(c.buffer, vkB.buffer, offset, core1_0.IndexTypeUInt32)
}

func (c *commandBuffer) Draw(vertexCount int) {
	c.dev.driver.CmdDraw(c.buffer, vertexCount, 1, 0, 0)
}

func (c *commandBuffer) DrawIndexed(indexCount int) {
	c.dev.driver.CmdDrawIndexed(c.buffer, indexCount, 1, 0, 0, 0)
}

func (c *commandBuffer) CopyBuffer(src, dst driver.Buffer, size int) {
	vkSrc, ok := src.(*buffer)
	if !ok {
		c.latch(errors.New("vkdriver: source buffer belongs to another backend"))
		return
	}
	vkDst, ok := dst.(*buffer)
	if !ok {
		c.latch(errors.New("vkdriver: destination buffer belongs to another backend"))
		return
	}
	c.latch(c.dev.driver.CmdCopyBuffer(c.buffer, vkSrc.buffer, vkDst.buffer,
		core1_0.BufferCopy{
			SrcOffset: 0,
			DstOffset: 0,
			Size:      size,
		}))
}
