package gpu

import (
	"github.com/cockroachdb/errors"
	"github.com/loov/hrtime"
	"golang.org/x/sync/errgroup"

	"github.com/aldhinn/celerique/driver"
)

// Mesh is per-draw geometry. Vertices holds packed vertex data laid
// out per the pipeline's input layout; Indices, when non-empty, makes
// the draw indexed. A nil Mesh draws the pipeline with no buffers
// bound, which suits parameterless full-screen passes.
type Mesh struct {
	VertexCount int
	Stride      int
	Vertices    []byte
	Indices     []uint32
}

func (m *Mesh) empty() bool {
	return m == nil || len(m.Vertices) == 0
}

// Draw submits one frame on every registered surface with the given
// pipeline. Surfaces are drawn concurrently and joined before return;
// draws on the same surface are serialized. A surface whose swapchain
// is out of date skips its frame silently — the caller is expected to
// trigger re-provisioning from its resize notification.
func (m *Manager) Draw(id PipelineID, mesh *Mesh) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	entry, ok := m.pipes[id]
	if !ok {
		return errors.Wrapf(ErrUnknownPipeline, "pipeline %d", id)
	}

	var g errgroup.Group
	for _, s := range m.surfaces {
		s := s
		g.Go(func() error {
			return m.drawSurface(s, entry, mesh)
		})
	}
	return g.Wait()
}

// drawSurface runs the per-frame state machine for one surface:
// wait, acquire, upload, record, fence reset, submit, present,
// advance. Called with the manager lock held shared; fence waits block
// the calling goroutine only.
func (m *Manager) drawSurface(s *surfaceState, entry *pipelineEntry, mesh *Mesh) error {
	s.drawMu.Lock()
	defer s.drawMu.Unlock()

	start := hrtime.Now()
	frame := s.frames[s.frameIndex]
	dev := s.dev.dev

	if err := dev.WaitForFence(frame.inFlight); err != nil {
		return errors.Wrapf(err, "gpu: waiting for frame %d fence", s.frameIndex)
	}

	imageIndex, err := s.swapchain.Acquire(frame.imageAvailable)
	if errors.Is(err, driver.ErrSwapchainOutOfDate) {
		// Abort before any state change: the fence stays signaled and
		// the frame index stays put, so the next draw retries cleanly.
		m.log.Debug("frame skipped: swapchain out of date", "window", uint64(s.handle))
		m.recordDropped()
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "gpu: acquiring swapchain image")
	}

	cb := s.cbs[s.frameIndex]
	if err := cb.Reset(); err != nil {
		return errors.Wrap(err, "gpu: resetting command buffer")
	}

	var slot *meshSlot
	if !mesh.empty() {
		slot, err = m.uploadMesh(s, mesh)
		if err != nil {
			return err
		}
	}

	if err := m.recordFrameCommands(s, cb, entry, slot, mesh, imageIndex); err != nil {
		return err
	}

	// The fence stays signaled until the frame is fully recorded:
	// an error return before the submit leaves the slot retryable,
	// since nothing would ever signal a reset fence.
	if err := dev.ResetFence(frame.inFlight); err != nil {
		return errors.Wrap(err, "gpu: resetting in-flight fence")
	}

	if err := s.dev.graphicsQueue().Submit(driver.SubmitInfo{
		Wait:      frame.imageAvailable,
		WaitStage: driver.StageColorAttachmentOutput,
		Commands:  []driver.CommandBuffer{cb},
		Signal:    frame.renderFinished,
		Fence:     frame.inFlight,
	}); err != nil {
		return errors.Wrap(err, "gpu: submitting frame")
	}

	err = s.dev.presentQueue().Present(s.swapchain, imageIndex, frame.renderFinished)
	switch {
	case errors.Is(err, driver.ErrSwapchainOutOfDate), errors.Is(err, driver.ErrSuboptimal):
		// The work is already submitted and its fence will signal;
		// only the presentation is lost. Invisible beyond a dropped
		// frame.
		m.log.Debug("present skipped: swapchain stale", "window", uint64(s.handle))
		m.recordDropped()
	case err != nil:
		return errors.Wrap(err, "gpu: presenting frame")
	}

	s.frameIndex = (s.frameIndex + 1) % len(s.frames)
	m.recordFrame(hrtime.Since(start))
	return nil
}

// recordFrameCommands records the full command buffer for one frame:
// dynamic viewport/scissor, the shared render pass on the acquired
// image's framebuffer, the pipeline bind and the draw.
func (m *Manager) recordFrameCommands(s *surfaceState, cb driver.CommandBuffer,
	entry *pipelineEntry, slot *meshSlot, mesh *Mesh, imageIndex int) error {

	if err := cb.Begin(false); err != nil {
		return errors.Wrap(err, "gpu: beginning command buffer")
	}
	cb.SetViewportScissor(s.extent)
	cb.BeginRenderPass(m.renderPass, s.fbs[imageIndex], s.extent, m.clearColor)
	cb.BindPipeline(entry.pipeline)

	switch {
	case slot != nil && slot.indexCount > 0:
		cb.BindVertexBuffer(slot.buf, 0)
		// Index data sits in the same device-local buffer, directly
		// after the vertex bytes.
		cb.BindIndexBuffer(slot.buf, slot.vertexBytes)
		cb.DrawIndexed(slot.indexCount)
	case slot != nil:
		cb.BindVertexBuffer(slot.buf, 0)
		cb.Draw(slot.vertexCount)
	default:
		vertexCount := 0
		if mesh != nil {
			vertexCount = mesh.VertexCount
		}
		cb.Draw(vertexCount)
	}

	cb.EndRenderPass()
	if err := cb.End(); err != nil {
		return errors.Wrap(err, "gpu: ending command buffer")
	}
	return nil
}
