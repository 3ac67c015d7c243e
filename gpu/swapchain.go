package gpu

import (
	"github.com/cockroachdb/errors"

	"github.com/aldhinn/celerique/driver"
)

func (m *Manager) createSwapchain(s *surfaceState) error {
	support, err := s.dev.adapter.SurfaceSupport(s.surface)
	if err != nil {
		m.log.Error("surface support query failed", "window", uint64(s.handle), "err", err)
		return errors.Wrap(err, "gpu: querying surface support")
	}

	format, err := chooseSurfaceFormat(support.Formats)
	if err != nil {
		m.log.Error("surface-format selection failed", "window", uint64(s.handle))
		return err
	}
	mode, err := choosePresentMode(support.PresentModes)
	if err != nil {
		m.log.Error("present-mode selection failed",
			"window", uint64(s.handle), "reported", len(support.PresentModes))
		return err
	}
	extent := chooseExtent(support.Capabilities, s.surface)

	imageCount := support.Capabilities.MinImageCount + 1
	if max := support.Capabilities.MaxImageCount; max > 0 && imageCount > max {
		imageCount = max
	}

	// Swapchain images need concurrent access only when graphics and
	// present live in different queue families.
	var shared []int
	if s.dev.graphics[0] != s.dev.present[0] {
		shared = []int{s.dev.graphics[0], s.dev.present[0]}
	}

	sc, err := s.dev.dev.CreateSwapchain(s.surface, driver.SwapchainConfig{
		ImageCount:     imageCount,
		Format:         format.Format,
		ColorSpace:     format.ColorSpace,
		Extent:         extent,
		PresentMode:    mode,
		SharedFamilies: shared,
	})
	if err != nil {
		m.log.Error("swapchain creation failed", "window", uint64(s.handle), "err", err)
		return errors.Wrap(err, "gpu: creating swapchain")
	}

	s.swapchain = sc
	s.format = format.Format
	s.colorSpace = format.ColorSpace
	s.extent = extent
	return nil
}

func (m *Manager) createImageViews(s *surfaceState) error {
	for _, img := range s.swapchain.Images() {
		view, err := s.dev.dev.CreateImageView(img, s.format)
		if err != nil {
			m.log.Error("image view creation failed", "window", uint64(s.handle), "err", err)
			return errors.Wrap(err, "gpu: creating swapchain image view")
		}
		s.views = append(s.views, view)
	}
	return nil
}

// ensureRenderPass creates the process-wide render pass on the first
// surface and is a no-op thereafter. Every framebuffer and pipeline
// binds against this one description.
func (m *Manager) ensureRenderPass(s *surfaceState) error {
	if m.renderPass != nil {
		return nil
	}
	rp, err := s.dev.dev.CreateRenderPass(s.format)
	if err != nil {
		m.log.Error("render pass creation failed", "err", err)
		return errors.Wrap(err, "gpu: creating render pass")
	}
	m.renderPass = rp
	return nil
}

func (m *Manager) createFramebuffers(s *surfaceState) error {
	for _, view := range s.views {
		fb, err := s.dev.dev.CreateFramebuffer(m.renderPass, view, s.extent)
		if err != nil {
			m.log.Error("framebuffer creation failed", "window", uint64(s.handle), "err", err)
			return errors.Wrap(err, "gpu: creating framebuffer")
		}
		s.fbs = append(s.fbs, fb)
	}
	return nil
}

func (m *Manager) createCommandBuffers(s *surfaceState) error {
	cbs, err := s.pool.Allocate(m.frameCount(len(s.views)))
	if err != nil {
		m.log.Error("command buffer allocation failed", "window", uint64(s.handle), "err", err)
		return errors.Wrap(err, "gpu: allocating command buffers")
	}
	s.cbs = cbs
	return nil
}

func (m *Manager) createSyncObjects(s *surfaceState) error {
	n := m.frameCount(len(s.views))
	for i := 0; i < n; i++ {
		imageAvailable, err := s.dev.dev.CreateSemaphore()
		if err != nil {
			return errors.Wrap(err, "gpu: creating image-available semaphore")
		}
		renderFinished, err := s.dev.dev.CreateSemaphore()
		if err != nil {
			return errors.Wrap(err, "gpu: creating render-finished semaphore")
		}
		// Pre-signaled so the first wait on each frame slot passes.
		inFlight, err := s.dev.dev.CreateFence(true)
		if err != nil {
			return errors.Wrap(err, "gpu: creating in-flight fence")
		}
		s.frames = append(s.frames, frameSync{
			imageAvailable: imageAvailable,
			renderFinished: renderFinished,
			inFlight:       inFlight,
		})
	}
	s.meshes = make([]*meshSlot, n)
	return nil
}

// frameCount is the number of in-flight frames for a swapchain of the
// given length.
func (m *Manager) frameCount(images int) int {
	if m.frameCap > 0 && m.frameCap < images {
		return m.frameCap
	}
	return images
}

// RecreateSwapchain posts a re-provisioning task to the surface's
// maintenance queue, typically in response to a resize notification.
// Back-to-back calls coalesce: at most one task is queued at a time,
// so overlapping resize events cannot race on the recreation path.
func (m *Manager) RecreateSwapchain(handle driver.WindowHandle) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	s, ok := m.surfaces[handle]
	if !ok {
		m.log.Warn("recreate for unknown surface", "window", uint64(handle))
		return errors.Wrapf(ErrUnknownSurface, "window %d", handle)
	}

	task := func() {
		if err := m.recreateSwapchain(handle); err != nil {
			m.log.Error("swapchain recreation failed", "window", uint64(handle), "err", err)
		}
	}
	select {
	case s.maint <- task:
	default:
		// A recreation is already queued; the pending one will see
		// the latest surface geometry.
	}
	return nil
}

// recreateSwapchain is the synchronous re-provisioning path: device
// idle wait, teardown of presentation resources, then the creation
// chain in first-creation order. The render pass and pipelines are
// deliberately left untouched.
func (m *Manager) recreateSwapchain(handle driver.WindowHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	s, ok := m.surfaces[handle]
	if !ok {
		return errors.Wrapf(ErrUnknownSurface, "window %d", handle)
	}

	if err := s.dev.dev.WaitIdle(); err != nil {
		return errors.Wrap(err, "gpu: waiting for device idle before recreation")
	}

	oldFrames := len(s.frames)

	s.pool.Free(s.cbs...)
	s.cbs = nil
	for _, fb := range s.fbs {
		fb.Destroy()
	}
	s.fbs = nil
	for _, view := range s.views {
		view.Destroy()
	}
	s.views = nil
	s.swapchain.Destroy()
	s.swapchain = nil

	if err := m.createSwapchain(s); err != nil {
		return err
	}
	if err := m.createImageViews(s); err != nil {
		return err
	}
	if err := m.createFramebuffers(s); err != nil {
		return err
	}
	if err := m.createCommandBuffers(s); err != nil {
		return err
	}

	// Sync triples and mesh slots are per in-flight frame; rebuild
	// them only when the frame count changed.
	if n := m.frameCount(len(s.views)); n != oldFrames {
		for _, f := range s.frames {
			f.inFlight.Destroy()
			f.renderFinished.Destroy()
			f.imageAvailable.Destroy()
		}
		s.frames = nil
		for _, slot := range s.meshes {
			if slot != nil {
				slot.buf.Destroy()
			}
		}
		if err := m.createSyncObjects(s); err != nil {
			return err
		}
		s.frameIndex = 0
	}

	m.log.Info("swapchain recreated",
		"window", uint64(handle),
		"extent", s.extent,
		"images", len(s.views))
	return nil
}

// runMaintenance drains the surface's maintenance queue until the
// surface is removed.
func (s *surfaceState) runMaintenance() {
	for task := range s.maint {
		task()
	}
}

func (s *surfaceState) stopMaintenance() {
	s.maintOnce.Do(func() { close(s.maint) })
}

// chooseSurfaceFormat prefers 8-bit BGRA sRGB with an sRGB-nonlinear
// color space, falling back to the first reported format. An empty
// set is rejected; a rebuild re-queries support and cannot assume the
// formats seen at registration are still there.
func chooseSurfaceFormat(formats []driver.SurfaceFormat) (driver.SurfaceFormat, error) {
	for _, f := range formats {
		if f.Format == driver.FormatB8G8R8A8SRGB && f.ColorSpace == driver.ColorSpaceSRGBNonlinear {
			return f, nil
		}
	}
	if len(formats) == 0 {
		return driver.SurfaceFormat{}, ErrNoSurfaceFormat
	}
	return formats[0], nil
}

// choosePresentMode prefers mailbox, then FIFO. A surface reporting
// neither is rejected outright rather than handing the backend an
// invalid mode.
func choosePresentMode(modes []driver.PresentMode) (driver.PresentMode, error) {
	fifo := false
	for _, mode := range modes {
		if mode == driver.PresentModeMailbox {
			return mode, nil
		}
		if mode == driver.PresentModeFIFO {
			fifo = true
		}
	}
	if fifo {
		return driver.PresentModeFIFO, nil
	}
	return 0, ErrNoPresentMode
}

// chooseExtent takes the surface's fixed extent when the compositor
// defines one, otherwise the native drawable size clamped to the
// reported limits.
func chooseExtent(caps driver.SurfaceCapabilities, surf driver.Surface) driver.Extent2D {
	if caps.CurrentExtent.Width != driver.ExtentUndefined {
		return caps.CurrentExtent
	}
	w, h := surf.DrawableSize()
	return driver.Extent2D{
		Width:  clampInt(w, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: clampInt(h, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if hi > 0 && v > hi {
		return hi
	}
	return v
}
