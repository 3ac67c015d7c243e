package gpu

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/aldhinn/celerique/driver"
)

// deviceContext is one logical device and its queues and transfer
// pools. The first registered surface creates it; later surfaces reuse
// it unconditionally. It is destroyed only at shutdown, after every
// dependent surface is gone.
type deviceContext struct {
	adapter  driver.Adapter
	dev      driver.Device
	families []int // families a queue was created for, graphics first
	graphics []int // graphics-capable subset of families
	present  []int // present-capable subset of families
	pools    map[int]driver.CommandPool
}

func (d *deviceContext) graphicsQueue() driver.Queue {
	return d.dev.Queue(d.graphics[0])
}

func (d *deviceContext) presentQueue() driver.Queue {
	return d.dev.Queue(d.present[0])
}

func (d *deviceContext) destroy() {
	for _, pool := range d.pools {
		pool.Destroy()
	}
	d.dev.Destroy()
}

// surfaceState is the complete per-surface resource record. Fields
// below swapchain are replaced in place on re-provisioning; everything
// else lives until the surface is removed.
type surfaceState struct {
	handle   driver.WindowHandle
	protocol driver.Protocol
	surface  driver.Surface
	dev      *deviceContext

	swapchain  driver.Swapchain
	format     driver.Format
	colorSpace driver.ColorSpace
	extent     driver.Extent2D
	views      []driver.ImageView
	fbs        []driver.Framebuffer

	// pool allocates this surface's per-frame command buffers and its
	// one-shot transfer buffers, so concurrent draws on different
	// surfaces never share a pool.
	pool driver.CommandPool
	cbs  []driver.CommandBuffer

	frames     []frameSync
	frameIndex int
	meshes     []*meshSlot

	// drawMu serializes frame submission on this surface. Distinct
	// surfaces draw concurrently under the manager's shared lock.
	drawMu sync.Mutex

	maint     chan func()
	maintOnce sync.Once
}

// frameSync is the per-in-flight-frame synchronization triple.
type frameSync struct {
	imageAvailable driver.Semaphore
	renderFinished driver.Semaphore
	inFlight       driver.Fence
}

// RegisterSurface provisions GPU resources for a native window.
// Registering an already-registered handle is a no-op. A zero handle
// or ProtocolNone is a configuration error: logged and ignored with no
// side effects. The first registration selects an adapter and creates
// the logical device; all native-call failures are hard errors.
func (m *Manager) RegisterSurface(handle driver.WindowHandle, protocol driver.Protocol) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	if _, ok := m.surfaces[handle]; ok {
		m.log.Info("surface already registered", "window", uint64(handle))
		return nil
	}
	if handle == 0 || protocol == driver.ProtocolNone {
		m.log.Warn("rejecting surface registration",
			"window", uint64(handle), "protocol", protocol.String())
		return nil
	}

	surf, err := m.api.CreateSurface(handle, protocol)
	if err != nil {
		m.log.Error("surface creation failed", "window", uint64(handle), "err", err)
		return errors.Wrapf(err, "gpu: creating surface for window %d", handle)
	}

	s := &surfaceState{
		handle:   handle,
		protocol: protocol,
		surface:  surf,
		maint:    make(chan func(), 1),
	}

	if err := m.provision(s); err != nil {
		s.destroyResources()
		surf.Destroy()
		return err
	}

	m.surfaces[handle] = s
	go s.runMaintenance()
	m.log.Info("surface registered",
		"window", uint64(handle),
		"protocol", protocol.String(),
		"adapter", s.dev.adapter.Name(),
		"images", len(s.views))
	return nil
}

// provision selects or reuses the device and builds the full
// presentation chain for s. Caller holds the exclusive lock.
func (m *Manager) provision(s *surfaceState) error {
	if m.dev == nil {
		dev, err := m.createDevice(s.surface)
		if err != nil {
			return err
		}
		m.dev = dev
	}
	s.dev = m.dev

	pool, err := m.dev.dev.CreateCommandPool(m.dev.graphics[0])
	if err != nil {
		m.log.Error("command pool creation failed", "err", err)
		return errors.Wrap(err, "gpu: creating surface command pool")
	}
	s.pool = pool

	if err := m.createSwapchain(s); err != nil {
		return err
	}
	if err := m.createImageViews(s); err != nil {
		return err
	}
	if err := m.ensureRenderPass(s); err != nil {
		return err
	}
	if err := m.createFramebuffers(s); err != nil {
		return err
	}
	if err := m.createCommandBuffers(s); err != nil {
		return err
	}
	return m.createSyncObjects(s)
}

// createDevice scores the cached adapters against the surface and
// builds a logical device on the first one satisfying every criterion.
func (m *Manager) createDevice(surf driver.Surface) (*deviceContext, error) {
	adapter, graphics, present, err := m.selectAdapter(surf)
	if err != nil {
		return nil, err
	}

	// One queue per unique family across both capability sets, with
	// the union capped at the smaller per-kind family count. The cap
	// never evicts the last present-capable family.
	families := append([]int(nil), graphics...)
	for _, f := range present {
		if !containsInt(families, f) {
			families = append(families, f)
		}
	}
	limit := len(graphics)
	if len(present) < limit {
		limit = len(present)
	}
	if len(families) > limit {
		families = families[:limit]
	}
	if !anyInt(families, present) {
		families = append(families, present[0])
	}

	dev, err := adapter.CreateDevice(driver.DeviceConfig{
		QueueFamilies:     families,
		Extensions:        m.deviceExt,
		SamplerAnisotropy: true,
	})
	if err != nil {
		m.log.Error("device creation failed", "adapter", adapter.Name(), "err", err)
		return nil, errors.Wrapf(err, "gpu: creating device on %s", adapter.Name())
	}

	ctx := &deviceContext{
		adapter:  adapter,
		dev:      dev,
		families: families,
		pools:    make(map[int]driver.CommandPool),
	}
	for _, f := range families {
		if containsInt(graphics, f) {
			ctx.graphics = append(ctx.graphics, f)
		}
		if containsInt(present, f) {
			ctx.present = append(ctx.present, f)
		}
	}
	for _, f := range ctx.graphics {
		pool, err := dev.CreateCommandPool(f)
		if err != nil {
			m.log.Error("command pool creation failed", "family", f, "err", err)
			ctx.destroy()
			return nil, errors.Wrapf(err, "gpu: creating command pool for family %d", f)
		}
		ctx.pools[f] = pool
	}

	m.log.Info("logical device created",
		"adapter", adapter.Name(), "families", families)
	return ctx, nil
}

// selectAdapter returns the first adapter satisfying every
// provisioning criterion, along with its graphics- and present-capable
// family indices for the surface.
func (m *Manager) selectAdapter(surf driver.Surface) (driver.Adapter, []int, []int, error) {
	for _, adapter := range m.adapters {
		if !adapter.SamplerAnisotropy() {
			m.log.Debug("adapter skipped: no sampler anisotropy", "adapter", adapter.Name())
			continue
		}
		if !adapter.HasExtensions(m.deviceExt) {
			m.log.Debug("adapter skipped: missing extensions", "adapter", adapter.Name())
			continue
		}
		support, err := adapter.SurfaceSupport(surf)
		if err != nil || len(support.Formats) == 0 || len(support.PresentModes) == 0 {
			m.log.Debug("adapter skipped: unusable surface support",
				"adapter", adapter.Name(), "err", err)
			continue
		}
		families, err := adapter.QueueFamilies(surf)
		if err != nil {
			m.log.Debug("adapter skipped: queue query failed",
				"adapter", adapter.Name(), "err", err)
			continue
		}
		var graphics, present []int
		for _, f := range families {
			if f.Graphics {
				graphics = append(graphics, f.Index)
			}
			if f.CanPresent {
				present = append(present, f.Index)
			}
		}
		if len(graphics) == 0 || len(present) == 0 {
			m.log.Debug("adapter skipped: missing queue capability",
				"adapter", adapter.Name())
			continue
		}
		return adapter, graphics, present, nil
	}
	m.log.Error("no adapter satisfies requirements", "candidates", len(m.adapters))
	return nil, nil, nil, errors.Wrapf(ErrNoSuitableAdapter, "%d adapters examined", len(m.adapters))
}

// RemoveSurface releases every resource owned by a registered surface.
// The device is waited idle before anything is destroyed, so in-flight
// GPU work can never observe a freed handle. Unknown handles are a
// logged no-op.
func (m *Manager) RemoveSurface(handle driver.WindowHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	s, ok := m.surfaces[handle]
	if !ok {
		m.log.Warn("removal of unknown surface", "window", uint64(handle))
		return nil
	}

	if err := s.dev.dev.WaitIdle(); err != nil {
		m.log.Error("device idle wait failed", "window", uint64(handle), "err", err)
		return errors.Wrap(err, "gpu: waiting for device idle before removal")
	}

	delete(m.surfaces, handle)
	s.stopMaintenance()
	s.destroyResources()
	s.surface.Destroy()
	m.log.Info("surface removed", "window", uint64(handle))
	return nil
}

// destroyResources releases everything in the record except the native
// surface, in strict reverse dependency order. Callers ensure the
// device is idle first.
func (s *surfaceState) destroyResources() {
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
	s.meshes = nil
	if s.pool != nil && len(s.cbs) > 0 {
		s.pool.Free(s.cbs...)
		s.cbs = nil
	}
	for _, fb := range s.fbs {
		fb.Destroy()
	}
	s.fbs = nil
	for _, view := range s.views {
		view.Destroy()
	}
	s.views = nil
	if s.swapchain != nil {
		s.swapchain.Destroy()
		s.swapchain = nil
	}
	if s.pool != nil {
		s.pool.Destroy()
		s.pool = nil
	}
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

func anyInt(xs, among []int) bool {
	for _, x := range xs {
		if containsInt(among, x) {
			return true
		}
	}
	return false
}
