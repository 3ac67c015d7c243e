// Package drivertest provides an in-memory driver.API implementation
// for testing resource-management logic without a GPU.
//
// Every creation, destruction, wait, submission and recorded command is
// appended to an ordered op log, so tests can assert lifecycle ordering
// (for example, that a device-idle wait precedes every destroy during
// surface removal). Adapters are described declaratively with
// AdapterSpec, and transient presentation failures can be injected per
// surface.
package drivertest

import (
	"fmt"
	"strings"
	"sync"

	"github.com/aldhinn/celerique/driver"
)

// AdapterSpec describes one fake adapter.
type AdapterSpec struct {
	Name              string
	SamplerAnisotropy bool
	Extensions        []string
	Formats           []driver.SurfaceFormat
	PresentModes      []driver.PresentMode
	Families          []driver.QueueFamily
	Capabilities      driver.SurfaceCapabilities
}

// CapableAdapter returns a spec that passes every provisioning
// criterion: anisotropy, the swapchain extension, sRGB BGRA plus one
// fallback format, mailbox and FIFO present modes, and a combined
// graphics+present queue family.
func CapableAdapter() AdapterSpec {
	return AdapterSpec{
		Name:              "drivertest-gpu",
		SamplerAnisotropy: true,
		Extensions:        []string{"VK_KHR_swapchain"},
		Formats: []driver.SurfaceFormat{
			{Format: driver.FormatB8G8R8A8SRGB, ColorSpace: driver.ColorSpaceSRGBNonlinear},
			{Format: driver.FormatB8G8R8A8UNorm, ColorSpace: driver.ColorSpaceSRGBNonlinear},
		},
		PresentModes: []driver.PresentMode{driver.PresentModeMailbox, driver.PresentModeFIFO},
		Families: []driver.QueueFamily{
			{Index: 0, QueueCount: 1, Graphics: true, CanPresent: true},
		},
		Capabilities: driver.SurfaceCapabilities{
			MinImageCount:  2,
			MaxImageCount:  8,
			CurrentExtent:  driver.Extent2D{Width: 800, Height: 600},
			MinImageExtent: driver.Extent2D{Width: 1, Height: 1},
			MaxImageExtent: driver.Extent2D{Width: 4096, Height: 4096},
		},
	}
}

type core struct {
	mu         sync.Mutex
	ops        []string
	nextID     uint64
	faults     map[string][]error
	acquireOOD map[driver.WindowHandle]int
	presentErr map[driver.WindowHandle][]error
	drawable   map[driver.WindowHandle]driver.Extent2D
}

func (c *core) id() uint64 {
	c.nextID++
	return c.nextID
}

func (c *core) record(format string, args ...any) {
	c.ops = append(c.ops, fmt.Sprintf(format, args...))
}

func (c *core) recordLocked(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(format, args...)
}

// fault pops an injected error for op, if any. Caller holds c.mu.
func (c *core) fault(op string) error {
	q := c.faults[op]
	if len(q) == 0 {
		return nil
	}
	err := q[0]
	c.faults[op] = q[1:]
	return err
}

// API implements driver.API in memory.
type API struct {
	c        *core
	adapters []driver.Adapter
	closed   bool
}

// New builds a fake API exposing the given adapters. With no arguments
// a single CapableAdapter is exposed.
func New(specs ...AdapterSpec) *API {
	if len(specs) == 0 {
		specs = []AdapterSpec{CapableAdapter()}
	}
	c := &core{
		faults:     make(map[string][]error),
		acquireOOD: make(map[driver.WindowHandle]int),
		presentErr: make(map[driver.WindowHandle][]error),
		drawable:   make(map[driver.WindowHandle]driver.Extent2D),
	}
	api := &API{c: c}
	for _, spec := range specs {
		api.adapters = append(api.adapters, &adapter{c: c, spec: spec})
	}
	return api
}

// Ops returns a snapshot of the op log.
func (a *API) Ops() []string {
	a.c.mu.Lock()
	defer a.c.mu.Unlock()
	out := make([]string, len(a.c.ops))
	copy(out, a.c.ops)
	return out
}

// FirstIndex returns the log index of the first op with the given
// prefix, or -1.
func (a *API) FirstIndex(prefix string) int {
	for i, op := range a.Ops() {
		if strings.HasPrefix(op, prefix) {
			return i
		}
	}
	return -1
}

// LastIndex returns the log index of the last op with the given
// prefix, or -1.
func (a *API) LastIndex(prefix string) int {
	ops := a.Ops()
	for i := len(ops) - 1; i >= 0; i-- {
		if strings.HasPrefix(ops[i], prefix) {
			return i
		}
	}
	return -1
}

// CountPrefix returns how many ops carry the given prefix.
func (a *API) CountPrefix(prefix string) int {
	n := 0
	for _, op := range a.Ops() {
		if strings.HasPrefix(op, prefix) {
			n++
		}
	}
	return n
}

// ClearOps empties the op log.
func (a *API) ClearOps() {
	a.c.mu.Lock()
	defer a.c.mu.Unlock()
	a.c.ops = a.c.ops[:0]
}

// FailNext injects err for the next call of the named create op
// ("CreateSwapchain", "CreateBuffer", ...). Repeated calls queue up.
func (a *API) FailNext(op string, err error) {
	a.c.mu.Lock()
	defer a.c.mu.Unlock()
	a.c.faults[op] = append(a.c.faults[op], err)
}

// InjectAcquireOutOfDate makes the next n Acquire calls on the
// surface's swapchain report ErrSwapchainOutOfDate.
func (a *API) InjectAcquireOutOfDate(handle driver.WindowHandle, n int) {
	a.c.mu.Lock()
	defer a.c.mu.Unlock()
	a.c.acquireOOD[handle] += n
}

// InjectPresentError queues err for the next Present on the surface's
// swapchain.
func (a *API) InjectPresentError(handle driver.WindowHandle, err error) {
	a.c.mu.Lock()
	defer a.c.mu.Unlock()
	a.c.presentErr[handle] = append(a.c.presentErr[handle], err)
}

// SetDrawableSize sets the size reported by the surface for the given
// window handle. Defaults to 800x600.
func (a *API) SetDrawableSize(handle driver.WindowHandle, w, h int) {
	a.c.mu.Lock()
	defer a.c.mu.Unlock()
	a.c.drawable[handle] = driver.Extent2D{Width: w, Height: h}
}

func (a *API) Adapters() ([]driver.Adapter, error) {
	a.c.recordLocked("EnumerateAdapters")
	if len(a.adapters) == 0 {
		return nil, driver.ErrNoAdapter
	}
	return a.adapters, nil
}

func (a *API) CreateSurface(handle driver.WindowHandle, protocol driver.Protocol) (driver.Surface, error) {
	a.c.mu.Lock()
	defer a.c.mu.Unlock()
	if err := a.c.fault("CreateSurface"); err != nil {
		return nil, err
	}
	s := &surface{c: a.c, id: a.c.id(), handle: handle, protocol: protocol}
	a.c.record("CreateSurface#%d window=%d protocol=%s", s.id, handle, protocol)
	return s, nil
}

func (a *API) Close() {
	a.c.recordLocked("CloseAPI")
	a.closed = true
}

// Closed reports whether Close was called.
func (a *API) Closed() bool { return a.closed }

type adapter struct {
	c    *core
	spec AdapterSpec
}

func (ad *adapter) Name() string            { return ad.spec.Name }
func (ad *adapter) SamplerAnisotropy() bool { return ad.spec.SamplerAnisotropy }

func (ad *adapter) HasExtensions(names []string) bool {
	for _, want := range names {
		found := false
		for _, have := range ad.spec.Extensions {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (ad *adapter) QueueFamilies(driver.Surface) ([]driver.QueueFamily, error) {
	out := make([]driver.QueueFamily, len(ad.spec.Families))
	copy(out, ad.spec.Families)
	return out, nil
}

func (ad *adapter) SurfaceSupport(driver.Surface) (driver.SurfaceSupport, error) {
	return driver.SurfaceSupport{
		Capabilities: ad.spec.Capabilities,
		Formats:      append([]driver.SurfaceFormat(nil), ad.spec.Formats...),
		PresentModes: append([]driver.PresentMode(nil), ad.spec.PresentModes...),
	}, nil
}

func (ad *adapter) CreateDevice(cfg driver.DeviceConfig) (driver.Device, error) {
	ad.c.mu.Lock()
	defer ad.c.mu.Unlock()
	if err := ad.c.fault("CreateDevice"); err != nil {
		return nil, err
	}
	d := &device{c: ad.c, id: ad.c.id(), queues: make(map[int]*queue)}
	for _, family := range cfg.QueueFamilies {
		d.queues[family] = &queue{c: ad.c, family: family}
	}
	ad.c.record("CreateDevice#%d adapter=%s families=%v", d.id, ad.spec.Name, cfg.QueueFamilies)
	return d, nil
}

type surface struct {
	c        *core
	id       uint64
	handle   driver.WindowHandle
	protocol driver.Protocol
}

func (s *surface) DrawableSize() (int, int) {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	if ext, ok := s.c.drawable[s.handle]; ok {
		return ext.Width, ext.Height
	}
	return 800, 600
}

func (s *surface) Destroy() {
	s.c.recordLocked("DestroySurface#%d", s.id)
}
