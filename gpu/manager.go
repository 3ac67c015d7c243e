// Package gpu implements the GPU resource manager: it registers
// drawable surfaces, provisions devices, swapchains and pipelines for
// them, and executes frame submission.
//
// One Manager owns every GPU handle it creates. All state lives behind
// a single reader/writer lock: frame submission for different surfaces
// runs concurrently under the shared lock, while structural mutation
// (surface registration/removal, swapchain re-provisioning, pipeline
// add/remove) takes the lock exclusively.
package gpu

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/aldhinn/celerique/driver"
	"github.com/aldhinn/celerique/internal/ids"
)

// DefaultDeviceExtensions are required of every candidate adapter when
// Config.DeviceExtensions is empty.
var DefaultDeviceExtensions = []string{"VK_KHR_swapchain"}

// Config configures a Manager. API is required; everything else has a
// usable default.
type Config struct {
	// API is the graphics backend the manager drives.
	API driver.API

	// Logger receives lifecycle and diagnostic output. Nil disables
	// logging.
	Logger *slog.Logger

	// ClearColor is the render-pass clear color. The zero value
	// selects opaque black.
	ClearColor [4]float32

	// DeviceExtensions overrides the device extensions required of
	// candidate adapters.
	DeviceExtensions []string

	// FramesInFlight caps the number of in-flight frames per surface.
	// Zero tracks the swapchain image count.
	FramesInFlight int
}

// Manager coordinates every handle-based GPU resource in the process.
// Construct with New and release with Close; there is no implicit
// global instance.
type Manager struct {
	api        driver.API
	log        *slog.Logger
	clearColor [4]float32
	deviceExt  []string
	frameCap   int

	mu       sync.RWMutex
	adapters []driver.Adapter
	dev      *deviceContext
	surfaces map[driver.WindowHandle]*surfaceState
	pipes    map[PipelineID]*pipelineEntry

	// renderPass is the single process-wide render pass description,
	// created lazily with the first surface and shared by every
	// pipeline and framebuffer thereafter.
	renderPass driver.RenderPass

	pipelineIDs ids.Generator
	bufferIDs   ids.Generator

	closed bool

	statsMu sync.Mutex
	stats   FrameStats
}

// FrameStats aggregates CPU-side frame timing across all surfaces.
type FrameStats struct {
	// Frames counts completed submissions.
	Frames uint64
	// Dropped counts frames skipped on out-of-date acquire.
	Dropped uint64
	// Last is the CPU time of the most recent frame.
	Last time.Duration
	// Total accumulates CPU time of all completed frames.
	Total time.Duration
}

// New constructs a Manager, enumerating physical adapters once up
// front.
func New(cfg Config) (*Manager, error) {
	if cfg.API == nil {
		return nil, errors.New("gpu: Config.API is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(nopHandler{})
	}

	clear := cfg.ClearColor
	if clear == ([4]float32{}) {
		clear = [4]float32{0, 0, 0, 1}
	}

	ext := cfg.DeviceExtensions
	if len(ext) == 0 {
		ext = DefaultDeviceExtensions
	}

	adapters, err := cfg.API.Adapters()
	if err != nil {
		return nil, errors.Wrap(err, "gpu: enumerating adapters")
	}

	m := &Manager{
		api:        cfg.API,
		log:        logger,
		clearColor: clear,
		deviceExt:  ext,
		frameCap:   cfg.FramesInFlight,
		adapters:   adapters,
		surfaces:   make(map[driver.WindowHandle]*surfaceState),
		pipes:      make(map[PipelineID]*pipelineEntry),
	}
	m.log.Info("resource manager up", "adapters", len(adapters))
	return m, nil
}

// Stats returns a snapshot of the frame statistics.
func (m *Manager) Stats() FrameStats {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	return m.stats
}

func (m *Manager) recordFrame(d time.Duration) {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	m.stats.Frames++
	m.stats.Last = d
	m.stats.Total += d
}

func (m *Manager) recordDropped() {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	m.stats.Dropped++
}

// SurfaceCount returns the number of registered surfaces.
func (m *Manager) SurfaceCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.surfaces)
}

// SurfaceInfo reports the presentation state of a registered surface.
type SurfaceInfo struct {
	Extent     driver.Extent2D
	Format     driver.Format
	ImageCount int
	FrameIndex int
}

// Surface returns diagnostic info for a registered surface.
func (m *Manager) Surface(handle driver.WindowHandle) (SurfaceInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.surfaces[handle]
	if !ok {
		return SurfaceInfo{}, errors.Wrapf(ErrUnknownSurface, "window %d", handle)
	}
	s.drawMu.Lock()
	defer s.drawMu.Unlock()
	return SurfaceInfo{
		Extent:     s.extent,
		Format:     s.format,
		ImageCount: len(s.views),
		FrameIndex: s.frameIndex,
	}, nil
}

// Close tears the manager down in reverse dependency order: surfaces,
// pipelines, render pass, device, backend. Idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true

	if m.dev != nil {
		if err := m.dev.dev.WaitIdle(); err != nil {
			m.log.Error("device idle wait failed during shutdown", "err", err)
			return errors.Wrap(err, "gpu: waiting for device idle at shutdown")
		}
	}

	for handle, s := range m.surfaces {
		s.stopMaintenance()
		s.destroyResources()
		s.surface.Destroy()
		delete(m.surfaces, handle)
	}

	for id := range m.pipes {
		m.pipes[id].destroy()
		delete(m.pipes, id)
	}

	if m.renderPass != nil {
		m.renderPass.Destroy()
		m.renderPass = nil
	}

	if m.dev != nil {
		m.dev.destroy()
		m.dev = nil
	}

	m.api.Close()
	m.log.Info("resource manager down")
	return nil
}

// nopHandler discards all log records. Enabled returns false so
// callers skip message formatting entirely when logging is disabled.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }
