package gpu

import "github.com/cockroachdb/errors"

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("gpu: manager is closed")

// ErrNoSuitableAdapter means no installed adapter satisfies the
// provisioning criteria (anisotropic sampling, required device
// extensions, usable surface formats and present modes, graphics and
// present queue families).
var ErrNoSuitableAdapter = errors.New("gpu: no suitable adapter")

// ErrNoDevice means an operation that needs a logical device ran
// before any surface was registered.
var ErrNoDevice = errors.New("gpu: no device; register a surface first")

// ErrNoPresentMode means the surface reports neither mailbox nor FIFO
// presentation. Swapchain creation fails rather than passing an
// invalid mode to the backend.
var ErrNoPresentMode = errors.New("gpu: surface reports no usable present mode")

// ErrNoSurfaceFormat means the surface reports an empty format set.
// Registration screens for this, but a swapchain rebuild re-queries
// support and the set can have emptied since.
var ErrNoSurfaceFormat = errors.New("gpu: surface reports no formats")

// ErrUnknownSurface means the window handle has no registration.
var ErrUnknownSurface = errors.New("gpu: unknown surface")

// ErrUnknownPipeline means the pipeline id does not name a live
// pipeline.
var ErrUnknownPipeline = errors.New("gpu: unknown pipeline")
