package driver

import "github.com/cockroachdb/errors"

// ErrNoAdapter means the backend found no physical adapters at all.
var ErrNoAdapter = errors.New("driver: no physical adapter present")

// ErrSwapchainOutOfDate means the swapchain no longer matches its
// surface and must be recreated before further use. Reported by
// Swapchain.Acquire and Queue.Present.
var ErrSwapchainOutOfDate = errors.New("driver: swapchain out of date")

// ErrSuboptimal means presentation succeeded but the swapchain no
// longer matches the surface exactly. Reported by Queue.Present only.
var ErrSuboptimal = errors.New("driver: swapchain suboptimal")

// ErrDeviceLost means the logical device is in an unrecoverable state.
var ErrDeviceLost = errors.New("driver: device lost")

// ErrHostVisibleRequired means a Write was attempted on a buffer that
// is not host-visible.
var ErrHostVisibleRequired = errors.New("driver: buffer is not host-visible")
