package gpu_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aldhinn/celerique/driver"
	"github.com/aldhinn/celerique/driver/drivertest"
	"github.com/aldhinn/celerique/gpu"
)

func TestNewRequiresAPI(t *testing.T) {
	_, err := gpu.New(gpu.Config{})
	require.Error(t, err)
}

func TestRegisterInvalidInputIgnored(t *testing.T) {
	m, api := newManager(t)

	require.NoError(t, m.RegisterSurface(0, driver.ProtocolX11))
	require.NoError(t, m.RegisterSurface(windowA, driver.ProtocolNone))

	assert.Equal(t, 0, m.SurfaceCount())
	assert.Equal(t, 0, api.CountPrefix("CreateSurface"))
	assert.Equal(t, 0, api.CountPrefix("CreateDevice"))
}

func TestRegisterIdempotent(t *testing.T) {
	m, api := newManager(t)

	require.NoError(t, m.RegisterSurface(windowA, driver.ProtocolWayland))
	require.NoError(t, m.RegisterSurface(windowA, driver.ProtocolWayland))

	assert.Equal(t, 1, m.SurfaceCount())
	assert.Equal(t, 1, api.CountPrefix("CreateDevice"))
	assert.Equal(t, 1, api.CountPrefix("CreateSwapchain"))
}

func TestRegisterNoSuitableAdapter(t *testing.T) {
	spec := drivertest.CapableAdapter()
	spec.SamplerAnisotropy = false
	m, api := newManager(t, spec)

	err := m.RegisterSurface(windowA, driver.ProtocolX11)
	require.ErrorIs(t, err, gpu.ErrNoSuitableAdapter)
	assert.Equal(t, 0, m.SurfaceCount())
	// The half-built native surface must not leak.
	assert.Equal(t, 1, api.CountPrefix("DestroySurface"))
}

func TestAdapterScoringSkipsUnqualified(t *testing.T) {
	noExt := drivertest.CapableAdapter()
	noExt.Name = "integrated"
	noExt.Extensions = nil

	noPresent := drivertest.CapableAdapter()
	noPresent.Name = "compute-only"
	noPresent.Families = []driver.QueueFamily{
		{Index: 0, QueueCount: 1, Graphics: true, CanPresent: false},
	}

	good := drivertest.CapableAdapter()
	good.Name = "discrete"

	m, api := newManager(t, noExt, noPresent, good)
	require.NoError(t, m.RegisterSurface(windowA, driver.ProtocolWin32))

	ops := api.Ops()
	idx := api.FirstIndex("CreateDevice")
	require.GreaterOrEqual(t, idx, 0)
	assert.Contains(t, ops[idx], "adapter=discrete")
}

func TestDeviceReusedAcrossSurfaces(t *testing.T) {
	m, api := newManager(t)

	require.NoError(t, m.RegisterSurface(windowA, driver.ProtocolWayland))
	require.NoError(t, m.RegisterSurface(windowB, driver.ProtocolWayland))

	assert.Equal(t, 2, m.SurfaceCount())
	assert.Equal(t, 1, api.CountPrefix("CreateDevice"))
	assert.Equal(t, 2, api.CountPrefix("CreateSwapchain"))
	// The render pass is a process-wide singleton.
	assert.Equal(t, 1, api.CountPrefix("CreateRenderPass"))
}

func TestRemoveUnknownSurfaceIsNoOp(t *testing.T) {
	m, api := newManager(t)
	require.NoError(t, m.RemoveSurface(windowA))
	assert.Equal(t, 0, api.CountPrefix("DeviceWaitIdle"))
}

func TestRemoveWaitsForDeviceIdleFirst(t *testing.T) {
	m, api := newManager(t)
	require.NoError(t, m.RegisterSurface(windowA, driver.ProtocolX11))

	api.ClearOps()
	require.NoError(t, m.RemoveSurface(windowA))

	idle := api.FirstIndex("DeviceWaitIdle")
	require.GreaterOrEqual(t, idle, 0)
	for _, prefix := range []string{
		"DestroyFence", "DestroySemaphore", "FreeCommandBuffer",
		"DestroyFramebuffer", "DestroyImageView", "DestroySwapchain",
		"DestroyCommandPool", "DestroySurface",
	} {
		first := api.FirstIndex(prefix)
		require.GreaterOrEqual(t, first, 0, "expected %s during removal", prefix)
		assert.Greater(t, first, idle, "%s must come after the idle wait", prefix)
	}
	assert.Equal(t, 0, m.SurfaceCount())
}

func TestRemoveDestroysSwapchainAfterViews(t *testing.T) {
	m, api := newManager(t)
	require.NoError(t, m.RegisterSurface(windowA, driver.ProtocolX11))

	api.ClearOps()
	require.NoError(t, m.RemoveSurface(windowA))

	assert.Less(t, api.LastIndex("DestroyFramebuffer"), api.FirstIndex("DestroyImageView"))
	assert.Less(t, api.LastIndex("DestroyImageView"), api.FirstIndex("DestroySwapchain"))
	assert.Less(t, api.FirstIndex("DestroySwapchain"), api.FirstIndex("DestroySurface"))
}

func TestOperationsAfterClose(t *testing.T) {
	m, _ := newManager(t)
	require.NoError(t, m.Close())

	assert.ErrorIs(t, m.RegisterSurface(windowA, driver.ProtocolX11), gpu.ErrClosed)
	assert.ErrorIs(t, m.RemoveSurface(windowA), gpu.ErrClosed)
	_, err := m.AddPipeline(screenPipeline())
	assert.ErrorIs(t, err, gpu.ErrClosed)
	assert.ErrorIs(t, m.Draw(1, nil), gpu.ErrClosed)
}

func TestCloseIdempotentAndOrdered(t *testing.T) {
	m, api := newManager(t)
	require.NoError(t, m.RegisterSurface(windowA, driver.ProtocolX11))
	_, err := m.AddPipeline(screenPipeline())
	require.NoError(t, err)

	api.ClearOps()
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	idle := api.FirstIndex("DeviceWaitIdle")
	require.GreaterOrEqual(t, idle, 0)
	assert.Greater(t, api.FirstIndex("DestroyPipeline#"), idle)
	assert.Greater(t, api.FirstIndex("DestroyRenderPass"), api.FirstIndex("DestroyPipeline#"))
	assert.Greater(t, api.FirstIndex("DestroyDevice"), api.FirstIndex("DestroyRenderPass"))
	assert.Equal(t, 1, api.CountPrefix("CloseAPI"))
	assert.True(t, api.Closed())
}
