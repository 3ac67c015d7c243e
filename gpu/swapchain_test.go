package gpu_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aldhinn/celerique/driver"
	"github.com/aldhinn/celerique/driver/drivertest"
	"github.com/aldhinn/celerique/gpu"
)

func TestImageCountIsMinPlusOneClamped(t *testing.T) {
	unbounded := drivertest.CapableAdapter()
	unbounded.Capabilities.MinImageCount = 2
	unbounded.Capabilities.MaxImageCount = 0

	m, _ := newManager(t, unbounded)
	require.NoError(t, m.RegisterSurface(windowA, driver.ProtocolX11))
	info, err := m.Surface(windowA)
	require.NoError(t, err)
	assert.Equal(t, 3, info.ImageCount)
}

func TestImageCountClampedToMax(t *testing.T) {
	capped := drivertest.CapableAdapter()
	capped.Capabilities.MinImageCount = 2
	capped.Capabilities.MaxImageCount = 2

	m, _ := newManager(t, capped)
	require.NoError(t, m.RegisterSurface(windowA, driver.ProtocolX11))
	info, err := m.Surface(windowA)
	require.NoError(t, err)
	assert.Equal(t, 2, info.ImageCount)
}

func TestSurfaceFormatPrefersBGRASRGB(t *testing.T) {
	spec := drivertest.CapableAdapter()
	spec.Formats = []driver.SurfaceFormat{
		{Format: driver.FormatB8G8R8A8UNorm, ColorSpace: driver.ColorSpaceSRGBNonlinear},
		{Format: driver.FormatB8G8R8A8SRGB, ColorSpace: driver.ColorSpaceSRGBNonlinear},
	}

	m, _ := newManager(t, spec)
	require.NoError(t, m.RegisterSurface(windowA, driver.ProtocolX11))
	info, err := m.Surface(windowA)
	require.NoError(t, err)
	assert.Equal(t, driver.FormatB8G8R8A8SRGB, info.Format)
}

func TestSurfaceFormatFallsBackToFirst(t *testing.T) {
	spec := drivertest.CapableAdapter()
	spec.Formats = []driver.SurfaceFormat{
		{Format: driver.FormatR8G8B8A8SRGB, ColorSpace: driver.ColorSpaceOther},
		{Format: driver.FormatB8G8R8A8UNorm, ColorSpace: driver.ColorSpaceSRGBNonlinear},
	}

	m, _ := newManager(t, spec)
	require.NoError(t, m.RegisterSurface(windowA, driver.ProtocolX11))
	info, err := m.Surface(windowA)
	require.NoError(t, err)
	assert.Equal(t, driver.FormatR8G8B8A8SRGB, info.Format)
}

func TestNoUsablePresentModeFailsRegistration(t *testing.T) {
	spec := drivertest.CapableAdapter()
	spec.PresentModes = []driver.PresentMode{driver.PresentModeImmediate}

	m, _ := newManager(t, spec)
	err := m.RegisterSurface(windowA, driver.ProtocolX11)
	require.ErrorIs(t, err, gpu.ErrNoPresentMode)
	assert.Equal(t, 0, m.SurfaceCount())
}

func TestPresentModeFallsBackToFIFO(t *testing.T) {
	spec := drivertest.CapableAdapter()
	spec.PresentModes = []driver.PresentMode{driver.PresentModeImmediate, driver.PresentModeFIFO}

	m, api := newManager(t, spec)
	require.NoError(t, m.RegisterSurface(windowA, driver.ProtocolX11))

	idx := api.FirstIndex("CreateSwapchain")
	require.GreaterOrEqual(t, idx, 0)
	assert.Contains(t, api.Ops()[idx], "mode=fifo")
}

func TestExtentFromDrawableSizeClamped(t *testing.T) {
	spec := drivertest.CapableAdapter()
	spec.Capabilities.CurrentExtent = driver.Extent2D{
		Width: driver.ExtentUndefined, Height: driver.ExtentUndefined,
	}
	spec.Capabilities.MinImageExtent = driver.Extent2D{Width: 16, Height: 16}
	spec.Capabilities.MaxImageExtent = driver.Extent2D{Width: 2048, Height: 2048}

	api := drivertest.New(spec)
	api.SetDrawableSize(windowA, 5000, 4)
	m, err := gpu.New(gpu.Config{API: api})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	require.NoError(t, m.RegisterSurface(windowA, driver.ProtocolWayland))
	info, err := m.Surface(windowA)
	require.NoError(t, err)
	assert.Equal(t, driver.Extent2D{Width: 2048, Height: 16}, info.Extent)
}

func TestRecreateRebuildsInCreationOrder(t *testing.T) {
	m, api := newManager(t)
	require.NoError(t, m.RegisterSurface(windowA, driver.ProtocolX11))
	_, err := m.AddPipeline(trianglePipeline())
	require.NoError(t, err)

	api.ClearOps()
	require.NoError(t, m.RecreateSwapchain(windowA))
	require.Eventually(t, func() bool {
		return api.CountPrefix("CreateSwapchain") == 1
	}, time.Second, time.Millisecond)

	idle := api.FirstIndex("DeviceWaitIdle")
	require.GreaterOrEqual(t, idle, 0)
	assert.Greater(t, api.FirstIndex("FreeCommandBuffer"), idle)
	assert.Greater(t, api.FirstIndex("DestroyFramebuffer"), api.FirstIndex("FreeCommandBuffer"))
	assert.Greater(t, api.FirstIndex("DestroyImageView"), api.FirstIndex("DestroyFramebuffer"))
	assert.Greater(t, api.FirstIndex("DestroySwapchain"), api.FirstIndex("DestroyImageView"))
	assert.Greater(t, api.FirstIndex("CreateSwapchain"), api.FirstIndex("DestroySwapchain"))
	assert.Greater(t, api.FirstIndex("CreateImageView"), api.FirstIndex("CreateSwapchain"))
	assert.Greater(t, api.FirstIndex("CreateFramebuffer"), api.FirstIndex("CreateImageView"))
	assert.Greater(t, api.FirstIndex("AllocateCommandBuffer"), api.FirstIndex("CreateFramebuffer"))

	// The render pass and pipelines survive re-provisioning untouched.
	assert.Equal(t, 0, api.CountPrefix("CreateRenderPass"))
	assert.Equal(t, 0, api.CountPrefix("DestroyRenderPass"))
	assert.Equal(t, 0, api.CountPrefix("CreateGraphicsPipeline"))
	assert.Equal(t, 0, api.CountPrefix("DestroyPipeline#"))
}

func TestRecreateKeepsSyncObjectsWhenCountStable(t *testing.T) {
	m, api := newManager(t)
	require.NoError(t, m.RegisterSurface(windowA, driver.ProtocolX11))

	api.ClearOps()
	require.NoError(t, m.RecreateSwapchain(windowA))
	require.Eventually(t, func() bool {
		return api.CountPrefix("CreateSwapchain") == 1
	}, time.Second, time.Millisecond)

	assert.Equal(t, 0, api.CountPrefix("DestroyFence"))
	assert.Equal(t, 0, api.CountPrefix("CreateFence"))
}

func TestRecreateUnknownSurface(t *testing.T) {
	m, _ := newManager(t)
	err := m.RecreateSwapchain(windowA)
	assert.ErrorIs(t, err, gpu.ErrUnknownSurface)
}

func TestRecreateBurstLeavesSurfaceConsistent(t *testing.T) {
	m, api := newManager(t)
	require.NoError(t, m.RegisterSurface(windowA, driver.ProtocolX11))

	api.ClearOps()
	// A resize burst. Posting never blocks, extra events coalesce onto
	// the queued task, and the surface ends up fully provisioned.
	for i := 0; i < 50; i++ {
		require.NoError(t, m.RecreateSwapchain(windowA))
	}
	require.Eventually(t, func() bool {
		return api.CountPrefix("CreateSwapchain") >= 1 &&
			api.CountPrefix("CreateSwapchain") == api.CountPrefix("DestroySwapchain")
	}, time.Second, time.Millisecond)

	info, err := m.Surface(windowA)
	require.NoError(t, err)
	assert.Equal(t, 3, info.ImageCount)
}
