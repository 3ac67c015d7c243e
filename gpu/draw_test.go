package gpu_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aldhinn/celerique/driver"
	"github.com/aldhinn/celerique/gpu"
)

// quadMesh packs four interleaved vec2-position vec3-color vertices
// with two triangles of indices, matching trianglePipeline's layout.
func quadMesh() *gpu.Mesh {
	return &gpu.Mesh{
		VertexCount: 4,
		Stride:      20,
		Vertices:    make([]byte, 4*20),
		Indices:     []uint32{0, 1, 2, 2, 3, 0},
	}
}

func triangleMesh() *gpu.Mesh {
	return &gpu.Mesh{
		VertexCount: 3,
		Stride:      20,
		Vertices:    make([]byte, 3*20),
	}
}

func TestDrawUnknownPipeline(t *testing.T) {
	m, _ := newManager(t)
	require.NoError(t, m.RegisterSurface(windowA, driver.ProtocolX11))
	err := m.Draw(42, nil)
	assert.ErrorIs(t, err, gpu.ErrUnknownPipeline)
}

func TestDrawWithoutSurfacesIsNoOp(t *testing.T) {
	m, api := newManager(t)
	require.NoError(t, m.RegisterSurface(windowA, driver.ProtocolX11))
	id, err := m.AddPipeline(screenPipeline())
	require.NoError(t, err)
	require.NoError(t, m.RemoveSurface(windowA))

	api.ClearOps()
	require.NoError(t, m.Draw(id, nil))
	assert.Equal(t, 0, api.CountPrefix("Submit"))
}

func TestDrawFollowsFrameProtocol(t *testing.T) {
	m, api := newManager(t)
	require.NoError(t, m.RegisterSurface(windowA, driver.ProtocolX11))
	id, err := m.AddPipeline(screenPipeline())
	require.NoError(t, err)

	api.ClearOps()
	require.NoError(t, m.Draw(id, nil))

	order := []string{
		"WaitFence#",
		"Acquire#",
		"CmdReset#",
		"CmdBegin#",
		"CmdViewportScissor#",
		"CmdBeginRenderPass#",
		"CmdBindPipeline#",
		"CmdDraw#",
		"CmdEndRenderPass#",
		"CmdEnd#",
		"ResetFence#",
		"Submit family=",
		"SignalFence#",
		"Present#",
	}
	prev := -1
	for _, prefix := range order {
		idx := api.FirstIndex(prefix)
		require.GreaterOrEqual(t, idx, 0, "missing op %q", prefix)
		assert.Greater(t, idx, prev, "op %q out of order", prefix)
		prev = idx
	}

	acquire := api.Ops()[api.FirstIndex("Acquire#")]
	assert.Contains(t, acquire, "image=0")
	draw := api.Ops()[api.FirstIndex("CmdDraw#")]
	assert.Contains(t, draw, "vertices=0")
}

func TestDrawCyclesFrameIndex(t *testing.T) {
	m, _ := newManager(t)
	require.NoError(t, m.RegisterSurface(windowA, driver.ProtocolX11))
	id, err := m.AddPipeline(screenPipeline())
	require.NoError(t, err)

	info, err := m.Surface(windowA)
	require.NoError(t, err)
	frames := info.ImageCount

	for i := 1; i < frames; i++ {
		require.NoError(t, m.Draw(id, nil))
		info, err = m.Surface(windowA)
		require.NoError(t, err)
		assert.Equal(t, i, info.FrameIndex)
	}
	require.NoError(t, m.Draw(id, nil))
	info, err = m.Surface(windowA)
	require.NoError(t, err)
	assert.Equal(t, 0, info.FrameIndex)

	stats := m.Stats()
	assert.Equal(t, uint64(frames), stats.Frames)
	assert.Equal(t, uint64(0), stats.Dropped)
	assert.GreaterOrEqual(t, stats.Total, stats.Last)
}

func TestDrawUploadsMeshThroughStaging(t *testing.T) {
	m, api := newManager(t)
	require.NoError(t, m.RegisterSurface(windowA, driver.ProtocolX11))
	id, err := m.AddPipeline(trianglePipeline())
	require.NoError(t, err)

	api.ClearOps()
	require.NoError(t, m.Draw(id, triangleMesh()))

	// One device-local mesh buffer plus one transient staging buffer,
	// released before the draw returns.
	assert.Equal(t, 2, api.CountPrefix("CreateBuffer"))
	assert.Equal(t, 1, api.CountPrefix("WriteBuffer"))
	assert.Equal(t, 1, api.CountPrefix("CmdCopyBuffer"))
	assert.Equal(t, 1, api.CountPrefix("DestroyBuffer"))
	assert.Greater(t, api.FirstIndex("QueueWaitIdle"), api.FirstIndex("CmdCopyBuffer"))
	assert.Greater(t, api.FirstIndex("CmdBindVertexBuffer"), api.FirstIndex("QueueWaitIdle"))

	draw := api.Ops()[api.FirstIndex("CmdDraw#")]
	assert.Contains(t, draw, "vertices=3")
	assert.Equal(t, 0, api.CountPrefix("CmdBindIndexBuffer"))
}

func TestDrawIndexedBindsIndicesAfterVertices(t *testing.T) {
	m, api := newManager(t)
	require.NoError(t, m.RegisterSurface(windowA, driver.ProtocolX11))
	id, err := m.AddPipeline(trianglePipeline())
	require.NoError(t, err)

	api.ClearOps()
	require.NoError(t, m.Draw(id, quadMesh()))

	// Vertex and index writes target the one staging buffer.
	assert.Equal(t, 2, api.CountPrefix("WriteBuffer"))
	bindVertex := api.Ops()[api.FirstIndex("CmdBindVertexBuffer")]
	assert.Contains(t, bindVertex, "offset=0")
	bindIndex := api.Ops()[api.FirstIndex("CmdBindIndexBuffer")]
	assert.Contains(t, bindIndex, "offset=80")
	drawIndexed := api.Ops()[api.FirstIndex("CmdDrawIndexed")]
	assert.Contains(t, drawIndexed, "indices=6")
	assert.Equal(t, 0, api.CountPrefix("CmdDraw#"))
}

func TestMeshSlotsReusedPerFrame(t *testing.T) {
	m, api := newManager(t)
	require.NoError(t, m.RegisterSurface(windowA, driver.ProtocolX11))
	id, err := m.AddPipeline(trianglePipeline())
	require.NoError(t, err)

	info, err := m.Surface(windowA)
	require.NoError(t, err)
	frames := info.ImageCount

	// The first cycle populates one device-local slot per frame.
	api.ClearOps()
	for i := 0; i < frames; i++ {
		require.NoError(t, m.Draw(id, triangleMesh()))
	}
	assert.Equal(t, 2*frames, api.CountPrefix("CreateBuffer"))

	// The second cycle reuses the slots: only staging buffers remain.
	api.ClearOps()
	for i := 0; i < frames; i++ {
		require.NoError(t, m.Draw(id, triangleMesh()))
	}
	assert.Equal(t, frames, api.CountPrefix("CreateBuffer"))
	assert.Equal(t, frames, api.CountPrefix("DestroyBuffer"))
}

func TestMeshSlotReplacedWhenTooSmall(t *testing.T) {
	m, api := newManager(t)
	require.NoError(t, m.RegisterSurface(windowA, driver.ProtocolX11))
	id, err := m.AddPipeline(trianglePipeline())
	require.NoError(t, err)

	require.NoError(t, m.Draw(id, triangleMesh()))

	// Growing geometry lands on the same frame slot after a full
	// cycle, forcing the undersized buffer to be replaced.
	info, err := m.Surface(windowA)
	require.NoError(t, err)
	for info.FrameIndex != 0 {
		require.NoError(t, m.Draw(id, triangleMesh()))
		info, err = m.Surface(windowA)
		require.NoError(t, err)
	}

	api.ClearOps()
	require.NoError(t, m.Draw(id, quadMesh()))
	// Old slot buffer, new slot buffer, staging buffer.
	assert.Equal(t, 2, api.CountPrefix("DestroyBuffer"))
	assert.Equal(t, 2, api.CountPrefix("CreateBuffer"))
}

func TestDrawRetriesFrameAfterFailedUpload(t *testing.T) {
	m, api := newManager(t)
	require.NoError(t, m.RegisterSurface(windowA, driver.ProtocolX11))
	id, err := m.AddPipeline(trianglePipeline())
	require.NoError(t, err)

	api.FailNext("CreateBuffer", fmt.Errorf("out of device memory"))
	require.Error(t, m.Draw(id, triangleMesh()))

	// The failed frame left its fence signaled and its index in
	// place, so the same slot is immediately retryable.
	info, err := m.Surface(windowA)
	require.NoError(t, err)
	assert.Equal(t, 0, info.FrameIndex)

	require.NoError(t, m.Draw(id, triangleMesh()))
	info, err = m.Surface(windowA)
	require.NoError(t, err)
	assert.Equal(t, 1, info.FrameIndex)
	assert.Equal(t, uint64(1), m.Stats().Frames)
}

func TestFailedSlotReplacementLeavesNoStaleBuffer(t *testing.T) {
	m, api := newManager(t)
	require.NoError(t, m.RegisterSurface(windowA, driver.ProtocolX11))
	id, err := m.AddPipeline(trianglePipeline())
	require.NoError(t, err)

	require.NoError(t, m.Draw(id, triangleMesh()))
	info, err := m.Surface(windowA)
	require.NoError(t, err)
	for info.FrameIndex != 0 {
		require.NoError(t, m.Draw(id, triangleMesh()))
		info, err = m.Surface(windowA)
		require.NoError(t, err)
	}

	// Growing geometry destroys the undersized slot buffer, then the
	// replacement allocation fails.
	api.FailNext("CreateBuffer", fmt.Errorf("out of device memory"))
	require.Error(t, m.Draw(id, quadMesh()))

	// The retry must not see the destroyed buffer through the slot:
	// a fresh device-local buffer is created alongside the staging
	// buffer instead of reusing the dropped one.
	api.ClearOps()
	require.NoError(t, m.Draw(id, triangleMesh()))
	assert.Equal(t, 2, api.CountPrefix("CreateBuffer"))
	assert.Equal(t, 1, api.CountPrefix("CmdCopyBuffer"))
}

func TestAcquireOutOfDateSkipsOnlyThatSurface(t *testing.T) {
	m, api := newManager(t)
	require.NoError(t, m.RegisterSurface(windowA, driver.ProtocolX11))
	require.NoError(t, m.RegisterSurface(windowB, driver.ProtocolX11))
	id, err := m.AddPipeline(screenPipeline())
	require.NoError(t, err)

	api.InjectAcquireOutOfDate(windowA, 1)
	api.ClearOps()
	require.NoError(t, m.Draw(id, nil))

	// Only the healthy surface submits and presents. The stale one
	// leaves its fence signaled and its frame index untouched.
	assert.Equal(t, 1, api.CountPrefix("Submit"))
	assert.Equal(t, 1, api.CountPrefix("ResetFence"))
	assert.Equal(t, 1, api.CountPrefix("Present#"))

	a, err := m.Surface(windowA)
	require.NoError(t, err)
	assert.Equal(t, 0, a.FrameIndex)
	b, err := m.Surface(windowB)
	require.NoError(t, err)
	assert.Equal(t, 1, b.FrameIndex)

	stats := m.Stats()
	assert.Equal(t, uint64(1), stats.Frames)
	assert.Equal(t, uint64(1), stats.Dropped)

	// The stale surface recovers on the next draw.
	require.NoError(t, m.Draw(id, nil))
	a, err = m.Surface(windowA)
	require.NoError(t, err)
	assert.Equal(t, 1, a.FrameIndex)
}

func TestPresentSuboptimalStillAdvances(t *testing.T) {
	m, api := newManager(t)
	require.NoError(t, m.RegisterSurface(windowA, driver.ProtocolX11))
	id, err := m.AddPipeline(screenPipeline())
	require.NoError(t, err)

	api.InjectPresentError(windowA, driver.ErrSuboptimal)
	require.NoError(t, m.Draw(id, nil))

	info, err := m.Surface(windowA)
	require.NoError(t, err)
	assert.Equal(t, 1, info.FrameIndex)
	assert.Equal(t, uint64(1), m.Stats().Dropped)
}

func TestPresentHardErrorPropagates(t *testing.T) {
	m, api := newManager(t)
	require.NoError(t, m.RegisterSurface(windowA, driver.ProtocolX11))
	id, err := m.AddPipeline(screenPipeline())
	require.NoError(t, err)

	api.InjectPresentError(windowA, driver.ErrDeviceLost)
	err = m.Draw(id, nil)
	assert.ErrorIs(t, err, driver.ErrDeviceLost)
}

func TestConcurrentDrawsSerializePerSurface(t *testing.T) {
	m, _ := newManager(t)
	require.NoError(t, m.RegisterSurface(windowA, driver.ProtocolX11))
	require.NoError(t, m.RegisterSurface(windowB, driver.ProtocolWayland))
	id, err := m.AddPipeline(trianglePipeline())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 8; i++ {
				assert.NoError(t, m.Draw(id, triangleMesh()))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(64), m.Stats().Frames)
}
