package gpu_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aldhinn/celerique/driver"
	"github.com/aldhinn/celerique/gpu"
)

func TestAddPipelineRequiresSurface(t *testing.T) {
	m, _ := newManager(t)
	_, err := m.AddPipeline(trianglePipeline())
	assert.ErrorIs(t, err, gpu.ErrNoDevice)
}

func TestAddPipelineRequiresStages(t *testing.T) {
	m, _ := newManager(t)
	require.NoError(t, m.RegisterSurface(windowA, driver.ProtocolX11))
	_, err := m.AddPipeline(gpu.PipelineConfig{})
	assert.Error(t, err)
	assert.Equal(t, 0, m.PipelineCount())
}

func TestPipelineIDsStrictlyIncrease(t *testing.T) {
	m, _ := newManager(t)
	require.NoError(t, m.RegisterSurface(windowA, driver.ProtocolX11))

	var prev gpu.PipelineID
	for i := 0; i < 4; i++ {
		id, err := m.AddPipeline(screenPipeline())
		require.NoError(t, err)
		assert.Greater(t, id, prev)
		prev = id
	}

	// Removal never frees an id for reuse.
	require.NoError(t, m.RemovePipeline(prev))
	id, err := m.AddPipeline(screenPipeline())
	require.NoError(t, err)
	assert.Greater(t, id, prev)
}

func TestAddPipelineCreatesOneModulePerStage(t *testing.T) {
	m, api := newManager(t)
	require.NoError(t, m.RegisterSurface(windowA, driver.ProtocolX11))

	api.ClearOps()
	_, err := m.AddPipeline(trianglePipeline())
	require.NoError(t, err)

	assert.Equal(t, 2, api.CountPrefix("CreateShaderModule"))
	assert.Equal(t, 1, api.CountPrefix("CreatePipelineLayout"))
	assert.Equal(t, 1, api.CountPrefix("CreateGraphicsPipeline"))
	idx := api.FirstIndex("CreateGraphicsPipeline")
	require.GreaterOrEqual(t, idx, 0)
	assert.Contains(t, api.Ops()[idx], "stages=2 bindings=1 attrs=2")
}

func TestAddPipelineFailureUnwindsModules(t *testing.T) {
	m, api := newManager(t)
	require.NoError(t, m.RegisterSurface(windowA, driver.ProtocolX11))

	api.FailNext("CreateGraphicsPipeline", fmt.Errorf("compiler rejected state"))
	api.ClearOps()
	_, err := m.AddPipeline(trianglePipeline())
	require.Error(t, err)

	assert.Equal(t, 0, m.PipelineCount())
	assert.Equal(t, 2, api.CountPrefix("DestroyShaderModule"))
	assert.Equal(t, 1, api.CountPrefix("DestroyPipelineLayout"))
}

func TestRemovePipelineLeavesOthersIntact(t *testing.T) {
	m, api := newManager(t)
	require.NoError(t, m.RegisterSurface(windowA, driver.ProtocolX11))

	first, err := m.AddPipeline(trianglePipeline())
	require.NoError(t, err)
	second, err := m.AddPipeline(screenPipeline())
	require.NoError(t, err)

	api.ClearOps()
	require.NoError(t, m.RemovePipeline(first))
	assert.Equal(t, 1, m.PipelineCount())
	assert.Equal(t, 1, api.CountPrefix("DestroyPipeline#"))
	assert.Equal(t, 1, api.CountPrefix("DestroyPipelineLayout"))
	assert.Equal(t, 2, api.CountPrefix("DestroyShaderModule"))

	// The survivor still draws.
	require.NoError(t, m.Draw(second, nil))
}

func TestRemoveUnknownPipeline(t *testing.T) {
	m, _ := newManager(t)
	require.NoError(t, m.RegisterSurface(windowA, driver.ProtocolX11))

	err := m.RemovePipeline(99)
	assert.ErrorIs(t, err, gpu.ErrUnknownPipeline)

	id, err := m.AddPipeline(screenPipeline())
	require.NoError(t, err)
	require.NoError(t, m.RemovePipeline(id))
	assert.ErrorIs(t, m.RemovePipeline(id), gpu.ErrUnknownPipeline)
}

func TestClearPipelinesDestroysEverything(t *testing.T) {
	m, api := newManager(t)
	require.NoError(t, m.RegisterSurface(windowA, driver.ProtocolX11))

	_, err := m.AddPipeline(trianglePipeline())
	require.NoError(t, err)
	_, err = m.AddPipeline(screenPipeline())
	require.NoError(t, err)

	api.ClearOps()
	require.NoError(t, m.ClearPipelines())
	assert.Equal(t, 0, m.PipelineCount())
	assert.Equal(t, 2, api.CountPrefix("DestroyPipeline#"))
	assert.Equal(t, 2, api.CountPrefix("DestroyPipelineLayout"))
	assert.Equal(t, 4, api.CountPrefix("DestroyShaderModule"))
}
