package gpu_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aldhinn/celerique/driver"
	"github.com/aldhinn/celerique/driver/drivertest"
	"github.com/aldhinn/celerique/gpu"
)

const (
	windowA = driver.WindowHandle(0x1001)
	windowB = driver.WindowHandle(0x1002)
)

func newManager(t *testing.T, specs ...drivertest.AdapterSpec) (*gpu.Manager, *drivertest.API) {
	t.Helper()
	api := drivertest.New(specs...)
	m, err := gpu.New(gpu.Config{API: api})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m, api
}

// trianglePipeline is a minimal vertex+fragment configuration with a
// two-attribute interleaved vertex layout.
func trianglePipeline() gpu.PipelineConfig {
	return gpu.PipelineConfig{
		Stages: map[driver.ShaderStage][]byte{
			driver.StageVertex:   {0x03, 0x02, 0x23, 0x07},
			driver.StageFragment: {0x03, 0x02, 0x23, 0x07},
		},
		Inputs: []gpu.InputLayout{
			{Binding: 0, Location: 0, Offset: 0, ElementCount: 2, Type: gpu.TypeFloat32, Stage: driver.StageVertex},
			{Binding: 0, Location: 1, Offset: 8, ElementCount: 3, Type: gpu.TypeFloat32, Stage: driver.StageVertex},
		},
	}
}

// screenPipeline has shader stages only: no vertex layout entries.
func screenPipeline() gpu.PipelineConfig {
	return gpu.PipelineConfig{
		Stages: map[driver.ShaderStage][]byte{
			driver.StageVertex:   {0x03, 0x02, 0x23, 0x07},
			driver.StageFragment: {0x03, 0x02, 0x23, 0x07},
		},
	}
}
