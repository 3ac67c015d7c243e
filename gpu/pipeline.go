package gpu

import (
	"sort"

	"github.com/cockroachdb/errors"

	"github.com/aldhinn/celerique/driver"
)

// PipelineID names one compiled pipeline. Ids are process-wide unique,
// strictly increasing and never reused.
type PipelineID uint64

// ElementType is the scalar type of a vertex input element.
type ElementType int

const (
	TypeFloat32 ElementType = iota
	TypeInt32
	TypeUint32
)

// byteSize returns the element's size in bytes.
func (t ElementType) byteSize() int { return 4 }

// InputLayout describes one vertex or uniform input of a pipeline
// configuration.
type InputLayout struct {
	Binding      int
	Location     int
	Offset       int
	ElementCount int
	Type         ElementType

	// Stage is the shader stage the input feeds. Informational.
	Stage driver.ShaderStage
}

// PipelineConfig bundles compiled shader bytecode per stage with an
// ordered vertex input layout.
type PipelineConfig struct {
	Stages map[driver.ShaderStage][]byte
	Inputs []InputLayout
}

// pipelineEntry tracks everything created for one pipeline id so that
// removal can release it completely without touching other entries.
type pipelineEntry struct {
	id       PipelineID
	pipeline driver.Pipeline
	layout   driver.PipelineLayout
	modules  []driver.ShaderModule
}

func (e *pipelineEntry) destroy() {
	e.pipeline.Destroy()
	e.layout.Destroy()
	for _, mod := range e.modules {
		mod.Destroy()
	}
}

// AddPipeline compiles a pipeline configuration into a bound pipeline
// object on the shared render pass and returns its id. At least one
// surface must already be registered, since pipelines need the logical
// device and render pass.
func (m *Manager) AddPipeline(cfg PipelineConfig) (PipelineID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	if m.dev == nil || m.renderPass == nil {
		return 0, ErrNoDevice
	}
	if len(cfg.Stages) == 0 {
		return 0, errors.New("gpu: pipeline configuration has no shader stages")
	}

	entry := &pipelineEntry{}
	abort := func(err error) (PipelineID, error) {
		for _, mod := range entry.modules {
			mod.Destroy()
		}
		if entry.layout != nil {
			entry.layout.Destroy()
		}
		return 0, err
	}

	// Stage order is made deterministic so identical configurations
	// compile identically.
	stages := make([]driver.ShaderStage, 0, len(cfg.Stages))
	for stage := range cfg.Stages {
		stages = append(stages, stage)
	}
	sort.Slice(stages, func(a, b int) bool { return stages[a] < stages[b] })

	var stageModules []driver.StageModule
	for _, stage := range stages {
		mod, err := m.dev.dev.CreateShaderModule(cfg.Stages[stage])
		if err != nil {
			m.log.Error("shader module creation failed", "stage", stage.String(), "err", err)
			return abort(errors.Wrapf(err, "gpu: compiling %s stage", stage))
		}
		entry.modules = append(entry.modules, mod)
		stageModules = append(stageModules, driver.StageModule{Stage: stage, Module: mod})
	}

	bindings, attributes := vertexInputState(cfg.Inputs)

	layout, err := m.dev.dev.CreatePipelineLayout()
	if err != nil {
		m.log.Error("pipeline layout creation failed", "err", err)
		return abort(errors.Wrap(err, "gpu: creating pipeline layout"))
	}
	entry.layout = layout

	pipeline, err := m.dev.dev.CreateGraphicsPipeline(driver.PipelineConfig{
		Stages:     stageModules,
		Bindings:   bindings,
		Attributes: attributes,
		Layout:     layout,
		RenderPass: m.renderPass,
	})
	if err != nil {
		m.log.Error("pipeline creation failed", "err", err)
		return abort(errors.Wrap(err, "gpu: creating graphics pipeline"))
	}
	entry.pipeline = pipeline

	entry.id = PipelineID(m.pipelineIDs.Next())
	m.pipes[entry.id] = entry
	m.log.Info("pipeline added", "pipeline", uint64(entry.id), "stages", len(stageModules))
	return entry.id, nil
}

// vertexInputState derives binding and attribute descriptions from the
// configuration's input layout. A configuration with no inputs yields
// none, producing a pipeline with no vertex input state.
func vertexInputState(inputs []InputLayout) ([]driver.VertexBinding, []driver.VertexAttribute) {
	if len(inputs) == 0 {
		return nil, nil
	}

	strides := make(map[int]int)
	var order []int
	attributes := make([]driver.VertexAttribute, 0, len(inputs))
	for _, in := range inputs {
		if _, ok := strides[in.Binding]; !ok {
			order = append(order, in.Binding)
		}
		strides[in.Binding] += in.Type.byteSize() * in.ElementCount
		attributes = append(attributes, driver.VertexAttribute{
			Binding:  in.Binding,
			Location: in.Location,
			Offset:   in.Offset,
			Format:   attributeFormat(in.Type, in.ElementCount),
		})
	}
	sort.Ints(order)

	bindings := make([]driver.VertexBinding, 0, len(order))
	for _, binding := range order {
		bindings = append(bindings, driver.VertexBinding{
			Binding: binding,
			Stride:  strides[binding],
		})
	}
	return bindings, attributes
}

func attributeFormat(t ElementType, count int) driver.Format {
	switch t {
	case TypeFloat32:
		switch count {
		case 1:
			return driver.FormatR32SFloat
		case 2:
			return driver.FormatR32G32SFloat
		case 3:
			return driver.FormatR32G32B32SFloat
		default:
			return driver.FormatR32G32B32A32SFloat
		}
	case TypeInt32:
		switch count {
		case 1:
			return driver.FormatR32SInt
		case 2:
			return driver.FormatR32G32SInt
		case 3:
			return driver.FormatR32G32B32SInt
		default:
			return driver.FormatR32G32B32A32SInt
		}
	default:
		switch count {
		case 1:
			return driver.FormatR32UInt
		case 2:
			return driver.FormatR32G32UInt
		case 3:
			return driver.FormatR32G32B32UInt
		default:
			return driver.FormatR32G32B32A32UInt
		}
	}
}

// RemovePipeline destroys one pipeline and everything created for it.
// Other pipelines are untouched. Removing an id that is not present is
// an explicit error, never a silent map default.
func (m *Manager) RemovePipeline(id PipelineID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	entry, ok := m.pipes[id]
	if !ok {
		return errors.Wrapf(ErrUnknownPipeline, "pipeline %d", id)
	}
	entry.destroy()
	delete(m.pipes, id)
	m.log.Info("pipeline removed", "pipeline", uint64(id))
	return nil
}

// ClearPipelines removes every tracked pipeline.
func (m *Manager) ClearPipelines() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	for id, entry := range m.pipes {
		entry.destroy()
		delete(m.pipes, id)
	}
	m.log.Info("pipelines cleared")
	return nil
}

// PipelineCount returns the number of live pipelines.
func (m *Manager) PipelineCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pipes)
}
