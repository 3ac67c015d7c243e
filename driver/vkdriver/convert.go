package vkdriver

import (
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"

	"github.com/aldhinn/celerique/driver"
)

var formatToVk = map[driver.Format]core1_0.Format{
	driver.FormatB8G8R8A8SRGB:        core1_0.FormatB8G8R8A8SRGB,
	driver.FormatR8G8B8A8SRGB:        core1_0.FormatR8G8B8A8SRGB,
	driver.FormatB8G8R8A8UNorm:       core1_0.FormatB8G8R8A8UnsignedNormalized,
	driver.FormatR32SFloat:           core1_0.FormatR32SignedFloat,
	driver.FormatR32G32SFloat:        core1_0.FormatR32G32SignedFloat,
	driver.FormatR32G32B32SFloat:     core1_0.FormatR32G32B32SignedFloat,
	driver.FormatR32G32B32A32SFloat:  core1_0.FormatR32G32B32A32SignedFloat,
	driver.FormatR32SInt:             core1_0.FormatR32SignedInt,
	driver.FormatR32G32SInt:          core1_0.FormatR32G32SignedInt,
	driver.FormatR32G32B32SInt:       core1_0.FormatR32G32B32SignedInt,
	driver.FormatR32G32B32A32SInt:    core1_0.FormatR32G32B32A32SignedInt,
	driver.FormatR32UInt:             core1_0.FormatR32UnsignedInt,
	driver.FormatR32G32UInt:          core1_0.FormatR32G32UnsignedInt,
	driver.FormatR32G32B32UInt:       core1_0.FormatR32G32B32UnsignedInt,
	driver.FormatR32G32B32A32UInt:    core1_0.FormatR32G32B32A32UnsignedInt,
}

var formatFromVk = func() map[core1_0.Format]driver.Format {
	m := make(map[core1_0.Format]driver.Format, len(formatToVk))
	for k, v := range formatToVk {
		m[v] = k
	}
	return m
}()

func toVkFormat(f driver.Format) core1_0.Format {
	return formatToVk[f]
}

// fromVkFormat maps a backend format onto the modeled set; formats the
// resource manager never selects come back as FormatUndefined and are
// filtered out of surface enumeration.
func fromVkFormat(f core1_0.Format) driver.Format {
	return formatFromVk[f]
}

func fromVkColorSpace(cs khr_surface.ColorSpace) driver.ColorSpace {
	if cs == khr_surface.ColorSpaceSRGBNonlinear {
		return driver.ColorSpaceSRGBNonlinear
	}
	return driver.ColorSpaceOther
}

func fromVkPresentMode(m khr_surface.PresentMode) (driver.PresentMode, bool) {
	switch m {
	case khr_surface.PresentModeFIFO:
		return driver.PresentModeFIFO, true
	case khr_surface.PresentModeMailbox:
		return driver.PresentModeMailbox, true
	case khr_surface.PresentModeImmediate:
		return driver.PresentModeImmediate, true
	case khr_surface.PresentModeFIFORelaxed:
		return driver.PresentModeFIFORelaxed, true
	default:
		return 0, false
	}
}

func toVkPresentMode(m driver.PresentMode) khr_surface.PresentMode {
	switch m {
	case driver.PresentModeMailbox:
		return khr_surface.PresentModeMailbox
	case driver.PresentModeImmediate:
		return khr_surface.PresentModeImmediate
	case driver.PresentModeFIFORelaxed:
		return khr_surface.PresentModeFIFORelaxed
	default:
		return khr_surface.PresentModeFIFO
	}
}

func fromVkExtent(e core1_0.Extent2D) driver.Extent2D {
	return driver.Extent2D{Width: e.Width, Height: e.Height}
}

func toVkExtent(e driver.Extent2D) core1_0.Extent2D {
	return core1_0.Extent2D{Width: e.Width, Height: e.Height}
}

func toVkPipelineStage(s driver.PipelineStage) core1_0.PipelineStageFlags {
	switch s {
	case driver.StageTopOfPipe:
		return core1_0.PipelineStageTopOfPipe
	case driver.StageTransfer:
		return core1_0.PipelineStageTransfer
	case driver.StageBottomOfPipe:
		return core1_0.PipelineStageBottomOfPipe
	default:
		return core1_0.PipelineStageColorAttachmentOutput
	}
}

func toVkShaderStage(s driver.ShaderStage) core1_0.ShaderStageFlags {
	switch s {
	case driver.StageFragment:
		return core1_0.StageFragment
	case driver.StageGeometry:
		return core1_0.StageGeometry
	case driver.StageTessellationControl:
		return core1_0.StageTessellationControl
	case driver.StageTessellationEvaluation:
		return core1_0.StageTessellationEvaluation
	default:
		return core1_0.StageVertex
	}
}

func toVkBufferUsage(u driver.BufferUsage) core1_0.BufferUsageFlags {
	var out core1_0.BufferUsageFlags
	if u&driver.BufferUsageTransferSrc != 0 {
		out |= core1_0.BufferUsageTransferSrc
	}
	if u&driver.BufferUsageTransferDst != 0 {
		out |= core1_0.BufferUsageTransferDst
	}
	if u&driver.BufferUsageVertex != 0 {
		out |= core1_0.BufferUsageVertexBuffer
	}
	if u&driver.BufferUsageIndex != 0 {
		out |= core1_0.BufferUsageIndexBuffer
	}
	return out
}

func toVkMemoryProps(p driver.MemoryProps) core1_0.MemoryPropertyFlags {
	var out core1_0.MemoryPropertyFlags
	if p&driver.MemoryDeviceLocal != 0 {
		out |= core1_0.MemoryPropertyDeviceLocal
	}
	if p&driver.MemoryHostVisible != 0 {
		out |= core1_0.MemoryPropertyHostVisible
	}
	if p&driver.MemoryHostCoherent != 0 {
		out |= core1_0.MemoryPropertyHostCoherent
	}
	return out
}
