package driver

// WindowHandle is an opaque native window handle as supplied by the
// windowing subsystem. The resource manager keys surface registrations
// by this value and never interprets it.
type WindowHandle uintptr

// Protocol tags the UI protocol a window handle belongs to.
type Protocol int

const (
	// ProtocolNone is the zero value and never valid for
	// registration.
	ProtocolNone Protocol = iota
	ProtocolWayland
	ProtocolX11
	ProtocolWin32
	ProtocolAppKit
)

func (p Protocol) String() string {
	switch p {
	case ProtocolWayland:
		return "wayland"
	case ProtocolX11:
		return "x11"
	case ProtocolWin32:
		return "win32"
	case ProtocolAppKit:
		return "appkit"
	default:
		return "none"
	}
}

// Extent2D is a width/height pair in pixels.
type Extent2D struct {
	Width  int
	Height int
}

// ExtentUndefined marks a surface extent the compositor leaves up to
// the swapchain. Mirrors Vulkan's 0xFFFFFFFF special value as mapped
// by integer-friendly bindings.
const ExtentUndefined = -1

// Format identifies a pixel or vertex-attribute data format. Only the
// formats the resource manager can produce are enumerated.
type Format int

const (
	FormatUndefined Format = iota

	// Surface formats.
	FormatB8G8R8A8SRGB
	FormatR8G8B8A8SRGB
	FormatB8G8R8A8UNorm

	// Vertex attribute formats.
	FormatR32SFloat
	FormatR32G32SFloat
	FormatR32G32B32SFloat
	FormatR32G32B32A32SFloat
	FormatR32SInt
	FormatR32G32SInt
	FormatR32G32B32SInt
	FormatR32G32B32A32SInt
	FormatR32UInt
	FormatR32G32UInt
	FormatR32G32B32UInt
	FormatR32G32B32A32UInt
)

// ColorSpace identifies a surface color space.
type ColorSpace int

const (
	ColorSpaceSRGBNonlinear ColorSpace = iota
	ColorSpaceOther
)

// PresentMode identifies a swapchain presentation mode.
type PresentMode int

const (
	PresentModeFIFO PresentMode = iota
	PresentModeMailbox
	PresentModeImmediate
	PresentModeFIFORelaxed
)

func (m PresentMode) String() string {
	switch m {
	case PresentModeFIFO:
		return "fifo"
	case PresentModeMailbox:
		return "mailbox"
	case PresentModeImmediate:
		return "immediate"
	case PresentModeFIFORelaxed:
		return "fifo-relaxed"
	default:
		return "unknown"
	}
}

// SurfaceFormat pairs a pixel format with a color space.
type SurfaceFormat struct {
	Format     Format
	ColorSpace ColorSpace
}

// SurfaceCapabilities reports swapchain limits for one surface on one
// adapter.
type SurfaceCapabilities struct {
	// MinImageCount and MaxImageCount bound the swapchain length.
	// MaxImageCount == 0 means unbounded.
	MinImageCount int
	MaxImageCount int

	// CurrentExtent is the surface's fixed extent, or
	// {ExtentUndefined, ExtentUndefined} when the swapchain chooses.
	CurrentExtent Extent2D

	MinImageExtent Extent2D
	MaxImageExtent Extent2D
}

// SurfaceSupport bundles everything an adapter reports about a surface.
type SurfaceSupport struct {
	Capabilities SurfaceCapabilities
	Formats      []SurfaceFormat
	PresentModes []PresentMode
}

// QueueFamily describes one adapter queue family.
type QueueFamily struct {
	Index      int
	QueueCount int
	Graphics   bool
	CanPresent bool
}

// DeviceConfig requests a logical device.
type DeviceConfig struct {
	// QueueFamilies lists the family indices to create one queue
	// each for.
	QueueFamilies []int

	// Extensions lists required device extensions.
	Extensions []string

	// SamplerAnisotropy enables the anisotropic-sampling feature.
	SamplerAnisotropy bool
}

// SwapchainConfig requests a swapchain.
type SwapchainConfig struct {
	ImageCount  int
	Format      Format
	ColorSpace  ColorSpace
	Extent      Extent2D
	PresentMode PresentMode

	// SharedFamilies lists the queue families that access swapchain
	// images when graphics and present live in different families.
	// Empty means exclusive access.
	SharedFamilies []int
}

// ShaderStage identifies a programmable pipeline stage.
type ShaderStage int

const (
	StageVertex ShaderStage = iota
	StageFragment
	StageGeometry
	StageTessellationControl
	StageTessellationEvaluation
)

func (s ShaderStage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageFragment:
		return "fragment"
	case StageGeometry:
		return "geometry"
	case StageTessellationControl:
		return "tess-control"
	case StageTessellationEvaluation:
		return "tess-eval"
	default:
		return "unknown"
	}
}

// StageModule pairs a shader stage with its compiled module.
type StageModule struct {
	Stage  ShaderStage
	Module ShaderModule
}

// VertexBinding describes one vertex buffer binding slot.
type VertexBinding struct {
	Binding int
	Stride  int
}

// VertexAttribute describes one attribute within a binding.
type VertexAttribute struct {
	Binding  int
	Location int
	Offset   int
	Format   Format
}

// PipelineConfig requests a graphics pipeline with dynamic
// viewport/scissor state.
type PipelineConfig struct {
	Stages     []StageModule
	Bindings   []VertexBinding
	Attributes []VertexAttribute
	Layout     PipelineLayout
	RenderPass RenderPass
}

// PipelineStage identifies a synchronization scope for submissions.
type PipelineStage int

const (
	StageColorAttachmentOutput PipelineStage = iota
	StageTopOfPipe
	StageTransfer
	StageBottomOfPipe
)

// BufferUsage is a bitmask of buffer usages.
type BufferUsage int

const (
	BufferUsageTransferSrc BufferUsage = 1 << iota
	BufferUsageTransferDst
	BufferUsageVertex
	BufferUsageIndex
)

// MemoryProps is a bitmask of memory property requirements.
type MemoryProps int

const (
	MemoryDeviceLocal MemoryProps = 1 << iota
	MemoryHostVisible
	MemoryHostCoherent
)
