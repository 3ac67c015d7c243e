package vkdriver

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/aldhinn/celerique/driver"
)

type device struct {
	api     *API
	adapter *adapter
	driver  core1_0.CoreDeviceDriver
	swapExt khr_swapchain.ExtensionDriver

	queues   map[int]*queue
	queueMus map[int]*sync.Mutex

	pipelineCache core1_0.PipelineCache
}

func (d *device) Queue(family int) driver.Queue {
	q, ok := d.queues[family]
	if !ok {
		panic(errors.Newf("vkdriver: queue family %d was not requested at device creation", family))
	}
	return q
}

func (d *device) CreateCommandPool(family int) (driver.CommandPool, error) {
	// Individual buffer reset is required for per-frame re-recording.
	pool, _, err := d.driver.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		QueueFamilyIndex: family,
		Flags:            core1_0.CommandPoolCreateResetBuffer,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "vkdriver: creating command pool on family %d", family)
	}
	return &commandPool{dev: d, pool: pool}, nil
}

func (d *device) CreateSwapchain(s driver.Surface, cfg driver.SwapchainConfig) (driver.Swapchain, error) {
	surf, ok := s.(*surface)
	if !ok {
		return nil, errors.New("vkdriver: surface belongs to another backend")
	}

	caps, _, err := d.api.surfaceExt.GetPhysicalDeviceSurfaceCapabilities(surf.surface, d.adapter.physical)
	if err != nil {
		return nil, errors.Wrap(err, "vkdriver: querying surface capabilities")
	}

	sharingMode := core1_0.SharingModeExclusive
	if len(cfg.SharedFamilies) > 0 {
		sharingMode = core1_0.SharingModeConcurrent
	}

	sc, _, err := d.swapExt.CreateSwapchain(nil, khr_swapchain.SwapchainCreateInfo{
		Surface: surf.surface,

		MinImageCount:    cfg.ImageCount,
		ImageFormat:      toVkFormat(cfg.Format),
		ImageColorSpace:  toVkColorSpace(cfg.ColorSpace),
		ImageExtent:      toVkExtent(cfg.Extent),
		ImageArrayLayers: 1,
		ImageUsage:       core1_0.ImageUsageColorAttachment,

		ImageSharingMode:   sharingMode,
		QueueFamilyIndices: cfg.SharedFamilies,

		PreTransform:   caps.CurrentTransform,
		CompositeAlpha: khr_surface.CompositeAlphaOpaque,
		PresentMode:    toVkPresentMode(cfg.PresentMode),
		Clipped:        true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "vkdriver: creating swapchain")
	}

	vkImages, _, err := d.swapExt.GetSwapchainImages(sc)
	if err != nil {
		d.swapExt.DestroySwapchain(sc, nil)
		return nil, errors.Wrap(err, "vkdriver: fetching swapchain images")
	}

	images := make([]driver.Image, len(vkImages))
	for i, img := range vkImages {
		images[i] = &image{image: img}
	}
	return &swapchain{dev: d, swapchain: sc, images: images}, nil
}

func (d *device) CreateImageView(img driver.Image, format driver.Format) (driver.ImageView, error) {
	vkImage, ok := img.(*image)
	if !ok {
		return nil, errors.New("vkdriver: image belongs to another backend")
	}

	view, _, err := d.driver.CreateImageView(nil, core1_0.ImageViewCreateInfo{
		Image:    vkImage.image,
		ViewType: core1_0.ImageViewType2D,
		Format:   toVkFormat(format),
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     core1_0.ImageAspectColor,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "vkdriver: creating image view")
	}
	return &imageView{dev: d, view: view}, nil
}

func (d *device) CreateRenderPass(format driver.Format) (driver.RenderPass, error) {
	rp, _, err := d.driver.CreateRenderPass(nil, core1_0.RenderPassCreateInfo{
		Attachments: []core1_0.AttachmentDescription{
			{
				Format:         toVkFormat(format),
				Samples:        core1_0.Samples1,
				LoadOp:         core1_0.AttachmentLoadOpClear,
				StoreOp:        core1_0.AttachmentStoreOpStore,
				StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
				StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
				InitialLayout:  core1_0.ImageLayoutUndefined,
				FinalLayout:    khr_swapchain.ImageLayoutPresentSrc,
			},
		},
		Subpasses: []core1_0.SubpassDescription{
			{
				PipelineBindPoint: core1_0.PipelineBindPointGraphics,
				ColorAttachments: []core1_0.AttachmentReference{
					{
						Attachment: 0,
						Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
					},
				},
			},
		},
		SubpassDependencies: []core1_0.SubpassDependency{
			{
				SrcSubpass: core1_0.SubpassExternal,
				DstSubpass: 0,

				SrcStageMask:  core1_0.PipelineStageColorAttachmentOutput,
				SrcAccessMask: 0,

				DstStageMask:  core1_0.PipelineStageColorAttachmentOutput,
				DstAccessMask: core1_0.AccessColorAttachmentWrite,
			},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "vkdriver: creating render pass")
	}
	return &renderPass{dev: d, renderPass: rp}, nil
}

func (d *device) CreateFramebuffer(rp driver.RenderPass, view driver.ImageView, extent driver.Extent2D) (driver.Framebuffer, error) {
	vkRP, ok := rp.(*renderPass)
	if !ok {
		return nil, errors.New("vkdriver: render pass belongs to another backend")
	}
	vkView, ok := view.(*imageView)
	if !ok {
		return nil, errors.New("vkdriver: image view belongs to another backend")
	}

	fb, _, err := d.driver.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
		RenderPass:  vkRP.renderPass,
		Layers:      1,
		Attachments: []core1_0.ImageView{vkView.view},
		Width:       extent.Width,
		Height:      extent.Height,
	})
	if err != nil {
		return nil, errors.Wrap(err, "vkdriver: creating framebuffer")
	}
	return &framebuffer{dev: d, framebuffer: fb}, nil
}

func bytesToBytecode(b []byte) []uint32 {
	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] = 0
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}
	return byteCode
}

func (d *device) CreateShaderModule(code []byte) (driver.ShaderModule, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, errors.Newf("vkdriver: shader bytecode length %d is not a positive multiple of 4", len(code))
	}
	mod, _, err := d.driver.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
		Code: bytesToBytecode(code),
	})
	if err != nil {
		return nil, errors.Wrap(err, "vkdriver: creating shader module")
	}
	return &shaderModule{dev: d, module: mod}, nil
}

func (d *device) CreatePipelineLayout() (driver.PipelineLayout, error) {
	layout, _, err := d.driver.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{})
	if err != nil {
		return nil, errors.Wrap(err, "vkdriver: creating pipeline layout")
	}
	return &pipelineLayout{dev: d, layout: layout}, nil
}

func (d *device) CreateGraphicsPipeline(cfg driver.PipelineConfig) (driver.Pipeline, error) {
	layout, ok := cfg.Layout.(*pipelineLayout)
	if !ok {
		return nil, errors.New("vkdriver: pipeline layout belongs to another backend")
	}
	rp, ok := cfg.RenderPass.(*renderPass)
	if !ok {
		return nil, errors.New("vkdriver: render pass belongs to another backend")
	}

	var stages []core1_0.PipelineShaderStageCreateInfo
	for _, sm := range cfg.Stages {
		mod, ok := sm.Module.(*shaderModule)
		if !ok {
			return nil, errors.New("vkdriver: shader module belongs to another backend")
		}
		stages = append(stages, core1_0.PipelineShaderStageCreateInfo{
			Stage:  toVkShaderStage(sm.Stage),
			Module: mod.module,
			Name:   "main",
		})
	}

	var bindings []core1_0.VertexInputBindingDescription
	for _, b := range cfg.Bindings {
		bindings = append(bindings, core1_0.VertexInputBindingDescription{
			Binding:   b.Binding,
			Stride:    b.Stride,
			InputRate: core1_0.VertexInputRateVertex,
		})
	}
	var attributes []core1_0.VertexInputAttributeDescription
	for _, a := range cfg.Attributes {
		attributes = append(attributes, core1_0.VertexInputAttributeDescription{
			Binding:  a.Binding,
			Location: a.Location,
			Format:   toVkFormat(a.Format),
			Offset:   a.Offset,
		})
	}

	pipelines, _, err := d.driver.CreateGraphicsPipelines(d.cachePtr(), nil,
		core1_0.GraphicsPipelineCreateInfo{
			Stages: stages,
			VertexInputState: &core1_0.PipelineVertexInputStateCreateInfo{
				VertexBindingDescriptions:   bindings,
				VertexAttributeDescriptions: attributes,
			},
			InputAssemblyState: &core1_0.PipelineInputAssemblyStateCreateInfo{
				Topology: core1_0.PrimitiveTopologyTriangleList,
			},
			// Placeholder viewport and scissor; both are dynamic and
			// set per command buffer.
			ViewportState: &core1_0.PipelineViewportStateCreateInfo{
				Viewports: make([]core1_0.Viewport, 1),
				Scissors:  make([]core1_0.Rect2D, 1),
			},
			RasterizationState: &core1_0.PipelineRasterizationStateCreateInfo{
				PolygonMode: core1_0.PolygonModeFill,
				CullMode:    core1_0.CullModeBack,
				FrontFace:   core1_0.FrontFaceCounterClockwise,
				LineWidth:   1.0,
			},
			MultisampleState: &core1_0.PipelineMultisampleStateCreateInfo{
				RasterizationSamples: core1_0.Samples1,
				MinSampleShading:     1.0,
			},
			ColorBlendState: &core1_0.PipelineColorBlendStateCreateInfo{
				LogicOp: core1_0.LogicOpCopy,
				Attachments: []core1_0.PipelineColorBlendAttachmentState{
					{
						BlendEnabled:   false,
						ColorWriteMask: core1_0.ColorComponentRed | core1_0.ColorComponentGreen | core1_0.ColorComponentBlue | core1_0.ColorComponentAlpha,
					},
				},
			},
			DynamicState: &core1_0.PipelineDynamicStateCreateInfo{
				DynamicStates: []core1_0.DynamicState{
					core1_0.DynamicStateViewport,
					core1_0.DynamicStateScissor,
				},
			},
			Layout:            layout.layout,
			RenderPass:        rp.renderPass,
			Subpass:           0,
			BasePipelineIndex: -1,
		},
	)
	if err != nil {
		return nil, errors.Wrap(err, "vkdriver: creating graphics pipeline")
	}
	return &pipeline{dev: d, pipeline: pipelines[0]}, nil
}

func (d *device) CreateSemaphore() (driver.Semaphore, error) {
	sem, _, err := d.driver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
	if err != nil {
		return nil, errors.Wrap(err, "vkdriver: creating semaphore")
	}
	return &semaphore{dev: d, semaphore: sem}, nil
}

func (d *device) CreateFence(signaled bool) (driver.Fence, error) {
	var flags core1_0.FenceCreateFlags
	if signaled {
		flags = core1_0.FenceCreateSignaled
	}
	f, _, err := d.driver.CreateFence(nil, core1_0.FenceCreateInfo{Flags: flags})
	if err != nil {
		return nil, errors.Wrap(err, "vkdriver: creating fence")
	}
	return &fence{dev: d, fence: f}, nil
}

func (d *device) CreateBuffer(size int, usage driver.BufferUsage, props driver.MemoryProps) (driver.Buffer, error) {
	buf, _, err := d.driver.CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:        size,
		Usage:       toVkBufferUsage(usage),
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return nil, errors.Wrap(err, "vkdriver: creating buffer")
	}

	memReqs := d.driver.GetBufferMemoryRequirements(buf)
	memoryIndex, err := d.findMemoryType(memReqs.MemoryTypeBits, toVkMemoryProps(props))
	if err != nil {
		d.driver.DestroyBuffer(buf, nil)
		return nil, err
	}

	memory, _, err := d.driver.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  memReqs.Size,
		MemoryTypeIndex: memoryIndex,
	})
	if err != nil {
		d.driver.DestroyBuffer(buf, nil)
		return nil, errors.Wrap(err, "vkdriver: allocating buffer memory")
	}

	if _, err := d.driver.BindBufferMemory(buf, memory, 0); err != nil {
		d.driver.DestroyBuffer(buf, nil)
		d.driver.FreeMemory(memory, nil)
		return nil, errors.Wrap(err, "vkdriver: binding buffer memory")
	}

	return &buffer{
		dev:         d,
		buffer:      buf,
		memory:      memory,
		size:        size,
		hostVisible: props&driver.MemoryHostVisible != 0,
	}, nil
}

func (d *device) findMemoryType(typeFilter uint32, properties core1_0.MemoryPropertyFlags) (int, error) {
	memProps := d.api.instance.GetPhysicalDeviceMemoryProperties(d.adapter.physical)
	for i, memoryType := range memProps.MemoryTypes {
		typeBit := uint32(1 << i)
		if (typeFilter&typeBit) != 0 && (memoryType.PropertyFlags&properties) == properties {
			return i, nil
		}
	}
	return 0, errors.Newf("vkdriver: no memory type matches filter 0x%x with properties %s", typeFilter, properties)
}

func (d *device) WaitForFence(f driver.Fence) error {
	fn, ok := f.(*fence)
	if !ok {
		return errors.New("vkdriver: fence belongs to another backend")
	}
	if _, err := d.driver.WaitForFences(true, common.NoTimeout, fn.fence); err != nil {
		return errors.Wrap(err, "vkdriver: waiting for fence")
	}
	return nil
}

func (d *device) ResetFence(f driver.Fence) error {
	fn, ok := f.(*fence)
	if !ok {
		return errors.New("vkdriver: fence belongs to another backend")
	}
	if _, err := d.driver.ResetFences(fn.fence); err != nil {
		return errors.Wrap(err, "vkdriver: resetting fence")
	}
	return nil
}

func (d *device) WaitIdle() error {
	if _, err := d.driver.DeviceWaitIdle(); err != nil {
		return errors.Wrap(err, "vkdriver: waiting for device idle")
	}
	return nil
}

func (d *device) Destroy() {
	d.savePipelineCache()
	if d.pipelineCache.Initialized() {
		d.driver.DestroyPipelineCache(d.pipelineCache, nil)
	}
	d.driver.DestroyDevice(nil)
}

// cachePtr returns the pipeline cache to compile against, or nil when
// cache creation failed at device setup.
func (d *device) cachePtr() *core1_0.PipelineCache {
	if !d.pipelineCache.Initialized() {
		return nil
	}
	return &d.pipelineCache
}

