package vkdriver

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_portability_subset"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/aldhinn/celerique/driver"
)

type adapter struct {
	api      *API
	physical core1_0.PhysicalDevice
}

func (ad *adapter) Name() string {
	props, err := ad.api.instance.GetPhysicalDeviceProperties(ad.physical)
	if err != nil {
		return "unknown adapter"
	}
	return props.DeviceName
}

func (ad *adapter) SamplerAnisotropy() bool {
	features := ad.api.instance.GetPhysicalDeviceFeatures(ad.physical)
	return features.SamplerAnisotropy
}

func (ad *adapter) HasExtensions(names []string) bool {
	available, _, err := ad.api.instance.EnumerateDeviceExtensionProperties(ad.physical)
	if err != nil {
		return false
	}
	for _, name := range names {
		if _, ok := available[name]; !ok {
			return false
		}
	}
	return true
}

func (ad *adapter) QueueFamilies(s driver.Surface) ([]driver.QueueFamily, error) {
	surf, ok := s.(*surface)
	if !ok {
		return nil, errors.New("vkdriver: surface belongs to another backend")
	}

	props := ad.api.instance.GetPhysicalDeviceQueueFamilyProperties(ad.physical)
	families := make([]driver.QueueFamily, 0, len(props))
	for idx, family := range props {
		canPresent, _, err := ad.api.surfaceExt.GetPhysicalDeviceSurfaceSupport(surf.surface, ad.physical, idx)
		if err != nil {
			return nil, errors.Wrapf(err, "vkdriver: querying present support for family %d", idx)
		}
		families = append(families, driver.QueueFamily{
			Index:      idx,
			QueueCount: family.QueueCount,
			Graphics:   family.QueueFlags&core1_0.QueueGraphics != 0,
			CanPresent: canPresent,
		})
	}
	return families, nil
}

func (ad *adapter) SurfaceSupport(s driver.Surface) (driver.SurfaceSupport, error) {
	surf, ok := s.(*surface)
	if !ok {
		return driver.SurfaceSupport{}, errors.New("vkdriver: surface belongs to another backend")
	}

	caps, _, err := ad.api.surfaceExt.GetPhysicalDeviceSurfaceCapabilities(surf.surface, ad.physical)
	if err != nil {
		return driver.SurfaceSupport{}, errors.Wrap(err, "vkdriver: querying surface capabilities")
	}

	vkFormats, _, err := ad.api.surfaceExt.GetPhysicalDeviceSurfaceFormats(surf.surface, ad.physical)
	if err != nil {
		return driver.SurfaceSupport{}, errors.Wrap(err, "vkdriver: querying surface formats")
	}

	vkModes, _, err := ad.api.surfaceExt.GetPhysicalDeviceSurfacePresentModes(surf.surface, ad.physical)
	if err != nil {
		return driver.SurfaceSupport{}, errors.Wrap(err, "vkdriver: querying present modes")
	}

	support := driver.SurfaceSupport{
		Capabilities: driver.SurfaceCapabilities{
			MinImageCount:  caps.MinImageCount,
			MaxImageCount:  caps.MaxImageCount,
			CurrentExtent:  fromVkExtent(caps.CurrentExtent),
			MinImageExtent: fromVkExtent(caps.MinImageExtent),
			MaxImageExtent: fromVkExtent(caps.MaxImageExtent),
		},
	}

	// Formats outside the modeled set are dropped rather than
	// reported as undefined.
	for _, f := range vkFormats {
		mapped := fromVkFormat(f.Format)
		if mapped == driver.FormatUndefined {
			continue
		}
		support.Formats = append(support.Formats, driver.SurfaceFormat{
			Format:     mapped,
			ColorSpace: fromVkColorSpace(f.ColorSpace),
		})
	}
	for _, m := range vkModes {
		if mapped, ok := fromVkPresentMode(m); ok {
			support.PresentModes = append(support.PresentModes, mapped)
		}
	}
	return support, nil
}

func (ad *adapter) CreateDevice(cfg driver.DeviceConfig) (driver.Device, error) {
	queuePriority := float32(1.0)
	var queueInfos []core1_0.DeviceQueueCreateInfo
	for _, family := range cfg.QueueFamilies {
		queueInfos = append(queueInfos, core1_0.DeviceQueueCreateInfo{
			QueueFamilyIndex: family,
			QueuePriorities:  []float32{queuePriority},
		})
	}

	extensionNames := append([]string(nil), cfg.Extensions...)

	// Portability implementations require this extension on any
	// device that exposes it.
	available, _, err := ad.api.instance.EnumerateDeviceExtensionProperties(ad.physical)
	if err != nil {
		return nil, errors.Wrap(err, "vkdriver: enumerating device extensions")
	}
	if _, ok := available[khr_portability_subset.ExtensionName]; ok {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}

	deviceDriver, _, err := ad.api.instance.CreateDevice(ad.physical, nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos: queueInfos,
		EnabledFeatures: &core1_0.PhysicalDeviceFeatures{
			SamplerAnisotropy: cfg.SamplerAnisotropy,
		},
		EnabledExtensionNames: extensionNames,
	})
	if err != nil {
		return nil, errors.Wrap(err, "vkdriver: creating logical device")
	}

	dev := &device{
		api:      ad.api,
		adapter:  ad,
		driver:   deviceDriver,
		swapExt:  khr_swapchain.CreateExtensionDriverFromCoreDriver(deviceDriver),
		queues:   make(map[int]*queue),
		queueMus: make(map[int]*sync.Mutex),
	}
	for _, family := range cfg.QueueFamilies {
		mu := &sync.Mutex{}
		dev.queueMus[family] = mu
		dev.queues[family] = &queue{
			dev:    dev,
			family: family,
			queue:  deviceDriver.GetQueue(family, 0),
			mu:     mu,
		}
	}

	if err := dev.loadPipelineCache(); err != nil {
		ad.api.log.Warn("pipeline cache unavailable", "err", err)
	}
	return dev, nil
}
