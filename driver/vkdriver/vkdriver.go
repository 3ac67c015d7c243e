// Package vkdriver implements the driver boundary on Vulkan through
// vkngwrapper, with SDL2 providing the window system glue. Window
// handles are SDL window ids; the package resolves them back to live
// windows when creating surfaces.
package vkdriver

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v3"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_portability_enumeration"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2/v3"

	"github.com/aldhinn/celerique/driver"
)

var validationLayers = []string{"VK_LAYER_KHRONOS_validation"}

// Options configures the Vulkan backend.
type Options struct {
	// AppName is reported to the Vulkan driver.
	AppName string

	// Validation enables the Khronos validation layer and a debug
	// messenger routing validation output to Logger. Requires the
	// LunarG SDK to be installed.
	Validation bool

	// PipelineCachePath, when non-empty, persists the device's
	// pipeline cache across runs.
	PipelineCachePath string

	// Logger receives backend diagnostics. Defaults to slog's
	// default logger.
	Logger *slog.Logger
}

// API is the Vulkan implementation of driver.API.
type API struct {
	opts Options
	log  *slog.Logger

	instance   core1_0.CoreInstanceDriver
	surfaceExt khr_surface.ExtensionDriver

	debugExt       ext_debug_utils.ExtensionDriver
	debugMessenger ext_debug_utils.DebugUtilsMessenger

	adapters []driver.Adapter
}

// New creates a Vulkan instance against the SDL2 video subsystem. The
// window is only used to discover the instance extensions the window
// system requires; it is not retained.
func New(window *sdl.Window, opts Options) (*API, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.AppName == "" {
		opts.AppName = "celerique"
	}
	a := &API{opts: opts, log: opts.Logger}

	global, err := core.CreateDriverFromProcAddr(sdl.VulkanGetVkGetInstanceProcAddr())
	if err != nil {
		return nil, errors.Wrap(err, "vkdriver: loading vulkan entry points")
	}

	instanceOptions := core1_0.InstanceCreateInfo{
		ApplicationName:    opts.AppName,
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         "celerique",
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         common.Vulkan1_2,
	}

	available, _, err := global.AvailableExtensions()
	if err != nil {
		return nil, errors.Wrap(err, "vkdriver: enumerating instance extensions")
	}

	for _, ext := range window.VulkanGetInstanceExtensions() {
		if _, ok := available[ext]; !ok {
			return nil, errors.Newf("vkdriver: window system requires missing instance extension %s", ext)
		}
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext)
	}

	// Required to enumerate devices under MoltenVK and other
	// portability implementations.
	if _, ok := available[khr_portability_enumeration.ExtensionName]; ok {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, khr_portability_enumeration.ExtensionName)
		instanceOptions.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	if opts.Validation {
		layers, _, err := global.AvailableLayers()
		if err != nil {
			return nil, errors.Wrap(err, "vkdriver: enumerating instance layers")
		}
		for _, layer := range validationLayers {
			if _, ok := layers[layer]; !ok {
				return nil, errors.Newf("vkdriver: validation layer %s not available", layer)
			}
			instanceOptions.EnabledLayerNames = append(instanceOptions.EnabledLayerNames, layer)
		}
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext_debug_utils.ExtensionName)
		instanceOptions.Next = a.debugMessengerOptions()
	}

	a.instance, _, err = global.CreateInstance(nil, instanceOptions)
	if err != nil {
		return nil, errors.Wrap(err, "vkdriver: creating instance")
	}

	if opts.Validation {
		a.debugExt = ext_debug_utils.CreateExtensionDriverFromCoreDriver(a.instance)
		a.debugMessenger, _, err = a.debugExt.CreateDebugUtilsMessenger(nil, a.debugMessengerOptions())
		if err != nil {
			a.instance.DestroyInstance(nil)
			return nil, errors.Wrap(err, "vkdriver: creating debug messenger")
		}
	}

	a.surfaceExt = khr_surface.CreateExtensionDriverFromCoreDriver(a.instance)
	return a, nil
}

func (a *API) debugMessengerOptions() ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    a.logValidation,
	}
}

func (a *API) logValidation(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	a.log.Warn("vulkan validation", "severity", severity.String(), "type", msgType.String(), "message", data.Message)
	return false
}

// Adapters enumerates physical devices once and caches the result.
func (a *API) Adapters() ([]driver.Adapter, error) {
	if a.adapters != nil {
		return a.adapters, nil
	}
	devices, _, err := a.instance.EnumeratePhysicalDevices()
	if err != nil {
		return nil, errors.Wrap(err, "vkdriver: enumerating physical devices")
	}
	if len(devices) == 0 {
		return nil, driver.ErrNoAdapter
	}
	for _, dev := range devices {
		a.adapters = append(a.adapters, &adapter{api: a, physical: dev})
	}
	return a.adapters, nil
}

// CreateSurface resolves the handle as an SDL window id and builds a
// Vulkan surface for the window. The protocol tag is informational
// here since SDL owns the platform specifics.
func (a *API) CreateSurface(handle driver.WindowHandle, protocol driver.Protocol) (driver.Surface, error) {
	window, err := sdl.GetWindowFromID(uint32(handle))
	if err != nil {
		return nil, errors.Wrapf(err, "vkdriver: no window for id %d", handle)
	}

	surf, err := vkng_sdl2.CreateSurface(a.instance.Instance(), a.surfaceExt, window)
	if err != nil {
		return nil, errors.Wrapf(err, "vkdriver: creating %s surface", protocol)
	}
	return &surface{api: a, window: window, surface: surf}, nil
}

// Close tears the instance down. Devices and surfaces must already be
// destroyed.
func (a *API) Close() {
	if a.debugMessenger.Initialized() {
		a.debugExt.DestroyDebugUtilsMessenger(a.debugMessenger, nil)
	}
	a.instance.DestroyInstance(nil)
}

type surface struct {
	api     *API
	window  *sdl.Window
	surface khr_surface.Surface
}

func (s *surface) DrawableSize() (int, int) {
	w, h := s.window.VulkanGetDrawableSize()
	return int(w), int(h)
}

func (s *surface) Destroy() {
	s.api.surfaceExt.DestroySurface(s.surface, nil)
}
