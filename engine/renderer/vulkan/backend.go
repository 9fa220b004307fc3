// Package vulkan is the GPU device of the frame pipeline. It implements
// renderer.Device on top of goki/vulkan and a glfw window surface.
package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima2d/engine/core"
	"github.com/spaghettifunk/anima2d/engine/renderer"
)

type Options struct {
	AppName string
	// directory holding sprite.vert.spv and sprite.frag.spv
	ShaderDir string
	// Shaders, when set, is asked first for each module.
	Shaders    ShaderSource
	Validation bool
}

// surfaceWindow is what a window needs to host a Vulkan surface.
// *glfw.Window implements it.
type surfaceWindow interface {
	renderer.Window
	CreateWindowSurface(instance interface{}, allocCallbacks unsafe.Pointer) (uintptr, error)
	GetRequiredInstanceExtensions() []string
}

// Backend opens Vulkan devices. It implements renderer.Backend.
type Backend struct {
	Options Options
}

func New(opts Options) *Backend {
	if opts.AppName == "" {
		opts.AppName = "anima2d"
	}
	return &Backend{Options: opts}
}

func (b *Backend) Open(window renderer.Window) (renderer.Device, error) {
	w, ok := window.(surfaceWindow)
	if !ok {
		return nil, fmt.Errorf("window %T cannot create a vulkan surface: %w", window, core.ErrUnsupportedPlatform)
	}
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		return nil, fmt.Errorf("GetInstanceProcAddress is nil: %w", core.ErrUnsupportedPlatform)
	}
	vk.SetGetInstanceProcAddr(procAddr)
	if err := vk.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize vk: %s: %w", err, core.ErrUnsupportedPlatform)
	}

	vc := &VulkanContext{options: b.Options, Device: &VulkanDevice{}}
	if err := vc.createInstance(w.GetRequiredInstanceExtensions()); err != nil {
		return nil, err
	}
	if err := vc.createSurface(w); err != nil {
		vc.Destroy()
		return nil, err
	}
	if err := DeviceCreate(vc); err != nil {
		vc.Destroy()
		return nil, err
	}
	core.LogInfo("Vulkan device ready.")
	return vc, nil
}

func (vc *VulkanContext) createInstance(windowExtensions []string) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 0, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(vc.options.AppName),
		PEngineName:        VulkanSafeString("anima2d"),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	extensions := append([]string{"VK_KHR_surface"}, windowExtensions...)
	if runtime.GOOS == "darwin" {
		extensions = append(extensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}

	var layers []string
	if vc.options.Validation {
		extensions = append(extensions, vk.ExtDebugReportExtensionName)
		layers = []string{"VK_LAYER_KHRONOS_validation"}
		if err := checkValidationLayers(layers); err != nil {
			return err
		}
	}
	for _, e := range extensions {
		core.LogDebug("Required extension: %s", e)
	}

	createInfo.EnabledExtensionCount = uint32(len(extensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(extensions)
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	if res := vk.CreateInstance(&createInfo, vc.Allocator, &vc.Instance); res != vk.Success {
		return resultError("vkCreateInstance", res)
	}
	if err := vk.InitInstance(vc.Instance); err != nil {
		return err
	}
	core.LogInfo("Vulkan Instance created.")

	if vc.options.Validation {
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if res := vk.CreateDebugReportCallback(vc.Instance, &debugCreateInfo, nil, &dbg); res != vk.Success {
			return resultError("vkCreateDebugReportCallback", res)
		}
		vc.debugMessenger = dbg
		core.LogDebug("Vulkan debugger created.")
	}
	return nil
}

func checkValidationLayers(required []string) error {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		return resultError("vkEnumerateInstanceLayerProperties", res)
	}
	available := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, available); res != vk.Success {
		return resultError("vkEnumerateInstanceLayerProperties", res)
	}
	for _, name := range required {
		found := false
		for i := range available {
			available[i].Deref()
			if cString(available[i].LayerName[:]) == name {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("required validation layer is missing: %s: %w", name, core.ErrUnsupportedPlatform)
		}
	}
	core.LogInfo("All required validation layers are present.")
	return nil
}

func (vc *VulkanContext) createSurface(w surfaceWindow) error {
	surface, err := w.CreateWindowSurface(vc.Instance, nil)
	if err != nil {
		return fmt.Errorf("vulkan surface creation failed: %s: %w", err, core.ErrUnsupportedPlatform)
	}
	vc.Surface = vk.SurfaceFromPointer(surface)
	core.LogDebug("Vulkan surface created.")
	return nil
}

// Destroy releases everything in reverse creation order. The caller
// waits for the device to go idle first.
func (vc *VulkanContext) Destroy() error {
	if vc.Device != nil && vc.Device.LogicalDevice != nil {
		vk.DeviceWaitIdle(vc.logical())

		vc.destroyFrameResources()
		if vc.textures != nil {
			vc.textures.destroy(vc)
			vc.textures = nil
		}
		if vc.pipelines != nil {
			vc.pipelines.destroy(vc)
			vc.pipelines = nil
		}
		vc.destroySwapchain()
		if vc.MainRenderpass != nil {
			vc.MainRenderpass.RenderpassDestroy(vc)
			vc.MainRenderpass = nil
		}
		DeviceDestroy(vc)
	}
	if vc.Surface != nil {
		vk.DestroySurface(vc.Instance, vc.Surface, vc.Allocator)
		vc.Surface = nil
	}
	if vc.debugMessenger != nil {
		vk.DestroyDebugReportCallback(vc.Instance, vc.debugMessenger, vc.Allocator)
		vc.debugMessenger = nil
	}
	if vc.Instance != nil {
		vk.DestroyInstance(vc.Instance, vc.Allocator)
		vc.Instance = nil
	}
	core.LogDebug("Vulkan device destroyed.")
	return nil
}

func (vc *VulkanContext) WaitIdle() error {
	if res := vk.DeviceWaitIdle(vc.logical()); res != vk.Success {
		return resultError("vkDeviceWaitIdle", res)
	}
	return nil
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
