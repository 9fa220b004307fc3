package vulkan

import (
	"fmt"
	"math"
	"slices"
	"time"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima2d/engine/core"
	"github.com/spaghettifunk/anima2d/engine/renderer"
)

type VulkanSwapchain struct {
	ImageFormat vk.SurfaceFormat
	Extent      vk.Extent2D
	Handle      vk.Swapchain
	ImageCount  uint32
	Images      []vk.Image
	Views       []vk.ImageView

	DepthAttachment *VulkanImage

	// framebuffers used for on-screen rendering.
	Framebuffers []*VulkanFramebuffer
}

var formats = map[renderer.Format]vk.Format{
	renderer.FormatBGRA8Srgb:  vk.FormatB8g8r8a8Srgb,
	renderer.FormatBGRA8Unorm: vk.FormatB8g8r8a8Unorm,
	renderer.FormatRGBA8Srgb:  vk.FormatR8g8b8a8Srgb,
	renderer.FormatRGBA8Unorm: vk.FormatR8g8b8a8Unorm,
}

var presentModes = map[renderer.PresentMode]vk.PresentMode{
	renderer.PresentModeFifo:        vk.PresentModeFifo,
	renderer.PresentModeFifoRelaxed: vk.PresentModeFifoRelaxed,
	renderer.PresentModeMailbox:     vk.PresentModeMailbox,
	renderer.PresentModeImmediate:   vk.PresentModeImmediate,
}

func (vc *VulkanContext) Capabilities() (renderer.SurfaceCapabilities, error) {
	support := &vc.Device.SwapchainSupport
	if err := DeviceQuerySwapchainSupport(vc.Device.PhysicalDevice, vc.Surface, support); err != nil {
		return renderer.SurfaceCapabilities{}, err
	}
	var caps renderer.SurfaceCapabilities
	for f, native := range formats {
		for _, sf := range support.Formats {
			if sf.Format == native && sf.ColorSpace == vk.ColorSpaceSrgbNonlinear {
				caps.Formats = append(caps.Formats, f)
				break
			}
		}
	}
	for m, native := range presentModes {
		for _, pm := range support.PresentModes {
			if pm == native {
				caps.PresentModes = append(caps.PresentModes, m)
				break
			}
		}
	}
	slices.Sort(caps.Formats)
	slices.Sort(caps.PresentModes)
	max := support.Capabilities.MaxImageExtent
	caps.MaxSize = renderer.Size{Width: max.Width, Height: max.Height}
	return caps, nil
}

// Configure builds a swapchain for state, retiring the current one.
func (vc *VulkanContext) Configure(state renderer.SurfaceState) error {
	format, ok := formats[state.Format]
	if !ok {
		return fmt.Errorf("surface format %s: %w", state.Format, core.ErrUnsupportedFormat)
	}
	mode, ok := presentModes[state.PresentMode]
	if !ok {
		return fmt.Errorf("present mode %s: %w", state.PresentMode, core.ErrUnsupportedFormat)
	}
	if err := vc.WaitIdle(); err != nil {
		return err
	}
	support := &vc.Device.SwapchainSupport
	if err := DeviceQuerySwapchainSupport(vc.Device.PhysicalDevice, vc.Surface, support); err != nil {
		return err
	}

	extent := vk.Extent2D{Width: state.Size.Width, Height: state.Size.Height}
	if support.Capabilities.CurrentExtent.Width != math.MaxUint32 {
		extent = support.Capabilities.CurrentExtent
	}
	min, max := support.Capabilities.MinImageExtent, support.Capabilities.MaxImageExtent
	extent.Width = clamp(extent.Width, min.Width, max.Width)
	extent.Height = clamp(extent.Height, min.Height, max.Height)
	if extent.Width == 0 || extent.Height == 0 {
		return core.ErrSurfaceSuspended
	}

	old := vc.Swapchain
	sc, err := createSwapchain(vc, vk.SurfaceFormat{Format: format, ColorSpace: vk.ColorSpaceSrgbNonlinear}, mode, extent, old)
	if old != nil {
		old.destroy(vc)
	}
	vc.Swapchain = sc
	if err != nil {
		return err
	}

	if vc.MainRenderpass == nil || vc.MainRenderpass.ColorFormat != format {
		if vc.MainRenderpass != nil {
			vc.MainRenderpass.RenderpassDestroy(vc)
		}
		// pipelines are bound to the render pass
		if vc.pipelines != nil {
			vc.pipelines.destroy(vc)
			vc.pipelines = nil
		}
		if vc.MainRenderpass, err = RenderpassCreate(vc, format, vc.Device.DepthFormat); err != nil {
			return err
		}
	}
	if err := vc.regenerateFramebuffers(); err != nil {
		return err
	}
	if err := vc.recreateSyncObjects(); err != nil {
		return err
	}
	vc.state = state
	core.LogInfo("Swapchain created: %dx%d, %d images, %s", extent.Width, extent.Height, sc.ImageCount, state.PresentMode)
	return nil
}

func clamp(v, lo, hi uint32) uint32 {
	if hi != 0 && v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}

func createSwapchain(context *VulkanContext, format vk.SurfaceFormat, mode vk.PresentMode, extent vk.Extent2D, old *VulkanSwapchain) (*VulkanSwapchain, error) {
	caps := context.Device.SwapchainSupport.Capabilities
	swapchain := &VulkanSwapchain{ImageFormat: format, Extent: extent}

	imageCount := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && imageCount > caps.MaxImageCount {
		imageCount = caps.MaxImageCount
	}

	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          context.Surface,
		MinImageCount:    imageCount,
		ImageFormat:      format.Format,
		ImageColorSpace:  format.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      mode,
		Clipped:          vk.True,
	}
	if old != nil {
		swapchainCreateInfo.OldSwapchain = old.Handle
	}
	if context.Device.GraphicsQueueIndex != context.Device.PresentQueueIndex {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeConcurrent
		swapchainCreateInfo.QueueFamilyIndexCount = 2
		swapchainCreateInfo.PQueueFamilyIndices = []uint32{
			uint32(context.Device.GraphicsQueueIndex),
			uint32(context.Device.PresentQueueIndex),
		}
	}

	if res := vk.CreateSwapchain(context.logical(), &swapchainCreateInfo, context.Allocator, &swapchain.Handle); res != vk.Success {
		return nil, resultError("vkCreateSwapchain", res)
	}

	if res := vk.GetSwapchainImages(context.logical(), swapchain.Handle, &swapchain.ImageCount, nil); res != vk.Success {
		swapchain.destroy(context)
		return nil, resultError("vkGetSwapchainImages", res)
	}
	swapchain.Images = make([]vk.Image, swapchain.ImageCount)
	if res := vk.GetSwapchainImages(context.logical(), swapchain.Handle, &swapchain.ImageCount, swapchain.Images); res != vk.Success {
		swapchain.destroy(context)
		return nil, resultError("vkGetSwapchainImages", res)
	}

	swapchain.Views = make([]vk.ImageView, swapchain.ImageCount)
	for i := range swapchain.Images {
		view, err := createImageView(context, swapchain.Images[i], vk.ImageViewType2d, format.Format, vk.ImageAspectFlags(vk.ImageAspectColorBit), 1)
		if err != nil {
			swapchain.destroy(context)
			return nil, err
		}
		swapchain.Views[i] = view
	}

	depth, err := ImageCreate(
		context,
		extent.Width,
		extent.Height,
		1,
		context.Device.DepthFormat,
		vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit),
		vk.ImageAspectFlags(vk.ImageAspectDepthBit))
	if err != nil {
		swapchain.destroy(context)
		return nil, err
	}
	swapchain.DepthAttachment = depth
	return swapchain, nil
}

func (vs *VulkanSwapchain) destroy(context *VulkanContext) {
	for _, fb := range vs.Framebuffers {
		fb.FramebufferDestroy(context)
	}
	vs.Framebuffers = nil
	if vs.DepthAttachment != nil {
		vs.DepthAttachment.ImageDestroy(context)
		vs.DepthAttachment = nil
	}
	// Only the views. The images are owned by the swapchain.
	for _, view := range vs.Views {
		if view != nil {
			vk.DestroyImageView(context.logical(), view, context.Allocator)
		}
	}
	vs.Views = nil
	if vs.Handle != nil {
		vk.DestroySwapchain(context.logical(), vs.Handle, context.Allocator)
		vs.Handle = nil
	}
}

func (vc *VulkanContext) destroySwapchain() {
	for _, s := range vc.QueueCompleteSemaphores {
		vk.DestroySemaphore(vc.logical(), s, vc.Allocator)
	}
	vc.QueueCompleteSemaphores = nil
	vc.ImagesInFlight = nil
	if vc.Swapchain != nil {
		vc.Swapchain.destroy(vc)
		vc.Swapchain = nil
	}
}

// recreateSyncObjects gives every swapchain image a fresh render
// finished semaphore and every slot a fresh acquire semaphore. An
// acquire abandoned by a reconfigure would leave its semaphore signaled.
func (vc *VulkanContext) recreateSyncObjects() error {
	for _, s := range vc.QueueCompleteSemaphores {
		vk.DestroySemaphore(vc.logical(), s, vc.Allocator)
	}
	vc.QueueCompleteSemaphores = make([]vk.Semaphore, vc.Swapchain.ImageCount)
	for i := range vc.QueueCompleteSemaphores {
		s, err := vc.createSemaphore()
		if err != nil {
			return err
		}
		vc.QueueCompleteSemaphores[i] = s
	}
	for _, f := range vc.frames {
		vk.DestroySemaphore(vc.logical(), f.imageAvailable, vc.Allocator)
		s, err := vc.createSemaphore()
		if err != nil {
			return err
		}
		f.imageAvailable = s
	}
	vc.ImagesInFlight = make([]*VulkanFence, vc.Swapchain.ImageCount)
	return nil
}

func (vc *VulkanContext) createSemaphore() (vk.Semaphore, error) {
	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var s vk.Semaphore
	if res := vk.CreateSemaphore(vc.logical(), &semaphoreCreateInfo, vc.Allocator, &s); res != vk.Success {
		return nil, resultError("vkCreateSemaphore", res)
	}
	return s, nil
}

func (vc *VulkanContext) Acquire(slot int, timeout time.Duration) (uint32, error) {
	if vc.Swapchain == nil {
		return 0, fmt.Errorf("acquire before configure: %w", core.ErrSurfaceLost)
	}
	f, err := vc.frame(slot)
	if err != nil {
		return 0, err
	}
	var image uint32
	res := vk.AcquireNextImage(vc.logical(), vc.Swapchain.Handle, uint64(timeout.Nanoseconds()), f.imageAvailable, nil, &image)
	if err := resultError("vkAcquireNextImage", res); err != nil {
		return 0, err
	}
	return image, nil
}

func (vc *VulkanContext) Present(slot int, image uint32) error {
	if vc.Swapchain == nil || image >= vc.Swapchain.ImageCount {
		return fmt.Errorf("present of image %d: %w", image, core.ErrStaleTarget)
	}
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{vc.QueueCompleteSemaphores[image]},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{vc.Swapchain.Handle},
		PImageIndices:      []uint32{image},
	}
	res := vk.QueuePresent(vc.Device.PresentQueue, &presentInfo)
	if res == vk.Suboptimal {
		// presented, but the surface wants a rebuild
		return fmt.Errorf("vkQueuePresent returned %s: %w", VulkanResultString(res), core.ErrSurfaceLost)
	}
	return resultError("vkQueuePresent", res)
}
