package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima2d/engine/core"
	"github.com/spaghettifunk/anima2d/engine/renderer"
)

// VulkanContext owns every Vulkan object of one window. It implements
// renderer.Device and is only used from the render thread.
type VulkanContext struct {
	options Options

	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks
	Surface   vk.Surface

	debugMessenger vk.DebugReportCallback

	Device *VulkanDevice

	state          renderer.SurfaceState
	Swapchain      *VulkanSwapchain
	MainRenderpass *VulkanRenderpass

	// one per swapchain image, signaled by the submit that renders into it
	QueueCompleteSemaphores []vk.Semaphore

	// per frame slot
	frames []*frameResources

	// Holds the fence of the slot last rendering into each image. The
	// fences are owned by frames.
	ImagesInFlight []*VulkanFence

	descriptors *descriptors
	pipelines   *spritePipelines
	textures    *textureArray
}

type frameResources struct {
	imageAvailable vk.Semaphore
	commandBuffer  *VulkanCommandBuffer
	inFlight       *VulkanFence
	instances      *VulkanBuffer
	camera         *VulkanBuffer
	descriptor     vk.DescriptorSet
}

func (vc *VulkanContext) FindMemoryIndex(typeFilter, propertyFlags uint32) int32 {
	var memoryProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(vc.Device.PhysicalDevice, &memoryProperties)
	memoryProperties.Deref()

	for i := uint32(0); i < memoryProperties.MemoryTypeCount; i++ {
		// Check each memory type to see if its bit is set to 1.
		memoryProperties.MemoryTypes[i].Deref()
		if (typeFilter&(1<<i)) != 0 && (uint32(memoryProperties.MemoryTypes[i].PropertyFlags)&propertyFlags) == propertyFlags {
			return int32(i)
		}
	}
	core.LogWarn("Unable to find suitable memory type!")
	return -1
}

func (vc *VulkanContext) logical() vk.Device {
	return vc.Device.LogicalDevice
}

var _ renderer.Device = (*VulkanContext)(nil)
