package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima2d/engine/core"
)

// VulkanBuffer is host visible and coherent memory, mapped for its
// whole lifetime.
type VulkanBuffer struct {
	Handle vk.Buffer
	Memory vk.DeviceMemory
	Size   uint64
	Usage  vk.BufferUsageFlags

	mapped unsafe.Pointer
}

func BufferCreate(context *VulkanContext, size uint64, usage vk.BufferUsageFlags) (*VulkanBuffer, error) {
	b := &VulkanBuffer{Size: size, Usage: usage}
	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}
	if res := vk.CreateBuffer(context.logical(), &createInfo, context.Allocator, &b.Handle); res != vk.Success {
		return nil, resultError("vkCreateBuffer", res)
	}

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(context.logical(), b.Handle, &requirements)
	requirements.Deref()

	flags := uint32(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	index := context.FindMemoryIndex(requirements.MemoryTypeBits, flags)
	if index < 0 {
		b.Destroy(context)
		return nil, fmt.Errorf("no host visible memory for a %d byte buffer: %w", size, core.ErrUnsupportedPlatform)
	}
	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(index),
	}
	if res := vk.AllocateMemory(context.logical(), &allocateInfo, context.Allocator, &b.Memory); res != vk.Success {
		b.Destroy(context)
		return nil, resultError("vkAllocateMemory", res)
	}
	if res := vk.BindBufferMemory(context.logical(), b.Handle, b.Memory, 0); res != vk.Success {
		b.Destroy(context)
		return nil, resultError("vkBindBufferMemory", res)
	}
	if res := vk.MapMemory(context.logical(), b.Memory, 0, vk.DeviceSize(size), 0, &b.mapped); res != vk.Success {
		b.Destroy(context)
		return nil, resultError("vkMapMemory", res)
	}
	return b, nil
}

// LoadData copies data at offset. The memory is coherent so no flush
// is needed before the next submit.
func (b *VulkanBuffer) LoadData(offset uint64, data []byte) error {
	if offset+uint64(len(data)) > b.Size {
		return fmt.Errorf("%d bytes at offset %d overflow a %d byte buffer: %w", len(data), offset, b.Size, core.ErrInvalidDraw)
	}
	dst := unsafe.Slice((*byte)(b.mapped), b.Size)
	copy(dst[offset:], data)
	return nil
}

func (b *VulkanBuffer) Destroy(context *VulkanContext) {
	if b.mapped != nil {
		vk.UnmapMemory(context.logical(), b.Memory)
		b.mapped = nil
	}
	if b.Memory != nil {
		vk.FreeMemory(context.logical(), b.Memory, context.Allocator)
		b.Memory = nil
	}
	if b.Handle != nil {
		vk.DestroyBuffer(context.logical(), b.Handle, context.Allocator)
		b.Handle = nil
	}
}
