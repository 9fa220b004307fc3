package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima2d/engine/renderer/metadata"
)

const (
	bindingCamera  = 0
	bindingTexture = 1
)

// descriptors holds one set per frame slot: the camera uniform at
// binding 0 and the atlas array at binding 1.
type descriptors struct {
	layout vk.DescriptorSetLayout
	pool   vk.DescriptorPool
}

func createDescriptors(context *VulkanContext, slots int) (*descriptors, error) {
	d := &descriptors{}
	bindings := []vk.DescriptorSetLayoutBinding{
		{
			Binding:         bindingCamera,
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageVertexBit),
		},
		{
			Binding:         bindingTexture,
			DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
		},
	}
	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	if res := vk.CreateDescriptorSetLayout(context.logical(), &layoutInfo, context.Allocator, &d.layout); res != vk.Success {
		return nil, resultError("vkCreateDescriptorSetLayout", res)
	}

	sizes := []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: uint32(slots)},
		{Type: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: uint32(slots)},
	}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       uint32(slots),
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}
	if res := vk.CreateDescriptorPool(context.logical(), &poolInfo, context.Allocator, &d.pool); res != vk.Success {
		d.destroy(context)
		return nil, resultError("vkCreateDescriptorPool", res)
	}
	return d, nil
}

func (d *descriptors) allocate(context *VulkanContext) (vk.DescriptorSet, error) {
	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     d.pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{d.layout},
	}
	var set vk.DescriptorSet
	if res := vk.AllocateDescriptorSets(context.logical(), &allocInfo, &set); res != vk.Success {
		return nil, resultError("vkAllocateDescriptorSets", res)
	}
	return set, nil
}

// destroy frees the pool, and with it every set allocated from it.
func (d *descriptors) destroy(context *VulkanContext) {
	if d.pool != nil {
		vk.DestroyDescriptorPool(context.logical(), d.pool, context.Allocator)
		d.pool = nil
	}
	if d.layout != nil {
		vk.DestroyDescriptorSetLayout(context.logical(), d.layout, context.Allocator)
		d.layout = nil
	}
}

func writeCameraDescriptor(context *VulkanContext, set vk.DescriptorSet, camera *VulkanBuffer) {
	write := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          set,
		DstBinding:      bindingCamera,
		DescriptorCount: 1,
		DescriptorType:  vk.DescriptorTypeUniformBuffer,
		PBufferInfo: []vk.DescriptorBufferInfo{{
			Buffer: camera.Handle,
			Offset: 0,
			Range:  vk.DeviceSize(metadata.CameraUniformSize),
		}},
	}
	vk.UpdateDescriptorSets(context.logical(), 1, []vk.WriteDescriptorSet{write}, 0, nil)
}

// writeTextureDescriptors points every slot at the current texture
// array. Callers make sure no slot is in flight.
func (vc *VulkanContext) writeTextureDescriptors() {
	if vc.textures == nil {
		return
	}
	writes := make([]vk.WriteDescriptorSet, 0, len(vc.frames))
	for _, f := range vc.frames {
		writes = append(writes, vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          f.descriptor,
			DstBinding:      bindingTexture,
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
			PImageInfo: []vk.DescriptorImageInfo{{
				Sampler:     vc.textures.sampler,
				ImageView:   vc.textures.image.View,
				ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
			}},
		})
	}
	if len(writes) > 0 {
		vk.UpdateDescriptorSets(vc.logical(), uint32(len(writes)), writes, 0, nil)
	}
}
