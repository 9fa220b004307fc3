package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima2d/engine/core"
	"github.com/spaghettifunk/anima2d/engine/math"
)

type VulkanImage struct {
	Handle vk.Image
	Memory vk.DeviceMemory
	View   vk.ImageView
	Width  uint32
	Height uint32
	Layers uint32
}

// ImageCreate makes a device local, optimally tiled 2D image with one
// view over all its layers.
func ImageCreate(context *VulkanContext, width, height, layers uint32, format vk.Format, usage vk.ImageUsageFlags, aspect vk.ImageAspectFlags) (*VulkanImage, error) {
	img := &VulkanImage{Width: width, Height: height, Layers: layers}

	createInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   layers,
		Format:        format,
		Tiling:        vk.ImageTilingOptimal,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         usage,
		Samples:       vk.SampleCount1Bit,
		SharingMode:   vk.SharingModeExclusive,
	}
	if res := vk.CreateImage(context.logical(), &createInfo, context.Allocator, &img.Handle); res != vk.Success {
		return nil, resultError("vkCreateImage", res)
	}

	var requirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(context.logical(), img.Handle, &requirements)
	requirements.Deref()

	index := context.FindMemoryIndex(requirements.MemoryTypeBits, uint32(vk.MemoryPropertyDeviceLocalBit))
	if index < 0 {
		img.ImageDestroy(context)
		return nil, fmt.Errorf("no device local memory for a %dx%d image: %w", width, height, core.ErrUnsupportedPlatform)
	}
	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(index),
	}
	if res := vk.AllocateMemory(context.logical(), &allocateInfo, context.Allocator, &img.Memory); res != vk.Success {
		img.ImageDestroy(context)
		return nil, resultError("vkAllocateMemory", res)
	}
	if res := vk.BindImageMemory(context.logical(), img.Handle, img.Memory, 0); res != vk.Success {
		img.ImageDestroy(context)
		return nil, resultError("vkBindImageMemory", res)
	}

	viewType := vk.ImageViewType2d
	if layers > 1 {
		viewType = vk.ImageViewType2dArray
	}
	view, err := createImageView(context, img.Handle, viewType, format, aspect, layers)
	if err != nil {
		img.ImageDestroy(context)
		return nil, err
	}
	img.View = view
	return img, nil
}

func createImageView(context *VulkanContext, image vk.Image, viewType vk.ImageViewType, format vk.Format, aspect vk.ImageAspectFlags, layers uint32) (vk.ImageView, error) {
	viewCreateInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: viewType,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspect,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     layers,
		},
	}
	var view vk.ImageView
	if res := vk.CreateImageView(context.logical(), &viewCreateInfo, context.Allocator, &view); res != vk.Success {
		return nil, resultError("vkCreateImageView", res)
	}
	return view, nil
}

func (vi *VulkanImage) ImageDestroy(context *VulkanContext) {
	if vi.View != nil {
		vk.DestroyImageView(context.logical(), vi.View, context.Allocator)
		vi.View = nil
	}
	if vi.Memory != nil {
		vk.FreeMemory(context.logical(), vi.Memory, context.Allocator)
		vi.Memory = nil
	}
	if vi.Handle != nil {
		vk.DestroyImage(context.logical(), vi.Handle, context.Allocator)
		vi.Handle = nil
	}
}

// transition records a layout change of layers [base, base+count).
func (vi *VulkanImage) transition(cb *VulkanCommandBuffer, base, count uint32, from, to vk.ImageLayout) {
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           from,
		NewLayout:           to,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               vi.Handle,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: base,
			LayerCount:     count,
		},
	}
	var src, dst vk.PipelineStageFlags
	switch {
	case from == vk.ImageLayoutUndefined:
		src = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
		dst = vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessShaderReadBit)
	case to == vk.ImageLayoutTransferDstOptimal:
		// earlier frames on the queue may still sample the layer
		src = vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)
		dst = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
		barrier.SrcAccessMask = vk.AccessFlags(vk.AccessShaderReadBit)
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
	default:
		src = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
		dst = vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)
		barrier.SrcAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessShaderReadBit)
	}
	vk.CmdPipelineBarrier(cb.Handle, src, dst, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}

// textureArray is the atlas on the GPU: one RGBA layer per atlas page,
// sampled with nearest filtering.
type textureArray struct {
	image   *VulkanImage
	sampler vk.Sampler
	size    uint32
	layers  uint32
}

func (t *textureArray) destroy(context *VulkanContext) {
	if t.sampler != nil {
		vk.DestroySampler(context.logical(), t.sampler, context.Allocator)
		t.sampler = nil
	}
	if t.image != nil {
		t.image.ImageDestroy(context)
		t.image = nil
	}
}

func (vc *VulkanContext) CreateTextureArray(size, layers uint32) error {
	if size == 0 || layers == 0 {
		return fmt.Errorf("texture array %dx%d with %d layers: %w", size, size, layers, core.ErrInvalidConfig)
	}
	if max := vc.Device.Properties.Limits.MaxImageArrayLayers; max > 0 && layers > max {
		return fmt.Errorf("%d texture layers exceed the device limit of %d: %w", layers, max, core.ErrUnsupportedPlatform)
	}
	if err := vc.WaitIdle(); err != nil {
		return err
	}
	if vc.textures != nil {
		vc.textures.destroy(vc)
		vc.textures = nil
	}

	img, err := ImageCreate(vc, size, size, layers, vk.FormatR8g8b8a8Srgb,
		vk.ImageUsageFlags(vk.ImageUsageTransferDstBit|vk.ImageUsageSampledBit),
		vk.ImageAspectFlags(vk.ImageAspectColorBit))
	if err != nil {
		return err
	}
	if layers == 1 {
		// the shader samples a sampler2DArray
		vk.DestroyImageView(vc.logical(), img.View, vc.Allocator)
		if img.View, err = createImageView(vc, img.Handle, vk.ImageViewType2dArray, vk.FormatR8g8b8a8Srgb, vk.ImageAspectFlags(vk.ImageAspectColorBit), 1); err != nil {
			img.ImageDestroy(vc)
			return err
		}
	}
	t := &textureArray{image: img, size: size, layers: layers}

	samplerInfo := vk.SamplerCreateInfo{
		SType:        vk.StructureTypeSamplerCreateInfo,
		MagFilter:    vk.FilterNearest,
		MinFilter:    vk.FilterNearest,
		MipmapMode:   vk.SamplerMipmapModeNearest,
		AddressModeU: vk.SamplerAddressModeClampToEdge,
		AddressModeV: vk.SamplerAddressModeClampToEdge,
		AddressModeW: vk.SamplerAddressModeClampToEdge,
		CompareOp:    vk.CompareOpAlways,
		BorderColor:  vk.BorderColorIntOpaqueBlack,
	}
	if res := vk.CreateSampler(vc.logical(), &samplerInfo, vc.Allocator, &t.sampler); res != vk.Success {
		t.destroy(vc)
		return resultError("vkCreateSampler", res)
	}

	// Every layer starts readable so unused pages sample as zero.
	cb, err := AllocateAndBeginSingleUse(vc, vc.Device.GraphicsCommandPool)
	if err != nil {
		t.destroy(vc)
		return err
	}
	img.transition(cb, 0, layers, vk.ImageLayoutUndefined, vk.ImageLayoutShaderReadOnlyOptimal)
	if err := cb.EndSingleUse(vc, vc.Device.GraphicsCommandPool, vc.Device.GraphicsQueue); err != nil {
		t.destroy(vc)
		return err
	}

	vc.textures = t
	vc.writeTextureDescriptors()
	core.LogDebug("Texture array created: %dx%d, %d layers", size, size, layers)
	return nil
}

// WriteTexture uploads rgba into rect of one layer through a staging
// buffer and waits for the copy.
func (vc *VulkanContext) WriteTexture(layer uint32, rect math.URect, rgba []byte) error {
	t := vc.textures
	if t == nil {
		return fmt.Errorf("texture write before the array exists: %w", core.ErrInvalidConfig)
	}
	if layer >= t.layers || rect.X+rect.W > t.size || rect.Y+rect.H > t.size {
		return fmt.Errorf("texture write %+v on layer %d is out of bounds: %w", rect, layer, core.ErrInvalidDraw)
	}
	if uint64(len(rgba)) != uint64(rect.W)*uint64(rect.H)*4 {
		return fmt.Errorf("texture write of %d bytes for a %dx%d rect: %w", len(rgba), rect.W, rect.H, core.ErrInvalidDraw)
	}
	if rect.W == 0 || rect.H == 0 {
		return nil
	}

	staging, err := BufferCreate(vc, uint64(len(rgba)), vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit))
	if err != nil {
		return err
	}
	defer staging.Destroy(vc)
	if err := staging.LoadData(0, rgba); err != nil {
		return err
	}

	cb, err := AllocateAndBeginSingleUse(vc, vc.Device.GraphicsCommandPool)
	if err != nil {
		return err
	}
	t.image.transition(cb, layer, 1, vk.ImageLayoutShaderReadOnlyOptimal, vk.ImageLayoutTransferDstOptimal)
	region := vk.BufferImageCopy{
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			MipLevel:       0,
			BaseArrayLayer: layer,
			LayerCount:     1,
		},
		ImageOffset: vk.Offset3D{X: int32(rect.X), Y: int32(rect.Y), Z: 0},
		ImageExtent: vk.Extent3D{Width: rect.W, Height: rect.H, Depth: 1},
	}
	vk.CmdCopyBufferToImage(cb.Handle, staging.Handle, t.image.Handle, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})
	t.image.transition(cb, layer, 1, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal)
	return cb.EndSingleUse(vc, vc.Device.GraphicsCommandPool, vc.Device.GraphicsQueue)
}
