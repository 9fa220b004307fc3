package vulkan

import (
	vk "github.com/goki/vulkan"
)

type VulkanFramebuffer struct {
	Handle      vk.Framebuffer
	Attachments []vk.ImageView
	Renderpass  *VulkanRenderpass
}

func FramebufferCreate(context *VulkanContext, renderpass *VulkanRenderpass, width uint32, height uint32, attachments []vk.ImageView) (*VulkanFramebuffer, error) {
	fb := &VulkanFramebuffer{
		Attachments: append([]vk.ImageView(nil), attachments...),
		Renderpass:  renderpass,
	}
	createInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderpass.Handle,
		AttachmentCount: uint32(len(fb.Attachments)),
		PAttachments:    fb.Attachments,
		Width:           width,
		Height:          height,
		Layers:          1,
	}
	if res := vk.CreateFramebuffer(context.logical(), &createInfo, context.Allocator, &fb.Handle); res != vk.Success {
		return nil, resultError("vkCreateFramebuffer", res)
	}
	return fb, nil
}

func (vfb *VulkanFramebuffer) FramebufferDestroy(context *VulkanContext) {
	if vfb.Handle != nil {
		vk.DestroyFramebuffer(context.logical(), vfb.Handle, context.Allocator)
	}
	vfb.Handle = nil
	vfb.Attachments = nil
	vfb.Renderpass = nil
}

// regenerateFramebuffers builds one framebuffer per swapchain image,
// sharing the depth attachment.
func (vc *VulkanContext) regenerateFramebuffers() error {
	sc := vc.Swapchain
	for _, fb := range sc.Framebuffers {
		fb.FramebufferDestroy(vc)
	}
	sc.Framebuffers = make([]*VulkanFramebuffer, sc.ImageCount)
	for i := range sc.Views {
		attachments := []vk.ImageView{sc.Views[i], sc.DepthAttachment.View}
		fb, err := FramebufferCreate(vc, vc.MainRenderpass, sc.Extent.Width, sc.Extent.Height, attachments)
		if err != nil {
			return err
		}
		sc.Framebuffers[i] = fb
	}
	return nil
}
