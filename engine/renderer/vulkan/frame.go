package vulkan

import (
	"fmt"
	"time"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima2d/engine/core"
	"github.com/spaghettifunk/anima2d/engine/renderer"
	"github.com/spaghettifunk/anima2d/engine/renderer/metadata"
)

// imageFenceTimeout bounds the wait for another slot still rendering
// into the image just acquired.
const imageFenceTimeout = time.Second

func (vc *VulkanContext) frame(slot int) (*frameResources, error) {
	if slot < 0 || slot >= len(vc.frames) {
		return nil, fmt.Errorf("frame slot %d of %d: %w", slot, len(vc.frames), core.ErrInvalidConfig)
	}
	return vc.frames[slot], nil
}

// CreateFrameResources allocates the per slot command buffer, fence,
// acquire semaphore, instance buffer and camera uniform.
func (vc *VulkanContext) CreateFrameResources(slots int, instanceCapacity int) error {
	if slots < 1 || instanceCapacity < 1 {
		return fmt.Errorf("%d slots with %d instances: %w", slots, instanceCapacity, core.ErrInvalidConfig)
	}
	if err := vc.WaitIdle(); err != nil {
		return err
	}
	vc.destroyFrameResources()

	d, err := createDescriptors(vc, slots)
	if err != nil {
		return err
	}
	vc.descriptors = d

	for i := 0; i < slots; i++ {
		f := &frameResources{}
		vc.frames = append(vc.frames, f)
		if f.imageAvailable, err = vc.createSemaphore(); err != nil {
			return err
		}
		if f.commandBuffer, err = NewVulkanCommandBuffer(vc, vc.Device.GraphicsCommandPool, true); err != nil {
			return err
		}
		// signaled so the first wait on a fresh slot returns at once
		if f.inFlight, err = NewFence(vc, true); err != nil {
			return err
		}
		if f.instances, err = BufferCreate(vc, uint64(instanceCapacity*metadata.InstanceStride), vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit)); err != nil {
			return err
		}
		if f.camera, err = BufferCreate(vc, metadata.CameraUniformSize, vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit)); err != nil {
			return err
		}
		if f.descriptor, err = d.allocate(vc); err != nil {
			return err
		}
		writeCameraDescriptor(vc, f.descriptor, f.camera)
	}
	vc.writeTextureDescriptors()
	if vc.Swapchain != nil {
		vc.ImagesInFlight = make([]*VulkanFence, vc.Swapchain.ImageCount)
	}
	core.LogDebug("Frame resources created: %d slots, %d instances each", slots, instanceCapacity)
	return nil
}

func (vc *VulkanContext) destroyFrameResources() {
	for _, f := range vc.frames {
		if f.imageAvailable != nil {
			vk.DestroySemaphore(vc.logical(), f.imageAvailable, vc.Allocator)
		}
		if f.commandBuffer != nil {
			f.commandBuffer.Free(vc, vc.Device.GraphicsCommandPool)
		}
		if f.inFlight != nil {
			f.inFlight.FenceDestroy(vc)
		}
		if f.instances != nil {
			f.instances.Destroy(vc)
		}
		if f.camera != nil {
			f.camera.Destroy(vc)
		}
	}
	vc.frames = nil
	for i := range vc.ImagesInFlight {
		vc.ImagesInFlight[i] = nil
	}
	if vc.pipelines != nil {
		vc.pipelines.destroy(vc)
		vc.pipelines = nil
	}
	if vc.descriptors != nil {
		vc.descriptors.destroy(vc)
		vc.descriptors = nil
	}
}

func (vc *VulkanContext) WriteFrame(slot int, camera []byte, instances []byte) error {
	f, err := vc.frame(slot)
	if err != nil {
		return err
	}
	if !f.inFlight.Poll(vc) {
		return fmt.Errorf("write to slot %d while in flight: %w", slot, core.ErrInvalidDraw)
	}
	if err := f.camera.LoadData(0, camera); err != nil {
		return err
	}
	return f.instances.LoadData(0, instances)
}

func (vc *VulkanContext) WaitFrame(slot int, timeout time.Duration) error {
	f, err := vc.frame(slot)
	if err != nil {
		return err
	}
	return f.inFlight.FenceWait(vc, timeout)
}

func (vc *VulkanContext) FrameDone(slot int) bool {
	f, err := vc.frame(slot)
	if err != nil {
		return false
	}
	return f.inFlight.Poll(vc)
}

// Submit replays cmds into the slot's command buffer and queues it. The
// submit waits for the slot's acquire, signals the image's render
// finished semaphore and arms the slot's fence.
func (vc *VulkanContext) Submit(slot int, image uint32, cmds *renderer.CommandList) error {
	f, err := vc.frame(slot)
	if err != nil {
		return err
	}
	if vc.Swapchain == nil || image >= vc.Swapchain.ImageCount {
		return fmt.Errorf("submit to image %d: %w", image, core.ErrStaleTarget)
	}
	if vc.pipelines == nil {
		if vc.pipelines, err = createSpritePipelines(vc); err != nil {
			return err
		}
	}

	// another slot may still be rendering into this image
	if prev := vc.ImagesInFlight[image]; prev != nil && prev != f.inFlight {
		if err := prev.FenceWait(vc, imageFenceTimeout); err != nil {
			return err
		}
	}

	cb := f.commandBuffer
	if err := cb.Reset(); err != nil {
		return err
	}
	if err := cb.Begin(true); err != nil {
		return err
	}
	if err := vc.record(cb, f, image, cmds); err != nil {
		// leave the buffer closed so the next Reset is legal
		_ = cb.End()
		return err
	}
	if err := cb.End(); err != nil {
		return err
	}

	if err := f.inFlight.FenceReset(vc); err != nil {
		return err
	}
	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   1,
		PWaitSemaphores:      []vk.Semaphore{f.imageAvailable},
		PWaitDstStageMask:    []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{cb.Handle},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{vc.QueueCompleteSemaphores[image]},
	}
	if res := vk.QueueSubmit(vc.Device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, f.inFlight.Handle); res != vk.Success {
		return resultError("vkQueueSubmit", res)
	}
	cb.State = COMMAND_BUFFER_STATE_SUBMITTED
	vc.ImagesInFlight[image] = f.inFlight
	return nil
}

func (vc *VulkanContext) record(cb *VulkanCommandBuffer, f *frameResources, image uint32, cmds *renderer.CommandList) error {
	extent := vc.Swapchain.Extent
	inPass := false
	bound := false
	defer func() {
		if inPass {
			vc.MainRenderpass.RenderpassEnd(cb)
		}
	}()
	for _, c := range cmds.Commands {
		switch c.Op {
		case renderer.OpBeginPass:
			vc.MainRenderpass.RenderpassBegin(cb, vc.Swapchain.Framebuffers[image].Handle, extent, c.Clear)
			vk.CmdSetViewport(cb.Handle, 0, 1, []vk.Viewport{{
				Width:    float32(extent.Width),
				Height:   float32(extent.Height),
				MinDepth: 0,
				MaxDepth: 1,
			}})
			vk.CmdSetScissor(cb.Handle, 0, 1, []vk.Rect2D{{Extent: extent}})
			vk.CmdBindVertexBuffers(cb.Handle, 0, 1, []vk.Buffer{f.instances.Handle}, []vk.DeviceSize{0})
			inPass = true

		case renderer.OpSetPipeline:
			if !inPass {
				return fmt.Errorf("pipeline bound outside a pass: %w", core.ErrInvalidDraw)
			}
			p, err := vc.pipelines.get(c.Blend, c.DepthTest)
			if err != nil {
				return err
			}
			vk.CmdBindPipeline(cb.Handle, vk.PipelineBindPointGraphics, p)
			if !bound {
				vk.CmdBindDescriptorSets(cb.Handle, vk.PipelineBindPointGraphics, vc.pipelines.layout, 0, 1, []vk.DescriptorSet{f.descriptor}, 0, nil)
				bound = true
			}

		case renderer.OpDraw:
			if !bound {
				return fmt.Errorf("draw without a pipeline: %w", core.ErrInvalidDraw)
			}
			if vc.textures == nil {
				return fmt.Errorf("draw before the texture array exists: %w", core.ErrInvalidDraw)
			}
			if uint64(c.FirstInstance+c.InstanceCount)*metadata.InstanceStride > f.instances.Size {
				return fmt.Errorf("draw of %d instances at %d overflows the instance buffer: %w", c.InstanceCount, c.FirstInstance, core.ErrInvalidDraw)
			}
			// six vertices, two triangles per quad
			vk.CmdDraw(cb.Handle, 6, c.InstanceCount, 0, c.FirstInstance)

		case renderer.OpEndPass:
			if inPass {
				vc.MainRenderpass.RenderpassEnd(cb)
				inPass = false
			}
		}
	}
	return nil
}
