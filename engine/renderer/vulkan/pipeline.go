package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima2d/engine/core"
	"github.com/spaghettifunk/anima2d/engine/renderer/metadata"
)

// spritePipelines is one graphics pipeline per blend mode and depth
// test, sharing a layout. All of them draw instanced unit quads.
type spritePipelines struct {
	layout  vk.PipelineLayout
	handles [metadata.BlendModeCount][metadata.DepthTestCount]vk.Pipeline
}

// instance record attributes, see batch.Instance
var instanceAttributes = []vk.VertexInputAttributeDescription{
	{Location: 0, Binding: 0, Format: vk.FormatR32g32b32a32Sfloat, Offset: 0},  // affine columns
	{Location: 1, Binding: 0, Format: vk.FormatR32g32Sfloat, Offset: 16},       // translation
	{Location: 2, Binding: 0, Format: vk.FormatR32Uint, Offset: 24},            // layer
	{Location: 3, Binding: 0, Format: vk.FormatR32Sfloat, Offset: 28},          // depth
	{Location: 4, Binding: 0, Format: vk.FormatR32g32b32a32Sfloat, Offset: 32}, // uv rect
	{Location: 5, Binding: 0, Format: vk.FormatR32g32b32a32Sfloat, Offset: 48}, // tint
}

func createSpritePipelines(context *VulkanContext) (*spritePipelines, error) {
	if context.descriptors == nil || context.MainRenderpass == nil {
		return nil, fmt.Errorf("pipelines need frame resources and a configured surface: %w", core.ErrInvalidConfig)
	}
	vert, err := CreateShaderModule(context, "sprite", "vert", vk.ShaderStageVertexBit)
	if err != nil {
		return nil, err
	}
	defer vert.Destroy(context)
	frag, err := CreateShaderModule(context, "sprite", "frag", vk.ShaderStageFragmentBit)
	if err != nil {
		return nil, err
	}
	defer frag.Destroy(context)

	p := &spritePipelines{}
	layoutInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: 1,
		PSetLayouts:    []vk.DescriptorSetLayout{context.descriptors.layout},
	}
	if res := vk.CreatePipelineLayout(context.logical(), &layoutInfo, context.Allocator, &p.layout); res != vk.Success {
		return nil, resultError("vkCreatePipelineLayout", res)
	}

	stages := []vk.PipelineShaderStageCreateInfo{vert.CreateInfo, frag.CreateInfo}
	for b := metadata.BlendMode(0); b < metadata.BlendModeCount; b++ {
		for d := metadata.DepthTest(0); d < metadata.DepthTestCount; d++ {
			h, err := newGraphicsPipeline(context, p.layout, stages, b, d)
			if err != nil {
				p.destroy(context)
				return nil, fmt.Errorf("pipeline %s/%d: %w", b, d, err)
			}
			p.handles[b][d] = h
		}
	}
	core.LogDebug("Sprite pipelines created.")
	return p, nil
}

func blendState(mode metadata.BlendMode) vk.PipelineColorBlendAttachmentState {
	s := vk.PipelineColorBlendAttachmentState{
		BlendEnable:  vk.True,
		ColorBlendOp: vk.BlendOpAdd,
		AlphaBlendOp: vk.BlendOpAdd,
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit |
			vk.ColorComponentBBit | vk.ColorComponentABit),
	}
	switch mode {
	case metadata.BlendAdditive:
		s.SrcColorBlendFactor = vk.BlendFactorSrcAlpha
		s.DstColorBlendFactor = vk.BlendFactorOne
		s.SrcAlphaBlendFactor = vk.BlendFactorZero
		s.DstAlphaBlendFactor = vk.BlendFactorOne
	case metadata.BlendPremultiplied:
		s.SrcColorBlendFactor = vk.BlendFactorOne
		s.DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
		s.SrcAlphaBlendFactor = vk.BlendFactorOne
		s.DstAlphaBlendFactor = vk.BlendFactorOneMinusSrcAlpha
	case metadata.BlendOpaque:
		s.BlendEnable = vk.False
	default:
		s.SrcColorBlendFactor = vk.BlendFactorSrcAlpha
		s.DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
		s.SrcAlphaBlendFactor = vk.BlendFactorOne
		s.DstAlphaBlendFactor = vk.BlendFactorOneMinusSrcAlpha
	}
	return s
}

func newGraphicsPipeline(context *VulkanContext, layout vk.PipelineLayout, stages []vk.PipelineShaderStageCreateInfo, blend metadata.BlendMode, depth metadata.DepthTest) (vk.Pipeline, error) {
	// viewport and scissor are dynamic, only the counts matter here
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}
	rasterizer := vk.PipelineRasterizationStateCreateInfo{
		SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: vk.PolygonModeFill,
		LineWidth:   1.0,
		// flipped sprites turn their quads around
		CullMode:  vk.CullModeFlags(vk.CullModeNone),
		FrontFace: vk.FrontFaceCounterClockwise,
	}
	multisampling := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vk.SampleCount1Bit,
		MinSampleShading:     1.0,
	}
	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType: vk.StructureTypePipelineDepthStencilStateCreateInfo,
	}
	if depth == metadata.DepthTestLessEqual {
		depthStencil.DepthTestEnable = vk.True
		depthStencil.DepthWriteEnable = vk.True
		depthStencil.DepthCompareOp = vk.CompareOpLessOrEqual
	}
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{blendState(blend)},
	}
	dynamicStates := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}
	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}
	// One binding, advanced per instance. Quad corners come from
	// gl_VertexIndex.
	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType:                         vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount: 1,
		PVertexBindingDescriptions: []vk.VertexInputBindingDescription{{
			Binding:   0,
			Stride:    metadata.InstanceStride,
			InputRate: vk.VertexInputRateInstance,
		}},
		VertexAttributeDescriptionCount: uint32(len(instanceAttributes)),
		PVertexAttributeDescriptions:    instanceAttributes,
	}
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: vk.PrimitiveTopologyTriangleList,
	}

	createInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisampling,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlend,
		PDynamicState:       &dynamicState,
		Layout:              layout,
		RenderPass:          context.MainRenderpass.Handle,
		Subpass:             0,
		BasePipelineIndex:   -1,
	}
	pipelines := make([]vk.Pipeline, 1)
	if res := vk.CreateGraphicsPipelines(context.logical(), vk.NullPipelineCache, 1, []vk.GraphicsPipelineCreateInfo{createInfo}, context.Allocator, pipelines); res != vk.Success {
		return nil, resultError("vkCreateGraphicsPipelines", res)
	}
	return pipelines[0], nil
}

func (p *spritePipelines) get(blend metadata.BlendMode, depth metadata.DepthTest) (vk.Pipeline, error) {
	if blend >= metadata.BlendModeCount || depth >= metadata.DepthTestCount {
		return nil, fmt.Errorf("no pipeline for blend %d depth %d: %w", blend, depth, core.ErrInvalidDraw)
	}
	return p.handles[blend][depth], nil
}

func (p *spritePipelines) destroy(context *VulkanContext) {
	for b := range p.handles {
		for d := range p.handles[b] {
			if p.handles[b][d] != nil {
				vk.DestroyPipeline(context.logical(), p.handles[b][d], context.Allocator)
				p.handles[b][d] = nil
			}
		}
	}
	if p.layout != nil {
		vk.DestroyPipelineLayout(context.logical(), p.layout, context.Allocator)
		p.layout = nil
	}
}
