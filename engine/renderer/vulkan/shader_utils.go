package vulkan

import (
	"fmt"
	"path/filepath"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima2d/engine/assets/loaders"
	"github.com/spaghettifunk/anima2d/engine/core"
)

type VulkanShaderStage struct {
	Handle      vk.ShaderModule
	CreateInfo  vk.PipelineShaderStageCreateInfo
	Stage       vk.ShaderStageFlagBits
	HasAssigned bool
}

// ShaderSource returns SPIR-V words for a module named like "sprite.vert".
type ShaderSource func(name string) ([]uint32, error)

// shaderCode reads <name>.<stage> through opts.Shaders when set, and
// from <opts.ShaderDir>/<name>.<stage>.spv otherwise or when the source
// has no such module.
func shaderCode(opts Options, name, stageName string) ([]uint32, error) {
	module := name + "." + stageName
	if opts.Shaders != nil {
		code, err := opts.Shaders(module)
		if err == nil {
			return code, nil
		}
		core.LogDebug("shader %s not in the shader source, reading %s: %s", module, opts.ShaderDir, err)
	}
	path := filepath.Join(opts.ShaderDir, module+".spv")
	res, err := (&loaders.ShaderLoader{}).Load(path)
	if err != nil {
		return nil, err
	}
	return res.Data.([]uint32), nil
}

// CreateShaderModule loads the <name>.<stage> module, e.g. sprite.vert.
func CreateShaderModule(context *VulkanContext, name, stageName string, stage vk.ShaderStageFlagBits) (*VulkanShaderStage, error) {
	code, err := shaderCode(context.options, name, stageName)
	if err != nil {
		return nil, fmt.Errorf("shader %s.%s: %w", name, stageName, err)
	}

	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code) * 4),
		PCode:    code,
	}
	s := &VulkanShaderStage{Stage: stage}
	if res := vk.CreateShaderModule(context.logical(), &createInfo, context.Allocator, &s.Handle); res != vk.Success {
		return nil, resultError("vkCreateShaderModule "+name+"."+stageName, res)
	}
	s.CreateInfo = vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  stage,
		Module: s.Handle,
		PName:  VulkanSafeString("main"),
	}
	s.HasAssigned = true
	return s, nil
}

func (s *VulkanShaderStage) Destroy(context *VulkanContext) {
	if s.Handle != nil {
		vk.DestroyShaderModule(context.logical(), s.Handle, context.Allocator)
		s.Handle = nil
	}
	s.HasAssigned = false
}
