// Package pipeline provides the runtime support used by code that
// pipegen generates: shader compilation and GPU resource cleanup.
package pipeline

import (
	"fmt"

	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

// CompileShader compiles WGSL source to SPIR-V and creates a HAL
// shader module on device.
func CompileShader(device hal.Device, label, wgslSource string) (hal.ShaderModule, error) {
	spirvBytes, err := naga.Compile(wgslSource)
	if err != nil {
		return nil, fmt.Errorf("failed to compile shader: %w", err)
	}
	return device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label: label,
		Source: hal.ShaderSource{
			SPIRV: spirvWords(spirvBytes),
		},
	})
}

// spirvWords converts SPIR-V bytes to little-endian 32-bit words.
func spirvWords(spirvBytes []byte) []uint32 {
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return words
}

// Resources holds the GPU objects created for one generated pipeline.
type Resources struct {
	Device          hal.Device
	ShaderModule    hal.ShaderModule
	PipelineLayout  hal.PipelineLayout
	RenderPipelines []hal.RenderPipeline
}

// Destroy cleans up all resources in the correct order.
func (r *Resources) Destroy() {
	if r.Device == nil {
		return
	}

	for _, p := range r.RenderPipelines {
		if p != nil {
			r.Device.DestroyRenderPipeline(p)
		}
	}

	if r.PipelineLayout != nil {
		r.Device.DestroyPipelineLayout(r.PipelineLayout)
	}

	if r.ShaderModule != nil {
		r.Device.DestroyShaderModule(r.ShaderModule)
	}
}
