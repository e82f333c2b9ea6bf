// Package pipegen generates Go render pipeline code from pipeline
// description files.
//
// # Overview
//
// A .pmd file declares render pipelines with #render_pipeline blocks:
//
//	#render_pipeline(
//	    name: "TexturedPipeline",
//	    shader: "texture.wgsl",
//	    vs_entry: "vs_textured",
//	    fs_entry: "fs_textured",
//	)
//
// pipegen validates the referenced WGSL through the naga frontend,
// reflects the shader interface (vertex attributes, color targets,
// resource bindings), and emits a Go file with one constructor per
// pipeline that builds the corresponding wgpu/hal render pipeline.
// Vertex buffer layouts and fragment targets come from the shader
// itself; primitive topology, cull mode and target format come from
// the optional topology, cull and format fields.
//
// # Quick Start
//
//	g := pipegen.NewGenerator(pipegen.WithPackageName("shaders"))
//	src, err := g.GenerateFile(ctx, "pipelines.pmd")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	os.WriteFile("shaders/pipelines_gen.go", src, 0o644)
//
// The cmd/pipegen command wraps this for build scripts and go:generate,
// and can watch the inputs and regenerate on change.
//
// # Generated Code
//
// Generated files depend on github.com/gogpu/pipegen/pipeline for
// shader compilation and resource cleanup, and are stable: the same
// inputs always produce identical bytes.
package pipegen
