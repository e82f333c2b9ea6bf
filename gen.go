package pipegen

import (
	"bytes"
	"context"
	"fmt"
	"go/format"
	"os"
	"path/filepath"
	"unicode"

	"golang.org/x/sync/errgroup"
)

// Generator turns a .pmd pipeline description into a Go source file.
//
// The generated file contains, for every #render_pipeline block, an
// exported struct with a New<Name> constructor that builds the
// corresponding hal render pipeline: shader module, empty pipeline
// layout, vertex buffer layout and color targets reflected from the
// WGSL, and the primitive state from the block's fields. Shader
// sources are embedded once per distinct file and shared between
// pipelines.
//
// Generation is deterministic: the same inputs produce identical
// output bytes.
type Generator struct {
	pkg      string
	readFile func(string) ([]byte, error)
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithPackageName sets the package name of the generated file.
// The default is "pipelines".
func WithPackageName(name string) GeneratorOption {
	return func(g *Generator) {
		g.pkg = name
	}
}

// WithReadFile replaces the function used to load shader sources.
// Tests use this to supply shaders without touching the filesystem.
func WithReadFile(fn func(string) ([]byte, error)) GeneratorOption {
	return func(g *Generator) {
		g.readFile = fn
	}
}

// NewGenerator creates a Generator with the given options.
func NewGenerator(opts ...GeneratorOption) *Generator {
	g := &Generator{
		pkg:      "pipelines",
		readFile: os.ReadFile,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GenerateFile reads the .pmd file at path and generates Go source.
// Shader paths in the config are resolved relative to the .pmd file.
func (g *Generator) GenerateFile(ctx context.Context, path string) ([]byte, error) {
	src, err := g.readFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return g.Generate(ctx, string(src), filepath.Dir(path))
}

// Generate parses the .pmd source, loads and reflects every referenced
// shader relative to baseDir, and returns gofmt-formatted Go source.
// With multiple shaders, validation runs concurrently; the first
// failure aborts generation.
func (g *Generator) Generate(ctx context.Context, src, baseDir string) ([]byte, error) {
	configs, err := ParseConfig(src)
	if err != nil {
		return nil, err
	}
	if len(configs) == 0 {
		return nil, fmt.Errorf("config declares no pipelines")
	}
	for _, cfg := range configs {
		if !isExportedIdent(cfg.Name) {
			return nil, fmt.Errorf("pipeline name %q is not an exported Go identifier", cfg.Name)
		}
	}

	// Deduplicate shaders by path, keeping first-use order for the
	// emitted consts.
	var paths []string
	index := make(map[string]int)
	for _, cfg := range configs {
		if _, ok := index[cfg.Shader]; !ok {
			index[cfg.Shader] = len(paths)
			paths = append(paths, cfg.Shader)
		}
	}

	infos := make([]*ShaderInfo, len(paths))
	eg, ctx := errgroup.WithContext(ctx)
	for i, p := range paths {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			full := filepath.Join(baseDir, p)
			data, err := g.readFile(full)
			if err != nil {
				return fmt.Errorf("read shader: %w", err)
			}
			info, err := ReflectShader(p, string(data))
			if err != nil {
				return err
			}
			Logger().Debug("shader validated",
				"path", p,
				"entry_points", len(info.EntryPoints()))
			infos[i] = info
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "// Code generated by pipegen. DO NOT EDIT.\n\n")
	fmt.Fprintf(&buf, "package %s\n\n", g.pkg)
	fmt.Fprintf(&buf, "import (\n")
	fmt.Fprintf(&buf, "\t\"fmt\"\n\n")
	fmt.Fprintf(&buf, "\t\"github.com/gogpu/gputypes\"\n")
	fmt.Fprintf(&buf, "\t\"github.com/gogpu/pipegen/pipeline\"\n")
	fmt.Fprintf(&buf, "\t\"github.com/gogpu/wgpu/hal\"\n")
	fmt.Fprintf(&buf, ")\n\n")

	for i, p := range paths {
		fmt.Fprintf(&buf, "// %s is the WGSL source of %s.\nconst %s = %s\n\n",
			shaderConst(i), p, shaderConst(i), rawString(infos[i].Source))
	}

	for _, cfg := range configs {
		info := infos[index[cfg.Shader]]
		if err := g.emitPipeline(&buf, cfg, info, shaderConst(index[cfg.Shader])); err != nil {
			return nil, err
		}
	}

	out, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("format generated code: %w", err)
	}
	Logger().Info("pipeline code generated",
		"pipelines", len(configs),
		"shaders", len(paths),
		"bytes", len(out))
	return out, nil
}

func shaderConst(i int) string {
	return fmt.Sprintf("shader%d", i)
}

// rawString renders s as a Go raw string literal, falling back to an
// interpreted literal when the source itself contains a backquote.
func rawString(s string) string {
	for _, r := range s {
		if r == '`' {
			return fmt.Sprintf("%q", s)
		}
	}
	return "`" + s + "`"
}

func isExportedIdent(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		if i == 0 {
			if !unicode.IsUpper(r) {
				return false
			}
			continue
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return true
}

// emitPipeline writes the struct and constructor for one pipeline.
func (g *Generator) emitPipeline(buf *bytes.Buffer, cfg RenderPipelineConfig, info *ShaderInfo, shaderName string) error {
	attrs, err := info.VertexInputs(cfg.VSEntry)
	if err != nil {
		return err
	}
	targets, err := info.FragmentTargets(cfg.FSEntry)
	if err != nil {
		return err
	}
	bindings := info.Bindings()

	fmt.Fprintf(buf, "// %s wraps the render pipeline generated from %s\n", cfg.Name, cfg.Shader)
	fmt.Fprintf(buf, "// (%s / %s).\n", cfg.VSEntry, cfg.FSEntry)
	if len(bindings) > 0 {
		fmt.Fprintf(buf, "//\n// Expected bindings:\n")
		for _, b := range bindings {
			fmt.Fprintf(buf, "//   - group %d, binding %d: %s (%s)\n", b.Group, b.Binding, b.Name, b.Kind)
		}
	}
	fmt.Fprintf(buf, "type %s struct {\n", cfg.Name)
	fmt.Fprintf(buf, "\tRenderPipeline hal.RenderPipeline\n\n")
	fmt.Fprintf(buf, "\tres pipeline.Resources\n")
	fmt.Fprintf(buf, "}\n\n")

	fmt.Fprintf(buf, "// New%s builds the pipeline on device. Call Destroy to release\n", cfg.Name)
	fmt.Fprintf(buf, "// the GPU objects it creates.\n")
	fmt.Fprintf(buf, "func New%s(device hal.Device) (*%s, error) {\n", cfg.Name, cfg.Name)
	fmt.Fprintf(buf, "\tmodule, err := pipeline.CompileShader(device, %q, %s)\n", cfg.Name, shaderName)
	fmt.Fprintf(buf, "\tif err != nil {\n\t\treturn nil, fmt.Errorf(\"compile shader: %%w\", err)\n\t}\n\n")

	fmt.Fprintf(buf, "\tlayout, err := device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{\n")
	fmt.Fprintf(buf, "\t\tLabel: %q,\n", cfg.Name)
	fmt.Fprintf(buf, "\t})\n")
	fmt.Fprintf(buf, "\tif err != nil {\n")
	fmt.Fprintf(buf, "\t\tdevice.DestroyShaderModule(module)\n")
	fmt.Fprintf(buf, "\t\treturn nil, fmt.Errorf(\"create pipeline layout: %%w\", err)\n\t}\n\n")

	fmt.Fprintf(buf, "\trp, err := device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{\n")
	fmt.Fprintf(buf, "\t\tLabel:  %q,\n", cfg.Name)
	fmt.Fprintf(buf, "\t\tLayout: layout,\n")
	fmt.Fprintf(buf, "\t\tVertex: hal.VertexState{\n")
	fmt.Fprintf(buf, "\t\t\tModule:     module,\n")
	fmt.Fprintf(buf, "\t\t\tEntryPoint: %q,\n", cfg.VSEntry)
	if len(attrs) > 0 {
		fmt.Fprintf(buf, "\t\t\tBuffers: []gputypes.VertexBufferLayout{\n")
		fmt.Fprintf(buf, "\t\t\t\t{\n")
		fmt.Fprintf(buf, "\t\t\t\t\tArrayStride: %d,\n", VertexStride(attrs))
		fmt.Fprintf(buf, "\t\t\t\t\tStepMode:    gputypes.VertexStepModeVertex,\n")
		fmt.Fprintf(buf, "\t\t\t\t\tAttributes: []gputypes.VertexAttribute{\n")
		for _, a := range attrs {
			fmt.Fprintf(buf, "\t\t\t\t\t\t{Format: gputypes.%s, Offset: %d, ShaderLocation: %d}, // %s\n",
				a.formatName, a.Offset, a.Location, a.Name)
		}
		fmt.Fprintf(buf, "\t\t\t\t\t},\n")
		fmt.Fprintf(buf, "\t\t\t\t},\n")
		fmt.Fprintf(buf, "\t\t\t},\n")
	}
	fmt.Fprintf(buf, "\t\t},\n")

	if len(targets) > 0 {
		fmt.Fprintf(buf, "\t\tFragment: &hal.FragmentState{\n")
		fmt.Fprintf(buf, "\t\t\tModule:     module,\n")
		fmt.Fprintf(buf, "\t\t\tEntryPoint: %q,\n", cfg.FSEntry)
		fmt.Fprintf(buf, "\t\t\tTargets: []gputypes.ColorTargetState{\n")
		for range targets {
			fmt.Fprintf(buf, "\t\t\t\t{\n")
			fmt.Fprintf(buf, "\t\t\t\t\tFormat:    gputypes.%s,\n", formatNames[cfg.Format])
			fmt.Fprintf(buf, "\t\t\t\t\tWriteMask: gputypes.ColorWriteMaskAll,\n")
			fmt.Fprintf(buf, "\t\t\t\t},\n")
		}
		fmt.Fprintf(buf, "\t\t\t},\n")
		fmt.Fprintf(buf, "\t\t},\n")
	}

	fmt.Fprintf(buf, "\t\tPrimitive: gputypes.PrimitiveState{\n")
	fmt.Fprintf(buf, "\t\t\tTopology: gputypes.%s,\n", topologyNames[cfg.Topology])
	fmt.Fprintf(buf, "\t\t\tCullMode: gputypes.%s,\n", cullNames[cfg.Cull])
	fmt.Fprintf(buf, "\t\t},\n")
	fmt.Fprintf(buf, "\t\tMultisample: gputypes.MultisampleState{\n")
	fmt.Fprintf(buf, "\t\t\tCount: 1,\n")
	fmt.Fprintf(buf, "\t\t\tMask:  0xFFFFFFFF,\n")
	fmt.Fprintf(buf, "\t\t},\n")
	fmt.Fprintf(buf, "\t})\n")
	fmt.Fprintf(buf, "\tif err != nil {\n")
	fmt.Fprintf(buf, "\t\tdevice.DestroyPipelineLayout(layout)\n")
	fmt.Fprintf(buf, "\t\tdevice.DestroyShaderModule(module)\n")
	fmt.Fprintf(buf, "\t\treturn nil, fmt.Errorf(\"create render pipeline: %%w\", err)\n\t}\n\n")

	fmt.Fprintf(buf, "\treturn &%s{\n", cfg.Name)
	fmt.Fprintf(buf, "\t\tRenderPipeline: rp,\n")
	fmt.Fprintf(buf, "\t\tres: pipeline.Resources{\n")
	fmt.Fprintf(buf, "\t\t\tDevice:          device,\n")
	fmt.Fprintf(buf, "\t\t\tShaderModule:    module,\n")
	fmt.Fprintf(buf, "\t\t\tPipelineLayout:  layout,\n")
	fmt.Fprintf(buf, "\t\t\tRenderPipelines: []hal.RenderPipeline{rp},\n")
	fmt.Fprintf(buf, "\t\t},\n")
	fmt.Fprintf(buf, "\t}, nil\n")
	fmt.Fprintf(buf, "}\n\n")

	fmt.Fprintf(buf, "// Destroy releases the GPU objects created by New%s.\n", cfg.Name)
	fmt.Fprintf(buf, "func (p *%s) Destroy() {\n", cfg.Name)
	fmt.Fprintf(buf, "\tp.res.Destroy()\n")
	fmt.Fprintf(buf, "}\n\n")
	return nil
}
