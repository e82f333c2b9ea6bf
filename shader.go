package pipegen

import (
	"fmt"
	"sort"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
)

// ShaderInfo is the reflected interface of one WGSL shader module:
// its entry points, vertex inputs, fragment outputs, and resource
// bindings. It is produced by [ReflectShader] and consumed by the
// generator to fill in the parts of a pipeline descriptor that the
// shader itself determines.
type ShaderInfo struct {
	// Path is the shader file path, used in error messages and as the
	// deduplication key.
	Path string

	// Source is the WGSL text.
	Source string

	module *ir.Module
}

// EntryPointInfo names one entry point and its stage ("vertex",
// "fragment" or "compute").
type EntryPointInfo struct {
	Name  string
	Stage string
}

// VertexAttribute is one reflected vertex input, ordered by location
// with tightly packed offsets.
type VertexAttribute struct {
	Name     string
	Location uint32
	Format   gputypes.VertexFormat
	Offset   uint32
	Size     uint32

	// formatName is the gputypes identifier emitted in generated code.
	formatName string
}

// ColorTarget is one reflected fragment color output.
type ColorTarget struct {
	Name     string
	Location uint32
}

// BindingKind coarsely classifies a shader resource binding.
type BindingKind uint8

const (
	BindingTexture BindingKind = iota
	BindingSampler
	BindingUniformBuffer
	BindingStorageBuffer
)

func (k BindingKind) String() string {
	switch k {
	case BindingTexture:
		return "texture"
	case BindingSampler:
		return "sampler"
	case BindingUniformBuffer:
		return "uniform buffer"
	case BindingStorageBuffer:
		return "storage buffer"
	default:
		return "unknown"
	}
}

// ResourceBinding is one group/binding slot the shader expects the
// host pipeline to fill.
type ResourceBinding struct {
	Group   uint32
	Binding uint32
	Name    string
	Kind    BindingKind
}

// EntryPointError reports a config entry point the shader does not
// provide at the required stage.
type EntryPointError struct {
	Shader string
	Entry  string
	Stage  string
}

func (e *EntryPointError) Error() string {
	return fmt.Sprintf("shader %s has no %s entry point %q", e.Shader, e.Stage, e.Entry)
}

// ReflectShader parses and validates WGSL source through the naga
// frontend. The path is recorded for error messages only; the source
// is not read from disk here.
func ReflectShader(path, source string) (*ShaderInfo, error) {
	ast, err := naga.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	module, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, fmt.Errorf("validate %s: %w", path, err)
	}
	return &ShaderInfo{Path: path, Source: source, module: module}, nil
}

// EntryPoints lists the module's entry points in declaration order.
func (s *ShaderInfo) EntryPoints() []EntryPointInfo {
	eps := make([]EntryPointInfo, 0, len(s.module.EntryPoints))
	for _, ep := range s.module.EntryPoints {
		eps = append(eps, EntryPointInfo{Name: ep.Name, Stage: stageName(ep)})
	}
	return eps
}

func stageName(ep ir.EntryPoint) string {
	switch ep.Stage {
	case ir.StageVertex:
		return "vertex"
	case ir.StageFragment:
		return "fragment"
	default:
		return "compute"
	}
}

func (s *ShaderInfo) findEntry(name, stage string) (ir.EntryPoint, error) {
	for _, ep := range s.module.EntryPoints {
		if ep.Name == name && stageName(ep) == stage {
			return ep, nil
		}
	}
	return ir.EntryPoint{}, &EntryPointError{Shader: s.Path, Entry: name, Stage: stage}
}

// VertexInputs reflects the @location-bound inputs of the named vertex
// entry point. Struct arguments are flattened into their members;
// built-in inputs (vertex_index and friends) are not part of the
// vertex buffer and are skipped. Attributes are ordered by location
// with tightly packed offsets.
func (s *ShaderInfo) VertexInputs(entry string) ([]VertexAttribute, error) {
	ep, err := s.findEntry(entry, "vertex")
	if err != nil {
		return nil, err
	}
	fn := ep.Function

	var attrs []VertexAttribute
	for _, arg := range fn.Arguments {
		if arg.Binding != nil {
			attr, ok, err := s.attributeFor(arg.Name, arg.Type, *arg.Binding)
			if err != nil {
				return nil, err
			}
			if ok {
				attrs = append(attrs, attr)
			}
			continue
		}
		st, ok := s.module.Types[arg.Type].Inner.(ir.StructType)
		if !ok {
			return nil, fmt.Errorf("shader %s: vertex input %q has no location binding", s.Path, arg.Name)
		}
		for _, m := range st.Members {
			if m.Binding == nil {
				continue
			}
			attr, ok, err := s.attributeFor(m.Name, m.Type, *m.Binding)
			if err != nil {
				return nil, err
			}
			if ok {
				attrs = append(attrs, attr)
			}
		}
	}

	sort.Slice(attrs, func(i, j int) bool { return attrs[i].Location < attrs[j].Location })
	var offset uint32
	for i := range attrs {
		attrs[i].Offset = offset
		offset += attrs[i].Size
	}
	return attrs, nil
}

// attributeFor maps one bound input to a vertex attribute. ok=false
// means the binding is a built-in rather than a location.
func (s *ShaderInfo) attributeFor(name string, t ir.TypeHandle, binding ir.Binding) (VertexAttribute, bool, error) {
	loc, ok := binding.(ir.LocationBinding)
	if !ok {
		return VertexAttribute{}, false, nil
	}
	format, formatName, size, err := s.vertexFormat(t)
	if err != nil {
		return VertexAttribute{}, false, fmt.Errorf("shader %s: input %q: %w", s.Path, name, err)
	}
	return VertexAttribute{
		Name:       name,
		Location:   loc.Location,
		Format:     format,
		Size:       size,
		formatName: formatName,
	}, true, nil
}

// vertexFormat maps an IR type to a gputypes vertex format. Only the
// 32-bit scalar and vector types a vertex buffer can hold are allowed.
func (s *ShaderInfo) vertexFormat(t ir.TypeHandle) (gputypes.VertexFormat, string, uint32, error) {
	switch inner := s.module.Types[t].Inner.(type) {
	case ir.ScalarType:
		return scalarVertexFormat(inner, 1)
	case ir.VectorType:
		switch inner.Size {
		case ir.Vec2:
			return scalarVertexFormat(inner.Scalar, 2)
		case ir.Vec3:
			return scalarVertexFormat(inner.Scalar, 3)
		default:
			return scalarVertexFormat(inner.Scalar, 4)
		}
	default:
		var none gputypes.VertexFormat
		return none, "", 0, fmt.Errorf("type %T is not a vertex attribute type", inner)
	}
}

func scalarVertexFormat(scalar ir.ScalarType, components uint32) (gputypes.VertexFormat, string, uint32, error) {
	var none gputypes.VertexFormat
	if scalar.Width != 4 {
		return none, "", 0, fmt.Errorf("%d-byte scalars are not vertex attribute types", scalar.Width)
	}
	type entry struct {
		format gputypes.VertexFormat
		name   string
	}
	var table map[uint32]entry
	switch scalar.Kind {
	case ir.ScalarFloat:
		table = map[uint32]entry{
			1: {gputypes.VertexFormatFloat32, "VertexFormatFloat32"},
			2: {gputypes.VertexFormatFloat32x2, "VertexFormatFloat32x2"},
			3: {gputypes.VertexFormatFloat32x3, "VertexFormatFloat32x3"},
			4: {gputypes.VertexFormatFloat32x4, "VertexFormatFloat32x4"},
		}
	case ir.ScalarUint:
		table = map[uint32]entry{
			1: {gputypes.VertexFormatUint32, "VertexFormatUint32"},
			2: {gputypes.VertexFormatUint32x2, "VertexFormatUint32x2"},
			3: {gputypes.VertexFormatUint32x3, "VertexFormatUint32x3"},
			4: {gputypes.VertexFormatUint32x4, "VertexFormatUint32x4"},
		}
	case ir.ScalarSint:
		table = map[uint32]entry{
			1: {gputypes.VertexFormatSint32, "VertexFormatSint32"},
			2: {gputypes.VertexFormatSint32x2, "VertexFormatSint32x2"},
			3: {gputypes.VertexFormatSint32x3, "VertexFormatSint32x3"},
			4: {gputypes.VertexFormatSint32x4, "VertexFormatSint32x4"},
		}
	default:
		return none, "", 0, fmt.Errorf("scalar kind %v is not a vertex attribute type", scalar.Kind)
	}
	e := table[components]
	return e.format, e.name, 4 * components, nil
}

// FragmentTargets reflects the @location-bound outputs of the named
// fragment entry point. A struct result is flattened; built-in outputs
// (frag_depth, sample_mask) are skipped.
func (s *ShaderInfo) FragmentTargets(entry string) ([]ColorTarget, error) {
	ep, err := s.findEntry(entry, "fragment")
	if err != nil {
		return nil, err
	}
	fn := ep.Function
	if fn.Result == nil {
		return nil, nil
	}

	var targets []ColorTarget
	if fn.Result.Binding != nil {
		if loc, ok := (*fn.Result.Binding).(ir.LocationBinding); ok {
			targets = append(targets, ColorTarget{Location: loc.Location})
		}
	} else if st, ok := s.module.Types[fn.Result.Type].Inner.(ir.StructType); ok {
		for _, m := range st.Members {
			if m.Binding == nil {
				continue
			}
			if loc, ok := (*m.Binding).(ir.LocationBinding); ok {
				targets = append(targets, ColorTarget{Name: m.Name, Location: loc.Location})
			}
		}
	}

	sort.Slice(targets, func(i, j int) bool { return targets[i].Location < targets[j].Location })
	return targets, nil
}

// Bindings lists the resource bindings of the module, ordered by
// (group, binding). The classification is coarse: it distinguishes
// textures, samplers, and uniform versus storage buffers, which is
// enough to document the binding contract on generated types.
func (s *ShaderInfo) Bindings() []ResourceBinding {
	var out []ResourceBinding
	for _, g := range s.module.GlobalVariables {
		if g.Binding == nil {
			continue
		}
		kind := BindingStorageBuffer
		switch s.module.Types[g.Type].Inner.(type) {
		case ir.ImageType:
			kind = BindingTexture
		case ir.SamplerType:
			kind = BindingSampler
		default:
			if g.Space == ir.SpaceUniform {
				kind = BindingUniformBuffer
			}
		}
		out = append(out, ResourceBinding{
			Group:   g.Binding.Group,
			Binding: g.Binding.Binding,
			Name:    g.Name,
			Kind:    kind,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Group != out[j].Group {
			return out[i].Group < out[j].Group
		}
		return out[i].Binding < out[j].Binding
	})
	return out
}

// VertexStride returns the tightly packed stride of the attribute set.
func VertexStride(attrs []VertexAttribute) uint32 {
	var stride uint32
	for _, a := range attrs {
		stride += a.Size
	}
	return stride
}
