package pipegen

import (
	"errors"
	"fmt"

	"github.com/gogpu/pipegen/internal/lex"
)

// RenderPipelineConfig describes one #render_pipeline block of a .pmd
// file:
//
//	#render_pipeline(
//	    name: "TexturedPipeline",
//	    shader: "texture.wgsl",
//	    vs_entry: "vs_textured",
//	    fs_entry: "fs_textured",
//	)
//
// Name, Shader, VSEntry and FSEntry are required. Topology, Cull and
// Format are optional and default to "triangle-list", "back" and
// "bgra8unorm".
type RenderPipelineConfig struct {
	// Name is the exported Go identifier of the generated pipeline type.
	Name string

	// Shader is the WGSL file path, relative to the .pmd file.
	Shader string

	// VSEntry and FSEntry name the vertex and fragment entry points.
	VSEntry string
	FSEntry string

	// Topology selects the primitive topology: "triangle-list",
	// "triangle-strip", "line-list", "line-strip" or "point-list".
	Topology string

	// Cull selects face culling: "back", "front" or "none".
	Cull string

	// Format selects the color target texture format: "bgra8unorm",
	// "rgba8unorm" or "r8unorm".
	Format string
}

// Field value defaults.
const (
	DefaultTopology = "triangle-list"
	DefaultCull     = "back"
	DefaultFormat   = "bgra8unorm"
)

// Value tables mapping DSL field values to gputypes identifiers in
// generated code.
var (
	topologyNames = map[string]string{
		"triangle-list":  "PrimitiveTopologyTriangleList",
		"triangle-strip": "PrimitiveTopologyTriangleStrip",
		"line-list":      "PrimitiveTopologyLineList",
		"line-strip":     "PrimitiveTopologyLineStrip",
		"point-list":     "PrimitiveTopologyPointList",
	}
	cullNames = map[string]string{
		"back":  "CullModeBack",
		"front": "CullModeFront",
		"none":  "CullModeNone",
	}
	formatNames = map[string]string{
		"bgra8unorm": "TextureFormatBGRA8Unorm",
		"rgba8unorm": "TextureFormatRGBA8Unorm",
		"r8unorm":    "TextureFormatR8Unorm",
	}
)

// ErrUnexpectedEnd reports input that ended in the middle of a block.
var ErrUnexpectedEnd = errors.New("unexpected end of input")

// UnexpectedTokenError reports a token other than the one the grammar
// requires at that position.
type UnexpectedTokenError struct {
	Found    lex.Token
	Expected lex.Token
}

func (e *UnexpectedTokenError) Error() string {
	return fmt.Sprintf("unexpected token: found %v, expected %v", e.Found, e.Expected)
}

// UnexpectedFieldError reports a field name the config does not define.
type UnexpectedFieldError struct {
	Field string
}

func (e *UnexpectedFieldError) Error() string {
	return fmt.Sprintf("unexpected field %q", e.Field)
}

// MissingFieldError reports a required field the block did not set.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing field %q", e.Field)
}

// InvalidFieldValueError reports a value outside a field's accepted set.
type InvalidFieldValueError struct {
	Field string
	Value string
}

func (e *InvalidFieldValueError) Error() string {
	return fmt.Sprintf("invalid value %q for field %q", e.Value, e.Field)
}

// TrailingInputError reports tokens left over after a complete block
// when exactly one block was expected.
type TrailingInputError struct {
	Found lex.Token
}

func (e *TrailingInputError) Error() string {
	return fmt.Sprintf("expected end of input, found %v", e.Found)
}

// ParseConfig parses a .pmd source containing any number of
// #render_pipeline blocks, in order. Empty or whitespace-only input is
// an error.
func ParseConfig(src string) ([]RenderPipelineConfig, error) {
	ts, err := lex.New(src)
	if err != nil {
		return nil, fmt.Errorf("tokenize config: %w", err)
	}
	var configs []RenderPipelineConfig
	for {
		if _, ok := ts.Peek(); !ok {
			break
		}
		cfg, err := parseRenderPipeline(ts)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

// ParseRenderPipelineConfig parses a source containing exactly one
// #render_pipeline block. Trailing tokens after the block are an
// error. The source must contain only config tokens, not shader code.
func ParseRenderPipelineConfig(src string) (RenderPipelineConfig, error) {
	ts, err := lex.New(src)
	if err != nil {
		return RenderPipelineConfig{}, fmt.Errorf("tokenize config: %w", err)
	}
	cfg, err := parseRenderPipeline(ts)
	if err != nil {
		return RenderPipelineConfig{}, err
	}
	if tok, ok := ts.Next(); ok {
		return RenderPipelineConfig{}, &TrailingInputError{Found: tok}
	}
	return cfg, nil
}

func expectToken(ts *lex.TokenStream, want lex.Token) error {
	tok, ok := ts.Next()
	if !ok {
		return ErrUnexpectedEnd
	}
	if tok != want {
		return &UnexpectedTokenError{Found: tok, Expected: want}
	}
	return nil
}

func parseIdent(ts *lex.TokenStream) (string, error) {
	tok, ok := ts.Next()
	if !ok {
		return "", ErrUnexpectedEnd
	}
	if tok.Kind != lex.KindIdent {
		return "", &UnexpectedTokenError{Found: tok, Expected: lex.Ident("field_name")}
	}
	return tok.Text, nil
}

func parseStringValue(ts *lex.TokenStream) (string, error) {
	tok, ok := ts.Next()
	if !ok {
		return "", ErrUnexpectedEnd
	}
	if tok.Kind != lex.KindString {
		return "", &UnexpectedTokenError{Found: tok, Expected: lex.String("value")}
	}
	return tok.Text, nil
}

// parseRenderPipeline consumes one block from the stream:
// `#render_pipeline(` fields `)`. Fields are comma separated with an
// optional trailing comma.
func parseRenderPipeline(ts *lex.TokenStream) (RenderPipelineConfig, error) {
	if err := expectToken(ts, lex.Hash); err != nil {
		return RenderPipelineConfig{}, err
	}
	if err := expectToken(ts, lex.Ident("render_pipeline")); err != nil {
		return RenderPipelineConfig{}, err
	}
	if err := expectToken(ts, lex.LeftParen); err != nil {
		return RenderPipelineConfig{}, err
	}

	cfg := RenderPipelineConfig{
		Topology: DefaultTopology,
		Cull:     DefaultCull,
		Format:   DefaultFormat,
	}
	seen := make(map[string]bool)

	parseField := func() error {
		field, err := parseIdent(ts)
		if err != nil {
			return err
		}
		var dst *string
		switch field {
		case "name":
			dst = &cfg.Name
		case "shader":
			dst = &cfg.Shader
		case "vs_entry":
			dst = &cfg.VSEntry
		case "fs_entry":
			dst = &cfg.FSEntry
		case "topology":
			dst = &cfg.Topology
		case "cull":
			dst = &cfg.Cull
		case "format":
			dst = &cfg.Format
		default:
			return &UnexpectedFieldError{Field: field}
		}
		if err := expectToken(ts, lex.Colon); err != nil {
			return err
		}
		value, err := parseStringValue(ts)
		if err != nil {
			return err
		}
		*dst = value
		seen[field] = true
		return nil
	}

	if tok, ok := ts.Peek(); ok && tok.Kind == lex.KindIdent {
		if err := parseField(); err != nil {
			return RenderPipelineConfig{}, err
		}
		for {
			tok, ok := ts.Peek()
			if !ok || tok != lex.Comma {
				break
			}
			ts.Next()
			if tok, ok := ts.Peek(); ok && tok == lex.RightParen {
				break
			}
			if err := parseField(); err != nil {
				return RenderPipelineConfig{}, err
			}
		}
	}

	if err := expectToken(ts, lex.RightParen); err != nil {
		return RenderPipelineConfig{}, err
	}

	for _, field := range []string{"name", "shader", "vs_entry", "fs_entry"} {
		if !seen[field] {
			return RenderPipelineConfig{}, &MissingFieldError{Field: field}
		}
	}
	if _, ok := topologyNames[cfg.Topology]; !ok {
		return RenderPipelineConfig{}, &InvalidFieldValueError{Field: "topology", Value: cfg.Topology}
	}
	if _, ok := cullNames[cfg.Cull]; !ok {
		return RenderPipelineConfig{}, &InvalidFieldValueError{Field: "cull", Value: cfg.Cull}
	}
	if _, ok := formatNames[cfg.Format]; !ok {
		return RenderPipelineConfig{}, &InvalidFieldValueError{Field: "format", Value: cfg.Format}
	}
	return cfg, nil
}
