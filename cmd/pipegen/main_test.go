package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultOutPath(t *testing.T) {
	tests := []struct {
		config string
		want   string
	}{
		{"pipelines.pmd", "pipelines_gen.go"},
		{"a/b/render.pmd", "a/b/render_gen.go"},
		{"noext", "noext_gen.go"},
	}
	for _, tt := range tests {
		if got := defaultOutPath(tt.config); got != tt.want {
			t.Errorf("defaultOutPath(%q) = %q, want %q", tt.config, got, tt.want)
		}
	}
}

func TestGenerateCommand(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.go")
	t.Cleanup(func() { outPath, packageName = "", "pipelines" })

	rootCmd.SetArgs([]string{"generate", "../../testdata/texture.pmd", "-o", out, "--package", "shaders"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}
	src := string(data)
	if !strings.Contains(src, "package shaders") {
		t.Error("output missing configured package name")
	}
	if !strings.Contains(src, "func NewTexturedPipeline") {
		t.Error("output missing generated constructor")
	}
}
