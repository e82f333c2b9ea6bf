package pipegen

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func copyTestdata(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatal(err)
	}
	dst := filepath.Join(dir, name)
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return dst
}

func TestWatcherInitialGeneration(t *testing.T) {
	dir := t.TempDir()
	configPath := copyTestdata(t, dir, "texture.pmd")
	copyTestdata(t, dir, "texture.wgsl")
	outPath := filepath.Join(dir, "pipelines_gen.go")

	w, err := NewWatcher(NewGenerator(), configPath, outPath)
	if err != nil {
		t.Fatalf("NewWatcher() = %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	defer w.Stop()

	out, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}
	if !strings.Contains(string(out), "func NewTexturedPipeline") {
		t.Error("output missing generated constructor")
	}
}

func TestWatcherRegeneratesOnShaderChange(t *testing.T) {
	dir := t.TempDir()
	configPath := copyTestdata(t, dir, "texture.pmd")
	shaderPath := copyTestdata(t, dir, "texture.wgsl")
	outPath := filepath.Join(dir, "pipelines_gen.go")

	generated := make(chan []byte, 4)
	w, err := NewWatcher(NewGenerator(), configPath, outPath,
		WithDebounce(50*time.Millisecond),
		WithOnGenerate(func(out []byte) { generated <- out }))
	if err != nil {
		t.Fatalf("NewWatcher() = %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	defer w.Stop()

	// Rename an entry point and expect the output to follow.
	shader, err := os.ReadFile(shaderPath)
	if err != nil {
		t.Fatal(err)
	}
	renamed := strings.ReplaceAll(string(shader), "vs_textured", "vs_renamed")
	// The config must name the new entry point too.
	config, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(shaderPath, []byte(renamed), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(configPath, []byte(strings.ReplaceAll(string(config), "vs_textured", "vs_renamed")), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case out := <-generated:
			if strings.Contains(string(out), `EntryPoint: "vs_renamed"`) {
				return
			}
			// Intermediate regeneration from only one of the two
			// writes landing; keep waiting.
		case <-deadline:
			t.Fatal("watcher did not regenerate after shader change")
		}
	}
}

func TestWatcherStartFailsOnBrokenConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "broken.pmd")
	if err := os.WriteFile(configPath, []byte("#render_pipeline("), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(NewGenerator(), configPath, filepath.Join(dir, "out.go"))
	if err != nil {
		t.Fatalf("NewWatcher() = %v", err)
	}
	if err := w.Start(context.Background()); err == nil {
		w.Stop()
		t.Fatal("Start() should fail when the initial generation fails")
	}
}

func TestWatcherStopIdempotent(t *testing.T) {
	dir := t.TempDir()
	configPath := copyTestdata(t, dir, "texture.pmd")
	copyTestdata(t, dir, "texture.wgsl")

	w, err := NewWatcher(NewGenerator(), configPath, filepath.Join(dir, "out.go"))
	if err != nil {
		t.Fatalf("NewWatcher() = %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() = %v", err)
	}

	w.Stop()
	w.Stop() // second Stop must not panic or block
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	if err := WriteFileAtomic(path, []byte("first")); err != nil {
		t.Fatalf("WriteFileAtomic() = %v", err)
	}
	if err := WriteFileAtomic(path, []byte("second")); err != nil {
		t.Fatalf("WriteFileAtomic() overwrite = %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "second" {
		t.Errorf("content = %q, want %q", got, "second")
	}

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the output file in %s, found %d entries", dir, len(entries))
	}
}
