package scanner

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIsModelFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"model.gguf", true},
		{"model.GGUF", true},
		{"weights.safetensors", true},
		{"weights.bin", true},
		{"weights.onnx", true},
		{"notes.txt", false},
		{"model.gguf.part", false},
		{"archive.tar.gz", false},
	}
	for _, tt := range tests {
		if got := IsModelFile(tt.path); got != tt.want {
			t.Errorf("IsModelFile(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestScanFindsModels(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "tiny.gguf"), 100)
	mustWrite(t, filepath.Join(dir, "sub", "phi.safetensors"), 50)
	mustWrite(t, filepath.Join(dir, "readme.md"), 10)
	mustWrite(t, filepath.Join(dir, "partial.gguf.part"), 5)
	mustWrite(t, filepath.Join(dir, ".cache", "hidden.gguf"), 5)

	res, err := Scan(dir)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Models) != 2 {
		t.Fatalf("got %d models, want 2: %+v", len(res.Models), res.Models)
	}
	found := map[string]bool{}
	for _, m := range res.Models {
		found[m.Name] = true
		if m.Size == 0 {
			t.Errorf("model %s has zero size", m.Name)
		}
	}
	if !found["tiny.gguf"] || !found["phi.safetensors"] {
		t.Errorf("expected models not found: %+v", res.Models)
	}
}

func TestScanHiddenRootDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".models")
	mustWrite(t, filepath.Join(dir, "tiny.gguf"), 100)
	mustWrite(t, filepath.Join(dir, ".cache", "hidden.gguf"), 5)

	res, err := Scan(dir)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Models) != 1 {
		t.Fatalf("got %d models, want 1: %+v", len(res.Models), res.Models)
	}
	if res.Models[0].Name != "tiny.gguf" {
		t.Errorf("got %q, want tiny.gguf", res.Models[0].Name)
	}
}

func TestScanMissingDirectory(t *testing.T) {
	res, err := Scan(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("Scan on missing dir: %v", err)
	}
	if len(res.Models) != 0 || res.FilesScanned != 0 {
		t.Errorf("expected empty result, got %+v", res)
	}
}

func mustWrite(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatal(err)
	}
}
