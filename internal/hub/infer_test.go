package hub

import "testing"

func TestInferParams(t *testing.T) {
	tests := []struct {
		repoID string
		want   int64
		ok     bool
	}{
		{"mistralai/Mistral-7B-v0.1", 7_000_000_000, true},
		{"TheBloke/Mistral-7B-GGUF", 7_000_000_000, true},
		{"meta-llama/Llama-3.2-1B", 1_000_000_000, true},
		{"HuggingFaceTB/SmolLM2-360M", 360_000_000, true},
		{"microsoft/phi-2", 0, false},
		{"Qwen/Qwen2.5-1.5B-Instruct", 1_500_000_000, true},
		{"org/model-F16", 0, false},
		{"org/plain-model", 0, false},
	}
	for _, tt := range tests {
		got, ok := inferParams(tt.repoID)
		if ok != tt.ok || got != tt.want {
			t.Errorf("inferParams(%q) = %d, %v; want %d, %v", tt.repoID, got, ok, tt.want, tt.ok)
		}
	}
}

func TestExtractQuant(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"mistral-7b.Q4_K_M.gguf", "Q4_K_M"},
		{"model.q8_0.gguf", "Q8_0"},
		{"model.f16.gguf", "F16"},
		{"model.safetensors", ""},
	}
	for _, tt := range tests {
		if got := extractQuant(tt.filename); got != tt.want {
			t.Errorf("extractQuant(%q) = %q, want %q", tt.filename, got, tt.want)
		}
	}
}
