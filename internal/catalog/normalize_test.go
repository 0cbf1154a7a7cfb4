package catalog

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		query    string
		filename string
	}{
		{"empty", "", "", ""},
		{"whitespace only", "   \t", "", ""},
		{"free text", "llama 3", "llama 3", ""},
		{"free text trimmed", "  llama 3  ", "llama 3", ""},
		{"repo page url", "https://huggingface.co/meta-llama/Llama-3.2-1B", "meta-llama/Llama-3.2-1B", ""},
		{"repo page url no scheme", "huggingface.co/meta-llama/Llama-3.2-1B", "meta-llama/Llama-3.2-1B", ""},
		{
			"resolve url",
			"https://huggingface.co/TheBloke/Mistral-7B-GGUF/resolve/main/mistral-7b.Q4_K_M.gguf",
			"TheBloke/Mistral-7B-GGUF",
			"mistral-7b.Q4_K_M.gguf",
		},
		{
			"blob url",
			"https://huggingface.co/TheBloke/Mistral-7B-GGUF/blob/main/mistral-7b.Q4_K_M.gguf",
			"TheBloke/Mistral-7B-GGUF",
			"mistral-7b.Q4_K_M.gguf",
		},
		{
			"resolve url with nested path",
			"https://huggingface.co/org/repo/resolve/main/sub/dir/file.gguf",
			"org/repo",
			"sub/dir/file.gguf",
		},
		{"hf scheme repo", "hf://org/repo", "org/repo", ""},
		{"hf scheme with file", "hf://org/repo/file.gguf", "org/repo", "file.gguf"},
		{"hf scheme with query string", "hf://org/repo/file.gguf?download=true", "org/repo", "file.gguf"},
		{"hf scheme bare owner", "hf://org", "org", ""},
		{"url to other host stays text", "https://example.com/org/repo", "https://example.com/org/repo", ""},
		{"hub root url stays text", "https://huggingface.co/", "https://huggingface.co/", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := Normalize(tt.raw)
			if n.Query != tt.query {
				t.Errorf("Query = %q, want %q", n.Query, tt.query)
			}
			if n.PendingFilename != tt.filename {
				t.Errorf("PendingFilename = %q, want %q", n.PendingFilename, tt.filename)
			}
		})
	}
}

func TestNormalizeDeterministic(t *testing.T) {
	raw := "https://huggingface.co/org/repo/resolve/main/a.gguf"
	first := Normalize(raw)
	for i := 0; i < 3; i++ {
		if got := Normalize(raw); got != first {
			t.Fatalf("Normalize not deterministic: %+v vs %+v", got, first)
		}
	}
}

func TestCacheKey(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"", TrendingKey},
		{"   ", TrendingKey},
		{"Llama", "llama"},
		{"  MiXeD Case  ", "mixed case"},
		{"already lower", "already lower"},
	}
	for _, tt := range tests {
		if got := CacheKey(tt.query); got != tt.want {
			t.Errorf("CacheKey(%q) = %q, want %q", tt.query, got, tt.want)
		}
	}
}

func TestCacheKeyNeverCollidesWithTrending(t *testing.T) {
	// Real queries are lower-cased user text; the sentinel uses a prefix
	// no trimmed query should produce unless typed literally.
	for _, q := range []string{"trending", "Trending", "@trending"} {
		if CacheKey(q) == TrendingKey {
			t.Errorf("CacheKey(%q) collides with the trending sentinel", q)
		}
	}
}
