package catalog

import "time"

// Origin records which source an item (or a whole result set) came from,
// so consumers can annotate cached/fallback data.
type Origin string

const (
	OriginStatic Origin = "static"
	OriginCache  Origin = "cache"
	OriginLive   Origin = "live"
)

// FileVariant is one downloadable file inside a repo, e.g. a single GGUF
// quantization.
type FileVariant struct {
	Filename string `json:"filename" yaml:"filename"`
	Size     int64  `json:"size,omitempty" yaml:"size,omitempty"`
	Quant    string `json:"quant,omitempty" yaml:"quant,omitempty"`
}

// Item is one remote model record. Identity is RepoID; all merges key on it.
type Item struct {
	RepoID       string        `json:"repo_id" yaml:"repo_id"`
	Author       string        `json:"author,omitempty" yaml:"author,omitempty"`
	Tags         []string      `json:"tags,omitempty" yaml:"tags,omitempty"`
	PipelineTag  string        `json:"pipeline_tag,omitempty" yaml:"pipeline_tag,omitempty"`
	License      string        `json:"license,omitempty" yaml:"license,omitempty"`
	Languages    []string      `json:"languages,omitempty" yaml:"languages,omitempty"`
	Downloads    int64         `json:"downloads,omitempty" yaml:"downloads,omitempty"`
	Likes        int64         `json:"likes,omitempty" yaml:"likes,omitempty"`
	LastModified time.Time     `json:"last_modified,omitempty" yaml:"last_modified,omitempty"`
	Files        []FileVariant `json:"files,omitempty" yaml:"files,omitempty"`

	// Lazily resolved via the metadata transport; nil until known.
	ParameterCount *int64 `json:"parameter_count,omitempty" yaml:"parameter_count,omitempty"`
	ContextLength  *int64 `json:"context_length,omitempty" yaml:"context_length,omitempty"`

	Origin Origin `json:"origin,omitempty" yaml:"origin,omitempty"`
}

// HasTag reports whether the item carries the given tag.
func (it Item) HasTag(tag string) bool {
	for _, t := range it.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// FileNamed returns the variant with the given filename, if present.
func (it Item) FileNamed(name string) (FileVariant, bool) {
	for _, f := range it.Files {
		if f.Filename == name {
			return f, true
		}
	}
	return FileVariant{}, false
}
