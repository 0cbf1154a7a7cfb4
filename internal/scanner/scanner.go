package scanner

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// modelExtensions are the file extensions treated as model weights.
var modelExtensions = []string{
	".gguf",
	".ggml",
	".safetensors",
	".bin",
	".onnx",
}

// LocalModel describes a model file found on disk.
type LocalModel struct {
	Path     string
	Name     string
	Size     int64
	Modified time.Time
}

// Result summarizes one scan pass.
type Result struct {
	FilesScanned int
	Models       []LocalModel
	Errors       []error
}

// IsModelFile reports whether path has a recognized model extension.
func IsModelFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range modelExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Scan walks dir and collects model files. A missing directory is not
// an error; an empty result is returned.
func Scan(dir string) (*Result, error) {
	res := &Result{}
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return res, nil
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, os.ErrInvalid
	}

	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			res.Errors = append(res.Errors, err)
			return nil
		}
		if d.IsDir() {
			// Skip hidden directories like .cache, but never the walk
			// root itself: a models folder named ~/.models is valid.
			if name := d.Name(); path != dir && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		res.FilesScanned++
		if !IsModelFile(path) || strings.HasSuffix(path, ".part") {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			res.Errors = append(res.Errors, err)
			return nil
		}
		res.Models = append(res.Models, LocalModel{
			Path:     path,
			Name:     d.Name(),
			Size:     fi.Size(),
			Modified: fi.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(res.Models, func(i, j int) bool { return res.Models[i].Path < res.Models[j].Path })
	return res, nil
}
