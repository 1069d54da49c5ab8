// Package definitions reads workflow definition documents from YAML or JSON files.
package definitions

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/RealZimboGuy/govflow/pkg/govflow/domain"
	"gopkg.in/yaml.v3"
)

// File is one parsed definition document.
type File struct {
	Path       string
	Definition domain.WorkflowDefinition
}

// Parse decodes a definition. YAML documents are converted to JSON first so
// the tagged action and condition lists share one decoder with the API.
func Parse(data []byte, isYAML bool) (domain.WorkflowDefinition, error) {
	var def domain.WorkflowDefinition
	if isYAML {
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return def, fmt.Errorf("yaml: %w", err)
		}
		converted, err := toJSONCompatible(doc)
		if err != nil {
			return def, err
		}
		data, err = json.Marshal(converted)
		if err != nil {
			return def, err
		}
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&def); err != nil {
		return def, fmt.Errorf("definition: %w", err)
	}
	return def, nil
}

// toJSONCompatible rewrites map[any]any nodes, which encoding/json rejects.
func toJSONCompatible(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			c, err := toJSONCompatible(child)
			if err != nil {
				return nil, err
			}
			t[k] = c
		}
		return t, nil
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			key, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("yaml: non string key %v", k)
			}
			c, err := toJSONCompatible(child)
			if err != nil {
				return nil, err
			}
			out[key] = c
		}
		return out, nil
	case []any:
		for i, child := range t {
			c, err := toJSONCompatible(child)
			if err != nil {
				return nil, err
			}
			t[i] = c
		}
		return t, nil
	}
	return v, nil
}

func isYAMLPath(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func LoadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	def, err := Parse(data, isYAMLPath(path))
	if err != nil {
		return File{}, fmt.Errorf("%s: %w", path, err)
	}
	return File{Path: path, Definition: def}, nil
}

// Load reads one file, or every .yaml, .yml and .json file of a directory in name order.
func Load(path string) ([]File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		f, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		return []File{f}, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if isYAMLPath(e.Name()) || strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	files := make([]File, 0, len(names))
	for _, name := range names {
		f, err := LoadFile(filepath.Join(path, name))
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

// Check normalizes and validates a parsed definition without publishing it.
func Check(def domain.WorkflowDefinition) []domain.Violation {
	def.Normalize()
	return def.Validate()
}
