package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
)

// Parse decodes a workflow definition in YAML or JSON.
func Parse(data []byte) (*Definition, error) {
	def := &Definition{}
	if err := yaml.UnmarshalWithOptions(data, def, yaml.Strict()); err != nil {
		return nil, err
	}
	return def, nil
}

// Load reads the workflow in the file at path. A definition without a
// name is named after the file.
func Load(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if def.Name == "" {
		def.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	w, err := New(def)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return w, nil
}

// LoadDir loads every .yaml, .yml and .json file in dir, keyed by
// workflow name.
func LoadDir(dir string) (map[string]*Workflow, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	res := map[string]*Workflow{}
	for _, ent := range ents {
		if ent.IsDir() {
			continue
		}
		switch filepath.Ext(ent.Name()) {
		case ".yaml", ".yml", ".json":
		default:
			continue
		}
		w, err := Load(filepath.Join(dir, ent.Name()))
		if err != nil {
			return nil, err
		}
		if _, dup := res[w.Name()]; dup {
			return nil, fmt.Errorf("duplicate workflow name %q in %s", w.Name(), dir)
		}
		res[w.Name()] = w
	}
	return res, nil
}
