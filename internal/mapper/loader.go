package mapper

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ppiankov/resubmit/internal/model"
	"gopkg.in/yaml.v3"
)

// LoadFile reads one mapping set from YAML
func LoadFile(path string) (*model.MappingSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mapping file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var set model.MappingSet
	if err := dec.Decode(&set); err != nil {
		return nil, fmt.Errorf("%w: parse mapping file %s: %v", model.ErrConfig, path, err)
	}
	if err := Validate(&set); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &set, nil
}

// LoadDir reads every *.yaml and *.yml mapping set in dir
func LoadDir(dir string) (*Registry, error) {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("glob mapping dir: %w", err)
		}
		paths = append(paths, matches...)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no mapping sets in %s", model.ErrConfig, dir)
	}
	sort.Strings(paths)

	reg := NewRegistry()
	for _, path := range paths {
		set, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(set); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return reg, nil
}
