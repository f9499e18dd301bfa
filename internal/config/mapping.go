// Package config turns command line flags, environment variables and mapping
// files into the set of mappings the sandbox is mounted with.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"sandboxfs/internal/fs"
	"sandboxfs/internal/logging"
)

var (
	logger = logging.GetLogger().WithPrefix("config")

	// ErrInvalidMapping indicates a mapping specification that cannot be parsed
	ErrInvalidMapping = errors.New("invalid mapping")
)

// ParseMapping parses a TYPE:VIRTUAL:HOST specification where TYPE is ro or
// rw. The host path is everything after the second colon.
func ParseMapping(spec string) (fs.Mapping, error) {
	fields := strings.SplitN(spec, ":", 3)
	if len(fields) != 3 {
		return fs.Mapping{}, fmt.Errorf("%w: %q is not of the form TYPE:VIRTUAL:HOST", ErrInvalidMapping, spec)
	}

	var writable bool
	switch fields[0] {
	case "ro":
	case "rw":
		writable = true
	default:
		return fs.Mapping{}, fmt.Errorf("%w: %q has unknown type %q (want ro or rw)", ErrInvalidMapping, spec, fields[0])
	}

	m := fs.Mapping{Path: fields[1], UnderlyingPath: fields[2], Writable: writable}
	if _, err := m.Validate(); err != nil {
		return fs.Mapping{}, fmt.Errorf("%w: %v", ErrInvalidMapping, err)
	}
	return m, nil
}

// ParseMappings parses every specification in specs.
func ParseMappings(specs []string) ([]fs.Mapping, error) {
	mappings := make([]fs.Mapping, 0, len(specs))
	for _, spec := range specs {
		m, err := ParseMapping(spec)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
	}
	return mappings, nil
}

// mappingFile is the on-disk layout of a mapping file.
type mappingFile struct {
	Mappings []fs.Mapping `yaml:"mappings"`
}

// LoadMappingFile reads the mappings listed in a YAML file. Unknown fields
// are rejected.
func LoadMappingFile(path string) ([]fs.Mapping, error) {
	logger.Debug("Loading mapping file: %s", path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping file: %w", err)
	}

	var file mappingFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse mapping file %s: %w", path, err)
	}

	for i, m := range file.Mappings {
		if _, err := m.Validate(); err != nil {
			return nil, fmt.Errorf("%w: entry %d of %s: %v", ErrInvalidMapping, i, path, err)
		}
	}
	logger.Info("Loaded %d mappings from %s", len(file.Mappings), path)
	return file.Mappings, nil
}

// checkDuplicates rejects configurations that map a virtual path twice.
func checkDuplicates(mappings []fs.Mapping) error {
	seen := make(map[string]bool, len(mappings))
	for _, m := range mappings {
		if seen[m.Path] {
			return fmt.Errorf("%w: %s is mapped more than once", ErrInvalidMapping, m.Path)
		}
		seen[m.Path] = true
	}
	return nil
}
