package fs

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"sandboxfs/internal/logging"
)

var (
	pathLogger = logging.GetLogger().WithPrefix("path")
)

// VirtualPath is a normalized absolute path inside the sandbox.
type VirtualPath struct {
	// always starts with /, never has a trailing slash unless root
	path string
}

// ParseVirtualPath validates p and returns it as a VirtualPath. p must be
// absolute and already normalized: no empty, "." or ".." components.
func ParseVirtualPath(p string) (*VirtualPath, error) {
	if !strings.HasPrefix(p, "/") {
		return nil, fmt.Errorf("%w: virtual path %q is not absolute", ErrInvalidPath, p)
	}
	if cleaned := path.Clean(p); cleaned != p {
		return nil, fmt.Errorf("%w: virtual path %q is not normalized (should be %q)", ErrInvalidPath, p, cleaned)
	}
	pathLogger.Trace("Parsed virtual path: %q", p)
	return &VirtualPath{path: p}, nil
}

// String returns the string representation of the path
func (vp *VirtualPath) String() string {
	return vp.path
}

// IsRoot returns true if this is the root virtual path "/"
func (vp *VirtualPath) IsRoot() bool {
	return vp.path == "/"
}

// Components returns the names making up the path, from the root down. The
// root has no components.
func (vp *VirtualPath) Components() []string {
	if vp.IsRoot() {
		return nil
	}
	return strings.Split(strings.TrimPrefix(vp.path, "/"), "/")
}

// ValidateHostPath checks that p can back a mapping: it must be absolute and
// normalized.
func ValidateHostPath(p string) error {
	if !filepath.IsAbs(p) {
		return fmt.Errorf("%w: underlying path %q is not absolute", ErrInvalidPath, p)
	}
	if cleaned := filepath.Clean(p); cleaned != p {
		return fmt.Errorf("%w: underlying path %q is not normalized (should be %q)", ErrInvalidPath, p, cleaned)
	}
	return nil
}

// Mapping binds a virtual path to a host path.
type Mapping struct {
	Path           string `json:"path" yaml:"path"`
	UnderlyingPath string `json:"underlying_path" yaml:"underlying_path"`
	Writable       bool   `json:"writable" yaml:"writable"`
}

// String formats the mapping the way the --mapping flag accepts it.
func (m Mapping) String() string {
	mode := "ro"
	if m.Writable {
		mode = "rw"
	}
	return fmt.Sprintf("%s:%s:%s", mode, m.Path, m.UnderlyingPath)
}

// Validate checks both paths of the mapping and returns the parsed virtual
// path.
func (m Mapping) Validate() (*VirtualPath, error) {
	vp, err := ParseVirtualPath(m.Path)
	if err != nil {
		return nil, err
	}
	if err := ValidateHostPath(m.UnderlyingPath); err != nil {
		return nil, err
	}
	return vp, nil
}
