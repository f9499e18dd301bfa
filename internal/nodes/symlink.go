package nodes

import (
	"fmt"
	"os"
	"sync"
)

// Symlink is a node backed by a host symbolic link.
type Symlink struct {
	inode    uint64
	writable bool

	mu    sync.Mutex
	state mutableSymlink
}

type mutableSymlink struct {
	underlyingPath string // empty once deleted
	attr           Attr
}

var (
	_ Node = (*Symlink)(nil)
)

// NewMappedSymlink creates a symlink backed by underlyingPath. fi must be the
// lstat data of that path.
func NewMappedSymlink(inode uint64, underlyingPath string, fi os.FileInfo, writable bool) (*Symlink, error) {
	if fi.Mode()&os.ModeSymlink == 0 {
		return nil, newError(OpCreate, underlyingPath,
			fmt.Errorf("%w: cannot back a symlink with %v", ErrInvalidPrecondition, fi.Mode().Type()))
	}
	return &Symlink{
		inode:    inode,
		writable: writable,
		state: mutableSymlink{
			underlyingPath: underlyingPath,
			attr:           AttrFromFileInfo(underlyingPath, inode, fi),
		},
	}, nil
}

// Inode implements Node.
func (s *Symlink) Inode() uint64 {
	return s.inode
}

// Writable implements Node.
func (s *Symlink) Writable() bool {
	return s.writable
}

// FileTypeCached implements Node. A symlink node never changes type.
func (s *Symlink) FileTypeCached() FileType {
	return TypeSymlink
}

// GetAttr implements Node. It fails with ErrTypeChanged if the host entry
// is no longer a symlink.
func (s *Symlink) GetAttr() (Attr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.state.underlyingPath
	if path == "" {
		return s.state.attr, nil
	}
	fi, err := os.Lstat(path)
	if err != nil {
		return Attr{}, err
	}
	if fi.Mode()&os.ModeSymlink == 0 {
		nodesLogger.Warn("Path %s backing a symlink node is no longer a symlink; got %v", path, fi.Mode().Type())
		return Attr{}, newError(OpGetattr, path, ErrTypeChanged)
	}
	s.state.attr = AttrFromFileInfo(path, s.inode, fi)
	return s.state.attr, nil
}

// SetAttr applies delta to the host link without following it.
func (s *Symlink) SetAttr(delta *AttrDelta) (Attr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	attr, err := setattr(s.state.underlyingPath, s.state.attr, delta)
	if err != nil {
		return Attr{}, err
	}
	s.state.attr = attr
	return attr, nil
}

// Readlink returns the target of the backing link.
func (s *Symlink) Readlink() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.underlyingPath == "" {
		return "", newError(OpReadlink, "", fmt.Errorf("%w: symlink %d was deleted", ErrInvalidPrecondition, s.inode))
	}
	return os.Readlink(s.state.underlyingPath)
}

// Delete marks the node as removed from the host. Deleting twice is a
// contract violation.
func (s *Symlink) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.underlyingPath == "" {
		return newError(OpDelete, "", fmt.Errorf("%w: symlink %d already deleted", ErrInvalidPrecondition, s.inode))
	}
	s.state.underlyingPath = ""
	return nil
}
