package fs

import (
	"context"
	"syscall"

	"bazil.org/fuse"

	"sandboxfs/internal/nodes"
)

// Symlink exposes a symlink node to the kernel.
type Symlink struct {
	fs   *SandboxFS
	node *nodes.Symlink
}

// Attr implements the Node interface, returning the link's attributes.
func (s *Symlink) Attr(_ context.Context, a *fuse.Attr) error {
	attr, err := s.node.GetAttr()
	if err != nil {
		return ToFuseError(err)
	}
	s.fs.fillAttr(attr, a)
	return nil
}

// Readlink implements the NodeReadlinker interface.
func (s *Symlink) Readlink(_ context.Context, _ *fuse.ReadlinkRequest) (string, error) {
	target, err := s.node.Readlink()
	if err != nil {
		return "", ToFuseError(err)
	}
	return target, nil
}

// Setattr implements the NodeSetattrer interface.
func (s *Symlink) Setattr(_ context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	if !s.node.Writable() {
		return fuse.Errno(syscall.EPERM)
	}
	attr, err := s.node.SetAttr(attrDelta(req))
	if err != nil {
		return ToFuseError(err)
	}
	s.fs.fillAttr(attr, &resp.Attr)
	return nil
}
