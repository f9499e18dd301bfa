package fs

import (
	"context"
	"syscall"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"

	"sandboxfs/internal/logging"
	"sandboxfs/internal/nodes"
)

var (
	dirLogger = logging.GetLogger().WithPrefix("fusedir")
)

// Dir exposes a directory node to the kernel.
type Dir struct {
	fs   *SandboxFS
	node *nodes.Dir
}

// Attr implements the Node interface, returning directory attributes.
func (d *Dir) Attr(_ context.Context, a *fuse.Attr) error {
	dirLogger.Trace("Getting attributes for directory %d", d.node.Inode())
	attr, err := d.node.GetAttr()
	if err != nil {
		return ToFuseError(err)
	}
	d.fs.fillAttr(attr, a)
	return nil
}

// Lookup implements the NodeStringLookuper interface, finding a child node.
func (d *Dir) Lookup(_ context.Context, name string) (fusefs.Node, error) {
	dirLogger.Debug("Looking up %q in directory %d", name, d.node.Inode())
	child, _, err := d.node.Lookup(name, d.fs.ids, d.fs.cache)
	if err != nil {
		dirLogger.Debug("Lookup of %q failed: %v", name, err)
		return nil, ToFuseError(err)
	}
	return d.fs.wrap(child)
}

// ReadDirAll implements the HandleReadDirAller interface, listing directory contents.
func (d *Dir) ReadDirAll(_ context.Context) ([]fuse.Dirent, error) {
	dirLogger.Debug("Reading directory contents of %d", d.node.Inode())
	collector := &direntCollector{}
	if err := d.node.ReadDir(d.fs.ids, d.fs.cache, collector); err != nil {
		dirLogger.Warn("Reading directory %d failed: %v", d.node.Inode(), err)
		return nil, ToFuseError(err)
	}
	dirLogger.Debug("Directory %d contains %d entries", d.node.Inode(), len(collector.entries))
	return collector.entries, nil
}

// Remove implements the NodeRemover interface, removing a file or directory.
func (d *Dir) Remove(_ context.Context, req *fuse.RemoveRequest) error {
	dirLogger.Info("Removing %q from directory %d (isDir=%v)", req.Name, d.node.Inode(), req.Dir)
	if err := d.node.Remove(req.Name, req.Dir, d.fs.cache); err != nil {
		dirLogger.Warn("Removing %q failed: %v", req.Name, err)
		return ToFuseError(err)
	}
	return nil
}

// Setattr implements the NodeSetattrer interface.
func (d *Dir) Setattr(_ context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	if !d.node.Writable() {
		return fuse.Errno(syscall.EPERM)
	}
	attr, err := d.node.SetAttr(attrDelta(req))
	if err != nil {
		return ToFuseError(err)
	}
	d.fs.fillAttr(attr, &resp.Attr)
	return nil
}
