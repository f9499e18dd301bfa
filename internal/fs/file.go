package fs

import (
	"context"
	"sync"
	"syscall"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"

	"sandboxfs/internal/logging"
	"sandboxfs/internal/nodes"
)

var (
	fileLogger = logging.GetLogger().WithPrefix("fusefile")
)

// File exposes a file node to the kernel.
type File struct {
	fs   *SandboxFS
	node *nodes.File
}

// Attr implements the Node interface, returning the file's attributes.
func (f *File) Attr(_ context.Context, a *fuse.Attr) error {
	attr, err := f.node.GetAttr()
	if err != nil {
		fileLogger.Debug("Getting attributes of file %d failed: %v", f.node.Inode(), err)
		return ToFuseError(err)
	}
	f.fs.fillAttr(attr, a)
	fileLogger.Trace("File attributes: mode=%v, size=%d, mtime=%v", a.Mode, a.Size, a.Mtime)
	return nil
}

// Open implements the NodeOpener interface, opening the underlying file.
func (f *File) Open(_ context.Context, req *fuse.OpenRequest, _ *fuse.OpenResponse) (fusefs.Handle, error) {
	fileLogger.Debug("Opening file %d with flags %v", f.node.Inode(), req.Flags)
	h, err := f.node.Open(uint32(req.Flags))
	if err != nil {
		fileLogger.Warn("Failed to open file %d: %v", f.node.Inode(), err)
		return nil, ToFuseError(err)
	}
	return &FileHandle{handle: h, inode: f.node.Inode()}, nil
}

// Setattr implements the NodeSetattrer interface.
func (f *File) Setattr(_ context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	if !f.node.Writable() {
		return fuse.Errno(syscall.EPERM)
	}
	attr, err := f.node.SetAttr(attrDelta(req))
	if err != nil {
		return ToFuseError(err)
	}
	f.fs.fillAttr(attr, &resp.Attr)
	return nil
}

// FileHandle is an open file as seen by the kernel.
type FileHandle struct {
	handle nodes.Handle
	inode  uint64 // For logging purposes
	mu     sync.Mutex
	closed bool
}

// Read implements the HandleReader interface, reading data from the file.
func (fh *FileHandle) Read(_ context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	fileLogger.Trace("Reading %d bytes from file %d at offset %d", req.Size, fh.inode, req.Offset)
	data, err := fh.handle.Read(req.Offset, uint32(req.Size))
	if err != nil {
		fileLogger.Error("Failed to read from file %d: %v", fh.inode, err)
		return ToFuseError(err)
	}
	resp.Data = data
	return nil
}

// Write implements the HandleWriter interface, writing data to the file.
func (fh *FileHandle) Write(_ context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	fileLogger.Trace("Writing %d bytes to file %d at offset %d", len(req.Data), fh.inode, req.Offset)
	n, err := fh.handle.Write(req.Offset, req.Data)
	resp.Size = int(n)
	if err != nil {
		fileLogger.Error("Failed to write to file %d: %v", fh.inode, err)
		return ToFuseError(err)
	}
	return nil
}

// Release implements the HandleReleaser interface, closing the file handle.
func (fh *FileHandle) Release(_ context.Context, _ *fuse.ReleaseRequest) error {
	fh.mu.Lock()
	defer fh.mu.Unlock()

	if fh.closed {
		return nil
	}
	fh.closed = true
	fileLogger.Debug("Closing file %d", fh.inode)
	return ToFuseError(fh.handle.Close())
}
