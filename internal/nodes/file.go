package nodes

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync"

	"sandboxfs/internal/logging"
)

var (
	fileLogger = logging.GetLogger().WithPrefix("file")
)

// maxWriteSize is the largest byte count a write can report back to the
// kernel. Longer writes are truncated to it.
var maxWriteSize uint64 = math.MaxUint32

// Handle is an open file.
type Handle interface {
	// Read returns up to size bytes starting at offset. Short reads at the end
	// of the file are not errors.
	Read(offset int64, size uint32) ([]byte, error)

	// Write writes data at offset and returns the number of bytes written.
	Write(offset int64, data []byte) (uint32, error)

	// Close releases the handle.
	Close() error
}

// fileHandle is a Handle over a host file.
type fileHandle struct {
	file *os.File
}

func (h *fileHandle) Read(offset int64, size uint32) ([]byte, error) {
	buf := make([]byte, size)
	n, err := h.file.ReadAt(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:n], nil
}

func (h *fileHandle) Write(offset int64, data []byte) (uint32, error) {
	if uint64(len(data)) > maxWriteSize {
		fileLogger.Warn("Truncating too-long write to %d (asked for %d bytes)", maxWriteSize, len(data))
		data = data[:maxWriteSize]
	}
	n, err := h.file.WriteAt(data, offset)
	return uint32(n), err
}

func (h *fileHandle) Close() error {
	return h.file.Close()
}

// File is a leaf node for every host file type other than directories and
// symlinks, as all of them support the same operations.
type File struct {
	inode    uint64
	writable bool

	mu    sync.Mutex
	state mutableFile
}

// mutableFile holds the state of a File guarded by File.mu.
type mutableFile struct {
	underlyingPath string // empty once deleted
	attr           Attr
}

var (
	_ Node   = (*File)(nil)
	_ Handle = (*fileHandle)(nil)
)

// fileSupportsMode reports whether a File can represent the given host type.
func fileSupportsMode(mode os.FileMode) bool {
	return !mode.IsDir() && mode&os.ModeSymlink == 0
}

// NewMappedFile creates a file backed by underlyingPath. fi must be the stat
// data of that path.
func NewMappedFile(inode uint64, underlyingPath string, fi os.FileInfo, writable bool) (*File, error) {
	if !fileSupportsMode(fi.Mode()) {
		return nil, newError(OpCreate, underlyingPath,
			fmt.Errorf("%w: cannot back a file with %v", ErrInvalidPrecondition, fi.Mode().Type()))
	}

	return &File{
		inode:    inode,
		writable: writable,
		state: mutableFile{
			underlyingPath: underlyingPath,
			attr:           AttrFromFileInfo(underlyingPath, inode, fi),
		},
	}, nil
}

// Inode implements Node.
func (f *File) Inode() uint64 {
	return f.inode
}

// Writable implements Node.
func (f *File) Writable() bool {
	return f.writable
}

// FileTypeCached implements Node.
func (f *File) FileTypeCached() FileType {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.attr.Kind
}

// GetAttr implements Node. Deleted files return their last known
// attributes.
func (f *File) GetAttr() (Attr, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getattrLocked()
}

func (f *File) getattrLocked() (Attr, error) {
	path := f.state.underlyingPath
	if path == "" {
		return f.state.attr, nil
	}

	fi, err := os.Lstat(path)
	if err != nil {
		return Attr{}, err
	}
	if !fileSupportsMode(fi.Mode()) {
		fileLogger.Warn("Path %s backing a file node is no longer a file; got %v", path, fi.Mode().Type())
		return Attr{}, newError(OpGetattr, path, ErrTypeChanged)
	}
	f.state.attr = AttrFromFileInfo(path, f.inode, fi)
	return f.state.attr, nil
}

// SetAttr applies delta to the backing file, or only to the cached
// attributes if the file was deleted.
func (f *File) SetAttr(delta *AttrDelta) (Attr, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	attr, err := setattr(f.state.underlyingPath, f.state.attr, delta)
	if err != nil {
		return Attr{}, err
	}
	f.state.attr = attr
	return attr, nil
}

// Open opens the backing file. Write access requires a writable node.
func (f *File) Open(flags uint32) (Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := f.state.underlyingPath
	if path == "" {
		return nil, newError(OpOpen, "", fmt.Errorf("%w: file %d was deleted", ErrInvalidPrecondition, f.inode))
	}

	osFlags, err := openFlags(flags, f.writable)
	if err != nil {
		return nil, newError(OpOpen, path, err)
	}
	file, err := os.OpenFile(path, osFlags, 0)
	if err != nil {
		return nil, err
	}
	return &fileHandle{file: file}, nil
}

// Delete marks the file as removed from the host. It can only happen once.
func (f *File) Delete() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state.underlyingPath == "" {
		return newError(OpDelete, "", fmt.Errorf("%w: file %d already deleted", ErrInvalidPrecondition, f.inode))
	}
	f.state.underlyingPath = ""
	return nil
}
