// internal/fs/interfaces.go

package fs

import (
	"bazil.org/fuse/fs"
)

// Node represents a filesystem node (file, directory or symlink)
type Node interface {
	fs.Node
	fs.NodeSetattrer
}

// Directory represents a directory in the sandbox
type Directory interface {
	Node
	fs.NodeStringLookuper
	fs.HandleReadDirAller
	fs.NodeRemover
}

// FileInterface represents a file in the sandbox
type FileInterface interface {
	Node
	fs.NodeOpener
}

// SymlinkInterface represents a symlink in the sandbox
type SymlinkInterface interface {
	Node
	fs.NodeReadlinker
}

// FileHandleInterface represents an open file handle
type FileHandleInterface interface {
	fs.Handle
	fs.HandleReader
	fs.HandleWriter
	fs.HandleReleaser
}

var (
	_ fs.FS               = (*SandboxFS)(nil)
	_ Directory           = (*Dir)(nil)
	_ FileInterface       = (*File)(nil)
	_ SymlinkInterface    = (*Symlink)(nil)
	_ FileHandleInterface = (*FileHandle)(nil)
)
