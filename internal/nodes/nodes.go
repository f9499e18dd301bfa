// Package nodes implements the in-memory node tree of sandboxfs.
//
// The tree is made of scaffold directories, which exist only to give shape to
// explicit mappings, and mapped nodes, which are backed by a path on the host
// file system. Mapped directories discover their contents lazily from the host
// as the kernel issues lookups and listings.
//
// Every node owns a single mutex guarding its mutable state. No operation holds
// the locks of two nodes across a recursive descent.
package nodes

import (
	"time"

	"sandboxfs/internal/logging"
)

var (
	nodesLogger = logging.GetLogger().WithPrefix("nodes")
)

// FileType is the type of a node as reported to the kernel.
type FileType int

const (
	TypeRegular FileType = iota
	TypeDirectory
	TypeSymlink
	TypeNamedPipe
	TypeCharDevice
	TypeBlockDevice
	TypeSocket
)

var fileTypeNames = map[FileType]string{
	TypeRegular:     "regular",
	TypeDirectory:   "directory",
	TypeSymlink:     "symlink",
	TypeNamedPipe:   "fifo",
	TypeCharDevice:  "char-device",
	TypeBlockDevice: "block-device",
	TypeSocket:      "socket",
}

func (t FileType) String() string {
	if name, ok := fileTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// Attr is the attribute record of a node. It mirrors the fields of a POSIX
// stat structure.
type Attr struct {
	Inode  uint64
	Kind   FileType
	Nlink  uint32
	Size   uint64
	Blocks uint64 // in 512-byte units
	Atime  time.Time
	Mtime  time.Time
	Ctime  time.Time
	Crtime time.Time
	Perm   uint16 // permission bits, including setuid, setgid and sticky
	Uid    uint32
	Gid    uint32
	Rdev   uint32
	Flags  uint32
}

// Node is the set of operations every node supports. Variant-specific
// operations are reached by narrowing to *Dir, *File or *Symlink.
type Node interface {
	// Inode returns the identifier assigned to the node at construction.
	Inode() uint64

	// Writable reports whether the node was mapped read/write.
	Writable() bool

	// FileTypeCached returns the last known type of the node without
	// touching the host file system.
	FileTypeCached() FileType

	// GetAttr returns the node's attributes, refreshing them from the host
	// if the node is backed by a host path.
	GetAttr() (Attr, error)
}

// ReaddirReply receives the entries of a directory listing in order.
type ReaddirReply interface {
	Add(inode uint64, offset int64, kind FileType, name string)
}
