package fs

import (
	"os"
	"time"

	"bazil.org/fuse"

	"sandboxfs/internal/nodes"
)

// fillAttr copies a node attribute record into the kernel-facing record.
func (sfs *SandboxFS) fillAttr(attr nodes.Attr, a *fuse.Attr) {
	a.Valid = sfs.ttl
	a.Inode = attr.Inode
	a.Size = attr.Size
	a.Blocks = attr.Blocks
	a.Atime = attr.Atime
	a.Mtime = attr.Mtime
	a.Ctime = attr.Ctime
	a.Mode = fileMode(attr.Kind, attr.Perm)
	a.Nlink = attr.Nlink
	a.Uid = attr.Uid
	a.Gid = attr.Gid
	a.Rdev = attr.Rdev
	a.BlockSize = 4096
}

func fileMode(kind nodes.FileType, perm uint16) os.FileMode {
	mode := os.FileMode(perm & 0o777)
	if perm&0o4000 != 0 {
		mode |= os.ModeSetuid
	}
	if perm&0o2000 != 0 {
		mode |= os.ModeSetgid
	}
	if perm&0o1000 != 0 {
		mode |= os.ModeSticky
	}

	switch kind {
	case nodes.TypeDirectory:
		mode |= os.ModeDir
	case nodes.TypeSymlink:
		mode |= os.ModeSymlink
	case nodes.TypeNamedPipe:
		mode |= os.ModeNamedPipe
	case nodes.TypeSocket:
		mode |= os.ModeSocket
	case nodes.TypeCharDevice:
		mode |= os.ModeDevice | os.ModeCharDevice
	case nodes.TypeBlockDevice:
		mode |= os.ModeDevice
	}
	return mode
}

func direntType(kind nodes.FileType) fuse.DirentType {
	switch kind {
	case nodes.TypeDirectory:
		return fuse.DT_Dir
	case nodes.TypeSymlink:
		return fuse.DT_Link
	case nodes.TypeNamedPipe:
		return fuse.DT_FIFO
	case nodes.TypeSocket:
		return fuse.DT_Socket
	case nodes.TypeCharDevice:
		return fuse.DT_Char
	case nodes.TypeBlockDevice:
		return fuse.DT_Block
	default:
		return fuse.DT_File
	}
}

// attrDelta extracts the fields of a setattr request that sandboxfs applies.
func attrDelta(req *fuse.SetattrRequest) *nodes.AttrDelta {
	delta := &nodes.AttrDelta{}
	if req.Valid.Size() {
		size := req.Size
		delta.Size = &size
	}
	if req.Valid.Mode() {
		mode := uint32(nodes.PermFromMode(req.Mode))
		delta.Mode = &mode
	}
	if req.Valid.Uid() {
		uid := req.Uid
		delta.Uid = &uid
	}
	if req.Valid.Gid() {
		gid := req.Gid
		delta.Gid = &gid
	}
	if req.Valid.Atime() || req.Valid.AtimeNow() {
		atime := req.Atime
		if req.Valid.AtimeNow() {
			atime = time.Now()
		}
		delta.Atime = &atime
	}
	if req.Valid.Mtime() || req.Valid.MtimeNow() {
		mtime := req.Mtime
		if req.Valid.MtimeNow() {
			mtime = time.Now()
		}
		delta.Mtime = &mtime
	}
	return delta
}

// direntCollector turns a node listing into bazil directory entries.
type direntCollector struct {
	entries []fuse.Dirent
}

func (c *direntCollector) Add(inode uint64, _ int64, kind nodes.FileType, name string) {
	c.entries = append(c.entries, fuse.Dirent{
		Inode: inode,
		Type:  direntType(kind),
		Name:  name,
	})
}
