package nodes

import (
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// FileTypeFromMode converts the type bits of a host file mode into a FileType.
//
// path is only used for diagnostics.
func FileTypeFromMode(path string, mode os.FileMode) FileType {
	switch {
	case mode.IsDir():
		return TypeDirectory
	case mode.IsRegular():
		return TypeRegular
	case mode&os.ModeSymlink != 0:
		return TypeSymlink
	case mode&os.ModeNamedPipe != 0:
		return TypeNamedPipe
	case mode&os.ModeSocket != 0:
		return TypeSocket
	case mode&os.ModeDevice != 0:
		if mode&os.ModeCharDevice != 0 {
			return TypeCharDevice
		}
		return TypeBlockDevice
	}
	nodesLogger.Warn("File %s has unknown type %v; reporting it as a regular file", path, mode.Type())
	return TypeRegular
}

// AttrFromFileInfo converts host metadata, as returned by os.Lstat, into the
// attribute record of the node with the given inode.
func AttrFromFileInfo(path string, inode uint64, fi os.FileInfo) Attr {
	attr := Attr{
		Inode: inode,
		Kind:  FileTypeFromMode(path, fi.Mode()),
		Nlink: 1,
		Size:  safeInt64ToUint64(fi.Size()),
		Atime: fi.ModTime(),
		Mtime: fi.ModTime(),
		Ctime: fi.ModTime(),
		Perm:  PermFromMode(fi.Mode()),
	}
	attr.Crtime = attr.Ctime
	attr.Blocks = (attr.Size + 511) / 512

	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		nodesLogger.Debug("No raw stat data for %s; using portable fields only", path)
		return attr
	}
	attr.Nlink = uint32(st.Nlink)
	attr.Blocks = safeInt64ToUint64(st.Blocks)
	attr.Atime = time.Unix(st.Atim.Unix())
	attr.Mtime = time.Unix(st.Mtim.Unix())
	attr.Ctime = time.Unix(st.Ctim.Unix())
	// Linux does not expose the birth time through stat.
	attr.Crtime = attr.Ctime
	attr.Perm = uint16(st.Mode & 0o7777)
	attr.Uid = st.Uid
	attr.Gid = st.Gid
	attr.Rdev = uint32(st.Rdev)
	return attr
}

// PermFromMode extracts the permission, setuid, setgid and sticky bits of mode.
func PermFromMode(mode os.FileMode) uint16 {
	perm := uint16(mode.Perm())
	if mode&os.ModeSetuid != 0 {
		perm |= unix.S_ISUID
	}
	if mode&os.ModeSetgid != 0 {
		perm |= unix.S_ISGID
	}
	if mode&os.ModeSticky != 0 {
		perm |= unix.S_ISVTX
	}
	return perm
}

// openFlags translates kernel open flags into flags for os.OpenFile.
//
// Write access is refused on read-only nodes. O_APPEND is dropped because the
// kernel always provides explicit offsets for writes.
func openFlags(flags uint32, writable bool) (int, error) {
	f := int(flags)

	var out int
	switch f & unix.O_ACCMODE {
	case unix.O_RDONLY:
		out = os.O_RDONLY
	case unix.O_WRONLY:
		out = os.O_WRONLY
	case unix.O_RDWR:
		out = os.O_RDWR
	default:
		return 0, ErrInvalidPrecondition
	}

	wantsWrite := out != os.O_RDONLY || f&unix.O_TRUNC != 0
	if wantsWrite && !writable {
		return 0, ErrPermission
	}

	if f&unix.O_TRUNC != 0 {
		out |= os.O_TRUNC
	}
	if f&unix.O_SYNC != 0 {
		out |= os.O_SYNC
	}
	return out, nil
}

func safeInt64ToUint64(n int64) uint64 {
	if n < 0 {
		return 0
	}
	return uint64(n)
}
