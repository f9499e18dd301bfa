package nodes

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// AttrDelta is a partial attribute update. Nil fields are left untouched.
type AttrDelta struct {
	Mode  *uint32
	Uid   *uint32
	Gid   *uint32
	Atime *time.Time
	Mtime *time.Time
	Size  *uint64
}

// setattr applies delta to the host path, if any, and returns attr with the
// delta merged in. An empty path updates the record only.
//
// The first host failure aborts the update and is returned as is.
func setattr(path string, attr Attr, delta *AttrDelta) (Attr, error) {
	updated := attr

	// Truncation bumps the modification time, so it goes before any explicit
	// timestamp update.
	if delta.Size != nil {
		if path != "" {
			if err := unix.Truncate(path, int64(*delta.Size)); err != nil {
				return attr, &os.PathError{Op: "truncate", Path: path, Err: err}
			}
		}
		updated.Size = *delta.Size
		updated.Blocks = (*delta.Size + 511) / 512
	}

	if delta.Mode != nil {
		perm := *delta.Mode & 0o7777
		// Symlink permissions are meaningless on Linux and chmod would follow
		// the link.
		if path != "" && attr.Kind != TypeSymlink {
			if err := unix.Chmod(path, perm); err != nil {
				return attr, &os.PathError{Op: "chmod", Path: path, Err: err}
			}
		}
		updated.Perm = uint16(perm)
	}

	if delta.Uid != nil || delta.Gid != nil {
		uid, gid := -1, -1
		if delta.Uid != nil {
			uid = int(*delta.Uid)
			updated.Uid = *delta.Uid
		}
		if delta.Gid != nil {
			gid = int(*delta.Gid)
			updated.Gid = *delta.Gid
		}
		if path != "" {
			if err := unix.Lchown(path, uid, gid); err != nil {
				return attr, &os.PathError{Op: "lchown", Path: path, Err: err}
			}
		}
	}

	if delta.Atime != nil || delta.Mtime != nil {
		times := []unix.Timespec{
			{Nsec: unix.UTIME_OMIT},
			{Nsec: unix.UTIME_OMIT},
		}
		if delta.Atime != nil {
			times[0] = unix.NsecToTimespec(delta.Atime.UnixNano())
			updated.Atime = *delta.Atime
		}
		if delta.Mtime != nil {
			times[1] = unix.NsecToTimespec(delta.Mtime.UnixNano())
			updated.Mtime = *delta.Mtime
		}
		if path != "" {
			if err := unix.UtimesNanoAt(unix.AT_FDCWD, path, times, unix.AT_SYMLINK_NOFOLLOW); err != nil {
				return attr, &os.PathError{Op: "utimensat", Path: path, Err: err}
			}
		}
	}
	return updated, nil
}
