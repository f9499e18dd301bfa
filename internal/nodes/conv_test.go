package nodes

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"
)

func TestFileTypeFromMode(t *testing.T) {
	tests := []struct {
		mode os.FileMode
		want FileType
	}{
		{0644, TypeRegular},
		{os.ModeDir | 0755, TypeDirectory},
		{os.ModeSymlink | 0777, TypeSymlink},
		{os.ModeNamedPipe, TypeNamedPipe},
		{os.ModeSocket, TypeSocket},
		{os.ModeDevice | os.ModeCharDevice, TypeCharDevice},
		{os.ModeDevice, TypeBlockDevice},
		{os.ModeIrregular, TypeRegular},
	}
	for _, tt := range tests {
		if got := FileTypeFromMode("test", tt.mode); got != tt.want {
			t.Errorf("FileTypeFromMode(%v) = %v, want %v", tt.mode, got, tt.want)
		}
	}
}

func TestAttrFromFileInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	if err := os.WriteFile(path, []byte("12345"), 0640); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}
	if err := os.Chmod(path, os.ModeSetuid|0o640); err != nil {
		t.Fatalf("Failed to chmod: %v", err)
	}

	attr := AttrFromFileInfo(path, 7, lstat(t, path))
	if attr.Inode != 7 {
		t.Errorf("Expected inode 7, got %d", attr.Inode)
	}
	if attr.Kind != TypeRegular || attr.Size != 5 || attr.Nlink != 1 {
		t.Errorf("Unexpected attributes: %+v", attr)
	}
	if attr.Perm != 0o4640 {
		t.Errorf("Expected permissions 4640, got %o", attr.Perm)
	}
	if attr.Uid != uint32(os.Getuid()) || attr.Gid != uint32(os.Getgid()) {
		t.Errorf("Unexpected owner %d:%d", attr.Uid, attr.Gid)
	}
}

func TestOpenFlags(t *testing.T) {
	tests := []struct {
		name     string
		flags    int
		writable bool
		want     int
		err      error
	}{
		{"read only", unix.O_RDONLY, false, os.O_RDONLY, nil},
		{"write on writable", unix.O_WRONLY, true, os.O_WRONLY, nil},
		{"rdwr on writable", unix.O_RDWR, true, os.O_RDWR, nil},
		{"append is dropped", unix.O_WRONLY | unix.O_APPEND, true, os.O_WRONLY, nil},
		{"truncate on writable", unix.O_RDWR | unix.O_TRUNC, true, os.O_RDWR | os.O_TRUNC, nil},
		{"write on read-only", unix.O_WRONLY, false, 0, ErrPermission},
		{"rdwr on read-only", unix.O_RDWR, false, 0, ErrPermission},
		{"truncate on read-only", unix.O_RDONLY | unix.O_TRUNC, false, 0, ErrPermission},
		{"bad access mode", unix.O_ACCMODE, true, 0, ErrInvalidPrecondition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := openFlags(uint32(tt.flags), tt.writable)
			if !errors.Is(err, tt.err) {
				t.Fatalf("Expected error %v, got %v", tt.err, err)
			}
			if err == nil && got != tt.want {
				t.Errorf("Expected flags %#x, got %#x", tt.want, got)
			}
		})
	}
}
