package nodes

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestFile(t *testing.T, content []byte, writable bool) (*File, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}
	f, err := NewMappedFile(42, path, lstat(t, path), writable)
	if err != nil {
		t.Fatalf("NewMappedFile failed: %v", err)
	}
	return f, path
}

func TestFileReadWrite(t *testing.T) {
	content := []byte("test file content")
	f, path := newTestFile(t, content, true)

	if f.Inode() != 42 || !f.Writable() || f.FileTypeCached() != TypeRegular {
		t.Fatalf("Unexpected identity: inode=%d writable=%v type=%v", f.Inode(), f.Writable(), f.FileTypeCached())
	}

	h, err := f.Open(uint32(os.O_RDWR))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer h.Close()

	t.Run("ShortReadAtEOF", func(t *testing.T) {
		data, err := h.Read(5, 100)
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if !bytes.Equal(data, content[5:]) {
			t.Errorf("Expected %q, got %q", content[5:], data)
		}
	})

	t.Run("ReadPastEOF", func(t *testing.T) {
		data, err := h.Read(1000, 10)
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if len(data) != 0 {
			t.Errorf("Expected empty read, got %q", data)
		}
	})

	t.Run("PositionedWrite", func(t *testing.T) {
		n, err := h.Write(5, []byte("FILE"))
		if err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		if n != 4 {
			t.Errorf("Expected 4 bytes written, got %d", n)
		}
		got, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("Failed to read host file: %v", err)
		}
		if string(got) != "test FILE content" {
			t.Errorf("Unexpected host content %q", got)
		}
	})
}

func TestFileWriteTruncatesOversizedInput(t *testing.T) {
	defer func(old uint64) { maxWriteSize = old }(maxWriteSize)
	maxWriteSize = 8

	f, _ := newTestFile(t, nil, true)
	h, err := f.Open(uint32(os.O_RDWR))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer h.Close()

	input := []byte("0123456789abcdefghij")
	n, err := h.Write(0, input)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if uint64(n) != maxWriteSize {
		t.Fatalf("Expected write count %d, got %d", maxWriteSize, n)
	}

	data, err := h.Read(0, uint32(maxWriteSize))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !bytes.Equal(data, input[:maxWriteSize]) {
		t.Errorf("Expected %q, got %q", input[:maxWriteSize], data)
	}
	attr, err := f.GetAttr()
	if err != nil {
		t.Fatalf("GetAttr failed: %v", err)
	}
	if attr.Size != maxWriteSize {
		t.Errorf("Expected size %d, got %d", maxWriteSize, attr.Size)
	}
}

func TestFileOpenPermissions(t *testing.T) {
	f, _ := newTestFile(t, []byte("x"), false)

	for _, flags := range []int{os.O_WRONLY, os.O_RDWR, os.O_RDONLY | os.O_TRUNC} {
		if _, err := f.Open(uint32(flags)); !errors.Is(err, ErrPermission) {
			t.Errorf("Open(%#x) on read-only file = %v, want ErrPermission", flags, err)
		}
	}

	h, err := f.Open(uint32(os.O_RDONLY))
	if err != nil {
		t.Fatalf("Read-only open failed: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestFileDelete(t *testing.T) {
	f, path := newTestFile(t, []byte("hello"), true)
	before, err := f.GetAttr()
	if err != nil {
		t.Fatalf("GetAttr failed: %v", err)
	}

	if err := f.Delete(); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	// Host changes must not be observed after delete.
	if err := os.Remove(path); err != nil {
		t.Fatalf("Failed to remove host file: %v", err)
	}

	if _, err := f.Open(uint32(os.O_RDONLY)); !errors.Is(err, ErrInvalidPrecondition) {
		t.Errorf("Open after delete = %v, want ErrInvalidPrecondition", err)
	}
	if err := f.Delete(); !errors.Is(err, ErrInvalidPrecondition) {
		t.Errorf("Second delete = %v, want ErrInvalidPrecondition", err)
	}

	after, err := f.GetAttr()
	if err != nil {
		t.Fatalf("GetAttr after delete failed: %v", err)
	}
	if after.Size != before.Size || !after.Mtime.Equal(before.Mtime) {
		t.Errorf("Deleted file attributes changed: %+v vs %+v", after, before)
	}

	size := uint64(100)
	mtime := time.Unix(1234567890, 0)
	updated, err := f.SetAttr(&AttrDelta{Size: &size, Mtime: &mtime})
	if err != nil {
		t.Fatalf("SetAttr on deleted file failed: %v", err)
	}
	if updated.Size != 100 || !updated.Mtime.Equal(mtime) {
		t.Errorf("SetAttr did not merge delta: %+v", updated)
	}
}

func TestFileSetAttr(t *testing.T) {
	f, path := newTestFile(t, []byte("0123456789"), true)

	size := uint64(4)
	mode := uint32(0o600)
	mtime := time.Unix(1000000000, 500)
	attr, err := f.SetAttr(&AttrDelta{Size: &size, Mode: &mode, Mtime: &mtime})
	if err != nil {
		t.Fatalf("SetAttr failed: %v", err)
	}
	if attr.Size != 4 || attr.Perm != 0o600 || !attr.Mtime.Equal(mtime) {
		t.Errorf("Unexpected merged attributes: %+v", attr)
	}

	fi := lstat(t, path)
	if fi.Size() != 4 {
		t.Errorf("Host size not truncated, got %d", fi.Size())
	}
	if fi.Mode().Perm() != 0o600 {
		t.Errorf("Host mode not changed, got %o", fi.Mode().Perm())
	}
	if !fi.ModTime().Equal(mtime) {
		t.Errorf("Host mtime not changed, got %v", fi.ModTime())
	}
}

func TestFileGetAttrTypeChanged(t *testing.T) {
	f, path := newTestFile(t, nil, false)
	if err := os.Remove(path); err != nil {
		t.Fatalf("Failed to remove file: %v", err)
	}
	if err := os.Mkdir(path, 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	if _, err := f.GetAttr(); !errors.Is(err, ErrTypeChanged) {
		t.Errorf("Expected ErrTypeChanged, got %v", err)
	}
}

func TestNewMappedFileRejectsDirectoriesAndSymlinks(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewMappedFile(1, dir, lstat(t, dir), false); !errors.Is(err, ErrInvalidPrecondition) {
		t.Errorf("Expected ErrInvalidPrecondition for directory, got %v", err)
	}

	link := filepath.Join(dir, "link")
	if err := os.Symlink("target", link); err != nil {
		t.Fatalf("Failed to create symlink: %v", err)
	}
	if _, err := NewMappedFile(1, link, lstat(t, link), false); !errors.Is(err, ErrInvalidPrecondition) {
		t.Errorf("Expected ErrInvalidPrecondition for symlink, got %v", err)
	}
}

func TestSymlink(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(dir, "link")
	if err := os.Symlink("some/target", link); err != nil {
		t.Fatalf("Failed to create symlink: %v", err)
	}

	tree := newMappedTree(t, dir, true)
	node, attr, err := tree.root.Lookup("link", tree.ids, tree.cache)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	s, ok := node.(*Symlink)
	if !ok {
		t.Fatalf("Expected *Symlink, got %T", node)
	}
	if attr.Kind != TypeSymlink || s.FileTypeCached() != TypeSymlink {
		t.Errorf("Unexpected symlink type %v", attr.Kind)
	}

	target, err := s.Readlink()
	if err != nil {
		t.Fatalf("Readlink failed: %v", err)
	}
	if target != "some/target" {
		t.Errorf("Expected target some/target, got %q", target)
	}

	if err := s.Delete(); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Readlink(); !errors.Is(err, ErrInvalidPrecondition) {
		t.Errorf("Readlink after delete = %v, want ErrInvalidPrecondition", err)
	}
	if err := s.Delete(); !errors.Is(err, ErrInvalidPrecondition) {
		t.Errorf("Second delete = %v, want ErrInvalidPrecondition", err)
	}
}
