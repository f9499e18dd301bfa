package nodes

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// listing collects the entries emitted by ReadDir.
type listing struct {
	entries []listEntry
}

type listEntry struct {
	Inode  uint64
	Offset int64
	Kind   FileType
	Name   string
}

func (l *listing) Add(inode uint64, offset int64, kind FileType, name string) {
	l.entries = append(l.entries, listEntry{Inode: inode, Offset: offset, Kind: kind, Name: name})
}

func (l *listing) names() []string {
	names := make([]string, 0, len(l.entries))
	for _, e := range l.entries {
		names = append(names, e.Name)
	}
	return names
}

func (l *listing) find(name string) (listEntry, bool) {
	for _, e := range l.entries {
		if e.Name == name {
			return e, true
		}
	}
	return listEntry{}, false
}

// testTree bundles what every node operation needs.
type testTree struct {
	ids   *IDGenerator
	cache *Cache
	root  *Dir
}

func newScaffoldTree() *testTree {
	ids := NewIDGenerator(1)
	return &testTree{
		ids:   ids,
		cache: NewCache(),
		root:  NewScaffoldDir(ids.Next(), nil, time.Now()),
	}
}

func newMappedTree(t *testing.T, hostDir string, writable bool) *testTree {
	t.Helper()
	ids := NewIDGenerator(1)
	root, err := NewMappedDir(ids.Next(), hostDir, lstat(t, hostDir), writable)
	if err != nil {
		t.Fatalf("Failed to create mapped root: %v", err)
	}
	return &testTree{ids: ids, cache: NewCache(), root: root}
}

func (tt *testTree) mustMap(t *testing.T, virtual []string, host string, writable bool) {
	t.Helper()
	if err := tt.root.Map(virtual, host, writable, tt.ids, tt.cache); err != nil {
		t.Fatalf("Map(%v, %s) failed: %v", virtual, host, err)
	}
}

func (tt *testTree) mustLookupDir(t *testing.T, dir *Dir, name string) *Dir {
	t.Helper()
	node, _, err := dir.Lookup(name, tt.ids, tt.cache)
	if err != nil {
		t.Fatalf("Lookup(%q) failed: %v", name, err)
	}
	child, ok := node.(*Dir)
	if !ok {
		t.Fatalf("Lookup(%q) returned %T, want *Dir", name, node)
	}
	return child
}

func (tt *testTree) readdir(t *testing.T, dir *Dir) *listing {
	t.Helper()
	l := &listing{}
	if err := dir.ReadDir(tt.ids, tt.cache, l); err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	return l
}

func lstat(t *testing.T, path string) os.FileInfo {
	t.Helper()
	fi, err := os.Lstat(path)
	if err != nil {
		t.Fatalf("Failed to stat %s: %v", path, err)
	}
	return fi
}

// makeHostTree creates files (names ending in "/" are directories) under a
// fresh temporary directory and returns its path.
func makeHostTree(t *testing.T, paths ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, p := range paths {
		full := filepath.Join(root, p)
		if p[len(p)-1] == '/' {
			if err := os.MkdirAll(full, 0755); err != nil {
				t.Fatalf("Failed to create directory: %v", err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatalf("Failed to create directory: %v", err)
		}
		if err := os.WriteFile(full, []byte("content of "+p), 0644); err != nil {
			t.Fatalf("Failed to create test file: %v", err)
		}
	}
	return root
}
