package nodes

import (
	"os"
	"sync"
)

// Cache guarantees that a host path is represented by at most one live node,
// no matter how many virtual paths reach it.
type Cache struct {
	mu      sync.Mutex
	entries map[string]Node
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]Node)}
}

// GetOrCreate returns the node representing path, constructing and
// registering a new one if needed. fi must be the result of a fresh os.Lstat
// on path.
//
// A cached node is only reused if its type and writability still match;
// otherwise it is replaced by a new node with a new inode.
func (c *Cache) GetOrCreate(ids *IDGenerator, path string, fi os.FileInfo, writable bool) (Node, error) {
	kind := FileTypeFromMode(path, fi.Mode())

	c.mu.Lock()
	defer c.mu.Unlock()

	if node, ok := c.entries[path]; ok {
		if node.FileTypeCached() == kind && node.Writable() == writable {
			return node, nil
		}
		nodesLogger.Debug("Replacing cached node %d for %s (type %v, writable %v)",
			node.Inode(), path, kind, writable)
	}

	node, err := newMappedNode(ids.Next(), path, fi, writable)
	if err != nil {
		return nil, err
	}
	c.entries[path] = node
	return node, nil
}

// Delete evicts path from the cache and returns the node it held, if any.
func (c *Cache) Delete(path string) Node {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.entries[path]
	if !ok {
		return nil
	}
	delete(c.entries, path)
	return node
}

// Len returns the number of cached host paths.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func newMappedNode(inode uint64, path string, fi os.FileInfo, writable bool) (Node, error) {
	switch {
	case fi.IsDir():
		return NewMappedDir(inode, path, fi, writable)
	case fi.Mode()&os.ModeSymlink != 0:
		return NewMappedSymlink(inode, path, fi, writable)
	default:
		return NewMappedFile(inode, path, fi, writable)
	}
}
