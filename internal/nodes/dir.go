package nodes

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"sandboxfs/internal/logging"
)

var (
	dirLogger = logging.GetLogger().WithPrefix("dir")
)

// dirent is an entry in a directory's child table.
type dirent struct {
	node            Node
	explicitMapping bool
}

// Dir is a directory node. A Dir without an underlying path is a scaffold:
// it only contains the entries inserted by Map.
type Dir struct {
	inode    uint64
	writable bool

	mu    sync.Mutex
	state mutableDir
}

// mutableDir holds the state of a Dir guarded by Dir.mu.
type mutableDir struct {
	parent         uint64
	underlyingPath string // empty for scaffolds; never changes
	attr           Attr
	children       map[string]*dirent
}

var (
	_ Node = (*Dir)(nil)
)

// NewScaffoldDir creates an unbacked directory. Its timestamps are set to now
// and it is owned by the current user. parent may be nil for the root, in
// which case ".." points back to the directory itself.
func NewScaffoldDir(inode uint64, parent Node, now time.Time) *Dir {
	attr := Attr{
		Inode:  inode,
		Kind:   TypeDirectory,
		Nlink:  2, // "." plus the entry naming this directory
		Size:   2,
		Blocks: 1,
		Atime:  now,
		Mtime:  now,
		Ctime:  now,
		Crtime: now,
		Perm:   0o555, // scaffolds cannot be mutated by the user
		Uid:    safeIntToUint32(os.Getuid()),
		Gid:    safeIntToUint32(os.Getgid()),
	}

	parentInode := inode
	if parent != nil {
		parentInode = parent.Inode()
	}

	return &Dir{
		inode:    inode,
		writable: false,
		state: mutableDir{
			parent:   parentInode,
			attr:     attr,
			children: make(map[string]*dirent),
		},
	}
}

// NewMappedDir creates a directory backed by underlyingPath. fi must be the
// stat data of that path and must describe a directory.
//
// fi is taken as an argument because callers have always just stat'ed the
// path to decide which kind of node to build.
func NewMappedDir(inode uint64, underlyingPath string, fi os.FileInfo, writable bool) (*Dir, error) {
	if !fi.IsDir() {
		return nil, newError(OpCreate, underlyingPath,
			fmt.Errorf("%w: cannot back a directory with %v", ErrInvalidPrecondition, fi.Mode().Type()))
	}

	return &Dir{
		inode:    inode,
		writable: writable,
		state: mutableDir{
			parent:         inode,
			underlyingPath: underlyingPath,
			attr:           AttrFromFileInfo(underlyingPath, inode, fi),
			children:       make(map[string]*dirent),
		},
	}, nil
}

// Inode implements Node.
func (d *Dir) Inode() uint64 {
	return d.inode
}

// Writable implements Node.
func (d *Dir) Writable() bool {
	return d.writable
}

// FileTypeCached implements Node. A Dir is always a directory.
func (d *Dir) FileTypeCached() FileType {
	return TypeDirectory
}

// IsScaffold reports whether the directory has no backing path.
func (d *Dir) IsScaffold() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.underlyingPath == ""
}

// newScaffoldChild creates the directory for an intermediate component of a
// mapping. If the host has a directory at the same location, the child is
// mapped to it; anything else on the host is clobbered by a scaffold. Probe
// errors are logged, never returned.
//
// The caller inserts the returned directory into its children.
func (d *Dir) newScaffoldChild(underlyingPath string, name string, ids *IDGenerator, now time.Time) *Dir {
	if underlyingPath != "" {
		childPath := filepath.Join(underlyingPath, name)
		fi, err := os.Lstat(childPath)
		switch {
		case err == nil && fi.IsDir():
			child, err := NewMappedDir(ids.Next(), childPath, fi, d.writable)
			if err == nil {
				return child
			}
			dirLogger.Warn("Mapping clobbers %s due to an error: %v", childPath, err)
		case err == nil:
			dirLogger.Info("Mapping clobbers non-directory %s with an immutable directory", childPath)
		case !errors.Is(err, fs.ErrNotExist):
			dirLogger.Warn("Mapping clobbers %s due to an error: %v", childPath, err)
		}
	}
	return NewScaffoldDir(ids.Next(), d, now)
}

// Map binds underlyingPath at the virtual location formed by components,
// relative to this directory. components must be non-empty plain names.
// Missing intermediate components are created as directories.
func (d *Dir) Map(components []string, underlyingPath string, writable bool, ids *IDGenerator, cache *Cache) error {
	if len(components) == 0 {
		return newError(OpMap, underlyingPath, fmt.Errorf("%w: empty path", ErrInvalidPrecondition))
	}
	name, remainder := components[0], components[1:]
	if !validName(name) {
		return newError(OpMap, name, fmt.Errorf("%w: invalid path component", ErrInvalidPrecondition))
	}

	d.mu.Lock()

	if de, ok := d.state.children[name]; ok {
		d.mu.Unlock()
		// Existing implicit entries are not promoted to explicit ones.
		child, isDir := de.node.(*Dir)
		if !isDir || len(remainder) == 0 {
			return newError(OpMap, name, ErrAlreadyMapped)
		}
		return child.Map(remainder, underlyingPath, writable, ids, cache)
	}

	var child Node
	if len(remainder) == 0 {
		fi, err := os.Lstat(underlyingPath)
		if err != nil {
			d.mu.Unlock()
			return newError(OpMap, underlyingPath, fmt.Errorf("stat failed: %w", err))
		}
		child, err = cache.GetOrCreate(ids, underlyingPath, fi, writable)
		if err != nil {
			d.mu.Unlock()
			return newError(OpMap, underlyingPath, err)
		}
	} else {
		child = d.newScaffoldChild(d.state.underlyingPath, name, ids, time.Now())
	}

	d.state.children[name] = &dirent{node: child, explicitMapping: true}
	d.mu.Unlock()

	if len(remainder) == 0 {
		dirLogger.Debug("Mapped %s as inode %d in directory %d", underlyingPath, child.Inode(), d.inode)
		return nil
	}
	return child.(*Dir).Map(remainder, underlyingPath, writable, ids, cache)
}

// GetAttr implements Node.
func (d *Dir) GetAttr() (Attr, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	path := d.state.underlyingPath
	if path == "" {
		return d.state.attr, nil
	}

	fi, err := os.Lstat(path)
	if err != nil {
		return Attr{}, err
	}
	if !fi.IsDir() {
		dirLogger.Warn("Path %s backing a directory node is no longer a directory; got %v",
			path, fi.Mode().Type())
		return Attr{}, newError(OpGetattr, path, ErrTypeChanged)
	}
	d.state.attr = AttrFromFileInfo(path, d.inode, fi)
	return d.state.attr, nil
}

// SetAttr applies delta to the backing directory. Scaffolds are immutable.
func (d *Dir) SetAttr(delta *AttrDelta) (Attr, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state.underlyingPath == "" {
		return Attr{}, newError(OpSetattr, "", ErrPermission)
	}
	attr, err := setattr(d.state.underlyingPath, d.state.attr, delta)
	if err != nil {
		return Attr{}, err
	}
	d.state.attr = attr
	return attr, nil
}

// Lookup resolves name within this directory, returning the child and its
// fresh attributes. Unknown names are resolved against the host, if the
// directory is backed, and remembered as implicit entries.
func (d *Dir) Lookup(name string, ids *IDGenerator, cache *Cache) (Node, Attr, error) {
	d.mu.Lock()

	if de, ok := d.state.children[name]; ok {
		node := de.node
		d.mu.Unlock()
		attr, err := node.GetAttr()
		if err != nil {
			return nil, Attr{}, err
		}
		return node, attr, nil
	}
	defer d.mu.Unlock()

	if d.state.underlyingPath == "" {
		return nil, Attr{}, newError(OpLookup, name, ErrNotFound)
	}

	path := filepath.Join(d.state.underlyingPath, name)
	fi, err := os.Lstat(path)
	if err != nil {
		return nil, Attr{}, err
	}
	node, err := cache.GetOrCreate(ids, path, fi, d.writable)
	if err != nil {
		return nil, Attr{}, err
	}
	attr := AttrFromFileInfo(path, node.Inode(), fi)
	d.state.children[name] = &dirent{node: node, explicitMapping: false}
	return node, attr, nil
}

// ReadDir lists the directory into reply: "." and "..", then the explicit
// mappings, then the host contents not shadowed by an explicit mapping.
// Offsets start at 0 and increase by one per entry.
//
// Host entries are remembered as implicit children. Entries that disappear
// from the host are not evicted; a later lookup of them fails on stat.
func (d *Dir) ReadDir(ids *IDGenerator, cache *Cache, reply ReaddirReply) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	reply.Add(d.inode, 0, TypeDirectory, ".")
	reply.Add(d.state.parent, 1, TypeDirectory, "..")
	offset := int64(2)

	for _, name := range d.explicitNamesLocked() {
		de := d.state.children[name]
		reply.Add(de.node.Inode(), offset, de.node.FileTypeCached(), name)
		offset++
	}

	underlyingPath := d.state.underlyingPath
	if underlyingPath == "" {
		return nil
	}

	entries, err := os.ReadDir(underlyingPath)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		name := entry.Name()
		if de, ok := d.state.children[name]; ok && de.explicitMapping {
			continue
		}

		path := filepath.Join(underlyingPath, name)
		fi, err := entry.Info()
		if err != nil {
			return err
		}
		child, err := cache.GetOrCreate(ids, path, fi, d.writable)
		if err != nil {
			return err
		}

		reply.Add(child.Inode(), offset, FileTypeFromMode(path, fi.Mode()), name)
		d.state.children[name] = &dirent{node: child, explicitMapping: false}
		offset++
	}
	return nil
}

// Remove unlinks (or, if isDir, removes the directory) name from the host
// directory backing this one and forgets about it. Explicit mappings and
// entries of read-only directories cannot be removed.
func (d *Dir) Remove(name string, isDir bool, cache *Cache) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	de, known := d.state.children[name]
	if known && de.explicitMapping {
		return newError(OpRemove, name, ErrPermission)
	}
	if d.state.underlyingPath == "" {
		return newError(OpRemove, name, ErrNotFound)
	}
	if !d.writable {
		return newError(OpRemove, name, ErrPermission)
	}

	path := filepath.Join(d.state.underlyingPath, name)
	var err error
	if isDir {
		err = unix.Rmdir(path)
	} else {
		err = unix.Unlink(path)
	}
	if err != nil {
		return &os.PathError{Op: OpRemove, Path: path, Err: err}
	}

	var node Node
	if known {
		node = de.node
		delete(d.state.children, name)
	}
	if cached := cache.Delete(path); node == nil {
		node = cached
	}
	if deletable, ok := node.(interface{ Delete() error }); ok {
		if err := deletable.Delete(); err != nil {
			dirLogger.Warn("Removed %s but could not mark its node as deleted: %v", path, err)
		}
	}
	return nil
}

// explicitNamesLocked returns the names of explicit entries in sorted order.
func (d *Dir) explicitNamesLocked() []string {
	names := make([]string, 0, len(d.state.children))
	for name, de := range d.state.children {
		if de.explicitMapping {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".." && filepath.Base(name) == name && name != "/"
}

func safeIntToUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	return uint32(n)
}
