package fs

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"syscall"
	"time"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"

	"sandboxfs/internal/logging"
	"sandboxfs/internal/nodes"
)

var (
	vfsLogger = logging.GetLogger().WithPrefix("vfs")
)

// DefaultAttrTTL is how long the kernel may cache attributes and entries.
const DefaultAttrTTL = time.Minute

// SandboxFS is the mounted file system: a node tree rooted at a scaffold or
// mapped directory, plus the allocator and cache shared by all nodes.
type SandboxFS struct {
	ids   *nodes.IDGenerator
	cache *nodes.Cache
	root  *nodes.Dir
	ttl   time.Duration
	onMap func(Mapping) error

	mu       sync.Mutex
	mappings []Mapping
	wrappers map[nodes.Node]fusefs.Node

	conn *fuse.Conn
}

// Option configures a SandboxFS.
type Option func(*SandboxFS)

// WithAttrTTL sets how long the kernel may cache attributes.
func WithAttrTTL(ttl time.Duration) Option {
	return func(sfs *SandboxFS) {
		sfs.ttl = ttl
	}
}

// WithMapHook registers a function called after every successful live
// mapping. An error from the hook is reported to the caller of Map but does
// not undo the mapping.
func WithMapHook(hook func(Mapping) error) Option {
	return func(sfs *SandboxFS) {
		sfs.onMap = hook
	}
}

// NewSandboxFS builds the node tree for the given mount-time mappings.
//
// A mapping of "/" makes the root a mapped directory. The remaining mappings
// are applied shallowest first so that parents exist before their children.
func NewSandboxFS(mappings []Mapping, opts ...Option) (*SandboxFS, error) {
	vfsLogger.Info("Creating sandbox with %d mappings", len(mappings))

	sfs := &SandboxFS{
		ids:      nodes.NewIDGenerator(uint64(fuse.RootID)),
		cache:    nodes.NewCache(),
		ttl:      DefaultAttrTTL,
		wrappers: make(map[nodes.Node]fusefs.Node),
	}
	for _, opt := range opts {
		opt(sfs)
	}

	type parsed struct {
		mapping Mapping
		path    *VirtualPath
	}
	var rest []parsed
	seen := make(map[string]bool)
	var rootMapping *Mapping
	for i := range mappings {
		m := mappings[i]
		vp, err := m.Validate()
		if err != nil {
			return nil, err
		}
		if seen[vp.String()] {
			return nil, fmt.Errorf("%w: %s mapped more than once", nodes.ErrAlreadyMapped, vp)
		}
		seen[vp.String()] = true
		if vp.IsRoot() {
			rootMapping = &m
			continue
		}
		rest = append(rest, parsed{mapping: m, path: vp})
	}

	if rootMapping != nil {
		root, err := sfs.newMappedRoot(*rootMapping)
		if err != nil {
			return nil, err
		}
		sfs.root = root
		sfs.mappings = append(sfs.mappings, *rootMapping)
	} else {
		sfs.root = nodes.NewScaffoldDir(sfs.ids.Next(), nil, time.Now())
	}

	sort.SliceStable(rest, func(i, j int) bool {
		return len(rest[i].path.Components()) < len(rest[j].path.Components())
	})
	for _, p := range rest {
		if err := sfs.apply(p.mapping, p.path); err != nil {
			return nil, err
		}
	}

	vfsLogger.Info("Sandbox created successfully with %d host paths in use", sfs.cache.Len())
	return sfs, nil
}

func (sfs *SandboxFS) newMappedRoot(m Mapping) (*nodes.Dir, error) {
	fi, err := os.Lstat(m.UnderlyingPath)
	if err != nil {
		return nil, fmt.Errorf("cannot map root: %w", err)
	}
	node, err := sfs.cache.GetOrCreate(sfs.ids, m.UnderlyingPath, fi, m.Writable)
	if err != nil {
		return nil, err
	}
	root, ok := node.(*nodes.Dir)
	if !ok {
		return nil, fmt.Errorf("%w: root must be mapped to a directory, %s is a %v",
			nodes.ErrInvalidPrecondition, m.UnderlyingPath, node.FileTypeCached())
	}
	return root, nil
}

func (sfs *SandboxFS) apply(m Mapping, vp *VirtualPath) error {
	if vp.IsRoot() {
		return &nodes.Error{Op: nodes.OpMap, Path: vp.String(), Err: nodes.ErrAlreadyMapped}
	}
	if err := sfs.root.Map(vp.Components(), m.UnderlyingPath, m.Writable, sfs.ids, sfs.cache); err != nil {
		vfsLogger.Warn("Mapping %s failed: %v", m, err)
		return err
	}

	sfs.mu.Lock()
	sfs.mappings = append(sfs.mappings, m)
	sfs.mu.Unlock()
	vfsLogger.Info("Mapped %s", m)
	return nil
}

// Map adds a mapping to the live file system.
func (sfs *SandboxFS) Map(m Mapping) error {
	vp, err := m.Validate()
	if err != nil {
		return err
	}
	if err := sfs.apply(m, vp); err != nil {
		return err
	}
	if sfs.onMap != nil {
		if err := sfs.onMap(m); err != nil {
			return fmt.Errorf("mapping %s applied but not recorded: %w", m, err)
		}
	}
	return nil
}

// Mappings returns the mappings applied so far, in application order.
func (sfs *SandboxFS) Mappings() []Mapping {
	sfs.mu.Lock()
	defer sfs.mu.Unlock()
	return append([]Mapping(nil), sfs.mappings...)
}

// Root implements the fusefs.FS interface, returning the root directory node.
func (sfs *SandboxFS) Root() (fusefs.Node, error) {
	vfsLogger.Trace("Getting root directory node")
	return sfs.wrap(sfs.root)
}

// wrap returns the bazil node for n, reusing the one handed out before so
// that the kernel sees a stable node per inode.
func (sfs *SandboxFS) wrap(n nodes.Node) (fusefs.Node, error) {
	sfs.mu.Lock()
	defer sfs.mu.Unlock()

	if w, ok := sfs.wrappers[n]; ok {
		return w, nil
	}
	var w fusefs.Node
	switch node := n.(type) {
	case *nodes.Dir:
		w = &Dir{fs: sfs, node: node}
	case *nodes.File:
		w = &File{fs: sfs, node: node}
	case *nodes.Symlink:
		w = &Symlink{fs: sfs, node: node}
	default:
		vfsLogger.Error("Node %d has unsupported type %T", n.Inode(), n)
		return nil, fuse.Errno(syscall.EIO)
	}
	sfs.wrappers[n] = w
	return w, nil
}

// Mount mounts the file system at mountPoint. Serve must be called
// afterwards to process requests.
func (sfs *SandboxFS) Mount(mountPoint string, allowOther bool) error {
	vfsLogger.Info("Mounting sandbox at %s", mountPoint)

	mountOpts := []fuse.MountOption{
		fuse.FSName("sandboxfs"),
		fuse.Subtype("sandboxfs"),
		fuse.DefaultPermissions(),
		fuse.AsyncRead(),
	}
	if allowOther {
		mountOpts = append(mountOpts, fuse.AllowOther())
	}

	c, err := fuse.Mount(mountPoint, mountOpts...)
	if err != nil {
		return fmt.Errorf("mount failed: %w", err)
	}
	sfs.conn = c
	return nil
}

// Serve processes kernel requests until the file system is unmounted.
func (sfs *SandboxFS) Serve() error {
	if sfs.conn == nil {
		return fmt.Errorf("%w: not mounted", nodes.ErrInvalidPrecondition)
	}
	defer sfs.conn.Close()

	vfsLogger.Info("Serving filesystem")
	if err := fusefs.Serve(sfs.conn, sfs); err != nil {
		return fmt.Errorf("serve failed: %w", err)
	}
	vfsLogger.Debug("FUSE server stopped")
	return nil
}

// Unmount cleanly unmounts the filesystem.
func (sfs *SandboxFS) Unmount(mountPoint string) error {
	vfsLogger.Info("Unmounting filesystem from: %s", mountPoint)
	if sfs.conn == nil {
		return nil
	}
	if err := fuse.Unmount(mountPoint); err != nil {
		vfsLogger.Error("Unmount failed: %v", err)
		return err
	}
	vfsLogger.Info("Unmount completed successfully")
	return nil
}
