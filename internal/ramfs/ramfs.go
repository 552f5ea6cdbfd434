package ramfs

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrNotFound indicates a path with no node.
	ErrNotFound = errors.New("path not found")

	// ErrNotDir indicates a directory operation on a file.
	ErrNotDir = errors.New("not a directory")

	// ErrNotFile indicates a file operation on a directory.
	ErrNotFile = errors.New("not a file")

	// ErrExists indicates a node of the wrong kind already occupies the path.
	ErrExists = errors.New("path already exists")

	// ErrInvalidPath indicates a malformed path or a removal the tree cannot
	// honor (the root, or a non-empty directory).
	ErrInvalidPath = errors.New("invalid path")

	// ErrReadOnly indicates a mutation while the tree is mounted read-only.
	ErrReadOnly = errors.New("filesystem is read-only")
)

type node struct {
	name     string
	parent   *node
	children map[string]*node
	data     []byte
	dir      bool
}

// RamFS is an in-memory tree of directories and files with dirty tracking
// for the persistence log. All methods are safe for concurrent use.
type RamFS struct {
	mu        sync.RWMutex
	root      *node
	readOnly  bool
	dirtyPuts map[string]struct{}
	dirtyDels map[string]struct{}
}

// Stats summarizes tree contents.
type Stats struct {
	Dirs      int
	Files     int
	Bytes     int
	DirtyPuts int
	DirtyDels int
}

// New creates an empty tree holding only the root directory.
func New() *RamFS {
	return &RamFS{
		root: &node{
			name:     "/",
			children: make(map[string]*node),
			dir:      true,
		},
		dirtyPuts: make(map[string]struct{}),
		dirtyDels: make(map[string]struct{}),
	}
}

// SetReadOnly toggles the read-only mount mode. Replay application is not
// affected; user-facing mutations fail with ErrReadOnly while set.
func (fs *RamFS) SetReadOnly(ro bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.readOnly = ro
}

// IsReadOnly reports the mount mode.
func (fs *RamFS) IsReadOnly() bool {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.readOnly
}

// Exists reports whether the absolute path resolves.
func (fs *RamFS) Exists(absPath string) bool {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	_, err := fs.resolve(absPath)
	return err == nil
}

// IsDir reports whether the absolute path resolves to a directory.
func (fs *RamFS) IsDir(absPath string) bool {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	n, err := fs.resolve(absPath)
	return err == nil && n.dir
}

// MkdirP creates the directory and any missing parents. Existing directories
// along the way are left untouched, so repeated calls are no-ops.
func (fs *RamFS) MkdirP(absPath string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.readOnly {
		return ErrReadOnly
	}
	_, err := fs.mkdirChain(absPath, true)
	return err
}

// Touch ensures a file exists at the path, creating missing parent
// directories. Touching an existing file is a no-op; a directory at the path
// is ErrExists.
func (fs *RamFS) Touch(absPath string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.readOnly {
		return ErrReadOnly
	}
	_, err := fs.ensureFile(absPath, true)
	return err
}

// WriteAll replaces the file's contents, creating the file and missing
// parent directories as needed.
func (fs *RamFS) WriteAll(absPath string, data []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.readOnly {
		return ErrReadOnly
	}
	n, err := fs.ensureFile(absPath, true)
	if err != nil {
		return err
	}
	n.data = append(n.data[:0], data...)
	fs.markPut(absPath)
	return nil
}

// AppendAll appends to the file, creating it and missing parent directories
// as needed.
func (fs *RamFS) AppendAll(absPath string, data []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.readOnly {
		return ErrReadOnly
	}
	n, err := fs.ensureFile(absPath, true)
	if err != nil {
		return err
	}
	n.data = append(n.data, data...)
	fs.markPut(absPath)
	return nil
}

// ReadAll returns a copy of the file's contents.
func (fs *RamFS) ReadAll(absPath string) ([]byte, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	n, err := fs.resolve(absPath)
	if err != nil {
		return nil, err
	}
	if n.dir {
		return nil, ErrNotFile
	}
	out := make([]byte, len(n.data))
	copy(out, n.data)
	return out, nil
}

// Ls lists a directory's entries in lexical order.
func (fs *RamFS) Ls(absPath string) ([]string, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	n, err := fs.resolve(absPath)
	if err != nil {
		return nil, err
	}
	if !n.dir {
		return nil, ErrNotDir
	}
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Rm removes a file or an empty directory. The root and non-empty
// directories are refused with ErrInvalidPath.
func (fs *RamFS) Rm(absPath string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.readOnly {
		return ErrReadOnly
	}
	if err := fs.remove(absPath); err != nil {
		return err
	}
	fs.markDel(absPath)
	return nil
}

// TakeDirtySets returns the accumulated put and delete paths in lexical
// order and clears both sets. Sorted puts list parent directories before
// their children, so replay can apply them in order.
func (fs *RamFS) TakeDirtySets() (puts, dels []string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	puts = sortedKeys(fs.dirtyPuts)
	dels = sortedKeys(fs.dirtyDels)
	fs.dirtyPuts = make(map[string]struct{})
	fs.dirtyDels = make(map[string]struct{})
	return puts, dels
}

// RestoreDirty re-inserts paths whose records could not be written, so the
// next sync retries them.
func (fs *RamFS) RestoreDirty(puts, dels []string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for _, p := range puts {
		fs.dirtyPuts[p] = struct{}{}
	}
	for _, d := range dels {
		fs.dirtyDels[d] = struct{}{}
	}
}

// ApplyPut sets file contents during replay: parents are created and no
// dirty marks are recorded.
func (fs *RamFS) ApplyPut(absPath string, data []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	n, err := fs.ensureFile(absPath, false)
	if err != nil {
		return err
	}
	n.data = append(n.data[:0], data...)
	return nil
}

// ApplyMkdir creates a directory chain during replay without dirty marks.
func (fs *RamFS) ApplyMkdir(absPath string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	_, err := fs.mkdirChain(absPath, false)
	return err
}

// ApplyDel removes a path during replay. A path that is already gone is not
// an error.
func (fs *RamFS) ApplyDel(absPath string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	err := fs.remove(absPath)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// Walk visits every node below the root in depth-first lexical order. The
// callback receives a copy of file data.
func (fs *RamFS) Walk(fn func(path string, isDir bool, data []byte) error) error {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.walk(fs.root, "", fn)
}

func (fs *RamFS) walk(n *node, prefix string, fn func(string, bool, []byte) error) error {
	for _, name := range sortedChildren(n) {
		child := n.children[name]
		path := prefix + "/" + name
		var data []byte
		if !child.dir {
			data = make([]byte, len(child.data))
			copy(data, child.data)
		}
		if err := fn(path, child.dir, data); err != nil {
			return err
		}
		if child.dir {
			if err := fs.walk(child, path, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// GetStats counts tree contents and pending dirty work.
func (fs *RamFS) GetStats() Stats {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	var stats Stats
	var count func(*node)
	count = func(n *node) {
		for _, child := range n.children {
			if child.dir {
				stats.Dirs++
				count(child)
			} else {
				stats.Files++
				stats.Bytes += len(child.data)
			}
		}
	}
	count(fs.root)
	stats.DirtyPuts = len(fs.dirtyPuts)
	stats.DirtyDels = len(fs.dirtyDels)
	return stats
}

// ---- internals (callers hold fs.mu) ----

func (fs *RamFS) resolve(absPath string) (*node, error) {
	comps, err := splitAbs(absPath)
	if err != nil {
		return nil, err
	}
	cur := fs.root
	for _, name := range comps {
		if !cur.dir {
			return nil, ErrNotDir
		}
		next, ok := cur.children[name]
		if !ok {
			return nil, ErrNotFound
		}
		cur = next
	}
	return cur, nil
}

// mkdirChain creates every missing directory along the path, marking created
// ones dirty when requested, and returns the final directory node.
func (fs *RamFS) mkdirChain(absPath string, dirty bool) (*node, error) {
	comps, err := splitAbs(absPath)
	if err != nil {
		return nil, err
	}
	cur := fs.root
	walked := ""
	for _, name := range comps {
		if !cur.dir {
			return nil, ErrNotDir
		}
		walked += "/" + name
		next, ok := cur.children[name]
		if !ok {
			next = &node{
				name:     name,
				parent:   cur,
				children: make(map[string]*node),
				dir:      true,
			}
			cur.children[name] = next
			if dirty {
				fs.markPut(walked)
			}
		} else if !next.dir {
			return nil, ErrNotDir
		}
		cur = next
	}
	return cur, nil
}

// ensureFile resolves the path to a file node, creating it and any missing
// parent directories. A directory at the path is ErrExists.
func (fs *RamFS) ensureFile(absPath string, dirty bool) (*node, error) {
	parentPath, leaf, err := parentLeaf(absPath)
	if err != nil {
		return nil, err
	}
	parent, err := fs.mkdirChain(parentPath, dirty)
	if err != nil {
		return nil, err
	}
	if existing, ok := parent.children[leaf]; ok {
		if existing.dir {
			return nil, ErrExists
		}
		return existing, nil
	}
	n := &node{
		name:   leaf,
		parent: parent,
	}
	parent.children[leaf] = n
	if dirty {
		fs.markPut(absPath)
	}
	return n, nil
}

func (fs *RamFS) remove(absPath string) error {
	if absPath == "/" {
		return ErrInvalidPath
	}
	n, err := fs.resolve(absPath)
	if err != nil {
		return err
	}
	if n.dir && len(n.children) > 0 {
		return ErrInvalidPath
	}
	delete(n.parent.children, n.name)
	return nil
}

func (fs *RamFS) markPut(absPath string) {
	if absPath == "/" || !strings.HasPrefix(absPath, "/") {
		return
	}
	fs.dirtyPuts[absPath] = struct{}{}
	delete(fs.dirtyDels, absPath)
}

func (fs *RamFS) markDel(absPath string) {
	if absPath == "/" || !strings.HasPrefix(absPath, "/") {
		return
	}
	fs.dirtyDels[absPath] = struct{}{}
	delete(fs.dirtyPuts, absPath)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedChildren(n *node) []string {
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
