package inode

import (
	"fmt"
	"sync"
	"time"

	"github.com/cloudmount/s3fuse/clock"
)

// DefaultFileMode and DefaultDirMode are used when configuration supplies
// -1 ("use built-in default").
const (
	DefaultFileMode uint32 = 0644
	DefaultDirMode  uint32 = 0755
)

// Tree owns the root Entry, the process-wide Index, the inode allocator, and
// the default mode configuration.
//
// Concurrency: a single mutex spans every Orchestrator entry point and
// every HTTP completion callback. Tree provides exactly that mutex via
// Lock/Unlock. Most exported methods here require the caller to hold it
// (each says so); IncWriteOps, DecWriteOps, CurrentWriteOps and Forget
// take it themselves. Orchestrator code (package fs) also holds it around
// any local mutation it performs directly on an Entry.
type Tree struct {
	mu sync.Mutex

	root    *Entry
	idx     *index
	maxIno  uint64
	fmode   uint32
	dmode   uint32
	clock   clock.Clock

	// currentWriteOps counts outstanding writes, for graceful shutdown.
	currentWriteOps int64
}

// Config supplies the Tree's default-mode configuration
// (filesystem.file_mode, filesystem.dir_mode; -1 means "use built-in
// default").
type Config struct {
	FileMode int32
	DirMode  int32
}

// NewTree constructs a Tree with only the root Entry present.
func NewTree(cfg Config, clk clock.Clock) *Tree {
	fmode := DefaultFileMode
	if cfg.FileMode >= 0 {
		fmode = uint32(cfg.FileMode)
	}
	dmode := DefaultDirMode
	if cfg.DirMode >= 0 {
		dmode = uint32(cfg.DirMode)
	}

	t := &Tree{
		idx:    newIndex(),
		maxIno: RootInode + 1,
		fmode:  fmode,
		dmode:  dmode,
		clock:  clk,
	}

	now := clk.Now()
	t.root = &Entry{
		Ino:        RootInode,
		ParentIno:  0,
		Basename:   "",
		Fullpath:   "",
		Type:       TypeDirectory,
		Mode:       dmode, // file-type bit composition happens in the fs layer
		Children:   make(map[string]*Entry),
		AccessTime: now,
	}
	t.idx.insert(t.root)

	return t
}

// FileMode and DirMode expose the resolved default modes.
func (t *Tree) FileMode() uint32 { return t.fmode }
func (t *Tree) DirMode() uint32  { return t.dmode }

// Lock/Unlock expose the Tree-wide mutex for Orchestrator code (package fs)
// that needs to hold it across a compound read-then-mutate sequence beyond
// what a single Tree method provides. Every suspension point must release
// this lock before awaiting and re-resolve state after reacquiring it;
// Tree methods never hold the lock across a channel receive or network
// call.
func (t *Tree) Lock()   { t.mu.Lock() }
func (t *Tree) Unlock() { t.mu.Unlock() }

// Root returns the root Entry. Caller must hold the Tree lock.
func (t *Tree) Root() *Entry { return t.root }

// Get resolves ino through the Index. Caller must hold the Tree lock.
func (t *Tree) Get(ino uint64) (*Entry, bool) {
	return t.idx.lookup(ino)
}

// InodeCount reports the number of live Entries (for get_inode_count
// stats). Caller must hold the Tree lock.
func (t *Tree) InodeCount() int {
	return t.idx.count()
}

// IncWriteOps / DecWriteOps track the current_write_ops counter.
func (t *Tree) IncWriteOps() {
	t.mu.Lock()
	t.currentWriteOps++
	t.mu.Unlock()
}

func (t *Tree) DecWriteOps() {
	t.mu.Lock()
	t.currentWriteOps--
	t.mu.Unlock()
}

func (t *Tree) CurrentWriteOps() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentWriteOps
}

// ErrTypeMismatch is returned by AddEntry when an existing child has the
// same basename but a different Type: type-change through creation is
// forbidden.
var ErrTypeMismatch = fmt.Errorf("existing entry has a different type")

// ErrParentNotFound is returned when parentIno does not resolve to a live
// Directory Entry.
var ErrParentNotFound = fmt.Errorf("parent inode not found")

// ErrNotDirectory is returned when an operation expecting a Directory
// Entry is given a File.
var ErrNotDirectory = fmt.Errorf("entry is not a directory")

// AddEntry inserts a new child Entry under parentIno. Caller must hold the
// Tree lock.
func (t *Tree) AddEntry(parentIno uint64, basename string, mode uint32, typ Type, size uint64, ctime time.Time) (*Entry, error) {
	var parent *Entry
	if parentIno != 0 {
		var ok bool
		parent, ok = t.idx.lookup(parentIno)
		if !ok {
			return nil, ErrParentNotFound
		}
		if !parent.IsDir() {
			return nil, ErrNotDirectory
		}
	} else {
		parent = t.root
	}

	if existing, ok := parent.Children[basename]; ok && existing.Type != typ {
		return nil, ErrTypeMismatch
	}

	// Invalidate parent's directory-listing cache.
	t.invalidateDirCache(parent)

	fullpath := basename
	if parent.Ino != RootInode {
		fullpath = parent.Fullpath + "/" + basename
	}

	ino := t.maxIno
	t.maxIno++

	now := t.clock.Now()
	e := newEntry(ino, parent.Ino, basename, fullpath, typ, mode, size, ctime, now, parent.Age)

	t.idx.insert(e)
	parent.Children[basename] = e

	// Re-invalidate (defensive, in case AddEntry is ever reordered above).
	t.invalidateDirCache(parent)

	return e, nil
}

// ReviveChild reuses an existing, tombstoned child instead of allocating a
// new inode: clears Removed, refreshes AccessTime, sets Age to the
// parent's current Age, and invalidates the parent's listing cache.
// Callers resolve the existing child themselves (via parent.Children);
// AddEntry only ever allocates a fresh Entry. Caller must hold the Tree
// lock.
func (t *Tree) ReviveChild(parent *Entry, child *Entry) {
	child.Removed = false
	child.AccessTime = t.clock.Now()
	child.Age = parent.Age
	t.invalidateDirCache(parent)
}

// EntryModified drops the cached directory listing of e if e is a
// Directory, or of e's parent Directory if e is a File. It does not set
// IsModified. Caller must hold the Tree lock.
func (t *Tree) EntryModified(e *Entry) {
	if e.IsDir() {
		t.invalidateDirCache(e)
		return
	}
	if parent, ok := t.idx.lookup(e.ParentIno); ok {
		t.EntryModified(parent)
	}
}

// invalidateDirCache drops a Directory's serialized listing buffer without
// resetting DirCacheCreated, which rate-limits refreshes.
func (t *Tree) invalidateDirCache(d *Entry) {
	if !d.IsDir() {
		return
	}
	d.DirCache = nil
	d.DirCacheSize = 0
}

// RemoveSubtree destroys e and, if it is a Directory, every descendant
// (post-order). It detaches e from its parent's Children map and from the
// Index. Caller must hold the Tree lock.
func (t *Tree) RemoveSubtree(e *Entry) {
	if e.IsDir() {
		for _, child := range e.Children {
			t.RemoveSubtree(child)
		}
	}
	if parent, ok := t.idx.lookup(e.ParentIno); ok && parent.Children != nil {
		delete(parent.Children, e.Basename)
	}
	t.idx.remove(e.Ino)
}

// Forget applies the kernel's FUSE lookup-count decrement to e, destroying
// (removing from the Index) the Entry if the count reaches zero and it has
// already been unlinked from its parent (Removed == true). A live,
// not-yet-removed Entry that hits a zero lookup count is left indexed;
// inodes are reclaimed on removal, not on forget, so ino values are never
// reused, and index/tree consistency is governed by the parent's children
// map rather than by the lookup count.
func (t *Tree) Forget(ino uint64, n uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.idx.lookup(ino)
	if !ok {
		return
	}
	reachedZero := e.lookups.Dec(n)
	if reachedZero && e.Removed {
		t.idx.remove(ino)
	}
}

// RegisterLookup increments the kernel lookup count for e, to be called
// whenever a lookup/create/mkdir/symlink reply hands the kernel a fresh
// reference to this inode.
func (t *Tree) RegisterLookup(e *Entry) {
	e.lookups.Inc()
}
