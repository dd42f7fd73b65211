// Package inode implements the in-memory, inode-indexed representation of
// the remote object-store namespace: Entry records, the process-wide Index,
// the owning Tree, the age-based staleness Reconciler, and the directory
// buffer Assembler.
package inode

import (
	"time"
)

// RootInode is the fixed, reserved inode number of the filesystem root.
const RootInode = 1

// Type distinguishes the two kinds of Entry. Symlinks are Files carrying
// the symlink mode bit, not a distinct Type.
type Type int

const (
	TypeFile Type = iota
	TypeDirectory
)

// Xattr holds the backend-mirrored extended attribute strings for an Entry.
// Values are decoded at use, not at ingest; only these opaque strings are
// cached.
type Xattr struct {
	ETag        string
	VersionID   string
	ContentType string
}

// Entry represents one object in the namespace: a file, a directory, or a
// symlink (a File with the symlink mode bit set).
//
// Every field access must happen with the owning Tree's mutex held; Entry
// carries no lock of its own (see Tree for the concurrency discipline).
type Entry struct {
	Ino       uint64
	ParentIno uint64
	Basename  string
	Fullpath  string
	Type      Type
	Mode      uint32

	Size  uint64
	Ctime time.Time

	// Age is the generation counter compared against the owning
	// directory's Age to detect staleness after a listing refresh.
	Age uint64

	Removed    bool
	IsModified bool
	IsUpdating bool

	AccessTime  time.Time
	UpdatedTime time.Time
	XattrTime   time.Time

	Xattr Xattr

	// Directory-only fields. Children is nil for a File.
	Children         map[string]*Entry
	DirCache         []byte
	DirCacheSize     int
	DirCacheCreated  time.Time
	DirCacheUpdating bool

	// lookups tracks the kernel's FUSE lookup-count protocol (see
	// lookup_count.go); it is not part of the conceptual namespace model,
	// but every FUSE adapter requires it to know when an inode may be
	// destroyed.
	lookups lookupCount
}

// IsDir reports whether this Entry is a directory.
func (e *Entry) IsDir() bool { return e.Type == TypeDirectory }

// newEntry allocates an Entry in its default, freshly-born state. Callers
// (Tree.AddEntry) are responsible for inserting it into the Index and into
// its parent's Children map under the Tree's mutex.
func newEntry(ino, parentIno uint64, basename, fullpath string, typ Type, mode uint32, size uint64, ctime, now time.Time, age uint64) *Entry {
	e := &Entry{
		Ino:        ino,
		ParentIno:  parentIno,
		Basename:   basename,
		Fullpath:   fullpath,
		Type:       typ,
		Mode:       mode,
		Size:       size,
		Ctime:      ctime,
		Age:        age,
		AccessTime: now,
	}
	if typ == TypeDirectory {
		e.Children = make(map[string]*Entry)
	}
	return e
}

// DirCacheExpired reports whether the Directory's cached listing buffer
// must be refreshed before it can satisfy a readdir. The cache is fresh
// iff it is non-empty, not older than maxAge, and no local modification
// has invalidated it.
func (e *Entry) DirCacheExpired(now time.Time, maxAge time.Duration) bool {
	if e.DirCacheSize <= 0 {
		return true
	}
	if e.IsModified {
		return true
	}
	return now.Sub(e.DirCacheCreated) > maxAge
}

// IsNegativeCacheValid reports whether a tombstone Entry (Removed == true)
// is still within its negative-lookup TTL window (see DESIGN.md for the
// "OR of two windows" reduction this single comparison stands in for).
func (e *Entry) IsNegativeCacheValid(now time.Time, fileCacheMaxTime time.Duration) bool {
	return e.Removed && now.Sub(e.AccessTime) < fileCacheMaxTime
}

// xattrStale reports whether the cached extended attributes are old enough
// to require a HEAD refresh before answering getxattr.
func (e *Entry) xattrStale(now time.Time, dirCacheMaxTime time.Duration) bool {
	return now.Sub(e.XattrTime) >= dirCacheMaxTime
}
