package fs

import (
	"context"

	"github.com/cloudmount/s3fuse/fserrors"
)

// Stats is a snapshot of aggregate counters an operator or health check
// can poll without scraping the metrics exporter.
type Stats struct {
	InodeCount      int
	CurrentWriteOps int64
}

// GetStats returns the current inode count and in-flight write op count.
func (fs *FileSystem) GetStats(ctx context.Context) Stats {
	fs.tree.Lock()
	inodes := fs.tree.InodeCount()
	fs.tree.Unlock()
	return Stats{
		InodeCount:      inodes,
		CurrentWriteOps: fs.tree.CurrentWriteOps(),
	}
}

// GetInodeCount returns the number of live Entries.
func (fs *FileSystem) GetInodeCount(ctx context.Context) int {
	fs.tree.Lock()
	defer fs.tree.Unlock()
	return fs.tree.InodeCount()
}

// SetEntryExist is a test/operator hook to force an Entry's tombstone
// state directly, bypassing a HEAD round-trip.
func (fs *FileSystem) SetEntryExist(ino uint64, exists bool) bool {
	fs.tree.Lock()
	defer fs.tree.Unlock()
	e, ok := fs.tree.Get(ino)
	if !ok {
		return false
	}
	e.Removed = !exists
	return true
}

// GetAttr returns the cached attributes for ino without resolving a name.
func (fs *FileSystem) GetAttr(ctx context.Context, ino uint64) (Attr, error) {
	fs.tree.Lock()
	defer fs.tree.Unlock()
	e, ok := fs.tree.Get(ino)
	if !ok {
		return Attr{}, fserrors.Structural("getattr", errNotFound)
	}
	return fs.attrOf(e), nil
}

// SetAttr applies a setattr request: only size truncation and mode
// changes are meaningful for an object-store-backed file; mtime/atime are
// accepted but not separately persisted (the backend tracks its own
// Last-Modified).
func (fs *FileSystem) SetAttr(ctx context.Context, ino uint64, size *uint64, mode *uint32) (Attr, error) {
	fs.tree.Lock()
	defer fs.tree.Unlock()
	e, ok := fs.tree.Get(ino)
	if !ok {
		return Attr{}, fserrors.Structural("setattr", errNotFound)
	}
	if size != nil {
		e.Size = *size
		e.IsModified = true
		fs.tree.EntryModified(e)
	}
	if mode != nil {
		e.Mode = *mode
	}
	return fs.attrOf(e), nil
}
