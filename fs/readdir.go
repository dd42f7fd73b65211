package fs

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudmount/s3fuse/backend"
	"github.com/cloudmount/s3fuse/fs/inode"
	"github.com/cloudmount/s3fuse/fserrors"
)

// errNoSnapshot is returned when a readdir call with off > 0 cannot be
// served from a per-open snapshot: the kernel is continuing a previous
// listing, and a fresh backend refresh at this point would silently
// splice two different snapshots together.
var errNoSnapshot = fmt.Errorf("no directory snapshot available for this offset")

// dirHandle is the per-open directory state: a snapshot of the owning
// Directory's assembled DirCache buffer, sliced out on each ReadDir call
// by offset. Rather than paginating with a listing token, the whole
// buffer is assembled up front by Tree.AssembleDirCache and this handle
// only walks it.
type dirHandle struct {
	mu  sync.Mutex
	ino uint64
	buf []byte
}

// OpenDir allocates a handle; the buffer itself is populated lazily on
// the first ReadDir.
func (fs *FileSystem) OpenDir(ctx context.Context, ino uint64) (uint64, error) {
	fs.tree.Lock()
	_, ok := fs.tree.Get(ino)
	fs.tree.Unlock()
	if !ok {
		return 0, fserrors.Structural("opendir", errNotFound)
	}

	h := fs.allocHandle()
	fs.handlesMu.Lock()
	fs.dirHandles[h] = &dirHandle{ino: ino}
	fs.handlesMu.Unlock()
	return h, nil
}

// ReleaseDir drops the per-open state.
func (fs *FileSystem) ReleaseDir(ctx context.Context, handle uint64) error {
	fs.handlesMu.Lock()
	delete(fs.dirHandles, handle)
	fs.handlesMu.Unlock()
	return nil
}

// Readdir refreshes the directory's listing if its cache is expired
// (bounded to a single in-flight refresh via
// DirCacheUpdating), assemble the opaque dirent buffer if not already
// current, then serve size bytes starting at off out of it.
//
// off > 0 means the kernel is paging through a buffer it was already
// handed: that call is served strictly from the per-open dirHandle
// snapshot taken by the off == 0 call, never from a fresh refresh, so a
// concurrent listing change can't splice two snapshots together mid-page.
// It fails if no such snapshot exists.
//
// handle may be nil (used internally by lookup's forced-refresh path,
// which does not need the returned bytes); off must be 0 in that case.
func (fs *FileSystem) Readdir(ctx context.Context, ino uint64, size int, off int64, handle *uint64) ([]byte, error) {
	if off > 0 {
		if handle == nil {
			return nil, fserrors.Structural("readdir", errNoSnapshot)
		}
		fs.handlesMu.Lock()
		dh := fs.dirHandles[*handle]
		fs.handlesMu.Unlock()
		if dh == nil {
			return nil, fserrors.Structural("readdir", errNoSnapshot)
		}
		dh.mu.Lock()
		buf := dh.buf
		dh.mu.Unlock()
		if buf == nil {
			return nil, fserrors.Structural("readdir", errNoSnapshot)
		}
		return sliceDirents(buf, off, size), nil
	}

	fs.tree.Lock()
	d, ok := fs.tree.Get(ino)
	if !ok || !d.IsDir() {
		fs.tree.Unlock()
		return nil, fserrors.Structural("readdir", errNotFound)
	}

	maxAge := fs.cfg.Filesystem.DirCacheMaxTime
	needsRefresh := d.DirCacheExpired(fs.clock.Now(), maxAge) && !d.DirCacheUpdating
	if needsRefresh {
		d.DirCacheUpdating = true
	}
	fs.tree.Unlock()

	if needsRefresh {
		if err := fs.refreshListing(ctx, ino); err != nil {
			return nil, err
		}
	} else if fs.metrics != nil {
		fs.metrics.RecordDirCacheHit()
	}

	fs.tree.Lock()
	d, ok = fs.tree.Get(ino)
	if !ok {
		fs.tree.Unlock()
		return nil, fserrors.Structural("readdir", errNotFound)
	}
	if d.DirCacheSize == 0 {
		fs.tree.AssembleDirCache(d)
	}
	buf := d.DirCache
	fs.tree.Unlock()

	if handle != nil {
		fs.handlesMu.Lock()
		dh := fs.dirHandles[*handle]
		fs.handlesMu.Unlock()
		if dh != nil {
			dh.mu.Lock()
			dh.buf = buf
			dh.mu.Unlock()
		}
	}

	return sliceDirents(buf, off, size), nil
}

func sliceDirents(buf []byte, off int64, size int) []byte {
	if off < 0 || int(off) >= len(buf) {
		return nil
	}
	end := int(off) + size
	if end > len(buf) {
		end = len(buf)
	}
	return buf[off:end]
}

// refreshListing fetches the remote listing, folds each row in via
// StartUpdate/UpdateEntry/StopUpdate, then invalidates the now-stale
// serialized buffer so the next caller reassembles it.
func (fs *FileSystem) refreshListing(ctx context.Context, ino uint64) error {
	fs.tree.Lock()
	d, ok := fs.tree.Get(ino)
	if !ok {
		fs.tree.Unlock()
		return fserrors.Structural("readdir", errNotFound)
	}
	fullpath := d.Fullpath
	fs.tree.StartUpdate(d)
	fs.tree.Unlock()

	client, err := fs.acquireClient()
	if err != nil {
		fs.clearDirUpdating(ino)
		return err
	}
	rows, listErr := backend.FetchListing(ctx, client, fullpath)
	client.Release()
	if fs.metrics != nil {
		fs.metrics.RecordListing()
	}

	fs.tree.Lock()
	defer fs.tree.Unlock()

	d, ok = fs.tree.Get(ino)
	if !ok {
		return fserrors.Structural("readdir", errNotFound)
	}

	if listErr != nil {
		d.DirCacheUpdating = false
		return fserrors.Backend("readdir", listErr)
	}

	for _, row := range rows {
		typ := inode.TypeFile
		if row.IsDir {
			typ = inode.TypeDirectory
		}
		if _, err := fs.tree.UpdateEntry(d, inode.ListingRow{
			Basename: row.Basename,
			Type:     typ,
			Size:     row.Size,
			Mtime:    row.Mtime,
		}); err != nil {
			continue
		}
	}

	fs.tree.StopUpdate(d, fs.cfg.Filesystem.DirCacheMaxTime)
	d.DirCache = nil
	d.DirCacheSize = 0
	return nil
}

func (fs *FileSystem) clearDirUpdating(ino uint64) {
	fs.tree.Lock()
	if d, ok := fs.tree.Get(ino); ok {
		d.DirCacheUpdating = false
	}
	fs.tree.Unlock()
}
