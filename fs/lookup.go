package fs

import (
	"context"
	"time"

	"github.com/cloudmount/s3fuse/backend"
	"github.com/cloudmount/s3fuse/fs/inode"
	"github.com/cloudmount/s3fuse/fserrors"
)

// Lookup resolves name within parentIno, refreshing the parent's listing
// first if its cache is expired, then either serving from the cached
// child or issuing a HEAD to resolve a miss.
func (fs *FileSystem) Lookup(ctx context.Context, parentIno uint64, name string) (Attr, error) {
	start := fs.clock.Now()
	var err error
	defer func() { fs.recordOp("lookup", start, err) }()

	attr, rerr := fs.lookupOnce(ctx, parentIno, name, false)
	err = rerr
	return attr, rerr
}

// lookupOnce is Lookup's body, with refreshed indicating this is the
// bounded single re-entrant call after a forced readdir refresh:
// re-entrancy is limited to exactly one retry.
func (fs *FileSystem) lookupOnce(ctx context.Context, parentIno uint64, name string, refreshed bool) (Attr, error) {
	fs.tree.Lock()
	parent, ok := fs.tree.Get(parentIno)
	if !ok || !parent.IsDir() {
		fs.tree.Unlock()
		return Attr{}, fserrors.Structural("lookup", errNotFound)
	}

	maxAge := fs.cfg.Filesystem.DirCacheMaxTime
	if !refreshed && parent.DirCacheExpired(fs.clock.Now(), maxAge) && !parent.DirCacheUpdating {
		fs.tree.Unlock()
		if _, err := fs.Readdir(ctx, parentIno, 0, 0, nil); err != nil {
			return Attr{}, err
		}
		return fs.lookupOnce(ctx, parentIno, name, true)
	}

	child, exists := parent.Children[name]
	if !exists {
		fs.tree.Unlock()
		return fs.lookupMiss(ctx, parent, name)
	}

	now := fs.clock.Now()
	fileCacheMaxTime := fs.cfg.Filesystem.FileCacheMaxTime
	if child.IsNegativeCacheValid(now, fileCacheMaxTime) {
		fs.tree.Unlock()
		return Attr{}, fserrors.Structural("lookup", errNotFound)
	}

	child.AccessTime = now
	needsHead := false
	if child.IsModified && !child.IsUpdating && child.Type == inode.TypeFile {
		needsHead = true
	} else if !child.IsUpdating && child.Type == inode.TypeFile &&
		now.Sub(child.UpdatedTime) > maxAge &&
		((fs.cfg.S3.CheckEmptyFiles && child.Size == 0) || fs.cfg.S3.ForceHeadRequestsOnLookup) {
		needsHead = true
	}

	if !needsHead {
		attr := fs.attrOf(child)
		fs.tree.RegisterLookup(child)
		fs.tree.Unlock()
		return attr, nil
	}

	child.IsUpdating = true
	fullpath := child.Fullpath
	ino := child.Ino
	fs.tree.Unlock()

	attr, err := fs.refreshViaHead(ctx, ino, fullpath)
	fs.tree.Lock()
	if c, ok := fs.tree.Get(ino); ok {
		c.IsUpdating = false
	}
	fs.tree.Unlock()
	if err != nil {
		return Attr{}, err
	}
	fs.tree.Lock()
	if c, ok := fs.tree.Get(ino); ok {
		fs.tree.RegisterLookup(c)
	}
	fs.tree.Unlock()
	return attr, nil
}

// lookupMiss issues a HEAD for an absent child, creating a tombstone on
// 404 or a fresh Entry on success.
func (fs *FileSystem) lookupMiss(ctx context.Context, parent *inode.Entry, name string) (Attr, error) {
	fullpath := childFullpath(parent, name)

	client, err := fs.acquireClient()
	if err != nil {
		return Attr{}, err
	}
	defer client.Release()

	ok, status, _, headers := client.SyncRequest(ctx, "/"+fullpath, "HEAD", nil, false)
	if fs.metrics != nil {
		fs.metrics.RecordHeadRequest()
	}

	fs.tree.Lock()
	defer fs.tree.Unlock()

	if !ok {
		if status == 404 {
			e, addErr := fs.tree.AddEntry(parent.Ino, name, fs.tree.FileMode(), inode.TypeFile, 0, fs.clock.Now())
			if addErr != nil {
				return Attr{}, fserrors.Structural("lookup", addErr)
			}
			e.Removed = true
			e.AccessTime = fs.clock.Now()
			return Attr{}, fserrors.Structural("lookup", errNotFound)
		}
		return Attr{}, fserrors.Backend("lookup", errNotFound)
	}

	head := backend.ParseHeadHeaders(headers)
	typ := inode.TypeFile
	if head.IsDirectory {
		typ = inode.TypeDirectory
	}
	mtime := time.Time{}
	if head.Ctime != nil {
		mtime = *head.Ctime
	}
	e, addErr := fs.tree.AddEntry(parent.Ino, name, fs.modeFor(typ, head), typ, head.Size, mtime)
	if addErr != nil {
		return Attr{}, fserrors.Structural("lookup", addErr)
	}
	fs.mergeXattr(e, head)
	fs.tree.RegisterLookup(e)
	return fs.attrOf(e), nil
}

// refreshViaHead issues a HEAD for an already-known Entry and folds the
// result back in, re-resolving ino through the Index first since state
// must be re-validated before acting after any suspension.
func (fs *FileSystem) refreshViaHead(ctx context.Context, ino uint64, fullpath string) (Attr, error) {
	client, err := fs.acquireClient()
	if err != nil {
		return Attr{}, err
	}
	defer client.Release()

	ok, status, _, headers := client.SyncRequest(ctx, "/"+fullpath, "HEAD", nil, false)
	if fs.metrics != nil {
		fs.metrics.RecordHeadRequest()
	}

	fs.tree.Lock()
	defer fs.tree.Unlock()

	e, stillThere := fs.tree.Get(ino)
	if !stillThere {
		return Attr{}, fserrors.Structural("lookup", errNotFound)
	}

	if !ok {
		if status == 404 {
			e.Removed = true
			e.AccessTime = fs.clock.Now()
		}
		return Attr{}, fserrors.Backend("lookup", errNotFound)
	}

	head := backend.ParseHeadHeaders(headers)
	e.Size = head.Size
	fs.mergeXattr(e, head)
	e.IsModified = false
	return fs.attrOf(e), nil
}

// mergeXattr folds a HeadResult's xattr-mirrored fields into e. Caller
// must hold the Tree lock.
func (fs *FileSystem) mergeXattr(e *inode.Entry, head backend.HeadResult) {
	if head.Mode != nil {
		e.Mode = *head.Mode
	}
	e.Xattr.ETag = head.ETag
	e.Xattr.VersionID = head.VersionID
	e.Xattr.ContentType = head.ContentType
	e.XattrTime = fs.clock.Now()
}

func (fs *FileSystem) modeFor(typ inode.Type, head backend.HeadResult) uint32 {
	if head.Mode != nil {
		return *head.Mode
	}
	if typ == inode.TypeDirectory {
		return fs.tree.DirMode()
	}
	return fs.tree.FileMode()
}

// acquireClient blocks the caller until a Client is ready, presenting a
// synchronous call to the rest of this package; GetClient's own goroutine
// still makes the acquisition non-blocking from the pool's perspective.
func (fs *FileSystem) acquireClient() (*backend.Client, error) {
	done := make(chan *backend.Client, 1)
	fs.pool.GetClient(func(c *backend.Client) { done <- c })
	c := <-done
	if c == nil {
		return nil, fserrors.Backend("acquire_client", errNotFound)
	}
	return c, nil
}
