package fs

import (
	"context"

	"github.com/cloudmount/s3fuse/backend"
	"github.com/cloudmount/s3fuse/fs/inode"
	"github.com/cloudmount/s3fuse/fserrors"
)

// fileHandle is the per-open file state: a FileIO staged in either
// new-object or read-existing mode, plus the ino it backs so release can
// clear the Entry's IsModified flag.
type fileHandle struct {
	ino uint64
	io  *backend.FileIO
}

// CreateFile reuses an existing child of the same name (clearing its
// tombstone rather than allocating a new inode) if one exists, or else
// adds a fresh zero-length File Entry; either way it marks the Entry
// modified and opens a FileIO handle in new-object mode.
func (fs *FileSystem) CreateFile(ctx context.Context, parentIno uint64, name string, mode uint32) (Attr, uint64, error) {
	fs.tree.Lock()
	parent, ok := fs.tree.Get(parentIno)
	if !ok || !parent.IsDir() {
		fs.tree.Unlock()
		return Attr{}, 0, fserrors.Structural("create", errNotFound)
	}

	var e *inode.Entry
	if existing, exists := parent.Children[name]; exists {
		if existing.IsDir() {
			fs.tree.Unlock()
			return Attr{}, 0, fserrors.Structural("create", inode.ErrTypeMismatch)
		}
		fs.tree.ReviveChild(parent, existing)
		e = existing
	} else {
		var addErr error
		e, addErr = fs.tree.AddEntry(parentIno, name, mode, inode.TypeFile, 0, fs.clock.Now())
		if addErr != nil {
			fs.tree.Unlock()
			return Attr{}, 0, fserrors.Structural("create", addErr)
		}
	}
	e.Mode = mode
	e.IsModified = true
	fs.tree.RegisterLookup(e)
	attr := fs.attrOf(e)
	fullpath := e.Fullpath
	ino := e.Ino
	fs.tree.Unlock()

	client, err := fs.acquireClient()
	if err != nil {
		return Attr{}, 0, err
	}

	fh := fs.allocHandle()
	fs.handlesMu.Lock()
	fs.fileHandles[fh] = &fileHandle{ino: ino, io: backend.Create(client, fs.cacheMng, fullpath, ino, true)}
	fs.handlesMu.Unlock()

	return attr, fh, nil
}

// OpenFile opens a FileIO handle in read-existing mode against an
// already-resolved Entry.
func (fs *FileSystem) OpenFile(ctx context.Context, ino uint64) (uint64, error) {
	fs.tree.Lock()
	e, ok := fs.tree.Get(ino)
	if !ok || e.IsDir() {
		fs.tree.Unlock()
		return 0, fserrors.Structural("open", errNotFound)
	}
	fullpath := e.Fullpath
	fs.tree.Unlock()

	client, err := fs.acquireClient()
	if err != nil {
		return 0, err
	}

	fh := fs.allocHandle()
	fs.handlesMu.Lock()
	fs.fileHandles[fh] = &fileHandle{ino: ino, io: backend.Create(client, fs.cacheMng, fullpath, ino, false)}
	fs.handlesMu.Unlock()

	return fh, nil
}

// ReleaseFile disposes the handle, flushing any pending upload first,
// then releases the backing Client.
func (fs *FileSystem) ReleaseFile(ctx context.Context, handle uint64) error {
	fs.handlesMu.Lock()
	h, ok := fs.fileHandles[handle]
	delete(fs.fileHandles, handle)
	fs.handlesMu.Unlock()
	if !ok {
		return nil
	}

	err := h.io.Release(ctx)
	h.io.ReleaseClient()

	fs.tree.Lock()
	if e, ok := fs.tree.Get(h.ino); ok {
		e.IsModified = false
	}
	fs.tree.Unlock()

	if err != nil {
		return fserrors.Backend("release", err)
	}
	return nil
}
