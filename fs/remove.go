package fs

import (
	"context"
	"fmt"

	"github.com/cloudmount/s3fuse/fserrors"
)

// errNotEmpty is returned when dir_remove is attempted against a
// directory that still has live (non-tombstoned) children.
var errNotEmpty = fmt.Errorf("directory not empty")

// Unlink DELETEs the object, drops its cached length, marks the Entry
// removed with Age reset to 0 so a later re-listing will not resurrect it
// as a survivor, and invalidates the parent's listing.
func (fs *FileSystem) Unlink(ctx context.Context, parentIno uint64, name string) error {
	fs.tree.Lock()
	parent, ok := fs.tree.Get(parentIno)
	if !ok || !parent.IsDir() {
		fs.tree.Unlock()
		return fserrors.Structural("unlink", errNotFound)
	}
	e, exists := parent.Children[name]
	if !exists || e.IsDir() {
		fs.tree.Unlock()
		return fserrors.Structural("unlink", errNotFound)
	}
	fullpath := e.Fullpath
	ino := e.Ino
	fs.tree.Unlock()

	client, err := fs.acquireClient()
	if err != nil {
		return err
	}
	ok2, status, _, _ := client.SyncRequest(ctx, "/"+fullpath, "DELETE", nil, false)
	client.Release()
	if !ok2 && status != 404 {
		return fserrors.Backend("unlink", errNotFound)
	}

	fs.cacheMng.RemoveFile(ino)

	fs.tree.Lock()
	if e, ok := fs.tree.Get(ino); ok {
		e.Removed = true
		e.Age = 0
	}
	if p, ok := fs.tree.Get(parentIno); ok {
		fs.tree.EntryModified(p)
	}
	fs.tree.Unlock()

	return nil
}

// RmDir refuses unless every child has Removed == true (the directory is
// "empty" in the namespace's own tombstone-aware sense). S3 has no real
// directories to delete — only the objects under a prefix — so unlike
// Unlink this issues no backend request at all: it synchronously marks
// the directory Entry removed with Age reset to 0 and invalidates the
// parent's listing.
func (fs *FileSystem) RmDir(ctx context.Context, parentIno uint64, name string) error {
	fs.tree.Lock()
	defer fs.tree.Unlock()

	parent, ok := fs.tree.Get(parentIno)
	if !ok || !parent.IsDir() {
		return fserrors.Structural("rmdir", errNotFound)
	}
	e, exists := parent.Children[name]
	if !exists || !e.IsDir() {
		return fserrors.Structural("rmdir", errNotFound)
	}
	for _, c := range e.Children {
		if !c.Removed {
			return fserrors.Policy("rmdir", errNotEmpty)
		}
	}

	e.Removed = true
	e.Age = 0
	fs.tree.EntryModified(parent)

	return nil
}
