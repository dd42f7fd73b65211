package fs

import (
	"context"

	"github.com/cloudmount/s3fuse/fs/inode"
	"github.com/cloudmount/s3fuse/fserrors"
)

// MkDir reuses an existing child of the same name (clearing its tombstone
// rather than allocating a new inode) if one exists, or else adds a
// Directory Entry locally, then PUTs a zero-length "x-directory" marker
// object so a concurrent listing from another client observes the new
// prefix.
func (fs *FileSystem) MkDir(ctx context.Context, parentIno uint64, name string, mode uint32) (Attr, error) {
	fs.tree.Lock()
	parent, ok := fs.tree.Get(parentIno)
	if !ok || !parent.IsDir() {
		fs.tree.Unlock()
		return Attr{}, fserrors.Structural("mkdir", errNotFound)
	}

	var e *inode.Entry
	if existing, exists := parent.Children[name]; exists {
		if !existing.IsDir() {
			fs.tree.Unlock()
			return Attr{}, fserrors.Structural("mkdir", inode.ErrTypeMismatch)
		}
		fs.tree.ReviveChild(parent, existing)
		e = existing
	} else {
		var addErr error
		e, addErr = fs.tree.AddEntry(parentIno, name, mode, inode.TypeDirectory, 0, fs.clock.Now())
		if addErr != nil {
			fs.tree.Unlock()
			return Attr{}, fserrors.Structural("mkdir", addErr)
		}
	}
	e.Mode = mode
	fs.tree.RegisterLookup(e)
	fullpath := e.Fullpath
	attr := fs.attrOf(e)
	fs.tree.Unlock()

	client, err := fs.acquireClient()
	if err != nil {
		return Attr{}, err
	}
	defer client.Release()

	client.AddOutputHeader("Content-Type", "application/x-directory")
	ok2, _, _, _ := client.SyncRequest(ctx, "/"+fullpath+"/", "PUT", nil, false)
	if !ok2 {
		return Attr{}, fserrors.Backend("mkdir", errNotFound)
	}

	return attr, nil
}
