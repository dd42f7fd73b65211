package fs

import (
	"context"

	"github.com/cloudmount/s3fuse/backend"
	"github.com/cloudmount/s3fuse/fs/inode"
	"github.com/cloudmount/s3fuse/fserrors"
)

// symlinkModeBit marks a File Entry as a symlink: symlinks are Files
// carrying this bit rather than a distinct Type.
const symlinkModeBit uint32 = 1 << 31

// CreateSymlink adds a File Entry with the symlink bit set, then uploads
// the target path as the object body via FileIO's simple upload (no
// temp-file staging, since the whole body is available up front).
func (fs *FileSystem) CreateSymlink(ctx context.Context, parentIno uint64, name, target string) (Attr, error) {
	fs.tree.Lock()
	parent, ok := fs.tree.Get(parentIno)
	if !ok || !parent.IsDir() {
		fs.tree.Unlock()
		return Attr{}, fserrors.Structural("symlink", errNotFound)
	}

	mode := fs.tree.FileMode() | symlinkModeBit
	e, err := fs.tree.AddEntry(parentIno, name, mode, inode.TypeFile, uint64(len(target)), fs.clock.Now())
	if err != nil {
		fs.tree.Unlock()
		return Attr{}, fserrors.Structural("symlink", err)
	}
	fs.tree.RegisterLookup(e)
	fullpath := e.Fullpath
	attr := fs.attrOf(e)
	fs.tree.Unlock()

	client, err := fs.acquireClient()
	if err != nil {
		return Attr{}, err
	}
	defer client.Release()

	io := backend.Create(client, fs.cacheMng, fullpath, attr.Ino, true)
	if err := io.SimpleUpload(ctx, []byte(target)); err != nil {
		return Attr{}, fserrors.Backend("symlink", err)
	}

	return attr, nil
}

// ReadSymlink downloads the object body, which is the target path
// verbatim.
func (fs *FileSystem) ReadSymlink(ctx context.Context, ino uint64) (string, error) {
	fs.tree.Lock()
	e, ok := fs.tree.Get(ino)
	if !ok {
		fs.tree.Unlock()
		return "", fserrors.Structural("readlink", errNotFound)
	}
	fullpath := e.Fullpath
	fs.tree.Unlock()

	client, err := fs.acquireClient()
	if err != nil {
		return "", err
	}
	defer client.Release()

	io := backend.Create(client, fs.cacheMng, fullpath, ino, false)
	body, err := io.SimpleDownload(ctx)
	if err != nil {
		return "", fserrors.Backend("readlink", err)
	}
	return string(body), nil
}
