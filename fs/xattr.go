package fs

import (
	"context"

	"github.com/cloudmount/s3fuse/fserrors"
)

// GetXattr resolves an extended attribute by name. Directories never
// carry extended attributes; a File's cached xattr strings are refreshed
// with a HEAD if older than the configured dir-cache max age, then mapped
// by name (user.version/user.etag (or user.md5)/user.content_type).
func (fs *FileSystem) GetXattr(ctx context.Context, ino uint64, name string) (string, error) {
	fs.tree.Lock()
	e, ok := fs.tree.Get(ino)
	if !ok {
		fs.tree.Unlock()
		return "", fserrors.Structural("getxattr", errNotFound)
	}
	if e.IsDir() {
		fs.tree.Unlock()
		return "", fserrors.Structural("getxattr", errNotFound)
	}

	maxAge := fs.cfg.Filesystem.DirCacheMaxTime
	stale := fs.clock.Now().Sub(e.XattrTime) >= maxAge
	fullpath := e.Fullpath
	fs.tree.Unlock()

	if stale {
		if _, err := fs.refreshViaHead(ctx, ino, fullpath); err != nil {
			return "", err
		}
	}

	fs.tree.Lock()
	defer fs.tree.Unlock()
	e, ok = fs.tree.Get(ino)
	if !ok {
		return "", fserrors.Structural("getxattr", errNotFound)
	}

	switch name {
	case "user.version":
		return e.Xattr.VersionID, nil
	case "user.etag", "user.md5":
		return e.Xattr.ETag, nil
	case "user.content_type":
		return e.Xattr.ContentType, nil
	default:
		return "", fserrors.Structural("getxattr", errNotFound)
	}
}
