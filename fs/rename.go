package fs

import (
	"context"
	"fmt"

	"github.com/cloudmount/s3fuse/fs/inode"
	"github.com/cloudmount/s3fuse/fserrors"
)

// maxRenameSize is the policy ceiling for a server-side rename: a copy
// larger than this is rejected up front rather than attempted and left to
// fail mid-flight.
const maxRenameSize = 5 * 1 << 30 // 5 GiB

// Rename only supports Files, only below the size ceiling; the move is a
// PUT-with-copy-source followed by a DELETE of the original. On success
// the source Entry is tombstoned (Removed = true, Age = 0) rather than
// destroyed, its old parent's listing is invalidated, and the destination
// either revives a same-named tombstoned child in place or adds a fresh
// Entry. Per the documented decision in DESIGN.md, a failed second-phase
// DELETE leaves the copied destination object in place — the caller is
// told the rename failed, but no compensating cleanup is attempted.
func (fs *FileSystem) Rename(ctx context.Context, oldParentIno uint64, oldName string, newParentIno uint64, newName string) error {
	fs.tree.Lock()
	oldParent, ok := fs.tree.Get(oldParentIno)
	if !ok || !oldParent.IsDir() {
		fs.tree.Unlock()
		return fserrors.Structural("rename", errNotFound)
	}
	e, exists := oldParent.Children[oldName]
	if !exists {
		fs.tree.Unlock()
		return fserrors.Structural("rename", errNotFound)
	}
	if e.IsDir() {
		fs.tree.Unlock()
		return fserrors.Policy("rename", fmt.Errorf("directory rename is not supported"))
	}
	if e.Size >= maxRenameSize {
		fs.tree.Unlock()
		return fserrors.Policy("rename", fmt.Errorf("object too large for a server-side rename"))
	}
	newParent, ok := fs.tree.Get(newParentIno)
	if !ok || !newParent.IsDir() {
		fs.tree.Unlock()
		return fserrors.Structural("rename", errNotFound)
	}

	srcFullpath := e.Fullpath
	dstFullpath := childFullpath(newParent, newName)
	ino := e.Ino
	mode := e.Mode
	size := e.Size
	ctime := e.Ctime
	fs.tree.Unlock()

	client, err := fs.acquireClient()
	if err != nil {
		return err
	}
	defer client.Release()

	copySource := fs.pool.CopySourceHeader(fs.cfg.S3.KeyPrefix, srcFullpath)
	client.AddOutputHeader("x-amz-copy-source", copySource)
	if fs.cfg.S3.StorageType != "" {
		client.AddOutputHeader("x-amz-storage-class", fs.cfg.S3.StorageType)
	}
	ok2, _, _, _ := client.SyncRequest(ctx, "/"+dstFullpath, "PUT", nil, false)
	if !ok2 {
		return fserrors.Backend("rename", fmt.Errorf("copy to %s failed", dstFullpath))
	}

	ok3, status, _, _ := client.SyncRequest(ctx, "/"+srcFullpath, "DELETE", nil, false)
	if !ok3 && status != 404 {
		return fserrors.Backend("rename", fmt.Errorf("destination %s created, but deleting source %s failed: orphaned object left in place", dstFullpath, srcFullpath))
	}

	fs.tree.Lock()
	defer fs.tree.Unlock()

	if src, ok := fs.tree.Get(ino); ok {
		src.Removed = true
		src.Age = 0
	}
	if op, ok := fs.tree.Get(oldParentIno); ok {
		fs.tree.EntryModified(op)
	}

	newParent, ok = fs.tree.Get(newParentIno)
	if !ok || !newParent.IsDir() {
		return fserrors.Structural("rename", errNotFound)
	}
	if existing, exists := newParent.Children[newName]; exists && existing.Ino != ino {
		if existing.IsDir() {
			return fserrors.Structural("rename", inode.ErrTypeMismatch)
		}
		fs.tree.ReviveChild(newParent, existing)
		existing.Size = size
		existing.Mode = mode
		existing.Ctime = ctime
		return nil
	}
	if _, addErr := fs.tree.AddEntry(newParentIno, newName, mode, inode.TypeFile, size, ctime); addErr != nil {
		return fserrors.Structural("rename", addErr)
	}
	return nil
}
