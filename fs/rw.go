package fs

import (
	"context"

	"github.com/cloudmount/s3fuse/fserrors"
)

// ReadFile delegates to the handle's FileIO.ReadBuffer.
func (fs *FileSystem) ReadFile(ctx context.Context, handle uint64, size int, off int64) ([]byte, error) {
	fs.handlesMu.Lock()
	h, ok := fs.fileHandles[handle]
	fs.handlesMu.Unlock()
	if !ok {
		return nil, fserrors.Structural("read", errNotFound)
	}

	buf, err := h.io.ReadBuffer(ctx, size, off)
	if err != nil {
		return nil, fserrors.Backend("read", err)
	}
	return buf, nil
}

// WriteFile delegates to the handle's FileIO.WriteBuffer, then folds the
// resulting length back into the Entry and stamps its UpdatedTime,
// consulting CacheMng.GetFileLength and falling back to off+count when it
// reports zero (no authoritative length staged yet).
func (fs *FileSystem) WriteFile(ctx context.Context, handle uint64, buf []byte, off int64) (int, error) {
	fs.handlesMu.Lock()
	h, ok := fs.fileHandles[handle]
	fs.handlesMu.Unlock()
	if !ok {
		return 0, fserrors.Structural("write", errNotFound)
	}

	fs.tree.IncWriteOps()
	defer fs.tree.DecWriteOps()

	n, err := h.io.WriteBuffer(ctx, buf, off)
	if err != nil {
		return 0, fserrors.Backend("write", err)
	}

	length := fs.cacheMng.GetFileLength(h.ino)
	if length == 0 {
		length = uint64(off) + uint64(n)
	}

	fs.tree.Lock()
	if e, ok := fs.tree.Get(h.ino); ok {
		e.Size = length
		e.IsModified = true
		e.UpdatedTime = fs.clock.Now()
		fs.tree.EntryModified(e)
	}
	fs.tree.Unlock()

	return n, nil
}
