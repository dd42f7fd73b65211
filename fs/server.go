package fs

import (
	"context"
	"os"
	"syscall"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"

	"github.com/cloudmount/s3fuse/backend"
	"github.com/cloudmount/s3fuse/cfg"
	"github.com/cloudmount/s3fuse/clock"
	"github.com/cloudmount/s3fuse/fserrors"
	"github.com/cloudmount/s3fuse/metrics"
)

// ServerConfig supplies a FileSystem's dependencies, in the shape
// cmd/mount.go wires them together.
type ServerConfig struct {
	Clock        clock.Clock
	Pool         *backend.ClientPool
	CacheMng     *backend.CacheMng
	Config       *cfg.Config
	Uid          uint32
	Gid          uint32
	MetricHandle *metrics.Handle
}

// adapter implements fuseutil.FileSystem (the pinned jacobsa/fuse version's
// 19-method interface) by translating each op into a call on the
// FUSE-agnostic Operation Orchestrator below. Operations the core
// implements but this interface version does not expose — Rename,
// GetXattr, ReadSymlink — are unreachable through this particular binding;
// see DESIGN.md.
type adapter struct {
	fs *FileSystem
}

// NewServer builds the Orchestrator core and wraps it in the fuse.Server
// this library version's Mount expects.
func NewServer(c *ServerConfig) (fuse.Server, error) {
	core := New(Config{
		Clock:    c.Clock,
		Pool:     c.Pool,
		CacheMng: c.CacheMng,
		Config:   c.Config,
		Uid:      c.Uid,
		Gid:      c.Gid,
		Metrics:  c.MetricHandle,
	})
	return fuseutil.NewFileSystemServer(&adapter{fs: core}), nil
}

func errnoFor(err error) error {
	if err == nil {
		return nil
	}
	switch errKind(err) {
	case fserrors.KindStructural:
		return fuse.ENOENT
	case fserrors.KindResource:
		return syscall.EMFILE
	case fserrors.KindPolicy:
		return syscall.EINVAL
	default: // KindBackend
		return fuse.EIO
	}
}

func toInodeAttributes(a Attr) fuseops.InodeAttributes {
	mode := os.FileMode(a.Mode &^ symlinkModeBit)
	if a.IsDir {
		mode |= os.ModeDir
	}
	if !a.IsDir && a.Mode&symlinkModeBit != 0 {
		mode |= os.ModeSymlink
	}
	return fuseops.InodeAttributes{
		Size:  a.Size,
		Nlink: 1,
		Mode:  mode,
		Atime: a.Mtime,
		Mtime: a.Mtime,
		Ctime: a.Ctime,
	}
}

func (a *adapter) Init(op *fuseops.InitOp) {
	op.Respond(nil)
}

func (a *adapter) LookUpInode(op *fuseops.LookUpInodeOp) {
	attr, err := a.fs.Lookup(op.Context(), uint64(op.Parent), op.Name)
	if err == nil {
		op.Entry.Child = fuseops.InodeID(attr.Ino)
		op.Entry.Attributes = toInodeAttributes(attr)
	}
	op.Respond(errnoFor(err))
}

func (a *adapter) GetInodeAttributes(op *fuseops.GetInodeAttributesOp) {
	attr, err := a.fs.GetAttr(op.Context(), uint64(op.Inode))
	if err == nil {
		op.Attributes = toInodeAttributes(attr)
	}
	op.Respond(errnoFor(err))
}

func (a *adapter) SetInodeAttributes(op *fuseops.SetInodeAttributesOp) {
	var mode *uint32
	if op.Mode != nil {
		m := uint32(*op.Mode)
		mode = &m
	}
	attr, err := a.fs.SetAttr(op.Context(), uint64(op.Inode), op.Size, mode)
	if err == nil {
		op.Attributes = toInodeAttributes(attr)
	}
	op.Respond(errnoFor(err))
}

func (a *adapter) ForgetInode(op *fuseops.ForgetInodeOp) {
	a.fs.Forget(op.Context(), uint64(op.ID), uint64(op.N))
	op.Respond(nil)
}

func (a *adapter) MkDir(op *fuseops.MkDirOp) {
	attr, err := a.fs.MkDir(op.Context(), uint64(op.Parent), op.Name, uint32(op.Mode))
	if err == nil {
		op.Entry.Child = fuseops.InodeID(attr.Ino)
		op.Entry.Attributes = toInodeAttributes(attr)
	}
	op.Respond(errnoFor(err))
}

func (a *adapter) CreateFile(op *fuseops.CreateFileOp) {
	attr, handle, err := a.fs.CreateFile(op.Context(), uint64(op.Parent), op.Name, uint32(op.Mode))
	if err == nil {
		op.Entry.Child = fuseops.InodeID(attr.Ino)
		op.Entry.Attributes = toInodeAttributes(attr)
		op.Handle = fuseops.HandleID(handle)
	}
	op.Respond(errnoFor(err))
}

func (a *adapter) CreateSymlink(op *fuseops.CreateSymlinkOp) {
	attr, err := a.fs.CreateSymlink(op.Context(), uint64(op.Parent), op.Name, op.Target)
	if err == nil {
		op.Entry.Child = fuseops.InodeID(attr.Ino)
		op.Entry.Attributes = toInodeAttributes(attr)
	}
	op.Respond(errnoFor(err))
}

func (a *adapter) RmDir(op *fuseops.RmDirOp) {
	err := a.fs.RmDir(op.Context(), uint64(op.Parent), op.Name)
	op.Respond(errnoFor(err))
}

func (a *adapter) Unlink(op *fuseops.UnlinkOp) {
	err := a.fs.Unlink(op.Context(), uint64(op.Parent), op.Name)
	op.Respond(errnoFor(err))
}

func (a *adapter) OpenDir(op *fuseops.OpenDirOp) {
	handle, err := a.fs.OpenDir(op.Context(), uint64(op.Inode))
	if err == nil {
		op.Handle = fuseops.HandleID(handle)
	}
	op.Respond(errnoFor(err))
}

func (a *adapter) ReadDir(op *fuseops.ReadDirOp) {
	handle := uint64(op.Handle)
	data, err := a.fs.Readdir(op.Context(), uint64(op.Inode), op.Size, int64(op.Offset), &handle)
	if err == nil {
		op.Data = data
	}
	op.Respond(errnoFor(err))
}

func (a *adapter) ReleaseDirHandle(op *fuseops.ReleaseDirHandleOp) {
	_ = a.fs.ReleaseDir(context.Background(), uint64(op.Handle))
	op.Respond(nil)
}

func (a *adapter) OpenFile(op *fuseops.OpenFileOp) {
	handle, err := a.fs.OpenFile(op.Context(), uint64(op.Inode))
	if err == nil {
		op.Handle = fuseops.HandleID(handle)
	}
	op.Respond(errnoFor(err))
}

func (a *adapter) ReadFile(op *fuseops.ReadFileOp) {
	data, err := a.fs.ReadFile(op.Context(), uint64(op.Handle), op.Size, op.Offset)
	if err == nil {
		op.Data = data
	}
	op.Respond(errnoFor(err))
}

func (a *adapter) WriteFile(op *fuseops.WriteFileOp) {
	_, err := a.fs.WriteFile(op.Context(), uint64(op.Handle), op.Data, op.Offset)
	op.Respond(errnoFor(err))
}

// SyncFile and FlushFile are both no-ops: this design always uploads the
// full staged file on release, and object-store semantics make
// whole-object replace the only available primitive, so neither uploads
// anything early.
func (a *adapter) SyncFile(op *fuseops.SyncFileOp) {
	op.Respond(nil)
}

func (a *adapter) FlushFile(op *fuseops.FlushFileOp) {
	op.Respond(nil)
}

func (a *adapter) ReleaseFileHandle(op *fuseops.ReleaseFileHandleOp) {
	err := a.fs.ReleaseFile(context.Background(), uint64(op.Handle))
	op.Respond(errnoFor(err))
}
