package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
)

// Mode selects how a FileIO handle was created: create opens in
// new-object mode, open opens in read-existing mode.
type Mode int

const (
	ModeNew Mode = iota
	ModeReadExisting
)

// FileIO is the per-file I/O engine: create, release, read/write buffer,
// simple upload/download. It stages bytes in a local temporary file in
// front of this repo's signed HTTP Client: an existing object is
// downloaded whole on first read or write, reads and writes use
// ReadAt/WriteAt while open, and a dirty file is uploaded whole on release.
type FileIO struct {
	client   *Client
	cacheMng *CacheMng
	fullpath string
	ino      uint64
	mode     Mode

	mu       sync.Mutex
	tempFile *os.File
	dirty    bool
}

// Create opens a FileIO handle for fullpath/ino, in new-object mode when
// isNew is true.
func Create(client *Client, cacheMng *CacheMng, fullpath string, ino uint64, isNew bool) *FileIO {
	mode := ModeReadExisting
	if isNew {
		mode = ModeNew
	}
	return &FileIO{client: client, cacheMng: cacheMng, fullpath: fullpath, ino: ino, mode: mode}
}

// ensureTempFile lazily materializes the local staging file, downloading
// the existing object first if this handle was opened against one.
// Caller must hold f.mu.
func (f *FileIO) ensureTempFile(ctx context.Context) error {
	if f.tempFile != nil {
		return nil
	}

	tf, err := os.CreateTemp("", "s3fuse")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	if f.mode == ModeReadExisting {
		body, err := f.downloadSync(ctx)
		if err != nil {
			tf.Close()
			os.Remove(tf.Name())
			return err
		}
		if _, err := tf.Write(body); err != nil {
			tf.Close()
			os.Remove(tf.Name())
			return fmt.Errorf("staging download: %w", err)
		}
	}

	f.tempFile = tf
	return nil
}

func (f *FileIO) downloadSync(ctx context.Context) ([]byte, error) {
	ok, _, body, _ := f.client.SyncRequest(ctx, "/"+f.fullpath, "GET", nil, false)
	if !ok {
		return nil, fmt.Errorf("download %s failed", f.fullpath)
	}
	return body, nil
}

// ReadBuffer reads size bytes at off out of the staged temp file,
// downloading the object first if it hasn't been staged yet.
func (f *FileIO) ReadBuffer(ctx context.Context, size int, off int64) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.ensureTempFile(ctx); err != nil {
		return nil, err
	}

	buf := make([]byte, size)
	n, err := f.tempFile.ReadAt(buf, off)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return buf[:n], nil
}

// WriteBuffer writes buf at off into the staged temp file and records the
// file's new length.
func (f *FileIO) WriteBuffer(ctx context.Context, buf []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.ensureTempFile(ctx); err != nil {
		return 0, err
	}

	n, err := f.tempFile.WriteAt(buf, off)
	if err != nil {
		return 0, err
	}
	f.dirty = true

	if stat, statErr := f.tempFile.Stat(); statErr == nil {
		f.cacheMng.SetFileLength(f.ino, uint64(stat.Size()))
	}

	return n, nil
}

// Release disposes the handle, flushing any pending upload first if
// dirty.
func (f *FileIO) Release(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.tempFile == nil {
		return nil
	}

	var flushErr error
	if f.dirty {
		flushErr = f.flushLocked(ctx)
	}

	path := f.tempFile.Name()
	f.tempFile.Close()
	os.Remove(path)
	f.tempFile = nil

	return flushErr
}

// flushLocked uploads the full contents of the temp file. Caller must hold
// f.mu.
func (f *FileIO) flushLocked(ctx context.Context) error {
	if _, err := f.tempFile.Seek(0, io.SeekStart); err != nil {
		return err
	}
	body, err := io.ReadAll(f.tempFile)
	if err != nil {
		return err
	}
	return f.uploadSync(ctx, body)
}

// ReleaseClient returns the Client this handle was opened with to its
// pool. Callers (fs.FileSystem.ReleaseFile) call this once, after Release
// has flushed any pending upload, since FileIO holds the Client for its
// entire open lifetime rather than acquiring one per request.
func (f *FileIO) ReleaseClient() {
	f.client.Release()
}

// SimpleUpload writes body as the object directly, without staging a
// temp file. Used by symlink creation to write the target path as the
// object body.
func (f *FileIO) SimpleUpload(ctx context.Context, body []byte) error {
	return f.uploadSync(ctx, body)
}

// SimpleDownload reads the whole object body directly, without staging a
// temp file. Used by readlink.
func (f *FileIO) SimpleDownload(ctx context.Context) ([]byte, error) {
	return f.downloadSync(ctx)
}

func (f *FileIO) uploadSync(ctx context.Context, body []byte) error {
	ok, _, _, _ := f.client.SyncRequest(ctx, "/"+f.fullpath, "PUT", bytes.NewReader(body), false)
	if !ok {
		return fmt.Errorf("upload %s failed", f.fullpath)
	}
	return nil
}
