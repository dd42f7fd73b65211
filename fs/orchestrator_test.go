package fs

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudmount/s3fuse/backend"
	"github.com/cloudmount/s3fuse/cfg"
	"github.com/cloudmount/s3fuse/clock"
	"github.com/cloudmount/s3fuse/fs/inode"
)

// fakeBucket is a minimal S3-shaped HTTP stub: enough GET (list), HEAD, PUT
// and DELETE handling to drive the Orchestrator end to end without a real
// object store.
type fakeBucket struct {
	objects map[string][]byte
	heads   int
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: make(map[string][]byte)}
}

func (b *fakeBucket) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		// strip the bucket path-style prefix "/testbucket"
		const prefix = "/testbucket"
		if len(path) >= len(prefix) && path[:len(prefix)] == prefix {
			path = path[len(prefix):]
		}
		if path == "" {
			path = "/"
		}

		switch r.Method {
		case "GET":
			if r.URL.Query().Get("list-type") == "2" {
				b.serveListing(w, r)
				return
			}
			if body, ok := b.objects[path]; ok {
				w.WriteHeader(200)
				w.Write(body)
				return
			}
			w.WriteHeader(404)
		case "HEAD":
			b.heads++
			if body, ok := b.objects[path]; ok {
				w.Header().Set("Content-Length", itoa(len(body)))
				w.Header().Set("ETag", `"etag"`)
				w.WriteHeader(200)
				return
			}
			w.WriteHeader(404)
		case "PUT":
			if src := r.Header.Get("x-amz-copy-source"); src != "" {
				srcPath := "/" + trimPrefix(src, "testbucket/")
				b.objects[path] = b.objects[srcPath]
				w.WriteHeader(200)
				return
			}
			buf, _ := io.ReadAll(r.Body)
			b.objects[path] = buf
			w.WriteHeader(200)
		case "DELETE":
			delete(b.objects, path)
			w.WriteHeader(204)
		default:
			w.WriteHeader(400)
		}
	}
}

func (b *fakeBucket) serveListing(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(200)
	w.Write([]byte(`<?xml version="1.0"?><ListBucketResult>`))
	for k, v := range b.objects {
		key := k[1:] // drop leading slash
		if len(key) < len(prefix) || key[:len(prefix)] != prefix {
			continue
		}
		rest := key[len(prefix):]
		if rest == "" || containsSlash(rest) {
			continue
		}
		w.Write([]byte("<Contents><Key>" + key + "</Key><Size>" + itoa(len(v)) + `</Size><LastModified>2024-01-02T03:04:05Z</LastModified></Contents>`))
	}
	w.Write([]byte(`</ListBucketResult>`))
}

func containsSlash(s string) bool {
	for _, c := range s {
		if c == '/' {
			return true
		}
	}
	return false
}

func trimPrefix(s, prefix string) string {
	if len(s) >= len(prefix) && s[:len(prefix)] == prefix {
		return s[len(prefix):]
	}
	return s
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func newTestFileSystem(t *testing.T, bucket *fakeBucket) (*FileSystem, *clock.SimulatedClock) {
	t.Helper()
	srv := httptest.NewServer(bucket.handler())
	t.Cleanup(srv.Close)

	pool, err := backend.NewClientPool(backend.ClientPoolConfig{
		Endpoint:     srv.URL,
		Region:       "us-east-1",
		Bucket:       "testbucket",
		UsePathStyle: true,
	})
	require.NoError(t, err)

	sc := clock.NewSimulatedClock(time.Unix(1700000000, 0))
	c := &cfg.Config{
		Filesystem: cfg.FilesystemConfig{
			FileMode:         -1,
			DirMode:          -1,
			DirCacheMaxTime:  time.Minute,
			FileCacheMaxTime: time.Minute,
		},
	}

	return New(Config{
		Clock:    sc,
		Pool:     pool,
		CacheMng: backend.NewInMemoryCacheMng(),
		Config:   c,
	}), sc
}

func TestOrchestrator_LookupResolvesViaColdListingRefresh(t *testing.T) {
	bucket := newFakeBucket()
	bucket.objects["/greeting.txt"] = []byte("hello world")
	fsys, _ := newTestFileSystem(t, bucket)

	attr, err := fsys.Lookup(context.Background(), inode.RootInode, "greeting.txt")
	require.NoError(t, err)
	assert.Equal(t, uint64(len("hello world")), attr.Size)
	assert.False(t, attr.IsDir)
}

func TestOrchestrator_LookupMissCreatesTombstone(t *testing.T) {
	bucket := newFakeBucket()
	fsys, sc := newTestFileSystem(t, bucket)

	_, err := fsys.Lookup(context.Background(), inode.RootInode, "nope.txt")
	assert.Error(t, err)

	fsys.tree.Lock()
	tomb, ok := fsys.tree.Root().Children["nope.txt"]
	removed := ok && tomb.Removed
	fsys.tree.Unlock()
	require.True(t, ok, "a 404 on HEAD must leave a tombstone Entry")
	assert.True(t, removed)
	headsAfterMiss := bucket.heads

	// Immediately re-looking up within the negative-cache TTL must not
	// reissue a HEAD; it should still report not-found.
	_, err = fsys.Lookup(context.Background(), inode.RootInode, "nope.txt")
	assert.Error(t, err)
	assert.Equal(t, headsAfterMiss, bucket.heads)

	sc.AdvanceTime(2 * time.Minute)
	_, err = fsys.Lookup(context.Background(), inode.RootInode, "nope.txt")
	assert.Error(t, err)
}

func TestOrchestrator_ReaddirListsBackendObjects(t *testing.T) {
	bucket := newFakeBucket()
	bucket.objects["/a.txt"] = []byte("aaa")
	bucket.objects["/b.txt"] = []byte("bb")
	fsys, _ := newTestFileSystem(t, bucket)

	handle, err := fsys.OpenDir(context.Background(), inode.RootInode)
	require.NoError(t, err)
	defer fsys.ReleaseDir(context.Background(), handle)

	buf, err := fsys.Readdir(context.Background(), inode.RootInode, 4096, 0, &handle)
	require.NoError(t, err)
	assert.NotEmpty(t, buf)

	fsys.tree.Lock()
	root := fsys.tree.Root()
	_, aOk := root.Children["a.txt"]
	_, bOk := root.Children["b.txt"]
	fsys.tree.Unlock()
	assert.True(t, aOk)
	assert.True(t, bOk)
}

func TestOrchestrator_CreateWriteReleaseThenLookupReflectsSize(t *testing.T) {
	bucket := newFakeBucket()
	fsys, _ := newTestFileSystem(t, bucket)

	_, handle, err := fsys.CreateFile(context.Background(), inode.RootInode, "new.txt", 0644)
	require.NoError(t, err)

	payload := []byte("some file contents")
	n, err := fsys.WriteFile(context.Background(), handle, payload, 0)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)

	require.NoError(t, fsys.ReleaseFile(context.Background(), handle))

	body, ok := bucket.objects["/new.txt"]
	require.True(t, ok, "release must upload the staged file")
	assert.Equal(t, payload, body)

	attr, err := fsys.Lookup(context.Background(), inode.RootInode, "new.txt")
	require.NoError(t, err)
	assert.Equal(t, uint64(len(payload)), attr.Size)
}

func TestOrchestrator_MkdirThenRmdirRequiresEmpty(t *testing.T) {
	bucket := newFakeBucket()
	fsys, _ := newTestFileSystem(t, bucket)

	_, err := fsys.MkDir(context.Background(), inode.RootInode, "sub", 0755)
	require.NoError(t, err)

	fsys.tree.Lock()
	dir, ok := fsys.tree.Root().Children["sub"]
	fsys.tree.Unlock()
	require.True(t, ok)

	_, _, err = fsys.CreateFile(context.Background(), dir.Ino, "child.txt", 0644)
	require.NoError(t, err)

	err = fsys.RmDir(context.Background(), inode.RootInode, "sub")
	assert.Error(t, err, "a directory with a live child must refuse removal")
}

func TestOrchestrator_UnlinkMarksTombstone(t *testing.T) {
	bucket := newFakeBucket()
	bucket.objects["/doomed.txt"] = []byte("x")
	fsys, _ := newTestFileSystem(t, bucket)

	_, err := fsys.Lookup(context.Background(), inode.RootInode, "doomed.txt")
	require.NoError(t, err)

	require.NoError(t, fsys.Unlink(context.Background(), inode.RootInode, "doomed.txt"))

	_, stillExists := bucket.objects["/doomed.txt"]
	assert.False(t, stillExists)

	fsys.tree.Lock()
	e, ok := fsys.tree.Root().Children["doomed.txt"]
	removed := ok && e.Removed
	fsys.tree.Unlock()
	require.True(t, ok, "unlink keeps the Entry in place as a tombstone")
	assert.True(t, removed)
}
