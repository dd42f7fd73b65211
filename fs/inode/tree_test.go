package inode

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudmount/s3fuse/clock"
)

func newTestTree(t *testing.T) (*Tree, *clock.SimulatedClock) {
	t.Helper()
	sc := clock.NewSimulatedClock(time.Unix(1700000000, 0))
	tree := NewTree(Config{FileMode: -1, DirMode: -1}, sc)
	return tree, sc
}

func TestAddEntry_Basic(t *testing.T) {
	tree, _ := newTestTree(t)
	tree.Lock()
	defer tree.Unlock()

	e, err := tree.AddEntry(RootInode, "foo.txt", DefaultFileMode, TypeFile, 42, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "foo.txt", e.Fullpath)
	assert.Equal(t, uint64(42), e.Size)

	got, ok := tree.Get(e.Ino)
	assert.True(t, ok)
	assert.Same(t, e, got)
	assert.Same(t, e, tree.Root().Children["foo.txt"])
}

func TestAddEntry_NestedFullpath(t *testing.T) {
	tree, _ := newTestTree(t)
	tree.Lock()
	defer tree.Unlock()

	dir, err := tree.AddEntry(RootInode, "sub", DefaultDirMode, TypeDirectory, 0, time.Now())
	require.NoError(t, err)

	file, err := tree.AddEntry(dir.Ino, "leaf.txt", DefaultFileMode, TypeFile, 1, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "sub/leaf.txt", file.Fullpath)
}

func TestAddEntry_TypeMismatchRejected(t *testing.T) {
	tree, _ := newTestTree(t)
	tree.Lock()
	defer tree.Unlock()

	_, err := tree.AddEntry(RootInode, "x", DefaultFileMode, TypeFile, 0, time.Now())
	require.NoError(t, err)

	_, err = tree.AddEntry(RootInode, "x", DefaultDirMode, TypeDirectory, 0, time.Now())
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestAddEntry_InvalidatesParentDirCache(t *testing.T) {
	tree, _ := newTestTree(t)
	tree.Lock()
	root := tree.Root()
	root.DirCache = []byte("stale")
	root.DirCacheSize = 5

	_, err := tree.AddEntry(RootInode, "new.txt", DefaultFileMode, TypeFile, 0, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, root.DirCacheSize)
	assert.Nil(t, root.DirCache)
	tree.Unlock()
}

// TestScenario_ColdListing mirrors the "cold listing" testable property: a
// freshly-assembled DirCache reflects every non-stale child.
func TestScenario_ColdListing(t *testing.T) {
	tree, sc := newTestTree(t)
	tree.Lock()
	root := tree.Root()
	tree.StartUpdate(root)
	_, err := tree.UpdateEntry(root, ListingRow{Basename: "a.txt", Type: TypeFile, Size: 10, Mtime: sc.Now()})
	require.NoError(t, err)
	_, err = tree.UpdateEntry(root, ListingRow{Basename: "b.txt", Type: TypeFile, Size: 20, Mtime: sc.Now()})
	require.NoError(t, err)
	tree.StopUpdate(root, time.Minute)

	tree.AssembleDirCache(root)
	assert.Greater(t, root.DirCacheSize, 0)
	assert.False(t, root.DirCacheUpdating)
	tree.Unlock()
}

// TestScenario_StaleEviction mirrors "stale eviction": a File entry not
// refreshed by a listing round and past dirCacheMaxTime is evicted by
// StopUpdate.
func TestScenario_StaleEviction(t *testing.T) {
	tree, sc := newTestTree(t)
	tree.Lock()
	root := tree.Root()

	stale, err := tree.AddEntry(RootInode, "gone.txt", DefaultFileMode, TypeFile, 1, sc.Now())
	require.NoError(t, err)
	stale.Age = root.Age // matches current generation until the next round bumps it
	tree.Unlock()

	sc.AdvanceTime(2 * time.Hour)

	tree.Lock()
	tree.StartUpdate(root) // bumps root.Age; stale.Age is now behind
	tree.StopUpdate(root, time.Hour)
	_, ok := tree.Get(stale.Ino)
	tree.Unlock()

	assert.False(t, ok, "stale file entry should have been evicted")
}

// TestScenario_ModifiedSurvival mirrors "modified survival": a File entry
// with IsModified set survives StopUpdate even past dirCacheMaxTime.
func TestScenario_ModifiedSurvival(t *testing.T) {
	tree, sc := newTestTree(t)
	tree.Lock()
	root := tree.Root()

	modified, err := tree.AddEntry(RootInode, "dirty.txt", DefaultFileMode, TypeFile, 1, sc.Now())
	require.NoError(t, err)
	modified.IsModified = true
	tree.Unlock()

	sc.AdvanceTime(2 * time.Hour)

	tree.Lock()
	tree.StartUpdate(root)
	tree.StopUpdate(root, time.Hour)
	_, ok := tree.Get(modified.Ino)
	tree.Unlock()

	assert.True(t, ok, "a modified entry must survive eviction")
}

// TestScenario_NegativeCache mirrors "negative cache": a tombstoned Entry
// answers lookup negatively until its TTL window elapses.
func TestScenario_NegativeCache(t *testing.T) {
	tree, sc := newTestTree(t)
	tree.Lock()
	tomb, err := tree.AddEntry(RootInode, "missing.txt", DefaultFileMode, TypeFile, 0, sc.Now())
	require.NoError(t, err)
	tomb.Removed = true
	tomb.AccessTime = sc.Now()
	tree.Unlock()

	assert.True(t, tomb.IsNegativeCacheValid(sc.Now(), time.Minute))

	sc.AdvanceTime(2 * time.Minute)
	assert.False(t, tomb.IsNegativeCacheValid(sc.Now(), time.Minute))
}

func TestForget_RemovesOnlyWhenUnlinkedAndZeroCount(t *testing.T) {
	tree, sc := newTestTree(t)
	tree.Lock()
	e, err := tree.AddEntry(RootInode, "f.txt", DefaultFileMode, TypeFile, 0, sc.Now())
	require.NoError(t, err)
	tree.RegisterLookup(e)
	ino := e.Ino
	tree.Unlock()

	tree.Forget(ino, 1)
	_, ok := tree.Get(ino)
	assert.True(t, ok, "a live, not-yet-removed entry must survive a zero lookup count")

	tree.Lock()
	e, _ = tree.Get(ino)
	e.Removed = true
	tree.RegisterLookup(e)
	tree.Unlock()

	tree.Forget(ino, 1)
	_, ok = tree.Get(ino)
	assert.False(t, ok, "a removed entry must be destroyed once its lookup count reaches zero")
}

func TestRemoveSubtree_PostOrder(t *testing.T) {
	tree, sc := newTestTree(t)
	tree.Lock()
	dir, err := tree.AddEntry(RootInode, "d", DefaultDirMode, TypeDirectory, 0, sc.Now())
	require.NoError(t, err)
	child, err := tree.AddEntry(dir.Ino, "c.txt", DefaultFileMode, TypeFile, 0, sc.Now())
	require.NoError(t, err)

	tree.RemoveSubtree(dir)

	_, dirOk := tree.Get(dir.Ino)
	_, childOk := tree.Get(child.Ino)
	_, inParent := tree.Root().Children["d"]
	tree.Unlock()

	assert.False(t, dirOk)
	assert.False(t, childOk)
	assert.False(t, inParent)
}

func TestInoValuesNeverReused(t *testing.T) {
	tree, sc := newTestTree(t)
	tree.Lock()
	a, err := tree.AddEntry(RootInode, "a.txt", DefaultFileMode, TypeFile, 0, sc.Now())
	require.NoError(t, err)
	tree.RemoveSubtree(a)
	b, err := tree.AddEntry(RootInode, "b.txt", DefaultFileMode, TypeFile, 0, sc.Now())
	require.NoError(t, err)
	tree.Unlock()

	assert.NotEqual(t, a.Ino, b.Ino)
}
