package backend

import "sync"

// CacheMng is the on-disk block cache manager's length-tracking surface.
// A real byte cache is out of scope here; this is a minimal in-memory
// keyed-length tracker sufficient to exercise the Orchestrator's
// write/size-inference path and its remove path for an end-to-end mount.
type CacheMng struct {
	mu      sync.Mutex
	lengths map[uint64]uint64
}

// NewInMemoryCacheMng constructs an empty CacheMng.
func NewInMemoryCacheMng() *CacheMng {
	return &CacheMng{lengths: make(map[uint64]uint64)}
}

// GetFileLength reports the length staged for ino. A zero result means
// "disabled or absent"; the write-completion path falls back to off+count
// in that case.
func (c *CacheMng) GetFileLength(ino uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lengths[ino]
}

// SetFileLength records the authoritative length FileIO has staged for
// ino, so a subsequent write's GetFileLength reflects it.
func (c *CacheMng) SetFileLength(ino uint64, length uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lengths[ino] = length
}

// RemoveFile forgets the tracked length for ino.
func (c *CacheMng) RemoveFile(ino uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.lengths, ino)
}
