package inode

import "fmt"

// lookupCount implements the FUSE kernel lookup-count protocol: the kernel
// increments on every successful lookup/create reply and later sends a
// Forget decrementing by the same amount. When the count reaches zero the
// Entry is eligible for destruction. External synchronization (the owning
// Tree's mutex) is required.
type lookupCount struct {
	count uint64
}

func (lc *lookupCount) Inc() {
	lc.count++
}

// Dec decrements the count by n and reports whether it reached zero.
func (lc *lookupCount) Dec(n uint64) (reachedZero bool) {
	if n > lc.count {
		panic(fmt.Sprintf("forget count %d exceeds lookup count %d", n, lc.count))
	}
	lc.count -= n
	return lc.count == 0
}
