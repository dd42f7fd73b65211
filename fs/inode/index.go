package inode

// index is the flat ino -> Entry mapping. Every Orchestrator action begins
// by resolving its inode argument here; a miss is a hard fail. Insertion
// happens exactly at Entry construction, removal exactly at Entry
// destruction, so index and tree can never diverge.
//
// index itself is not safe for concurrent use; all access goes through the
// owning Tree's mutex.
type index struct {
	entries map[uint64]*Entry
}

func newIndex() *index {
	return &index{entries: make(map[uint64]*Entry)}
}

// lookup resolves an inode to its Entry, or reports ok == false.
func (idx *index) lookup(ino uint64) (e *Entry, ok bool) {
	e, ok = idx.entries[ino]
	return
}

func (idx *index) insert(e *Entry) {
	idx.entries[e.Ino] = e
}

func (idx *index) remove(ino uint64) {
	delete(idx.entries, ino)
}

func (idx *index) count() int {
	return len(idx.entries)
}
