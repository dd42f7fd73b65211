package inode

import "time"

// ListingRow is one row of a freshly-fetched directory listing, converted
// by the fs package from a backend.ListRow returned by backend.FetchListing.
type ListingRow struct {
	Basename string
	Type     Type
	Size     uint64
	Mtime    time.Time
}

// StartUpdate bumps D's age so that entries touched during the listing can
// be distinguished, after the fact, from ones that were not. Caller must
// hold the Tree lock.
func (t *Tree) StartUpdate(d *Entry) {
	d.Age++
	d.DirCacheUpdating = true
}

// UpdateEntry is called once per listing row while a refresh of d is in
// flight. If the named child
// already exists its age/size are refreshed and its tombstone (if any) is
// cleared; otherwise a fresh Entry is allocated at d's new age. Caller must
// hold the Tree lock.
func (t *Tree) UpdateEntry(d *Entry, row ListingRow) (*Entry, error) {
	if child, ok := d.Children[row.Basename]; ok {
		child.Age = d.Age
		child.Size = row.Size
		child.Removed = false
		return child, nil
	}

	mode := t.fmode
	if row.Type == TypeDirectory {
		mode = t.dmode
	}
	return t.AddEntry(d.Ino, row.Basename, mode, row.Type, row.Size, row.Mtime)
}

// StopUpdate evicts children that were not refreshed this round, have no
// pending local modification, have been untouched for at least
// dirCacheMaxTime, and are Files. Directories are never evicted by this
// pass (see DESIGN.md for the rationale).
//
// Caller must hold the Tree lock.
func (t *Tree) StopUpdate(d *Entry, dirCacheMaxTime time.Duration) {
	defer func() { d.DirCacheUpdating = false }()

	now := t.clock.Now()
	var stale []*Entry
	for _, c := range d.Children {
		if c.Age >= d.Age {
			continue
		}
		if c.IsModified {
			continue
		}
		if now.Before(c.AccessTime.Add(dirCacheMaxTime)) {
			continue
		}
		if c.Type != TypeFile {
			continue
		}
		stale = append(stale, c)
	}

	for _, c := range stale {
		t.RemoveSubtree(c)
	}
}
