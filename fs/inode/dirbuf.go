package inode

import (
	"sort"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"

	"github.com/cloudmount/s3fuse/common"
)

// dirbufRow is one survivor staged for serialization, in basename order.
type dirbufRow struct {
	basename string
	ino      uint64
	size     uint64
	typ      Type
}

// AssembleDirCache iterates d's children, skips any child with age < d.Age
// or Removed, and serializes the survivors in basename order, preceded by
// synthetic "." and ".." entries, into d's DirCache buffer. The buffer is opaque to every
// layer above this one; only its length and bytes matter.
//
// Caller must hold the Tree lock.
func (t *Tree) AssembleDirCache(d *Entry) {
	rows := common.NewLinkedListQueue[dirbufRow]()

	names := make([]string, 0, len(d.Children))
	for name := range d.Children {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		c := d.Children[name]
		if c.Age < d.Age || c.Removed {
			continue
		}
		rows.Push(dirbufRow{basename: name, ino: c.Ino, size: c.Size, typ: c.Type})
	}

	buf := fuseutil.AppendDirent(nil, fuseutil.Dirent{
		Offset: 1,
		Inode:  fuseops.InodeID(d.Ino),
		Name:   ".",
		Type:   fuseutil.DT_Directory,
	})
	buf = fuseutil.AppendDirent(buf, fuseutil.Dirent{
		Offset: 2,
		Inode:  fuseops.InodeID(d.Ino),
		Name:   "..",
		Type:   fuseutil.DT_Directory,
	})

	offset := fuseops.DirOffset(3)
	for !rows.IsEmpty() {
		r := rows.Pop()
		dt := fuseutil.DT_File
		if r.typ == TypeDirectory {
			dt = fuseutil.DT_Directory
		}
		buf = fuseutil.AppendDirent(buf, fuseutil.Dirent{
			Offset: offset,
			Inode:  fuseops.InodeID(r.ino),
			Name:   r.basename,
			Type:   dt,
		})
		offset++
	}

	d.DirCache = buf
	d.DirCacheSize = len(buf)
	d.DirCacheCreated = t.clock.Now()
}
