// Package ofd implements the open-file description and per-instance
// file-descriptor table (C5): OFD lifecycle, fd allocation/reuse, and the
// directory-read cursor.
//
// Grounded on the fd-table shape implied by samples/memfs/fs.go's
// freeInodes/inodes pair (lowest-free-slot reuse over a slice), adapted here
// from inode numbers to small integer file descriptors.
package ofd

// OFD is one open-file description: the state shared by every fd that
// happens to reference it (spec.md §3 allows fd duplication to share an
// OFD, though every Open in this implementation allocates a fresh one).
type OFD struct {
	Ino        uint64
	AccessMode int  // one of errno.O_RDONLY / O_WRONLY / O_RDWR
	Append     bool
	NoATime    bool
	Directory  bool

	Pos       int64 // current position for non-directory OFDs
	DirCursor int   // monotonic readdir cursor; -1 means "." and ".." not yet emitted
}

// NewOFD returns a freshly initialized OFD.
func NewOFD(ino uint64, accessMode int, append_, noATime, directory bool) *OFD {
	return &OFD{
		Ino:        ino,
		AccessMode: accessMode,
		Append:     append_,
		NoATime:    noATime,
		Directory:  directory,
		DirCursor:  -1,
	}
}

// Readable reports whether this OFD was opened for reading.
func (o *OFD) Readable() bool { return o.AccessMode == 0 /* O_RDONLY */ || o.AccessMode == 2 /* O_RDWR */ }

// Writable reports whether this OFD was opened for writing.
func (o *OFD) Writable() bool { return o.AccessMode == 1 /* O_WRONLY */ || o.AccessMode == 2 /* O_RDWR */ }

// Table is the per-instance mapping from small integer fd to OFD.
//
// INVARIANT: every key fd of byFD satisfies fd >= 0.
// INVARIANT: after Close/CloseRange, the fd is absent from byFD.
type Table struct {
	byFD map[int]*OFD
}

// NewTable returns an empty file-descriptor table.
func NewTable() *Table {
	return &Table{byFD: make(map[int]*OFD)}
}

// Alloc installs ofd under the lowest unused non-negative fd and returns it.
func (t *Table) Alloc(o *OFD) int {
	fd := 0
	for {
		if _, used := t.byFD[fd]; !used {
			break
		}
		fd++
	}
	t.byFD[fd] = o
	return fd
}

// Get returns the OFD for fd, if open.
func (t *Table) Get(fd int) (*OFD, bool) {
	o, ok := t.byFD[fd]
	return o, ok
}

// Close removes fd from the table, returning the OFD it pointed to (or nil
// if fd was not open).
func (t *Table) Close(fd int) *OFD {
	o := t.byFD[fd]
	delete(t.byFD, fd)
	return o
}

// CloseRange closes every fd in [lo, hi], skipping unopened ones, returning
// the OFDs that were actually closed (for reference-count bookkeeping by the
// caller).
func (t *Table) CloseRange(lo, hi int) []*OFD {
	var closed []*OFD
	for fd, o := range t.byFD {
		if fd < lo || fd > hi {
			continue
		}
		closed = append(closed, o)
		delete(t.byFD, fd)
	}
	return closed
}

// All returns every currently open (fd, OFD) pair; used when an instance is
// torn down (spec.md §5: every open fd is implicitly closed).
func (t *Table) All() map[int]*OFD {
	out := make(map[int]*OFD, len(t.byFD))
	for fd, o := range t.byFD {
		out[fd] = o
	}
	return out
}
