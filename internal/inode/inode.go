// Package inode implements the inode table (C2 in the design doc): inode
// allocation, per-inode metadata, and the type-tagged payload (directory
// table, file content store, or symlink target) each inode carries.
//
// Grounded on samples/memfs/inode.go and samples/memfs/mem_fs.go from the
// teacher (github.com/jacobsa/fuse): the same split between a table keyed by
// a monotonically increasing numeric id and a per-inode InvariantMutex
// guarding mutable state.
package inode

import (
	"sort"
	"time"

	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"

	"github.com/go-tmpfs/tmpfs/errno"
	"github.com/go-tmpfs/tmpfs/internal/content"
	"github.com/go-tmpfs/tmpfs/internal/dirent"
)

// RootIno is the fixed inode number of the root directory. Numbering starts
// at 2 for everything else, per spec.md §3.
const RootIno uint64 = 1

// Type identifies which payload an inode carries.
type Type int

const (
	TypeRegular Type = iota
	TypeDirectory
	TypeSymlink
)

// ModeBits returns the unix.S_IF* type bit matching t.
func (t Type) ModeBits() uint32 {
	switch t {
	case TypeDirectory:
		return errno.S_IFDIR
	case TypeSymlink:
		return errno.S_IFLNK
	default:
		return errno.S_IFREG
	}
}

// Inode is the common metadata record for a file, directory, or symlink.
//
// INVARIANT: Mode&errno.S_IFMT matches exactly one of TypeRegular/
// TypeDirectory/TypeSymlink's ModeBits.
// INVARIANT: Dir != nil iff the inode is a directory; File != nil iff it is
// regular; Symlink != "" iff it is a symlink (mutually exclusive payloads).
type Inode struct {
	mu syncutil.InvariantMutex

	Ino   uint64
	Mode  uint32 // type bits | permission bits
	Nlink uint32
	UID   uint32
	GID   uint32

	Atime time.Time
	Mtime time.Time
	Ctime time.Time
	Btime time.Time

	// Directory payload. ParentIno is meaningless unless Dir != nil; it is
	// maintained by the resolver/syscall layer on mkdir/rmdir/rename since a
	// directory may never be hardlinked (spec.md §3 invariant 3) and so has
	// exactly one parent.
	Dir       *dirent.Table
	ParentIno uint64

	// Regular-file payload.
	File *content.Store

	// Symlink payload: target path, verbatim.
	Symlink string

	xattr xattrSet
}

func (in *Inode) checkInvariants() {
	typeBits := in.Mode & errno.S_IFMT
	switch {
	case in.Dir != nil:
		if typeBits != errno.S_IFDIR {
			panic("directory inode with non-directory mode bits")
		}
	case in.File != nil:
		if typeBits != errno.S_IFREG {
			panic("regular inode with non-regular mode bits")
		}
	case in.Symlink != "":
		if typeBits != errno.S_IFLNK {
			panic("symlink inode with non-symlink mode bits")
		}
	}
}

// Lock/Unlock/RLock/RUnlock expose the invariant-checked mutex to callers
// that need to hold an inode locked across several field accesses (the
// syscall surface does this while resolving + mutating in one step).
func (in *Inode) Lock()    { in.mu.Lock() }
func (in *Inode) Unlock()  { in.mu.Unlock() }
func (in *Inode) RLock()   { in.mu.RLock() }
func (in *Inode) RUnlock() { in.mu.RUnlock() }

func (in *Inode) IsDir() bool     { return in.Dir != nil }
func (in *Inode) IsRegular() bool { return in.File != nil }
func (in *Inode) IsSymlink() bool { return in.Symlink != "" }

// Table allocates inode numbers and owns every live Inode.
//
// INVARIANT: every key k of byIno has byIno[k].Ino == k.
// INVARIANT: byIno[RootIno] != nil and is a directory.
type Table struct {
	mu syncutil.InvariantMutex

	clock timeutil.Clock
	next  uint64 // GUARDED_BY(mu)

	byIno map[uint64]*Inode // GUARDED_BY(mu)

	// openRefs counts live open-file descriptions pinning an inode with
	// Nlink == 0 alive (spec.md §3 invariant 5). GUARDED_BY(mu)
	openRefs map[uint64]int
}

// NewTable creates an inode table with a pre-populated root directory owned
// by uid/gid.
func NewTable(clock timeutil.Clock, uid, gid uint32, rootMode uint32) *Table {
	t := &Table{
		clock:    clock,
		next:     RootIno + 1,
		byIno:    make(map[uint64]*Inode),
		openRefs: make(map[uint64]int),
	}
	t.mu = syncutil.NewInvariantMutex(t.checkInvariants)

	now := clock.Now()
	root := &Inode{
		Ino:   RootIno,
		Mode:  errno.S_IFDIR | (rootMode &^ errno.S_IFMT),
		Nlink: 2,
		UID:   uid,
		GID:   gid,
		Atime: now, Mtime: now, Ctime: now, Btime: now,
		Dir:       dirent.New(),
		ParentIno: RootIno,
	}
	root.mu = syncutil.NewInvariantMutex(root.checkInvariants)
	t.byIno[RootIno] = root

	return t
}

func (t *Table) checkInvariants() {
	root, ok := t.byIno[RootIno]
	if !ok || root.Dir == nil {
		panic("root inode missing or not a directory")
	}
	for ino, in := range t.byIno {
		if in.Ino != ino {
			panic("inode table key/Ino mismatch")
		}
	}
}

// Create allocates a new inode of the given type with a fresh inode number.
func (t *Table) Create(typ Type, mode uint32, uid, gid uint32) *Inode {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	ino := t.next
	t.next++

	in := &Inode{
		Ino:   ino,
		Mode:  typ.ModeBits() | (mode &^ errno.S_IFMT),
		Nlink: 0,
		UID:   uid,
		GID:   gid,
		Atime: now, Mtime: now, Ctime: now, Btime: now,
	}

	switch typ {
	case TypeDirectory:
		in.Dir = dirent.New()
		in.Nlink = 1 // the implicit "." entry; a dentry to it adds one more
	case TypeRegular:
		in.File = content.NewStore()
	}

	in.mu = syncutil.NewInvariantMutex(in.checkInvariants)
	t.byIno[ino] = in
	return in
}

// Lookup returns the live inode for ino, if any.
func (t *Table) Lookup(ino uint64) (*Inode, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	in, ok := t.byIno[ino]
	return in, ok
}

// Insert registers an already-constructed inode under its own Ino, used only
// by the snapshot codec (C7) when rebuilding a table from a dump.
func (t *Table) Insert(in *Inode) {
	t.mu.Lock()
	defer t.mu.Unlock()
	in.mu = syncutil.NewInvariantMutex(in.checkInvariants)
	t.byIno[in.Ino] = in
	if in.Ino >= t.next {
		t.next = in.Ino + 1
	}
}

// IncOpenRef pins ino alive on behalf of a freshly-opened file description.
func (t *Table) IncOpenRef(ino uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.openRefs[ino]++
}

// DecOpenRef releases a pin taken by IncOpenRef, reaping the inode if its
// link count has already dropped to zero and no other OFD holds it.
func (t *Table) DecOpenRef(ino uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.openRefs[ino]--
	if t.openRefs[ino] <= 0 {
		delete(t.openRefs, ino)
	}
	t.maybeReap(ino)
}

// DecNlink decrements an inode's link count (e.g. after unlink) and reaps it
// if appropriate.
func (t *Table) DecNlink(in *Inode) {
	t.mu.Lock()
	defer t.mu.Unlock()

	in.Lock()
	in.Nlink--
	in.Ctime = t.clock.Now()
	in.Unlock()

	t.maybeReap(in.Ino)
}

// EXCLUSIVE_LOCKS_REQUIRED(t.mu)
func (t *Table) maybeReap(ino uint64) {
	in, ok := t.byIno[ino]
	if !ok {
		return
	}
	in.RLock()
	nlink := in.Nlink
	in.RUnlock()

	if nlink == 0 && t.openRefs[ino] == 0 {
		delete(t.byIno, ino)
	}
}

// Clock exposes the table's clock so other components (OFD table, resolver)
// can stamp atime consistently.
func (t *Table) Clock() timeutil.Clock { return t.clock }

// All returns every live inode, ordered by ascending Ino. Used by the
// snapshot codec (C7) to emit a deterministic, flat dump. Directory entries
// name children by inode number, so restoring needs no fix-up pass.
func (t *Table) All() []*Inode {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*Inode, 0, len(t.byIno))
	for _, in := range t.byIno {
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ino < out[j].Ino })
	return out
}

// Next returns the inode number that would be allocated next, used by the
// snapshot codec to report/restore the counter.
func (t *Table) Next() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.next
}

// SetNext forces the allocation counter, used when restoring from a
// snapshot so freshly-created inodes never collide with restored ones.
func (t *Table) SetNext(n uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n > t.next {
		t.next = n
	}
}
