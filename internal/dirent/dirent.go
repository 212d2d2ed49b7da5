// Package dirent implements a directory's child-entry table (C3): the
// ordered (name, child_ino) mapping inside a directory inode, and the name
// validation rules from spec.md §3/§4.2.
//
// Grounded on samples/memfs/inode.go's entries []fuseutil.Dirent slice
// (indices reused as stable offsets, never shortened) and on samples/memfs/
// dir.go's standalone memDir. Explicit "." and ".." entries are deliberately
// never stored here; spec.md §3 calls them implicit, so the syscall layer
// synthesizes them from an inode's own Ino and ParentIno.
package dirent

import (
	"strings"

	"github.com/go-tmpfs/tmpfs/errno"
)

// Entry is a single (name, inode) directory entry.
type Entry struct {
	Name string
	Ino  uint64
	Type uint8 // errno.DT_* value
}

// Table is the ordered set of entries inside one directory inode.
//
// INVARIANT: no two live entries share a Name.
// INVARIANT: rename-within-directory preserves an entry's position in the
// slice; rename-across-directory appends at the destination (spec.md §4.2).
type Table struct {
	entries []Entry
	index   map[string]int // name -> index into entries
}

// New returns an empty directory table.
func New() *Table {
	return &Table{index: make(map[string]int)}
}

// ValidateName enforces spec.md §3's naming rules.
func ValidateName(name string) errno.Kind {
	switch {
	case len(name) == 0 || len(name) > errno.MaxNameLen:
		return errno.ENAMETOOLONG
	case strings.ContainsRune(name, '/'):
		return errno.EINVAL
	case strings.ContainsRune(name, 0):
		return errno.EINVAL
	case name == "." || name == "..":
		return errno.EINVAL
	}
	return 0
}

// Lookup finds the child entry with the given name.
func (t *Table) Lookup(name string) (Entry, bool) {
	i, ok := t.index[name]
	if !ok {
		return Entry{}, false
	}
	return t.entries[i], true
}

// Insert adds a new child entry. Fails with EEXIST if the name is taken, or
// with the error from ValidateName if the name is malformed.
func (t *Table) Insert(name string, ino uint64, typ uint8) errno.Kind {
	if k := ValidateName(name); k != 0 {
		return k
	}
	if _, ok := t.index[name]; ok {
		return errno.EEXIST
	}

	t.entries = append(t.entries, Entry{Name: name, Ino: ino, Type: typ})
	t.index[name] = len(t.entries) - 1
	return 0
}

// Remove deletes the named child entry, returning its inode number.
func (t *Table) Remove(name string) (uint64, bool) {
	i, ok := t.index[name]
	if !ok {
		return 0, false
	}

	ino := t.entries[i].Ino
	t.entries = append(t.entries[:i], t.entries[i+1:]...)
	delete(t.index, name)
	for n, idx := range t.index {
		if idx > i {
			t.index[n] = idx - 1
		}
	}
	return ino, true
}

// RenameInPlace renames an entry without changing its position, per the
// same-directory-rename rule in spec.md §4.2.
func (t *Table) RenameInPlace(oldName, newName string) errno.Kind {
	i, ok := t.index[oldName]
	if !ok {
		return errno.ENOENT
	}
	if oldName != newName {
		if _, taken := t.index[newName]; taken {
			return errno.EEXIST
		}
	}

	delete(t.index, oldName)
	t.entries[i].Name = newName
	t.index[newName] = i
	return 0
}

// setIno repoints the named entry at a new inode and type, backing
// SetChild. It assumes the caller has already checked that name exists.
func (t *Table) setIno(name string, ino uint64, typ uint8) {
	i := t.index[name]
	t.entries[i].Ino = ino
	t.entries[i].Type = typ
}

// SetChild repoints an existing entry (used by RENAME_EXCHANGE and by
// replace-style rename once the old destination has been unlinked from
// nlink bookkeeping by the caller).
func (t *Table) SetChild(name string, ino uint64, typ uint8) errno.Kind {
	if _, ok := t.index[name]; !ok {
		return errno.ENOENT
	}
	t.setIno(name, ino, typ)
	return 0
}

// Len returns the number of live entries (excludes the implicit "." and
// "..").
func (t *Table) Len() int { return len(t.entries) }

// Entries returns a snapshot of entries in insertion/position order.
func (t *Table) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}
