package inode

import "github.com/go-tmpfs/tmpfs/errno"

// xattrSet is a sorted-by-insertion mapping of extended attribute name to
// value, per spec.md §4.1: "Extended attributes live as a sorted mapping
// inside the inode." listxattr returns names in insertion order, so we keep
// an explicit order slice alongside the map rather than relying on Go's
// randomized map iteration.
type xattrSet struct {
	values map[string][]byte
	order  []string
}

func (x *xattrSet) totalSize() int {
	n := 0
	for name, v := range x.values {
		n += len(name) + len(v)
	}
	return n
}

// GetXattr returns the current value of name, if set.
//
// EXCLUSIVE_LOCKS_REQUIRED(in.mu) or SHARED_LOCKS_REQUIRED(in.mu)
func (in *Inode) GetXattr(name string) ([]byte, bool) {
	if in.xattr.values == nil {
		return nil, false
	}
	v, ok := in.xattr.values[name]
	return v, ok
}

// ListXattr returns attribute names in insertion order.
func (in *Inode) ListXattr() []string {
	out := make([]string, len(in.xattr.order))
	copy(out, in.xattr.order)
	return out
}

// SetXattr creates or replaces an attribute, honoring XATTR_CREATE/
// XATTR_REPLACE per spec.md §4.1.
func (in *Inode) SetXattr(name string, value []byte, flags int) errno.Kind {
	if len(name) == 0 || len(name) > errno.MaxXattrName {
		return errno.ERANGE
	}

	if in.xattr.values == nil {
		in.xattr.values = make(map[string][]byte)
	}

	_, exists := in.xattr.values[name]
	switch {
	case flags&errno.XATTR_CREATE != 0 && exists:
		return errno.EEXIST
	case flags&errno.XATTR_REPLACE != 0 && !exists:
		return errno.ENODATA
	}

	prevSize := 0
	if exists {
		prevSize = len(name) + len(in.xattr.values[name])
	}
	newTotal := in.xattr.totalSize() - prevSize + len(name) + len(value)
	if newTotal > errno.MaxXattrTotal {
		return errno.ERANGE
	}

	if !exists {
		in.xattr.order = append(in.xattr.order, name)
	}
	in.xattr.values[name] = append([]byte(nil), value...)
	return 0
}

// RemoveXattr deletes an attribute, failing with ENODATA if absent.
func (in *Inode) RemoveXattr(name string) errno.Kind {
	if _, ok := in.xattr.values[name]; !ok {
		return errno.ENODATA
	}
	delete(in.xattr.values, name)
	for i, n := range in.xattr.order {
		if n == name {
			in.xattr.order = append(in.xattr.order[:i], in.xattr.order[i+1:]...)
			break
		}
	}
	return 0
}
