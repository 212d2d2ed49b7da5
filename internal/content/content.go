// Package content implements the sparse byte store behind a regular file
// inode (C1): an ordered, non-overlapping extent list with implicit
// zero-filled holes between extents, plus the five fallocate modes and the
// SEEK_DATA/SEEK_HOLE queries from spec.md §4.4.
//
// Grounded on samples/memfs/inode.go's ReadAt/WriteAt/SetAttributes (same
// ReaderAt/WriterAt-shaped methods), generalized from a flat []byte to a
// sparse extent list because the distilled spec requires hole-aware
// fallocate, which a flat buffer cannot express.
package content

import (
	"io"

	"github.com/go-tmpfs/tmpfs/errno"
)

// extent is a contiguous, non-empty run of explicit (non-hole) bytes.
type extent struct {
	offset int64
	data   []byte
}

func (e extent) end() int64 { return e.offset + int64(len(e.data)) }

// Store is the content of one regular file. It performs no locking of its
// own: callers (the owning inode) are expected to already hold the
// appropriate lock, matching the single-threaded model in spec.md §5.
//
// INVARIANT: extents are sorted by offset and pairwise non-overlapping.
// INVARIANT: size >= the end of the last extent.
type Store struct {
	size    int64
	extents []extent
}

// NewStore returns an empty (zero-length) content store.
func NewStore() *Store { return &Store{} }

// Size returns the file's logical size.
func (s *Store) Size() int64 { return s.size }

// ReadAt fills p from offset off, zero-filling holes. Mirrors io.ReaderAt's
// short-read contract: if fewer than len(p) bytes are available, it returns
// io.EOF alongside the partial count.
func (s *Store) ReadAt(p []byte, off int64) (n int, err error) {
	if off >= s.size {
		return 0, io.EOF
	}

	end := off + int64(len(p))
	if end > s.size {
		end = s.size
	}
	want := end - off

	for i := range p {
		p[i] = 0
	}

	for _, e := range s.extents {
		if e.end() <= off {
			continue
		}
		if e.offset >= end {
			break
		}
		start := off
		if e.offset > start {
			start = e.offset
		}
		stop := end
		if e.end() < stop {
			stop = e.end()
		}
		copy(p[start-off:stop-off], e.data[start-e.offset:stop-e.offset])
	}

	n = int(want)
	if n < len(p) {
		err = io.EOF
	}
	return
}

// WriteAt writes p at offset off, extending size and merging/splitting
// extents as needed. Always a full write (matches io.WriterAt; tmpfs never
// short-writes).
func (s *Store) WriteAt(p []byte, off int64) (n int) {
	if len(p) == 0 {
		return 0
	}

	length := int64(len(p))
	s.clearRange(off, length)
	s.insertSorted(extent{offset: off, data: append([]byte(nil), p...)})
	s.coalesce()

	if off+length > s.size {
		s.size = off + length
	}
	return len(p)
}

// Truncate sets the logical size, dropping extent data past the cut and
// leaving a hole when growing.
func (s *Store) Truncate(newSize int64) {
	if newSize < s.size {
		s.dropBeyond(newSize)
	}
	s.size = newSize
}

// dropBeyond removes/trims all extent data at or after cut.
func (s *Store) dropBeyond(cut int64) {
	out := s.extents[:0:0]
	for _, e := range s.extents {
		if e.offset >= cut {
			continue
		}
		if e.end() > cut {
			e.data = e.data[:cut-e.offset]
		}
		out = append(out, e)
	}
	s.extents = out
}

// clearRange removes or trims any extent data intersecting [off, off+length).
func (s *Store) clearRange(off, length int64) {
	if length <= 0 {
		return
	}
	end := off + length

	var out []extent
	for _, e := range s.extents {
		if e.end() <= off || e.offset >= end {
			out = append(out, e)
			continue
		}
		if e.offset < off {
			out = append(out, extent{offset: e.offset, data: append([]byte(nil), e.data[:off-e.offset]...)})
		}
		if e.end() > end {
			out = append(out, extent{offset: end, data: append([]byte(nil), e.data[end-e.offset:]...)})
		}
	}
	s.extents = out
}

// insertSorted places e into the sorted extent list.
func (s *Store) insertSorted(e extent) {
	i := 0
	for i < len(s.extents) && s.extents[i].offset < e.offset {
		i++
	}
	s.extents = append(s.extents, extent{})
	copy(s.extents[i+1:], s.extents[i:])
	s.extents[i] = e
}

// coalesce merges adjacent extents whose byte ranges touch, keeping the
// extent list minimal.
func (s *Store) coalesce() {
	if len(s.extents) < 2 {
		return
	}
	out := s.extents[:1]
	for _, e := range s.extents[1:] {
		last := &out[len(out)-1]
		if last.end() == e.offset {
			last.data = append(last.data, e.data...)
			continue
		}
		out = append(out, e)
	}
	s.extents = out
}

// shiftRight splits any extent straddling off and shifts everything at/after
// off right by delta, used by INSERT_RANGE.
func (s *Store) shiftRight(off, delta int64) {
	var out []extent
	for _, e := range s.extents {
		switch {
		case e.end() <= off:
			out = append(out, e)
		case e.offset >= off:
			out = append(out, extent{offset: e.offset + delta, data: e.data})
		default:
			left := extent{offset: e.offset, data: append([]byte(nil), e.data[:off-e.offset]...)}
			right := extent{offset: off + delta, data: append([]byte(nil), e.data[off-e.offset:]...)}
			out = append(out, left, right)
		}
	}
	s.extents = out
}

// shiftLeft shifts every extent at/after fromOff left by delta, used by
// COLLAPSE_RANGE after the removed window has already been cleared.
func (s *Store) shiftLeft(fromOff, delta int64) {
	for i := range s.extents {
		if s.extents[i].offset >= fromOff {
			s.extents[i].offset -= delta
		}
	}
}

// Fallocate implements the five modes from spec.md §4.4. mode is the raw
// FALLOC_FL_* bitmask (0 == "default").
func (s *Store) Fallocate(mode uint32, off, length int64) errno.Kind {
	if off < 0 || length <= 0 {
		return errno.EINVAL
	}

	keepSize := mode&errno.FALLOC_FL_KEEP_SIZE != 0

	switch {
	case mode&errno.FALLOC_FL_PUNCH_HOLE != 0:
		if !keepSize {
			return errno.EINVAL
		}
		s.clearRange(off, length)
		return 0

	case mode&errno.FALLOC_FL_COLLAPSE_RANGE != 0:
		if off+length > s.size {
			return errno.EINVAL
		}
		s.clearRange(off, length)
		s.shiftLeft(off+length, length)
		s.size -= length
		return 0

	case mode&errno.FALLOC_FL_ZERO_RANGE != 0:
		s.clearRange(off, length)
		zeroLen := length
		if keepSize && off+zeroLen > s.size {
			zeroLen = s.size - off
		}
		if zeroLen > 0 {
			s.insertSorted(extent{offset: off, data: make([]byte, zeroLen)})
			s.coalesce()
		}
		if !keepSize && off+length > s.size {
			s.size = off + length
		}
		return 0

	case mode&errno.FALLOC_FL_INSERT_RANGE != 0:
		if off >= s.size {
			return errno.EINVAL
		}
		s.shiftRight(off, length)
		s.size += length
		return 0

	case mode == 0 || mode == errno.FALLOC_FL_KEEP_SIZE:
		if !keepSize && off+length > s.size {
			s.size = off + length
		}
		return 0

	default:
		return errno.EOPNOTSUPP
	}
}

// SeekData returns the first offset >= off containing data, per the
// SEEK_DATA semantics in spec.md §4.4 (EOF counts as data when off is
// strictly before the end of file).
func (s *Store) SeekData(off int64) (int64, errno.Kind) {
	if off >= s.size {
		return 0, errno.ENXIO
	}
	for _, e := range s.extents {
		if e.end() <= off {
			continue
		}
		if e.offset > off {
			return e.offset, 0
		}
		return off, 0
	}
	return s.size, 0
}

// ExtentView is the exported, copy-safe view of one extent, used by the
// snapshot codec (C7) to serialize/deserialize content stores without
// exposing the internal extent type.
type ExtentView struct {
	Offset int64
	Data   []byte
}

// Extents returns a copy of the store's extent list in offset order.
func (s *Store) Extents() []ExtentView {
	out := make([]ExtentView, len(s.extents))
	for i, e := range s.extents {
		out[i] = ExtentView{Offset: e.offset, Data: append([]byte(nil), e.data...)}
	}
	return out
}

// LoadExtents replaces the store's contents with the given size and extent
// list, used by the snapshot codec when restoring an instance. Extents must
// already be sorted and non-overlapping.
func (s *Store) LoadExtents(size int64, extents []ExtentView) {
	s.size = size
	s.extents = s.extents[:0]
	for _, e := range extents {
		s.extents = append(s.extents, extent{offset: e.Offset, data: append([]byte(nil), e.Data...)})
	}
}

// SeekHole returns the first offset >= off that is a hole (or EOF if none).
func (s *Store) SeekHole(off int64) int64 {
	if off >= s.size {
		return s.size
	}
	cur := off
	for _, e := range s.extents {
		if e.end() <= cur {
			continue
		}
		if e.offset > cur {
			return cur
		}
		cur = e.end()
		if cur >= s.size {
			return s.size
		}
	}
	return s.size
}
