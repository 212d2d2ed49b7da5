package content_test

import (
	"io"
	"testing"

	. "github.com/jacobsa/oglematchers"
	. "github.com/jacobsa/ogletest"

	"github.com/go-tmpfs/tmpfs/errno"
	"github.com/go-tmpfs/tmpfs/internal/content"
)

func TestContent(t *testing.T) { RunTests(t) }

////////////////////////////////////////////////////////////////////////
// Boilerplate
////////////////////////////////////////////////////////////////////////

type ContentTest struct {
	store *content.Store
}

func init() { RegisterTestSuite(&ContentTest{}) }

func (t *ContentTest) SetUp(ti *TestInfo) {
	t.store = content.NewStore()
}

func (t *ContentTest) readAll() []byte {
	buf := make([]byte, t.store.Size())
	n, err := t.store.ReadAt(buf, 0)
	AssertTrue(err == nil || err == io.EOF)
	return buf[:n]
}

////////////////////////////////////////////////////////////////////////
// Test functions
////////////////////////////////////////////////////////////////////////

func (t *ContentTest) EmptyStore() {
	ExpectEq(0, t.store.Size())

	buf := make([]byte, 4)
	n, err := t.store.ReadAt(buf, 0)
	ExpectEq(0, n)
	ExpectEq(io.EOF, err)
}

func (t *ContentTest) WriteThenReadBack() {
	n := t.store.WriteAt([]byte("hello"), 0)
	AssertEq(5, n)
	ExpectEq(5, t.store.Size())
	ExpectThat(t.readAll(), DeepEquals([]byte("hello")))
}

func (t *ContentTest) WriteCreatesHoleWhenPastEnd() {
	t.store.WriteAt([]byte("ab"), 0)
	t.store.WriteAt([]byte("cd"), 10)

	AssertEq(12, t.store.Size())
	got := t.readAll()
	ExpectThat(got[0:2], DeepEquals([]byte("ab")))
	for _, b := range got[2:10] {
		ExpectEq(0, b)
	}
	ExpectThat(got[10:12], DeepEquals([]byte("cd")))
}

func (t *ContentTest) OverlappingWritesSplitAndCoalesce() {
	t.store.WriteAt([]byte("aaaaaaaaaa"), 0)
	t.store.WriteAt([]byte("bbb"), 3)

	ExpectThat(t.readAll(), DeepEquals([]byte("aaabbbaaaa")))
}

func (t *ContentTest) TruncateDown() {
	t.store.WriteAt([]byte("abcdef"), 0)
	t.store.Truncate(3)

	ExpectEq(3, t.store.Size())
	ExpectThat(t.readAll(), DeepEquals([]byte("abc")))
}

func (t *ContentTest) TruncateUpLeavesHole() {
	t.store.WriteAt([]byte("ab"), 0)
	t.store.Truncate(5)

	ExpectEq(5, t.store.Size())
	ExpectThat(t.readAll(), DeepEquals([]byte{'a', 'b', 0, 0, 0}))
}

func (t *ContentTest) SeekDataAndHole() {
	t.store.WriteAt([]byte("xx"), 10)

	// Before any data: the hole at 0 is reported, then data at 10.
	off, k := t.store.SeekData(0)
	AssertEq(errno.Kind(0), k)
	ExpectEq(10, off)

	hole := t.store.SeekHole(0)
	ExpectEq(0, hole)

	hole = t.store.SeekHole(10)
	ExpectEq(12, hole)

	_, k = t.store.SeekData(12)
	ExpectEq(errno.ENXIO, k)
}

func (t *ContentTest) FallocatePunchHoleRequiresKeepSize() {
	t.store.WriteAt([]byte("abcdef"), 0)

	k := t.store.Fallocate(errno.FALLOC_FL_PUNCH_HOLE, 1, 2)
	ExpectEq(errno.EINVAL, k)

	k = t.store.Fallocate(errno.FALLOC_FL_PUNCH_HOLE|errno.FALLOC_FL_KEEP_SIZE, 1, 2)
	AssertEq(errno.Kind(0), k)
	ExpectEq(6, t.store.Size())

	got := t.readAll()
	ExpectEq('a', got[0])
	ExpectEq(0, got[1])
	ExpectEq(0, got[2])
	ExpectEq('d', got[3])
}

func (t *ContentTest) FallocateZeroRangeCountsAsData() {
	k := t.store.Fallocate(errno.FALLOC_FL_ZERO_RANGE, 0, 4)
	AssertEq(errno.Kind(0), k)
	ExpectEq(4, t.store.Size())

	// A zero-filled range is data, not a hole: SeekHole should skip past it.
	hole := t.store.SeekHole(0)
	ExpectEq(4, hole)
}

func (t *ContentTest) FallocateCollapseRange() {
	t.store.WriteAt([]byte("0123456789"), 0)

	k := t.store.Fallocate(errno.FALLOC_FL_COLLAPSE_RANGE, 2, 3)
	AssertEq(errno.Kind(0), k)
	ExpectEq(7, t.store.Size())
	ExpectThat(t.readAll(), DeepEquals([]byte("0156789")))
}

func (t *ContentTest) FallocateInsertRange() {
	t.store.WriteAt([]byte("0123456789"), 0)

	k := t.store.Fallocate(errno.FALLOC_FL_INSERT_RANGE, 2, 3)
	AssertEq(errno.Kind(0), k)
	ExpectEq(13, t.store.Size())

	got := t.readAll()
	ExpectThat(got[0:2], DeepEquals([]byte("01")))
	for _, b := range got[2:5] {
		ExpectEq(0, b)
	}
	ExpectThat(got[5:13], DeepEquals([]byte("23456789")))
}

func (t *ContentTest) FallocateInsertRangeRejectsEndOfFile() {
	t.store.WriteAt([]byte("0123456789"), 0)

	k := t.store.Fallocate(errno.FALLOC_FL_INSERT_RANGE, 10, 3)
	ExpectEq(errno.EINVAL, k)
}

func (t *ContentTest) ExtentsRoundTrip() {
	t.store.WriteAt([]byte("ab"), 0)
	t.store.WriteAt([]byte("cd"), 10)

	extents := t.store.Extents()
	AssertEq(2, len(extents))

	fresh := content.NewStore()
	fresh.LoadExtents(t.store.Size(), extents)

	buf := make([]byte, fresh.Size())
	n, _ := fresh.ReadAt(buf, 0)
	ExpectThat(buf[:n], DeepEquals(t.readAll()))
}
