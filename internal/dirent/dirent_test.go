package dirent_test

import (
	"strings"
	"testing"

	. "github.com/jacobsa/ogletest"

	"github.com/go-tmpfs/tmpfs/errno"
	"github.com/go-tmpfs/tmpfs/internal/dirent"
)

func TestDirent(t *testing.T) { RunTests(t) }

////////////////////////////////////////////////////////////////////////
// Boilerplate
////////////////////////////////////////////////////////////////////////

type DirentTest struct {
	table *dirent.Table
}

func init() { RegisterTestSuite(&DirentTest{}) }

func (t *DirentTest) SetUp(ti *TestInfo) {
	t.table = dirent.New()
}

////////////////////////////////////////////////////////////////////////
// Test functions
////////////////////////////////////////////////////////////////////////

func (t *DirentTest) ValidateNameRejectsSlashAndDots() {
	ExpectEq(errno.Kind(0), dirent.ValidateName("foo"))
	ExpectEq(errno.EINVAL, dirent.ValidateName("a/b"))
	ExpectEq(errno.EINVAL, dirent.ValidateName("."))
	ExpectEq(errno.EINVAL, dirent.ValidateName(".."))
	ExpectEq(errno.ENAMETOOLONG, dirent.ValidateName(""))
	ExpectEq(errno.ENAMETOOLONG, dirent.ValidateName(strings.Repeat("x", 256)))
}

func (t *DirentTest) InsertAndLookup() {
	k := t.table.Insert("foo", 42, errno.DT_REG)
	AssertEq(errno.Kind(0), k)

	e, ok := t.table.Lookup("foo")
	AssertTrue(ok)
	ExpectEq(42, e.Ino)
	ExpectEq(errno.DT_REG, e.Type)
}

func (t *DirentTest) InsertDuplicateFails() {
	t.table.Insert("foo", 1, errno.DT_REG)
	k := t.table.Insert("foo", 2, errno.DT_REG)
	ExpectEq(errno.EEXIST, k)
}

func (t *DirentTest) RemovePreservesOtherIndices() {
	t.table.Insert("a", 1, errno.DT_REG)
	t.table.Insert("b", 2, errno.DT_REG)
	t.table.Insert("c", 3, errno.DT_REG)

	ino, ok := t.table.Remove("b")
	AssertTrue(ok)
	ExpectEq(2, ino)

	_, ok = t.table.Lookup("b")
	ExpectFalse(ok)

	e, ok := t.table.Lookup("c")
	AssertTrue(ok)
	ExpectEq(3, e.Ino)
	ExpectEq(2, t.table.Len())
}

func (t *DirentTest) RenameInPlacePreservesPosition() {
	t.table.Insert("a", 1, errno.DT_REG)
	t.table.Insert("b", 2, errno.DT_REG)

	k := t.table.RenameInPlace("a", "z")
	AssertEq(errno.Kind(0), k)

	entries := t.table.Entries()
	AssertEq(2, len(entries))
	ExpectEq("z", entries[0].Name)
	ExpectEq("b", entries[1].Name)
}

func (t *DirentTest) RenameInPlaceRejectsExistingDestination() {
	t.table.Insert("a", 1, errno.DT_REG)
	t.table.Insert("b", 2, errno.DT_REG)

	k := t.table.RenameInPlace("a", "b")
	ExpectEq(errno.EEXIST, k)
}

func (t *DirentTest) EntriesReturnsACopy() {
	t.table.Insert("a", 1, errno.DT_REG)

	entries := t.table.Entries()
	entries[0].Name = "mutated"

	e, ok := t.table.Lookup("a")
	AssertTrue(ok)
	ExpectEq("a", e.Name)
	ExpectEq(1, len(entries))
}
