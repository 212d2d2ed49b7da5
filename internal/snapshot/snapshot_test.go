package snapshot_test

import (
	"bytes"
	"testing"

	. "github.com/jacobsa/ogletest"
	"github.com/jacobsa/timeutil"

	"github.com/go-tmpfs/tmpfs/errno"
	"github.com/go-tmpfs/tmpfs/internal/inode"
	"github.com/go-tmpfs/tmpfs/internal/snapshot"
)

func TestSnapshot(t *testing.T) { RunTests(t) }

////////////////////////////////////////////////////////////////////////
// Boilerplate
////////////////////////////////////////////////////////////////////////

type SnapshotTest struct {
	clock timeutil.Clock
	table *inode.Table
}

func init() { RegisterTestSuite(&SnapshotTest{}) }

func (t *SnapshotTest) SetUp(ti *TestInfo) {
	t.clock = timeutil.RealClock()
	t.table = inode.NewTable(t.clock, 1000, 1000, 0o755)
}

func (t *SnapshotTest) root() *inode.Inode {
	in, _ := t.table.Lookup(inode.RootIno)
	return in
}

////////////////////////////////////////////////////////////////////////
// Test functions
////////////////////////////////////////////////////////////////////////

func (t *SnapshotTest) RoundTripEmptyFilesystem() {
	sb := snapshot.Superblock{RootIno: inode.RootIno, CWDIno: inode.RootIno, Umask: 0o022, UID: 1000, GID: 1000}

	var buf bytes.Buffer
	err := snapshot.Dump(&buf, sb, t.table)
	AssertEq(nil, err)

	gotSb, gotTable, k := snapshot.Load(&buf, t.clock)
	AssertEq(errno.Kind(0), k)
	ExpectEq(sb.CWDIno, gotSb.CWDIno)
	ExpectEq(sb.UID, gotSb.UID)

	root, ok := gotTable.Lookup(inode.RootIno)
	AssertTrue(ok)
	ExpectTrue(root.IsDir())
}

func (t *SnapshotTest) RoundTripPreservesHardlinks() {
	file := t.table.Create(inode.TypeRegular, 0o644, 1000, 1000)
	file.File.WriteAt([]byte("payload"), 0)
	file.Nlink = 2

	root := t.root()
	root.Dir.Insert("a", file.Ino, errno.DT_REG)
	root.Dir.Insert("b", file.Ino, errno.DT_REG)

	sb := snapshot.Superblock{RootIno: inode.RootIno, CWDIno: inode.RootIno, UID: 1000, GID: 1000}

	var buf bytes.Buffer
	AssertEq(nil, snapshot.Dump(&buf, sb, t.table))

	_, gotTable, k := snapshot.Load(&buf, t.clock)
	AssertEq(errno.Kind(0), k)

	gotRoot, ok := gotTable.Lookup(inode.RootIno)
	AssertTrue(ok)

	ea, okA := gotRoot.Dir.Lookup("a")
	eb, okB := gotRoot.Dir.Lookup("b")
	AssertTrue(okA)
	AssertTrue(okB)
	ExpectEq(ea.Ino, eb.Ino)

	restored, ok := gotTable.Lookup(ea.Ino)
	AssertTrue(ok)
	ExpectEq(2, restored.Nlink)

	got := make([]byte, 7)
	n, _ := restored.File.ReadAt(got, 0)
	ExpectEq("payload", string(got[:n]))
}

func (t *SnapshotTest) RoundTripPreservesXattrsAndSymlinks() {
	link := t.table.Create(inode.TypeSymlink, 0o777, 1000, 1000)
	link.Symlink = "/a/b"
	link.Nlink = 1
	link.SetXattr("user.note", []byte("hi"), 0)

	root := t.root()
	root.Dir.Insert("link", link.Ino, errno.DT_LNK)

	sb := snapshot.Superblock{RootIno: inode.RootIno, CWDIno: inode.RootIno, UID: 1000, GID: 1000}

	var buf bytes.Buffer
	AssertEq(nil, snapshot.Dump(&buf, sb, t.table))

	_, gotTable, k := snapshot.Load(&buf, t.clock)
	AssertEq(errno.Kind(0), k)

	gotRoot, _ := gotTable.Lookup(inode.RootIno)
	e, ok := gotRoot.Dir.Lookup("link")
	AssertTrue(ok)

	restored, ok := gotTable.Lookup(e.Ino)
	AssertTrue(ok)
	ExpectEq("/a/b", restored.Symlink)

	v, ok := restored.GetXattr("user.note")
	AssertTrue(ok)
	ExpectEq("hi", string(v))
}

func (t *SnapshotTest) LoadRejectsBadMagic() {
	_, _, k := snapshot.Load(bytes.NewReader([]byte("nope")), t.clock)
	ExpectEq(errno.EINVAL, k)
}

func (t *SnapshotTest) LoadRejectsTruncatedStream() {
	sb := snapshot.Superblock{RootIno: inode.RootIno, CWDIno: inode.RootIno}
	var buf bytes.Buffer
	AssertEq(nil, snapshot.Dump(&buf, sb, t.table))

	truncated := buf.Bytes()[:buf.Len()-4]
	_, _, k := snapshot.Load(bytes.NewReader(truncated), t.clock)
	ExpectEq(errno.EINVAL, k)
}
