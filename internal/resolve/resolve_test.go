package resolve_test

import (
	"testing"

	. "github.com/jacobsa/ogletest"
	"github.com/jacobsa/timeutil"

	"github.com/go-tmpfs/tmpfs/errno"
	"github.com/go-tmpfs/tmpfs/internal/inode"
	"github.com/go-tmpfs/tmpfs/internal/resolve"
)

func TestResolve(t *testing.T) { RunTests(t) }

////////////////////////////////////////////////////////////////////////
// Boilerplate
////////////////////////////////////////////////////////////////////////

type ResolveTest struct {
	table *inode.Table
	r     *resolve.Resolver
}

func init() { RegisterTestSuite(&ResolveTest{}) }

func (t *ResolveTest) SetUp(ti *TestInfo) {
	t.table = inode.NewTable(timeutil.RealClock(), 0, 0, 0o755)
	t.r = &resolve.Resolver{
		Table:  t.table,
		Access: func(in *inode.Inode, want int) errno.Kind { return 0 },
	}
}

// mkdir creates a directory named name under parent, returning its inode.
func (t *ResolveTest) mkdir(parent *inode.Inode, name string) *inode.Inode {
	child := t.table.Create(inode.TypeDirectory, 0o755, 0, 0)
	child.ParentIno = parent.Ino
	child.Nlink = 2
	parent.Dir.Insert(name, child.Ino, errno.DT_DIR)
	parent.Nlink++
	return child
}

func (t *ResolveTest) symlink(parent *inode.Inode, name, target string) *inode.Inode {
	child := t.table.Create(inode.TypeSymlink, 0o777, 0, 0)
	child.Symlink = target
	child.Nlink = 1
	parent.Dir.Insert(name, child.Ino, errno.DT_LNK)
	return child
}

func (t *ResolveTest) root() *inode.Inode {
	in, _ := t.table.Lookup(inode.RootIno)
	return in
}

////////////////////////////////////////////////////////////////////////
// Test functions
////////////////////////////////////////////////////////////////////////

func (t *ResolveTest) RootItself() {
	res, k := t.r.Resolve(inode.RootIno, "/", resolve.Flags{})
	AssertEq(errno.Kind(0), k)
	ExpectTrue(res.Found)
	ExpectEq(inode.RootIno, res.TargetIno)
}

func (t *ResolveTest) MissingFinalComponentIsNotAnError() {
	res, k := t.r.Resolve(inode.RootIno, "/missing", resolve.Flags{})
	AssertEq(errno.Kind(0), k)
	ExpectFalse(res.Found)
	ExpectEq(inode.RootIno, res.ParentIno)
	ExpectEq("missing", res.LeafName)
}

func (t *ResolveTest) MissingMidPathComponentIsENOENT() {
	_, k := t.r.Resolve(inode.RootIno, "/missing/child", resolve.Flags{})
	ExpectEq(errno.ENOENT, k)
}

func (t *ResolveTest) NestedDirectory() {
	a := t.mkdir(t.root(), "a")
	b := t.mkdir(a, "b")

	res, k := t.r.Resolve(inode.RootIno, "/a/b", resolve.Flags{})
	AssertEq(errno.Kind(0), k)
	AssertTrue(res.Found)
	ExpectEq(b.Ino, res.TargetIno)
}

func (t *ResolveTest) DotDotWalksToParent() {
	a := t.mkdir(t.root(), "a")
	t.mkdir(a, "b")

	res, k := t.r.Resolve(inode.RootIno, "/a/b/..", resolve.Flags{})
	AssertEq(errno.Kind(0), k)
	AssertTrue(res.Found)
	ExpectEq(a.Ino, res.TargetIno)
}

func (t *ResolveTest) SymlinkIsFollowedByDefault() {
	target := t.mkdir(t.root(), "real")
	t.symlink(t.root(), "link", "/real")

	res, k := t.r.Resolve(inode.RootIno, "/link", resolve.Flags{})
	AssertEq(errno.Kind(0), k)
	AssertTrue(res.Found)
	ExpectEq(target.Ino, res.TargetIno)
}

func (t *ResolveTest) SymlinkNotFollowedWhenNoFollowFinalSet() {
	t.mkdir(t.root(), "real")
	link := t.symlink(t.root(), "link", "/real")

	res, k := t.r.Resolve(inode.RootIno, "/link", resolve.Flags{NoFollowFinal: true})
	AssertEq(errno.Kind(0), k)
	AssertTrue(res.Found)
	ExpectEq(link.Ino, res.TargetIno)
}

func (t *ResolveTest) SymlinkLoopFailsWithELOOP() {
	t.symlink(t.root(), "a", "/b")
	t.symlink(t.root(), "b", "/a")

	_, k := t.r.Resolve(inode.RootIno, "/a", resolve.Flags{})
	ExpectEq(errno.ELOOP, k)
}

func (t *ResolveTest) EmptyPathWithFlagReturnsStartInode() {
	res, k := t.r.Resolve(inode.RootIno, "", resolve.Flags{EmptyPath: true})
	AssertEq(errno.Kind(0), k)
	ExpectTrue(res.Found)
	ExpectEq(inode.RootIno, res.TargetIno)
}

func (t *ResolveTest) EmptyPathWithoutFlagIsENOENT() {
	_, k := t.r.Resolve(inode.RootIno, "", resolve.Flags{})
	ExpectEq(errno.ENOENT, k)
}
