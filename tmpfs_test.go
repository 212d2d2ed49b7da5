package tmpfs_test

import (
	"bytes"
	"testing"
	"time"

	. "github.com/jacobsa/oglematchers"
	. "github.com/jacobsa/ogletest"
	"github.com/jacobsa/timeutil"
	"github.com/kylelemons/godebug/pretty"

	"github.com/go-tmpfs/tmpfs"
	"github.com/go-tmpfs/tmpfs/errno"
	"github.com/go-tmpfs/tmpfs/tmpfstesting"
)

func TestTmpfs(t *testing.T) { RunTests(t) }

////////////////////////////////////////////////////////////////////////
// Boilerplate
////////////////////////////////////////////////////////////////////////

type TmpfsTest struct {
	clock *timeutil.SimulatedClock
	fs    *tmpfs.FS
}

func init() { RegisterTestSuite(&TmpfsTest{}) }

func (t *TmpfsTest) SetUp(ti *TestInfo) {
	t.clock = &timeutil.SimulatedClock{}
	t.clock.SetTime(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	t.fs = tmpfs.New(
		tmpfs.WithClock(t.clock),
		tmpfs.WithUID(1000),
		tmpfs.WithGID(1000),
		tmpfs.WithUmask(0o022),
	)
}

func (t *TmpfsTest) writeFile(path string, contents string) int {
	fd, err := t.fs.OpenAt(errno.AT_FDCWD, path, errno.O_CREAT|errno.O_WRONLY|errno.O_TRUNC, 0o644)
	AssertEq(nil, err)

	n, err := t.fs.Write(fd, []byte(contents))
	AssertEq(nil, err)
	AssertEq(len(contents), n)

	return fd
}

////////////////////////////////////////////////////////////////////////
// Test functions
////////////////////////////////////////////////////////////////////////

func (t *TmpfsTest) CreateWriteReadBack() {
	fd := t.writeFile("/foo.txt", "hello, world")
	AssertEq(nil, t.fs.CloseFD(fd))

	fd2, err := t.fs.OpenAt(errno.AT_FDCWD, "/foo.txt", errno.O_RDONLY, 0)
	AssertEq(nil, err)

	buf := make([]byte, 64)
	n, err := t.fs.Read(fd2, buf)
	AssertEq(nil, err)
	ExpectEq("hello, world", string(buf[:n]))

	st, err := t.fs.Stat("/foo.txt")
	AssertEq(nil, err)
	ExpectEq(12, st.Size)
	ExpectEq(1, st.Nlink)
}

func (t *TmpfsTest) OpenMissingFileWithoutCreateFails() {
	_, err := t.fs.OpenAt(errno.AT_FDCWD, "/missing", errno.O_RDONLY, 0)
	ExpectThat(err, tmpfstesting.ErrnoIs(errno.ENOENT))
}

func (t *TmpfsTest) MkdirAndGetdents() {
	AssertEq(nil, t.fs.Mkdirat(errno.AT_FDCWD, "/dir", 0o755))
	t.writeFile("/dir/a.txt", "x")

	fd, err := t.fs.OpenAt(errno.AT_FDCWD, "/dir", errno.O_RDONLY|errno.O_DIRECTORY, 0)
	AssertEq(nil, err)

	entries, err := t.fs.Getdents(fd, 64)
	AssertEq(nil, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	ExpectThat(names, ContainsExactly(".", "..", "a.txt"))
}

func (t *TmpfsTest) HardlinkSharesInodeAndNlink() {
	t.writeFile("/a", "data")

	AssertEq(nil, t.fs.Linkat(errno.AT_FDCWD, "/a", errno.AT_FDCWD, "/b", 0))

	sa, err := t.fs.Stat("/a")
	AssertEq(nil, err)
	sb, err := t.fs.Stat("/b")
	AssertEq(nil, err)

	ExpectEq(sa.Ino, sb.Ino)
	ExpectEq(2, sa.Nlink)

	AssertEq(nil, t.fs.Unlinkat(errno.AT_FDCWD, "/a", 0))
	sb2, err := t.fs.Stat("/b")
	AssertEq(nil, err)
	ExpectEq(1, sb2.Nlink)
}

func (t *TmpfsTest) RenameMovesAcrossDirectories() {
	AssertEq(nil, t.fs.Mkdirat(errno.AT_FDCWD, "/src", 0o755))
	AssertEq(nil, t.fs.Mkdirat(errno.AT_FDCWD, "/dst", 0o755))
	t.writeFile("/src/f", "v")

	AssertEq(nil, t.fs.Renameat2(errno.AT_FDCWD, "/src/f", errno.AT_FDCWD, "/dst/f", 0))

	_, err := t.fs.Stat("/src/f")
	ExpectThat(err, tmpfstesting.ErrnoIs(errno.ENOENT))

	st, err := t.fs.Stat("/dst/f")
	AssertEq(nil, err)
	ExpectEq(1, st.Nlink)
}

func (t *TmpfsTest) SymlinkIsFollowedOnStatButNotLstat() {
	t.writeFile("/target", "abc")
	AssertEq(nil, t.fs.Symlinkat("/target", errno.AT_FDCWD, "/link"))

	st, err := t.fs.Stat("/link")
	AssertEq(nil, err)
	ExpectEq(3, st.Size)

	lst, err := t.fs.Lstat("/link")
	AssertEq(nil, err)
	ExpectEq(int64(len("/target")), lst.Size)
}

func (t *TmpfsTest) TruncateExtendsWithZeros() {
	fd := t.writeFile("/f", "ab")
	AssertEq(nil, t.fs.Ftruncate(fd, 5))

	// writeFile's fd is write-only; read back through a separate read fd.
	rfd, err := t.fs.OpenAt(errno.AT_FDCWD, "/f", errno.O_RDONLY, 0)
	AssertEq(nil, err)

	buf := make([]byte, 5)
	n, err := t.fs.Pread(rfd, buf, 0)
	AssertEq(nil, err)
	ExpectThat(buf[:n], ContainsExactly(byte('a'), byte('b'), byte(0), byte(0), byte(0)))
}

func (t *TmpfsTest) XattrSetGetRemove() {
	t.writeFile("/f", "v")

	AssertEq(nil, t.fs.Setxattr("/f", "user.tag", []byte("one"), 0))
	v, err := t.fs.Getxattr("/f", "user.tag")
	AssertEq(nil, err)
	ExpectEq("one", string(v))

	names, err := t.fs.Listxattr("/f")
	AssertEq(nil, err)
	ExpectThat(names, ContainsExactly("user.tag"))

	AssertEq(nil, t.fs.Removexattr("/f", "user.tag"))
	_, err = t.fs.Getxattr("/f", "user.tag")
	ExpectThat(err, tmpfstesting.ErrnoIs(errno.ENODATA))
}

func (t *TmpfsTest) SnapshotRoundTrip() {
	AssertEq(nil, t.fs.Mkdirat(errno.AT_FDCWD, "/dir", 0o755))
	t.writeFile("/dir/f", "persisted")

	var buf bytes.Buffer
	AssertEq(nil, t.fs.DumpTo(&buf))

	restored, err := tmpfs.LoadFS(&buf, tmpfs.WithClock(t.clock))
	AssertEq(nil, err)

	fd, err := restored.OpenAt(errno.AT_FDCWD, "/dir/f", errno.O_RDONLY, 0)
	AssertEq(nil, err)

	out := make([]byte, 32)
	n, err := restored.Read(fd, out)
	AssertEq(nil, err)
	ExpectEq("persisted", string(out[:n]))
}

// treeDump is the comparable, structural shape of a directory subtree, used
// by SnapshotRoundTripIsStructurallyIdentical to diff two instances with
// pretty.Compare the way loopback_test.go diffs before/after os.FileInfo
// snapshots (hardlinked inode numbers are deliberately not part of the
// shape: dumpTo/loadFrom are only required to preserve sharing, not the
// numeric ino itself).
type treeDump struct {
	Mode     uint32
	Size     int64
	Contents string
	Children map[string]treeDump
}

func (t *TmpfsTest) dumpTree(fs *tmpfs.FS, path string) treeDump {
	st, err := fs.Lstat(path)
	AssertEq(nil, err)

	d := treeDump{Mode: st.Mode, Size: st.Size}
	if st.Mode&errno.S_IFMT == errno.S_IFDIR {
		fd, err := fs.OpenAt(errno.AT_FDCWD, path, errno.O_RDONLY|errno.O_DIRECTORY, 0)
		AssertEq(nil, err)
		defer fs.CloseFD(fd)

		entries, err := fs.Getdents(fd, 256)
		AssertEq(nil, err)

		d.Children = make(map[string]treeDump)
		for _, e := range entries {
			if e.Name == "." || e.Name == ".." {
				continue
			}
			child := path + "/" + e.Name
			if path == "/" {
				child = "/" + e.Name
			}
			d.Children[e.Name] = t.dumpTree(fs, child)
		}
	} else if st.Mode&errno.S_IFMT == errno.S_IFREG {
		fd, err := fs.OpenAt(errno.AT_FDCWD, path, errno.O_RDONLY, 0)
		AssertEq(nil, err)
		defer fs.CloseFD(fd)

		buf := make([]byte, st.Size)
		n, _ := fs.Pread(fd, buf, 0)
		d.Contents = string(buf[:n])
	}
	return d
}

func (t *TmpfsTest) SnapshotRoundTripIsStructurallyIdentical() {
	AssertEq(nil, t.fs.Mkdirat(errno.AT_FDCWD, "/dir", 0o755))
	t.writeFile("/dir/f", "persisted")
	t.writeFile("/top", "hello")

	before := t.dumpTree(t.fs, "/")

	var buf bytes.Buffer
	AssertEq(nil, t.fs.DumpTo(&buf))
	restored, err := tmpfs.LoadFS(&buf, tmpfs.WithClock(t.clock))
	AssertEq(nil, err)

	after := t.dumpTree(restored, "/")

	ExpectEq("", pretty.Compare(before, after))
}

func (t *TmpfsTest) ChdirAndGetcwd() {
	AssertEq(nil, t.fs.Mkdirat(errno.AT_FDCWD, "/a", 0o755))
	AssertEq(nil, t.fs.Chdir("/a"))

	cwd, err := t.fs.Getcwd()
	AssertEq(nil, err)
	ExpectEq("/a", cwd)
}
