package tmpfs

import (
	"time"

	"github.com/go-tmpfs/tmpfs/errno"
	"github.com/go-tmpfs/tmpfs/internal/inode"
)

// Stat_t mirrors the subset of struct stat / struct statx this library
// populates (spec.md §4.6): every field is always filled in regardless of
// which statx mask bits the caller asked for.
type Stat_t struct {
	Ino   uint64
	Mode  uint32
	Nlink uint32
	UID   uint32
	GID   uint32
	Size  int64
	Atime time.Time
	Mtime time.Time
	Ctime time.Time
	Btime time.Time
}

func statOf(in *inode.Inode) Stat_t {
	in.RLock()
	defer in.RUnlock()

	var size int64
	if in.IsRegular() {
		size = in.File.Size()
	} else if in.IsSymlink() {
		size = int64(len(in.Symlink))
	}

	return Stat_t{
		Ino:   in.Ino,
		Mode:  in.Mode,
		Nlink: in.Nlink,
		UID:   in.UID,
		GID:   in.GID,
		Size:  size,
		Atime: in.Atime,
		Mtime: in.Mtime,
		Ctime: in.Ctime,
		Btime: in.Btime,
	}
}

func (fs *FS) statAt(dirfd int, path string, noFollowFinal, emptyPath bool) (Stat_t, errno.Kind) {
	res, k := fs.resolveAt(dirfd, path, noFollowFinal, emptyPath)
	if k != 0 {
		return Stat_t{}, k
	}
	if !res.Found {
		return Stat_t{}, errno.ENOENT
	}
	in, ok := fs.table.Lookup(res.TargetIno)
	if !ok {
		return Stat_t{}, errno.ENOENT
	}
	return statOf(in), 0
}

// Stat implements stat(2): resolves path following every symlink, including
// a trailing one.
func (fs *FS) Stat(path string) (st Stat_t, err error) {
	report := fs.trace("Stat")
	defer func() { report(err) }()
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var k errno.Kind
	st, k = fs.statAt(errno.AT_FDCWD, path, false, false)
	if k != 0 {
		err = k
	}
	return
}

// Lstat implements lstat(2): does not follow a trailing symlink.
func (fs *FS) Lstat(path string) (st Stat_t, err error) {
	report := fs.trace("Lstat")
	defer func() { report(err) }()
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var k errno.Kind
	st, k = fs.statAt(errno.AT_FDCWD, path, true, false)
	if k != 0 {
		err = k
	}
	return
}

// Fstat implements fstat(2): stats the inode behind an open fd.
func (fs *FS) Fstat(fd int) (st Stat_t, err error) {
	report := fs.trace("Fstat")
	defer func() { report(err) }()
	fs.mu.Lock()
	defer fs.mu.Unlock()

	_, in, k := fs.getOpenFile(fd)
	if k != 0 {
		err = k
		return
	}
	st = statOf(in)
	return
}

// Statx implements statx(2). mask is accepted but not consulted, and no
// result mask is returned: every field of Stat_t is always populated.
func (fs *FS) Statx(dirfd int, path string, flags int, mask uint32) (st Stat_t, err error) {
	report := fs.trace("Statx")
	defer func() { report(err) }()
	fs.mu.Lock()
	defer fs.mu.Unlock()

	noFollow := flags&errno.AT_SYMLINK_NOFOLLOW != 0
	emptyPath := flags&errno.AT_EMPTY_PATH != 0

	var k errno.Kind
	st, k = fs.statAt(dirfd, path, noFollow, emptyPath)
	if k != 0 {
		err = k
	}
	return
}

// Chmod implements chmod(2).
func (fs *FS) Chmod(path string, mode uint32) error {
	return fs.chmodImpl(errno.AT_FDCWD, path, 0, false, mode)
}

// Fchmod implements fchmod(2).
func (fs *FS) Fchmod(fd int, mode uint32) error {
	return fs.chmodImpl(0, "", fd, true, mode)
}

// Fchmodat implements fchmodat(2).
func (fs *FS) Fchmodat(dirfd int, path string, mode uint32, flags int) error {
	return fs.chmodImplFlags(dirfd, path, 0, false, mode, flags)
}

func (fs *FS) chmodImpl(dirfd int, path string, fd int, useFD bool, mode uint32) error {
	return fs.chmodImplFlags(dirfd, path, fd, useFD, mode, 0)
}

func (fs *FS) chmodImplFlags(dirfd int, path string, fd int, useFD bool, mode uint32, flags int) (err error) {
	report := fs.trace("Chmod")
	defer func() { report(err) }()

	fs.mu.Lock()
	defer fs.mu.Unlock()

	var in *inode.Inode
	if useFD {
		_, i, k := fs.getOpenFile(fd)
		if k != 0 {
			err = k
			return
		}
		in = i
	} else {
		in, err = fs.pathTargetErr(dirfd, path, flags&errno.AT_SYMLINK_NOFOLLOW != 0)
		if err != nil {
			return
		}
	}

	if fs.uid != 0 && fs.uid != in.UID {
		err = errno.EPERM
		return
	}

	in.Lock()
	in.Mode = (in.Mode & errno.S_IFMT) | (mode &^ errno.S_IFMT)
	in.Ctime = fs.clock.Now()
	in.Unlock()
	return nil
}

func (fs *FS) pathTargetErr(dirfd int, path string, noFollow bool) (*inode.Inode, error) {
	res, k := fs.resolveAt(dirfd, path, noFollow, false)
	if k != 0 {
		return nil, k
	}
	if !res.Found {
		return nil, errno.ENOENT
	}
	in, ok := fs.table.Lookup(res.TargetIno)
	if !ok {
		return nil, errno.ENOENT
	}
	return in, nil
}

// Access implements access(2).
func (fs *FS) Access(path string, mode int) error {
	return fs.accessImpl(errno.AT_FDCWD, path, mode, 0)
}

// Faccessat implements faccessat(2).
func (fs *FS) Faccessat(dirfd int, path string, mode int) error {
	return fs.accessImpl(dirfd, path, mode, 0)
}

// Faccessat2 implements faccessat2(2), which additionally accepts flags such
// as AT_SYMLINK_NOFOLLOW.
func (fs *FS) Faccessat2(dirfd int, path string, mode int, flags int) error {
	return fs.accessImpl(dirfd, path, mode, flags)
}

func (fs *FS) accessImpl(dirfd int, path string, mode int, flags int) (err error) {
	report := fs.trace("Access")
	defer func() { report(err) }()

	fs.mu.Lock()
	defer fs.mu.Unlock()

	in, err := fs.pathTargetErr(dirfd, path, flags&errno.AT_SYMLINK_NOFOLLOW != 0)
	if err != nil {
		return
	}
	if mode == errno.F_OK {
		return nil
	}
	if k := fs.checkAccess(in, mode); k != 0 {
		err = k
	}
	return
}

func (fs *FS) truncateImpl(in *inode.Inode, size int64) errno.Kind {
	if size < 0 {
		return errno.EINVAL
	}
	if !in.IsRegular() {
		return errno.EINVAL
	}

	in.Lock()
	in.File.Truncate(size)
	now := fs.clock.Now()
	in.Mtime, in.Ctime = now, now
	in.Unlock()
	return 0
}

// Truncate implements truncate(2).
func (fs *FS) Truncate(path string, size int64) (err error) {
	report := fs.trace("Truncate")
	defer func() { report(err) }()

	fs.mu.Lock()
	defer fs.mu.Unlock()

	in, ierr := fs.pathTargetErr(errno.AT_FDCWD, path, false)
	if ierr != nil {
		err = ierr
		return
	}
	if k := fs.truncateImpl(in, size); k != 0 {
		err = k
	}
	return
}

// Ftruncate implements ftruncate(2).
func (fs *FS) Ftruncate(fd int, size int64) (err error) {
	report := fs.trace("Ftruncate")
	defer func() { report(err) }()

	fs.mu.Lock()
	defer fs.mu.Unlock()

	_, in, k := fs.getOpenFile(fd)
	if k != 0 {
		err = k
		return
	}
	if k := fs.truncateImpl(in, size); k != 0 {
		err = k
	}
	return
}

// Fallocate implements fallocate(2) against an open regular-file fd.
func (fs *FS) Fallocate(fd int, mode uint32, off, length int64) (err error) {
	report := fs.trace("Fallocate")
	defer func() { report(err) }()

	fs.mu.Lock()
	defer fs.mu.Unlock()

	_, in, k := fs.getOpenFile(fd)
	if k != 0 {
		err = k
		return
	}
	if !in.IsRegular() {
		err = errno.EINVAL
		return
	}

	in.Lock()
	k = in.File.Fallocate(mode, off, length)
	if k == 0 {
		in.Ctime = fs.clock.Now()
	}
	in.Unlock()

	if k != 0 {
		err = k
	}
	return
}

// timeSpec mirrors a utimensat timespec slot: either a concrete time, or one
// of the UTIME_NOW/UTIME_OMIT sentinels (spec.md §4.6).
type timeSpec struct {
	Sentinel int64 // errno.UTIME_NOW, errno.UTIME_OMIT, or 0 for a concrete Time
	Time     time.Time
}

func applyTimeSpec(cur time.Time, now time.Time, ts timeSpec) time.Time {
	switch ts.Sentinel {
	case errno.UTIME_OMIT:
		return cur
	case errno.UTIME_NOW:
		return now
	default:
		return ts.Time
	}
}

func (fs *FS) utimesImpl(in *inode.Inode, atime, mtime timeSpec) {
	now := fs.clock.Now()
	in.Lock()
	in.Atime = applyTimeSpec(in.Atime, now, atime)
	in.Mtime = applyTimeSpec(in.Mtime, now, mtime)
	in.Ctime = now
	in.Unlock()
}

// Utimensat implements utimensat(2).
func (fs *FS) Utimensat(dirfd int, path string, atime, mtime timeSpec, flags int) (err error) {
	report := fs.trace("Utimensat")
	defer func() { report(err) }()

	fs.mu.Lock()
	defer fs.mu.Unlock()

	in, ierr := fs.pathTargetErr(dirfd, path, flags&errno.AT_SYMLINK_NOFOLLOW != 0)
	if ierr != nil {
		err = ierr
		return
	}
	fs.utimesImpl(in, atime, mtime)
	return nil
}

// Futimesat implements futimesat(2) against an open fd.
func (fs *FS) Futimesat(fd int, atime, mtime timeSpec) (err error) {
	report := fs.trace("Futimesat")
	defer func() { report(err) }()

	fs.mu.Lock()
	defer fs.mu.Unlock()

	_, in, k := fs.getOpenFile(fd)
	if k != 0 {
		err = k
		return
	}
	fs.utimesImpl(in, atime, mtime)
	return nil
}

// Utimes implements utimes(2): both times concrete, never sentinels.
func (fs *FS) Utimes(path string, atime, mtime time.Time) error {
	return fs.Utimensat(errno.AT_FDCWD, path, timeSpec{Time: atime}, timeSpec{Time: mtime}, 0)
}

// Utime implements the legacy utime(2): a single timestamp applied to both
// atime and mtime, or the current time if t is the zero value.
func (fs *FS) Utime(path string, t time.Time) error {
	if t.IsZero() {
		return fs.Utimensat(errno.AT_FDCWD, path, timeSpec{Sentinel: errno.UTIME_NOW}, timeSpec{Sentinel: errno.UTIME_NOW}, 0)
	}
	return fs.Utimes(path, t, t)
}
