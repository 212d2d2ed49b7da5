package tmpfs

import (
	"io"

	"github.com/go-tmpfs/tmpfs/errno"
	"github.com/go-tmpfs/tmpfs/internal/inode"
	"github.com/go-tmpfs/tmpfs/internal/ofd"
)

// OpenAt implements openat(2) (spec.md §4.5): resolve, apply O_CREAT/
// O_EXCL/O_TRUNC/O_DIRECTORY/O_NOFOLLOW/O_TMPFILE, then allocate an OFD and
// the lowest free fd.
func (fs *FS) OpenAt(dirfd int, path string, flags int, mode uint32) (fd int, err error) {
	report := fs.trace("OpenAt")
	defer func() { report(err) }()

	fs.mu.Lock()
	defer fs.mu.Unlock()

	accMode := flags & errno.O_ACCMODE
	noFollowFinal := flags&errno.O_NOFOLLOW != 0

	if flags&errno.O_TMPFILE == errno.O_TMPFILE {
		return fs.openTmpfile(dirfd, mode)
	}

	res, k := fs.resolveAt(dirfd, path, noFollowFinal, false)
	if k != 0 {
		err = k
		return 0, err
	}

	var target *inode.Inode
	switch {
	case res.Found:
		in, ok := fs.table.Lookup(res.TargetIno)
		if !ok {
			err = errno.ENOENT
			return 0, err
		}
		if flags&errno.O_CREAT != 0 && flags&errno.O_EXCL != 0 {
			err = errno.EEXIST
			return 0, err
		}
		if in.IsSymlink() && noFollowFinal {
			err = errno.ELOOP
			return 0, err
		}
		target = in

	case flags&errno.O_CREAT != 0:
		parent, ok := fs.table.Lookup(res.ParentIno)
		if !ok || !parent.IsDir() {
			err = errno.ENOTDIR
			return 0, err
		}
		if k := fs.checkAccess(parent, errno.W_OK|errno.X_OK); k != 0 {
			err = k
			return 0, err
		}
		target = fs.createRegular(parent, res.LeafName, mode)

	default:
		err = errno.ENOENT
		return 0, err
	}

	if flags&errno.O_DIRECTORY != 0 && !target.IsDir() {
		err = errno.ENOTDIR
		return 0, err
	}
	if accMode != errno.O_RDONLY && target.IsDir() {
		err = errno.EISDIR
		return 0, err
	}

	var want int
	switch accMode {
	case errno.O_RDONLY:
		want = errno.R_OK
	case errno.O_WRONLY:
		want = errno.W_OK
	case errno.O_RDWR:
		want = errno.R_OK | errno.W_OK
	}
	if want != 0 {
		if k := fs.checkAccess(target, want); k != 0 {
			err = k
			return 0, err
		}
	}

	if flags&errno.O_TRUNC != 0 && accMode != errno.O_RDONLY && target.IsRegular() {
		target.Lock()
		target.File.Truncate(0)
		now := fs.clock.Now()
		target.Mtime, target.Ctime = now, now
		target.Unlock()
	}

	fs.table.IncOpenRef(target.Ino)
	o := ofd.NewOFD(target.Ino, accMode, flags&errno.O_APPEND != 0, flags&errno.O_NOATIME != 0, target.IsDir())
	fd = fs.fds.Alloc(o)
	return fd, nil
}

// createRegular allocates a fresh regular-file inode and links it into
// parent under name, used by OpenAt's O_CREAT path and by Creat.
func (fs *FS) createRegular(parent *inode.Inode, name string, mode uint32) *inode.Inode {
	child := fs.table.Create(inode.TypeRegular, mode&^fs.umask, fs.uid, fs.gid)
	child.Nlink = 1

	parent.Lock()
	parent.Dir.Insert(name, child.Ino, errno.DT_REG)
	now := fs.clock.Now()
	parent.Mtime, parent.Ctime = now, now
	parent.Unlock()

	return child
}

// openTmpfile implements O_TMPFILE: an anonymous regular-file inode with
// Nlink == 0, linkable later only through linkat (spec.md §4.5 item 6).
func (fs *FS) openTmpfile(dirfd int, mode uint32) (int, error) {
	start, k := fs.startDir(dirfd)
	if k != 0 {
		return 0, k
	}
	dir, ok := fs.table.Lookup(start)
	if !ok || !dir.IsDir() {
		return 0, errno.ENOTDIR
	}
	if k := fs.checkAccess(dir, errno.W_OK|errno.X_OK); k != 0 {
		return 0, k
	}

	child := fs.table.Create(inode.TypeRegular, mode&^fs.umask, fs.uid, fs.gid)
	fs.table.IncOpenRef(child.Ino)
	o := ofd.NewOFD(child.Ino, errno.O_RDWR, false, false, false)
	return fs.fds.Alloc(o), nil
}

// Creat implements creat(2) as openat(AT_FDCWD, path, O_CREAT|O_WRONLY|O_TRUNC, mode).
func (fs *FS) Creat(path string, mode uint32) (int, error) {
	return fs.OpenAt(errno.AT_FDCWD, path, errno.O_CREAT|errno.O_WRONLY|errno.O_TRUNC, mode)
}

// CloseFD implements close(2): removes fd from the table and releases the
// OFD's pin on its inode, reaping it if nlink already reached zero.
func (fs *FS) CloseFD(fd int) (err error) {
	report := fs.trace("Close")
	defer func() { report(err) }()

	fs.mu.Lock()
	defer fs.mu.Unlock()

	o := fs.fds.Close(fd)
	if o == nil {
		err = errno.EBADF
		return
	}
	fs.table.DecOpenRef(o.Ino)
	return nil
}

// CloseRange implements close_range(2): closes every fd in [lo, hi] that is
// open, silently skipping ones that are not.
func (fs *FS) CloseRange(lo, hi int) error {
	report := fs.trace("CloseRange")
	defer func() { report(nil) }()

	fs.mu.Lock()
	defer fs.mu.Unlock()

	for _, o := range fs.fds.CloseRange(lo, hi) {
		fs.table.DecOpenRef(o.Ino)
	}
	return nil
}

func (fs *FS) getOpenFile(fd int) (*ofd.OFD, *inode.Inode, errno.Kind) {
	o, ok := fs.fds.Get(fd)
	if !ok {
		return nil, nil, errno.EBADF
	}
	in, ok := fs.table.Lookup(o.Ino)
	if !ok {
		return nil, nil, errno.EBADF
	}
	return o, in, 0
}

// touchAtime updates atime unless suppressed by O_NOATIME on the OFD
// (spec.md §4.1: "atime is always tracked unless O_NOATIME is set").
func (fs *FS) touchAtime(o *ofd.OFD, in *inode.Inode) {
	if o.NoATime {
		return
	}
	in.Atime = fs.clock.Now()
}

// Read implements read(2): consumes from the OFD's current position and
// advances it.
func (fs *FS) Read(fd int, p []byte) (n int, err error) {
	report := fs.trace("Read")
	defer func() { report(err) }()

	fs.mu.Lock()
	defer fs.mu.Unlock()

	o, in, k := fs.getOpenFile(fd)
	if k != 0 {
		err = k
		return
	}
	if !o.Readable() {
		err = errno.EBADF
		return
	}
	if !in.IsRegular() {
		err = errno.EISDIR
		return
	}

	in.Lock()
	defer in.Unlock()

	nn, rerr := in.File.ReadAt(p, o.Pos)
	o.Pos += int64(nn)
	fs.touchAtime(o, in)
	if rerr != nil && rerr != io.EOF {
		err = rerr
		return
	}
	return nn, nil
}

// Pread implements pread(2): reads from off without touching the OFD
// position.
func (fs *FS) Pread(fd int, p []byte, off int64) (n int, err error) {
	report := fs.trace("Pread")
	defer func() { report(err) }()

	fs.mu.Lock()
	defer fs.mu.Unlock()

	o, in, k := fs.getOpenFile(fd)
	if k != 0 {
		err = k
		return
	}
	if !o.Readable() {
		err = errno.EBADF
		return
	}
	if !in.IsRegular() {
		err = errno.EISDIR
		return
	}

	in.Lock()
	defer in.Unlock()

	nn, rerr := in.File.ReadAt(p, off)
	fs.touchAtime(o, in)
	if rerr != nil && rerr != io.EOF {
		err = rerr
		return
	}
	return nn, nil
}

// Readv implements readv(2) as the concatenation of its iovec elements.
func (fs *FS) Readv(fd int, iovs [][]byte) (n int, err error) {
	for _, iov := range iovs {
		nn, rerr := fs.Read(fd, iov)
		n += nn
		if rerr != nil || nn < len(iov) {
			err = rerr
			return
		}
	}
	return
}

// Preadv is the positional counterpart of Readv.
func (fs *FS) Preadv(fd int, iovs [][]byte, off int64) (n int, err error) {
	cur := off
	for _, iov := range iovs {
		nn, rerr := fs.Pread(fd, iov, cur)
		n += nn
		cur += int64(nn)
		if rerr != nil || nn < len(iov) {
			err = rerr
			return
		}
	}
	return
}

func (fs *FS) writeAt(o *ofd.OFD, in *inode.Inode, p []byte, off int64) (int, error) {
	if !in.IsRegular() {
		return 0, errno.EISDIR
	}

	in.Lock()
	defer in.Unlock()

	nn := in.File.WriteAt(p, off)
	now := fs.clock.Now()
	in.Mtime, in.Ctime = now, now
	return nn, nil
}

// Write implements write(2), honoring O_APPEND by atomically repositioning
// to the current size before writing (spec.md §4.5).
func (fs *FS) Write(fd int, p []byte) (n int, err error) {
	report := fs.trace("Write")
	defer func() { report(err) }()

	fs.mu.Lock()
	defer fs.mu.Unlock()

	o, in, k := fs.getOpenFile(fd)
	if k != 0 {
		err = k
		return
	}
	if !o.Writable() {
		err = errno.EBADF
		return
	}

	if o.Append {
		in.RLock()
		o.Pos = in.File.Size()
		in.RUnlock()
	}

	nn, werr := fs.writeAt(o, in, p, o.Pos)
	o.Pos += int64(nn)
	if werr != nil {
		err = werr
		return
	}
	return nn, nil
}

// Pwrite implements pwrite(2): writes at off without moving the OFD
// position. O_APPEND still forces the write to the current end of file.
func (fs *FS) Pwrite(fd int, p []byte, off int64) (n int, err error) {
	report := fs.trace("Pwrite")
	defer func() { report(err) }()

	fs.mu.Lock()
	defer fs.mu.Unlock()

	o, in, k := fs.getOpenFile(fd)
	if k != 0 {
		err = k
		return
	}
	if !o.Writable() {
		err = errno.EBADF
		return
	}

	target := off
	if o.Append {
		in.RLock()
		target = in.File.Size()
		in.RUnlock()
	}

	nn, werr := fs.writeAt(o, in, p, target)
	if werr != nil {
		err = werr
		return
	}
	return nn, nil
}

// Writev implements writev(2) as the concatenation of its iovec elements.
func (fs *FS) Writev(fd int, iovs [][]byte) (n int, err error) {
	for _, iov := range iovs {
		nn, werr := fs.Write(fd, iov)
		n += nn
		if werr != nil {
			err = werr
			return
		}
	}
	return
}

// Pwritev is the positional counterpart of Writev.
func (fs *FS) Pwritev(fd int, iovs [][]byte, off int64) (n int, err error) {
	cur := off
	for _, iov := range iovs {
		nn, werr := fs.Pwrite(fd, iov, cur)
		n += nn
		cur += int64(nn)
		if werr != nil {
			err = werr
			return
		}
	}
	return
}

// Lseek implements lseek(2), including the SEEK_DATA/SEEK_HOLE extensions.
func (fs *FS) Lseek(fd int, offset int64, whence int) (newOff int64, err error) {
	report := fs.trace("Lseek")
	defer func() { report(err) }()

	fs.mu.Lock()
	defer fs.mu.Unlock()

	o, in, k := fs.getOpenFile(fd)
	if k != 0 {
		err = k
		return
	}

	in.RLock()
	size := int64(0)
	if in.IsRegular() {
		size = in.File.Size()
	}
	in.RUnlock()

	var target int64
	switch whence {
	case errno.SEEK_SET:
		target = offset
	case errno.SEEK_CUR:
		target = o.Pos + offset
	case errno.SEEK_END:
		target = size + offset
	case errno.SEEK_DATA:
		if !in.IsRegular() {
			err = errno.EINVAL
			return
		}
		in.RLock()
		target, k = in.File.SeekData(offset)
		in.RUnlock()
		if k != 0 {
			err = k
			return
		}
	case errno.SEEK_HOLE:
		if !in.IsRegular() {
			err = errno.EINVAL
			return
		}
		in.RLock()
		target = in.File.SeekHole(offset)
		in.RUnlock()
	default:
		err = errno.EINVAL
		return
	}

	if target < 0 {
		err = errno.EINVAL
		return
	}

	o.Pos = target
	return target, nil
}

// Sendfile implements sendfile(2): copies up to n bytes from inFD to outFD.
func (fs *FS) Sendfile(outFD, inFD int, off *int64, n int) (written int, err error) {
	report := fs.trace("Sendfile")
	defer func() { report(err) }()

	fs.mu.Lock()
	defer fs.mu.Unlock()

	outO, outIn, k := fs.getOpenFile(outFD)
	if k != 0 {
		err = k
		return
	}
	inO, inIn, k := fs.getOpenFile(inFD)
	if k != 0 {
		err = k
		return
	}
	if !outIn.IsRegular() || !inIn.IsRegular() {
		err = errno.EINVAL
		return
	}
	if !outO.Writable() || !inO.Readable() {
		err = errno.EBADF
		return
	}

	readOff := inO.Pos
	if off != nil {
		readOff = *off
	}

	buf := make([]byte, n)
	inIn.RLock()
	nn, rerr := inIn.File.ReadAt(buf, readOff)
	inIn.RUnlock()
	if rerr != nil && rerr != io.EOF {
		err = rerr
		return
	}
	buf = buf[:nn]

	wn, werr := fs.writeAt(outO, outIn, buf, outO.Pos)
	outO.Pos += int64(wn)
	if werr != nil {
		err = werr
		return
	}

	if off != nil {
		*off += int64(wn)
	} else {
		inO.Pos += int64(wn)
	}

	return wn, nil
}

// Dirent mirrors the kernel's getdents64 entry shape.
type Dirent struct {
	Ino  uint64
	Off  int64
	Name string
	Type uint8
}

// Getdents implements getdents(2): returns up to count entries starting at
// the OFD's directory cursor, synthesizing "." and ".." first on a fresh
// cursor (spec.md §4.5).
func (fs *FS) Getdents(fd int, count int) (entries []Dirent, err error) {
	report := fs.trace("Getdents")
	defer func() { report(err) }()

	fs.mu.Lock()
	defer fs.mu.Unlock()

	o, in, k := fs.getOpenFile(fd)
	if k != 0 {
		err = k
		return
	}
	if !in.IsDir() {
		err = errno.ENOTDIR
		return
	}

	in.RLock()
	all := in.Dir.Entries()
	parentIno := in.ParentIno
	in.RUnlock()

	full := []Dirent{
		{Ino: in.Ino, Off: 0, Name: ".", Type: errno.DT_DIR},
		{Ino: parentIno, Off: 1, Name: "..", Type: errno.DT_DIR},
	}
	for i, e := range all {
		full = append(full, Dirent{Ino: e.Ino, Off: int64(2 + i), Name: e.Name, Type: e.Type})
	}

	if o.DirCursor < 0 {
		o.DirCursor = 0
	}
	start := o.DirCursor
	if start >= len(full) {
		return nil, nil
	}
	end := start + count
	if count <= 0 || end > len(full) {
		end = len(full)
	}

	entries = full[start:end]
	o.DirCursor = end
	return entries, nil
}
