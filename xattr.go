package tmpfs

import (
	"github.com/go-tmpfs/tmpfs/errno"
	"github.com/go-tmpfs/tmpfs/internal/inode"
)

func (fs *FS) xattrTarget(dirfd int, path string, noFollow bool, fd int, useFD bool) (*inode.Inode, errno.Kind) {
	if useFD {
		_, in, k := fs.getOpenFile(fd)
		return in, k
	}
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
	return in, 0
}

// Setxattr implements setxattr(2).
func (fs *FS) Setxattr(path string, name string, value []byte, flags int) error {
	return fs.setxattrImpl(errno.AT_FDCWD, path, false, 0, false, name, value, flags)
}

// Lsetxattr implements lsetxattr(2) (does not follow a trailing symlink).
func (fs *FS) Lsetxattr(path string, name string, value []byte, flags int) error {
	return fs.setxattrImpl(errno.AT_FDCWD, path, true, 0, false, name, value, flags)
}

// Fsetxattr implements fsetxattr(2).
func (fs *FS) Fsetxattr(fd int, name string, value []byte, flags int) error {
	return fs.setxattrImpl(0, "", false, fd, true, name, value, flags)
}

func (fs *FS) setxattrImpl(dirfd int, path string, noFollow bool, fd int, useFD bool, name string, value []byte, flags int) (err error) {
	report := fs.trace("Setxattr")
	defer func() { report(err) }()

	fs.mu.Lock()
	defer fs.mu.Unlock()

	in, k := fs.xattrTarget(dirfd, path, noFollow, fd, useFD)
	if k != 0 {
		err = k
		return
	}

	in.Lock()
	k = in.SetXattr(name, value, flags)
	if k == 0 {
		in.Ctime = fs.clock.Now()
	}
	in.Unlock()

	if k != 0 {
		err = k
	}
	return
}

// Getxattr implements getxattr(2).
func (fs *FS) Getxattr(path string, name string) ([]byte, error) {
	return fs.getxattrImpl(errno.AT_FDCWD, path, false, 0, false, name)
}

// Lgetxattr implements lgetxattr(2).
func (fs *FS) Lgetxattr(path string, name string) ([]byte, error) {
	return fs.getxattrImpl(errno.AT_FDCWD, path, true, 0, false, name)
}

// Fgetxattr implements fgetxattr(2).
func (fs *FS) Fgetxattr(fd int, name string) ([]byte, error) {
	return fs.getxattrImpl(0, "", false, fd, true, name)
}

func (fs *FS) getxattrImpl(dirfd int, path string, noFollow bool, fd int, useFD bool, name string) (value []byte, err error) {
	report := fs.trace("Getxattr")
	defer func() { report(err) }()

	fs.mu.Lock()
	defer fs.mu.Unlock()

	in, k := fs.xattrTarget(dirfd, path, noFollow, fd, useFD)
	if k != 0 {
		err = k
		return
	}

	in.RLock()
	v, ok := in.GetXattr(name)
	in.RUnlock()
	if !ok {
		err = errno.ENODATA
		return
	}
	value = append([]byte(nil), v...)
	return value, nil
}

// Listxattr implements listxattr(2).
func (fs *FS) Listxattr(path string) ([]string, error) {
	return fs.listxattrImpl(errno.AT_FDCWD, path, false, 0, false)
}

// Llistxattr implements llistxattr(2).
func (fs *FS) Llistxattr(path string) ([]string, error) {
	return fs.listxattrImpl(errno.AT_FDCWD, path, true, 0, false)
}

// Flistxattr implements flistxattr(2).
func (fs *FS) Flistxattr(fd int) ([]string, error) {
	return fs.listxattrImpl(0, "", false, fd, true)
}

func (fs *FS) listxattrImpl(dirfd int, path string, noFollow bool, fd int, useFD bool) (names []string, err error) {
	report := fs.trace("Listxattr")
	defer func() { report(err) }()

	fs.mu.Lock()
	defer fs.mu.Unlock()

	in, k := fs.xattrTarget(dirfd, path, noFollow, fd, useFD)
	if k != 0 {
		err = k
		return
	}

	in.RLock()
	names = in.ListXattr()
	in.RUnlock()
	return names, nil
}

// Removexattr implements removexattr(2).
func (fs *FS) Removexattr(path string, name string) error {
	return fs.removexattrImpl(errno.AT_FDCWD, path, false, 0, false, name)
}

// Lremovexattr implements lremovexattr(2).
func (fs *FS) Lremovexattr(path string, name string) error {
	return fs.removexattrImpl(errno.AT_FDCWD, path, true, 0, false, name)
}

// Fremovexattr implements fremovexattr(2).
func (fs *FS) Fremovexattr(fd int, name string) error {
	return fs.removexattrImpl(0, "", false, fd, true, name)
}

func (fs *FS) removexattrImpl(dirfd int, path string, noFollow bool, fd int, useFD bool, name string) (err error) {
	report := fs.trace("Removexattr")
	defer func() { report(err) }()

	fs.mu.Lock()
	defer fs.mu.Unlock()

	in, k := fs.xattrTarget(dirfd, path, noFollow, fd, useFD)
	if k != 0 {
		err = k
		return
	}

	in.Lock()
	k = in.RemoveXattr(name)
	if k == 0 {
		in.Ctime = fs.clock.Now()
	}
	in.Unlock()

	if k != 0 {
		err = k
	}
	return
}
