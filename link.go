package tmpfs

import (
	"github.com/go-tmpfs/tmpfs/errno"
	"github.com/go-tmpfs/tmpfs/internal/dirent"
	"github.com/go-tmpfs/tmpfs/internal/inode"
)

// resolveParent resolves path to its containing directory and leaf name,
// without requiring the leaf itself to exist.
func (fs *FS) resolveParent(dirfd int, path string) (*inode.Inode, string, errno.Kind) {
	res, k := fs.resolveAt(dirfd, path, true, false)
	if k != 0 {
		return nil, "", k
	}
	parent, ok := fs.table.Lookup(res.ParentIno)
	if !ok || !parent.IsDir() {
		return nil, "", errno.ENOTDIR
	}
	name := res.LeafName
	if res.Found && name == "" {
		// path resolved to "/" (directly or via a final symlink) with no
		// leaf component; "." and ".." arrive as named leaves instead.
		return nil, "", errno.EEXIST
	}
	return parent, name, 0
}

// Mkdirat implements mkdirat(2).
func (fs *FS) Mkdirat(dirfd int, path string, mode uint32) (err error) {
	report := fs.trace("Mkdirat")
	defer func() { report(err) }()

	fs.mu.Lock()
	defer fs.mu.Unlock()

	res, k := fs.resolveAt(dirfd, path, true, false)
	if k != 0 {
		err = k
		return
	}
	if res.Found {
		err = errno.EEXIST
		return
	}
	parent, ok := fs.table.Lookup(res.ParentIno)
	if !ok || !parent.IsDir() {
		err = errno.ENOTDIR
		return
	}
	if k := dirent.ValidateName(res.LeafName); k != 0 {
		err = k
		return
	}
	if k := fs.checkAccess(parent, errno.W_OK|errno.X_OK); k != 0 {
		err = k
		return
	}

	child := fs.table.Create(inode.TypeDirectory, mode&^fs.umask, fs.uid, fs.gid)
	child.ParentIno = parent.Ino

	parent.Lock()
	if k := parent.Dir.Insert(res.LeafName, child.Ino, errno.DT_DIR); k != 0 {
		parent.Unlock()
		err = k
		return
	}
	parent.Nlink++ // new child directory's implicit ".." dentry
	now := fs.clock.Now()
	parent.Mtime, parent.Ctime = now, now
	parent.Unlock()

	child.Lock()
	child.Nlink++ // the parent's dentry naming this new directory
	child.Unlock()

	return nil
}

// Mknodat implements mknodat(2), restricted to regular files (spec.md's
// Non-goals exclude device/fifo/socket special files).
func (fs *FS) Mknodat(dirfd int, path string, mode uint32) (err error) {
	report := fs.trace("Mknodat")
	defer func() { report(err) }()

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if mode&errno.S_IFMT != 0 && mode&errno.S_IFMT != errno.S_IFREG {
		err = errno.EOPNOTSUPP
		return
	}

	parent, name, k := fs.resolveParent(dirfd, path)
	if k != 0 {
		err = k
		return
	}
	if k := dirent.ValidateName(name); k != 0 {
		err = k
		return
	}
	if k := fs.checkAccess(parent, errno.W_OK|errno.X_OK); k != 0 {
		err = k
		return
	}
	parent.RLock()
	_, exists := parent.Dir.Lookup(name)
	parent.RUnlock()
	if exists {
		err = errno.EEXIST
		return
	}

	fs.createRegular(parent, name, mode)
	return nil
}

// Symlinkat implements symlinkat(2).
func (fs *FS) Symlinkat(target string, dirfd int, path string) (err error) {
	report := fs.trace("Symlinkat")
	defer func() { report(err) }()

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if len(target) > errno.MaxSymlinkLen {
		err = errno.ENAMETOOLONG
		return
	}

	parent, name, k := fs.resolveParent(dirfd, path)
	if k != 0 {
		err = k
		return
	}
	if k := dirent.ValidateName(name); k != 0 {
		err = k
		return
	}
	if k := fs.checkAccess(parent, errno.W_OK|errno.X_OK); k != 0 {
		err = k
		return
	}

	child := fs.table.Create(inode.TypeSymlink, 0o777, fs.uid, fs.gid)
	child.Symlink = target
	child.Nlink = 1

	parent.Lock()
	if k := parent.Dir.Insert(name, child.Ino, errno.DT_LNK); k != 0 {
		parent.Unlock()
		err = k
		return
	}
	now := fs.clock.Now()
	parent.Mtime, parent.Ctime = now, now
	parent.Unlock()

	return nil
}

// Readlinkat implements readlinkat(2).
func (fs *FS) Readlinkat(dirfd int, path string) (target string, err error) {
	report := fs.trace("Readlinkat")
	defer func() { report(err) }()

	fs.mu.Lock()
	defer fs.mu.Unlock()

	res, k := fs.resolveAt(dirfd, path, true, path == "")
	if k != 0 {
		err = k
		return
	}
	if !res.Found {
		err = errno.ENOENT
		return
	}
	in, ok := fs.table.Lookup(res.TargetIno)
	if !ok {
		err = errno.ENOENT
		return
	}
	if !in.IsSymlink() {
		err = errno.EINVAL
		return
	}

	in.RLock()
	target = in.Symlink
	in.RUnlock()
	return target, nil
}

// Linkat implements linkat(2): hardlinks an existing inode under a new name.
// AT_SYMLINK_FOLLOW in flags dereferences a symlink source; otherwise the
// link itself is the new hardlink's target (spec.md §4.2).
func (fs *FS) Linkat(olddirfd int, oldpath string, newdirfd int, newpath string, flags int) (err error) {
	report := fs.trace("Linkat")
	defer func() { report(err) }()

	fs.mu.Lock()
	defer fs.mu.Unlock()

	follow := flags&errno.AT_SYMLINK_FOLLOW != 0
	oldRes, k := fs.resolveAt(olddirfd, oldpath, !follow, flags&errno.AT_EMPTY_PATH != 0)
	if k != 0 {
		err = k
		return
	}
	if !oldRes.Found {
		err = errno.ENOENT
		return
	}
	src, ok := fs.table.Lookup(oldRes.TargetIno)
	if !ok {
		err = errno.ENOENT
		return
	}
	if src.IsDir() {
		err = errno.EPERM
		return
	}

	newParent, name, k := fs.resolveParent(newdirfd, newpath)
	if k != 0 {
		err = k
		return
	}
	if k := dirent.ValidateName(name); k != 0 {
		err = k
		return
	}
	if k := fs.checkAccess(newParent, errno.W_OK|errno.X_OK); k != 0 {
		err = k
		return
	}

	var typ uint8 = errno.DT_REG
	if src.IsSymlink() {
		typ = errno.DT_LNK
	}

	newParent.Lock()
	if k := newParent.Dir.Insert(name, src.Ino, typ); k != 0 {
		newParent.Unlock()
		err = k
		return
	}
	now := fs.clock.Now()
	newParent.Mtime, newParent.Ctime = now, now
	newParent.Unlock()

	src.Lock()
	src.Nlink++
	src.Ctime = fs.clock.Now()
	src.Unlock()

	return nil
}

// Unlinkat implements unlinkat(2); AT_REMOVEDIR selects rmdir(2) semantics.
func (fs *FS) Unlinkat(dirfd int, path string, flags int) (err error) {
	report := fs.trace("Unlinkat")
	defer func() { report(err) }()

	fs.mu.Lock()
	defer fs.mu.Unlock()

	res, k := fs.resolveAt(dirfd, path, true, false)
	if k != 0 {
		err = k
		return
	}
	if !res.Found {
		err = errno.ENOENT
		return
	}

	parent, ok := fs.table.Lookup(res.ParentIno)
	if !ok || !parent.IsDir() {
		err = errno.ENOTDIR
		return
	}
	if k := fs.checkAccess(parent, errno.W_OK|errno.X_OK); k != 0 {
		err = k
		return
	}

	target, ok := fs.table.Lookup(res.TargetIno)
	if !ok {
		err = errno.ENOENT
		return
	}

	if flags&errno.AT_REMOVEDIR != 0 {
		if !target.IsDir() {
			err = errno.ENOTDIR
			return
		}
		if target.Ino == inode.RootIno {
			err = errno.EBUSY
			return
		}
		target.RLock()
		empty := target.Dir.Len() == 0
		target.RUnlock()
		if !empty {
			err = errno.ENOTEMPTY
			return
		}

		parent.Lock()
		parent.Dir.Remove(res.LeafName)
		parent.Nlink-- // removed child's implicit ".." dentry
		now := fs.clock.Now()
		parent.Mtime, parent.Ctime = now, now
		parent.Unlock()

		// An empty directory's nlink is always exactly 2 (its own "." plus
		// the single dentry naming it): both die together on rmdir, unlike
		// a regular file's nlink, which drops by one per unlink.
		fs.table.DecNlink(target)
		fs.table.DecNlink(target)
		return nil
	}

	if target.IsDir() {
		err = errno.EISDIR
		return
	}

	parent.Lock()
	parent.Dir.Remove(res.LeafName)
	now := fs.clock.Now()
	parent.Mtime, parent.Ctime = now, now
	parent.Unlock()

	fs.table.DecNlink(target)
	return nil
}

// isAncestor reports whether candidate is ino or one of ino's directory
// ancestors, used to reject renaming a directory into its own subtree.
func (fs *FS) isAncestor(candidate, ino uint64) bool {
	cur := ino
	for {
		if cur == candidate {
			return true
		}
		if cur == inode.RootIno {
			return false
		}
		in, ok := fs.table.Lookup(cur)
		if !ok || !in.IsDir() {
			return false
		}
		cur = in.ParentIno
	}
}

// Renameat2 implements renameat2(2), including RENAME_NOREPLACE and
// RENAME_EXCHANGE (spec.md §4.2).
func (fs *FS) Renameat2(olddirfd int, oldpath string, newdirfd int, newpath string, flags uint32) (err error) {
	report := fs.trace("Renameat2")
	defer func() { report(err) }()

	fs.mu.Lock()
	defer fs.mu.Unlock()

	noReplace := flags&errno.RENAME_NOREPLACE != 0
	exchange := flags&errno.RENAME_EXCHANGE != 0
	if noReplace && exchange {
		err = errno.EINVAL
		return
	}

	oldParent, oldName, k := fs.resolveParent(olddirfd, oldpath)
	if k != 0 {
		err = k
		return
	}
	oldEntry, found := func() (dirent.Entry, bool) {
		oldParent.RLock()
		defer oldParent.RUnlock()
		return oldParent.Dir.Lookup(oldName)
	}()
	if !found {
		err = errno.ENOENT
		return
	}
	if k := fs.checkAccess(oldParent, errno.W_OK|errno.X_OK); k != 0 {
		err = k
		return
	}

	newParent, newName, k := fs.resolveParent(newdirfd, newpath)
	if k != 0 {
		err = k
		return
	}
	if k := fs.checkAccess(newParent, errno.W_OK|errno.X_OK); k != 0 {
		err = k
		return
	}

	src, ok := fs.table.Lookup(oldEntry.Ino)
	if !ok {
		err = errno.ENOENT
		return
	}
	if src.IsDir() && fs.isAncestor(src.Ino, newParent.Ino) {
		err = errno.EINVAL
		return
	}
	if src.Ino == inode.RootIno {
		err = errno.EBUSY
		return
	}

	newEntry, destExists := func() (dirent.Entry, bool) {
		newParent.RLock()
		defer newParent.RUnlock()
		return newParent.Dir.Lookup(newName)
	}()

	now := fs.clock.Now()

	switch {
	case exchange:
		if !destExists {
			err = errno.ENOENT
			return
		}
		dst, ok := fs.table.Lookup(newEntry.Ino)
		if !ok {
			err = errno.ENOENT
			return
		}
		if dst.IsDir() && fs.isAncestor(dst.Ino, oldParent.Ino) {
			err = errno.EINVAL
			return
		}

		srcIsDir := src.IsDir()
		dstIsDir := dst.IsDir()

		if oldParent == newParent {
			// Both slots live in the same directory's child-is-a-directory
			// count, so swapping them leaves that count unchanged.
			oldParent.Lock()
			oldParent.Dir.SetChild(oldName, newEntry.Ino, newEntry.Type)
			oldParent.Dir.SetChild(newName, oldEntry.Ino, oldEntry.Type)
			oldParent.Unlock()
		} else {
			oldParent.Lock()
			oldParent.Dir.SetChild(oldName, newEntry.Ino, newEntry.Type)
			if srcIsDir != dstIsDir {
				if dstIsDir {
					oldParent.Nlink++
				} else {
					oldParent.Nlink--
				}
			}
			oldParent.Unlock()

			newParent.Lock()
			newParent.Dir.SetChild(newName, oldEntry.Ino, oldEntry.Type)
			if srcIsDir != dstIsDir {
				if srcIsDir {
					newParent.Nlink++
				} else {
					newParent.Nlink--
				}
			}
			newParent.Unlock()
		}

		if srcIsDir {
			src.Lock()
			src.ParentIno = newParent.Ino
			src.Unlock()
		}
		if dstIsDir {
			dst.Lock()
			dst.ParentIno = oldParent.Ino
			dst.Unlock()
		}

	case destExists:
		if noReplace {
			err = errno.EEXIST
			return
		}
		dst, ok := fs.table.Lookup(newEntry.Ino)
		if !ok {
			err = errno.ENOENT
			return
		}
		if dst.IsDir() != src.IsDir() {
			if dst.IsDir() {
				err = errno.EISDIR
				return
			}
			err = errno.ENOTDIR
			return
		}
		if dst.IsDir() {
			dst.RLock()
			empty := dst.Dir.Len() == 0
			dst.RUnlock()
			if !empty {
				err = errno.ENOTEMPTY
				return
			}
		}

		if oldParent == newParent {
			oldParent.Lock()
			oldParent.Dir.Remove(oldName)
			oldParent.Dir.Remove(newName)
			oldParent.Dir.Insert(newName, src.Ino, oldEntry.Type)
			oldParent.Unlock()
		} else {
			oldParent.Lock()
			oldParent.Dir.Remove(oldName)
			oldParent.Unlock()
			newParent.Lock()
			newParent.Dir.Remove(newName)
			newParent.Dir.Insert(newName, src.Ino, oldEntry.Type)
			newParent.Unlock()
		}

		if src.IsDir() {
			src.Lock()
			src.ParentIno = newParent.Ino
			src.Unlock()
			if oldParent != newParent {
				oldParent.Lock()
				oldParent.Nlink--
				oldParent.Unlock()
				newParent.Lock()
				newParent.Nlink++
				newParent.Unlock()
			}
		}
		if dst.IsDir() {
			// newParent loses the link dst's ".." contributed; the src move
			// above (if cross-parent) already accounted for the directory
			// arriving, so this is the only adjustment newParent needs.
			newParent.Lock()
			newParent.Nlink--
			newParent.Unlock()

			// dst was an empty directory (checked above): its nlink is
			// always exactly 2, both halves of which vanish together.
			fs.table.DecNlink(dst)
		}
		fs.table.DecNlink(dst)

	default:
		if oldParent == newParent {
			oldParent.Lock()
			oldParent.Dir.RenameInPlace(oldName, newName)
			oldParent.Unlock()
		} else {
			oldParent.Lock()
			oldParent.Dir.Remove(oldName)
			oldParent.Unlock()
			newParent.Lock()
			newParent.Dir.Insert(newName, src.Ino, oldEntry.Type)
			newParent.Unlock()
		}
		if src.IsDir() && oldParent != newParent {
			src.Lock()
			src.ParentIno = newParent.Ino
			src.Unlock()
			oldParent.Lock()
			oldParent.Nlink--
			oldParent.Unlock()
			newParent.Lock()
			newParent.Nlink++
			newParent.Unlock()
		}
	}

	oldParent.Lock()
	oldParent.Mtime, oldParent.Ctime = now, now
	oldParent.Unlock()
	if newParent != oldParent {
		newParent.Lock()
		newParent.Mtime, newParent.Ctime = now, now
		newParent.Unlock()
	}

	return nil
}
