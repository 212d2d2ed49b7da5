package tmpfs

import (
	"io"

	"github.com/go-tmpfs/tmpfs/internal/inode"
	"github.com/go-tmpfs/tmpfs/internal/snapshot"
)

// DumpTo serializes the entire instance (superblock + every live inode) to
// w, per spec.md §4.7. Open file descriptors are not part of the format:
// restoring a snapshot always starts with an empty fd table.
func (fs *FS) DumpTo(w io.Writer) (err error) {
	report := fs.trace("DumpTo")
	defer func() { report(err) }()

	fs.mu.Lock()
	defer fs.mu.Unlock()

	sb := snapshot.Superblock{
		RootIno: inode.RootIno,
		CWDIno:  fs.cwd,
		Umask:   fs.umask,
		UID:     fs.uid,
		GID:     fs.gid,
	}
	return snapshot.Dump(w, sb, fs.table)
}

// LoadFrom replaces fs's entire state (inode table, cwd, umask, uid/gid)
// with what was serialized to r by a prior DumpTo. Every open fd on fs is
// closed first, matching Close's teardown semantics.
func (fs *FS) LoadFrom(r io.Reader) (err error) {
	report := fs.trace("LoadFrom")
	defer func() { report(err) }()

	fs.mu.Lock()
	defer fs.mu.Unlock()

	for fd, o := range fs.fds.All() {
		fs.fds.Close(fd)
		fs.table.DecOpenRef(o.Ino)
	}

	sb, table, k := snapshot.Load(r, fs.clock)
	if k != 0 {
		err = k
		return
	}

	fs.table = table
	fs.cwd = sb.CWDIno
	fs.umask = sb.Umask
	fs.uid = sb.UID
	fs.gid = sb.GID
	fs.resolver.Table = table

	return nil
}

// LoadFS constructs a brand-new instance from a stream previously produced
// by DumpTo. opts configure the instance as for New (WithClock supplies the
// clock for any subsequently-created inodes); uid, gid and umask are then
// taken from the snapshot.
func LoadFS(r io.Reader, opts ...Option) (*FS, error) {
	fs := New(opts...)

	sb, table, k := snapshot.Load(r, fs.clock)
	if k != 0 {
		return nil, k
	}

	fs.table = table
	fs.cwd = sb.CWDIno
	fs.umask = sb.Umask
	fs.uid = sb.UID
	fs.gid = sb.GID
	fs.resolver.Table = table

	return fs, nil
}
