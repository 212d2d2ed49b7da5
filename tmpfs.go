// Package tmpfs implements an in-memory, POSIX-style filesystem: an
// embeddable library that behaves like a single Linux tmpfs instance,
// complete with its own inode/dentry graph, open-file table, and
// errno-style failure reporting (see SPEC_FULL.md).
//
// Grounded throughout on github.com/jacobsa/fuse's samples/memfs package:
// the same split of an inode table keyed by numeric id, per-inode
// InvariantMutex-guarded metadata, and a façade type (there: memFS, here:
// FS) gluing the table to directory/file operations. Unlike the teacher,
// this package is not a FUSE driver — FS is called directly by the host
// process, synchronously, with no kernel round-trip — so the façade exposes
// Linux syscall names instead of fuse.FileSystem's fuseops.
package tmpfs

import (
	"context"
	"log"
	"os"

	"github.com/jacobsa/reqtrace"
	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"

	"github.com/go-tmpfs/tmpfs/errno"
	"github.com/go-tmpfs/tmpfs/internal/inode"
	"github.com/go-tmpfs/tmpfs/internal/ofd"
	"github.com/go-tmpfs/tmpfs/internal/resolve"
)

// FS is one independent in-memory filesystem instance: its own root inode,
// inode table, open-file table, current working directory, and umask.
//
// Every exported method is safe to call concurrently in the sense that it
// will not corrupt internal state (it takes fs.mu), but spec.md §5 models a
// single-threaded caller: there is no cancellation and no operation
// suspends, so a host with multiple threads of control must still serialize
// semantically-dependent calls itself.
type FS struct {
	mu syncutil.InvariantMutex

	clock  timeutil.Clock
	logger *log.Logger

	uid, gid uint32
	umask    uint32

	table    *inode.Table
	resolver *resolve.Resolver
	fds      *ofd.Table

	cwd uint64 // GUARDED_BY(mu)
}

type config struct {
	clock    timeutil.Clock
	uid, gid uint32
	umask    uint32
	rootMode uint32
	logger   *log.Logger
}

// Option configures a new FS; see New.
type Option func(*config)

// WithClock substitutes the clock used for atime/mtime/ctime/btime,
// defaulting to timeutil.RealClock(). Tests typically pass a
// timeutil.SimulatedClock for deterministic timestamps.
func WithClock(c timeutil.Clock) Option { return func(cfg *config) { cfg.clock = c } }

// WithUID sets the single uid every inode is created with, defaulting to
// the host process's effective uid.
func WithUID(uid uint32) Option { return func(cfg *config) { cfg.uid = uid } }

// WithGID sets the single gid every inode is created with, defaulting to
// the host process's effective gid.
func WithGID(gid uint32) Option { return func(cfg *config) { cfg.gid = gid } }

// WithUmask sets the initial umask (spec.md §6), defaulting to 0o022.
func WithUmask(mask uint32) Option { return func(cfg *config) { cfg.umask = mask } }

// WithRootMode sets the root directory's initial permission bits,
// defaulting to 0o755.
func WithRootMode(mode uint32) Option { return func(cfg *config) { cfg.rootMode = mode } }

// WithLogger attaches a diagnostic logger (nil-safe; discarded by default),
// grounded in jacobsa-fuse/debug.go's getLogger() pattern.
func WithLogger(l *log.Logger) Option { return func(cfg *config) { cfg.logger = l } }

// New creates a fresh, empty instance: a root directory owned by the
// configured uid/gid, an empty open-file table, and cwd == "/".
func New(opts ...Option) *FS {
	cfg := config{
		clock:    timeutil.RealClock(),
		uid:      uint32(os.Getuid()),
		gid:      uint32(os.Getgid()),
		umask:    0o022,
		rootMode: 0o755,
	}
	for _, o := range opts {
		o(&cfg)
	}

	table := inode.NewTable(cfg.clock, cfg.uid, cfg.gid, cfg.rootMode)

	fs := &FS{
		clock:  cfg.clock,
		logger: cfg.logger,
		uid:    cfg.uid,
		gid:    cfg.gid,
		umask:  cfg.umask,
		table:  table,
		fds:    ofd.NewTable(),
		cwd:    inode.RootIno,
	}
	fs.resolver = &resolve.Resolver{Table: table, Access: fs.checkAccess}
	fs.mu = syncutil.NewInvariantMutex(fs.checkInvariants)

	return fs
}

// trace opens a reqtrace span for one public operation, grounded in
// fuseops/common_op.go's use of reqtrace.ReportFunc to report each op's
// outcome. The returned func must be deferred with the operation's named
// error return.
func (fs *FS) trace(desc string) reqtrace.ReportFunc {
	_, report := reqtrace.Trace(context.Background(), "tmpfs."+desc)
	return report
}

func (fs *FS) logf(format string, args ...interface{}) {
	if fs.logger != nil {
		fs.logger.Printf(format, args...)
	}
}

// checkInvariants re-derives spec.md §3 invariant 2 (nlink bookkeeping) and
// invariant 1 (no dangling dentries) from the live directory graph. It runs
// whenever fs.mu's InvariantMutex is built with checking enabled.
func (fs *FS) checkInvariants() {
	all := fs.table.All()

	dentriesTo := make(map[uint64]uint32)
	childDirsOf := make(map[uint64]uint32)

	for _, in := range all {
		if !in.IsDir() {
			continue
		}
		for _, e := range in.Dir.Entries() {
			child, ok := fs.table.Lookup(e.Ino)
			if !ok {
				panic("directory entry references a missing inode")
			}
			dentriesTo[e.Ino]++
			if child.IsDir() {
				childDirsOf[in.Ino]++
			}
		}
	}

	for _, in := range all {
		if !in.IsDir() {
			if in.Nlink != dentriesTo[in.Ino] {
				panic("nlink mismatch for inode")
			}
			continue
		}

		// A directory can have at most one dentry naming it (invariant 3),
		// and the root is conventionally "linked to itself": its nlink
		// baseline of 2 (for "." and the conceptual "..") holds even though
		// no other directory's Dir table names it. A directory unlinked by
		// rmdir but still resident only because of an open fd briefly has
		// Nlink == 0 until DecOpenRef reaps it.
		linked := dentriesTo[in.Ino] > 0 || in.Ino == inode.RootIno
		var expected uint32
		if linked {
			expected = 2 + childDirsOf[in.Ino]
		}
		if in.Nlink != expected {
			panic("nlink mismatch for inode")
		}
	}
}

// checkAccess implements the permission check described in spec.md §1/§4.1:
// a single uid/gid pair is modeled, so every inode's owner is either that
// pair or some other value restored from a snapshot; uid 0 bypasses all
// checks the way root does on Linux.
func (fs *FS) checkAccess(in *inode.Inode, want int) errno.Kind {
	if fs.uid == 0 {
		return 0
	}

	var have uint32
	switch {
	case in.UID == fs.uid:
		have = (in.Mode >> 6) & 0o7
	case in.GID == fs.gid:
		have = (in.Mode >> 3) & 0o7
	default:
		have = in.Mode & 0o7
	}

	var wantBits uint32
	if want&errno.R_OK != 0 {
		wantBits |= 4
	}
	if want&errno.W_OK != 0 {
		wantBits |= 2
	}
	if want&errno.X_OK != 0 {
		wantBits |= 1
	}

	if have&wantBits != wantBits {
		return errno.EACCES
	}
	return 0
}

// startDir resolves a dirfd (AT_FDCWD or an open directory fd) to a starting
// inode number for the resolver.
func (fs *FS) startDir(dirfd int) (uint64, errno.Kind) {
	if dirfd == errno.AT_FDCWD {
		return fs.cwd, 0
	}
	o, ok := fs.fds.Get(dirfd)
	if !ok {
		return 0, errno.EBADF
	}
	return o.Ino, 0
}

// resolveAt is the common entry point used by every *at syscall: translate
// dirfd + path + per-call follow semantics into a resolve.Result.
func (fs *FS) resolveAt(dirfd int, path string, noFollowFinal, emptyPath bool) (resolve.Result, errno.Kind) {
	start, k := fs.startDir(dirfd)
	if k != 0 {
		return resolve.Result{}, k
	}
	return fs.resolver.Resolve(start, path, resolve.Flags{NoFollowFinal: noFollowFinal, EmptyPath: emptyPath})
}

// Chdir changes the instance's logical cwd to the directory named by path.
func (fs *FS) Chdir(path string) (err error) {
	report := fs.trace("Chdir")
	defer func() { report(err) }()
	fs.mu.Lock()
	defer fs.mu.Unlock()

	res, k := fs.resolveAt(errno.AT_FDCWD, path, false, false)
	if k != 0 {
		err = k
		return
	}
	if !res.Found {
		err = errno.ENOENT
		return
	}
	in, ok := fs.table.Lookup(res.TargetIno)
	if !ok || !in.IsDir() {
		err = errno.ENOTDIR
		return
	}
	if k := fs.checkAccess(in, errno.X_OK); k != 0 {
		err = k
		return
	}

	fs.cwd = res.TargetIno
	return
}

// Getcwd returns the absolute path of the instance's current working
// directory. If the cwd inode has been removed out from under it, Getcwd
// fails with ENOENT (spec.md §6: "the cwd remains dangling").
func (fs *FS) Getcwd() (path string, err error) {
	report := fs.trace("Getcwd")
	defer func() { report(err) }()
	fs.mu.Lock()
	defer fs.mu.Unlock()

	path, err = fs.absolutePath(fs.cwd)
	return
}

// absolutePath walks ParentIno pointers from ino up to the root, building
// an absolute path. It fails with ENOENT if any ancestor has been unlinked.
func (fs *FS) absolutePath(ino uint64) (string, error) {
	if ino == inode.RootIno {
		return "/", nil
	}

	var names []string
	cur := ino
	for cur != inode.RootIno {
		in, ok := fs.table.Lookup(cur)
		if !ok || !in.IsDir() {
			return "", errno.ENOENT
		}
		parent, ok := fs.table.Lookup(in.ParentIno)
		if !ok {
			return "", errno.ENOENT
		}
		name, ok := nameOfChildIn(parent, cur)
		if !ok {
			return "", errno.ENOENT
		}
		names = append(names, name)
		cur = in.ParentIno
	}

	out := "/"
	for i := len(names) - 1; i >= 0; i-- {
		out += names[i]
		if i > 0 {
			out += "/"
		}
	}
	return out, nil
}

func nameOfChildIn(parent *inode.Inode, childIno uint64) (string, bool) {
	for _, e := range parent.Dir.Entries() {
		if e.Ino == childIno {
			return e.Name, true
		}
	}
	return "", false
}

// Umask returns the current umask and, if set >= 0, installs a new one,
// mirroring umask(2)'s "returns the previous value" behavior.
func (fs *FS) Umask(newMask int) (old uint32) {
	report := fs.trace("Umask")
	defer func() { report(nil) }()
	fs.mu.Lock()
	defer fs.mu.Unlock()

	old = fs.umask
	if newMask >= 0 {
		fs.umask = uint32(newMask) & 0o777
	}
	return
}

// Close tears down the instance: every open fd is implicitly closed (which
// may reap inodes whose nlink already reached zero), per spec.md §5.
func (fs *FS) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	for fd, o := range fs.fds.All() {
		fs.fds.Close(fd)
		fs.table.DecOpenRef(o.Ino)
	}
	return nil
}
