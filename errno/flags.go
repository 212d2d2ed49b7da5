package errno

import "golang.org/x/sys/unix"

// Open flags (O_*). Re-exported verbatim from golang.org/x/sys/unix rather
// than re-declared, so that a host that already has <fcntl.h> bindings can
// pass its own constants straight through.
const (
	O_RDONLY    = unix.O_RDONLY
	O_WRONLY    = unix.O_WRONLY
	O_RDWR      = unix.O_RDWR
	O_ACCMODE   = unix.O_ACCMODE
	O_CREAT     = unix.O_CREAT
	O_EXCL      = unix.O_EXCL
	O_TRUNC     = unix.O_TRUNC
	O_APPEND    = unix.O_APPEND
	O_DIRECTORY = unix.O_DIRECTORY
	O_NOFOLLOW  = unix.O_NOFOLLOW
	O_NOATIME   = unix.O_NOATIME
	O_TMPFILE   = unix.O_TMPFILE
)

// dirfd/resolution flags (AT_*).
const (
	AT_FDCWD            = unix.AT_FDCWD
	AT_SYMLINK_NOFOLLOW = unix.AT_SYMLINK_NOFOLLOW
	AT_SYMLINK_FOLLOW   = unix.AT_SYMLINK_FOLLOW
	AT_EMPTY_PATH       = unix.AT_EMPTY_PATH
	AT_REMOVEDIR        = unix.AT_REMOVEDIR
)

// mode_t type and permission bits (S_I*).
const (
	S_IFMT  = unix.S_IFMT
	S_IFDIR = unix.S_IFDIR
	S_IFREG = unix.S_IFREG
	S_IFLNK = unix.S_IFLNK

	S_IRWXU = unix.S_IRWXU
	S_IRUSR = unix.S_IRUSR
	S_IWUSR = unix.S_IWUSR
	S_IXUSR = unix.S_IXUSR
	S_IRWXG = unix.S_IRWXG
	S_IRGRP = unix.S_IRGRP
	S_IWGRP = unix.S_IWGRP
	S_IXGRP = unix.S_IXGRP
	S_IRWXO = unix.S_IRWXO
	S_IROTH = unix.S_IROTH
	S_IWOTH = unix.S_IWOTH
	S_IXOTH = unix.S_IXOTH
)

// lseek whences (SEEK_*), including the hole-aware Linux extensions.
const (
	SEEK_SET  = 0
	SEEK_CUR  = 1
	SEEK_END  = 2
	SEEK_DATA = unix.SEEK_DATA
	SEEK_HOLE = unix.SEEK_HOLE
)

// statx interest mask bits (STATX_*). This implementation always populates
// every field it has; tmpfs.FS.Statx ignores the mask and returns none.
const (
	STATX_TYPE        = unix.STATX_TYPE
	STATX_MODE        = unix.STATX_MODE
	STATX_NLINK       = unix.STATX_NLINK
	STATX_UID         = unix.STATX_UID
	STATX_GID         = unix.STATX_GID
	STATX_ATIME       = unix.STATX_ATIME
	STATX_MTIME       = unix.STATX_MTIME
	STATX_CTIME       = unix.STATX_CTIME
	STATX_INO         = unix.STATX_INO
	STATX_SIZE        = unix.STATX_SIZE
	STATX_BTIME       = unix.STATX_BTIME
	STATX_BASIC_STATS = unix.STATX_BASIC_STATS
	STATX_ALL         = unix.STATX_ALL
)

// utimensat sentinel values (UTIME_*).
const (
	UTIME_NOW  = unix.UTIME_NOW
	UTIME_OMIT = unix.UTIME_OMIT
)

// renameat2 flags (RENAME_*).
const (
	RENAME_NOREPLACE = unix.RENAME_NOREPLACE
	RENAME_EXCHANGE  = unix.RENAME_EXCHANGE
	RENAME_WHITEOUT  = unix.RENAME_WHITEOUT
)

// fallocate mode bits (FALLOC_FL_*).
const (
	FALLOC_FL_KEEP_SIZE      = unix.FALLOC_FL_KEEP_SIZE
	FALLOC_FL_PUNCH_HOLE     = unix.FALLOC_FL_PUNCH_HOLE
	FALLOC_FL_COLLAPSE_RANGE = unix.FALLOC_FL_COLLAPSE_RANGE
	FALLOC_FL_ZERO_RANGE     = unix.FALLOC_FL_ZERO_RANGE
	FALLOC_FL_INSERT_RANGE   = unix.FALLOC_FL_INSERT_RANGE
)

// xattr flags (XATTR_*).
const (
	XATTR_CREATE  = unix.XATTR_CREATE
	XATTR_REPLACE = unix.XATTR_REPLACE
)

// access(2)/faccessat(2) mode bits.
const (
	R_OK = unix.R_OK
	W_OK = unix.W_OK
	X_OK = unix.X_OK
	F_OK = unix.F_OK
)

// Directory entry types (d_type), used by getdents and the snapshot codec.
const (
	DT_UNKNOWN = unix.DT_UNKNOWN
	DT_REG     = unix.DT_REG
	DT_DIR     = unix.DT_DIR
	DT_LNK     = unix.DT_LNK
)

// Limits from spec.md §3/§4.
const (
	MaxNameLen     = 255
	MaxPathLen     = 4095
	MaxSymlinkLen  = 4095
	MaxXattrName   = 255
	MaxXattrTotal  = 65536
	MaxSymlinkHops = 40
)
