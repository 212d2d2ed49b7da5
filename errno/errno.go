// Package errno defines the errno-style failure values returned by every
// fallible tmpfs operation, plus the Linux flag constants those operations
// accept. Values are bit-for-bit identical to the uapi constants exposed by
// golang.org/x/sys/unix so that host bindings written against <errno.h> and
// <fcntl.h> can reuse their own constants interchangeably with ours.
package errno

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Kind is a single numeric errno value. It never wraps another error; the
// caller is expected to switch on its numeric value the way C code switches
// on errno.
type Kind int

// Error implements the error interface so that Kind can be returned directly
// from any fallible operation.
func (k Kind) Error() string {
	if k == 0 {
		return "errno: success"
	}
	return fmt.Sprintf("errno %d: %s", int(k), unix.Errno(k).Error())
}

// Is lets callers use errors.Is(err, errno.ENOENT) etc.
func (k Kind) Is(target error) bool {
	other, ok := target.(Kind)
	return ok && other == k
}

const (
	ENOENT       = Kind(unix.ENOENT)
	EEXIST       = Kind(unix.EEXIST)
	ENOTDIR      = Kind(unix.ENOTDIR)
	EISDIR       = Kind(unix.EISDIR)
	EACCES       = Kind(unix.EACCES)
	EPERM        = Kind(unix.EPERM)
	EINVAL       = Kind(unix.EINVAL)
	ELOOP        = Kind(unix.ELOOP)
	ENAMETOOLONG = Kind(unix.ENAMETOOLONG)
	EBADF        = Kind(unix.EBADF)
	ENOTEMPTY    = Kind(unix.ENOTEMPTY)
	EFBIG        = Kind(unix.EFBIG)
	EOPNOTSUPP   = Kind(unix.EOPNOTSUPP)
	EOVERFLOW    = Kind(unix.EOVERFLOW)
	ERANGE       = Kind(unix.ERANGE)
	ENODATA      = Kind(unix.ENODATA)
	EBUSY        = Kind(unix.EBUSY)
	ENOMEM       = Kind(unix.ENOMEM)
	ENXIO        = Kind(unix.ENXIO)
	EXDEV        = Kind(unix.EXDEV)
	EMLINK       = Kind(unix.EMLINK)
)
