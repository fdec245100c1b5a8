package nfs3

import (
	"context"
	"errors"
	"syscall"
)

// errnoStatus is the errno->nfsstat3 table. Every value not present
// here (including ENFILE, which the original leaves unmapped) falls
// through to NFS3ErrServerFault in ErrorOf.
var errnoStatus = map[syscall.Errno]uint32{
	syscall.EPERM:         NFS3ErrPerm,
	syscall.ENOENT:        NFS3ErrNoent,
	syscall.EIO:           NFS3ErrIO,
	syscall.ETXTBSY:       NFS3ErrIO,
	syscall.ENXIO:         NFS3ErrNxio,
	syscall.EACCES:        NFS3ErrAcces,
	syscall.EEXIST:        NFS3ErrExist,
	syscall.EXDEV:         NFS3ErrXdev,
	syscall.ENODEV:        NFS3ErrNodev,
	syscall.ENOTDIR:       NFS3ErrNotdir,
	syscall.EISDIR:        NFS3ErrIsdir,
	syscall.EINVAL:        NFS3ErrInval,
	syscall.EFBIG:         NFS3ErrFbig,
	syscall.EROFS:         NFS3ErrRofs,
	syscall.EMLINK:        NFS3ErrMlink,
	syscall.ENAMETOOLONG:  NFS3ErrNametoolong,
	syscall.ENOTEMPTY:     NFS3ErrNotempty,
	syscall.EDQUOT:        NFS3ErrDquot,
	syscall.ESTALE:        NFS3ErrStale,
	syscall.ETIMEDOUT:     NFS3ErrJukebox,
	syscall.EAGAIN:        NFS3ErrJukebox,
	syscall.ENOMEM:        NFS3ErrJukebox,
	syscall.ENOTSUP:       NFS3ErrNotSupp,
}

// ErrorOf translates a backend error into an nfsstat3. nil maps to
// NFS3OK. A context deadline (a timeout with no errno of its own) maps
// to NFS3ErrJukebox, telling the client to retry later. Any error that
// wraps a recognized syscall.Errno is translated via the table above;
// anything else, including a bare ENFILE, becomes NFS3ErrServerFault.
func ErrorOf(err error) uint32 {
	if err == nil {
		return NFS3OK
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NFS3ErrJukebox
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		if status, ok := errnoStatus[errno]; ok {
			return status
		}
	}
	return NFS3ErrServerFault
}
