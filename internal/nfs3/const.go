// Package nfs3 implements the NFS version 3 request processor: XDR-level
// argument decoding, POSIX<->NFS attribute mapping, the 22-procedure
// dispatch table, and the server facade that binds it to a listener.
package nfs3

// RFC 1813 program identity. There is exactly one supported version.
const (
	ProgramNumber  uint32 = 100003
	ProgramVersion uint32 = 3
)

// Procedure numbers, in RFC 1813 order. NULL..COMMIT is 0..21.
const (
	ProcNull uint32 = iota
	ProcGetattr
	ProcSetattr
	ProcLookup
	ProcAccess
	ProcReadlink
	ProcRead
	ProcWrite
	ProcCreate
	ProcMkdir
	ProcSymlink
	ProcMknod
	ProcRemove
	ProcRmdir
	ProcRename
	ProcLink
	ProcReaddir
	ProcReaddirplus
	ProcFsstat
	ProcFsinfo
	ProcPathconf
	ProcCommit
	procCount
)

// nfsstat3 values (RFC 1813 §2.6).
const (
	NFS3OK             uint32 = 0
	NFS3ErrPerm        uint32 = 1
	NFS3ErrNoent       uint32 = 2
	NFS3ErrIO          uint32 = 5
	NFS3ErrNxio        uint32 = 6
	NFS3ErrAcces       uint32 = 13
	NFS3ErrExist       uint32 = 17
	NFS3ErrXdev        uint32 = 18
	NFS3ErrNodev       uint32 = 19
	NFS3ErrNotdir      uint32 = 20
	NFS3ErrIsdir       uint32 = 21
	NFS3ErrInval       uint32 = 22
	NFS3ErrFbig        uint32 = 27
	NFS3ErrNospc       uint32 = 28
	NFS3ErrRofs        uint32 = 30
	NFS3ErrMlink       uint32 = 31
	NFS3ErrNametoolong uint32 = 63
	NFS3ErrNotempty    uint32 = 66
	NFS3ErrDquot       uint32 = 69
	NFS3ErrStale       uint32 = 70
	NFS3ErrRemote      uint32 = 71
	NFS3ErrBadhandle   uint32 = 10001
	NFS3ErrNotSync     uint32 = 10002
	NFS3ErrBadCookie   uint32 = 10003
	NFS3ErrNotSupp     uint32 = 10004
	NFS3ErrTooSmall    uint32 = 10005
	NFS3ErrServerFault uint32 = 10006
	NFS3ErrBadType     uint32 = 10007
	NFS3ErrJukebox     uint32 = 10008
)

// RPC accept_stat values (RFC 5531 §7.5.2).
const (
	AcceptSuccess     uint32 = 0
	AcceptProgUnavail uint32 = 1
	AcceptProgMismatch uint32 = 2
	AcceptProcUnavail uint32 = 3
	AcceptGarbageArgs uint32 = 4
	AcceptSystemErr   uint32 = 5
)

// ftype3 values.
const (
	NF3Reg   uint32 = 1
	NF3Dir   uint32 = 2
	NF3Blk   uint32 = 3
	NF3Chr   uint32 = 4
	NF3Lnk   uint32 = 5
	NF3Sock  uint32 = 6
	NF3Fifo  uint32 = 7
)

// POSIX mode bits (S_IFMT family and permission bits), named as the
// original C++ macros would name them. These are portable numeric
// constants, not syscall-package aliases, so mapping.go has no
// platform-specific import.
const (
	ModeFmt   uint32 = 0170000
	ModeDir   uint32 = 0040000
	ModeChr   uint32 = 0020000
	ModeBlk   uint32 = 0060000
	ModeReg   uint32 = 0100000
	ModeFifo  uint32 = 0010000
	ModeLnk   uint32 = 0120000
	ModeSock  uint32 = 0140000

	ModeRUSR uint32 = 0400
	ModeWUSR uint32 = 0200
	ModeXUSR uint32 = 0100
	ModeRGRP uint32 = 0040
	ModeWGRP uint32 = 0020
	ModeXGRP uint32 = 0010
)

// createmode3 values (CREATE procedure discriminant).
const (
	CreateUnchecked uint32 = 0
	CreateGuarded   uint32 = 1
	CreateExclusive uint32 = 2
)

// stable_how values (WRITE procedure).
const (
	StableUnstable  uint32 = 0
	StableDataSync  uint32 = 1
	StableFileSync  uint32 = 2
)

// time_how values (sattr3 sub-discriminants).
const (
	TimeDontChange       uint32 = 0
	TimeSetToClientTime  uint32 = 1
	TimeSetToServerTime  uint32 = 2
)

// FSF3 fsinfo properties bitmask.
const (
	FSF3Link        uint32 = 0x0001
	FSF3Symlink     uint32 = 0x0002
	FSF3Homogeneous uint32 = 0x0008
	FSF3CanSetTime  uint32 = 0x0010
)

// NameMax bounds every name argument (LOOKUP, CREATE, MKDIR, ...). Names
// longer than this are rejected with NFS3ErrNametoolong and never
// passed to the backend; LOOKUP still reports the directory attributes
// from its parallel GetAttr probe.
const NameMax = 255

// dispatchTable index -> {name, handler}. A nil Handler means the
// procedure is answered with PROC_UNAVAIL directly by the router,
// without ever calling into the backend; this mirrors the initial
// profile of procedures the request processor does not yet implement.
type dispatchEntry struct {
	name    string
	handler Handler
}

var dispatchTable = [procCount]dispatchEntry{
	ProcNull:        {"NULL", handleNull},
	ProcGetattr:     {"GETATTR", handleGetattr},
	ProcSetattr:     {"SETATTR", nil},
	ProcLookup:      {"LOOKUP", handleLookup},
	ProcAccess:      {"ACCESS", handleAccess},
	ProcReadlink:    {"READLINK", handleReadlink},
	ProcRead:        {"READ", nil},
	ProcWrite:       {"WRITE", handleWrite},
	ProcCreate:      {"CREATE", handleCreate},
	ProcMkdir:       {"MKDIR", handleMkdir},
	ProcSymlink:     {"SYMLINK", nil},
	ProcMknod:       {"MKNOD", nil},
	ProcRemove:      {"REMOVE", nil},
	ProcRmdir:       {"RMDIR", nil},
	ProcRename:      {"RENAME", nil},
	ProcLink:        {"LINK", handleLink},
	ProcReaddir:     {"READDIR", nil},
	ProcReaddirplus: {"READDIRPLUS", nil},
	ProcFsstat:      {"FSSTAT", handleFsstat},
	ProcFsinfo:      {"FSINFO", handleFsinfo},
	ProcPathconf:    {"PATHCONF", handlePathconf},
	ProcCommit:      {"COMMIT", nil},
}
