package nfs3

import "context"

// FileHandle is the server's internal handle for an object: an opaque
// 64-bit inode number, wire-encoded as an 8-byte nfs_fh3 opaque body.
type FileHandle uint64

// Timespec mirrors a POSIX struct timespec.
type Timespec struct {
	Sec  int64
	Nsec int64
}

// Stat mirrors the fields of a POSIX struct stat that fattr3_of_stat
// consumes. Backends produce this from whatever native representation
// they use internally.
type Stat struct {
	Ino    uint64
	Mode   uint32
	Nlink  uint32
	UID    uint32
	GID    uint32
	Size   uint64
	Blocks uint64
	Dev    uint64
	Atime  Timespec
	Mtime  Timespec
	Ctime  Timespec
}

// NFSTime3 is the wire nfstime3.
type NFSTime3 struct {
	Seconds  uint32
	Nseconds uint32
}

// SpecData3 is the wire specdata3 (device major/minor). This server
// never reports device files with a meaningful rdev, so it is always
// the zero value.
type SpecData3 struct {
	Specdata1 uint32
	Specdata2 uint32
}

// Fattr3 is the wire fattr3.
type Fattr3 struct {
	Type   uint32
	Mode   uint32
	Nlink  uint32
	UID    uint32
	GID    uint32
	Size   uint64
	Used   uint64
	Rdev   SpecData3
	Fsid   uint64
	Fileid uint64
	Atime  NFSTime3
	Mtime  NFSTime3
	Ctime  NFSTime3
}

// PreOpAttr is the wire wcc_attr, used as the "before" half of wcc_data.
type PreOpAttr struct {
	Size  uint64
	Mtime NFSTime3
	Ctime NFSTime3
}

// StatFS mirrors the fields of a POSIX struct statvfs that FSSTAT needs.
type StatFS struct {
	TotalBlocks uint64
	FreeBlocks  uint64
	AvailBlocks uint64
	BlockSize   uint64
	TotalFiles  uint64
	FreeFiles   uint64
}

// Sattr3 is the decoded wire sattr3: every field is optional, guarded by
// its own Set flag or, for the two timestamps, a three-way discriminant.
type Sattr3 struct {
	SetMode bool
	Mode    uint32

	SetUID bool
	UID    uint32

	SetGID bool
	GID    uint32

	SetSize bool
	Size    uint64

	SetAtime uint32 // TimeDontChange / TimeSetToClientTime / TimeSetToServerTime
	Atime    NFSTime3

	SetMtime uint32
	Mtime    NFSTime3
}

// WriteResult is what Backend.Write returns: the number of bytes
// actually written and the file's attributes immediately before and
// after the write, used to build the WRITE reply's wcc_data.
//
// The backend interface historically documented this as
// {written, pre_dir_stat, post_dir_stat}, but WRITE never touches a
// directory; those two fields are the pre/post attributes of the file
// being written, and are named PreStat/PostStat here to say so.
type WriteResult struct {
	Written  uint64
	PreStat  *Stat
	PostStat *Stat
}

// CreateResult is what Backend.Create and Backend.Mkdir return: the new
// object's handle and attributes, plus the parent directory's
// attributes immediately before and after the operation.
type CreateResult struct {
	Handle       FileHandle
	Stat         *Stat
	PreDirStat   *Stat
	PostDirStat  *Stat
}

// Backend is the pluggable filesystem back end a Server dispatches
// procedure handlers against. Implementations must be safe for
// concurrent use: handlers for independent requests, and even for the
// same request's own fan-out (e.g. LOOKUP's parallel directory probe),
// call into it concurrently.
type Backend interface {
	// GetAttr returns the attributes of ino.
	GetAttr(ctx context.Context, ino FileHandle) (*Stat, error)

	// GetParent returns the handle of ino's parent directory.
	GetParent(ctx context.Context, ino FileHandle) (FileHandle, error)

	// Lookup resolves name within the directory dir.
	Lookup(ctx context.Context, dir FileHandle, name string) (FileHandle, *Stat, error)

	// Readlink returns the target of the symlink ino.
	Readlink(ctx context.Context, ino FileHandle) (string, error)

	// Write writes data to ino at offset.
	Write(ctx context.Context, ino FileHandle, data []byte, offset uint64) (*WriteResult, error)

	// Create creates a regular file named name in dir with the given mode.
	Create(ctx context.Context, dir FileHandle, name string, mode uint32) (*CreateResult, error)

	// Mkdir creates a directory named name in dir with the given mode.
	Mkdir(ctx context.Context, dir FileHandle, name string, mode uint32) (*CreateResult, error)

	// Statfs returns filesystem-wide capacity statistics for the
	// filesystem containing ino.
	Statfs(ctx context.Context, ino FileHandle) (*StatFS, error)
}
