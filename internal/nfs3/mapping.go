package nfs3

import (
	"errors"
	"math"
)

// ErrInvalidTimespec is returned by NFSTimeOfTimespec when a timestamp
// cannot be narrowed to the wire nfstime3's unsigned 32-bit fields:
// either component is negative, or the seconds component no longer fits
// (a "year 2106" style overflow).
var ErrInvalidTimespec = errors.New("nfs3: timespec out of nfstime3 range")

// FtypeOfMode maps a POSIX file type (the S_IFMT bits of a mode) to an
// NFS ftype3. Anything that isn't one of the recognized bit patterns is
// assumed to be a FIFO, mirroring the fallback the original mapping
// takes rather than failing the whole GETATTR/LOOKUP/etc. reply.
func FtypeOfMode(mode uint32) uint32 {
	switch mode & ModeFmt {
	case ModeReg:
		return NF3Reg
	case ModeDir:
		return NF3Dir
	case ModeBlk:
		return NF3Blk
	case ModeChr:
		return NF3Chr
	case ModeLnk:
		return NF3Lnk
	case ModeSock:
		return NF3Sock
	default:
		return NF3Fifo
	}
}

// NFSModeOfMode maps a POSIX mode to the permission bits reported over
// the wire. This is deliberately lossy: only owner read/write, group
// read, and (conditionally) owner execute survive. Group/other write,
// setuid/setgid/sticky, and every other permission bit are dropped.
// This is the literal mapping this server reports; it is not a bug to
// fix, it is the documented behavior of this attribute path.
func NFSModeOfMode(mode uint32) uint32 {
	out := ModeRUSR | ModeWUSR | ModeRGRP
	if mode&ModeXUSR != 0 {
		out |= ModeXUSR
	}
	return out
}

// NFSTimeOfTimespec narrows a POSIX timespec to a wire nfstime3, whose
// seconds and nanoseconds are both unsigned 32-bit. It fails closed on
// a negative or unrepresentable timestamp rather than silently
// truncating one.
func NFSTimeOfTimespec(ts Timespec) (NFSTime3, error) {
	if ts.Sec < 0 || ts.Nsec < 0 {
		return NFSTime3{}, ErrInvalidTimespec
	}
	if ts.Sec > math.MaxUint32 || ts.Nsec > math.MaxUint32 {
		return NFSTime3{}, ErrInvalidTimespec
	}
	return NFSTime3{Seconds: uint32(ts.Sec), Nseconds: uint32(ts.Nsec)}, nil
}

// Fattr3OfStat builds a full fattr3 from a Stat. It fails if any of the
// three timestamps cannot be represented on the wire.
func Fattr3OfStat(st *Stat) (*Fattr3, error) {
	atime, err := NFSTimeOfTimespec(st.Atime)
	if err != nil {
		return nil, err
	}
	mtime, err := NFSTimeOfTimespec(st.Mtime)
	if err != nil {
		return nil, err
	}
	ctime, err := NFSTimeOfTimespec(st.Ctime)
	if err != nil {
		return nil, err
	}
	return &Fattr3{
		Type:   FtypeOfMode(st.Mode),
		Mode:   NFSModeOfMode(st.Mode),
		Nlink:  st.Nlink,
		UID:    st.UID,
		GID:    st.GID,
		Size:   st.Size,
		Used:   st.Blocks * 512,
		Fsid:   st.Dev,
		Fileid: st.Ino,
		Atime:  atime,
		Mtime:  mtime,
		Ctime:  ctime,
	}, nil
}

// PostOpAttrOf builds an optional post_op_attr: absent if the
// originating call failed, or if the stat it produced cannot be
// represented on the wire. A failed attribute probe never turns a
// successful reply into a failed one and vice versa; it only ever
// leaves this one optional field absent.
func PostOpAttrOf(st *Stat, err error) *Fattr3 {
	if err != nil || st == nil {
		return nil
	}
	attr, aerr := Fattr3OfStat(st)
	if aerr != nil {
		return nil
	}
	return attr
}

// PreOpAttrOf builds an optional wcc_attr from a pre-operation Stat
// snapshot. Only size, mtime and ctime participate in wcc_attr.
func PreOpAttrOf(st *Stat) *PreOpAttr {
	if st == nil {
		return nil
	}
	mtime, err1 := NFSTimeOfTimespec(st.Mtime)
	ctime, err2 := NFSTimeOfTimespec(st.Ctime)
	if err1 != nil || err2 != nil {
		return nil
	}
	return &PreOpAttr{Size: st.Size, Mtime: mtime, Ctime: ctime}
}
