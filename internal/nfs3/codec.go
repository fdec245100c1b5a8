package nfs3

import (
	"bytes"
	"fmt"
	"io"

	"github.com/riverfs/nfsd3/internal/xdr"
)

// encodeFileHandle writes an nfs_fh3: an opaque body carrying the
// 8-byte big-endian inode number.
func encodeFileHandle(w *bytes.Buffer, fh FileHandle) {
	var body [8]byte
	putUint64(body[:], uint64(fh))
	xdr.EncodeOpaque(w, body[:])
}

// encodeOptionalFileHandle writes a post_op_fh3: a present flag
// followed by the handle if present.
func encodeOptionalFileHandle(w *bytes.Buffer, fh *FileHandle) {
	if fh == nil {
		xdr.EncodeBool(w, false)
		return
	}
	xdr.EncodeBool(w, true)
	encodeFileHandle(w, *fh)
}

func decodeFileHandle(r io.Reader) (FileHandle, error) {
	body, err := xdr.DecodeOpaque(r)
	if err != nil {
		return 0, fmt.Errorf("nfs3: decode file handle: %w", err)
	}
	if len(body) != 8 {
		return 0, fmt.Errorf("nfs3: file handle has unexpected length %d", len(body))
	}
	return FileHandle(getUint64(body)), nil
}

func putUint64(b []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

func getUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func encodeNFSTime3(w *bytes.Buffer, t NFSTime3) {
	xdr.EncodeUint32(w, t.Seconds)
	xdr.EncodeUint32(w, t.Nseconds)
}

func decodeNFSTime3(r io.Reader) (NFSTime3, error) {
	sec, err := xdr.DecodeUint32(r)
	if err != nil {
		return NFSTime3{}, err
	}
	nsec, err := xdr.DecodeUint32(r)
	if err != nil {
		return NFSTime3{}, err
	}
	return NFSTime3{Seconds: sec, Nseconds: nsec}, nil
}

// encodeFattr3 writes a full fattr3. Callers only invoke this once they
// know the reply status is NFS3OK and attr is non-nil.
func encodeFattr3(w *bytes.Buffer, attr *Fattr3) {
	xdr.EncodeUint32(w, attr.Type)
	xdr.EncodeUint32(w, attr.Mode)
	xdr.EncodeUint32(w, attr.Nlink)
	xdr.EncodeUint32(w, attr.UID)
	xdr.EncodeUint32(w, attr.GID)
	xdr.EncodeUint64(w, attr.Size)
	xdr.EncodeUint64(w, attr.Used)
	xdr.EncodeUint32(w, attr.Rdev.Specdata1)
	xdr.EncodeUint32(w, attr.Rdev.Specdata2)
	xdr.EncodeUint64(w, attr.Fsid)
	xdr.EncodeUint64(w, attr.Fileid)
	encodeNFSTime3(w, attr.Atime)
	encodeNFSTime3(w, attr.Mtime)
	encodeNFSTime3(w, attr.Ctime)
}

// encodeOptionalFattr3 writes a post_op_attr.
func encodeOptionalFattr3(w *bytes.Buffer, attr *Fattr3) {
	if attr == nil {
		xdr.EncodeBool(w, false)
		return
	}
	xdr.EncodeBool(w, true)
	encodeFattr3(w, attr)
}

func encodePreOpAttr(w *bytes.Buffer, pre *PreOpAttr) {
	if pre == nil {
		xdr.EncodeBool(w, false)
		return
	}
	xdr.EncodeBool(w, true)
	xdr.EncodeUint64(w, pre.Size)
	encodeNFSTime3(w, pre.Mtime)
	encodeNFSTime3(w, pre.Ctime)
}

// encodeWccData writes a wcc_data: the pre-op attributes followed by
// the post-op attributes, each independently optional.
func encodeWccData(w *bytes.Buffer, pre *PreOpAttr, post *Fattr3) {
	encodePreOpAttr(w, pre)
	encodeOptionalFattr3(w, post)
}

// decodeSattr3 decodes a full sattr3: six independently-optional
// fields, the last two (atime/mtime) three-way discriminated unions
// rather than simple present/absent flags.
func decodeSattr3(r io.Reader) (*Sattr3, error) {
	var s Sattr3

	if present, err := xdr.DecodeBool(r); err != nil {
		return nil, err
	} else if present {
		s.SetMode = true
		if s.Mode, err = xdr.DecodeUint32(r); err != nil {
			return nil, err
		}
	}
	if present, err := xdr.DecodeBool(r); err != nil {
		return nil, err
	} else if present {
		s.SetUID = true
		if s.UID, err = xdr.DecodeUint32(r); err != nil {
			return nil, err
		}
	}
	if present, err := xdr.DecodeBool(r); err != nil {
		return nil, err
	} else if present {
		s.SetGID = true
		if s.GID, err = xdr.DecodeUint32(r); err != nil {
			return nil, err
		}
	}
	if present, err := xdr.DecodeBool(r); err != nil {
		return nil, err
	} else if present {
		s.SetSize = true
		if s.Size, err = xdr.DecodeUint64(r); err != nil {
			return nil, err
		}
	}

	how, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, err
	}
	s.SetAtime = how
	if how == TimeSetToClientTime {
		if s.Atime, err = decodeNFSTime3(r); err != nil {
			return nil, err
		}
	}

	how, err = xdr.DecodeUint32(r)
	if err != nil {
		return nil, err
	}
	s.SetMtime = how
	if how == TimeSetToClientTime {
		if s.Mtime, err = decodeNFSTime3(r); err != nil {
			return nil, err
		}
	}

	return &s, nil
}
