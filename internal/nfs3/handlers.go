package nfs3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"syscall"

	"github.com/riverfs/nfsd3/internal/xdr"
)

func writeStatus(w *bytes.Buffer, status uint32) {
	xdr.EncodeUint32(w, status)
}

// handleNull answers PROC 0: no arguments, no payload, always success.
func handleNull(ctx context.Context, rc *RequestContext, pc *ProcessorContext, args []byte, reply *bytes.Buffer) error {
	return nil
}

// handleGetattr answers GETATTR: fetch and report an object's attributes.
func handleGetattr(ctx context.Context, rc *RequestContext, pc *ProcessorContext, args []byte, reply *bytes.Buffer) error {
	r := bytes.NewReader(args)
	fh, err := decodeFileHandle(r)
	if err != nil {
		return err
	}

	st, statErr := pc.Backend.GetAttr(ctx, fh)
	status := ErrorOf(statErr)
	var attr *Fattr3
	if statErr == nil {
		a, aerr := Fattr3OfStat(st)
		if aerr != nil {
			status = NFS3ErrServerFault
		} else {
			attr = a
		}
	}

	writeStatus(reply, status)
	if status == NFS3OK {
		encodeFattr3(reply, attr)
	}
	return nil
}

// handleLookup answers LOOKUP: resolve name within dir, with the
// directory's own attributes probed in parallel with resolution. "."
// and ".." are handled locally rather than delegated to Backend.Lookup.
func handleLookup(ctx context.Context, rc *RequestContext, pc *ProcessorContext, args []byte, reply *bytes.Buffer) error {
	r := bytes.NewReader(args)
	dirFH, err := decodeFileHandle(r)
	if err != nil {
		return err
	}
	name, err := xdr.DecodeString(r)
	if err != nil {
		return err
	}

	var dirStat *Stat
	var dirErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		dirStat, dirErr = pc.Backend.GetAttr(ctx, dirFH)
	}()

	var (
		objFH      FileHandle
		objStat    *Stat
		resolveErr error
	)
	switch {
	case len(name) > NameMax:
		resolveErr = fmt.Errorf("name exceeds NAME_MAX")
	case name == "..":
		parent, perr := pc.Backend.GetParent(ctx, dirFH)
		if perr != nil {
			resolveErr = perr
		} else {
			objFH = parent
			objStat, resolveErr = pc.Backend.GetAttr(ctx, parent)
		}
	case name == ".":
		objFH = dirFH
		// resolved below, once the directory probe has joined: "."
		// resolves to exactly the same attributes as the probe.
	default:
		objFH, objStat, resolveErr = pc.Backend.Lookup(ctx, dirFH, name)
	}

	wg.Wait()

	if name == "." && len(name) <= NameMax {
		objStat, resolveErr = dirStat, dirErr
	}

	dirPost := PostOpAttrOf(dirStat, dirErr)

	if len(name) > NameMax {
		writeStatus(reply, NFS3ErrNametoolong)
		encodeOptionalFattr3(reply, dirPost)
		return nil
	}

	status := ErrorOf(resolveErr)
	if resolveErr != nil {
		writeStatus(reply, status)
		encodeOptionalFattr3(reply, dirPost)
		return nil
	}

	writeStatus(reply, NFS3OK)
	encodeFileHandle(reply, objFH)
	encodeOptionalFattr3(reply, PostOpAttrOf(objStat, nil))
	encodeOptionalFattr3(reply, dirPost)
	return nil
}

// handleAccess answers ACCESS. Effective rights are reported as exactly
// the desired mask the client asked about: this server does no real
// permission checking (Non-goal), so the only failure mode is the
// attribute probe itself failing.
func handleAccess(ctx context.Context, rc *RequestContext, pc *ProcessorContext, args []byte, reply *bytes.Buffer) error {
	r := bytes.NewReader(args)
	fh, err := decodeFileHandle(r)
	if err != nil {
		return err
	}
	desired, err := xdr.DecodeUint32(r)
	if err != nil {
		return err
	}

	st, statErr := pc.Backend.GetAttr(ctx, fh)
	status := ErrorOf(statErr)
	writeStatus(reply, status)
	encodeOptionalFattr3(reply, PostOpAttrOf(st, statErr))
	if status == NFS3OK {
		xdr.EncodeUint32(reply, desired)
	}
	return nil
}

// handleReadlink answers READLINK: read a symlink's target, with the
// link's own attributes probed in parallel.
func handleReadlink(ctx context.Context, rc *RequestContext, pc *ProcessorContext, args []byte, reply *bytes.Buffer) error {
	r := bytes.NewReader(args)
	fh, err := decodeFileHandle(r)
	if err != nil {
		return err
	}

	var st *Stat
	var statErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		st, statErr = pc.Backend.GetAttr(ctx, fh)
	}()

	target, linkErr := pc.Backend.Readlink(ctx, fh)
	wg.Wait()

	status := ErrorOf(linkErr)
	writeStatus(reply, status)
	encodeOptionalFattr3(reply, PostOpAttrOf(st, statErr))
	if status == NFS3OK {
		xdr.EncodeString(reply, target)
	}
	return nil
}

// handleWrite answers WRITE. The client-requested stable_how is decoded
// to stay positioned correctly but otherwise ignored: this server
// always reports FILE_SYNC and the fixed zero write verifier (see
// writeVerifier).
func handleWrite(ctx context.Context, rc *RequestContext, pc *ProcessorContext, args []byte, reply *bytes.Buffer) error {
	r := bytes.NewReader(args)
	fh, err := decodeFileHandle(r)
	if err != nil {
		return err
	}
	offset, err := xdr.DecodeUint64(r)
	if err != nil {
		return err
	}
	count, err := xdr.DecodeUint32(r)
	if err != nil {
		return err
	}
	if _, err := xdr.DecodeUint32(r); err != nil { // stable_how, unused
		return err
	}
	data, err := xdr.DecodeOpaque(r)
	if err != nil {
		return err
	}
	if uint32(len(data)) > count {
		data = data[:count]
	}

	res, wErr := pc.Backend.Write(ctx, fh, data, offset)
	status := ErrorOf(wErr)

	var pre *PreOpAttr
	var post *Fattr3
	if res != nil {
		pre = PreOpAttrOf(res.PreStat)
		post = PostOpAttrOf(res.PostStat, nil)
	}

	writeStatus(reply, status)
	encodeWccData(reply, pre, post)
	if status == NFS3OK {
		xdr.EncodeUint32(reply, uint32(res.Written))
		xdr.EncodeUint32(reply, StableFileSync)
		reply.Write(writeVerifier[:])
		pc.Metrics.RecordBytesTransferred("write", int64(res.Written))
	}
	return nil
}

// handleCreate answers CREATE. EXCLUSIVE creation (the createmode3
// requiring a stored verifier and a follow-up SETATTR) is not
// implemented; it is answered with NFS3ErrNotSupp rather than
// attempted, since exclusive-create semantics are a Non-goal.
func handleCreate(ctx context.Context, rc *RequestContext, pc *ProcessorContext, args []byte, reply *bytes.Buffer) error {
	r := bytes.NewReader(args)
	dirFH, err := decodeFileHandle(r)
	if err != nil {
		return err
	}
	name, err := xdr.DecodeString(r)
	if err != nil {
		return err
	}
	how, err := xdr.DecodeUint32(r)
	if err != nil {
		return err
	}

	mode := ModeReg | 0644
	switch how {
	case CreateUnchecked, CreateGuarded:
		attrs, err := decodeSattr3(r)
		if err != nil {
			return err
		}
		if attrs.SetMode {
			mode = ModeReg | (attrs.Mode & 0xfff)
		}
	case CreateExclusive:
		var verifier [8]byte
		if _, err := io.ReadFull(r, verifier[:]); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unrecognized createmode3 %d", how)
	}

	if how == CreateExclusive {
		writeStatus(reply, NFS3ErrNotSupp)
		encodeWccData(reply, nil, nil)
		return nil
	}

	if len(name) > NameMax {
		writeStatus(reply, NFS3ErrNametoolong)
		encodeWccData(reply, nil, nil)
		return nil
	}

	res, cErr := pc.Backend.Create(ctx, dirFH, name, mode)
	if how == CreateUnchecked && errors.Is(cErr, syscall.EEXIST) {
		writeStatus(reply, NFS3OK)
		encodeOptionalFileHandle(reply, nil)
		encodeOptionalFattr3(reply, nil)
		encodeWccData(reply, nil, nil)
		return nil
	}
	status := ErrorOf(cErr)
	writeStatus(reply, status)
	if status != NFS3OK {
		encodeWccData(reply, nil, nil)
		return nil
	}
	encodeOptionalFileHandle(reply, &res.Handle)
	encodeOptionalFattr3(reply, PostOpAttrOf(res.Stat, nil))
	encodeWccData(reply, PreOpAttrOf(res.PreDirStat), PostOpAttrOf(res.PostDirStat, nil))
	return nil
}

// handleMkdir answers MKDIR.
func handleMkdir(ctx context.Context, rc *RequestContext, pc *ProcessorContext, args []byte, reply *bytes.Buffer) error {
	r := bytes.NewReader(args)
	dirFH, err := decodeFileHandle(r)
	if err != nil {
		return err
	}
	name, err := xdr.DecodeString(r)
	if err != nil {
		return err
	}
	attrs, err := decodeSattr3(r)
	if err != nil {
		return err
	}

	if len(name) > NameMax {
		writeStatus(reply, NFS3ErrNametoolong)
		encodeWccData(reply, nil, nil)
		return nil
	}
	if name == "." || name == ".." {
		writeStatus(reply, NFS3ErrExist)
		encodeWccData(reply, nil, nil)
		return nil
	}

	mode := ModeDir | 0751
	if attrs.SetMode {
		mode = ModeDir | (attrs.Mode & 0xfff)
	}

	res, mErr := pc.Backend.Mkdir(ctx, dirFH, name, mode)
	status := ErrorOf(mErr)
	writeStatus(reply, status)
	if status != NFS3OK {
		encodeWccData(reply, nil, nil)
		return nil
	}
	encodeOptionalFileHandle(reply, &res.Handle)
	encodeOptionalFattr3(reply, PostOpAttrOf(res.Stat, nil))
	encodeWccData(reply, PreOpAttrOf(res.PreDirStat), PostOpAttrOf(res.PostDirStat, nil))
	return nil
}

// handleLink answers LINK. Hardlinks are a Non-goal; every request is
// answered NFS3ErrNotSupp after an attribute probe of the target object
// (not the requested link name) for the reply's post_op_attr.
func handleLink(ctx context.Context, rc *RequestContext, pc *ProcessorContext, args []byte, reply *bytes.Buffer) error {
	r := bytes.NewReader(args)
	fh, err := decodeFileHandle(r)
	if err != nil {
		return err
	}
	if _, err := decodeFileHandle(r); err != nil { // target directory, unused
		return err
	}
	if _, err := xdr.DecodeString(r); err != nil { // target name, unused
		return err
	}

	st, statErr := pc.Backend.GetAttr(ctx, fh)
	writeStatus(reply, NFS3ErrNotSupp)
	encodeOptionalFattr3(reply, PostOpAttrOf(st, statErr))
	encodeWccData(reply, nil, nil)
	return nil
}

// handleFsstat answers FSSTAT. abytes is computed correctly as
// avail_blocks * block_size; the original implementation this server's
// FSSTAT logic is descended from squares avail_blocks instead, a
// documented bug that is not replicated here (see DESIGN.md).
func handleFsstat(ctx context.Context, rc *RequestContext, pc *ProcessorContext, args []byte, reply *bytes.Buffer) error {
	r := bytes.NewReader(args)
	fh, err := decodeFileHandle(r)
	if err != nil {
		return err
	}

	st, statErr := pc.Backend.GetAttr(ctx, fh)
	fs, fsErr := pc.Backend.Statfs(ctx, fh)

	status := ErrorOf(fsErr)
	writeStatus(reply, status)
	encodeOptionalFattr3(reply, PostOpAttrOf(st, statErr))
	if status != NFS3OK {
		return nil
	}

	xdr.EncodeUint64(reply, fs.TotalBlocks*fs.BlockSize)
	xdr.EncodeUint64(reply, fs.FreeBlocks*fs.BlockSize)
	xdr.EncodeUint64(reply, fs.AvailBlocks*fs.BlockSize)
	xdr.EncodeUint64(reply, fs.TotalFiles)
	xdr.EncodeUint64(reply, fs.FreeFiles)
	xdr.EncodeUint64(reply, fs.FreeFiles) // afiles == ffiles: no per-caller file quota
	xdr.EncodeUint32(reply, 0)            // invarsec: attributes may change at any time
	return nil
}

// handleFsinfo answers FSINFO with the server's static transfer-size
// and capability limits. No attribute probe is made; post_op_attr is
// always absent.
func handleFsinfo(ctx context.Context, rc *RequestContext, pc *ProcessorContext, args []byte, reply *bytes.Buffer) error {
	r := bytes.NewReader(args)
	if _, err := decodeFileHandle(r); err != nil {
		return err
	}

	const blockSize = 1 << 20 // 1 MiB
	writeStatus(reply, NFS3OK)
	encodeOptionalFattr3(reply, nil)
	xdr.EncodeUint32(reply, blockSize) // rtmax
	xdr.EncodeUint32(reply, blockSize) // rtpref
	xdr.EncodeUint32(reply, 1)         // rtmult
	xdr.EncodeUint32(reply, blockSize) // wtmax
	xdr.EncodeUint32(reply, blockSize) // wtpref
	xdr.EncodeUint32(reply, 1)         // wtmult
	xdr.EncodeUint32(reply, blockSize) // dtpref
	xdr.EncodeUint64(reply, ^uint64(0)) // maxfilesize
	xdr.EncodeUint32(reply, 0)          // time_delta seconds
	xdr.EncodeUint32(reply, 1)          // time_delta nseconds: 1ns granularity
	xdr.EncodeUint32(reply, FSF3Symlink|FSF3Homogeneous|FSF3CanSetTime)
	return nil
}

// handlePathconf answers PATHCONF with the server's static POSIX
// pathconf limits. case_insensitive is the negation of the facade's
// configured case-sensitivity flag.
func handlePathconf(ctx context.Context, rc *RequestContext, pc *ProcessorContext, args []byte, reply *bytes.Buffer) error {
	r := bytes.NewReader(args)
	if _, err := decodeFileHandle(r); err != nil {
		return err
	}

	writeStatus(reply, NFS3OK)
	encodeOptionalFattr3(reply, nil)
	xdr.EncodeUint32(reply, 0) // linkmax: hardlinks unsupported
	xdr.EncodeUint32(reply, NameMax)
	xdr.EncodeBool(reply, true)                 // no_trunc
	xdr.EncodeBool(reply, true)                 // chown_restricted
	xdr.EncodeBool(reply, !pc.CaseSensitive)     // case_insensitive
	xdr.EncodeBool(reply, true)                 // case_preserving
	return nil
}
