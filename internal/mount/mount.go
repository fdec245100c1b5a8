// Package mount implements the MOUNT protocol (RFC 1813 Appendix I), a
// companion RPC service NFSv3 clients use to turn an export path into
// the root file handle they then drive NFS calls against. The request
// processor this module implements never manufactures its own root
// handle out of thin air; a real deployment needs this service running
// alongside it.
package mount

import (
	"bytes"
	"context"
	"net"
	"sync"

	"github.com/riverfs/nfsd3/internal/logger"
	"github.com/riverfs/nfsd3/internal/nfs3"
	"github.com/riverfs/nfsd3/internal/rpc"
	"github.com/riverfs/nfsd3/internal/xdr"
)

// Program identity (RFC 1813 Appendix I).
const (
	ProgramNumber  uint32 = 100005
	ProgramVersion uint32 = 3
)

// Procedure numbers.
const (
	ProcNull uint32 = iota
	ProcMnt
	ProcDump
	ProcUmnt
	ProcUmntAll
	ProcExport
	procCount
)

// mountstat3 values used by MNT.
const (
	MountOK           uint32 = 0
	MountErrNoent     uint32 = 2
	MountErrAcces     uint32 = 13
	MountErrNotDir    uint32 = 20
	MountErrServerFault uint32 = 10006
)

// entry is one active mount record, kept for the DUMP procedure.
type entry struct {
	host string
	path string
}

// Service tracks the configured export shares and the clients
// currently mounted against them.
type Service struct {
	mu     sync.Mutex
	shares map[string]nfs3.FileHandle
	mounts []entry
}

// NewService builds a mount Service exporting the given path -> root
// handle map.
func NewService(shares map[string]nfs3.FileHandle) *Service {
	return &Service{shares: shares}
}

// Dispatch routes one parsed RPC call to a MOUNT procedure. It mirrors
// nfs3.Dispatch's totality: any program/version/procedure mismatch
// produces a well-formed RPC-layer reply rather than being silently
// dropped.
func (s *Service) Dispatch(ctx context.Context, clientAddr net.Addr, call *rpc.Call) ([]byte, error) {
	if call.Program != ProgramNumber {
		return rpc.MakeAcceptErrorReply(call.XID, uint32(nfs3AcceptProgUnavail))
	}
	if call.Version != ProgramVersion {
		return rpc.MakeMismatchReply(call.XID, ProgramVersion, ProgramVersion)
	}
	if call.Procedure >= procCount {
		return rpc.MakeAcceptErrorReply(call.XID, uint32(nfs3AcceptProcUnavail))
	}

	logger.Debug("mount: dispatch xid=0x%x proc=%d", call.XID, call.Procedure)

	var reply bytes.Buffer
	switch call.Procedure {
	case ProcNull:
		// void -> void
	case ProcMnt:
		s.handleMnt(clientAddr, bytes.NewReader(call.Args), &reply)
	case ProcDump:
		s.handleDump(&reply)
	case ProcUmnt:
		s.handleUmnt(clientAddr, bytes.NewReader(call.Args), &reply)
	case ProcUmntAll:
		s.handleUmntAll(clientAddr)
	case ProcExport:
		s.handleExport(&reply)
	}

	return rpc.MakeSuccessReply(call.XID, reply.Bytes())
}

// nfs3AcceptProgUnavail/nfs3AcceptProcUnavail duplicate the RFC 5531
// accept_stat values nfs3 also uses; this package intentionally has no
// dependency on nfs3's dispatch internals beyond the FileHandle type.
const (
	nfs3AcceptProgUnavail uint32 = 1
	nfs3AcceptProcUnavail uint32 = 3
)

func (s *Service) handleMnt(clientAddr net.Addr, r *bytes.Reader, reply *bytes.Buffer) {
	path, err := xdr.DecodeString(r)
	if err != nil {
		xdr.EncodeUint32(reply, MountErrServerFault)
		return
	}

	s.mu.Lock()
	root, ok := s.shares[path]
	s.mu.Unlock()
	if !ok {
		xdr.EncodeUint32(reply, MountErrNoent)
		return
	}

	s.mu.Lock()
	s.mounts = append(s.mounts, entry{host: hostOf(clientAddr), path: path})
	s.mu.Unlock()

	var fh [8]byte
	putUint64(fh[:], uint64(root))

	xdr.EncodeUint32(reply, MountOK)
	xdr.EncodeOpaque(reply, fh[:])
	// auth_flavors: AUTH_NONE and AUTH_SYS are both accepted pass-through.
	xdr.EncodeUint32(reply, 2)
	xdr.EncodeUint32(reply, rpc.AuthNone)
	xdr.EncodeUint32(reply, rpc.AuthSys)
}

func (s *Service) handleDump(reply *bytes.Buffer) {
	s.mu.Lock()
	mounts := append([]entry(nil), s.mounts...)
	s.mu.Unlock()

	for _, m := range mounts {
		xdr.EncodeBool(reply, true) // another entry follows
		xdr.EncodeString(reply, m.host)
		xdr.EncodeString(reply, m.path)
	}
	xdr.EncodeBool(reply, false) // end of list
}

func (s *Service) handleUmnt(clientAddr net.Addr, r *bytes.Reader, reply *bytes.Buffer) {
	path, err := xdr.DecodeString(r)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.mounts[:0]
	for _, m := range s.mounts {
		if m.path != path || m.host != hostOf(clientAddr) {
			kept = append(kept, m)
		}
	}
	s.mounts = kept
}

func (s *Service) handleUmntAll(clientAddr net.Addr) {
	host := hostOf(clientAddr)
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.mounts[:0]
	for _, m := range s.mounts {
		if m.host != host {
			kept = append(kept, m)
		}
	}
	s.mounts = kept
}

func (s *Service) handleExport(reply *bytes.Buffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for path := range s.shares {
		xdr.EncodeBool(reply, true)
		xdr.EncodeString(reply, path)
		xdr.EncodeUint32(reply, 0) // no group list
	}
	xdr.EncodeBool(reply, false)
}

func hostOf(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

func putUint64(b []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}
