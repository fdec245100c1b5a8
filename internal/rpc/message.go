// Package rpc implements the ONC/RPC (RFC 5531) call/reply envelope: TCP
// record-mark framing, the fixed call/reply header, AUTH_UNIX credential
// parsing, and accept-status reply construction. It knows nothing about
// NFS itself; internal/nfs3 builds procedure payloads on top of what
// this package hands it.
package rpc

// Message types (RFC 5531 §8).
const (
	MsgCall  uint32 = 0
	MsgReply uint32 = 1
)

// Reply states (RFC 5531 §8).
const (
	MsgAccepted uint32 = 0
	MsgDenied   uint32 = 1
)

// Auth flavors this server understands enough to parse (RFC 5531 §9).
// Neither is ever rejected: AUTH_NONE and AUTH_SYS credentials are
// accepted and passed through without their uid/gid being used for
// access control, matching this server's Non-goal of real permission
// checking.
const (
	AuthNone uint32 = 0
	AuthSys  uint32 = 1
)

// OpaqueAuth is the wire opaque_auth: a flavor tag and an opaque body
// whose interpretation depends on the flavor. The xdr:"opaque" tag
// drives github.com/rasky/go-xdr's struct-tag based (un)marshaling of
// the variable-length body.
type OpaqueAuth struct {
	Flavor uint32
	Body   []byte `xdr:"opaque"`
}

// CallMessage is the fixed portion of an RPC call message: everything
// up to and including the verifier. github.com/rasky/go-xdr unmarshals
// this directly off the wire; whatever bytes follow it in the record
// are the procedure-specific arguments, sliced off separately since
// their shape depends on Program/Procedure.
type CallMessage struct {
	XID        uint32
	MsgType    uint32
	RPCVersion uint32
	Program    uint32
	Version    uint32
	Procedure  uint32
	Cred       OpaqueAuth
	Verf       OpaqueAuth
}

// ReplyMessage is the fixed portion of an accepted RPC reply, up to and
// including accept_stat. Procedure results (on SUCCESS) or a
// mismatch_info (on PROG_MISMATCH) are appended after marshaling this.
type ReplyMessage struct {
	XID        uint32
	MsgType    uint32
	ReplyState uint32
	Verf       OpaqueAuth
	AcceptStat uint32
}

// UnixCred is a parsed AUTH_UNIX credential body (RFC 5531 §9.2).
type UnixCred struct {
	Stamp       uint32
	MachineName string
	UID         uint32
	GID         uint32
	GIDs        []uint32
}

// Call is a fully parsed RPC call: the fixed envelope plus whatever
// procedure-specific bytes followed it in the record.
type Call struct {
	CallMessage
	Args []byte
}
