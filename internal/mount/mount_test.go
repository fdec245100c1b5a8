package mount

import (
	"bytes"
	"context"
	"net"
	"testing"

	"github.com/riverfs/nfsd3/internal/nfs3"
	"github.com/riverfs/nfsd3/internal/rpc"
	"github.com/riverfs/nfsd3/internal/xdr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testClient net.Addr = &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 4000}

func encodedArgs(t *testing.T, values ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, v := range values {
		xdr.EncodeString(&buf, v)
	}
	return buf.Bytes()
}

func mountCall(procedure uint32, args []byte) *rpc.Call {
	return &rpc.Call{
		CallMessage: rpc.CallMessage{
			XID:       1,
			MsgType:   rpc.MsgCall,
			Program:   ProgramNumber,
			Version:   ProgramVersion,
			Procedure: procedure,
			Cred:      rpc.OpaqueAuth{Flavor: rpc.AuthNone, Body: []byte{}},
			Verf:      rpc.OpaqueAuth{Flavor: rpc.AuthNone, Body: []byte{}},
		},
		Args: args,
	}
}

func payloadOf(t *testing.T, framed []byte) []byte {
	t.Helper()
	length := uint32(framed[0])<<24 | uint32(framed[1])<<16 | uint32(framed[2])<<8 | uint32(framed[3])
	length &= 0x7fffffff
	body := framed[4 : 4+length]
	// skip the fixed reply envelope: xid, msgtype, replystate, verf(flavor+opaque len), acceptstat
	r := bytes.NewReader(body)
	_, _ = xdr.DecodeUint32(r) // xid
	_, _ = xdr.DecodeUint32(r) // msgtype
	_, _ = xdr.DecodeUint32(r) // replystate
	_, _ = xdr.DecodeUint32(r) // verf flavor
	_, err := xdr.DecodeOpaque(r) // verf body
	require.NoError(t, err)
	_, _ = xdr.DecodeUint32(r) // acceptstat
	rest := make([]byte, r.Len())
	_, _ = r.Read(rest)
	return rest
}

func TestMntKnownShareSucceeds(t *testing.T) {
	root := nfs3.FileHandle(42)
	svc := NewService(map[string]nfs3.FileHandle{"/export": root})

	framed, err := svc.Dispatch(context.Background(), testClient, mountCall(ProcMnt, encodedArgs(t, "/export")))
	require.NoError(t, err)

	payload := payloadOf(t, framed)
	r := bytes.NewReader(payload)
	status, err := xdr.DecodeUint32(r)
	require.NoError(t, err)
	assert.Equal(t, MountOK, status)

	fh, err := xdr.DecodeOpaque(r)
	require.NoError(t, err)
	require.Len(t, fh, 8)
}

func TestMntUnknownShareFails(t *testing.T) {
	svc := NewService(map[string]nfs3.FileHandle{"/export": 1})
	framed, err := svc.Dispatch(context.Background(), testClient, mountCall(ProcMnt, encodedArgs(t, "/nope")))
	require.NoError(t, err)

	payload := payloadOf(t, framed)
	status, err := xdr.DecodeUint32(bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, MountErrNoent, status)
}

func TestDumpListsActiveMounts(t *testing.T) {
	svc := NewService(map[string]nfs3.FileHandle{"/export": 1})
	_, err := svc.Dispatch(context.Background(), testClient, mountCall(ProcMnt, encodedArgs(t, "/export")))
	require.NoError(t, err)

	framed, err := svc.Dispatch(context.Background(), testClient, mountCall(ProcDump, nil))
	require.NoError(t, err)

	payload := payloadOf(t, framed)
	r := bytes.NewReader(payload)
	hasNext, err := xdr.DecodeBool(r)
	require.NoError(t, err)
	require.True(t, hasNext)

	host, err := xdr.DecodeString(r)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", host)

	path, err := xdr.DecodeString(r)
	require.NoError(t, err)
	assert.Equal(t, "/export", path)

	hasNext, err = xdr.DecodeBool(r)
	require.NoError(t, err)
	assert.False(t, hasNext)
}

func TestUmntRemovesMount(t *testing.T) {
	svc := NewService(map[string]nfs3.FileHandle{"/export": 1})
	_, err := svc.Dispatch(context.Background(), testClient, mountCall(ProcMnt, encodedArgs(t, "/export")))
	require.NoError(t, err)

	_, err = svc.Dispatch(context.Background(), testClient, mountCall(ProcUmnt, encodedArgs(t, "/export")))
	require.NoError(t, err)

	framed, err := svc.Dispatch(context.Background(), testClient, mountCall(ProcDump, nil))
	require.NoError(t, err)
	payload := payloadOf(t, framed)
	hasNext, err := xdr.DecodeBool(bytes.NewReader(payload))
	require.NoError(t, err)
	assert.False(t, hasNext)
}

func TestDispatchWrongProgramIsProgUnavail(t *testing.T) {
	svc := NewService(map[string]nfs3.FileHandle{})
	call := mountCall(ProcNull, nil)
	call.Program = 999999
	framed, err := svc.Dispatch(context.Background(), testClient, call)
	require.NoError(t, err)

	// reply envelope: xid, msgtype, replystate, verf(flavor+opaque), acceptstat
	r := bytes.NewReader(framed[4:])
	for i := 0; i < 4; i++ {
		_, err = xdr.DecodeUint32(r)
		require.NoError(t, err)
	}
	_, err = xdr.DecodeOpaque(r)
	require.NoError(t, err)
	acceptStat, err := xdr.DecodeUint32(r)
	require.NoError(t, err)
	assert.Equal(t, nfs3AcceptProgUnavail, acceptStat)
	assert.Zero(t, r.Len(), "PROG_UNAVAIL carries no payload")
}
