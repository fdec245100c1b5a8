package nfs3

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	goxdr "github.com/rasky/go-xdr/xdr2"
	"github.com/riverfs/nfsd3/internal/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCall(program, version, procedure uint32) *rpc.Call {
	return &rpc.Call{
		CallMessage: rpc.CallMessage{
			XID:       0x1234,
			MsgType:   rpc.MsgCall,
			Program:   program,
			Version:   version,
			Procedure: procedure,
			Cred:      rpc.OpaqueAuth{Flavor: rpc.AuthNone, Body: []byte{}},
			Verf:      rpc.OpaqueAuth{Flavor: rpc.AuthNone, Body: []byte{}},
		},
		Args: []byte{},
	}
}

func decodeReply(t *testing.T, framed []byte) (rpc.ReplyMessage, []byte) {
	t.Helper()
	length := binary.BigEndian.Uint32(framed[:4]) & 0x7fffffff
	body := framed[4 : 4+length]
	r := bytes.NewReader(body)
	var reply rpc.ReplyMessage
	_, err := goxdr.Unmarshal(r, &reply)
	require.NoError(t, err)
	rest := make([]byte, r.Len())
	_, _ = r.Read(rest)
	return reply, rest
}

func testContext() *ProcessorContext {
	return &ProcessorContext{Backend: nil, CaseSensitive: true, Metrics: NoopMetrics{}}
}

func TestDispatchUnknownProgram(t *testing.T) {
	framed, err := Dispatch(context.Background(), testContext(), testCall(999999, ProgramVersion, ProcNull))
	require.NoError(t, err)
	reply, _ := decodeReply(t, framed)
	assert.Equal(t, AcceptProgUnavail, reply.AcceptStat)
}

func TestDispatchVersionMismatchCarriesExactRange(t *testing.T) {
	framed, err := Dispatch(context.Background(), testContext(), testCall(ProgramNumber, 4, ProcNull))
	require.NoError(t, err)
	reply, payload := decodeReply(t, framed)
	assert.Equal(t, AcceptProgMismatch, reply.AcceptStat)
	require.Len(t, payload, 8)
	assert.Equal(t, uint32(3), binary.BigEndian.Uint32(payload[:4]))
	assert.Equal(t, uint32(3), binary.BigEndian.Uint32(payload[4:]))
}

func TestDispatchProcedureOutOfRange(t *testing.T) {
	framed, err := Dispatch(context.Background(), testContext(), testCall(ProgramNumber, ProgramVersion, procCount+5))
	require.NoError(t, err)
	reply, _ := decodeReply(t, framed)
	assert.Equal(t, AcceptProcUnavail, reply.AcceptStat)
}

func TestDispatchUnimplementedProcedure(t *testing.T) {
	for _, proc := range []uint32{ProcSetattr, ProcRead, ProcReaddir, ProcCommit} {
		framed, err := Dispatch(context.Background(), testContext(), testCall(ProgramNumber, ProgramVersion, proc))
		require.NoError(t, err)
		reply, _ := decodeReply(t, framed)
		assert.Equal(t, AcceptProcUnavail, reply.AcceptStat, "procedure %d", proc)
	}
}

func TestDispatchNullSucceeds(t *testing.T) {
	framed, err := Dispatch(context.Background(), testContext(), testCall(ProgramNumber, ProgramVersion, ProcNull))
	require.NoError(t, err)
	reply, payload := decodeReply(t, framed)
	assert.Equal(t, AcceptSuccess, reply.AcceptStat)
	assert.Empty(t, payload)
}
