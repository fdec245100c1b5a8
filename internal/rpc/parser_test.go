package rpc

import (
	"bytes"
	"encoding/binary"
	"testing"

	goxdr "github.com/rasky/go-xdr/xdr2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildCallRecord(t *testing.T, xid, program, version, procedure uint32) []byte {
	t.Helper()
	msg := CallMessage{
		XID:        xid,
		MsgType:    MsgCall,
		RPCVersion: 2,
		Program:    program,
		Version:    version,
		Procedure:  procedure,
		Cred:       OpaqueAuth{Flavor: AuthNone, Body: []byte{}},
		Verf:       OpaqueAuth{Flavor: AuthNone, Body: []byte{}},
	}
	var body bytes.Buffer
	_, err := goxdr.Marshal(&body, &msg)
	require.NoError(t, err)
	body.Write([]byte{0xaa, 0xbb, 0xcc, 0xdd})
	return body.Bytes()
}

func frameFor(t *testing.T, body []byte) []byte {
	t.Helper()
	out := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(out[:4], 0x80000000|uint32(len(body)))
	copy(out[4:], body)
	return out
}

func TestReadCallParsesEnvelopeAndArgs(t *testing.T) {
	record := buildCallRecord(t, 42, 100003, 3, 1)
	call, err := ReadCall(record)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), call.XID)
	assert.Equal(t, uint32(100003), call.Program)
	assert.Equal(t, uint32(3), call.Version)
	assert.Equal(t, uint32(1), call.Procedure)
	assert.Equal(t, []byte{0xaa, 0xbb, 0xcc, 0xdd}, call.Args)
}

func TestReadCallRejectsNonCallMessage(t *testing.T) {
	reply := ReplyMessage{XID: 1, MsgType: MsgReply, ReplyState: MsgAccepted, Verf: OpaqueAuth{Flavor: AuthNone, Body: []byte{}}}
	var body bytes.Buffer
	_, err := goxdr.Marshal(&body, &reply)
	require.NoError(t, err)
	_, err = ReadCall(body.Bytes())
	assert.ErrorIs(t, err, ErrNotACall)
}

func TestReadFragmentedRecordSingleFragment(t *testing.T) {
	payload := []byte("hello")
	record := frameFor(t, payload)
	got, err := ReadFragmentedRecord(bytes.NewReader(record))
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestReadFragmentedRecordMultipleFragments(t *testing.T) {
	var stream bytes.Buffer
	frag1 := []byte("hello ")
	frag2 := []byte("world")

	var h1 [4]byte
	binary.BigEndian.PutUint32(h1[:], uint32(len(frag1))) // high bit clear: not last
	stream.Write(h1[:])
	stream.Write(frag1)

	var h2 [4]byte
	binary.BigEndian.PutUint32(h2[:], 0x80000000|uint32(len(frag2)))
	stream.Write(h2[:])
	stream.Write(frag2)

	got, err := ReadFragmentedRecord(&stream)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))
}

func decodeReplyEnvelope(t *testing.T, framed []byte) (ReplyMessage, []byte) {
	t.Helper()
	length := binary.BigEndian.Uint32(framed[:4]) & 0x7fffffff
	body := framed[4 : 4+length]
	r := bytes.NewReader(body)
	var reply ReplyMessage
	_, err := goxdr.Unmarshal(r, &reply)
	require.NoError(t, err)
	rest := make([]byte, r.Len())
	_, _ = r.Read(rest)
	return reply, rest
}

func TestMakeSuccessReply(t *testing.T) {
	framed, err := MakeSuccessReply(7, []byte{1, 2, 3, 4})
	require.NoError(t, err)
	reply, payload := decodeReplyEnvelope(t, framed)
	assert.Equal(t, uint32(7), reply.XID)
	assert.Equal(t, MsgReply, reply.MsgType)
	assert.Equal(t, MsgAccepted, reply.ReplyState)
	assert.Equal(t, uint32(0), reply.AcceptStat)
	assert.Equal(t, []byte{1, 2, 3, 4}, payload)
}

func TestMakeMismatchReplyCarriesExactRange(t *testing.T) {
	framed, err := MakeMismatchReply(9, 3, 3)
	require.NoError(t, err)
	reply, payload := decodeReplyEnvelope(t, framed)
	assert.Equal(t, acceptProgMismatch, reply.AcceptStat)
	require.Len(t, payload, 8)
	assert.Equal(t, uint32(3), binary.BigEndian.Uint32(payload[:4]))
	assert.Equal(t, uint32(3), binary.BigEndian.Uint32(payload[4:]))
}

func TestMakeAcceptErrorReply(t *testing.T) {
	const acceptProcUnavail uint32 = 3
	framed, err := MakeAcceptErrorReply(1, acceptProcUnavail)
	require.NoError(t, err)
	reply, payload := decodeReplyEnvelope(t, framed)
	assert.Equal(t, acceptProcUnavail, reply.AcceptStat)
	assert.Empty(t, payload)
}
