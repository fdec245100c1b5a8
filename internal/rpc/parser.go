package rpc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	goxdr "github.com/rasky/go-xdr/xdr2"
)

// ErrNotACall is returned by ReadCall when a record's message type is
// not MsgCall.
var ErrNotACall = errors.New("rpc: message is not a call")

// ReadCall decodes an RPC call from a single already-defragmented
// record. The fixed envelope (header, credential, verifier) is
// unmarshaled with github.com/rasky/go-xdr's struct-tag codec; whatever
// bytes remain in the reader afterwards are the procedure-specific
// arguments, still XDR-encoded, left for the NFS/MOUNT payload codecs.
func ReadCall(record []byte) (*Call, error) {
	// msg_type is the second word of every RPC message. Checking it
	// first reports a reply record, whose envelope is shorter than a
	// call's, as ErrNotACall rather than as a decode error.
	if len(record) >= 8 && binary.BigEndian.Uint32(record[4:8]) != MsgCall {
		return nil, ErrNotACall
	}

	r := bytes.NewReader(record)

	var msg CallMessage
	if _, err := goxdr.Unmarshal(r, &msg); err != nil {
		return nil, fmt.Errorf("rpc: unmarshal call envelope: %w", err)
	}
	if msg.MsgType != MsgCall {
		return nil, ErrNotACall
	}

	args := make([]byte, r.Len())
	if _, err := io.ReadFull(r, args); err != nil {
		return nil, fmt.Errorf("rpc: read args: %w", err)
	}

	return &Call{CallMessage: msg, Args: args}, nil
}

func decodeUint32(r io.Reader) (uint32, error) {
	var v uint32
	if err := binary.Read(r, binary.BigEndian, &v); err != nil {
		return 0, err
	}
	return v, nil
}

func xdrPadding(length uint32) uint32 {
	return (4 - (length % 4)) % 4
}

// ParseUnixCred interprets an OpaqueAuth of flavor AuthSys as an
// AUTH_UNIX credential. Every other flavor, including AuthNone, is
// accepted by the caller without being parsed here: this server passes
// credentials through without using them for access control.
func ParseUnixCred(auth OpaqueAuth) (*UnixCred, error) {
	if auth.Flavor != AuthSys {
		return nil, fmt.Errorf("rpc: not an AUTH_UNIX credential (flavor %d)", auth.Flavor)
	}
	r := bytes.NewReader(auth.Body)

	stamp, err := decodeUint32(r)
	if err != nil {
		return nil, err
	}
	nameLen, err := decodeUint32(r)
	if err != nil {
		return nil, err
	}
	name := make([]byte, nameLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return nil, err
	}
	if pad := xdrPadding(nameLen); pad > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(pad)); err != nil {
			return nil, err
		}
	}
	uid, err := decodeUint32(r)
	if err != nil {
		return nil, err
	}
	gid, err := decodeUint32(r)
	if err != nil {
		return nil, err
	}
	gidCount, err := decodeUint32(r)
	if err != nil {
		return nil, err
	}
	gids := make([]uint32, gidCount)
	for i := range gids {
		g, err := decodeUint32(r)
		if err != nil {
			return nil, err
		}
		gids[i] = g
	}
	return &UnixCred{Stamp: stamp, MachineName: string(name), UID: uid, GID: gid, GIDs: gids}, nil
}

// ReadFragmentedRecord reads one complete RPC record from a record-mark
// framed TCP stream (RFC 5531 §11): a sequence of one or more 4-byte
// length-prefixed fragments, the last of which has its high bit set.
func ReadFragmentedRecord(r io.Reader) ([]byte, error) {
	var record bytes.Buffer
	for {
		var head [4]byte
		if _, err := io.ReadFull(r, head[:]); err != nil {
			return nil, err
		}
		raw := binary.BigEndian.Uint32(head[:])
		isLast := raw&0x80000000 != 0
		length := raw & 0x7fffffff

		if _, err := io.CopyN(&record, r, int64(length)); err != nil {
			return nil, fmt.Errorf("rpc: read fragment: %w", err)
		}
		if isLast {
			return record.Bytes(), nil
		}
	}
}

// MakeSuccessReply builds a complete record-marked RPC reply for a
// successfully dispatched call: accept_stat SUCCESS, an AUTH_NONE
// verifier, and the caller-supplied already-encoded procedure result.
func MakeSuccessReply(xid uint32, payload []byte) ([]byte, error) {
	return makeAcceptedReply(xid, 0, payload)
}

// MakeMismatchReply builds a PROG_MISMATCH reply carrying the
// {low, high} supported version range.
func MakeMismatchReply(xid, low, high uint32) ([]byte, error) {
	var mismatch bytes.Buffer
	_ = binary.Write(&mismatch, binary.BigEndian, low)
	_ = binary.Write(&mismatch, binary.BigEndian, high)
	return makeAcceptedReply(xid, acceptProgMismatch, mismatch.Bytes())
}

// MakeAcceptErrorReply builds an accepted reply carrying a non-SUCCESS
// accept_stat with no payload (PROG_UNAVAIL, PROC_UNAVAIL,
// GARBAGE_ARGS, SYSTEM_ERR).
func MakeAcceptErrorReply(xid, acceptStat uint32) ([]byte, error) {
	return makeAcceptedReply(xid, acceptStat, nil)
}

// acceptProgMismatch mirrors nfs3.AcceptProgMismatch; duplicated here
// (rather than imported) to keep this package free of a dependency on
// the NFS-specific package it is a collaborator of.
const acceptProgMismatch uint32 = 2

func makeAcceptedReply(xid, acceptStat uint32, payload []byte) ([]byte, error) {
	reply := ReplyMessage{
		XID:        xid,
		MsgType:    MsgReply,
		ReplyState: MsgAccepted,
		Verf:       OpaqueAuth{Flavor: AuthNone, Body: []byte{}},
		AcceptStat: acceptStat,
	}

	var body bytes.Buffer
	if _, err := goxdr.Marshal(&body, &reply); err != nil {
		return nil, fmt.Errorf("rpc: marshal reply envelope: %w", err)
	}
	body.Write(payload)

	return frame(body.Bytes()), nil
}

// frame wraps a complete RPC message body in a single last-fragment
// record marker. This server never emits multi-fragment replies.
func frame(body []byte) []byte {
	out := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(out[:4], 0x80000000|uint32(len(body)))
	copy(out[4:], body)
	return out
}
