// Package portmap implements a minimal portmapper (RFC 1833 / RFC 1057
// §5) client: just enough to SET and UNSET a single (program, version,
// protocol, port) mapping with rpcbind at startup and shutdown. It is
// the concrete "portmapper registration client" the server facade
// dispatches through its PortmapRegistrar interface.
package portmap

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"time"

	goxdr "github.com/rasky/go-xdr/xdr2"
	"github.com/riverfs/nfsd3/internal/rpc"
)

// Well-known portmapper identity (RFC 1057 §5).
const (
	ProgramNumber  uint32 = 100000
	ProgramVersion uint32 = 2
)

const (
	procSet   uint32 = 1
	procUnset uint32 = 2
)

const protoTCP uint32 = 6

// Mapping is the pmap2 "mapping" argument SET and UNSET both take.
type Mapping struct {
	Program  uint32
	Version  uint32
	Protocol uint32
	Port     uint32
}

// Client talks to a portmapper/rpcbind service, by default the local
// one on the standard port 111.
type Client struct {
	Addr    string
	Timeout time.Duration
}

// NewClient builds a Client targeting the local portmapper.
func NewClient() *Client {
	return &Client{Addr: "127.0.0.1:111", Timeout: 5 * time.Second}
}

// Register calls PMAPPROC_SET to advertise (program, version, tcp, port).
// It implements nfs3.PortmapRegistrar.
func (c *Client) Register(ctx context.Context, program, version, port uint32) error {
	ok, err := c.call(ctx, procSet, Mapping{Program: program, Version: version, Protocol: protoTCP, Port: port})
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("portmap: rpcbind rejected registration of (%d,%d)", program, version)
	}
	return nil
}

// Unregister calls PMAPPROC_UNSET to withdraw a mapping. It implements
// nfs3.PortmapRegistrar.
func (c *Client) Unregister(ctx context.Context, program, version uint32) error {
	_, err := c.call(ctx, procUnset, Mapping{Program: program, Version: version})
	return err
}

func (c *Client) call(ctx context.Context, procedure uint32, mapping Mapping) (bool, error) {
	dialer := net.Dialer{Timeout: c.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return false, fmt.Errorf("portmap: dial rpcbind at %s: %w", c.Addr, err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	msg := rpc.CallMessage{
		XID:        1,
		MsgType:    rpc.MsgCall,
		RPCVersion: 2,
		Program:    ProgramNumber,
		Version:    ProgramVersion,
		Procedure:  procedure,
		Cred:       rpc.OpaqueAuth{Flavor: rpc.AuthNone, Body: []byte{}},
		Verf:       rpc.OpaqueAuth{Flavor: rpc.AuthNone, Body: []byte{}},
	}

	var body bytes.Buffer
	if _, err := goxdr.Marshal(&body, &msg); err != nil {
		return false, fmt.Errorf("portmap: marshal call: %w", err)
	}
	if _, err := goxdr.Marshal(&body, &mapping); err != nil {
		return false, fmt.Errorf("portmap: marshal mapping: %w", err)
	}

	frame := make([]byte, 4+body.Len())
	binary.BigEndian.PutUint32(frame[:4], 0x80000000|uint32(body.Len()))
	copy(frame[4:], body.Bytes())

	if _, err := conn.Write(frame); err != nil {
		return false, fmt.Errorf("portmap: write call: %w", err)
	}

	record, err := rpc.ReadFragmentedRecord(conn)
	if err != nil {
		return false, fmt.Errorf("portmap: read reply: %w", err)
	}

	var reply rpc.ReplyMessage
	r := bytes.NewReader(record)
	if _, err := goxdr.Unmarshal(r, &reply); err != nil {
		return false, fmt.Errorf("portmap: unmarshal reply: %w", err)
	}
	if reply.ReplyState != rpc.MsgAccepted || reply.AcceptStat != 0 {
		return false, fmt.Errorf("portmap: rpcbind returned accept_stat=%d reply_state=%d", reply.AcceptStat, reply.ReplyState)
	}

	var result uint32
	if err := binary.Read(r, binary.BigEndian, &result); err != nil {
		return false, fmt.Errorf("portmap: read result: %w", err)
	}
	return result != 0, nil
}
