package nfs3

import (
	"bytes"
	"context"
	"time"

	"github.com/riverfs/nfsd3/internal/logger"
	"github.com/riverfs/nfsd3/internal/rpc"
)

// Handler decodes a procedure's arguments from r, does whatever backend
// work the procedure requires, and appends the NFS-layer reply (status
// plus any payload) to reply. It returns an error only for a plumbing
// failure such as a truncated or malformed argument stream; the router
// turns that into a GARBAGE_ARGS accept_stat. Every other outcome,
// including every backend failure, is represented on the wire by the
// handler itself and reported with a nil error.
type Handler func(ctx context.Context, rc *RequestContext, pc *ProcessorContext, args []byte, reply *bytes.Buffer) error

// Dispatch routes one already-parsed RPC call to its procedure handler
// and returns the complete record-marked reply ready to write to the
// connection. It implements the totality the dispatch table promises:
// every combination of program, version and procedure number produces
// exactly one reply, whether or not a handler exists for it.
func Dispatch(ctx context.Context, pc *ProcessorContext, call *rpc.Call) ([]byte, error) {
	if call.Program != ProgramNumber {
		return rpc.MakeAcceptErrorReply(call.XID, AcceptProgUnavail)
	}
	if call.Version != ProgramVersion {
		return rpc.MakeMismatchReply(call.XID, ProgramVersion, ProgramVersion)
	}
	if call.Procedure >= procCount {
		return rpc.MakeAcceptErrorReply(call.XID, AcceptProcUnavail)
	}

	entry := dispatchTable[call.Procedure]
	if entry.handler == nil {
		return rpc.MakeAcceptErrorReply(call.XID, AcceptProcUnavail)
	}

	logger.Debug("nfs3: dispatch xid=0x%x proc=%s", call.XID, entry.name)

	rc := &RequestContext{Procedure: entry.name, XID: call.XID}
	start := time.Now()

	var reply bytes.Buffer
	if err := entry.handler(ctx, rc, pc, call.Args, &reply); err != nil {
		logger.Debug("nfs3: %s: garbage args: %v", entry.name, err)
		pc.Metrics.RecordRequest(entry.name, time.Since(start).Seconds(), AcceptGarbageArgs)
		return rpc.MakeAcceptErrorReply(call.XID, AcceptGarbageArgs)
	}

	pc.Metrics.RecordRequest(entry.name, time.Since(start).Seconds(), AcceptSuccess)
	return rpc.MakeSuccessReply(call.XID, reply.Bytes())
}
