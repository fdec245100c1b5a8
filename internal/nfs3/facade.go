package nfs3

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/riverfs/nfsd3/internal/logger"
	"github.com/riverfs/nfsd3/internal/rpc"
)

// writeVerifier is returned in every successful WRITE reply. It is a
// fixed zero value: the original implementation this write path is
// descended from documents that a fixed verifier defeats the client's
// ability to detect that the server restarted mid-write (a real
// verifier should change across restarts), but spec-level behavior
// pins verf=0 on every successful WRITE reply, so the limitation is
// kept and documented here rather than silently patched.
var writeVerifier = [8]byte{}

// PortmapRegistrar is the optional portmapper registration collaborator
// a Server uses at startup and shutdown. internal/portmap implements
// this against a real rpcbind/portmap service.
type PortmapRegistrar interface {
	Register(ctx context.Context, program, version, port uint32) error
	Unregister(ctx context.Context, program, version uint32) error
}

// Config controls a Server's lifecycle and reported behavior.
type Config struct {
	// Addr is the "host:port" (or ":port") the server listens on.
	Addr string

	// RegisterPortmap, when true and NewServer was given a non-nil
	// portmap registrar, registers
	// (ProgramNumber, ProgramVersion, tcp, listen-port) with the
	// configured portmapper at Serve startup and unregisters it when
	// Serve returns.
	RegisterPortmap bool

	// CaseSensitive controls PATHCONF's case_insensitive flag (the
	// negation of this value).
	CaseSensitive bool
}

// Server is the NFSv3 request processor's facade: it owns a listener,
// binds incoming connections to Dispatch, and optionally registers
// itself with a portmapper. It does not implement the MOUNT protocol;
// internal/mount is a companion service run alongside it.
type Server struct {
	config  Config
	backend Backend
	metrics Metrics
	portmap PortmapRegistrar

	mu       sync.Mutex
	listener net.Listener

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewServer builds a Server. metrics may be nil, in which case a
// NoopMetrics is substituted so the dispatch router never needs a nil
// check. portmap may be nil regardless of config.RegisterPortmap; in
// that case registration is silently skipped.
func NewServer(config Config, backend Backend, metrics Metrics, portmap PortmapRegistrar) *Server {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &Server{
		config:  config,
		backend: backend,
		metrics: metrics,
		portmap: portmap,
		stopCh:  make(chan struct{}),
	}
}

// Serve listens and processes NFSv3 requests until ctx is canceled or
// Stop is called. Once the listener is closed it waits for every
// connection it already accepted to end before returning. It returns
// nil on a clean shutdown, or the error that caused the listener to fail.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("nfs3: listen on %s: %w", s.config.Addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.config.RegisterPortmap && s.portmap != nil {
		port := uint32(ln.Addr().(*net.TCPAddr).Port)
		if err := s.portmap.Register(ctx, ProgramNumber, ProgramVersion, port); err != nil {
			logger.Warn("nfs3: portmap registration failed: %v", err)
		} else {
			defer func() {
				if err := s.portmap.Unregister(context.Background(), ProgramNumber, ProgramVersion); err != nil {
					logger.Warn("nfs3: portmap unregistration failed: %v", err)
				}
			}()
		}
	}

	go func() {
		select {
		case <-ctx.Done():
			ln.Close()
		case <-s.stopCh:
			ln.Close()
		}
	}()

	pc := &ProcessorContext{Backend: s.backend, CaseSensitive: s.config.CaseSensitive, Metrics: s.metrics}

	var conns sync.WaitGroup
	defer conns.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-s.stopCh:
				return nil
			default:
				return fmt.Errorf("nfs3: accept: %w", err)
			}
		}
		conns.Add(1)
		go func() {
			defer conns.Done()
			serveConn(ctx, conn, pc)
		}()
	}
}

// serveConn reads RPC records off conn until it closes or ctx is
// canceled, dispatching each record on its own goroutine. Requests
// bearing different XIDs are independent and may complete, and be
// written back, out of receipt order; a single mutex serializes actual
// writes to the shared connection.
func serveConn(ctx context.Context, conn net.Conn, pc *ProcessorContext) {
	defer conn.Close()

	var writeMu sync.Mutex
	var inFlight sync.WaitGroup
	defer inFlight.Wait()

	for {
		record, err := rpc.ReadFragmentedRecord(conn)
		if err != nil {
			return
		}
		call, err := rpc.ReadCall(record)
		if err != nil {
			logger.Debug("nfs3: malformed call: %v", err)
			continue
		}

		inFlight.Add(1)
		go func(call *rpc.Call) {
			defer inFlight.Done()
			replyBytes, err := Dispatch(ctx, pc, call)
			if err != nil {
				logger.Debug("nfs3: dispatch error: %v", err)
				return
			}
			writeMu.Lock()
			defer writeMu.Unlock()
			if _, err := conn.Write(replyBytes); err != nil {
				logger.Debug("nfs3: write reply: %v", err)
			}
		}(call)
	}
}

// Stop closes Serve's listener so no new connections are accepted;
// Serve returns once the connections it already accepted have closed.
// Stop itself does not wait for in-flight requests to drain and does not close
// already-accepted connections out from under their handlers; those
// finish naturally as their goroutines complete. This mirrors a
// documented limitation of the original implementation this facade is
// descended from, which fires its stop signal immediately with a
// pending TODO to drain in-flight requests before really stopping.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

// StopNotify returns a channel that is closed once Stop has been
// called, letting callers await shutdown without polling.
func (s *Server) StopNotify() <-chan struct{} {
	return s.stopCh
}
