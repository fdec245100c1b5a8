// Command nfsd3 runs the NFSv3 request processor and its companion
// MOUNT service against a configured backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/riverfs/nfsd3/internal/logger"
	"github.com/riverfs/nfsd3/internal/mount"
	"github.com/riverfs/nfsd3/internal/nfs3"
	"github.com/riverfs/nfsd3/internal/portmap"
	"github.com/riverfs/nfsd3/internal/rpc"
	"github.com/riverfs/nfsd3/pkg/config"
	"github.com/riverfs/nfsd3/pkg/metrics"
)

func metricsPort(addr string) int {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		portStr = strings.TrimPrefix(addr, ":")
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 9090
	}
	return port
}

func main() {
	configPath := flag.String("config", "", "Path to config file (defaults to "+config.DefaultConfigPath()+")")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("nfsd3: load config: %v", err)
	}

	logger.SetLevel(cfg.Logging.Level)
	logger.Info("nfsd3 starting: backend=%s addr=%s mount_addr=%s", cfg.Backend.Type, cfg.Server.Addr, cfg.Server.MountAddr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, rootHandle, closeBackend, err := config.BuildBackend(ctx, cfg.Backend)
	if err != nil {
		log.Fatalf("nfsd3: build backend: %v", err)
	}
	defer func() {
		if err := closeBackend(); err != nil {
			logger.Warn("nfsd3: close backend: %v", err)
		}
	}()

	if cfg.Server.MetricsAddr != "" {
		metrics.InitRegistry()
	}
	nfsMetrics := metrics.NewNFSMetrics()

	shares := make(map[string]nfs3.FileHandle, len(cfg.Shares))
	for _, share := range cfg.Shares {
		shares[share.Path] = rootHandle
	}
	mountSvc := mount.NewService(shares)

	var registrar *portmap.Client
	if cfg.Server.RegisterPortmap {
		registrar = portmap.NewClient()
	}

	nfsServer := nfs3.NewServer(nfs3.Config{
		Addr:            cfg.Server.Addr,
		RegisterPortmap: cfg.Server.RegisterPortmap,
		CaseSensitive:   cfg.Server.CaseSensitive,
	}, backend, nfsMetrics, registrar)

	errCh := make(chan error, 2)

	go func() {
		errCh <- fmt.Errorf("nfs3 server: %w", nfsServer.Serve(ctx))
	}()
	go func() {
		errCh <- fmt.Errorf("mount server: %w", serveMount(ctx, cfg.Server.MountAddr, mountSvc, registrar))
	}()
	if cfg.Server.MetricsAddr != "" {
		go func() {
			srv := metrics.NewServer(metrics.ServerConfig{Port: metricsPort(cfg.Server.MetricsAddr)})
			errCh <- fmt.Errorf("metrics server: %w", srv.Start(ctx))
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("nfsd3: shutdown signal received")
		nfsServer.Stop()
	case err := <-errCh:
		logger.Error("nfsd3: %v", err)
		stop()
		nfsServer.Stop()
		os.Exit(1)
	}
}

// serveMount runs the MOUNT service's own RPC accept loop; it shares
// the record-framing and call-parsing primitives with the NFSv3
// server but has its own listener and dispatch table.
func serveMount(ctx context.Context, addr string, svc *mount.Service, registrar *portmap.Client) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	defer ln.Close()

	if registrar != nil {
		port := uint32(ln.Addr().(*net.TCPAddr).Port)
		if err := registrar.Register(ctx, mount.ProgramNumber, mount.ProgramVersion, port); err != nil {
			logger.Warn("mount: portmap registration failed: %v", err)
		} else {
			defer func() {
				if err := registrar.Unregister(context.Background(), mount.ProgramNumber, mount.ProgramVersion); err != nil {
					logger.Warn("mount: portmap unregistration failed: %v", err)
				}
			}()
		}
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go func() {
			defer conn.Close()
			for {
				record, err := rpc.ReadFragmentedRecord(conn)
				if err != nil {
					return
				}
				call, err := rpc.ReadCall(record)
				if err != nil {
					logger.Debug("mount: malformed call: %v", err)
					continue
				}
				reply, err := svc.Dispatch(ctx, conn.RemoteAddr(), call)
				if err != nil {
					logger.Debug("mount: dispatch error: %v", err)
					continue
				}
				if _, err := conn.Write(reply); err != nil {
					logger.Debug("mount: write reply: %v", err)
					return
				}
			}
		}()
	}
}
