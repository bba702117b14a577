package main

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/rotisserie/eris"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/AdotEXE/protocol-XT-sub007/internal/logging"
)

// healthService is the service name reported by the health endpoint.
const healthService = "simcore.FrameDriver"

// frameCounter is satisfied by scheduler.Metrics.
type frameCounter interface {
	Frames() uint64
}

// frameWatchdog flips the health status to NOT_SERVING when no frame completes
// within a check interval.
type frameWatchdog struct {
	frames   frameCounter
	health   *health.Server
	logger   *logging.Logger
	last     uint64
	serving  bool
	interval time.Duration
}

func newFrameWatchdog(frames frameCounter, hs *health.Server, interval time.Duration, logger *logging.Logger) *frameWatchdog {
	if interval <= 0 {
		interval = time.Second
	}
	hs.SetServingStatus(healthService, healthpb.HealthCheckResponse_NOT_SERVING)
	return &frameWatchdog{frames: frames, health: hs, logger: logger, interval: interval}
}

// check compares the frame counter with the previous observation.
func (w *frameWatchdog) check() bool {
	current := w.frames.Frames()
	advancing := current > w.last
	w.last = current
	if advancing == w.serving {
		return advancing
	}
	w.serving = advancing
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if advancing {
		status = healthpb.HealthCheckResponse_SERVING
		w.logger.Info("frame driver healthy", logging.Int("frames", int(current)))
	} else {
		w.logger.Warn("frame driver stalled", logging.Int("frames", int(current)))
	}
	w.health.SetServingStatus(healthService, status)
	return advancing
}

func (w *frameWatchdog) run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.health.Shutdown()
			return
		case <-ticker.C:
			w.check()
		}
	}
}

// serveHealth starts the gRPC health endpoint on addr and returns the server so
// the caller can stop it.
func serveHealth(addr string, hs *health.Server, logger *logging.Logger) (*grpc.Server, net.Addr, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "listen on %s", addr)
	}
	server := grpc.NewServer()
	healthpb.RegisterHealthServer(server, hs)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.Error("health server stopped", logging.Error(err))
		}
	}()
	logger.Info("health endpoint listening", logging.String("addr", listener.Addr().String()))
	return server, listener.Addr(), nil
}
