package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/jivesoftware/ImageCapturer/internal/app"
	"github.com/jivesoftware/ImageCapturer/internal/async"
	"github.com/jivesoftware/ImageCapturer/internal/common"
	"github.com/jivesoftware/ImageCapturer/internal/server"
)

const sessionKey = "daemon"

func main() {
	cfg := common.LoadConfig()
	logger, err := common.NewLogger(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}

	// Context with signal
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := app.Start(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	if err := rt.DB.HealthCheck(ctx, cfg.Database.DialTimeout); err != nil {
		logger.Error("DB health failed", "error", err)
		rt.Stop(context.Background())
		os.Exit(1)
	}
	logger.Info("DB health OK")

	svc := server.NewCaptureService(rt.Loop, rt.Session, sessionKey, rt.Sessions, rt.Outcomes, logger)
	if err := svc.Resume(ctx); err != nil {
		logger.Warn("could not resume persisted session", "error", err)
	}

	// gRPC server
	grpcServer := grpc.NewServer()
	// Health service
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	// Reflection for grpcurl
	reflection.Register(grpcServer)

	server.RegisterCapturerServer(grpcServer, svc)

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("listen failed", "addr", cfg.Server.GRPCAddr, "error", err)
		rt.Stop(context.Background())
		os.Exit(1)
	}
	logger.Info("gRPC serving", "addr", lis.Addr().String(), "scratch_dir", rt.Scratch.Dir())

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		logger.Error("grpc serve", "error", err)
	}

	logger.Info("shutting down...")
	hs.Shutdown()
	grpcServer.GracefulStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	// outcomes still in flight are journaled before the store closes
	rt.Pool.Shutdown(shutdownCtx)
	_ = rt.Do(shutdownCtx, func(async.Token) error { return nil })
	svc.Close()
	rt.Stop(shutdownCtx)
	logger.Info("stopped")
}
