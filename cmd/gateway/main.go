// Command allegro-gateway serves a fixture-backed WebAPI endpoint over gRPC
// for development and end-to-end testing of the client.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/and161185/allegro-webapi/internal/gateway"
	"github.com/and161185/allegro-webapi/internal/limiter"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

type options struct {
	addr       string
	fixtures   string
	jwtKey     string
	sessionTTL time.Duration
	certFile   string
	keyFile    string
	plaintext  bool
	dev        bool
}

func main() {
	var o options
	flag.StringVar(&o.addr, "addr", ":8443", "listen address")
	flag.StringVar(&o.fixtures, "fixtures", "fixtures.yaml", "YAML fixtures file")
	flag.StringVar(&o.jwtKey, "jwt-key", os.Getenv("ALLEGRO_GATEWAY_JWT_KEY"), "HS256 key for session handles (required)")
	flag.DurationVar(&o.sessionTTL, "session-ttl", 0, "session handle lifetime; 0 never expires (clients do not re-login)")
	flag.StringVar(&o.certFile, "tls-cert", "cert.pem", "TLS certificate (PEM)")
	flag.StringVar(&o.keyFile, "tls-key", "key.pem", "TLS private key (PEM)")
	flag.BoolVar(&o.plaintext, "plaintext", false, "serve without TLS (dev only)")
	flag.BoolVar(&o.dev, "dev", false, "enable server reflection (dev only)")
	flag.Parse()

	logger, _ := zap.NewProduction()
	logger.Info("starting gateway",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", o.addr),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, o, logger)
	stop()
	if err != nil {
		logger.Error("gateway stopped", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("shutdown complete")
	_ = logger.Sync()
}

func newServer(o options, logger *zap.Logger) (*grpc.Server, *health.Server, error) {
	if o.jwtKey == "" {
		return nil, nil, errors.New("missing session signing key (--jwt-key)")
	}
	fx, err := gateway.LoadFixtures(o.fixtures)
	if err != nil {
		return nil, nil, err
	}
	auth, err := gateway.NewAuth(fx, []byte(o.jwtKey), o.sessionTTL,
		limiter.NewMemory(15*time.Minute, 5, 15*time.Minute))
	if err != nil {
		return nil, nil, err
	}
	app := gateway.New(auth, gateway.NewCatalog(fx), fx.Status, logger.Named("gateway"))

	sopts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			gateway.RecoverUnary(logger),
			gateway.LoggingUnary(logger),
		),
	}
	if !o.plaintext {
		creds, err := credentials.NewServerTLSFromFile(o.certFile, o.keyFile)
		if err != nil {
			return nil, nil, fmt.Errorf("load TLS cert/key: %w", err)
		}
		sopts = append(sopts, grpc.Creds(creds))
	}
	s := grpc.NewServer(sopts...)
	app.Register(s)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	if o.dev {
		reflection.Register(s)
	}
	return s, hs, nil
}

// run serves until ctx ends, then drains in-flight calls for up to five seconds.
func run(ctx context.Context, o options, logger *zap.Logger) error {
	s, hs, err := newServer(o, logger)
	if err != nil {
		return err
	}
	lis, err := net.Listen("tcp", o.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", o.addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", lis.Addr().String()), zap.Bool("tls", !o.plaintext))
		errCh <- s.Serve(lis)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	hs.Shutdown()
	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.Stop()
	}
	return nil
}
