package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/sc2cc/sc2cc/server/internal/api"
	"github.com/sc2cc/sc2cc/server/internal/auth"
	"github.com/sc2cc/sc2cc/server/internal/cast"
	"github.com/sc2cc/sc2cc/server/internal/config"
	"github.com/sc2cc/sc2cc/server/internal/encoder"
	"github.com/sc2cc/sc2cc/server/internal/ingest"
	"github.com/sc2cc/sc2cc/server/internal/metrics"
	"github.com/sc2cc/sc2cc/server/internal/receiver"
	"github.com/sc2cc/sc2cc/server/internal/store"
	"github.com/sc2cc/sc2cc/server/internal/ws"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to config file; built-in defaults when empty")
	flag.Parse()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("sc2cc-server starting", "version", version, "config", *configPath)

	cfg := config.Defaults()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			slog.Error("failed to load config", "err", err)
			os.Exit(1)
		}
	}
	sc := cfg.Server
	level.Set(sc.Level())

	slog.Info("config loaded",
		"http_port", sc.HTTPPort,
		"grpc_port", sc.GRPCPort,
		"auth_mode", sc.Auth.Mode,
		"max_streams", sc.Store.MaxSize,
		"stale_after", sc.Store.StaleAfter,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m := metrics.New()
	encoders := encoder.NewFactory(encoder.Params{
		ContentType: sc.Encoder.ContentType,
		Channels:    sc.Encoder.Channels,
		SampleRate:  sc.Encoder.SampleRate,
	}, m)
	st := store.New(store.Config{
		MaxSize:         sc.Store.MaxSize,
		StaleAfter:      sc.Store.StaleAfter,
		CleanupInterval: sc.Store.CleanupInterval,
	}, encoders, m)
	m.TrackStreams(st.Count)

	authz := auth.APIKey{Mode: sc.Auth.Mode, Header: sc.Auth.EffectiveHeader(), Key: sc.Auth.Key()}
	if sc.Auth.Mode == auth.ModeAPIKey && authz.Key == "" {
		slog.Warn("auth: api key environment variable is empty, authentication disabled",
			"key_env", sc.Auth.KeyEnv)
	}

	hub := ws.New(ingest.NewDispatcher(st, "ws", m), ws.Config{
		FramesPerSecond: sc.Ingest.FramesPerSecond,
		Burst:           sc.Ingest.Burst,
	})

	caster := cast.New(sc.Cast.BridgeURL())
	if !caster.Configured() {
		slog.Info("cast bridge not configured, cast routes return 503", "env", sc.Cast.BridgeURLEnv)
	}

	httpSrv := &http.Server{
		Addr: fmt.Sprintf(":%d", sc.HTTPPort),
		Handler: api.New(api.Options{
			Store:          st,
			Encoders:       encoders,
			Ingest:         hub,
			Caster:         caster,
			Auth:           authz,
			Metrics:        m.Handler(),
			Stats:          m.Snapshot,
			PublicURL:      sc.PublicURL,
			MaxUploadBytes: sc.Ingest.MaxUploadBytes,
			Version:        version,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { st.Run(gctx); return nil })
	g.Go(func() error { hub.Run(gctx); return nil })

	g.Go(func() error {
		slog.Info("HTTP server listening", "port", sc.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if sc.GRPCPort > 0 {
		grpcSrv := grpc.NewServer(
			grpc.UnaryInterceptor(authz.UnaryInterceptor()),
			grpc.StreamInterceptor(authz.StreamInterceptor()),
		)
		receiver.Register(grpcSrv, receiver.New(ingest.NewDispatcher(st, "grpc", m)))
		hs := health.NewServer()
		healthpb.RegisterHealthServer(grpcSrv, hs)

		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", sc.GRPCPort))
		if err != nil {
			slog.Error("failed to listen on gRPC port", "port", sc.GRPCPort, "err", err)
			os.Exit(1)
		}
		g.Go(func() error {
			slog.Info("gRPC receiver listening", "port", sc.GRPCPort)
			if err := grpcSrv.Serve(lis); err != nil {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			hs.Shutdown()
			grpcSrv.GracefulStop()
			return nil
		})
	}

	if *configPath != "" {
		g.Go(func() error {
			return config.Watch(gctx, *configPath, func(next *config.Config) {
				level.Set(next.Server.Level())
				st.SetLimits(next.Server.Store.MaxSize, next.Server.Store.StaleAfter)
				slog.Info("config applied",
					"log_level", next.Server.LogLevel,
					"max_streams", next.Server.Store.MaxSize,
					"stale_after", next.Server.Store.StaleAfter,
				)
			})
		})
	}

	if err := g.Wait(); err != nil {
		slog.Error("sc2cc-server stopped", "err", err)
		os.Exit(1)
	}
	slog.Info("sc2cc-server stopped")
}
