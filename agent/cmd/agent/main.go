package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sc2cc/sc2cc/agent/internal/config"
	"github.com/sc2cc/sc2cc/agent/internal/uploader"
)

func main() {
	configPath := flag.String("config", "", "path to config file; built-in defaults when empty")
	serverURL := flag.String("server", "", "override agent.server_url")
	contentType := flag.String("content-type", "", "override agent.stream.content_type")
	channels := flag.Int("channels", 0, "override agent.stream.channels")
	sampleRate := flag.Int("sample-rate", 0, "override agent.stream.sample_rate")
	flag.Parse()

	// Logs go to stderr; stdin carries the audio.
	level := new(slog.LevelVar)
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg := config.Defaults()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			slog.Error("failed to load config", "err", err)
			os.Exit(1)
		}
	}
	a := &cfg.Agent
	if *serverURL != "" {
		a.ServerURL = *serverURL
	}
	if *contentType != "" {
		a.Stream.ContentType = *contentType
	}
	if *channels != 0 {
		a.Stream.Channels = *channels
	}
	if *sampleRate != 0 {
		a.Stream.SampleRate = *sampleRate
	}
	if err := config.Validate(cfg); err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(2)
	}
	level.Set(a.Level())

	slog.Info("sc2cc-agent starting",
		"server_url", a.ServerURL,
		"content_type", a.Stream.ContentType,
		"channels", a.Stream.Channels,
		"sample_rate", a.Stream.SampleRate,
		"frame_bytes", a.FrameBytes(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *configPath != "" {
		go func() {
			if err := config.Watch(ctx, *configPath, func(next *config.Config) {
				level.Set(next.Agent.Level())
				slog.Info("config hot-reloaded", "log_level", next.Agent.LogLevel)
			}); err != nil {
				slog.Error("config watcher stopped", "err", err)
			}
		}()
	}

	go func() {
		<-ctx.Done()
		os.Stdin.Close() // unblock the reader
	}()

	up := uploader.New(*a)
	err := up.Stream(ctx, bufio.NewReaderSize(os.Stdin, a.FrameBytes()))
	if ctx.Err() != nil && up.ID() != "" {
		// Interrupted: still end the stream so players see EOF.
		endCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		err = up.Complete(endCtx)
		done()
	}
	if err != nil {
		slog.Error("sc2cc-agent stopped", "stream_id", up.ID(), "err", err)
		os.Exit(1)
	}
	if n := len(up.Rejected()); n > 0 {
		slog.Warn("server rejected frames", "stream_id", up.ID(), "count", n)
	}
	slog.Info("sc2cc-agent finished", "stream_id", up.ID(), "dropped", up.Dropped())
}
