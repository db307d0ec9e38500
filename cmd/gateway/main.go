package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RichardDebugFile/IA-Vtuber-sub001/internal/api"
	"github.com/RichardDebugFile/IA-Vtuber-sub001/internal/bus"
	"github.com/RichardDebugFile/IA-Vtuber-sub001/internal/config"
	"github.com/RichardDebugFile/IA-Vtuber-sub001/internal/metrics"
	"github.com/RichardDebugFile/IA-Vtuber-sub001/internal/orchestrate"
	"github.com/RichardDebugFile/IA-Vtuber-sub001/internal/ws"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional; defaults + environment apply without one)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("gateway starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"topics", cfg.Topics,
		"conversation", cfg.Upstream.Conversation.URL,
		"tts", cfg.Upstream.TTS.URL,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rec := metrics.New()
	b := bus.New(cfg.Topics, rec)
	orch := orchestrate.New(b, rec, cfg.Upstream)

	// Hot reload applies to upstream targets only; the topic registry is
	// fixed for the life of the process.
	if *configPath != "" {
		go func() {
			err := config.Watch(ctx, *configPath, func(next *config.Config) {
				orch.SetUpstreams(next.Upstream)
			})
			if err != nil {
				slog.Error("config watch stopped", "err", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: api.New(b, orch, ws.NewHandler(b, rec), rec),
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("gateway shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	slog.Info("gateway stopped")
}
