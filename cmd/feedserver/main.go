// Command feedserver is a mock market data server. Every client gets an
// endless (or capped) stream of 20-byte big-endian records over TCP, and
// optionally over WebSocket.
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

	"github.com/google/uuid"

	"tickfeed/backtest"
	"tickfeed/internal/app"
	"tickfeed/internal/infra"
	"tickfeed/internal/mockfeed"
)

func main() {
	if err := run(); err != nil {
		slog.Error("❌ Feed server failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfgPath := flag.String("config", "", "path to config.yaml (default: configs/config.yaml)")
	addr := flag.String("addr", "", "TCP listen address")
	wsAddr := flag.String("ws-addr", "", "WebSocket listen address (empty = disabled)")
	records := flag.Int("records", -1, "records per connection, 0 = unbounded (default from config)")
	rate := flag.Float64("rate", -1, "records per second per connection, 0 = unpaced (default from config)")
	replay := flag.String("replay", "", "serve a recorded run ID instead of synthetic ticks")
	flag.Parse()

	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(*cfgPath, false); err != nil {
		return fmt.Errorf("bootstrapping failed: %w", err)
	}
	defer bootstrap.Close()

	cfg := bootstrap.Config
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *wsAddr != "" {
		cfg.Server.WSAddr = *wsAddr
	}
	if *records >= 0 {
		cfg.Server.Records = *records
	}
	if *rate >= 0 {
		cfg.Server.RatePerSec = *rate
	}
	if *replay != "" {
		cfg.Server.ReplayRun = *replay
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	newSource, err := sourceFactory(ctx, bootstrap)
	if err != nil {
		return err
	}

	infra.PrintBanner(os.Stdout, cfg, "server")

	srv := mockfeed.NewServer(cfg.Server, newSource)

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.Addr, err)
	}

	errCh := make(chan error, 2)
	go func() { errCh <- srv.ServeTCP(ctx, ln) }()

	var httpSrv *http.Server
	if cfg.Server.WSAddr != "" {
		mux := http.NewServeMux()
		mux.Handle(cfg.Server.WSPath, srv.WSHandler(ctx))
		httpSrv = &http.Server{Addr: cfg.Server.WSAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			slog.Info("Mock feed WebSocket listening",
				slog.String("addr", cfg.Server.WSAddr), slog.String("path", cfg.Server.WSPath))
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("ws server: %w", err)
			}
		}()
	}

	slog.InfoContext(ctx, "✨ Mock feed operational. Press Ctrl+C to exit.")

	select {
	case <-ctx.Done():
	case err = <-errCh:
		stop()
	}

	slog.Info("👋 Shutting down gracefully...")
	if httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}
	srv.Wait()
	return err
}

func sourceFactory(ctx context.Context, b *app.Bootstrap) (mockfeed.SourceFactory, error) {
	runRef := b.Config.Server.ReplayRun
	if runRef == "" {
		return func() (mockfeed.Source, error) { return mockfeed.NewGenerator(), nil }, nil
	}

	runID, err := uuid.Parse(runRef)
	if err != nil {
		return nil, fmt.Errorf("invalid replay run %q: %w", runRef, err)
	}
	if err := b.OpenStore(); err != nil {
		return nil, err
	}
	rp, err := backtest.NewReplayer(ctx, b.TickStore, runID)
	if err != nil {
		return nil, err
	}
	return func() (mockfeed.Source, error) { return rp.Cursor(), nil }, nil
}
