// Command feedclient connects to a market feed, decodes a fixed number of
// 20-byte records as fast as they arrive and reports how long it took.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "net/http/pprof" // For pprof profiling

	"tickfeed/internal/app"
	"tickfeed/internal/feed"
	"tickfeed/internal/harness"
	"tickfeed/internal/infra"
	"tickfeed/internal/storage"
)

func main() {
	if err := run(); err != nil {
		slog.Error("❌ Feed client failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfgPath := flag.String("config", "", "path to config.yaml (default: configs/config.yaml)")
	records := flag.Int("records", -1, "records to read, 0 = until the stream ends (default from config)")
	addr := flag.String("addr", "", "feed address: host:port for tcp, ws:// URL for ws")
	transport := flag.String("transport", "", "tcp or ws")
	record := flag.Bool("record", false, "store decoded ticks in SQLite")
	pooled := flag.Bool("pooled", false, "decode into records taken from the pool")
	flag.Parse()

	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(*cfgPath, true); err != nil {
		return fmt.Errorf("bootstrapping failed: %w", err)
	}
	defer bootstrap.Close()

	cfg := bootstrap.Config
	if *records >= 0 {
		cfg.Feed.Records = *records
	}
	if *addr != "" {
		cfg.Feed.Addr = *addr
	}
	if *transport != "" {
		cfg.Feed.Transport = *transport
	}
	if *pooled {
		cfg.Feed.Pooled = true
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if cfg.Feed.Pooled {
		// pre-fill so the first decodes of the run don't allocate
		feed.Warmup(256)
	}
	if *record {
		if err := bootstrap.OpenStore(); err != nil {
			return err
		}
	}

	infra.PrintBanner(os.Stdout, cfg, "client")

	if cfg.Profiling.PprofAddr != "" {
		go func() {
			slog.Info("🕵️ Pprof server started", slog.String("addr", cfg.Profiling.PprofAddr))
			if err := http.ListenAndServe(cfg.Profiling.PprofAddr, nil); err != nil {
				slog.Error("Pprof server failed", slog.Any("error", err))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := infra.DialFeed(ctx, cfg.Feed)
	if err != nil {
		return err
	}
	defer src.Close()
	// a read blocked on the socket only returns once the socket is closed
	abort := context.AfterFunc(ctx, func() { src.Close() })
	defer abort()

	slog.Info("✅ Connected", slog.String("addr", cfg.Feed.Addr), slog.String("transport", cfg.Feed.Transport))

	opts := harness.Options{Records: uint64(cfg.Feed.Records), Pooled: cfg.Feed.Pooled}
	var recorder *storage.Recorder
	if store := bootstrap.TickStore; store != nil {
		runID, err := store.BeginRun(ctx, cfg.Feed.Transport+"://"+cfg.Feed.Addr)
		if err != nil {
			return err
		}
		recorder = store.NewRecorder(runID, cfg.Storage.BatchSize)
		opts.Sink = recorder
		slog.Info("Recording run", slog.String("run", runID.String()))
	}

	res, runErr := harness.Run(ctx, src, opts)
	if ctx.Err() != nil && runErr != nil {
		// closing the source on shutdown surfaces as a read error
		runErr = errors.Join(ctx.Err(), runErr)
	}

	if recorder != nil {
		if err := finishRecording(recorder, bootstrap.TickStore, res, runErr); err != nil {
			slog.Error("Failed to finish recording", slog.Any("error", err))
		}
	}

	report(res, cfg.Feed.Pooled)
	fmt.Printf("Elapsed: %d us\n", res.Elapsed.Microseconds())

	return runErr
}

func finishRecording(rec *storage.Recorder, store *storage.TickStore, res harness.Result, runErr error) error {
	// the run context may already be canceled; the tail still has to land
	ctx := context.Background()
	if err := rec.Flush(ctx); err != nil {
		return err
	}
	return store.FinishRun(ctx, rec.RunID(), storage.RunStats{
		Records:     res.Records,
		Elapsed:     res.Elapsed,
		VWAP:        res.Summary.VWAP(),
		TotalVolume: res.Summary.TotalVolume(),
		Err:         runErr,
	})
}

func report(res harness.Result, pooled bool) {
	s := res.Summary
	slog.Info("📊 Feed run finished",
		slog.Uint64("records", res.Records),
		slog.Bool("pooled", pooled),
		slog.Duration("elapsed", res.Elapsed),
		slog.Duration("per_record", res.PerRecord()),
		slog.Float64("rate", res.Rate()),
		slog.Uint64("mallocs", res.Mem.Mallocs),
		slog.Uint64("total_alloc", res.Mem.TotalAlloc),
		slog.Int64("heap_delta", res.Mem.HeapAlloc),
		slog.Any("gc_runs", res.Mem.NumGC),
	)
	if s.Count == 0 {
		return
	}
	slog.Info("📈 Price summary",
		slog.String("first_ts", s.FirstTs.String()),
		slog.String("last_ts", s.LastTs.String()),
		slog.String("min", s.MinPrice.String()),
		slog.String("max", s.MaxPrice.String()),
		slog.String("vwap", s.VWAP().String()),
		slog.String("volume", s.TotalVolume().String()),
		slog.Uint64("non_finite", s.NonFinite),
	)
}
