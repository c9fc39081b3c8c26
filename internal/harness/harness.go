// Package harness runs the feed client loop: read records as fast as the source
// delivers them, time the loop and report what it cost.
package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"time"

	"tickfeed/internal/domain"
	"tickfeed/internal/feed"
)

// Sink receives every decoded record (e.g. storage.Recorder).
type Sink interface {
	Add(ctx context.Context, rec feed.MarketRecord) error
}

// Options controls a run.
type Options struct {
	// Records to read; 0 reads until the source ends cleanly.
	Records uint64
	// Sink is optional.
	Sink Sink
	// SkipSummary turns off per-record statistics, leaving a bare decode loop.
	SkipSummary bool
	// Pooled decodes each record into a slot taken from the feed record pool
	// instead of a single reused slot, so the two strategies can be compared
	// through Result.Mem.
	Pooled bool
}

// MemDelta is the change in runtime memory counters across the loop.
type MemDelta struct {
	Mallocs    uint64
	TotalAlloc uint64
	NumGC      uint32
	HeapAlloc  int64 // may be negative after a GC
}

// Result describes a run, complete or not.
type Result struct {
	Records uint64
	Elapsed time.Duration
	Mem     MemDelta
	Summary domain.FeedSummary
}

// PerRecord returns the mean time per record.
func (r Result) PerRecord() time.Duration {
	if r.Records == 0 {
		return 0
	}
	return r.Elapsed / time.Duration(r.Records)
}

// Rate returns records per second.
func (r Result) Rate() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Records) / r.Elapsed.Seconds()
}

// ErrShortStream is returned when the source ends cleanly before opts.Records records.
var ErrShortStream = errors.New("harness: stream ended before the requested record count")

// Run reads records from src until opts.Records have been decoded, the source
// ends, or ctx is done. ctx is checked between records only; to abort a read
// that is blocked on the source, close the source.
//
// Errors are not retried. The returned Result covers the records read before the
// error, and a record cut short by the error is never counted.
func Run(ctx context.Context, src io.Reader, opts Options) (Result, error) {
	var (
		res    Result
		before runtime.MemStats
		after  runtime.MemStats
	)
	r := feed.NewReader(src)

	runtime.ReadMemStats(&before)
	start := time.Now()

	err := loop(ctx, r, opts, &res)

	res.Elapsed = time.Since(start)
	runtime.ReadMemStats(&after)
	res.Mem = MemDelta{
		Mallocs:    after.Mallocs - before.Mallocs,
		TotalAlloc: after.TotalAlloc - before.TotalAlloc,
		NumGC:      after.NumGC - before.NumGC,
		HeapAlloc:  int64(after.HeapAlloc) - int64(before.HeapAlloc),
	}
	return res, err
}

func loop(ctx context.Context, r *feed.Reader, opts Options, res *Result) error {
	var scratch feed.MarketRecord
	for opts.Records == 0 || res.Records < opts.Records {
		if err := ctx.Err(); err != nil {
			return err
		}

		rec := &scratch
		if opts.Pooled {
			rec = feed.AcquireRecord()
		}
		done, err := step(ctx, r, rec, opts, res)
		if opts.Pooled {
			feed.ReleaseRecord(rec)
		}
		if err != nil || done {
			return err
		}
	}
	return nil
}

// step decodes one record into rec and hands it on. done reports a clean end of stream.
func step(ctx context.Context, r *feed.Reader, rec *feed.MarketRecord, opts Options, res *Result) (done bool, err error) {
	if err := r.NextInto(rec); err != nil {
		if errors.Is(err, io.EOF) {
			if opts.Records == 0 {
				return true, nil
			}
			return true, fmt.Errorf("%w: got %d of %d", ErrShortStream, res.Records, opts.Records)
		}
		return false, fmt.Errorf("record %d: %w", res.Records+1, err)
	}

	res.Records++
	if !opts.SkipSummary {
		res.Summary.Observe(*rec)
	}
	if opts.Sink != nil {
		if err := opts.Sink.Add(ctx, *rec); err != nil {
			return false, fmt.Errorf("sink: %w", err)
		}
	}
	return false, nil
}
