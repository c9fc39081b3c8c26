package storage

import (
	"context"

	"github.com/google/uuid"

	"tickfeed/internal/feed"
)

// Recorder buffers ticks for one run and writes them in batches.
// Not safe for concurrent use.
type Recorder struct {
	store   *TickStore
	runID   uuid.UUID
	buf     []feed.MarketRecord
	nextSeq uint64
}

// NewRecorder returns a Recorder writing batchSize ticks per transaction.
func (s *TickStore) NewRecorder(runID uuid.UUID, batchSize int) *Recorder {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Recorder{
		store:   s,
		runID:   runID,
		buf:     make([]feed.MarketRecord, 0, batchSize),
		nextSeq: 1,
	}
}

// Add buffers rec and flushes once the batch is full.
func (r *Recorder) Add(ctx context.Context, rec feed.MarketRecord) error {
	r.buf = append(r.buf, rec)
	if len(r.buf) < cap(r.buf) {
		return nil
	}
	return r.Flush(ctx)
}

// Flush writes any buffered ticks.
func (r *Recorder) Flush(ctx context.Context) error {
	if len(r.buf) == 0 {
		return nil
	}
	if err := r.store.SaveTicks(ctx, r.runID, r.nextSeq, r.buf); err != nil {
		return err
	}
	r.nextSeq += uint64(len(r.buf))
	r.buf = r.buf[:0]
	return nil
}

// Written returns the number of ticks already committed.
func (r *Recorder) Written() uint64 { return r.nextSeq - 1 }

// RunID returns the run this recorder writes to.
func (r *Recorder) RunID() uuid.UUID { return r.runID }
