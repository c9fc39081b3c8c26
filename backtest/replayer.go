package backtest

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"tickfeed/internal/feed"
	"tickfeed/internal/storage"
)

// Replayer serves a recorded run back in wire form, so a stored session can be
// fed to the decoder exactly as it was received.
type Replayer struct {
	runID uuid.UUID
	recs  []feed.MarketRecord
}

// NewReplayer loads every tick of runID from store.
func NewReplayer(ctx context.Context, store *storage.TickStore, runID uuid.UUID) (*Replayer, error) {
	if _, err := store.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	recs, err := store.LoadTicks(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load ticks: %w", err)
	}
	slog.Info("Replay loaded", slog.String("run", runID.String()), slog.Int("ticks", len(recs)))
	return &Replayer{runID: runID, recs: recs}, nil
}

// Len returns the number of recorded ticks.
func (r *Replayer) Len() int { return len(r.recs) }

// Cursor returns an independent iterator over the recording.
// It satisfies mockfeed.Source, so every client connection gets the full replay.
func (r *Replayer) Cursor() *Cursor {
	return &Cursor{recs: r.recs}
}

// WriteTo writes the whole recording to w in wire format.
func (r *Replayer) WriteTo(w io.Writer) (int64, error) {
	var written int64
	buf := make([]byte, 0, 256*feed.RecordSize)
	for i, rec := range r.recs {
		buf = feed.AppendRecord(buf, rec)
		if len(buf) == cap(buf) || i == len(r.recs)-1 {
			n, err := w.Write(buf)
			written += int64(n)
			if err != nil {
				return written, err
			}
			buf = buf[:0]
		}
	}
	return written, nil
}

// Cursor walks a recording once.
type Cursor struct {
	recs []feed.MarketRecord
	pos  int
}

// Next returns the next recorded tick.
func (c *Cursor) Next() (feed.MarketRecord, bool) {
	if c.pos >= len(c.recs) {
		return feed.MarketRecord{}, false
	}
	rec := c.recs[c.pos]
	c.pos++
	return rec, true
}
