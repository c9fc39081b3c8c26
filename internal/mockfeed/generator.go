package mockfeed

import (
	"math"
	"time"

	"tickfeed/internal/feed"
)

// Source yields the records a connection streams. ok=false ends the stream.
type Source interface {
	Next() (rec feed.MarketRecord, ok bool)
}

// Generator produces synthetic ticks: nanosecond wall-clock timestamps, a
// price that oscillates between 100 and 110 with a 10 second period, and a
// constant volume of 100. It never runs out.
type Generator struct {
	now    func() time.Time
	Volume int32
}

// NewGenerator returns a Generator on the wall clock.
func NewGenerator() *Generator {
	return &Generator{now: time.Now, Volume: 100}
}

// NewGeneratorWithClock returns a Generator reading time from now (tests, replays).
func NewGeneratorWithClock(now func() time.Time) *Generator {
	return &Generator{now: now, Volume: 100}
}

// Next implements Source.
func (g *Generator) Next() (feed.MarketRecord, bool) {
	t := g.now()
	ns := t.UnixNano()
	secs := float64(ns) / float64(time.Second)
	return feed.MarketRecord{
		Timestamp: ns,
		Price:     100 + math.Mod(secs, 10),
		Volume:    g.Volume,
	}, true
}
