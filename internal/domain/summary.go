package domain

import (
	"math"

	"github.com/shopspring/decimal"

	"tickfeed/internal/feed"
	"tickfeed/pkg/quant"
)

// FeedSummary aggregates the ticks of one feed run.
// Prices that are NaN or Inf (or too large for PriceMicros) are counted in
// NonFinite and left out of the price statistics; the decoder never rejects them.
// The zero value is ready to use. Not safe for concurrent use.
type FeedSummary struct {
	Count     uint64            `json:"count"`
	NonFinite uint64            `json:"non_finite"`
	FirstTs   quant.TimeStamp   `json:"first_ts"`
	LastTs    quant.TimeStamp   `json:"last_ts"`
	MinPrice  quant.PriceMicros `json:"min_price,string"`
	MaxPrice  quant.PriceMicros `json:"max_price,string"`

	volume       accumulator // all ticks
	pricedVolume accumulator // ticks with a usable price
	notional     accumulator // PriceMicros * volume
}

// Observe folds one record into the summary.
func (s *FeedSummary) Observe(rec feed.MarketRecord) {
	ts := quant.TimeStamp(rec.Timestamp)
	if s.Count == 0 {
		s.FirstTs = ts
	}
	s.LastTs = ts
	s.Count++
	s.volume.add(int64(rec.Volume))

	p, ok := quant.ToPriceMicros(rec.Price)
	if !ok {
		s.NonFinite++
		return
	}
	if s.Count-s.NonFinite == 1 {
		s.MinPrice, s.MaxPrice = p, p
	} else {
		s.MinPrice = min(s.MinPrice, p)
		s.MaxPrice = max(s.MaxPrice, p)
	}
	s.pricedVolume.add(int64(rec.Volume))
	s.notional.addProduct(int64(p), int64(rec.Volume))
}

// Priced returns the number of ticks that contributed to price statistics.
func (s *FeedSummary) Priced() uint64 { return s.Count - s.NonFinite }

// TotalVolume returns the sum of all tick volumes.
func (s *FeedSummary) TotalVolume() decimal.Decimal { return s.volume.value() }

// Notional returns sum(price * volume) over priced ticks, in price units.
func (s *FeedSummary) Notional() decimal.Decimal {
	return s.notional.value().Shift(-6)
}

// VWAP returns the volume-weighted average price, or zero when the priced volume is zero.
func (s *FeedSummary) VWAP() decimal.Decimal {
	vol := s.pricedVolume.value()
	if vol.IsZero() {
		return decimal.Zero
	}
	return s.notional.value().Div(vol).Shift(-6).Round(6)
}

// accumulator sums int64 terms exactly. The int64 part absorbs the hot path;
// it spills into a decimal only when the next term would overflow.
type accumulator struct {
	part  int64
	spill decimal.Decimal
}

func (a *accumulator) add(v int64) {
	if (v > 0 && a.part > math.MaxInt64-v) || (v < 0 && a.part < math.MinInt64-v) {
		a.spill = a.spill.Add(decimal.NewFromInt(a.part))
		a.part = 0
	}
	a.part += v
}

func (a *accumulator) addProduct(x, y int64) {
	if x == 0 || y == 0 {
		return
	}
	if prod, ok := mulInt64(x, y); ok {
		a.add(prod)
		return
	}
	a.spill = a.spill.Add(decimal.NewFromInt(x).Mul(decimal.NewFromInt(y)))
}

func (a *accumulator) value() decimal.Decimal {
	return a.spill.Add(decimal.NewFromInt(a.part))
}

func mulInt64(x, y int64) (int64, bool) {
	if x == math.MinInt64 || y == math.MinInt64 {
		return 0, false
	}
	p := x * y
	if p/y != x {
		return 0, false
	}
	return p, true
}
