package quant

import (
	"fmt"
	"math"
	"time"
)

// PriceMicros represents price multiplied by 1,000,000 (10^6).
// E.g., 1.23 USD = 1,230,000 PriceMicros.
type PriceMicros int64

// TimeStamp is a feed timestamp in Unix nanoseconds.
type TimeStamp int64

const PriceScale = 1000000

// ToPriceMicros converts a wire price to PriceMicros.
// ok is false for NaN, Inf and values outside the int64 range.
func ToPriceMicros(f float64) (p PriceMicros, ok bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	scaled := math.Round(f * PriceScale)
	// float64(math.MaxInt64) rounds up to 2^63, which is already out of range.
	if scaled >= float64(math.MaxInt64) || scaled < float64(math.MinInt64) {
		return 0, false
	}
	return PriceMicros(scaled), true
}

// Float returns the price as float64 (display only).
func (p PriceMicros) Float() float64 {
	return float64(p) / PriceScale
}

func (p PriceMicros) String() string {
	return fmt.Sprintf("%.6f", float64(p)/PriceScale)
}

// Time converts the timestamp to time.Time in UTC.
func (ts TimeStamp) Time() time.Time {
	return time.Unix(0, int64(ts)).UTC()
}

func (ts TimeStamp) String() string {
	return ts.Time().Format(time.RFC3339Nano)
}
