package feed

import "sync"

var recordPool = sync.Pool{
	New: func() any { return new(MarketRecord) },
}

// AcquireRecord returns a zeroed record from the pool.
func AcquireRecord() *MarketRecord {
	return recordPool.Get().(*MarketRecord)
}

// ReleaseRecord resets rec and hands it back to the pool.
// The caller must not touch rec afterwards.
func ReleaseRecord(rec *MarketRecord) {
	if rec == nil {
		return
	}
	*rec = MarketRecord{}
	recordPool.Put(rec)
}

// Warmup pre-fills the pool with n records so the first reads of a run don't allocate.
func Warmup(n int) {
	recs := make([]*MarketRecord, n)
	for i := range recs {
		recs[i] = AcquireRecord()
	}
	for _, rec := range recs {
		ReleaseRecord(rec)
	}
}
