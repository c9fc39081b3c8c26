package feed

import (
	"bytes"
	"testing"
)

var sinkRecord MarketRecord

// BenchmarkDecode measures decoding into a fresh value per call.
func BenchmarkDecode(b *testing.B) {
	raw := Encode(MarketRecord{Timestamp: 1, Price: 100.5, Volume: 100})
	buf := raw[:]
	b.ReportAllocs()
	b.SetBytes(RecordSize)
	for i := 0; i < b.N; i++ {
		sinkRecord, _ = Decode(buf)
	}
}

// BenchmarkDecodeInto measures decoding into a reused slot.
func BenchmarkDecodeInto(b *testing.B) {
	raw := Encode(MarketRecord{Timestamp: 1, Price: 100.5, Volume: 100})
	buf := raw[:]
	b.ReportAllocs()
	b.SetBytes(RecordSize)
	for i := 0; i < b.N; i++ {
		_ = DecodeInto(buf, &sinkRecord)
	}
}

// BenchmarkWithoutPool allocates a heap record per tick.
func BenchmarkWithoutPool(b *testing.B) {
	raw := Encode(MarketRecord{Timestamp: 1, Price: 100.5, Volume: 100})
	buf := raw[:]
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		rec := new(MarketRecord)
		_ = DecodeInto(buf, rec)
		sinkRecord = *rec
	}
}

// BenchmarkWithPool recycles heap records through the pool.
func BenchmarkWithPool(b *testing.B) {
	raw := Encode(MarketRecord{Timestamp: 1, Price: 100.5, Volume: 100})
	buf := raw[:]
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		rec := AcquireRecord()
		_ = DecodeInto(buf, rec)
		sinkRecord = *rec
		ReleaseRecord(rec)
	}
}

func BenchmarkReaderNext(b *testing.B) {
	data := stream(b.N)
	r := NewReader(bytes.NewReader(data))
	b.ReportAllocs()
	b.SetBytes(RecordSize)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rec, err := r.Next()
		if err != nil {
			b.Fatal(err)
		}
		sinkRecord = rec
	}
}
