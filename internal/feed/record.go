package feed

import (
	"encoding/binary"
	"math"
)

// RecordSize is the fixed on-wire size of one MarketRecord: 8 + 8 + 4 bytes.
const RecordSize = 20

// Field offsets inside a wire record.
const (
	offTimestamp = 0
	offPrice     = 8
	offVolume    = 16
)

// MarketRecord is one tick of market data as carried on the wire.
// Timestamp is opaque to the decoder; the mock server fills it with Unix nanoseconds.
type MarketRecord struct {
	Timestamp int64   `json:"ts"`
	Price     float64 `json:"price"`
	Volume    int32   `json:"volume"`
}

// Decode interprets exactly RecordSize big-endian bytes as a MarketRecord.
// Every 20-byte input decodes; NaN and Inf price bit patterns are kept as-is.
func Decode(b []byte) (MarketRecord, error) {
	if len(b) != RecordSize {
		return MarketRecord{}, &LengthError{Got: len(b)}
	}
	return decode(b), nil
}

// DecodeInto is the reuse variant of Decode: it writes into dst instead of returning a value.
// dst is left untouched when the length check fails.
func DecodeInto(b []byte, dst *MarketRecord) error {
	if len(b) != RecordSize {
		return &LengthError{Got: len(b)}
	}
	*dst = decode(b)
	return nil
}

func decode(b []byte) MarketRecord {
	_ = b[RecordSize-1] // bounds check hint
	return MarketRecord{
		Timestamp: int64(binary.BigEndian.Uint64(b[offTimestamp:])),
		Price:     math.Float64frombits(binary.BigEndian.Uint64(b[offPrice:])),
		Volume:    int32(binary.BigEndian.Uint32(b[offVolume:])),
	}
}

// PutRecord writes rec into b using the wire layout. b must be exactly RecordSize long.
func PutRecord(b []byte, rec MarketRecord) error {
	if len(b) != RecordSize {
		return &LengthError{Got: len(b)}
	}
	put(b, rec)
	return nil
}

func put(b []byte, rec MarketRecord) {
	binary.BigEndian.PutUint64(b[offTimestamp:], uint64(rec.Timestamp))
	binary.BigEndian.PutUint64(b[offPrice:], math.Float64bits(rec.Price))
	binary.BigEndian.PutUint32(b[offVolume:], uint32(rec.Volume))
}

// Encode returns the wire form of rec.
func Encode(rec MarketRecord) [RecordSize]byte {
	var b [RecordSize]byte
	put(b[:], rec)
	return b
}

// AppendRecord appends the wire form of rec to dst and returns the extended slice.
func AppendRecord(dst []byte, rec MarketRecord) []byte {
	b := Encode(rec)
	return append(dst, b[:]...)
}
