// Package feed decodes fixed-width market data records from a byte stream.
//
// Wire layout (big-endian, no framing, no padding):
//
//	offset  size  field
//	0       8     timestamp  int64
//	8       8     price      float64 (IEEE-754)
//	16      4     volume     int32
//
// The decoder has no framing, checksum, heartbeat or resync logic, and it never
// retries. Production feeds need all of those; this package only handles the
// fixed 20-byte layout and reports short reads.
package feed
