package feed

import (
	"bytes"
	"errors"
	"testing"
)

// FuzzDecode checks decode is total over 20-byte inputs and rejects every other length.
func FuzzDecode(f *testing.F) {
	f.Add(make([]byte, RecordSize))
	f.Add(bytes.Repeat([]byte{0xFF}, RecordSize))
	f.Add([]byte{0, 0, 0, 0, 0, 0, 0, 1, 0x3F, 0xF0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x2A})
	f.Add([]byte{1, 2, 3})

	f.Fuzz(func(t *testing.T, b []byte) {
		rec, err := Decode(b)
		if len(b) != RecordSize {
			if !errors.Is(err, ErrInvalidLength) {
				t.Fatalf("len %d: err = %v; want ErrInvalidLength", len(b), err)
			}
			return
		}
		if err != nil {
			t.Fatalf("Decode failed on 20 bytes: %v", err)
		}
		back := Encode(rec)
		if !bytes.Equal(back[:], b) {
			t.Fatalf("re-encoded % X; want % X", back, b)
		}
	})
}

// FuzzNextRecord checks short inputs never produce a record.
func FuzzNextRecord(f *testing.F) {
	f.Add([]byte{})
	f.Add(make([]byte, 13))
	f.Add(make([]byte, RecordSize))

	f.Fuzz(func(t *testing.T, b []byte) {
		_, err := NextRecord(bytes.NewReader(b))
		switch {
		case len(b) == 0:
			if err == nil || errors.Is(err, ErrStreamTruncated) {
				t.Fatalf("empty input err = %v; want io.EOF", err)
			}
		case len(b) < RecordSize:
			if !errors.Is(err, ErrStreamTruncated) {
				t.Fatalf("len %d: err = %v; want ErrStreamTruncated", len(b), err)
			}
		default:
			if err != nil {
				t.Fatalf("len %d: unexpected err %v", len(b), err)
			}
		}
	})
}
