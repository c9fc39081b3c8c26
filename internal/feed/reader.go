package feed

import "io"

// ReadExactly fills buf completely from r.
//
// A source that ends before the first byte returns io.EOF, which marks a clean
// end of stream between records. Any other error before the first byte is
// returned unchanged. Once at least one byte has arrived, any failure to
// complete buf is reported as a *TruncatedError wrapping the cause; a source
// that ends mid-record gives io.ErrUnexpectedEOF, so a truncation never
// matches io.EOF.
func ReadExactly(r io.Reader, buf []byte) error {
	n, err := io.ReadFull(r, buf)
	if err == nil {
		return nil
	}
	if n == 0 {
		return err
	}
	return &TruncatedError{Read: n, Err: err}
}

// NextRecord reads one record from r and decodes it.
func NextRecord(r io.Reader) (MarketRecord, error) {
	var buf [RecordSize]byte
	if err := ReadExactly(r, buf[:]); err != nil {
		return MarketRecord{}, err
	}
	return decode(buf[:]), nil
}

// Reader decodes consecutive records from one byte source.
// It keeps a single scratch buffer and carries no bytes between records.
// A Reader must not be shared between goroutines.
type Reader struct {
	src io.Reader
	buf [RecordSize]byte
	n   uint64
}

// NewReader returns a Reader consuming src.
func NewReader(src io.Reader) *Reader {
	return &Reader{src: src}
}

// Next returns the next record from the source.
func (r *Reader) Next() (MarketRecord, error) {
	if err := ReadExactly(r.src, r.buf[:]); err != nil {
		return MarketRecord{}, err
	}
	r.n++
	return decode(r.buf[:]), nil
}

// NextInto decodes the next record into dst. dst is untouched on error.
func (r *Reader) NextInto(dst *MarketRecord) error {
	if err := ReadExactly(r.src, r.buf[:]); err != nil {
		return err
	}
	r.n++
	*dst = decode(r.buf[:])
	return nil
}

// Count returns the number of records decoded so far.
func (r *Reader) Count() uint64 { return r.n }
