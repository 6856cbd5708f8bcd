// Package bits provides sequential bit-level access to byte buffers.
//
// Both cursors are LSB-first: the first bit written or read is the least
// significant bit of the first byte. Neither cursor allocates; the Writer
// operates on caller-owned storage sized in advance, the Reader on the
// caller's input slice.
package bits

import (
	"errors"
	"io"
)

// ErrOverflow is returned when a Writer runs out of storage.
var ErrOverflow = errors.New("bits: write past end of storage")

// maxBitsPerCall bounds a single ReadBits/WriteBits call. Wider fields are
// split by the caller.
const maxBitsPerCall = 56

// Writer writes bits into a caller-owned byte slice.
//
// Errors are sticky: after the first failed write, all subsequent writes
// are no-ops and Err reports the failure.
type Writer struct {
	storage []byte
	acc     uint64
	n       uint   // valid bits in acc
	pos     int    // next byte in storage
	written uint64 // total bits accepted
	err     error
}

// NewWriter returns a Writer over storage. The caller sizes storage from
// a preceding CanEncode-style dry run.
func NewWriter(storage []byte) *Writer {
	return &Writer{storage: storage}
}

// WriteBits appends the low n bits of v, n <= 56.
func (w *Writer) WriteBits(v uint64, n uint) {
	if w.err != nil {
		return
	}
	if n == 0 {
		return
	}
	w.acc |= (v & (1<<n - 1)) << w.n
	w.n += n
	w.written += uint64(n)
	for w.n >= 8 {
		if w.pos >= len(w.storage) {
			w.err = ErrOverflow
			return
		}
		w.storage[w.pos] = byte(w.acc)
		w.acc >>= 8
		w.n -= 8
		w.pos++
	}
}

// BitsWritten returns the number of bits accepted so far.
func (w *Writer) BitsWritten() uint64 { return w.written }

// Err returns the first write failure, if any.
func (w *Writer) Err() error { return w.err }

// Flush writes any buffered partial byte, zero-padding the unused high
// bits, and returns the first error encountered.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	if w.n > 0 {
		if w.pos >= len(w.storage) {
			w.err = ErrOverflow
			return w.err
		}
		w.storage[w.pos] = byte(w.acc)
		w.acc = 0
		w.n = 0
		w.pos++
	}
	return nil
}

// Reader reads bits from a byte slice.
type Reader struct {
	data []byte
	acc  uint64
	n    uint
	pos  int
	read uint64
}

// NewReader returns a Reader over data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// ReadBits returns the next n bits, n <= 56. Exhausting the input yields
// io.ErrUnexpectedEOF.
func (r *Reader) ReadBits(n uint) (uint64, error) {
	if n == 0 {
		return 0, nil
	}
	for r.n < n {
		if r.pos >= len(r.data) {
			return 0, io.ErrUnexpectedEOF
		}
		r.acc |= uint64(r.data[r.pos]) << r.n
		r.n += 8
		r.pos++
	}
	v := r.acc & (1<<n - 1)
	r.acc >>= n
	r.n -= n
	r.read += uint64(n)
	return v, nil
}

// SkipBits discards exactly n bits.
func (r *Reader) SkipBits(n uint64) error {
	for n > 0 {
		step := uint(maxBitsPerCall)
		if n < uint64(step) {
			step = uint(n)
		}
		if _, err := r.ReadBits(step); err != nil {
			return err
		}
		n -= uint64(step)
	}
	return nil
}

// BitsRead returns the number of bits consumed so far.
func (r *Reader) BitsRead() uint64 { return r.read }
