// Package pik implements the header layer of the pik image container: a
// family of nested, versionable binary headers (file, pass, group, tile)
// driven by a single field-list description per header type. The same
// description walks an encoding, a decoding, a size-computing, a
// defaulting and an all-default-checking visitor, so the wire layout has
// exactly one source of truth.
package pik

import (
	"fmt"

	"github.com/gwengle/pik/bits"
)

// BytesEncoding selects the payload encoding of a byte-blob field.
type BytesEncoding uint32

// BytesRaw stores the blob verbatim after a variable-length byte count.
const BytesRaw BytesEncoding = 0

// maxBlobBytes bounds decoded byte-blob allocations from hostile streams.
const maxBlobBytes = 1 << 30

// fieldList is implemented by every header type (or by a wrapper binding
// a header to its decode-time context). visitFields declares the wire
// fields in their on-stream order; guard fields always precede the
// fields they guard.
type fieldList interface {
	visitFields(v visitor) error
}

// visitor is the operation set a field list is written against. Most
// operations record a sticky error instead of returning one, so the field
// lists stay declarative; Err surfaces the first failure.
type visitor interface {
	// AllDefault handles the one-bit all-default fast path. A true return
	// short-circuits the rest of the field list.
	AllDefault(f fieldList, allDefault *bool) bool
	Bool(def bool, v *bool)
	U32(d Dist, def uint32, v *uint32)
	// Enum behaves like U32 but rejects decoded values outside
	// [0, numValues).
	Enum(d Dist, def uint32, numValues uint32, v *uint32)
	U64(def uint64, v *uint64)
	Bytes(kind BytesEncoding, v *[]byte)
	// Conditional reports whether the guarded fields that follow are on
	// the wire. The condition is computed from fields visited earlier in
	// the same list, so both directions agree.
	Conditional(cond bool) bool
	Nested(f fieldList) error
	BeginExtensions(extensions *uint64)
	EndExtensions() error
	// SetSizeWhenReading pre-sizes an externally counted vector field on
	// decode and validates its length on encode.
	SetSizeWhenReading(n int, v *[]uint32)
	Err() error
}

// visitEnum adapts a named uint32 enum type to the visitor's Enum.
func visitEnum[E ~uint32](v visitor, d Dist, def E, numValues uint32, val *E) {
	u := uint32(*val)
	v.Enum(d, uint32(def), numValues, &u)
	*val = E(u)
}

// initDefaults sets every field of f to its declared default.
func initDefaults(f fieldList) {
	// The init visitor never fails.
	_ = f.visitFields(initVisitor{})
}

// isAllDefault reports whether every field of f equals its default.
func isAllDefault(f fieldList) bool {
	v := &allDefaultVisitor{ok: true}
	_ = f.visitFields(v)
	return v.ok
}

// canEncode is the size/validity oracle shared by all header types.
func canEncode(f fieldList) (extensionBits, totalBits uint64, err error) {
	v := &canEncodeVisitor{}
	if err := f.visitFields(v); err != nil {
		return 0, 0, err
	}
	if v.err != nil {
		return 0, 0, v.err
	}
	return v.extensionBits, v.total, nil
}

// write serializes f. extensionBits must come from a preceding canEncode
// of the same value.
func write(f fieldList, extensionBits uint64, w *bits.Writer) error {
	v := &writeVisitor{w: w, extensionBits: extensionBits}
	if err := f.visitFields(v); err != nil {
		return err
	}
	return v.Err()
}

// read populates f from the cursor. Fields guarded by a false condition
// are not on the wire and come out at their defaults.
func read(f fieldList, r *bits.Reader) error {
	initDefaults(f)
	v := &readVisitor{r: r}
	if err := f.visitFields(v); err != nil {
		return err
	}
	return v.Err()
}

// initVisitor sets fields to their defaults.
type initVisitor struct{}

func (initVisitor) AllDefault(f fieldList, allDefault *bool) bool {
	*allDefault = true
	return false // keep walking so every field is defaulted
}
func (initVisitor) Bool(def bool, v *bool)                        { *v = def }
func (initVisitor) U32(d Dist, def uint32, v *uint32)             { *v = def }
func (initVisitor) Enum(d Dist, def, numValues uint32, v *uint32) { *v = def }
func (initVisitor) U64(def uint64, v *uint64)                     { *v = def }
func (initVisitor) Bytes(kind BytesEncoding, v *[]byte)           { *v = nil }
func (initVisitor) Conditional(cond bool) bool                    { return true }

func (iv initVisitor) Nested(f fieldList) error { return f.visitFields(iv) }

func (initVisitor) BeginExtensions(extensions *uint64)    { *extensions = 0 }
func (initVisitor) EndExtensions() error                  { return nil }
func (initVisitor) SetSizeWhenReading(n int, v *[]uint32) { *v = nil }
func (initVisitor) Err() error                            { return nil }

// allDefaultVisitor checks fields against their defaults.
type allDefaultVisitor struct{ ok bool }

func (ad *allDefaultVisitor) AllDefault(f fieldList, allDefault *bool) bool {
	return false // compare the actual fields, not the derived flag
}
func (ad *allDefaultVisitor) Bool(def bool, v *bool) { ad.ok = ad.ok && *v == def }
func (ad *allDefaultVisitor) U32(d Dist, def uint32, v *uint32) {
	ad.ok = ad.ok && *v == def
}
func (ad *allDefaultVisitor) Enum(d Dist, def, numValues uint32, v *uint32) {
	ad.ok = ad.ok && *v == def
}
func (ad *allDefaultVisitor) U64(def uint64, v *uint64) { ad.ok = ad.ok && *v == def }
func (ad *allDefaultVisitor) Bytes(kind BytesEncoding, v *[]byte) {
	ad.ok = ad.ok && len(*v) == 0
}
func (ad *allDefaultVisitor) Conditional(cond bool) bool { return cond }
func (ad *allDefaultVisitor) Nested(f fieldList) error   { return f.visitFields(ad) }
func (ad *allDefaultVisitor) BeginExtensions(extensions *uint64) {
	ad.ok = ad.ok && *extensions == 0
}
func (ad *allDefaultVisitor) EndExtensions() error                  { return nil }
func (ad *allDefaultVisitor) SetSizeWhenReading(n int, v *[]uint32) {}
func (ad *allDefaultVisitor) Err() error                            { return nil }

// canEncodeVisitor counts bits without writing and rejects values no
// distribution alternative can represent.
type canEncodeVisitor struct {
	total         uint64
	extensionBits uint64
	extStart      uint64
	inExt         bool
	err           error
}

func (c *canEncodeVisitor) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

func (c *canEncodeVisitor) AllDefault(f fieldList, allDefault *bool) bool {
	*allDefault = isAllDefault(f)
	c.total++
	return *allDefault
}

func (c *canEncodeVisitor) Bool(def bool, v *bool) { c.total++ }

func (c *canEncodeVisitor) U32(d Dist, def uint32, v *uint32) {
	n, ok := d.bitCost(*v)
	if !ok {
		c.fail(fmt.Errorf("%w: %d", ErrUnrepresentableValue, *v))
		return
	}
	c.total += n
}

func (c *canEncodeVisitor) Enum(d Dist, def, numValues uint32, v *uint32) {
	if *v >= numValues {
		c.fail(fmt.Errorf("%w: enum value %d out of %d", ErrUnrepresentableValue, *v, numValues))
		return
	}
	c.U32(d, def, v)
}

func (c *canEncodeVisitor) U64(def uint64, v *uint64) { c.total += u64Bits(*v) }

func (c *canEncodeVisitor) Bytes(kind BytesEncoding, v *[]byte) {
	n := uint64(len(*v))
	c.total += u64Bits(n) + 8*n
}

func (c *canEncodeVisitor) Conditional(cond bool) bool { return cond }

func (c *canEncodeVisitor) Nested(f fieldList) error {
	if c.err != nil {
		return c.err
	}
	if err := f.visitFields(c); err != nil {
		c.fail(err)
	}
	return c.err
}

func (c *canEncodeVisitor) BeginExtensions(extensions *uint64) {
	c.total += u64Bits(*extensions)
	if *extensions != 0 {
		c.inExt = true
		c.extStart = c.total
	}
}

func (c *canEncodeVisitor) EndExtensions() error {
	if c.inExt {
		payload := c.total - c.extStart
		c.extensionBits += payload
		c.total += u64Bits(payload)
		c.inExt = false
	}
	return c.err
}

func (c *canEncodeVisitor) SetSizeWhenReading(n int, v *[]uint32) {
	if len(*v) != n {
		c.fail(fmt.Errorf("%w: have %d entries, caller expects %d", ErrFieldCountMismatch, len(*v), n))
	}
}

func (c *canEncodeVisitor) Err() error { return c.err }

// writeVisitor serializes fields into a bit writer.
type writeVisitor struct {
	w             *bits.Writer
	extensionBits uint64
	extStart      uint64
	inExt         bool
	err           error
}

func (wv *writeVisitor) fail(err error) {
	if wv.err == nil {
		wv.err = err
	}
}

func (wv *writeVisitor) AllDefault(f fieldList, allDefault *bool) bool {
	*allDefault = isAllDefault(f)
	b := uint64(0)
	if *allDefault {
		b = 1
	}
	wv.w.WriteBits(b, 1)
	return *allDefault
}

func (wv *writeVisitor) Bool(def bool, v *bool) {
	b := uint64(0)
	if *v {
		b = 1
	}
	wv.w.WriteBits(b, 1)
}

func (wv *writeVisitor) U32(d Dist, def uint32, v *uint32) {
	if err := d.write(*v, wv.w); err != nil {
		wv.fail(err)
	}
}

func (wv *writeVisitor) Enum(d Dist, def, numValues uint32, v *uint32) {
	if *v >= numValues {
		wv.fail(fmt.Errorf("%w: enum value %d out of %d", ErrUnrepresentableValue, *v, numValues))
		return
	}
	wv.U32(d, def, v)
}

func (wv *writeVisitor) U64(def uint64, v *uint64) { writeU64(*v, wv.w) }

func (wv *writeVisitor) Bytes(kind BytesEncoding, v *[]byte) {
	writeU64(uint64(len(*v)), wv.w)
	for _, b := range *v {
		wv.w.WriteBits(uint64(b), 8)
	}
}

func (wv *writeVisitor) Conditional(cond bool) bool { return cond }

func (wv *writeVisitor) Nested(f fieldList) error {
	if wv.err != nil {
		return wv.err
	}
	if err := f.visitFields(wv); err != nil {
		wv.fail(err)
	}
	return wv.Err()
}

func (wv *writeVisitor) BeginExtensions(extensions *uint64) {
	writeU64(*extensions, wv.w)
	if *extensions != 0 {
		writeU64(wv.extensionBits, wv.w)
		wv.inExt = true
		wv.extStart = wv.w.BitsWritten()
	}
}

func (wv *writeVisitor) EndExtensions() error {
	if wv.inExt {
		wv.inExt = false
		written := wv.w.BitsWritten() - wv.extStart
		if written != wv.extensionBits {
			wv.fail(fmt.Errorf("%w: declared %d bits, wrote %d", ErrExtensionMismatch, wv.extensionBits, written))
		}
	}
	return wv.Err()
}

func (wv *writeVisitor) SetSizeWhenReading(n int, v *[]uint32) {
	if len(*v) != n {
		wv.fail(fmt.Errorf("%w: have %d entries, caller expects %d", ErrFieldCountMismatch, len(*v), n))
	}
}

func (wv *writeVisitor) Err() error {
	if wv.err != nil {
		return wv.err
	}
	return wv.w.Err()
}

// readVisitor populates fields from a bit reader.
type readVisitor struct {
	r        *bits.Reader
	extBits  uint64
	extStart uint64
	inExt    bool
	err      error
}

func (rv *readVisitor) fail(err error) {
	if rv.err == nil {
		rv.err = err
	}
}

func (rv *readVisitor) readBits(n uint) uint64 {
	if rv.err != nil {
		return 0
	}
	v, err := rv.r.ReadBits(n)
	if err != nil {
		rv.fail(ErrTruncatedStream)
		return 0
	}
	return v
}

func (rv *readVisitor) AllDefault(f fieldList, allDefault *bool) bool {
	b := rv.readBits(1)
	if rv.err != nil {
		return true // abort the walk; Err carries the failure
	}
	*allDefault = b == 1
	if *allDefault {
		initDefaults(f)
	}
	return *allDefault
}

func (rv *readVisitor) Bool(def bool, v *bool) { *v = rv.readBits(1) == 1 }

func (rv *readVisitor) U32(d Dist, def uint32, v *uint32) {
	if rv.err != nil {
		return
	}
	u, err := d.read(rv.r)
	if err != nil {
		rv.fail(ErrTruncatedStream)
		return
	}
	*v = u
}

func (rv *readVisitor) Enum(d Dist, def, numValues uint32, v *uint32) {
	rv.U32(d, def, v)
	if rv.err == nil && *v >= numValues {
		rv.fail(fmt.Errorf("%w: %d out of %d", ErrInvalidEnumValue, *v, numValues))
	}
}

func (rv *readVisitor) U64(def uint64, v *uint64) {
	if rv.err != nil {
		return
	}
	u, err := readU64(rv.r)
	if err != nil {
		rv.fail(ErrTruncatedStream)
		return
	}
	*v = u
}

func (rv *readVisitor) Bytes(kind BytesEncoding, v *[]byte) {
	if rv.err != nil {
		return
	}
	n, err := readU64(rv.r)
	if err != nil {
		rv.fail(ErrTruncatedStream)
		return
	}
	if n > maxBlobBytes {
		rv.fail(fmt.Errorf("%w: %d-byte blob", ErrTruncatedStream, n))
		return
	}
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(rv.readBits(8))
	}
	if rv.err != nil {
		return
	}
	if n == 0 {
		*v = nil
		return
	}
	*v = buf
}

func (rv *readVisitor) Conditional(cond bool) bool { return cond }

func (rv *readVisitor) Nested(f fieldList) error {
	if rv.err != nil {
		return rv.err
	}
	if err := f.visitFields(rv); err != nil {
		rv.fail(err)
	}
	return rv.err
}

func (rv *readVisitor) BeginExtensions(extensions *uint64) {
	rv.U64(0, extensions)
	if rv.err == nil && *extensions != 0 {
		rv.U64(0, &rv.extBits)
		rv.inExt = true
		rv.extStart = rv.r.BitsRead()
	}
}

// EndExtensions skips whatever extension payload this reader does not
// recognize: exactly the declared count, never fewer, never more.
func (rv *readVisitor) EndExtensions() error {
	if rv.inExt {
		rv.inExt = false
		if rv.err != nil {
			return rv.err
		}
		consumed := rv.r.BitsRead() - rv.extStart
		if consumed > rv.extBits {
			rv.fail(fmt.Errorf("%w: declared %d bits, consumed %d", ErrExtensionMismatch, rv.extBits, consumed))
			return rv.err
		}
		if err := rv.r.SkipBits(rv.extBits - consumed); err != nil {
			rv.fail(ErrTruncatedStream)
		}
	}
	return rv.err
}

func (rv *readVisitor) SetSizeWhenReading(n int, v *[]uint32) {
	if n < 0 {
		rv.fail(fmt.Errorf("%w: negative count %d", ErrFieldCountMismatch, n))
		return
	}
	*v = make([]uint32, n)
}

func (rv *readVisitor) Err() error { return rv.err }
