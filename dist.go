package pik

import (
	"fmt"

	"github.com/gwengle/pik/bits"
)

// DistAlt is one alternative representation of a compressed uint32 field:
// either a direct value costing no stored bits, or a fixed number of
// stored bits plus an additive offset.
type DistAlt struct {
	direct bool
	value  uint32
	bits   uint
	offset uint32
}

// Val returns an alternative that represents exactly v with zero stored
// bits (only the 2-bit selector appears on the wire).
func Val(v uint32) DistAlt { return DistAlt{direct: true, value: v} }

// Bits returns an alternative storing values [0, 2^n) in n bits.
func Bits(n uint) DistAlt { return DistAlt{bits: n} }

// BitsOff returns an alternative storing values [off, off+2^n) in n bits.
func BitsOff(n uint, off uint32) DistAlt { return DistAlt{bits: n, offset: off} }

// Dist is a distribution table for one uint32 field: either exactly four
// alternatives preceded by a 2-bit selector, or a raw fixed-width value
// with no selector. Tables are compile-time values shared by the encode,
// decode and size-computation paths; they are never themselves
// serialized.
type Dist struct {
	rawBits uint
	alts    [4]DistAlt
}

// NewDist builds a four-alternative table. The encoder picks the
// representable alternative with the fewest total bits; ties go to the
// lowest selector.
func NewDist(a0, a1, a2, a3 DistAlt) Dist {
	return Dist{alts: [4]DistAlt{a0, a1, a2, a3}}
}

// Raw builds a table that stores the value in exactly n bits, 1 <= n <= 32,
// with no selector.
func Raw(n uint) Dist { return Dist{rawBits: n} }

func (a DistAlt) represents(v uint32) bool {
	if a.direct {
		return v == a.value
	}
	if v < a.offset {
		return false
	}
	return uint64(v-a.offset) < 1<<a.bits
}

// bitCost returns the encoded size of v in bits and whether any
// alternative can represent it.
func (d Dist) bitCost(v uint32) (uint64, bool) {
	if d.rawBits != 0 {
		if d.rawBits < 32 && uint64(v) >= 1<<d.rawBits {
			return 0, false
		}
		return uint64(d.rawBits), true
	}
	best := uint64(0)
	found := false
	for _, a := range d.alts {
		if !a.represents(v) {
			continue
		}
		cost := 2 + uint64(a.bits)
		if a.direct {
			cost = 2
		}
		if !found || cost < best {
			best = cost
			found = true
		}
	}
	return best, found
}

// write encodes v. Fails with ErrUnrepresentableValue when no alternative
// fits; the size oracle catches this earlier on well-behaved callers.
func (d Dist) write(v uint32, w *bits.Writer) error {
	if d.rawBits != 0 {
		if d.rawBits < 32 && uint64(v) >= 1<<d.rawBits {
			return fmt.Errorf("%w: %d in %d raw bits", ErrUnrepresentableValue, v, d.rawBits)
		}
		w.WriteBits(uint64(v), d.rawBits)
		return w.Err()
	}
	selector := -1
	best := uint64(0)
	for i, a := range d.alts {
		if !a.represents(v) {
			continue
		}
		cost := 2 + uint64(a.bits)
		if a.direct {
			cost = 2
		}
		if selector < 0 || cost < best {
			selector = i
			best = cost
		}
	}
	if selector < 0 {
		return fmt.Errorf("%w: %d", ErrUnrepresentableValue, v)
	}
	w.WriteBits(uint64(selector), 2)
	if a := d.alts[selector]; !a.direct {
		w.WriteBits(uint64(v-a.offset), a.bits)
	}
	return w.Err()
}

// read decodes one value.
func (d Dist) read(r *bits.Reader) (uint32, error) {
	if d.rawBits != 0 {
		v, err := r.ReadBits(d.rawBits)
		return uint32(v), err
	}
	selector, err := r.ReadBits(2)
	if err != nil {
		return 0, err
	}
	a := d.alts[selector]
	if a.direct {
		return a.value, nil
	}
	v, err := r.ReadBits(a.bits)
	if err != nil {
		return 0, err
	}
	return a.offset + uint32(v), nil
}

// Distribution tables for every serialized field. The bit widths follow
// the reference format's value ranges: image dimensions favor the
// sub-8K-pixel range, group sizes the sub-2MB range, and the enum table
// makes the first three values cost two bits.
var (
	distSignature     = Raw(32)
	distCornerCoord   = Raw(8)
	distTimecode      = Raw(32)
	distImageDim      = NewDist(Bits(9), Bits(11), Bits(13), Bits(32))
	distGroupSize     = NewDist(Bits(12), Bits(14), Bits(15), Bits(21))
	distFlags         = NewDist(Bits(8), Bits(16), Bits(24), Bits(32))
	distDirect3Plus4  = NewDist(Val(0), Val(1), Val(2), BitsOff(4, 3))
	distDirect2348    = NewDist(Val(2), Val(3), Val(4), Val(8))
	distDuration      = NewDist(Val(0), Val(1), Bits(8), Bits(32))
	distNumLoops      = NewDist(Val(0), Bits(3), Bits(16), Bits(32))
	distTicks         = NewDist(Val(1), Bits(9), Bits(20), Bits(32))
	distPreviewSize   = NewDist(Bits(12), Bits(16), Bits(20), Bits(28))
	distPreviewDim    = NewDist(Bits(7), Bits(9), Bits(11), Bits(13))
	distBytesPerAlpha = distDirect3Plus4
	distTargetNits    = NewDist(Val(5), Bits(6), Bits(8), Bits(16))
	distGamma         = NewDist(Val(45455), Bits(17), Bits(19), Bits(24))
	distRestoration   = NewDist(Val(1), Val(2), Bits(4), Bits(8))
	distEdgeThreshold = NewDist(Val(0), Bits(4), Bits(8), Bits(16))
)

// u64Bits returns the encoded size of the variable-length uint64 coding.
func u64Bits(v uint64) uint64 {
	switch {
	case v == 0:
		return 2
	case v <= 16:
		return 2 + 4
	case v <= 272:
		return 2 + 8
	}
	n := uint64(2 + 12)
	v >>= 12
	shift := uint(12)
	for {
		if v == 0 {
			n++ // terminator
			break
		}
		n++ // continuation
		if shift == 60 {
			n += 4
			break
		}
		n += 8
		v >>= 8
		shift += 8
	}
	return n
}

// writeU64 encodes v: a 2-bit selector picks 0, a 4-bit value in [1,16],
// an 8-bit value in [17,272], or a 12-bit group followed by 8-bit groups
// each preceded by a continuation bit (a final 4-bit group at shift 60
// covers the full 64-bit range).
func writeU64(v uint64, w *bits.Writer) {
	switch {
	case v == 0:
		w.WriteBits(0, 2)
	case v <= 16:
		w.WriteBits(1, 2)
		w.WriteBits(v-1, 4)
	case v <= 272:
		w.WriteBits(2, 2)
		w.WriteBits(v-17, 8)
	default:
		w.WriteBits(3, 2)
		w.WriteBits(v&0xFFF, 12)
		v >>= 12
		shift := uint(12)
		for {
			if v == 0 {
				w.WriteBits(0, 1)
				break
			}
			w.WriteBits(1, 1)
			if shift == 60 {
				w.WriteBits(v&0xF, 4)
				break
			}
			w.WriteBits(v&0xFF, 8)
			v >>= 8
			shift += 8
		}
	}
}

// readU64 decodes one variable-length uint64.
func readU64(r *bits.Reader) (uint64, error) {
	selector, err := r.ReadBits(2)
	if err != nil {
		return 0, err
	}
	switch selector {
	case 0:
		return 0, nil
	case 1:
		v, err := r.ReadBits(4)
		return v + 1, err
	case 2:
		v, err := r.ReadBits(8)
		return v + 17, err
	}
	v, err := r.ReadBits(12)
	if err != nil {
		return 0, err
	}
	shift := uint(12)
	for {
		more, err := r.ReadBits(1)
		if err != nil {
			return 0, err
		}
		if more == 0 {
			return v, nil
		}
		if shift == 60 {
			hi, err := r.ReadBits(4)
			if err != nil {
				return 0, err
			}
			return v | hi<<60, nil
		}
		g, err := r.ReadBits(8)
		if err != nil {
			return 0, err
		}
		v |= g << shift
		shift += 8
	}
}
