package pik

import (
	"errors"
	"testing"

	"github.com/gwengle/pik/bits"
)

// TestExtensionSkipUnknownFields simulates a newer writer: a tile header
// stream carrying 10 extension payload bits this decoder does not
// recognize. The decoder must skip exactly the declared bits and leave
// the cursor at the first bit after the header.
func TestExtensionSkipUnknownFields(t *testing.T) {
	buf := make([]byte, 8)
	w := bits.NewWriter(buf)
	w.WriteBits(0, 1) // not all-default
	w.WriteBits(0, 1) // no projective transform
	// extensions = 1: selector 1, then 4 bits storing value-1.
	w.WriteBits(1, 2)
	w.WriteBits(0, 4)
	// extension_bits = 10.
	w.WriteBits(1, 2)
	w.WriteBits(9, 4)
	w.WriteBits(0x2AB, 10) // unknown payload
	w.WriteBits(0xA5, 8)   // data following the header
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	r := bits.NewReader(buf)
	var h TileHeader
	if err := ReadTileHeader(r, &h); err != nil {
		t.Fatalf("ReadTileHeader() error = %v", err)
	}
	if h.Extensions != 1 {
		t.Errorf("Extensions = %d, want 1", h.Extensions)
	}
	if h.HaveProjectiveTransform {
		t.Error("HaveProjectiveTransform should be false")
	}
	if r.BitsRead() != 24 {
		t.Errorf("BitsRead() = %d, want 24", r.BitsRead())
	}
	next, err := r.ReadBits(8)
	if err != nil {
		t.Fatalf("ReadBits after header error = %v", err)
	}
	if next != 0xA5 {
		t.Errorf("byte after header = %#x, want 0xa5", next)
	}
}

func TestExtensionTruncatedPayload(t *testing.T) {
	buf := make([]byte, 3)
	w := bits.NewWriter(buf)
	w.WriteBits(0, 1)
	w.WriteBits(0, 1)
	w.WriteBits(1, 2) // extensions = 1
	w.WriteBits(0, 4)
	w.WriteBits(2, 2) // extension_bits = 100, far past the buffer
	w.WriteBits(100-17, 8)
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	var h TileHeader
	err := ReadTileHeader(bits.NewReader(buf), &h)
	if !errors.Is(err, ErrTruncatedStream) {
		t.Errorf("ReadTileHeader() error = %v, want ErrTruncatedStream", err)
	}
}

// TestEmptyExtensionRegionRoundTrip covers the nonzero-extensions,
// zero-payload case: the count survives and the declared bit length is
// zero.
func TestEmptyExtensionRegionRoundTrip(t *testing.T) {
	h := NewTileHeader()
	h.Extensions = 1

	extensionBits, totalBits, err := CanEncodeTileHeader(h)
	if err != nil {
		t.Fatalf("CanEncodeTileHeader() error = %v", err)
	}
	if extensionBits != 0 {
		t.Errorf("extensionBits = %d, want 0", extensionBits)
	}

	buf := make([]byte, (totalBits+7)/8)
	w := bits.NewWriter(buf)
	if err := WriteTileHeader(h, extensionBits, w); err != nil {
		t.Fatalf("WriteTileHeader() error = %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	var got TileHeader
	if err := ReadTileHeader(bits.NewReader(buf), &got); err != nil {
		t.Fatalf("ReadTileHeader() error = %v", err)
	}
	if got.Extensions != 1 {
		t.Errorf("Extensions = %d, want 1", got.Extensions)
	}
}

func TestDecodeInvalidEnum(t *testing.T) {
	buf := make([]byte, 4)
	w := bits.NewWriter(buf)
	w.WriteBits(0, 2) // size = 0
	w.WriteBits(0, 1) // has_alpha
	w.WriteBits(1, 1) // is_last
	w.WriteBits(1, 1) // frame all-default
	w.WriteBits(3, 2) // encoding selector: stored alternative
	w.WriteBits(5, 4) // decodes to 8, past the last defined encoding
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	var h PassHeader
	err := ReadPassHeader(bits.NewReader(buf), PassContext{}, &h)
	if !errors.Is(err, ErrInvalidEnumValue) {
		t.Errorf("ReadPassHeader() error = %v, want ErrInvalidEnumValue", err)
	}
}

func TestEncodeInvalidEnum(t *testing.T) {
	h := NewPassHeader()
	h.Encoding = ImageEncoding(99)
	if _, _, err := CanEncodePassHeader(h, PassContext{}); !errors.Is(err, ErrUnrepresentableValue) {
		t.Errorf("CanEncodePassHeader() error = %v, want ErrUnrepresentableValue", err)
	}
}

func TestGroupCountMismatch(t *testing.T) {
	h := NewPassHeader()
	// Default encoding carries a group table of contents; the caller
	// promises 4 groups but supplies none.
	if _, _, err := CanEncodePassHeader(h, PassContext{NumGroups: 4}); !errors.Is(err, ErrFieldCountMismatch) {
		t.Errorf("CanEncodePassHeader() error = %v, want ErrFieldCountMismatch", err)
	}
}

func TestUnrepresentableValueRejected(t *testing.T) {
	h := NewPassHeader()
	h.ResamplingFactor2 = 5 // only 2, 3, 4 and 8 exist
	h.GroupSizes = []uint32{0}
	if _, _, err := CanEncodePassHeader(h, PassContext{NumGroups: 1}); !errors.Is(err, ErrUnrepresentableValue) {
		t.Errorf("CanEncodePassHeader() error = %v, want ErrUnrepresentableValue", err)
	}
}
