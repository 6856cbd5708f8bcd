package pik

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gwengle/pik/bits"
)

// roundTripHeader drives the size oracle, the writer and the reader for
// one header value and checks that the oracle's bit count is exact.
func roundTripHeader(t *testing.T,
	canEnc func() (uint64, uint64, error),
	write func(extensionBits uint64, w *bits.Writer) error,
	read func(r *bits.Reader) error,
) uint64 {
	t.Helper()

	extensionBits, totalBits, err := canEnc()
	if err != nil {
		t.Fatalf("CanEncode error = %v", err)
	}

	buf := make([]byte, (totalBits+7)/8)
	w := bits.NewWriter(buf)
	if err := write(extensionBits, w); err != nil {
		t.Fatalf("Write error = %v", err)
	}
	if w.BitsWritten() != totalBits {
		t.Fatalf("wrote %d bits, oracle said %d", w.BitsWritten(), totalBits)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	r := bits.NewReader(buf)
	if err := read(r); err != nil {
		t.Fatalf("Read error = %v", err)
	}
	if r.BitsRead() != totalBits {
		t.Fatalf("read %d bits, oracle said %d", r.BitsRead(), totalBits)
	}
	return totalBits
}

func TestTileHeaderAllDefaultIsOneBit(t *testing.T) {
	h := NewTileHeader()
	var got TileHeader
	total := roundTripHeader(t,
		func() (uint64, uint64, error) { return CanEncodeTileHeader(h) },
		func(eb uint64, w *bits.Writer) error { return WriteTileHeader(h, eb, w) },
		func(r *bits.Reader) error { return ReadTileHeader(r, &got) },
	)
	if total != 1 {
		t.Errorf("all-default tile header = %d bits, want 1", total)
	}
	if !got.AllDefault {
		t.Error("decoded AllDefault should be true")
	}
}

func TestTileHeaderProjectiveTransform(t *testing.T) {
	h := NewTileHeader()
	h.HaveProjectiveTransform = true
	h.ProjectiveTransform.CornerCoords = [NumProjectiveTransformParams]uint32{10, 20, 30, 40, 50, 60, 70, 255}

	var got TileHeader
	roundTripHeader(t,
		func() (uint64, uint64, error) { return CanEncodeTileHeader(h) },
		func(eb uint64, w *bits.Writer) error { return WriteTileHeader(h, eb, w) },
		func(r *bits.Reader) error { return ReadTileHeader(r, &got) },
	)
	if got.AllDefault {
		t.Error("decoded AllDefault should be false")
	}
	if !got.HaveProjectiveTransform || got.ProjectiveTransform != h.ProjectiveTransform {
		t.Errorf("ProjectiveTransform = %v, want %v", got.ProjectiveTransform, h.ProjectiveTransform)
	}
}

func TestGroupHeaderRoundTrip(t *testing.T) {
	for _, haveAlpha := range []bool{false, true} {
		ctx := GroupContext{HaveAlpha: haveAlpha}

		h := NewGroupHeader()
		if haveAlpha {
			h.Alpha.BytesPerAlpha = 2
			h.Alpha.Encoded = []byte{1, 2, 3, 4}
		}
		h.Tiles[3].HaveProjectiveTransform = true
		h.Tiles[3].ProjectiveTransform.CornerCoords = [NumProjectiveTransformParams]uint32{0, 0, 64, 0, 64, 64, 0, 64}

		var got GroupHeader
		roundTripHeader(t,
			func() (uint64, uint64, error) { return CanEncodeGroupHeader(h, ctx) },
			func(eb uint64, w *bits.Writer) error { return WriteGroupHeader(h, ctx, eb, w) },
			func(r *bits.Reader) error { return ReadGroupHeader(r, ctx, &got) },
		)

		if haveAlpha {
			if got.Alpha.BytesPerAlpha != 2 || !bytes.Equal(got.Alpha.Encoded, h.Alpha.Encoded) {
				t.Errorf("haveAlpha=%v: Alpha = %+v, want %+v", haveAlpha, got.Alpha, h.Alpha)
			}
		} else if len(got.Alpha.Encoded) != 0 {
			t.Errorf("haveAlpha=false: unexpected alpha payload %v", got.Alpha.Encoded)
		}
		if got.Tiles[3].ProjectiveTransform != h.Tiles[3].ProjectiveTransform {
			t.Errorf("haveAlpha=%v: tile 3 = %+v, want %+v", haveAlpha, got.Tiles[3], h.Tiles[3])
		}
		if !got.Tiles[0].AllDefault {
			t.Error("untouched tile should decode all-default")
		}
	}
}

func TestGroupHeaderAllDefaultIsOneBit(t *testing.T) {
	h := NewGroupHeader()
	ctx := GroupContext{}
	_, total, err := CanEncodeGroupHeader(h, ctx)
	if err != nil {
		t.Fatalf("CanEncodeGroupHeader() error = %v", err)
	}
	if total != 1 {
		t.Errorf("all-default group header = %d bits, want 1", total)
	}
}

func TestPassHeaderDefaults(t *testing.T) {
	h := NewPassHeader()
	if !h.IsLast {
		t.Error("IsLast should default to true")
	}
	if h.Encoding != EncodingPasses {
		t.Errorf("Encoding = %v, want EncodingPasses", h.Encoding)
	}
	if h.Gaborish != Gaborish750 {
		t.Errorf("Gaborish = %d, want Gaborish750", h.Gaborish)
	}
	if !h.PredictLF || !h.PredictHF {
		t.Error("PredictLF and PredictHF should default to true")
	}
	if h.ResamplingFactor2 != 2 {
		t.Errorf("ResamplingFactor2 = %d, want 2", h.ResamplingFactor2)
	}
	if !h.Frame.AllDefault {
		t.Error("Frame should default to all-default")
	}
}

func TestPassHeaderRoundTrip(t *testing.T) {
	ctx := PassContext{NumGroups: 3}

	h := NewPassHeader()
	h.Size = 12345
	h.HasAlpha = true
	h.Flags = FlagGradientMap | FlagNoise
	h.Gaborish = GaborishOff
	h.PredictHF = false
	h.HaveAdaptiveReconstruction = true
	h.Restoration.Strength = 2
	h.Restoration.EdgeThreshold = 9
	h.ResamplingFactor2 = 4
	h.GroupSizes = []uint32{100, 200, 65536}
	h.Frame.Duration = 3
	h.Frame.IsKeyframe = true

	var got PassHeader
	roundTripHeader(t,
		func() (uint64, uint64, error) { return CanEncodePassHeader(h, ctx) },
		func(eb uint64, w *bits.Writer) error { return WritePassHeader(h, ctx, eb, w) },
		func(r *bits.Reader) error { return ReadPassHeader(r, ctx, &got) },
	)

	if got.Size != h.Size || got.HasAlpha != h.HasAlpha || got.Flags != h.Flags {
		t.Errorf("got %+v", got)
	}
	if got.Gaborish != GaborishOff || got.PredictHF || !got.PredictLF {
		t.Errorf("filter fields = %+v", got)
	}
	if !got.HaveAdaptiveReconstruction || got.Restoration != h.Restoration {
		t.Errorf("Restoration = %+v, want %+v", got.Restoration, h.Restoration)
	}
	if got.ResamplingFactor2 != 4 {
		t.Errorf("ResamplingFactor2 = %d, want 4", got.ResamplingFactor2)
	}
	if len(got.GroupSizes) != 3 || got.GroupSizes[2] != 65536 {
		t.Errorf("GroupSizes = %v, want %v", got.GroupSizes, h.GroupSizes)
	}
	if got.Frame.Duration != 3 || !got.Frame.IsKeyframe {
		t.Errorf("Frame = %+v, want %+v", got.Frame, h.Frame)
	}
}

func TestPassHeaderProgressiveHasNoGroupTable(t *testing.T) {
	ctx := PassContext{NumGroups: 7}

	h := NewPassHeader()
	h.Encoding = EncodingProgressive
	// GroupSizes deliberately left empty: progressive passes carry none.

	var got PassHeader
	roundTripHeader(t,
		func() (uint64, uint64, error) { return CanEncodePassHeader(h, ctx) },
		func(eb uint64, w *bits.Writer) error { return WritePassHeader(h, ctx, eb, w) },
		func(r *bits.Reader) error { return ReadPassHeader(r, ctx, &got) },
	)
	if got.Encoding != EncodingProgressive {
		t.Errorf("Encoding = %v, want progressive", got.Encoding)
	}
	if len(got.GroupSizes) != 0 {
		t.Errorf("GroupSizes = %v, want empty", got.GroupSizes)
	}
}

func TestPassHeaderLossless(t *testing.T) {
	ctx := PassContext{NumGroups: 1}

	h := NewPassHeader()
	h.Encoding = EncodingLossless
	h.LosslessGrayscale = true
	h.Lossless16Bits = true
	h.GroupSizes = []uint32{42}

	var got PassHeader
	roundTripHeader(t,
		func() (uint64, uint64, error) { return CanEncodePassHeader(h, ctx) },
		func(eb uint64, w *bits.Writer) error { return WritePassHeader(h, ctx, eb, w) },
		func(r *bits.Reader) error { return ReadPassHeader(r, ctx, &got) },
	)
	if !got.LosslessGrayscale || !got.Lossless16Bits {
		t.Errorf("lossless flags = %+v", got)
	}
	if len(got.GroupSizes) != 1 || got.GroupSizes[0] != 42 {
		t.Errorf("GroupSizes = %v, want [42]", got.GroupSizes)
	}
}

func TestPassHeaderMiddlePassFrame(t *testing.T) {
	ctx := PassContext{NumGroups: 1}

	h := NewPassHeader()
	h.IsLast = false
	h.GroupSizes = []uint32{1}
	// Frame is only serialized on the last pass; put junk in it to prove
	// it never reaches the wire.
	h.Frame.Duration = 999

	var got PassHeader
	roundTripHeader(t,
		func() (uint64, uint64, error) { return CanEncodePassHeader(h, ctx) },
		func(eb uint64, w *bits.Writer) error { return WritePassHeader(h, ctx, eb, w) },
		func(r *bits.Reader) error { return ReadPassHeader(r, ctx, &got) },
	)
	if got.IsLast {
		t.Error("IsLast should be false")
	}
	if got.Frame.Duration != 0 {
		t.Errorf("Frame.Duration = %d, want default 0", got.Frame.Duration)
	}
}

func TestFileHeaderRoundTrip(t *testing.T) {
	h, err := NewFileHeaderForImage(1920, 1080)
	if err != nil {
		t.Fatalf("NewFileHeaderForImage() error = %v", err)
	}
	h.Metadata.AllDefault = false
	h.Metadata.TargetNitsDiv50 = 80 // 4000 nits
	h.Metadata.Color.AllDefault = false
	h.Metadata.Color.TransferFunction = TransferPQ
	h.Metadata.Color.Primaries = Primaries2020
	h.Metadata.Color.ICC = []byte("not a real profile")
	h.Metadata.EXIF = bytes.Repeat([]byte{0xEE}, 128)
	h.Preview.SizeBits = 8 * 100
	h.Preview.XSize = 64
	h.Preview.YSize = 32
	h.Animation.NumLoops = 3
	h.Animation.TicksNumerator = 1
	h.Animation.TicksDenominator = 25

	var got FileHeader
	roundTripHeader(t,
		func() (uint64, uint64, error) { return CanEncodeFileHeader(h) },
		func(eb uint64, w *bits.Writer) error { return WriteFileHeader(h, eb, w) },
		func(r *bits.Reader) error { return ReadFileHeader(r, &got) },
	)

	if got.XSize() != 1920 || got.YSize() != 1080 {
		t.Errorf("size = %dx%d, want 1920x1080", got.XSize(), got.YSize())
	}
	if got.Metadata.TargetNitsDiv50 != 80 {
		t.Errorf("TargetNitsDiv50 = %d, want 80", got.Metadata.TargetNitsDiv50)
	}
	if got.Metadata.Color.TransferFunction != TransferPQ || got.Metadata.Color.Primaries != Primaries2020 {
		t.Errorf("Color = %+v", got.Metadata.Color)
	}
	if !bytes.Equal(got.Metadata.Color.ICC, h.Metadata.Color.ICC) {
		t.Error("ICC did not round-trip")
	}
	if !bytes.Equal(got.Metadata.EXIF, h.Metadata.EXIF) {
		t.Error("EXIF did not round-trip")
	}
	if got.Preview.XSize != 64 || got.Preview.YSize != 32 || got.Preview.SizeBits != 800 {
		t.Errorf("Preview = %+v", got.Preview)
	}
	if got.Animation.NumLoops != 3 || got.Animation.TicksDenominator != 25 {
		t.Errorf("Animation = %+v", got.Animation)
	}
}

func TestFileHeaderDefaultIsOnePixel(t *testing.T) {
	h := NewFileHeader()
	if h.XSize() != 1 || h.YSize() != 1 {
		t.Errorf("default size = %dx%d, want 1x1", h.XSize(), h.YSize())
	}
	if h.Signature != Signature {
		t.Errorf("Signature = %#x, want %#x", h.Signature, Signature)
	}
}

func TestNewFileHeaderForImageRejectsZero(t *testing.T) {
	if _, err := NewFileHeaderForImage(0, 5); err == nil {
		t.Error("zero width should be rejected")
	}
	if _, err := NewFileHeaderForImage(5, 0); err == nil {
		t.Error("zero height should be rejected")
	}
}

func TestFileHeaderSignatureOnWire(t *testing.T) {
	h := NewFileHeader()
	_, totalBits, err := CanEncodeFileHeader(h)
	if err != nil {
		t.Fatalf("CanEncodeFileHeader() error = %v", err)
	}
	buf := make([]byte, (totalBits+7)/8)
	w := bits.NewWriter(buf)
	if err := WriteFileHeader(h, 0, w); err != nil {
		t.Fatalf("WriteFileHeader() error = %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	want := []byte{0xD7, 0x4C, 0x4D, 0x0A}
	if !bytes.Equal(buf[:4], want) {
		t.Errorf("signature bytes = %x, want %x", buf[:4], want)
	}

	// Corrupt the signature: the reader must report the mismatch and
	// stop before touching any later field.
	buf[1] ^= 0xFF
	var got FileHeader
	r := bits.NewReader(buf)
	if err := ReadFileHeader(r, &got); !errors.Is(err, ErrSignatureMismatch) {
		t.Errorf("ReadFileHeader() error = %v, want ErrSignatureMismatch", err)
	}
	if r.BitsRead() != 32 {
		t.Errorf("BitsRead() = %d, want 32 (stopped at the signature)", r.BitsRead())
	}
}

func TestFileHeaderTruncatedIsNotSignatureMismatch(t *testing.T) {
	var got FileHeader
	err := ReadFileHeader(bits.NewReader([]byte{0xD7, 0x4C}), &got)
	if !errors.Is(err, ErrTruncatedStream) {
		t.Errorf("ReadFileHeader() error = %v, want ErrTruncatedStream", err)
	}
}

func TestMetadataGammaConditional(t *testing.T) {
	m := NewMetadata()
	m.AllDefault = false
	m.Color.AllDefault = false
	m.Color.TransferFunction = TransferGamma
	m.Color.GammaTimes1e5 = 22000

	buf, err := encodeHeader(m)
	if err != nil {
		t.Fatalf("encode error = %v", err)
	}
	var got Metadata
	if err := read(&got, bits.NewReader(buf)); err != nil {
		t.Fatalf("read error = %v", err)
	}
	if got.Color.GammaTimes1e5 != 22000 {
		t.Errorf("GammaTimes1e5 = %d, want 22000", got.Color.GammaTimes1e5)
	}

	// With a non-gamma transfer the exponent never reaches the wire and
	// decodes at its default.
	m.Color.TransferFunction = TransferLinear
	m.Color.GammaTimes1e5 = 31337
	buf, err = encodeHeader(m)
	if err != nil {
		t.Fatalf("encode error = %v", err)
	}
	var got2 Metadata
	if err := read(&got2, bits.NewReader(buf)); err != nil {
		t.Fatalf("read error = %v", err)
	}
	if got2.Color.GammaTimes1e5 != 45455 {
		t.Errorf("GammaTimes1e5 = %d, want default 45455", got2.Color.GammaTimes1e5)
	}
}

func TestNumGroups(t *testing.T) {
	cases := []struct {
		x, y uint32
		want int
	}{
		{1, 1, 1},
		{512, 512, 1},
		{513, 512, 2},
		{512, 513, 2},
		{1024, 1025, 6},
		{4096, 4096, 64},
	}
	for _, tc := range cases {
		if got := NumGroups(tc.x, tc.y); got != tc.want {
			t.Errorf("NumGroups(%d, %d) = %d, want %d", tc.x, tc.y, got, tc.want)
		}
	}
}
