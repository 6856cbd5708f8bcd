package pik

import (
	"fmt"

	"github.com/gwengle/pik/bits"
)

// Signature begins every file. The embedded \n rejects files opened in
// text mode and the \xD7 byte detects 7-bit transfers.
const Signature uint32 = 0x0A4D4CD7

// NumProjectiveTransformParams is the corner coordinate count of a
// projective transform.
const NumProjectiveTransformParams = 8

// ProjectiveTransform holds the corner coordinates of an optional
// per-tile projective warp.
type ProjectiveTransform struct {
	CornerCoords [NumProjectiveTransformParams]uint32
}

func (p *ProjectiveTransform) visitFields(v visitor) error {
	for i := range p.CornerCoords {
		v.U32(distCornerCoord, 1, &p.CornerCoords[i])
	}
	return v.Err()
}

// TileHeader precedes each tile's payload inside a group.
type TileHeader struct {
	AllDefault bool

	HaveProjectiveTransform bool
	ProjectiveTransform     ProjectiveTransform

	Extensions uint64
}

func (h *TileHeader) visitFields(v visitor) error {
	if v.AllDefault(h, &h.AllDefault) {
		return v.Err()
	}

	v.Bool(false, &h.HaveProjectiveTransform)
	if v.Conditional(h.HaveProjectiveTransform) {
		if err := v.Nested(&h.ProjectiveTransform); err != nil {
			return err
		}
	}

	v.BeginExtensions(&h.Extensions)
	return v.EndExtensions()
}

// Alpha is the losslessly compressed alpha channel of a group.
type Alpha struct {
	// BytesPerAlpha is 1 or 2.
	BytesPerAlpha uint32

	// Encoded is the compressed alpha payload.
	Encoded []byte
}

func (a *Alpha) visitFields(v visitor) error {
	v.U32(distBytesPerAlpha, 1, &a.BytesPerAlpha)
	v.Bytes(BytesRaw, &a.Encoded)
	return v.Err()
}

// GroupContext is the decode-time configuration of a group header.
// Alpha presence is decided by the pass header, not re-serialized per
// group, so the caller supplies it alongside the cursor.
type GroupContext struct {
	HaveAlpha bool
}

// GroupHeader precedes each group's payload inside a pass. It always
// contains exactly NumTilesPerGroup tile headers.
type GroupHeader struct {
	AllDefault bool

	Alpha Alpha

	Tiles [NumTilesPerGroup]TileHeader

	Extensions uint64
}

// groupFields binds a group header to its decode-time context so the
// wire fields and the non-serialized configuration stay separate types.
type groupFields struct {
	h   *GroupHeader
	ctx GroupContext
}

func (g groupFields) visitFields(v visitor) error {
	h := g.h
	if v.AllDefault(g, &h.AllDefault) {
		return v.Err()
	}

	if v.Conditional(g.ctx.HaveAlpha) {
		if err := v.Nested(&h.Alpha); err != nil {
			return err
		}
	}

	for i := range h.Tiles {
		if err := v.Nested(&h.Tiles[i]); err != nil {
			return err
		}
	}

	v.BeginExtensions(&h.Extensions)
	return v.EndExtensions()
}

// ImageEncoding selects how a pass's pixel data is coded.
type ImageEncoding uint32

const (
	EncodingPasses ImageEncoding = iota
	EncodingProgressive
	EncodingLossless

	numImageEncodings
)

// String returns a string representation of the encoding.
func (e ImageEncoding) String() string {
	switch e {
	case EncodingPasses:
		return "passes"
	case EncodingProgressive:
		return "progressive"
	case EncodingLossless:
		return "lossless"
	default:
		return "unknown"
	}
}

// GaborishStrength selects the deblurring convolution strength in
// thousandths (Gaborish750 = 0.750).
type GaborishStrength uint32

const (
	GaborishOff GaborishStrength = iota
	Gaborish250
	Gaborish500
	Gaborish750
	Gaborish1000

	numGaborishStrengths
)

// Optional postprocessing flags of a pass. These are the source of
// truth; encoder overrides must set or clear them rather than reinterpret
// them.
const (
	// FlagGradientMap predicts smooth areas from a downsampled map.
	FlagGradientMap = 1
	// FlagGrayscaleOpt marks grayscale-optimized compression. Parsing
	// only; it does not determine the decoded color format.
	FlagGrayscaleOpt = 2
	// FlagNoise injects synthesized noise into the decoded output.
	FlagNoise = 4
)

// FrameInfo is the animation timing of the frame a last pass completes.
type FrameInfo struct {
	AllDefault bool

	// Duration is how long to display the frame, in ticks (see
	// Animation).
	Duration uint32

	HaveTimecode bool
	// Timecode is 0xHHMMSSFF.
	Timecode uint32

	IsKeyframe bool
}

func (f *FrameInfo) visitFields(v visitor) error {
	if v.AllDefault(f, &f.AllDefault) {
		return v.Err()
	}

	v.U32(distDuration, 0, &f.Duration)

	v.Bool(false, &f.HaveTimecode)
	if v.Conditional(f.HaveTimecode) {
		v.U32(distTimecode, 0, &f.Timecode)
	}

	v.Bool(false, &f.IsKeyframe)

	return v.Err()
}

// PassContext is the decode-time configuration of a pass header. The
// group count is derived from the file header's geometry to save bits,
// so the caller supplies it alongside the cursor.
type PassContext struct {
	NumGroups int
}

// PassHeader precedes each pass. An image or frame is one or more
// passes, the last of which has IsLast set. A pass starts at a
// byte-aligned address "a"; the next pass starts at "a + Size".
type PassHeader struct {
	// Size in bytes, measured from the start of this (byte-aligned)
	// pass header to the start of the next. Used purely for forward
	// seeking.
	Size uint64

	HasAlpha bool

	IsLast bool
	// Frame is serialized only when IsLast.
	Frame FrameInfo

	Encoding ImageEncoding

	// Flags, gaborish, prediction and restoration only apply to
	// EncodingPasses.
	Flags    uint32
	Gaborish GaborishStrength

	PredictLF bool
	PredictHF bool

	HaveAdaptiveReconstruction bool
	Restoration                RestorationParams

	// ResamplingFactor2 is twice the resampling factor (2 = none).
	ResamplingFactor2 uint32

	// GroupSizes is the per-group byte table of contents. Its length is
	// the caller-supplied group count, not self-described.
	GroupSizes []uint32

	// Lossless sub-flags: grayscale mode and 16-bit (vs 8-bit) mode.
	LosslessGrayscale bool
	Lossless16Bits    bool

	Extensions uint64
}

type passFields struct {
	h   *PassHeader
	ctx PassContext
}

func (p passFields) visitFields(v visitor) error {
	h := p.h

	v.U64(0, &h.Size)

	v.Bool(false, &h.HasAlpha)
	v.Bool(true, &h.IsLast)
	if v.Conditional(h.IsLast) {
		if err := v.Nested(&h.Frame); err != nil {
			return err
		}
	}

	visitEnum(v, distDirect3Plus4, EncodingPasses, uint32(numImageEncodings), &h.Encoding)

	if v.Conditional(h.Encoding == EncodingPasses) {
		v.U32(distFlags, 0, &h.Flags)
		visitEnum(v, distDirect3Plus4, Gaborish750, uint32(numGaborishStrengths), &h.Gaborish)

		v.Bool(true, &h.PredictLF)
		v.Bool(true, &h.PredictHF)
		v.Bool(false, &h.HaveAdaptiveReconstruction)
		if v.Conditional(h.HaveAdaptiveReconstruction) {
			if err := v.Nested(&h.Restoration); err != nil {
				return err
			}
		}
	}

	// No resampling or group table of contents for progressive passes.
	if v.Conditional(h.Encoding != EncodingProgressive) {
		v.U32(distDirect2348, 2, &h.ResamplingFactor2)

		v.SetSizeWhenReading(p.ctx.NumGroups, &h.GroupSizes)
		for i := range h.GroupSizes {
			v.U32(distGroupSize, 0, &h.GroupSizes[i])
		}
	}

	if v.Conditional(h.Encoding == EncodingLossless) {
		v.Bool(false, &h.LosslessGrayscale)
		v.Bool(false, &h.Lossless16Bits)
	}

	v.BeginExtensions(&h.Extensions)
	return v.EndExtensions()
}

// Preview describes an optional embedded preview image.
type Preview struct {
	AllDefault bool

	// SizeBits is the encoded preview's length in bits.
	SizeBits uint32

	XSize uint32
	YSize uint32
}

func (p *Preview) visitFields(v visitor) error {
	if v.AllDefault(p, &p.AllDefault) {
		return v.Err()
	}

	v.U32(distPreviewSize, 0, &p.SizeBits)
	v.U32(distPreviewDim, 0, &p.XSize)
	v.U32(distPreviewDim, 0, &p.YSize)

	return v.Err()
}

// Animation describes frame timing for animated files.
type Animation struct {
	AllDefault bool

	// NumLoops is the repetition count; 0 repeats forever.
	NumLoops uint32

	// Tick length as a rational number of seconds per tick. The
	// denominator must be at least 1.
	TicksNumerator   uint32
	TicksDenominator uint32
}

func (a *Animation) visitFields(v visitor) error {
	if v.AllDefault(a, &a.AllDefault) {
		return v.Err()
	}

	v.U32(distNumLoops, 0, &a.NumLoops)
	v.U32(distTicks, 0, &a.TicksNumerator)
	v.U32(distTicks, 1, &a.TicksDenominator)

	return v.Err()
}

// FileHeader is the top-level header. It is followed by an unbounded
// sequence of interleaved pass headers and payloads.
type FileHeader struct {
	Signature uint32

	// Dimensions are stored minus one: the all-zero bit pattern decodes
	// to a 1x1 image, so a zero-sized image cannot be represented.
	XSizeMinus1 uint32
	YSizeMinus1 uint32

	Metadata  Metadata
	Preview   Preview
	Animation Animation

	Extensions uint64
}

func (h *FileHeader) visitFields(v visitor) error {
	v.U32(distSignature, Signature, &h.Signature)
	if err := v.Err(); err != nil {
		return err
	}
	if h.Signature != Signature {
		return fmt.Errorf("%w: %#08x", ErrSignatureMismatch, h.Signature)
	}

	v.U32(distImageDim, 0, &h.XSizeMinus1)
	v.U32(distImageDim, 0, &h.YSizeMinus1)

	if err := v.Nested(&h.Metadata); err != nil {
		return err
	}
	if err := v.Nested(&h.Preview); err != nil {
		return err
	}
	if err := v.Nested(&h.Animation); err != nil {
		return err
	}

	v.BeginExtensions(&h.Extensions)
	return v.EndExtensions()
}

// XSize returns the image width in pixels.
func (h *FileHeader) XSize() uint32 { return h.XSizeMinus1 + 1 }

// YSize returns the image height in pixels.
func (h *FileHeader) YSize() uint32 { return h.YSizeMinus1 + 1 }

// Constructors return default-initialized instances; the zero value of a
// header type is not the all-default instance because several defaults
// are non-zero.

// NewTileHeader returns an all-default tile header.
func NewTileHeader() *TileHeader {
	h := new(TileHeader)
	initDefaults(h)
	return h
}

// NewGroupHeader returns an all-default group header.
func NewGroupHeader() *GroupHeader {
	h := new(GroupHeader)
	initDefaults(groupFields{h, GroupContext{}})
	return h
}

// NewPassHeader returns a default pass header. The group table of
// contents starts empty; callers populate it before encoding.
func NewPassHeader() *PassHeader {
	h := new(PassHeader)
	initDefaults(passFields{h, PassContext{}})
	return h
}

// NewFileHeader returns a default file header for a 1x1 image.
func NewFileHeader() *FileHeader {
	h := new(FileHeader)
	initDefaults(h)
	return h
}

// NewFileHeaderForImage returns a default file header with the given
// dimensions. Both must be at least 1.
func NewFileHeaderForImage(xsize, ysize uint32) (*FileHeader, error) {
	if xsize == 0 || ysize == 0 {
		return nil, fmt.Errorf("%w: zero image dimension", ErrUnrepresentableValue)
	}
	h := NewFileHeader()
	h.XSizeMinus1 = xsize - 1
	h.YSizeMinus1 = ysize - 1
	return h, nil
}

// CanEncode entry points. Each performs a dry run of the encode visitor,
// returning the extension payload bits and the exact total bit length,
// or failing when any field value has no valid representation. Callers
// size the destination buffer from totalBits and pass extensionBits to
// the matching Write call.

// CanEncodeTileHeader reports the encoded size of h.
func CanEncodeTileHeader(h *TileHeader) (extensionBits, totalBits uint64, err error) {
	return canEncode(h)
}

// CanEncodeGroupHeader reports the encoded size of h under ctx.
func CanEncodeGroupHeader(h *GroupHeader, ctx GroupContext) (extensionBits, totalBits uint64, err error) {
	return canEncode(groupFields{h, ctx})
}

// CanEncodePassHeader reports the encoded size of h under ctx.
func CanEncodePassHeader(h *PassHeader, ctx PassContext) (extensionBits, totalBits uint64, err error) {
	return canEncode(passFields{h, ctx})
}

// CanEncodeFileHeader reports the encoded size of h.
func CanEncodeFileHeader(h *FileHeader) (extensionBits, totalBits uint64, err error) {
	return canEncode(h)
}

// Read entry points. A failure aborts the whole header; the partially
// populated struct must not be used.

// ReadTileHeader decodes a tile header.
func ReadTileHeader(r *bits.Reader, h *TileHeader) error {
	return read(h, r)
}

// ReadGroupHeader decodes a group header. ctx.HaveAlpha must match what
// the encoder used; it is not stored in the stream.
func ReadGroupHeader(r *bits.Reader, ctx GroupContext, h *GroupHeader) error {
	return read(groupFields{h, ctx}, r)
}

// ReadPassHeader decodes a pass header. ctx.NumGroups must be derived
// from the file header's geometry beforehand.
func ReadPassHeader(r *bits.Reader, ctx PassContext, h *PassHeader) error {
	return read(passFields{h, ctx}, r)
}

// ReadFileHeader decodes the top-level header. A signature mismatch is
// reported before any other field is read.
func ReadFileHeader(r *bits.Reader, h *FileHeader) error {
	return read(h, r)
}

// Write entry points. extensionBits is from the preceding CanEncode.

// WriteTileHeader encodes h.
func WriteTileHeader(h *TileHeader, extensionBits uint64, w *bits.Writer) error {
	return write(h, extensionBits, w)
}

// WriteGroupHeader encodes h under ctx.
func WriteGroupHeader(h *GroupHeader, ctx GroupContext, extensionBits uint64, w *bits.Writer) error {
	return write(groupFields{h, ctx}, extensionBits, w)
}

// WritePassHeader encodes h under ctx.
func WritePassHeader(h *PassHeader, ctx PassContext, extensionBits uint64, w *bits.Writer) error {
	return write(passFields{h, ctx}, extensionBits, w)
}

// WriteFileHeader encodes h.
func WriteFileHeader(h *FileHeader, extensionBits uint64, w *bits.Writer) error {
	return write(h, extensionBits, w)
}
