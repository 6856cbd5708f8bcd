package pik

// ColorSpace is the channel interpretation of the decoded image.
type ColorSpace uint32

const (
	ColorSpaceRGB ColorSpace = iota
	ColorSpaceGray

	numColorSpaces
)

// WhitePoint identifies the reference white of the color encoding.
type WhitePoint uint32

const (
	WhitePointD65 WhitePoint = iota
	WhitePointE
	WhitePointCustom

	numWhitePoints
)

// Primaries identifies the RGB primary chromaticities.
type Primaries uint32

const (
	PrimariesSRGB Primaries = iota
	Primaries2020
	PrimariesP3
	PrimariesCustom

	numPrimaries
)

// TransferFunction identifies the opto-electronic transfer curve.
type TransferFunction uint32

const (
	TransferSRGB TransferFunction = iota
	TransferLinear
	TransferPQ
	TransferGamma

	numTransferFunctions
)

// RenderingIntent uses the ICC rendering intent numbering.
type RenderingIntent uint32

const (
	IntentPerceptual RenderingIntent = iota
	IntentRelative
	IntentSaturation
	IntentAbsolute

	numRenderingIntents
)

// ColorEncoding describes the color of the original image. When ICC is
// non-empty it is the authoritative profile and the enum fields are
// best-effort summaries; otherwise the enums fully define the encoding.
// The all-default instance is sRGB with a perceptual intent.
type ColorEncoding struct {
	AllDefault bool

	ColorSpace       ColorSpace
	WhitePoint       WhitePoint
	Primaries        Primaries
	TransferFunction TransferFunction

	// GammaTimes1e5 is the encoding exponent scaled by 1e5, serialized
	// only when TransferFunction is TransferGamma.
	GammaTimes1e5 uint32

	RenderingIntent RenderingIntent

	// ICC is the raw embedded profile, if any.
	ICC []byte
}

func (c *ColorEncoding) visitFields(v visitor) error {
	if v.AllDefault(c, &c.AllDefault) {
		return v.Err()
	}

	visitEnum(v, distDirect3Plus4, ColorSpaceRGB, uint32(numColorSpaces), &c.ColorSpace)
	visitEnum(v, distDirect3Plus4, WhitePointD65, uint32(numWhitePoints), &c.WhitePoint)
	visitEnum(v, distDirect3Plus4, PrimariesSRGB, uint32(numPrimaries), &c.Primaries)
	visitEnum(v, distDirect3Plus4, TransferSRGB, uint32(numTransferFunctions), &c.TransferFunction)

	if v.Conditional(c.TransferFunction == TransferGamma) {
		v.U32(distGamma, 45455, &c.GammaTimes1e5)
	}

	visitEnum(v, distDirect3Plus4, IntentPerceptual, uint32(numRenderingIntents), &c.RenderingIntent)
	v.Bytes(BytesRaw, &c.ICC)

	return v.Err()
}

// IsGray reports whether the encoding is single-channel.
func (c *ColorEncoding) IsGray() bool { return c.ColorSpace == ColorSpaceGray }

// SetSRGB resets the encoding to plain sRGB with the given channel
// interpretation, discarding any embedded profile.
func (c *ColorEncoding) SetSRGB(space ColorSpace) {
	initDefaults(c)
	c.ColorSpace = space
	c.AllDefault = space == ColorSpaceRGB
}

// Metadata carries everything about the original image that is not pixel
// data: intensity target, color encoding, and the opaque EXIF/IPTC/XMP
// blobs round-tripped through container adapters.
type Metadata struct {
	AllDefault bool

	// TargetNitsDiv50 is the nominal peak luminance divided by 50; the
	// default 5 encodes 250 nits.
	TargetNitsDiv50 uint32

	Color ColorEncoding

	EXIF []byte
	IPTC []byte
	XMP  []byte

	Extensions uint64
}

// NewMetadata returns metadata with every field at its default value.
func NewMetadata() *Metadata {
	m := new(Metadata)
	initDefaults(m)
	return m
}

func (m *Metadata) visitFields(v visitor) error {
	if v.AllDefault(m, &m.AllDefault) {
		return v.Err()
	}

	v.U32(distTargetNits, 5, &m.TargetNitsDiv50)

	if err := v.Nested(&m.Color); err != nil {
		return err
	}

	v.Bytes(BytesRaw, &m.EXIF)
	v.Bytes(BytesRaw, &m.IPTC)
	v.Bytes(BytesRaw, &m.XMP)

	v.BeginExtensions(&m.Extensions)
	return v.EndExtensions()
}
