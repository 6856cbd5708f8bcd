package pngbridge

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"

	"github.com/klauspost/compress/zlib"

	"github.com/gwengle/pik"
)

// pqProfileName is the iCCP profile name that marks a BT.2100 PQ image
// (https://w3c.github.io/png-hdr-pq/). The profile is synthesized from
// its known parameters instead of trusting table-based curves.
const pqProfileName = "ITUR_2100_PQ_FULL"

// Chromaticities scaled by 1e5, the PNG cHRM encoding.
type chromaticity struct{ x, y uint32 }

type primarySet struct {
	white   chromaticity
	r, g, b chromaticity
}

var (
	srgbPrimaries = primarySet{
		white: chromaticity{31270, 32900},
		r:     chromaticity{64000, 33000},
		g:     chromaticity{30000, 60000},
		b:     chromaticity{15000, 6000},
	}
	bt2020Primaries = primarySet{
		white: chromaticity{31270, 32900},
		r:     chromaticity{70800, 29200},
		g:     chromaticity{17000, 79700},
		b:     chromaticity{13100, 4600},
	}
	p3Primaries = primarySet{
		white: chromaticity{31270, 32900},
		r:     chromaticity{68000, 32000},
		g:     chromaticity{26500, 69000},
		b:     chromaticity{15000, 6000},
	}
)

// chrmTolerance absorbs rounding in chunk producers.
const chrmTolerance = 100

func near(a, b uint32) bool {
	d := int64(a) - int64(b)
	return -chrmTolerance <= d && d <= chrmTolerance
}

func (p primarySet) matches(q primarySet) bool {
	return near(p.white.x, q.white.x) && near(p.white.y, q.white.y) &&
		near(p.r.x, q.r.x) && near(p.r.y, q.r.y) &&
		near(p.g.x, q.g.x) && near(p.g.y, q.g.y) &&
		near(p.b.x, q.b.x) && near(p.b.y, q.b.y)
}

// colorState accumulates color-relevant chunks before resolution.
type colorState struct {
	icc      []byte
	havePQ   bool
	haveSRGB bool
	intent   pik.RenderingIntent
	haveGAMA bool
	gamma    uint32 // times 1e5
	haveCHRM bool
	chrm     primarySet
}

func (cs *colorState) decodeICCP(payload []byte) error {
	// Latin-1 profile name, 1..79 bytes, null terminated.
	if len(payload) == 0 || payload[0] == 0 {
		return fmt.Errorf("%w: empty iCCP name", ErrBadColorChunk)
	}
	nameEnd := bytes.IndexByte(payload, 0)
	if nameEnd < 0 || nameEnd > 79 {
		return fmt.Errorf("%w: bad iCCP name", ErrBadColorChunk)
	}
	name := string(payload[:nameEnd])
	rest := payload[nameEnd+1:]

	if name == pqProfileName {
		cs.havePQ = true
	}

	if len(rest) == 0 {
		return fmt.Errorf("%w: missing iCCP method", ErrBadColorChunk)
	}
	if rest[0] != 0 {
		return fmt.Errorf("%w: iCCP method %d", ErrBadColorChunk, rest[0])
	}

	zr, err := zlib.NewReader(bytes.NewReader(rest[1:]))
	if err != nil {
		slog.Warn("pngbridge: iCCP payload not zlib", "err", err)
		return nil
	}
	defer zr.Close()
	icc, err := io.ReadAll(io.LimitReader(zr, 1<<26))
	if err != nil {
		slog.Warn("pngbridge: iCCP decompress failed", "err", err)
		return nil
	}
	cs.icc = icc
	return nil
}

func (cs *colorState) decodeSRGB(payload []byte) error {
	if len(payload) != 1 {
		return fmt.Errorf("%w: sRGB length %d", ErrBadColorChunk, len(payload))
	}
	if payload[0] > 3 {
		return fmt.Errorf("%w: sRGB intent %d", ErrBadColorChunk, payload[0])
	}
	// PNG uses the ICC rendering intent numbering.
	cs.intent = pik.RenderingIntent(payload[0])
	cs.haveSRGB = true
	return nil
}

func (cs *colorState) decodeGAMA(payload []byte) error {
	if len(payload) != 4 {
		return fmt.Errorf("%w: gAMA length %d", ErrBadColorChunk, len(payload))
	}
	cs.gamma = binary.BigEndian.Uint32(payload)
	cs.haveGAMA = true
	return nil
}

func (cs *colorState) decodeCHRM(payload []byte) error {
	if len(payload) != 32 {
		return fmt.Errorf("%w: cHRM length %d", ErrBadColorChunk, len(payload))
	}
	u := func(off int) uint32 { return binary.BigEndian.Uint32(payload[off:]) }
	cs.chrm = primarySet{
		white: chromaticity{u(0), u(4)},
		r:     chromaticity{u(8), u(12)},
		g:     chromaticity{u(16), u(20)},
		b:     chromaticity{u(24), u(28)},
	}
	cs.haveCHRM = true
	return nil
}

// resolve produces the best-effort color encoding from the collected
// chunks: PQ synthesis first, then embedded ICC, then sRGB (which PNG
// requires to override gAMA/cHRM), then a custom encoding from
// gAMA/cHRM, and finally plain assumed sRGB.
func (cs *colorState) resolve(isGray bool) pik.ColorEncoding {
	var c pik.ColorEncoding
	space := pik.ColorSpaceRGB
	if isGray {
		space = pik.ColorSpaceGray
	}

	if cs.havePQ {
		c.SetSRGB(space)
		c.Primaries = pik.Primaries2020
		c.TransferFunction = pik.TransferPQ
		c.RenderingIntent = pik.IntentRelative
		c.AllDefault = false
		return c
	}

	if len(cs.icc) != 0 {
		if cs.haveSRGB {
			slog.Warn("pngbridge: both sRGB and iCCP present, ignoring sRGB")
		}
		c.SetSRGB(space)
		c.WhitePoint = pik.WhitePointCustom
		c.Primaries = pik.PrimariesCustom
		c.ICC = cs.icc
		c.AllDefault = false
		return c // gAMA/cHRM are fine to ignore next to a profile
	}

	if cs.haveSRGB {
		c.SetSRGB(space)
		c.RenderingIntent = cs.intent
		c.AllDefault = c.AllDefault && cs.intent == pik.IntentPerceptual
		return c
	}

	c.SetSRGB(space)
	if cs.haveCHRM {
		switch {
		case cs.chrm.matches(srgbPrimaries):
			c.Primaries = pik.PrimariesSRGB
		case cs.chrm.matches(bt2020Primaries):
			c.Primaries = pik.Primaries2020
		case cs.chrm.matches(p3Primaries):
			c.Primaries = pik.PrimariesP3
		default:
			c.Primaries = pik.PrimariesCustom
			slog.Warn("pngbridge: cHRM does not match a known primary set")
		}
	}
	if cs.haveGAMA && cs.gamma > 0 && cs.gamma <= 100000 {
		switch cs.gamma {
		case 45455:
			c.TransferFunction = pik.TransferSRGB
		case 100000:
			c.TransferFunction = pik.TransferLinear
		default:
			c.TransferFunction = pik.TransferGamma
			c.GammaTimes1e5 = cs.gamma
		}
	}
	c.AllDefault = c.AllDefault && c.Primaries == pik.PrimariesSRGB &&
		c.TransferFunction == pik.TransferSRGB
	return c
}

// appendColorChunks writes the encode-direction color chunks: an
// embedded profile when present, else an sRGB marker when the encoding
// is exactly sRGB, plus gAMA/cHRM whenever they are derivable.
func appendColorChunks(dst []byte, c *pik.ColorEncoding) ([]byte, error) {
	if len(c.ICC) != 0 {
		payload := make([]byte, 0, len(c.ICC)/2+8)
		payload = append(payload, '1', 0, 0) // profile name, zlib method
		var zbuf bytes.Buffer
		zw, err := zlib.NewWriterLevel(&zbuf, zlib.BestCompression)
		if err != nil {
			return nil, err
		}
		if _, err := zw.Write(c.ICC); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		payload = append(payload, zbuf.Bytes()...)
		dst = appendChunk(dst, "iCCP", payload)
	} else if c.WhitePoint == pik.WhitePointD65 &&
		c.Primaries == pik.PrimariesSRGB &&
		c.TransferFunction == pik.TransferSRGB {
		dst = appendChunk(dst, "sRGB", []byte{byte(c.RenderingIntent)})
	}

	if gamma, ok := gammaOf(c); ok {
		var payload [4]byte
		binary.BigEndian.PutUint32(payload[:], gamma)
		dst = appendChunk(dst, "gAMA", payload[:])
	}

	if prim, ok := primariesOf(c); ok {
		payload := make([]byte, 32)
		put := func(off int, v uint32) { binary.BigEndian.PutUint32(payload[off:], v) }
		put(0, prim.white.x)
		put(4, prim.white.y)
		put(8, prim.r.x)
		put(12, prim.r.y)
		put(16, prim.g.x)
		put(20, prim.g.y)
		put(24, prim.b.x)
		put(28, prim.b.y)
		dst = appendChunk(dst, "cHRM", payload)
	}
	return dst, nil
}

func gammaOf(c *pik.ColorEncoding) (uint32, bool) {
	switch c.TransferFunction {
	case pik.TransferSRGB:
		return 45455, true
	case pik.TransferLinear:
		return 100000, true
	case pik.TransferGamma:
		if c.GammaTimes1e5 > 0 && c.GammaTimes1e5 <= 100000 {
			return c.GammaTimes1e5, true
		}
	}
	return 0, false
}

func primariesOf(c *pik.ColorEncoding) (primarySet, bool) {
	if c.WhitePoint != pik.WhitePointD65 {
		return primarySet{}, false
	}
	switch c.Primaries {
	case pik.PrimariesSRGB:
		return srgbPrimaries, true
	case pik.Primaries2020:
		return bt2020Primaries, true
	case pik.PrimariesP3:
		return p3Primaries, true
	}
	return primarySet{}, false
}
