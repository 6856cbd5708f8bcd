package pngbridge

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// chunk is one decoded PNG chunk. crcOK records whether the stored
// checksum matched; callers decide whether a mismatch is fatal.
type chunk struct {
	typ   string
	data  []byte
	crcOK bool
}

// parseChunks splits a PNG stream into chunks. Structural damage that
// prevents walking the chunk list at all is an error; per-chunk CRC
// mismatches are recorded, not fatal.
func parseChunks(data []byte) ([]chunk, error) {
	if len(data) < len(pngSignature) || string(data[:8]) != string(pngSignature) {
		return nil, ErrNotPNG
	}
	var chunks []chunk
	pos := 8
	for pos < len(data) {
		if len(data)-pos < 12 {
			return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorruptStream, len(data)-pos)
		}
		length := binary.BigEndian.Uint32(data[pos:])
		if length > uint32(len(data)-pos-12) {
			return nil, fmt.Errorf("%w: chunk length %d past end", ErrCorruptStream, length)
		}
		typ := string(data[pos+4 : pos+8])
		payload := data[pos+8 : pos+8+int(length)]
		stored := binary.BigEndian.Uint32(data[pos+8+int(length):])
		sum := crc32.ChecksumIEEE(data[pos+4 : pos+8+int(length)])
		chunks = append(chunks, chunk{typ: typ, data: payload, crcOK: stored == sum})
		pos += 12 + int(length)
		if typ == "IEND" {
			break
		}
	}
	return chunks, nil
}

// appendChunk serializes one chunk (length, type, data, CRC) onto dst.
func appendChunk(dst []byte, typ string, data []byte) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	dst = append(dst, lenBuf[:]...)
	start := len(dst)
	dst = append(dst, typ...)
	dst = append(dst, data...)
	sum := crc32.ChecksumIEEE(dst[start:])
	var crcBuf [4]byte
	binary.BigEndian.PutUint32(crcBuf[:], sum)
	return append(dst, crcBuf[:]...)
}

// ihdr is the parsed IHDR chunk.
type ihdr struct {
	width, height uint32
	bitDepth      byte
	colorType     byte
	interlace     byte
}

// PNG color types.
const (
	colorGray      = 0
	colorRGB       = 2
	colorPalette   = 3
	colorGrayAlpha = 4
	colorRGBA      = 6
)

func parseIHDR(c chunk) (ihdr, error) {
	if !c.crcOK {
		return ihdr{}, fmt.Errorf("%w: IHDR checksum", ErrCorruptStream)
	}
	if len(c.data) != 13 {
		return ihdr{}, fmt.Errorf("%w: IHDR length %d", ErrCorruptStream, len(c.data))
	}
	h := ihdr{
		width:     binary.BigEndian.Uint32(c.data[0:4]),
		height:    binary.BigEndian.Uint32(c.data[4:8]),
		bitDepth:  c.data[8],
		colorType: c.data[9],
		interlace: c.data[12],
	}
	if h.width == 0 || h.height == 0 {
		return ihdr{}, fmt.Errorf("%w: zero dimension", ErrCorruptStream)
	}
	return h, nil
}

// checkGray classifies the image as grayscale. Palette images are gray
// when every palette entry has equal channels.
func checkGray(h ihdr, palette []byte) (bool, error) {
	switch h.colorType {
	case colorGray, colorGrayAlpha:
		return true, nil
	case colorRGB, colorRGBA:
		return false, nil
	case colorPalette:
		for i := 0; i+2 < len(palette); i += 3 {
			if palette[i] != palette[i+1] || palette[i] != palette[i+2] {
				return false, nil
			}
		}
		return true, nil
	default:
		return false, fmt.Errorf("%w: %d", ErrUnsupportedColorType, h.colorType)
	}
}

// checkAlpha classifies alpha presence: an alpha channel, a color key
// (tRNS on gray/RGB), or any translucent palette entry.
func checkAlpha(h ihdr, trns []byte) (bool, error) {
	switch h.colorType {
	case colorGray, colorRGB:
		return len(trns) > 0, nil
	case colorGrayAlpha, colorRGBA:
		return true, nil
	case colorPalette:
		for _, a := range trns {
			if a != 255 {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("%w: %d", ErrUnsupportedColorType, h.colorType)
	}
}
