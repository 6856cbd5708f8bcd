// Package pngbridge extracts and injects container metadata through PNG
// files: image classification (dimensions, grayscale, alpha), color
// encoding from iCCP/sRGB/gAMA/cHRM, and EXIF/IPTC/XMP blobs smuggled
// in eXIf and text chunks. It never decodes pixel data.
package pngbridge

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gwengle/pik"
)

var (
	ErrNotPNG               = errors.New("pngbridge: not a PNG stream")
	ErrCorruptStream        = errors.New("pngbridge: corrupt PNG stream")
	ErrUnsupportedColorType = errors.New("pngbridge: unsupported color type")
	ErrBadTextProfile       = errors.New("pngbridge: malformed raw profile text")
	ErrBadColorChunk        = errors.New("pngbridge: malformed color chunk")
)

// xmpKeyword is the registered iTXt keyword for XMP packets.
const xmpKeyword = "XML:com.adobe.xmp"

// ImageInfo is everything Decode learns about a PNG without touching
// pixel data.
type ImageInfo struct {
	Width    uint32
	Height   uint32
	BitDepth byte
	Gray     bool
	HasAlpha bool
	Meta     pik.Metadata
}

// Decode walks the chunk list of a PNG stream and collects metadata.
// Checksum mismatches on structural chunks (IHDR, PLTE, tRNS) are
// fatal; on metadata chunks the chunk is skipped with a warning so one
// bad text chunk cannot sink the whole file.
func Decode(data []byte) (*ImageInfo, error) {
	chunks, err := parseChunks(data)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 || chunks[0].typ != "IHDR" {
		return nil, fmt.Errorf("%w: first chunk is not IHDR", ErrCorruptStream)
	}
	h, err := parseIHDR(chunks[0])
	if err != nil {
		return nil, err
	}

	var palette, trns []byte
	var cs colorState
	info := &ImageInfo{Width: h.width, Height: h.height, BitDepth: h.bitDepth}
	if info.BitDepth < 8 {
		// Sub-byte samples are promoted on decode.
		info.BitDepth = 8
	}
	info.Meta = *pik.NewMetadata()

	for _, c := range chunks[1:] {
		switch c.typ {
		case "PLTE":
			if !c.crcOK {
				return nil, fmt.Errorf("%w: PLTE checksum", ErrCorruptStream)
			}
			palette = c.data
		case "tRNS":
			if !c.crcOK {
				return nil, fmt.Errorf("%w: tRNS checksum", ErrCorruptStream)
			}
			trns = c.data
		case "iCCP", "sRGB", "gAMA", "cHRM", "eXIf", "tEXt", "iTXt":
			if !c.crcOK {
				slog.Warn("pngbridge: checksum mismatch, skipping chunk", "type", c.typ)
				continue
			}
			if err := decodeMetaChunk(c, &cs, &info.Meta); err != nil {
				slog.Warn("pngbridge: skipping chunk", "type", c.typ, "err", err)
			}
		}
	}

	info.Gray, err = checkGray(h, palette)
	if err != nil {
		return nil, err
	}
	info.HasAlpha, err = checkAlpha(h, trns)
	if err != nil {
		return nil, err
	}

	info.Meta.Color = cs.resolve(info.Gray)
	info.Meta.AllDefault = info.Meta.Color.AllDefault &&
		info.Meta.TargetNitsDiv50 == 5 &&
		len(info.Meta.EXIF) == 0 && len(info.Meta.IPTC) == 0 && len(info.Meta.XMP) == 0
	return info, nil
}

func decodeMetaChunk(c chunk, cs *colorState, m *pik.Metadata) error {
	switch c.typ {
	case "iCCP":
		return cs.decodeICCP(c.data)
	case "sRGB":
		return cs.decodeSRGB(c.data)
	case "gAMA":
		return cs.decodeGAMA(c.data)
	case "cHRM":
		return cs.decodeCHRM(c.data)
	case "eXIf":
		// Prefer the larger payload when both eXIf and a raw-profile
		// text chunk carry EXIF.
		if len(c.data) > len(m.EXIF) {
			m.EXIF = c.data
		}
		return nil
	case "tEXt":
		return decodeTEXT(c.data, m)
	case "iTXt":
		return decodeITXT(c.data, m)
	}
	return nil
}

func decodeTEXT(payload []byte, m *pik.Metadata) error {
	sep := bytes.IndexByte(payload, 0)
	if sep < 0 {
		return fmt.Errorf("%w: tEXt without separator", ErrBadTextProfile)
	}
	key := string(payload[:sep])
	kind, data, ok, err := decodeBase16(key, string(payload[sep+1:]))
	if !ok || err != nil {
		return err
	}
	switch strings.ToLower(kind) {
	case "exif":
		if len(data) > len(m.EXIF) {
			m.EXIF = data
		}
	case "iptc", "8bim":
		m.IPTC = data
	case "xmp":
		m.XMP = data
	default:
		slog.Warn("pngbridge: unknown raw profile kind", "kind", kind)
	}
	return nil
}

func decodeITXT(payload []byte, m *pik.Metadata) error {
	sep := bytes.IndexByte(payload, 0)
	if sep < 0 || string(payload[:sep]) != xmpKeyword {
		return nil
	}
	rest := payload[sep+1:]
	if len(rest) < 2 {
		return fmt.Errorf("%w: truncated iTXt", ErrBadTextProfile)
	}
	if rest[0] != 0 {
		return fmt.Errorf("%w: compressed iTXt XMP", ErrBadTextProfile)
	}
	rest = rest[2:] // compression flag and method
	for i := 0; i < 2; i++ {
		end := bytes.IndexByte(rest, 0)
		if end < 0 {
			return fmt.Errorf("%w: truncated iTXt", ErrBadTextProfile)
		}
		rest = rest[end+1:] // language tag, translated keyword
	}
	m.XMP = rest
	return nil
}

// ownsChunk reports whether AppendChunks produces this chunk itself.
// Existing copies are dropped from the template so the output has a
// single source of truth for each.
func ownsChunk(c chunk) bool {
	switch c.typ {
	case "iCCP", "sRGB", "gAMA", "cHRM", "eXIf":
		return true
	case "tEXt":
		return bytes.HasPrefix(c.data, []byte(rawProfilePrefix))
	case "iTXt":
		return bytes.HasPrefix(c.data, []byte(xmpKeyword+"\x00"))
	}
	return false
}

// AppendChunks rewrites a PNG stream with the metadata's color and blob
// chunks inserted after IHDR, replacing any it owns. The pixel-bearing
// chunks pass through untouched.
func AppendChunks(png []byte, meta *pik.Metadata) ([]byte, error) {
	chunks, err := parseChunks(png)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 || chunks[0].typ != "IHDR" {
		return nil, fmt.Errorf("%w: first chunk is not IHDR", ErrCorruptStream)
	}

	out := make([]byte, 0, len(png)+len(meta.Color.ICC)+2*len(meta.EXIF))
	out = append(out, pngSignature...)
	out = appendChunk(out, chunks[0].typ, chunks[0].data)

	out, err = appendColorChunks(out, &meta.Color)
	if err != nil {
		return nil, err
	}
	if len(meta.EXIF) != 0 {
		out = appendChunk(out, "eXIf", meta.EXIF)
	}
	if len(meta.IPTC) != 0 {
		key, value := encodeBase16("iptc", meta.IPTC)
		payload := append([]byte(key), 0)
		payload = append(payload, value...)
		out = appendChunk(out, "tEXt", payload)
	}
	if len(meta.XMP) != 0 {
		payload := append([]byte(xmpKeyword), 0, 0, 0, 0, 0)
		payload = append(payload, meta.XMP...)
		out = appendChunk(out, "iTXt", payload)
	}

	for _, c := range chunks[1:] {
		if ownsChunk(c) {
			continue
		}
		out = appendChunk(out, c.typ, c.data)
	}
	return out, nil
}
