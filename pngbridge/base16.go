package pngbridge

import (
	"fmt"
	"strings"
)

// PNG text-chunk smuggling of binary metadata, compatible with the
// "Raw profile type <kind>" convention: a header line naming the kind
// and a right-aligned decimal byte count, then base16 with a newline
// before every 36-byte (72 character) line and a terminating newline.
// Within each byte the low nibble is written first, matching the
// reference writer.

const rawProfilePrefix = "Raw profile type "

const maxProfileKindLen = 20

func decodeNibble(c byte) (byte, error) {
	switch {
	case 'a' <= c && c <= 'f':
		return 10 + c - 'a', nil
	case '0' <= c && c <= '9':
		return c - '0', nil
	default:
		return 0, fmt.Errorf("%w: nibble %q", ErrBadTextProfile, c)
	}
}

func encodeNibble(n byte) byte {
	if n < 10 {
		return '0' + n
	}
	return 'a' + n - 10
}

// decodeBase16 extracts the kind and payload from a raw-profile text
// chunk. The bool result is false when the key does not use the
// convention at all; malformed payloads under a matching key are errors.
func decodeBase16(key, value string) (kind string, data []byte, ok bool, err error) {
	if !strings.HasPrefix(key, rawProfilePrefix) {
		return "", nil, false, nil
	}
	kind = key[len(rawProfilePrefix):]
	if len(kind) > maxProfileKindLen {
		return "", nil, true, fmt.Errorf("%w: kind too long", ErrBadTextProfile)
	}

	header := "\n" + kind + "\n"
	if !strings.HasPrefix(value, header) {
		return kind, nil, true, fmt.Errorf("%w: missing header", ErrBadTextProfile)
	}
	pos := len(header)

	// Right-aligned decimal byte count (space padded to width 8).
	for pos < len(value) && value[pos] == ' ' {
		pos++
	}
	count := 0
	digits := 0
	for pos < len(value) && '0' <= value[pos] && value[pos] <= '9' {
		count = count*10 + int(value[pos]-'0')
		digits++
		pos++
		if count > 1<<28 {
			return kind, nil, true, fmt.Errorf("%w: byte count too large", ErrBadTextProfile)
		}
	}
	if digits == 0 {
		return kind, nil, true, fmt.Errorf("%w: missing byte count", ErrBadTextProfile)
	}

	data = make([]byte, 0, count)
	for i := 0; i < count; i++ {
		if i%36 == 0 {
			if pos >= len(value) || value[pos] != '\n' {
				return kind, nil, true, fmt.Errorf("%w: expected newline", ErrBadTextProfile)
			}
			pos++
		}
		if pos+2 > len(value) {
			return kind, nil, true, fmt.Errorf("%w: truncated payload", ErrBadTextProfile)
		}
		lo, err := decodeNibble(value[pos])
		if err != nil {
			return kind, nil, true, err
		}
		hi, err := decodeNibble(value[pos+1])
		if err != nil {
			return kind, nil, true, err
		}
		data = append(data, hi<<4|lo)
		pos += 2
	}
	if pos+1 != len(value) || value[pos] != '\n' {
		return kind, nil, true, fmt.Errorf("%w: bad terminator", ErrBadTextProfile)
	}
	return kind, data, true, nil
}

// encodeBase16 builds the text-chunk key and value for a payload.
func encodeBase16(kind string, data []byte) (key, value string) {
	var b strings.Builder
	b.Grow(len(kind) + 12 + 2*len(data) + len(data)/36 + 2)
	fmt.Fprintf(&b, "\n%s\n%8d", kind, len(data))
	for i, c := range data {
		if i%36 == 0 {
			b.WriteByte('\n')
		}
		b.WriteByte(encodeNibble(c & 0x0F))
		b.WriteByte(encodeNibble(c >> 4))
	}
	b.WriteByte('\n')
	return rawProfilePrefix + kind, b.String()
}
