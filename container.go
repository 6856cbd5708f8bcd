package pik

import (
	"errors"
	"fmt"

	"github.com/gwengle/pik/bits"
)

// PassSection pairs a pass header with its payload bytes.
type PassSection struct {
	Header  PassHeader
	Payload []byte
}

// File is a complete container: a file header followed by one or more
// passes, the last of which has IsLast set.
type File struct {
	Header FileHeader
	Passes []PassSection
}

// ErrNoPasses is returned when encoding a file with an empty pass list.
var ErrNoPasses = errors.New("pik: file has no passes")

// headerBytes returns the byte length of a header occupying totalBits.
// Headers are padded to whole bytes so each pass starts byte-aligned.
func headerBytes(totalBits uint64) int {
	return int((totalBits + 7) / 8)
}

// encodeHeader runs the oracle, sizes a buffer and serializes one header.
func encodeHeader(f fieldList) ([]byte, error) {
	extensionBits, totalBits, err := canEncode(f)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, headerBytes(totalBits))
	w := bits.NewWriter(buf)
	if err := write(f, extensionBits, w); err != nil {
		return nil, err
	}
	if w.BitsWritten() != totalBits {
		return nil, fmt.Errorf("pik: size oracle disagrees with writer: %d vs %d bits",
			totalBits, w.BitsWritten())
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return buf, nil
}

// passSize finds the fixed point of the pass size field: the field's own
// encoded width depends on its value, so the size is recomputed until it
// stops moving (at most a few iterations, since the width is monotonic
// in the value).
func passSize(h *PassHeader, ctx PassContext, payloadLen int) (uint64, error) {
	for i := 0; i < 4; i++ {
		_, totalBits, err := canEncode(passFields{h, ctx})
		if err != nil {
			return 0, err
		}
		size := uint64(headerBytes(totalBits) + payloadLen)
		if size == h.Size {
			return size, nil
		}
		h.Size = size
	}
	return 0, fmt.Errorf("%w: size field did not converge", ErrInvalidPassSize)
}

// EncodeFile serializes a complete container. It sets each pass header's
// Size field and requires IsLast to be set on exactly the final pass.
func EncodeFile(f *File) ([]byte, error) {
	if len(f.Passes) == 0 {
		return nil, ErrNoPasses
	}
	for i := range f.Passes {
		last := i == len(f.Passes)-1
		if f.Passes[i].Header.IsLast != last {
			return nil, fmt.Errorf("pik: pass %d has IsLast=%v", i, f.Passes[i].Header.IsLast)
		}
	}

	out, err := encodeHeader(&f.Header)
	if err != nil {
		return nil, err
	}

	ctx := PassContext{NumGroups: NumGroups(f.Header.XSize(), f.Header.YSize())}
	for i := range f.Passes {
		p := &f.Passes[i]
		if _, err := passSize(&p.Header, ctx, len(p.Payload)); err != nil {
			return nil, fmt.Errorf("pik: pass %d: %w", i, err)
		}
		hdr, err := encodeHeader(passFields{&p.Header, ctx})
		if err != nil {
			return nil, fmt.Errorf("pik: pass %d: %w", i, err)
		}
		out = append(out, hdr...)
		out = append(out, p.Payload...)
	}
	return out, nil
}

// DecodeFile parses a complete container. The group count for each pass
// header is derived from the file header's geometry; pass boundaries
// follow each header's Size field.
func DecodeFile(data []byte) (*File, error) {
	f := new(File)

	r := bits.NewReader(data)
	if err := ReadFileHeader(r, &f.Header); err != nil {
		return nil, err
	}
	offset := headerBytes(r.BitsRead())

	ctx := PassContext{NumGroups: NumGroups(f.Header.XSize(), f.Header.YSize())}
	for {
		if offset >= len(data) {
			return nil, fmt.Errorf("%w: missing final pass", ErrTruncatedStream)
		}

		var p PassSection
		pr := bits.NewReader(data[offset:])
		if err := ReadPassHeader(pr, ctx, &p.Header); err != nil {
			return nil, err
		}

		hdrLen := headerBytes(pr.BitsRead())
		size := p.Header.Size
		if size < uint64(hdrLen) {
			return nil, fmt.Errorf("%w: size %d smaller than header (%d bytes)",
				ErrInvalidPassSize, size, hdrLen)
		}
		if size > uint64(len(data)-offset) {
			return nil, fmt.Errorf("%w: size %d past end of container", ErrTruncatedStream, size)
		}
		p.Payload = data[offset+hdrLen : offset+int(size)]
		f.Passes = append(f.Passes, p)

		if p.Header.IsLast {
			return f, nil
		}
		offset += int(size)
	}
}

// ByteRange is a half-open byte span within a pass payload.
type ByteRange struct {
	Offset uint64
	Size   uint64
}

// GroupByteRanges computes, from a pass header's table of contents, the
// non-overlapping payload ranges of its groups, letting a scheduler hand
// each group to a separate worker with its own cursor.
func GroupByteRanges(h *PassHeader) []ByteRange {
	ranges := make([]ByteRange, len(h.GroupSizes))
	var offset uint64
	for i, size := range h.GroupSizes {
		ranges[i] = ByteRange{Offset: offset, Size: uint64(size)}
		offset += uint64(size)
	}
	return ranges
}
