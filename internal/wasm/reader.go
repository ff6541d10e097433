package wasm

import (
	"fmt"
	"math"
)

// sectionReader wraps a byte slice with an explicit end offset, so every
// section-local decoder is handed a view that physically cannot read past
// its declared boundary. A running position plus a separately-checked
// "declared size" invites off-by-one bugs where a decoder reads one
// section's tail into the next section's head; here, the end is baked
// into the reader itself.
type sectionReader struct {
	buf []byte
	pos int
	end int
}

// newSectionReader builds a reader over buf[pos:end]. Panics if the range
// is invalid; callers only ever construct this from already-bounds-checked
// offsets.
func newSectionReader(buf []byte, pos, end int) *sectionReader {
	if pos < 0 || end > len(buf) || pos > end {
		panic("wasm: invalid sectionReader range")
	}
	return &sectionReader{buf: buf, pos: pos, end: end}
}

// errTruncated is returned whenever a read would cross the reader's end.
var errTruncated = fmt.Errorf("wasm: unexpected end of section")

func (r *sectionReader) remaining() int { return r.end - r.pos }

func (r *sectionReader) atEnd() bool { return r.pos >= r.end }

func (r *sectionReader) byte() (byte, error) {
	if r.pos >= r.end {
		return 0, errTruncated
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *sectionReader) bytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > r.end {
		return nil, errTruncated
	}
	out := r.buf[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

// uLEB128 decodes an unsigned LEB128 value up to 32 bits (at most 5 bytes).
// Overlong encodings (a 5th byte with any of its upper 3 data bits set) and
// running off the buffer both reject.
func (r *sectionReader) uLEB128() (uint32, error) {
	var result uint64
	var shift uint
	for i := 0; i < 5; i++ {
		b, err := r.byte()
		if err != nil {
			return 0, errTruncated
		}
		result |= uint64(b&0x7F) << shift
		if b&0x80 == 0 {
			if i == 4 && b&0xF0 != 0 {
				return 0, fmt.Errorf("wasm: overlong uLEB128 encoding")
			}
			return uint32(result), nil
		}
		shift += 7
	}
	return 0, fmt.Errorf("wasm: uLEB128 exceeds 32 bits")
}

// uLEB128_64 decodes an unsigned LEB128 value up to 64 bits (at most 10
// bytes), used for i64.const constant expressions.
func (r *sectionReader) uLEB128_64() (uint64, error) {
	var result uint64
	var shift uint
	for i := 0; i < 10; i++ {
		b, err := r.byte()
		if err != nil {
			return 0, errTruncated
		}
		result |= uint64(b&0x7F) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
	}
	return 0, fmt.Errorf("wasm: uLEB128_64 exceeds 64 bits")
}

// sLEB128 decodes a signed LEB128 value up to 32 bits.
func (r *sectionReader) sLEB128() (int32, error) {
	var result int64
	var shift uint
	var b byte
	var err error
	for {
		b, err = r.byte()
		if err != nil {
			return 0, errTruncated
		}
		result |= int64(b&0x7F) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
		if shift >= 32 {
			return 0, fmt.Errorf("wasm: sLEB128 exceeds 32 bits")
		}
	}
	if shift < 64 && b&0x40 != 0 {
		result |= -1 << shift
	}
	if result > math.MaxInt32 || result < math.MinInt32 {
		return 0, fmt.Errorf("wasm: sLEB128 out of i32 range")
	}
	return int32(result), nil
}

// sLEB128_64 decodes a signed LEB128 value up to 64 bits.
func (r *sectionReader) sLEB128_64() (int64, error) {
	var result int64
	var shift uint
	var b byte
	var err error
	for {
		b, err = r.byte()
		if err != nil {
			return 0, errTruncated
		}
		result |= int64(b&0x7F) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
		if shift >= 64 {
			return 0, fmt.Errorf("wasm: sLEB128_64 exceeds 64 bits")
		}
	}
	if shift < 64 && b&0x40 != 0 {
		result |= -1 << shift
	}
	return result, nil
}

// name decodes a length-prefixed UTF-8 string (module/field/export names).
func (r *sectionReader) name() (string, error) {
	n, err := r.uLEB128()
	if err != nil {
		return "", err
	}
	b, err := r.bytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// f32Bits decodes a raw little-endian f32.const immediate.
func (r *sectionReader) f32Bits() (uint32, error) {
	b, err := r.bytes(4)
	if err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

// f64Bits decodes a raw little-endian f64.const immediate.
func (r *sectionReader) f64Bits() (uint64, error) {
	b, err := r.bytes(8)
	if err != nil {
		return 0, err
	}
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v, nil
}

func (r *sectionReader) valueType() (ValueType, error) {
	b, err := r.byte()
	if err != nil {
		return 0, err
	}
	vt := ValueType(b)
	if !vt.IsValid() {
		return 0, fmt.Errorf("wasm: invalid value type byte 0x%02x", b)
	}
	return vt, nil
}

func (r *sectionReader) limits(maxPages uint32) (Limits, error) {
	flags, err := r.byte()
	if err != nil {
		return Limits{}, err
	}
	if flags != 0 && flags != 1 {
		return Limits{}, fmt.Errorf("wasm: invalid limits flags 0x%02x", flags)
	}
	min, err := r.uLEB128()
	if err != nil {
		return Limits{}, err
	}
	lim := Limits{Min: min}
	if maxPages > 0 && min > maxPages {
		return Limits{}, fmt.Errorf("wasm: limits min %d exceeds %d pages", min, maxPages)
	}
	if flags == 1 {
		max, err := r.uLEB128()
		if err != nil {
			return Limits{}, err
		}
		if max < min {
			return Limits{}, fmt.Errorf("wasm: limits max %d less than min %d", max, min)
		}
		if maxPages > 0 && max > maxPages {
			return Limits{}, fmt.Errorf("wasm: limits max %d exceeds %d pages", max, maxPages)
		}
		lim.Max = max
		lim.HasMax = true
	}
	return lim, nil
}
