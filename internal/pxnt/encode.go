package pxnt

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
)

// Encode serializes p to w as a complete PXNT file: header (with
// file_size/crc32 patched in after the fact), metadata, pixel data,
// category map, category definitions, any optional sections the page
// carries, and a TNXP footer. The write path round-trips any valid Page
// produced by Decode.
func Encode(w io.Writer, p *Page) error {
	buf, err := EncodeToBytes(p)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// EncodeToBytes serializes p into an in-memory PXNT file image.
func EncodeToBytes(p *Page) ([]byte, error) {
	var body bytes.Buffer

	// Placeholder header; patched below once file_size/crc32 are known.
	writeHeaderPlaceholder(&body, p)

	if err := encodeMetadata(&body, p.Metadata); err != nil {
		return nil, fmt.Errorf("pxnt: metadata: %w", err)
	}
	if err := encodePixels(&body, p); err != nil {
		return nil, fmt.Errorf("pxnt: pixels: %w", err)
	}
	if err := encodeCategoryMap(&body, p); err != nil {
		return nil, fmt.Errorf("pxnt: category map: %w", err)
	}
	if err := encodeCategories(&body, p.Categories); err != nil {
		return nil, fmt.Errorf("pxnt: categories: %w", err)
	}

	flags := p.Header.Flags
	if len(p.Animation) > 0 {
		flags |= FlagHasAnimation
		if err := encodeAnimation(&body, p); err != nil {
			return nil, fmt.Errorf("pxnt: animation: %w", err)
		}
	}
	if p.Audio != nil {
		flags |= FlagHasAudio
		encodeAudio(&body, p.Audio)
	}
	if len(p.ExtendedMetadata) > 0 {
		flags |= FlagHasMetadata
		encodeExtendedMetadata(&body, p.ExtendedMetadata)
	}

	// Footer.
	body.WriteString(footerMagic)
	body.Write(make([]byte, footerSize-4))

	out := body.Bytes()

	// Patch flags (may have gained HAS_ANIMATION/HAS_AUDIO/HAS_METADATA
	// bits above) and file_size into the header we wrote first.
	binary.LittleEndian.PutUint16(out[6:8], flags)
	binary.LittleEndian.PutUint32(out[8:12], uint32(len(out)))

	// CRC32 is computed over the whole file with the CRC field itself
	// zeroed, then patched into that field.
	out[20], out[21], out[22], out[23] = 0, 0, 0, 0
	sum := crc32.ChecksumIEEE(out)
	binary.LittleEndian.PutUint32(out[20:24], sum)

	return out, nil
}

func writeHeaderPlaceholder(buf *bytes.Buffer, p *Page) {
	buf.WriteString(fileMagic)
	var rest [headerSize - 4]byte
	binary.LittleEndian.PutUint16(rest[0:2], SupportedVersion)
	binary.LittleEndian.PutUint16(rest[2:4], p.Header.Flags)
	// file_size (rest[4:8]) and crc32 (rest[16:20]) patched after full encode.
	binary.LittleEndian.PutUint32(rest[8:12], p.Header.Created)
	binary.LittleEndian.PutUint32(rest[12:16], p.Header.Modified)
	binary.LittleEndian.PutUint16(rest[20:22], p.Header.Width)
	binary.LittleEndian.PutUint16(rest[22:24], p.Header.Height)
	rest[24] = byte(p.Header.PixelFormat)
	rest[25] = byte(p.Header.Compression)
	binary.LittleEndian.PutUint16(rest[26:28], p.Header.Reserved)
	buf.Write(rest[:])
}

func writeU8(buf *bytes.Buffer, v uint8)   { buf.WriteByte(v) }
func writeU16(buf *bytes.Buffer, v uint16) { var b [2]byte; binary.LittleEndian.PutUint16(b[:], v); buf.Write(b[:]) }
func writeU32(buf *bytes.Buffer, v uint32) { var b [4]byte; binary.LittleEndian.PutUint32(b[:], v); buf.Write(b[:]) }

func writeString8(buf *bytes.Buffer, s string) error {
	if len(s) > 255 {
		return fmt.Errorf("pxnt: string exceeds 255 bytes: %d", len(s))
	}
	writeU8(buf, uint8(len(s)))
	buf.WriteString(s)
	return nil
}

func writeString16(buf *bytes.Buffer, s string) error {
	if len(s) > 65535 {
		return fmt.Errorf("pxnt: string exceeds 65535 bytes: %d", len(s))
	}
	writeU16(buf, uint16(len(s)))
	buf.WriteString(s)
	return nil
}

func encodeMetadata(buf *bytes.Buffer, m Metadata) error {
	if err := writeString16(buf, m.Title); err != nil {
		return err
	}
	if err := writeString8(buf, m.Author); err != nil {
		return err
	}
	if err := writeString16(buf, m.Description); err != nil {
		return err
	}
	if err := writeString16(buf, m.URL); err != nil {
		return err
	}
	if len(m.Keywords) > 255 {
		return fmt.Errorf("pxnt: too many keywords: %d", len(m.Keywords))
	}
	writeU8(buf, uint8(len(m.Keywords)))
	for _, kw := range m.Keywords {
		if err := writeString8(buf, kw); err != nil {
			return err
		}
	}
	if len(m.CustomFields) > 255 {
		return fmt.Errorf("pxnt: too many custom fields: %d", len(m.CustomFields))
	}
	writeU8(buf, uint8(len(m.CustomFields)))
	for k, v := range m.CustomFields {
		if err := writeString8(buf, k); err != nil {
			return err
		}
		if err := writeString16(buf, v); err != nil {
			return err
		}
	}
	return nil
}

func encodePixels(buf *bytes.Buffer, p *Page) error {
	want := PixelBufferSize(p.Header.Width, p.Header.Height)
	if len(p.Pixels) != want {
		return fmt.Errorf("%w: have %d, want %d", ErrPixelSizeMismatch, len(p.Pixels), want)
	}

	raw := p.Pixels
	switch p.Header.PixelFormat {
	case FormatRGB8:
		raw = rgbaToRGB(p.Pixels)
	case FormatRGBA16:
		raw = rgbaToRGBA16(p.Pixels)
	}

	if p.Header.Compression == CompressionNone {
		buf.Write(raw)
		return nil
	}
	compressed, err := deflate(raw)
	if err != nil {
		return err
	}
	writeU32(buf, uint32(len(raw)))
	writeU32(buf, uint32(len(compressed)))
	buf.Write(compressed)
	return nil
}

func rgbaToRGB(rgba []byte) []byte {
	n := len(rgba) / 4
	out := make([]byte, n*3)
	for i := 0; i < n; i++ {
		copy(out[i*3:i*3+3], rgba[i*4:i*4+3])
	}
	return out
}

// rgbaToRGBA16 expands each 8-bit RGBA8 channel to 16 bits by bit
// replication (v*257, so 0xff -> 0xffff) and writes four little-endian
// u16 channels per pixel, mirroring rgbaToRGB's shape for the 8-bit path.
func rgbaToRGBA16(rgba []byte) []byte {
	n := len(rgba) / 4
	out := make([]byte, n*8)
	for i := 0; i < n; i++ {
		for c := 0; c < 4; c++ {
			v16 := uint16(rgba[i*4+c]) * 257
			binary.LittleEndian.PutUint16(out[i*8+c*2:i*8+c*2+2], v16)
		}
	}
	return out
}

func deflate(raw []byte) ([]byte, error) {
	var b bytes.Buffer
	zw := zlib.NewWriter(&b)
	if _, err := zw.Write(raw); err != nil {
		zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func encodeCategoryMap(buf *bytes.Buffer, p *Page) error {
	want := CategoryMapSize(p.Header.Width, p.Header.Height)
	if len(p.CategoryMap) != want {
		return fmt.Errorf("%w: have %d, want %d", ErrCategoryMapSizeMismatch, len(p.CategoryMap), want)
	}
	if p.Header.Flags&FlagCompressedCategoryMap != 0 {
		compressed, err := deflate(p.CategoryMap)
		if err != nil {
			return err
		}
		writeU32(buf, uint32(len(p.CategoryMap)))
		writeU32(buf, uint32(len(compressed)))
		buf.Write(compressed)
		return nil
	}
	buf.Write(p.CategoryMap)
	return nil
}

func encodeCategories(buf *bytes.Buffer, cats []Category) error {
	writeU16(buf, uint16(len(cats)))
	for _, c := range cats {
		if len(c.Name) > 255 {
			return fmt.Errorf("pxnt: category name exceeds 255 bytes: %q", c.Name)
		}
		if len(c.BehaviorData) > 65535 {
			return fmt.Errorf("pxnt: behavior data exceeds 65535 bytes for category %d", c.ID)
		}
		writeU16(buf, c.ID)
		writeU8(buf, uint8(c.BehaviorID))
		writeU8(buf, c.Priority)
		writeU16(buf, uint16(len(c.Name)))
		writeU16(buf, uint16(len(c.BehaviorData)))
		buf.WriteString(c.Name)
		buf.Write(c.BehaviorData)
	}
	return nil
}

func encodeAnimation(buf *bytes.Buffer, p *Page) error {
	writeU32(buf, uint32(len(p.Animation)))
	writeU32(buf, p.AnimationBaseDelay)
	for _, f := range p.Animation {
		data := f.Pixels
		if p.Header.Compression == CompressionZlib {
			compressed, err := deflate(f.Pixels)
			if err != nil {
				return err
			}
			data = compressed
		}
		writeU32(buf, f.Duration)
		writeU32(buf, uint32(len(data)))
		buf.Write(data)
	}
	return nil
}

func encodeAudio(buf *bytes.Buffer, a *AudioStream) {
	writeU8(buf, a.Format)
	writeU32(buf, a.SampleRate)
	writeU8(buf, a.Channels)
	writeU32(buf, uint32(len(a.Data)))
	buf.Write(a.Data)
}

func encodeExtendedMetadata(buf *bytes.Buffer, sections map[uint8][]byte) {
	writeU16(buf, uint16(len(sections)))
	for typ, data := range sections {
		writeU8(buf, typ)
		writeU32(buf, uint32(len(data)))
		buf.Write(data)
	}
}
