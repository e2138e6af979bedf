package pxnt

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
)

// Decode parses a PXNT byte stream per spec.md §4.2, in strict order:
// header, metadata, pixel data, category map, category definitions,
// then any optional sections gated by header flag bits, then footer.
func Decode(r io.Reader) (*Page, error) {
	br := bufio.NewReader(r)

	p := &Page{ExtendedMetadata: map[uint8][]byte{}}

	if err := decodeHeader(br, p); err != nil {
		return nil, err
	}
	if err := decodeMetadata(br, p); err != nil {
		return nil, fmt.Errorf("pxnt: metadata: %w", err)
	}
	if err := decodePixels(br, p); err != nil {
		return nil, err
	}
	if err := decodeCategoryMap(br, p); err != nil {
		return nil, err
	}
	if err := decodeCategories(br, p); err != nil {
		return nil, fmt.Errorf("pxnt: categories: %w", err)
	}

	if p.Header.Flags&FlagHasAnimation != 0 {
		if err := decodeAnimation(br, p); err != nil {
			return nil, fmt.Errorf("pxnt: animation: %w", err)
		}
	}
	if p.Header.Flags&FlagHasAudio != 0 {
		if err := decodeAudio(br, p); err != nil {
			return nil, fmt.Errorf("pxnt: audio: %w", err)
		}
	}
	if p.Header.Flags&FlagHasMetadata != 0 {
		if err := decodeExtendedMetadata(br, p); err != nil {
			return nil, fmt.Errorf("pxnt: extended metadata: %w", err)
		}
	}

	decodeFooter(br, p)

	return p, nil
}

func decodeHeader(r io.Reader, p *Page) error {
	buf := make([]byte, headerSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return fmt.Errorf("pxnt: header: %w", err)
	}
	if string(buf[:4]) != fileMagic {
		return ErrBadMagic
	}
	h := Header{
		Version:     binary.LittleEndian.Uint16(buf[4:6]),
		Flags:       binary.LittleEndian.Uint16(buf[6:8]),
		FileSize:    binary.LittleEndian.Uint32(buf[8:12]),
		Created:     binary.LittleEndian.Uint32(buf[12:16]),
		Modified:    binary.LittleEndian.Uint32(buf[16:20]),
		CRC32:       binary.LittleEndian.Uint32(buf[20:24]),
		Width:       binary.LittleEndian.Uint16(buf[24:26]),
		Height:      binary.LittleEndian.Uint16(buf[26:28]),
		PixelFormat: PixelFormat(buf[28]),
		Compression: Compression(buf[29]),
		Reserved:    binary.LittleEndian.Uint16(buf[30:32]),
	}
	if h.Version != SupportedVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	if h.Width == 0 || h.Height == 0 {
		return fmt.Errorf("pxnt: zero-sized page")
	}
	p.Header = h
	return nil
}

func readU8(r io.Reader) (uint8, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func readU16(r io.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

func readU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readString8(r io.Reader) (string, error) {
	n, err := readU8(r)
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func readString16(r io.Reader) (string, error) {
	n, err := readU16(r)
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func decodeMetadata(r io.Reader, p *Page) error {
	title, err := readString16(r)
	if err != nil {
		return err
	}
	author, err := readString8(r)
	if err != nil {
		return err
	}
	description, err := readString16(r)
	if err != nil {
		return err
	}
	url, err := readString16(r)
	if err != nil {
		return err
	}
	keywordCount, err := readU8(r)
	if err != nil {
		return err
	}
	keywords := make([]string, 0, keywordCount)
	for i := 0; i < int(keywordCount); i++ {
		kw, err := readString8(r)
		if err != nil {
			return err
		}
		keywords = append(keywords, kw)
	}
	customCount, err := readU8(r)
	if err != nil {
		return err
	}
	custom := make(map[string]string, customCount)
	for i := 0; i < int(customCount); i++ {
		key, err := readString8(r)
		if err != nil {
			return err
		}
		value, err := readString16(r)
		if err != nil {
			return err
		}
		custom[key] = value
	}
	p.Metadata = Metadata{
		Title:        title,
		Author:       author,
		Description:  description,
		URL:          url,
		Keywords:     keywords,
		CustomFields: custom,
	}
	return nil
}

// inflate decompresses a zlib stream and checks the result against the
// uncompressed size the sender declared.
func inflate(compressed []byte, wantSize uint32) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompression, err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompression, err)
	}
	if uint32(len(out)) != wantSize {
		return nil, fmt.Errorf("%w: declared %d, got %d", ErrPixelSizeMismatch, wantSize, len(out))
	}
	return out, nil
}

func decodePixels(r io.Reader, p *Page) error {
	bpp := bytesPerPixel(p.Header.PixelFormat)
	expected := int(p.Header.Width) * int(p.Header.Height) * bpp

	var raw []byte
	if p.Header.Compression == CompressionNone {
		raw = make([]byte, expected)
		if _, err := io.ReadFull(r, raw); err != nil {
			return fmt.Errorf("pxnt: pixels: %w", err)
		}
	} else if p.Header.Compression == CompressionZlib {
		uncompressedSize, err := readU32(r)
		if err != nil {
			return fmt.Errorf("pxnt: pixels: %w", err)
		}
		compressedSize, err := readU32(r)
		if err != nil {
			return fmt.Errorf("pxnt: pixels: %w", err)
		}
		compressed := make([]byte, compressedSize)
		if _, err := io.ReadFull(r, compressed); err != nil {
			return fmt.Errorf("pxnt: pixels: %w", err)
		}
		raw, err = inflate(compressed, uncompressedSize)
		if err != nil {
			return err
		}
		if int(uncompressedSize) != expected {
			return fmt.Errorf("%w: expected %d, declared %d", ErrPixelSizeMismatch, expected, uncompressedSize)
		}
	} else {
		return fmt.Errorf("pxnt: unsupported compression: %d", p.Header.Compression)
	}

	switch p.Header.PixelFormat {
	case FormatRGB8:
		p.Pixels = rgbToRGBA(raw)
	case FormatRGBA16:
		p.Pixels = rgba16ToRGBA(raw)
	default:
		p.Pixels = raw
	}

	want := PixelBufferSize(p.Header.Width, p.Header.Height)
	if len(p.Pixels) != want {
		return fmt.Errorf("%w: expected %d, got %d", ErrPixelSizeMismatch, want, len(p.Pixels))
	}
	return nil
}

func rgbToRGBA(rgb []byte) []byte {
	n := len(rgb) / 3
	out := make([]byte, n*4)
	for i := 0; i < n; i++ {
		copy(out[i*4:i*4+3], rgb[i*3:i*3+3])
		out[i*4+3] = 255
	}
	return out
}

// rgba16ToRGBA narrows each little-endian u16 channel back to 8 bits by
// taking the high byte, the inverse of rgbaToRGBA16's bit replication.
func rgba16ToRGBA(raw []byte) []byte {
	n := len(raw) / 8
	out := make([]byte, n*4)
	for i := 0; i < n; i++ {
		for c := 0; c < 4; c++ {
			v16 := binary.LittleEndian.Uint16(raw[i*8+c*2 : i*8+c*2+2])
			out[i*4+c] = byte(v16 >> 8)
		}
	}
	return out
}

func decodeCategoryMap(r io.Reader, p *Page) error {
	expected := CategoryMapSize(p.Header.Width, p.Header.Height)

	if p.Header.Flags&FlagCompressedCategoryMap != 0 {
		uncompressedSize, err := readU32(r)
		if err != nil {
			return fmt.Errorf("pxnt: category map: %w", err)
		}
		compressedSize, err := readU32(r)
		if err != nil {
			return fmt.Errorf("pxnt: category map: %w", err)
		}
		compressed := make([]byte, compressedSize)
		if _, err := io.ReadFull(r, compressed); err != nil {
			return fmt.Errorf("pxnt: category map: %w", err)
		}
		raw, err := inflate(compressed, uncompressedSize)
		if err != nil {
			return err
		}
		p.CategoryMap = raw
	} else {
		raw := make([]byte, expected)
		if _, err := io.ReadFull(r, raw); err != nil {
			return fmt.Errorf("pxnt: category map: %w", err)
		}
		p.CategoryMap = raw
	}

	if len(p.CategoryMap) != expected {
		return fmt.Errorf("%w: expected %d, got %d", ErrCategoryMapSizeMismatch, expected, len(p.CategoryMap))
	}
	return nil
}

func decodeCategories(r io.Reader, p *Page) error {
	count, err := readU16(r)
	if err != nil {
		return err
	}
	cats := make([]Category, 0, count)
	for i := 0; i < int(count); i++ {
		id, err := readU16(r)
		if err != nil {
			return err
		}
		behaviorID, err := readU8(r)
		if err != nil {
			return err
		}
		priority, err := readU8(r)
		if err != nil {
			return err
		}
		nameLen, err := readU16(r)
		if err != nil {
			return err
		}
		dataLen, err := readU16(r)
		if err != nil {
			return err
		}
		name := make([]byte, nameLen)
		if _, err := io.ReadFull(r, name); err != nil {
			return err
		}
		data := make([]byte, dataLen)
		if _, err := io.ReadFull(r, data); err != nil {
			return err
		}
		cats = append(cats, Category{
			ID:           id,
			Name:         string(name),
			BehaviorID:   BehaviorID(behaviorID),
			Priority:     priority,
			BehaviorData: data,
		})
	}
	p.Categories = cats
	return nil
}

func decodeAnimation(r io.Reader, p *Page) error {
	frameCount, err := readU32(r)
	if err != nil {
		return err
	}
	baseDelay, err := readU32(r)
	if err != nil {
		return err
	}
	p.AnimationBaseDelay = baseDelay

	frames := make([]AnimationFrame, 0, frameCount)
	for i := 0; i < int(frameCount); i++ {
		duration, err := readU32(r)
		if err != nil {
			return err
		}
		size, err := readU32(r)
		if err != nil {
			return err
		}
		data := make([]byte, size)
		if _, err := io.ReadFull(r, data); err != nil {
			return err
		}
		if p.Header.Compression == CompressionZlib {
			zr, err := zlib.NewReader(bytes.NewReader(data))
			if err != nil {
				return fmt.Errorf("%w: %v", ErrDecompression, err)
			}
			out, err := io.ReadAll(zr)
			zr.Close()
			if err != nil {
				return fmt.Errorf("%w: %v", ErrDecompression, err)
			}
			data = out
		}
		if duration == 0 {
			duration = baseDelay
		}
		frames = append(frames, AnimationFrame{Pixels: data, Duration: duration})
	}
	p.Animation = frames
	return nil
}

func decodeAudio(r io.Reader, p *Page) error {
	format, err := readU8(r)
	if err != nil {
		return err
	}
	sampleRate, err := readU32(r)
	if err != nil {
		return err
	}
	channels, err := readU8(r)
	if err != nil {
		return err
	}
	size, err := readU32(r)
	if err != nil {
		return err
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return err
	}
	p.Audio = &AudioStream{
		Format:     format,
		SampleRate: sampleRate,
		Channels:   channels,
		Data:       data,
	}
	return nil
}

func decodeExtendedMetadata(r io.Reader, p *Page) error {
	count, err := readU16(r)
	if err != nil {
		return err
	}
	for i := 0; i < int(count); i++ {
		typ, err := readU8(r)
		if err != nil {
			return err
		}
		size, err := readU32(r)
		if err != nil {
			return err
		}
		data := make([]byte, size)
		if _, err := io.ReadFull(r, data); err != nil {
			return err
		}
		p.ExtendedMetadata[typ] = data
	}
	return nil
}

// decodeFooter reads the trailing TNXP footer if present. Absence or a
// magic mismatch is a non-fatal warning: the page already decoded above
// is kept regardless (spec.md §4.2 item 7).
func decodeFooter(r io.Reader, p *Page) {
	buf := make([]byte, footerSize)
	n, err := io.ReadFull(r, buf)
	if err != nil || n != footerSize {
		p.FooterOK = false
		return
	}
	p.FooterOK = string(buf[:4]) == footerMagic
}
