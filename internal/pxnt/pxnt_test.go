package pxnt

import (
	"bytes"
	"errors"
	"testing"
)

func twoByTwoPage() *Page {
	width, height := uint16(2), uint16(2)
	pixels := make([]byte, PixelBufferSize(width, height))
	for i := range pixels {
		pixels[i] = byte(i)
	}
	catMap := make([]byte, CategoryMapSize(width, height))
	// pixel (0,0) -> category 1, everything else -> no category (0)
	catMap[0], catMap[1] = 0x00, 0x01

	navData := append([]byte{4}, []byte("home")...)
	navData = append(navData, 0x64, 0x00) // debounce 100ms, little-endian

	return &Page{
		Header: Header{
			Width:       width,
			Height:      height,
			PixelFormat: FormatRGBA8,
			Compression: CompressionNone,
			Created:     1000,
			Modified:    1000,
		},
		Metadata: Metadata{
			Title:        "Test Page",
			Author:       "tester",
			CustomFields: map[string]string{},
		},
		Pixels:      pixels,
		CategoryMap: catMap,
		Categories: []Category{
			{ID: 1, Name: "home_link", BehaviorID: BehaviorNavigate, Priority: 128, BehaviorData: navData},
			{ID: 2, Name: "deco", BehaviorID: BehaviorNone, Priority: 0, BehaviorData: nil},
		},
		ExtendedMetadata: map[uint8][]byte{},
	}
}

func TestRoundTripUncompressed(t *testing.T) {
	page := twoByTwoPage()

	out, err := EncodeToBytes(page)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if !decoded.FooterOK {
		t.Fatalf("expected footer to round-trip")
	}
	if decoded.Header.Width != page.Header.Width || decoded.Header.Height != page.Header.Height {
		t.Fatalf("dimensions mismatch: got %dx%d", decoded.Header.Width, decoded.Header.Height)
	}
	if !bytes.Equal(decoded.Pixels, page.Pixels) {
		t.Fatalf("pixels mismatch")
	}
	if !bytes.Equal(decoded.CategoryMap, page.CategoryMap) {
		t.Fatalf("category map mismatch")
	}
	if len(decoded.Categories) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(decoded.Categories))
	}
	if decoded.Categories[0].Name != "home_link" {
		t.Fatalf("category name mismatch: %q", decoded.Categories[0].Name)
	}
	if !bytes.Equal(decoded.Categories[0].BehaviorData, page.Categories[0].BehaviorData) {
		t.Fatalf("behavior data mismatch")
	}
	if decoded.Metadata.Title != "Test Page" {
		t.Fatalf("title mismatch: %q", decoded.Metadata.Title)
	}
}

func TestRoundTripRGBA16(t *testing.T) {
	page := twoByTwoPage()
	page.Header.PixelFormat = FormatRGBA16

	out, err := EncodeToBytes(page)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Header.PixelFormat != FormatRGBA16 {
		t.Fatalf("pixel format not preserved: got %d", decoded.Header.PixelFormat)
	}
	if !bytes.Equal(decoded.Pixels, page.Pixels) {
		t.Fatalf("RGBA16 round trip lost pixel precision: got %v, want %v", decoded.Pixels, page.Pixels)
	}
}

func TestRoundTripRGBA16Compressed(t *testing.T) {
	page := twoByTwoPage()
	page.Header.PixelFormat = FormatRGBA16
	page.Header.Compression = CompressionZlib

	out, err := EncodeToBytes(page)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(decoded.Pixels, page.Pixels) {
		t.Fatalf("compressed RGBA16 round trip lost pixel precision")
	}
}

func Test64x64Compressed(t *testing.T) {
	width, height := uint16(64), uint16(64)
	pixels := make([]byte, PixelBufferSize(width, height))
	for i := range pixels {
		pixels[i] = byte(i % 251)
	}
	page := &Page{
		Header: Header{
			Width:       width,
			Height:      height,
			PixelFormat: FormatRGBA8,
			Compression: CompressionZlib,
		},
		Metadata:         Metadata{CustomFields: map[string]string{}},
		Pixels:           pixels,
		CategoryMap:      make([]byte, CategoryMapSize(width, height)),
		ExtendedMetadata: map[uint8][]byte{},
	}

	out, err := EncodeToBytes(page)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(decoded.Pixels, pixels) {
		t.Fatalf("decompressed pixels do not match source")
	}

	// Corrupt a byte inside the compressed pixel block and confirm decode fails.
	corrupt := append([]byte(nil), out...)
	// Header(32) + metadata(2+0+1+0+2+0+2+0+1+1 = 9 for an empty-ish page) + 4(uncompressed)+4(compressed) prefix.
	// Rather than compute the exact offset, flip a byte well past the header/metadata
	// and within the declared compressed length.
	compStart := headerSize + 9 + 8
	if compStart < len(corrupt)-1 {
		corrupt[compStart] ^= 0xFF
		corrupt[compStart+4] ^= 0xFF
	}
	if _, err := Decode(bytes.NewReader(corrupt)); err == nil {
		t.Fatalf("expected decode of corrupted stream to fail")
	} else if !errors.Is(err, ErrDecompression) && !errors.Is(err, ErrPixelSizeMismatch) {
		t.Fatalf("expected decompression-related error, got %v", err)
	}
}

func TestBadMagic(t *testing.T) {
	buf := make([]byte, headerSize)
	copy(buf, "XXXX")
	if _, err := Decode(bytes.NewReader(buf)); !errors.Is(err, ErrBadMagic) {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}
}

func TestMissingFooterIsNonFatal(t *testing.T) {
	page := twoByTwoPage()
	out, err := EncodeToBytes(page)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	truncated := out[:len(out)-footerSize]

	decoded, err := Decode(bytes.NewReader(truncated))
	if err != nil {
		t.Fatalf("decode without footer should still succeed: %v", err)
	}
	if decoded.FooterOK {
		t.Fatalf("expected FooterOK=false when footer is absent")
	}
	if !bytes.Equal(decoded.Pixels, page.Pixels) {
		t.Fatalf("pixels should still be intact when only the footer is missing")
	}
}

func TestRGB8ExpandsToRGBA8(t *testing.T) {
	width, height := uint16(1), uint16(1)
	page := &Page{
		Header: Header{
			Width:       width,
			Height:      height,
			PixelFormat: FormatRGB8,
			Compression: CompressionNone,
		},
		Metadata:         Metadata{CustomFields: map[string]string{}},
		Pixels:           []byte{10, 20, 30, 255}, // RGBA8 in memory
		CategoryMap:      make([]byte, CategoryMapSize(width, height)),
		ExtendedMetadata: map[uint8][]byte{},
	}

	out, err := EncodeToBytes(page)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []byte{10, 20, 30, 255}
	if !bytes.Equal(decoded.Pixels, want) {
		t.Fatalf("RGB8 round trip mismatch: got %v want %v", decoded.Pixels, want)
	}
}
