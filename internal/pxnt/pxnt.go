// Package pxnt implements the PXNT container codec: the on-disk binary
// format that carries one decoded graphical Page (pixels, category map,
// category table, and optional animation/audio/extended-metadata
// sections). All integers in a PXNT file are little-endian.
package pxnt

import "errors"

// PixelFormat identifies the on-disk pixel encoding. Pages are always
// materialized as RGBA8 in memory regardless of the source format.
type PixelFormat uint8

const (
	FormatRGBA8  PixelFormat = 0
	FormatRGB8   PixelFormat = 1
	FormatRGBA16 PixelFormat = 2
)

// Compression identifies the on-disk plane compression.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionZlib Compression = 1
)

// Header flag bits.
const (
	FlagCompressedCategoryMap uint16 = 1 << 0
	FlagHasAnimation          uint16 = 1 << 1
	FlagHasAudio              uint16 = 1 << 2
	FlagHasMetadata           uint16 = 1 << 3
)

// BehaviorID identifies the interactive behavior bound to a Category.
type BehaviorID uint8

const (
	BehaviorNone         BehaviorID = 0
	BehaviorNavigate     BehaviorID = 1
	BehaviorEmitEvent    BehaviorID = 2
	BehaviorInputZone    BehaviorID = 3
	BehaviorHoverEffect  BehaviorID = 4
	BehaviorClickEffect  BehaviorID = 5
	BehaviorDragZone     BehaviorID = 6
	BehaviorDropZone     BehaviorID = 7
	BehaviorScrollZone   BehaviorID = 8
	BehaviorMediaZone    BehaviorID = 9
)

const (
	fileMagic   = "PXNT"
	footerMagic = "TNXP"

	headerSize = 32
	footerSize = 16 // 4-byte magic + 12 reserved bytes

	// CategoryNoneID is the reserved "no category" id.
	CategoryNoneID = 0
)

// Codec-level errors, per spec.md §7.
var (
	ErrBadMagic              = errors.New("pxnt: bad magic")
	ErrUnsupportedVersion    = errors.New("pxnt: unsupported version")
	ErrDecompression         = errors.New("pxnt: decompression error")
	ErrPixelSizeMismatch     = errors.New("pxnt: pixel size mismatch")
	ErrCategoryMapSizeMismatch = errors.New("pxnt: category map size mismatch")
)

// SupportedVersion is the only file version this codec reads and writes.
const SupportedVersion = 1

// Header mirrors the 32-byte file header.
type Header struct {
	Version      uint16
	Flags        uint16
	FileSize     uint32
	Created      uint32
	Modified     uint32
	CRC32        uint32
	Width        uint16
	Height       uint16
	PixelFormat  PixelFormat
	Compression  Compression
	Reserved     uint16
}

// Metadata mirrors the page metadata section.
type Metadata struct {
	Title        string
	Author       string
	Description  string
	URL          string
	Keywords     []string
	CustomFields map[string]string
}

// Category mirrors one category-table record.
type Category struct {
	ID            uint16
	Name          string
	BehaviorID    BehaviorID
	Priority      uint8
	BehaviorData  []byte
}

// AnimationFrame is one frame of an optional animation track.
type AnimationFrame struct {
	Pixels   []byte // RGBA8, same W×H as the page
	Duration uint32 // ms; 0 means "inherit track base delay"
}

// AudioStream is an optional raw PCM audio track.
type AudioStream struct {
	Format     uint8
	SampleRate uint32
	Channels   uint8
	Data       []byte
}

// Page is a fully decoded PXNT container.
type Page struct {
	Header   Header
	Metadata Metadata

	// Pixels is always materialized as RGBA8: len == Width*Height*4.
	Pixels []byte

	// CategoryMap holds one big-endian u16 category id per pixel:
	// len == Width*Height*2. The codec stores these bytes verbatim.
	CategoryMap []byte

	Categories []Category

	AnimationBaseDelay uint32
	Animation          []AnimationFrame
	Audio              *AudioStream

	// ExtendedMetadata holds raw, type-tagged sections the codec does not
	// itself interpret (HAS_METADATA optional section).
	ExtendedMetadata map[uint8][]byte

	// FooterOK records whether a well-formed TNXP footer was present.
	// A missing or mismatched footer is a non-fatal warning per §4.2.
	FooterOK bool
}

func bytesPerPixel(f PixelFormat) int {
	switch f {
	case FormatRGB8:
		return 3
	case FormatRGBA16:
		return 8
	default:
		return 4
	}
}

// PixelBufferSize returns the expected in-memory (always-RGBA8) pixel
// buffer size for a page of the given dimensions.
func PixelBufferSize(width, height uint16) int {
	return int(width) * int(height) * 4
}

// CategoryMapSize returns the expected category map size for a page of
// the given dimensions.
func CategoryMapSize(width, height uint16) int {
	return int(width) * int(height) * 2
}
