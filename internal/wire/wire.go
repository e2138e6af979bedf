// Package wire implements the PIXNET wire protocol codec: fixed-shape
// message framing for the handshake, frame delivery, and event/input/
// ping/error/bye messages exchanged between client and server. All
// integers are big-endian, independent of the little-endian PXNT
// container codec in internal/pxnt.
package wire

import "errors"

// Magic values identifying each message kind. Every message on the wire
// begins with one of these 6 ASCII bytes.
const (
	MagicHandshake = "PIXHND"
	MagicAck       = "PIXACK"
	MagicFrame     = "PIXNET"
	MagicEvent     = "PIXEVT"
	MagicInput     = "PIXINP"
	MagicPing      = "PIXPNG"
	MagicPong      = "PIXPOG"
	MagicError     = "PIXERR"
	MagicBye       = "PIXBYE"
)

const magicLen = 6

// ProtocolVersion is the only handshake version this codec speaks.
const ProtocolVersion uint8 = 1

// FrameType identifies the kind of PIXNET frame payload.
type FrameType uint8

const (
	FrameFull      FrameType = 0
	FramePartial   FrameType = 1
	FrameAnimation FrameType = 2
)

// Frame flag bits.
const (
	FlagCompression uint16 = 1 << 0
)

// ErrorCode enumerates wire-level error codes (spec.md §7).
type ErrorCode uint16

const (
	ErrCodeProtocolError      ErrorCode = 1000
	ErrCodeUnsupportedVersion ErrorCode = 1001
	ErrCodeInvalidSession     ErrorCode = 1002
	ErrCodeFileNotFound       ErrorCode = 1003
	ErrCodeServerError        ErrorCode = 1004
	ErrCodeChecksumError      ErrorCode = 1005
)

// Errors returned while decoding wire messages.
var (
	ErrShortMessage  = errors.New("wire: message too short")
	ErrWrongMagic    = errors.New("wire: unexpected magic")
	ErrFieldTooLarge = errors.New("wire: field exceeds protocol limit")
)

// SessionID is the 8-byte opaque session token.
type SessionID [8]byte

// CategoryRecord mirrors one entry of a PIXNET frame's category table.
// Field order on the wire is id, name_len, name, behavior_id, priority,
// behavior_data_len, behavior_data (spec.md §4.3) — distinct from the
// PXNT container's category record field order in internal/pxnt.
type CategoryRecord struct {
	ID           uint16
	Name         string
	BehaviorID   uint8
	Priority     uint8
	BehaviorData []byte
}

// Handshake is the PIXHND (client→server) message.
type Handshake struct {
	Version      uint8
	Capabilities uint16
	UserAgent    string
}

// Ack is the PIXACK (server→client) message.
type Ack struct {
	Version    uint8
	SessionID  SessionID
	ServerCaps uint16
}

// Frame is the PIXNET (server→client) message.
type Frame struct {
	FrameType   FrameType
	Sequence    uint32
	TimestampUS uint64
	Flags       uint16
	Version     uint8
	Width       uint16
	Height      uint16
	Format      uint8
	Checksum    uint32

	// PixelData is the plane as it travels on the wire: zlib-compressed
	// when Flags&FlagCompression != 0, raw otherwise.
	PixelData   []byte
	CategoryMap []byte
	Categories  []CategoryRecord
}

// Event is the PIXEVT (client→server) message.
type Event struct {
	SessionID   SessionID
	Sequence    uint32
	ZoneID      uint16
	EventType   uint8
	TimestampUS uint64
	MouseX      uint16
	MouseY      uint16
	Modifiers   uint8
	Name        string
	Payload     []byte
}

// Input is the PIXINP (client→server) message.
type Input struct {
	SessionID  SessionID
	Sequence   uint32
	ZoneID     uint16
	InputType  uint8
	Validation uint8
	Payload    string
}

// Ping is the PIXPNG (client→server) message.
type Ping struct {
	SessionID SessionID
	Timestamp [8]byte
}

// Pong is the PIXPOG (server→client) message.
type Pong struct {
	SessionID SessionID
	Timestamp [8]byte
}

// ErrorMessage is the PIXERR (either direction) message.
type ErrorMessage struct {
	Code    ErrorCode
	Message string
}

// Bye is the PIXBYE (either direction) message.
type Bye struct {
	SessionID SessionID
	Reason    uint8
	ReasonMsg string
}
