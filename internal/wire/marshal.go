package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

func putU16(b []byte, v uint16) { binary.BigEndian.PutUint16(b, v) }
func putU32(b []byte, v uint32) { binary.BigEndian.PutUint32(b, v) }
func putU64(b []byte, v uint64) { binary.BigEndian.PutUint64(b, v) }

// MarshalHandshake serializes a PIXHND message.
func MarshalHandshake(h *Handshake) ([]byte, error) {
	if len(h.UserAgent) > 255 {
		return nil, fmt.Errorf("%w: user agent", ErrFieldTooLarge)
	}
	buf := make([]byte, magicLen+1+2+1+len(h.UserAgent))
	copy(buf, MagicHandshake)
	buf[6] = h.Version
	putU16(buf[7:9], h.Capabilities)
	buf[9] = uint8(len(h.UserAgent))
	copy(buf[10:], h.UserAgent)
	return buf, nil
}

// MarshalAck serializes a PIXACK message.
func MarshalAck(a *Ack) []byte {
	buf := make([]byte, magicLen+1+8+2)
	copy(buf, MagicAck)
	buf[6] = a.Version
	copy(buf[7:15], a.SessionID[:])
	putU16(buf[15:17], a.ServerCaps)
	return buf
}

// MarshalFrame serializes a PIXNET message: the 31-byte fixed header
// followed by pixel plane, category map, and category table. When
// Flags&FlagCompression is set, the pixel plane is preceded by its u32
// byte length per the canonical framing resolved in spec.md §9.
func MarshalFrame(f *Frame) ([]byte, error) {
	var body bytes.Buffer

	header := make([]byte, magicLen+1+4+8+2+1+2+2+1+4)
	copy(header, MagicFrame)
	o := magicLen
	header[o] = uint8(f.FrameType)
	o++
	putU32(header[o:o+4], f.Sequence)
	o += 4
	putU64(header[o:o+8], f.TimestampUS)
	o += 8
	putU16(header[o:o+2], f.Flags)
	o += 2
	header[o] = f.Version
	o++
	putU16(header[o:o+2], f.Width)
	o += 2
	putU16(header[o:o+2], f.Height)
	o += 2
	header[o] = f.Format
	o++
	putU32(header[o:o+4], f.Checksum)
	body.Write(header)

	if f.Flags&FlagCompression != 0 {
		var lenBuf [4]byte
		putU32(lenBuf[:], uint32(len(f.PixelData)))
		body.Write(lenBuf[:])
	}
	body.Write(f.PixelData)
	body.Write(f.CategoryMap)

	catTable, err := marshalCategoryTable(f.Categories)
	if err != nil {
		return nil, err
	}
	body.Write(catTable)

	return body.Bytes(), nil
}

func marshalCategoryTable(cats []CategoryRecord) ([]byte, error) {
	var buf bytes.Buffer
	var countBuf [2]byte
	putU16(countBuf[:], uint16(len(cats)))
	buf.Write(countBuf[:])
	for _, c := range cats {
		if len(c.Name) > 255 {
			return nil, fmt.Errorf("%w: category name", ErrFieldTooLarge)
		}
		if len(c.BehaviorData) > 65535 {
			return nil, fmt.Errorf("%w: behavior data", ErrFieldTooLarge)
		}
		var idBuf [2]byte
		putU16(idBuf[:], c.ID)
		buf.Write(idBuf[:])
		buf.WriteByte(uint8(len(c.Name)))
		buf.WriteString(c.Name)
		buf.WriteByte(c.BehaviorID)
		buf.WriteByte(c.Priority)
		var dataLenBuf [2]byte
		putU16(dataLenBuf[:], uint16(len(c.BehaviorData)))
		buf.Write(dataLenBuf[:])
		buf.Write(c.BehaviorData)
	}
	return buf.Bytes(), nil
}

// MarshalEvent serializes a PIXEVT message.
func MarshalEvent(e *Event) ([]byte, error) {
	if len(e.Name) > 255 {
		return nil, fmt.Errorf("%w: event name", ErrFieldTooLarge)
	}
	if len(e.Payload) > 65535 {
		return nil, fmt.Errorf("%w: event payload", ErrFieldTooLarge)
	}
	fixed := make([]byte, magicLen+8+4+2+1+8+2+2+1)
	copy(fixed, MagicEvent)
	o := magicLen
	copy(fixed[o:o+8], e.SessionID[:])
	o += 8
	putU32(fixed[o:o+4], e.Sequence)
	o += 4
	putU16(fixed[o:o+2], e.ZoneID)
	o += 2
	fixed[o] = e.EventType
	o++
	putU64(fixed[o:o+8], e.TimestampUS)
	o += 8
	putU16(fixed[o:o+2], e.MouseX)
	o += 2
	putU16(fixed[o:o+2], e.MouseY)
	o += 2
	fixed[o] = e.Modifiers

	var tail bytes.Buffer
	tail.WriteByte(uint8(len(e.Name)))
	var payloadLenBuf [2]byte
	putU16(payloadLenBuf[:], uint16(len(e.Payload)))
	tail.Write(payloadLenBuf[:])
	tail.WriteString(e.Name)
	tail.Write(e.Payload)

	return append(fixed, tail.Bytes()...), nil
}

// MarshalInput serializes a PIXINP message.
func MarshalInput(i *Input) ([]byte, error) {
	if len(i.Payload) > 65535 {
		return nil, fmt.Errorf("%w: input payload", ErrFieldTooLarge)
	}
	buf := make([]byte, magicLen+8+4+2+1+1+2+len(i.Payload))
	copy(buf, MagicInput)
	o := magicLen
	copy(buf[o:o+8], i.SessionID[:])
	o += 8
	putU32(buf[o:o+4], i.Sequence)
	o += 4
	putU16(buf[o:o+2], i.ZoneID)
	o += 2
	buf[o] = i.InputType
	o++
	buf[o] = i.Validation
	o++
	putU16(buf[o:o+2], uint16(len(i.Payload)))
	o += 2
	copy(buf[o:], i.Payload)
	return buf, nil
}

// MarshalPing serializes a PIXPNG message.
func MarshalPing(p *Ping) []byte {
	buf := make([]byte, magicLen+8+8)
	copy(buf, MagicPing)
	copy(buf[magicLen:magicLen+8], p.SessionID[:])
	copy(buf[magicLen+8:], p.Timestamp[:])
	return buf
}

// MarshalPong serializes a PIXPOG message.
func MarshalPong(p *Pong) []byte {
	buf := make([]byte, magicLen+8+8)
	copy(buf, MagicPong)
	copy(buf[magicLen:magicLen+8], p.SessionID[:])
	copy(buf[magicLen+8:], p.Timestamp[:])
	return buf
}

// MarshalError serializes a PIXERR message.
func MarshalError(e *ErrorMessage) ([]byte, error) {
	if len(e.Message) > 65535 {
		return nil, fmt.Errorf("%w: error message", ErrFieldTooLarge)
	}
	buf := make([]byte, magicLen+2+2+len(e.Message))
	copy(buf, MagicError)
	o := magicLen
	putU16(buf[o:o+2], uint16(e.Code))
	o += 2
	putU16(buf[o:o+2], uint16(len(e.Message)))
	o += 2
	copy(buf[o:], e.Message)
	return buf, nil
}

// MarshalBye serializes a PIXBYE message.
func MarshalBye(b *Bye) ([]byte, error) {
	if len(b.ReasonMsg) > 255 {
		return nil, fmt.Errorf("%w: bye reason", ErrFieldTooLarge)
	}
	buf := make([]byte, magicLen+8+1+1+len(b.ReasonMsg))
	copy(buf, MagicBye)
	o := magicLen
	copy(buf[o:o+8], b.SessionID[:])
	o += 8
	buf[o] = b.Reason
	o++
	buf[o] = uint8(len(b.ReasonMsg))
	o++
	copy(buf[o:], b.ReasonMsg)
	return buf, nil
}
