package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pixnet/pixnetd/internal/wireio"
)

func readFull(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := wireio.ReadExact(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadMagic reads and returns the 6-byte message magic that begins every
// PIXNET-family message. Callers dispatch on the result.
func ReadMagic(r io.Reader) (string, error) {
	buf, err := readFull(r, magicLen)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

func checkMagic(r io.Reader, want string) error {
	got, err := ReadMagic(r)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("%w: got %q, want %q", ErrWrongMagic, got, want)
	}
	return nil
}

// ReadHandshake reads a full PIXHND message including its magic.
func ReadHandshake(r io.Reader) (*Handshake, error) {
	if err := checkMagic(r, MagicHandshake); err != nil {
		return nil, err
	}
	return ReadHandshakeBody(r)
}

// ReadHandshakeBody reads a PIXHND message body (magic already consumed).
func ReadHandshakeBody(r io.Reader) (*Handshake, error) {
	fixed, err := readFull(r, 1+2+1)
	if err != nil {
		return nil, err
	}
	version := fixed[0]
	caps := binary.BigEndian.Uint16(fixed[1:3])
	uaLen := fixed[3]
	ua, err := readFull(r, int(uaLen))
	if err != nil {
		return nil, err
	}
	return &Handshake{Version: version, Capabilities: caps, UserAgent: string(ua)}, nil
}

// ReadAck reads a full PIXACK message including its magic.
func ReadAck(r io.Reader) (*Ack, error) {
	if err := checkMagic(r, MagicAck); err != nil {
		return nil, err
	}
	return ReadAckBody(r)
}

// ReadAckBody reads a PIXACK message body (magic already consumed).
func ReadAckBody(r io.Reader) (*Ack, error) {
	buf, err := readFull(r, 1+8+2)
	if err != nil {
		return nil, err
	}
	a := &Ack{Version: buf[0]}
	copy(a.SessionID[:], buf[1:9])
	a.ServerCaps = binary.BigEndian.Uint16(buf[9:11])
	return a, nil
}

// ReadFrame reads a full PIXNET message including its magic.
func ReadFrame(r io.Reader) (*Frame, error) {
	if err := checkMagic(r, MagicFrame); err != nil {
		return nil, err
	}
	return ReadFrameBody(r)
}

// ReadFrameBody reads a PIXNET message body (magic already consumed).
func ReadFrameBody(r io.Reader) (*Frame, error) {
	header, err := readFull(r, 1+4+8+2+1+2+2+1+4)
	if err != nil {
		return nil, err
	}
	f := &Frame{}
	o := 0
	f.FrameType = FrameType(header[o])
	o++
	f.Sequence = binary.BigEndian.Uint32(header[o : o+4])
	o += 4
	f.TimestampUS = binary.BigEndian.Uint64(header[o : o+8])
	o += 8
	f.Flags = binary.BigEndian.Uint16(header[o : o+2])
	o += 2
	f.Version = header[o]
	o++
	f.Width = binary.BigEndian.Uint16(header[o : o+2])
	o += 2
	f.Height = binary.BigEndian.Uint16(header[o : o+2])
	o += 2
	f.Format = header[o]
	o++
	f.Checksum = binary.BigEndian.Uint32(header[o : o+4])

	pixelPlaneSize := int(f.Width) * int(f.Height) * 4
	if f.Flags&FlagCompression != 0 {
		lenBuf, err := readFull(r, 4)
		if err != nil {
			return nil, err
		}
		pixelPlaneSize = int(binary.BigEndian.Uint32(lenBuf))
	}
	pixelData, err := readFull(r, pixelPlaneSize)
	if err != nil {
		return nil, err
	}
	f.PixelData = pixelData

	catMapSize := int(f.Width) * int(f.Height) * 2
	catMap, err := readFull(r, catMapSize)
	if err != nil {
		return nil, err
	}
	f.CategoryMap = catMap

	cats, err := unmarshalCategoryTable(r)
	if err != nil {
		return nil, err
	}
	f.Categories = cats

	return f, nil
}

func unmarshalCategoryTable(r io.Reader) ([]CategoryRecord, error) {
	countBuf, err := readFull(r, 2)
	if err != nil {
		return nil, err
	}
	count := binary.BigEndian.Uint16(countBuf)
	cats := make([]CategoryRecord, 0, count)
	for i := 0; i < int(count); i++ {
		idBuf, err := readFull(r, 2)
		if err != nil {
			return nil, err
		}
		nameLenBuf, err := readFull(r, 1)
		if err != nil {
			return nil, err
		}
		name, err := readFull(r, int(nameLenBuf[0]))
		if err != nil {
			return nil, err
		}
		behaviorPriority, err := readFull(r, 2)
		if err != nil {
			return nil, err
		}
		dataLenBuf, err := readFull(r, 2)
		if err != nil {
			return nil, err
		}
		dataLen := binary.BigEndian.Uint16(dataLenBuf)
		data, err := readFull(r, int(dataLen))
		if err != nil {
			return nil, err
		}
		cats = append(cats, CategoryRecord{
			ID:           binary.BigEndian.Uint16(idBuf),
			Name:         string(name),
			BehaviorID:   behaviorPriority[0],
			Priority:     behaviorPriority[1],
			BehaviorData: data,
		})
	}
	return cats, nil
}

// ReadEventBody reads a PIXEVT message body (magic already consumed via
// dispatch-by-magic). Field order: fixed body, name_len, payload_len,
// name, payload (spec.md §9, resolving the source's ambiguous order).
func ReadEventBody(r io.Reader) (*Event, error) {
	fixed, err := readFull(r, 8+4+2+1+8+2+2+1)
	if err != nil {
		return nil, err
	}
	e := &Event{}
	o := 0
	copy(e.SessionID[:], fixed[o:o+8])
	o += 8
	e.Sequence = binary.BigEndian.Uint32(fixed[o : o+4])
	o += 4
	e.ZoneID = binary.BigEndian.Uint16(fixed[o : o+2])
	o += 2
	e.EventType = fixed[o]
	o++
	e.TimestampUS = binary.BigEndian.Uint64(fixed[o : o+8])
	o += 8
	e.MouseX = binary.BigEndian.Uint16(fixed[o : o+2])
	o += 2
	e.MouseY = binary.BigEndian.Uint16(fixed[o : o+2])
	o += 2
	e.Modifiers = fixed[o]

	lens, err := readFull(r, 1+2)
	if err != nil {
		return nil, err
	}
	nameLen := lens[0]
	payloadLen := binary.BigEndian.Uint16(lens[1:3])

	name, err := readFull(r, int(nameLen))
	if err != nil {
		return nil, err
	}
	e.Name = string(name)

	payload, err := readFull(r, int(payloadLen))
	if err != nil {
		return nil, err
	}
	e.Payload = payload

	return e, nil
}

// ReadInputBody reads a PIXINP message body (magic already consumed).
func ReadInputBody(r io.Reader) (*Input, error) {
	fixed, err := readFull(r, 8+4+2+1+1+2)
	if err != nil {
		return nil, err
	}
	i := &Input{}
	o := 0
	copy(i.SessionID[:], fixed[o:o+8])
	o += 8
	i.Sequence = binary.BigEndian.Uint32(fixed[o : o+4])
	o += 4
	i.ZoneID = binary.BigEndian.Uint16(fixed[o : o+2])
	o += 2
	i.InputType = fixed[o]
	o++
	i.Validation = fixed[o]
	o++
	payloadLen := binary.BigEndian.Uint16(fixed[o : o+2])

	payload, err := readFull(r, int(payloadLen))
	if err != nil {
		return nil, err
	}
	i.Payload = string(payload)
	return i, nil
}

// ReadPingBody reads a PIXPNG message body (magic already consumed).
func ReadPingBody(r io.Reader) (*Ping, error) {
	buf, err := readFull(r, 8+8)
	if err != nil {
		return nil, err
	}
	p := &Ping{}
	copy(p.SessionID[:], buf[0:8])
	copy(p.Timestamp[:], buf[8:16])
	return p, nil
}

// ReadPong reads a full PIXPOG message including its magic.
func ReadPong(r io.Reader) (*Pong, error) {
	if err := checkMagic(r, MagicPong); err != nil {
		return nil, err
	}
	return ReadPongBody(r)
}

// ReadPongBody reads a PIXPOG message body (magic already consumed).
func ReadPongBody(r io.Reader) (*Pong, error) {
	buf, err := readFull(r, 8+8)
	if err != nil {
		return nil, err
	}
	p := &Pong{}
	copy(p.SessionID[:], buf[0:8])
	copy(p.Timestamp[:], buf[8:16])
	return p, nil
}

// ReadError reads a full PIXERR message including its magic.
func ReadError(r io.Reader) (*ErrorMessage, error) {
	if err := checkMagic(r, MagicError); err != nil {
		return nil, err
	}
	return ReadErrorBody(r)
}

// ReadErrorBody reads a PIXERR message body (magic already consumed).
func ReadErrorBody(r io.Reader) (*ErrorMessage, error) {
	fixed, err := readFull(r, 2+2)
	if err != nil {
		return nil, err
	}
	code := ErrorCode(binary.BigEndian.Uint16(fixed[0:2]))
	msgLen := binary.BigEndian.Uint16(fixed[2:4])
	msg, err := readFull(r, int(msgLen))
	if err != nil {
		return nil, err
	}
	return &ErrorMessage{Code: code, Message: string(msg)}, nil
}

// ReadByeBody reads a PIXBYE message body (magic already consumed).
func ReadByeBody(r io.Reader) (*Bye, error) {
	fixed, err := readFull(r, 8+1+1)
	if err != nil {
		return nil, err
	}
	b := &Bye{}
	copy(b.SessionID[:], fixed[0:8])
	b.Reason = fixed[8]
	reasonLen := fixed[9]
	reason, err := readFull(r, int(reasonLen))
	if err != nil {
		return nil, err
	}
	b.ReasonMsg = string(reason)
	return b, nil
}
