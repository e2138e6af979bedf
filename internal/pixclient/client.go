// Package pixclient implements the client side of the PIXNET protocol:
// connecting and completing the handshake, receiving frames, emitting
// input/navigation events, and resolving pointer clicks against a frame's
// category map.
package pixclient

import (
	"fmt"
	"net"
	"time"

	"github.com/pixnet/pixnetd/internal/wire"
)

// Client is a connected PIXNET session from the viewer's side.
type Client struct {
	conn      net.Conn
	sessionID wire.SessionID
	sequence  uint32

	Frames chan *wire.Frame
	Errors chan error
}

// Connect dials addr, performs the PIXHND/PIXACK handshake, and starts the
// background receive loop that publishes frames on Frames.
func Connect(addr, userAgent string, dialTimeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("pixclient: dial %s: %w", addr, err)
	}

	hsBuf, err := wire.MarshalHandshake(&wire.Handshake{
		Version:      wire.ProtocolVersion,
		Capabilities: 0,
		UserAgent:    userAgent,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("pixclient: marshal handshake: %w", err)
	}
	if _, err := conn.Write(hsBuf); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pixclient: send handshake: %w", err)
	}

	ack, err := wire.ReadAck(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("pixclient: read ack: %w", err)
	}

	c := &Client{
		conn:      conn,
		sessionID: ack.SessionID,
		Frames:    make(chan *wire.Frame, 4),
		Errors:    make(chan error, 1),
	}
	go c.receiveLoop()
	return c, nil
}

func (c *Client) receiveLoop() {
	defer close(c.Frames)
	for {
		magic, err := wire.ReadMagic(c.conn)
		if err != nil {
			c.Errors <- err
			return
		}
		switch magic {
		case wire.MagicFrame:
			frame, err := wire.ReadFrameBody(c.conn)
			if err != nil {
				c.Errors <- err
				return
			}
			if verr := wire.VerifyChecksum(frame); verr != nil {
				c.Errors <- verr
				continue
			}
			c.Frames <- frame
		case wire.MagicPong:
			if _, err := wire.ReadPongBody(c.conn); err != nil {
				c.Errors <- err
				return
			}
		case wire.MagicError:
			errMsg, err := wire.ReadErrorBody(c.conn)
			if err != nil {
				c.Errors <- err
				return
			}
			c.Errors <- fmt.Errorf("pixclient: server error %d: %s", errMsg.Code, errMsg.Message)
		case wire.MagicBye:
			if _, err := wire.ReadByeBody(c.conn); err != nil {
				c.Errors <- err
			}
			return
		default:
			c.Errors <- fmt.Errorf("pixclient: unexpected message %q", magic)
			return
		}
	}
}

// SendEvent emits a PIXEVT for zoneID with the given event type, pointer
// position, and application payload.
func (c *Client) SendEvent(zoneID uint16, eventType uint8, name string, mouseX, mouseY uint16, payload []byte) error {
	c.sequence++
	buf, err := wire.MarshalEvent(&wire.Event{
		SessionID:   c.sessionID,
		Sequence:    c.sequence,
		ZoneID:      zoneID,
		EventType:   eventType,
		TimestampUS: uint64(time.Now().UnixMicro()),
		MouseX:      mouseX,
		MouseY:      mouseY,
		Name:        name,
		Payload:     payload,
	})
	if err != nil {
		return fmt.Errorf("pixclient: marshal event: %w", err)
	}
	_, err = c.conn.Write(buf)
	return err
}

// SendInput emits a PIXINP carrying a captured input field's value.
func (c *Client) SendInput(zoneID uint16, inputType, validation uint8, payload string) error {
	c.sequence++
	buf, err := wire.MarshalInput(&wire.Input{
		SessionID:  c.sessionID,
		Sequence:   c.sequence,
		ZoneID:     zoneID,
		InputType:  inputType,
		Validation: validation,
		Payload:    payload,
	})
	if err != nil {
		return fmt.Errorf("pixclient: marshal input: %w", err)
	}
	_, err = c.conn.Write(buf)
	return err
}

// Ping sends a PIXPNG carrying the current time in microseconds. The
// receive loop reads the matching PIXPOG and discards it; nothing is
// published on Frames or Errors for it.
func (c *Client) Ping() error {
	var ts [8]byte
	now := time.Now().UnixMicro()
	for i := 0; i < 8; i++ {
		ts[i] = byte(now >> (56 - 8*i))
	}
	buf := wire.MarshalPing(&wire.Ping{SessionID: c.sessionID, Timestamp: ts})
	_, err := c.conn.Write(buf)
	return err
}

// Disconnect sends PIXBYE and closes the connection.
func (c *Client) Disconnect(reason uint8, reasonMsg string) error {
	buf, err := wire.MarshalBye(&wire.Bye{SessionID: c.sessionID, Reason: reason, ReasonMsg: reasonMsg})
	if err == nil {
		c.conn.Write(buf)
	}
	return c.conn.Close()
}
