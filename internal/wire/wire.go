// Package wire defines the echo message exchanged by the harness and the responder,
// its binary encoding, and the framing used by the relay transports.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// MaxPayload bounds decoded payloads so a corrupt length cannot trigger a huge allocation.
const MaxPayload = 16 << 20

var (
	ErrShortMessage = errors.New("wire: message too short")
	ErrPayloadSize  = errors.New("wire: payload length mismatch")
)

// Echo is the message sent out and expected back unchanged.
type Echo struct {
	Seq     uint32
	Payload []byte
}

type header struct {
	Seq    uint32
	Length uint32
}

var headerSize = binary.Size(header{})

// NewEcho builds a message with a payload of size bytes filled with a repeating pattern.
func NewEcho(size int) Echo {
	payload := make([]byte, size)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	return Echo{Payload: payload}
}

// Equal reports whether two messages carry the same sequence number and payload bytes.
func (e Echo) Equal(other Echo) bool {
	return e.Seq == other.Seq && bytes.Equal(e.Payload, other.Payload)
}

// Size is the encoded length in bytes.
func (e Echo) Size() int {
	return headerSize + len(e.Payload)
}

// Clone returns a copy that shares no memory with e.
func (e Echo) Clone() Echo {
	return Echo{Seq: e.Seq, Payload: bytes.Clone(e.Payload)}
}

// AppendBinary appends the big-endian encoding of e to dst.
func (e Echo) AppendBinary(dst []byte) ([]byte, error) {
	h := header{Seq: e.Seq, Length: uint32(len(e.Payload))}
	dst, err := binary.Append(dst, binary.BigEndian, &h)
	if err != nil {
		return nil, fmt.Errorf("binary.Append on header: %w", err)
	}
	return append(dst, e.Payload...), nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (e Echo) MarshalBinary() ([]byte, error) {
	return e.AppendBinary(make([]byte, 0, e.Size()))
}

// Decode parses an encoded message. The returned payload is a copy of buf's bytes.
func Decode(buf []byte) (Echo, error) {
	var h header
	n, err := binary.Decode(buf, binary.BigEndian, &h)
	if err != nil {
		return Echo{}, fmt.Errorf("%w: %v", ErrShortMessage, err)
	}
	rest := buf[n:]
	if h.Length > MaxPayload || int(h.Length) != len(rest) {
		return Echo{}, fmt.Errorf("%w: header says %d, have %d", ErrPayloadSize, h.Length, len(rest))
	}
	return Echo{Seq: h.Seq, Payload: bytes.Clone(rest)}, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (e *Echo) UnmarshalBinary(buf []byte) error {
	decoded, err := Decode(buf)
	if err != nil {
		return err
	}
	*e = decoded
	return nil
}
