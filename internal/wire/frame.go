package wire

import (
	"errors"
	"fmt"
)

// FrameKind tags relay frames.
type FrameKind byte

const (
	FrameData      FrameKind = 0
	FrameMatched   FrameKind = 1
	FrameUnmatched FrameKind = 2
)

var ErrUnknownFrame = errors.New("wire: unknown frame kind")

func (k FrameKind) String() string {
	switch k {
	case FrameData:
		return "data"
	case FrameMatched:
		return "matched"
	case FrameUnmatched:
		return "unmatched"
	default:
		return fmt.Sprintf("frame(%d)", byte(k))
	}
}

// ControlFrame encodes a payload-less frame.
func ControlFrame(kind FrameKind) []byte {
	return []byte{byte(kind)}
}

// DataFrame encodes e behind a data tag.
func DataFrame(e Echo) ([]byte, error) {
	buf := make([]byte, 1, 1+e.Size())
	buf[0] = byte(FrameData)
	return e.AppendBinary(buf)
}

// ParseFrame splits a relay frame into its kind and, for data frames, the message.
func ParseFrame(buf []byte) (FrameKind, Echo, error) {
	if len(buf) == 0 {
		return 0, Echo{}, ErrShortMessage
	}
	kind := FrameKind(buf[0])
	switch kind {
	case FrameMatched, FrameUnmatched:
		return kind, Echo{}, nil
	case FrameData:
		e, err := Decode(buf[1:])
		return kind, e, err
	default:
		return kind, Echo{}, fmt.Errorf("%w: %d", ErrUnknownFrame, buf[0])
	}
}
