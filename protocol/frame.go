package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

type FrameType int32

const (
	FrameTypeResponse FrameType = 0
	FrameTypeError    FrameType = 1
	FrameTypeMessage  FrameType = 2
)

func (t FrameType) String() string {
	switch t {
	case FrameTypeResponse:
		return "response"
	case FrameTypeError:
		return "error"
	case FrameTypeMessage:
		return "message"
	default:
		return fmt.Sprintf("unknown(%d)", int32(t))
	}
}

// Known returns true for the frame types nsqd is documented to send.
func (t FrameType) Known() bool {
	return t == FrameTypeResponse || t == FrameTypeError || t == FrameTypeMessage
}

const (
	// SizeLen is the width of the size prefix in front of every frame
	SizeLen = 4

	// FrameTypeLen is the width of the frame type that starts every frame body
	FrameTypeLen = 4

	// DefaultMaxFrameSize bounds the size prefix we are willing to buffer for.
	// nsqd's default --max-msg-size is 1MiB, the extra covers the message header.
	DefaultMaxFrameSize = 1024*1024 + 1024
)

var (
	ErrNeedMore         = errors.New("Not enough data buffered to decode a frame")
	ErrInvalidFrameSize = errors.New("Frame is malformed, its size is too small to hold a frame type")
	ErrFrameTooLarge    = errors.New("Frame is larger than the maximum frame size")
	ErrUnknownFrameType = errors.New("Unknown frame type")

	MagicV2 = []byte("  V2")

	// Response bodies with special meaning
	ResponseOK        = []byte("OK")
	ResponseHeartbeat = []byte("_heartbeat_")
	ResponseCloseWait = []byte("CLOSE_WAIT")
)

type Frame struct {
	Type FrameType

	// Body aliases the buffer it was decoded from. It is only valid until the
	// bytes of the frame are consumed.
	Body []byte
}

// IsHeartbeat returns true if the frame is nsqd asking us to prove we're alive.
func (f Frame) IsHeartbeat() bool {
	return f.Type == FrameTypeResponse && bytes.Equal(f.Body, ResponseHeartbeat)
}

// IsOK returns true if the frame is the literal OK response.
func (f Frame) IsOK() bool {
	return f.Type == FrameTypeResponse && bytes.Equal(f.Body, ResponseOK)
}

// DecodeFrame attempts to decode a single frame from the start of data.
//
// It returns the frame and the number of bytes the caller must consume
// before decoding the next one. When data does not yet hold a complete
// frame it returns ErrNeedMore and consumes nothing, the size prefix
// included.
func DecodeFrame(data []byte, maxSize int) (Frame, int, error) {
	if len(data) < SizeLen {
		return Frame{}, 0, ErrNeedMore
	}

	size := int32(binary.BigEndian.Uint32(data))
	if size < FrameTypeLen {
		return Frame{}, 0, fmt.Errorf("Failed to decode frame of size %d: %w", size, ErrInvalidFrameSize)
	}

	if maxSize > 0 && int64(size) > int64(maxSize) {
		return Frame{}, 0, fmt.Errorf("Failed to decode frame of size %d (max %d): %w", size, maxSize, ErrFrameTooLarge)
	}

	total := SizeLen + int(size)
	if len(data) < total {
		return Frame{}, 0, ErrNeedMore
	}

	frame := Frame{
		Type: FrameType(int32(binary.BigEndian.Uint32(data[SizeLen:]))),
		Body: data[SizeLen+FrameTypeLen : total],
	}

	return frame, total, nil
}

// AppendFrame appends the wire representation of a frame to dst. nsqd is the
// only real producer of frames, this exists for fakes and tests.
func AppendFrame(dst []byte, t FrameType, body []byte) []byte {
	var header [SizeLen + FrameTypeLen]byte
	binary.BigEndian.PutUint32(header[:SizeLen], uint32(FrameTypeLen+len(body)))
	binary.BigEndian.PutUint32(header[SizeLen:], uint32(t))

	dst = append(dst, header[:]...)
	return append(dst, body...)
}
