package protocol

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

const (
	MsgIDLength = 16

	// timestamp + attempts + id
	MsgHeaderLength = 8 + 2 + MsgIDLength
)

var ErrMessageTooShort = errors.New("Message is malformed, it is too short to hold the message header")

// MessageID is the opaque identifier nsqd assigns to each delivery. It is
// sent back verbatim in FIN, REQ and TOUCH.
type MessageID [MsgIDLength]byte

func (id MessageID) String() string {
	return string(id[:])
}

// Hex is useful for logging ids that aren't printable.
func (id MessageID) Hex() string {
	return hex.EncodeToString(id[:])
}

type Message struct {
	ID        MessageID
	Timestamp int64
	Attempts  uint16
	Body      []byte
}

// Time returns the time nsqd accepted the message.
func (m *Message) Time() time.Time {
	return time.Unix(0, m.Timestamp)
}

// DecodeMessage parses the body of a message frame. The message body is
// copied, the returned message does not alias data.
func DecodeMessage(data []byte) (*Message, error) {
	if len(data) < MsgHeaderLength {
		return nil, fmt.Errorf("Failed to decode message of %d bytes: %w", len(data), ErrMessageTooShort)
	}

	msg := &Message{
		Timestamp: int64(binary.BigEndian.Uint64(data[:8])),
		Attempts:  binary.BigEndian.Uint16(data[8:10]),
	}

	copy(msg.ID[:], data[10:MsgHeaderLength])

	msg.Body = make([]byte, len(data)-MsgHeaderLength)
	copy(msg.Body, data[MsgHeaderLength:])

	return msg, nil
}

// AppendMessage appends the wire representation of a message body to dst,
// the inverse of DecodeMessage.
func AppendMessage(dst []byte, msg *Message) []byte {
	var header [MsgHeaderLength]byte
	binary.BigEndian.PutUint64(header[:8], uint64(msg.Timestamp))
	binary.BigEndian.PutUint16(header[8:10], msg.Attempts)
	copy(header[10:], msg.ID[:])

	dst = append(dst, header[:]...)
	return append(dst, msg.Body...)
}

// ServerError is an error frame sent by nsqd. The payload is kept as is.
type ServerError struct {
	Payload []byte
}

func NewServerError(body []byte) *ServerError {
	payload := make([]byte, len(body))
	copy(payload, body)

	return &ServerError{Payload: payload}
}

func (e *ServerError) Error() string {
	return string(e.Payload)
}

// Code returns the leading E_* code of the error, e.g. E_INVALID.
func (e *ServerError) Code() string {
	for i, c := range e.Payload {
		if c == ' ' {
			return string(e.Payload[:i])
		}
	}

	return string(e.Payload)
}
