package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"time"
)

var (
	PrefixIdentify   = []byte("IDENTIFY")
	PrefixFinish     = []byte("FIN")
	PrefixRequeue    = []byte("REQ")
	PrefixTouch      = []byte("TOUCH")
	PrefixNop        = []byte("NOP")
	PrefixReady      = []byte("RDY")
	PrefixSubscribe  = []byte("SUB")
	PrefixPublish    = []byte("PUB")
	PrefixMPublish   = []byte("MPUB")
	PrefixStartClose = []byte("CLS")

	Terminal = []byte("\n")
	Space    = []byte(" ")
)

// Command is a single instruction to nsqd.
//
// Body is nil for commands that don't carry one. A non-nil, empty Body is
// still written with a zero size prefix.
type Command struct {
	Name   []byte
	Params [][]byte
	Body   []byte
}

func (c *Command) String() string {
	if len(c.Params) > 0 {
		return fmt.Sprintf("%s %s", c.Name, string(bytes.Join(c.Params, Space)))
	}

	return string(c.Name)
}

// WriteTo serialises the command into w.
func (c *Command) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(c.Bytes())
	return int64(n), err
}

// Bytes returns the wire representation of the command.
func (c *Command) Bytes() []byte {
	size := len(c.Name) + 1
	for _, p := range c.Params {
		size += len(p) + 1
	}

	if c.Body != nil {
		size += 4 + len(c.Body)
	}

	b := make([]byte, 0, size)
	b = append(b, c.Name...)

	for _, p := range c.Params {
		b = append(b, ' ')
		b = append(b, p...)
	}

	b = append(b, '\n')

	if c.Body != nil {
		var l [4]byte
		binary.BigEndian.PutUint32(l[:], uint32(len(c.Body)))
		b = append(b, l[:]...)
		b = append(b, c.Body...)
	}

	return b
}

// Identify creates an IDENTIFY command, body is the JSON encoded client
// configuration.
func Identify(body []byte) *Command {
	return &Command{Name: PrefixIdentify, Body: nonNil(body)}
}

// Finish tells nsqd the message was successfully handled.
func Finish(id MessageID) *Command {
	return &Command{Name: PrefixFinish, Params: [][]byte{id[:]}}
}

// Requeue asks nsqd to redeliver the message after delay. The delay is sent
// in whole milliseconds, zero requeues immediately.
func Requeue(id MessageID, delay time.Duration) *Command {
	ms := strconv.FormatInt(int64(delay/time.Millisecond), 10)
	return &Command{Name: PrefixRequeue, Params: [][]byte{id[:], []byte(ms)}}
}

// Touch resets the server side timeout of an in-flight message.
func Touch(id MessageID) *Command {
	return &Command{Name: PrefixTouch, Params: [][]byte{id[:]}}
}

// Nop is the reply to a heartbeat.
func Nop() *Command {
	return &Command{Name: PrefixNop}
}

// Ready updates how many messages nsqd may have in flight to us.
func Ready(count int) *Command {
	return &Command{Name: PrefixReady, Params: [][]byte{[]byte(strconv.Itoa(count))}}
}

func Subscribe(topic string, channel string) *Command {
	return &Command{Name: PrefixSubscribe, Params: [][]byte{[]byte(topic), []byte(channel)}}
}

func Publish(topic string, body []byte) *Command {
	return &Command{Name: PrefixPublish, Params: [][]byte{[]byte(topic)}, Body: nonNil(body)}
}

// MultiPublish publishes several messages to topic in one command.
func MultiPublish(topic string, bodies [][]byte) *Command {
	size := 4
	for _, b := range bodies {
		size += 4 + len(b)
	}

	body := make([]byte, 4, size)
	binary.BigEndian.PutUint32(body, uint32(len(bodies)))

	for _, b := range bodies {
		var l [4]byte
		binary.BigEndian.PutUint32(l[:], uint32(len(b)))
		body = append(body, l[:]...)
		body = append(body, b...)
	}

	return &Command{Name: PrefixMPublish, Params: [][]byte{[]byte(topic)}, Body: body}
}

// StartClose tells nsqd we're going away. It stops sending messages and
// replies CLOSE_WAIT.
func StartClose() *Command {
	return &Command{Name: PrefixStartClose}
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}

	return b
}
