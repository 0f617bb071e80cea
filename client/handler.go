package client

import (
	"github.com/luma/evnsq/protocol"
	"github.com/luma/evnsq/transport"
)

// Outcome is what a Handler decided to do with a message.
type Outcome int

const (
	// OutcomeSuccess finishes the message
	OutcomeSuccess Outcome = 0

	// OutcomeRequeue, or any other non zero outcome, requeues the message
	OutcomeRequeue Outcome = 1
)

func (o Outcome) String() string {
	if o == OutcomeSuccess {
		return "finish"
	}

	return "requeue"
}

// Handler is called with every message received on a connection.
//
// It runs on the connection's event goroutine. While it runs nothing else
// on the connection is processed, heartbeats included, so it needs to return
// promptly. See BoundedHandler.
type Handler interface {
	HandleMessage(msg *protocol.Message) Outcome
}

type HandlerFunc func(msg *protocol.Message) Outcome

func (f HandlerFunc) HandleMessage(msg *protocol.Message) Outcome {
	return f(msg)
}

type ErrorHandler func(err error)

type ResponseHandler func(body []byte)

// Transport is how a Conn reaches nsqd.
type Transport interface {
	// Connect begins connecting to addr. Results are reported to h.
	Connect(addr string, h transport.Handler)

	// Send queues data to be written. No acknowledgement is implied.
	Send(data []byte) error

	Close() error
}

// Observer is told about everything interesting a connection does. Calls
// come from the transport's goroutine or from whichever goroutine called
// Close, so implementations must be safe for concurrent use. A connection
// has finished tearing down by the time it reports StateDisconnected, so
// calling ConnectToNSQD from StateChanged is fine.
type Observer interface {
	StateChanged(addr string, from State, to State)
	HeartbeatReceived(addr string)
	MessageHandled(addr string, msg *protocol.Message, outcome Outcome)
	ErrorReceived(addr string, err error)
}

type NopObserver struct{}

func (NopObserver) StateChanged(string, State, State) {}
func (NopObserver) HeartbeatReceived(string) {}
func (NopObserver) MessageHandled(string, *protocol.Message, Outcome) {}
func (NopObserver) ErrorReceived(string, error) {}

var _ Observer = NopObserver{}
var _ Transport = (*transport.TCP)(nil)
