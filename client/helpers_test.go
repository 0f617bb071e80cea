package client_test

import (
	"sync"

	"github.com/luma/evnsq/client"
	"github.com/luma/evnsq/protocol"
	"github.com/luma/evnsq/transport"
)

type mockTransport struct {
	connects []string
	handler  transport.Handler
	sent     [][]byte
	closed   int
	sendErr  error

	// calls records Connect and Close in the order they happened
	calls []string
}

func (m *mockTransport) Connect(addr string, h transport.Handler) {
	m.connects = append(m.connects, addr)
	m.handler = h
	m.calls = append(m.calls, "connect")
}

func (m *mockTransport) Send(data []byte) error {
	if m.sendErr != nil {
		return m.sendErr
	}

	m.sent = append(m.sent, data)
	return nil
}

func (m *mockTransport) Close() error {
	m.closed++
	m.calls = append(m.calls, "close")
	return nil
}

func (m *mockTransport) sentStrings() []string {
	out := make([]string, 0, len(m.sent))
	for _, b := range m.sent {
		out = append(out, string(b))
	}

	return out
}

type stateChange struct {
	From client.State
	To   client.State
}

type recordingObserver struct {
	mu         sync.Mutex
	changes    []stateChange
	heartbeats int
	outcomes   []client.Outcome
	errors     []error
}

func (o *recordingObserver) StateChanged(addr string, from client.State, to client.State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.changes = append(o.changes, stateChange{From: from, To: to})
}

func (o *recordingObserver) HeartbeatReceived(addr string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.heartbeats++
}

func (o *recordingObserver) MessageHandled(addr string, msg *protocol.Message, outcome client.Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func (o *recordingObserver) ErrorReceived(addr string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errors = append(o.errors, err)
}

// reconnectingObserver reconnects as soon as it hears the connection
// dropped, at most limit times.
type reconnectingObserver struct {
	recordingObserver

	conn  *client.Conn
	addr  string
	limit int
}

func (o *reconnectingObserver) StateChanged(addr string, from client.State, to client.State) {
	o.recordingObserver.StateChanged(addr, from, to)

	if to == client.StateDisconnected && o.limit > 0 {
		o.limit--
		o.conn.ConnectToNSQD(o.addr)
	}
}

func messageFrame(id protocol.MessageID, attempts uint16, body string) []byte {
	return protocol.AppendFrame(nil, protocol.FrameTypeMessage, protocol.AppendMessage(nil, &protocol.Message{
		ID:        id,
		Timestamp: 1600000000000000000,
		Attempts:  attempts,
		Body:      []byte(body),
	}))
}

func responseFrame(body string) []byte {
	return protocol.AppendFrame(nil, protocol.FrameTypeResponse, []byte(body))
}

func errorFrame(body string) []byte {
	return protocol.AppendFrame(nil, protocol.FrameTypeError, []byte(body))
}

func msgID(s string) protocol.MessageID {
	var id protocol.MessageID
	copy(id[:], s)
	return id
}
