package client_test

import (
	"bufio"
	"encoding/binary"
	"io"
	"net"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/luma/evnsq/client"
	"github.com/luma/evnsq/protocol"
	"github.com/luma/evnsq/transport"
)

// fakeNSQD accepts one connection and lets the test play nsqd's part.
type fakeNSQD struct {
	listener net.Listener
	conn     net.Conn
	r        *bufio.Reader

	accepted []net.Conn
}

func newFakeNSQD() *fakeNSQD {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).To(Succeed())

	return &fakeNSQD{listener: listener}
}

func (f *fakeNSQD) Addr() string {
	return f.listener.Addr().String()
}

func (f *fakeNSQD) Accept() {
	conn, err := f.listener.Accept()
	Expect(err).To(Succeed())
	Expect(conn.SetDeadline(time.Now().Add(10 * time.Second))).To(Succeed())

	f.conn = conn
	f.r = bufio.NewReader(conn)
	f.accepted = append(f.accepted, conn)
}

// ReadIdentify reads everything a client sends before nsqd's first reply.
func (f *fakeNSQD) ReadIdentify() {
	Expect(f.ReadMagic()).To(Equal("  V2"))
	Expect(f.ReadLine()).To(Equal("IDENTIFY\n"))
	f.ReadBody()
}

func (f *fakeNSQD) ReadMagic() string {
	magic := make([]byte, 4)
	_, err := io.ReadFull(f.r, magic)
	Expect(err).To(Succeed())
	return string(magic)
}

func (f *fakeNSQD) ReadLine() string {
	line, err := f.r.ReadString('\n')
	Expect(err).To(Succeed())
	return line
}

func (f *fakeNSQD) ReadBody() []byte {
	var size uint32
	Expect(binary.Read(f.r, binary.BigEndian, &size)).To(Succeed())

	body := make([]byte, size)
	_, err := io.ReadFull(f.r, body)
	Expect(err).To(Succeed())
	return body
}

func (f *fakeNSQD) Write(data []byte) {
	_, err := f.conn.Write(data)
	Expect(err).To(Succeed())
}

func (f *fakeNSQD) Close() {
	for _, conn := range f.accepted {
		conn.Close()
	}

	f.listener.Close()
}

// delayedReconnect reconnects from a timer goroutine the first time the
// connection drops.
type delayedReconnect struct {
	client.NopObserver

	conn  *client.Conn
	addr  string
	delay time.Duration
	fired atomic.Bool
}

func (o *delayedReconnect) StateChanged(addr string, from client.State, to client.State) {
	if to != client.StateDisconnected || !o.fired.CompareAndSwap(false, true) {
		return
	}

	time.AfterFunc(o.delay, func() {
		o.conn.ConnectToNSQD(o.addr)
	})
}

var _ = Describe("Conn over TCP", func() {
	It("identifies, answers heartbeats and finishes messages", func() {
		nsqd := newFakeNSQD()
		defer nsqd.Close()

		log, err := zap.NewDevelopment()
		Expect(err).To(Succeed())

		messages := make(chan *protocol.Message, 1)

		conn, err := client.New(client.Options{
			Identify: client.IdentifyOptions{ClientID: "tcp-test", HeartbeatInterval: time.Second},
			Transport: transport.NewTCP(transport.Options{
				DialTimeout: time.Second,
				Log:         log.Named("transport"),
			}),
			Handler: client.HandlerFunc(func(msg *protocol.Message) client.Outcome {
				messages <- msg
				return client.OutcomeSuccess
			}),
			Log: log,
		})
		Expect(err).To(Succeed())
		defer conn.Close()

		conn.ConnectToNSQD(nsqd.Addr())
		nsqd.Accept()

		Expect(nsqd.ReadMagic()).To(Equal("  V2"))
		Expect(nsqd.ReadLine()).To(Equal("IDENTIFY\n"))
		Expect(string(nsqd.ReadBody())).To(ContainSubstring(`"client_id":"tcp-test"`))
		Eventually(conn.State).Should(Equal(client.StateIdentifying))

		nsqd.Write(responseFrame("OK"))
		Eventually(conn.State).Should(Equal(client.StateConnected))

		nsqd.Write(responseFrame("_heartbeat_"))
		Expect(nsqd.ReadLine()).To(Equal("NOP\n"))

		// Split the message across two writes
		frame := messageFrame(msgID("0123456789abcdef"), 1, "hi")
		nsqd.Write(frame[:7])
		time.Sleep(10 * time.Millisecond)
		nsqd.Write(frame[7:])

		var msg *protocol.Message
		Eventually(messages, 5*time.Second).Should(Receive(&msg))
		Expect(msg.Body).To(Equal([]byte("hi")))
		Expect(nsqd.ReadLine()).To(Equal("FIN 0123456789abcdef\n"))

		nsqd.conn.Close()
		Eventually(conn.State, 5*time.Second).Should(Equal(client.StateDisconnected))
	})

	It("reconnects from another goroutine after nsqd rejects IDENTIFY", func() {
		nsqd := newFakeNSQD()
		defer nsqd.Close()

		observer := &delayedReconnect{addr: nsqd.Addr(), delay: time.Millisecond}

		conn, err := client.New(client.Options{
			Transport: transport.NewTCP(transport.Options{DialTimeout: time.Second}),
			Observer:  observer,
		})
		Expect(err).To(Succeed())
		defer conn.Close()
		observer.conn = conn

		conn.ConnectToNSQD(nsqd.Addr())
		nsqd.Accept()
		nsqd.ReadIdentify()

		// The rejection arrives with more frames in the same read, which the
		// old session is still working through when the reconnect starts
		rejected := errorFrame("E_BAD_BODY IDENTIFY failed to decode JSON body")
		for i := 0; i < 16; i++ {
			rejected = append(rejected, responseFrame("_heartbeat_")...)
		}
		nsqd.Write(rejected)

		nsqd.Accept()
		nsqd.ReadIdentify()
		nsqd.Write(responseFrame("OK"))

		Eventually(conn.State, 5*time.Second).Should(Equal(client.StateConnected))

		nsqd.Write(responseFrame("_heartbeat_"))
		Expect(nsqd.ReadLine()).To(Equal("NOP\n"))
	})

	It("is disconnected when nsqd isn't there", func() {
		nsqd := newFakeNSQD()
		addr := nsqd.Addr()
		nsqd.Close()

		conn, err := client.New(client.Options{
			Transport: transport.NewTCP(transport.Options{DialTimeout: time.Second}),
		})
		Expect(err).To(Succeed())

		conn.ConnectToNSQD(addr)
		Eventually(conn.State, 5*time.Second).Should(Equal(client.StateDisconnected))
	})
})
