package transport_test

import (
	"io"
	"net"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/luma/evnsq/transport"
)

type recordingHandler struct {
	connected    chan struct{}
	data         chan []byte
	disconnected chan error
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		connected:    make(chan struct{}, 1),
		data:         make(chan []byte, 64),
		disconnected: make(chan error, 1),
	}
}

func (h *recordingHandler) OnConnected() {
	h.connected <- struct{}{}
}

func (h *recordingHandler) OnData(p []byte) {
	h.data <- p
}

func (h *recordingHandler) OnDisconnected(err error) {
	h.disconnected <- err
}

var _ = Describe("transport", func() {
	Describe("TCP", func() {
		var (
			listener net.Listener
			tcp      *transport.TCP
		)

		BeforeEach(func() {
			var err error
			listener, err = net.Listen("tcp", "127.0.0.1:0")
			Expect(err).To(Succeed())

			log, err := zap.NewDevelopment()
			Expect(err).To(Succeed())

			tcp = transport.NewTCP(transport.Options{
				DialTimeout: time.Second,
				Trace:       true,
				Log:         log,
			})
		})

		AfterEach(func() {
			Expect(tcp.Close()).To(Succeed())
			listener.Close()
		})

		accept := func() net.Conn {
			conns := make(chan net.Conn, 1)

			go func() {
				defer GinkgoRecover()

				conn, err := listener.Accept()
				Expect(err).To(Succeed())
				conns <- conn
			}()

			var conn net.Conn
			Eventually(conns, 5*time.Second).Should(Receive(&conn))
			return conn
		}

		It("reports a failed connection as a disconnect", func() {
			addr := listener.Addr().String()
			listener.Close()

			h := newRecordingHandler()
			tcp.Connect(addr, h)

			Eventually(h.disconnected, 5*time.Second).Should(Receive(HaveOccurred()))
			Consistently(h.connected).ShouldNot(Receive())
		})

		It("refuses to send before connecting", func() {
			Expect(tcp.Send([]byte("NOP\n"))).To(MatchError(transport.ErrNotConnected))
		})

		It("writes and reads in order", func() {
			h := newRecordingHandler()
			tcp.Connect(listener.Addr().String(), h)

			server := accept()
			defer server.Close()

			Eventually(h.connected, 5*time.Second).Should(Receive())

			Expect(tcp.Send([]byte("one\n"))).To(Succeed())
			Expect(tcp.Send([]byte("two\n"))).To(Succeed())

			got := make([]byte, 8)
			Expect(server.SetReadDeadline(time.Now().Add(5 * time.Second))).To(Succeed())
			_, err := io.ReadFull(server, got)
			Expect(err).To(Succeed())
			Expect(string(got)).To(Equal("one\ntwo\n"))

			_, err = server.Write([]byte("hello"))
			Expect(err).To(Succeed())

			var received []byte
			Eventually(func() string {
				select {
				case p := <-h.data:
					received = append(received, p...)
				default:
				}
				return string(received)
			}, 5*time.Second).Should(Equal("hello"))
		})

		It("reports the remote closing the connection", func() {
			h := newRecordingHandler()
			tcp.Connect(listener.Addr().String(), h)

			server := accept()
			Eventually(h.connected, 5*time.Second).Should(Receive())

			server.Close()

			Eventually(h.disconnected, 5*time.Second).Should(Receive(MatchError(io.EOF)))
		})

		It("does not report a disconnect after Close", func() {
			h := newRecordingHandler()
			tcp.Connect(listener.Addr().String(), h)

			server := accept()
			defer server.Close()

			Eventually(h.connected, 5*time.Second).Should(Receive())

			Expect(tcp.Close()).To(Succeed())
			Consistently(h.disconnected).ShouldNot(Receive())

			Expect(tcp.Send([]byte("NOP\n"))).To(MatchError(transport.ErrNotConnected))
		})
	})
})
