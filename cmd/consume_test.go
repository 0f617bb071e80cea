package cmd

import (
	"context"
	"os"
	"sync"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/luma/evnsq/client"
	"github.com/luma/evnsq/protocol"
	"github.com/luma/evnsq/transport"
)

// stubTransport records what a Conn asks of it.
type stubTransport struct {
	mu       sync.Mutex
	connects int
	sent     []string
}

func (t *stubTransport) Connect(addr string, h transport.Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connects++
}

func (t *stubTransport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, string(data))
	return nil
}

func (t *stubTransport) Close() error {
	return nil
}

func (t *stubTransport) Connects() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connects
}

func (t *stubTransport) Sent() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.sent...)
}

var _ = Describe("subscriber", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
		stub   *stubTransport
		sub    *subscriber
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		stub = &stubTransport{}

		sub = &subscriber{
			Observer:       client.NopObserver{},
			ctx:            ctx,
			addr:           "127.0.0.1:4150",
			topic:          "events",
			channel:        "archive",
			maxInFlight:    5,
			reconnectDelay: 10 * time.Millisecond,
			log:            zap.NewNop(),
		}

		var err error
		sub.conn, err = client.New(client.Options{
			Transport: stub,
			Observer:  sub,
		})
		Expect(err).To(Succeed())
	})

	AfterEach(func() {
		cancel()
	})

	identify := func() {
		sub.conn.ConnectToNSQD(sub.addr)
		sub.conn.OnConnected()
		sub.conn.OnData(protocol.AppendFrame(nil, protocol.FrameTypeResponse, []byte("OK")))
	}

	It("subscribes and sends RDY once connected", func() {
		identify()

		Expect(sub.conn.State()).To(Equal(client.StateConnected))

		sent := stub.Sent()
		Expect(sent[len(sent)-2:]).To(Equal([]string{"SUB events archive\n", "RDY 5\n"}))
	})

	It("reconnects after the connection drops", func() {
		identify()
		sub.conn.OnDisconnected(nil)

		Eventually(stub.Connects).Should(Equal(2))
	})

	It("doesn't reconnect once shutting down", func() {
		identify()
		cancel()

		Expect(sub.Close()).To(Succeed())
		Expect(stub.Sent()).To(ContainElement("CLS\n"))

		Consistently(stub.Connects, 50*time.Millisecond).Should(Equal(1))
	})
})

var _ = Describe("ConsumeCmd", func() {
	It("requires a topic", func() {
		Expect(os.Unsetenv("EVNSQ_TOPIC")).To(Succeed())

		Expect(ConsumeCmd.RunE(ConsumeCmd, nil)).To(MatchError(ErrNoTopic))
	})
})
