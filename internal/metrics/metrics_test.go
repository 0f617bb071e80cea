package metrics

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/luma/evnsq/client"
	"github.com/luma/evnsq/protocol"
	"github.com/luma/evnsq/storage"
)

var _ = Describe("Collector", func() {
	const addr = "127.0.0.1:4150"

	var (
		store     *storage.InmemoryStore
		collector *Collector
	)

	BeforeEach(func() {
		store = storage.NewInmemoryStore()

		var err error
		collector, err = New(prometheus.NewRegistry(), store, zap.NewNop())
		Expect(err).To(Succeed())
	})

	AfterEach(func() {
		store.Close()
	})

	It("refuses to register twice", func() {
		reg := prometheus.NewRegistry()

		_, err := New(reg, store, zap.NewNop())
		Expect(err).To(Succeed())

		_, err = New(reg, store, zap.NewNop())
		Expect(err).To(HaveOccurred())
	})

	It("tracks connection state", func() {
		collector.StateChanged(addr, client.StateIdentifying, client.StateConnected)

		Expect(testutil.ToFloat64(collector.state.WithLabelValues(addr))).To(Equal(float64(client.StateConnected)))
		Expect(testutil.ToFloat64(collector.transitions.WithLabelValues(addr, "connected"))).To(Equal(1.0))

		state, err := store.Get(context.Background(), storage.Key("connections", addr, "state"))
		Expect(err).To(Succeed())
		Expect(string(state)).To(Equal(`"connected"`))
	})

	It("counts heartbeats, messages and errors", func() {
		collector.HeartbeatReceived(addr)
		collector.HeartbeatReceived(addr)
		collector.MessageHandled(addr, &protocol.Message{Attempts: 1}, client.OutcomeSuccess)
		collector.MessageHandled(addr, &protocol.Message{Attempts: 2}, client.OutcomeRequeue)
		collector.MessageHandled(addr, &protocol.Message{Attempts: 1}, client.OutcomeSuccess)
		collector.ErrorReceived(addr, errors.New("E_INVALID"))

		Expect(testutil.ToFloat64(collector.heartbeats.WithLabelValues(addr))).To(Equal(2.0))
		Expect(testutil.ToFloat64(collector.messages.WithLabelValues(addr, "finish"))).To(Equal(2.0))
		Expect(testutil.ToFloat64(collector.messages.WithLabelValues(addr, "requeue"))).To(Equal(1.0))
		Expect(testutil.ToFloat64(collector.errors.WithLabelValues(addr))).To(Equal(1.0))

		stats, err := store.Backup()
		Expect(err).To(Succeed())

		conn := gjson.GetBytes(stats, storage.Key("connections", addr))
		Expect(conn.Get("heartbeats").Int()).To(Equal(int64(2)))
		Expect(conn.Get("messages.finish").Int()).To(Equal(int64(2)))
		Expect(conn.Get("messages.requeue").Int()).To(Equal(int64(1)))
		Expect(conn.Get("lastError").String()).To(Equal("E_INVALID"))
	})
})
