package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/luma/evnsq/client"
	"github.com/luma/evnsq/protocol"
	"github.com/luma/evnsq/storage"
)

const namespace = "evnsq"

// Collector turns connection events into prometheus metrics and keeps the
// stats document in store up to date.
type Collector struct {
	store storage.Store
	log   *zap.Logger

	state       *prometheus.GaugeVec
	transitions *prometheus.CounterVec
	heartbeats  *prometheus.CounterVec
	messages    *prometheus.CounterVec
	attempts    *prometheus.HistogramVec
	errors      *prometheus.CounterVec
}

func New(reg prometheus.Registerer, store storage.Store, log *zap.Logger) (*Collector, error) {
	c := &Collector{
		store: store,
		log:   log,

		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "Current state of each nsqd connection, 0 disconnected to 3 connected",
		}, []string{"addr"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_transitions_total",
			Help:      "State changes by nsqd connection and new state",
		}, []string{"addr", "state"}),
		heartbeats: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeats_total",
			Help:      "Heartbeats received and answered",
		}, []string{"addr"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Messages handled by outcome",
		}, []string{"addr", "outcome"}),
		attempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_attempts",
			Help:      "Delivery attempt count of handled messages",
			Buckets:   []float64{1, 2, 3, 5, 10, 25, 100},
		}, []string{"addr"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Error frames, handshake failures and undecodable frames",
		}, []string{"addr"}),
	}

	for _, collector := range []prometheus.Collector{
		c.state, c.transitions, c.heartbeats, c.messages, c.attempts, c.errors,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, err
		}
	}

	return c, nil
}

func (c *Collector) StateChanged(addr string, from client.State, to client.State) {
	c.state.WithLabelValues(addr).Set(float64(to))
	c.transitions.WithLabelValues(addr, to.String()).Inc()

	c.record(c.store.Set(context.Background(), storage.Key("connections", addr, "state"), to.String()))
}

func (c *Collector) HeartbeatReceived(addr string) {
	c.heartbeats.WithLabelValues(addr).Inc()

	c.record(c.store.Incr(context.Background(), storage.Key("connections", addr, "heartbeats"), 1))
}

func (c *Collector) MessageHandled(addr string, msg *protocol.Message, outcome client.Outcome) {
	c.messages.WithLabelValues(addr, outcome.String()).Inc()
	c.attempts.WithLabelValues(addr).Observe(float64(msg.Attempts))

	c.record(c.store.Incr(context.Background(), storage.Key("connections", addr, "messages", outcome.String()), 1))
}

func (c *Collector) ErrorReceived(addr string, err error) {
	c.errors.WithLabelValues(addr).Inc()

	ctx := context.Background()
	c.record(c.store.Incr(ctx, storage.Key("connections", addr, "errors"), 1))
	c.record(c.store.Set(ctx, storage.Key("connections", addr, "lastError"), err.Error()))
}

func (c *Collector) record(err error) {
	if err != nil {
		c.log.Warn("Failed to update stats", zap.Error(err))
	}
}

var _ client.Observer = (*Collector)(nil)
