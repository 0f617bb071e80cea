package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/evnsq/client"
	"github.com/luma/evnsq/internal/env"
	"github.com/luma/evnsq/internal/metrics"
	"github.com/luma/evnsq/protocol"
	"github.com/luma/evnsq/storage"
)

var ErrNoTopic = errors.New("A topic is required, use --topic or EVNSQ_TOPIC")

var (
	// The host to serve the status endpoints on
	host string

	// The port to serve the status endpoints on, empty disables them
	httpPort string

	// Overrides EVNSQ_TOPIC / EVNSQ_CHANNEL
	topic   string
	channel string
)

func init() {
	flags := ConsumeCmd.PersistentFlags()

	flags.StringVar(&httpPort, "http-port", "4190", "The port to serve /ping, /stats and /metrics on, empty to disable")
	flags.StringVarP(&host, "host", "a", "0.0.0.0", "The host to serve the status endpoints on")
	flags.StringVarP(&topic, "topic", "t", "", "The topic to consume (default $EVNSQ_TOPIC)")
	flags.StringVarP(&channel, "channel", "c", "", "The channel to consume from (default $EVNSQ_CHANNEL)")
}

var ConsumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Consume a topic from one or more nsqd nodes",
	Long: `Consume a topic from one or more nsqd nodes, writing each message body to
stdout on its own line.

Usage
	EVNSQ_NSQD_ADDRS=127.0.0.1:4150 evnsq consume --topic events

`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer signalStop()

		conf, err := env.LoadConfig(ctx)
		if err != nil {
			return err
		}

		if topic != "" {
			conf.Topic = topic
		}

		if channel != "" {
			conf.Channel = channel
		}

		if conf.Topic == "" {
			return ErrNoTopic
		}

		log, err := env.MakeLogger(conf.LogLevel)
		if err != nil {
			return err
		}

		defer log.Sync()

		store := storage.NewInmemoryStore()
		defer store.Close()

		reg := prometheus.NewRegistry()
		collector, err := metrics.New(reg, store, log.Named("metrics"))
		if err != nil {
			return err
		}

		if httpPort != "" {
			s, err := startStatusServer(net.JoinHostPort(host, httpPort), conf.DebugHTTP, store, reg, log.Named("http"))
			if err != nil {
				return err
			}

			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()

				s.SetKeepAlivesEnabled(false)
				if err := s.Shutdown(shutdownCtx); err != nil {
					log.Error("Status server forced to shutdown", zap.Error(err))
				}
			}()
		}

		pool, err := ants.NewPool(conf.Workers, ants.WithNonblocking(true))
		if err != nil {
			return fmt.Errorf("Failed to create worker pool: %w", err)
		}

		defer pool.Release()

		handler := client.BoundedHandler(pool, conf.HandlerTimeout, printMessages(cmd.OutOrStdout()), log.Named("handler"))

		subs := make([]*subscriber, 0, len(conf.NSQDAddrs))

		for _, addr := range conf.NSQDAddrs {
			sub := &subscriber{
				ctx:            ctx,
				addr:           addr,
				topic:          conf.Topic,
				channel:        conf.Channel,
				maxInFlight:    conf.MaxInFlight,
				reconnectDelay: conf.ReconnectDelay,
				Observer:       collector,
				log:            log.Named("subscriber").With(zap.String("addr", addr)),
			}

			sub.conn, err = newConn(conf, log.Named("conn"), client.Options{
				Handler:  handler,
				Observer: sub,
			})
			if err != nil {
				return err
			}

			subs = append(subs, sub)
		}

		log.Info("Consuming",
			zap.Strings("nsqd", conf.NSQDAddrs),
			zap.String("topic", conf.Topic),
			zap.String("channel", conf.Channel),
			zap.Int("maxInFlight", conf.MaxInFlight))

		for _, sub := range subs {
			sub.conn.ConnectToNSQD(sub.addr)
		}

		// Listen for the interrupt signal.
		<-ctx.Done()

		// Restore default behavior on the interrupt signal and notify user of shutdown.
		signalStop()
		log.Info("Shutting down gracefully, press Ctrl+C again to force")

		for _, sub := range subs {
			err = multierr.Append(err, sub.Close())
		}

		if err != nil {
			log.Error("Connections did not close cleanly", zap.Error(err))
		}

		log.Info("Exiting")
		return nil
	},
}

// printMessages writes each message body on its own line.
func printMessages(w io.Writer) client.Handler {
	var mu sync.Mutex

	return client.HandlerFunc(func(msg *protocol.Message) client.Outcome {
		mu.Lock()
		defer mu.Unlock()

		if _, err := fmt.Fprintf(w, "%s\n", msg.Body); err != nil {
			return client.OutcomeRequeue
		}

		return client.OutcomeSuccess
	})
}

// subscriber subscribes its connection once the handshake completes and
// reconnects it when it drops.
type subscriber struct {
	client.Observer

	ctx  context.Context
	conn *client.Conn
	addr string

	topic       string
	channel     string
	maxInFlight int

	reconnectDelay time.Duration

	log *zap.Logger
}

func (s *subscriber) StateChanged(addr string, from client.State, to client.State) {
	s.Observer.StateChanged(addr, from, to)

	switch to {
	case client.StateConnected:
		if err := s.conn.Subscribe(s.topic, s.channel); err != nil {
			s.log.Error("Failed to subscribe", zap.Error(err))
			return
		}

		if err := s.conn.Ready(s.maxInFlight); err != nil {
			s.log.Error("Failed to send RDY", zap.Error(err))
		}

	case client.StateDisconnected:
		if s.reconnectDelay <= 0 || s.ctx.Err() != nil {
			return
		}

		s.log.Info("Reconnecting", zap.Duration("delay", s.reconnectDelay))

		time.AfterFunc(s.reconnectDelay, func() {
			if s.ctx.Err() != nil {
				return
			}

			s.conn.ConnectToNSQD(s.addr)
		})
	}
}

// Close asks nsqd to stop sending and then drops the connection.
func (s *subscriber) Close() error {
	if s.conn.State() == client.StateConnected {
		if err := s.conn.StartClose(); err != nil {
			s.log.Warn("Failed to send CLS", zap.Error(err))
		}
	}

	return s.conn.Close()
}
