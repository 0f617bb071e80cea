package cmd

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/evnsq/client"
	"github.com/luma/evnsq/internal/env"
	"github.com/luma/evnsq/protocol"
)

var (
	ErrPublishTimeout   = errors.New("Timed out waiting for nsqd to acknowledge the publish")
	ErrNothingToPublish = errors.New("Nothing to publish")
)

var pubTimeout time.Duration

func init() {
	PubCmd.Flags().DurationVar(&pubTimeout, "timeout", 10*time.Second, "How long to wait for nsqd to acknowledge the publish")
}

var PubCmd = &cobra.Command{
	Use:   "pub <topic> [message...]",
	Short: "Publish messages to a topic on the first configured nsqd",
	Long: `Publish messages to a topic on the first configured nsqd. When no messages
are given each line read from stdin is published.

Usage
	echo hello | evnsq pub events
	evnsq pub events one two three

`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := env.LoadConfig(context.Background())
		if err != nil {
			return err
		}

		log, err := env.MakeLogger(conf.LogLevel)
		if err != nil {
			return err
		}

		defer log.Sync()

		topic := args[0]
		bodies := make([][]byte, 0, len(args)-1)
		for _, arg := range args[1:] {
			bodies = append(bodies, []byte(arg))
		}

		if len(bodies) == 0 {
			if bodies, err = readLines(cmd.InOrStdin()); err != nil {
				return err
			}
		}

		if len(bodies) == 0 {
			return ErrNothingToPublish
		}

		ctx, cancel := context.WithTimeout(context.Background(), pubTimeout)
		defer cancel()

		if err := publish(ctx, conf, log, topic, bodies); err != nil {
			return err
		}

		log.Info("Published", zap.String("topic", topic), zap.Int("count", len(bodies)))
		return nil
	},
}

// publish connects to the first nsqd, publishes bodies to topic and waits
// for the result.
func publish(ctx context.Context, conf *env.Config, log *zap.Logger, topic string, bodies [][]byte) error {
	p := &publisher{
		topic:  topic,
		bodies: bodies,
		done:   make(chan error, 1),
	}

	conn, err := newConn(conf, log.Named("conn"), client.Options{
		Observer:   p,
		OnError:    p.OnError,
		OnResponse: p.OnResponse,
	})
	if err != nil {
		return err
	}

	defer conn.Close()

	p.conn = conn
	conn.ConnectToNSQD(conf.NSQDAddrs[0])

	select {
	case err := <-p.done:
		return err

	case <-ctx.Done():
		return ErrPublishTimeout
	}
}

// publisher publishes once the handshake completes. The first OK, error
// or disconnect settles it.
type publisher struct {
	client.NopObserver

	conn   *client.Conn
	topic  string
	bodies [][]byte
	done   chan error
}

func (p *publisher) finish(err error) {
	select {
	case p.done <- err:
	default:
	}
}

func (p *publisher) StateChanged(addr string, from client.State, to client.State) {
	switch to {
	case client.StateConnected:
		var err error
		if len(p.bodies) == 1 {
			err = p.conn.Publish(p.topic, p.bodies[0])
		} else {
			err = p.conn.MultiPublish(p.topic, p.bodies)
		}

		if err != nil {
			p.finish(err)
		}

	case client.StateDisconnected:
		p.finish(client.ErrNotConnected)
	}
}

func (p *publisher) OnResponse(body []byte) {
	if bytes.Equal(body, protocol.ResponseOK) {
		p.finish(nil)
	}
}

func (p *publisher) OnError(err error) {
	p.finish(err)
}

func readLines(r io.Reader) ([][]byte, error) {
	var lines [][]byte

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}

		lines = append(lines, append([]byte(nil), scanner.Bytes()...))
	}

	return lines, scanner.Err()
}
