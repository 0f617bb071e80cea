package cmd

import (
	"go.uber.org/zap"

	"github.com/luma/evnsq/client"
	"github.com/luma/evnsq/internal/env"
	"github.com/luma/evnsq/internal/meta"
	"github.com/luma/evnsq/transport"
)

// newConn builds a connection over TCP from the shared config. options
// supplies the handlers, the rest is filled in here.
func newConn(conf *env.Config, log *zap.Logger, options client.Options) (*client.Conn, error) {
	options.Identify = client.IdentifyOptions{
		ClientID:          conf.ClientID,
		Hostname:          conf.Hostname,
		UserAgent:         meta.UserAgent(),
		HeartbeatInterval: conf.HeartbeatInterval,
		MsgTimeout:        conf.MsgTimeout,
	}

	options.Transport = transport.NewTCP(transport.Options{
		DialTimeout: conf.DialTimeout,
		Trace:       conf.Trace,
		Log:         log.Named("transport"),
	})

	options.MaxFrameSize = conf.MaxFrameSize
	options.Log = log

	return client.New(options)
}
