package transport

import (
	"time"

	"go.uber.org/zap"
)

const (
	DefaultDialTimeout    = 5 * time.Second
	DefaultReadBufferSize = 16 * 1024
	DefaultWriteQueueSize = 127
)

type Options struct {
	// DialTimeout bounds how long connecting to nsqd may take
	DialTimeout time.Duration

	// ReadBufferSize is how much we ask the socket for on each read
	ReadBufferSize int

	// WriteQueueSize is how many pending writes can queue before Send blocks
	WriteQueueSize int

	// Trace will log every chunk read and written. This is only useful in local debugging
	Trace bool

	Log *zap.Logger
}

func (o *Options) setDefaults() {
	if o.DialTimeout <= 0 {
		o.DialTimeout = DefaultDialTimeout
	}

	if o.ReadBufferSize <= 0 {
		o.ReadBufferSize = DefaultReadBufferSize
	}

	if o.WriteQueueSize <= 0 {
		o.WriteQueueSize = DefaultWriteQueueSize
	}

	if o.Log == nil {
		o.Log = zap.NewNop()
	}
}
