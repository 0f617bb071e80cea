package client

import (
	"os"
	"strings"
	"time"

	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/luma/evnsq/protocol"
)

const DefaultUserAgent = "evnsq"

// IdentifyOptions is what we tell nsqd about ourselves during the handshake.
//
// Zero durations and sizes are left out of the IDENTIFY body so nsqd uses
// its own defaults.
type IdentifyOptions struct {
	ClientID  string
	Hostname  string
	UserAgent string

	// HeartbeatInterval is how often nsqd will send _heartbeat_. Negative
	// disables heartbeats.
	HeartbeatInterval time.Duration

	// MsgTimeout is how long nsqd waits for FIN or REQ before redelivering.
	MsgTimeout time.Duration

	OutputBufferSize    int
	OutputBufferTimeout time.Duration
}

// Marshal serialises the options to the JSON body of an IDENTIFY command.
//
// feature_negotiation is always false, nsqd then acknowledges IDENTIFY with
// a plain OK.
func (o IdentifyOptions) Marshal() ([]byte, error) {
	hostname := o.Hostname
	if hostname == "" {
		hostname, _ = os.Hostname()
	}

	clientID := o.ClientID
	if clientID == "" {
		clientID = strings.Split(hostname, ".")[0]
	}

	userAgent := o.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	fields := []struct {
		path  string
		value interface{}
		skip  bool
	}{
		{path: "client_id", value: clientID},
		{path: "hostname", value: hostname},
		{path: "user_agent", value: userAgent},
		{path: "feature_negotiation", value: false},
		{path: "heartbeat_interval", value: durationMs(o.HeartbeatInterval), skip: o.HeartbeatInterval == 0},
		{path: "msg_timeout", value: durationMs(o.MsgTimeout), skip: o.MsgTimeout <= 0},
		{path: "output_buffer_size", value: o.OutputBufferSize, skip: o.OutputBufferSize == 0},
		{path: "output_buffer_timeout", value: durationMs(o.OutputBufferTimeout), skip: o.OutputBufferTimeout == 0},
	}

	var (
		body = []byte("{}")
		err  error
	)

	for _, f := range fields {
		if f.skip {
			continue
		}

		if body, err = sjson.SetBytes(body, f.path, f.value); err != nil {
			return nil, err
		}
	}

	return body, nil
}

func durationMs(d time.Duration) int64 {
	if d < 0 {
		return -1
	}

	return int64(d / time.Millisecond)
}

type Options struct {
	Identify IdentifyOptions

	// Transport carries the bytes. Required.
	Transport Transport

	// Handler receives every message. Messages that arrive without a handler
	// are requeued.
	Handler Handler

	// OnError receives error frames from nsqd, handshake failures and frames
	// we couldn't make sense of.
	OnError ErrorHandler

	// OnResponse receives response frames other than heartbeats, e.g. the
	// OK that follows SUB or PUB.
	OnResponse ResponseHandler

	Observer Observer

	// MaxFrameSize bounds the frames we'll buffer. Defaults to
	// protocol.DefaultMaxFrameSize.
	MaxFrameSize int

	Log *zap.Logger
}

func (o *Options) setDefaults() {
	if o.MaxFrameSize <= 0 {
		o.MaxFrameSize = protocol.DefaultMaxFrameSize
	}

	if o.Observer == nil {
		o.Observer = NopObserver{}
	}

	if o.Log == nil {
		o.Log = zap.NewNop()
	}
}
