package env

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

var ErrNoNSQD = errors.New("At least one nsqd address is required")

type Config struct {
	NSQDAddrs []string `env:"EVNSQ_NSQD_ADDRS,default=127.0.0.1:4150"`
	Topic     string   `env:"EVNSQ_TOPIC"`
	Channel   string   `env:"EVNSQ_CHANNEL,default=evnsq"`

	ClientID          string        `env:"EVNSQ_CLIENT_ID"`
	Hostname          string        `env:"EVNSQ_HOSTNAME"`
	HeartbeatInterval time.Duration `env:"EVNSQ_HEARTBEAT_INTERVAL,default=30s"`
	MsgTimeout        time.Duration `env:"EVNSQ_MSG_TIMEOUT"`
	MaxInFlight       int           `env:"EVNSQ_MAX_IN_FLIGHT,default=1"`
	MaxFrameSize      int           `env:"EVNSQ_MAX_FRAME_SIZE"`

	DialTimeout    time.Duration `env:"EVNSQ_DIAL_TIMEOUT,default=5s"`
	ReconnectDelay time.Duration `env:"EVNSQ_RECONNECT_DELAY,default=5s"`
	HandlerTimeout time.Duration `env:"EVNSQ_HANDLER_TIMEOUT,default=10s"`
	Workers        int           `env:"EVNSQ_WORKERS,default=16"`

	LogLevel  string `env:"EVNSQ_LOG_LEVEL,default=info"`
	Trace     bool   `env:"EVNSQ_TRACE"`
	DebugHTTP bool   `env:"EVNSQ_DEBUG_HTTP"`
}

func (c *Config) Validate() error {
	if len(c.NSQDAddrs) == 0 {
		return ErrNoNSQD
	}

	if c.MaxInFlight < 0 {
		return fmt.Errorf("EVNSQ_MAX_IN_FLIGHT must not be negative, got %d", c.MaxInFlight)
	}

	if c.Workers < 1 {
		return fmt.Errorf("EVNSQ_WORKERS must be at least 1, got %d", c.Workers)
	}

	return nil
}

func LoadConfig(ctx context.Context) (*Config, error) {
	config := Config{}

	if err := godotenv.Load(".env.local"); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	if err := envconfig.Process(ctx, &config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}
