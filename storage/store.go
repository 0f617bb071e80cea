package storage

import "context"

// Store holds the stats document served by the status endpoint. Keys are
// gjson/sjson paths, use Key to build them from parts that may contain dots.
type Store interface {
	Set(ctx context.Context, key string, value interface{}) error
	Incr(ctx context.Context, key string, delta int64) error
	Get(ctx context.Context, key string) ([]byte, error)

	Backup() ([]byte, error)

	Close() error
}
