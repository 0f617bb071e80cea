package storage

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var ErrStoreClosed = errors.New("Store has been closed")

type InmemoryStore struct {
	mu     sync.RWMutex
	values []byte

	// stop will be closed when Close() is called
	stop chan struct{}
}

func NewInmemoryStore() *InmemoryStore {
	return &InmemoryStore{
		values: []byte("{}"),
		stop:   make(chan struct{}),
	}
}

func (i *InmemoryStore) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.isRunning() {
		close(i.stop)
	}

	return nil
}

func (i *InmemoryStore) Set(ctx context.Context, key string, value interface{}) (err error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.isRunning() {
		return ErrStoreClosed
	}

	values, err := sjson.SetBytes(i.values, key, value)
	if err != nil {
		return err
	}

	i.values = values
	return nil
}

// Incr adds delta to the number at key, a missing key counts as zero.
func (i *InmemoryStore) Incr(ctx context.Context, key string, delta int64) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.isRunning() {
		return ErrStoreClosed
	}

	current := gjson.GetBytes(i.values, key).Int()

	values, err := sjson.SetBytes(i.values, key, current+delta)
	if err != nil {
		return err
	}

	i.values = values
	return nil
}

// Get returns the raw JSON at key, or nil if there's nothing there.
func (i *InmemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	result := gjson.GetBytes(i.values, key)
	if !result.Exists() {
		return nil, nil
	}

	return []byte(result.Raw), nil
}

func (i *InmemoryStore) Backup() ([]byte, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	backup := make([]byte, len(i.values))
	copy(backup, i.values)

	return backup, nil
}

// isRunning returns true if Close has not been called
func (i *InmemoryStore) isRunning() bool {
	select {
	case <-i.stop:
		return false

	default:
		return true
	}
}

var pathEscaper = strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`)

// Key joins parts into a path, escaping anything in them that gjson would
// treat as syntax. Addresses like 127.0.0.1:4150 stay a single key.
func Key(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = pathEscaper.Replace(p)
	}

	return strings.Join(escaped, ".")
}

var _ Store = (*InmemoryStore)(nil)
