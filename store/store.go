/*
Package store provides the key-value stores used to keep cookie jars and
CSRF token mappings between replicated requests.

Values are plain strings. Keys never expire. A Redis or Valkey server
backs the store in production, Memory serves tests and single node
setups.

The DB option selects the numeric database when it parses as an
integer. Any other value is used as a key namespace, so that the key
"abc" is stored as "<db>:abc" in database 0.
*/
package store

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/zalando/replicator/logging"
	"github.com/zalando/replicator/metrics"
)

// ErrUnavailable wraps every error caused by an unreachable or failing
// store server.
var ErrUnavailable = errors.New("store unavailable")

// Durations of remote store operations.
const (
	KeyGet = "store.get"
	KeySet = "store.set"
)

func (o Options) metrics() metrics.Metrics {
	if o.Metrics == nil {
		return metrics.NewVoid()
	}
	return o.Metrics
}

// Store is a string key-value store.
type Store interface {
	// Get returns the value at key. found is false when the key does
	// not exist, which is not an error.
	Get(ctx context.Context, key string) (value string, found bool, err error)
	// Set stores value at key and replaces any prior value.
	Set(ctx context.Context, key, value string) error
}

// Backend is a Store with a lifecycle.
type Backend interface {
	Store
	// Available reports whether the store answers, it may retry.
	Available(ctx context.Context) bool
	Close() error
}

// Kind selects the Backend implementation.
type Kind string

const (
	RedisKind  Kind = "redis"
	ValkeyKind Kind = "valkey"
	MemoryKind Kind = "memory"
)

// ParseKind returns the Kind for name, case insensitive.
func ParseKind(name string) (Kind, error) {
	switch k := Kind(strings.ToLower(name)); k {
	case RedisKind, ValkeyKind, MemoryKind:
		return k, nil
	default:
		return "", fmt.Errorf("unknown store kind: %q", name)
	}
}

// Options configure a remote Backend.
type Options struct {
	Kind     Kind
	Host     string
	Port     int
	DB       string
	Username string
	Password string

	// Timeout bounds dialing, reads and writes to the server.
	Timeout time.Duration
	// ConnMetricsInterval is the pool statistics update period, only
	// used with redis.
	ConnMetricsInterval time.Duration

	Metrics metrics.Metrics
	Tracer  opentracing.Tracer
	Log     logging.Logger
}

func (o Options) addr() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

// SplitDB interprets the DB option. A numeric value is a database
// index, anything else a key namespace in database 0.
func SplitDB(db string) (index int, namespace string) {
	if db == "" {
		return 0, ""
	}
	if i, err := strconv.Atoi(db); err == nil && i >= 0 {
		return i, ""
	}
	return 0, db
}

func namespaced(namespace, key string) string {
	if namespace == "" {
		return key
	}
	return namespace + ":" + key
}

// New creates the Backend selected by o.Kind.
func New(o Options) (Backend, error) {
	switch o.Kind {
	case RedisKind:
		return NewRedis(o), nil
	case ValkeyKind:
		return NewValkey(o)
	case MemoryKind, "":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store kind: %q", o.Kind)
	}
}

// Memory is an in-process Backend.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

var _ Backend = &Memory{}

func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// Len returns the number of stored keys.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}

func (*Memory) Available(context.Context) bool { return true }

func (*Memory) Close() error { return nil }
