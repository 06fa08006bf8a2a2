package store

import (
	"context"
	"fmt"
	"time"

	"github.com/zalando/replicator/metrics"
	"github.com/zalando/replicator/net"
)

// Valkey is a Backend on a single valkey server.
type Valkey struct {
	client    *net.ValkeyClient
	namespace string
	metrics   metrics.Metrics
}

var _ Backend = &Valkey{}

// NewValkey creates a Valkey backend. It fails when the server cannot
// be reached.
func NewValkey(o Options) (*Valkey, error) {
	db, namespace := SplitDB(o.DB)
	client, err := net.NewValkeyClient(&net.ValkeyOptions{
		Addr:             o.addr(),
		Username:         o.Username,
		Password:         o.Password,
		DB:               db,
		ConnWriteTimeout: o.Timeout,
		Tracer:           o.Tracer,
		Log:              o.Log,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create valkey client: %w", ErrUnavailable, err)
	}

	return &Valkey{client: client, namespace: namespace, metrics: o.metrics()}, nil
}

func (v *Valkey) Get(ctx context.Context, key string) (string, bool, error) {
	defer v.metrics.MeasureSince(KeyGet, time.Now())
	s, ok, err := v.client.Get(ctx, namespaced(v.namespace, key))
	if err != nil {
		return "", false, fmt.Errorf("%w: valkey get: %w", ErrUnavailable, err)
	}
	return s, ok, nil
}

func (v *Valkey) Set(ctx context.Context, key, value string) error {
	defer v.metrics.MeasureSince(KeySet, time.Now())
	if err := v.client.Set(ctx, namespaced(v.namespace, key), value); err != nil {
		return fmt.Errorf("%w: valkey set: %w", ErrUnavailable, err)
	}
	return nil
}

func (v *Valkey) Available(ctx context.Context) bool {
	return v.client.Available(ctx)
}

func (v *Valkey) Close() error {
	v.client.Close()
	return nil
}
