package store

import (
	"context"
	"fmt"
	"time"

	"github.com/zalando/replicator/metrics"
	"github.com/zalando/replicator/net"
)

// Redis is a Backend on a single redis server.
type Redis struct {
	client    *net.RedisClient
	namespace string
	metrics   metrics.Metrics
}

var _ Backend = &Redis{}

// NewRedis creates a Redis backend. The connection is established
// lazily, use Available to check it.
func NewRedis(o Options) *Redis {
	db, namespace := SplitDB(o.DB)
	client := net.NewRedisClient(&net.RedisOptions{
		Addr:                o.addr(),
		Username:            o.Username,
		Password:            o.Password,
		DB:                  db,
		ReadTimeout:         o.Timeout,
		WriteTimeout:        o.Timeout,
		DialTimeout:         o.Timeout,
		PoolTimeout:         o.Timeout,
		ConnMetricsInterval: o.ConnMetricsInterval,
		Metrics:             o.Metrics,
		Tracer:              o.Tracer,
		Log:                 o.Log,
	})
	if o.Metrics != nil {
		client.StartMetricsCollection()
	}

	return &Redis{client: client, namespace: namespace, metrics: o.metrics()}
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	defer r.metrics.MeasureSince(KeyGet, time.Now())
	v, ok, err := r.client.Get(ctx, namespaced(r.namespace, key))
	if err != nil {
		return "", false, fmt.Errorf("%w: redis get: %w", ErrUnavailable, err)
	}
	return v, ok, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	defer r.metrics.MeasureSince(KeySet, time.Now())
	if err := r.client.Set(ctx, namespaced(r.namespace, key), value); err != nil {
		return fmt.Errorf("%w: redis set: %w", ErrUnavailable, err)
	}
	return nil
}

func (r *Redis) Available(ctx context.Context) bool {
	return r.client.Available(ctx)
}

func (r *Redis) Close() error {
	return r.client.Close()
}
