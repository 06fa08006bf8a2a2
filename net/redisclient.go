package net

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/redis/go-redis/v9"

	"github.com/zalando/replicator/logging"
	"github.com/zalando/replicator/metrics"
)

// RedisOptions is used to configure the redis.Client
type RedisOptions struct {
	// Addr is the host:port of the redis server
	Addr string
	// Username for redis ACL authentication, optional
	Username string
	// Password to authenticate with, optional
	Password string
	// DB is the numeric database selected after connecting
	DB int

	// ReadTimeout for redis socket reads
	ReadTimeout time.Duration
	// WriteTimeout for redis socket writes
	WriteTimeout time.Duration
	// DialTimeout is the max time.Duration to dial a new connection
	DialTimeout time.Duration
	// PoolTimeout is the max time.Duration to get a connection from pool
	PoolTimeout time.Duration

	// MinIdleConns is the minimum number of idle socket connections to redis
	MinIdleConns int
	// PoolSize is the maximum number of socket connections to redis
	PoolSize int

	// ConnMetricsInterval defines the frequency of updating the redis
	// connection related metrics. Defaults to 60 seconds.
	ConnMetricsInterval time.Duration
	// MetricsPrefix is the prefix for redis client metrics,
	// defaults to "store.redis." if not set
	MetricsPrefix string
	// Metrics receives the pool statistics, optional
	Metrics metrics.Metrics
	// Tracer provides OpenTracing for Redis queries.
	Tracer opentracing.Tracer
	// Log is the logger that is used
	Log logging.Logger
}

type RedisClient struct {
	client        *redis.Client
	log           logging.Logger
	metrics       metrics.Metrics
	metricsPrefix string
	options       *RedisOptions
	tracer        opentracing.Tracer
	quit          chan struct{}
	once          sync.Once
}

const (
	DefaultReadTimeout  = 250 * time.Millisecond
	DefaultWriteTimeout = 250 * time.Millisecond
	DefaultPoolTimeout  = 250 * time.Millisecond
	DefaultDialTimeout  = 250 * time.Millisecond
	DefaultMinConns     = 10
	DefaultMaxConns     = 100

	defaultConnMetricsInterval = 60 * time.Second
	defaultRedisMetricsPrefix  = "store.redis."
	availableMaxTries          = 7
)

func NewRedisClient(ro *RedisOptions) *RedisClient {
	if ro == nil {
		ro = &RedisOptions{}
	}

	r := &RedisClient{
		quit:          make(chan struct{}),
		tracer:        &opentracing.NoopTracer{},
		metrics:       metrics.NewVoid(),
		log:           ro.Log,
		metricsPrefix: ro.MetricsPrefix,
		options:       ro,
	}

	if ro.ReadTimeout == 0 {
		ro.ReadTimeout = DefaultReadTimeout
	}
	if ro.WriteTimeout == 0 {
		ro.WriteTimeout = DefaultWriteTimeout
	}
	if ro.PoolTimeout == 0 {
		ro.PoolTimeout = DefaultPoolTimeout
	}
	if ro.DialTimeout == 0 {
		ro.DialTimeout = DefaultDialTimeout
	}
	if ro.MinIdleConns == 0 {
		ro.MinIdleConns = DefaultMinConns
	}
	if ro.PoolSize == 0 {
		ro.PoolSize = DefaultMaxConns
	}
	if ro.ConnMetricsInterval <= 0 {
		ro.ConnMetricsInterval = defaultConnMetricsInterval
	}
	if ro.Tracer != nil {
		r.tracer = ro.Tracer
	}
	if ro.Metrics != nil {
		r.metrics = ro.Metrics
	}
	if r.log == nil {
		r.log = logging.New()
	}
	if r.metricsPrefix == "" {
		r.metricsPrefix = defaultRedisMetricsPrefix
	}

	r.client = redis.NewClient(&redis.Options{
		Addr:         ro.Addr,
		Username:     ro.Username,
		Password:     ro.Password,
		DB:           ro.DB,
		ReadTimeout:  ro.ReadTimeout,
		WriteTimeout: ro.WriteTimeout,
		DialTimeout:  ro.DialTimeout,
		PoolTimeout:  ro.PoolTimeout,
		MinIdleConns: ro.MinIdleConns,
		PoolSize:     ro.PoolSize,
	})

	return r
}

// Available pings the server with exponential backoff and reports
// whether it answered.
func (r *RedisClient) Available(ctx context.Context) bool {
	_, err := backoff.Retry(ctx, func() (string, error) {
		res, err := r.client.Ping(ctx).Result()
		if err != nil {
			r.log.Infof("Failed to ping redis, retry with backoff: %v", err)
		}
		return res, err
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(availableMaxTries))

	return err == nil
}

func (r *RedisClient) StartMetricsCollection() {
	go func() {
		ticker := time.NewTicker(r.options.ConnMetricsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				stats := r.client.PoolStats()
				r.metrics.UpdateGauge(r.metricsPrefix+"hits", float64(stats.Hits))
				r.metrics.UpdateGauge(r.metricsPrefix+"idleconns", float64(stats.IdleConns))
				r.metrics.UpdateGauge(r.metricsPrefix+"misses", float64(stats.Misses))
				r.metrics.UpdateGauge(r.metricsPrefix+"staleconns", float64(stats.StaleConns))
				r.metrics.UpdateGauge(r.metricsPrefix+"timeouts", float64(stats.Timeouts))
				r.metrics.UpdateGauge(r.metricsPrefix+"totalconns", float64(stats.TotalConns))
			case <-r.quit:
				return
			}
		}
	}()
}

func (r *RedisClient) StartSpan(ctx context.Context, operationName string) (opentracing.Span, context.Context) {
	span, ctx := opentracing.StartSpanFromContextWithTracer(ctx, r.tracer, operationName)
	ext.DBType.Set(span, "redis")
	return span, ctx
}

// Get returns the value stored at key. The boolean result is false
// if the key does not exist.
func (r *RedisClient) Get(ctx context.Context, key string) (string, bool, error) {
	span, ctx := r.StartSpan(ctx, "redis_get")
	defer span.Finish()

	v, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		ext.Error.Set(span, true)
		return "", false, err
	}
	return v, true, nil
}

// Set stores value at key without expiration.
func (r *RedisClient) Set(ctx context.Context, key, value string) error {
	span, ctx := r.StartSpan(ctx, "redis_set")
	defer span.Finish()

	if err := r.client.Set(ctx, key, value, 0).Err(); err != nil {
		ext.Error.Set(span, true)
		return err
	}
	return nil
}

func (r *RedisClient) Close() error {
	var err error
	r.once.Do(func() {
		close(r.quit)
		err = r.client.Close()
	})
	return err
}
