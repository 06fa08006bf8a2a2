package net

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/valkey-io/valkey-go"

	"github.com/zalando/replicator/logging"
)

// ValkeyOptions is used to configure the ValkeyClient.
//
// Many options are named like
// https://pkg.go.dev/github.com/valkey-io/valkey-go#ClientOption,
// which we pass to the valkey.Client on creation
type ValkeyOptions struct {
	// Addr is the host:port of the valkey server
	Addr string

	// Username used to connect to the Valkey server
	Username string
	// Password is the password needed to connect to Valkey server
	Password string
	// DB is the numeric database selected after connecting
	DB int

	// ConnWriteTimeout for valkey socket read,write,dial timeouts https://pkg.go.dev/github.com/valkey-io/valkey-go#ClientOption
	ConnWriteTimeout time.Duration
	// ConnLifetime connections will close after passing lifetime, see https://pkg.go.dev/github.com/valkey-io/valkey-go#ClientOption
	ConnLifetime time.Duration

	// Tracer provides OpenTracing for Valkey queries.
	Tracer opentracing.Tracer
	// Log is the logger that is used
	Log logging.Logger
}

type ValkeyClient struct {
	client valkey.Client
	tracer opentracing.Tracer
	log    logging.Logger
	once   sync.Once
}

func NewValkeyClient(opt *ValkeyOptions) (*ValkeyClient, error) {
	if opt == nil {
		opt = &ValkeyOptions{}
	}

	cli, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{opt.Addr},
		Username:    opt.Username,
		Password:    opt.Password,
		SelectDB:    opt.DB,

		ConnWriteTimeout: opt.ConnWriteTimeout, // Write,Read,Dial Timeout is the same
		ConnLifetime:     opt.ConnLifetime,

		MaxFlushDelay: 20 * time.Microsecond,

		DisableRetry: true,
		DisableCache: true,
	})
	if err != nil {
		return nil, err
	}

	vc := &ValkeyClient{
		client: cli,
		tracer: opt.Tracer,
		log:    opt.Log,
	}
	if vc.tracer == nil {
		vc.tracer = &opentracing.NoopTracer{}
	}
	if vc.log == nil {
		vc.log = logging.New()
	}
	return vc, nil
}

func (vc *ValkeyClient) StartSpan(ctx context.Context, operationName string) (opentracing.Span, context.Context) {
	span, ctx := opentracing.StartSpanFromContextWithTracer(ctx, vc.tracer, operationName)
	ext.DBType.Set(span, "valkey")
	return span, ctx
}

func (vc *ValkeyClient) Ping(ctx context.Context) error {
	return vc.client.Do(ctx, vc.client.B().Ping().Build()).Error()
}

// Available pings the server with exponential backoff and reports
// whether it answered.
func (vc *ValkeyClient) Available(ctx context.Context) bool {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := vc.Ping(ctx)
		if err != nil {
			vc.log.Infof("Failed to ping valkey, retry with backoff: %v", err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(availableMaxTries))

	return err == nil
}

// Get returns the value stored at key. The boolean result is false
// if the key does not exist.
func (vc *ValkeyClient) Get(ctx context.Context, key string) (string, bool, error) {
	span, ctx := vc.StartSpan(ctx, "valkey_get")
	defer span.Finish()

	v, err := vc.client.Do(ctx, vc.client.B().Get().Key(key).Build()).ToString()
	if valkey.IsValkeyNil(err) {
		return "", false, nil
	}
	if err != nil {
		ext.Error.Set(span, true)
		return "", false, err
	}
	return v, true, nil
}

// Set stores value at key without expiration.
func (vc *ValkeyClient) Set(ctx context.Context, key, value string) error {
	span, ctx := vc.StartSpan(ctx, "valkey_set")
	defer span.Finish()

	if err := vc.client.Do(ctx, vc.client.B().Set().Key(key).Value(value).Build()).Error(); err != nil {
		ext.Error.Set(span, true)
		return err
	}
	return nil
}

func (vc *ValkeyClient) Close() {
	vc.once.Do(vc.client.Close)
}
