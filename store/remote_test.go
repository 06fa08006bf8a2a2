package store

import (
	"context"
	"net"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rnet "github.com/zalando/replicator/net"
	"github.com/zalando/replicator/net/redistest"
	"github.com/zalando/replicator/net/valkeytest"
)

func splitAddr(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return host, p
}

func testBackend(t *testing.T, b Backend) {
	ctx := context.Background()
	require.True(t, b.Available(ctx))

	_, ok, err := b.Get(ctx, "session")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Set(ctx, "session", `{"a":"b"}`))
	require.NoError(t, b.Set(ctx, "csrf-abc", "xyz"))

	v, ok, err := b.Get(ctx, "session")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"a":"b"}`, v)

	v, _, _ = b.Get(ctx, "csrf-abc")
	assert.Equal(t, "xyz", v)
}

func TestRedisBackend(t *testing.T) {
	addr, done := redistest.NewTestRedis(t)
	defer done()
	host, port := splitAddr(t, addr)

	b, err := New(Options{Kind: RedisKind, Host: host, Port: port, DB: "rack-request-replication"})
	require.NoError(t, err)
	defer b.Close()

	testBackend(t, b)

	raw := rnet.NewRedisClient(&rnet.RedisOptions{Addr: addr})
	defer raw.Close()
	v, ok, err := raw.Get(context.Background(), "rack-request-replication:csrf-abc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "xyz", v)
}

func TestRedisBackendNumericDB(t *testing.T) {
	addr, done := redistest.NewTestRedisWithPassword(t, "pass")
	defer done()
	host, port := splitAddr(t, addr)

	b, err := New(Options{Kind: RedisKind, Host: host, Port: port, DB: "4", Password: "pass"})
	require.NoError(t, err)
	defer b.Close()

	testBackend(t, b)

	raw := rnet.NewRedisClient(&rnet.RedisOptions{Addr: addr, Password: "pass", DB: 4})
	defer raw.Close()
	_, ok, err := raw.Get(context.Background(), "csrf-abc")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestValkeyBackend(t *testing.T) {
	addr, done := valkeytest.NewTestValkey(t)
	defer done()
	host, port := splitAddr(t, addr)

	b, err := New(Options{Kind: ValkeyKind, Host: host, Port: port, DB: "ns"})
	require.NoError(t, err)
	defer b.Close()

	testBackend(t, b)

	raw, err := rnet.NewValkeyClient(&rnet.ValkeyOptions{Addr: addr})
	require.NoError(t, err)
	defer raw.Close()
	v, ok, err := raw.Get(context.Background(), "ns:session")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"a":"b"}`, v)
}
