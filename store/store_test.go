package store

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zalando/replicator/metrics/metricstest"
)

func TestSplitDB(t *testing.T) {
	for _, tt := range []struct {
		db        string
		index     int
		namespace string
	}{
		{"", 0, ""},
		{"0", 0, ""},
		{"3", 3, ""},
		{"-1", 0, "-1"},
		{"rack-request-replication", 0, "rack-request-replication"},
		{"1a", 0, "1a"},
	} {
		t.Run(tt.db, func(t *testing.T) {
			index, namespace := SplitDB(tt.db)
			assert.Equal(t, tt.index, index)
			assert.Equal(t, tt.namespace, namespace)
		})
	}
}

func TestNamespaced(t *testing.T) {
	assert.Equal(t, "abc", namespaced("", "abc"))
	assert.Equal(t, "ns:csrf-abc", namespaced("ns", "csrf-abc"))
}

func TestParseKind(t *testing.T) {
	for _, name := range []string{"redis", "Valkey", "MEMORY"} {
		_, err := ParseKind(name)
		assert.NoError(t, err, name)
	}
	_, err := ParseKind("memcached")
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	b, err := New(Options{Kind: MemoryKind})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, b)

	b, err = New(Options{})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, b)

	_, err = New(Options{Kind: "memcached"})
	assert.Error(t, err)
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	assert.True(t, m.Available(ctx))

	_, ok, err := m.Get(ctx, "foo")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Set(ctx, "foo", "bar"))
	require.NoError(t, m.Set(ctx, "foo", "baz"))

	v, ok, err := m.Get(ctx, "foo")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "baz", v)
	assert.Equal(t, 1, m.Len())
	assert.NoError(t, m.Close())
}

func TestMemoryConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := "k" + strconv.Itoa(i%5)
			_ = m.Set(ctx, key, strconv.Itoa(i))
			_, _, _ = m.Get(ctx, key)
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, m.Len())
}

func TestRedisUnavailable(t *testing.T) {
	m := &metricstest.MockMetrics{}
	r := NewRedis(Options{Host: "127.0.0.1", Port: 1, Timeout: 50 * time.Millisecond, Metrics: m})
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, _, err := r.Get(ctx, "foo")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)

	err = r.Set(ctx, "foo", "bar")
	assert.ErrorIs(t, err, ErrUnavailable)

	for _, key := range []string{KeyGet, KeySet} {
		d, ok := m.Measure(key)
		assert.True(t, ok, key)
		assert.Len(t, d, 1, key)
	}
}

func ExampleSplitDB() {
	index, namespace := SplitDB("2")
	fmt.Printf("%d %q\n", index, namespace)
	index, namespace = SplitDB("rack-request-replication")
	fmt.Printf("%d %q\n", index, namespace)
	// Output:
	// 2 ""
	// 0 "rack-request-replication"
}
