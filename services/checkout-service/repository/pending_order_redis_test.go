package repository

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memRedis answers GET/SET/DEL from a map via a go-redis hook, so the
// client never dials a server.
type memRedis struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func (m *memRedis) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return nil, errors.New("dial disabled in tests")
	}
}

func (m *memRedis) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		m.exec(cmd)
		return cmd.Err()
	}
}

func (m *memRedis) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		for _, cmd := range cmds {
			m.exec(cmd)
		}
		return nil
	}
}

func (m *memRedis) exec(cmd redis.Cmder) {
	m.mu.Lock()
	defer m.mu.Unlock()

	args := cmd.Args()
	key := func(i int) string { return toString(args[i]) }

	switch strings.ToLower(cmd.Name()) {
	case "get":
		c := cmd.(*redis.StringCmd)
		if v, ok := m.data[key(1)]; ok {
			c.SetVal(v)
		} else {
			c.SetErr(redis.Nil)
		}
	case "set":
		nx := false
		var ttl time.Duration
		for i := 3; i < len(args); i++ {
			switch strings.ToLower(toString(args[i])) {
			case "nx":
				nx = true
			case "ex":
				ttl = time.Duration(toInt(args[i+1])) * time.Second
			case "px":
				ttl = time.Duration(toInt(args[i+1])) * time.Millisecond
			}
		}
		if nx {
			c := cmd.(*redis.BoolCmd)
			if _, exists := m.data[key(1)]; exists {
				c.SetVal(false)
				return
			}
			m.data[key(1)] = toString(args[2])
			m.ttls[key(1)] = ttl
			c.SetVal(true)
			return
		}
		m.data[key(1)] = toString(args[2])
		m.ttls[key(1)] = ttl
		cmd.(*redis.StatusCmd).SetVal("OK")
	case "del":
		var n int64
		for i := 1; i < len(args); i++ {
			if _, ok := m.data[key(i)]; ok {
				delete(m.data, key(i))
				n++
			}
		}
		cmd.(*redis.IntCmd).SetVal(n)
	default:
		cmd.SetErr(errors.New("unsupported command " + cmd.Name()))
	}
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return ""
	}
}

func toInt(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	default:
		return 0
	}
}

func newMemRedis(t *testing.T) (*redis.Client, *memRedis) {
	t.Helper()
	mem := &memRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
	client := redis.NewClient(&redis.Options{Addr: "localhost:0", Protocol: 2})
	client.AddHook(mem)
	t.Cleanup(func() { _ = client.Close() })
	return client, mem
}

func TestRedisPendingOrder_PutGetTTL(t *testing.T) {
	client, mem := newMemRedis(t)
	repo := NewRedisPendingOrderRepository(client, 3*time.Hour)
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, "TOKEN-1", samplePayload()))
	assert.Equal(t, 3*time.Hour, mem.ttls["pending_order:TOKEN-1"])

	p, err := repo.Get(ctx, "TOKEN-1")
	require.NoError(t, err)
	assert.Equal(t, "GC050", p.Items[0].PartNumber)

	_, err = repo.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrPendingOrderNotFound)
}

func TestRedisPendingOrder_ClaimIsExclusive(t *testing.T) {
	client, _ := newMemRedis(t)
	repo := NewRedisPendingOrderRepository(client, time.Hour)
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, "TOKEN-1", samplePayload()))

	_, err := repo.Claim(ctx, "TOKEN-1", time.Minute)
	require.NoError(t, err)

	_, err = repo.Claim(ctx, "TOKEN-1", time.Minute)
	assert.ErrorIs(t, err, ErrPendingOrderNotFound)

	require.NoError(t, repo.Release(ctx, "TOKEN-1"))
	_, err = repo.Claim(ctx, "TOKEN-1", time.Minute)
	assert.NoError(t, err)
}

func TestRedisPendingOrder_ClaimAfterDelete(t *testing.T) {
	client, mem := newMemRedis(t)
	repo := NewRedisPendingOrderRepository(client, time.Hour)
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, "TOKEN-1", samplePayload()))
	_, err := repo.Claim(ctx, "TOKEN-1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, repo.Delete(ctx, "TOKEN-1"))

	_, err = repo.Claim(ctx, "TOKEN-1", time.Minute)
	assert.ErrorIs(t, err, ErrPendingOrderNotFound)
	// a failed claim must not leave a claim key behind
	assert.NotContains(t, mem.data, "pending_order:TOKEN-1:claim")

	assert.NoError(t, repo.Delete(ctx, "TOKEN-1"))
}

func TestRedisPendingOrder_ClaimCorruptPayload(t *testing.T) {
	client, mem := newMemRedis(t)
	repo := NewRedisPendingOrderRepository(client, time.Hour)
	ctx := context.Background()

	mem.data["pending_order:TOKEN-1"] = "not json"

	_, err := repo.Claim(ctx, "TOKEN-1", time.Minute)
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = repo.Get(ctx, "TOKEN-1")
	assert.ErrorIs(t, err, ErrInvalidPayload)
}
