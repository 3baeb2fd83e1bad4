//go:build integration

package keylock

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kozaktomas/rollcall/internal/logging"
)

func setupRedis(t *testing.T) string {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil || container == nil {
		t.Skipf("Docker not available, skipping integration test: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)
	return fmt.Sprintf("redis://%s:%s/0", host, port.Port())
}

func TestRedis_SerializesAcrossClients(t *testing.T) {
	url := setupRedis(t)
	ctx := context.Background()

	var lockers []*Redis
	for range 3 {
		client, err := Connect(ctx, url)
		require.NoError(t, err)
		t.Cleanup(func() { client.Close() })
		lockers = append(lockers, NewRedis(client, 5*time.Second, logging.Discard()))
	}

	var mu sync.Mutex
	counter := 0
	var wg sync.WaitGroup
	for i := range 30 {
		wg.Add(1)
		go func(l *Redis) {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "alice:math:monday")
			require.NoError(t, err)
			mu.Lock()
			v := counter
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			counter = v + 1
			mu.Unlock()
			unlock()
		}(lockers[i%len(lockers)])
	}
	wg.Wait()
	assert.Equal(t, 30, counter)
}

func TestRedis_ExpiredHolderDoesNotReleaseNewOwner(t *testing.T) {
	url := setupRedis(t)
	ctx := context.Background()
	client, err := Connect(ctx, url)
	require.NoError(t, err)
	defer client.Close()

	l := NewRedis(client, 50*time.Millisecond, logging.Discard())
	staleUnlock, err := l.Lock(ctx, "k")
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	freshUnlock, err := l.Lock(ctx, "k")
	require.NoError(t, err)

	staleUnlock()
	held, err := client.Exists(ctx, redisKeyPrefix+"k").Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, held)
	freshUnlock()
}

func TestRedis_ContextCancel(t *testing.T) {
	url := setupRedis(t)
	ctx := context.Background()
	client, err := Connect(ctx, url)
	require.NoError(t, err)
	defer client.Close()

	l := NewRedis(client, 5*time.Second, logging.Discard())
	unlock, err := l.Lock(ctx, "k")
	require.NoError(t, err)
	defer unlock()

	waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = l.Lock(waitCtx, "k")
	assert.ErrorIs(t, err, ErrNotHeld)
}
