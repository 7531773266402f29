package iclock

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryTouchAndDevices(t *testing.T) {
	r := NewRegistry(10)
	base := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	clock := base
	r.now = func() time.Time { return clock }

	r.Touch("A1", "ATTLOG", "")
	clock = base.Add(time.Minute)
	r.Touch("B2", "OPERLOG", "registry")
	clock = base.Add(2 * time.Minute)
	r.Touch("A1", "USER", "") // повторный Touch не создаёт дубликат

	devs := r.Devices()
	require.Len(t, devs, 2)
	// свежие первыми
	assert.Equal(t, "A1", devs[0].SerialNumber)
	assert.Equal(t, "USER", devs[0].LastTable)
	assert.Equal(t, "online", devs[0].Status)
	assert.Equal(t, "B2", devs[1].SerialNumber)
}

func TestRegistryIgnoresUnknownSN(t *testing.T) {
	r := NewRegistry(10)
	r.Touch("", "ATTLOG", "")
	r.Touch(UnknownSN, "ATTLOG", "")
	assert.Empty(t, r.Devices())

	require.Error(t, r.Enqueue("", "C:1:DATA"))
	require.Error(t, r.Enqueue(UnknownSN, "C:1:DATA"))
}

func TestRegistryQueueFIFO(t *testing.T) {
	r := NewRegistry(10)
	require.NoError(t, r.Enqueue("A1", "first"))
	require.NoError(t, r.Enqueue("A1", "second"))

	cmd, ok := r.Dequeue("A1")
	require.True(t, ok)
	assert.Equal(t, "first", cmd.Text)

	cmd, ok = r.Dequeue("A1")
	require.True(t, ok)
	assert.Equal(t, "second", cmd.Text)

	_, ok = r.Dequeue("A1")
	assert.False(t, ok, "drained queue yields nothing")

	_, ok = r.Dequeue("never-seen")
	assert.False(t, ok)
}

func TestRegistryQueueIsolatedPerDevice(t *testing.T) {
	r := NewRegistry(10)
	require.NoError(t, r.Enqueue("A1", "for-a"))
	require.NoError(t, r.Enqueue("B2", "for-b"))

	cmd, ok := r.Dequeue("B2")
	require.True(t, ok)
	assert.Equal(t, "for-b", cmd.Text)

	assert.Len(t, r.Peek("A1"), 1)
	assert.Empty(t, r.Peek("B2"))
}

func TestRegistryQueueCap(t *testing.T) {
	r := NewRegistry(2)
	require.NoError(t, r.Enqueue("A1", "1"))
	require.NoError(t, r.Enqueue("A1", "2"))
	assert.ErrorIs(t, r.Enqueue("A1", "3"), ErrQueueFull)

	// после pop место освобождается
	_, ok := r.Dequeue("A1")
	require.True(t, ok)
	require.NoError(t, r.Enqueue("A1", "3"))
}

func TestRegistryConcurrentPushPop(t *testing.T) {
	const n = 200
	r := NewRegistry(n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = r.Enqueue("A1", fmt.Sprintf("cmd-%d", i))
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for {
		cmd, ok := r.Dequeue("A1")
		if !ok {
			break
		}
		require.False(t, seen[cmd.Text], "duplicate %s", cmd.Text)
		seen[cmd.Text] = true
	}
	assert.Len(t, seen, n)
}
