package runner

import (
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() log.Logger {
	return log.NewLogger(log.DiscardHandler())
}

func TestPoolRespectsLimit(t *testing.T) {
	pool := NewPool(2, testLogger())
	defer func() { require.NoError(t, pool.Close()) }()

	a := pool.Occupy()
	b := pool.Occupy()
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.NotSame(t, a, b)
	assert.Nil(t, pool.Occupy(), "pool is saturated")
	assert.Equal(t, 2, pool.Size())
	assert.False(t, pool.NoActiveRunners())

	pool.Free(a)
	assert.False(t, pool.NoActiveRunners())
	again := pool.Occupy()
	assert.Same(t, a, again, "idle runners are reused before new ones are created")
	assert.Equal(t, 2, pool.Size())

	pool.Free(again)
	pool.Free(b)
	assert.True(t, pool.NoActiveRunners())
}

func TestPoolDoubleFreePanics(t *testing.T) {
	pool := NewPool(1, testLogger())
	defer func() { require.NoError(t, pool.Close()) }()

	r := pool.Occupy()
	require.NotNil(t, r)
	pool.Free(r)
	assert.Panics(t, func() { pool.Free(r) })
}

func TestUnboundedPool(t *testing.T) {
	pool := NewPool(Unbounded, testLogger())
	defer func() { require.NoError(t, pool.Close()) }()

	for i := 0; i < 50; i++ {
		require.NotNil(t, pool.Occupy())
	}
	assert.Equal(t, 50, pool.Size())
}

func TestNegativeLimitPanics(t *testing.T) {
	assert.Panics(t, func() { NewPool(-1, testLogger()) })
}

func TestRunnerExecutesTasksInOrder(t *testing.T) {
	pool := NewPool(1, testLogger())
	r := pool.Occupy()
	require.NotNil(t, r)

	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		r.Enqueue(func() {
			defer wg.Done()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	wg.Wait()
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
	require.NoError(t, pool.Close())
}

func TestStopWaitsForQueuedTasks(t *testing.T) {
	pool := NewPool(1, testLogger())
	r := pool.Occupy()
	require.NotNil(t, r)

	release := make(chan struct{})
	var ran []string
	r.Enqueue(func() {
		<-release
		ran = append(ran, "first")
	})
	r.Enqueue(func() { ran = append(ran, "second") })

	closed := make(chan error, 1)
	go func() { closed <- pool.Close() }()

	select {
	case <-closed:
		t.Fatal("Close returned while a task was still running")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-closed)
	assert.Equal(t, []string{"first", "second"}, ran)
	assert.Nil(t, pool.Occupy(), "stopped pools hand out no runners")
}
