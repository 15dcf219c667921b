package parallel

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFor(t *testing.T) {
	var counter int64
	n := 1000

	For(n, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, DefaultConfig())

	assert.Equal(t, int64(n), counter)
}

func TestFor_VisitsEveryIndexOnce(t *testing.T) {
	n := 517
	seen := make([]int32, n)

	For(n, func(i int) {
		atomic.AddInt32(&seen[i], 1)
	}, WithWorkers(7))

	for i, c := range seen {
		require.Equal(t, int32(1), c, "index %d", i)
	}
}

func TestFor_Sequential(t *testing.T) {
	order := make([]int, 0, 100)
	For(100, func(i int) {
		order = append(order, i)
	}, WithWorkers(1))

	require.Len(t, order, 100)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestWithWorkers(t *testing.T) {
	assert.False(t, WithWorkers(0).Enabled)
	assert.Equal(t, 1, WithWorkers(0).NumWorkers)
	assert.True(t, WithWorkers(4).Enabled)
}
