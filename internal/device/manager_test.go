package device

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRunKeepsOrder(t *testing.T) {
	m := NewManager[int](WithWorkerLimit[int](2))
	serials := []string{"a", "bb", "ccc", "dddd"}

	results := m.Run(context.Background(), serials, func(ctx context.Context, serial string) (int, error) {
		time.Sleep(time.Duration(5-len(serial)) * time.Millisecond)
		if serial == "bb" {
			return 0, errors.New("offline")
		}
		return len(serial), nil
	})

	require.Len(t, results, 4)
	for i, r := range results {
		assert.Equal(t, serials[i], r.Serial)
	}
	assert.Equal(t, 1, results[0].Value)
	assert.EqualError(t, results[1].Err, "offline")
	assert.Equal(t, 4, results[3].Value)
}

func TestRunRespectsLimit(t *testing.T) {
	var running, peak int32
	m := NewManager[struct{}](WithWorkerLimit[struct{}](3))

	m.Run(context.Background(), make([]string, 12), func(ctx context.Context, serial string) (struct{}, error) {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return struct{}{}, nil
	})

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewManager[int]()
	results := m.Run(ctx, []string{"x", "y"}, func(ctx context.Context, serial string) (int, error) {
		t.Fatal("task must not run")
		return 0, nil
	})
	require.Len(t, results, 2)
	assert.ErrorIs(t, results[0].Err, context.Canceled)
	assert.ErrorIs(t, results[1].Err, context.Canceled)
}

func TestNewManagerDefaultsLimit(t *testing.T) {
	m := NewManager[int](WithWorkerLimit[int](-1))
	assert.Positive(t, m.workerLimit)
}
