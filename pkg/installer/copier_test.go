package installer

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closeRecorder struct {
	bytes.Buffer
	closed  bool
	flushed bool
}

func (c *closeRecorder) Close() error { c.closed = true; return nil }
func (c *closeRecorder) Flush() error { c.flushed = true; return nil }

func collectProgress(t *testing.T, size int) []int {
	t.Helper()
	var got []int
	dst := &closeRecorder{}
	n, err := CopyWithProgress(context.Background(), dst, bytes.NewReader(make([]byte, size)), int64(size), 0,
		func(progress, max int) {
			assert.Equal(t, DefaultProgressMax, max)
			got = append(got, progress)
		})
	require.NoError(t, err)
	assert.Equal(t, int64(size), n)
	assert.True(t, dst.closed)
	assert.True(t, dst.flushed)
	return got
}

func TestCopyWithProgressBoundsCallbacks(t *testing.T) {
	sizes := []int{
		1,
		ChunkSize - 1,
		ChunkSize,
		10*ChunkSize + 3,
		100 * ChunkSize,
		250*ChunkSize + 1,
		1000 * ChunkSize,
	}
	for _, size := range sizes {
		got := collectProgress(t, size)
		require.NotEmpty(t, got, "size %d", size)
		assert.LessOrEqual(t, len(got), progressSteps, "size %d", size)
		assert.Equal(t, DefaultProgressMax, got[len(got)-1], "size %d", size)
		for i := 1; i < len(got); i++ {
			assert.GreaterOrEqual(t, got[i], got[i-1], "size %d", size)
		}
	}
}

func TestCopyWithProgressSharedRange(t *testing.T) {
	first := bytes.Repeat([]byte{1}, 40*ChunkSize)
	second := bytes.Repeat([]byte{2}, 60*ChunkSize)
	total := int64(len(first) + len(second))

	var got []int
	record := func(progress, _ int) { got = append(got, progress) }

	dst := &closeRecorder{}
	_, err := CopyWithProgress(context.Background(), dst, bytes.NewReader(first), total, 0, record)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, 40, got[len(got)-1])

	dst2 := &closeRecorder{}
	_, err = CopyWithProgress(context.Background(), dst2, bytes.NewReader(second), total, int64(len(first)), record)
	require.NoError(t, err)
	assert.Equal(t, 41, got[40])
	assert.Equal(t, 100, got[len(got)-1])
	assert.Len(t, got, 100)
}

func TestCopyWithProgressStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	dst := &closeRecorder{}
	_, err := CopyWithProgress(ctx, dst, bytes.NewReader(make([]byte, 500*ChunkSize)), 500*ChunkSize, 0,
		func(int, int) {
			calls++
			cancel()
		})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, calls)
	assert.True(t, dst.closed)
}

func TestCopyWithProgressEmptySource(t *testing.T) {
	var got []int
	dst := &closeRecorder{}
	n, err := CopyWithProgress(context.Background(), dst, bytes.NewReader(nil), 0, 0, func(p, _ int) { got = append(got, p) })
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, []int{DefaultProgressMax}, got)
}
