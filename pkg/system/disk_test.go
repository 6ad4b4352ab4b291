package system

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/huanfeng/apkstore-cli/internal/errors"
)

func TestCheckDiskSpace(t *testing.T) {
	usage, err := CheckDiskSpace(t.TempDir())
	require.NoError(t, err)
	assert.NotZero(t, usage.Total)
	assert.LessOrEqual(t, usage.Available, usage.Total)
	assert.LessOrEqual(t, usage.Used(), usage.Total)
}

func TestCheckDiskSpaceMissingPath(t *testing.T) {
	_, err := CheckDiskSpace(filepath.Join(t.TempDir(), "missing", "dir"))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeFileSystem, apperrors.TypeOf(err))
}

func TestEnsureSpace(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, EnsureSpace(dir, 1))

	err := EnsureSpace(dir, math.MaxUint64)
	require.Error(t, err)
	var storeErr *apperrors.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "INSUFFICIENT_SPACE", storeErr.Code)

	// Unknown usage never blocks a download.
	assert.NoError(t, EnsureSpace(filepath.Join(dir, "missing"), math.MaxUint64))
}
