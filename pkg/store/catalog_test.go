package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/huanfeng/apkstore-cli/internal/errors"
	"github.com/huanfeng/apkstore-cli/pkg/utils"
)

var sampleCatalog = []StoreApp{
	{Name: "Notes", PackageName: "org.example.notes", Version: 42, DownloadURL: "https://cdn.example.org/notes.apk"},
	{Name: "Camera", PackageName: "org.example.camera", Version: 7, DownloadURL: "https://cdn.example.org/camera.apk"},
}

// catalogServer answers apps.json with the scripted statuses, then with sampleCatalog.
func catalogServer(t *testing.T, statuses ...int) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/store/api/apps.json", r.URL.Path)
		n := atomic.AddInt32(&hits, 1)
		if int(n) <= len(statuses) {
			w.WriteHeader(statuses[n-1])
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(sampleCatalog)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newTestCatalog(baseURL, cacheDir string) (*Catalog, *[]time.Duration) {
	cfg := CatalogConfig{
		BaseURL:         baseURL,
		RefreshInterval: time.Hour,
		CacheDir:        cacheDir,
		HTTP:            DefaultHTTPConfig(),
	}
	c := NewCatalog(cfg, nil, utils.NewNopLogger())
	var delays []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return c, &delays
}

func TestCatalogRetriesRateLimit(t *testing.T) {
	srv, hits := catalogServer(t, http.StatusTooManyRequests, http.StatusTooManyRequests)
	c, delays := newTestCatalog(srv.URL+"/store/api/", "")

	apps, err := c.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sampleCatalog, apps)
	assert.Equal(t, int32(3), atomic.LoadInt32(hits))
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, *delays)
}

func TestCatalogGivesUpAfterMaxRetries(t *testing.T) {
	srv, hits := catalogServer(t, 429, 429, 429, 429, 429)
	c, _ := newTestCatalog(srv.URL+"/store/api", "")

	_, err := c.Fetch(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(4), atomic.LoadInt32(hits))
	assert.Equal(t, http.StatusTooManyRequests, StatusCode(err))
}

func TestCatalogDoesNotRetryOtherStatuses(t *testing.T) {
	tests := []struct {
		status int
		code   string
		kind   apperrors.ErrorType
	}{
		{http.StatusUnauthorized, CodeAuthentication, apperrors.ErrorTypePermission},
		{http.StatusForbidden, CodePermission, apperrors.ErrorTypePermission},
		{http.StatusNotFound, CodeHTTP, apperrors.ErrorTypeNetwork},
		{http.StatusBadGateway, CodeServer, apperrors.ErrorTypeNetwork},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv, hits := catalogServer(t, tt.status)
			c, delays := newTestCatalog(srv.URL+"/store/api", "")

			_, err := c.Fetch(context.Background())
			require.Error(t, err)
			assert.Equal(t, int32(1), atomic.LoadInt32(hits))
			assert.Empty(t, *delays)
			assert.Equal(t, tt.kind, apperrors.TypeOf(err))
			assert.Equal(t, tt.status, StatusCode(err))

			var storeErr *apperrors.StoreError
			require.ErrorAs(t, err, &storeErr)
			assert.Equal(t, tt.code, storeErr.Code)
		})
	}
}

func TestRetryDelayIsCapped(t *testing.T) {
	cfg := DefaultHTTPConfig()
	assert.Equal(t, 2*time.Second, cfg.retryDelay(1))
	assert.Equal(t, 8*time.Second, cfg.retryDelay(3))
	assert.Equal(t, 60*time.Second, cfg.retryDelay(10))
}

func TestCatalogRefreshWindow(t *testing.T) {
	srv, hits := catalogServer(t)
	c, _ := newTestCatalog(srv.URL+"/store/api", "")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_, err := c.Apps(context.Background(), false)
	require.NoError(t, err)
	now = now.Add(59 * time.Minute)
	_, err = c.Apps(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))

	now = now.Add(2 * time.Minute)
	_, err = c.Apps(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(hits))

	_, err = c.Apps(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(hits))
}

func TestCatalogFallsBackToCache(t *testing.T) {
	cacheDir := t.TempDir()
	srv, _ := catalogServer(t)
	online, _ := newTestCatalog(srv.URL+"/store/api", cacheDir)
	_, err := online.Apps(context.Background(), false)
	require.NoError(t, err)
	assert.FileExists(t, online.cachePath())

	down, _ := catalogServer(t, http.StatusInternalServerError)
	offline, _ := newTestCatalog(down.URL+"/store/api", cacheDir)
	apps, err := offline.Apps(context.Background(), false)
	require.Error(t, err)
	assert.Equal(t, sampleCatalog, apps)
}

func TestCatalogRejectsBadURL(t *testing.T) {
	c, _ := newTestCatalog("not a url", "")
	_, err := c.Fetch(context.Background())
	assert.Equal(t, apperrors.ErrorTypeConfiguration, apperrors.TypeOf(err))
}
