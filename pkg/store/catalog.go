package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/huanfeng/apkstore-cli/internal/errors"
	"github.com/huanfeng/apkstore-cli/internal/version"
	"github.com/huanfeng/apkstore-cli/pkg/utils"
)

var userAgent = version.UserAgent()

const (
	catalogPath      = "apps.json"
	catalogCacheFile = "catalog.json"
)

// HTTPConfig controls timeouts and the 429 retry policy.
type HTTPConfig struct {
	Timeout    time.Duration
	MaxRetries int
	// RetryBase is the exponent base; attempt n waits RetryBase^n seconds.
	RetryBase float64
	MaxDelay  time.Duration
}

// DefaultHTTPConfig returns 30s timeouts and 3 retries with a base of 2 capped at 60s.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		RetryBase:  2.0,
		MaxDelay:   60 * time.Second,
	}
}

// retryDelay is the wait before retry attempt (1-based).
func (c HTTPConfig) retryDelay(attempt int) time.Duration {
	delay := time.Duration(math.Pow(c.RetryBase, float64(attempt)) * float64(time.Second))
	if delay > c.MaxDelay || delay < 0 {
		delay = c.MaxDelay
	}
	return delay
}

// NewHTTPClient builds the client used for the catalog and downloads.
// file:// URLs are served from the local filesystem.
func NewHTTPClient(cfg HTTPConfig) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: cfg.Timeout}).DialContext
	transport.ResponseHeaderTimeout = cfg.Timeout
	transport.RegisterProtocol("file", http.NewFileTransport(http.Dir("/")))
	return &http.Client{Transport: transport}
}

// Catalog error codes.
const (
	CodeAuthentication = "STORE_AUTHENTICATION"
	CodePermission     = "STORE_PERMISSION"
	CodeServer         = "STORE_SERVER_ERROR"
	CodeHTTP           = "STORE_HTTP_ERROR"
	CodeUnknownHost    = "STORE_UNKNOWN_HOST"
	CodeTimeout        = "STORE_TIMEOUT"
	CodeTransport      = "STORE_TRANSPORT"
	CodeDecode         = "STORE_DECODE"
)

// CatalogConfig configures a Catalog.
type CatalogConfig struct {
	// BaseURL is the directory that contains apps.json.
	BaseURL         string
	RefreshInterval time.Duration
	// CacheDir keeps the last good catalog for offline use. Empty disables it.
	CacheDir string
	HTTP     HTTPConfig
}

// Catalog loads the store's app list. Remote loads are rate limited to one
// per RefreshInterval; in between the last list is served from memory.
type Catalog struct {
	cfg    CatalogConfig
	client *http.Client
	logger utils.Logger
	group  singleflight.Group
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	apps     []StoreApp
	loadedAt time.Time
}

// NewCatalog creates a catalog client. A nil client uses NewHTTPClient(cfg.HTTP).
func NewCatalog(cfg CatalogConfig, client *http.Client, logger utils.Logger) *Catalog {
	if cfg.HTTP == (HTTPConfig{}) {
		cfg.HTTP = DefaultHTTPConfig()
	}
	if client == nil {
		client = NewHTTPClient(cfg.HTTP)
	}
	if logger == nil {
		logger = utils.WithComponent("catalog")
	}
	return &Catalog{
		cfg:    cfg,
		client: client,
		logger: logger,
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// Apps returns the catalog. The remote list is fetched when force is set,
// when nothing is loaded yet, or when the refresh interval has elapsed.
// If the remote fetch fails before anything was loaded, the disk cache is
// returned together with the error.
func (c *Catalog) Apps(ctx context.Context, force bool) ([]StoreApp, error) {
	c.mu.Lock()
	fresh := c.apps != nil && c.now().Sub(c.loadedAt) <= c.cfg.RefreshInterval
	cached := c.apps
	c.mu.Unlock()

	if fresh && !force {
		c.logger.Debug("Serving catalog from memory (%d apps)", len(cached))
		return cached, nil
	}

	v, err, shared := c.group.Do(catalogPath, func() (interface{}, error) {
		return c.Fetch(ctx)
	})
	if shared {
		c.logger.Debug("Joined in-flight catalog request")
	}
	if err != nil {
		if cached == nil {
			if offline, cacheErr := c.readCache(); cacheErr == nil {
				c.logger.Warn("Catalog unavailable, using cached copy: %v", err)
				return offline, err
			}
		}
		return cached, err
	}

	apps := v.([]StoreApp)
	c.mu.Lock()
	c.apps = apps
	c.loadedAt = c.now()
	c.mu.Unlock()

	if err := c.writeCache(apps); err != nil {
		c.logger.Warn("Failed to write catalog cache: %v", err)
	}
	return apps, nil
}

// Fetch downloads apps.json, retrying on HTTP 429 only.
func (c *Catalog) Fetch(ctx context.Context) ([]StoreApp, error) {
	endpoint, err := catalogURL(c.cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			delay := c.cfg.HTTP.retryDelay(attempt)
			c.logger.Info("Store is rate limiting, retrying in %v (attempt %d/%d)", delay, attempt, c.cfg.HTTP.MaxRetries)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		apps, status, err := c.fetchOnce(ctx, endpoint)
		if status == http.StatusTooManyRequests && attempt < c.cfg.HTTP.MaxRetries {
			continue
		}
		return apps, err
	}
}

func (c *Catalog) fetchOnce(ctx context.Context, endpoint string) ([]StoreApp, int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.HTTP.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, apperrors.WrapError(err, apperrors.ErrorTypeConfiguration, "STORE_URL_INVALID", "invalid catalog url")
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, transportError(err)
	}
	defer resp.Body.Close()
	c.logger.Debug("GET %s -> %d in %v", endpoint, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, statusError(resp.StatusCode)
	}

	var apps []StoreApp
	if err := json.NewDecoder(resp.Body).Decode(&apps); err != nil {
		return nil, resp.StatusCode, apperrors.WrapError(err, apperrors.ErrorTypeParsing, CodeDecode, "failed to decode store catalog")
	}
	if apps == nil {
		apps = []StoreApp{}
	}
	return apps, resp.StatusCode, nil
}

func catalogURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" {
		return "", apperrors.NewConfigurationError("STORE_URL_INVALID", fmt.Sprintf("invalid catalog url %q", base))
	}
	return u.JoinPath(catalogPath).String(), nil
}

// statusError maps an HTTP status to a typed error.
func statusError(status int) error {
	var err *apperrors.StoreError
	switch {
	case status == http.StatusUnauthorized:
		err = apperrors.NewPermissionError(CodeAuthentication, "store rejected the credentials")
	case status == http.StatusForbidden:
		err = apperrors.NewPermissionError(CodePermission, "access to the store was denied")
	case status >= 500:
		err = apperrors.NewNetworkError(CodeServer, fmt.Sprintf("store server error (HTTP %d)", status))
	default:
		err = apperrors.NewNetworkError(CodeHTTP, fmt.Sprintf("store request failed (HTTP %d)", status)).
			SetRetryable(status == http.StatusTooManyRequests)
	}
	return err.WithContext("status", strconv.Itoa(status))
}

// StatusCode returns the HTTP status attached to a catalog error, or 0.
func StatusCode(err error) int {
	var storeErr *apperrors.StoreError
	if errors.As(err, &storeErr) {
		if code, convErr := strconv.Atoi(storeErr.Context["status"]); convErr == nil {
			return code
		}
	}
	return 0
}

func transportError(err error) error {
	var dnsErr *net.DNSError
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.As(err, &dnsErr):
		return apperrors.WrapError(err, apperrors.ErrorTypeNetwork, CodeUnknownHost, "store host could not be resolved").
			SetRetryable(true)
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return apperrors.WrapError(err, apperrors.ErrorTypeTimeout, CodeTimeout, "store request timed out").
			SetRetryable(true)
	default:
		return apperrors.WrapError(err, apperrors.ErrorTypeNetwork, CodeTransport, "store request failed")
	}
}

func (c *Catalog) cachePath() string {
	return filepath.Join(c.cfg.CacheDir, catalogCacheFile)
}

func (c *Catalog) writeCache(apps []StoreApp) error {
	if c.cfg.CacheDir == "" {
		return nil
	}
	if err := os.MkdirAll(c.cfg.CacheDir, 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(apps, "", "  ")
	if err != nil {
		return err
	}
	return renameio.WriteFile(c.cachePath(), data, 0644)
}

func (c *Catalog) readCache() ([]StoreApp, error) {
	if c.cfg.CacheDir == "" {
		return nil, os.ErrNotExist
	}
	data, err := os.ReadFile(c.cachePath())
	if err != nil {
		return nil, err
	}
	var apps []StoreApp
	if err := json.Unmarshal(data, &apps); err != nil {
		return nil, err
	}
	return apps, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
