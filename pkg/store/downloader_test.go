package store

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/huanfeng/apkstore-cli/internal/errors"
	"github.com/huanfeng/apkstore-cli/pkg/apk"
	"github.com/huanfeng/apkstore-cli/pkg/installer"
	"github.com/huanfeng/apkstore-cli/pkg/utils"
)

// fakePackage builds bytes that fakeParser accepts, padded to size.
func fakePackage(pkg string, version int64, size int) []byte {
	header := fmt.Sprintf("apk:%s:%d\n", pkg, version)
	if size < len(header) {
		size = len(header)
	}
	return append([]byte(header), bytes.Repeat([]byte{'x'}, size-len(header))...)
}

// fakeParser accepts files written by fakePackage.
type fakeParser struct {
	mu    sync.Mutex
	calls int
}

func (p *fakeParser) ParseFile(path string) (*apk.Info, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	line, _, _ := strings.Cut(string(data), "\n")
	fields := strings.Split(line, ":")
	if len(fields) != 3 || fields[0] != "apk" {
		return nil, apperrors.NewParsingError("APK_MALFORMED", "not a package")
	}
	code, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return nil, apperrors.NewParsingError("APK_MALFORMED", "bad version code")
	}
	return &apk.Info{PackageName: fields[1], VersionCode: code, VersionName: fields[2], Label: fields[1]}, nil
}

func (p *fakeParser) Describe() apk.ParserInfo {
	return apk.ParserInfo{Name: "fake", Available: true, Priority: 1}
}

func (p *fakeParser) CanParse(string) bool { return true }

type recorder struct {
	mu     sync.Mutex
	states []InstallationState
}

func (r *recorder) emit(s InstallationState) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *recorder) all() []InstallationState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]InstallationState(nil), r.states...)
}

func newDownloader() *FileDownloader {
	return NewFileDownloader(nil, &fakeParser{}, utils.NewNopLogger())
}

func TestDownloadServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	app := StoreApp{PackageName: "org.example", Version: 3, DownloadURL: srv.URL + "/app.apk"}
	target := filepath.Join(t.TempDir(), "org.example_3.apk")

	var rec recorder
	newDownloader().Download(context.Background(), app, target, rec.emit)

	assert.Equal(t, []InstallationState{
		DownloadStarted{App: app},
		DownloadError{App: app, Kind: DownloadErrorServer, StatusCode: 503},
	}, rec.all())
	assert.NoFileExists(t, target)
}

func TestDownloadMalformedFileIsDeleted(t *testing.T) {
	body := bytes.Repeat([]byte("z"), 3*installer.ChunkSize)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	app := StoreApp{PackageName: "org.example", Version: 3, DownloadURL: srv.URL + "/app.apk"}
	target := filepath.Join(t.TempDir(), "org.example_3.apk")

	var rec recorder
	newDownloader().Download(context.Background(), app, target, rec.emit)

	states := rec.all()
	require.GreaterOrEqual(t, len(states), 3)
	assert.Equal(t, DownloadStarted{App: app}, states[0])
	for _, s := range states[1 : len(states)-1] {
		assert.IsType(t, DownloadProgress{}, s)
	}
	assert.Equal(t, DownloadError{App: app, Kind: DownloadErrorMalformedFile}, states[len(states)-1])
	assert.NoFileExists(t, target)
}

func TestDownloadCompletes(t *testing.T) {
	body := fakePackage("org.example", 7, 2*installer.ChunkSize+100)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	app := StoreApp{PackageName: "org.example", Version: 7, DownloadURL: srv.URL + "/files/app.apk"}
	target := DestinationFile(t.TempDir(), app)

	var rec recorder
	newDownloader().Download(context.Background(), app, target, rec.emit)

	states := rec.all()
	require.NotEmpty(t, states)
	last, ok := states[len(states)-1].(DownloadCompleted)
	require.True(t, ok, "last state %s", states[len(states)-1])
	assert.Equal(t, target, last.File)
	assert.Equal(t, int64(7), last.Info.VersionCode)

	prev := -1
	var copied int64
	for _, s := range states[1 : len(states)-1] {
		p := s.(DownloadProgress)
		assert.GreaterOrEqual(t, p.Percent, prev)
		assert.Equal(t, int64(len(body)), p.TotalBytes)
		prev, copied = p.Percent, p.BytesCopied
	}
	assert.Equal(t, 100, prev)
	assert.Equal(t, int64(len(body)), copied)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, body, data)
}

func TestDownloadReplacesStaleFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	target := filepath.Join(t.TempDir(), "stale.apk")
	require.NoError(t, os.WriteFile(target, []byte("partial"), 0o644))

	var rec recorder
	newDownloader().Download(context.Background(), StoreApp{DownloadURL: srv.URL}, target, rec.emit)

	assert.Len(t, rec.all(), 2)
	assert.NoFileExists(t, target)
}

func TestDownloadTransportErrorIsGeneric(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	var rec recorder
	newDownloader().Download(context.Background(), StoreApp{DownloadURL: url + "/a.apk"}, filepath.Join(t.TempDir(), "a.apk"), rec.emit)

	states := rec.all()
	require.Len(t, states, 2)
	e, ok := states[1].(DownloadError)
	require.True(t, ok)
	assert.Equal(t, DownloadErrorGeneric, e.Kind)
	assert.NotEmpty(t, e.Message)
}

func TestDownloadFromFileURL(t *testing.T) {
	src := filepath.Join(t.TempDir(), "local.apk")
	require.NoError(t, os.WriteFile(src, fakePackage("org.local", 2, 10), 0o644))

	app := StoreApp{PackageName: "org.local", Version: 2, DownloadURL: "file://" + filepath.ToSlash(src)}
	target := DestinationFile(t.TempDir(), app)

	var rec recorder
	newDownloader().Download(context.Background(), app, target, rec.emit)

	states := rec.all()
	assert.IsType(t, DownloadCompleted{}, states[len(states)-1])
}

func TestPercentOf(t *testing.T) {
	assert.Equal(t, 0, percentOf(10, -1))
	assert.Equal(t, 33, percentOf(1, 3))
	assert.Equal(t, 100, percentOf(3, 3))
	const nearLimit = int64(2<<30 - 1)
	assert.Equal(t, 99, percentOf(nearLimit-1<<20, nearLimit))
}

func TestDestinationFile(t *testing.T) {
	app := StoreApp{PackageName: "org.example", Version: 12, DownloadURL: "https://cdn.example.org/x/App.APK?sig=1"}
	assert.Equal(t, filepath.Join("/data", "apks", "org.example_12.apk"), DestinationFile("/data", app))

	app.DownloadURL = "https://cdn.example.org/bundle.xapk"
	assert.Equal(t, filepath.Join("/data", "apks", "org.example_12.xapk"), DestinationFile("/data", app))

	app.DownloadURL = "https://cdn.example.org/download"
	assert.Equal(t, filepath.Join("/data", "apks", "org.example_12.apk"), DestinationFile("/data", app))
}
