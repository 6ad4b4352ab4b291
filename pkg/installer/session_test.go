package installer

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionGuardSingleWinner(t *testing.T) {
	var g SessionGuard
	var wins int32
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.TryAcquire() {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
	assert.True(t, g.Active())

	g.Release()
	assert.False(t, g.Active())
	assert.True(t, g.TryAcquire())
}

func TestBroadcasterKeepsNewest(t *testing.T) {
	b := NewBroadcaster[int](false)
	ch, stop := b.Subscribe()
	defer stop()

	b.Publish(1)
	b.Publish(2)
	b.Publish(3)
	assert.Equal(t, 3, <-ch)

	late, stopLate := b.Subscribe()
	defer stopLate()
	select {
	case v := <-late:
		t.Fatalf("unexpected replay of %d", v)
	default:
	}
}

func TestBroadcasterReplaysLatest(t *testing.T) {
	b := NewBroadcaster[string](true)
	b.Publish("idle")
	b.Publish("downloading")

	ch, stop := b.Subscribe()
	assert.Equal(t, "downloading", <-ch)
	stop()

	_, open := <-ch
	assert.False(t, open)

	b.Close()
	closed, _ := b.Subscribe()
	_, open = <-closed
	assert.False(t, open)
}

func TestMainThreadRunsInOrder(t *testing.T) {
	verifyNoLeaks(t)

	m := NewMainThread()
	defer m.Close()

	var got []int
	for i := 0; i < 5; i++ {
		i := i
		require.NoError(t, m.Post(func() { got = append(got, i) }))
	}
	require.NoError(t, m.Run(context.Background(), func() { got = append(got, 99) }))
	assert.Equal(t, []int{0, 1, 2, 3, 4, 99}, got)
}

func TestMainThreadClosed(t *testing.T) {
	m := NewMainThread()
	m.Close()
	assert.ErrorIs(t, m.Post(func() {}), ErrMainThreadClosed)
	assert.ErrorIs(t, m.Run(context.Background(), func() {}), ErrMainThreadClosed)
}

func TestFromStatus(t *testing.T) {
	tests := []struct {
		status SessionStatus
		want   string
	}{
		{SessionStatus{Code: StatusSuccess}, "Success"},
		{SessionStatus{Code: StatusFailure, Message: "boom"}, "Failure(INSTALL_FAILURE | boom)"},
		{SessionStatus{Code: StatusFailureBlocked, OtherPackageName: "com.mdm"},
			"Failure(INSTALL_FAILURE_BLOCKED | OTHER_PACKAGE_NAME = com.mdm)"},
		{SessionStatus{Code: StatusFailureStorage, Message: "full", StoragePath: "/data", OtherPackageName: "ignored"},
			"Failure(INSTALL_FAILURE_STORAGE | full | STORAGE_PATH = /data)"},
		{SessionStatus{Code: StatusFailureIncompat}, "Failure(INSTALL_FAILURE_INCOMPATIBLE)"},
		{SessionStatus{Code: 42}, "Failure"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FromStatus(tt.status).String())
	}

	conflict := FromStatus(SessionStatus{Code: StatusFailureConflict, StoragePath: "/ignored", OtherPackageName: "com.other"})
	require.NotNil(t, conflict.Cause)
	assert.Empty(t, conflict.Cause.StoragePath)
	assert.Equal(t, "com.other", conflict.Cause.OtherPackageName)
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.apk")
	require.NoError(t, os.WriteFile(path, []byte("apkdata"), 0o644))

	src := NewFileSource(path)
	n, err := src.Length()
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	got, err := src.InstallablePath(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, path, got)

	require.NoError(t, os.Remove(path))
	_, err = src.Open()
	assert.True(t, errors.Is(err, ErrSourceNotFound))
}

type mapResolver map[string]string

func (m mapResolver) Length(u *url.URL) (int64, error) {
	v, ok := m[u.String()]
	if !ok {
		return 0, fs.ErrNotExist
	}
	return int64(len(v)), nil
}

func (m mapResolver) Open(u *url.URL) (io.ReadCloser, error) {
	v, ok := m[u.String()]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return io.NopCloser(strings.NewReader(v)), nil
}

func TestURISourceMaterializesTempCopy(t *testing.T) {
	dir := t.TempDir()
	resolver := mapResolver{"content://downloads/1": "remote-apk"}

	src, err := NewURISource("content://downloads/1", resolver, dir)
	require.NoError(t, err)

	var last int
	path, err := src.InstallablePath(context.Background(), func(p, _ int) { last = p })
	require.NoError(t, err)
	assert.Equal(t, DefaultProgressMax, last)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "remote-apk", string(data))

	require.NoError(t, src.ClearTempFiles())
	_, err = os.Stat(path)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	assert.NoError(t, src.ClearTempFiles())
}

func TestURISourceRejectsUnknownScheme(t *testing.T) {
	_, err := NewURISource("ftp://example.com/app.apk", nil, t.TempDir())
	assert.True(t, errors.Is(err, ErrUnsupportedURI))

	src, err := NewURISource("content://downloads/missing", mapResolver{}, t.TempDir())
	require.NoError(t, err)
	_, err = src.Open()
	assert.True(t, errors.Is(err, ErrSourceNotFound))
}

func TestDescriptorSourceReadsRegion(t *testing.T) {
	r := strings.NewReader("headerPAYLOADtrailer")
	src := NewDescriptorSource("embedded.apk", r, 6, 7, t.TempDir())

	rc, err := src.Open()
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "PAYLOAD", string(data))

	path, err := src.InstallablePath(context.Background(), nil)
	require.NoError(t, err)
	assert.FileExists(t, path)
	require.NoError(t, src.ClearTempFiles())
	assert.NoFileExists(t, path)
}

func TestDefaultConfirmationText(t *testing.T) {
	known := DefaultConfirmationText(ConfirmInstall, func() (string, bool) { return "Notes", true })
	unknown := DefaultConfirmationText(ConfirmInstall, func() (string, bool) { return "", false })
	assert.Contains(t, known, "Notes")
	assert.NotEqual(t, known, unknown)
	assert.Equal(t, unknown, DefaultConfirmationText(ConfirmInstall, nil))
}

func TestUninstallerFlow(t *testing.T) {
	verifyNoLeaks(t)

	main := NewMainThread()
	defer main.Close()

	backend := &fakeUninstall{}
	var asked ConfirmationRequest
	prompt := promptFunc(func(_ context.Context, req ConfirmationRequest) (bool, error) {
		asked = req
		return req.PackageName != "com.example.keep", nil
	})
	u, err := NewPackageUninstaller(Platform{Uninstall: backend, Prompt: prompt}, main)
	require.NoError(t, err)

	ok, err := u.Uninstall(context.Background(), "com.example.app", immediate())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ConfirmUninstall, asked.Kind)

	ok, err = u.Uninstall(context.Background(), "com.example.keep", immediate())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []string{"com.example.app"}, backend.packages)
	assert.False(t, u.HasActiveSession())
}

type uninstallRecorder struct {
	done chan string
}

func (r uninstallRecorder) OnFinished(success bool) {
	if success {
		r.done <- "finished"
		return
	}
	r.done <- "declined"
}
func (r uninstallRecorder) OnCanceled()           { r.done <- "canceled" }
func (r uninstallRecorder) OnException(err error) { r.done <- "exception" }

func TestUninstallAsyncWhileActive(t *testing.T) {
	verifyNoLeaks(t)

	main := NewMainThread()
	defer main.Close()

	asked := make(chan ConfirmationRequest, 1)
	u, err := NewPackageUninstaller(Platform{Uninstall: &fakeUninstall{}, Prompt: blockingPrompt(asked)}, main)
	require.NoError(t, err)

	first := uninstallRecorder{done: make(chan string, 1)}
	u.UninstallAsync("com.example.app", immediate(), first)
	<-asked

	second := uninstallRecorder{done: make(chan string, 1)}
	u.UninstallAsync("com.example.other", immediate(), second)
	assert.Equal(t, "exception", <-second.done)

	_, err = u.Uninstall(context.Background(), "com.example.other", immediate())
	assert.True(t, errors.Is(err, ErrSessionActive))
	assert.Contains(t, err.Error(), "Can't uninstall while another uninstall session is active.")

	u.Cancel()
	select {
	case outcome := <-first.done:
		assert.Equal(t, "canceled", outcome)
	case <-time.After(5 * time.Second):
		t.Fatal("cancel was not delivered")
	}
}
