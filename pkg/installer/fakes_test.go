package installer

import (
	"bytes"
	"context"
	"io"
	"sync"
)

// memSource is an in-memory ApkSource whose declared length may lie.
type memSource struct {
	name     string
	data     []byte
	declared int64

	mu      sync.Mutex
	cleared int
}

func newMemSource(name string, data []byte) *memSource {
	return &memSource{name: name, data: data, declared: int64(len(data))}
}

func (s *memSource) Name() string           { return s.name }
func (s *memSource) Length() (int64, error) { return s.declared, nil }
func (s *memSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(s.data)), nil
}
func (s *memSource) InstallablePath(ctx context.Context, onProgress ProgressFunc) (string, error) {
	if onProgress != nil {
		onProgress(DefaultProgressMax, DefaultProgressMax)
	}
	return "/tmp/" + s.name, nil
}
func (s *memSource) ClearTempFiles() error {
	s.mu.Lock()
	s.cleared++
	s.mu.Unlock()
	return nil
}
func (s *memSource) clearedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleared
}

// cancelingSource cancels its install after the reader handed out n chunks.
type cancelingSource struct {
	*memSource
	n      int
	cancel context.CancelFunc
}

func (s *cancelingSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(&cancelingReader{r: bytes.NewReader(s.data), left: s.n, cancel: s.cancel}), nil
}

type cancelingReader struct {
	r      io.Reader
	left   int
	cancel context.CancelFunc
}

func (r *cancelingReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if r.left--; r.left == 0 {
		r.cancel()
	}
	return n, err
}

type bufferWriter struct {
	buf *bytes.Buffer
	mu  *sync.Mutex
}

func (w bufferWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}
func (w bufferWriter) Close() error { return nil }

// fakeSessions mimics the platform session service: staging fills the lower
// 0.8 of progress and consent bumps it to 0.9.
type fakeSessions struct {
	mu        sync.Mutex
	nextID    int
	created   int
	progress  map[int]float64
	staging   []float64
	data      map[int]*bytes.Buffer
	callbacks map[SessionCallback]struct{}
	abandoned []int
	committed []int

	// askUser makes Commit deliver StatusPendingUserAction first.
	askUser  bool
	terminal SessionStatus
	// silentConsent grants without delivering the terminal status.
	silentConsent bool
	// deniedStatus is delivered when the user declines.
	deniedStatus *SessionStatus
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{
		nextID:    100,
		progress:  make(map[int]float64),
		data:      make(map[int]*bytes.Buffer),
		callbacks: make(map[SessionCallback]struct{}),
		askUser:   true,
		terminal:  SessionStatus{Code: StatusSuccess},
	}
}

func (f *fakeSessions) CreateSession(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.created++
	f.progress[f.nextID] = 0
	f.data[f.nextID] = &bytes.Buffer{}
	return f.nextID, nil
}

func (f *fakeSessions) OpenWrite(ctx context.Context, sessionID int, name string, length int64) (io.WriteCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return bufferWriter{buf: f.data[sessionID], mu: &f.mu}, nil
}

func (f *fakeSessions) SetStagingProgress(sessionID int, progress float64) {
	f.mu.Lock()
	f.staging = append(f.staging, progress)
	f.mu.Unlock()
	f.setProgress(sessionID, progress*0.8)
}

func (f *fakeSessions) setProgress(sessionID int, progress float64) {
	f.mu.Lock()
	f.progress[sessionID] = progress
	cbs := make([]SessionCallback, 0, len(f.callbacks))
	for cb := range f.callbacks {
		cbs = append(cbs, cb)
	}
	f.mu.Unlock()
	for _, cb := range cbs {
		cb.OnProgressChanged(sessionID, progress)
	}
}

type consentFunc func(ctx context.Context, granted bool) error

func (c consentFunc) Consent(ctx context.Context, granted bool) error { return c(ctx, granted) }

func (f *fakeSessions) Commit(ctx context.Context, sessionID int, receiver StatusReceiver) error {
	f.mu.Lock()
	f.committed = append(f.committed, sessionID)
	terminal := f.terminal
	terminal.SessionID = sessionID
	askUser := f.askUser
	silent := f.silentConsent
	denied := f.deniedStatus
	f.mu.Unlock()

	if !askUser {
		f.setProgress(sessionID, 1)
		receiver.Deliver(terminal)
		return nil
	}
	receiver.Deliver(SessionStatus{
		SessionID: sessionID,
		Code:      StatusPendingUserAction,
		Action: consentFunc(func(ctx context.Context, granted bool) error {
			if !granted {
				if denied != nil {
					receiver.Deliver(*denied)
				}
				return nil
			}
			f.setProgress(sessionID, 0.9)
			if !silent {
				receiver.Deliver(terminal)
			}
			return nil
		}),
	})
	return nil
}

func (f *fakeSessions) Abandon(sessionID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.abandoned = append(f.abandoned, sessionID)
	delete(f.progress, sessionID)
	return nil
}

func (f *fakeSessions) SessionInfo(sessionID int) (SessionInfo, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.progress[sessionID]
	return SessionInfo{SessionID: sessionID, Progress: p}, ok
}

func (f *fakeSessions) RegisterCallback(cb SessionCallback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callbacks[cb] = struct{}{}
}

func (f *fakeSessions) UnregisterCallback(cb SessionCallback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.callbacks, cb)
}

func (f *fakeSessions) snapshot() (created int, abandoned []int, callbacks int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created, append([]int(nil), f.abandoned...), len(f.callbacks)
}

func (f *fakeSessions) written(sessionID int) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.data[sessionID].Bytes()...)
}

// promptFunc adapts a function to ConfirmationPrompt.
type promptFunc func(ctx context.Context, req ConfirmationRequest) (bool, error)

func (p promptFunc) Request(ctx context.Context, req ConfirmationRequest) (bool, error) {
	return p(ctx, req)
}

func approve() ConfirmationPrompt {
	return promptFunc(func(context.Context, ConfirmationRequest) (bool, error) { return true, nil })
}

func decline() ConfirmationPrompt {
	return promptFunc(func(context.Context, ConfirmationRequest) (bool, error) { return false, nil })
}

// blockingPrompt signals when asked and waits for ctx.
func blockingPrompt(asked chan<- ConfirmationRequest) ConfirmationPrompt {
	return promptFunc(func(ctx context.Context, req ConfirmationRequest) (bool, error) {
		asked <- req
		<-ctx.Done()
		return false, ctx.Err()
	})
}

type fakeLegacy struct {
	mu    sync.Mutex
	ok    bool
	paths []string
}

func (f *fakeLegacy) InstallPackage(ctx context.Context, path string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, path)
	return f.ok, nil
}

type fakeUninstall struct {
	mu       sync.Mutex
	packages []string
}

func (f *fakeUninstall) UninstallPackage(ctx context.Context, packageName string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.packages = append(f.packages, packageName)
	return true, nil
}

type fakeNotifier struct {
	mu        sync.Mutex
	posted    []Notification
	cancelled []int
	postedCh  chan Notification
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{postedCh: make(chan Notification, 4)}
}

func (n *fakeNotifier) Post(notification Notification) (int, error) {
	n.mu.Lock()
	n.posted = append(n.posted, notification)
	id := len(n.posted)
	n.mu.Unlock()
	n.postedCh <- notification
	return id, nil
}

func (n *fakeNotifier) Cancel(id int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancelled = append(n.cancelled, id)
}

func (n *fakeNotifier) cancelledIDs() []int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]int(nil), n.cancelled...)
}

// recordingCallback collects InstallAsync outcomes.
type recordingCallback struct {
	done     chan string
	mu       sync.Mutex
	cause    *FailureCause
	err      error
	progress []ProgressData
}

func newRecordingCallback() *recordingCallback {
	return &recordingCallback{done: make(chan string, 2)}
}

func (c *recordingCallback) OnProgress(p ProgressData) {
	c.mu.Lock()
	c.progress = append(c.progress, p)
	c.mu.Unlock()
}
func (c *recordingCallback) OnSuccess()  { c.done <- "success" }
func (c *recordingCallback) OnCanceled() { c.done <- "canceled" }
func (c *recordingCallback) OnFailure(cause *FailureCause) {
	c.mu.Lock()
	c.cause = cause
	c.mu.Unlock()
	c.done <- "failure"
}
func (c *recordingCallback) OnException(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	c.done <- "exception"
}
