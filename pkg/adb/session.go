package adb

import (
	"context"
	"io"
	"regexp"
	"strconv"
	"strings"
	"sync"

	apperrors "github.com/huanfeng/apkstore-cli/internal/errors"
	"github.com/huanfeng/apkstore-cli/pkg/installer"
)

// Session progress milestones, matching the platform's own reporting.
const (
	stagedShare     = 0.8
	committingShare = 0.9
)

var createdPattern = regexp.MustCompile(`Success: created install session \[(\d+)\]`)

type session struct {
	id        int
	progress  float64
	committed bool
}

// CreateSession opens a package manager install session.
func (c *Client) CreateSession(ctx context.Context) (int, error) {
	out, err := c.read(ctx, "shell", "pm", "install-create", "-r")
	if err != nil {
		return 0, err
	}
	m := createdPattern.FindStringSubmatch(out)
	if m == nil {
		return 0, apperrors.NewPlatformError("SESSION_CREATE_FAILED", "unexpected install-create output").
			WithContext("output", strings.TrimSpace(out))
	}
	id, _ := strconv.Atoi(m[1])

	c.mu.Lock()
	c.sessions[id] = &session{id: id}
	c.mu.Unlock()
	c.logger.Debug("Created install session %d", id)
	return id, nil
}

func (c *Client) session(id int) (*session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("SESSION_NOT_FOUND", "no such install session").
			WithContext("session", strconv.Itoa(id))
	}
	return s, nil
}

// OpenWrite streams one part into the session through pm install-write.
// The returned writer must receive exactly length bytes before Close.
func (c *Client) OpenWrite(ctx context.Context, sessionID int, name string, length int64) (io.WriteCloser, error) {
	if _, err := c.session(sessionID); err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	w := &partWriter{pw: pw, done: make(chan error, 1)}
	args := []string{"exec-in", "pm", "install-write", "-S", strconv.FormatInt(length, 10),
		strconv.Itoa(sessionID), name, "-"}

	go func() {
		runCtx, cancel := context.WithTimeout(ctx, c.cfg.InstallTimeout)
		defer cancel()
		out, errOut, err := c.run(runCtx, pr, args...)
		switch {
		case err != nil:
			err = commandError(args, err, errOut)
		case !strings.Contains(out, "Success"):
			err = apperrors.NewPlatformError("SESSION_WRITE_FAILED", "install-write was rejected").
				WithContext("output", strings.TrimSpace(out+errOut))
		}
		// Unblocks a writer still pushing into a dead process.
		pr.CloseWithError(io.ErrClosedPipe)
		w.done <- err
	}()
	return w, nil
}

type partWriter struct {
	pw   *io.PipeWriter
	done chan error
	once sync.Once
	err  error
}

func (w *partWriter) Write(p []byte) (int, error) {
	return w.pw.Write(p)
}

func (w *partWriter) Close() error {
	w.once.Do(func() {
		_ = w.pw.Close()
		w.err = <-w.done
	})
	return w.err
}

// SetStagingProgress records staging progress in the lower part of the range.
func (c *Client) SetStagingProgress(sessionID int, progress float64) {
	c.setProgress(sessionID, stagedShare*progress)
}

func (c *Client) setProgress(sessionID int, progress float64) {
	c.mu.Lock()
	s, ok := c.sessions[sessionID]
	if !ok {
		c.mu.Unlock()
		return
	}
	s.progress = progress
	callbacks := make([]installer.SessionCallback, 0, len(c.callbacks))
	for cb := range c.callbacks {
		callbacks = append(callbacks, cb)
	}
	c.mu.Unlock()

	for _, cb := range callbacks {
		cb.OnProgressChanged(sessionID, progress)
	}
}

// Commit finalizes the session. With RequireConfirmation it first delivers a
// pending-user-action status whose consent runs the actual commit.
func (c *Client) Commit(ctx context.Context, sessionID int, receiver installer.StatusReceiver) error {
	s, err := c.session(sessionID)
	if err != nil {
		return err
	}
	c.mu.Lock()
	if s.committed {
		c.mu.Unlock()
		return apperrors.NewConcurrencyError("SESSION_COMMITTED", "session was already committed").
			WithContext("session", strconv.Itoa(sessionID))
	}
	s.committed = true
	c.mu.Unlock()

	if c.cfg.RequireConfirmation {
		receiver.Deliver(installer.SessionStatus{
			SessionID: sessionID,
			Code:      installer.StatusPendingUserAction,
			Action:    &consent{client: c, sessionID: sessionID, receiver: receiver},
		})
		return nil
	}
	c.commitNow(ctx, sessionID, receiver)
	return nil
}

// commitNow runs pm install-commit and always delivers a terminal status.
func (c *Client) commitNow(ctx context.Context, sessionID int, receiver installer.StatusReceiver) {
	c.setProgress(sessionID, committingShare)

	unlock := c.lock()
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.InstallTimeout)
	defer cancel()

	args := []string{"shell", "pm", "install-commit", strconv.Itoa(sessionID)}
	out, errOut, err := c.run(ctx, nil, args...)
	combined := out + errOut

	if f, ok := parseFailure(combined); ok {
		c.logger.Warn("Session %d failed: %s", sessionID, f.Error())
		for _, s := range f.Suggestions {
			c.logger.Info("  - %s", s)
		}
		receiver.Deliver(f.status(sessionID))
		return
	}
	if err == nil && strings.Contains(combined, "Success") {
		c.setProgress(sessionID, 1)
		receiver.Deliver(installer.SessionStatus{SessionID: sessionID, Code: installer.StatusSuccess})
		return
	}

	message := strings.TrimSpace(combined)
	if err != nil {
		message = commandError(args, err, errOut).Error()
	}
	receiver.Deliver(installer.SessionStatus{SessionID: sessionID, Code: installer.StatusFailure, Message: message})
}

// consent relays the user's decision. A refusal leaves the session untouched,
// like a dismissed system dialog.
type consent struct {
	client    *Client
	sessionID int
	receiver  installer.StatusReceiver
	once      sync.Once
}

func (a *consent) Consent(ctx context.Context, granted bool) error {
	if !granted {
		a.client.logger.Info("Install session %d was not approved", a.sessionID)
		return nil
	}
	if _, err := a.client.session(a.sessionID); err != nil {
		return err
	}
	a.once.Do(func() { a.client.commitNow(ctx, a.sessionID, a.receiver) })
	return nil
}

// Abandon discards the session on the device.
func (c *Client) Abandon(sessionID int) error {
	c.mu.Lock()
	delete(c.sessions, sessionID)
	c.mu.Unlock()

	_, err := c.read(context.Background(), "shell", "pm", "install-abandon", strconv.Itoa(sessionID))
	return err
}

// SessionInfo returns the last known progress of a session.
func (c *Client) SessionInfo(sessionID int) (installer.SessionInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[sessionID]
	if !ok {
		return installer.SessionInfo{}, false
	}
	return installer.SessionInfo{SessionID: s.id, Progress: s.progress}, true
}

func (c *Client) RegisterCallback(cb installer.SessionCallback) {
	c.mu.Lock()
	c.callbacks[cb] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) UnregisterCallback(cb installer.SessionCallback) {
	c.mu.Lock()
	delete(c.callbacks, cb)
	c.mu.Unlock()
}
