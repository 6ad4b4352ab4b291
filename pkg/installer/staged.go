package installer

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/huanfeng/apkstore-cli/pkg/utils"
)

// DefaultAliveWatermark is the session progress a committed session must have
// reached after the user was asked. The platform parks a session at 0.8 until
// consent, so anything below means the user declined or dismissed the prompt.
const DefaultAliveWatermark = 0.81

// stagedTier writes every part into a platform session and commits it.
type stagedTier struct {
	backend   SessionBackend
	prompt    ConfirmationPrompt
	dispatch  *Dispatcher
	main      *MainThread
	inspector ArchiveInspector
	watermark float64
	emit      func(ProgressData)
	logger    utils.Logger
}

func (t *stagedTier) name() string { return "staged" }

// progressRelay forwards session progress for one session id.
type progressRelay struct {
	sessionID int
	emit      func(ProgressData)
}

func (r *progressRelay) OnProgressChanged(sessionID int, progress float64) {
	if sessionID != r.sessionID {
		return
	}
	r.emit(NewProgress(clampPercent(progress*DefaultProgressMax + 0.5)))
}

func (t *stagedTier) install(ctx context.Context, sources []ApkSource, opts SessionOptions) (result InstallResult, err error) {
	sessionID, err := t.backend.CreateSession(ctx)
	if err != nil {
		return InstallResult{}, err
	}
	log := t.logger.WithField("session", sessionID)
	log.Debug("Created session for %d part(s)", len(sources))

	defer func() {
		if err != nil {
			t.abandon(log, sessionID)
		}
	}()

	relay := &progressRelay{sessionID: sessionID, emit: t.emit}
	var registered atomic.Bool
	defer func() {
		if !registered.Load() {
			return
		}
		// Cleanup still runs when ctx is already cancelled.
		cleanup := context.WithoutCancel(ctx)
		if rerr := t.main.Run(cleanup, func() { t.backend.UnregisterCallback(relay) }); rerr != nil {
			log.Warn("Failed to unregister session callback: %v", rerr)
		}
	}()
	if err = t.main.Run(ctx, func() {
		t.backend.RegisterCallback(relay)
		registered.Store(true)
	}); err != nil {
		return InstallResult{}, err
	}

	if err = t.writeParts(ctx, sessionID, sources); err != nil {
		return InstallResult{}, err
	}
	t.emit(IndeterminateProgress())

	var meta appMeta
	if len(sources) > 0 {
		if p, ok := sources[0].(Pather); ok {
			meta = archiveMeta(t.inspector, p.Path())
		}
	}
	label, _ := meta.labelOrEmpty()
	req := ConfirmationRequest{Kind: ConfirmInstall, SessionID: sessionID, Label: label, Parts: len(sources)}

	statuses := newStatusQueue()
	alive, err := t.dispatch.Launch(ctx, opts, ConfirmInstall, meta, func(ctx context.Context) (bool, error) {
		return t.commit(ctx, sessionID, statuses, req)
	})
	if err != nil {
		return InstallResult{}, err
	}
	if !alive {
		log.Info("Session did not progress after confirmation, abandoning")
		t.abandon(log, sessionID)
		return Failed(GenericCause("Installation was not confirmed.")), nil
	}

	status, err := statuses.awaitTerminal(ctx)
	if err != nil {
		return InstallResult{}, err
	}
	log.Debug("Session finished with status %d", status.Code)
	return FromStatus(status), nil
}

// writeParts streams every source into the session. Progress is reported
// against the combined length of all parts.
func (t *stagedTier) writeParts(ctx context.Context, sessionID int, sources []ApkSource) error {
	lengths := make([]int64, len(sources))
	var total int64
	for i, src := range sources {
		n, err := src.Length()
		if err != nil {
			return err
		}
		lengths[i] = n
		total += n
	}

	onProgress := func(progress, max int) {
		t.backend.SetStagingProgress(sessionID, float64(progress)/float64(max))
	}

	var offset int64
	for i, src := range sources {
		if err := t.writePart(ctx, sessionID, i, src, lengths[i], total, offset, onProgress); err != nil {
			return err
		}
		offset += lengths[i]
	}
	return nil
}

func (t *stagedTier) writePart(ctx context.Context, sessionID, index int, src ApkSource, length, total, offset int64, onProgress ProgressFunc) error {
	in, err := src.Open()
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := t.backend.OpenWrite(ctx, sessionID, fmt.Sprintf("temp%d.apk", index), length)
	if err != nil {
		return err
	}
	written, err := CopyWithProgress(ctx, out, in, total, offset, onProgress)
	if err != nil {
		return err
	}
	if written != length {
		return lengthMismatchError(src.Name(), length, written)
	}
	return nil
}

// commit runs after the confirmation UI is open. It reports whether the
// session is still alive once the user has been asked.
func (t *stagedTier) commit(ctx context.Context, sessionID int, statuses *statusQueue, req ConfirmationRequest) (bool, error) {
	if err := t.backend.Commit(ctx, sessionID, statuses); err != nil {
		return false, err
	}

	first, err := statuses.next(ctx)
	if err != nil {
		return false, err
	}
	if first.Code != StatusPendingUserAction {
		// Terminal without asking; hand it back to the waiter.
		statuses.Deliver(first)
		return true, nil
	}

	approved, err := t.prompt.Request(ctx, req)
	if err != nil {
		return false, err
	}
	if first.Action != nil {
		if err := first.Action.Consent(ctx, approved); err != nil {
			return false, err
		}
	}
	return t.alive(sessionID, statuses), nil
}

func (t *stagedTier) alive(sessionID int, statuses *statusQueue) bool {
	if statuses.peekTerminal() {
		return true
	}
	info, ok := t.backend.SessionInfo(sessionID)
	if !ok {
		return false
	}
	return info.Progress >= t.watermark
}

func (t *stagedTier) abandon(log utils.Logger, sessionID int) {
	if err := t.backend.Abandon(sessionID); err != nil {
		log.Debug("Abandon failed: %v", err)
	}
}
