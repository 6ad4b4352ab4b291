package installer

import (
	"context"
	"errors"
	"sync"

	apperrors "github.com/huanfeng/apkstore-cli/internal/errors"
	"github.com/huanfeng/apkstore-cli/pkg/utils"
)

// UninstallCallback receives the outcome of UninstallAsync.
type UninstallCallback interface {
	OnFinished(success bool)
	OnCanceled()
	OnException(err error)
}

// PackageUninstaller removes packages one session at a time.
type PackageUninstaller struct {
	backend  UninstallBackend
	prompt   ConfirmationPrompt
	labeler  PackageLabeler
	dispatch *Dispatcher
	guard    SessionGuard
	logger   utils.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewPackageUninstaller builds an uninstaller from platform.Uninstall.
func NewPackageUninstaller(platform Platform, main *MainThread, opts ...Option) (*PackageUninstaller, error) {
	s := newSettings("uninstaller", opts)
	if main == nil {
		return nil, apperrors.NewConfigurationError("MAIN_THREAD_REQUIRED", "uninstaller needs a main thread executor")
	}
	if platform.Uninstall == nil || platform.Prompt == nil {
		return nil, apperrors.NewConfigurationError("BACKEND_REQUIRED", "uninstaller needs a backend and a prompt")
	}
	return &PackageUninstaller{
		backend:  platform.Uninstall,
		prompt:   platform.Prompt,
		labeler:  platform.Labeler,
		dispatch: NewDispatcher(main, platform.Notifier, s.logger.WithField("component", "dispatch")),
		logger:   s.logger,
	}, nil
}

// Uninstall asks for confirmation and removes packageName. It returns false
// if the user declined or the platform failed.
func (u *PackageUninstaller) Uninstall(ctx context.Context, packageName string, opts SessionOptions) (bool, error) {
	if !u.guard.TryAcquire() {
		return false, sessionActiveError("uninstall")
	}
	return u.run(u.begin(ctx), packageName, opts)
}

// UninstallAsync runs Uninstall in the background. If a session is already
// active cb.OnException is called before return.
func (u *PackageUninstaller) UninstallAsync(packageName string, opts SessionOptions, cb UninstallCallback) {
	if !u.guard.TryAcquire() {
		cb.OnException(sessionActiveError("uninstall"))
		return
	}
	ctx := u.begin(context.Background())
	go func() {
		ok, err := u.run(ctx, packageName, opts)
		switch {
		case errors.Is(err, context.Canceled):
			cb.OnCanceled()
		case err != nil:
			cb.OnException(err)
		default:
			cb.OnFinished(ok)
		}
	}()
}

func (u *PackageUninstaller) begin(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	u.mu.Lock()
	u.cancel = cancel
	u.mu.Unlock()
	return ctx
}

func (u *PackageUninstaller) run(ctx context.Context, packageName string, opts SessionOptions) (bool, error) {
	defer func() {
		u.mu.Lock()
		if u.cancel != nil {
			u.cancel()
			u.cancel = nil
		}
		u.mu.Unlock()
		u.guard.Release()
	}()

	var meta appMeta
	if u.labeler != nil {
		meta.label = func() (string, bool) { return u.labeler.PackageLabel(packageName) }
	}
	label, _ := meta.labelOrEmpty()
	req := ConfirmationRequest{Kind: ConfirmUninstall, SessionID: -1, PackageName: packageName, Label: label}

	log := u.logger.WithField("package", packageName)
	ok, err := u.dispatch.Launch(ctx, opts, ConfirmUninstall, meta, func(ctx context.Context) (bool, error) {
		approved, err := u.prompt.Request(ctx, req)
		if err != nil || !approved {
			if err == nil {
				log.Info("Uninstall declined")
			}
			return false, err
		}
		return u.backend.UninstallPackage(ctx, packageName)
	})
	if err != nil {
		log.Warn("Uninstall ended with error: %v", err)
		return false, err
	}
	log.Info("Uninstall finished: %v", ok)
	return ok, nil
}

// Cancel cancels the active uninstall, if any.
func (u *PackageUninstaller) Cancel() {
	u.mu.Lock()
	cancel := u.cancel
	u.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// HasActiveSession reports whether an uninstall is in progress.
func (u *PackageUninstaller) HasActiveSession() bool {
	return u.guard.Active()
}
