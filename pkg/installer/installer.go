package installer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	apperrors "github.com/huanfeng/apkstore-cli/internal/errors"
	"github.com/huanfeng/apkstore-cli/pkg/utils"
)

// Tier is the platform capability level an installer is built for.
type Tier int

const (
	// TierStaged writes parts into a platform session and supports split packages.
	TierStaged Tier = iota
	// TierLegacy hands a single file to the platform's implicit install flow.
	TierLegacy
)

func (t Tier) String() string {
	if t == TierLegacy {
		return "legacy"
	}
	return "staged"
}

// ParseTier parses "staged" or "legacy".
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "staged", "session", "":
		return TierStaged, nil
	case "legacy":
		return TierLegacy, nil
	default:
		return TierStaged, fmt.Errorf("unknown installer tier: %s", s)
	}
}

// Platform bundles the collaborators installers and uninstallers use.
// Only the backend for the selected tier is required.
type Platform struct {
	Sessions  SessionBackend
	Legacy    LegacyBackend
	Uninstall UninstallBackend
	Prompt    ConfirmationPrompt
	Notifier  Notifier
	Inspector ArchiveInspector
	Labeler   PackageLabeler
}

type settings struct {
	watermark float64
	logger    utils.Logger
}

// Option configures an installer or uninstaller.
type Option func(*settings)

// WithAliveWatermark overrides DefaultAliveWatermark.
func WithAliveWatermark(w float64) Option {
	return func(s *settings) {
		if w > 0 && w <= 1 {
			s.watermark = w
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l utils.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

func newSettings(component string, opts []Option) settings {
	s := settings{watermark: DefaultAliveWatermark}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = utils.WithComponent(component)
	}
	return s
}

type installTier interface {
	name() string
	install(ctx context.Context, sources []ApkSource, opts SessionOptions) (InstallResult, error)
}

// InstallCallback receives the outcome of InstallAsync. Exactly one of the
// terminal methods is called per request.
type InstallCallback interface {
	OnProgress(progress ProgressData)
	OnSuccess()
	OnFailure(cause *FailureCause)
	OnCanceled()
	OnException(err error)
}

// PackageInstaller installs packages one session at a time.
type PackageInstaller struct {
	tier     installTier
	guard    SessionGuard
	progress *Broadcaster[ProgressData]
	logger   utils.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewPackageInstaller builds an installer for tier. The tier is fixed for the
// lifetime of the installer.
func NewPackageInstaller(tier Tier, platform Platform, main *MainThread, opts ...Option) (*PackageInstaller, error) {
	s := newSettings("installer", opts)
	if main == nil {
		return nil, apperrors.NewConfigurationError("MAIN_THREAD_REQUIRED", "installer needs a main thread executor")
	}
	if platform.Prompt == nil {
		return nil, apperrors.NewConfigurationError("PROMPT_REQUIRED", "installer needs a confirmation prompt")
	}

	p := &PackageInstaller{
		progress: NewBroadcaster[ProgressData](false),
		logger:   s.logger,
	}
	dispatch := NewDispatcher(main, platform.Notifier, s.logger.WithField("component", "dispatch"))

	switch tier {
	case TierLegacy:
		if platform.Legacy == nil {
			return nil, apperrors.NewConfigurationError("BACKEND_REQUIRED", "legacy tier needs a legacy backend")
		}
		p.tier = &legacyTier{
			backend:   platform.Legacy,
			prompt:    platform.Prompt,
			dispatch:  dispatch,
			inspector: platform.Inspector,
			emit:      p.progress.Publish,
			logger:    s.logger,
		}
	default:
		if platform.Sessions == nil {
			return nil, apperrors.NewConfigurationError("BACKEND_REQUIRED", "staged tier needs a session backend")
		}
		p.tier = &stagedTier{
			backend:   platform.Sessions,
			prompt:    platform.Prompt,
			dispatch:  dispatch,
			main:      main,
			inspector: platform.Inspector,
			watermark: s.watermark,
			emit:      p.progress.Publish,
			logger:    s.logger,
		}
	}
	return p, nil
}

// Install runs one install session and blocks until it finishes. An error is
// returned for exceptional outcomes; a platform rejection is a failed result.
func (p *PackageInstaller) Install(ctx context.Context, opts SessionOptions, sources ...ApkSource) (InstallResult, error) {
	if !p.guard.TryAcquire() {
		return InstallResult{}, sessionActiveError("install")
	}
	return p.run(p.begin(ctx), opts, sources)
}

// InstallAsync starts an install in the background and reports through cb.
// If a session is already active cb.OnException is called before return.
func (p *PackageInstaller) InstallAsync(opts SessionOptions, cb InstallCallback, sources ...ApkSource) {
	if !p.guard.TryAcquire() {
		cb.OnException(sessionActiveError("install"))
		return
	}

	ctx := p.begin(context.Background())
	updates, unsubscribe := p.progress.Subscribe()
	go func() {
		forwarded := make(chan struct{})
		go func() {
			defer close(forwarded)
			for pd := range updates {
				cb.OnProgress(pd)
			}
		}()

		result, err := p.run(ctx, opts, sources)
		unsubscribe()
		<-forwarded

		switch {
		case errors.Is(err, context.Canceled):
			cb.OnCanceled()
		case err != nil:
			cb.OnException(err)
		case result.Success:
			cb.OnSuccess()
		default:
			cb.OnFailure(result.Cause)
		}
	}()
}

// begin derives the cancellable context of a session. The caller must hold the guard.
func (p *PackageInstaller) begin(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()
	return ctx
}

func (p *PackageInstaller) run(ctx context.Context, opts SessionOptions, sources []ApkSource) (InstallResult, error) {
	defer p.finish(sources)

	if len(sources) == 0 {
		return Failed(GenericCause("No APKs provided.")), nil
	}
	p.logger.Info("Starting %s install of %d part(s)", p.tier.name(), len(sources))
	result, err := p.tier.install(ctx, sources, opts)
	if err != nil {
		p.logger.Warn("Install ended with error: %v", err)
	} else {
		p.logger.Info("Install finished: %s", result)
	}
	return result, err
}

func (p *PackageInstaller) finish(sources []ApkSource) {
	for _, src := range sources {
		if err := src.ClearTempFiles(); err != nil {
			p.logger.Warn("Failed to clear temp files of %s: %v", src.Name(), err)
		}
	}
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.mu.Unlock()
	p.guard.Release()
}

// Cancel cancels the active session, if any.
func (p *PackageInstaller) Cancel() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// HasActiveSession reports whether an install is in progress.
func (p *PackageInstaller) HasActiveSession() bool {
	return p.guard.Active()
}

// Progress subscribes to progress of the active and future sessions.
// Nothing is replayed to a new subscriber.
func (p *PackageInstaller) Progress() (<-chan ProgressData, func()) {
	return p.progress.Subscribe()
}

// Close ends all progress subscriptions.
func (p *PackageInstaller) Close() {
	p.Cancel()
	p.progress.Close()
}
