package store

import (
	"context"
	"errors"

	"github.com/huanfeng/apkstore-cli/pkg/apk"
	"github.com/huanfeng/apkstore-cli/pkg/installer"
	"github.com/huanfeng/apkstore-cli/pkg/utils"
)

const (
	abortedWhileActive = "Can't install while another install session is active."
	abortedByUser      = "Installation was canceled."
)

// AppInstallManager drives the download, install and uninstall pipeline and
// publishes every step as an InstallationState. The latest state is replayed
// to new observers.
type AppInstallManager struct {
	downloader  *FileDownloader
	parser      apk.Parser
	installer   *installer.PackageInstaller
	uninstaller *installer.PackageUninstaller
	downloadDir string
	states      *installer.Broadcaster[InstallationState]
	logger      utils.Logger
}

// ManagerConfig wires an AppInstallManager.
type ManagerConfig struct {
	Downloader  *FileDownloader
	Parser      apk.Parser
	Installer   *installer.PackageInstaller
	Uninstaller *installer.PackageUninstaller
	DownloadDir string
	Logger      utils.Logger
}

// NewAppInstallManager creates a manager. Installer and Uninstaller may be
// nil when only downloads are needed.
func NewAppInstallManager(cfg ManagerConfig) *AppInstallManager {
	logger := cfg.Logger
	if logger == nil {
		logger = utils.WithComponent("install-manager")
	}
	return &AppInstallManager{
		downloader:  cfg.Downloader,
		parser:      cfg.Parser,
		installer:   cfg.Installer,
		uninstaller: cfg.Uninstaller,
		downloadDir: cfg.DownloadDir,
		states:      installer.NewBroadcaster[InstallationState](true),
		logger:      logger,
	}
}

// Observe subscribes to pipeline states. The last state, if any, is delivered first.
func (m *AppInstallManager) Observe() (<-chan InstallationState, func()) {
	return m.states.Subscribe()
}

// Latest returns the last published state.
func (m *AppInstallManager) Latest() (InstallationState, bool) {
	return m.states.Latest()
}

func (m *AppInstallManager) publish(s InstallationState) {
	m.logger.Debug("State: %s", s)
	m.states.Publish(s)
}

// Destination returns the download path of app.
func (m *AppInstallManager) Destination(app StoreApp) string {
	return DestinationFile(m.downloadDir, app)
}

// StartDownload makes app's package available locally. A cached file that
// passes Decide is reused without touching the network. It blocks until the
// download ends and returns the terminal state.
func (m *AppInstallManager) StartDownload(ctx context.Context, app StoreApp, installed *InstalledApp) InstallationState {
	target := m.Destination(app)
	cached := InspectCached(target, m.parser)

	var installedVersion *int64
	if installed != nil {
		v := installed.VersionCode
		installedVersion = &v
	}

	decision := Decide(cached, installedVersion, app.Version)
	m.logger.Debug("Cache decision for %s: %s (exists=%t valid=%t cached=%d remote=%d)",
		app.PackageName, decision, cached.Exists, cached.Valid, cached.VersionCode, app.Version)

	if decision == Reuse {
		done := DownloadCompleted{App: app, File: target, Info: cached.Info}
		m.publish(done)
		return done
	}

	var last InstallationState
	m.downloader.Download(ctx, app, target, func(s InstallationState) {
		last = s
		m.publish(s)
	})
	return last
}

// Install installs sources and publishes InstallStarted, InstallProgress and
// exactly one InstallCompleted. A second install while one is active
// completes with an Aborted failure instead of starting a session.
func (m *AppInstallManager) Install(ctx context.Context, opts installer.SessionOptions, sources ...installer.ApkSource) installer.InstallResult {
	if m.installer.HasActiveSession() {
		return m.complete(installer.Failed(installer.AbortedCause(abortedWhileActive)))
	}

	m.publish(InstallStarted{})
	cb := &installRelay{manager: m, done: make(chan installer.InstallResult, 1)}
	m.installer.InstallAsync(opts, cb, sources...)

	select {
	case result := <-cb.done:
		return m.complete(result)
	case <-ctx.Done():
		m.installer.Cancel()
		return m.complete(<-cb.done)
	}
}

func (m *AppInstallManager) complete(result installer.InstallResult) installer.InstallResult {
	m.publish(InstallCompleted{Result: result})
	return result
}

// CancelInstall cancels the active install session, if any.
func (m *AppInstallManager) CancelInstall() {
	m.installer.Cancel()
}

// HasActiveSession reports whether an install is in progress.
func (m *AppInstallManager) HasActiveSession() bool {
	return m.installer.HasActiveSession()
}

// Uninstall removes packageName and publishes UninstallStarted and UninstallCompleted.
func (m *AppInstallManager) Uninstall(ctx context.Context, packageName string, opts installer.SessionOptions) (bool, error) {
	m.publish(UninstallStarted{PackageName: packageName})
	ok, err := m.uninstaller.Uninstall(ctx, packageName, opts)
	if err != nil {
		m.logger.Warn("Uninstall of %s failed: %v", packageName, err)
	}
	m.publish(UninstallCompleted{PackageName: packageName, Success: ok && err == nil})
	return ok, err
}

// Close ends all observations.
func (m *AppInstallManager) Close() {
	m.states.Close()
}

// installRelay turns installer callbacks into pipeline states.
type installRelay struct {
	manager *AppInstallManager
	done    chan installer.InstallResult
}

func (r *installRelay) OnProgress(p installer.ProgressData) {
	r.manager.publish(InstallProgress{Progress: p})
}

func (r *installRelay) OnSuccess() {
	r.done <- installer.Succeeded()
}

func (r *installRelay) OnFailure(cause *installer.FailureCause) {
	r.done <- installer.Failed(cause)
}

func (r *installRelay) OnCanceled() {
	r.done <- installer.Failed(installer.AbortedCause(abortedByUser))
}

func (r *installRelay) OnException(err error) {
	if errors.Is(err, installer.ErrSessionActive) {
		r.done <- installer.Failed(installer.AbortedCause(abortedWhileActive))
		return
	}
	r.manager.logger.Error("Install machinery failed: %v", err)
	r.done <- installer.Failed(installer.GenericCause(err.Error()))
}
