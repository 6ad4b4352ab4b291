package cmd

import (
	"context"
	"os"
	"path/filepath"

	"github.com/huanfeng/apkstore-cli/internal/config"
	"github.com/huanfeng/apkstore-cli/pkg/adb"
	"github.com/huanfeng/apkstore-cli/pkg/apk"
	"github.com/huanfeng/apkstore-cli/pkg/console"
	"github.com/huanfeng/apkstore-cli/pkg/installer"
	"github.com/huanfeng/apkstore-cli/pkg/store"
	"github.com/huanfeng/apkstore-cli/pkg/utils"
)

// storeApp holds the components a command works with.
type storeApp struct {
	cfg     *config.Config
	logger  utils.Logger
	device  *adb.Client
	console *console.Console
	main    *installer.MainThread
	store   *store.Store
	manager *store.AppInstallManager
	parser  apk.Parser

	inst *installer.PackageInstaller
}

type appNeeds int

const (
	needCatalog appNeeds = iota
	needDevice
)

// newStoreApp wires catalog, device and installer from the configuration.
// With needCatalog a missing adb only disables the installed-app view.
func newStoreApp(ctx context.Context, cfg *config.Config, needs appNeeds) (*storeApp, error) {
	logger := utils.WithComponent("apkstore")
	a := &storeApp{
		cfg:     cfg,
		logger:  logger,
		console: console.New(os.Stdin, os.Stdout),
		parser:  apk.DefaultChain(logger.WithField("component", "apk")),
	}

	httpCfg := store.HTTPConfig{
		Timeout:    cfg.HTTP.Timeout,
		MaxRetries: cfg.HTTP.MaxRetries,
		RetryBase:  cfg.HTTP.RetryBase,
		MaxDelay:   cfg.HTTP.MaxDelay,
	}
	client := store.NewHTTPClient(httpCfg)
	catalog := store.NewCatalog(store.CatalogConfig{
		BaseURL:         cfg.Store.CatalogURL,
		RefreshInterval: cfg.Store.RefreshInterval,
		CacheDir:        cfg.Store.CacheDir,
		HTTP:            httpCfg,
	}, client, logger.WithField("component", "catalog"))

	device, err := adb.New(adb.Config{
		Path:                cfg.ADB.Path,
		Serial:              cfg.ADB.Device,
		RequireConfirmation: cfg.Installer.RequireConfirmation,
		User:                cfg.ADB.User,
	}, logger.WithField("component", "adb"))
	if err != nil {
		if needs == needDevice {
			return nil, err
		}
		logger.Debug("adb unavailable, installed apps are not shown: %v", err)
	}

	if device != nil && needs == needDevice {
		serial, err := selectDevice(ctx, device)
		if err != nil {
			return nil, err
		}
		device = device.WithSerial(serial)
	}

	var lister store.InstalledLister
	if device != nil {
		a.device = device
		lister = device
	}
	a.store = store.NewStore(catalog, lister, cfg.Store.PackagePrefix, logger.WithField("component", "store"))

	downloader := store.NewFileDownloader(client, a.parser, logger.WithField("component", "download"))
	mcfg := store.ManagerConfig{
		Downloader:  downloader,
		Parser:      a.parser,
		DownloadDir: cfg.Store.DownloadDir,
		Logger:      logger.WithField("component", "install-manager"),
	}

	if device != nil {
		if err := a.attachInstaller(ctx, &mcfg); err != nil {
			if needs == needDevice {
				a.Close()
				return nil, err
			}
			logger.Debug("installer unavailable: %v", err)
		}
	}
	a.manager = store.NewAppInstallManager(mcfg)
	return a, nil
}

func (a *storeApp) attachInstaller(ctx context.Context, mcfg *store.ManagerConfig) error {
	tier, auto, err := a.cfg.Tier()
	if err != nil {
		return err
	}
	if auto {
		detected, err := a.device.DetectTier(ctx)
		if err != nil {
			return err
		}
		tier = detected
	}
	a.logger.Debug("Using %s installer tier", tier)

	a.main = installer.NewMainThread()
	platform := installer.Platform{
		Sessions:  a.device,
		Legacy:    a.device,
		Uninstall: a.device,
		Prompt:    a.console.Prompt(assumeYes),
		Notifier:  a.console.Notifier(),
		Inspector: apk.NewInspector(a.parser, apk.NewIconExtractor(0), a.logger.WithField("component", "apk")),
		Labeler:   labelers{a.store, a.device},
	}
	opts := []installer.Option{
		installer.WithAliveWatermark(a.cfg.Installer.AliveWatermark),
		installer.WithLogger(a.logger.WithField("component", "installer")),
	}

	inst, err := installer.NewPackageInstaller(tier, platform, a.main, opts...)
	if err != nil {
		return err
	}
	uninst, err := installer.NewPackageUninstaller(platform, a.main, opts...)
	if err != nil {
		inst.Close()
		return err
	}
	a.inst = inst
	mcfg.Installer = inst
	mcfg.Uninstaller = uninst
	return nil
}

// labelers asks each labeler in turn.
type labelers []installer.PackageLabeler

func (l labelers) PackageLabel(pkg string) (string, bool) {
	for _, labeler := range l {
		if label, ok := labeler.PackageLabel(pkg); ok {
			return label, true
		}
	}
	return "", false
}

// loadApps loads the merged app list and shares catalog names with the device
// client for uninstall notifications.
func (a *storeApp) loadApps(ctx context.Context, force bool) ([]store.AppData, error) {
	apps, err := a.store.LoadApps(ctx, force)
	if a.device != nil && len(apps) > 0 {
		labels := make(map[string]string, len(apps))
		for _, app := range apps {
			labels[app.Store.PackageName] = app.Store.Name
		}
		a.device.SetLabels(labels)
	}
	return apps, err
}

func (a *storeApp) sessionOptions() installer.SessionOptions {
	return installer.NewSessionOptions(installer.WithConfirmation(a.cfg.Confirmation()))
}

// canInstall reports whether a device installer is attached.
func (a *storeApp) canInstall() bool {
	return a.main != nil
}

func (a *storeApp) tempDir() string {
	return filepath.Join(a.cfg.Store.DownloadDir, "tmp")
}

// Close releases the installer and stops observers.
func (a *storeApp) Close() {
	if a.manager != nil {
		a.manager.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
	if a.inst != nil {
		a.inst.Close()
	}
	if a.main != nil {
		a.main.Close()
	}
}
