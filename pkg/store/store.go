package store

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/huanfeng/apkstore-cli/internal/errors"
	"github.com/huanfeng/apkstore-cli/pkg/installer"
	"github.com/huanfeng/apkstore-cli/pkg/utils"
)

// InstalledLister lists the packages installed on the device.
type InstalledLister interface {
	InstalledPackages(ctx context.Context) ([]InstalledApp, error)
}

// Store merges the catalog with the device's installed packages.
type Store struct {
	catalog *Catalog
	lister  InstalledLister
	prefix  string
	logger  utils.Logger

	connection *installer.Broadcaster[ConnectionState]
	apps       *installer.Broadcaster[[]AppData]
}

// NewStore creates a store. Only installed packages starting with prefix are
// considered; an empty prefix considers all of them.
func NewStore(catalog *Catalog, lister InstalledLister, prefix string, logger utils.Logger) *Store {
	if logger == nil {
		logger = utils.WithComponent("store")
	}
	s := &Store{
		catalog:    catalog,
		lister:     lister,
		prefix:     prefix,
		logger:     logger,
		connection: installer.NewBroadcaster[ConnectionState](true),
		apps:       installer.NewBroadcaster[[]AppData](true),
	}
	s.connection.Publish(ConnectionState{Status: Connected})
	return s
}

// ObserveConnection subscribes to the connection state; the current state is delivered first.
func (s *Store) ObserveConnection() (<-chan ConnectionState, func()) {
	return s.connection.Subscribe()
}

// ObserveApps subscribes to the merged app list; the current list is delivered first.
func (s *Store) ObserveApps() (<-chan []AppData, func()) {
	return s.apps.Subscribe()
}

// LoadApps fetches the catalog and the installed packages concurrently and
// joins them. A failing device listing is logged and treated as empty.
// force bypasses the catalog refresh interval.
func (s *Store) LoadApps(ctx context.Context, force bool) ([]AppData, error) {
	s.connection.Publish(ConnectionState{Status: Connecting})

	var catalog []StoreApp
	var installed []InstalledApp

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		apps, err := s.catalog.Apps(gctx, force)
		catalog = apps
		return err
	})
	g.Go(func() error {
		if s.lister == nil {
			return nil
		}
		list, err := s.lister.InstalledPackages(ctx)
		if err != nil {
			s.logger.Warn("Failed to list installed packages: %v", err)
			return nil
		}
		installed = filterPrefix(list, s.prefix)
		return nil
	})
	err := g.Wait()

	apps := mergeApps(catalog, installed)
	sort.SliceStable(apps, func(i, j int) bool { return apps[i].Store.Name < apps[j].Store.Name })

	if err != nil {
		s.logger.Warn("Failed to load store catalog: %v", err)
		s.connection.Publish(ConnectionState{Status: ConnectionFailed, Err: err})
		if len(apps) > 0 {
			s.apps.Publish(apps)
		}
		return apps, err
	}

	s.logger.Debug("Loaded %d apps, %d installed", len(apps), len(installed))
	s.apps.Publish(apps)
	s.connection.Publish(ConnectionState{Status: Connected})
	return apps, nil
}

// CheckUpdates reloads the list and returns the apps with a newer catalog version.
func (s *Store) CheckUpdates(ctx context.Context) ([]AppData, error) {
	apps, err := s.LoadApps(ctx, true)
	if err != nil && len(apps) == 0 {
		return nil, err
	}
	var updates []AppData
	for _, app := range apps {
		if app.CanBeUpdated() {
			updates = append(updates, app)
		}
	}
	return updates, err
}

// Find returns the app with packageName from the last loaded list.
func (s *Store) Find(ctx context.Context, packageName string) (AppData, error) {
	apps, ok := s.apps.Latest()
	if !ok {
		var err error
		if apps, err = s.LoadApps(ctx, false); err != nil && len(apps) == 0 {
			return AppData{}, err
		}
	}
	for _, app := range apps {
		if app.Store.PackageName == packageName {
			return app, nil
		}
	}
	return AppData{}, apperrors.NewNotFoundError("APP_NOT_FOUND", "package is not in the store catalog").
		WithContext("package", packageName)
}

// PackageLabel returns the catalog name of packageName from the last loaded list.
func (s *Store) PackageLabel(packageName string) (string, bool) {
	apps, _ := s.apps.Latest()
	for _, app := range apps {
		if app.Store.PackageName == packageName && app.Store.Name != "" {
			return app.Store.Name, true
		}
	}
	return "", false
}

// Close ends all observations.
func (s *Store) Close() {
	s.connection.Close()
	s.apps.Close()
}
