package store

import (
	"fmt"
	"strings"
)

// StoreApp is one catalog entry.
type StoreApp struct {
	IsFirstParty bool   `json:"isNLLStoreApp"`
	Name         string `json:"name"`
	PackageName  string `json:"packageName"`
	Version      int64  `json:"version"`
	DownloadURL  string `json:"downloadUrl"`
	AutoUpdate   bool   `json:"autoUpdate"`
	LogoURL      string `json:"logoUrl"`
	Description  string `json:"description"`
	VersionNotes string `json:"versionNotes"`
	Website      string `json:"website"`
}

func (a StoreApp) String() string {
	return fmt.Sprintf("%s (%s) v%d", a.Name, a.PackageName, a.Version)
}

// InstalledApp is a package present on the device.
type InstalledApp struct {
	PackageName string
	Label       string
	VersionCode int64
}

// AppData joins a catalog entry with its installed counterpart, if any.
type AppData struct {
	Store     StoreApp
	Installed *InstalledApp
}

// IsInstalled reports whether the package is on the device.
func (a AppData) IsInstalled() bool {
	return a.Installed != nil
}

// CanBeUpdated is true when the catalog carries a newer version than the device.
func (a AppData) CanBeUpdated() bool {
	return a.Installed != nil && a.Store.Version > a.Installed.VersionCode
}

// mergeApps pairs every catalog entry with the installed package of the same name.
func mergeApps(catalog []StoreApp, installed []InstalledApp) []AppData {
	byName := make(map[string]InstalledApp, len(installed))
	for _, app := range installed {
		byName[app.PackageName] = app
	}

	apps := make([]AppData, 0, len(catalog))
	for _, entry := range catalog {
		data := AppData{Store: entry}
		if local, ok := byName[entry.PackageName]; ok {
			local := local
			data.Installed = &local
		}
		apps = append(apps, data)
	}
	return apps
}

// filterPrefix keeps the packages whose name starts with prefix. An empty
// prefix keeps everything.
func filterPrefix(installed []InstalledApp, prefix string) []InstalledApp {
	if prefix == "" {
		return installed
	}
	kept := installed[:0:0]
	for _, app := range installed {
		if strings.HasPrefix(app.PackageName, prefix) {
			kept = append(kept, app)
		}
	}
	return kept
}

// ConnectionStatus is the state of the catalog connection.
type ConnectionStatus int

const (
	Connecting ConnectionStatus = iota
	Connected
	ConnectionFailed
)

// ConnectionState is published whenever the catalog is (re)loaded.
// Err is set for ConnectionFailed.
type ConnectionState struct {
	Status ConnectionStatus
	Err    error
}

func (s ConnectionState) String() string {
	switch s.Status {
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	default:
		return fmt.Sprintf("Failed(%v)", s.Err)
	}
}
