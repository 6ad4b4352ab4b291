package apk

import (
	"archive/zip"
	"context"
	"encoding/json"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	apperrors "github.com/huanfeng/apkstore-cli/internal/errors"
	"github.com/huanfeng/apkstore-cli/pkg/installer"
)

// BundleManifest is the manifest.json (or info.json) stored in XAPK/APKM files
type BundleManifest struct {
	PackageName string      `json:"package_name"`
	Name        string      `json:"name"`
	VersionCode json.Number `json:"version_code"`
	VersionName string      `json:"version_name"`
	SplitAPKs   []struct {
		File string `json:"file"`
		ID   string `json:"id"`
	} `json:"split_apks"`
}

// Bundle is an opened XAPK/APKM archive whose APK entries are installed as
// the parts of one session.
type Bundle struct {
	Manifest *BundleManifest
	reader   *zip.ReadCloser
	parts    []*zip.File
}

// OpenBundle opens path and locates its APK entries. The base APK comes first.
func OpenBundle(bundlePath string) (*Bundle, error) {
	reader, err := zip.OpenReader(bundlePath)
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrorTypeParsing, "BUNDLE_MALFORMED", "failed to open bundle (not a valid zip)").
			WithContext("path", bundlePath)
	}

	b := &Bundle{reader: reader}
	for _, f := range reader.File {
		name := path.Base(f.Name)
		switch {
		case name == "manifest.json" || name == "info.json":
			if m, err := readManifest(f); err == nil {
				b.Manifest = m
			}
		case strings.HasSuffix(strings.ToLower(name), ".apk"):
			b.parts = append(b.parts, f)
		}
	}

	if len(b.parts) == 0 {
		reader.Close()
		return nil, apperrors.NewParsingError("BUNDLE_EMPTY", "bundle contains no APK").
			WithContext("path", bundlePath)
	}

	sort.SliceStable(b.parts, func(i, j int) bool {
		bi, bj := isBaseEntry(b.parts[i].Name), isBaseEntry(b.parts[j].Name)
		if bi != bj {
			return bi
		}
		return b.parts[i].Name < b.parts[j].Name
	})
	return b, nil
}

func isBaseEntry(name string) bool {
	lower := strings.ToLower(path.Base(name))
	return lower == "base.apk" || (!strings.HasPrefix(lower, "config.") && !strings.HasPrefix(lower, "split_"))
}

func readManifest(f *zip.File) (*BundleManifest, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var m BundleManifest
	if err := json.NewDecoder(rc).Decode(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Parts returns the APK entry names in install order.
func (b *Bundle) Parts() []string {
	names := make([]string, len(b.parts))
	for i, f := range b.parts {
		names[i] = f.Name
	}
	return names
}

// Sources exposes every APK entry as an installer source. Temporary copies
// are written to tempDir when a backend needs a file path.
func (b *Bundle) Sources(tempDir string) []installer.ApkSource {
	sources := make([]installer.ApkSource, len(b.parts))
	for i, f := range b.parts {
		sources[i] = &entrySource{file: f, tempDir: tempDir}
	}
	return sources
}

// Close releases the archive.
func (b *Bundle) Close() error {
	return b.reader.Close()
}

// entrySource is one APK stored inside a bundle.
type entrySource struct {
	file    *zip.File
	tempDir string

	mu   sync.Mutex
	temp string
}

func (s *entrySource) Name() string { return path.Base(s.file.Name) }

func (s *entrySource) Length() (int64, error) {
	return int64(s.file.UncompressedSize64), nil
}

func (s *entrySource) Open() (io.ReadCloser, error) {
	return s.file.Open()
}

func (s *entrySource) InstallablePath(ctx context.Context, onProgress installer.ProgressFunc) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.temp != "" {
		return s.temp, nil
	}

	in, err := s.file.Open()
	if err != nil {
		return "", apperrors.WrapError(err, apperrors.ErrorTypeParsing, "BUNDLE_ENTRY_UNREADABLE", "failed to read bundle entry")
	}
	defer in.Close()

	out, err := os.CreateTemp(s.tempDir, "apkstore-part-*.apk")
	if err != nil {
		return "", apperrors.WrapError(err, apperrors.ErrorTypeFileSystem, "TEMP_COPY_FAILED", "failed to extract bundle entry")
	}
	s.temp = out.Name()

	length := int64(s.file.UncompressedSize64)
	if _, err := installer.CopyWithProgress(ctx, out, in, length, 0, onProgress); err != nil {
		return "", err
	}
	return s.temp, nil
}

func (s *entrySource) ClearTempFiles() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.temp == "" {
		return nil
	}
	err := os.Remove(s.temp)
	s.temp = ""
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
