package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/huanfeng/apkstore-cli/pkg/apk"
	"github.com/huanfeng/apkstore-cli/pkg/installer"
	"github.com/huanfeng/apkstore-cli/pkg/system"
	"github.com/huanfeng/apkstore-cli/pkg/utils"
)

// downloadsSubdir holds downloaded packages under the download directory.
const downloadsSubdir = "apks"

// DestinationFile returns where app is downloaded to:
// <baseDir>/apks/<packageName>_<version>.<ext>, with ext taken from the URL.
func DestinationFile(baseDir string, app StoreApp) string {
	ext := "apk"
	if u, err := url.Parse(app.DownloadURL); err == nil {
		if e := strings.TrimPrefix(path.Ext(u.Path), "."); e != "" {
			ext = strings.ToLower(e)
		}
	}
	name := fmt.Sprintf("%s_%d.%s", app.PackageName, app.Version, ext)
	return filepath.Join(baseDir, downloadsSubdir, name)
}

// FileDownloader fetches a package into a local file and validates it.
type FileDownloader struct {
	client *http.Client
	parser apk.Parser
	logger utils.Logger
}

// NewFileDownloader creates a downloader. A nil client uses NewHTTPClient defaults.
func NewFileDownloader(client *http.Client, parser apk.Parser, logger utils.Logger) *FileDownloader {
	if client == nil {
		client = NewHTTPClient(DefaultHTTPConfig())
	}
	if logger == nil {
		logger = utils.WithComponent("downloader")
	}
	return &FileDownloader{client: client, parser: parser, logger: logger}
}

// Download fetches app into target and reports every step through emit:
// DownloadStarted, any number of DownloadProgress, then exactly one of
// DownloadCompleted or DownloadError. It never resumes a previous attempt.
// Failures are reported as events only.
func (d *FileDownloader) Download(ctx context.Context, app StoreApp, target string, emit func(InstallationState)) {
	staleErr := os.Remove(target)
	if errors.Is(staleErr, fs.ErrNotExist) {
		staleErr = nil
	} else if staleErr == nil {
		d.logger.Debug("Deleted previous download %s", target)
	}

	emit(DownloadStarted{App: app})
	if staleErr != nil {
		emit(DownloadError{App: app, Kind: DownloadErrorGeneric, Message: staleErr.Error()})
		return
	}

	d.logger.Debug("Downloading %s to %s", app.DownloadURL, target)
	if state := d.fetch(ctx, app, target, emit); state != nil {
		emit(state)
		return
	}

	info, err := d.parser.ParseFile(target)
	if err != nil {
		d.logger.Warn("Downloaded file %s is malformed: %v", target, err)
		if rmErr := os.Remove(target); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			d.logger.Warn("Failed to delete malformed file: %v", rmErr)
		}
		emit(DownloadError{App: app, Kind: DownloadErrorMalformedFile})
		return
	}

	d.logger.Info("Downloaded %s (%s %s)", app.PackageName, info.PackageName, info.VersionName)
	emit(DownloadCompleted{App: app, File: target, Info: info})
}

// fetch streams the body into target. A non-nil result is the error event to emit.
func (d *FileDownloader) fetch(ctx context.Context, app StoreApp, target string, emit func(InstallationState)) InstallationState {
	generic := func(err error) InstallationState {
		d.logger.Warn("Download of %s failed: %v", app.PackageName, err)
		return DownloadError{App: app, Kind: DownloadErrorGeneric, Message: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, app.DownloadURL, nil)
	if err != nil {
		return generic(err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return generic(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		d.logger.Warn("Download of %s failed with HTTP %d", app.PackageName, resp.StatusCode)
		return DownloadError{App: app, Kind: DownloadErrorServer, StatusCode: resp.StatusCode}
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return generic(err)
	}
	total := resp.ContentLength
	if total > 0 {
		if err := system.EnsureSpace(filepath.Dir(target), uint64(total)); err != nil {
			return generic(err)
		}
	}
	out, err := os.Create(target)
	if err != nil {
		return generic(err)
	}

	_, copyErr := copyChunks(ctx, out, resp.Body, func(copied int64) {
		emit(DownloadProgress{App: app, Percent: percentOf(copied, total), BytesCopied: copied, TotalBytes: total})
	})
	closeErr := out.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(target)
		return generic(copyErr)
	}
	return nil
}

// copyChunks copies src to dst in installer.ChunkSize pieces and reports the
// running total after every chunk.
func copyChunks(ctx context.Context, dst io.Writer, src io.Reader, onChunk func(copied int64)) (int64, error) {
	buf := make([]byte, installer.ChunkSize)
	var copied int64
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return copied, err
			}
			copied += int64(n)
			onChunk(copied)
		}
		if readErr == io.EOF {
			return copied, nil
		}
		if readErr != nil {
			return copied, readErr
		}
	}
}

// percentOf computes floor(copied*100/total) in floating point so sizes near
// the int32 limit do not overflow. An unknown total reports 0.
func percentOf(copied, total int64) int {
	if total <= 0 {
		return 0
	}
	return int(float64(copied) * 100 / float64(total))
}
