package installer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	apperrors "github.com/huanfeng/apkstore-cli/internal/errors"
)

// ApkSource is a readable APK payload. Length must be known before a session
// is opened and must equal the number of bytes Open produces.
type ApkSource interface {
	// Name identifies the source in logs and errors.
	Name() string
	Length() (int64, error)
	// Open returns a fresh stream. A vanished backing resource yields an
	// error matching ErrSourceNotFound.
	Open() (io.ReadCloser, error)
	// InstallablePath returns a real file path for the legacy tier, creating
	// a temporary copy when the payload is not file addressable.
	InstallablePath(ctx context.Context, onProgress ProgressFunc) (string, error)
	// ClearTempFiles removes any copy made by InstallablePath.
	ClearTempFiles() error
}

// Pather is implemented by sources already backed by a file on disk.
type Pather interface {
	Path() string
}

// FileSource is an APK file on the local filesystem.
type FileSource struct {
	path string
}

// NewFileSource wraps path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Name() string { return filepath.Base(s.path) }
func (s *FileSource) Path() string { return s.path }

func (s *FileSource) Length() (int64, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, sourceNotFoundError(s.path, err)
		}
		return 0, err
	}
	return info.Size(), nil
}

func (s *FileSource) Open() (io.ReadCloser, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, sourceNotFoundError(s.path, err)
		}
		return nil, err
	}
	return f, nil
}

func (s *FileSource) InstallablePath(ctx context.Context, onProgress ProgressFunc) (string, error) {
	if _, err := s.Length(); err != nil {
		return "", err
	}
	return s.path, nil
}

func (s *FileSource) ClearTempFiles() error { return nil }

// ContentResolver opens payloads addressed by a non-file URI.
type ContentResolver interface {
	Length(uri *url.URL) (int64, error)
	Open(uri *url.URL) (io.ReadCloser, error)
}

// URISource is an APK addressed by a file:// URI, or by any other scheme a
// ContentResolver understands.
type URISource struct {
	uri      *url.URL
	resolver ContentResolver
	temp     tempCopy
}

// NewURISource parses raw. resolver may be nil when only file:// URIs are used.
func NewURISource(raw string, resolver ContentResolver, tempDir string) (*URISource, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrorTypeValidation, codeUnsupportedURI, "invalid apk uri")
	}
	if u.Scheme != "file" && resolver == nil {
		return nil, apperrors.NewError(apperrors.ErrorTypeValidation, codeUnsupportedURI,
			fmt.Sprintf("unsupported uri scheme %q", u.Scheme))
	}
	return &URISource{uri: u, resolver: resolver, temp: tempCopy{dir: tempDir}}, nil
}

func (s *URISource) Name() string { return s.uri.String() }

func (s *URISource) Length() (int64, error) {
	if s.uri.Scheme == "file" {
		return NewFileSource(s.uri.Path).Length()
	}
	return s.resolver.Length(s.uri)
}

func (s *URISource) Open() (io.ReadCloser, error) {
	if s.uri.Scheme == "file" {
		return NewFileSource(s.uri.Path).Open()
	}
	rc, err := s.resolver.Open(s.uri)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, sourceNotFoundError(s.uri.String(), err)
		}
		return nil, err
	}
	return rc, nil
}

func (s *URISource) InstallablePath(ctx context.Context, onProgress ProgressFunc) (string, error) {
	if s.uri.Scheme == "file" {
		return NewFileSource(s.uri.Path).InstallablePath(ctx, onProgress)
	}
	return s.temp.create(ctx, s, onProgress)
}

func (s *URISource) ClearTempFiles() error { return s.temp.clear() }

// DescriptorSource is a region of an already open file, such as an asset
// packed inside a larger archive.
type DescriptorSource struct {
	name   string
	r      io.ReaderAt
	offset int64
	length int64
	temp   tempCopy
}

// NewDescriptorSource exposes length bytes of r starting at offset.
func NewDescriptorSource(name string, r io.ReaderAt, offset, length int64, tempDir string) *DescriptorSource {
	return &DescriptorSource{name: name, r: r, offset: offset, length: length, temp: tempCopy{dir: tempDir}}
}

func (s *DescriptorSource) Name() string           { return s.name }
func (s *DescriptorSource) Length() (int64, error) { return s.length, nil }

func (s *DescriptorSource) Open() (io.ReadCloser, error) {
	if f, ok := s.r.(*os.File); ok {
		if _, err := f.Stat(); err != nil {
			return nil, sourceNotFoundError(s.name, err)
		}
	}
	return io.NopCloser(io.NewSectionReader(s.r, s.offset, s.length)), nil
}

func (s *DescriptorSource) InstallablePath(ctx context.Context, onProgress ProgressFunc) (string, error) {
	return s.temp.create(ctx, s, onProgress)
}

func (s *DescriptorSource) ClearTempFiles() error { return s.temp.clear() }

// tempCopy owns the temporary file a source materializes for the legacy tier.
type tempCopy struct {
	dir  string
	mu   sync.Mutex
	path string
}

func (t *tempCopy) create(ctx context.Context, src ApkSource, onProgress ProgressFunc) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.path != "" {
		_ = os.Remove(t.path)
		t.path = ""
	}

	length, err := src.Length()
	if err != nil {
		return "", err
	}
	in, err := src.Open()
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.CreateTemp(t.dir, "apkstore-*.apk")
	if err != nil {
		return "", apperrors.WrapError(err, apperrors.ErrorTypeFileSystem, "TEMP_COPY_FAILED", "failed to create temporary apk copy")
	}
	t.path = out.Name()

	n, err := CopyWithProgress(ctx, out, in, length, 0, onProgress)
	if err != nil {
		return "", err
	}
	if n != length {
		return "", lengthMismatchError(src.Name(), length, n)
	}
	return t.path, nil
}

func (t *tempCopy) clear() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.path == "" {
		return nil
	}
	err := os.Remove(t.path)
	t.path = ""
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func lengthMismatchError(name string, declared, actual int64) error {
	return apperrors.NewError(apperrors.ErrorTypeValidation, codeLengthMismatch,
		fmt.Sprintf("apk source produced %d bytes, declared %d", actual, declared)).
		WithContext("source", name)
}
