package apk

import (
	"archive/zip"
	"bytes"
	"image"
	_ "image/jpeg"
	"image/png"
	"io"
	"path/filepath"
	"strings"

	"github.com/nfnt/resize"
	"golang.org/x/image/webp"

	apperrors "github.com/huanfeng/apkstore-cli/internal/errors"
)

// NotificationIconSize is the edge length of icons shown with confirmation notifications.
const NotificationIconSize = 96

// launcherIconPaths in preference order.
var launcherIconPaths = []string{
	"res/mipmap-xxxhdpi/ic_launcher.png",
	"res/mipmap-xxhdpi/ic_launcher.png",
	"res/mipmap-xhdpi/ic_launcher.png",
	"res/mipmap-hdpi/ic_launcher.png",
	"res/drawable-xxxhdpi/ic_launcher.png",
	"res/drawable-xxhdpi/ic_launcher.png",
	"res/drawable-xhdpi/ic_launcher.png",
	"res/drawable-hdpi/ic_launcher.png",
	"res/mipmap-xxxhdpi/ic_launcher.webp",
	"res/mipmap-xxhdpi/ic_launcher.webp",
	"res/mipmap-xhdpi/ic_launcher.webp",
	"res/mipmap-hdpi/ic_launcher.webp",
}

// IconExtractor pulls the launcher icon out of an APK
type IconExtractor struct {
	size uint
}

// NewIconExtractor creates an extractor producing size x size PNGs.
func NewIconExtractor(size uint) *IconExtractor {
	if size == 0 {
		size = NotificationIconSize
	}
	return &IconExtractor{size: size}
}

// ExtractIcon returns the launcher icon as PNG bytes
func (e *IconExtractor) ExtractIcon(apkPath string) ([]byte, error) {
	reader, err := zip.OpenReader(apkPath)
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrorTypeParsing, "APK_MALFORMED", "failed to open package archive")
	}
	defer reader.Close()

	byName := make(map[string]*zip.File, len(reader.File))
	for _, f := range reader.File {
		byName[f.Name] = f
	}
	for _, name := range launcherIconPaths {
		if f, ok := byName[name]; ok {
			if icon, err := e.decode(f); err == nil {
				return icon, nil
			}
		}
	}

	// Any launcher icon that is not an adaptive layer
	for _, f := range reader.File {
		name := f.Name
		if strings.Contains(name, "ic_launcher") &&
			(strings.HasSuffix(name, ".png") || strings.HasSuffix(name, ".webp")) &&
			!strings.Contains(name, "_foreground") &&
			!strings.Contains(name, "_background") {
			if icon, err := e.decode(f); err == nil {
				return icon, nil
			}
		}
	}

	return nil, apperrors.NewNotFoundError("ICON_NOT_FOUND", "no launcher icon found in package")
}

func (e *IconExtractor) decode(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	return e.processIcon(data, filepath.Ext(f.Name))
}

// processIcon resizes the icon and re-encodes it as PNG
func (e *IconExtractor) processIcon(data []byte, ext string) ([]byte, error) {
	var img image.Image
	var err error
	if ext == ".webp" {
		img, err = webp.Decode(bytes.NewReader(data))
	} else {
		img, _, err = image.Decode(bytes.NewReader(data))
	}
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrorTypeParsing, "ICON_DECODE_FAILED", "failed to decode icon")
	}

	resized := resize.Resize(e.size, e.size, img, resize.Lanczos3)

	var buf bytes.Buffer
	if err := png.Encode(&buf, resized); err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrorTypeParsing, "ICON_ENCODE_FAILED", "failed to encode icon")
	}
	return buf.Bytes(), nil
}
