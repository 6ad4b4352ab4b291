package apk

import (
	"archive/zip"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/shogo82148/androidbinary/apk"

	apperrors "github.com/huanfeng/apkstore-cli/internal/errors"
)

// BinaryParser reads the binary manifest with the androidbinary library
type BinaryParser struct{}

// NewBinaryParser creates a new androidbinary parser
func NewBinaryParser() *BinaryParser {
	return &BinaryParser{}
}

// ParseFile parses an APK and returns its manifest data
func (p *BinaryParser) ParseFile(path string) (*Info, error) {
	fileInfo, err := os.Stat(path)
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrorTypeFileSystem, "APK_STAT_FAILED", "cannot access package file").
			WithContext("path", path)
	}

	pkg, err := apk.OpenFile(path)
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrorTypeParsing, "APK_MALFORMED", "not a valid package archive").
			WithContext("path", path)
	}
	defer pkg.Close()

	manifest := pkg.Manifest()
	packageName, err := manifest.Package.String()
	if err != nil || packageName == "" {
		return nil, apperrors.NewParsingError("APK_NO_PACKAGE", "package archive has no package name").
			WithContext("path", path)
	}

	sum, err := fileSHA256(path)
	if err != nil {
		return nil, err
	}

	info := &Info{
		PackageName: packageName,
		Label:       p.label(&manifest, packageName),
		VersionName: manifest.VersionName.MustString(),
		VersionCode: int64(manifest.VersionCode.MustInt32()),
		MinSDK:      1,
		ABIs:        p.abis(path),
		Size:        fileInfo.Size(),
		SHA256:      sum,
	}
	if minSDK, err := manifest.SDK.Min.Int32(); err == nil {
		info.MinSDK = int(minSDK)
	}
	if targetSDK, err := manifest.SDK.Target.Int32(); err == nil {
		info.TargetSDK = int(targetSDK)
	}
	return info, nil
}

// Describe returns information about this parser
func (p *BinaryParser) Describe() ParserInfo {
	return ParserInfo{Name: "AndroidBinary", Available: true, Priority: 1}
}

// CanParse checks if this parser can handle the given file
func (p *BinaryParser) CanParse(path string) bool {
	return IsAPKFile(path)
}

func (p *BinaryParser) label(manifest *apk.Manifest, fallback string) string {
	if label, err := manifest.App.Label.String(); err == nil && label != "" {
		return label
	}
	return fallback
}

func (p *BinaryParser) abis(path string) []string {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil
	}
	defer reader.Close()

	seen := make(map[string]bool)
	for _, file := range reader.File {
		if rest, ok := strings.CutPrefix(file.Name, "lib/"); ok {
			if abi, _, found := strings.Cut(rest, "/"); found && abi != "" {
				seen[abi] = true
			}
		}
	}

	abis := make([]string, 0, len(seen))
	for abi := range seen {
		abis = append(abis, abi)
	}
	sort.Strings(abis)
	return abis
}

func fileSHA256(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", apperrors.WrapError(err, apperrors.ErrorTypeFileSystem, "APK_READ_FAILED", "cannot read package file")
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", apperrors.WrapError(err, apperrors.ErrorTypeFileSystem, "APK_READ_FAILED", "cannot read package file")
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
