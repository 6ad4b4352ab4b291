package apk

import (
	"context"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/huanfeng/apkstore-cli/internal/errors"
)

var (
	badgingName        = regexp.MustCompile(`name='([^']+)'`)
	badgingVersionCode = regexp.MustCompile(`versionCode='([^']+)'`)
	badgingVersionName = regexp.MustCompile(`versionName='([^']*)'`)
	badgingQuoted      = regexp.MustCompile(`'([^']+)'`)
)

// AAPTParser falls back to the aapt2/aapt command line tool
type AAPTParser struct {
	aaptPath string
	timeout  time.Duration
}

// NewAAPTParser creates a parser that runs the first of aapt2 or aapt found in PATH.
func NewAAPTParser() *AAPTParser {
	p := &AAPTParser{timeout: 30 * time.Second}
	for _, name := range []string{"aapt2", "aapt"} {
		if path, err := exec.LookPath(name); err == nil {
			p.aaptPath = path
			break
		}
	}
	return p
}

// ParseFile runs "aapt dump badging" and parses its output
func (p *AAPTParser) ParseFile(path string) (*Info, error) {
	if p.aaptPath == "" {
		return nil, apperrors.NewNotFoundError("AAPT_NOT_FOUND", "aapt2 or aapt not found in PATH").
			WithSuggestion("Install the Android build-tools or rely on the built-in parser")
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	output, err := exec.CommandContext(ctx, p.aaptPath, "dump", "badging", path).Output()
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrorTypeParsing, "AAPT_FAILED", "aapt command failed").
			WithContext("path", path)
	}

	info, err := parseBadging(string(output))
	if err != nil {
		return nil, err
	}
	if fi, err := os.Stat(path); err == nil {
		info.Size = fi.Size()
	}
	if sum, err := fileSHA256(path); err == nil {
		info.SHA256 = sum
	}
	return info, nil
}

// Describe returns information about this parser
func (p *AAPTParser) Describe() ParserInfo {
	return ParserInfo{Name: "AAPT", Available: p.aaptPath != "", Priority: 2}
}

// CanParse checks if this parser can handle the given file
func (p *AAPTParser) CanParse(path string) bool {
	return IsAPKFile(path)
}

// parseBadging parses aapt dump badging output
func parseBadging(output string) (*Info, error) {
	info := &Info{}
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "package:"):
			if m := badgingName.FindStringSubmatch(line); len(m) > 1 {
				info.PackageName = m[1]
			}
			if m := badgingVersionCode.FindStringSubmatch(line); len(m) > 1 {
				if code, err := strconv.ParseInt(m[1], 10, 64); err == nil {
					info.VersionCode = code
				}
			}
			if m := badgingVersionName.FindStringSubmatch(line); len(m) > 1 {
				info.VersionName = m[1]
			}
		case strings.HasPrefix(line, "sdkVersion:"):
			if m := badgingQuoted.FindStringSubmatch(line); len(m) > 1 {
				info.MinSDK, _ = strconv.Atoi(m[1])
			}
		case strings.HasPrefix(line, "targetSdkVersion:"):
			if m := badgingQuoted.FindStringSubmatch(line); len(m) > 1 {
				info.TargetSDK, _ = strconv.Atoi(m[1])
			}
		case strings.HasPrefix(line, "application-label:"):
			if m := badgingQuoted.FindStringSubmatch(line); len(m) > 1 {
				info.Label = m[1]
			}
		case strings.HasPrefix(line, "native-code:"):
			if parts := strings.Split(line, "'"); len(parts) >= 2 {
				for i := 1; i < len(parts); i += 2 {
					info.ABIs = append(info.ABIs, strings.Fields(parts[i])...)
				}
			}
		}
	}

	if info.PackageName == "" {
		return nil, apperrors.NewParsingError("AAPT_NO_PACKAGE", "failed to parse package information")
	}
	if info.Label == "" {
		info.Label = info.PackageName
	}
	return info, nil
}
