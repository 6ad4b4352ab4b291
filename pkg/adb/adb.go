package adb

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	apperrors "github.com/huanfeng/apkstore-cli/internal/errors"
	"github.com/huanfeng/apkstore-cli/pkg/installer"
	"github.com/huanfeng/apkstore-cli/pkg/store"
	"github.com/huanfeng/apkstore-cli/pkg/utils"
)

// MinSessionSDK is the first API level with install sessions.
const MinSessionSDK = 21

// Runner executes the adb binary. stdin may be nil.
type Runner interface {
	Run(ctx context.Context, stdin io.Reader, args ...string) (stdout, stderr string, err error)
}

type execRunner struct {
	path string
}

func (r execRunner) Run(ctx context.Context, stdin io.Reader, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, r.path, args...)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdin = stdin
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	err := cmd.Run()
	return outBuf.String(), errBuf.String(), err
}

// Config configures a Client.
type Config struct {
	// Path to adb. Empty looks it up on PATH.
	Path string
	// Serial selects the device. Empty targets the only connected device.
	Serial         string
	ReadTimeout    time.Duration
	InstallTimeout time.Duration
	// RequireConfirmation makes every commit wait for user consent.
	RequireConfirmation bool
	// User is passed to pm uninstall as --user when set.
	User string
}

// Device is one entry of `adb devices -l`.
type Device struct {
	Serial     string `json:"serial"`
	State      string `json:"state"`
	Model      string `json:"model,omitempty"`
	Product    string `json:"product,omitempty"`
	IsEmulator bool   `json:"is_emulator"`
}

// Online reports whether the device accepts commands.
func (d Device) Online() bool { return d.State == "device" }

// Client talks to one Android device through adb. It implements the
// installer backends, store.InstalledLister and installer.PackageLabeler.
type Client struct {
	runner Runner
	cfg    Config
	logger utils.Logger

	perSerial sync.Map

	mu        sync.Mutex
	sessions  map[int]*session
	callbacks map[installer.SessionCallback]struct{}
	labels    map[string]string
}

// New locates adb and returns a client.
func New(cfg Config, logger utils.Logger) (*Client, error) {
	path := cfg.Path
	if path == "" {
		path = "adb"
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrorTypePlatform, "ADB_NOT_FOUND", "adb executable not found").
			WithSuggestion("Install Android platform-tools or set adb.path")
	}
	cfg.Path = resolved
	return NewWithRunner(execRunner{path: resolved}, cfg, logger), nil
}

// NewWithRunner returns a client that executes adb through runner.
func NewWithRunner(runner Runner, cfg Config, logger utils.Logger) *Client {
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.InstallTimeout == 0 {
		cfg.InstallTimeout = 8 * time.Minute
	}
	if logger == nil {
		logger = utils.WithComponent("adb")
	}
	return &Client{
		runner:    runner,
		cfg:       cfg,
		logger:    logger,
		sessions:  make(map[int]*session),
		callbacks: make(map[installer.SessionCallback]struct{}),
		labels:    make(map[string]string),
	}
}

// Serial returns the targeted device serial, empty for the default device.
func (c *Client) Serial() string { return c.cfg.Serial }

// WithSerial returns a client for another device sharing the runner.
func (c *Client) WithSerial(serial string) *Client {
	cfg := c.cfg
	cfg.Serial = serial
	return NewWithRunner(c.runner, cfg, c.logger.WithField("device", serial))
}

func (c *Client) run(ctx context.Context, stdin io.Reader, args ...string) (string, string, error) {
	full := make([]string, 0, len(args)+2)
	if c.cfg.Serial != "" {
		full = append(full, "-s", c.cfg.Serial)
	}
	full = append(full, args...)
	c.logger.Debug("adb %s", strings.Join(full, " "))
	return c.runner.Run(ctx, stdin, full...)
}

// read runs a short query bounded by ReadTimeout.
func (c *Client) read(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ReadTimeout)
	defer cancel()
	out, errOut, err := c.run(ctx, nil, args...)
	if err != nil {
		return "", commandError(args, err, errOut)
	}
	return out, nil
}

// lock serializes package manager mutations per device.
func (c *Client) lock() func() {
	value, _ := c.perSerial.LoadOrStore(c.cfg.Serial, &sync.Mutex{})
	mu := value.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func commandError(args []string, err error, stderr string) error {
	msg := fmt.Sprintf("adb %s failed", strings.Join(args, " "))
	return apperrors.WrapError(err, apperrors.ErrorTypePlatform, "ADB_COMMAND_FAILED", msg).
		WithContext("stderr", strings.TrimSpace(stderr))
}

// Devices lists connected devices.
func (c *Client) Devices(ctx context.Context) ([]Device, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ReadTimeout)
	defer cancel()
	out, errOut, err := c.runner.Run(ctx, nil, "devices", "-l")
	if err != nil {
		return nil, commandError([]string{"devices"}, err, errOut)
	}
	return parseDevices(out), nil
}

func parseDevices(out string) []Device {
	var devices []Device
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "List of devices") || strings.HasPrefix(line, "*") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		d := Device{Serial: fields[0], State: fields[1]}
		d.IsEmulator = strings.HasPrefix(d.Serial, "emulator-")
		for _, f := range fields[2:] {
			if v, ok := strings.CutPrefix(f, "model:"); ok {
				d.Model = v
			} else if v, ok := strings.CutPrefix(f, "product:"); ok {
				d.Product = v
			}
		}
		devices = append(devices, d)
	}
	return devices
}

// Property reads a system property.
func (c *Client) Property(ctx context.Context, name string) (string, error) {
	out, err := c.read(ctx, "shell", "getprop", name)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// SDKLevel returns the device API level.
func (c *Client) SDKLevel(ctx context.Context) (int, error) {
	v, err := c.Property(ctx, "ro.build.version.sdk")
	if err != nil {
		return 0, err
	}
	level, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperrors.WrapError(err, apperrors.ErrorTypePlatform, "ADB_BAD_SDK", "unexpected sdk level").
			WithContext("value", v)
	}
	return level, nil
}

// DetectTier picks the installer tier the device supports.
func (c *Client) DetectTier(ctx context.Context) (installer.Tier, error) {
	level, err := c.SDKLevel(ctx)
	if err != nil {
		return installer.TierStaged, err
	}
	if level < MinSessionSDK {
		return installer.TierLegacy, nil
	}
	return installer.TierStaged, nil
}

// InstalledPackages lists third party packages with their version codes.
func (c *Client) InstalledPackages(ctx context.Context) ([]store.InstalledApp, error) {
	out, err := c.read(ctx, "shell", "pm", "list", "packages", "-3", "--show-versioncode")
	if err != nil {
		return nil, err
	}
	apps := parsePackageList(out)

	c.mu.Lock()
	for i := range apps {
		if label, ok := c.labels[apps[i].PackageName]; ok {
			apps[i].Label = label
		}
	}
	c.mu.Unlock()
	return apps, nil
}

// parsePackageList parses lines like "package:org.example versionCode:42".
func parsePackageList(out string) []store.InstalledApp {
	var apps []store.InstalledApp
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		name, ok := strings.CutPrefix(fields[0], "package:")
		if !ok || name == "" {
			continue
		}
		app := store.InstalledApp{PackageName: name}
		for _, f := range fields[1:] {
			if v, ok := strings.CutPrefix(f, "versionCode:"); ok {
				app.VersionCode, _ = strconv.ParseInt(v, 10, 64)
			}
		}
		apps = append(apps, app)
	}
	return apps
}

// InstalledVersion reads versionName and versionCode of one package.
func (c *Client) InstalledVersion(ctx context.Context, packageName string) (string, int64, error) {
	out, err := c.read(ctx, "shell", "dumpsys", "package", packageName)
	if err != nil {
		return "", 0, err
	}

	var versionName string
	var versionCode int64
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		for _, f := range strings.Fields(scanner.Text()) {
			if v, ok := strings.CutPrefix(f, "versionName="); ok && versionName == "" {
				versionName = v
			} else if v, ok := strings.CutPrefix(f, "versionCode="); ok && versionCode == 0 {
				versionCode, _ = strconv.ParseInt(v, 10, 64)
			}
		}
	}
	if versionName == "" && versionCode == 0 {
		return "", 0, apperrors.NewNotFoundError("PACKAGE_NOT_INSTALLED", "package is not installed").
			WithContext("package", packageName)
	}
	return versionName, versionCode, nil
}

// SetLabels records display labels, typically from the store catalog.
func (c *Client) SetLabels(labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for pkg, label := range labels {
		c.labels[pkg] = label
	}
}

// PackageLabel returns a label recorded with SetLabels.
func (c *Client) PackageLabel(packageName string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	label, ok := c.labels[packageName]
	return label, ok
}
