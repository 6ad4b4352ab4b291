package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	apperrors "github.com/huanfeng/apkstore-cli/internal/errors"
	"github.com/huanfeng/apkstore-cli/pkg/installer"
)

// Config is the effective apkstore configuration.
type Config struct {
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	HTTP      HTTPConfig      `mapstructure:"http" yaml:"http"`
	Installer InstallerConfig `mapstructure:"installer" yaml:"installer"`
	ADB       ADBConfig       `mapstructure:"adb" yaml:"adb"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Lang      string          `mapstructure:"lang" yaml:"lang"`
}

type StoreConfig struct {
	CatalogURL      string        `mapstructure:"catalog_url" yaml:"catalog_url"`
	PackagePrefix   string        `mapstructure:"package_prefix" yaml:"package_prefix"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval" yaml:"refresh_interval"`
	DownloadDir     string        `mapstructure:"download_dir" yaml:"download_dir"`
	CacheDir        string        `mapstructure:"cache_dir" yaml:"cache_dir"`
}

type HTTPConfig struct {
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryBase  float64       `mapstructure:"retry_base" yaml:"retry_base"`
	MaxDelay   time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
}

type InstallerConfig struct {
	// Tier is auto, legacy or staged.
	Tier                string  `mapstructure:"tier" yaml:"tier"`
	Confirmation        string  `mapstructure:"confirmation" yaml:"confirmation"`
	AliveWatermark      float64 `mapstructure:"alive_watermark" yaml:"alive_watermark"`
	RequireConfirmation bool    `mapstructure:"require_confirmation" yaml:"require_confirmation"`
}

type ADBConfig struct {
	Path   string `mapstructure:"path" yaml:"path"`
	Device string `mapstructure:"device" yaml:"device"`
	User   string `mapstructure:"user" yaml:"user"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

// Default returns the built-in configuration.
func Default() Config {
	dataDir := "apkstore"
	if dir, err := os.UserCacheDir(); err == nil {
		dataDir = filepath.Join(dir, "apkstore")
	}
	return Config{
		Store: StoreConfig{
			CatalogURL:      "https://nllapps.com/store/api/",
			PackagePrefix:   "com.nll.",
			RefreshInterval: 60 * time.Minute,
			DownloadDir:     dataDir,
			CacheDir:        dataDir,
		},
		HTTP: HTTPConfig{
			Timeout:    30 * time.Second,
			MaxRetries: 3,
			RetryBase:  2,
			MaxDelay:   60 * time.Second,
		},
		Installer: InstallerConfig{
			Tier:           "auto",
			Confirmation:   installer.Immediate.String(),
			AliveWatermark: installer.DefaultAliveWatermark,
		},
		Log: LogConfig{Level: "info", Format: "console"},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("store.catalog_url", d.Store.CatalogURL)
	v.SetDefault("store.package_prefix", d.Store.PackagePrefix)
	v.SetDefault("store.refresh_interval", d.Store.RefreshInterval)
	v.SetDefault("store.download_dir", d.Store.DownloadDir)
	v.SetDefault("store.cache_dir", d.Store.CacheDir)
	v.SetDefault("http.timeout", d.HTTP.Timeout)
	v.SetDefault("http.max_retries", d.HTTP.MaxRetries)
	v.SetDefault("http.retry_base", d.HTTP.RetryBase)
	v.SetDefault("http.max_delay", d.HTTP.MaxDelay)
	v.SetDefault("installer.tier", d.Installer.Tier)
	v.SetDefault("installer.confirmation", d.Installer.Confirmation)
	v.SetDefault("installer.alive_watermark", d.Installer.AliveWatermark)
	v.SetDefault("installer.require_confirmation", d.Installer.RequireConfirmation)
	v.SetDefault("adb.path", d.ADB.Path)
	v.SetDefault("adb.device", d.ADB.Device)
	v.SetDefault("adb.user", d.ADB.User)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("lang", d.Lang)
}

// Load reads configuration from defaults, the config file and APKSTORE_*
// environment variables, in increasing precedence. An empty configPath
// searches apkstore.yaml in the working directory and ~/.config/apkstore.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("apkstore")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "apkstore"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, apperrors.WrapError(err, apperrors.ErrorTypeConfiguration, "CONFIG_READ_FAILED", "failed to read config file").
				WithContext("path", configPath)
		}
	}

	v.SetEnvPrefix("APKSTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrorTypeConfiguration, "CONFIG_DECODE_FAILED", "failed to unmarshal config")
	}
	cfg.fillEmpty(Default())
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// fillEmpty replaces directories left blank in the file with defaults.
func (c *Config) fillEmpty(d Config) {
	if c.Store.DownloadDir == "" {
		c.Store.DownloadDir = d.Store.DownloadDir
	}
	if c.Store.CacheDir == "" {
		c.Store.CacheDir = c.Store.DownloadDir
	}
	if c.Installer.Tier == "" {
		c.Installer.Tier = d.Installer.Tier
	}
}

// Validate checks values viper cannot type-check.
func (c *Config) Validate() error {
	if _, _, err := c.Tier(); err != nil {
		return err
	}
	if _, err := installer.ParseConfirmationStrategy(c.Installer.Confirmation); err != nil {
		return apperrors.WrapError(err, apperrors.ErrorTypeConfiguration, "INVALID_CONFIRMATION", "invalid installer.confirmation").
			WithSuggestion("Use immediate or deferred")
	}
	if w := c.Installer.AliveWatermark; w <= 0 || w > 1 {
		return apperrors.NewConfigurationError("INVALID_WATERMARK", "installer.alive_watermark must be in (0, 1]").
			WithContext("value", fmt.Sprint(w))
	}
	if c.HTTP.MaxRetries < 0 {
		return apperrors.NewConfigurationError("INVALID_RETRIES", "http.max_retries must not be negative")
	}
	return nil
}

// Tier returns the configured installer tier. auto is true when the tier
// should be detected from the device.
func (c *Config) Tier() (tier installer.Tier, auto bool, err error) {
	name := strings.TrimSpace(c.Installer.Tier)
	if name == "" || strings.EqualFold(name, "auto") {
		return installer.TierStaged, true, nil
	}
	tier, err = installer.ParseTier(name)
	if err != nil {
		return tier, false, apperrors.WrapError(err, apperrors.ErrorTypeConfiguration, "INVALID_TIER", "invalid installer.tier").
			WithSuggestion("Use auto, legacy or staged")
	}
	return tier, false, nil
}

// Confirmation returns the parsed confirmation strategy.
func (c *Config) Confirmation() installer.ConfirmationStrategy {
	s, _ := installer.ParseConfirmationStrategy(c.Installer.Confirmation)
	return s
}

// YAML renders the configuration for `config show`.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// DefaultPath is where config init writes when no path is given.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "apkstore.yaml"
	}
	return filepath.Join(home, ".config", "apkstore", "apkstore.yaml")
}

// SaveTemplate writes a commented configuration template. Existing files are
// kept unless force is set.
func SaveTemplate(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return apperrors.NewFileSystemError("CONFIG_EXISTS", "config file already exists").
				WithContext("path", path).
				WithSuggestion("Use --force to overwrite")
		}
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return apperrors.WrapError(err, apperrors.ErrorTypeFileSystem, "CONFIG_WRITE_FAILED", "failed to create config directory")
		}
	}
	return renameio.WriteFile(path, []byte(template), 0o644)
}

const template = `# ApkStore configuration

store:
  # Catalog endpoint; apps.json is resolved against it
  catalog_url: "https://nllapps.com/store/api/"

  # Only installed packages with this prefix are matched against the catalog
  package_prefix: "com.nll."

  # The catalog is fetched at most once per interval unless forced
  refresh_interval: 60m

  # Downloaded packages go to <download_dir>/apks
  download_dir: ""
  cache_dir: ""

http:
  timeout: 30s
  # Retries apply to HTTP 429 only
  max_retries: 3
  retry_base: 2
  max_delay: 60s

installer:
  # auto, legacy or staged
  tier: auto
  # immediate or deferred
  confirmation: immediate
  alive_watermark: 0.81
  # Ask before every commit
  require_confirmation: false

adb:
  path: ""
  device: ""
  user: ""

log:
  level: info
  format: console
  file: ""

lang: ""
`
