// Package config loads and saves the QuietRoom configuration file.
package config

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Config holds the application configuration.
type Config struct {
	// Storage is the object-storage backend serving the track catalog.
	Storage StorageConfig `toml:"storage"`

	// Resolver controls URL resolution for playback.
	Resolver ResolverConfig `toml:"resolver"`

	// Audio controls the playback engine.
	Audio AudioConfig `toml:"audio"`

	// CacheDir is where downloaded audio and the playback-state database live.
	// Empty means a "quietroom" directory under the user cache dir.
	CacheDir string `toml:"cache_dir"`

	// LogLevel is DEBUG, INFO, WARN or ERROR.
	LogLevel string `toml:"log_level"`
}

// StorageConfig configures the object-storage track listing.
type StorageConfig struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	Region    string `toml:"region"`
	UseSSL    bool   `toml:"use_ssl"`
}

// ResolverConfig configures URL resolution priority.
type ResolverConfig struct {
	// CDNBase is the content-delivery endpoint, tried first.
	CDNBase string `toml:"cdn_base"`

	// ProxyBase is the storage-proxy endpoint, tried second.
	ProxyBase string `toml:"proxy_base"`

	// ForceHTTPS upgrades resolved http URLs to https, matching
	// deployment-level content restrictions.
	ForceHTTPS bool `toml:"force_https"`
}

// AudioConfig configures the playback engine.
type AudioConfig struct {
	// SampleRate is the shared context sample rate in Hz.
	SampleRate int `toml:"sample_rate"`

	// DefaultVolume is the initial lane volume, 0-100.
	DefaultVolume int `toml:"default_volume"`

	// CrossfadeSeconds is the skip crossfade duration.
	CrossfadeSeconds float64 `toml:"crossfade_seconds"`

	// FetchTimeoutSeconds bounds each remote audio fetch attempt.
	FetchTimeoutSeconds float64 `toml:"fetch_timeout_seconds"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Endpoint: "localhost:9000",
			Bucket:   "quietroom",
			UseSSL:   false,
		},
		Resolver: ResolverConfig{
			ForceHTTPS: false,
		},
		Audio: AudioConfig{
			SampleRate:          44100,
			DefaultVolume:       50,
			CrossfadeSeconds:    1.5,
			FetchTimeoutSeconds: 5,
		},
		LogLevel: "INFO",
	}
}

// Load loads the configuration from a TOML file, applying defaults for
// any field the file omits.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to a TOML file.
func Save(cfg *Config, path string) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// DefaultPath returns the conventional config file location.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "quietroom.toml"
	}
	return filepath.Join(dir, "quietroom", "config.toml")
}

// DefaultCacheDir returns the cache directory, honoring cfg.CacheDir.
func (c *Config) DefaultCacheDir() string {
	if c.CacheDir != "" {
		return c.CacheDir
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		return "quietroom-cache"
	}
	return filepath.Join(dir, "quietroom")
}
