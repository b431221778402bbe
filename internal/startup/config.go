package startup

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"

	"media-proxy/internal/framecache"
	"media-proxy/internal/logging"
	"media-proxy/internal/proxy"
)

// Limits applied to configured values.
const (
	MinFrameCacheCapacity = 10
	MaxFrameCacheCapacity = 1000
	MinProxyFrameRate     = 1
	MaxProxyFrameRate     = 120
)

// Config holds all application configuration
type Config struct {
	CacheDir        string
	Port            string
	MetricsEnabled  bool
	LogHealthChecks bool
	FFmpegPath      string
	WatchProxyDir   bool

	FrameCacheCapacity int
	PreviewMaxWidth    int
	PreviewMaxHeight   int

	ProxySettings        proxy.Settings
	ProxyPollInterval    time.Duration
	ProxyMaxAge          time.Duration
	ProxyCleanupInterval time.Duration
	HistoryRetention     time.Duration

	// ConfigFile is the TOML file values were read from, if any.
	ConfigFile string

	// Derived paths
	ProxyDir     string
	DatabasePath string
}

// fileConfig mirrors the TOML file. Durations are Go duration strings.
type fileConfig struct {
	CacheDir             string  `toml:"cache_dir"`
	Port                 string  `toml:"port"`
	MetricsEnabled       bool    `toml:"metrics_enabled"`
	LogHealthChecks      bool    `toml:"log_health_checks"`
	FFmpegPath           string  `toml:"ffmpeg_path"`
	WatchProxyDir        bool    `toml:"watch_proxy_dir"`
	FrameCacheCapacity   int     `toml:"frame_cache_capacity"`
	PreviewMaxWidth      int     `toml:"preview_max_width"`
	PreviewMaxHeight     int     `toml:"preview_max_height"`
	ProxyWidth           int     `toml:"proxy_width"`
	ProxyHeight          int     `toml:"proxy_height"`
	ProxyFrameRate       float64 `toml:"proxy_frame_rate"`
	ProxyQuality         string  `toml:"proxy_quality"`
	ProxyPollInterval    string  `toml:"proxy_poll_interval"`
	ProxyMaxAge          string  `toml:"proxy_max_age"`
	ProxyCleanupInterval string  `toml:"proxy_cleanup_interval"`
	HistoryRetention     string  `toml:"history_retention"`
}

func defaultFileConfig() fileConfig {
	s := proxy.DefaultSettings()
	return fileConfig{
		CacheDir:             "/cache",
		Port:                 "8080",
		MetricsEnabled:       true,
		LogHealthChecks:      false,
		FFmpegPath:           "ffmpeg",
		WatchProxyDir:        true,
		FrameCacheCapacity:   framecache.DefaultCapacity,
		PreviewMaxWidth:      640,
		PreviewMaxHeight:     360,
		ProxyWidth:           int(s.Width),
		ProxyHeight:          int(s.Height),
		ProxyFrameRate:       s.FrameRate,
		ProxyQuality:         s.Quality.String(),
		ProxyPollInterval:    proxy.DefaultPollInterval.String(),
		ProxyMaxAge:          "24h",
		ProxyCleanupInterval: "1h",
		HistoryRetention:     "168h",
	}
}

// LoadConfig prints the startup banner, then loads configuration from the
// TOML file named by CONFIG_FILE (if any) and the environment, and prepares
// the cache directory.
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	config, err := Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return nil, err
	}
	logConfig(config)

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	if err := ensureDirectory(config.CacheDir, "cache"); err != nil {
		return nil, fmt.Errorf("cache directory error: %w", err)
	}
	logging.Debug("  Testing cache directory write access...")
	if err := testWriteAccess(config.CacheDir); err != nil {
		return nil, fmt.Errorf("cache directory is not writable (required for proxies and the job journal): %w", err)
	}
	logging.Info("  [OK] Cache directory is writable: %s", config.CacheDir)

	return config, nil
}

// Load builds a Config from defaults, the TOML file at path (skipped when
// path is empty or the file does not exist) and environment variables, in
// that order of precedence from lowest to highest. It does not touch the
// cache directory.
func Load(path string) (*Config, error) {
	fc := defaultFileConfig()

	configFile := ""
	if path != "" {
		file, err := os.Open(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			logging.Warn("  Config file %s not found, using environment and defaults", path)
		case err != nil:
			return nil, fmt.Errorf("open config: %w", err)
		default:
			defer file.Close()
			if err := toml.NewDecoder(file).Decode(&fc); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
			configFile = path
		}
	}

	cacheDir, err := filepath.Abs(getEnv("CACHE_DIR", fc.CacheDir))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cache directory path: %w", err)
	}

	quality, err := proxy.ParseQuality(getEnv("PROXY_QUALITY", fc.ProxyQuality))
	if err != nil {
		logging.Warn("  Invalid PROXY_QUALITY, using default: %s", proxy.QualityPreview)
		quality = proxy.QualityPreview
	}

	defaults := proxy.DefaultSettings()
	settings := proxy.Settings{
		Width:     uint32(positiveOr(getEnvInt("PROXY_WIDTH", fc.ProxyWidth), int(defaults.Width))),
		Height:    uint32(positiveOr(getEnvInt("PROXY_HEIGHT", fc.ProxyHeight), int(defaults.Height))),
		FrameRate: clampFloat(getEnvFloat("PROXY_FRAME_RATE", fc.ProxyFrameRate), MinProxyFrameRate, MaxProxyFrameRate),
		Quality:   quality,
	}

	config := &Config{
		CacheDir:             cacheDir,
		Port:                 getEnv("PORT", fc.Port),
		MetricsEnabled:       getEnvBool("METRICS_ENABLED", fc.MetricsEnabled),
		LogHealthChecks:      getEnvBool("LOG_HEALTH_CHECKS", fc.LogHealthChecks),
		FFmpegPath:           getEnv("FFMPEG_PATH", fc.FFmpegPath),
		WatchProxyDir:        getEnvBool("WATCH_PROXY_DIR", fc.WatchProxyDir),
		FrameCacheCapacity:   clampInt(getEnvInt("FRAME_CACHE_CAPACITY", fc.FrameCacheCapacity), MinFrameCacheCapacity, MaxFrameCacheCapacity),
		PreviewMaxWidth:      positiveOr(getEnvInt("PREVIEW_MAX_WIDTH", fc.PreviewMaxWidth), 640),
		PreviewMaxHeight:     positiveOr(getEnvInt("PREVIEW_MAX_HEIGHT", fc.PreviewMaxHeight), 360),
		ProxySettings:        settings,
		ProxyPollInterval:    getEnvDuration("PROXY_POLL_INTERVAL", fc.ProxyPollInterval, proxy.DefaultPollInterval),
		ProxyMaxAge:          getEnvDuration("PROXY_MAX_AGE", fc.ProxyMaxAge, 24*time.Hour),
		ProxyCleanupInterval: getEnvDuration("PROXY_CLEANUP_INTERVAL", fc.ProxyCleanupInterval, time.Hour),
		HistoryRetention:     getEnvDuration("HISTORY_RETENTION", fc.HistoryRetention, 7*24*time.Hour),
		ConfigFile:           configFile,
		ProxyDir:             filepath.Join(cacheDir, "proxies"),
		DatabasePath:         filepath.Join(cacheDir, "jobs.db"),
	}

	return config, nil
}

func logConfig(c *Config) {
	if c.ConfigFile != "" {
		logging.Info("  CONFIG_FILE:            %s", c.ConfigFile)
	}
	logging.Info("  CACHE_DIR:              %s", c.CacheDir)
	logging.Info("  PORT:                   %s", c.Port)
	logging.Info("  METRICS_ENABLED:        %v", c.MetricsEnabled)
	logging.Info("  FFMPEG_PATH:            %s", c.FFmpegPath)
	logging.Info("  FRAME_CACHE_CAPACITY:   %d", c.FrameCacheCapacity)
	logging.Info("  PREVIEW_MAX_SIZE:       %dx%d", c.PreviewMaxWidth, c.PreviewMaxHeight)
	logging.Info("  PROXY_SETTINGS:         %dx%d@%g %s",
		c.ProxySettings.Width, c.ProxySettings.Height, c.ProxySettings.FrameRate, c.ProxySettings.Quality)
	logging.Info("  PROXY_POLL_INTERVAL:    %v", c.ProxyPollInterval)
	logging.Info("  PROXY_MAX_AGE:          %v", c.ProxyMaxAge)
	logging.Info("  PROXY_CLEANUP_INTERVAL: %v", c.ProxyCleanupInterval)
	logging.Info("  HISTORY_RETENTION:      %v", c.HistoryRetention)
	logging.Info("  WATCH_PROXY_DIR:        %v", c.WatchProxyDir)
	logging.Info("  LOG_HEALTH_CHECKS:      %v", c.LogHealthChecks)
	logging.Info("  LOG_LEVEL:              %s", logging.GetLevel())
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		logging.Warn("Invalid number for %s: %q, using default: %g", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

// getEnvDuration parses the env value, else the file value, else returns
// fallback. Non-positive durations count as invalid.
func getEnvDuration(key, fileValue string, fallback time.Duration) time.Duration {
	raw := getEnv(key, fileValue)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		logging.Warn("  Invalid %s %q, using default: %v", key, raw, fallback)
		return fallback
	}
	return d
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

func clampFloat(v, lo, hi float64) float64 {
	return max(lo, min(v, hi))
}

func positiveOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}
