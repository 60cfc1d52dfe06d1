// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Environment variables that override file settings.
const (
	EnvChromePath  = "CPSTATS_CHROME_PATH"
	EnvDB          = "CPSTATS_DB"
	EnvTokenSecret = "CPSTATS_TOKEN_SECRET"
)

// FileConfig represents the TOML configuration file. Unset keys stay nil so
// callers can tell them apart from explicit zero values.
type FileConfig struct {
	Browser BrowserConfig `toml:"browser"`
	HTTP    HTTPConfig    `toml:"http"`
	Store   StoreConfig   `toml:"store"`
	Cache   CacheConfig   `toml:"cache"`
	Token   TokenConfig   `toml:"token"`
}

// BrowserConfig maps rendered-page settings.
type BrowserConfig struct {
	ChromePath     *string        `toml:"chrome-path"`
	Headless       *bool          `toml:"headless"`
	UserAgent      *string        `toml:"user-agent"`
	CodeChefSettle *time.Duration `toml:"codechef-settle"`
	CodeChefWait   *time.Duration `toml:"codechef-wait"`
	GFGSettle      *time.Duration `toml:"gfg-settle"`
	GFGHeatmapWait *time.Duration `toml:"gfg-heatmap-wait"`
	GFGScoreWait   *time.Duration `toml:"gfg-score-wait"`
}

// HTTPConfig maps API client settings.
type HTTPConfig struct {
	Timeout         *time.Duration `toml:"timeout"`
	CodeforcesDelay *time.Duration `toml:"codeforces-delay"`
}

// StoreConfig maps persistence settings.
type StoreConfig struct {
	Path *string `toml:"path"`
}

// CacheConfig maps response cache settings.
type CacheConfig struct {
	TTL *time.Duration `toml:"ttl"`
	Dir *string        `toml:"dir"`
}

// TokenConfig maps token issuing settings.
type TokenConfig struct {
	Secret *string        `toml:"secret"`
	TTL    *time.Duration `toml:"ttl"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return FileConfig{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	return cfg, nil
}

// ApplyEnv overrides file settings with environment variables.
func (c *FileConfig) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvChromePath); v != "" {
		c.Browser.ChromePath = &v
	}
	if v := getenv(EnvDB); v != "" {
		c.Store.Path = &v
	}
	if v := getenv(EnvTokenSecret); v != "" {
		c.Token.Secret = &v
	}
}

// Or returns *p, or def when p is nil.
func Or[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}
