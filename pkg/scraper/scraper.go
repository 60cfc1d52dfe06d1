// Package scraper resolves a platform identifier to its extractor.
//
// Basic usage:
//
//	loader := scraper.NewLoader(scraper.WithLogger(logger))
//	stats, err := loader.Extract(ctx, "leetcode", "https://leetcode.com/u/alice/")
//
// Or use platform packages directly:
//
//	client, _ := codeforces.New(ctx)
//	stats, _ := client.Extract(ctx, "https://codeforces.com/profile/tourist")
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/codeGROOVE-dev/cpstats/pkg/auth"
	"github.com/codeGROOVE-dev/cpstats/pkg/browser"
	"github.com/codeGROOVE-dev/cpstats/pkg/codechef"
	"github.com/codeGROOVE-dev/cpstats/pkg/codeforces"
	"github.com/codeGROOVE-dev/cpstats/pkg/geeksforgeeks"
	"github.com/codeGROOVE-dev/cpstats/pkg/httpcache"
	"github.com/codeGROOVE-dev/cpstats/pkg/leetcode"
	"github.com/codeGROOVE-dev/cpstats/pkg/profile"
)

// Extractor turns a profile URL into a normalized record. One call performs
// one extraction; implementations do not retry.
type Extractor interface {
	Extract(ctx context.Context, profileURL string) (*profile.Stats, error)
}

var (
	_ Extractor = (*codeforces.Client)(nil)
	_ Extractor = (*leetcode.Client)(nil)
	_ Extractor = (*codechef.Client)(nil)
	_ Extractor = (*geeksforgeeks.Client)(nil)
)

// Engine says how a variant reaches its platform.
type Engine int

// Engines.
const (
	EngineAPI Engine = iota
	EngineBrowser
)

func (e Engine) String() string {
	if e == EngineBrowser {
		return "browser"
	}
	return "api"
}

// Variant is one registered extraction strategy.
type Variant struct {
	// New constructs the extractor. It is called at most once per Loader.
	New      func(ctx context.Context, cfg *Config) (Extractor, error)
	Platform profile.Platform
	Engine   Engine
}

var registry = map[profile.Platform]Variant{
	profile.Codeforces:    {Platform: profile.Codeforces, Engine: EngineAPI, New: newCodeforces},
	profile.LeetCode:      {Platform: profile.LeetCode, Engine: EngineAPI, New: newLeetCode},
	profile.CodeChef:      {Platform: profile.CodeChef, Engine: EngineBrowser, New: newCodeChef},
	profile.GeeksforGeeks: {Platform: profile.GeeksforGeeks, Engine: EngineBrowser, New: newGeeksforGeeks},
}

// Resolve looks id up in the static registry. It constructs nothing.
func Resolve(id string) (Variant, error) {
	p, err := profile.ParsePlatform(id)
	if err != nil {
		return Variant{}, err
	}
	return registry[p], nil
}

// Option configures a Loader.
type Option func(*Config)

// Config is the construction input handed to every variant.
//
//nolint:govet // fieldalignment: intentional layout for readability
type Config struct {
	Cache          httpcache.Cacher
	Logger         *slog.Logger
	Launcher       browser.Launcher
	BrowserCookies bool

	Codeforces    []codeforces.Option
	LeetCode      []leetcode.Option
	CodeChef      []codechef.Option
	GeeksforGeeks []geeksforgeeks.Option

	overrides map[profile.Platform]Variant
}

// WithHTTPCache sets the response cache for API platforms.
func WithHTTPCache(httpCache httpcache.Cacher) Option {
	return func(c *Config) { c.Cache = httpCache }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// WithLauncher sets the browser used by browser platforms.
func WithLauncher(l browser.Launcher) Option {
	return func(c *Config) { c.Launcher = l }
}

// WithBrowserCookies enables reading cookies from local browser stores for
// browser platforms.
func WithBrowserCookies() Option {
	return func(c *Config) { c.BrowserCookies = true }
}

// WithCodeforcesOptions appends options for the Codeforces client.
func WithCodeforcesOptions(opts ...codeforces.Option) Option {
	return func(c *Config) { c.Codeforces = append(c.Codeforces, opts...) }
}

// WithLeetCodeOptions appends options for the LeetCode client.
func WithLeetCodeOptions(opts ...leetcode.Option) Option {
	return func(c *Config) { c.LeetCode = append(c.LeetCode, opts...) }
}

// WithCodeChefOptions appends options for the CodeChef client.
func WithCodeChefOptions(opts ...codechef.Option) Option {
	return func(c *Config) { c.CodeChef = append(c.CodeChef, opts...) }
}

// WithGeeksforGeeksOptions appends options for the GeeksforGeeks client.
func WithGeeksforGeeksOptions(opts ...geeksforgeeks.Option) Option {
	return func(c *Config) { c.GeeksforGeeks = append(c.GeeksforGeeks, opts...) }
}

// WithVariant replaces the registered variant for v.Platform in this Loader.
func WithVariant(v Variant) Option {
	return func(c *Config) {
		if c.overrides == nil {
			c.overrides = make(map[profile.Platform]Variant)
		}
		c.overrides[v.Platform] = v
	}
}

// Loader builds extractors lazily: nothing is constructed until a platform
// is first asked for, and each platform is constructed at most once.
type Loader struct {
	cfg   *Config
	built map[profile.Platform]Extractor
	mu    sync.Mutex
}

// NewLoader creates a Loader.
func NewLoader(opts ...Option) *Loader {
	cfg := &Config{Logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Loader{cfg: cfg, built: make(map[profile.Platform]Extractor)}
}

// Variant resolves id, preferring a variant installed with WithVariant.
func (l *Loader) Variant(id string) (Variant, error) {
	v, err := Resolve(id)
	if err != nil {
		return Variant{}, err
	}
	if o, ok := l.cfg.overrides[v.Platform]; ok {
		v = o
	}
	return v, nil
}

// Extractor returns the extractor for id, constructing it on first use.
func (l *Loader) Extractor(ctx context.Context, id string) (Extractor, error) {
	v, err := l.Variant(id)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if ex, ok := l.built[v.Platform]; ok {
		return ex, nil
	}
	if v.New == nil {
		return nil, fmt.Errorf("%w: %s has no constructor", profile.ErrInvalidExtractor, v.Platform)
	}

	l.cfg.Logger.DebugContext(ctx, "constructing extractor", "platform", v.Platform, "engine", v.Engine)
	ex, err := v.New(ctx, l.cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: construct %s: %w", profile.ErrInvalidExtractor, v.Platform, err)
	}
	if isNil(ex) {
		return nil, fmt.Errorf("%w: %s constructor returned nil", profile.ErrInvalidExtractor, v.Platform)
	}
	l.built[v.Platform] = ex
	return ex, nil
}

// Extract resolves id and runs one extraction of profileURL.
func (l *Loader) Extract(ctx context.Context, id, profileURL string) (*profile.Stats, error) {
	ex, err := l.Extractor(ctx, id)
	if err != nil {
		return nil, err
	}
	st, err := ex.Extract(ctx, profileURL)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, fmt.Errorf("%w: %s returned no record", profile.ErrInvalidExtractor, id)
	}
	return st, nil
}

// isNil catches typed nil pointers stored in the interface.
func isNil(ex Extractor) bool {
	if ex == nil {
		return true
	}
	v := reflect.ValueOf(ex)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

func newCodeforces(ctx context.Context, cfg *Config) (Extractor, error) {
	opts := []codeforces.Option{codeforces.WithLogger(cfg.Logger)}
	if cfg.Cache != nil {
		opts = append(opts, codeforces.WithHTTPCache(cfg.Cache))
	}
	return codeforces.New(ctx, append(opts, cfg.Codeforces...)...)
}

func newLeetCode(ctx context.Context, cfg *Config) (Extractor, error) {
	opts := []leetcode.Option{leetcode.WithLogger(cfg.Logger)}
	if cfg.Cache != nil {
		opts = append(opts, leetcode.WithHTTPCache(cfg.Cache))
	}
	return leetcode.New(ctx, append(opts, cfg.LeetCode...)...)
}

func newCodeChef(ctx context.Context, cfg *Config) (Extractor, error) {
	opts := []codechef.Option{codechef.WithLogger(cfg.Logger)}
	if cfg.Launcher != nil {
		opts = append(opts, codechef.WithLauncher(cfg.Launcher))
	}
	if cfg.BrowserCookies {
		opts = append(opts, codechef.WithCookies(auth.NewBrowserSource(cfg.Logger).Cookies(ctx, profile.CodeChef)))
	}
	return codechef.New(ctx, append(opts, cfg.CodeChef...)...)
}

func newGeeksforGeeks(ctx context.Context, cfg *Config) (Extractor, error) {
	opts := []geeksforgeeks.Option{geeksforgeeks.WithLogger(cfg.Logger)}
	if cfg.Launcher != nil {
		opts = append(opts, geeksforgeeks.WithLauncher(cfg.Launcher))
	}
	if cfg.BrowserCookies {
		opts = append(opts, geeksforgeeks.WithCookies(auth.NewBrowserSource(cfg.Logger).Cookies(ctx, profile.GeeksforGeeks)))
	}
	return geeksforgeeks.New(ctx, append(opts, cfg.GeeksforGeeks...)...)
}
