package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/spf13/cobra"

	"github.com/codeGROOVE-dev/cpstats/internal/config"
	"github.com/codeGROOVE-dev/cpstats/pkg/browser"
	"github.com/codeGROOVE-dev/cpstats/pkg/codechef"
	"github.com/codeGROOVE-dev/cpstats/pkg/codeforces"
	"github.com/codeGROOVE-dev/cpstats/pkg/geeksforgeeks"
	"github.com/codeGROOVE-dev/cpstats/pkg/httpcache"
	"github.com/codeGROOVE-dev/cpstats/pkg/leetcode"
	"github.com/codeGROOVE-dev/cpstats/pkg/profile"
	"github.com/codeGROOVE-dev/cpstats/pkg/scraper"
	"github.com/codeGROOVE-dev/cpstats/pkg/store"
)

var platformShort = map[profile.Platform]string{
	profile.Codeforces:    "Fetch Codeforces statistics through the public API",
	profile.LeetCode:      "Fetch LeetCode statistics through GraphQL",
	profile.CodeChef:      "Scrape a rendered CodeChef profile (launches Chrome)",
	profile.GeeksforGeeks: "Scrape a rendered GeeksforGeeks profile (launches Chrome)",
}

func newPlatformCmds(a *app) []*cobra.Command {
	var cmds []*cobra.Command
	for _, p := range profile.Platforms() {
		cmd := &cobra.Command{
			Use:   p.String() + " <url>",
			Short: platformShort[p],
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.runScrape(cmd.Context(), p.String(), args[0])
			},
		}
		if p == profile.GeeksforGeeks {
			cmd.Aliases = []string{"geeksforgeeks"}
		}
		cmds = append(cmds, cmd)
	}
	return cmds
}

func newScrapeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "scrape <platform> <url>",
		Short: "Fetch statistics for any supported platform",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runScrape(cmd.Context(), args[0], args[1])
		},
	}
}

func (a *app) runScrape(ctx context.Context, platform, profileURL string) error {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	loader, cleanup, err := a.loader()
	if err != nil {
		return err
	}
	defer cleanup()

	// Resolution failures surface from Extract below.
	engine := scraper.EngineAPI
	if v, err := loader.Variant(platform); err == nil {
		engine = v.Engine
	}

	var last error
	st, err := retry.DoWithData(
		func() (*profile.Stats, error) {
			st, err := loader.Extract(ctx, platform, profileURL)
			last = err
			return st, err
		},
		retry.Context(ctx),
		retry.Attempts(a.retries+1),
		retry.Delay(a.retryDelay),
		retry.MaxJitter(100*time.Millisecond),
		retry.RetryIf(func(err error) bool { return isRetryable(err, engine) }),
		retry.OnRetry(func(n uint, err error) {
			a.logger.WarnContext(ctx, "retrying extraction", "attempt", n+1, "platform", platform, "error", err)
		}),
	)
	if err != nil {
		if last == nil {
			last = err
		}
		return fmt.Errorf("%s error: %w", profile.KindOf(last), last)
	}

	if a.userID != "" {
		if err := a.persist(ctx, st); err != nil {
			return err
		}
	}
	return a.outputJSON(st)
}

// isRetryable reports whether another attempt could succeed. Resolution and
// contract errors never change between attempts; neither do 4xx responses
// other than 429. A rendered page that failed to show its widgets is not
// tried again, since each attempt costs a full marker wait.
func isRetryable(err error, engine scraper.Engine) bool {
	var httpErr *httpcache.HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		default:
			return false
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	switch profile.KindOf(err) {
	case profile.KindResolution, profile.KindContract:
		return false
	case profile.KindExtraction:
		return engine != scraper.EngineBrowser
	default:
		return true
	}
}

// persist stores st under the configured user and refreshes the user's total.
func (a *app) persist(ctx context.Context, st *profile.Stats) error {
	db, err := store.Open(a.dbPath)
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			a.logger.Warn("failed to close db", "error", err)
		}
	}()

	if err := db.Upsert(ctx, a.userID, st, nil); err != nil {
		return fmt.Errorf("failed to store %s stats: %w", st.Platform, err)
	}
	if _, err := db.Recompute(ctx, a.userID, a.today()); err != nil {
		return fmt.Errorf("failed to update total: %w", err)
	}
	a.logger.Info("stored stats", "user", a.userID, "platform", st.Platform, "db", a.dbPath)
	return nil
}

// loader assembles a scraper.Loader from flags and the config file. The
// returned cleanup closes the response cache.
func (a *app) loader() (*scraper.Loader, func(), error) {
	b := a.file.Browser
	h := a.file.HTTP

	opts := []scraper.Option{
		scraper.WithLogger(a.logger),
		scraper.WithLauncher(browser.NewRod(
			browser.WithLogger(a.logger),
			browser.WithChromePath(config.Or(b.ChromePath, "")),
			browser.WithHeadless(config.Or(b.Headless, true)),
			browser.WithUserAgent(config.Or(b.UserAgent, browser.DefaultUserAgent)),
		)),
	}
	if a.browserCookies {
		opts = append(opts, scraper.WithBrowserCookies())
	}

	var cf []codeforces.Option
	var lc []leetcode.Option
	if h.Timeout != nil {
		cf = append(cf, codeforces.WithTimeout(*h.Timeout))
		lc = append(lc, leetcode.WithTimeout(*h.Timeout))
	}
	if h.CodeforcesDelay != nil {
		cf = append(cf, codeforces.WithRequestDelay(*h.CodeforcesDelay))
	}

	var cc []codechef.Option
	if b.CodeChefSettle != nil {
		cc = append(cc, codechef.WithSettle(*b.CodeChefSettle))
	}
	if b.CodeChefWait != nil {
		cc = append(cc, codechef.WithMarkerTimeout(*b.CodeChefWait))
	}

	var gfg []geeksforgeeks.Option
	if b.GFGSettle != nil {
		gfg = append(gfg, geeksforgeeks.WithSettle(*b.GFGSettle))
	}
	if b.GFGHeatmapWait != nil {
		gfg = append(gfg, geeksforgeeks.WithHeatmapTimeout(*b.GFGHeatmapWait))
	}
	if b.GFGScoreWait != nil {
		gfg = append(gfg, geeksforgeeks.WithScoreTimeout(*b.GFGScoreWait))
	}

	opts = append(opts,
		scraper.WithCodeforcesOptions(cf...),
		scraper.WithLeetCodeOptions(lc...),
		scraper.WithCodeChefOptions(cc...),
		scraper.WithGeeksforGeeksOptions(gfg...),
	)

	cleanup := func() {}
	cache, err := a.cache()
	if err != nil {
		return nil, nil, err
	}
	if cache != nil {
		opts = append(opts, scraper.WithHTTPCache(cache))
		cleanup = func() {
			if err := cache.Close(); err != nil {
				a.logger.Warn("failed to close cache", "error", err)
			}
		}
	}

	return scraper.NewLoader(append(opts, a.extra...)...), cleanup, nil
}

// cache returns the response cache, or nil when caching is off.
func (a *app) cache() (*httpcache.Cache, error) {
	if a.cacheTTL <= 0 {
		return nil, nil
	}
	var (
		c   *httpcache.Cache
		err error
	)
	if dir := config.Or(a.file.Cache.Dir, ""); dir != "" {
		c, err = httpcache.NewWithPath(a.cacheTTL, dir)
	} else {
		c, err = httpcache.New(a.cacheTTL)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}
	a.logger.Debug("HTTP cache initialized", "ttl", a.cacheTTL.String())
	return c, nil
}

func (a *app) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if a.timeout > 0 {
		return context.WithTimeout(ctx, a.timeout)
	}
	return context.WithCancel(ctx)
}

func (a *app) today() string {
	return profile.DayKey(a.now().UTC())
}

func (a *app) outputJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
