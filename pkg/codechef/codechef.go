// Package codechef extracts CodeChef statistics from the rendered profile page.
package codechef

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/codeGROOVE-dev/cpstats/pkg/browser"
	"github.com/codeGROOVE-dev/cpstats/pkg/profile"
)

const defaultBaseURL = "https://www.codechef.com/users/"

// Page selectors.
const (
	markerSelector   = ".rating-data-section.problems-solved"
	nameSelector     = ".h2-style"
	ratingSelector   = ".rating-number"
	solvedSelector   = ".rating-data-section.problems-solved h3:last-child"
	contestsSelector = ".contest-attended-count, .contest-participated-count"
	badgeSelector    = ".badge-title"
	periodSelector   = "#heatmap-period-selector"
	heatmapSelector  = "svg rect[data-count]"
)

const (
	defaultSettle     = 2 * time.Second
	defaultMarkerWait = 60 * time.Second
)

var digits = regexp.MustCompile(`\d+`)

// Client handles CodeChef requests.
type Client struct {
	launcher   browser.Launcher
	logger     *slog.Logger
	now        func() time.Time
	baseURL    string
	cookies    []*http.Cookie
	settle     time.Duration
	markerWait time.Duration
}

// Option configures a Client.
type Option func(*config)

type config struct {
	launcher   browser.Launcher
	logger     *slog.Logger
	now        func() time.Time
	baseURL    string
	cookies    []*http.Cookie
	settle     time.Duration
	markerWait time.Duration
}

// WithLauncher sets the browser used to render profile pages.
func WithLauncher(l browser.Launcher) Option {
	return func(c *config) { c.launcher = l }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithClock overrides the clock used to compute today's activity.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// WithSettle sets how long the heat map is given to redraw after a period change.
func WithSettle(d time.Duration) Option {
	return func(c *config) { c.settle = d }
}

// WithMarkerTimeout sets how long to wait for the problems-solved widget.
func WithMarkerTimeout(d time.Duration) Option {
	return func(c *config) { c.markerWait = d }
}

// WithCookies installs cookies in the session before the profile loads.
func WithCookies(cookies []*http.Cookie) Option {
	return func(c *config) { c.cookies = cookies }
}

// WithBaseURL changes the profile URL prefix; the username is appended.
func WithBaseURL(u string) Option {
	return func(c *config) { c.baseURL = u }
}

// New creates a CodeChef client. Without WithLauncher it renders pages with
// a local Chromium through go-rod.
func New(_ context.Context, opts ...Option) (*Client, error) {
	cfg := &config{
		logger:     slog.Default(),
		now:        time.Now,
		baseURL:    defaultBaseURL,
		settle:     defaultSettle,
		markerWait: defaultMarkerWait,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.launcher == nil {
		cfg.launcher = browser.NewRod(browser.WithLogger(cfg.logger))
	}

	return &Client{
		launcher:   cfg.launcher,
		logger:     cfg.logger,
		now:        cfg.now,
		baseURL:    cfg.baseURL,
		cookies:    cfg.cookies,
		settle:     cfg.settle,
		markerWait: cfg.markerWait,
	}, nil
}

// Extract renders a CodeChef profile, reads the static widgets, then walks
// every heat-map period. A date seen in more than one period keeps the count
// from the first period that showed it.
func (c *Client) Extract(ctx context.Context, urlStr string) (*profile.Stats, error) {
	username, err := profile.LastSegment(urlStr)
	if err != nil {
		return nil, err
	}
	pageURL := c.baseURL + username

	c.logger.InfoContext(ctx, "fetching codechef profile", "url", pageURL, "username", username)

	s, err := c.launcher.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			c.logger.WarnContext(ctx, "closing browser session", "id", s.ID(), "error", cerr)
		}
	}()

	if len(c.cookies) > 0 {
		if err := s.SetCookies(ctx, c.cookies); err != nil {
			return nil, fmt.Errorf("set cookies: %w", err)
		}
	}
	if err := s.Navigate(ctx, pageURL); err != nil {
		return nil, err
	}
	if err := s.WaitVisible(ctx, markerSelector, c.markerWait); err != nil {
		return nil, err
	}

	page, err := s.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("read page: %w", err)
	}
	stats, err := parseProfile(page, username)
	if err != nil {
		return nil, err
	}

	hm, err := c.heatmap(ctx, s)
	if err != nil {
		return nil, err
	}
	stats.SetHeatmap(hm, profile.DayKey(c.now()))
	return stats, nil
}

func (c *Client) heatmap(ctx context.Context, s browser.Session) (*profile.Heatmap, error) {
	if n, err := s.Count(ctx, periodSelector); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, fmt.Errorf("%w: %s", profile.ErrElementNotFound, periodSelector)
	}
	periods, err := s.Options(ctx, periodSelector)
	if err != nil {
		return nil, fmt.Errorf("read periods: %w", err)
	}

	hm := profile.NewHeatmap(profile.FirstWriteWins)
	read := func(ctx context.Context, s browser.Session) error {
		page, err := s.HTML(ctx)
		if err != nil {
			return err
		}
		added, err := readCells(page, hm)
		c.logger.DebugContext(ctx, "read heatmap period", "new_days", added, "total_days", hm.Len())
		return err
	}
	if err := browser.SelectEach(periodSelector, periods, c.settle, read).Run(ctx, s); err != nil {
		return nil, err
	}
	return hm, nil
}

func parseProfile(page, username string) (*profile.Stats, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	st := &profile.Stats{
		Platform: profile.CodeChef,
		Username: username,
		Badges:   []string{},
	}
	st.DisplayName = strings.TrimSpace(doc.Find(nameSelector).First().Text())
	if st.DisplayName == "" {
		st.DisplayName = username
	}
	st.Rating = firstNumber(doc.Find(ratingSelector).First().Text())
	st.ContestRating = st.Rating
	st.ContestsParticipated = firstNumber(doc.Find(contestsSelector).First().Text())
	st.SetEstimatedBreakdown(firstNumber(doc.Find(solvedSelector).First().Text()))

	doc.Find(badgeSelector).Each(func(_ int, sel *goquery.Selection) {
		if b := strings.TrimSpace(sel.Text()); b != "" {
			st.Badges = append(st.Badges, b)
		}
	})
	if stars := strings.TrimSpace(doc.Find("span.rating").First().Text()); stars != "" {
		st.Fields = map[string]string{"stars": stars}
	}
	return st, nil
}

// readCells records every dated cell of the visible heat map and returns how
// many dates were new.
func readCells(page string, hm *profile.Heatmap) (int, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return 0, fmt.Errorf("parse heatmap: %w", err)
	}
	before := hm.Len()
	doc.Find(heatmapSelector).Each(func(_ int, sel *goquery.Selection) {
		date, _ := sel.Attr("data-date")
		raw, _ := sel.Attr("data-count")
		if date == "" || raw == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || n < 0 {
			return
		}
		hm.Observe(date, n)
	})
	return hm.Len() - before, nil
}

// firstNumber returns the first run of digits in s, or 0.
func firstNumber(s string) int {
	n, err := strconv.Atoi(digits.FindString(s))
	if err != nil {
		return 0
	}
	return n
}
