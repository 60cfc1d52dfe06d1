// Package geeksforgeeks extracts GeeksforGeeks statistics from the rendered
// profile page. The submission heat map only reveals dates through hover
// tooltips, so every cell is hovered in turn.
package geeksforgeeks

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/cpstats/pkg/browser"
	"github.com/codeGROOVE-dev/cpstats/pkg/profile"
)

const defaultBaseURL = "https://www.geeksforgeeks.org/user/"

const (
	cellSelector  = `rect[style*="fill"]`
	scoreSelector = `div[class*="scoreCard_head_left--score"]`
	navSelector   = `[class*="problemNavbar_head_nav--text"]`

	// tooltipJS returns the text of the floating tooltip that mentions
	// submissions, or "" when none is shown.
	tooltipJS = `() => {
		const tt = [...document.querySelectorAll('div')].find((d) =>
			getComputedStyle(d).position === 'absolute' && d.innerText.toLowerCase().includes('submission'));
		return tt ? tt.innerText.trim() : '';
	}`

	tooltipDateLayout = "January 2, 2006"
)

const (
	defaultSettle    = 150 * time.Millisecond
	defaultCellWait  = 50 * time.Second
	defaultScoreWait = 20 * time.Second
)

var (
	tooltipPattern = regexp.MustCompile(`(?i)^\s*(\d+)\s+submissions?\s+on\s+(.+?)\s*$`)
	weekdayPrefix  = regexp.MustCompile(`^[A-Za-z]+day,\s*`)
	parenCount     = regexp.MustCompile(`\((\d+)\)`)
)

// Client handles GeeksforGeeks requests.
type Client struct {
	launcher  browser.Launcher
	logger    *slog.Logger
	now       func() time.Time
	baseURL   string
	cookies   []*http.Cookie
	settle    time.Duration
	cellWait  time.Duration
	scoreWait time.Duration
}

// Option configures a Client.
type Option func(*config)

type config struct {
	launcher  browser.Launcher
	logger    *slog.Logger
	now       func() time.Time
	baseURL   string
	cookies   []*http.Cookie
	settle    time.Duration
	cellWait  time.Duration
	scoreWait time.Duration
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

// WithSettle sets how long a tooltip is given to appear after hovering a cell.
func WithSettle(d time.Duration) Option {
	return func(c *config) { c.settle = d }
}

// WithHeatmapTimeout sets how long to wait for the heat-map cells.
func WithHeatmapTimeout(d time.Duration) Option {
	return func(c *config) { c.cellWait = d }
}

// WithScoreTimeout sets how long to wait for the score card.
func WithScoreTimeout(d time.Duration) Option {
	return func(c *config) { c.scoreWait = d }
}

// WithCookies installs cookies in the session before the profile loads.
func WithCookies(cookies []*http.Cookie) Option {
	return func(c *config) { c.cookies = cookies }
}

// WithBaseURL changes the profile URL prefix; the username is appended.
func WithBaseURL(u string) Option {
	return func(c *config) { c.baseURL = u }
}

// New creates a GeeksforGeeks client.
func New(_ context.Context, opts ...Option) (*Client, error) {
	cfg := &config{
		logger:    slog.Default(),
		now:       time.Now,
		baseURL:   defaultBaseURL,
		settle:    defaultSettle,
		cellWait:  defaultCellWait,
		scoreWait: defaultScoreWait,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.launcher == nil {
		cfg.launcher = browser.NewRod(browser.WithLogger(cfg.logger))
	}

	return &Client{
		launcher:  cfg.launcher,
		logger:    cfg.logger,
		now:       cfg.now,
		baseURL:   cfg.baseURL,
		cookies:   cfg.cookies,
		settle:    cfg.settle,
		cellWait:  cfg.cellWait,
		scoreWait: cfg.scoreWait,
	}, nil
}

// Extract renders a GeeksforGeeks profile, hovers every heat-map cell to
// collect per-day submissions, then reads the score card. When two cells
// resolve to the same date the later one wins.
func (c *Client) Extract(ctx context.Context, urlStr string) (*profile.Stats, error) {
	username, err := profile.SegmentAfter(urlStr, "user")
	if err != nil {
		return nil, err
	}
	pageURL := c.baseURL + username

	c.logger.InfoContext(ctx, "fetching geeksforgeeks profile", "url", pageURL, "username", username)

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
	if err := s.WaitPresent(ctx, cellSelector, c.cellWait); err != nil {
		return nil, err
	}

	hm, err := c.heatmap(ctx, s)
	if err != nil {
		return nil, err
	}

	if err := s.WaitPresent(ctx, scoreSelector, c.scoreWait); err != nil {
		return nil, err
	}
	st, err := readScoreCard(ctx, s, username)
	if err != nil {
		return nil, err
	}
	st.SetHeatmap(hm, profile.DayKey(c.now()))
	return st, nil
}

func (c *Client) heatmap(ctx context.Context, s browser.Session) (*profile.Heatmap, error) {
	n, err := s.Count(ctx, cellSelector)
	if err != nil {
		return nil, fmt.Errorf("count cells: %w", err)
	}

	hm := profile.NewHeatmap(profile.LastWriteWins)
	skipped := 0
	read := func(ctx context.Context, s browser.Session) error {
		text, err := s.Eval(ctx, tooltipJS)
		if err != nil {
			return fmt.Errorf("read tooltip: %w", err)
		}
		date, count, ok := parseTooltip(text)
		if !ok {
			skipped++
			return nil
		}
		hm.Observe(date, count)
		return nil
	}
	if err := browser.HoverEach(cellSelector, n, c.settle, read).Run(ctx, s); err != nil {
		return nil, err
	}
	c.logger.DebugContext(ctx, "read heatmap", "cells", n, "days", hm.Len(), "skipped", skipped)
	return hm, nil
}

// parseTooltip turns "5 submissions on Sunday, January 7, 2024" into a
// calendar-day key and count.
func parseTooltip(text string) (date string, count int, ok bool) {
	m := tooltipPattern.FindStringSubmatch(text)
	if m == nil {
		return "", 0, false
	}
	count, err := strconv.Atoi(m[1])
	if err != nil {
		return "", 0, false
	}
	t, err := time.Parse(tooltipDateLayout, weekdayPrefix.ReplaceAllString(m[2], ""))
	if err != nil {
		return "", 0, false
	}
	return t.Format(profile.DateLayout), count, true
}

func readScoreCard(ctx context.Context, s browser.Session, username string) (*profile.Stats, error) {
	title, err := s.Title(ctx)
	if err != nil {
		return nil, fmt.Errorf("read title: %w", err)
	}
	blocks, err := s.Texts(ctx, scoreSelector)
	if err != nil {
		return nil, fmt.Errorf("read score card: %w", err)
	}
	tabs, err := s.Texts(ctx, navSelector)
	if err != nil {
		return nil, fmt.Errorf("read difficulty tabs: %w", err)
	}

	st := &profile.Stats{
		Platform: profile.GeeksforGeeks,
		Username: username,
		Badges:   []string{},
	}
	name, _, _ := strings.Cut(title, " - ")
	st.DisplayName = strings.TrimSpace(name)
	if len(blocks) > 1 {
		first, _, _ := strings.Cut(strings.TrimSpace(blocks[1]), "\n")
		st.TotalSolved, _ = strconv.Atoi(strings.TrimSpace(first)) //nolint:errcheck // non-numeric score reads as 0
	}

	// The score card total includes School and Basic problems, so the
	// breakdown need not add up to it.
	for _, tab := range tabs {
		m := parenCount.FindStringSubmatch(tab)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1]) //nolint:errcheck // digits only
		upper := strings.ToUpper(tab)
		switch {
		case strings.Contains(upper, "EASY"):
			st.EasySolved = n
		case strings.Contains(upper, "MEDIUM"):
			st.MediumSolved = n
		case strings.Contains(upper, "HARD"):
			st.HardSolved = n
		}
	}
	return st, nil
}
