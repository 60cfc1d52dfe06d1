// Package codeforces extracts Codeforces statistics from the public API.
package codeforces

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/codeGROOVE-dev/cpstats/pkg/httpcache"
	"github.com/codeGROOVE-dev/cpstats/pkg/profile"
)

const (
	defaultBaseURL = "https://codeforces.com/api"

	// PageSize is the number of submissions requested per user.status call.
	// A shorter page marks the end of the history.
	PageSize = 10000

	// Codeforces asks API clients to stay under one call per second or so.
	defaultDelay = 1100 * time.Millisecond
)

// Client handles Codeforces requests.
type Client struct {
	httpClient *http.Client
	cache      httpcache.Cacher
	logger     *slog.Logger
	now        func() time.Time
	baseURL    string
}

// Option configures a Client.
type Option func(*config)

type config struct {
	cache     httpcache.Cacher
	logger    *slog.Logger
	transport http.RoundTripper
	now       func() time.Time
	baseURL   string
	delay     time.Duration
	timeout   time.Duration
}

// WithHTTPCache sets the HTTP cache.
func WithHTTPCache(httpCache httpcache.Cacher) Option {
	return func(c *config) { c.cache = httpCache }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithTransport sets the HTTP transport used for API calls.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *config) { c.transport = rt }
}

// WithRequestDelay sets the minimum spacing between API calls. Zero disables pacing.
func WithRequestDelay(d time.Duration) Option {
	return func(c *config) { c.delay = d }
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithClock overrides the clock used to compute today's activity.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// WithBaseURL points the client at a different API root.
func WithBaseURL(u string) Option {
	return func(c *config) { c.baseURL = strings.TrimRight(u, "/") }
}

// New creates a Codeforces client.
func New(_ context.Context, opts ...Option) (*Client, error) {
	cfg := &config{
		logger:  slog.Default(),
		now:     time.Now,
		baseURL: defaultBaseURL,
		delay:   defaultDelay,
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	limiter := httpcache.NewDomainRateLimiter(cfg.delay, cfg.logger)
	return &Client{
		httpClient: &http.Client{Timeout: cfg.timeout, Transport: limiter.Transport(cfg.transport)},
		cache:      cfg.cache,
		logger:     cfg.logger,
		now:        cfg.now,
		baseURL:    cfg.baseURL,
	}, nil
}

type envelope[T any] struct {
	Status  string `json:"status"`
	Comment string `json:"comment"`
	Result  T      `json:"result"`
}

type apiUser struct {
	Handle    string `json:"handle"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Rank      string `json:"rank"`
	MaxRank   string `json:"maxRank"`
	Rating    int    `json:"rating"`
	MaxRating int    `json:"maxRating"`
}

type ratingChange struct {
	ContestID int `json:"contestId"`
}

type submission struct {
	Problem struct {
		Index     string `json:"index"`
		ContestID int    `json:"contestId"`
	} `json:"problem"`
	Verdict             string `json:"verdict"`
	CreationTimeSeconds int64  `json:"creationTimeSeconds"`
}

// Extract retrieves Codeforces statistics for the handle in urlStr.
func (c *Client) Extract(ctx context.Context, urlStr string) (*profile.Stats, error) {
	handle, err := profile.LastSegment(urlStr)
	if err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "fetching codeforces profile", "url", urlStr, "username", handle)

	var (
		user     *apiUser
		contests int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		user, err = c.userInfo(gctx, handle)
		return err
	})
	g.Go(func() error {
		contests, _ = profile.BestEffort(gctx, c.logger, "codeforces rating history", 0, func(ctx context.Context) (int, error) {
			return c.contestCount(ctx, handle)
		})
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	days := profile.NewHeatmap(profile.Accumulate)
	solved := make(map[string]struct{})
	// Pages already visited stay counted when a later page fails.
	_, _ = profile.BestEffort(ctx, c.logger, "codeforces submissions", 0, func(ctx context.Context) (int, error) {
		return c.walkSubmissions(ctx, handle, func(s *submission) {
			days.Observe(profile.DayKey(time.Unix(s.CreationTimeSeconds, 0)), 1)
			if s.Verdict == "OK" {
				solved[fmt.Sprintf("%d-%s", s.Problem.ContestID, s.Problem.Index)] = struct{}{}
			}
		})
	})

	return c.buildStats(handle, user, contests, days, len(solved)), nil
}

func (c *Client) buildStats(handle string, u *apiUser, contests int, days *profile.Heatmap, solved int) *profile.Stats {
	s := &profile.Stats{
		Platform:             profile.Codeforces,
		Username:             handle,
		DisplayName:          displayName(u),
		Rating:               u.Rating,
		MaxRating:            u.MaxRating,
		ContestRating:        u.Rating,
		ContestsParticipated: contests,
		Badges:               []string{},
		Fields:               make(map[string]string),
	}
	s.SetEstimatedBreakdown(solved)
	s.SetHeatmap(days, profile.DayKey(c.now()))

	if u.Rank != "" {
		s.Fields["rank"] = u.Rank
	}
	if u.MaxRank != "" {
		s.Fields["max_rank"] = u.MaxRank
	}
	return s
}

func displayName(u *apiUser) string {
	if name := strings.TrimSpace(u.FirstName + " " + u.LastName); name != "" {
		return name
	}
	return u.Handle
}

func (c *Client) userInfo(ctx context.Context, handle string) (*apiUser, error) {
	users, err := call[[]apiUser](ctx, c, "user.info", url.Values{"handles": {handle}})
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("%w: codeforces handle %s", profile.ErrProfileNotFound, handle)
	}
	return &users[0], nil
}

func (c *Client) contestCount(ctx context.Context, handle string) (int, error) {
	changes, err := call[[]ratingChange](ctx, c, "user.rating", url.Values{"handle": {handle}})
	if err != nil {
		return 0, err
	}
	return len(changes), nil
}

// walkSubmissions pages through user.status, calling visit for every
// submission, and returns the number of pages fetched.
func (c *Client) walkSubmissions(ctx context.Context, handle string, visit func(*submission)) (int, error) {
	pages := 0
	for from := 1; ; from += PageSize {
		params := url.Values{
			"handle": {handle},
			"from":   {strconv.Itoa(from)},
			"count":  {strconv.Itoa(PageSize)},
		}
		subs, err := call[[]submission](ctx, c, "user.status", params)
		if err != nil {
			return pages, err
		}
		pages++
		for i := range subs {
			visit(&subs[i])
		}
		c.logger.DebugContext(ctx, "codeforces submissions page", "handle", handle, "from", from, "count", len(subs))
		if len(subs) < PageSize {
			return pages, nil
		}
	}
}

func call[T any](ctx context.Context, c *Client, method string, params url.Values) (T, error) {
	var env envelope[T]
	apiURL := c.baseURL + "/" + method + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, http.NoBody)
	if err != nil {
		return env.Result, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", httpcache.UserAgent)

	body, err := httpcache.FetchURL(ctx, c.cache, c.httpClient, req, c.logger)
	if err != nil {
		return env.Result, err
	}

	if err := json.Unmarshal(body, &env); err != nil {
		return env.Result, fmt.Errorf("failed to parse codeforces %s response: %w", method, err)
	}
	if env.Status != "OK" {
		return env.Result, fmt.Errorf("codeforces %s: status %s: %s", method, env.Status, env.Comment)
	}
	return env.Result, nil
}
