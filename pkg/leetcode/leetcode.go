// Package leetcode extracts LeetCode statistics from the GraphQL API.
package leetcode

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/codeGROOVE-dev/cpstats/pkg/httpcache"
	"github.com/codeGROOVE-dev/cpstats/pkg/profile"
)

const defaultEndpoint = "https://leetcode.com/graphql"

// Client handles LeetCode requests.
type Client struct {
	httpClient *http.Client
	cache      httpcache.Cacher
	logger     *slog.Logger
	now        func() time.Time
	endpoint   string
}

// Option configures a Client.
type Option func(*config)

type config struct {
	cache     httpcache.Cacher
	logger    *slog.Logger
	transport http.RoundTripper
	now       func() time.Time
	endpoint  string
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

// WithTransport sets the HTTP transport used for GraphQL calls.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *config) { c.transport = rt }
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithClock overrides the clock used to compute today's activity.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// WithEndpoint points the client at a different GraphQL endpoint.
func WithEndpoint(u string) Option {
	return func(c *config) { c.endpoint = u }
}

// New creates a LeetCode client.
func New(_ context.Context, opts ...Option) (*Client, error) {
	cfg := &config{
		logger:   slog.Default(),
		now:      time.Now,
		endpoint: defaultEndpoint,
		timeout:  10 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.timeout, Transport: cfg.transport},
		cache:      cfg.cache,
		logger:     cfg.logger,
		now:        cfg.now,
		endpoint:   cfg.endpoint,
	}, nil
}

const solvedQuery = `query userProblemsSolved($username: String!) {
  matchedUser(username: $username) {
    profile { realName }
    badges { displayName }
    submitStatsGlobal { acSubmissionNum { difficulty count } }
  }
}`

const contestQuery = `query userContestRankingInfo($username: String!) {
  userContestRanking(username: $username) { attendedContestsCount rating }
}`

const calendarQuery = `query userCalendar($username: String!) {
  matchedUser(username: $username) { userCalendar { submissionCalendar } }
}`

// graphQLRequest represents the GraphQL query structure.
//
//nolint:govet // fieldalignment: struct ordering for JSON readability
type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLResponse[T any] struct {
	Data   T `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type solvedData struct {
	MatchedUser *struct {
		Profile *struct {
			RealName string `json:"realName"`
		} `json:"profile"`
		Badges []struct {
			DisplayName string `json:"displayName"`
		} `json:"badges"`
		SubmitStatsGlobal struct {
			AcSubmissionNum []struct {
				Difficulty string `json:"difficulty"`
				Count      int    `json:"count"`
			} `json:"acSubmissionNum"`
		} `json:"submitStatsGlobal"`
	} `json:"matchedUser"`
}

type contestData struct {
	UserContestRanking *struct {
		AttendedContestsCount int     `json:"attendedContestsCount"`
		Rating                float64 `json:"rating"`
	} `json:"userContestRanking"`
}

type calendarData struct {
	MatchedUser *struct {
		UserCalendar *struct {
			SubmissionCalendar string `json:"submissionCalendar"`
		} `json:"userCalendar"`
	} `json:"matchedUser"`
}

// Extract retrieves LeetCode statistics for the user in urlStr.
func (c *Client) Extract(ctx context.Context, urlStr string) (*profile.Stats, error) {
	username, err := extractUsername(urlStr)
	if err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "fetching leetcode profile", "url", urlStr, "username", username)

	var (
		solved   solvedData
		contest  contestData
		calendar calendarData
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return query(gctx, c, solvedQuery, username, &solved) })
	g.Go(func() error { return query(gctx, c, contestQuery, username, &contest) })
	g.Go(func() error { return query(gctx, c, calendarQuery, username, &calendar) })
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if solved.MatchedUser == nil {
		return nil, fmt.Errorf("%w: leetcode user %s", profile.ErrProfileNotFound, username)
	}

	days, err := parseCalendar(calendar)
	if err != nil {
		return nil, err
	}

	s := &profile.Stats{
		Platform:    profile.LeetCode,
		Username:    username,
		DisplayName: username,
		Badges:      []string{},
	}
	u := solved.MatchedUser
	if u.Profile != nil && strings.TrimSpace(u.Profile.RealName) != "" {
		s.DisplayName = strings.TrimSpace(u.Profile.RealName)
	}
	for _, b := range u.Badges {
		if b.DisplayName != "" {
			s.Badges = append(s.Badges, b.DisplayName)
		}
	}

	var easy, medium, hard int
	for _, n := range u.SubmitStatsGlobal.AcSubmissionNum {
		switch n.Difficulty {
		case "Easy":
			easy = n.Count
		case "Medium":
			medium = n.Count
		case "Hard":
			hard = n.Count
		}
	}
	s.SetBreakdown(easy, medium, hard)

	if r := contest.UserContestRanking; r != nil {
		s.ContestsParticipated = r.AttendedContestsCount
		s.Rating = int(math.Round(r.Rating))
		s.ContestRating = s.Rating
	}

	s.SetHeatmap(days, profile.DayKey(c.now()))
	return s, nil
}

// parseCalendar converts the submission calendar, a JSON object of
// unix-second timestamps to counts, into per-day totals in timestamp order.
func parseCalendar(data calendarData) (*profile.Heatmap, error) {
	days := profile.NewHeatmap(profile.Accumulate)
	if data.MatchedUser == nil || data.MatchedUser.UserCalendar == nil || data.MatchedUser.UserCalendar.SubmissionCalendar == "" {
		return days, nil
	}

	var raw map[string]int
	if err := json.Unmarshal([]byte(data.MatchedUser.UserCalendar.SubmissionCalendar), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse leetcode submission calendar: %w", err)
	}

	type bucket struct {
		ts    int64
		count int
	}
	buckets := make([]bucket, 0, len(raw))
	for k, v := range raw {
		ts, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("leetcode calendar timestamp %q: %w", k, err)
		}
		buckets = append(buckets, bucket{ts: ts, count: v})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].ts < buckets[j].ts })

	for _, b := range buckets {
		days.Observe(profile.DayKey(time.Unix(b.ts, 0)), b.count)
	}
	return days, nil
}

func query[T any](ctx context.Context, c *Client, q, username string, out *T) error {
	body, err := httpcache.PostJSON(ctx, c.cache, c.httpClient, c.endpoint, graphQLRequest{
		Query:     q,
		Variables: map[string]any{"username": username},
	}, c.logger)
	if err != nil {
		return err
	}

	var resp graphQLResponse[T]
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("failed to parse leetcode response: %w", err)
	}
	if len(resp.Errors) > 0 {
		msg := resp.Errors[0].Message
		if strings.Contains(strings.ToLower(msg), "does not exist") {
			return fmt.Errorf("%w: %s", profile.ErrProfileNotFound, msg)
		}
		return fmt.Errorf("leetcode API error: %s", msg)
	}
	*out = resp.Data
	return nil
}

// extractUsername returns the lower-cased handle, skipping the /u/ prefix
// used by newer profile URLs.
func extractUsername(urlStr string) (string, error) {
	name, err := profile.LastSegment(urlStr)
	if err != nil {
		return "", err
	}
	if strings.EqualFold(name, "u") {
		return "", fmt.Errorf("%w: %s", profile.ErrInvalidURL, urlStr)
	}
	return strings.ToLower(name), nil
}
