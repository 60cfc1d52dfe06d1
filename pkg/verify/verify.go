// Package verify confirms that a user controls a profile: the user puts a
// verification code into a public profile field and the field is checked.
package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/codeGROOVE-dev/cpstats/pkg/httpcache"
	"github.com/codeGROOVE-dev/cpstats/pkg/profile"
)

const (
	leetcodeGraphQL = "https://leetcode.com/graphql"
	codeforcesAPI   = "https://codeforces.com/api/user.info"
	gfgAPI          = "https://api.geeksforgeeks.org/api/users/"
	codechefUsers   = "https://www.codechef.com/users/"
)

const realNameQuery = `query getUserProfile($username: String!) {
  matchedUser(username: $username) { username profile { realName } }
}`

// Verifier checks verification codes against live profiles.
type Verifier struct {
	httpClient *http.Client
	cache      httpcache.Cacher
	logger     *slog.Logger
}

// Option configures a Verifier.
type Option func(*config)

type config struct {
	cache     httpcache.Cacher
	logger    *slog.Logger
	transport http.RoundTripper
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

// WithTransport sets the HTTP transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *config) { c.transport = rt }
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New creates a Verifier.
func New(_ context.Context, opts ...Option) (*Verifier, error) {
	cfg := &config{logger: slog.Default(), timeout: 15 * time.Second}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Verifier{
		httpClient: &http.Client{Timeout: cfg.timeout, Transport: cfg.transport},
		cache:      cfg.cache,
		logger:     cfg.logger,
	}, nil
}

// Verify reports whether the profile at profileURL carries code. A profile
// that does not exist yields profile.ErrProfileNotFound; a mismatch is
// (false, nil).
func (v *Verifier) Verify(ctx context.Context, platform profile.Platform, profileURL, code string) (bool, error) {
	username, err := usernameFor(platform, profileURL)
	if err != nil {
		return false, err
	}
	v.logger.InfoContext(ctx, "verifying profile", "platform", platform, "username", username)

	switch platform {
	case profile.LeetCode:
		return v.leetcode(ctx, username, code)
	case profile.Codeforces:
		return v.codeforces(ctx, strings.ToLower(username), code)
	case profile.GeeksforGeeks:
		return v.gfg(ctx, strings.ToLower(username), code)
	case profile.CodeChef:
		return v.codechef(ctx, strings.ToLower(username), code)
	default:
		return false, fmt.Errorf("%w: %q", profile.ErrUnknownPlatform, platform)
	}
}

// usernameFor extracts the username the same way the platform's extractor does.
func usernameFor(platform profile.Platform, profileURL string) (string, error) {
	if platform == profile.GeeksforGeeks {
		return profile.SegmentAfter(profileURL, "user")
	}
	return profile.LastSegment(profileURL)
}

// leetcode matches the profile's real name exactly.
func (v *Verifier) leetcode(ctx context.Context, username, code string) (bool, error) {
	body, err := httpcache.PostJSON(ctx, v.cache, v.httpClient, leetcodeGraphQL, map[string]any{
		"query":     realNameQuery,
		"variables": map[string]any{"username": username},
	}, v.logger)
	if err != nil {
		return false, err
	}
	var resp struct {
		Data struct {
			MatchedUser *struct {
				Profile struct {
					RealName string `json:"realName"`
				} `json:"profile"`
			} `json:"matchedUser"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, fmt.Errorf("parse leetcode response: %w", err)
	}
	if resp.Data.MatchedUser == nil {
		return false, fmt.Errorf("%w: leetcode user %s", profile.ErrProfileNotFound, username)
	}
	return resp.Data.MatchedUser.Profile.RealName == code, nil
}

// codeforces matches the handle case-insensitively or "first last" exactly.
func (v *Verifier) codeforces(ctx context.Context, handle, code string) (bool, error) {
	body, err := v.get(ctx, codeforcesAPI+"?"+url.Values{"handles": {handle}}.Encode())
	if err != nil {
		return false, err
	}
	var resp struct {
		Status string `json:"status"`
		Result []struct {
			Handle    string `json:"handle"`
			FirstName string `json:"firstName"`
			LastName  string `json:"lastName"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, fmt.Errorf("parse codeforces response: %w", err)
	}
	if resp.Status != "OK" || len(resp.Result) == 0 {
		return false, fmt.Errorf("%w: codeforces user %s", profile.ErrProfileNotFound, handle)
	}
	u := resp.Result[0]
	full := strings.TrimSpace(u.FirstName + " " + u.LastName)
	return strings.EqualFold(u.Handle, code) || full == code, nil
}

// gfg matches the handle case-insensitively or the name exactly.
func (v *Verifier) gfg(ctx context.Context, username, code string) (bool, error) {
	body, err := v.get(ctx, gfgAPI+url.PathEscape(username))
	if err != nil {
		return false, err
	}
	var resp struct {
		User *struct {
			Handle string `json:"handle"`
			Name   string `json:"name"`
		} `json:"user"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, fmt.Errorf("parse geeksforgeeks response: %w", err)
	}
	if resp.User == nil {
		return false, fmt.Errorf("%w: geeksforgeeks user %s", profile.ErrProfileNotFound, username)
	}
	return strings.EqualFold(resp.User.Handle, code) || resp.User.Name == code, nil
}

// codechef has no public field to hold a code, so the username itself is the
// code. The profile page must exist and show a name heading.
func (v *Verifier) codechef(ctx context.Context, username, code string) (bool, error) {
	body, err := v.get(ctx, codechefUsers+url.PathEscape(username))
	if err != nil {
		return false, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("parse codechef page: %w", err)
	}
	if doc.Find(".h2-style").Length() == 0 {
		return false, fmt.Errorf("%w: codechef user %s", profile.ErrProfileNotFound, username)
	}
	return username == strings.ToLower(code), nil
}

func (v *Verifier) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", httpcache.UserAgent)
	req.Header.Set("Accept", "application/json, text/html;q=0.9")
	return httpcache.FetchURL(ctx, v.cache, v.httpClient, req, v.logger)
}
