package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/codeGROOVE-dev/cpstats/internal/config"
	"github.com/codeGROOVE-dev/cpstats/pkg/aggregate"
	"github.com/codeGROOVE-dev/cpstats/pkg/httpcache"
	"github.com/codeGROOVE-dev/cpstats/pkg/profile"
	"github.com/codeGROOVE-dev/cpstats/pkg/scraper"
	"github.com/codeGROOVE-dev/cpstats/pkg/token"
	"github.com/codeGROOVE-dev/cpstats/pkg/verify"
)

var fixedNow = time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)

type fakeExtractor struct {
	stats *profile.Stats
	errs  []error
	calls int
}

func (f *fakeExtractor) Extract(_ context.Context, _ string) (*profile.Stats, error) {
	f.calls++
	if f.calls <= len(f.errs) {
		return nil, f.errs[f.calls-1]
	}
	return f.stats, nil
}

func fakeVariant(p profile.Platform, ex scraper.Extractor, builds *int) scraper.Variant {
	engine := scraper.EngineAPI
	if v, err := scraper.Resolve(p.String()); err == nil {
		engine = v.Engine
	}
	return scraper.Variant{
		Platform: p,
		Engine:   engine,
		New: func(context.Context, *scraper.Config) (scraper.Extractor, error) {
			if builds != nil {
				*builds++
			}
			return ex, nil
		},
	}
}

func sampleStats() *profile.Stats {
	return &profile.Stats{
		Platform:             profile.Codeforces,
		Username:             "tourist",
		DisplayName:          "Gennady K",
		Rating:               3500,
		MaxRating:            3800,
		ContestRating:        3500,
		TotalSolved:          10,
		EasySolved:           4,
		MediumSolved:         4,
		HardSolved:           2,
		ContestsParticipated: 3,
		ContributionData:     []profile.Day{{Date: "2026-10-16", Count: 2}, {Date: "2026-10-17", Count: 1}},
		ActiveDays:           2,
		TodayCount:           1,
		Badges:               []string{},
	}
}

type testApp struct {
	*app
	out, errOut *bytes.Buffer
	dir         string
}

func newTestApp(t *testing.T, env map[string]string) *testApp {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	a := &app{
		stdout:     out,
		stderr:     errOut,
		getenv:     func(k string) string { return env[k] },
		now:        func() time.Time { return fixedNow },
		retryDelay: time.Millisecond,
	}
	return &testApp{app: a, out: out, errOut: errOut, dir: t.TempDir()}
}

func (ta *testApp) run(args ...string) error {
	ta.out.Reset()
	ta.errOut.Reset()
	args = append(args, "--config", filepath.Join(ta.dir, "config.toml"))
	return ta.execute(args)
}

func TestPlatformCommand(t *testing.T) {
	ex := &fakeExtractor{stats: sampleStats()}
	ta := newTestApp(t, nil)
	ta.extra = []scraper.Option{scraper.WithVariant(fakeVariant(profile.Codeforces, ex, nil))}

	if err := ta.run("codeforces", "https://codeforces.com/profile/tourist"); err != nil {
		t.Fatalf("run() error = %v, stderr = %s", err, ta.errOut)
	}
	var got profile.Stats
	if err := json.Unmarshal(ta.out.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, ta.out)
	}
	if diff := cmp.Diff(sampleStats(), &got); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestGeeksforGeeksAlias(t *testing.T) {
	st := sampleStats()
	st.Platform = profile.GeeksforGeeks
	ex := &fakeExtractor{stats: st}
	ta := newTestApp(t, nil)
	ta.extra = []scraper.Option{scraper.WithVariant(fakeVariant(profile.GeeksforGeeks, ex, nil))}

	for _, name := range []string{"gfg", "geeksforgeeks"} {
		if err := ta.run(name, "https://www.geeksforgeeks.org/user/alice/"); err != nil {
			t.Fatalf("%s: run() error = %v", name, err)
		}
	}
	if ex.calls != 2 {
		t.Errorf("extractor calls = %d, want 2", ex.calls)
	}
}

func TestScrapeUnknownPlatform(t *testing.T) {
	builds := 0
	ta := newTestApp(t, nil)
	ta.extra = []scraper.Option{scraper.WithVariant(fakeVariant(profile.Codeforces, &fakeExtractor{}, &builds))}

	err := ta.run("scrape", "hackerrank", "https://hackerrank.com/alice", "--retries", "3")
	if !errors.Is(err, profile.ErrUnknownPlatform) {
		t.Fatalf("run() error = %v, want unknown platform", err)
	}
	if builds != 0 {
		t.Errorf("constructed %d extractors for an unknown platform", builds)
	}
	if !strings.HasPrefix(ta.errOut.String(), "Error: resolution error") {
		t.Errorf("stderr = %q", ta.errOut)
	}
	if ta.out.Len() != 0 {
		t.Errorf("stdout = %q, want empty", ta.out)
	}
}

func TestScrapeRetriesTransportFailures(t *testing.T) {
	ex := &fakeExtractor{
		stats: sampleStats(),
		errs:  []error{fmt.Errorf("%w: connection reset", profile.ErrTransport)},
	}
	ta := newTestApp(t, nil)
	ta.extra = []scraper.Option{scraper.WithVariant(fakeVariant(profile.Codeforces, ex, nil))}

	if err := ta.run("scrape", "codeforces", "https://codeforces.com/profile/tourist", "--retries", "2"); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if ex.calls != 2 {
		t.Errorf("extractor calls = %d, want 2", ex.calls)
	}
}

func TestScrapeDoesNotRetryContractErrors(t *testing.T) {
	builds := 0
	ta := newTestApp(t, nil)
	ta.extra = []scraper.Option{scraper.WithVariant(scraper.Variant{
		Platform: profile.Codeforces,
		Engine:   scraper.EngineAPI,
		New: func(context.Context, *scraper.Config) (scraper.Extractor, error) {
			builds++
			return nil, nil
		},
	})}

	err := ta.run("scrape", "codeforces", "https://codeforces.com/profile/tourist", "--retries", "3")
	if profile.KindOf(err) != profile.KindContract {
		t.Fatalf("run() error = %v, want contract error", err)
	}
	if builds != 1 {
		t.Errorf("constructor calls = %d, want 1", builds)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"network", fmt.Errorf("%w: dial tcp", profile.ErrTransport), true},
		{"server error", &httpcache.HTTPError{StatusCode: http.StatusBadGateway}, true},
		{"rate limited", &httpcache.HTTPError{StatusCode: http.StatusTooManyRequests}, true},
		{"not found", &httpcache.HTTPError{StatusCode: http.StatusNotFound}, false},
		{"unknown platform", profile.ErrUnknownPlatform, false},
		{"bad url", profile.ErrInvalidURL, false},
		{"contract", profile.ErrInvalidExtractor, false},
		{"missing element", profile.ErrElementNotFound, false},
		{"deadline", fmt.Errorf("wait: %w", context.DeadlineExceeded), false},
		{"canceled", context.Canceled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryable(tt.err, scraper.EngineBrowser); got != tt.want {
				t.Errorf("isRetryable(%v, browser) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}

	if !isRetryable(fmt.Errorf("decode: %w", errors.New("unexpected EOF")), scraper.EngineAPI) {
		t.Error("isRetryable(extraction, api) = false, want true")
	}
}

func TestBrowserScrapeRunsOnceByDefault(t *testing.T) {
	ex := &fakeExtractor{errs: []error{
		fmt.Errorf("%w: .rating-number", profile.ErrElementNotFound),
		fmt.Errorf("%w: .rating-number", profile.ErrElementNotFound),
	}, stats: sampleStats()}
	ta := newTestApp(t, nil)
	ta.extra = []scraper.Option{scraper.WithVariant(fakeVariant(profile.CodeChef, ex, nil))}

	err := ta.run("codechef", "https://www.codechef.com/users/alice")
	if !errors.Is(err, profile.ErrElementNotFound) {
		t.Fatalf("run() error = %v, want missing element", err)
	}
	if ex.calls != 1 {
		t.Errorf("extractor calls = %d, want 1", ex.calls)
	}

	// An explicit retry budget still does not repeat a failed render.
	ex.calls = 0
	ex.errs = []error{fmt.Errorf("%w: .rating-number", profile.ErrElementNotFound)}
	if err := ta.run("codechef", "https://www.codechef.com/users/alice", "--retries", "2"); err == nil {
		t.Fatal("run() error = nil, want missing element")
	}
	if ex.calls != 1 {
		t.Errorf("extractor calls with --retries 2 = %d, want 1", ex.calls)
	}
}

func TestStoreAndTotal(t *testing.T) {
	cf := &fakeExtractor{stats: sampleStats()}
	lcStats := &profile.Stats{
		Platform:         profile.LeetCode,
		Username:         "alice",
		Rating:           1900,
		TotalSolved:      5,
		EasySolved:       3,
		MediumSolved:     1,
		HardSolved:       1,
		ContributionData: []profile.Day{{Date: "2026-10-17", Count: 4}},
		ActiveDays:       1,
		TodayCount:       4,
		Badges:           []string{},
	}
	lc := &fakeExtractor{stats: lcStats}

	ta := newTestApp(t, nil)
	ta.extra = []scraper.Option{
		scraper.WithVariant(fakeVariant(profile.Codeforces, cf, nil)),
		scraper.WithVariant(fakeVariant(profile.LeetCode, lc, nil)),
	}
	db := filepath.Join(ta.dir, "stats.db")

	if err := ta.run("codeforces", "https://codeforces.com/profile/tourist", "--user", "u1", "--db", db); err != nil {
		t.Fatalf("codeforces: %v", err)
	}
	if err := ta.run("leetcode", "https://leetcode.com/u/alice/", "--user", "u1", "--db", db); err != nil {
		t.Fatalf("leetcode: %v", err)
	}

	if err := ta.run("total", "--user", "u1", "--db", db); err != nil {
		t.Fatalf("total: %v", err)
	}
	var got aggregate.Totals
	if err := json.Unmarshal(ta.out.Bytes(), &got); err != nil {
		t.Fatalf("total output is not JSON: %v\n%s", err, ta.out)
	}
	if got.TotalSolved != 15 || got.EasySolved != 7 || got.MediumSolved != 5 || got.HardSolved != 3 {
		t.Errorf("totals = %d (%d/%d/%d), want 15 (7/5/3)", got.TotalSolved, got.EasySolved, got.MediumSolved, got.HardSolved)
	}
	wantDays := []profile.Day{{Date: "2026-10-16", Count: 2}, {Date: "2026-10-17", Count: 5}}
	if diff := cmp.Diff(wantDays, got.ContributionData); diff != "" {
		t.Errorf("heatmap mismatch (-want +got):\n%s", diff)
	}
	if got.TodayCount != 5 || got.ActiveDays != 2 {
		t.Errorf("today = %d, active = %d, want 5 and 2", got.TodayCount, got.ActiveDays)
	}

	if err := ta.run("total", "--user", "u1", "--db", db, "--format", "table"); err != nil {
		t.Fatalf("total table: %v", err)
	}
	for _, want := range []string{"User u1", "Rating (codeforces)", "3500", "Rating (leetcode)", "1900"} {
		if !strings.Contains(ta.out.String(), want) {
			t.Errorf("table output missing %q:\n%s", want, ta.out)
		}
	}
}

func TestTotalRequiresUser(t *testing.T) {
	ta := newTestApp(t, nil)
	if err := ta.run("total", "--db", filepath.Join(ta.dir, "stats.db")); err == nil {
		t.Error("total without --user: expected error")
	}
	if err := ta.run("total", "--user", "u1", "--format", "xml", "--db", filepath.Join(ta.dir, "stats.db")); err == nil {
		t.Error("total --format xml: expected error")
	}
}

func TestToken(t *testing.T) {
	ta := newTestApp(t, map[string]string{config.EnvTokenSecret: "s3cret"})

	if err := ta.run("token", "--subject", "u1"); err != nil {
		t.Fatalf("token: %v", err)
	}
	tok := strings.TrimSpace(ta.out.String())
	if strings.Count(tok, ".") != 2 {
		t.Fatalf("token = %q, want a JWT", tok)
	}

	if err := ta.run("token", "--check", tok); err != nil {
		t.Fatalf("token --check: %v", err)
	}
	var claims token.Claims
	if err := json.Unmarshal(ta.out.Bytes(), &claims); err != nil {
		t.Fatalf("claims output: %v\n%s", err, ta.out)
	}
	if claims.Subject != "u1" || claims.Role != token.DefaultRole {
		t.Errorf("claims = %+v, want subject u1 role %s", claims, token.DefaultRole)
	}
}

func TestTokenWithoutSecret(t *testing.T) {
	ta := newTestApp(t, nil)
	if err := ta.run("token", "--subject", "u1"); !errors.Is(err, token.ErrNoSecret) {
		t.Errorf("token error = %v, want ErrNoSecret", err)
	}
}

// mockTransport redirects requests to the test server.
type mockTransport struct {
	mockURL string
}

func (t *mockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = "http"
	req.URL.Host = t.mockURL[7:] // Strip "http://"
	return http.DefaultTransport.RoundTrip(req)
}

func TestVerifyCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"data":{"matchedUser":{"username":"alice","profile":{"realName":"CPS-42"}}}}`)) //nolint:errcheck // test
	}))
	defer server.Close()

	ta := newTestApp(t, nil)
	ta.verifyOpts = []verify.Option{verify.WithTransport(&mockTransport{mockURL: server.URL})}

	if err := ta.run("verify", "leetcode", "https://leetcode.com/u/alice/", "CPS-42"); err != nil {
		t.Fatalf("verify: %v", err)
	}
	var got verifyResult
	if err := json.Unmarshal(ta.out.Bytes(), &got); err != nil {
		t.Fatalf("verify output: %v\n%s", err, ta.out)
	}
	want := verifyResult{Platform: profile.LeetCode, URL: "https://leetcode.com/u/alice/", Verified: true}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("verify mismatch (-want +got):\n%s", diff)
	}

	if err := ta.run("verify", "leetcode", "https://leetcode.com/u/alice/", "wrong"); !errors.Is(err, errNotVerified) {
		t.Errorf("verify mismatch error = %v, want errNotVerified", err)
	}
}
