package geeksforgeeks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/codeGROOVE-dev/cpstats/pkg/browser/browsertest"
	"github.com/codeGROOVE-dev/cpstats/pkg/profile"
)

var now = time.Date(2024, 1, 7, 18, 0, 0, 0, time.UTC)

func newSession() *browsertest.Session {
	return &browsertest.Session{
		PageTitle: "Alice Geek - GeeksforGeeks Profile",
		Present: map[string]bool{
			cellSelector:  true,
			scoreSelector: true,
		},
		Counts: map[string]int{cellSelector: 4},
		Tooltips: map[int]string{
			0: "2 submissions on Friday, January 5, 2024",
			1: "",
			2: "5 submissions on Sunday, January 7, 2024",
			3: "1 submission on Saturday, January 6, 2024",
		},
		TextsBy: map[string][]string{
			scoreSelector: {"1234\nCoding Score", "  87\nProblem Solved", "5\nMonthly Score"},
			navSelector:   {"SCHOOL (3)", "BASIC (10)", "EASY (40)", "MEDIUM (25)", "HARD (9)"},
		},
	}
}

func newTestClient(t *testing.T, l *browsertest.Launcher, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{
		WithLauncher(l),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time { return now }),
		WithSettle(0),
	}, opts...)
	c, err := New(context.Background(), opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestExtract(t *testing.T) {
	s := newSession()
	got, err := newTestClient(t, &browsertest.Launcher{Session: s}).Extract(context.Background(), "https://www.geeksforgeeks.org/user/alice/practice")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	want := &profile.Stats{
		Platform:     profile.GeeksforGeeks,
		Username:     "alice",
		DisplayName:  "Alice Geek",
		TotalSolved:  87,
		EasySolved:   40,
		MediumSolved: 25,
		HardSolved:   9,
		ContributionData: []profile.Day{
			{Date: "2024-01-05", Count: 2},
			{Date: "2024-01-07", Count: 5},
			{Date: "2024-01-06", Count: 1},
		},
		ActiveDays: 3,
		TodayCount: 5,
		Badges:     []string{},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Extract() mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]string{"https://www.geeksforgeeks.org/user/alice"}, s.Navigated); diff != "" {
		t.Errorf("navigation mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{0, 1, 2, 3}, s.Hovered); diff != "" {
		t.Errorf("hover order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{0, 1, 2, 3}, s.Left); diff != "" {
		t.Errorf("pointer release mismatch (-want +got):\n%s", diff)
	}
	if s.Closed != 1 {
		t.Errorf("session closed %d times, want 1", s.Closed)
	}
}

func TestExtractLastCellWins(t *testing.T) {
	s := newSession()
	s.Counts = map[string]int{cellSelector: 2}
	s.Tooltips = map[int]string{
		0: "5 submissions on Sunday, January 7, 2024",
		1: "7 submissions on Sunday, January 7, 2024",
	}

	got, err := newTestClient(t, &browsertest.Launcher{Session: s}).Extract(context.Background(), "https://www.geeksforgeeks.org/user/alice")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	want := []profile.Day{{Date: "2024-01-07", Count: 7}}
	if diff := cmp.Diff(want, got.ContributionData); diff != "" {
		t.Errorf("ContributionData mismatch (-want +got):\n%s", diff)
	}
	if got.TodayCount != 7 {
		t.Errorf("TodayCount = %d, want 7", got.TodayCount)
	}
}

func TestExtractMissingHeatmap(t *testing.T) {
	s := newSession()
	delete(s.Present, cellSelector)

	got, err := newTestClient(t, &browsertest.Launcher{Session: s}).Extract(context.Background(), "https://www.geeksforgeeks.org/user/alice")
	if !errors.Is(err, profile.ErrElementNotFound) {
		t.Fatalf("Extract() error = %v, want ErrElementNotFound", err)
	}
	if got != nil {
		t.Errorf("Extract() returned %+v, want nil", got)
	}
	if len(s.Hovered) != 0 {
		t.Errorf("hovered %v before the heat map appeared", s.Hovered)
	}
	if s.Closed != 1 {
		t.Errorf("session closed %d times, want 1", s.Closed)
	}
}

func TestExtractMissingScoreCard(t *testing.T) {
	s := newSession()
	delete(s.Present, scoreSelector)

	_, err := newTestClient(t, &browsertest.Launcher{Session: s}).Extract(context.Background(), "https://www.geeksforgeeks.org/user/alice")
	if !errors.Is(err, profile.ErrElementNotFound) {
		t.Errorf("Extract() error = %v, want ErrElementNotFound", err)
	}
	if s.Closed != 1 {
		t.Errorf("session closed %d times, want 1", s.Closed)
	}
}

func TestExtractHoverFailureAborts(t *testing.T) {
	s := newSession()
	s.HoverErr = map[int]error{2: errors.New("node detached")}

	_, err := newTestClient(t, &browsertest.Launcher{Session: s}).Extract(context.Background(), "https://www.geeksforgeeks.org/user/alice")
	if err == nil {
		t.Fatal("Extract() expected error")
	}
	if s.Closed != 1 {
		t.Errorf("session closed %d times, want 1", s.Closed)
	}
}

func TestExtractLaunchFailure(t *testing.T) {
	l := &browsertest.Launcher{Err: profile.ErrTransport}
	_, err := newTestClient(t, l).Extract(context.Background(), "https://www.geeksforgeeks.org/user/alice")
	if got := profile.KindOf(err); got != profile.KindTransport {
		t.Errorf("KindOf(%v) = %s, want transport", err, got)
	}
}

func TestParseTooltip(t *testing.T) {
	tests := []struct {
		text      string
		wantDate  string
		wantCount int
		wantOK    bool
	}{
		{"5 submissions on Sunday, January 7, 2024", "2024-01-07", 5, true},
		{"1 submission on Monday, December 30, 2024", "2024-12-30", 1, true},
		{"12 submissions on March 3, 2023", "2023-03-03", 12, true},
		{"0 submissions on Tuesday, February 6, 2024", "2024-02-06", 0, true},
		{"", "", 0, false},
		{"No submissions", "", 0, false},
		{"3 submissions on someday", "", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			date, count, ok := parseTooltip(tt.text)
			if ok != tt.wantOK || date != tt.wantDate || count != tt.wantCount {
				t.Errorf("parseTooltip(%q) = (%q, %d, %v), want (%q, %d, %v)",
					tt.text, date, count, ok, tt.wantDate, tt.wantCount, tt.wantOK)
			}
		})
	}
}

func TestUsernameFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.geeksforgeeks.org/user/alice/", "alice"},
		{"https://www.geeksforgeeks.org/user/alice/practice", "alice"},
		{"https://auth.geeksforgeeks.org/profile/bob", "bob"},
		{"carol", "carol"},
	}
	for _, tt := range tests {
		s := newSession()
		if _, err := newTestClient(t, &browsertest.Launcher{Session: s}).Extract(context.Background(), tt.url); err != nil {
			t.Fatalf("Extract(%q) error = %v", tt.url, err)
		}
		if got := s.Navigated[0]; got != defaultBaseURL+tt.want {
			t.Errorf("Extract(%q) navigated to %q, want %q", tt.url, got, defaultBaseURL+tt.want)
		}
	}
}

func TestExtractWithBaseURL(t *testing.T) {
	s := newSession()
	c := newTestClient(t, &browsertest.Launcher{Session: s}, WithBaseURL("https://gfg.example/user/"))
	if _, err := c.Extract(context.Background(), "https://www.geeksforgeeks.org/user/alice/practice"); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got := s.Navigated[0]; got != "https://gfg.example/user/alice" {
		t.Errorf("navigated to %q, want https://gfg.example/user/alice", got)
	}
}
