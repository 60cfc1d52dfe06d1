package browser_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/codeGROOVE-dev/cpstats/pkg/browser"
	"github.com/codeGROOVE-dev/cpstats/pkg/browser/browsertest"
	"github.com/codeGROOVE-dev/cpstats/pkg/profile"
)

func TestHoverEachReadsInOrder(t *testing.T) {
	s := &browsertest.Session{
		Counts:   map[string]int{"rect": 3},
		Tooltips: map[int]string{0: "a", 1: "b", 2: "c"},
	}
	l := &browsertest.Launcher{Session: s}
	sess, err := l.Open(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	var seen []string
	read := func(ctx context.Context, s browser.Session) error {
		v, err := s.Eval(ctx, "() => ''")
		seen = append(seen, v)
		return err
	}
	if err := browser.HoverEach("rect", 3, 0, read).Run(context.Background(), sess); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if diff := cmp.Diff([]string{"a", "b", "c"}, seen); diff != "" {
		t.Errorf("reads mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{0, 1, 2}, s.Left); diff != "" {
		t.Errorf("released mismatch (-want +got):\n%s", diff)
	}
}

func TestSelectEach(t *testing.T) {
	s := &browsertest.Session{
		Present:      map[string]bool{"#period": true},
		SelectedHTML: map[string]string{"2023": "<p>2023</p>", "2024": "<p>2024</p>"},
	}
	var seen []string
	read := func(ctx context.Context, s browser.Session) error {
		h, err := s.HTML(ctx)
		seen = append(seen, h)
		return err
	}
	if err := browser.SelectEach("#period", []string{"2024", "2023"}, 0, read).Run(context.Background(), s); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if diff := cmp.Diff([]string{"<p>2024</p>", "<p>2023</p>"}, seen); diff != "" {
		t.Errorf("reads mismatch (-want +got):\n%s", diff)
	}
}

func TestScriptStopsAtFirstFailure(t *testing.T) {
	boom := errors.New("boom")
	s := &browsertest.Session{
		Counts:   map[string]int{"rect": 4},
		HoverErr: map[int]error{1: boom},
	}
	reads := 0
	err := browser.HoverEach("rect", 4, 0, func(context.Context, browser.Session) error {
		reads++
		return nil
	}).Run(context.Background(), s)

	if !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, want boom", err)
	}
	if !strings.Contains(err.Error(), "step 2/4") {
		t.Errorf("Run() error = %q, want step position", err)
	}
	if reads != 1 {
		t.Errorf("reads = %d, want 1", reads)
	}
}

func TestScriptMissingElement(t *testing.T) {
	s := &browsertest.Session{}
	err := browser.SelectEach("#missing", []string{"x"}, 0, nil).Run(context.Background(), s)
	if !errors.Is(err, profile.ErrElementNotFound) {
		t.Errorf("Run() error = %v, want ErrElementNotFound", err)
	}
}

func TestSleepHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := browser.Sleep(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Errorf("Sleep() error = %v, want context.Canceled", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Sleep() ignored cancellation")
	}
	if err := browser.Sleep(context.Background(), 0); err != nil {
		t.Errorf("Sleep(0) error = %v", err)
	}
}
