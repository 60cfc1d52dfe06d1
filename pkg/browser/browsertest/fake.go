// Package browsertest provides a scripted in-memory browser for tests.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/cpstats/pkg/browser"
	"github.com/codeGROOVE-dev/cpstats/pkg/profile"
)

// Session is a fake browser.Session. Fields describe the page; the recorded
// fields report what the code under test did with it.
//
//nolint:govet // fieldalignment: grouped for readability
type Session struct {
	mu sync.Mutex

	// PageHTML is returned by HTML until an option is selected.
	PageHTML string
	// SelectedHTML is returned by HTML after selecting the keyed option value.
	SelectedHTML map[string]string
	PageTitle    string
	// Present lists selectors that exist on the page; waiting on any other fails.
	Present   map[string]bool
	Counts    map[string]int
	TextsBy   map[string][]string
	OptionsBy map[string][]string
	// Tooltips is what Eval returns while the keyed element index is hovered.
	Tooltips    map[int]string
	NavigateErr error
	HoverErr    map[int]error

	// Recorded interactions.
	Navigated []string
	Hovered   []int
	Left      []int
	Selected  []string
	Cookies   []*http.Cookie
	Waited    []string
	Closed    int

	hovering int
	selected string
}

var _ browser.Session = (*Session)(nil)

// ID implements browser.Session.
func (*Session) ID() string { return "fake" }

// SetCookies implements browser.Session.
func (s *Session) SetCookies(_ context.Context, cookies []*http.Cookie) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Cookies = append(s.Cookies, cookies...)
	return nil
}

// Navigate implements browser.Session.
func (s *Session) Navigate(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Navigated = append(s.Navigated, url)
	if s.NavigateErr != nil {
		return fmt.Errorf("%w: %w", profile.ErrTransport, s.NavigateErr)
	}
	s.hovering = -1
	return nil
}

func (s *Session) wait(ctx context.Context, selector string, timeout time.Duration) error {
	s.mu.Lock()
	s.Waited = append(s.Waited, selector)
	ok := s.Present[selector]
	s.mu.Unlock()
	if ok {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s within %s: %w", profile.ErrElementNotFound, selector, timeout, context.DeadlineExceeded)
}

// WaitPresent implements browser.Session. Missing selectors time out immediately.
func (s *Session) WaitPresent(ctx context.Context, selector string, timeout time.Duration) error {
	return s.wait(ctx, selector, timeout)
}

// WaitVisible implements browser.Session.
func (s *Session) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	return s.wait(ctx, selector, timeout)
}

// Count implements browser.Session.
func (s *Session) Count(_ context.Context, selector string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Counts[selector], nil
}

// HTML implements browser.Session.
func (s *Session) HTML(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected != "" {
		if h, ok := s.SelectedHTML[s.selected]; ok {
			return h, nil
		}
	}
	return s.PageHTML, nil
}

// Title implements browser.Session.
func (s *Session) Title(context.Context) (string, error) {
	return s.PageTitle, nil
}

// Texts implements browser.Session.
func (s *Session) Texts(_ context.Context, selector string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.TextsBy[selector], nil
}

// Hover implements browser.Session.
func (s *Session) Hover(_ context.Context, selector string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index >= s.Counts[selector] {
		return fmt.Errorf("%w: %s[%d]", profile.ErrElementNotFound, selector, index)
	}
	if err := s.HoverErr[index]; err != nil {
		return err
	}
	s.Hovered = append(s.Hovered, index)
	s.hovering = index
	return nil
}

// Leave implements browser.Session.
func (s *Session) Leave(_ context.Context, _ string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Left = append(s.Left, index)
	s.hovering = -1
	return nil
}

// Options implements browser.Session.
func (s *Session) Options(_ context.Context, selector string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.OptionsBy[selector], nil
}

// Select implements browser.Session.
func (s *Session) Select(_ context.Context, selector, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.Present[selector] {
		return fmt.Errorf("%w: %s", profile.ErrElementNotFound, selector)
	}
	s.Selected = append(s.Selected, value)
	s.selected = value
	return nil
}

// Eval implements browser.Session by returning the tooltip of the hovered element.
func (s *Session) Eval(context.Context, string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hovering < 0 {
		return "", nil
	}
	return s.Tooltips[s.hovering], nil
}

// Close implements browser.Session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed++
	return nil
}

// Launcher hands out a single prepared Session.
type Launcher struct {
	Session *Session
	Err     error
	Opens   int
}

var _ browser.Launcher = (*Launcher)(nil)

// Open implements browser.Launcher.
func (l *Launcher) Open(context.Context) (browser.Session, error) {
	l.Opens++
	if l.Err != nil {
		return nil, l.Err
	}
	if l.Session == nil {
		return nil, errors.New("browsertest: no session configured")
	}
	l.Session.hovering = -1
	return l.Session, nil
}
