package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/oklog/ulid/v2"

	"github.com/codeGROOVE-dev/cpstats/pkg/profile"
)

// DefaultUserAgent is presented by rendered sessions.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// blockedResources are aborted during page load; they never carry profile data.
var blockedResources = map[proto.NetworkResourceType]bool{
	proto.NetworkResourceTypeImage:      true,
	proto.NetworkResourceTypeStylesheet: true,
	proto.NetworkResourceTypeFont:       true,
}

// Option configures a Rod launcher.
type Option func(*Rod)

// WithChromePath uses the browser binary at path instead of downloading Chromium.
func WithChromePath(path string) Option {
	return func(r *Rod) { r.chromePath = path }
}

// WithHeadless toggles headless mode. Sessions are headless by default.
func WithHeadless(headless bool) Option {
	return func(r *Rod) { r.headless = headless }
}

// WithUserAgent overrides the User-Agent presented by sessions.
func WithUserAgent(ua string) Option {
	return func(r *Rod) { r.userAgent = ua }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Rod) { r.logger = logger }
}

// Rod launches Chromium through go-rod. The browser binary is resolved on the
// first Open, so constructing a Rod is cheap.
type Rod struct {
	logger     *slog.Logger
	chromePath string
	userAgent  string
	bin        string
	binErr     error
	binOnce    sync.Once
	headless   bool
}

// NewRod creates a launcher.
func NewRod(opts ...Option) *Rod {
	r := &Rod{
		logger:    slog.Default(),
		userAgent: DefaultUserAgent,
		headless:  true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Rod) binary() (string, error) {
	r.binOnce.Do(func() {
		if r.chromePath != "" {
			r.bin = r.chromePath
			return
		}
		if path, ok := launcher.LookPath(); ok {
			r.bin = path
			return
		}
		r.logger.Info("downloading chromium")
		r.bin, r.binErr = launcher.NewBrowser().Get()
	})
	return r.bin, r.binErr
}

// Open launches a browser process and returns a stealth page with heavy
// assets blocked. The caller must Close the session.
func (r *Rod) Open(ctx context.Context) (Session, error) {
	bin, err := r.binary()
	if err != nil {
		return nil, fmt.Errorf("%w: locate browser: %w", profile.ErrTransport, err)
	}

	l := launcher.New().
		Context(ctx).
		Bin(bin).
		Headless(r.headless).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-dev-shm-usage").
		Set("disable-gpu").
		Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-extensions").
		Set("lang", "en-US,en")

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("%w: launch browser: %w", profile.ErrTransport, err)
	}

	s := &rodSession{id: ulid.Make().String(), launcher: l, logger: r.logger, elems: make(map[string]rod.Elements)}
	if err := s.start(u, r.userAgent); err != nil {
		s.Close() //nolint:errcheck,gosec // start error takes precedence
		return nil, err
	}
	r.logger.DebugContext(ctx, "browser session opened", "id", s.id)
	return s, nil
}

type rodSession struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	router   *rod.HijackRouter
	logger   *slog.Logger
	elems    map[string]rod.Elements
	id       string
	once     sync.Once
	closeErr error
}

func (s *rodSession) start(controlURL, userAgent string) error {
	s.browser = rod.New().ControlURL(controlURL)
	if err := s.browser.Connect(); err != nil {
		return fmt.Errorf("%w: connect browser: %w", profile.ErrTransport, err)
	}

	page, err := stealth.Page(s.browser)
	if err != nil {
		return fmt.Errorf("%w: open page: %w", profile.ErrTransport, err)
	}
	s.page = page

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{Width: 1280, Height: 800, DeviceScaleFactor: 1}); err != nil {
		return err
	}
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: userAgent}); err != nil {
		return err
	}

	s.router = page.HijackRequests()
	if err := s.router.Add("*", "", func(h *rod.Hijack) {
		if blockedResources[h.Request.Type()] {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	}); err != nil {
		return err
	}
	go s.router.Run()
	return nil
}

func (s *rodSession) ID() string { return s.id }

func (s *rodSession) SetCookies(ctx context.Context, cookies []*http.Cookie) error {
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HttpOnly,
		})
	}
	return s.page.Context(ctx).SetCookies(params)
}

func (s *rodSession) Navigate(ctx context.Context, url string) error {
	clear(s.elems)
	p := s.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("%w: navigate %s: %w", profile.ErrTransport, url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("%w: load %s: %w", profile.ErrTransport, url, err)
	}
	return nil
}

func (s *rodSession) wait(ctx context.Context, selector string, timeout time.Duration, visible bool) error {
	p := s.page.Context(ctx).Timeout(timeout)
	defer p.CancelTimeout()
	el, err := p.Element(selector)
	if err == nil && visible {
		err = el.WaitVisible()
	}
	if err != nil {
		return fmt.Errorf("%w: %s within %s: %w", profile.ErrElementNotFound, selector, timeout, err)
	}
	return nil
}

func (s *rodSession) WaitPresent(ctx context.Context, selector string, timeout time.Duration) error {
	return s.wait(ctx, selector, timeout, false)
}

func (s *rodSession) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	return s.wait(ctx, selector, timeout, true)
}

// elements caches matches per selector until the next navigation or
// selection, so hovering every cell does not re-query the whole grid.
func (s *rodSession) elements(ctx context.Context, selector string) (rod.Elements, error) {
	if els, ok := s.elems[selector]; ok {
		return els, nil
	}
	els, err := s.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, err
	}
	s.elems[selector] = els
	return els, nil
}

func (s *rodSession) element(ctx context.Context, selector string, index int) (*rod.Element, error) {
	els, err := s.elements(ctx, selector)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(els) {
		return nil, fmt.Errorf("%w: %s[%d] of %d", profile.ErrElementNotFound, selector, index, len(els))
	}
	return els[index].Context(ctx), nil
}

func (s *rodSession) Count(ctx context.Context, selector string) (int, error) {
	els, err := s.elements(ctx, selector)
	if err != nil {
		return 0, err
	}
	return len(els), nil
}

func (s *rodSession) HTML(ctx context.Context) (string, error) {
	return s.page.Context(ctx).HTML()
}

func (s *rodSession) Title(ctx context.Context) (string, error) {
	info, err := s.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.Title, nil
}

func (s *rodSession) Texts(ctx context.Context, selector string) ([]string, error) {
	els, err := s.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(els))
	for _, el := range els {
		t, err := el.Text()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *rodSession) Hover(ctx context.Context, selector string, index int) error {
	el, err := s.element(ctx, selector, index)
	if err != nil {
		return err
	}
	return el.Hover()
}

func (s *rodSession) Leave(ctx context.Context, selector string, index int) error {
	el, err := s.element(ctx, selector, index)
	if err != nil {
		return err
	}
	return el.MoveMouseOut()
}

func (s *rodSession) Options(ctx context.Context, selector string) ([]string, error) {
	els, err := s.page.Context(ctx).Elements(selector + " option")
	if err != nil {
		return nil, err
	}
	values := make([]string, 0, len(els))
	for _, el := range els {
		v, err := el.Property("value")
		if err != nil {
			return nil, err
		}
		values = append(values, v.Str())
	}
	return values, nil
}

func (s *rodSession) Select(ctx context.Context, selector, value string) error {
	el, err := s.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", profile.ErrElementNotFound, selector, err)
	}
	clear(s.elems)
	return el.Select([]string{fmt.Sprintf("[value=%q]", value)}, true, rod.SelectorTypeCSSSector)
}

func (s *rodSession) Eval(ctx context.Context, js string) (string, error) {
	res, err := s.page.Context(ctx).Eval(js)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

// Close stops request interception, closes the page and browser, and removes
// the launcher's profile directory. It is safe to call more than once.
func (s *rodSession) Close() error {
	s.once.Do(func() {
		var errs []error
		if s.router != nil {
			errs = append(errs, s.router.Stop())
		}
		if s.page != nil {
			errs = append(errs, s.page.Close())
		}
		if s.browser != nil {
			errs = append(errs, s.browser.Close())
		}
		if s.launcher != nil {
			s.launcher.Kill()
			s.launcher.Cleanup()
		}
		s.closeErr = errors.Join(errs...)
		s.logger.Debug("browser session closed", "id", s.id)
	})
	return s.closeErr
}
