// Package auth reads cookies for profile sites from the local browser's
// cookie stores, so rendered sessions see pages the way a signed-in visitor does.
package auth

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/browserutils/kooky"
	_ "github.com/browserutils/kooky/browser/all" // Register every supported browser store.
	"github.com/browserutils/kooky/browser/firefox"

	"github.com/codeGROOVE-dev/cpstats/pkg/profile"
)

// platformDomains maps the rendered platforms to their cookie domains.
var platformDomains = map[profile.Platform]string{
	profile.CodeChef:      "codechef.com",
	profile.GeeksforGeeks: "geeksforgeeks.org",
}

// firefoxProfileGlobs are Firefox-family profile locations kooky does not
// always find on its own.
var firefoxProfileGlobs = []string{
	filepath.Join(".mozilla", "firefox", "*", "cookies.sqlite"),
	filepath.Join("Library", "Application Support", "Firefox", "Profiles", "*", "cookies.sqlite"),
	filepath.Join("Library", "Application Support", "zen", "Profiles", "*", "cookies.sqlite"),
}

// BrowserSource reads cookies from browser cookie stores.
type BrowserSource struct {
	logger *slog.Logger
	home   string
}

// NewBrowserSource creates a new browser cookie source.
func NewBrowserSource(logger *slog.Logger) *BrowserSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &BrowserSource{logger: logger, home: os.Getenv("HOME")}
}

// Cookies returns valid cookies for platform. Platforms rendered without a
// browser, or machines with no readable store, yield no cookies and no error.
func (s *BrowserSource) Cookies(ctx context.Context, platform profile.Platform) []*http.Cookie {
	domain, ok := platformDomains[platform]
	if !ok {
		return nil
	}
	s.logger.DebugContext(ctx, "reading browser cookies", "platform", platform, "domain", domain)

	if cookies := s.tryFirefoxProfiles(ctx, domain); len(cookies) > 0 {
		return s.convert(ctx, platform, cookies)
	}

	kookies, err := kooky.ReadCookies(ctx, kooky.Valid, kooky.DomainHasSuffix(domain))
	if err != nil {
		s.logger.DebugContext(ctx, "failed to read browser cookies", "platform", platform, "error", err)
	}
	return s.convert(ctx, platform, kookies)
}

func (s *BrowserSource) tryFirefoxProfiles(ctx context.Context, domain string) []*kooky.Cookie {
	if s.home == "" {
		return nil
	}
	for _, g := range firefoxProfileGlobs {
		matches, err := filepath.Glob(filepath.Join(s.home, g))
		if err != nil {
			continue
		}
		for _, f := range matches {
			kookies, err := firefox.ReadCookies(ctx, f, kooky.Valid, kooky.DomainHasSuffix(domain))
			if err != nil {
				s.logger.DebugContext(ctx, "failed to read firefox cookies", "profile", filepath.Base(filepath.Dir(f)), "error", err)
				continue
			}
			if len(kookies) > 0 {
				return kookies
			}
		}
	}
	return nil
}

func (s *BrowserSource) convert(ctx context.Context, platform profile.Platform, kookies []*kooky.Cookie) []*http.Cookie {
	if len(kookies) == 0 {
		return nil
	}
	out := make([]*http.Cookie, 0, len(kookies))
	names := make([]string, 0, len(kookies))
	for _, k := range kookies {
		c := k.Cookie
		out = append(out, &c)
		names = append(names, c.Name)
	}
	s.logger.InfoContext(ctx, "browser cookies found", "platform", platform, "keys", names)
	return out
}
