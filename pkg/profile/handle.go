package profile

import (
	"fmt"
	"net/url"
	"strings"
)

// LastSegment returns the last non-empty path segment of a profile URL.
// The host is not inspected; callers route by platform, not by URL.
func LastSegment(rawURL string) (string, error) {
	segs := segments(rawURL)
	if len(segs) == 0 {
		return "", fmt.Errorf("%w: %s", ErrInvalidURL, rawURL)
	}
	return segs[len(segs)-1], nil
}

// SegmentAfter returns the segment following marker (e.g. "user" in /user/alice),
// falling back to the last segment when marker is absent.
func SegmentAfter(rawURL, marker string) (string, error) {
	segs := segments(rawURL)
	for i := 0; i < len(segs)-1; i++ {
		if strings.EqualFold(segs[i], marker) {
			return segs[i+1], nil
		}
	}
	if len(segs) == 0 {
		return "", fmt.Errorf("%w: %s", ErrInvalidURL, rawURL)
	}
	return segs[len(segs)-1], nil
}

func segments(rawURL string) []string {
	s := strings.TrimSpace(rawURL)
	path := s
	if u, err := url.Parse(s); err == nil && (u.Host != "" || u.Scheme != "") {
		path = u.Path
	} else if i := strings.IndexAny(s, "?#"); i >= 0 {
		path = s[:i]
	}

	var out []string
	for _, seg := range strings.Split(path, "/") {
		if seg = strings.TrimSpace(seg); seg != "" {
			out = append(out, seg)
		}
	}
	// A bare host like "codeforces.com/profile/x" parses without a scheme;
	// drop the leading host-looking segment only when something follows it.
	if len(out) > 1 && strings.Contains(out[0], ".") && !strings.HasPrefix(s, "/") {
		if u, err := url.Parse(s); err != nil || u.Host == "" {
			out = out[1:]
		}
	}
	return out
}
