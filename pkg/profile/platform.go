package profile

import (
	"fmt"
	"strings"
)

// Platform identifies a supported source of statistics.
type Platform string

// Supported platforms.
const (
	Codeforces    Platform = "codeforces"
	LeetCode      Platform = "leetcode"
	CodeChef      Platform = "codechef"
	GeeksforGeeks Platform = "gfg"
)

// aliases maps accepted spellings to their canonical identifier.
var aliases = map[string]Platform{
	"codeforces":    Codeforces,
	"leetcode":      LeetCode,
	"codechef":      CodeChef,
	"gfg":           GeeksforGeeks,
	"geeksforgeeks": GeeksforGeeks,
}

// Platforms returns the supported platforms in display order.
func Platforms() []Platform {
	return []Platform{Codeforces, LeetCode, CodeChef, GeeksforGeeks}
}

// ParsePlatform returns the canonical identifier for name.
// Unknown names yield an error wrapping ErrUnknownPlatform.
func ParsePlatform(name string) (Platform, error) {
	if p, ok := aliases[strings.ToLower(strings.TrimSpace(name))]; ok {
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPlatform, name)
}

func (p Platform) String() string { return string(p) }
