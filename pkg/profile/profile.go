// Package profile defines the canonical statistics record shared by every platform extractor.
package profile

import (
	"context"
	"errors"
)

// Common errors returned by platform packages.
var (
	ErrUnknownPlatform  = errors.New("unknown platform")
	ErrInvalidURL       = errors.New("no handle in profile URL")
	ErrTransport        = errors.New("transport failure")
	ErrInvalidExtractor = errors.New("extractor does not satisfy the extraction contract")
	ErrElementNotFound  = errors.New("expected page element not found")
	ErrProfileNotFound  = errors.New("profile not found")
)

// Kind groups errors into the categories callers act on.
type Kind int

// Error kinds.
const (
	KindUnknown Kind = iota
	KindResolution
	KindTransport
	KindContract
	KindExtraction
)

func (k Kind) String() string {
	switch k {
	case KindResolution:
		return "resolution"
	case KindTransport:
		return "transport"
	case KindContract:
		return "contract"
	case KindExtraction:
		return "extraction"
	default:
		return "unknown"
	}
}

// KindOf classifies err. A cancelled or expired context counts as a transport
// failure unless a page element wait timed out. Other errors outside the
// taxonomy report KindExtraction, since they come from payloads the extractor
// could not interpret.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrUnknownPlatform), errors.Is(err, ErrInvalidURL):
		return KindResolution
	case errors.Is(err, ErrTransport):
		return KindTransport
	case errors.Is(err, ErrInvalidExtractor):
		return KindContract
	case errors.Is(err, ErrElementNotFound):
		return KindExtraction
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindTransport
	default:
		return KindExtraction
	}
}

// Day is one heat-map cell: activity count for a calendar day (YYYY-MM-DD).
type Day struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Stats is the normalized record produced by every extractor.
//
//nolint:govet // fieldalignment: intentional layout for readability
type Stats struct {
	Platform    Platform `json:"platform"`
	Username    string   `json:"username"`
	DisplayName string   `json:"displayName"`

	Rating        int `json:"rating"`
	MaxRating     int `json:"maxRating"`
	ContestRating int `json:"contestRating"`

	TotalSolved  int `json:"totalSolved"`
	EasySolved   int `json:"easySolved"`
	MediumSolved int `json:"mediumSolved"`
	HardSolved   int `json:"hardSolved"`

	ContestsParticipated int `json:"contestsParticipated"`

	ContributionData []Day    `json:"contributionData"`
	ActiveDays       int      `json:"activeDays"`
	TodayCount       int      `json:"todayCount"`
	Badges           []string `json:"badges"`

	// Platform-specific extras (rank titles, star ratings, ...).
	Fields map[string]string `json:"fields,omitempty"`
}

// SetHeatmap fills ContributionData, ActiveDays and TodayCount from h.
func (s *Stats) SetHeatmap(h *Heatmap, today string) {
	s.ContributionData = h.Days()
	s.ActiveDays = len(s.ContributionData)
	s.TodayCount = h.Count(today)
}

// SetEstimatedBreakdown sets TotalSolved and the estimated difficulty split.
func (s *Stats) SetEstimatedBreakdown(total int) {
	s.TotalSolved = total
	s.EasySolved, s.MediumSolved, s.HardSolved = EstimateBreakdown(total)
}

// SetBreakdown sets a breakdown the platform reports directly; the total is their sum.
func (s *Stats) SetBreakdown(easy, medium, hard int) {
	s.EasySolved, s.MediumSolved, s.HardSolved = easy, medium, hard
	s.TotalSolved = easy + medium + hard
}
