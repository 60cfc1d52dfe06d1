// Package aggregate combines per-platform records into one cross-platform total.
package aggregate

import (
	"sort"
	"time"

	"github.com/codeGROOVE-dev/cpstats/pkg/profile"
)

// Rating is one platform's rating as carried into the total.
type Rating struct {
	Platform profile.Platform `json:"platform"`
	Rating   int              `json:"rating"`
}

// Totals is the cross-platform summary for one user.
type Totals struct {
	UpdatedAt        time.Time     `json:"updatedAt"`
	Ratings          []Rating      `json:"rating"`
	ContributionData []profile.Day `json:"heatmap"`
	TotalSolved      int           `json:"totalQuestions"`
	EasySolved       int           `json:"easySolved"`
	MediumSolved     int           `json:"mediumSolved"`
	HardSolved       int           `json:"hardSolved"`
	Contests         int           `json:"totalContests"`
	ActiveDays       int           `json:"activeDays"`
	TodayCount       int           `json:"todayCount"`
}

// Total sums solved counts and contests across stats, keeps each platform's
// rating, and merges the heat maps by adding counts for the same day. The
// merged days are in ascending date order. today is a YYYY-MM-DD key.
// Nil entries are skipped; an empty input yields a zero Totals.
func Total(stats []*profile.Stats, today string) *Totals {
	t := &Totals{Ratings: []Rating{}, ContributionData: []profile.Day{}}
	hm := profile.NewHeatmap(profile.Accumulate)
	for _, s := range stats {
		if s == nil {
			continue
		}
		t.TotalSolved += s.TotalSolved
		t.EasySolved += s.EasySolved
		t.MediumSolved += s.MediumSolved
		t.HardSolved += s.HardSolved
		t.Contests += s.ContestsParticipated
		t.Ratings = append(t.Ratings, Rating{Platform: s.Platform, Rating: s.Rating})
		for _, d := range s.ContributionData {
			if d.Date == "" {
				continue
			}
			hm.Observe(d.Date, d.Count)
		}
	}

	days := hm.Days()
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	t.ContributionData = days
	t.ActiveDays = len(days)
	t.TodayCount = hm.Count(today)
	return t
}
