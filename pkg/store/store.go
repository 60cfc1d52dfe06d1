// Package store persists scraped statistics in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver.

	"github.com/codeGROOVE-dev/cpstats/pkg/aggregate"
	"github.com/codeGROOVE-dev/cpstats/pkg/profile"
)

// ErrNotFound is returned when a user has no stored total.
var ErrNotFound = errors.New("no stored stats")

// Store wraps SQLite access for per-platform and total statistics.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the SQLite database at path and applies migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Writes go through a single connection.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close() //nolint:errcheck // migration error takes precedence
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS platform_stats (
			user_id TEXT NOT NULL,
			platform TEXT NOT NULL,
			username TEXT NOT NULL,
			profile_name TEXT NOT NULL,
			total_questions INTEGER NOT NULL,
			easy_solved INTEGER NOT NULL,
			medium_solved INTEGER NOT NULL,
			hard_solved INTEGER NOT NULL,
			rating INTEGER NOT NULL,
			max_rating INTEGER NOT NULL,
			contest_rating INTEGER NOT NULL,
			total_contests INTEGER NOT NULL,
			badges TEXT NOT NULL,
			heatmap TEXT NOT NULL,
			today_count INTEGER NOT NULL,
			active_days INTEGER NOT NULL,
			raw_stats TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (user_id, platform)
		);`,
		`CREATE TABLE IF NOT EXISTS total_stats (
			user_id TEXT PRIMARY KEY,
			total_questions INTEGER NOT NULL,
			easy_solved INTEGER NOT NULL,
			medium_solved INTEGER NOT NULL,
			hard_solved INTEGER NOT NULL,
			rating TEXT NOT NULL,
			total_contests INTEGER NOT NULL,
			heatmap TEXT NOT NULL,
			today_count INTEGER NOT NULL,
			active_days INTEGER NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_platform_stats_user ON platform_stats(user_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Upsert stores st for userID, replacing any earlier record for the same
// platform. raw is the platform payload kept alongside the normalized
// columns; when nil the record itself is stored.
func (s *Store) Upsert(ctx context.Context, userID string, st *profile.Stats, raw json.RawMessage) error {
	if st == nil {
		return errors.New("nil stats")
	}
	badges, err := json.Marshal(nonNil(st.Badges))
	if err != nil {
		return err
	}
	heatmap, err := json.Marshal(nonNil(st.ContributionData))
	if err != nil {
		return err
	}
	if raw == nil {
		if raw, err = json.Marshal(st); err != nil {
			return err
		}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO platform_stats (user_id, platform, username, profile_name, total_questions, easy_solved, medium_solved, hard_solved,
			rating, max_rating, contest_rating, total_contests, badges, heatmap, today_count, active_days, raw_stats, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, platform) DO UPDATE SET
			username = excluded.username,
			profile_name = excluded.profile_name,
			total_questions = excluded.total_questions,
			easy_solved = excluded.easy_solved,
			medium_solved = excluded.medium_solved,
			hard_solved = excluded.hard_solved,
			rating = excluded.rating,
			max_rating = excluded.max_rating,
			contest_rating = excluded.contest_rating,
			total_contests = excluded.total_contests,
			badges = excluded.badges,
			heatmap = excluded.heatmap,
			today_count = excluded.today_count,
			active_days = excluded.active_days,
			raw_stats = excluded.raw_stats,
			updated_at = excluded.updated_at`,
		userID, string(st.Platform), st.Username, st.DisplayName,
		st.TotalSolved, st.EasySolved, st.MediumSolved, st.HardSolved,
		st.Rating, st.MaxRating, st.ContestRating, st.ContestsParticipated,
		string(badges), string(heatmap), st.TodayCount, st.ActiveDays,
		string(raw), s.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert %s stats for %s: %w", st.Platform, userID, err)
	}
	return nil
}

// Load returns every stored platform record for userID, ordered by platform.
func (s *Store) Load(ctx context.Context, userID string) ([]*profile.Stats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT platform, username, profile_name, total_questions, easy_solved, medium_solved, hard_solved,
			rating, max_rating, contest_rating, total_contests, badges, heatmap, today_count, active_days
		 FROM platform_stats WHERE user_id = ? ORDER BY platform`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck // read-only

	var out []*profile.Stats
	for rows.Next() {
		var (
			st              profile.Stats
			platform        string
			badges, heatmap string
		)
		if err := rows.Scan(&platform, &st.Username, &st.DisplayName,
			&st.TotalSolved, &st.EasySolved, &st.MediumSolved, &st.HardSolved,
			&st.Rating, &st.MaxRating, &st.ContestRating, &st.ContestsParticipated,
			&badges, &heatmap, &st.TodayCount, &st.ActiveDays); err != nil {
			return nil, err
		}
		st.Platform = profile.Platform(platform)
		if err := json.Unmarshal([]byte(badges), &st.Badges); err != nil {
			return nil, fmt.Errorf("decode %s badges: %w", platform, err)
		}
		if err := json.Unmarshal([]byte(heatmap), &st.ContributionData); err != nil {
			return nil, fmt.Errorf("decode %s heatmap: %w", platform, err)
		}
		out = append(out, &st)
	}
	return out, rows.Err()
}

// SaveTotal replaces the stored total for userID.
func (s *Store) SaveTotal(ctx context.Context, userID string, t *aggregate.Totals) error {
	ratings, err := json.Marshal(nonNil(t.Ratings))
	if err != nil {
		return err
	}
	heatmap, err := json.Marshal(nonNil(t.ContributionData))
	if err != nil {
		return err
	}
	updated := t.UpdatedAt
	if updated.IsZero() {
		updated = s.now()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO total_stats (user_id, total_questions, easy_solved, medium_solved, hard_solved, rating, total_contests,
			heatmap, today_count, active_days, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
			total_questions = excluded.total_questions,
			easy_solved = excluded.easy_solved,
			medium_solved = excluded.medium_solved,
			hard_solved = excluded.hard_solved,
			rating = excluded.rating,
			total_contests = excluded.total_contests,
			heatmap = excluded.heatmap,
			today_count = excluded.today_count,
			active_days = excluded.active_days,
			updated_at = excluded.updated_at`,
		userID, t.TotalSolved, t.EasySolved, t.MediumSolved, t.HardSolved, string(ratings), t.Contests,
		string(heatmap), t.TodayCount, t.ActiveDays, updated.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save total for %s: %w", userID, err)
	}
	return nil
}

// LoadTotal returns the stored total for userID, or ErrNotFound.
func (s *Store) LoadTotal(ctx context.Context, userID string) (*aggregate.Totals, error) {
	var (
		t                         aggregate.Totals
		ratings, heatmap, updated string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT total_questions, easy_solved, medium_solved, hard_solved, rating, total_contests,
			heatmap, today_count, active_days, updated_at
		 FROM total_stats WHERE user_id = ?`, userID).
		Scan(&t.TotalSolved, &t.EasySolved, &t.MediumSolved, &t.HardSolved, &ratings, &t.Contests,
			&heatmap, &t.TodayCount, &t.ActiveDays, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w for %s", ErrNotFound, userID)
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(ratings), &t.Ratings); err != nil {
		return nil, fmt.Errorf("decode ratings: %w", err)
	}
	if err := json.Unmarshal([]byte(heatmap), &t.ContributionData); err != nil {
		return nil, fmt.Errorf("decode heatmap: %w", err)
	}
	if t.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return nil, fmt.Errorf("decode updated_at: %w", err)
	}
	return &t, nil
}

// Recompute aggregates every stored platform record of userID and saves the
// result as the user's total. today is a YYYY-MM-DD key.
func (s *Store) Recompute(ctx context.Context, userID, today string) (*aggregate.Totals, error) {
	stats, err := s.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(stats) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNotFound, userID)
	}
	t := aggregate.Total(stats, today)
	t.UpdatedAt = s.now().UTC()
	if err := s.SaveTotal(ctx, userID, t); err != nil {
		return nil, err
	}
	return t, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
